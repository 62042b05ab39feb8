package scoring

import (
	"strings"

	"github.com/mcoot/quizwordz/internal/model"
)

// Normalize trims and uppercases a word without validating it
func Normalize(word string) string {
	return strings.ToUpper(strings.TrimSpace(word))
}

// IsWord returns true if s is exactly WordLength ASCII letters
func IsWord(s string) bool {
	if len(s) != model.WordLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

// NormalizeSecret validates and normalizes a host's secret word
func NormalizeSecret(word string) (string, error) {
	w := Normalize(word)
	if !IsWord(w) {
		return "", model.ErrInvalidWord
	}
	return w, nil
}

// NormalizeGuess validates and normalizes a player's guess
func NormalizeGuess(word string) (string, error) {
	w := Normalize(word)
	if !IsWord(w) {
		return "", model.ErrInvalidGuess
	}
	return w, nil
}

// Evaluate scores guess against secret.
//
// Pass 1 marks exact matches and consumes those secret slots. Pass 2 walks
// the remaining guess letters and consumes the first unused secret slot with
// the same letter, so a repeated letter is never credited more times than it
// appears in the secret.
func Evaluate(secret, guess string) (model.Result, error) {
	var result model.Result

	s, err := NormalizeSecret(secret)
	if err != nil {
		return result, err
	}
	g, err := NormalizeGuess(guess)
	if err != nil {
		return result, err
	}

	// 0 marks a consumed slot
	var slots [model.WordLength]byte
	for i := range result {
		result[i] = model.VerdictAbsent
		slots[i] = s[i]
	}

	for i := 0; i < model.WordLength; i++ {
		if g[i] == s[i] {
			result[i] = model.VerdictCorrect
			slots[i] = 0
		}
	}

	for i := 0; i < model.WordLength; i++ {
		if result[i] == model.VerdictCorrect {
			continue
		}
		for j := 0; j < model.WordLength; j++ {
			if slots[j] != 0 && slots[j] == g[i] {
				result[i] = model.VerdictPresent
				slots[j] = 0
				break
			}
		}
	}

	return result, nil
}

// KeyboardState folds a player's guesses into the best verdict seen per
// letter, for rendering an on-screen keyboard. Correct beats present beats
// absent.
func KeyboardState(guesses []model.Guess) map[rune]model.Verdict {
	state := make(map[rune]model.Verdict)
	for _, guess := range guesses {
		for i, letter := range guess.Word {
			if i >= model.WordLength {
				break
			}
			v := guess.Result[i]
			if prev, ok := state[letter]; !ok || rank(v) > rank(prev) {
				state[letter] = v
			}
		}
	}
	return state
}

func rank(v model.Verdict) int {
	switch v {
	case model.VerdictCorrect:
		return 2
	case model.VerdictPresent:
		return 1
	default:
		return 0
	}
}
