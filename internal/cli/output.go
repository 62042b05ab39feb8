package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mcoot/quizwordz/internal/api/response"
	"github.com/mcoot/quizwordz/internal/model"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.Session:
		o.printSession(v)
	case response.JoinResponse:
		fmt.Fprintf(o.w, "Joined as: %s\n", v.PlayerID)
		o.printSession(v.Session)
	case response.GuessResponse:
		o.printGuessResult(v)
	case response.LeaderboardResponse:
		o.printLeaderboard(v)
	case response.HealthResponse:
		fmt.Fprintf(o.w, "Status: %s\n", v.Status)
		fmt.Fprintf(o.w, "Storage: %s\n", v.Storage)
		fmt.Fprintf(o.w, "Live hubs: %d\n", v.Hubs)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printSession(s response.Session) {
	fmt.Fprintf(o.w, "Session: %s\n", s.ID)
	fmt.Fprintf(o.w, "Status: %s\n", s.Status)
	fmt.Fprintf(o.w, "Version: %d\n", s.Version)
	if s.WinnerID != nil {
		fmt.Fprintf(o.w, "Winner: %s\n", *s.WinnerID)
	}
	fmt.Fprintf(o.w, "Players (%d/%d):\n", len(s.Players), model.MaxPlayers)
	for _, p := range s.Players {
		state := fmt.Sprintf("%d left", p.AttemptsLeft)
		if p.Solved {
			state = "solved"
		}
		fmt.Fprintf(o.w, "  - %s (%s) %s\n", p.DisplayName, p.ID, state)
		for _, g := range p.Guesses {
			fmt.Fprintf(o.w, "      %s\n", renderGuess(g.Word, g.Result))
		}
	}
}

func (o *Output) printGuessResult(r response.GuessResponse) {
	fmt.Fprintf(o.w, "%s\n", renderGuess(r.Guess.Word, r.Guess.Result))
	if r.Solved {
		fmt.Fprintln(o.w, "Solved!")
		if r.Session.WinnerID != nil {
			fmt.Fprintf(o.w, "Winner: %s\n", *r.Session.WinnerID)
		}
	}
}

func (o *Output) printLeaderboard(l response.LeaderboardResponse) {
	fmt.Fprintf(o.w, "Session: %s (%s)\n", l.SessionID, l.Status)
	for _, e := range l.Entries {
		line := fmt.Sprintf("  %d. %s", e.Rank, e.DisplayName)
		if e.Solved {
			line += fmt.Sprintf(" - solved in %d", e.Attempts)
			if e.SolveMillis != nil {
				line += fmt.Sprintf(" (%s)", (time.Duration(*e.SolveMillis) * time.Millisecond).String())
			}
		} else {
			line += fmt.Sprintf(" - unsolved after %d", e.Attempts)
		}
		if e.Winner {
			line += " [winner]"
		}
		fmt.Fprintln(o.w, line)
	}
}

// PrintSnapshot writes one update seen by watch. pending lists guesses sent
// but not yet confirmed.
func (o *Output) PrintSnapshot(ev model.Event, pending []string, keyboard map[rune]model.Verdict) {
	if o.format == "json" {
		data, _ := json.Marshal(ev)
		fmt.Fprintln(o.w, string(data))
		return
	}

	s := ev.Session
	header := fmt.Sprintf("[v%d] %s %s", ev.Version, s.Status, ev.Type)
	if ev.PlayerID != "" {
		if p := s.GetPlayer(ev.PlayerID); p != nil {
			header += " by " + p.DisplayName
		}
	}
	fmt.Fprintln(o.w, header)
	o.printSession(response.SessionFromModel(s))
	for _, word := range pending {
		fmt.Fprintf(o.w, "      %s (pending)\n", spaced(word))
	}
	if len(keyboard) > 0 {
		fmt.Fprintf(o.w, "  Keys: %s\n", renderKeyboard(keyboard))
	}
}

// PrintPending writes a guess that was sent but not yet confirmed
func (o *Output) PrintPending(word string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"pending": word})
		fmt.Fprintln(o.w, string(data))
		return
	}
	fmt.Fprintf(o.w, "      %s (pending)\n", spaced(word))
}

// renderGuess marks correct letters [X], present letters (X), absent letters
// plain
func renderGuess(word string, result model.Result) string {
	parts := make([]string, 0, len(word))
	for i, letter := range word {
		if i >= model.WordLength {
			break
		}
		switch result[i] {
		case model.VerdictCorrect:
			parts = append(parts, "["+string(letter)+"]")
		case model.VerdictPresent:
			parts = append(parts, "("+string(letter)+")")
		default:
			parts = append(parts, " "+string(letter)+" ")
		}
	}
	return strings.Join(parts, "")
}

func spaced(word string) string {
	parts := make([]string, 0, len(word))
	for _, letter := range word {
		parts = append(parts, " "+string(letter)+" ")
	}
	return strings.Join(parts, "")
}

// renderKeyboard lists every letter with its best known verdict, lowercase
// for letters known to be absent
func renderKeyboard(keyboard map[rune]model.Verdict) string {
	var b strings.Builder
	for letter := 'A'; letter <= 'Z'; letter++ {
		v, ok := keyboard[letter]
		switch {
		case !ok:
			b.WriteRune(letter)
		case v == model.VerdictCorrect:
			b.WriteString("[" + string(letter) + "]")
		case v == model.VerdictPresent:
			b.WriteString("(" + string(letter) + ")")
		default:
			b.WriteRune(letter + ('a' - 'A'))
		}
	}
	return b.String()
}
