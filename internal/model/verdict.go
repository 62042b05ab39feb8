package model

import (
	"encoding/json"
	"fmt"
)

// Verdict is the scoring outcome for one letter of a guess.
// The underlying byte is the compact wire code.
type Verdict byte

const (
	VerdictCorrect Verdict = 'c' // Right letter, right position
	VerdictPresent Verdict = 'p' // Right letter, wrong position
	VerdictAbsent  Verdict = 'a' // Letter not available to match
)

// String returns the long name of the verdict
func (v Verdict) String() string {
	switch v {
	case VerdictCorrect:
		return "correct"
	case VerdictPresent:
		return "present"
	case VerdictAbsent:
		return "absent"
	default:
		return fmt.Sprintf("Verdict(%q)", byte(v))
	}
}

// Valid returns true for the three known verdicts
func (v Verdict) Valid() bool {
	return v == VerdictCorrect || v == VerdictPresent || v == VerdictAbsent
}

// Result holds one verdict per letter position
type Result [WordLength]Verdict

// IsSolved returns true if every position is correct
func (r Result) IsSolved() bool {
	for _, v := range r {
		if v != VerdictCorrect {
			return false
		}
	}
	return true
}

// Code returns the compact encoding, e.g. "cpaaa"
func (r Result) Code() string {
	b := make([]byte, WordLength)
	for i, v := range r {
		b[i] = byte(v)
	}
	return string(b)
}

// ParseResult decodes the compact encoding produced by Code
func ParseResult(code string) (Result, error) {
	var r Result
	if len(code) != WordLength {
		return r, fmt.Errorf("result %q: want %d verdicts", code, WordLength)
	}
	for i := 0; i < WordLength; i++ {
		v := Verdict(code[i])
		if !v.Valid() {
			return r, fmt.Errorf("result %q: unknown verdict %q at %d", code, code[i], i)
		}
		r[i] = v
	}
	return r, nil
}

// MarshalJSON encodes the result as its compact string
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Code())
}

// UnmarshalJSON decodes the compact string form
func (r *Result) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}
	parsed, err := ParseResult(code)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
