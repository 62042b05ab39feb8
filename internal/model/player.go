package model

import "time"

// PlayerID uniquely identifies a player within a session (client-generated)
type PlayerID string

// Guess is a submitted word and its verdicts, fixed at submission time
type Guess struct {
	Word   string `json:"word"`
	Result Result `json:"result"`
}

// Player is a roster member of a single session
type Player struct {
	ID            PlayerID   `json:"id"`
	DisplayName   string     `json:"name"`
	Guesses       []Guess    `json:"guesses"`
	Solved        bool       `json:"solved"`
	TimeCompleted *time.Time `json:"time_completed,omitempty"`
	JoinedAt      time.Time  `json:"joined_at"`
}

// AttemptsLeft returns how many more guesses the player may submit
func (p *Player) AttemptsLeft() int {
	left := MaxAttempts - len(p.Guesses)
	if left < 0 {
		return 0
	}
	return left
}

// CanGuess returns nil if the player may submit another guess
func (p *Player) CanGuess() error {
	if p.Solved {
		return ErrAlreadySolved
	}
	if len(p.Guesses) >= MaxAttempts {
		return ErrAttemptLimit
	}
	return nil
}

func (p Player) clone() Player {
	c := p
	c.Guesses = make([]Guess, len(p.Guesses))
	copy(c.Guesses, p.Guesses)
	c.TimeCompleted = cloneTime(p.TimeCompleted)
	return c
}
