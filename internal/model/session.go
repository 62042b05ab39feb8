package model

import "time"

const (
	// WordLength is the number of letters in secret words and guesses
	WordLength = 5
	// MaxAttempts is the number of guesses each player may submit
	MaxAttempts = 6
	// MaxPlayers bounds the roster of a session
	MaxPlayers = 8
	// MaxDisplayNameLength bounds player display names (in characters)
	MaxDisplayNameLength = 20
)

// SessionID is an opaque, URL-safe identifier used in join links
type SessionID string

// HostID identifies the participant who created a session
type HostID string

// SessionStatus represents the lifecycle phase of a session
type SessionStatus string

const (
	SessionStatusWaiting  SessionStatus = "waiting"  // Accepting players
	SessionStatusPlaying  SessionStatus = "playing"  // Accepting guesses
	SessionStatusFinished SessionStatus = "finished" // Terminal
)

// Valid returns true for the three known statuses
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusWaiting, SessionStatusPlaying, SessionStatusFinished:
		return true
	}
	return false
}

// Session is one game instance: one secret word, one roster, one lifecycle.
// It is the only shared mutable record; every change goes through an atomic
// store commit and is published to subscribers as a whole snapshot.
type Session struct {
	ID         SessionID     `json:"id"`
	HostID     HostID        `json:"host_id"`
	SecretWord string        `json:"secret_word"`
	Status     SessionStatus `json:"status"`
	Players    []Player      `json:"players"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	WinnerID  *PlayerID  `json:"winner_id,omitempty"`

	// Version is bumped by every committed mutation
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetPlayer returns the roster entry with the given ID, or nil if not found
func (s *Session) GetPlayer(id PlayerID) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// Winner returns the winning player, or nil if nobody has solved yet
func (s *Session) Winner() *Player {
	if s.WinnerID == nil {
		return nil
	}
	return s.GetPlayer(*s.WinnerID)
}

// IsFull returns true if the roster has reached capacity
func (s *Session) IsFull() bool {
	return len(s.Players) >= MaxPlayers
}

// CheckJoinable reports whether a new player may join right now
func (s *Session) CheckJoinable() error {
	if s.Status != SessionStatusWaiting {
		return ErrSessionNotWaiting
	}
	if s.IsFull() {
		return ErrSessionFull
	}
	return nil
}

// LatestSolveTime returns the most recent TimeCompleted in the roster
func (s *Session) LatestSolveTime() (time.Time, bool) {
	var latest time.Time
	found := false
	for _, p := range s.Players {
		if p.TimeCompleted != nil && (!found || p.TimeCompleted.After(latest)) {
			latest = *p.TimeCompleted
			found = true
		}
	}
	return latest, found
}

// Clone returns a deep copy so callers can hand snapshots to subscribers
// without sharing slices with the stored record
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.StartedAt = cloneTime(s.StartedAt)
	c.EndedAt = cloneTime(s.EndedAt)
	if s.WinnerID != nil {
		w := *s.WinnerID
		c.WinnerID = &w
	}
	c.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		c.Players[i] = p.clone()
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
