package model

import (
	"context"
	"errors"
)

// Common errors used across the application
var (
	// Validation errors
	ErrInvalidWord        = errors.New("secret word must be exactly 5 letters")
	ErrInvalidGuess       = errors.New("guess must be exactly 5 letters")
	ErrInvalidDisplayName = errors.New("display name must be 1-20 characters")
	ErrInvalidHostID      = errors.New("invalid host id")
	ErrAlreadyJoined      = errors.New("player has already joined this session")

	// Lookup errors
	ErrSessionNotFound = errors.New("session not found")
	ErrPlayerNotFound  = errors.New("player not found")

	// Lifecycle errors
	ErrSessionNotWaiting = errors.New("session is not waiting for players")
	ErrSessionNotPlaying = errors.New("session is not in play")
	ErrNoPlayers         = errors.New("session has no players")
	ErrNotHost           = errors.New("only the host can perform this action")

	// Roster errors
	ErrSessionFull = errors.New("session is full")

	// Guess errors
	ErrAlreadySolved = errors.New("player has already solved the word")
	ErrAttemptLimit  = errors.New("player has used all attempts")

	// Store errors
	ErrSessionExists      = errors.New("session already exists")
	ErrConflict           = errors.New("concurrent update conflict")
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// ErrorKind classifies errors for callers that must decide how to recover
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindNotFound      ErrorKind = "not_found"
	KindInvalidState  ErrorKind = "invalid_state"
	KindCapacity      ErrorKind = "capacity"
	KindAlreadySolved ErrorKind = "already_solved"
	KindAttemptLimit  ErrorKind = "attempt_limit"
	KindTransient     ErrorKind = "transient"
)

// KindOf classifies err. Anything unrecognised is treated as transient
// (store or network failure) so callers retry rather than give up.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidWord),
		errors.Is(err, ErrInvalidGuess),
		errors.Is(err, ErrInvalidDisplayName),
		errors.Is(err, ErrInvalidHostID),
		errors.Is(err, ErrAlreadyJoined):
		return KindValidation
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrPlayerNotFound):
		return KindNotFound
	case errors.Is(err, ErrSessionNotWaiting),
		errors.Is(err, ErrSessionNotPlaying),
		errors.Is(err, ErrNoPlayers),
		errors.Is(err, ErrNotHost):
		return KindInvalidState
	case errors.Is(err, ErrSessionFull):
		return KindCapacity
	case errors.Is(err, ErrAlreadySolved):
		return KindAlreadySolved
	case errors.Is(err, ErrAttemptLimit):
		return KindAttemptLimit
	default:
		return KindTransient
	}
}

// IsRetryable reports whether the operation may succeed if attempted again
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) == KindTransient
}
