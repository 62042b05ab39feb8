package model

import "time"

// EventType identifies the type of event
type EventType string

const (
	EventSessionCreated EventType = "session_created"
	EventPlayerJoined   EventType = "player_joined"
	EventSessionStarted EventType = "session_started"
	EventGuessSubmitted EventType = "guess_submitted"
	EventPlayerSolved   EventType = "player_solved"
	EventSessionEnded   EventType = "session_ended"

	// EventSessionDeleted ends a change feed; it carries no snapshot
	EventSessionDeleted EventType = "session_deleted"

	// EventSync carries a point-read snapshot sent to a newly connected
	// subscriber rather than a commit
	EventSync EventType = "sync"
)

// Event carries the full committed session snapshot to subscribers.
// Type and PlayerID describe the mutation but clients must not diff on them;
// they replace their whole view with Session.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID SessionID `json:"session_id"`
	PlayerID  PlayerID  `json:"player_id,omitempty"`
	Version   int64     `json:"version"`
	Session   *Session  `json:"session"`
}

// NewSnapshotEvent wraps a committed session in an event
func NewSnapshotEvent(eventType EventType, playerID PlayerID, s *Session) Event {
	return Event{
		Type:      eventType,
		Timestamp: s.UpdatedAt,
		SessionID: s.ID,
		PlayerID:  playerID,
		Version:   s.Version,
		Session:   s,
	}
}

// Change describes what a committed mutation did
type Change struct {
	Type     EventType
	PlayerID PlayerID
}

// Mutation validates and applies one change to a freshly-read session.
// Returning an error aborts the commit and leaves the stored session untouched.
type Mutation func(s *Session) (Change, error)
