package storage

import (
	"context"

	"github.com/mcoot/quizwordz/internal/model"
)

// Storage persists sessions and publishes every committed change.
//
// UpdateSession is the only way to modify a stored session: the mutation runs
// against a fresh copy, and if it returns nil the result is committed with
// Version+1 and published to every subscriber of that session as one atomic
// step. Concurrent updates of the same session are linearized.
type Storage interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id model.SessionID) (*model.Session, error)
	SessionExists(ctx context.Context, id model.SessionID) (bool, error)
	UpdateSession(ctx context.Context, id model.SessionID, fn model.Mutation) (*model.Session, error)
	DeleteSession(ctx context.Context, id model.SessionID) error

	// Subscribe opens the change feed of one session. Events arrive in commit
	// order; a subscriber that falls behind skips to the newest snapshot.
	Subscribe(ctx context.Context, id model.SessionID) (Subscription, error)

	Close() error
}

// Subscription is one listener on a session's change feed
type Subscription interface {
	// Events is closed when the subscription ends, either through Close,
	// cancellation of the Subscribe context, or loss of the upstream feed.
	Events() <-chan model.Event
	// Err reports why the feed ended. It is nil until Events is closed.
	Err() error
	Close() error
}
