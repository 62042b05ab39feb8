package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// A single mutex linearizes all commits; publishing happens under the same
// lock so subscribers observe commits in order.
type Storage struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*model.Session
	broker   *broker
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		sessions: make(map[model.SessionID]*model.Session),
		broker:   newBroker(),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) CreateSession(ctx context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return model.ErrSessionExists
	}
	stored := session.Clone()
	stored.Version = 1
	s.sessions[session.ID] = stored
	session.Version = stored.Version
	return nil
}

func (s *Storage) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *Storage) SessionExists(ctx context.Context, id model.SessionID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok, nil
}

func (s *Storage) UpdateSession(ctx context.Context, id model.SessionID, fn model.Mutation) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}

	// The mutation works on a copy so a failed mutation leaves nothing behind
	next := current.Clone()
	change, err := fn(next)
	if err != nil {
		return nil, err
	}
	next.Version = current.Version + 1
	s.sessions[id] = next

	s.broker.publish(model.NewSnapshotEvent(change.Type, change.PlayerID, next.Clone()))
	return next.Clone(), nil
}

func (s *Storage) DeleteSession(ctx context.Context, id model.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	s.broker.closeSession(id, fmt.Errorf("session %s deleted: %w", id, model.ErrSubscriptionClosed))
	return nil
}

func (s *Storage) Subscribe(ctx context.Context, id model.SessionID) (storage.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[id]; !ok {
		return nil, model.ErrSessionNotFound
	}
	return s.broker.subscribe(ctx, id), nil
}

// Close ends every open subscription
func (s *Storage) Close() error {
	s.broker.closeAll()
	return nil
}
