package directory

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mcoot/quizwordz/internal/dependencies/clock"
	"github.com/mcoot/quizwordz/internal/dependencies/random"
	"github.com/mcoot/quizwordz/internal/metrics"
	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/services/scoring"
	"github.com/mcoot/quizwordz/internal/storage"
)

const (
	// SessionIDLength is the length of generated session IDs
	SessionIDLength = 10
	// SessionIDAlphabet is URL-safe and avoids confusing characters
	SessionIDAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"
	// MaxHostIDLength bounds caller-supplied host identifiers
	MaxHostIDLength = 64

	maxAllocateAttempts = 16
)

// Service creates sessions and answers lookups by ID without subscribing
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a new directory service
func New(
	storage storage.Storage,
	clock clock.Clock,
	random random.Random,
	metrics *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		random:  random,
		metrics: metrics,
		logger:  logger,
	}
}

// Create validates the secret word and stores a new waiting session under a
// fresh ID. An empty hostID is replaced with a generated one.
func (s *Service) Create(ctx context.Context, hostID model.HostID, secretWord string) (*model.Session, error) {
	secret, err := scoring.NormalizeSecret(secretWord)
	if err != nil {
		return nil, err
	}

	hostID = model.HostID(strings.TrimSpace(string(hostID)))
	if hostID == "" {
		hostID = model.HostID(s.random.UUID())
	}
	if len(hostID) > MaxHostIDLength {
		return nil, model.ErrInvalidHostID
	}

	now := s.clock.Now()
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		session := &model.Session{
			ID:         model.SessionID(s.random.String(SessionIDLength, SessionIDAlphabet)),
			HostID:     hostID,
			SecretWord: secret,
			Status:     model.SessionStatusWaiting,
			Players:    []model.Player{},
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		err := s.storage.CreateSession(ctx, session)
		if errors.Is(err, model.ErrSessionExists) {
			continue
		}
		if err != nil {
			s.logger.Error("failed to create session",
				slog.String("error", err.Error()),
			)
			return nil, err
		}

		s.metrics.SessionsCreated.Inc()
		s.logger.Info("session created",
			slog.String("session_id", string(session.ID)),
			slog.String("host_id", string(hostID)),
		)
		return session, nil
	}

	return nil, model.ErrSessionExists
}

// Lookup is a point read of a session
func (s *Service) Lookup(ctx context.Context, id model.SessionID) (*model.Session, error) {
	return s.storage.GetSession(ctx, id)
}

// CheckJoinable lets a client validate a join link before subscribing
func (s *Service) CheckJoinable(ctx context.Context, id model.SessionID) (*model.Session, error) {
	session, err := s.storage.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := session.CheckJoinable(); err != nil {
		return session, err
	}
	return session, nil
}
