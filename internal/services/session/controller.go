package session

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mcoot/quizwordz/internal/dependencies/clock"
	"github.com/mcoot/quizwordz/internal/dependencies/random"
	"github.com/mcoot/quizwordz/internal/metrics"
	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/services/directory"
	"github.com/mcoot/quizwordz/internal/services/scoring"
	"github.com/mcoot/quizwordz/internal/storage"
)

// solveTieBreak separates solve times that the clock reports as equal or
// out of order, keeping "earliest solver" and "first committed solver" the same
const solveTieBreak = time.Microsecond

// Config holds controller settings
type Config struct {
	// OperationTimeout bounds each operation, including commit retries
	OperationTimeout time.Duration
}

// DefaultConfig returns the default controller settings
func DefaultConfig() Config {
	return Config{OperationTimeout: 5 * time.Second}
}

// Controller validates client intents against the current session state and
// commits them atomically. Each operation is one Storage.UpdateSession call:
// all of its checks run against the freshly-read session inside the commit,
// so concurrent intents can never interleave half-applied.
type Controller struct {
	storage   storage.Storage
	directory *directory.Service
	clock     clock.Clock
	random    random.Random
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       Config
}

// NewController creates a new session Controller
func NewController(
	storage storage.Storage,
	directory *directory.Service,
	clock clock.Clock,
	random random.Random,
	metrics *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Controller {
	return &Controller{
		storage:   storage,
		directory: directory,
		clock:     clock,
		random:    random,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.OperationTimeout)
}

// CreateSession creates a new waiting session owned by hostID
func (c *Controller) CreateSession(ctx context.Context, hostID model.HostID, secretWord string) (*model.Session, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.directory.Create(ctx, hostID, secretWord)
}

// GetSession is a point read of the current committed session
func (c *Controller) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.directory.Lookup(ctx, id)
}

// RequireHost returns ErrNotHost unless hostID owns the session
func (c *Controller) RequireHost(ctx context.Context, id model.SessionID, hostID model.HostID) error {
	session, err := c.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if hostID == "" || session.HostID != hostID {
		return model.ErrNotHost
	}
	return nil
}

// CheckJoinable validates a join link: the session must exist, be waiting
// and have room
func (c *Controller) CheckJoinable(ctx context.Context, id model.SessionID) (*model.Session, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.directory.CheckJoinable(ctx, id)
}

// NormalizeDisplayName trims a display name and checks its length
func NormalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n == 0 || n > model.MaxDisplayNameLength {
		return "", model.ErrInvalidDisplayName
	}
	return name, nil
}

// JoinSession adds a player to a waiting session. An empty playerID is
// replaced with a generated one; the ID used is returned.
func (c *Controller) JoinSession(ctx context.Context, id model.SessionID, playerID model.PlayerID, displayName string) (*model.Session, model.PlayerID, error) {
	name, err := NormalizeDisplayName(displayName)
	if err != nil {
		return nil, "", err
	}
	playerID = model.PlayerID(strings.TrimSpace(string(playerID)))
	if playerID == "" {
		playerID = model.PlayerID(c.random.UUID())
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	session, err := c.storage.UpdateSession(ctx, id, func(s *model.Session) (model.Change, error) {
		if err := s.CheckJoinable(); err != nil {
			return model.Change{}, err
		}
		if s.GetPlayer(playerID) != nil {
			return model.Change{}, model.ErrAlreadyJoined
		}

		now := c.clock.Now()
		s.Players = append(s.Players, model.Player{
			ID:          playerID,
			DisplayName: name,
			Guesses:     []model.Guess{},
			JoinedAt:    now,
		})
		s.UpdatedAt = now
		return model.Change{Type: model.EventPlayerJoined, PlayerID: playerID}, nil
	})
	if err != nil {
		return nil, "", err
	}

	c.logger.Info("player joined",
		slog.String("session_id", string(id)),
		slog.String("player_id", string(playerID)),
		slog.Int("player_count", len(session.Players)),
	)
	return session, playerID, nil
}

// StartSession opens the session for guessing
func (c *Controller) StartSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	session, err := c.storage.UpdateSession(ctx, id, func(s *model.Session) (model.Change, error) {
		if s.Status != model.SessionStatusWaiting {
			return model.Change{}, model.ErrSessionNotWaiting
		}
		if len(s.Players) == 0 {
			return model.Change{}, model.ErrNoPlayers
		}

		now := c.clock.Now()
		s.Status = model.SessionStatusPlaying
		s.StartedAt = &now
		s.UpdatedAt = now
		return model.Change{Type: model.EventSessionStarted}, nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.Transitions.WithLabelValues(string(model.SessionStatusPlaying)).Inc()
	c.logger.Info("session started",
		slog.String("session_id", string(id)),
		slog.Int("player_count", len(session.Players)),
	)
	return session, nil
}

// SubmitGuess scores a guess and appends it to the player's history.
// A correct guess marks the player solved; the first solver becomes the
// winner. The session keeps playing until the host ends it.
func (c *Controller) SubmitGuess(ctx context.Context, id model.SessionID, playerID model.PlayerID, guess string) (*model.Guess, *model.Session, error) {
	word, err := scoring.NormalizeGuess(guess)
	if err != nil {
		c.metrics.Guesses.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var submitted model.Guess
	session, err := c.storage.UpdateSession(ctx, id, func(s *model.Session) (model.Change, error) {
		if s.Status != model.SessionStatusPlaying {
			return model.Change{}, model.ErrSessionNotPlaying
		}
		player := s.GetPlayer(playerID)
		if player == nil {
			return model.Change{}, model.ErrPlayerNotFound
		}
		if err := player.CanGuess(); err != nil {
			return model.Change{}, err
		}

		result, err := scoring.Evaluate(s.SecretWord, word)
		if err != nil {
			return model.Change{}, err
		}
		submitted = model.Guess{Word: word, Result: result}

		now := c.clock.Now()
		s.UpdatedAt = now
		change := model.Change{Type: model.EventGuessSubmitted, PlayerID: playerID}

		// solvedAt is read before this player is marked, so it only
		// reflects earlier solvers
		if result.IsSolved() {
			solvedAt := now
			if latest, ok := s.LatestSolveTime(); ok && !solvedAt.After(latest) {
				solvedAt = latest.Add(solveTieBreak)
			}
			player.Solved = true
			player.TimeCompleted = &solvedAt
			if s.WinnerID == nil {
				winner := playerID
				s.WinnerID = &winner
			}
			change.Type = model.EventPlayerSolved
		}
		player.Guesses = append(player.Guesses, submitted)
		return change, nil
	})
	if err != nil {
		c.metrics.Guesses.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, nil, err
	}

	outcome := metrics.OutcomeMiss
	if submitted.Result.IsSolved() {
		outcome = metrics.OutcomeSolved
		c.logger.Info("player solved",
			slog.String("session_id", string(id)),
			slog.String("player_id", string(playerID)),
			slog.Int("attempts", len(session.GetPlayer(playerID).Guesses)),
			slog.Bool("winner", session.WinnerID != nil && *session.WinnerID == playerID),
		)
	}
	c.metrics.Guesses.WithLabelValues(outcome).Inc()
	return &submitted, session, nil
}

// EndSession finishes a playing session. Ending is not idempotent: a second
// call fails with ErrSessionNotPlaying.
func (c *Controller) EndSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	session, err := c.storage.UpdateSession(ctx, id, func(s *model.Session) (model.Change, error) {
		if s.Status != model.SessionStatusPlaying {
			return model.Change{}, model.ErrSessionNotPlaying
		}

		now := c.clock.Now()
		s.Status = model.SessionStatusFinished
		s.EndedAt = &now
		s.UpdatedAt = now
		return model.Change{Type: model.EventSessionEnded}, nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.Transitions.WithLabelValues(string(model.SessionStatusFinished)).Inc()
	logAttrs := []any{slog.String("session_id", string(id))}
	if session.WinnerID != nil {
		logAttrs = append(logAttrs, slog.String("winner_id", string(*session.WinnerID)))
	}
	c.logger.Info("session ended", logAttrs...)
	return session, nil
}

// Leaderboard reads a session and ranks its players
func (c *Controller) Leaderboard(ctx context.Context, id model.SessionID) ([]LeaderboardEntry, error) {
	session, err := c.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return Leaderboard(session), nil
}
