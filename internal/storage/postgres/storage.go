package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/storage"
)

// Storage is a Postgres-backed implementation of the storage interface.
//
// Each session is a JSONB document in one row. Commits take the row lock
// with SELECT ... FOR UPDATE and send a NOTIFY inside the same transaction;
// Postgres delivers notifications only after commit, in commit order.
// All subscriptions share one LISTEN connection.
type Storage struct {
	pool     *pgxpool.Pool
	cfg      Config
	listener *listener
}

// change is the NOTIFY payload. Listeners re-read the row rather than
// trusting a payload size-limited snapshot. Deletes notify with only the
// session ID set.
type change struct {
	SessionID model.SessionID `json:"session_id"`
	Version   int64           `json:"version"`
	Type      model.EventType `json:"type"`
	PlayerID  model.PlayerID  `json:"player_id,omitempty"`
}

// New connects to Postgres and ensures the schema exists
func New(ctx context.Context, cfg Config) (*Storage, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	s := NewWithPool(pool, cfg)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool creates a Postgres storage with an existing pool
func NewWithPool(pool *pgxpool.Pool, cfg Config) *Storage {
	s := &Storage{pool: pool, cfg: cfg}
	s.listener = newListener(pool.Config().ConnConfig.Copy(), s.GetSession)
	return s
}

// Migrate creates the sessions table if needed
func (s *Storage) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close ends every subscription and closes the connection pool
func (s *Storage) Close() error {
	s.listener.close()
	s.pool.Close()
	return nil
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) ttl() string {
	return fmt.Sprintf("%d milliseconds", s.cfg.SessionTTL.Milliseconds())
}

func (s *Storage) CreateSession(ctx context.Context, session *model.Session) error {
	stored := session.Clone()
	stored.Version = 1
	doc, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, insertSessionSQL, string(stored.ID), doc, stored.Version, s.ttl())
	if err != nil {
		return fmt.Errorf("create session %s: %w", session.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrSessionExists
	}
	session.Version = stored.Version
	return nil
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Storage) getSession(ctx context.Context, q querier, query string, id model.SessionID) (*model.Session, error) {
	var doc []byte
	if err := q.QueryRow(ctx, query, string(id)).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var session model.Session
	if err := json.Unmarshal(doc, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &session, nil
}

func (s *Storage) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	return s.getSession(ctx, s.pool, selectSessionSQL, id)
}

func (s *Storage) SessionExists(ctx context.Context, id model.SessionID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, sessionExistsSQL, string(id)).Scan(&exists)
	return exists, err
}

func (s *Storage) UpdateSession(ctx context.Context, id model.SessionID, fn model.Mutation) (*model.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	session, err := s.getSession(ctx, tx, selectSessionForUpdateSQL, id)
	if err != nil {
		return nil, err
	}

	ch, err := fn(session)
	if err != nil {
		return nil, err
	}
	session.Version++

	doc, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, updateSessionSQL, string(id), doc, session.Version, s.ttl()); err != nil {
		return nil, fmt.Errorf("update session %s: %w", id, err)
	}

	payload, err := json.Marshal(change{SessionID: id, Version: session.Version, Type: ch.Type, PlayerID: ch.PlayerID})
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, notifySQL, changesChannel, string(payload)); err != nil {
		return nil, fmt.Errorf("notify session %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit session %s: %w", id, err)
	}
	return session, nil
}

// DeleteSession removes the row and ends its subscriptions
func (s *Storage) DeleteSession(ctx context.Context, id model.SessionID) error {
	payload, err := json.Marshal(change{SessionID: id})
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, deleteSessionSQL, string(id), changesChannel, string(payload)); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// PurgeExpired deletes rows whose TTL has lapsed and ends their subscriptions
func (s *Storage) PurgeExpired(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, purgeExpiredSQL, changesChannel).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Subscribe registers a feed on the shared LISTEN connection. Each
// notification for this session triggers a re-read of the row through the
// pool.
func (s *Storage) Subscribe(ctx context.Context, id model.SessionID) (storage.Subscription, error) {
	exists, err := s.SessionExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.ErrSessionNotFound
	}
	return s.listener.subscribe(ctx, id)
}
