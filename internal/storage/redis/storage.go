package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
//
// Sessions are JSON documents. Commits use WATCH plus MULTI/EXEC, and the
// PUBLISH of the new snapshot is queued in the same transaction, so a
// snapshot is published if and only if it was written.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) CreateSession(ctx context.Context, session *model.Session) error {
	stored := session.Clone()
	stored.Version = 1
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, sessionKey(session.ID), data, s.cfg.SessionTTL).Result()
	if err != nil {
		return fmt.Errorf("create session %s: %w", session.ID, err)
	}
	if !ok {
		return model.ErrSessionExists
	}
	session.Version = stored.Version
	return nil
}

func (s *Storage) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	return s.getSession(ctx, s.client, id)
}

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Storage) getSession(ctx context.Context, c getter, id model.SessionID) (*model.Session, error) {
	data, err := c.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &session, nil
}

func (s *Storage) SessionExists(ctx context.Context, id model.SessionID) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Storage) UpdateSession(ctx context.Context, id model.SessionID, fn model.Mutation) (*model.Session, error) {
	key := sessionKey(id)
	attempts := max(s.cfg.MaxRetries, 1)

	for attempt := 0; attempt < attempts; attempt++ {
		var committed *model.Session

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			session, err := s.getSession(ctx, tx, id)
			if err != nil {
				return err
			}

			change, err := fn(session)
			if err != nil {
				return err
			}
			session.Version++

			data, err := json.Marshal(session)
			if err != nil {
				return err
			}
			event, err := json.Marshal(model.NewSnapshotEvent(change.Type, change.PlayerID, session))
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, s.cfg.SessionTTL)
				pipe.Publish(ctx, changesChannel(id), event)
				return nil
			})
			if err != nil {
				return err
			}
			committed = session
			return nil
		}, key)

		if err == nil {
			return committed, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}

		if s.cfg.OnConflict != nil {
			s.cfg.OnConflict()
		}
		if err := sleepCtx(ctx, s.cfg.RetryBackoff*time.Duration(attempt+1)); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("update session %s after %d attempts: %w", id, attempts, model.ErrConflict)
}

// DeleteSession removes the session and ends its subscriptions
func (s *Storage) DeleteSession(ctx context.Context, id model.SessionID) error {
	event, err := json.Marshal(model.Event{Type: model.EventSessionDeleted, SessionID: id})
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.Publish(ctx, changesChannel(id), event)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// Subscribe listens on the session's PubSub channel. The feed ends when the
// session is deleted or found expired.
func (s *Storage) Subscribe(ctx context.Context, id model.SessionID) (storage.Subscription, error) {
	exists, err := s.SessionExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.ErrSessionNotFound
	}

	pubsub := s.client.Subscribe(ctx, changesChannel(id))
	// Wait for the subscription to be confirmed so no commit after this
	// call returns can be missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe session %s: %w", id, err)
	}

	feed := storage.NewFeed(func() { _ = pubsub.Close() })
	context.AfterFunc(ctx, func() { _ = feed.Close() })

	go s.pump(id, pubsub, feed)

	return feed, nil
}

func (s *Storage) pump(id model.SessionID, pubsub *redis.PubSub, feed *storage.Feed) {
	var expiry <-chan time.Time
	if s.cfg.ExpiryCheckInterval > 0 {
		ticker := time.NewTicker(s.cfg.ExpiryCheckInterval)
		defer ticker.Stop()
		expiry = ticker.C
	}

	messages := pubsub.Channel()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				feed.CloseWithError(fmt.Errorf("session %s change feed: %w", id, model.ErrSubscriptionClosed))
				return
			}
			var ev model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			if ev.Type == model.EventSessionDeleted {
				feed.CloseWithError(fmt.Errorf("session %s deleted: %w", id, model.ErrSubscriptionClosed))
				return
			}
			if !feed.Publish(ev) {
				return
			}

		case <-expiry:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			exists, err := s.SessionExists(ctx, id)
			cancel()
			if err == nil && !exists {
				feed.CloseWithError(fmt.Errorf("session %s expired: %w", id, model.ErrSubscriptionClosed))
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
