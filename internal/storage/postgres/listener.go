package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/storage"
)

// Time allowed for re-reading a session after a notification
const rereadTimeout = 5 * time.Second

// listener owns the one LISTEN connection of a Storage and demultiplexes
// notifications to per-session feeds. The connection is dialed outside the
// pool, so watching sessions never takes connections away from commits.
type listener struct {
	connConfig *pgx.ConnConfig
	reread     func(ctx context.Context, id model.SessionID) (*model.Session, error)

	// startMu serializes dialing
	startMu sync.Mutex

	mu     sync.Mutex
	feeds  map[model.SessionID]map[*storage.Feed]struct{}
	conn   *pgx.Conn
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func newListener(connConfig *pgx.ConnConfig, reread func(context.Context, model.SessionID) (*model.Session, error)) *listener {
	return &listener{
		connConfig: connConfig,
		reread:     reread,
		feeds:      make(map[model.SessionID]map[*storage.Feed]struct{}),
	}
}

// subscribe registers a feed for id, dialing the LISTEN connection first if
// it is not running. Any commit after subscribe returns is delivered.
func (l *listener) subscribe(ctx context.Context, id model.SessionID) (*storage.Feed, error) {
	if err := l.ensureListening(ctx); err != nil {
		return nil, err
	}

	var feed *storage.Feed
	feed = storage.NewFeed(func() { l.remove(id, feed) })

	l.mu.Lock()
	if l.conn == nil {
		// The connection died between dialing and registering
		l.mu.Unlock()
		return nil, fmt.Errorf("listen session %s: %w", id, model.ErrSubscriptionClosed)
	}
	if l.feeds[id] == nil {
		l.feeds[id] = make(map[*storage.Feed]struct{})
	}
	l.feeds[id][feed] = struct{}{}
	l.mu.Unlock()

	context.AfterFunc(ctx, func() { _ = feed.Close() })
	return feed, nil
}

func (l *listener) ensureListening(ctx context.Context) error {
	l.startMu.Lock()
	defer l.startMu.Unlock()

	l.mu.Lock()
	running, closed := l.conn != nil, l.closed
	l.mu.Unlock()
	if closed {
		return model.ErrSubscriptionClosed
	}
	if running {
		return nil
	}

	conn, err := pgx.ConnectConfig(ctx, l.connConfig)
	if err != nil {
		return fmt.Errorf("dial listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+changesChannel); err != nil {
		_ = conn.Close(context.Background())
		return fmt.Errorf("listen: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		cancel()
		_ = conn.Close(context.Background())
		return model.ErrSubscriptionClosed
	}
	l.conn, l.cancel, l.done = conn, cancel, done
	l.mu.Unlock()

	go l.run(listenCtx, conn, done)
	return nil
}

func (l *listener) run(ctx context.Context, conn *pgx.Conn, done chan struct{}) {
	defer close(done)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			var feedErr error
			if ctx.Err() == nil {
				feedErr = fmt.Errorf("change feed: %v: %w", err, model.ErrSubscriptionClosed)
			}
			l.stop(conn, feedErr)
			return
		}

		var c change
		if err := json.Unmarshal([]byte(n.Payload), &c); err != nil || c.SessionID == "" {
			continue
		}
		l.dispatch(ctx, c)
	}
}

// dispatch re-reads the announced session and publishes the snapshot only if
// it is the announced version; a later notification carries any newer one.
// A session that can no longer be read ends its feeds.
func (l *listener) dispatch(ctx context.Context, c change) {
	l.mu.Lock()
	watched := len(l.feeds[c.SessionID]) > 0
	l.mu.Unlock()
	if !watched {
		return
	}

	readCtx, cancel := context.WithTimeout(ctx, rereadTimeout)
	session, err := l.reread(readCtx, c.SessionID)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, model.ErrSessionNotFound) {
			err = fmt.Errorf("session %s deleted: %w", c.SessionID, model.ErrSubscriptionClosed)
		} else {
			err = fmt.Errorf("session %s re-read: %v: %w", c.SessionID, err, model.ErrSubscriptionClosed)
		}
		l.closeSession(c.SessionID, err)
		return
	}
	if session.Version != c.Version {
		return
	}

	ev := model.NewSnapshotEvent(c.Type, c.PlayerID, session)
	l.mu.Lock()
	defer l.mu.Unlock()
	for feed := range l.feeds[c.SessionID] {
		// Each subscriber gets its own copy of the snapshot
		out := ev
		out.Session = session.Clone()
		feed.Publish(out)
	}
}

func (l *listener) remove(id model.SessionID, feed *storage.Feed) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.feeds[id], feed)
	if len(l.feeds[id]) == 0 {
		delete(l.feeds, id)
	}
}

func (l *listener) closeSession(id model.SessionID, err error) {
	l.mu.Lock()
	feeds := make([]*storage.Feed, 0, len(l.feeds[id]))
	for feed := range l.feeds[id] {
		feeds = append(feeds, feed)
	}
	l.mu.Unlock()

	for _, feed := range feeds {
		feed.CloseWithError(err)
	}
}

// stop forgets conn and ends every feed with err. The next subscribe dials
// a new connection.
func (l *listener) stop(conn *pgx.Conn, err error) {
	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
		l.cancel = nil
	}
	var feeds []*storage.Feed
	for id, set := range l.feeds {
		for feed := range set {
			feeds = append(feeds, feed)
		}
		delete(l.feeds, id)
	}
	l.mu.Unlock()

	for _, feed := range feeds {
		feed.CloseWithError(err)
	}
}

// watching returns the number of open feeds
func (l *listener) watching() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, set := range l.feeds {
		n += len(set)
	}
	return n
}

// close stops the connection and ends every feed
func (l *listener) close() {
	l.mu.Lock()
	l.closed = true
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
