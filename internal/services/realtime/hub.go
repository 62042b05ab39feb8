package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/quizwordz/internal/metrics"
	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/storage"
)

// ErrSlowClient is reported to a client that was disconnected because its
// buffer filled up. The client should reconnect and resync from a point read.
var ErrSlowClient = errors.New("client too slow, resync required")

// Buffer size for outgoing snapshots per client
const sendBufferSize = 32

// Client is one local subscriber of a session hub
type Client struct {
	hub         *Hub
	transport   string
	send        chan model.Event
	connectedAt time.Time

	mu  sync.Mutex
	err error
}

// Events yields committed snapshots in version order. It is closed when the
// client is unsubscribed or dropped; Err says which.
func (c *Client) Events() <-chan model.Event {
	return c.send
}

// Err returns why the client was dropped, or nil
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SessionID returns the session the client is subscribed to
func (c *Client) SessionID() model.SessionID {
	return c.hub.sessionID
}

func (c *Client) closeWith(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.send)
}

// Hub fans one upstream store subscription out to the local clients of a
// single session
type Hub struct {
	sessionID model.SessionID
	upstream  storage.Subscription
	manager   *HubManager
	logger    *slog.Logger
	// cancel ends the context the upstream was opened with
	cancel context.CancelFunc

	mu          sync.Mutex
	clients     map[*Client]bool
	lastVersion int64
	closed      bool

	done chan struct{}
}

func newHub(sessionID model.SessionID, upstream storage.Subscription, manager *HubManager) *Hub {
	return &Hub{
		sessionID: sessionID,
		upstream:  upstream,
		manager:   manager,
		logger:    manager.logger.With(slog.String("session_id", string(sessionID))),
		clients:   make(map[*Client]bool),
		done:      make(chan struct{}),
	}
}

// run forwards upstream snapshots until the upstream ends or the hub is closed
func (h *Hub) run() {
	h.logger.Info("hub started")
	for {
		select {
		case ev, ok := <-h.upstream.Events():
			if !ok {
				err := h.upstream.Err()
				if err == nil {
					err = model.ErrSubscriptionClosed
				}
				h.logger.Warn("hub upstream closed", slog.String("error", err.Error()))
				h.manager.detach(h)
				h.shutdown(err)
				return
			}
			h.forward(ev)

		case <-h.done:
			return
		}
	}
}

// forward delivers ev to every client, dropping clients whose buffer is full.
// Versions at or below the last forwarded one are ignored.
func (h *Hub) forward(ev model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ev.Version <= h.lastVersion {
		return
	}
	h.lastVersion = ev.Version

	sentCount := 0
	for client := range h.clients {
		// Each client gets its own copy of the snapshot
		out := ev
		out.Session = ev.Session.Clone()
		select {
		case client.send <- out:
			sentCount++
		default:
			delete(h.clients, client)
			client.closeWith(ErrSlowClient)
			h.manager.clientGone(client)
			h.logger.Warn("client dropped - buffer full",
				slog.String("transport", client.transport),
				slog.Int64("version", ev.Version))
		}
	}
	h.logger.Debug("snapshot forwarded",
		slog.Int64("version", ev.Version),
		slog.String("event", string(ev.Type)),
		slog.Int("clients", sentCount))
}

// add returns false if the hub has already shut down
func (h *Hub) add(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = true
	h.logger.Info("client registered",
		slog.String("transport", client.transport),
		slog.Int("total_clients", len(h.clients)))
	return true
}

// remove returns the number of clients left
func (h *Hub) remove(client *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closeWith(nil)
		h.manager.clientGone(client)
		h.logger.Info("client unregistered",
			slog.String("transport", client.transport),
			slog.Duration("connection_duration", h.manager.clock.Now().Sub(client.connectedAt)),
			slog.Int("total_clients", len(h.clients)))
	}
	return len(h.clients)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// shutdown stops the hub and disconnects every client with err
func (h *Hub) shutdown(err error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clientCount := len(h.clients)
	for client := range h.clients {
		delete(h.clients, client)
		client.closeWith(err)
		h.manager.clientGone(client)
	}
	h.mu.Unlock()

	close(h.done)
	_ = h.upstream.Close()
	if h.cancel != nil {
		h.cancel()
	}
	h.logger.Info("hub stopped", slog.Int("disconnected_clients", clientCount))
}

// Clock is the subset of the clock dependency the hubs need
type Clock interface {
	Now() time.Time
}

// DefaultOpenTimeout bounds how long opening an upstream subscription may take
const DefaultOpenTimeout = 10 * time.Second

// HubManager keeps one Hub per session with at least one local client.
// Upstream subscriptions are opened without holding the manager lock, so a
// slow store only delays the session being opened.
type HubManager struct {
	storage     storage.Storage
	metrics     *metrics.Metrics
	clock       Clock
	logger      *slog.Logger
	openTimeout time.Duration

	mu      sync.Mutex
	hubs    map[model.SessionID]*Hub
	opening map[model.SessionID]*hubOpen
	closed  bool
}

// hubOpen is an upstream subscription being opened. done is closed once hub
// or err is set.
type hubOpen struct {
	done chan struct{}
	hub  *Hub
	err  error
	// abandoned is set when the opener's own request ended first; waiters
	// retry instead of inheriting its cancellation
	abandoned bool
}

// NewHubManager creates a new HubManager
func NewHubManager(storage storage.Storage, clock Clock, metrics *metrics.Metrics, logger *slog.Logger) *HubManager {
	return &HubManager{
		storage:     storage,
		metrics:     metrics,
		clock:       clock,
		logger:      logger.With(slog.String("component", "realtime")),
		openTimeout: DefaultOpenTimeout,
		hubs:        make(map[model.SessionID]*Hub),
		opening:     make(map[model.SessionID]*hubOpen),
	}
}

// SetOpenTimeout changes the bound on opening an upstream subscription
func (m *HubManager) SetOpenTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openTimeout = d
}

// Subscribe attaches a new client to the session's hub, opening the
// upstream store subscription if this is the first local client.
// Concurrent first subscribers of one session share a single open.
// The caller must Unsubscribe when done.
func (m *HubManager) Subscribe(ctx context.Context, sessionID model.SessionID, transport string) (*Client, error) {
	client := &Client{
		transport:   transport,
		send:        make(chan model.Event, sendBufferSize),
		connectedAt: m.clock.Now(),
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, model.ErrSubscriptionClosed
		}

		if hub, ok := m.hubs[sessionID]; ok {
			client.hub = hub
			if hub.add(client) {
				m.mu.Unlock()
				m.metrics.Subscribers.WithLabelValues(transport).Inc()
				return client, nil
			}
			// Upstream ended but the hub has not detached yet
			delete(m.hubs, sessionID)
		}

		if pending, ok := m.opening[sessionID]; ok {
			m.mu.Unlock()
			select {
			case <-pending.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if pending.err != nil && !pending.abandoned {
				return nil, pending.err
			}
			continue
		}

		pending := &hubOpen{done: make(chan struct{})}
		m.opening[sessionID] = pending
		openTimeout := m.openTimeout
		m.mu.Unlock()

		hub, err := m.open(ctx, sessionID, openTimeout)

		m.mu.Lock()
		delete(m.opening, sessionID)
		if err == nil && m.closed {
			err = model.ErrSubscriptionClosed
		}
		if err != nil {
			pending.err = err
			pending.abandoned = ctx.Err() != nil
			close(pending.done)
			m.mu.Unlock()
			if hub != nil {
				hub.shutdown(err)
			}
			return nil, err
		}

		m.hubs[sessionID] = hub
		client.hub = hub
		hub.add(client)
		pending.hub = hub
		close(pending.done)
		m.mu.Unlock()

		go hub.run()
		m.metrics.Subscribers.WithLabelValues(transport).Inc()
		return client, nil
	}
}

// open subscribes to the store for a new hub. The open is bounded by the
// request context and timeout; once it succeeds the upstream lives until the
// hub shuts down.
func (m *HubManager) open(ctx context.Context, sessionID model.SessionID, timeout time.Duration) (*Hub, error) {
	lifeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	timer := time.AfterFunc(timeout, cancel)
	stopRequest := context.AfterFunc(ctx, cancel)

	upstream, err := m.storage.Subscribe(lifeCtx, sessionID)
	timedOut := !timer.Stop()
	requestEnded := !stopRequest()

	if err == nil && (timedOut || requestEnded) {
		// Cancelled while the store was returning; the upstream is already
		// tied to a dead context
		_ = upstream.Close()
		err = lifeCtx.Err()
	}
	if err != nil {
		cancel()
		switch {
		case requestEnded:
			err = ctx.Err()
		case timedOut:
			m.logger.Warn("upstream subscribe timed out",
				slog.String("session_id", string(sessionID)),
				slog.Duration("timeout", timeout))
			err = context.DeadlineExceeded
		}
		return nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}

	hub := newHub(sessionID, upstream, m)
	hub.cancel = cancel
	return hub, nil
}

// Unsubscribe detaches a client, closing the hub when it was the last one
func (m *HubManager) Unsubscribe(client *Client) {
	m.mu.Lock()
	hub := client.hub
	if hub.remove(client) > 0 {
		m.mu.Unlock()
		return
	}
	if m.hubs[hub.sessionID] == hub {
		delete(m.hubs, hub.sessionID)
	}
	m.mu.Unlock()

	// Closing the upstream may be a network round trip
	hub.shutdown(nil)
}

// detach forgets a hub whose upstream has ended
func (m *HubManager) detach(hub *Hub) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hubs[hub.sessionID] == hub {
		delete(m.hubs, hub.sessionID)
	}
}

func (m *HubManager) clientGone(client *Client) {
	m.metrics.Subscribers.WithLabelValues(client.transport).Dec()
}

// HubCount returns the number of live hubs
func (m *HubManager) HubCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hubs)
}

// GetHub returns the hub for a session, or nil if there is none
func (m *HubManager) GetHub(sessionID model.SessionID) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hubs[sessionID]
}

// Close stops every hub
func (m *HubManager) Close() {
	m.mu.Lock()
	m.closed = true
	hubs := make([]*Hub, 0, len(m.hubs))
	for id, hub := range m.hubs {
		hubs = append(hubs, hub)
		delete(m.hubs, id)
	}
	m.mu.Unlock()

	for _, hub := range hubs {
		hub.shutdown(model.ErrSubscriptionClosed)
	}
}
