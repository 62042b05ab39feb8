package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/quizwordz/internal/api/apierr"
	"github.com/mcoot/quizwordz/internal/metrics"
	"github.com/mcoot/quizwordz/internal/model"
	"github.com/mcoot/quizwordz/internal/services/realtime"
	"github.com/mcoot/quizwordz/internal/services/session"
)

type serveFunc func(http.ResponseWriter, *http.Request, *realtime.Client, *model.Session, *slog.Logger)

// StreamHandler serves realtime session subscriptions
type StreamHandler struct {
	controller *session.Controller
	hubs       *realtime.HubManager
	logger     *slog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(controller *session.Controller, hubs *realtime.HubManager, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		controller: controller,
		hubs:       hubs,
		logger:     logger,
	}
}

// Events handles GET /api/v1/sessions/{id}/events (SSE)
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, metrics.TransportSSE, realtime.ServeSSE)
}

// WebSocket handles GET /api/v1/sessions/{id}/ws
func (h *StreamHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, metrics.TransportWebSocket, realtime.ServeWebSocket)
}

// serve subscribes before the point read, so no commit can fall between the
// snapshot the client starts from and the first streamed event
func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, transport string, serve serveFunc) {
	id := sessionID(r)

	client, err := h.hubs.Subscribe(r.Context(), id, transport)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	defer h.hubs.Unsubscribe(client)

	initial, err := h.controller.GetSession(r.Context(), id)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}

	// Streams outlive the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	logger := h.logger.With(
		slog.String("session_id", string(id)),
		slog.String("transport", transport),
	)
	serve(w, r, client, initial, logger)
}
