package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/quizwordz/internal/api/handler"
	"github.com/mcoot/quizwordz/internal/api/middleware"
	"github.com/mcoot/quizwordz/internal/metrics"
	"github.com/mcoot/quizwordz/internal/services/realtime"
	"github.com/mcoot/quizwordz/internal/services/session"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	Controller  *session.Controller
	HubManager  *realtime.HubManager
	Metrics     *metrics.Metrics
	StorageType string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	sessionHandler := handler.NewSessionHandler(cfg.Controller)
	streamHandler := handler.NewStreamHandler(cfg.Controller, cfg.HubManager, cfg.Logger)
	healthHandler := handler.NewHealthHandler(cfg.StorageType, cfg.HubManager)

	// Recovery sits innermost so panics are still logged and counted
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Metrics(cfg.Metrics))
	r.Use(middleware.Recovery(cfg.Logger))

	r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	// Session routes
	sessions := api.PathPrefix("/sessions").Subrouter()
	sessions.HandleFunc("", sessionHandler.Create).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}", sessionHandler.Get).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}/joinable", sessionHandler.Joinable).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}/players", sessionHandler.Join).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}/start", sessionHandler.Start).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}/guesses", sessionHandler.Guess).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}/end", sessionHandler.End).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}/leaderboard", sessionHandler.Leaderboard).Methods(http.MethodGet)

	// Realtime subscriptions
	sessions.HandleFunc("/{id}/events", streamHandler.Events).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}/ws", streamHandler.WebSocket).Methods(http.MethodGet)

	return r
}
