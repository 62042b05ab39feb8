package handler

import (
	"net/http"

	"github.com/mcoot/quizwordz/internal/api/response"
	"github.com/mcoot/quizwordz/internal/services/realtime"
)

// HealthHandler reports liveness
type HealthHandler struct {
	storageType string
	hubs        *realtime.HubManager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(storageType string, hubs *realtime.HubManager) *HealthHandler {
	return &HealthHandler{storageType: storageType, hubs: hubs}
}

// Health handles GET /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, response.HealthResponse{
		Status:  "ok",
		Storage: h.storageType,
		Hubs:    h.hubs.HubCount(),
	})
}
