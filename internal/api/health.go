package api

import (
	"net/http"
	"time"

	"github.com/willtech3/powertoken/internal/api/respond"
	"github.com/willtech3/powertoken/internal/clock"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	health HealthReporter
	clock  clock.Clock
}

func NewHealthHandler(h HealthReporter, c clock.Clock) *HealthHandler {
	return &HealthHandler{health: h, clock: c}
}

// CheckHealth handles GET /api/health
// Always returns 200; body reports healthy/unhealthy. 500 indicates handler failure only.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	if h.health.IsHealthy() {
		status = "healthy"
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"components": h.health.Components(),
		"timestamp":  h.clock.Now().Format(time.RFC3339),
	})
}
