// Package api serves the read-only HTTP surface of the worker: health,
// per-user progress and push history, and Prometheus metrics.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/willtech3/powertoken/internal/clock"
	"github.com/willtech3/powertoken/internal/store"
)

// HealthReporter is the aggregate health the /api/health endpoint reports.
type HealthReporter interface {
	IsHealthy() bool
	Components() map[string]bool
}

// NewRouter wires every route.
func NewRouter(s store.Store, c clock.Clock, h HealthReporter) *mux.Router {
	router := mux.NewRouter()
	router.Use(instrument)

	healthHandler := NewHealthHandler(h, c)
	userHandler := NewUserHandler(s, c)

	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/users/{username}/progress", userHandler.GetProgress).Methods(http.MethodGet)
	router.HandleFunc("/api/users/{username}/logs", userHandler.ListLogs).Methods(http.MethodGet)
	router.HandleFunc("/api/users/{username}/sync-errors", userHandler.ListSyncErrors).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}
