package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/mememarket/exchange/internal/connmgr"
)

// HealthDeps are the collaborators whose liveness the health endpoint
// reports. Cache may be nil when Redis is not configured.
type HealthDeps struct {
	Cache interface {
		Available(ctx context.Context) bool
	}
	Markets interface {
		Count() int
	}
	Conns interface {
		Stats() connmgr.Stats
	}
}

// HealthHandler serves the health check endpoint.
type HealthHandler struct {
	deps      HealthDeps
	startedAt time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{deps: deps, startedAt: time.Now().UTC()}
}

// HealthCheck reports service liveness and collaborator status. The endpoint
// always answers 200: a missing cache is degraded operation, not downtime.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	cache := "disabled"
	if h.deps.Cache != nil {
		cache = "unavailable"
		if h.deps.Cache.Available(r.Context()) {
			cache = "ok"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"uptime_seconds":     int(time.Since(h.startedAt).Seconds()),
		"cache":              cache,
		"markets":            h.deps.Markets.Count(),
		"active_connections": h.deps.Conns.Stats().ActiveConnections,
	})
}
