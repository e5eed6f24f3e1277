package handler

import (
	"net/http"

	"github.com/mememarket/exchange/internal/connmgr"
)

// StatsHandler exposes the fan-out manager's counters.
type StatsHandler struct {
	conns interface {
		Stats() connmgr.Stats
	}
}

// NewStatsHandler creates a StatsHandler over the connection manager.
func NewStatsHandler(conns interface{ Stats() connmgr.Stats }) *StatsHandler {
	return &StatsHandler{conns: conns}
}

// GetStats returns connection, subscription, and delivery counters.
// GET /ws/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.conns.Stats())
}
