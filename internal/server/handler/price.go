package handler

import (
	"context"
	"net/http"

	"github.com/mememarket/exchange/internal/domain"
	"github.com/mememarket/exchange/internal/oracle"
)

// PriceFeed defines what the price handler needs from the SOL oracle.
type PriceFeed interface {
	Current(ctx context.Context, forceRefresh bool) oracle.Quote
}

// PriceHandler serves the SOL/USD conversion endpoints.
type PriceHandler struct {
	feed PriceFeed
}

// NewPriceHandler creates a PriceHandler over the given feed.
func NewPriceHandler(feed PriceFeed) *PriceHandler {
	return &PriceHandler{feed: feed}
}

func quotePayload(q oracle.Quote) map[string]any {
	return map[string]any{
		"sol_price_usd":       q.PriceUSD,
		"one_dollar_lamports": q.OneDollarLamports,
		"lamports_per_sol":    domain.LamportsPerSOL,
		"source":              q.Source,
		"timestamp":           q.Timestamp,
		"is_stale":            q.Stale,
	}
}

// GetSolPrice returns the current SOL/USD quote, cached up to its TTL.
// GET /sol-price
func (h *PriceHandler) GetSolPrice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, quotePayload(h.feed.Current(r.Context(), false)))
}

// RefreshSolPrice forces a refetch from the upstream price sources.
// POST /sol-price/refresh
func (h *PriceHandler) RefreshSolPrice(w http.ResponseWriter, r *http.Request) {
	payload := quotePayload(h.feed.Current(r.Context(), true))
	payload["message"] = "Price refreshed successfully"
	writeJSON(w, http.StatusOK, payload)
}
