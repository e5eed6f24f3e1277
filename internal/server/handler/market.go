package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mememarket/exchange/internal/domain"
	"github.com/mememarket/exchange/internal/market"
)

// MarketRegistry defines what the market handler needs from the registry.
type MarketRegistry interface {
	Create(ctx context.Context, p market.CreateParams) (domain.Market, error)
	Bootstrap(ctx context.Context, seeds []market.Seed) []domain.Market
	Get(id string) (domain.Market, error)
	List() []domain.Market
	Count() int
}

// MarketCache is the optional fallback read path for market records, serving
// cached state from before the last restart.
type MarketCache interface {
	GetMarket(ctx context.Context, id string) (domain.Market, error)
}

// MarketHandler serves market CRUD and initialization endpoints.
type MarketHandler struct {
	registry MarketRegistry
	cache    MarketCache // may be nil
	seeds    []market.Seed
	logger   *slog.Logger
}

// NewMarketHandler creates a MarketHandler. cache may be nil; seeds back the
// initialize endpoint.
func NewMarketHandler(registry MarketRegistry, cache MarketCache, seeds []market.Seed, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		registry: registry,
		cache:    cache,
		seeds:    seeds,
		logger:   logger,
	}
}

// ListMarkets returns all markets, newest first.
// GET /markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.registry.List()
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

// GetMarket returns one market by id.
// GET /markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	m, err := h.registry.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The registry is authoritative but empty after a restart;
			// a cached record is better than a 404.
			if h.cache != nil {
				if cached, cacheErr := h.cache.GetMarket(r.Context(), id); cacheErr == nil {
					writeJSON(w, http.StatusOK, cached)
					return
				}
			}
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// createMarketRequest is the JSON body for market creation.
type createMarketRequest struct {
	TokenSymbol     string  `json:"token_symbol"`
	TokenAddress    string  `json:"token_address"`
	TargetMarketCap float64 `json:"target_market_cap"`
	Question        string  `json:"question"`
	ExpiryHours     int     `json:"expiry_hours"`
}

// CreateMarket registers a new market.
// POST /markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TokenSymbol == "" {
		writeError(w, http.StatusBadRequest, "token_symbol is required")
		return
	}
	if req.TargetMarketCap <= 0 {
		writeError(w, http.StatusBadRequest, "target_market_cap must be positive")
		return
	}

	m, err := h.registry.Create(r.Context(), market.CreateParams{
		TokenSymbol:     req.TokenSymbol,
		TokenAddress:    req.TokenAddress,
		TargetMarketCap: req.TargetMarketCap,
		Question:        req.Question,
		Expiry:          time.Duration(req.ExpiryHours) * time.Hour,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create market")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// InitializeMarkets bootstraps the configured seed markets.
// POST /markets/initialize
func (h *MarketHandler) InitializeMarkets(w http.ResponseWriter, r *http.Request) {
	created := h.registry.Bootstrap(r.Context(), h.seeds)
	writeJSON(w, http.StatusOK, map[string]any{
		"markets_created": len(created),
		"total_markets":   h.registry.Count(),
	})
}
