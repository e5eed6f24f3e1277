// Package market owns the registry of market records and their price/volume
// aggregates. The only writers of the aggregates are the matching engine
// (through ApplyTrade) and the creation and watcher paths.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mememarket/exchange/internal/domain"
)

// defaultExpiry is how long a newly created market stays open.
const defaultExpiry = 24 * time.Hour

// ConversionSource supplies the lamports-per-dollar rate captured as a
// snapshot at market creation. Implementations must not fail hard: the price
// oracle always returns a usable rate, stale or fallback if necessary.
type ConversionSource interface {
	OneDollarLamports(ctx context.Context) (int64, error)
}

// CreateParams are the caller-supplied fields of a new market.
type CreateParams struct {
	TokenSymbol     string
	TokenAddress    string
	TargetMarketCap float64
	Question        string
	Expiry          time.Duration
}

// Seed describes one bootstrap market from configuration.
type Seed struct {
	TokenSymbol     string
	TokenAddress    string
	TargetMarketCap float64
}

// Registry holds all market records behind a single RWMutex. Market records
// are returned by value; mutation goes through Registry methods only.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*domain.Market
	rates   ConversionSource
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry using rates for creation snapshots.
func NewRegistry(rates ConversionSource, logger *slog.Logger) *Registry {
	return &Registry{
		markets: make(map[string]*domain.Market),
		rates:   rates,
		logger:  logger.With(slog.String("component", "market_registry")),
	}
}

// Create registers a new active market with 50/50 initial pricing and a
// conversion-rate snapshot fetched from the price feed.
func (r *Registry) Create(ctx context.Context, p CreateParams) (domain.Market, error) {
	if p.TokenSymbol == "" {
		return domain.Market{}, fmt.Errorf("market: create: token symbol required")
	}

	oneDollar, err := r.rates.OneDollarLamports(ctx)
	if err != nil {
		// The oracle degrades to stale/fallback data instead of failing, so
		// an error here means a programming bug rather than an outage.
		return domain.Market{}, fmt.Errorf("market: create: conversion rate: %w", err)
	}

	question := p.Question
	if question == "" {
		question = fmt.Sprintf("Will %s reach $%.0f market cap?", p.TokenSymbol, p.TargetMarketCap)
	}
	expiry := p.Expiry
	if expiry <= 0 {
		expiry = defaultExpiry
	}

	now := time.Now().UTC()
	m := &domain.Market{
		ID:                uuid.NewString(),
		TokenSymbol:       p.TokenSymbol,
		TokenAddress:      p.TokenAddress,
		Question:          question,
		TargetMarketCap:   p.TargetMarketCap,
		CurrentMarketCap:  p.TargetMarketCap * 0.5,
		ExpiryTime:        now.Add(expiry),
		YesPriceTicks:     domain.PricePrecision / 2,
		NoPriceTicks:      domain.PricePrecision / 2,
		OneDollarLamports: oneDollar,
		Status:            domain.MarketStatusActive,
		CreatedAt:         now,
		LastUpdated:       now,
	}

	r.mu.Lock()
	r.markets[m.ID] = m
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "market created",
		slog.String("market_id", m.ID),
		slog.String("token", m.TokenSymbol),
		slog.Int64("one_dollar_lamports", oneDollar),
	)

	return *m, nil
}

// Bootstrap creates one market per seed. It is the initialization routine
// run at startup and behind POST /markets/initialize; seeds whose symbol
// already has a market are skipped, so repeated calls are harmless.
// Failures on individual seeds are logged and skipped.
func (r *Registry) Bootstrap(ctx context.Context, seeds []Seed) []domain.Market {
	created := make([]domain.Market, 0, len(seeds))
	for _, s := range seeds {
		if r.hasSymbol(s.TokenSymbol) {
			continue
		}
		m, err := r.Create(ctx, CreateParams{
			TokenSymbol:     s.TokenSymbol,
			TokenAddress:    s.TokenAddress,
			TargetMarketCap: s.TargetMarketCap,
		})
		if err != nil {
			r.logger.WarnContext(ctx, "bootstrap market failed",
				slog.String("token", s.TokenSymbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		created = append(created, m)
	}
	return created
}

// hasSymbol reports whether any market exists for the given token symbol.
func (r *Registry) hasSymbol(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.markets {
		if m.TokenSymbol == symbol {
			return true
		}
	}
	return false
}

// Get returns the market with the given id.
func (r *Registry) Get(id string) (domain.Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return *m, nil
}

// List returns all markets ordered by creation time, newest first.
func (r *Registry) List() []domain.Market {
	r.mu.RLock()
	out := make([]domain.Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, *m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of registered markets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}

// ApplyTrade folds one executed match into the market's aggregates: equal
// YES and NO share mint, last-traded prices, and volume in both lamports and
// dollars (each matched share pair is worth exactly one dollar).
func (r *Registry) ApplyTrade(marketID string, qty, yesTicks, noTicks int64, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}

	m.YesSharesSupply += qty
	m.NoSharesSupply += qty
	m.YesPriceTicks = yesTicks
	m.NoPriceTicks = noTicks
	m.VolumeLamports += qty * m.OneDollarLamports
	m.VolumeUSD += float64(qty)
	m.LastUpdated = ts
	return nil
}

// SetCurrentCap updates the token's live market cap from the watcher.
func (r *Registry) SetCurrentCap(marketID string, cap float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	m.CurrentMarketCap = cap
	m.LastUpdated = time.Now().UTC()
	return nil
}
