// Package oracle supplies the SOL/USD conversion rate from public price
// APIs. The feed degrades instead of failing: sources are tried in order,
// then the stale cache, then a hardcoded fallback, so callers always get a
// usable rate.
package oracle

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mememarket/exchange/internal/domain"
	"github.com/mememarket/exchange/internal/market"
)

var _ market.ConversionSource = (*SolPriceFeed)(nil)

const (
	// fallbackPriceUSD backs the feed when every source fails and no cached
	// quote exists.
	fallbackPriceUSD = 130.0

	defaultCacheTTL    = 30 * time.Second
	defaultHTTPTimeout = 5 * time.Second
)

// Quote is one resolved SOL/USD observation.
type Quote struct {
	PriceUSD          float64   `json:"price_usd"`
	OneDollarLamports int64     `json:"one_dollar_lamports"`
	Source            string    `json:"source"`
	Timestamp         time.Time `json:"timestamp"`
	Stale             bool      `json:"is_stale"`
}

// Config overrides the feed's endpoints and timings. Zero values take the
// production defaults; tests point the URLs at httptest servers.
type Config struct {
	JupiterURL   string
	CoinGeckoURL string
	BinanceURL   string
	CacheTTL     time.Duration
	HTTPTimeout  time.Duration
}

// SolPriceFeed caches SOL/USD quotes behind a mutex and refreshes them from
// Jupiter, CoinGecko, and Binance in failover order.
type SolPriceFeed struct {
	sources  []source
	cacheTTL time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	cached   *Quote
	cachedAt time.Time
}

// NewSolPriceFeed builds a feed with the given overrides.
func NewSolPriceFeed(cfg Config, logger *slog.Logger) *SolPriceFeed {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := &http.Client{Timeout: timeout}

	return &SolPriceFeed{
		sources:  buildSources(cfg, client),
		cacheTTL: cfg.CacheTTL,
		logger:   logger.With(slog.String("component", "sol_price_feed")),
	}
}

// oneDollarLamports converts a SOL/USD price into the lamport value of one
// dollar. At $130/SOL that is 1e9/130 = 7,692,307 lamports.
func oneDollarLamports(priceUSD float64) int64 {
	if priceUSD <= 0 {
		priceUSD = fallbackPriceUSD
	}
	return int64(float64(domain.LamportsPerSOL) / priceUSD)
}

// Current returns the freshest quote available, consulting the cache first
// unless forceRefresh is set. It never returns an error: when every source
// fails it serves the stale cache, and with no cache at all it serves the
// fallback price.
func (f *SolPriceFeed) Current(ctx context.Context, forceRefresh bool) Quote {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now().UTC()
	if !forceRefresh && f.cached != nil && now.Sub(f.cachedAt) < f.cacheTTL {
		return *f.cached
	}

	for _, s := range f.sources {
		price, err := s.fetch(ctx)
		if err != nil {
			f.logger.WarnContext(ctx, "price source failed",
				slog.String("source", s.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if price <= 0 {
			continue
		}

		q := Quote{
			PriceUSD:          price,
			OneDollarLamports: oneDollarLamports(price),
			Source:            s.name,
			Timestamp:         now,
		}
		f.cached = &q
		f.cachedAt = now

		f.logger.InfoContext(ctx, "sol price updated",
			slog.String("source", s.name),
			slog.Float64("price_usd", price),
			slog.Int64("one_dollar_lamports", q.OneDollarLamports),
		)
		return q
	}

	if f.cached != nil {
		f.logger.WarnContext(ctx, "all price sources failed, serving stale quote")
		stale := *f.cached
		stale.Stale = true
		f.cached = &stale
		return stale
	}

	f.logger.ErrorContext(ctx, "all price sources failed with empty cache, serving fallback")
	return Quote{
		PriceUSD:          fallbackPriceUSD,
		OneDollarLamports: oneDollarLamports(fallbackPriceUSD),
		Source:            "fallback",
		Timestamp:         now,
		Stale:             true,
	}
}

// OneDollarLamports satisfies market.ConversionSource. The feed's
// degradation chain means the error is always nil.
func (f *SolPriceFeed) OneDollarLamports(ctx context.Context) (int64, error) {
	return f.Current(ctx, false).OneDollarLamports, nil
}

// RunRefresh force-refreshes the quote on the given interval until ctx is
// cancelled.
func (f *SolPriceFeed) RunRefresh(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultCacheTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.Current(ctx, true)
		}
	}
}
