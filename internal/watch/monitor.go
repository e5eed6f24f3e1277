package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/mememarket/exchange/internal/domain"
)

const defaultPollInterval = 30 * time.Second

// MarketCaps is what the monitor needs from the registry: the markets to
// watch and the write path for fresh caps.
type MarketCaps interface {
	List() []domain.Market
	SetCurrentCap(marketID string, cap float64) error
}

// Quoter fetches one token's market data. *ScreenerClient satisfies it.
type Quoter interface {
	TokenQuote(ctx context.Context, tokenAddress string) (TokenQuote, error)
}

// Monitor drives the poll loop over all active markets with token addresses.
type Monitor struct {
	quoter   Quoter
	registry MarketCaps
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a Monitor polling every interval.
func NewMonitor(quoter Quoter, registry MarketCaps, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Monitor{
		quoter:   quoter,
		registry: registry,
		interval: interval,
		logger:   logger.With(slog.String("component", "cap_monitor")),
	}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// poll refreshes the cap of every watchable market. Individual failures are
// logged and skipped; a missing token listing is not an outage.
func (m *Monitor) poll(ctx context.Context) {
	for _, mkt := range m.registry.List() {
		if mkt.Status != domain.MarketStatusActive || mkt.TokenAddress == "" {
			continue
		}

		quote, err := m.quoter.TokenQuote(ctx, mkt.TokenAddress)
		if err != nil {
			m.logger.WarnContext(ctx, "token quote failed",
				slog.String("token", mkt.TokenSymbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		if quote.MarketCap <= 0 {
			continue
		}

		if err := m.registry.SetCurrentCap(mkt.ID, quote.MarketCap); err != nil {
			m.logger.WarnContext(ctx, "set market cap failed",
				slog.String("market_id", mkt.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		m.logger.DebugContext(ctx, "market cap updated",
			slog.String("token", mkt.TokenSymbol),
			slog.Float64("market_cap", quote.MarketCap),
		)
	}
}
