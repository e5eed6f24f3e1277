package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mememarket/exchange/internal/domain"
)

var _ domain.MarketStore = (*MarketStore)(nil)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert writes the market record, replacing the mutable aggregate columns
// on conflict.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, token_symbol, token_address, question,
			target_market_cap, current_market_cap, expiry_time,
			yes_price_ticks, no_price_ticks,
			volume_lamports, volume_usd,
			yes_shares_supply, no_shares_supply,
			one_dollar_lamports, status, winning_outcome,
			created_at, last_updated
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9,
			$10, $11,
			$12, $13,
			$14, $15, $16,
			$17, $18
		)
		ON CONFLICT (id) DO UPDATE SET
			current_market_cap = EXCLUDED.current_market_cap,
			yes_price_ticks    = EXCLUDED.yes_price_ticks,
			no_price_ticks     = EXCLUDED.no_price_ticks,
			volume_lamports    = EXCLUDED.volume_lamports,
			volume_usd         = EXCLUDED.volume_usd,
			yes_shares_supply  = EXCLUDED.yes_shares_supply,
			no_shares_supply   = EXCLUDED.no_shares_supply,
			status             = EXCLUDED.status,
			winning_outcome    = EXCLUDED.winning_outcome,
			last_updated       = EXCLUDED.last_updated`

	var winning *string
	if m.WinningOutcome != nil {
		w := string(*m.WinningOutcome)
		winning = &w
	}

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.TokenSymbol, m.TokenAddress, m.Question,
		m.TargetMarketCap, m.CurrentMarketCap, m.ExpiryTime,
		m.YesPriceTicks, m.NoPriceTicks,
		m.VolumeLamports, m.VolumeUSD,
		m.YesSharesSupply, m.NoSharesSupply,
		m.OneDollarLamports, string(m.Status), winning,
		m.CreatedAt, m.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}
