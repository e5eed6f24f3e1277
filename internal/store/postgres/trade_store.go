package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mememarket/exchange/internal/domain"
)

var _ domain.TradeStore = (*TradeStore)(nil)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// InsertBatch inserts trades using a pgx Batch. Replayed trades are skipped
// via ON CONFLICT DO NOTHING.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	const query = `
		INSERT INTO trades (
			id, market_id, yes_order_id, no_order_id,
			yes_owner, no_owner, yes_price_ticks, no_price_ticks,
			quantity, timestamp
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10
		) ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query,
			t.ID, t.MarketID, t.YesOrderID, t.NoOrderID,
			t.YesOwner, t.NoOwner, t.YesPriceTicks, t.NoPriceTicks,
			t.Quantity, t.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListSince returns the most recent trades for a market, newest first.
func (s *TradeStore) ListSince(ctx context.Context, marketID string, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, market_id, yes_order_id, no_order_id,
			yes_owner, no_owner, yes_price_ticks, no_price_ticks,
			quantity, timestamp
		FROM trades
		WHERE market_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades %s: %w", marketID, err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(
			&t.ID, &t.MarketID, &t.YesOrderID, &t.NoOrderID,
			&t.YesOwner, &t.NoOwner, &t.YesPriceTicks, &t.NoPriceTicks,
			&t.Quantity, &t.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades %s: %w", marketID, err)
	}
	return trades, nil
}
