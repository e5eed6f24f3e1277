package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mememarket/exchange/internal/domain"
)

var _ domain.OrderStore = (*OrderStore)(nil)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Insert writes a newly placed order. The upsert guard makes replayed events
// harmless.
func (s *OrderStore) Insert(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, market_id, owner, outcome, price_ticks,
			quantity, filled_quantity, remaining_quantity,
			lamports_deposited, status, is_sell, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12
		)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.MarketID, o.Owner, string(o.Outcome), o.PriceTicks,
		o.Quantity, o.FilledQuantity, o.RemainingQuantity,
		o.LamportsDeposited, string(o.Status), o.IsSell, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateFill records a fill or cancellation. Events can arrive before the
// insert landed, so this also upserts the full row.
func (s *OrderStore) UpdateFill(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, market_id, owner, outcome, price_ticks,
			quantity, filled_quantity, remaining_quantity,
			lamports_deposited, status, is_sell, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12
		)
		ON CONFLICT (id) DO UPDATE SET
			filled_quantity    = EXCLUDED.filled_quantity,
			remaining_quantity = EXCLUDED.remaining_quantity,
			status             = EXCLUDED.status`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.MarketID, o.Owner, string(o.Outcome), o.PriceTicks,
		o.Quantity, o.FilledQuantity, o.RemainingQuantity,
		o.LamportsDeposited, string(o.Status), o.IsSell, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	return nil
}
