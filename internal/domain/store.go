package domain

import "context"

// The journal stores are a best-effort audit trail behind the in-memory
// exchange state. Write failures are logged and counted by callers; they
// never roll back or block matching.

// MarketStore persists market records.
type MarketStore interface {
	Upsert(ctx context.Context, m Market) error
}

// OrderStore persists order records and status changes.
type OrderStore interface {
	Insert(ctx context.Context, o Order) error
	UpdateFill(ctx context.Context, o Order) error
}

// TradeStore persists the append-only trade log.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	ListSince(ctx context.Context, marketID string, limit int) ([]Trade, error)
}
