package domain

import (
	"context"
	"time"
)

// CacheStore is the best-effort cache contract. Implementations must degrade
// gracefully: when the backing store is unreachable every method returns
// ErrUnavailable and callers treat the result as a cold cache, never as a
// failure of the primary operation.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Available(ctx context.Context) bool
}

// QuoteCache caches the latest per-market state for read paths and
// observability. All methods are best-effort.
type QuoteCache interface {
	SetMarket(ctx context.Context, m Market) error
	GetMarket(ctx context.Context, id string) (Market, error)
	SetPriceUpdate(ctx context.Context, u PriceUpdate) error
	SetBookSnapshot(ctx context.Context, snap OrderBookSnapshot) error
	GetBookSnapshot(ctx context.Context, marketID string) (OrderBookSnapshot, error)
	SetConnectionCount(ctx context.Context, n int) error
}
