package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mememarket/exchange/internal/domain"
)

const (
	marketTTL   = 5 * time.Minute
	priceTTL    = time.Minute
	snapshotTTL = 30 * time.Second
)

var _ domain.QuoteCache = (*QuoteCache)(nil)

// QuoteCache mirrors the latest per-market exchange state into Redis for
// read paths and external dashboards. All writes are best-effort.
//
// Key schema:
//
//	mm:market:{id}     - JSON-serialized market record
//	mm:price:{id}      - hash with yes/no tick fields and a timestamp
//	mm:book:{id}       - JSON-serialized order book snapshot
//	mm:ws:connections  - live connection count
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func marketKey(id string) string { return "mm:market:" + id }
func priceKey(id string) string  { return "mm:price:" + id }
func bookKey(id string) string   { return "mm:book:" + id }

const connCountKey = "mm:ws:connections"

// SetMarket stores the market record with a 5-minute TTL.
func (q *QuoteCache) SetMarket(ctx context.Context, m domain.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", m.ID, err)
	}
	if err := q.rdb.Set(ctx, marketKey(m.ID), data, marketTTL).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", m.ID, domain.ErrUnavailable)
	}
	return nil
}

// GetMarket retrieves a cached market record. Returns domain.ErrNotFound on
// a cache miss.
func (q *QuoteCache) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	data, err := q.rdb.Get(ctx, marketKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", id, domain.ErrUnavailable)
	}

	var m domain.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", id, err)
	}
	return m, nil
}

// SetPriceUpdate stores the market's latest traded prices as a hash.
func (q *QuoteCache) SetPriceUpdate(ctx context.Context, u domain.PriceUpdate) error {
	key := priceKey(u.MarketID)
	fields := map[string]interface{}{
		"yes_ticks": strconv.FormatInt(u.YesPriceTicks, 10),
		"no_ticks":  strconv.FormatInt(u.NoPriceTicks, 10),
		"ts":        strconv.FormatInt(u.Timestamp.UnixNano(), 10),
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", u.MarketID, domain.ErrUnavailable)
	}
	return nil
}

// SetBookSnapshot stores the aggregated order book view.
func (q *QuoteCache) SetBookSnapshot(ctx context.Context, snap domain.OrderBookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal book %s: %w", snap.MarketID, err)
	}
	if err := q.rdb.Set(ctx, bookKey(snap.MarketID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set book %s: %w", snap.MarketID, domain.ErrUnavailable)
	}
	return nil
}

// GetBookSnapshot retrieves the cached book view. Returns domain.ErrNotFound
// on a cache miss.
func (q *QuoteCache) GetBookSnapshot(ctx context.Context, marketID string) (domain.OrderBookSnapshot, error) {
	data, err := q.rdb.Get(ctx, bookKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderBookSnapshot{}, domain.ErrNotFound
		}
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: get book %s: %w", marketID, domain.ErrUnavailable)
	}

	var snap domain.OrderBookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: unmarshal book %s: %w", marketID, err)
	}
	return snap, nil
}

// SetConnectionCount publishes the live WebSocket connection count.
func (q *QuoteCache) SetConnectionCount(ctx context.Context, n int) error {
	if err := q.rdb.Set(ctx, connCountKey, n, priceTTL).Err(); err != nil {
		return fmt.Errorf("redis: set connection count: %w", domain.ErrUnavailable)
	}
	return nil
}
