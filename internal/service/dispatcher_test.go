package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mememarket/exchange/internal/connmgr"
	"github.com/mememarket/exchange/internal/domain"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeTransport) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeTradeStore struct {
	mu     sync.Mutex
	trades []domain.Trade
}

func (s *fakeTradeStore) InsertBatch(_ context.Context, trades []domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trades...)
	return nil
}

func (s *fakeTradeStore) ListSince(_ context.Context, marketID string, limit int) ([]domain.Trade, error) {
	return nil, nil
}

type fakeOrderStore struct {
	mu      sync.Mutex
	inserts []string
	updates []string
}

func (s *fakeOrderStore) Insert(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts = append(s.inserts, o.ID)
	return nil
}

func (s *fakeOrderStore) UpdateFill(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, o.ID)
	return nil
}

// fakeQuoteCache records cache writes; only the methods the dispatcher calls
// do anything interesting.
type fakeQuoteCache struct {
	mu        sync.Mutex
	markets   []string
	prices    []domain.PriceUpdate
	snapshots []domain.OrderBookSnapshot
}

func (c *fakeQuoteCache) SetMarket(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets = append(c.markets, m.ID)
	return nil
}

func (c *fakeQuoteCache) GetMarket(_ context.Context, _ string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}

func (c *fakeQuoteCache) SetPriceUpdate(_ context.Context, u domain.PriceUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices = append(c.prices, u)
	return nil
}

func (c *fakeQuoteCache) SetBookSnapshot(_ context.Context, snap domain.OrderBookSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, snap)
	return nil
}

func (c *fakeQuoteCache) GetBookSnapshot(_ context.Context, _ string) (domain.OrderBookSnapshot, error) {
	return domain.OrderBookSnapshot{}, domain.ErrNotFound
}

func (c *fakeQuoteCache) SetConnectionCount(_ context.Context, _ int) error { return nil }

func (c *fakeQuoteCache) snapshotCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snapshots)
}

// fakeBooks serves a canned snapshot per market id.
type fakeBooks struct {
	snaps map[string]domain.OrderBookSnapshot
}

func (b *fakeBooks) Snapshot(marketID string) (domain.OrderBookSnapshot, error) {
	snap, ok := b.snaps[marketID]
	if !ok {
		return domain.OrderBookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it is true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcherPublishesToSubscribers(t *testing.T) {
	mgr := connmgr.New(connmgr.Config{}, testLogger())
	ft := &fakeTransport{}
	connID := mgr.Register(ft)
	if err := mgr.Subscribe(connID, "mkt-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	trades := &fakeTradeStore{}
	d := NewDispatcher(mgr, nil, Journal{Trades: trades}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	go mgr.RunBatchLoop(ctx)

	d.TradeExecuted(domain.Trade{ID: "t1", MarketID: "mkt-1", Quantity: 5})
	d.PriceUpdated(domain.PriceUpdate{MarketID: "mkt-1", YesPriceTicks: 400_000, NoPriceTicks: 600_000})

	waitFor(t, func() bool { return ft.count() >= 2 })

	trades.mu.Lock()
	journaled := len(trades.trades)
	trades.mu.Unlock()
	if journaled != 1 {
		t.Fatalf("journaled %d trades, want 1", journaled)
	}

	// Each delivered frame carries a type tag.
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, raw := range ft.sent {
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			t.Fatalf("malformed frame %s: %v", raw, err)
		}
	}
}

func TestDispatcherCachesBookSnapshotOnPrice(t *testing.T) {
	mgr := connmgr.New(connmgr.Config{}, testLogger())
	cache := &fakeQuoteCache{}
	books := &fakeBooks{snaps: map[string]domain.OrderBookSnapshot{
		"mkt-1": {MarketID: "mkt-1"},
	}}

	d := NewDispatcher(mgr, cache, Journal{}, nil, testLogger())
	d.BindBooks(books)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.PriceUpdated(domain.PriceUpdate{MarketID: "mkt-1", YesPriceTicks: 400_000, NoPriceTicks: 600_000})

	waitFor(t, func() bool { return cache.snapshotCount() >= 1 })

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.snapshots[0].MarketID != "mkt-1" {
		t.Fatalf("snapshot = %+v", cache.snapshots[0])
	}
	if len(cache.prices) != 1 {
		t.Fatalf("cached %d price updates, want 1", len(cache.prices))
	}
}

func TestDispatcherJournalsOrderLifecycle(t *testing.T) {
	mgr := connmgr.New(connmgr.Config{}, testLogger())
	orders := &fakeOrderStore{}
	d := NewDispatcher(mgr, nil, Journal{Orders: orders}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.OrderChanged(domain.Order{ID: "o1", MarketID: "mkt-1", Status: domain.OrderStatusOpen})
	d.OrderChanged(domain.Order{ID: "o1", MarketID: "mkt-1", Status: domain.OrderStatusPartiallyFilled, FilledQuantity: 3})

	waitFor(t, func() bool {
		orders.mu.Lock()
		defer orders.mu.Unlock()
		return len(orders.inserts) == 1 && len(orders.updates) == 1
	})
}

func TestDispatcherDropsOldestWhenFull(t *testing.T) {
	mgr := connmgr.New(connmgr.Config{}, testLogger())
	d := NewDispatcher(mgr, nil, Journal{}, nil, testLogger())

	// No Run loop consuming: overflow the buffer and confirm eviction
	// rather than blocking.
	for i := 0; i < defaultBufferSize+10; i++ {
		d.PriceUpdated(domain.PriceUpdate{MarketID: "mkt-1"})
	}

	if got := d.Dropped(); got != 10 {
		t.Fatalf("dropped = %d, want 10", got)
	}
}
