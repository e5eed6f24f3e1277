package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mememarket/exchange/internal/domain"
	"github.com/mememarket/exchange/internal/market"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRegistry serves a fixed set of markets.
type fakeRegistry struct {
	markets map[string]domain.Market
}

func (f *fakeRegistry) Create(_ context.Context, _ market.CreateParams) (domain.Market, error) {
	return domain.Market{}, domain.ErrInvalidPrice
}

func (f *fakeRegistry) Bootstrap(_ context.Context, _ []market.Seed) []domain.Market { return nil }

func (f *fakeRegistry) Get(id string) (domain.Market, error) {
	m, ok := f.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeRegistry) List() []domain.Market { return nil }
func (f *fakeRegistry) Count() int            { return len(f.markets) }

// fakeMarketCache holds markets that survived a registry restart.
type fakeMarketCache struct {
	markets map[string]domain.Market
}

func (f *fakeMarketCache) GetMarket(_ context.Context, id string) (domain.Market, error) {
	m, ok := f.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func TestGetMarketFallsBackToCache(t *testing.T) {
	reg := &fakeRegistry{markets: map[string]domain.Market{}}
	cache := &fakeMarketCache{markets: map[string]domain.Market{
		"m1": {ID: "m1", TokenSymbol: "BONK"},
	}}
	h := NewMarketHandler(reg, cache, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/markets/m1", nil)
	req.SetPathValue("id", "m1")
	rec := httptest.NewRecorder()
	h.GetMarket(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got domain.Market
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TokenSymbol != "BONK" {
		t.Fatalf("market = %+v", got)
	}
}

func TestGetMarketMissEverywhereIs404(t *testing.T) {
	reg := &fakeRegistry{markets: map[string]domain.Market{}}
	cache := &fakeMarketCache{markets: map[string]domain.Market{}}
	h := NewMarketHandler(reg, cache, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/markets/nope", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	h.GetMarket(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

// fakeExchange returns canned data; only Trades matters here.
type fakeExchange struct {
	trades []domain.Trade
}

func (f *fakeExchange) PlaceOrder(_ context.Context, _ domain.PlaceOrderRequest) (domain.PlaceOrderResult, error) {
	return domain.PlaceOrderResult{}, domain.ErrInvalidPrice
}

func (f *fakeExchange) CancelOrder(_ context.Context, _, _ string) (domain.CancelResult, error) {
	return domain.CancelResult{}, domain.ErrNotFound
}

func (f *fakeExchange) UserOrders(_, _ string) []domain.Order { return nil }

func (f *fakeExchange) Snapshot(_ string) (domain.OrderBookSnapshot, error) {
	return domain.OrderBookSnapshot{}, domain.ErrNotFound
}

func (f *fakeExchange) Trades(_ string, _ int) []domain.Trade { return f.trades }

func (f *fakeExchange) UserShares(wallet, marketID string) domain.UserShares {
	return domain.UserShares{Owner: wallet, MarketID: marketID}
}

type fakeTradeJournal struct {
	trades []domain.Trade
}

func (f *fakeTradeJournal) ListSince(_ context.Context, _ string, limit int) ([]domain.Trade, error) {
	if limit < len(f.trades) {
		return f.trades[:limit], nil
	}
	return f.trades, nil
}

func TestGetTradesFallsBackToJournal(t *testing.T) {
	journal := &fakeTradeJournal{trades: []domain.Trade{
		{ID: "t2", MarketID: "m1"},
		{ID: "t1", MarketID: "m1"},
	}}
	h := NewOrderHandler(&fakeExchange{}, nil, journal, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/trades/m1", nil)
	req.SetPathValue("market_id", "m1")
	rec := httptest.NewRecorder()
	h.GetTrades(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []domain.Trade
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].ID != "t2" {
		t.Fatalf("trades = %+v", got)
	}
}

func TestGetTradesPrefersInMemoryLog(t *testing.T) {
	ex := &fakeExchange{trades: []domain.Trade{{ID: "live", MarketID: "m1"}}}
	journal := &fakeTradeJournal{trades: []domain.Trade{{ID: "old", MarketID: "m1"}}}
	h := NewOrderHandler(ex, nil, journal, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/trades/m1", nil)
	req.SetPathValue("market_id", "m1")
	rec := httptest.NewRecorder()
	h.GetTrades(rec, req)

	var got []domain.Trade
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "live" {
		t.Fatalf("trades = %+v", got)
	}
}
