package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mememarket/exchange/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScreenerClientParsesFirstPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dex/tokens/BONKADDR" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		io.WriteString(w, `{"pairs":[
			{"dexId":"raydium","priceUsd":"0.000031","marketCap":2100000,"fdv":2500000},
			{"dexId":"orca","priceUsd":"0.000030","marketCap":1900000,"fdv":2000000}
		]}`)
	}))
	defer srv.Close()

	c := NewScreenerClient(srv.URL, nil)
	q, err := c.TokenQuote(context.Background(), "BONKADDR")
	if err != nil {
		t.Fatalf("token quote: %v", err)
	}
	if q.DexID != "raydium" || q.MarketCap != 2_100_000 {
		t.Fatalf("quote = %+v", q)
	}
	if q.PriceUSD != 0.000031 {
		t.Fatalf("price = %v", q.PriceUSD)
	}
}

func TestScreenerClientFallsBackToFDV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"pairs":[{"dexId":"raydium","priceUsd":"1.5","marketCap":0,"fdv":900000}]}`)
	}))
	defer srv.Close()

	q, err := NewScreenerClient(srv.URL, nil).TokenQuote(context.Background(), "X")
	if err != nil {
		t.Fatalf("token quote: %v", err)
	}
	if q.MarketCap != 900_000 {
		t.Fatalf("cap = %v, want fdv fallback", q.MarketCap)
	}
}

func TestScreenerClientRejectsMalformedPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"pairs":[{"dexId":"raydium","priceUsd":"n/a","marketCap":100000,"fdv":0}]}`)
	}))
	defer srv.Close()

	_, err := NewScreenerClient(srv.URL, nil).TokenQuote(context.Background(), "X")
	if err == nil {
		t.Fatal("expected an error for unparseable priceUsd")
	}
	if !strings.Contains(err.Error(), "parse price") {
		t.Fatalf("got %v, want a parse error", err)
	}
}

func TestScreenerClientNoPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"pairs":[]}`)
	}))
	defer srv.Close()

	_, err := NewScreenerClient(srv.URL, nil).TokenQuote(context.Background(), "X")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

type fakeRegistry struct {
	mu      sync.Mutex
	markets []domain.Market
	caps    map[string]float64
}

func (f *fakeRegistry) List() []domain.Market {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Market(nil), f.markets...)
}

func (f *fakeRegistry) SetCurrentCap(marketID string, cap float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.caps == nil {
		f.caps = make(map[string]float64)
	}
	f.caps[marketID] = cap
	return nil
}

type fakeQuoter struct {
	quotes map[string]TokenQuote
}

func (f *fakeQuoter) TokenQuote(_ context.Context, addr string) (TokenQuote, error) {
	q, ok := f.quotes[addr]
	if !ok {
		return TokenQuote{}, domain.ErrNotFound
	}
	return q, nil
}

func TestMonitorPollSkipsUnwatchable(t *testing.T) {
	reg := &fakeRegistry{markets: []domain.Market{
		{ID: "m1", TokenSymbol: "BONK", TokenAddress: "bonk", Status: domain.MarketStatusActive},
		{ID: "m2", TokenSymbol: "WIF", TokenAddress: "", Status: domain.MarketStatusActive},   // no address
		{ID: "m3", TokenSymbol: "PEPE", TokenAddress: "pepe", Status: domain.MarketStatusResolved}, // not active
		{ID: "m4", TokenSymbol: "DOGE", TokenAddress: "doge", Status: domain.MarketStatusActive},   // quote missing
	}}
	q := &fakeQuoter{quotes: map[string]TokenQuote{
		"bonk": {MarketCap: 5_000_000},
	}}

	m := NewMonitor(q, reg, time.Minute, testLogger())
	m.poll(context.Background())

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if len(reg.caps) != 1 {
		t.Fatalf("caps updated = %v", reg.caps)
	}
	if reg.caps["m1"] != 5_000_000 {
		t.Fatalf("m1 cap = %v", reg.caps["m1"])
	}
}
