package market

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mememarket/exchange/internal/domain"
)

type stubRates struct {
	lamports int64
	err      error
}

func (s stubRates) OneDollarLamports(context.Context) (int64, error) {
	return s.lamports, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateDefaults(t *testing.T) {
	r := NewRegistry(stubRates{lamports: 7_000_000}, testLogger())

	m, err := r.Create(context.Background(), CreateParams{
		TokenSymbol:     "WIF",
		TokenAddress:    "addr",
		TargetMarketCap: 5_000_000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if m.Question != "Will WIF reach $5000000 market cap?" {
		t.Fatalf("question = %q", m.Question)
	}
	if m.YesPriceTicks != domain.PricePrecision/2 || m.NoPriceTicks != domain.PricePrecision/2 {
		t.Fatalf("initial prices = %d/%d, want 50/50", m.YesPriceTicks, m.NoPriceTicks)
	}
	if m.OneDollarLamports != 7_000_000 {
		t.Fatalf("rate snapshot = %d", m.OneDollarLamports)
	}
	if m.Status != domain.MarketStatusActive {
		t.Fatalf("status = %s", m.Status)
	}
	if got := m.ExpiryTime.Sub(m.CreatedAt); got != 24*time.Hour {
		t.Fatalf("expiry window = %s, want 24h", got)
	}
	if m.CurrentMarketCap != 2_500_000 {
		t.Fatalf("starting cap = %f", m.CurrentMarketCap)
	}
}

func TestCreateRequiresSymbol(t *testing.T) {
	r := NewRegistry(stubRates{lamports: 7_000_000}, testLogger())
	if _, err := r.Create(context.Background(), CreateParams{}); err == nil {
		t.Fatal("empty symbol accepted")
	}
}

func TestGetAndList(t *testing.T) {
	r := NewRegistry(stubRates{lamports: 7_000_000}, testLogger())

	first, _ := r.Create(context.Background(), CreateParams{TokenSymbol: "A", TargetMarketCap: 1})
	time.Sleep(2 * time.Millisecond)
	second, _ := r.Create(context.Background(), CreateParams{TokenSymbol: "B", TargetMarketCap: 1})

	if _, err := r.Get("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing market: got %v, want ErrNotFound", err)
	}
	got, err := r.Get(first.ID)
	if err != nil || got.TokenSymbol != "A" {
		t.Fatalf("get = %+v, %v", got, err)
	}

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("list has %d markets", len(list))
	}
	if list[0].ID != second.ID {
		t.Fatalf("list not newest first: %s", list[0].TokenSymbol)
	}
	if r.Count() != 2 {
		t.Fatalf("count = %d", r.Count())
	}
}

func TestBootstrapSkipsFailures(t *testing.T) {
	r := NewRegistry(stubRates{lamports: 7_000_000}, testLogger())

	created := r.Bootstrap(context.Background(), []Seed{
		{TokenSymbol: "BONK", TargetMarketCap: 1_000_000},
		{TokenSymbol: "", TargetMarketCap: 1}, // invalid, skipped
		{TokenSymbol: "WIF", TargetMarketCap: 2_000_000},
	})

	if len(created) != 2 {
		t.Fatalf("bootstrap created %d markets, want 2", len(created))
	}
	if r.Count() != 2 {
		t.Fatalf("registry holds %d markets", r.Count())
	}

	// A second bootstrap with the same seeds creates nothing new.
	again := r.Bootstrap(context.Background(), []Seed{
		{TokenSymbol: "BONK", TargetMarketCap: 1_000_000},
		{TokenSymbol: "WIF", TargetMarketCap: 2_000_000},
	})
	if len(again) != 0 || r.Count() != 2 {
		t.Fatalf("rebootstrap created %d, registry holds %d", len(again), r.Count())
	}
}

func TestApplyTrade(t *testing.T) {
	r := NewRegistry(stubRates{lamports: 7_000_000}, testLogger())
	m, _ := r.Create(context.Background(), CreateParams{TokenSymbol: "BONK", TargetMarketCap: 1})

	ts := time.Now().UTC()
	if err := r.ApplyTrade(m.ID, 25, 400_000, 600_000, ts); err != nil {
		t.Fatalf("apply trade: %v", err)
	}

	got, _ := r.Get(m.ID)
	if got.YesSharesSupply != 25 || got.NoSharesSupply != 25 {
		t.Fatalf("supply = %d/%d", got.YesSharesSupply, got.NoSharesSupply)
	}
	if got.YesPriceTicks != 400_000 || got.NoPriceTicks != 600_000 {
		t.Fatalf("prices = %d/%d", got.YesPriceTicks, got.NoPriceTicks)
	}
	if got.VolumeLamports != 25*7_000_000 {
		t.Fatalf("volume lamports = %d", got.VolumeLamports)
	}
	if got.VolumeUSD != 25 {
		t.Fatalf("volume usd = %f", got.VolumeUSD)
	}
	if !got.LastUpdated.Equal(ts) {
		t.Fatalf("last updated = %s", got.LastUpdated)
	}

	if err := r.ApplyTrade("missing", 1, 1, 1, ts); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing market: got %v", err)
	}
}

func TestSetCurrentCap(t *testing.T) {
	r := NewRegistry(stubRates{lamports: 7_000_000}, testLogger())
	m, _ := r.Create(context.Background(), CreateParams{TokenSymbol: "BONK", TargetMarketCap: 100})

	if err := r.SetCurrentCap(m.ID, 77.5); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	got, _ := r.Get(m.ID)
	if got.CurrentMarketCap != 77.5 {
		t.Fatalf("cap = %f", got.CurrentMarketCap)
	}

	if err := r.SetCurrentCap("missing", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing market: got %v", err)
	}
}
