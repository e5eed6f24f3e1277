// Package engine implements the order book, the complementary-pair matching
// engine, and the share ledger. All exchange state lives on the Engine
// object; there are no package-level registries.
//
// Concurrency model: each market owns one book with its own mutex, so
// place/cancel/match on a single market never interleave while distinct
// markets are mutated fully concurrently. Matching itself is pure in-memory
// work and never suspends; events are handed to the sink after the book lock
// is released.
package engine

import (
	"context"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mememarket/exchange/internal/domain"
	"github.com/mememarket/exchange/internal/market"
)

// EventSink receives matching-engine events. Implementations must not block:
// the engine calls the sink synchronously after releasing the market lock,
// and fan-out latency must never back-pressure matching.
type EventSink interface {
	PriceUpdated(u domain.PriceUpdate)
	TradeExecuted(t domain.Trade)
	OrderChanged(o domain.Order)
}

// NopSink discards all events. Useful for tests and tooling.
type NopSink struct{}

func (NopSink) PriceUpdated(domain.PriceUpdate) {}
func (NopSink) TradeExecuted(domain.Trade)      {}
func (NopSink) OrderChanged(domain.Order)       {}

// Engine owns all order books, the order index, the share ledger, and the
// append-only trade log for one exchange instance.
type Engine struct {
	registry *market.Registry
	sink     EventSink
	logger   *slog.Logger

	mu     sync.RWMutex     // guards books and the order-id index
	books  map[string]*book // market id -> book
	owners map[string]string // order id -> market id

	ledger *Ledger

	tradeMu sync.RWMutex
	trades  []domain.Trade
}

// New creates an Engine bound to the given market registry and event sink.
func New(registry *market.Registry, sink EventSink, logger *slog.Logger) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		registry: registry,
		sink:     sink,
		logger:   logger.With(slog.String("component", "engine")),
		books:    make(map[string]*book),
		owners:   make(map[string]string),
		ledger:   NewLedger(),
	}
}

// Ledger exposes the share ledger for read paths.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// bookFor returns the market's book, creating it on first use. The book and
// its market are a 1:1 owned relationship.
func (e *Engine) bookFor(marketID string) *book {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[marketID]
	if !ok {
		b = newBook(marketID)
		e.books[marketID] = b
	}
	return b
}

// collateralLamports computes priceTicks * quantity * oneDollarLamports /
// PricePrecision with a big.Int intermediate so the product cannot overflow
// before the final division.
func collateralLamports(priceTicks, quantity, oneDollarLamports int64) int64 {
	n := new(big.Int).SetInt64(priceTicks)
	n.Mul(n, big.NewInt(quantity))
	n.Mul(n, big.NewInt(oneDollarLamports))
	n.Quo(n, big.NewInt(domain.PricePrecision))
	return n.Int64()
}

// refundLamports computes deposited * remaining / quantity exactly.
func refundLamports(deposited, remaining, quantity int64) int64 {
	if quantity <= 0 {
		return 0
	}
	n := new(big.Int).SetInt64(deposited)
	n.Mul(n, big.NewInt(remaining))
	n.Quo(n, big.NewInt(quantity))
	return n.Int64()
}

// PlaceOrder validates the request, deposits collateral, inserts the order
// into its (outcome, side) partition, and immediately runs matching for the
// market. A rejected request never touches the book.
func (e *Engine) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlaceOrderResult, error) {
	m, err := e.registry.Get(req.MarketID)
	if err != nil {
		return domain.PlaceOrderResult{}, domain.ErrNotFound
	}
	if req.PriceTicks <= 0 || req.PriceTicks >= domain.PricePrecision {
		return domain.PlaceOrderResult{}, domain.ErrInvalidPrice
	}
	if req.Quantity <= 0 {
		return domain.PlaceOrderResult{}, domain.ErrInvalidQuantity
	}

	order := &domain.Order{
		ID:                uuid.NewString(),
		MarketID:          req.MarketID,
		Owner:             req.Wallet,
		Outcome:           req.Outcome,
		PriceTicks:        req.PriceTicks,
		Quantity:          req.Quantity,
		FilledQuantity:    0,
		RemainingQuantity: req.Quantity,
		LamportsDeposited: collateralLamports(req.PriceTicks, req.Quantity, m.OneDollarLamports),
		Status:            domain.OrderStatusOpen,
		IsSell:            req.IsSell,
		CreatedAt:         time.Now().UTC(),
	}

	b := e.bookFor(req.MarketID)

	b.mu.Lock()
	b.insert(order)
	result := e.matchLocked(b)
	e.applyMatches(ctx, req.MarketID, result)
	placed := *order
	b.mu.Unlock()

	e.mu.Lock()
	e.owners[order.ID] = req.MarketID
	e.mu.Unlock()

	e.emitMatches(req.MarketID, result)
	e.sink.OrderChanged(placed)

	e.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.String("market_id", req.MarketID),
		slog.String("outcome", string(req.Outcome)),
		slog.Int64("price_ticks", req.PriceTicks),
		slog.Int64("quantity", req.Quantity),
		slog.Int("trades_executed", len(result.trades)),
	)

	return domain.PlaceOrderResult{Order: placed, TradesExecuted: len(result.trades)}, nil
}

// CancelOrder marks an open order cancelled and computes the exact
// pro-rata collateral refund for its unfilled remainder.
func (e *Engine) CancelOrder(ctx context.Context, orderID, wallet string) (domain.CancelResult, error) {
	e.mu.RLock()
	marketID, ok := e.owners[orderID]
	e.mu.RUnlock()
	if !ok {
		return domain.CancelResult{}, domain.ErrNotFound
	}

	b := e.bookFor(marketID)

	b.mu.Lock()
	defer b.mu.Unlock()

	order := b.byID(orderID)
	if order == nil {
		return domain.CancelResult{}, domain.ErrNotFound
	}
	if order.Owner != wallet {
		return domain.CancelResult{}, domain.ErrUnauthorized
	}
	if order.Status.Terminal() {
		return domain.CancelResult{}, domain.ErrOrderNotOpen
	}

	order.Status = domain.OrderStatusCancelled
	refund := refundLamports(order.LamportsDeposited, order.RemainingQuantity, order.Quantity)
	cancelled := *order

	e.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_id", orderID),
		slog.Int64("refund_lamports", refund),
	)

	e.sink.OrderChanged(cancelled)
	return domain.CancelResult{OrderID: orderID, RefundLamports: refund}, nil
}

// GetOrder returns a copy of the order with the given id.
func (e *Engine) GetOrder(orderID string) (domain.Order, error) {
	e.mu.RLock()
	marketID, ok := e.owners[orderID]
	e.mu.RUnlock()
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}

	b := e.bookFor(marketID)
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.byID(orderID)
	if o == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	return *o, nil
}

// UserOrders returns all orders owned by wallet, optionally restricted to a
// market, newest first.
func (e *Engine) UserOrders(wallet, marketID string) []domain.Order {
	e.mu.RLock()
	books := make([]*book, 0, len(e.books))
	for id, b := range e.books {
		if marketID != "" && id != marketID {
			continue
		}
		books = append(books, b)
	}
	e.mu.RUnlock()

	var out []domain.Order
	for _, b := range books {
		b.mu.Lock()
		for _, o := range b.all() {
			if o.Owner == wallet {
				out = append(out, *o)
			}
		}
		b.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Snapshot aggregates the market's open orders into price levels.
func (e *Engine) Snapshot(marketID string) (domain.OrderBookSnapshot, error) {
	if _, err := e.registry.Get(marketID); err != nil {
		return domain.OrderBookSnapshot{}, domain.ErrNotFound
	}

	b := e.bookFor(marketID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot(), nil
}

// Trades returns up to limit trades for the market, newest first.
func (e *Engine) Trades(marketID string, limit int) []domain.Trade {
	if limit <= 0 {
		limit = 50
	}

	e.tradeMu.RLock()
	defer e.tradeMu.RUnlock()

	out := make([]domain.Trade, 0, limit)
	for i := len(e.trades) - 1; i >= 0 && len(out) < limit; i-- {
		if e.trades[i].MarketID == marketID {
			out = append(out, e.trades[i])
		}
	}
	return out
}

// TradeLogSince returns a copy of the trade log from offset onward. The log
// is append-only, so an offset from a previous call stays valid.
func (e *Engine) TradeLogSince(offset int) []domain.Trade {
	e.tradeMu.RLock()
	defer e.tradeMu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(e.trades) {
		return nil
	}
	out := make([]domain.Trade, len(e.trades)-offset)
	copy(out, e.trades[offset:])
	return out
}

// UserShares returns the (possibly zero-valued) share balances for a wallet
// on a market.
func (e *Engine) UserShares(wallet, marketID string) domain.UserShares {
	return e.ledger.Get(wallet, marketID)
}

// applyMatches appends executed trades to the log, credits the ledger, and
// folds the aggregates into the registry. It runs while the book lock is
// still held so trades land in the log and registry in execution order.
func (e *Engine) applyMatches(ctx context.Context, marketID string, result matchResult) {
	if len(result.trades) == 0 {
		return
	}

	e.tradeMu.Lock()
	e.trades = append(e.trades, result.trades...)
	e.tradeMu.Unlock()

	for _, t := range result.trades {
		e.ledger.Credit(t.YesOwner, marketID, t.Quantity, 0)
		e.ledger.Credit(t.NoOwner, marketID, 0, t.Quantity)

		if err := e.registry.ApplyTrade(marketID, t.Quantity, t.YesPriceTicks, t.NoPriceTicks, t.Timestamp); err != nil {
			e.logger.WarnContext(ctx, "apply trade to registry failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// emitMatches hands trade and price events to the sink. It runs after the
// book lock is released so fan-out can never slow matching down.
func (e *Engine) emitMatches(marketID string, result matchResult) {
	for _, t := range result.trades {
		e.sink.TradeExecuted(t)
		e.sink.PriceUpdated(domain.PriceUpdate{
			MarketID:          marketID,
			YesPriceTicks:     t.YesPriceTicks,
			NoPriceTicks:      t.NoPriceTicks,
			YesPrice:          float64(t.YesPriceTicks) / float64(domain.PricePrecision),
			NoPrice:           float64(t.NoPriceTicks) / float64(domain.PricePrecision),
			Timestamp:         t.Timestamp,
			LastTradeQuantity: t.Quantity,
		})
	}

	for _, o := range result.touched {
		e.sink.OrderChanged(o)
	}
}
