// Package service contains the event dispatcher that sits between the
// matching engine and the outward-facing collaborators: the WebSocket
// fan-out, the quote cache, and the persistence journal.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/mememarket/exchange/internal/connmgr"
	"github.com/mememarket/exchange/internal/domain"
	"github.com/mememarket/exchange/internal/engine"
)

const defaultBufferSize = 1024

var _ engine.EventSink = (*Dispatcher)(nil)

// MarketSource lets the dispatcher refresh cached market records after a
// trade moves the aggregates.
type MarketSource interface {
	Get(id string) (domain.Market, error)
}

// BookSource supplies the current book snapshot for a market, satisfied by
// the matching engine.
type BookSource interface {
	Snapshot(marketID string) (domain.OrderBookSnapshot, error)
}

// Journal is the optional persistence sink. Any field may be nil.
type Journal struct {
	Markets domain.MarketStore
	Orders  domain.OrderStore
	Trades  domain.TradeStore
}

// Dispatcher receives engine events on a buffered channel and fans them out.
// The sink side never blocks: when the buffer is full the oldest event is
// dropped and counted, so a slow journal or cache cannot stall matching.
type Dispatcher struct {
	conns   *connmgr.Manager
	cache   domain.QuoteCache // may be nil
	journal Journal
	markets MarketSource
	books   BookSource // may be nil; bound after the engine exists
	logger  *slog.Logger

	events  chan event
	dropped atomic.Int64
}

type eventKind int

const (
	kindPrice eventKind = iota
	kindTrade
	kindOrder
)

type event struct {
	kind  eventKind
	price domain.PriceUpdate
	trade domain.Trade
	order domain.Order
}

// NewDispatcher creates a Dispatcher. cache and journal fields may be nil
// for degraded operation.
func NewDispatcher(conns *connmgr.Manager, cache domain.QuoteCache, journal Journal, markets MarketSource, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		conns:   conns,
		cache:   cache,
		journal: journal,
		markets: markets,
		logger:  logger.With(slog.String("component", "dispatcher")),
		events:  make(chan event, defaultBufferSize),
	}
}

// BindBooks attaches the book snapshot source. The engine takes the
// dispatcher as its sink at construction, so the reverse edge is bound here
// once the engine exists. Call before Run.
func (d *Dispatcher) BindBooks(books BookSource) {
	d.books = books
}

// PriceUpdated implements engine.EventSink.
func (d *Dispatcher) PriceUpdated(u domain.PriceUpdate) {
	d.enqueue(event{kind: kindPrice, price: u})
}

// TradeExecuted implements engine.EventSink.
func (d *Dispatcher) TradeExecuted(t domain.Trade) {
	d.enqueue(event{kind: kindTrade, trade: t})
}

// OrderChanged implements engine.EventSink.
func (d *Dispatcher) OrderChanged(o domain.Order) {
	d.enqueue(event{kind: kindOrder, order: o})
}

// enqueue adds the event, evicting the oldest one when the buffer is full.
func (d *Dispatcher) enqueue(ev event) {
	for {
		select {
		case d.events <- ev:
			return
		default:
		}
		select {
		case <-d.events:
			d.dropped.Add(1)
		default:
		}
	}
}

// Dropped returns how many events were evicted from a full buffer.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run consumes events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.events:
			switch ev.kind {
			case kindPrice:
				d.handlePrice(ctx, ev.price)
			case kindTrade:
				d.handleTrade(ctx, ev.trade)
			case kindOrder:
				d.handleOrder(ctx, ev.order)
			}
		}
	}
}

// wireMsg tags a payload with its stream type for WebSocket clients.
func wireMsg(msgType string, v any) []byte {
	m := map[string]any{"type": msgType, "data": v}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return data
}

func (d *Dispatcher) handlePrice(ctx context.Context, u domain.PriceUpdate) {
	// Superseded quotes coalesce within a batch tick: only the latest
	// price matters to subscribers.
	if data := wireMsg("price_update", u); data != nil {
		d.conns.Publish(u.MarketID, "price_update", data)
	}

	if d.cache != nil {
		if err := d.cache.SetPriceUpdate(ctx, u); err != nil && !errors.Is(err, domain.ErrUnavailable) {
			d.logger.WarnContext(ctx, "cache price update failed", slog.String("error", err.Error()))
		}
		if d.books != nil {
			if snap, err := d.books.Snapshot(u.MarketID); err == nil {
				if err := d.cache.SetBookSnapshot(ctx, snap); err != nil && !errors.Is(err, domain.ErrUnavailable) {
					d.logger.WarnContext(ctx, "cache book snapshot failed", slog.String("error", err.Error()))
				}
			}
		}
	}

	d.refreshMarket(ctx, u.MarketID)
}

func (d *Dispatcher) handleTrade(ctx context.Context, t domain.Trade) {
	// Distinct key per trade: trades are a full stream, never coalesced.
	if data := wireMsg("trade", t); data != nil {
		d.conns.Publish(t.MarketID, "trade:"+t.ID, data)
	}

	if d.journal.Trades != nil {
		if err := d.journal.Trades.InsertBatch(ctx, []domain.Trade{t}); err != nil {
			d.logger.WarnContext(ctx, "journal trade failed",
				slog.String("trade_id", t.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (d *Dispatcher) handleOrder(ctx context.Context, o domain.Order) {
	if data := wireMsg("order_update", o); data != nil {
		d.conns.Publish(o.MarketID, "order:"+o.ID, data)
	}

	if d.journal.Orders == nil {
		return
	}
	var err error
	if o.FilledQuantity == 0 && o.Status == domain.OrderStatusOpen {
		err = d.journal.Orders.Insert(ctx, o)
	} else {
		err = d.journal.Orders.UpdateFill(ctx, o)
	}
	if err != nil {
		d.logger.WarnContext(ctx, "journal order failed",
			slog.String("order_id", o.ID),
			slog.String("error", err.Error()),
		)
	}
}

// refreshMarket mirrors the market's post-trade aggregates into the cache
// and the journal.
func (d *Dispatcher) refreshMarket(ctx context.Context, marketID string) {
	if d.markets == nil {
		return
	}
	m, err := d.markets.Get(marketID)
	if err != nil {
		return
	}

	if d.cache != nil {
		if err := d.cache.SetMarket(ctx, m); err != nil && !errors.Is(err, domain.ErrUnavailable) {
			d.logger.WarnContext(ctx, "cache market failed", slog.String("error", err.Error()))
		}
	}
	if d.journal.Markets != nil {
		if err := d.journal.Markets.Upsert(ctx, m); err != nil {
			d.logger.WarnContext(ctx, "journal market failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
}
