package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/mememarket/exchange/internal/domain"
)

// book holds one market's resting orders partitioned by (outcome, side).
// The book owns its orders; everything else references them by id. All
// access goes through book.mu.
type book struct {
	mu       sync.Mutex
	marketID string

	yesBids []*domain.Order
	yesAsks []*domain.Order
	noBids  []*domain.Order
	noAsks  []*domain.Order

	index map[string]*domain.Order
}

func newBook(marketID string) *book {
	return &book{
		marketID: marketID,
		index:    make(map[string]*domain.Order),
	}
}

// insert places an order into its (outcome, side) partition.
func (b *book) insert(o *domain.Order) {
	switch {
	case o.Outcome == domain.OutcomeYes && !o.IsSell:
		b.yesBids = append(b.yesBids, o)
	case o.Outcome == domain.OutcomeYes && o.IsSell:
		b.yesAsks = append(b.yesAsks, o)
	case o.Outcome == domain.OutcomeNo && !o.IsSell:
		b.noBids = append(b.noBids, o)
	default:
		b.noAsks = append(b.noAsks, o)
	}
	b.index[o.ID] = o
}

// byID returns the order with the given id, or nil.
func (b *book) byID(id string) *domain.Order {
	return b.index[id]
}

// all returns every order in the book, in no particular order.
func (b *book) all() []*domain.Order {
	out := make([]*domain.Order, 0, len(b.index))
	for _, o := range b.index {
		out = append(out, o)
	}
	return out
}

// restingBids returns the OPEN/PARTIALLY_FILLED bid orders for one outcome,
// sorted by price descending. Ties keep no secondary ordering: price is the
// only priority dimension in this book.
func (b *book) restingBids(outcome domain.Outcome) []*domain.Order {
	src := b.yesBids
	if outcome == domain.OutcomeNo {
		src = b.noBids
	}

	out := make([]*domain.Order, 0, len(src))
	for _, o := range src {
		if o.Restable() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PriceTicks > out[j].PriceTicks
	})
	return out
}

// aggregate folds a partition's open orders into price levels. Bids sort
// descending, asks ascending.
func aggregate(orders []*domain.Order, descending bool) []domain.BookLevel {
	byPrice := make(map[int64]*domain.BookLevel)
	for _, o := range orders {
		if !o.Restable() {
			continue
		}
		lvl, ok := byPrice[o.PriceTicks]
		if !ok {
			lvl = &domain.BookLevel{
				PriceTicks: o.PriceTicks,
				Price:      float64(o.PriceTicks) / float64(domain.PricePrecision),
			}
			byPrice[o.PriceTicks] = lvl
		}
		lvl.Quantity += o.RemainingQuantity
		lvl.NumOrders++
	}

	out := make([]domain.BookLevel, 0, len(byPrice))
	for _, lvl := range byPrice {
		out = append(out, *lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].PriceTicks > out[j].PriceTicks
		}
		return out[i].PriceTicks < out[j].PriceTicks
	})
	return out
}

// snapshot builds the aggregated book view, including best bid/ask per
// outcome and the YES bid/ask spread.
func (b *book) snapshot() domain.OrderBookSnapshot {
	snap := domain.OrderBookSnapshot{
		MarketID:    b.marketID,
		YesBids:     aggregate(b.yesBids, true),
		YesAsks:     aggregate(b.yesAsks, false),
		NoBids:      aggregate(b.noBids, true),
		NoAsks:      aggregate(b.noAsks, false),
		LastUpdated: time.Now().UTC(),
	}

	if len(snap.YesBids) > 0 {
		snap.BestYesBid = &snap.YesBids[0].PriceTicks
	}
	if len(snap.YesAsks) > 0 {
		snap.BestYesAsk = &snap.YesAsks[0].PriceTicks
	}
	if len(snap.NoBids) > 0 {
		snap.BestNoBid = &snap.NoBids[0].PriceTicks
	}
	if len(snap.NoAsks) > 0 {
		snap.BestNoAsk = &snap.NoAsks[0].PriceTicks
	}
	if snap.BestYesBid != nil && snap.BestYesAsk != nil {
		spread := *snap.BestYesAsk - *snap.BestYesBid
		if spread < 0 {
			spread = -spread
		}
		snap.SpreadTicks = &spread
	}

	return snap
}
