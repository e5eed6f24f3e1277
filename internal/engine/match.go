package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/mememarket/exchange/internal/domain"
)

// matchResult collects what one matching pass produced: the trades executed
// and a copy of every order whose fill state changed.
type matchResult struct {
	trades  []domain.Trade
	touched []domain.Order
}

// matchLocked runs one matching pass over the book. Caller holds b.mu.
//
// A YES bid and a NO bid trade when their limit prices are exact
// complements: yesTicks + noTicks == PricePrecision. Fills at that tick sum
// deposit exactly one dollar of collateral per share pair, which backs the
// minted YES and NO shares with nothing left over. Sums above PricePrecision
// are also economically safe but are not taken; the book waits for the exact
// complement. Within a price level there is no time priority.
//
// Asks rest in the book but never cross here; selling shares back requires
// the settlement flow, not a matching rule.
func (e *Engine) matchLocked(b *book) matchResult {
	var result matchResult

	yesBids := b.restingBids(domain.OutcomeYes)
	noBids := b.restingBids(domain.OutcomeNo)

	for _, yes := range yesBids {
		if !yes.Restable() {
			continue
		}
		for _, no := range noBids {
			if !yes.Restable() {
				break
			}
			if !no.Restable() {
				continue
			}
			if yes.PriceTicks+no.PriceTicks != domain.PricePrecision {
				continue
			}

			qty := yes.RemainingQuantity
			if no.RemainingQuantity < qty {
				qty = no.RemainingQuantity
			}

			fill(yes, qty)
			fill(no, qty)

			result.trades = append(result.trades, domain.Trade{
				ID:            uuid.NewString(),
				MarketID:      b.marketID,
				YesOrderID:    yes.ID,
				NoOrderID:     no.ID,
				YesOwner:      yes.Owner,
				NoOwner:       no.Owner,
				YesPriceTicks: yes.PriceTicks,
				NoPriceTicks:  no.PriceTicks,
				Quantity:      qty,
				Timestamp:     time.Now().UTC(),
			})
			result.touched = append(result.touched, *yes, *no)
		}
	}

	return result
}

// fill applies qty of fills to an order and recomputes its status.
func fill(o *domain.Order, qty int64) {
	o.FilledQuantity += qty
	o.RemainingQuantity -= qty
	if o.RemainingQuantity == 0 {
		o.Status = domain.OrderStatusFilled
	} else {
		o.Status = domain.OrderStatusPartiallyFilled
	}
}
