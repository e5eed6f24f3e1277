package domain

import "time"

// BookLevel aggregates all open orders resting at one price in one partition.
type BookLevel struct {
	PriceTicks int64 `json:"price_ticks"`
	Price      float64 `json:"price"`
	Quantity   int64 `json:"quantity"`
	NumOrders  int   `json:"num_orders"`
}

// OrderBookSnapshot is the aggregated view of a market's four book
// partitions: (YES|NO) x (bids|asks). Bids are sorted by price descending,
// asks ascending.
type OrderBookSnapshot struct {
	MarketID    string      `json:"market_id"`
	YesBids     []BookLevel `json:"yes_bids"`
	YesAsks     []BookLevel `json:"yes_asks"`
	NoBids      []BookLevel `json:"no_bids"`
	NoAsks      []BookLevel `json:"no_asks"`
	BestYesBid  *int64      `json:"best_yes_bid,omitempty"`
	BestYesAsk  *int64      `json:"best_yes_ask,omitempty"`
	BestNoBid   *int64      `json:"best_no_bid,omitempty"`
	BestNoAsk   *int64      `json:"best_no_ask,omitempty"`
	SpreadTicks *int64      `json:"spread_ticks,omitempty"`
	LastUpdated time.Time   `json:"last_updated"`
}
