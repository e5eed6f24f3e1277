package domain

import "time"

// Trade records one executed match between a YES bid and a NO bid. Each side
// executes at its own resting limit price; there is no single clearing price.
// Trades are immutable once appended to the log.
type Trade struct {
	ID            string    `json:"id"`
	MarketID      string    `json:"market_id"`
	YesOrderID    string    `json:"yes_order_id"`
	NoOrderID     string    `json:"no_order_id"`
	YesOwner      string    `json:"yes_owner"`
	NoOwner       string    `json:"no_owner"`
	YesPriceTicks int64     `json:"yes_price_ticks"`
	NoPriceTicks  int64     `json:"no_price_ticks"`
	Quantity      int64     `json:"quantity"`
	Timestamp     time.Time `json:"timestamp"`
}

// UserShares tracks YES/NO share balances for one (wallet, market) pair.
// Balances only grow in this system: shares are minted by matches and there
// is no redemption path before resolution. The locked counters are reserved
// for a future settlement flow and are never written by matching.
type UserShares struct {
	Owner           string `json:"owner"`
	MarketID        string `json:"market_id"`
	YesShares       int64  `json:"yes_shares"`
	NoShares        int64  `json:"no_shares"`
	YesSharesLocked int64  `json:"yes_shares_locked"`
	NoSharesLocked  int64  `json:"no_shares_locked"`
}

// PriceUpdate is the event fanned out to market subscribers after each trade.
type PriceUpdate struct {
	MarketID          string    `json:"market_id"`
	YesPriceTicks     int64     `json:"yes_price_ticks"`
	NoPriceTicks      int64     `json:"no_price_ticks"`
	YesPrice          float64   `json:"yes_price"`
	NoPrice           float64   `json:"no_price"`
	Timestamp         time.Time `json:"timestamp"`
	LastTradeQuantity int64     `json:"last_trade_quantity,omitempty"`
}
