package domain

import "time"

// Outcome identifies which side of a binary market an order trades.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// OrderStatus tracks the order lifecycle. Transitions are one-directional:
// OPEN -> PARTIALLY_FILLED -> FILLED, or (OPEN|PARTIALLY_FILLED) -> CANCELLED.
// FILLED and CANCELLED are terminal.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further fills or cancels.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// Order is a resting limit order for YES or NO shares.
type Order struct {
	ID                string      `json:"id"`
	MarketID          string      `json:"market_id"`
	Owner             string      `json:"owner"`
	Outcome           Outcome     `json:"outcome"`
	PriceTicks        int64       `json:"price_ticks"` // fixed-point: price * 1e6
	Quantity          int64       `json:"quantity"`
	FilledQuantity    int64       `json:"filled_quantity"`
	RemainingQuantity int64       `json:"remaining_quantity"`
	LamportsDeposited int64       `json:"lamports_deposited"`
	Status            OrderStatus `json:"status"`
	IsSell            bool        `json:"is_sell"`
	CreatedAt         time.Time   `json:"created_at"`
}

// Price returns the float64 display price from fixed-point ticks.
func (o Order) Price() float64 {
	return float64(o.PriceTicks) / float64(PricePrecision)
}

// Restable reports whether the order can still participate in matching.
func (o Order) Restable() bool {
	return (o.Status == OrderStatusOpen || o.Status == OrderStatusPartiallyFilled) &&
		o.RemainingQuantity > 0
}

// PlaceOrderRequest carries the parameters of an order placement.
type PlaceOrderRequest struct {
	MarketID   string  `json:"market_id"`
	Wallet     string  `json:"wallet_address"`
	Outcome    Outcome `json:"outcome"`
	PriceTicks int64   `json:"price_ticks"`
	Quantity   int64   `json:"quantity"`
	IsSell     bool    `json:"is_sell"`
}

// PlaceOrderResult wraps the created order and the number of trades the
// placement triggered.
type PlaceOrderResult struct {
	Order          Order `json:"order"`
	TradesExecuted int   `json:"trades_executed"`
}

// CancelResult reports the collateral refunded by a cancellation.
type CancelResult struct {
	OrderID         string `json:"order_id"`
	RefundLamports  int64  `json:"refund_lamports"`
}
