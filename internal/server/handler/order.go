package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mememarket/exchange/internal/domain"
)

// Exchange defines what the order handler needs from the matching engine.
type Exchange interface {
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlaceOrderResult, error)
	CancelOrder(ctx context.Context, orderID, wallet string) (domain.CancelResult, error)
	UserOrders(wallet, marketID string) []domain.Order
	Snapshot(marketID string) (domain.OrderBookSnapshot, error)
	Trades(marketID string, limit int) []domain.Trade
	UserShares(wallet, marketID string) domain.UserShares
}

// BookCache is the optional read-through cache for book snapshots.
type BookCache interface {
	GetBookSnapshot(ctx context.Context, marketID string) (domain.OrderBookSnapshot, error)
}

// TradeJournal is the optional persistent trade log, read when the in-memory
// log has nothing for a market (for example after a restart).
type TradeJournal interface {
	ListSince(ctx context.Context, marketID string, limit int) ([]domain.Trade, error)
}

// OrderHandler serves order, book, trade, and share endpoints.
type OrderHandler struct {
	exchange Exchange
	books    BookCache    // may be nil
	trades   TradeJournal // may be nil
	logger   *slog.Logger
}

// NewOrderHandler creates an OrderHandler. books and trades may be nil when
// no cache or journal is configured.
func NewOrderHandler(exchange Exchange, books BookCache, trades TradeJournal, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		exchange: exchange,
		books:    books,
		trades:   trades,
		logger:   logger,
	}
}

// placeOrderRequest is the JSON body for order placement. Price arrives in
// dollars and is converted to ticks at the boundary.
type placeOrderRequest struct {
	MarketID      string  `json:"market_id"`
	WalletAddress string  `json:"wallet_address"`
	Side          string  `json:"side"` // "YES" or "NO"
	Price         float64 `json:"price"`
	Quantity      int64   `json:"quantity"`
	IsSell        bool    `json:"is_sell"`
}

// placeOrderResponse wraps the placement result.
type placeOrderResponse struct {
	Order          domain.Order `json:"order"`
	TradesExecuted int          `json:"trades_executed"`
	Message        string       `json:"message"`
}

// PlaceOrder creates a limit order and reports how many trades it triggered.
// POST /orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MarketID == "" || req.WalletAddress == "" {
		writeError(w, http.StatusBadRequest, "market_id and wallet_address are required")
		return
	}

	var outcome domain.Outcome
	switch req.Side {
	case string(domain.OutcomeYes):
		outcome = domain.OutcomeYes
	case string(domain.OutcomeNo):
		outcome = domain.OutcomeNo
	default:
		writeError(w, http.StatusBadRequest, "side must be YES or NO")
		return
	}

	result, err := h.exchange.PlaceOrder(r.Context(), domain.PlaceOrderRequest{
		MarketID:   req.MarketID,
		Wallet:     req.WalletAddress,
		Outcome:    outcome,
		PriceTicks: dollarsToTicks(req.Price),
		Quantity:   req.Quantity,
		IsSell:     req.IsSell,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrInvalidPrice):
			writeError(w, http.StatusBadRequest, "price must be between $0.01 and $0.99")
		case errors.Is(err, domain.ErrInvalidQuantity):
			writeError(w, http.StatusBadRequest, "quantity must be positive")
		default:
			h.logger.ErrorContext(r.Context(), "handler: place order failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to place order")
		}
		return
	}

	writeJSON(w, http.StatusCreated, placeOrderResponse{
		Order:          result.Order,
		TradesExecuted: result.TradesExecuted,
		Message:        fmt.Sprintf("Order placed. %d trades executed.", result.TradesExecuted),
	})
}

// CancelOrder cancels an open order and reports the collateral refund.
// DELETE /orders/{id}?wallet_address=...
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	wallet := r.URL.Query().Get("wallet_address")
	if id == "" || wallet == "" {
		writeError(w, http.StatusBadRequest, "order id and wallet_address are required")
		return
	}

	result, err := h.exchange.CancelOrder(r.Context(), id, wallet)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusForbidden, "not authorized to cancel this order")
		case errors.Is(err, domain.ErrOrderNotOpen):
			writeError(w, http.StatusConflict, "order cannot be cancelled")
		default:
			h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to cancel order")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":        result.OrderID,
		"status":          "cancelled",
		"refund_lamports": result.RefundLamports,
	})
}

// ListOrders returns a wallet's orders, optionally restricted to a market.
// GET /orders?wallet=...&market_id=...
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wallet := q.Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter required")
		return
	}

	orders := h.exchange.UserOrders(wallet, q.Get("market_id"))
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrderBook returns the aggregated book for a market, preferring the
// cached snapshot when one is fresh.
// GET /orderbook/{market_id}
func (h *OrderHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "market_id")

	if h.books != nil {
		if snap, err := h.books.GetBookSnapshot(r.Context(), marketID); err == nil {
			writeJSON(w, http.StatusOK, snap)
			return
		}
		// Cache miss or cache outage: fall through to the engine.
	}

	snap, err := h.exchange.Snapshot(marketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: order book failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get order book")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetTrades returns recent trades for a market, newest first.
// GET /trades/{market_id}?limit=50
func (h *OrderHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "market_id")
	limit := queryInt(r, "limit", 50)

	trades := h.exchange.Trades(marketID, limit)
	if len(trades) == 0 && h.trades != nil {
		if journaled, err := h.trades.ListSince(r.Context(), marketID, limit); err == nil {
			trades = journaled
		}
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetShares returns a wallet's share balances on a market. Unknown pairs
// yield a zero-valued record, never a 404.
// GET /shares/{wallet}/{market_id}
func (h *OrderHandler) GetShares(w http.ResponseWriter, r *http.Request) {
	wallet := pathParam(r, "wallet")
	marketID := pathParam(r, "market_id")
	writeJSON(w, http.StatusOK, h.exchange.UserShares(wallet, marketID))
}
