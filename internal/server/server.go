// Package server wires the HTTP API and the WebSocket endpoint onto one
// listener. Routing uses Go 1.22 method patterns on net/http's ServeMux.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mememarket/exchange/internal/server/handler"
	"github.com/mememarket/exchange/internal/server/middleware"
	"github.com/mememarket/exchange/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Orders  *handler.OrderHandler
	Prices  *handler.PriceHandler
	Stats   *handler.StatsHandler
}

// Server is the HTTP + WebSocket API server for the exchange.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (logging, CORS) applied.
func NewServer(cfg Config, handlers Handlers, wsEndpoint *ws.Endpoint, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("POST /markets/initialize", handlers.Markets.InitializeMarkets)
	mux.HandleFunc("GET /markets/{id}", handlers.Markets.GetMarket)

	mux.HandleFunc("GET /orderbook/{market_id}", handlers.Orders.GetOrderBook)
	mux.HandleFunc("POST /orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("DELETE /orders/{id}", handlers.Orders.CancelOrder)
	mux.HandleFunc("GET /orders", handlers.Orders.ListOrders)
	mux.HandleFunc("GET /trades/{market_id}", handlers.Orders.GetTrades)
	mux.HandleFunc("GET /shares/{wallet}/{market_id}", handlers.Orders.GetShares)

	mux.HandleFunc("GET /sol-price", handlers.Prices.GetSolPrice)
	mux.HandleFunc("POST /sol-price/refresh", handlers.Prices.RefreshSolPrice)

	mux.HandleFunc("GET /ws/stats", handlers.Stats.GetStats)
	if wsEndpoint != nil {
		mux.HandleFunc("GET /ws", wsEndpoint.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
