// Package app provides the top-level application lifecycle for the exchange.
// It wires together the oracle, registry, matching engine, connection
// manager, dispatcher, optional cache/journal/archiver/watcher, and the HTTP
// server, then runs everything under a single errgroup until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mememarket/exchange/internal/config"
)

// shutdownGrace bounds how long in-flight requests get to finish on shutdown.
const shutdownGrace = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the server
// and background loops, and blocks until the context is cancelled or a loop
// fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting exchange",
		slog.Int("port", a.cfg.Server.Port),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Seed the registry so the exchange comes up with tradable markets.
	if len(a.cfg.Seeds) > 0 {
		created := deps.Registry.Bootstrap(ctx, seedsFromConfig(a.cfg.Seeds))
		a.logger.InfoContext(ctx, "seed markets created", slog.Int("count", len(created)))
	}

	g, ctx := errgroup.WithContext(ctx)

	// HTTP + WebSocket server. Shut it down when the group context ends so
	// Start can return.
	g.Go(func() error {
		return deps.Server.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return deps.Server.Shutdown(shutdownCtx)
	})

	// Event fan-out and WebSocket maintenance loops.
	g.Go(func() error {
		return deps.Dispatcher.Run(ctx)
	})
	g.Go(func() error {
		return deps.Conns.RunBatchLoop(ctx)
	})
	g.Go(func() error {
		return deps.Conns.RunSweepLoop(ctx)
	})

	// SOL price refresh.
	g.Go(func() error {
		return deps.Feed.RunRefresh(ctx, a.cfg.Oracle.RefreshInterval.Duration)
	})

	// Optional subsystems.
	if deps.Monitor != nil {
		g.Go(func() error {
			return deps.Monitor.Run(ctx)
		})
	}
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down exchange")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
