package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/mememarket/exchange/internal/blob/s3"
	"github.com/mememarket/exchange/internal/cache/redis"
	"github.com/mememarket/exchange/internal/config"
	"github.com/mememarket/exchange/internal/connmgr"
	"github.com/mememarket/exchange/internal/domain"
	"github.com/mememarket/exchange/internal/engine"
	"github.com/mememarket/exchange/internal/market"
	"github.com/mememarket/exchange/internal/oracle"
	"github.com/mememarket/exchange/internal/server"
	"github.com/mememarket/exchange/internal/server/handler"
	"github.com/mememarket/exchange/internal/server/ws"
	"github.com/mememarket/exchange/internal/service"
	"github.com/mememarket/exchange/internal/store/postgres"
	"github.com/mememarket/exchange/internal/watch"
)

// Dependencies bundles everything the run loop needs. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Feed       *oracle.SolPriceFeed
	Registry   *market.Registry
	Engine     *engine.Engine
	Conns      *connmgr.Manager
	Dispatcher *service.Dispatcher
	Server     *server.Server

	// Optional collaborators; nil when the corresponding subsystem is
	// disabled or unreachable.
	Archiver *s3blob.Archiver
	Monitor  *watch.Monitor
}

// Wire constructs all concrete dependencies from the given configuration and
// returns them together with a cleanup function that should be called on
// shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- SOL price oracle ---
	deps.Feed = oracle.NewSolPriceFeed(oracle.Config{
		JupiterURL:   cfg.Oracle.JupiterURL,
		CoinGeckoURL: cfg.Oracle.CoinGeckoURL,
		BinanceURL:   cfg.Oracle.BinanceURL,
		CacheTTL:     cfg.Oracle.CacheTTL.Duration,
		HTTPTimeout:  cfg.Oracle.HTTPTimeout.Duration,
	}, logger)

	// --- Market registry ---
	deps.Registry = market.NewRegistry(deps.Feed, logger)

	// --- Redis quote cache (degrades to nil when unreachable) ---
	var quoteCache *redis.QuoteCache
	var kvStore *redis.KVStore
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			logger.WarnContext(ctx, "redis unavailable, running without cache",
				slog.String("addr", cfg.Redis.Addr),
				slog.String("error", err.Error()),
			)
		} else {
			closers = append(closers, func() { _ = redisClient.Close() })
			quoteCache = redis.NewQuoteCache(redisClient)
			kvStore = redis.NewKVStore(redisClient)
		}
	}

	// --- PostgreSQL journal ---
	var journal service.Journal
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		journal = service.Journal{
			Markets: postgres.NewMarketStore(pool),
			Orders:  postgres.NewOrderStore(pool),
			Trades:  postgres.NewTradeStore(pool),
		}
	}

	// --- Connection manager + dispatcher + matching engine ---
	deps.Conns = connmgr.New(connmgr.Config{
		BatchInterval: cfg.Feed.BatchInterval.Duration,
		BatchMaxSize:  cfg.Feed.BatchMaxSize,
		RateLimit:     cfg.Feed.RateLimit,
		RateWindow:    cfg.Feed.RateWindow.Duration,
		SweepInterval: cfg.Feed.SweepInterval.Duration,
		IdleTimeout:   cfg.Feed.IdleTimeout.Duration,
	}, logger)

	var cacheForDispatch domain.QuoteCache
	if quoteCache != nil {
		cacheForDispatch = quoteCache
		deps.Conns.SetConnCounter(quoteCache)
	}
	deps.Dispatcher = service.NewDispatcher(deps.Conns, cacheForDispatch, journal, deps.Registry, logger)
	deps.Engine = engine.New(deps.Registry, deps.Dispatcher, logger)
	deps.Dispatcher.BindBooks(deps.Engine)

	// --- S3 trade archiver ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(deps.Engine, s3Client, cfg.S3.ArchiveInterval.Duration, logger)
	}

	// --- Market-cap watcher ---
	if cfg.Watcher.Enabled {
		screener := watch.NewScreenerClient(cfg.Watcher.BaseURL, nil)
		deps.Monitor = watch.NewMonitor(screener, deps.Registry, cfg.Watcher.PollInterval.Duration, logger)
	}

	// --- HTTP + WebSocket server ---
	healthDeps := handler.HealthDeps{
		Markets: deps.Registry,
		Conns:   deps.Conns,
	}
	if kvStore != nil {
		healthDeps.Cache = kvStore
	}

	var books handler.BookCache
	var marketCache handler.MarketCache
	if quoteCache != nil {
		books = quoteCache
		marketCache = quoteCache
	}
	var tradeJournal handler.TradeJournal
	if journal.Trades != nil {
		tradeJournal = journal.Trades
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(healthDeps),
		Markets: handler.NewMarketHandler(deps.Registry, marketCache, seedsFromConfig(cfg.Seeds), logger),
		Orders:  handler.NewOrderHandler(deps.Engine, books, tradeJournal, logger),
		Prices:  handler.NewPriceHandler(deps.Feed),
		Stats:   handler.NewStatsHandler(deps.Conns),
	}
	endpoint := ws.NewEndpoint(deps.Conns, logger)
	deps.Server = server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, handlers, endpoint, logger)

	return deps, cleanup, nil
}

// seedsFromConfig converts configured seed markets into registry seeds.
func seedsFromConfig(seeds []config.SeedConfig) []market.Seed {
	out := make([]market.Seed, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, market.Seed{
			TokenSymbol:     s.TokenSymbol,
			TokenAddress:    s.TokenAddress,
			TargetMarketCap: s.TargetMarketCap,
		})
	}
	return out
}
