// The searcher serves the query API. It loads the committed index segment
// (or bulk-builds from a JSONL feed with -feed), answers /api/search with
// ranked results, and caches hot queries in Redis when available.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pubfinder/internal/docstore"
	"pubfinder/internal/docstore/memory"
	pgstore "pubfinder/internal/docstore/postgres"
	"pubfinder/internal/indexer"
	"pubfinder/internal/searcher/cache"
	"pubfinder/internal/searcher/events"
	"pubfinder/internal/searcher/executor"
	"pubfinder/internal/searcher/handler"
	"pubfinder/pkg/config"
	"pubfinder/pkg/health"
	"pubfinder/pkg/kafka"
	"pubfinder/pkg/logger"
	"pubfinder/pkg/metrics"
	"pubfinder/pkg/middleware"
	"pubfinder/pkg/postgres"
	"pubfinder/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	feedPath := flag.String("feed", "", "JSONL feed file to build the index from at startup")
	flag.Parse()

	if err := run(*configPath, *feedPath); err != nil {
		slog.Error("searcher exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath, feedPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("searcher")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	engine, err := indexer.NewEngine(store, cfg.Indexer)
	if err != nil {
		return fmt.Errorf("initialising engine: %w", err)
	}

	m := metrics.New()
	engine.SetMetrics(m)

	if feedPath != "" {
		if err := feedIndex(ctx, engine, feedPath, log); err != nil {
			return err
		}
	}

	// Redis is optional: the searcher degrades to uncached queries when it
	// is unreachable.
	var queryCache *cache.QueryCache
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, query caching disabled", "addr", cfg.Redis.Addr, "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis)
	}

	var collector *events.Collector
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topics.SearchEvents != "" {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector = events.NewCollector(producer, 50, 10*time.Second)
		collector.Start(ctx)
		defer collector.Close()
	}

	exec := executor.New(engine, store, cfg.Search)
	h := handler.New(exec, engine, queryCache, collector, m, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if !engine.Ready() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index has not been built"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", h.Search)
	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("GET /api/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := middleware.RequestID(
		middleware.Timeout(cfg.Server.WriteTimeout)(
			middleware.Metrics(m)(
				middleware.CORS(middleware.DefaultCORSConfig())(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("searcher listening", "port", cfg.Server.Port, "ready", engine.Ready())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown failed", "error", err)
	}
	if shutdownMetrics != nil {
		if err := shutdownMetrics(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown failed", "error", err)
		}
	}
	return nil
}

// feedIndex bulk-builds the index from a JSONL export so a searcher can
// come up self-contained without a running indexer.
func feedIndex(ctx context.Context, engine *indexer.Engine, path string, log *slog.Logger) error {
	it, err := docstore.OpenJSONL(path)
	if err != nil {
		return fmt.Errorf("opening feed: %w", err)
	}
	defer it.Close()

	ingested, err := engine.IngestBatch(ctx, it)
	if err != nil {
		return fmt.Errorf("feeding index: %w", err)
	}
	if err := engine.Checkpoint(); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	log.Info("index built from feed", "feed", path, "ingested", ingested, "skipped_lines", it.Skipped())
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, func(), error) {
	if !cfg.Postgres.Enabled {
		return memory.New(), func() {}, nil
	}
	client, err := postgres.New(cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	store, err := pgstore.New(ctx, client)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("initialising publication store: %w", err)
	}
	return store, func() { client.Close() }, nil
}
