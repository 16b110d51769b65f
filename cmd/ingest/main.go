// The ingest service is the write-side HTTP boundary. It validates
// publication submissions and publishes them to the ingest topic for the
// indexer to consume.
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

	"pubfinder/internal/docstore"
	pgstore "pubfinder/internal/docstore/postgres"
	"pubfinder/internal/ingest"
	"pubfinder/pkg/config"
	"pubfinder/pkg/health"
	"pubfinder/pkg/kafka"
	"pubfinder/pkg/logger"
	"pubfinder/pkg/metrics"
	"pubfinder/pkg/middleware"
	"pubfinder/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("ingest exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("ingest")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.PublicationIngest)
	defer producer.Close()

	// Write-through to postgres is optional. Without it the indexer's own
	// upsert is the only store writer.
	var store docstore.Store
	var pgClient *postgres.Client
	if cfg.Postgres.Enabled {
		pgClient, err = postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pgClient.Close()
		store, err = pgstore.New(ctx, pgClient)
		if err != nil {
			return fmt.Errorf("initialising publication store: %w", err)
		}
	}

	m := metrics.New()
	svc := ingest.New(producer, store, m)

	checker := health.NewChecker()
	if pgClient != nil {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := pgClient.DB.PingContext(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/publications", svc.Submit)
	mux.HandleFunc("POST /api/publications/bulk", svc.SubmitBulk)
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
		log.Info("ingest service listening", "port", cfg.Server.Port, "topic", cfg.Kafka.Topics.PublicationIngest)
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
