// The indexer builds and maintains the inverted index. It consumes
// publication records from Kafka, keeps the index checkpointed to disk,
// and can bulk-build from a JSONL feed file with -feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pubfinder/internal/docstore"
	"pubfinder/internal/docstore/memory"
	pgstore "pubfinder/internal/docstore/postgres"
	"pubfinder/internal/indexer"
	"pubfinder/internal/indexer/consumer"
	"pubfinder/pkg/config"
	"pubfinder/pkg/kafka"
	"pubfinder/pkg/logger"
	"pubfinder/pkg/metrics"
	"pubfinder/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	feedPath := flag.String("feed", "", "JSONL feed file for a one-shot bulk build")
	rebuild := flag.Bool("rebuild", false, "rebuild the index from the store and exit")
	flag.Parse()

	if err := run(*configPath, *feedPath, *rebuild); err != nil {
		slog.Error("indexer exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath, feedPath string, rebuild bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("indexer")

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
		return bulkBuild(ctx, engine, feedPath, log)
	}
	if rebuild {
		log.Info("rebuilding index from store")
		if err := engine.Rebuild(ctx); err != nil {
			return fmt.Errorf("rebuilding index: %w", err)
		}
		stats := engine.Stats(ctx)
		log.Info("rebuild complete", "documents", stats.Docs)
		return nil
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	engine.StartCheckpointLoop(ctx)

	kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.PublicationIngest, consumer.HandleRecord(engine))
	indexConsumer := consumer.New(kafkaConsumer)

	log.Info("indexer started",
		"topic", cfg.Kafka.Topics.PublicationIngest,
		"data_dir", cfg.Indexer.DataDir,
		"checkpoint_interval", cfg.Indexer.CheckpointInterval,
	)

	err = indexConsumer.Start(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer stopped: %w", err)
	}

	if err := engine.Close(); err != nil {
		log.Error("final checkpoint failed", "error", err)
	}

	if shutdownMetrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown failed", "error", err)
		}
	}
	log.Info("indexer stopped")
	return nil
}

// bulkBuild ingests a JSONL feed file and writes a checkpoint. Used for
// initial index construction from a crawler export.
func bulkBuild(ctx context.Context, engine *indexer.Engine, path string, log *slog.Logger) error {
	it, err := docstore.OpenJSONL(path)
	if err != nil {
		return fmt.Errorf("opening feed: %w", err)
	}
	defer it.Close()

	log.Info("bulk build started", "feed", path)
	ingested, err := engine.IngestBatch(ctx, it)
	if err != nil {
		return fmt.Errorf("bulk ingest: %w", err)
	}
	if err := engine.Checkpoint(); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	log.Info("bulk build complete", "ingested", ingested, "skipped_lines", it.Skipped())
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
