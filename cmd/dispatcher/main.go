package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jdelgadillo/marketplace-search/internal/outbox"
	"github.com/jdelgadillo/marketplace-search/pkg/config"
	"github.com/jdelgadillo/marketplace-search/pkg/kafka"
	"github.com/jdelgadillo/marketplace-search/pkg/logger"
	"github.com/jdelgadillo/marketplace-search/pkg/metrics"
	"github.com/jdelgadillo/marketplace-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting outbox dispatcher",
		"poll_interval", cfg.Outbox.PollInterval,
		"batch_size", cfg.Outbox.BatchSize,
	)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	m := metrics.New()
	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	store := outbox.NewStore(db.DB, cfg.Outbox.MaxRetry)
	probe := func(ctx context.Context) error {
		return kafka.Ping(ctx, cfg.Kafka.Brokers)
	}
	dispatcher := outbox.NewDispatcher(store, producer, probe, cfg.Kafka.Topics, cfg.Outbox, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher.Start(ctx)

	if stopMetrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := stopMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
	}
	slog.Info("outbox dispatcher stopped")
}
