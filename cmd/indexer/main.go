package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jdelgadillo/marketplace-search/internal/indexer"
	"github.com/jdelgadillo/marketplace-search/pkg/config"
	"github.com/jdelgadillo/marketplace-search/pkg/elastic"
	"github.com/jdelgadillo/marketplace-search/pkg/kafka"
	"github.com/jdelgadillo/marketplace-search/pkg/logger"
	"github.com/jdelgadillo/marketplace-search/pkg/metrics"
	"github.com/jdelgadillo/marketplace-search/pkg/resilience"
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
	slog.Info("starting indexer service",
		"max_in_flight", cfg.Consumer.MaxInFlight,
		"max_redeliveries", cfg.Consumer.MaxRedeliveries,
	)

	engine, err := elastic.New(cfg.Elasticsearch)
	if err != nil {
		slog.Error("failed to create search engine client", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = resilience.Retry(ctx, "elasticsearch-connect", resilience.RetryConfig{}, func() error {
		return engine.Ping(ctx)
	})
	if err != nil {
		slog.Error("search engine unreachable", "error", err)
		os.Exit(1)
	}
	if err := engine.EnsureIndex(ctx); err != nil {
		slog.Error("failed to ensure index", "error", err)
		os.Exit(1)
	}

	err = resilience.Retry(ctx, "kafka-connect", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
	}, func() error {
		return kafka.Ping(ctx, cfg.Kafka.Brokers)
	})
	if err != nil {
		slog.Error("message broker unreachable", "error", err)
		os.Exit(1)
	}

	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	m := metrics.New()
	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	deadLetters := indexer.NewDeadLetterer(producer, cfg.Kafka.Topics.DeadLetter, m)
	handler := indexer.NewHandler(engine, producer, deadLetters, cfg.Consumer, m)

	topics := []string{
		cfg.Kafka.Topics.ListingEvents,
		cfg.Kafka.Topics.PurchaseEvents,
		cfg.Kafka.Topics.TransportEvents,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		consumer := kafka.NewConsumer(cfg.Kafka, topic, cfg.Consumer.MaxInFlight, handler.Handle)
		g.Go(func() error {
			return consumer.Start(gctx)
		})
	}

	slog.Info("indexer ready, consuming", "topics", topics, "group", cfg.Kafka.ConsumerGroup)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("consumer error", "error", err)
	}

	if stopMetrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := stopMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
	}
	slog.Info("indexer service stopped")
}
