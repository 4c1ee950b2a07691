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

	"github.com/jdelgadillo/marketplace-search/internal/marketplace"
	"github.com/jdelgadillo/marketplace-search/internal/outbox"
	"github.com/jdelgadillo/marketplace-search/pkg/config"
	"github.com/jdelgadillo/marketplace-search/pkg/health"
	"github.com/jdelgadillo/marketplace-search/pkg/kafka"
	"github.com/jdelgadillo/marketplace-search/pkg/logger"
	"github.com/jdelgadillo/marketplace-search/pkg/metrics"
	"github.com/jdelgadillo/marketplace-search/pkg/middleware"
	"github.com/jdelgadillo/marketplace-search/pkg/postgres"
)

// The marketplace binary serves the write-side API. With outbox.embedDispatcher
// set it also runs the outbox dispatcher in-process; otherwise the standalone
// dispatcher binary owns the table. Exactly one of the two may run the loop.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting marketplace service", "port", cfg.Server.Port)

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

	service := marketplace.NewService(db)
	handler := marketplace.NewHandler(service)

	probe := func(ctx context.Context) error {
		return kafka.Ping(ctx, cfg.Kafka.Brokers)
	}

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(func(ctx context.Context) error {
		return db.DB.PingContext(ctx)
	}))
	checker.Register("kafka", health.PingCheck(probe))

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("GET /health", checker.LiveHandler())
	mux.HandleFunc("GET /ready", checker.ReadyHandler())

	var root http.Handler = mux
	root = middleware.Timeout(cfg.Server.RequestTimeout)(root)
	root = middleware.Metrics(m)(root)
	root = middleware.RequestID(root)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Outbox.EmbedDispatcher {
		slog.Info("running outbox dispatcher in-process")
		store := outbox.NewStore(db.DB, cfg.Outbox.MaxRetry)
		dispatcher := outbox.NewDispatcher(store, producer, probe, cfg.Kafka.Topics, cfg.Outbox, m)
		go dispatcher.Start(ctx)
	}

	go func() {
		slog.Info("marketplace API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down marketplace service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	if stopMetrics != nil {
		if err := stopMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
	}
	slog.Info("marketplace service stopped")
}
