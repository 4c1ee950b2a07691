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

	"github.com/jdelgadillo/marketplace-search/internal/search"
	"github.com/jdelgadillo/marketplace-search/pkg/config"
	"github.com/jdelgadillo/marketplace-search/pkg/elastic"
	"github.com/jdelgadillo/marketplace-search/pkg/health"
	"github.com/jdelgadillo/marketplace-search/pkg/logger"
	"github.com/jdelgadillo/marketplace-search/pkg/metrics"
	"github.com/jdelgadillo/marketplace-search/pkg/middleware"
	"github.com/jdelgadillo/marketplace-search/pkg/redis"
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
	slog.Info("starting search service", "port", cfg.Server.Port)

	engine, err := elastic.New(cfg.Elasticsearch)
	if err != nil {
		slog.Error("failed to create search engine client", "error", err)
		os.Exit(1)
	}

	cache, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, serving without query cache", "error", err)
		cache = nil
	} else {
		defer cache.Close()
	}

	m := metrics.New()
	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	service := search.NewService(engine, cache, cfg.Redis.CacheTTL, cfg.Search, m)
	handler := search.NewHandler(service)

	checker := health.NewChecker()
	checker.Register("elasticsearch", health.PingCheck(engine.Ping))
	if cache != nil {
		checker.Register("redis", health.PingCheck(cache.Ping))
	}

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

	go func() {
		slog.Info("search API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down search service")

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
	slog.Info("search service stopped")
}
