// Package metrics defines the Prometheus metric collectors used across the
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	OutboxPublishedTotal *prometheus.CounterVec
	OutboxFailedTotal    *prometheus.CounterVec
	OutboxCycleSkips     prometheus.Counter
	OutboxExhausted      prometheus.Gauge
	OutboxBatchSize      prometheus.Histogram

	ConsumerEventsTotal *prometheus.CounterVec
	DeadLettersTotal    *prometheus.CounterVec
	IndexOpsTotal       *prometheus.CounterVec

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	AutocompleteTotal  *prometheus.CounterVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		OutboxPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_published_total",
				Help: "Outbox records successfully published, by event type.",
			},
			[]string{"event_type"},
		),
		OutboxFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_failed_total",
				Help: "Outbox publish failures (retry_count incremented), by event type.",
			},
			[]string{"event_type"},
		),
		OutboxCycleSkips: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outbox_cycle_skips_total",
				Help: "Dispatcher cycles skipped because the broker was unreachable.",
			},
		),
		OutboxExhausted: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outbox_exhausted_records",
				Help: "Outbox records that reached the retry cap and need manual intervention.",
			},
		),
		OutboxBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "outbox_batch_size",
				Help:    "Number of due records selected per dispatch cycle.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		ConsumerEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consumer_events_total",
				Help: "Consumed events by entity type and outcome (indexed, deleted, retried, dead_lettered, skipped).",
			},
			[]string{"entity", "outcome"},
		),
		DeadLettersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dead_letters_total",
				Help: "Messages routed to the dead-letter topic, by source topic.",
			},
			[]string{"topic"},
		),
		IndexOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_ops_total",
				Help: "Search engine operations by kind (upsert, delete) and status.",
			},
			[]string{"op", "status"},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Search queries by requesting role and result (ok, degraded, invalid).",
			},
			[]string{"role", "result"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of documents returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		AutocompleteTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autocomplete_requests_total",
				Help: "Autocomplete requests by result (ok, too_short, degraded).",
			},
			[]string{"result"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.OutboxPublishedTotal,
		m.OutboxFailedTotal,
		m.OutboxCycleSkips,
		m.OutboxExhausted,
		m.OutboxBatchSize,
		m.ConsumerEventsTotal,
		m.DeadLettersTotal,
		m.IndexOpsTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.AutocompleteTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
