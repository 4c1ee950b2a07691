package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jdelgadillo/marketplace-search/pkg/config"
	"github.com/jdelgadillo/marketplace-search/pkg/kafka"
	"github.com/jdelgadillo/marketplace-search/pkg/metrics"
)

// RecordSource is the store surface the dispatcher polls and mutates.
type RecordSource interface {
	FetchDue(ctx context.Context, batchSize int) ([]Record, error)
	ApplyOutcomes(ctx context.Context, outcomes []Outcome) error
	CountExhausted(ctx context.Context) (int64, error)
}

// Publisher sends one envelope to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// BrokerProbe reports whether the broker is reachable.
type BrokerProbe func(ctx context.Context) error

// Dispatcher polls the outbox on a fixed interval and relays due records to
// the broker. One instance per owning service; see Store for why.
type Dispatcher struct {
	store    RecordSource
	producer Publisher
	probe    BrokerProbe
	topics   config.KafkaTopics
	interval time.Duration
	batch    int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewDispatcher wires a Dispatcher. metrics may be nil in tests.
func NewDispatcher(
	store RecordSource,
	producer Publisher,
	probe BrokerProbe,
	topics config.KafkaTopics,
	cfg config.OutboxConfig,
	m *metrics.Metrics,
) *Dispatcher {
	return &Dispatcher{
		store:    store,
		producer: producer,
		probe:    probe,
		topics:   topics,
		interval: cfg.PollInterval,
		batch:    cfg.BatchSize,
		metrics:  m,
		logger:   slog.Default().With("component", "outbox-dispatcher"),
	}
}

// Start runs the polling loop until ctx is cancelled. The in-flight cycle is
// allowed to drain before returning.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", "interval", d.interval, "batch_size", d.batch)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			d.RunCycle(ctx)
		}
	}
}

// RunCycle executes one dispatch cycle. If the broker is unreachable the
// whole cycle is skipped and no record is mutated, so a transient outage
// never turns pending records into poison records.
func (d *Dispatcher) RunCycle(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := d.probe(probeCtx)
	cancel()
	if err != nil {
		d.logger.Warn("broker unreachable, skipping cycle", "error", err)
		if d.metrics != nil {
			d.metrics.OutboxCycleSkips.Inc()
		}
		return
	}

	records, err := d.store.FetchDue(ctx, d.batch)
	if err != nil {
		d.logger.Error("failed to fetch due records", "error", err)
		return
	}
	if d.metrics != nil {
		d.metrics.OutboxBatchSize.Observe(float64(len(records)))
	}
	if len(records) == 0 {
		d.reportExhausted(ctx)
		return
	}

	d.logger.Debug("dispatching batch", "count", len(records))

	outcomes := make([]Outcome, 0, len(records))
	for _, r := range records {
		outcomes = append(outcomes, d.publish(ctx, r))
	}

	if err := d.store.ApplyOutcomes(ctx, outcomes); err != nil {
		// Outcomes are lost; already-published records will be re-published
		// next cycle. At-least-once, consumers are idempotent.
		d.logger.Error("failed to commit cycle outcomes", "error", err)
		return
	}

	published := 0
	for _, o := range outcomes {
		if o.Published {
			published++
		}
	}
	d.logger.Info("dispatch cycle complete",
		"published", published,
		"failed", len(outcomes)-published,
	)
	d.reportExhausted(ctx)
}

func (d *Dispatcher) publish(ctx context.Context, r Record) Outcome {
	routingKey, err := r.EventType.RoutingKey()
	if err != nil {
		d.logger.Error("outbox record has unknown event type",
			"record_id", r.ID,
			"event_type", string(r.EventType),
		)
		return Outcome{RecordID: r.ID, Published: false, Error: err.Error()}
	}
	topic := d.topics.ForEntity(r.EventType.EntityTag())

	err = d.producer.Publish(ctx, kafka.Message{
		Topic:      topic,
		RoutingKey: routingKey,
		EventType:  string(r.EventType),
		Payload:    r.Payload,
	})
	if err != nil {
		d.logger.Warn("publish failed",
			"record_id", r.ID,
			"event_type", string(r.EventType),
			"retry_count", r.RetryCount,
			"error", err,
		)
		if d.metrics != nil {
			d.metrics.OutboxFailedTotal.WithLabelValues(string(r.EventType)).Inc()
		}
		return Outcome{RecordID: r.ID, Published: false, Error: err.Error()}
	}

	if d.metrics != nil {
		d.metrics.OutboxPublishedTotal.WithLabelValues(string(r.EventType)).Inc()
	}
	return Outcome{RecordID: r.ID, Published: true}
}

// reportExhausted surfaces records stuck at the retry cap. Nothing resurrects
// them automatically; the gauge plus warn log is the operational signal.
func (d *Dispatcher) reportExhausted(ctx context.Context) {
	count, err := d.store.CountExhausted(ctx)
	if err != nil {
		d.logger.Error("failed to count exhausted records", "error", err)
		return
	}
	if d.metrics != nil {
		d.metrics.OutboxExhausted.Set(float64(count))
	}
	if count > 0 {
		d.logger.Warn("outbox records exhausted retry budget, manual intervention required",
			"count", count,
		)
	}
}
