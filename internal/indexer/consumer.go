package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jdelgadillo/marketplace-search/internal/document"
	"github.com/jdelgadillo/marketplace-search/internal/event"
	"github.com/jdelgadillo/marketplace-search/pkg/config"
	"github.com/jdelgadillo/marketplace-search/pkg/kafka"
	"github.com/jdelgadillo/marketplace-search/pkg/metrics"
)

// SearchEngine is the write contract against the search index.
type SearchEngine interface {
	Upsert(ctx context.Context, id string, doc any) error
	Delete(ctx context.Context, id string) error
}

// Handler processes deliveries from one entity topic. A transient engine
// failure republishes the message with an incremented redelivery counter;
// once the counter reaches the configured cap, or the payload can never be
// decoded, the message is parked on the dead-letter topic instead. Either
// way the original offset is committed, so one bad message cannot wedge a
// partition.
type Handler struct {
	engine      SearchEngine
	producer    Publisher
	deadLetters *DeadLetterer
	cfg         config.ConsumerConfig
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewHandler wires a Handler for one entity topic.
func NewHandler(engine SearchEngine, producer Publisher, deadLetters *DeadLetterer, cfg config.ConsumerConfig, m *metrics.Metrics) *Handler {
	return &Handler{
		engine:      engine,
		producer:    producer,
		deadLetters: deadLetters,
		cfg:         cfg,
		metrics:     m,
		logger:      slog.Default().With("component", "indexer"),
		now:         time.Now,
	}
}

// Handle is the kafka.MessageHandler for entity topics.
func (h *Handler) Handle(ctx context.Context, d kafka.Delivery) error {
	kind := event.Kind(d.EventType)

	ev, err := event.Decode(kind, d.Payload)
	if err != nil {
		// Undecodable payloads never succeed on redelivery.
		entity := kind.EntityTag()
		if entity == "" {
			entity = "unknown"
		}
		h.count(entity, "dead_lettered")
		return h.deadLetters.Park(ctx, d, err)
	}

	if err := h.apply(ctx, ev); err != nil {
		return h.retryOrPark(ctx, d, ev, err)
	}

	outcome := "indexed"
	if _, cancelled := ev.(event.ListingCancelled); cancelled {
		outcome = "deleted"
	}
	h.count(ev.Entity().Tag(), outcome)
	return nil
}

// apply performs the single engine operation an event calls for. A listing
// cancellation removes the document; every other event maps and upserts.
func (h *Handler) apply(ctx context.Context, ev event.Event) error {
	if cancelled, ok := ev.(event.ListingCancelled); ok {
		id := document.ID(event.EntityListing, cancelled.EntityID())
		if err := h.engine.Delete(ctx, id); err != nil {
			h.indexOp("delete", "error")
			return fmt.Errorf("deleting document %s: %w", id, err)
		}
		h.indexOp("delete", "ok")
		h.logger.Info("document deleted", "doc_id", id)
		return nil
	}

	doc, err := MapDocument(ev, h.now().UTC())
	if err != nil {
		return err
	}
	if err := h.engine.Upsert(ctx, doc.ID(), doc); err != nil {
		h.indexOp("upsert", "error")
		return fmt.Errorf("indexing document %s: %w", doc.ID(), err)
	}
	h.indexOp("upsert", "ok")
	h.logger.Info("document indexed",
		"doc_id", doc.ID(),
		"entity", string(doc.EntityType),
		"action", string(ev.Action()),
	)
	return nil
}

// retryOrPark decides what to do with a delivery whose engine call failed.
// Below the redelivery cap the message goes back on its own topic with the
// counter bumped; at the cap it is parked. The returned error is only
// non-nil when the republish or park itself failed, in which case the
// offset stays uncommitted and the worker retries the delivery in place.
func (h *Handler) retryOrPark(ctx context.Context, d kafka.Delivery, ev event.Event, cause error) error {
	entity := ev.Entity().Tag()
	redeliveries := redeliveryCount(d.Headers)

	if redeliveries >= h.cfg.MaxRedeliveries {
		h.logger.Error("redelivery budget exhausted",
			"event_type", d.EventType,
			"entity_id", ev.EntityID(),
			"redeliveries", redeliveries,
			"error", cause,
		)
		h.count(entity, "dead_lettered")
		return h.deadLetters.Park(ctx, d, fmt.Errorf("after %d redeliveries: %w", redeliveries, cause))
	}

	if h.cfg.RetryBackoff > 0 {
		select {
		case <-time.After(h.cfg.RetryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	headers := make(map[string]string, len(d.Headers)+1)
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[kafka.HeaderRedeliveryCount] = strconv.Itoa(redeliveries + 1)

	msg := kafka.Message{
		Topic:      d.Topic,
		RoutingKey: d.RoutingKey,
		EventType:  d.EventType,
		Payload:    d.Payload,
		Headers:    headers,
	}
	if err := h.producer.Publish(ctx, msg); err != nil {
		return errors.Join(cause, fmt.Errorf("requeueing for redelivery: %w", err))
	}

	h.logger.Warn("event requeued for redelivery",
		"event_type", d.EventType,
		"entity_id", ev.EntityID(),
		"redelivery", redeliveries+1,
		"error", cause,
	)
	h.count(entity, "retried")
	return nil
}

func (h *Handler) count(entity, outcome string) {
	if h.metrics != nil {
		h.metrics.ConsumerEventsTotal.WithLabelValues(entity, outcome).Inc()
	}
}

func (h *Handler) indexOp(op, status string) {
	if h.metrics != nil {
		h.metrics.IndexOpsTotal.WithLabelValues(op, status).Inc()
	}
}

func redeliveryCount(headers map[string]string) int {
	v, ok := headers[kafka.HeaderRedeliveryCount]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
