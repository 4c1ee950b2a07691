package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jdelgadillo/marketplace-search/pkg/kafka"
	"github.com/jdelgadillo/marketplace-search/pkg/metrics"
)

// Publisher is the slice of the broker producer the indexer needs.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// DeadLetterer parks messages that exhausted their redelivery budget, or that
// can never be processed, on the dead-letter topic. The original payload and
// headers are preserved so a parked message can be replayed once the cause is
// fixed.
type DeadLetterer struct {
	producer Publisher
	topic    string
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewDeadLetterer creates a DeadLetterer writing to the given topic.
func NewDeadLetterer(producer Publisher, topic string, m *metrics.Metrics) *DeadLetterer {
	return &DeadLetterer{
		producer: producer,
		topic:    topic,
		metrics:  m,
		logger:   slog.Default().With("component", "dead-letterer"),
	}
}

// Park publishes the delivery to the dead-letter topic, annotated with its
// source topic and the reason it could not be processed.
func (d *DeadLetterer) Park(ctx context.Context, delivery kafka.Delivery, cause error) error {
	headers := make(map[string]string, len(delivery.Headers)+2)
	for k, v := range delivery.Headers {
		headers[k] = v
	}
	headers[kafka.HeaderDeadLetterTopic] = delivery.Topic
	headers[kafka.HeaderDeadLetterError] = cause.Error()

	msg := kafka.Message{
		Topic:      d.topic,
		RoutingKey: delivery.RoutingKey,
		EventType:  delivery.EventType,
		Payload:    delivery.Payload,
		Headers:    headers,
	}
	if err := d.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("parking message on dead-letter topic: %w", err)
	}

	d.logger.Warn("message dead-lettered",
		"source_topic", delivery.Topic,
		"event_type", delivery.EventType,
		"partition", delivery.Partition,
		"offset", delivery.Offset,
		"reason", cause,
	)
	if d.metrics != nil {
		d.metrics.DeadLettersTotal.WithLabelValues(delivery.Topic).Inc()
	}
	return nil
}
