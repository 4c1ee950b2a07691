// Package kafka provides the broker transport built on segmentio/kafka-go.
// The producer writes JSON event envelopes keyed by routing key, and the
// consumer runs a bounded group of workers that fetch, handle, and commit.
// Delivery is at-least-once, so downstream handlers must be idempotent.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jdelgadillo/marketplace-search/pkg/config"
)

// Header keys carried on every published message.
const (
	HeaderEventType       = "event-type"
	HeaderContentType     = "content-type"
	HeaderRedeliveryCount = "x-redelivery-count"
	HeaderDeadLetterTopic = "x-dead-letter-topic"
	HeaderDeadLetterError = "x-dead-letter-reason"
)

const contentTypeJSON = "application/json"

// Message is the unit handed to the producer: a destination topic, the
// routing key ("{entity}.{action}", used as the Kafka message key), the
// event-type tag, and a pre-serialised JSON payload.
type Message struct {
	Topic      string
	RoutingKey string
	EventType  string
	Payload    []byte
	Headers    map[string]string
}

// Producer publishes event envelopes to Kafka. A single Producer serves all
// topics; the destination is taken from each Message.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer for the configured brokers. RequiredAcks is
// "all" and writes are synchronous: the outbox dispatcher must not mark a
// record processed before the broker has the message.
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer"),
	}
}

// Publish writes a single message synchronously.
func (p *Producer) Publish(ctx context.Context, msg Message) error {
	km, err := toKafkaMessage(msg)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, km); err != nil {
		p.logger.Error("failed to publish message",
			"topic", msg.Topic,
			"routing_key", msg.RoutingKey,
			"error", err,
		)
		return fmt.Errorf("publishing to kafka topic %s: %w", msg.Topic, err)
	}
	p.logger.Debug("message published",
		"topic", msg.Topic,
		"routing_key", msg.RoutingKey,
		"payload_size", len(msg.Payload),
	)
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func toKafkaMessage(msg Message) (kafka.Message, error) {
	if msg.Topic == "" {
		return kafka.Message{}, fmt.Errorf("message for routing key %q has no topic", msg.RoutingKey)
	}
	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(msg.EventType)},
		{Key: HeaderContentType, Value: []byte(contentTypeJSON)},
	}
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.RoutingKey),
		Value:   msg.Payload,
		Headers: headers,
	}, nil
}

// Ping dials the first reachable broker and returns nil when the cluster
// answers. The dispatcher calls this at the top of every cycle: if the broker
// is down the whole cycle is skipped and no outbox record is mutated.
func Ping(ctx context.Context, brokers []string) error {
	var lastErr error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.Brokers()
		conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = net.ErrClosed
	}
	return fmt.Errorf("no reachable kafka broker in %v: %w", brokers, lastErr)
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
