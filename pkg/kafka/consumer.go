package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/jdelgadillo/marketplace-search/pkg/config"
)

// Delivery is a single received message with its transport metadata.
type Delivery struct {
	Topic      string
	RoutingKey string
	EventType  string
	Payload    []byte
	Headers    map[string]string
	Partition  int
	Offset     int64
}

// MessageHandler processes one delivery. Returning nil acknowledges the
// message (its offset is committed); returning an error makes the worker
// retry the same delivery in place, so the offset never advances past an
// unacknowledged message.
type MessageHandler func(ctx context.Context, d Delivery) error

// Consumer reads a topic with a bounded pool of workers. Each worker owns its
// own group reader and runs a sequential fetch → handle → commit loop, so the
// number of in-flight handler invocations never exceeds maxInFlight and a
// message is only committed after its handler succeeded.
type Consumer struct {
	cfg         config.KafkaConfig
	topic       string
	maxInFlight int
	handler     MessageHandler
	retryDelay  time.Duration
	logger      *slog.Logger
}

// NewConsumer creates a Consumer for the given topic and handler.
func NewConsumer(cfg config.KafkaConfig, topic string, maxInFlight int, handler MessageHandler) *Consumer {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Consumer{
		cfg:         cfg,
		topic:       topic,
		maxInFlight: maxInFlight,
		handler:     handler,
		retryDelay:  2 * time.Second,
		logger:      slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start runs the worker pool until ctx is cancelled. It blocks and returns
// the first non-cancellation error encountered by a worker.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer starting", "workers", c.maxInFlight, "group", c.cfg.ConsumerGroup)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.maxInFlight; i++ {
		worker := i
		g.Go(func() error {
			return c.runWorker(ctx, worker)
		})
	}
	return g.Wait()
}

func (c *Consumer) runWorker(ctx context.Context, worker int) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		Topic:       c.topic,
		GroupID:     c.cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	log := c.logger.With("worker", worker)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping", "reason", ctx.Err())
				return nil
			}
			log.Error("failed to fetch message", "error", err)
			continue
		}

		d := toDelivery(msg)
		log.Debug("message received",
			"partition", d.Partition,
			"offset", d.Offset,
			"routing_key", d.RoutingKey,
		)

		if err := c.handleUntilDone(ctx, log, d); err != nil {
			log.Info("worker stopping", "reason", err)
			return nil
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("failed to commit message",
				"partition", d.Partition,
				"offset", d.Offset,
				"error", err,
			)
		}
	}
}

// handleUntilDone invokes the handler for one delivery until it succeeds or
// ctx is cancelled. A failing delivery is retried in place rather than
// skipped: fetching onward and committing a later offset would cover the
// failed message and silently drop it. Terminal failures are the handler's
// responsibility (dead-letter, then return nil).
func (c *Consumer) handleUntilDone(ctx context.Context, log *slog.Logger, d Delivery) error {
	for {
		err := c.handler(ctx, d)
		if err == nil {
			return nil
		}
		log.Error("failed to process message, retrying in place",
			"partition", d.Partition,
			"offset", d.Offset,
			"routing_key", d.RoutingKey,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

func toDelivery(msg kafka.Message) Delivery {
	d := Delivery{
		Topic:      msg.Topic,
		RoutingKey: string(msg.Key),
		Payload:    msg.Value,
		Headers:    make(map[string]string, len(msg.Headers)),
		Partition:  msg.Partition,
		Offset:     msg.Offset,
	}
	for _, h := range msg.Headers {
		d.Headers[h.Key] = string(h.Value)
		if h.Key == HeaderEventType {
			d.EventType = string(h.Value)
		}
	}
	return d
}
