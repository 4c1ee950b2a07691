package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelgadillo/marketplace-search/internal/event"
	"github.com/jdelgadillo/marketplace-search/pkg/config"
	"github.com/jdelgadillo/marketplace-search/pkg/kafka"
)

type fakeEngine struct {
	docs      map[string]any
	deleted   []string
	failUntil int
	calls     int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{docs: make(map[string]any)}
}

func (f *fakeEngine) Upsert(ctx context.Context, id string, doc any) error {
	f.calls++
	if f.calls <= f.failUntil {
		return errors.New("engine unavailable")
	}
	f.docs[id] = doc
	return nil
}

func (f *fakeEngine) Delete(ctx context.Context, id string) error {
	f.calls++
	if f.calls <= f.failUntil {
		return errors.New("engine unavailable")
	}
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeProducer struct {
	published []kafka.Message
	err       error
}

func (f *fakeProducer) Publish(ctx context.Context, msg kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func newTestHandler(engine *fakeEngine, producer *fakeProducer) *Handler {
	dlq := NewDeadLetterer(producer, "marketplace.search-dlq", nil)
	return NewHandler(engine, producer, dlq, config.ConsumerConfig{
		MaxInFlight:     1,
		MaxRedeliveries: 3,
		RetryBackoff:    0,
	}, nil)
}

func listingDelivery(redeliveries int) kafka.Delivery {
	headers := map[string]string{}
	if redeliveries > 0 {
		headers[kafka.HeaderRedeliveryCount] = fmt.Sprintf("%d", redeliveries)
	}
	return kafka.Delivery{
		Topic:      "marketplace.listing-events",
		RoutingKey: "listing.created",
		EventType:  string(event.KindListingCreated),
		Payload: []byte(`{
			"listing_id": "l-1",
			"seller_id": "s-1",
			"vin": "1HGBH41JXMN109186",
			"make": "Toyota",
			"model": "Camry",
			"year": 2022,
			"amount": 25000,
			"status": "Active",
			"created_at": "2026-01-02T03:04:05Z",
			"occurred_at": "2026-01-02T03:04:05Z"
		}`),
		Headers: headers,
	}
}

func TestHandleUpsertsListing(t *testing.T) {
	engine := newFakeEngine()
	h := newTestHandler(engine, &fakeProducer{})

	err := h.Handle(context.Background(), listingDelivery(0))
	require.NoError(t, err)

	require.Contains(t, engine.docs, "Listing_l-1")
}

func TestHandleIsIdempotent(t *testing.T) {
	engine := newFakeEngine()
	h := newTestHandler(engine, &fakeProducer{})

	d := listingDelivery(0)
	require.NoError(t, h.Handle(context.Background(), d))
	require.NoError(t, h.Handle(context.Background(), d))

	assert.Len(t, engine.docs, 1)
}

func TestHandleDeletesOnCancellation(t *testing.T) {
	engine := newFakeEngine()
	h := newTestHandler(engine, &fakeProducer{})

	require.NoError(t, h.Handle(context.Background(), listingDelivery(0)))

	cancel := kafka.Delivery{
		Topic:      "marketplace.listing-events",
		RoutingKey: "listing.cancelled",
		EventType:  string(event.KindListingCancelled),
		Payload:    []byte(`{"listing_id":"l-1","status":"Cancelled","created_at":"2026-01-02T03:04:05Z","occurred_at":"2026-01-03T00:00:00Z"}`),
		Headers:    map[string]string{},
	}
	require.NoError(t, h.Handle(context.Background(), cancel))

	assert.NotContains(t, engine.docs, "Listing_l-1")
	assert.Equal(t, []string{"Listing_l-1"}, engine.deleted)
}

func TestHandleRequeuesOnEngineFailure(t *testing.T) {
	engine := newFakeEngine()
	engine.failUntil = 1
	producer := &fakeProducer{}
	h := newTestHandler(engine, producer)

	err := h.Handle(context.Background(), listingDelivery(0))
	require.NoError(t, err)

	require.Len(t, producer.published, 1)
	msg := producer.published[0]
	assert.Equal(t, "marketplace.listing-events", msg.Topic)
	assert.Equal(t, "1", msg.Headers[kafka.HeaderRedeliveryCount])
}

func TestHandleDeadLettersAtRedeliveryCap(t *testing.T) {
	engine := newFakeEngine()
	engine.failUntil = 1
	producer := &fakeProducer{}
	h := newTestHandler(engine, producer)

	err := h.Handle(context.Background(), listingDelivery(3))
	require.NoError(t, err)

	require.Len(t, producer.published, 1)
	msg := producer.published[0]
	assert.Equal(t, "marketplace.search-dlq", msg.Topic)
	assert.Equal(t, "marketplace.listing-events", msg.Headers[kafka.HeaderDeadLetterTopic])
	assert.NotEmpty(t, msg.Headers[kafka.HeaderDeadLetterError])
}

func TestHandleDeadLettersUndecodablePayload(t *testing.T) {
	engine := newFakeEngine()
	producer := &fakeProducer{}
	h := newTestHandler(engine, producer)

	d := kafka.Delivery{
		Topic:     "marketplace.listing-events",
		EventType: "ListingExploded",
		Payload:   []byte(`{}`),
		Headers:   map[string]string{},
	}
	err := h.Handle(context.Background(), d)
	require.NoError(t, err)

	require.Len(t, producer.published, 1)
	assert.Equal(t, "marketplace.search-dlq", producer.published[0].Topic)
	assert.Empty(t, engine.docs)
}

func TestHandleReturnsErrorWhenParkFails(t *testing.T) {
	engine := newFakeEngine()
	engine.failUntil = 1
	producer := &fakeProducer{err: errors.New("broker down")}
	h := newTestHandler(engine, producer)

	err := h.Handle(context.Background(), listingDelivery(3))
	assert.Error(t, err)
}

func TestRedeliveryCount(t *testing.T) {
	assert.Equal(t, 0, redeliveryCount(nil))
	assert.Equal(t, 0, redeliveryCount(map[string]string{}))
	assert.Equal(t, 2, redeliveryCount(map[string]string{kafka.HeaderRedeliveryCount: "2"}))
	assert.Equal(t, 0, redeliveryCount(map[string]string{kafka.HeaderRedeliveryCount: "nope"}))
	assert.Equal(t, 0, redeliveryCount(map[string]string{kafka.HeaderRedeliveryCount: "-4"}))
}

func TestHandleRespectsContextDuringBackoff(t *testing.T) {
	engine := newFakeEngine()
	engine.failUntil = 1
	producer := &fakeProducer{}
	dlq := NewDeadLetterer(producer, "marketplace.search-dlq", nil)
	h := NewHandler(engine, producer, dlq, config.ConsumerConfig{
		MaxRedeliveries: 3,
		RetryBackoff:    time.Minute,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.Handle(ctx, listingDelivery(0))
	assert.ErrorIs(t, err, context.Canceled)
}
