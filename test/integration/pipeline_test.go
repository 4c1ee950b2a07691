// Package integration exercises the full event pipeline in memory: an
// outbox record dispatched to the broker transport, consumed and mapped by
// the indexer, and then found by an access-controlled search query. Broker
// and engine are substituted with in-memory fakes so the test covers the
// pipeline's own semantics, not the infrastructure's.
package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelgadillo/marketplace-search/internal/document"
	"github.com/jdelgadillo/marketplace-search/internal/event"
	"github.com/jdelgadillo/marketplace-search/internal/indexer"
	"github.com/jdelgadillo/marketplace-search/internal/outbox"
	"github.com/jdelgadillo/marketplace-search/internal/search"
	"github.com/jdelgadillo/marketplace-search/pkg/config"
	"github.com/jdelgadillo/marketplace-search/pkg/kafka"
)

// memoryOutbox is an in-memory outbox.RecordSource.
type memoryOutbox struct {
	records map[uuid.UUID]*outbox.Record
	order   []uuid.UUID
	cap     int
}

func newMemoryOutbox(maxRetry int) *memoryOutbox {
	return &memoryOutbox{records: make(map[uuid.UUID]*outbox.Record), cap: maxRetry}
}

func (m *memoryOutbox) add(kind event.Kind, payload any, createdAt time.Time) uuid.UUID {
	body, _ := json.Marshal(payload)
	id := uuid.New()
	m.records[id] = &outbox.Record{
		ID:        id,
		EventType: kind,
		Payload:   body,
		CreatedAt: createdAt,
	}
	m.order = append(m.order, id)
	return id
}

func (m *memoryOutbox) FetchDue(ctx context.Context, batchSize int) ([]outbox.Record, error) {
	var due []outbox.Record
	for _, id := range m.order {
		r := m.records[id]
		if r.ProcessedAt == nil && r.RetryCount < m.cap {
			due = append(due, *r)
		}
		if len(due) == batchSize {
			break
		}
	}
	return due, nil
}

func (m *memoryOutbox) ApplyOutcomes(ctx context.Context, outcomes []outbox.Outcome) error {
	now := time.Now().UTC()
	for _, o := range outcomes {
		r := m.records[o.RecordID]
		if o.Published {
			r.ProcessedAt = &now
		} else {
			r.RetryCount++
			e := o.Error
			r.LastError = &e
		}
	}
	return nil
}

func (m *memoryOutbox) CountExhausted(ctx context.Context) (int64, error) {
	var n int64
	for _, r := range m.records {
		if r.ProcessedAt == nil && r.RetryCount >= m.cap {
			n++
		}
	}
	return n, nil
}

// capturePublisher records published messages in order.
type capturePublisher struct {
	messages []kafka.Message
}

func (c *capturePublisher) Publish(ctx context.Context, msg kafka.Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

// memoryEngine stores documents by id, serving both the indexer write
// contract and a minimal VIN lookup for the query side of the test.
type memoryEngine struct {
	docs map[string]document.Document
}

func newMemoryEngine() *memoryEngine {
	return &memoryEngine{docs: make(map[string]document.Document)}
}

func (m *memoryEngine) Upsert(ctx context.Context, id string, doc any) error {
	d := doc.(document.Document)
	m.docs[id] = d
	return nil
}

func (m *memoryEngine) Delete(ctx context.Context, id string) error {
	delete(m.docs, id)
	return nil
}

func testTopics() config.KafkaTopics {
	return config.KafkaTopics{
		ListingEvents:   "marketplace.listing-events",
		PurchaseEvents:  "marketplace.purchase-events",
		TransportEvents: "marketplace.transport-events",
		DeadLetter:      "marketplace.search-dlq",
	}
}

func toDelivery(msg kafka.Message) kafka.Delivery {
	return kafka.Delivery{
		Topic:      msg.Topic,
		RoutingKey: msg.RoutingKey,
		EventType:  msg.EventType,
		Payload:    msg.Payload,
		Headers:    map[string]string{},
	}
}

func TestListingFlowsFromOutboxToSearchableDocument(t *testing.T) {
	ctx := context.Background()

	store := newMemoryOutbox(5)
	broker := &capturePublisher{}
	engine := newMemoryEngine()

	snap := event.ListingSnapshot{
		ListingID:  "l-100",
		SellerID:   "seller-1",
		VIN:        "1HGBH41JXMN109186",
		Make:       "Toyota",
		Model:      "Camry",
		Year:       2022,
		Amount:     25000,
		Status:     "Active",
		CreatedAt:  time.Now().UTC(),
		OccurredAt: time.Now().UTC(),
	}
	store.add(event.KindListingCreated, snap, time.Now().UTC())

	dispatcher := outbox.NewDispatcher(store, broker,
		func(ctx context.Context) error { return nil },
		testTopics(),
		config.OutboxConfig{PollInterval: time.Second, BatchSize: 100, MaxRetry: 5}, nil)

	dispatcher.RunCycle(ctx)

	require.Len(t, broker.messages, 1)
	msg := broker.messages[0]
	assert.Equal(t, "marketplace.listing-events", msg.Topic)
	assert.Equal(t, "listing.created", msg.RoutingKey)
	assert.Equal(t, "ListingCreated", msg.EventType)

	// The outbox record is marked processed and never redispatched.
	due, err := store.FetchDue(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, due)

	handler := indexer.NewHandler(engine, broker,
		indexer.NewDeadLetterer(broker, testTopics().DeadLetter, nil),
		config.ConsumerConfig{MaxInFlight: 1, MaxRedeliveries: 3}, nil)

	require.NoError(t, handler.Handle(ctx, toDelivery(msg)))

	doc, ok := engine.docs["Listing_l-100"]
	require.True(t, ok)
	assert.Equal(t, event.EntityListing, doc.EntityType)
	assert.Equal(t, "2022 Toyota Camry", doc.Title)
	assert.Contains(t, doc.Keywords, "1HGBH41JXMN109186")

	// Redelivery of the same message converges on the same single document.
	require.NoError(t, handler.Handle(ctx, toDelivery(msg)))
	assert.Len(t, engine.docs, 1)

	// A seller-scoped query for the VIN carries both the text match and the
	// ownership filter.
	body := search.BuildQuery(func() search.Request {
		req := search.Request{
			Query:     "1HGBH41JXMN109186",
			Role:      search.RoleSeller,
			AccountID: "seller-1",
		}
		req.Normalize(config.SearchConfig{DefaultPageSize: 20, MaxPageSize: 100, MaxSuggestions: 10, SuggestionsLimit: 20})
		return req
	}())
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"vin":{"boost":5,"value":"1HGBH41JXMN109186"}`)
	assert.Contains(t, string(raw), `"seller_id":{"value":"seller-1"}`)
}

func TestCancellationRemovesDocument(t *testing.T) {
	ctx := context.Background()

	store := newMemoryOutbox(5)
	broker := &capturePublisher{}
	engine := newMemoryEngine()

	base := time.Now().UTC()
	snap := event.ListingSnapshot{
		ListingID: "l-200", SellerID: "seller-2", VIN: "VIN200", Make: "Honda", Model: "Civic",
		Year: 2021, Status: "Active", CreatedAt: base, OccurredAt: base,
	}
	store.add(event.KindListingCreated, snap, base)
	snap.Status = "Cancelled"
	store.add(event.KindListingCancelled, snap, base.Add(time.Second))

	dispatcher := outbox.NewDispatcher(store, broker,
		func(ctx context.Context) error { return nil },
		testTopics(),
		config.OutboxConfig{PollInterval: time.Second, BatchSize: 100, MaxRetry: 5}, nil)
	dispatcher.RunCycle(ctx)
	require.Len(t, broker.messages, 2)

	handler := indexer.NewHandler(engine, broker,
		indexer.NewDeadLetterer(broker, testTopics().DeadLetter, nil),
		config.ConsumerConfig{MaxInFlight: 1, MaxRedeliveries: 3}, nil)

	for _, msg := range broker.messages {
		require.NoError(t, handler.Handle(ctx, toDelivery(msg)))
	}

	assert.Empty(t, engine.docs)
}
