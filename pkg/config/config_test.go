package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 5, cfg.Outbox.MaxRetry)
	assert.False(t, cfg.Outbox.EmbedDispatcher)
	assert.Equal(t, 8, cfg.Consumer.MaxInFlight)
	assert.Equal(t, 5, cfg.Consumer.MaxRedeliveries)
	assert.Equal(t, "marketplace_search", cfg.Elasticsearch.Index)
	assert.Equal(t, "marketplace.search-dlq", cfg.Kafka.Topics.DeadLetter)
	assert.Equal(t, 20, cfg.Search.DefaultPageSize)
	assert.Equal(t, 100, cfg.Search.MaxPageSize)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
outbox:
  pollInterval: 1s
  batchSize: 10
  maxRetry: 3
kafka:
  topics:
    listingEvents: custom.listings
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 10, cfg.Outbox.BatchSize)
	assert.Equal(t, 3, cfg.Outbox.MaxRetry)
	assert.Equal(t, "custom.listings", cfg.Kafka.Topics.ListingEvents)
	// Untouched sections keep their defaults.
	assert.Equal(t, "marketplace.search-dlq", cfg.Kafka.Topics.DeadLetter)
	assert.Equal(t, 8, cfg.Consumer.MaxInFlight)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MS_SERVER_PORT", "7777")
	t.Setenv("MS_POSTGRES_HOST", "db.internal")
	t.Setenv("MS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("MS_OUTBOX_EMBED_DISPATCHER", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Outbox.EmbedDispatcher)
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  maxPageSize: 500\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestTopicsForEntity(t *testing.T) {
	topics := KafkaTopics{
		ListingEvents:   "a",
		PurchaseEvents:  "b",
		TransportEvents: "c",
	}
	assert.Equal(t, "a", topics.ForEntity("listing"))
	assert.Equal(t, "b", topics.ForEntity("purchase"))
	assert.Equal(t, "c", topics.ForEntity("transport"))
	assert.Empty(t, topics.ForEntity("invoice"))
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "localhost", Port: 5432, Database: "marketplace",
		User: "app", Password: "secret", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=app password=secret dbname=marketplace sslmode=disable",
		p.DSN())
}
