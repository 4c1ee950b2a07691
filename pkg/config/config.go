// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Elasticsearch, Redis, Outbox, Consumer,
// Search, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Redis         RedisConfig         `yaml:"redis"`
	Outbox        OutboxConfig        `yaml:"outbox"`
	Consumer      ConsumerConfig      `yaml:"consumer"`
	Search        SearchConfig        `yaml:"search"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps each entity event stream and the dead-letter destination
// to its Kafka topic string.
type KafkaTopics struct {
	ListingEvents   string `yaml:"listingEvents"`
	PurchaseEvents  string `yaml:"purchaseEvents"`
	TransportEvents string `yaml:"transportEvents"`
	DeadLetter      string `yaml:"deadLetter"`
}

// ForEntity returns the topic that carries events for the given entity tag
// ("listing", "purchase", "transport"). Unknown tags return an empty string.
func (t KafkaTopics) ForEntity(entity string) string {
	switch entity {
	case "listing":
		return t.ListingEvents
	case "purchase":
		return t.PurchaseEvents
	case "transport":
		return t.TransportEvents
	}
	return ""
}

// ElasticsearchConfig holds the search engine endpoint and index name.
type ElasticsearchConfig struct {
	Addresses      []string      `yaml:"addresses"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Index          string        `yaml:"index"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// OutboxConfig controls the dispatcher polling loop. EmbedDispatcher runs the
// loop inside the marketplace API process; leave it off when the standalone
// dispatcher binary owns the table, the loop must run in exactly one process.
type OutboxConfig struct {
	PollInterval    time.Duration `yaml:"pollInterval"`
	BatchSize       int           `yaml:"batchSize"`
	MaxRetry        int           `yaml:"maxRetry"`
	EmbedDispatcher bool          `yaml:"embedDispatcher"`
}

// ConsumerConfig controls event consumption and redelivery.
type ConsumerConfig struct {
	MaxInFlight     int           `yaml:"maxInFlight"`
	MaxRedeliveries int           `yaml:"maxRedeliveries"`
	RetryBackoff    time.Duration `yaml:"retryBackoff"`
}

// SearchConfig controls query execution limits.
type SearchConfig struct {
	DefaultPageSize  int `yaml:"defaultPageSize"`
	MaxPageSize      int `yaml:"maxPageSize"`
	MaxSuggestions   int `yaml:"maxSuggestions"`
	SuggestionsLimit int `yaml:"suggestionsLimit"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Outbox.BatchSize < 1 {
		return fmt.Errorf("outbox.batchSize must be >= 1, got %d", c.Outbox.BatchSize)
	}
	if c.Outbox.MaxRetry < 1 {
		return fmt.Errorf("outbox.maxRetry must be >= 1, got %d", c.Outbox.MaxRetry)
	}
	if c.Consumer.MaxInFlight < 1 {
		return fmt.Errorf("consumer.maxInFlight must be >= 1, got %d", c.Consumer.MaxInFlight)
	}
	if c.Search.MaxPageSize > 100 {
		return fmt.Errorf("search.maxPageSize must be <= 100, got %d", c.Search.MaxPageSize)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "marketplace",
			User:            "marketplace",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "search-indexer",
			Topics: KafkaTopics{
				ListingEvents:   "marketplace.listing-events",
				PurchaseEvents:  "marketplace.purchase-events",
				TransportEvents: "marketplace.transport-events",
				DeadLetter:      "marketplace.search-dlq",
			},
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses:      []string{"http://localhost:9200"},
			Index:          "marketplace_search",
			RequestTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Outbox: OutboxConfig{
			PollInterval: 5 * time.Second,
			BatchSize:    100,
			MaxRetry:     5,
		},
		Consumer: ConsumerConfig{
			MaxInFlight:     8,
			MaxRedeliveries: 5,
			RetryBackoff:    2 * time.Second,
		},
		Search: SearchConfig{
			DefaultPageSize:  20,
			MaxPageSize:      100,
			MaxSuggestions:   10,
			SuggestionsLimit: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads MS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("MS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("MS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("MS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("MS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("MS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MS_KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}
	if v := os.Getenv("MS_ELASTICSEARCH_ADDRESSES"); v != "" {
		cfg.Elasticsearch.Addresses = strings.Split(v, ",")
	}
	if v := os.Getenv("MS_ELASTICSEARCH_INDEX"); v != "" {
		cfg.Elasticsearch.Index = v
	}
	if v := os.Getenv("MS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MS_OUTBOX_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Outbox.PollInterval = d
		}
	}
	if v := os.Getenv("MS_OUTBOX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Outbox.BatchSize = n
		}
	}
	if v := os.Getenv("MS_OUTBOX_EMBED_DISPATCHER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Outbox.EmbedDispatcher = b
		}
	}
	if v := os.Getenv("MS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
