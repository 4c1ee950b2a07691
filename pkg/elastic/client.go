// Package elastic wraps go-elasticsearch with the index/upsert/delete/query
// contract the pipeline depends on. Elasticsearch is the read-optimised
// projection only; the owning services' PostgreSQL rows remain the source of
// truth, and documents are keyed by a deterministic id so repeated upserts
// from redelivered events converge instead of duplicating.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/jdelgadillo/marketplace-search/pkg/config"
)

// Client wraps an Elasticsearch client scoped to one index.
type Client struct {
	es     *elasticsearch.Client
	index  string
	logger *slog.Logger
}

// New creates a Client for the configured addresses and index.
func New(cfg config.ElasticsearchConfig) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}
	return &Client{
		es:     es,
		index:  cfg.Index,
		logger: slog.Default().With("component", "elastic", "index", cfg.Index),
	}, nil
}

// Index returns the index name this client operates on.
func (c *Client) Index() string {
	return c.index
}

// Ping probes the cluster.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return nil
}

// EnsureIndex idempotently creates the index with its analyzers and field
// mappings. An existing index is left untouched. It does not backfill;
// documents repopulate as events are redelivered.
func (c *Client) EnsureIndex(ctx context.Context) error {
	exists, err := c.es.Indices.Exists([]string{c.index},
		c.es.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("checking index %s: %w", c.index, err)
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		c.logger.Info("index already exists")
		return nil
	}

	res, err := c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(indexSchema)),
	)
	if err != nil {
		return fmt.Errorf("creating index %s: %w", c.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("creating index %s [%s]: %s", c.index, res.Status(), body)
	}
	c.logger.Info("index created")
	return nil
}

// Upsert indexes doc under the given document id, overwriting any existing
// document with the same id.
func (c *Client) Upsert(ctx context.Context, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document %s: %w", id, err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(body),
		c.es.Index.WithDocumentID(id),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("indexing document %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("indexing document %s [%s]: %s", id, res.Status(), body)
	}
	c.logger.Debug("document upserted", "doc_id", id)
	return nil
}

// Delete removes the document with the given id. A missing document is not
// an error: deletes must be idempotent under at-least-once delivery.
func (c *Client) Delete(ctx context.Context, id string) error {
	res, err := c.es.Delete(
		c.index,
		id,
		c.es.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("deleting document %s [%s]: %s", id, res.Status(), body)
	}
	c.logger.Debug("document deleted", "doc_id", id)
	return nil
}

// Hit is a single search hit with its relevance score and any highlighted
// field excerpts.
type Hit struct {
	ID        string              `json:"_id"`
	Score     float64             `json:"_score"`
	Source    json.RawMessage     `json:"_source"`
	Highlight map[string][]string `json:"highlight,omitempty"`
}

// Result is the decoded portion of a search response the pipeline consumes.
type Result struct {
	Total int64
	Hits  []Hit
}

// Search executes the given query body against the index and decodes the
// hits and total count.
func (c *Client) Search(ctx context.Context, body map[string]any) (*Result, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(&buf),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		errBody, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search error [%s]: %s", res.Status(), errBody)
	}

	var decoded struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []Hit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	return &Result{
		Total: decoded.Hits.Total.Value,
		Hits:  decoded.Hits.Hits,
	}, nil
}
