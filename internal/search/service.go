package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/jdelgadillo/marketplace-search/internal/document"
	"github.com/jdelgadillo/marketplace-search/pkg/config"
	"github.com/jdelgadillo/marketplace-search/pkg/elastic"
	apperrors "github.com/jdelgadillo/marketplace-search/pkg/errors"
	"github.com/jdelgadillo/marketplace-search/pkg/metrics"
	"github.com/jdelgadillo/marketplace-search/pkg/redis"
	"github.com/jdelgadillo/marketplace-search/pkg/resilience"
	"github.com/jdelgadillo/marketplace-search/pkg/tracing"
)

// QueryEngine is the read contract against the search index.
type QueryEngine interface {
	Search(ctx context.Context, body map[string]any) (*elastic.Result, error)
	EnsureIndex(ctx context.Context) error
}

// Service executes access-controlled searches. Engine failures on the read
// path degrade to an empty result rather than an error: search going dark
// should read as "no matches", never as a 5xx to the caller.
type Service struct {
	engine   QueryEngine
	cache    *redis.Client
	breaker  *resilience.CircuitBreaker
	cfg      config.SearchConfig
	cacheTTL time.Duration
	group    singleflight.Group
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService wires a Service. cache may be nil, in which case every query
// goes to the engine.
func NewService(engine QueryEngine, cache *redis.Client, cacheTTL time.Duration, cfg config.SearchConfig, m *metrics.Metrics) *Service {
	return &Service{
		engine:   engine,
		cache:    cache,
		breaker:  resilience.NewCircuitBreaker("search-engine", resilience.CircuitBreakerConfig{}),
		cfg:      cfg,
		cacheTTL: cacheTTL,
		metrics:  m,
		logger:   slog.Default().With("component", "search"),
	}
}

// Search runs one query for the given principal and returns a page of
// results. The role filter is applied inside the engine query, so results
// the principal cannot see are never fetched, counted, or cached under a
// key another principal could hit.
func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	req.Normalize(s.cfg)

	ctx, span := tracing.StartChildSpan(ctx, "search.query")
	span.SetAttr("role", req.Role.String())
	span.SetAttr("page", req.Page)
	defer span.End()

	key := s.cacheKey(req)
	if cached, ok := s.cacheGet(ctx, key); ok {
		s.observe(req.Role, "ok", "hit", start, int64(len(cached.Items)))
		return cached, nil
	}

	// Identical concurrent queries collapse into one engine round-trip.
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.execute(ctx, req, key)
	})
	if err != nil {
		s.logger.Error("search degraded to empty result",
			"role", req.Role.String(),
			"query", req.Query,
			"error", err,
		)
		s.observe(req.Role, "degraded", "miss", start, 0)
		return emptyResult(req), nil
	}

	result := v.(*Result)
	s.observe(req.Role, "ok", "miss", start, int64(len(result.Items)))
	return result, nil
}

func (s *Service) execute(ctx context.Context, req Request, key string) (*Result, error) {
	body := BuildQuery(req)
	var res *elastic.Result
	err := s.breaker.Execute(func() error {
		var searchErr error
		res, searchErr = s.engine.Search(ctx, body)
		return searchErr
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		Items:      make([]ResultItem, 0, len(res.Hits)),
		Total:      res.Total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: totalPages(res.Total, req.PageSize),
	}
	for _, hit := range res.Hits {
		var doc document.Document
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			s.logger.Warn("skipping undecodable hit", "doc_id", hit.ID, "error", err)
			continue
		}
		result.Items = append(result.Items, ResultItem{
			Document:   doc,
			Score:      hit.Score,
			Highlights: hit.Highlight,
		})
	}

	s.cacheSet(ctx, key, result)
	return result, nil
}

// Autocomplete returns up to limit suggestions for a partial query.
// Prefixes shorter than two characters are rejected; engine failures
// degrade to no suggestions.
func (s *Service) Autocomplete(ctx context.Context, prefix string, limit int) ([]Suggestion, error) {
	prefix = strings.TrimSpace(prefix)
	if utf8.RuneCountInString(prefix) < 2 {
		s.countAutocomplete("too_short")
		return nil, apperrors.New(apperrors.ErrQueryTooShort, http.StatusBadRequest,
			"autocomplete requires at least 2 characters")
	}
	if limit < 1 {
		limit = s.cfg.MaxSuggestions
	}
	if limit > s.cfg.SuggestionsLimit {
		limit = s.cfg.SuggestionsLimit
	}

	var res *elastic.Result
	err := s.breaker.Execute(func() error {
		var searchErr error
		res, searchErr = s.engine.Search(ctx, BuildAutocompleteQuery(prefix, limit))
		return searchErr
	})
	if err != nil {
		s.logger.Error("autocomplete degraded to empty result", "prefix", prefix, "error", err)
		s.countAutocomplete("degraded")
		return []Suggestion{}, nil
	}

	seen := make(map[string]struct{}, len(res.Hits))
	suggestions := make([]Suggestion, 0, limit)
	for _, hit := range res.Hits {
		var doc document.Document
		if err := json.Unmarshal(hit.Source, &doc); err != nil || doc.Title == "" {
			continue
		}
		if _, dup := seen[doc.Title]; dup {
			continue
		}
		seen[doc.Title] = struct{}{}
		suggestions = append(suggestions, Suggestion{
			Text:       doc.Title,
			EntityType: doc.EntityType,
			EntityID:   doc.EntityID,
			Score:      hit.Score,
		})
		if len(suggestions) == limit {
			break
		}
	}

	s.countAutocomplete("ok")
	return suggestions, nil
}

// Reindex idempotently (re)creates the index schema and drops the query
// cache. It does not backfill; documents repopulate as events are
// redelivered.
func (s *Service) Reindex(ctx context.Context) error {
	if err := s.engine.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensuring index schema: %w", err)
	}
	if s.cache != nil {
		if n, err := s.cache.FlushByPattern(ctx, "search:*"); err != nil {
			s.logger.Warn("failed to flush query cache", "error", err)
		} else if n > 0 {
			s.logger.Info("query cache flushed", "keys", n)
		}
	}
	return nil
}

// cacheKey hashes everything that shapes the result set, identity included.
// Two principals never share a cache entry.
func (s *Service) cacheKey(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%d|%d|%s|%t",
		req.Role.String(), req.AccountID, req.Query, req.EntityType,
		"v1", req.Page, req.PageSize, req.SortBy, req.SortDesc)
	return "search:" + hex.EncodeToString(h.Sum(nil))
}

func (s *Service) cacheGet(ctx context.Context, key string) (*Result, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !redis.IsNilError(err) {
			s.logger.Warn("cache read failed", "error", err)
		}
		if s.metrics != nil {
			s.metrics.CacheMissesTotal.Inc()
		}
		return nil, false
	}
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.CacheHitsTotal.Inc()
	}
	return &result, true
}

func (s *Service) cacheSet(ctx context.Context, key string, result *Result) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}
}

func (s *Service) observe(role Role, outcome, cacheStatus string, start time.Time, results int64) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(role.String(), outcome).Inc()
	s.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	s.metrics.SearchResultsCount.Observe(float64(results))
}

func (s *Service) countAutocomplete(result string) {
	if s.metrics != nil {
		s.metrics.AutocompleteTotal.WithLabelValues(result).Inc()
	}
}
