package search

import (
	"strings"

	"github.com/jdelgadillo/marketplace-search/internal/document"
	"github.com/jdelgadillo/marketplace-search/internal/event"
	"github.com/jdelgadillo/marketplace-search/pkg/config"
)

// Request is one search invocation: the free-text query, the requesting
// principal, and paging/sorting options. It is normalized before the query
// builder sees it.
type Request struct {
	Query      string `json:"query"`
	EntityType string `json:"entity_type,omitempty"`

	Role      Role   `json:"-"`
	AccountID string `json:"account_id"`

	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	SortBy   string `json:"sort_by,omitempty"`
	SortDesc bool   `json:"sort_desc,omitempty"`
}

// Normalize clamps paging to the configured bounds and trims text inputs.
// Page numbers start at 1.
func (r *Request) Normalize(cfg config.SearchConfig) {
	r.Query = strings.TrimSpace(r.Query)
	r.EntityType = strings.TrimSpace(r.EntityType)
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = cfg.DefaultPageSize
	}
	if r.PageSize > cfg.MaxPageSize {
		r.PageSize = cfg.MaxPageSize
	}
}

// ResultItem is one matched document with its relevance score and any
// highlighted excerpts.
type ResultItem struct {
	Document   document.Document   `json:"document"`
	Score      float64             `json:"score"`
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// Result is one page of matches.
type Result struct {
	Items      []ResultItem `json:"results"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalPages int64        `json:"total_pages"`
}

// Suggestion is one autocomplete candidate with its source entity.
type Suggestion struct {
	Text       string           `json:"text"`
	EntityType event.EntityType `json:"entity_type"`
	EntityID   string           `json:"entity_id"`
	Score      float64          `json:"score"`
}

func emptyResult(req Request) *Result {
	return &Result{
		Items:    []ResultItem{},
		Page:     req.Page,
		PageSize: req.PageSize,
	}
}

func totalPages(total int64, pageSize int) int64 {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + int64(pageSize) - 1) / int64(pageSize)
}
