package search

import (
	"strings"

	"github.com/jdelgadillo/marketplace-search/internal/event"
)

// searchFields are the multi-match targets with their boosts. Exact
// identifier fields outweigh descriptive text, so a VIN or model hit ranks
// above a description mention.
var searchFields = []string{
	"title^3",
	"make^2",
	"model^2",
	"keywords^2",
	"description",
}

// sortableFields is the allow-list for caller-supplied sort overrides.
var sortableFields = map[string]string{
	"created_at": "created_at",
	"amount":     "amount",
	"year":       "year",
	"updated_at": "updated_at",
}

// BuildQuery translates a normalized Request into an engine query body. The
// role filter is always present: every clause the principal's role calls for
// is folded in at build time, so there is no code path that queries the
// index unscoped except for admins.
func BuildQuery(req Request) map[string]any {
	boolQuery := map[string]any{}

	if req.Query != "" {
		boolQuery["must"] = []any{
			map[string]any{
				"multi_match": map[string]any{
					"query":     req.Query,
					"fields":    searchFields,
					"fuzziness": "AUTO",
				},
			},
		}
		// VINs are indexed uppercase as a keyword.
		boolQuery["should"] = []any{
			term("vin", strings.ToUpper(req.Query), 5),
		}
	} else {
		boolQuery["must"] = []any{map[string]any{"match_all": map[string]any{}}}
	}

	filters := roleFilter(req.Role, req.AccountID)
	if entity, ok := event.ParseEntityType(req.EntityType); ok {
		filters = append(filters, term("entity_type", string(entity), 0))
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	body := map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"from":  (req.Page - 1) * req.PageSize,
		"size":  req.PageSize,
		"sort":  sortClause(req),
		"highlight": map[string]any{
			"fields": map[string]any{
				"title":       map[string]any{},
				"description": map[string]any{},
				"keywords":    map[string]any{},
			},
		},
	}
	return body
}

// roleFilter returns the mandatory visibility clauses for a principal.
// Admins see everything; an unrecognized role sees nothing.
func roleFilter(role Role, accountID string) []any {
	switch role {
	case RoleSeller:
		return []any{
			term("entity_type", string(event.EntityListing), 0),
			term("seller_id", accountID, 0),
		}
	case RoleBuyer:
		return []any{
			map[string]any{
				"bool": map[string]any{
					"should": []any{
						map[string]any{
							"bool": map[string]any{
								"must": []any{
									term("entity_type", string(event.EntityListing), 0),
									term("status", "Active", 0),
								},
							},
						},
						map[string]any{
							"bool": map[string]any{
								"must": []any{
									term("entity_type", string(event.EntityPurchase), 0),
									term("buyer_id", accountID, 0),
								},
							},
						},
					},
					"minimum_should_match": 1,
				},
			},
		}
	case RoleCarrier:
		return []any{
			term("entity_type", string(event.EntityTransport), 0),
			term("carrier_id", accountID, 0),
		}
	case RoleAdmin:
		return nil
	}
	return []any{
		map[string]any{
			"bool": map[string]any{
				"must_not": []any{map[string]any{"match_all": map[string]any{}}},
			},
		},
	}
}

// sortClause builds the sort order: caller override first when the field is
// on the allow-list, otherwise relevance score with created_at as the
// tie-breaker.
func sortClause(req Request) []any {
	if field, ok := sortableFields[req.SortBy]; ok {
		order := "asc"
		if req.SortDesc {
			order = "desc"
		}
		return []any{
			map[string]any{field: map[string]any{"order": order}},
			map[string]any{"_score": map[string]any{"order": "desc"}},
		}
	}
	return []any{
		map[string]any{"_score": map[string]any{"order": "desc"}},
		map[string]any{"created_at": map[string]any{"order": "desc"}},
	}
}

// BuildAutocompleteQuery matches the prefix against the edge-n-gram title
// field with typo tolerance, plus raw prefix matches on VIN and keyword
// identifiers. Size is oversampled so duplicate titles can be collapsed
// without coming up short.
func BuildAutocompleteQuery(prefix string, limit int) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{
						"match": map[string]any{
							"title.autocomplete": map[string]any{
								"query":     prefix,
								"fuzziness": "AUTO",
							},
						},
					},
					map[string]any{
						"prefix": map[string]any{
							"vin": map[string]any{"value": strings.ToUpper(prefix)},
						},
					},
					map[string]any{
						"match": map[string]any{
							"keywords": map[string]any{"query": prefix},
						},
					},
				},
				"minimum_should_match": 1,
			},
		},
		"size":    limit * 2,
		"_source": []string{"title", "entity_type", "entity_id"},
	}
}

func term(field, value string, boost float64) map[string]any {
	inner := map[string]any{"value": value}
	if boost > 0 {
		inner["boost"] = boost
	}
	return map[string]any{"term": map[string]any{field: inner}}
}
