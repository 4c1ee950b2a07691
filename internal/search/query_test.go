package search

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelgadillo/marketplace-search/pkg/config"
)

func searchCfg() config.SearchConfig {
	return config.SearchConfig{
		DefaultPageSize:  20,
		MaxPageSize:      100,
		MaxSuggestions:   10,
		SuggestionsLimit: 20,
	}
}

// asJSON round-trips the query body through JSON so assertions can use
// substring checks against the exact wire form.
func asJSON(t *testing.T, body map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return string(raw)
}

func normalized(req Request) Request {
	req.Normalize(searchCfg())
	return req
}

func TestNormalizeClampsPaging(t *testing.T) {
	req := normalized(Request{Page: 0, PageSize: 0})
	assert.Equal(t, 1, req.Page)
	assert.Equal(t, 20, req.PageSize)

	req = normalized(Request{Page: -3, PageSize: 500})
	assert.Equal(t, 1, req.Page)
	assert.Equal(t, 100, req.PageSize)
}

func TestBuildQueryFuzzyTextMatch(t *testing.T) {
	body := BuildQuery(normalized(Request{Query: "camry", Role: RoleAdmin}))
	raw := asJSON(t, body)

	assert.Contains(t, raw, `"multi_match"`)
	assert.Contains(t, raw, `"fuzziness":"AUTO"`)
	assert.Contains(t, raw, `"title^3"`)
	assert.Contains(t, raw, `"make^2"`)
	// VIN hits outrank everything else; VINs are indexed uppercase.
	assert.Contains(t, raw, `"vin":{"boost":5,"value":"CAMRY"}`)
}

func TestBuildQueryEmptyTextMatchesAll(t *testing.T) {
	body := BuildQuery(normalized(Request{Role: RoleAdmin}))
	raw := asJSON(t, body)
	assert.Contains(t, raw, `"match_all"`)
}

func TestBuildQueryPagination(t *testing.T) {
	body := BuildQuery(normalized(Request{Query: "x", Role: RoleAdmin, Page: 3, PageSize: 25}))
	assert.Equal(t, 50, body["from"])
	assert.Equal(t, 25, body["size"])
}

func TestBuildQueryDefaultSortIsScoreThenRecency(t *testing.T) {
	body := BuildQuery(normalized(Request{Query: "x", Role: RoleAdmin}))
	raw := asJSON(t, body)
	assert.Contains(t, raw, `"_score":{"order":"desc"}`)
	assert.Contains(t, raw, `"created_at":{"order":"desc"}`)
}

func TestBuildQuerySortOverride(t *testing.T) {
	body := BuildQuery(normalized(Request{Query: "x", Role: RoleAdmin, SortBy: "amount", SortDesc: true}))
	sort := body["sort"].([]any)
	raw, err := json.Marshal(sort[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":{"order":"desc"}}`, string(raw))
}

func TestBuildQueryIgnoresUnknownSortField(t *testing.T) {
	body := BuildQuery(normalized(Request{Query: "x", Role: RoleAdmin, SortBy: "seller_id"}))
	raw := asJSON(t, body)
	assert.NotContains(t, raw, `"seller_id":{"order"`)
	assert.Contains(t, raw, `"_score":{"order":"desc"}`)
}

func TestSellerFilterScopesToOwnListings(t *testing.T) {
	body := BuildQuery(normalized(Request{Query: "x", Role: RoleSeller, AccountID: "seller-1"}))
	raw := asJSON(t, body)

	assert.Contains(t, raw, `"entity_type":{"value":"Listing"}`)
	assert.Contains(t, raw, `"seller_id":{"value":"seller-1"}`)
}

func TestBuyerFilterActiveListingsOrOwnPurchases(t *testing.T) {
	body := BuildQuery(normalized(Request{Query: "x", Role: RoleBuyer, AccountID: "buyer-1"}))
	raw := asJSON(t, body)

	assert.Contains(t, raw, `"minimum_should_match":1`)
	assert.Contains(t, raw, `"status":{"value":"Active"}`)
	assert.Contains(t, raw, `"buyer_id":{"value":"buyer-1"}`)
	assert.Contains(t, raw, `"entity_type":{"value":"Purchase"}`)
}

func TestCarrierFilterScopesToOwnTransports(t *testing.T) {
	body := BuildQuery(normalized(Request{Query: "x", Role: RoleCarrier, AccountID: "carrier-1"}))
	raw := asJSON(t, body)

	assert.Contains(t, raw, `"entity_type":{"value":"Transport"}`)
	assert.Contains(t, raw, `"carrier_id":{"value":"carrier-1"}`)
}

func TestAdminHasNoRoleFilter(t *testing.T) {
	body := BuildQuery(normalized(Request{Query: "x", Role: RoleAdmin}))
	boolQuery := body["query"].(map[string]any)["bool"].(map[string]any)
	_, hasFilter := boolQuery["filter"]
	assert.False(t, hasFilter)
}

func TestUnknownRoleMatchesNothing(t *testing.T) {
	body := BuildQuery(normalized(Request{Query: "x", Role: RoleUnknown, AccountID: "whoever"}))
	raw := asJSON(t, body)
	assert.Contains(t, raw, `"must_not":[{"match_all"`)
}

func TestEntityTypeRestrictionAddsFilter(t *testing.T) {
	body := BuildQuery(normalized(Request{Query: "x", Role: RoleAdmin, EntityType: "listing"}))
	raw := asJSON(t, body)
	assert.Contains(t, raw, `"entity_type":{"value":"Listing"}`)
}

func TestParseRoleDeniesByDefault(t *testing.T) {
	assert.Equal(t, RoleSeller, ParseRole("Seller"))
	assert.Equal(t, RoleBuyer, ParseRole(" buyer "))
	assert.Equal(t, RoleCarrier, ParseRole("CARRIER"))
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RoleUnknown, ParseRole("agent"))
	assert.Equal(t, RoleUnknown, ParseRole(""))
	assert.Equal(t, RoleUnknown, ParseRole("sellers"))
}

func TestBuildAutocompleteQuery(t *testing.T) {
	body := BuildAutocompleteQuery("camr", 10)
	raw := asJSON(t, body)

	assert.Contains(t, raw, `"title.autocomplete"`)
	assert.Contains(t, raw, `"fuzziness":"AUTO"`)
	assert.Contains(t, raw, `"prefix":{"vin"`)
	assert.Contains(t, raw, `"minimum_should_match":1`)
	assert.Equal(t, 20, body["size"])
}
