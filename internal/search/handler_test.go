package search

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelgadillo/marketplace-search/internal/document"
	"github.com/jdelgadillo/marketplace-search/internal/event"
	"github.com/jdelgadillo/marketplace-search/pkg/elastic"
)

func newTestServer(engine QueryEngine) *httptest.Server {
	mux := http.NewServeMux()
	NewHandler(newTestService(engine)).Register(mux)
	return httptest.NewServer(mux)
}

func TestSearchEndpoint(t *testing.T) {
	doc := document.Document{
		EntityType: event.EntityListing,
		EntityID:   "l-1",
		Title:      "2022 Toyota Camry",
	}
	engine := &fakeQueryEngine{result: &elastic.Result{Total: 1, Hits: []elastic.Hit{hitFor(t, doc, 2.5)}}}
	srv := newTestServer(engine)
	defer srv.Close()

	body := `{"query":"camry","role":"admin","account_id":"a-1"}`
	resp, err := http.Post(srv.URL+"/api/v1/search", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var result Result
	require.NoError(t, jsonDecode(resp, &result))
	assert.Equal(t, int64(1), result.Total)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "2022 Toyota Camry", result.Items[0].Document.Title)
}

func TestSearchEndpointRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(&fakeQueryEngine{result: &elastic.Result{}})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/search", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAutocompleteEndpoint(t *testing.T) {
	doc := document.Document{EntityType: event.EntityListing, EntityID: "l-1", Title: "2022 Toyota Camry"}
	engine := &fakeQueryEngine{result: &elastic.Result{Total: 1, Hits: []elastic.Hit{hitFor(t, doc, 2.5)}}}
	srv := newTestServer(engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/search/autocomplete?q=camr")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Suggestions []Suggestion `json:"suggestions"`
	}
	require.NoError(t, jsonDecode(resp, &payload))
	require.Len(t, payload.Suggestions, 1)
	assert.Equal(t, "2022 Toyota Camry", payload.Suggestions[0].Text)
}

func TestAutocompleteEndpointRejectsShortQuery(t *testing.T) {
	srv := newTestServer(&fakeQueryEngine{result: &elastic.Result{}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/search/autocomplete?q=c")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAutocompleteEndpointRejectsBadLimit(t *testing.T) {
	srv := newTestServer(&fakeQueryEngine{result: &elastic.Result{}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/search/autocomplete?q=camry&limit=ten")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReindexEndpoint(t *testing.T) {
	engine := &fakeQueryEngine{}
	srv := newTestServer(engine)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/admin/reindex", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, engine.ensureCalls)
}

func jsonDecode(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}
