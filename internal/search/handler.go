package search

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/jdelgadillo/marketplace-search/pkg/errors"
)

// Handler exposes the search service over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates the HTTP handler for the search service.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default().With("component", "search-api"),
	}
}

// Register mounts the search routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/search", h.handleSearch)
	mux.HandleFunc("GET /api/v1/search/autocomplete", h.handleAutocomplete)
	mux.HandleFunc("POST /api/v1/admin/reindex", h.handleReindex)
}

type searchRequestBody struct {
	Query      string `json:"query"`
	EntityType string `json:"entity_type"`
	Role       string `json:"role"`
	AccountID  string `json:"account_id"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	SortBy     string `json:"sort_by"`
	SortDesc   bool   `json:"sort_desc"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body"))
		return
	}

	req := Request{
		Query:      body.Query,
		EntityType: body.EntityType,
		Role:       ParseRole(body.Role),
		AccountID:  body.AccountID,
		Page:       body.Page,
		PageSize:   body.PageSize,
		SortBy:     body.SortBy,
		SortDesc:   body.SortDesc,
	}

	result, err := h.service.Search(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be an integer"))
			return
		}
		limit = n
	}

	suggestions, err := h.service.Autocomplete(r.Context(), q, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (h *Handler) handleReindex(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reindex(r.Context()); err != nil {
		h.logger.Error("reindex failed", "error", err)
		h.writeError(w, apperrors.New(apperrors.ErrEngineUnavailable, http.StatusServiceUnavailable, "search engine unavailable"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := "internal server error"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
