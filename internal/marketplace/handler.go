package marketplace

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/jdelgadillo/marketplace-search/pkg/errors"
)

// Handler exposes the write-side endpoints over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates the HTTP handler for the write side.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default().With("component", "marketplace-api"),
	}
}

// Register mounts the write routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/listings", h.handleCreateListing)
	mux.HandleFunc("PUT /api/v1/listings/{id}", h.handleUpdateListing)
	mux.HandleFunc("DELETE /api/v1/listings/{id}", h.handleCancelListing)
	mux.HandleFunc("POST /api/v1/purchases", h.handleCreatePurchase)
	mux.HandleFunc("PUT /api/v1/purchases/{id}", h.handleUpdatePurchase)
	mux.HandleFunc("POST /api/v1/transports", h.handleCreateTransport)
	mux.HandleFunc("PUT /api/v1/transports/{id}", h.handleUpdateTransport)
}

func (h *Handler) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var in ListingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body"))
		return
	}
	id, err := h.service.CreateListing(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type updateBody struct {
	Amount float64 `json:"amount"`
	Status string  `json:"status"`
}

func (h *Handler) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	var body updateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body"))
		return
	}
	if err := h.service.UpdateListing(r.Context(), r.PathValue("id"), body.Amount, body.Status); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CancelListing(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var in PurchaseInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body"))
		return
	}
	id, err := h.service.CreatePurchase(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) handleUpdatePurchase(w http.ResponseWriter, r *http.Request) {
	var body updateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body"))
		return
	}
	if err := h.service.UpdatePurchase(r.Context(), r.PathValue("id"), body.Status); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreateTransport(w http.ResponseWriter, r *http.Request) {
	var in TransportInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body"))
		return
	}
	id, err := h.service.CreateTransport(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) handleUpdateTransport(w http.ResponseWriter, r *http.Request) {
	var body updateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid request body"))
		return
	}
	if err := h.service.UpdateTransport(r.Context(), r.PathValue("id"), body.Status); err != nil {
		h.writeError(w, err)
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
	} else {
		h.logger.Error("request failed", "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
