// Package document defines the unified search document shape shared by the
// indexer (writes) and the search service (reads).
package document

import (
	"time"

	"github.com/jdelgadillo/marketplace-search/internal/event"
)

// Document is the one shape every entity maps into before indexing. The
// deterministic ID is the only identity: re-indexing the same ID overwrites
// rather than duplicates, which is what makes at-least-once delivery safe
// downstream.
type Document struct {
	EntityType  event.EntityType `json:"entity_type"`
	EntityID    string           `json:"entity_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Keywords    []string         `json:"keywords,omitempty"`

	// Ownership, exactly the fields relevant to the entity type.
	SellerID  string `json:"seller_id,omitempty"`
	BuyerID   string `json:"buyer_id,omitempty"`
	CarrierID string `json:"carrier_id,omitempty"`

	// Vehicle attributes (listings only).
	VIN   string `json:"vin,omitempty"`
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Year  int    `json:"year,omitempty"`

	Amount   float64 `json:"amount,omitempty"`
	Status   string  `json:"status,omitempty"`
	Location string  `json:"location,omitempty"`
	City     string  `json:"city,omitempty"`
	State    string  `json:"state,omitempty"`
	Country  string  `json:"country,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	IndexedAt time.Time  `json:"indexed_at"`
}

// ID returns the deterministic document id, "{EntityType}_{EntityID}".
func ID(entityType event.EntityType, entityID string) string {
	return string(entityType) + "_" + entityID
}

// ID returns this document's deterministic id.
func (d Document) ID() string {
	return ID(d.EntityType, d.EntityID)
}
