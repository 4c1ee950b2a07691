// Package event defines the domain events flowing from the owning services
// through the outbox to the search indexer. The event set is a sealed union:
// every variant implements the unexported marker method, and consumers switch
// over the concrete types exhaustively, so adding an entity type is a
// compile-time exercise rather than a string comparison at runtime.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/jdelgadillo/marketplace-search/pkg/errors"
)

// EntityType identifies which owning service a document originates from.
type EntityType string

const (
	EntityListing   EntityType = "Listing"
	EntityPurchase  EntityType = "Purchase"
	EntityTransport EntityType = "Transport"
)

// Tag returns the lowercase wire tag used in routing keys and topic names.
func (t EntityType) Tag() string {
	return strings.ToLower(string(t))
}

// ParseEntityType accepts either the canonical name or the wire tag.
// The boolean is false for unknown input.
func ParseEntityType(s string) (EntityType, bool) {
	switch strings.ToLower(s) {
	case "listing":
		return EntityListing, true
	case "purchase":
		return EntityPurchase, true
	case "transport":
		return EntityTransport, true
	}
	return "", false
}

// Action is what happened to the entity.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionCancelled Action = "cancelled"
)

// Event is the sealed domain event union. Each variant carries a denormalized
// snapshot of its entity sufficient to rebuild a search document without a
// callback to the source service. Events are immutable once constructed.
type Event interface {
	Entity() EntityType
	Action() Action
	EntityID() string
	isDomainEvent()
}

// Kind is the event-type tag stored on outbox records and carried in the
// message envelope's event-type header (e.g. "ListingCreated").
type Kind string

const (
	KindListingCreated   Kind = "ListingCreated"
	KindListingUpdated   Kind = "ListingUpdated"
	KindListingCancelled Kind = "ListingCancelled"
	KindPurchaseCreated  Kind = "PurchaseCreated"
	KindPurchaseUpdated  Kind = "PurchaseUpdated"
	KindTransportCreated Kind = "TransportCreated"
	KindTransportUpdated Kind = "TransportUpdated"
)

// kinds maps every event-type tag to its entity and action.
var kinds = map[Kind]struct {
	entity EntityType
	action Action
}{
	KindListingCreated:   {EntityListing, ActionCreated},
	KindListingUpdated:   {EntityListing, ActionUpdated},
	KindListingCancelled: {EntityListing, ActionCancelled},
	KindPurchaseCreated:  {EntityPurchase, ActionCreated},
	KindPurchaseUpdated:  {EntityPurchase, ActionUpdated},
	KindTransportCreated: {EntityTransport, ActionCreated},
	KindTransportUpdated: {EntityTransport, ActionUpdated},
}

// RoutingKey derives the "{entity}.{action}" routing key for this event type.
func (k Kind) RoutingKey() (string, error) {
	info, ok := kinds[k]
	if !ok {
		return "", fmt.Errorf("%w %q", apperrors.ErrUnknownEventType, string(k))
	}
	return info.entity.Tag() + "." + string(info.action), nil
}

// EntityTag returns the lowercase entity tag for topic selection, or "" for
// an unknown kind.
func (k Kind) EntityTag() string {
	if info, ok := kinds[k]; ok {
		return info.entity.Tag()
	}
	return ""
}

// KindFor returns the event-type tag for an entity and action.
func KindFor(entity EntityType, action Action) Kind {
	a := string(action)
	if a == "" {
		return Kind(entity)
	}
	return Kind(string(entity) + strings.ToUpper(a[:1]) + a[1:])
}

// Decode deserializes a wire payload into the typed event variant for the
// given event-type tag. Unknown or extra JSON fields in the payload are
// ignored; an unknown tag is an error the caller must treat as terminal.
func Decode(kind Kind, payload []byte) (Event, error) {
	info, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w %q", apperrors.ErrUnknownEventType, string(kind))
	}

	switch info.entity {
	case EntityListing:
		var snap ListingSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", kind, err)
		}
		switch info.action {
		case ActionCreated:
			return ListingCreated{snap}, nil
		case ActionUpdated:
			return ListingUpdated{snap}, nil
		case ActionCancelled:
			return ListingCancelled{snap}, nil
		}
	case EntityPurchase:
		var snap PurchaseSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", kind, err)
		}
		if info.action == ActionCreated {
			return PurchaseCreated{snap}, nil
		}
		return PurchaseUpdated{snap}, nil
	case EntityTransport:
		var snap TransportSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", kind, err)
		}
		if info.action == ActionCreated {
			return TransportCreated{snap}, nil
		}
		return TransportUpdated{snap}, nil
	}
	return nil, fmt.Errorf("%w %q", apperrors.ErrUnknownEventType, string(kind))
}

// Location is a denormalized address carried on listing snapshots.
type Location struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
}

// Condition describes the vehicle state on a listing snapshot.
type Condition struct {
	Grade              string `json:"grade,omitempty"`
	Mileage            int    `json:"mileage,omitempty"`
	HasAccidentHistory bool   `json:"has_accident_history,omitempty"`
	Description        string `json:"description,omitempty"`
}

// ListingSnapshot is the denormalized listing state carried on listing events.
type ListingSnapshot struct {
	ListingID  string     `json:"listing_id"`
	SellerID   string     `json:"seller_id"`
	VIN        string     `json:"vin"`
	Make       string     `json:"make"`
	Model      string     `json:"model"`
	Year       int        `json:"year"`
	Amount     float64    `json:"amount"`
	Location   *Location  `json:"location,omitempty"`
	Condition  *Condition `json:"condition,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// PurchaseSnapshot is the denormalized purchase state carried on purchase
// events.
type PurchaseSnapshot struct {
	PurchaseID   string    `json:"purchase_id"`
	BuyerID      string    `json:"buyer_id"`
	ListingID    string    `json:"listing_id"`
	Amount       float64   `json:"amount"`
	Status       string    `json:"status"`
	PurchaseDate time.Time `json:"purchase_date"`
	CreatedAt    time.Time `json:"created_at"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// TransportSnapshot is the denormalized transport-job state carried on
// transport events.
type TransportSnapshot struct {
	TransportID     string    `json:"transport_id"`
	CarrierID       string    `json:"carrier_id"`
	PurchaseID      string    `json:"purchase_id"`
	PickupCity      string    `json:"pickup_city"`
	PickupState     string    `json:"pickup_state"`
	PickupCountry   string    `json:"pickup_country"`
	DeliveryCity    string    `json:"delivery_city"`
	DeliveryState   string    `json:"delivery_state"`
	DeliveryCountry string    `json:"delivery_country"`
	ScheduleDate    time.Time `json:"schedule_date"`
	Status          string    `json:"status"`
	EstimatedCost   float64   `json:"estimated_cost,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// ListingCreated signals a new listing.
type ListingCreated struct{ ListingSnapshot }

// ListingUpdated signals a change to an existing listing.
type ListingUpdated struct{ ListingSnapshot }

// ListingCancelled signals a listing withdrawn from the marketplace. The
// indexer removes the document rather than keeping a tombstone.
type ListingCancelled struct{ ListingSnapshot }

// PurchaseCreated signals a new purchase record.
type PurchaseCreated struct{ PurchaseSnapshot }

// PurchaseUpdated signals a purchase status change.
type PurchaseUpdated struct{ PurchaseSnapshot }

// TransportCreated signals a new transport job.
type TransportCreated struct{ TransportSnapshot }

// TransportUpdated signals a transport job status change.
type TransportUpdated struct{ TransportSnapshot }

func (ListingCreated) Entity() EntityType   { return EntityListing }
func (ListingCreated) Action() Action       { return ActionCreated }
func (e ListingCreated) EntityID() string   { return e.ListingID }
func (ListingCreated) isDomainEvent()       {}
func (ListingUpdated) Entity() EntityType   { return EntityListing }
func (ListingUpdated) Action() Action       { return ActionUpdated }
func (e ListingUpdated) EntityID() string   { return e.ListingID }
func (ListingUpdated) isDomainEvent()       {}
func (ListingCancelled) Entity() EntityType { return EntityListing }
func (ListingCancelled) Action() Action     { return ActionCancelled }
func (e ListingCancelled) EntityID() string { return e.ListingID }
func (ListingCancelled) isDomainEvent()     {}
func (PurchaseCreated) Entity() EntityType  { return EntityPurchase }
func (PurchaseCreated) Action() Action      { return ActionCreated }
func (e PurchaseCreated) EntityID() string  { return e.PurchaseID }
func (PurchaseCreated) isDomainEvent()      {}
func (PurchaseUpdated) Entity() EntityType  { return EntityPurchase }
func (PurchaseUpdated) Action() Action      { return ActionUpdated }
func (e PurchaseUpdated) EntityID() string  { return e.PurchaseID }
func (PurchaseUpdated) isDomainEvent()      {}
func (TransportCreated) Entity() EntityType { return EntityTransport }
func (TransportCreated) Action() Action     { return ActionCreated }
func (e TransportCreated) EntityID() string { return e.TransportID }
func (TransportCreated) isDomainEvent()     {}
func (TransportUpdated) Entity() EntityType { return EntityTransport }
func (TransportUpdated) Action() Action     { return ActionUpdated }
func (e TransportUpdated) EntityID() string { return e.TransportID }
func (TransportUpdated) isDomainEvent()     {}
