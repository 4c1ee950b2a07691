// Package indexer consumes entity events from the broker, maps them into the
// unified search document, and drives the search engine's upsert/delete
// contract. Acknowledgement happens only after the engine call succeeded, so
// delivery is at-least-once and everything downstream is idempotent by
// document id.
package indexer

import (
	"fmt"
	"strings"
	"time"

	"github.com/jdelgadillo/marketplace-search/internal/document"
	"github.com/jdelgadillo/marketplace-search/internal/event"
)

// MapDocument converts a domain event into the unified search document. It is
// pure and total over the event union: an unhandled variant is a wiring bug
// surfaced as an error, not a silently dropped event. Text fields are left in
// their original case; the index analyzer lowercases at index time.
func MapDocument(e event.Event, now time.Time) (document.Document, error) {
	switch ev := e.(type) {
	case event.ListingCreated:
		return listingDocument(ev.ListingSnapshot, now), nil
	case event.ListingUpdated:
		return listingDocument(ev.ListingSnapshot, now), nil
	case event.ListingCancelled:
		// Cancellations normally delete the document; the mapping still
		// exists so the pipeline can tombstone instead when replaying.
		doc := listingDocument(ev.ListingSnapshot, now)
		doc.Status = ev.Status
		return doc, nil
	case event.PurchaseCreated:
		return purchaseDocument(ev.PurchaseSnapshot, now), nil
	case event.PurchaseUpdated:
		return purchaseDocument(ev.PurchaseSnapshot, now), nil
	case event.TransportCreated:
		return transportDocument(ev.TransportSnapshot, now), nil
	case event.TransportUpdated:
		return transportDocument(ev.TransportSnapshot, now), nil
	default:
		return document.Document{}, fmt.Errorf("unmapped event variant %T", e)
	}
}

func listingDocument(snap event.ListingSnapshot, now time.Time) document.Document {
	var locationString string
	keywords := []string{snap.VIN, snap.Make, snap.Model, snap.Status, fmt.Sprintf("%d", snap.Year)}

	var city, state, country string
	if loc := snap.Location; loc != nil {
		locationString = joinNonEmpty(", ", loc.City, loc.State, loc.Country)
		keywords = append(keywords, loc.City, loc.State, loc.ZipCode)
		city, state, country = loc.City, loc.State, loc.Country
	}

	conditionDesc := ""
	if cond := snap.Condition; cond != nil {
		conditionDesc = fmt.Sprintf("Grade: %s, Mileage: %d", cond.Grade, cond.Mileage)
	}

	return document.Document{
		EntityType:  event.EntityListing,
		EntityID:    snap.ListingID,
		Title:       fmt.Sprintf("%d %s %s", snap.Year, snap.Make, snap.Model),
		Description: fmt.Sprintf("VIN: %s. %s. Located in %s. Price: $%.2f", snap.VIN, conditionDesc, locationString, snap.Amount),
		Keywords:    nonEmpty(keywords),
		SellerID:    snap.SellerID,
		VIN:         snap.VIN,
		Make:        snap.Make,
		Model:       snap.Model,
		Year:        snap.Year,
		Amount:      snap.Amount,
		Status:      snap.Status,
		Location:    locationString,
		City:        city,
		State:       state,
		Country:     country,
		CreatedAt:   snap.CreatedAt,
		UpdatedAt:   snap.UpdatedAt,
		IndexedAt:   now,
	}
}

func purchaseDocument(snap event.PurchaseSnapshot, now time.Time) document.Document {
	return document.Document{
		EntityType:  event.EntityPurchase,
		EntityID:    snap.PurchaseID,
		Title:       fmt.Sprintf("Purchase #%s", snap.PurchaseID),
		Description: fmt.Sprintf("Purchase of Listing #%s. Amount: $%.2f. Status: %s", snap.ListingID, snap.Amount, snap.Status),
		Keywords:    nonEmpty([]string{snap.Status, "Listing-" + snap.ListingID}),
		BuyerID:     snap.BuyerID,
		Amount:      snap.Amount,
		Status:      snap.Status,
		CreatedAt:   snap.CreatedAt,
		IndexedAt:   now,
	}
}

func transportDocument(snap event.TransportSnapshot, now time.Time) document.Document {
	route := fmt.Sprintf("%s, %s → %s, %s",
		snap.PickupCity, snap.PickupState, snap.DeliveryCity, snap.DeliveryState)

	keywords := []string{
		snap.Status,
		snap.PickupCity, snap.PickupState,
		snap.DeliveryCity, snap.DeliveryState,
		"Purchase-" + snap.PurchaseID,
	}

	return document.Document{
		EntityType:  event.EntityTransport,
		EntityID:    snap.TransportID,
		Title:       fmt.Sprintf("Transport #%s: %s", snap.TransportID, route),
		Description: fmt.Sprintf("Transport from %s to %s. Scheduled: %s. Status: %s. %s", snap.PickupCity, snap.DeliveryCity, snap.ScheduleDate.Format("2006-01-02"), snap.Status, snap.Notes),
		Keywords:    nonEmpty(keywords),
		CarrierID:   snap.CarrierID,
		Amount:      snap.EstimatedCost,
		Status:      snap.Status,
		Location:    route,
		City:        snap.DeliveryCity,
		State:       snap.DeliveryState,
		Country:     snap.DeliveryCountry,
		CreatedAt:   snap.CreatedAt,
		IndexedAt:   now,
	}
}

func nonEmpty(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func joinNonEmpty(sep string, values ...string) string {
	return strings.Join(nonEmpty(values), sep)
}
