// Package marketplace is the owning-service write boundary: every mutation
// writes its domain row and the matching outbox record in one transaction,
// so an event exists if and only if the domain change committed.
package marketplace

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jdelgadillo/marketplace-search/internal/event"
	"github.com/jdelgadillo/marketplace-search/internal/outbox"
	apperrors "github.com/jdelgadillo/marketplace-search/pkg/errors"
	"github.com/jdelgadillo/marketplace-search/pkg/postgres"
)

// Service owns the listing, purchase, and transport tables and their outbox.
type Service struct {
	db     *postgres.Client
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates the write-side service.
func NewService(db *postgres.Client) *Service {
	return &Service{
		db:     db,
		now:    time.Now,
		logger: slog.Default().With("component", "marketplace"),
	}
}

// ListingInput is the caller-supplied portion of a listing.
type ListingInput struct {
	SellerID  string           `json:"seller_id"`
	VIN       string           `json:"vin"`
	Make      string           `json:"make"`
	Model     string           `json:"model"`
	Year      int              `json:"year"`
	Amount    float64          `json:"amount"`
	Location  *event.Location  `json:"location,omitempty"`
	Condition *event.Condition `json:"condition,omitempty"`
}

// PurchaseInput is the caller-supplied portion of a purchase record.
type PurchaseInput struct {
	BuyerID   string  `json:"buyer_id"`
	ListingID string  `json:"listing_id"`
	Amount    float64 `json:"amount"`
}

// TransportInput is the caller-supplied portion of a transport job.
type TransportInput struct {
	CarrierID       string    `json:"carrier_id"`
	PurchaseID      string    `json:"purchase_id"`
	PickupCity      string    `json:"pickup_city"`
	PickupState     string    `json:"pickup_state"`
	PickupCountry   string    `json:"pickup_country"`
	DeliveryCity    string    `json:"delivery_city"`
	DeliveryState   string    `json:"delivery_state"`
	DeliveryCountry string    `json:"delivery_country"`
	ScheduleDate    time.Time `json:"schedule_date"`
	EstimatedCost   float64   `json:"estimated_cost"`
	Notes           string    `json:"notes"`
}

// CreateListing inserts the listing and its ListingCreated outbox record
// atomically and returns the new listing id.
func (s *Service) CreateListing(ctx context.Context, in ListingInput) (string, error) {
	if in.SellerID == "" || in.VIN == "" || in.Make == "" || in.Model == "" {
		return "", apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"seller_id, vin, make, and model are required")
	}

	id := uuid.NewString()
	now := s.now().UTC()
	snap := event.ListingSnapshot{
		ListingID:  id,
		SellerID:   in.SellerID,
		VIN:        in.VIN,
		Make:       in.Make,
		Model:      in.Model,
		Year:       in.Year,
		Amount:     in.Amount,
		Location:   in.Location,
		Condition:  in.Condition,
		Status:     "Active",
		CreatedAt:  now,
		OccurredAt: now,
	}

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO listings (id, seller_id, vin, make, model, year, amount, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			id, in.SellerID, in.VIN, in.Make, in.Model, in.Year, in.Amount, snap.Status, now,
		)
		if err != nil {
			return fmt.Errorf("inserting listing: %w", err)
		}
		_, err = outbox.Add(ctx, tx, event.KindListingCreated, snap)
		return err
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("listing created", "listing_id", id, "seller_id", in.SellerID)
	return id, nil
}

// UpdateListing applies an amount or status change and records a
// ListingUpdated event with the full updated snapshot.
func (s *Service) UpdateListing(ctx context.Context, id string, amount float64, status string) error {
	now := s.now().UTC()
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		snap, err := s.loadListing(ctx, tx, id)
		if err != nil {
			return err
		}
		if amount > 0 {
			snap.Amount = amount
		}
		if status != "" {
			snap.Status = status
		}
		snap.UpdatedAt = &now
		snap.OccurredAt = now

		_, err = tx.ExecContext(ctx,
			`UPDATE listings SET amount = $1, status = $2, updated_at = $3 WHERE id = $4`,
			snap.Amount, snap.Status, now, id,
		)
		if err != nil {
			return fmt.Errorf("updating listing %s: %w", id, err)
		}
		_, err = outbox.Add(ctx, tx, event.KindListingUpdated, snap)
		return err
	})
}

// CancelListing withdraws a listing. The cancellation event removes the
// search document downstream.
func (s *Service) CancelListing(ctx context.Context, id string) error {
	now := s.now().UTC()
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		snap, err := s.loadListing(ctx, tx, id)
		if err != nil {
			return err
		}
		snap.Status = "Cancelled"
		snap.UpdatedAt = &now
		snap.OccurredAt = now

		_, err = tx.ExecContext(ctx,
			`UPDATE listings SET status = $1, updated_at = $2 WHERE id = $3`,
			snap.Status, now, id,
		)
		if err != nil {
			return fmt.Errorf("cancelling listing %s: %w", id, err)
		}
		_, err = outbox.Add(ctx, tx, event.KindListingCancelled, snap)
		return err
	})
}

// CreatePurchase inserts the purchase and its PurchaseCreated outbox record
// atomically and returns the new purchase id.
func (s *Service) CreatePurchase(ctx context.Context, in PurchaseInput) (string, error) {
	if in.BuyerID == "" || in.ListingID == "" {
		return "", apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"buyer_id and listing_id are required")
	}

	id := uuid.NewString()
	now := s.now().UTC()
	snap := event.PurchaseSnapshot{
		PurchaseID:   id,
		BuyerID:      in.BuyerID,
		ListingID:    in.ListingID,
		Amount:       in.Amount,
		Status:       "Pending",
		PurchaseDate: now,
		CreatedAt:    now,
		OccurredAt:   now,
	}

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO purchases (id, buyer_id, listing_id, amount, status, purchase_date, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, in.BuyerID, in.ListingID, in.Amount, snap.Status, now, now,
		)
		if err != nil {
			return fmt.Errorf("inserting purchase: %w", err)
		}
		_, err = outbox.Add(ctx, tx, event.KindPurchaseCreated, snap)
		return err
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("purchase created", "purchase_id", id, "buyer_id", in.BuyerID)
	return id, nil
}

// UpdatePurchase applies a status change and records a PurchaseUpdated event.
func (s *Service) UpdatePurchase(ctx context.Context, id, status string) error {
	if status == "" {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "status is required")
	}
	now := s.now().UTC()
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		var snap event.PurchaseSnapshot
		err := tx.QueryRowContext(ctx,
			`SELECT id, buyer_id, listing_id, amount, status, purchase_date, created_at
			 FROM purchases WHERE id = $1`, id,
		).Scan(&snap.PurchaseID, &snap.BuyerID, &snap.ListingID, &snap.Amount,
			&snap.Status, &snap.PurchaseDate, &snap.CreatedAt)
		if err == sql.ErrNoRows {
			return apperrors.New(apperrors.ErrNotFound, http.StatusNotFound, "purchase not found")
		}
		if err != nil {
			return fmt.Errorf("loading purchase %s: %w", id, err)
		}
		snap.Status = status
		snap.OccurredAt = now

		_, err = tx.ExecContext(ctx,
			`UPDATE purchases SET status = $1 WHERE id = $2`, status, id,
		)
		if err != nil {
			return fmt.Errorf("updating purchase %s: %w", id, err)
		}
		_, err = outbox.Add(ctx, tx, event.KindPurchaseUpdated, snap)
		return err
	})
}

// CreateTransport inserts the transport job and its TransportCreated outbox
// record atomically and returns the new transport id.
func (s *Service) CreateTransport(ctx context.Context, in TransportInput) (string, error) {
	if in.CarrierID == "" || in.PurchaseID == "" {
		return "", apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"carrier_id and purchase_id are required")
	}

	id := uuid.NewString()
	now := s.now().UTC()
	snap := event.TransportSnapshot{
		TransportID:     id,
		CarrierID:       in.CarrierID,
		PurchaseID:      in.PurchaseID,
		PickupCity:      in.PickupCity,
		PickupState:     in.PickupState,
		PickupCountry:   in.PickupCountry,
		DeliveryCity:    in.DeliveryCity,
		DeliveryState:   in.DeliveryState,
		DeliveryCountry: in.DeliveryCountry,
		ScheduleDate:    in.ScheduleDate,
		Status:          "Scheduled",
		EstimatedCost:   in.EstimatedCost,
		Notes:           in.Notes,
		CreatedAt:       now,
		OccurredAt:      now,
	}

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transports
			   (id, carrier_id, purchase_id, pickup_city, pickup_state, pickup_country,
			    delivery_city, delivery_state, delivery_country, schedule_date, status,
			    estimated_cost, notes, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			id, in.CarrierID, in.PurchaseID, in.PickupCity, in.PickupState, in.PickupCountry,
			in.DeliveryCity, in.DeliveryState, in.DeliveryCountry, in.ScheduleDate, snap.Status,
			in.EstimatedCost, in.Notes, now,
		)
		if err != nil {
			return fmt.Errorf("inserting transport: %w", err)
		}
		_, err = outbox.Add(ctx, tx, event.KindTransportCreated, snap)
		return err
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("transport created", "transport_id", id, "carrier_id", in.CarrierID)
	return id, nil
}

// UpdateTransport applies a status change and records a TransportUpdated
// event.
func (s *Service) UpdateTransport(ctx context.Context, id, status string) error {
	if status == "" {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "status is required")
	}
	now := s.now().UTC()
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		var snap event.TransportSnapshot
		var notes sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT id, carrier_id, purchase_id, pickup_city, pickup_state, pickup_country,
			        delivery_city, delivery_state, delivery_country, schedule_date, status,
			        estimated_cost, notes, created_at
			 FROM transports WHERE id = $1`, id,
		).Scan(&snap.TransportID, &snap.CarrierID, &snap.PurchaseID,
			&snap.PickupCity, &snap.PickupState, &snap.PickupCountry,
			&snap.DeliveryCity, &snap.DeliveryState, &snap.DeliveryCountry,
			&snap.ScheduleDate, &snap.Status, &snap.EstimatedCost, &notes, &snap.CreatedAt)
		if err == sql.ErrNoRows {
			return apperrors.New(apperrors.ErrNotFound, http.StatusNotFound, "transport not found")
		}
		if err != nil {
			return fmt.Errorf("loading transport %s: %w", id, err)
		}
		snap.Notes = notes.String
		snap.Status = status
		snap.OccurredAt = now

		_, err = tx.ExecContext(ctx,
			`UPDATE transports SET status = $1 WHERE id = $2`, status, id,
		)
		if err != nil {
			return fmt.Errorf("updating transport %s: %w", id, err)
		}
		_, err = outbox.Add(ctx, tx, event.KindTransportUpdated, snap)
		return err
	})
}

func (s *Service) loadListing(ctx context.Context, tx *sql.Tx, id string) (event.ListingSnapshot, error) {
	var snap event.ListingSnapshot
	var updatedAt sql.NullTime
	err := tx.QueryRowContext(ctx,
		`SELECT id, seller_id, vin, make, model, year, amount, status, created_at, updated_at
		 FROM listings WHERE id = $1`, id,
	).Scan(&snap.ListingID, &snap.SellerID, &snap.VIN, &snap.Make, &snap.Model,
		&snap.Year, &snap.Amount, &snap.Status, &snap.CreatedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return snap, apperrors.New(apperrors.ErrNotFound, http.StatusNotFound, "listing not found")
	}
	if err != nil {
		return snap, fmt.Errorf("loading listing %s: %w", id, err)
	}
	if updatedAt.Valid {
		snap.UpdatedAt = &updatedAt.Time
	}
	return snap, nil
}
