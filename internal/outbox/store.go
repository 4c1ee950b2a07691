package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jdelgadillo/marketplace-search/internal/event"
)

// Store persists outbox records in PostgreSQL.
//
// FetchDue and ApplyOutcomes assume a single dispatcher instance per outbox
// table: the select-then-update is not safe against double-publish when run
// as multiple replicas. That would need SELECT ... FOR UPDATE SKIP LOCKED or
// leader election; see DESIGN.md.
type Store struct {
	db       *sql.DB
	maxRetry int
}

// NewStore creates a Store with the given retry cap.
func NewStore(db *sql.DB, maxRetry int) *Store {
	return &Store{db: db, maxRetry: maxRetry}
}

// Add inserts a new outbox record inside the caller's transaction. The caller
// writes its domain row in the same transaction; the pair commits or fails
// atomically.
func Add(ctx context.Context, tx *sql.Tx, kind event.Kind, payload any) (uuid.UUID, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshaling %s payload: %w", kind, err)
	}
	id := uuid.New()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox (id, event_type, payload, created_at, retry_count)
		 VALUES ($1, $2, $3, NOW(), 0)`,
		id, string(kind), body,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting outbox record: %w", err)
	}
	return id, nil
}

// FetchDue returns up to batchSize due records, oldest first.
func (s *Store) FetchDue(ctx context.Context, batchSize int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, payload, created_at, processed_at, retry_count, last_error
		 FROM outbox
		 WHERE processed_at IS NULL AND retry_count < $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		s.maxRetry, batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting due outbox records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var eventType string
		if err := rows.Scan(&r.ID, &eventType, &r.Payload, &r.CreatedAt,
			&r.ProcessedAt, &r.RetryCount, &r.LastError); err != nil {
			return nil, fmt.Errorf("scanning outbox record: %w", err)
		}
		r.EventType = event.Kind(eventType)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outbox records: %w", err)
	}
	return records, nil
}

// ApplyOutcomes commits all outcomes of one dispatch cycle in a single
// transaction: published records get processed_at set, failed ones get
// retry_count incremented and last_error recorded.
func (s *Store) ApplyOutcomes(ctx context.Context, outcomes []Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning outcome transaction: %w", err)
	}
	now := time.Now().UTC()
	for _, o := range outcomes {
		if o.Published {
			_, err = tx.ExecContext(ctx,
				`UPDATE outbox SET processed_at = $1 WHERE id = $2`,
				now, o.RecordID,
			)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE outbox SET retry_count = retry_count + 1, last_error = $1 WHERE id = $2`,
				o.Error, o.RecordID,
			)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("rolling back outcomes after error %v: %w", rbErr, err)
			}
			return fmt.Errorf("applying outcome for record %s: %w", o.RecordID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing outcomes: %w", err)
	}
	return nil
}

// CountExhausted returns the number of records that reached the retry cap.
// These are permanently excluded from dispatch and need manual intervention.
func (s *Store) CountExhausted(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL AND retry_count >= $1`,
		s.maxRetry,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting exhausted records: %w", err)
	}
	return count, nil
}
