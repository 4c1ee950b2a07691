// Package outbox implements the transactional outbox: event records written
// in the same transaction as the domain mutation they describe, then
// published asynchronously by the dispatcher. Records are never deleted; the
// table doubles as an audit trail.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jdelgadillo/marketplace-search/internal/event"
)

// Record is one pending or sent event. A record is due for dispatch iff
// ProcessedAt is nil and RetryCount is below the configured cap. Only the
// dispatcher mutates a record after creation.
type Record struct {
	ID          uuid.UUID
	EventType   event.Kind
	Payload     json.RawMessage
	CreatedAt   time.Time
	ProcessedAt *time.Time
	RetryCount  int
	LastError   *string
}

// Outcome is the result of one publish attempt within a dispatch cycle. All
// outcomes of a cycle are committed together.
type Outcome struct {
	RecordID  uuid.UUID
	Published bool
	Error     string
}
