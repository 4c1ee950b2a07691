package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdelgadillo/marketplace-search/internal/event"
)

func TestAddInsertsRecordInCallerTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(sqlmock.AnyArg(), string(event.KindListingCreated), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	id, err := Add(context.Background(), tx, event.KindListingCreated, map[string]string{"listing_id": "l-1"})
	require.NoError(t, err)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", id.String())

	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddRejectsUnserializablePayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	_, err = Add(context.Background(), tx, event.KindListingCreated, make(chan int))
	assert.Error(t, err)
	require.NoError(t, tx.Rollback())
}

func TestFetchDueSelectsOldestFirstBelowRetryCap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "event_type", "payload", "created_at", "processed_at", "retry_count", "last_error",
	}).
		AddRow("0b508045-7257-45b1-bf09-02b4bd8efc51", "ListingCreated", []byte(`{}`), now.Add(-2*time.Minute), nil, 0, nil).
		AddRow("95c01be9-5b11-46a2-a2ac-4a7cb72e1677", "PurchaseCreated", []byte(`{}`), now.Add(-time.Minute), nil, 2, nil)

	mock.ExpectQuery("SELECT id, event_type, payload, created_at, processed_at, retry_count, last_error").
		WithArgs(5, 100).
		WillReturnRows(rows)

	store := NewStore(db, 5)
	records, err := store.FetchDue(context.Background(), 100)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, event.Kind("ListingCreated"), records[0].EventType)
	assert.Equal(t, event.Kind("PurchaseCreated"), records[1].EventType)
	assert.True(t, records[0].CreatedAt.Before(records[1].CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyOutcomesCommitsTogether(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	okID := "0b508045-7257-45b1-bf09-02b4bd8efc51"
	failID := "95c01be9-5b11-46a2-a2ac-4a7cb72e1677"

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE outbox SET processed_at").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE outbox SET retry_count = retry_count \\+ 1").
		WithArgs("connection refused", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewStore(db, 5)
	err = store.ApplyOutcomes(context.Background(), []Outcome{
		{RecordID: mustUUID(t, okID), Published: true},
		{RecordID: mustUUID(t, failID), Published: false, Error: "connection refused"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyOutcomesEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db, 5)
	require.NoError(t, store.ApplyOutcomes(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountExhausted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM outbox").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	store := NewStore(db, 5)
	count, err := store.CountExhausted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
