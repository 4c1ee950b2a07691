package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jdelgadillo/marketplace-search/pkg/errors"
)

func TestRoutingKey(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{KindListingCreated, "listing.created"},
		{KindListingUpdated, "listing.updated"},
		{KindListingCancelled, "listing.cancelled"},
		{KindPurchaseCreated, "purchase.created"},
		{KindPurchaseUpdated, "purchase.updated"},
		{KindTransportCreated, "transport.created"},
		{KindTransportUpdated, "transport.updated"},
	}
	for _, tc := range cases {
		got, err := tc.kind.RoutingKey()
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestRoutingKeyUnknownKind(t *testing.T) {
	_, err := Kind("BogusEvent").RoutingKey()
	assert.ErrorIs(t, err, apperrors.ErrUnknownEventType)
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, KindListingCancelled, KindFor(EntityListing, ActionCancelled))
	assert.Equal(t, KindPurchaseUpdated, KindFor(EntityPurchase, ActionUpdated))
	assert.Equal(t, KindTransportCreated, KindFor(EntityTransport, ActionCreated))
}

func TestParseEntityType(t *testing.T) {
	for _, s := range []string{"listing", "Listing", "LISTING"} {
		et, ok := ParseEntityType(s)
		require.True(t, ok, s)
		assert.Equal(t, EntityListing, et)
	}
	_, ok := ParseEntityType("invoice")
	assert.False(t, ok)
}

func TestDecodeListingCreated(t *testing.T) {
	payload := []byte(`{
		"listing_id": "l-1",
		"seller_id": "s-1",
		"vin": "1HGBH41JXMN109186",
		"make": "Toyota",
		"model": "Camry",
		"year": 2022,
		"amount": 25000,
		"status": "Active",
		"created_at": "2026-01-02T03:04:05Z",
		"occurred_at": "2026-01-02T03:04:05Z",
		"unexpected_field": true
	}`)

	ev, err := Decode(KindListingCreated, payload)
	require.NoError(t, err)

	created, ok := ev.(ListingCreated)
	require.True(t, ok)
	assert.Equal(t, "l-1", created.EntityID())
	assert.Equal(t, EntityListing, created.Entity())
	assert.Equal(t, ActionCreated, created.Action())
	assert.Equal(t, "Toyota", created.Make)
	assert.Equal(t, 2022, created.Year)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), created.CreatedAt)
}

func TestDecodeEveryKind(t *testing.T) {
	payloads := map[Kind][]byte{
		KindListingCreated:   []byte(`{"listing_id":"l-1"}`),
		KindListingUpdated:   []byte(`{"listing_id":"l-1"}`),
		KindListingCancelled: []byte(`{"listing_id":"l-1"}`),
		KindPurchaseCreated:  []byte(`{"purchase_id":"p-1"}`),
		KindPurchaseUpdated:  []byte(`{"purchase_id":"p-1"}`),
		KindTransportCreated: []byte(`{"transport_id":"t-1"}`),
		KindTransportUpdated: []byte(`{"transport_id":"t-1"}`),
	}
	for kind, payload := range payloads {
		ev, err := Decode(kind, payload)
		require.NoError(t, err, string(kind))

		gotKind := KindFor(ev.Entity(), ev.Action())
		assert.Equal(t, kind, gotKind)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode(Kind("ListingDeleted"), []byte(`{}`))
	assert.ErrorIs(t, err, apperrors.ErrUnknownEventType)
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode(KindPurchaseCreated, []byte(`{"purchase_id":`))
	assert.Error(t, err)
}
