package baseprice

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/stayrate/pricing-service/internal/pricing"
)

type mockStore struct {
	bp  *BasePrice
	err error
}

func (m *mockStore) ActiveBasePrice(ctx context.Context, venueID, productID string) (*BasePrice, error) {
	return m.bp, m.err
}

func TestResolveConfiguredPrice(t *testing.T) {
	configured := &BasePrice{
		ID:       "BP_abc",
		VenueID:  "venue-001",
		Amount:   decimal.NewFromInt(180),
		Currency: "EUR",
		TaxRate:  decimal.NewFromFloat(0.13),
		Version:  3,
		Active:   true,
	}
	r := NewResolver(&mockStore{bp: configured}, DefaultDefaults(), nil)

	bp, fromDefault := r.Resolve(context.Background(), "venue-001", "room-standard", pricing.VenueHotel)

	assert.False(t, fromDefault)
	assert.True(t, bp.Amount.Equal(decimal.NewFromInt(180)))
	assert.Equal(t, 3, bp.Version)
}

func TestResolveFallsBackToVenueTypeDefault(t *testing.T) {
	r := NewResolver(&mockStore{bp: nil}, DefaultDefaults(), nil)

	tests := []struct {
		venueType pricing.VenueType
		expected  string
	}{
		{pricing.VenueHotel, "150"},
		{pricing.VenueRestaurant, "45"},
		{pricing.VenueCafe, "20"},
		{pricing.VenueBar, "30"},
		{pricing.VenueEventSpace, "200"},
		{pricing.VenueType("spa"), "100"}, // unknown type uses fallback
	}

	for _, tt := range tests {
		t.Run(string(tt.venueType), func(t *testing.T) {
			bp, fromDefault := r.Resolve(context.Background(), "venue-x", "", tt.venueType)
			assert.True(t, fromDefault)
			assert.True(t, bp.Amount.Equal(decimal.RequireFromString(tt.expected)),
				"amount = %s, want %s", bp.Amount, tt.expected)
			assert.Equal(t, "EUR", bp.Currency)
		})
	}
}

func TestResolveStoreErrorUsesDefault(t *testing.T) {
	r := NewResolver(&mockStore{err: errors.New("db down")}, DefaultDefaults(), nil)

	bp, fromDefault := r.Resolve(context.Background(), "venue-001", "", pricing.VenueHotel)

	assert.True(t, fromDefault, "store failure must never fail the request")
	assert.True(t, bp.Amount.Equal(decimal.NewFromInt(150)))
}
