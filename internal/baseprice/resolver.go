// Package baseprice resolves the currently valid base price for a
// venue and product, falling back to a venue-type default table when
// no configuration exists.
package baseprice

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stayrate/pricing-service/internal/pricing"
)

// BasePrice is the venue+product scoped price configuration. At most
// one active BasePrice exists per (venue, product) at any instant.
type BasePrice struct {
	ID           string
	VenueID      string
	ProductID    string
	Amount       decimal.Decimal
	Currency     string
	TaxRate      decimal.Decimal
	TaxInclusive bool
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	ValidFrom    time.Time
	ValidUntil   *time.Time
	Version      int
	Active       bool
}

// Store is the read boundary for base price configuration. A nil
// result with nil error means no active price is configured.
type Store interface {
	ActiveBasePrice(ctx context.Context, venueID, productID string) (*BasePrice, error)
}

// Defaults carry the venue-type default amounts used when no base
// price is configured.
type Defaults struct {
	Amounts  map[pricing.VenueType]decimal.Decimal
	Fallback decimal.Decimal
	Currency string
	TaxRate  decimal.Decimal
}

// DefaultDefaults returns the built-in venue-type default table.
func DefaultDefaults() Defaults {
	return Defaults{
		Amounts: map[pricing.VenueType]decimal.Decimal{
			pricing.VenueHotel:      decimal.NewFromInt(150),
			pricing.VenueRestaurant: decimal.NewFromInt(45),
			pricing.VenueCafe:       decimal.NewFromInt(20),
			pricing.VenueBar:        decimal.NewFromInt(30),
			pricing.VenueEventSpace: decimal.NewFromInt(200),
		},
		Fallback: decimal.NewFromInt(100),
		Currency: "EUR",
		TaxRate:  decimal.NewFromFloat(0.10),
	}
}

// Resolver looks up base prices and never fails a request: a missing
// configuration resolves to the venue-type default with a warning.
type Resolver struct {
	store    Store
	defaults Defaults
	logger   *zerolog.Logger
}

// NewResolver creates a resolver over the given store.
func NewResolver(store Store, defaults Defaults, logger *zerolog.Logger) *Resolver {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}
	return &Resolver{store: store, defaults: defaults, logger: logger}
}

// Resolve returns the active base price for venue+product, or the
// venue-type default. fromDefault reports which path was taken.
func (r *Resolver) Resolve(ctx context.Context, venueID, productID string, venueType pricing.VenueType) (BasePrice, bool) {
	if r.store != nil {
		bp, err := r.store.ActiveBasePrice(ctx, venueID, productID)
		if err != nil {
			r.logger.Warn().
				Err(err).
				Str("venue_id", venueID).
				Msg("Base price lookup failed, using venue-type default")
		} else if bp != nil {
			return *bp, false
		}
	}

	amount, ok := r.defaults.Amounts[venueType]
	if !ok {
		amount = r.defaults.Fallback
	}
	r.logger.Warn().
		Str("venue_id", venueID).
		Str("venue_type", string(venueType)).
		Str("default_amount", amount.String()).
		Msg("No active base price configured, using venue-type default")

	return BasePrice{
		VenueID:   venueID,
		ProductID: productID,
		Amount:    amount,
		Currency:  r.defaults.Currency,
		TaxRate:   r.defaults.TaxRate,
		ValidFrom: time.Now(),
		Version:   0,
		Active:    false,
	}, true
}
