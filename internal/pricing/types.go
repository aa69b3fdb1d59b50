// Package pricing defines the shared types flowing through the pricing
// pipeline: the booking context, demand snapshots, price sources and
// per-category adjustment breakdowns.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// VenueType classifies a venue for base-price defaults and per-person
// price scaling.
type VenueType string

const (
	VenueHotel      VenueType = "hotel"
	VenueRestaurant VenueType = "restaurant"
	VenueCafe       VenueType = "cafe"
	VenueBar        VenueType = "bar"
	VenueEventSpace VenueType = "venue"
)

// PerPerson reports whether prices for this venue type scale with
// party size.
func (v VenueType) PerPerson() bool {
	switch v {
	case VenueRestaurant, VenueCafe, VenueBar:
		return true
	default:
		return false
	}
}

// Source identifies which tier of the pipeline produced a price.
type Source string

const (
	SourceAIModel        Source = "ai_model"
	SourceRuleEngine     Source = "rule_engine"
	SourceFallbackCached Source = "fallback_cached"
	SourceFallbackBase   Source = "fallback_base"
	SourceManualOverride Source = "manual_override"
	SourcePromotional    Source = "promotional"
)

// Adjustment breakdown categories. Every adjustment a decision carries
// is grouped under one of these keys.
const (
	AdjustDemand      = "demand"
	AdjustSeasonal    = "seasonal"
	AdjustTime        = "time"
	AdjustLoyalty     = "loyalty"
	AdjustPromotional = "promotional"
	AdjustAI          = "ai"
	AdjustClamp       = "clamp"
)

// Breakdown maps an adjustment category to its monetary effect.
type Breakdown map[string]decimal.Decimal

// Add accumulates an amount under a category.
func (b Breakdown) Add(category string, amount decimal.Decimal) {
	if existing, ok := b[category]; ok {
		b[category] = existing.Add(amount)
		return
	}
	b[category] = amount
}

// Clone returns an independent copy of the breakdown.
func (b Breakdown) Clone() Breakdown {
	out := make(Breakdown, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// DemandSnapshot is live demand data for a venue at a point in time.
// It is an opaque input to pricing; the service never computes it.
type DemandSnapshot struct {
	OccupancyRate     float64 `json:"occupancy_rate"`
	DemandLevel       string  `json:"demand_level"`
	HistoricalAverage float64 `json:"historical_average,omitempty"`
}

// BookingContext is the immutable per-request input to a pricing
// computation. Demand is nil when the demand provider was unavailable.
type BookingContext struct {
	VenueID         string
	VenueType       VenueType
	BookingTime     time.Time
	DurationMinutes int
	PartySize       int
	GuestID         string
	GuestTier       string
	Demand          *DemandSnapshot
}

// OccupancyRate returns the demand occupancy, or 0 when demand data is
// absent.
func (c BookingContext) OccupancyRate() float64 {
	if c.Demand == nil {
		return 0
	}
	return c.Demand.OccupancyRate
}
