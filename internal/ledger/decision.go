// Package ledger owns the lifecycle of price decisions and their
// audit log. Decisions are immutable once created: recalculation
// produces a new versioned record linked through parent_decision_id,
// never an in-place mutation, and status only moves forward.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stayrate/pricing-service/internal/pricing"
)

// Status is the lifecycle state of a decision.
type Status string

const (
	StatusCalculated  Status = "calculated"
	StatusServed      Status = "served"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
	StatusExpired     Status = "expired"
	StatusInvalidated Status = "invalidated"
)

// forwardTransitions enumerates the allowed status moves. Anything
// not listed is an invariant violation; there is no way back to
// calculated.
var forwardTransitions = map[Status][]Status{
	StatusCalculated: {StatusServed, StatusAccepted, StatusRejected, StatusExpired, StatusInvalidated},
	StatusServed:     {StatusAccepted, StatusRejected, StatusExpired, StatusInvalidated},
}

// CanTransition reports whether from -> to is an allowed forward
// move.
func CanTransition(from, to Status) bool {
	for _, allowed := range forwardTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Decision is the audit-grade record of one computed price.
type Decision struct {
	ID                string            `json:"id"`
	Reference         string            `json:"reference"`
	Version           int               `json:"version"`
	ParentDecisionID  *string           `json:"parent_decision_id,omitempty"`
	VenueID           string            `json:"venue_id"`
	VenueType         string            `json:"venue_type"`
	BookingTime       time.Time         `json:"booking_time"`
	PartySize         int               `json:"party_size"`
	GuestTier         string            `json:"guest_tier,omitempty"`
	BasePrice         decimal.Decimal   `json:"base_price"`
	Subtotal          decimal.Decimal   `json:"subtotal"`
	TaxAmount         decimal.Decimal   `json:"tax_amount"`
	DiscountAmount    decimal.Decimal   `json:"discount_amount"`
	TotalPrice        decimal.Decimal   `json:"total_price"`
	Currency          string            `json:"currency"`
	Source            pricing.Source    `json:"source"`
	Status            Status            `json:"status"`
	Confidence        *float64          `json:"confidence,omitempty"`
	ModelVersion      *string           `json:"model_version,omitempty"`
	Breakdown         pricing.Breakdown `json:"breakdown,omitempty"`
	ValidFrom         time.Time         `json:"valid_from"`
	ValidUntil        time.Time         `json:"valid_until"`
	CalculationTimeMS int64             `json:"calculation_time_ms"`
	CreatedAt         time.Time         `json:"created_at"`
	ServedAt          *time.Time        `json:"served_at,omitempty"`
	AcceptedAt        *time.Time        `json:"accepted_at,omitempty"`
	BookingID         *string           `json:"booking_id,omitempty"`
	BookingReference  *string           `json:"booking_reference,omitempty"`
}

// IsValid reports whether the decision can still be acted on: not yet
// terminal and within its validity window. Expiration is passive;
// readers treat a lapsed decision as invalid whether or not the sweep
// has marked it yet.
func (d *Decision) IsValid(now time.Time) bool {
	if d.Status != StatusCalculated && d.Status != StatusServed {
		return false
	}
	return now.Before(d.ValidUntil)
}
