// Package ai wraps the external price-suggestion capability behind a
// validation gate. The provider is abstracted behind the Suggester
// interface; which implementation is used is decided once, at wiring
// time, from configuration.
package ai

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stayrate/pricing-service/internal/pricing"
)

// Request carries the inputs a suggester prices against.
type Request struct {
	BasePrice decimal.Decimal
	Context   pricing.BookingContext
}

// Suggestion is a validated (or to-be-validated) AI price suggestion.
type Suggestion struct {
	Price        decimal.Decimal            `json:"price"`
	Confidence   float64                    `json:"confidence"`
	Adjustments  map[string]decimal.Decimal `json:"adjustments,omitempty"`
	Rationale    string                     `json:"rationale,omitempty"`
	ModelVersion string                     `json:"model_version"`
	Latency      time.Duration              `json:"-"`
}

// Suggester is the pluggable price-suggestion capability. Any error
// it returns is treated as "unavailable" by the gate, never
// propagated upward.
type Suggester interface {
	Suggest(ctx context.Context, req Request) (Suggestion, error)
	ModelVersion() string
}
