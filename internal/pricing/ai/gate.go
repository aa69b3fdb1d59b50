package ai

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stayrate/pricing-service/internal/metrics"
	"github.com/stayrate/pricing-service/internal/money"
	"github.com/stayrate/pricing-service/internal/pricing"
)

// GateConfig bounds what the gate accepts from a suggester.
type GateConfig struct {
	// MinConfidence below which suggestions are rejected.
	MinConfidence float64

	// MaxDeviation is the largest allowed |suggested-base|/base.
	MaxDeviation float64

	// FloorMultiplier/CeilingMultiplier bound the accepted price
	// relative to the base price (shared with the rule engine).
	FloorMultiplier   decimal.Decimal
	CeilingMultiplier decimal.Decimal

	// Timeout bounds the suggester call; the pipeline never blocks
	// indefinitely on the model.
	Timeout time.Duration
}

// DefaultGateConfig returns the default validation thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinConfidence:     0.7,
		MaxDeviation:      0.5,
		FloorMultiplier:   decimal.NewFromFloat(0.5),
		CeilingMultiplier: decimal.NewFromFloat(3.0),
		Timeout:           3 * time.Second,
	}
}

// Decline classifies why the gate refused a suggestion. DeclineNone
// means the suggestion was accepted. The class feeds the fallback
// entry reason: low confidence degrades differently from an
// unreachable model.
type Decline string

const (
	DeclineNone          Decline = ""
	DeclineNoSuggester   Decline = "no_suggester"
	DeclineError         Decline = "error"
	DeclineTimeout       Decline = "timeout"
	DeclineLowConfidence Decline = "low_confidence"
	DeclineDeviation     Decline = "deviation"
	DeclineOutOfBounds   Decline = "out_of_bounds"
)

// Gate validates suggestions from an external capability before they
// are allowed to price a booking. Every failure mode, provider error,
// timeout, low confidence, excessive deviation or out-of-bounds price,
// results in (zero, Decline); the gate never returns an error.
type Gate struct {
	suggester Suggester
	cfg       GateConfig
	logger    *zerolog.Logger
}

// NewGate creates a validation gate around the given suggester.
func NewGate(suggester Suggester, cfg GateConfig, logger *zerolog.Logger) *Gate {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}
	return &Gate{suggester: suggester, cfg: cfg, logger: logger}
}

// Suggest asks the capability for a price and validates the result.
// A non-empty Decline means no acceptable suggestion is available and
// carries the rejection class.
func (g *Gate) Suggest(ctx context.Context, basePrice decimal.Decimal, bctx pricing.BookingContext) (Suggestion, Decline) {
	if g.suggester == nil {
		return Suggestion{}, DeclineNoSuggester
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	suggestion, err := g.suggester.Suggest(callCtx, Request{BasePrice: basePrice, Context: bctx})
	latency := time.Since(start)
	metrics.ObserveAISuggestion(latency)

	if err != nil {
		decline := DeclineError
		if callCtx.Err() != nil {
			decline = DeclineTimeout
		}
		metrics.RecordAIRejection(string(decline))
		g.logger.Warn().
			Err(err).
			Str("venue_id", bctx.VenueID).
			Dur("latency", latency).
			Msg("AI suggestion unavailable")
		return Suggestion{}, decline
	}

	suggestion.Latency = latency
	if suggestion.ModelVersion == "" {
		suggestion.ModelVersion = g.suggester.ModelVersion()
	}

	if suggestion.Confidence < g.cfg.MinConfidence {
		metrics.RecordAIRejection(string(DeclineLowConfidence))
		g.logger.Info().
			Float64("confidence", suggestion.Confidence).
			Float64("threshold", g.cfg.MinConfidence).
			Str("venue_id", bctx.VenueID).
			Msg("AI suggestion rejected: confidence below threshold")
		return Suggestion{}, DeclineLowConfidence
	}

	if basePrice.IsPositive() {
		deviation := suggestion.Price.Sub(basePrice).Abs().Div(basePrice)
		if deviation.GreaterThan(decimal.NewFromFloat(g.cfg.MaxDeviation)) {
			metrics.RecordAIRejection(string(DeclineDeviation))
			g.logger.Warn().
				Str("suggested", suggestion.Price.String()).
				Str("base", basePrice.String()).
				Msg("AI suggestion rejected: deviation exceeds bound")
			return Suggestion{}, DeclineDeviation
		}
	}

	floor := basePrice.Mul(g.cfg.FloorMultiplier)
	ceiling := basePrice.Mul(g.cfg.CeilingMultiplier)
	if suggestion.Price.LessThan(floor) || suggestion.Price.GreaterThan(ceiling) {
		metrics.RecordAIRejection(string(DeclineOutOfBounds))
		g.logger.Warn().
			Str("suggested", suggestion.Price.String()).
			Str("floor", floor.String()).
			Str("ceiling", ceiling.String()).
			Msg("AI suggestion rejected: outside price bounds")
		return Suggestion{}, DeclineOutOfBounds
	}

	suggestion.Price = money.Round2(suggestion.Price)
	return suggestion, DeclineNone
}
