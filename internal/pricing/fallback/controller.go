// Package fallback implements the degradation cascade that guarantees
// a price is always produced: rule engine, then cached recent AI
// decisions, then a bare occupancy heuristic on the base price.
package fallback

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stayrate/pricing-service/internal/metrics"
	"github.com/stayrate/pricing-service/internal/money"
	"github.com/stayrate/pricing-service/internal/pricing"
	"github.com/stayrate/pricing-service/internal/pricing/rules"
)

// Strategy selects the first tier the cascade tries.
type Strategy string

const (
	StrategyRuleBased Strategy = "rule_based"
	StrategyCached    Strategy = "cached"
	StrategyBasePrice Strategy = "base_price"
)

// Fallback entry reasons recorded for analysis.
const (
	ReasonAIUnavailable   = "ai_unavailable"
	ReasonAILowConfidence = "ai_low_confidence"
	ReasonAIDisabled      = "ai_disabled"
)

// Result is the outcome of the cascade. Price is always set.
type Result struct {
	Price      decimal.Decimal
	Source     pricing.Source
	Confidence float64
	Breakdown  pricing.Breakdown
	Message    string
}

// RuleEvaluator is the rule-engine boundary.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, in rules.EvalInput) (rules.EvaluationResult, error)
}

// DecisionCache looks up recent AI-sourced decision totals for reuse.
// Implemented by the decision ledger.
type DecisionCache interface {
	RecentAIPrice(ctx context.Context, venueID string, partySize, hourOfDay int, since time.Time) (decimal.Decimal, bool, error)
}

// Config tunes the cascade.
type Config struct {
	Strategy Strategy

	// CacheTTL bounds how old a cached AI decision may be for reuse.
	CacheTTL time.Duration

	// Confidence tiers, strictly ordered rule > cached > base. They
	// are persisted verbatim on the decision for later analysis.
	RuleConfidence  float64
	CacheConfidence float64
	BaseConfidence  float64

	// Occupancy thresholds for the terminal heuristic.
	HighOccupancy float64
	LowOccupancy  float64
}

// DefaultConfig returns the default cascade tuning.
func DefaultConfig() Config {
	return Config{
		Strategy:        StrategyRuleBased,
		CacheTTL:        15 * time.Minute,
		RuleConfidence:  0.8,
		CacheConfidence: 0.6,
		BaseConfidence:  0.5,
		HighOccupancy:   0.85,
		LowOccupancy:    0.30,
	}
}

// Controller orchestrates the fallback cascade. GetPrice never fails:
// each tier degrades to the next, and the terminal base-price
// heuristic has no external dependencies.
type Controller struct {
	rules  RuleEvaluator
	cache  DecisionCache
	cfg    Config
	logger *zerolog.Logger
}

// NewController creates a fallback controller. rules and cache may be
// nil; the corresponding tiers then degrade immediately.
func NewController(ruleEval RuleEvaluator, cache DecisionCache, cfg Config, logger *zerolog.Logger) *Controller {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}
	return &Controller{rules: ruleEval, cache: cache, cfg: cfg, logger: logger}
}

// GetPrice runs the cascade starting from the configured strategy and
// always returns a valid price.
func (c *Controller) GetPrice(ctx context.Context, basePrice decimal.Decimal, bctx pricing.BookingContext, reason string) Result {
	var result Result
	switch c.cfg.Strategy {
	case StrategyCached:
		result = c.cachedPrice(ctx, basePrice, bctx)
	case StrategyBasePrice:
		result = c.heuristicPrice(basePrice, bctx)
	default:
		result = c.ruleBasedPrice(ctx, basePrice, bctx)
	}

	metrics.RecordFallback(reason, string(result.Source))
	c.logger.Info().
		Str("reason", reason).
		Str("source", string(result.Source)).
		Str("price", result.Price.String()).
		Float64("confidence", result.Confidence).
		Msg("Fallback price computed")
	return result
}

// cachedPrice reuses a recent AI-sourced decision for the same venue,
// party size and hour of day, at reduced confidence. Misses degrade
// to the rule engine.
func (c *Controller) cachedPrice(ctx context.Context, basePrice decimal.Decimal, bctx pricing.BookingContext) Result {
	if c.cache == nil {
		return c.ruleBasedPrice(ctx, basePrice, bctx)
	}

	since := time.Now().Add(-c.cfg.CacheTTL)
	price, found, err := c.cache.RecentAIPrice(ctx, bctx.VenueID, bctx.PartySize, bctx.BookingTime.Hour(), since)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Decision cache lookup failed, degrading to rule engine")
		return c.ruleBasedPrice(ctx, basePrice, bctx)
	}
	if !found {
		return c.ruleBasedPrice(ctx, basePrice, bctx)
	}

	return Result{
		Price:      money.Round2(price),
		Source:     pricing.SourceFallbackCached,
		Confidence: c.cfg.CacheConfidence,
		Breakdown:  pricing.Breakdown{},
		Message:    "reused recent AI-priced decision",
	}
}

// ruleBasedPrice delegates to the rule engine, degrading to the
// heuristic on any internal failure.
func (c *Controller) ruleBasedPrice(ctx context.Context, basePrice decimal.Decimal, bctx pricing.BookingContext) Result {
	if c.rules == nil {
		return c.heuristicPrice(basePrice, bctx)
	}

	eval, err := c.rules.Evaluate(ctx, rules.EvalInput{
		BasePrice:   basePrice,
		VenueID:     bctx.VenueID,
		VenueType:   bctx.VenueType,
		BookingTime: bctx.BookingTime,
		PartySize:   bctx.PartySize,
		GuestTier:   bctx.GuestTier,
		Demand:      bctx.Demand,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("Rule engine failed, degrading to base-price heuristic")
		return c.heuristicPrice(basePrice, bctx)
	}

	return Result{
		Price:      eval.AdjustedPrice,
		Source:     pricing.SourceRuleEngine,
		Confidence: c.cfg.RuleConfidence,
		Breakdown:  eval.AdjustmentsByType,
		Message:    "rule engine pricing",
	}
}

// heuristicPrice is the guaranteed terminal tier: a single coarse
// occupancy multiplier on the base price. No external calls, no
// storage, cannot fail.
func (c *Controller) heuristicPrice(basePrice decimal.Decimal, bctx pricing.BookingContext) Result {
	multiplier := decimal.NewFromInt(1)
	if bctx.Demand != nil {
		// Absent demand data stays neutral; only a real occupancy
		// reading moves the price.
		switch occupancy := bctx.Demand.OccupancyRate; {
		case occupancy >= c.cfg.HighOccupancy:
			multiplier = decimal.NewFromFloat(1.10)
		case occupancy <= c.cfg.LowOccupancy:
			multiplier = decimal.NewFromFloat(0.95)
		}
	}

	price := money.Round2(basePrice.Mul(multiplier))
	breakdown := pricing.Breakdown{}
	if !price.Equal(basePrice) {
		breakdown.Add(pricing.AdjustDemand, price.Sub(basePrice))
	}

	return Result{
		Price:      price,
		Source:     pricing.SourceFallbackBase,
		Confidence: c.cfg.BaseConfidence,
		Breakdown:  breakdown,
		Message:    "base-price occupancy heuristic",
	}
}
