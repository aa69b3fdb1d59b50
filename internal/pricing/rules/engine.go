package rules

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stayrate/pricing-service/internal/metrics"
	"github.com/stayrate/pricing-service/internal/money"
	"github.com/stayrate/pricing-service/internal/pricing"
)

// Store provides the active rule set for an evaluation, ordered by
// priority. Implementations filter by status, soft-deletion and
// validity window.
type Store interface {
	ActiveRules(ctx context.Context, venueID string, venueType pricing.VenueType, at time.Time) ([]Rule, error)
}

// Config holds the global price-bound multipliers applied after rule
// evaluation.
type Config struct {
	FloorMultiplier   decimal.Decimal
	CeilingMultiplier decimal.Decimal
}

// DefaultConfig returns the default clamp bounds: half to triple the
// base price.
func DefaultConfig() Config {
	return Config{
		FloorMultiplier:   decimal.NewFromFloat(0.5),
		CeilingMultiplier: decimal.NewFromFloat(3.0),
	}
}

// Engine evaluates pricing rules against a booking context. It only
// reads rules; rule lifecycle is owned elsewhere.
type Engine struct {
	store  Store
	cfg    Config
	logger *zerolog.Logger
}

// NewEngine creates a rule engine over the given store.
func NewEngine(store Store, cfg Config, logger *zerolog.Logger) *Engine {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}
	return &Engine{store: store, cfg: cfg, logger: logger}
}

// EvalInput is the context one evaluation runs against.
type EvalInput struct {
	BasePrice   decimal.Decimal
	VenueID     string
	VenueType   pricing.VenueType
	BookingTime time.Time
	PartySize   int
	GuestTier   string
	Demand      *pricing.DemandSnapshot
}

// Evaluate runs the active rule set against the input in priority
// order and returns the adjusted price with its full breakdown.
//
// For a fixed rule set and input the result is deterministic: rules
// are ordered by (priority, rule_code) so equal-priority rules never
// depend on storage order. At most one rule per exclusive group can
// match, and a matched non-stackable rule halts further evaluation.
func (e *Engine) Evaluate(ctx context.Context, in EvalInput) (EvaluationResult, error) {
	start := time.Now()

	ruleSet, err := e.store.ActiveRules(ctx, in.VenueID, in.VenueType, in.BookingTime)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("fetch active rules: %w", err)
	}

	sort.SliceStable(ruleSet, func(i, j int) bool {
		if ruleSet[i].Priority != ruleSet[j].Priority {
			return ruleSet[i].Priority < ruleSet[j].Priority
		}
		return ruleSet[i].Code < ruleSet[j].Code
	})

	evalCtx := buildEvalContext(in)

	result := EvaluationResult{
		BasePrice:         in.BasePrice,
		AdjustmentsByType: pricing.Breakdown{},
	}

	floor := in.BasePrice.Mul(e.cfg.FloorMultiplier)
	ceiling := in.BasePrice.Mul(e.cfg.CeilingMultiplier)

	exclusiveUsed := make(map[string]bool)
	total := in.BasePrice

	for i := range ruleSet {
		rule := &ruleSet[i]

		if !rule.appliesTo(in.VenueID, in.VenueType) {
			continue
		}
		if rule.ExclusiveGroup != "" && exclusiveUsed[rule.ExclusiveGroup] {
			continue
		}
		if !rule.timeAllowed(in.BookingTime) {
			continue
		}
		if !allConditionsHold(evalCtx, rule.Conditions) {
			continue
		}

		effect := rule.effect(in.BasePrice)
		total = total.Add(effect)

		result.Matched = append(result.Matched, Match{
			RuleID:   rule.ID,
			RuleCode: rule.Code,
			RuleType: rule.Type,
			Priority: rule.Priority,
			Effect:   money.Round2(effect),
		})
		result.AdjustmentsByType.Add(categoryForType(rule.Type), money.Round2(effect))

		if rule.ExclusiveGroup != "" {
			exclusiveUsed[rule.ExclusiveGroup] = true
		}

		// Rule-level bound overrides narrow the global window.
		if rule.PriceFloor != nil && rule.PriceFloor.GreaterThan(floor) {
			floor = *rule.PriceFloor
		}
		if rule.PriceCeiling != nil && rule.PriceCeiling.LessThan(ceiling) {
			ceiling = *rule.PriceCeiling
		}

		if !rule.Stackable {
			e.logger.Debug().
				Str("rule_code", rule.Code).
				Msg("Non-stackable rule matched, halting evaluation")
			break
		}
	}

	adjusted := money.Round2(total)
	clamped, wasClamped := money.Clamp(adjusted, money.Round2(floor), money.Round2(ceiling))
	if wasClamped {
		// Clamping is visible in the breakdown, never silently dropped.
		result.AdjustmentsByType.Add(pricing.AdjustClamp, clamped.Sub(adjusted))
		e.logger.Info().
			Str("venue_id", in.VenueID).
			Str("adjusted", adjusted.String()).
			Str("clamped", clamped.String()).
			Msg("Adjusted price clamped to configured bounds")
	}
	result.AdjustedPrice = clamped
	result.Clamped = wasClamped
	result.Latency = time.Since(start)

	metrics.ObserveRuleEvaluation(result.Latency, len(result.Matched))

	return result, nil
}

// allConditionsHold evaluates a conjunctive condition list. An empty
// list matches unconditionally.
func allConditionsHold(evalCtx map[string]any, conditions []Condition) bool {
	for _, cond := range conditions {
		if !evalCondition(evalCtx, cond) {
			return false
		}
	}
	return true
}

// buildEvalContext derives the field map conditions are evaluated
// against.
func buildEvalContext(in EvalInput) map[string]any {
	day := in.BookingTime.Weekday()
	ctx := map[string]any{
		"venue_id":     in.VenueID,
		"venue_type":   string(in.VenueType),
		"party_size":   in.PartySize,
		"guest_tier":   in.GuestTier,
		"booking_date": in.BookingTime.Format("2006-01-02"),
		"day_of_week":  dayName(day),
		"hour":         in.BookingTime.Hour(),
		"month":        int(in.BookingTime.Month()),
		"is_weekend":   day == time.Saturday || day == time.Sunday,
		"is_holiday":   isHoliday(in.BookingTime),
	}
	if in.Demand != nil {
		ctx["occupancy_rate"] = in.Demand.OccupancyRate
		ctx["demand_level"] = in.Demand.DemandLevel
	}
	return ctx
}

func dayName(d time.Weekday) string {
	// time.Weekday.String() yields "Saturday"; rules use lowercase.
	names := [...]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
	return names[d]
}
