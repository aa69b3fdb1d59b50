// Package rules implements the pricing rule engine: condition
// matching, stacking, exclusive groups and priority-ordered
// evaluation over the active rule set.
package rules

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stayrate/pricing-service/internal/pricing"
)

// Operator is the closed set of condition operators the engine
// understands. An unknown operator never matches.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpBetween     Operator = "between"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpContains    Operator = "contains"
)

// ActionType determines how a matched rule's value translates into a
// monetary effect on the base price.
type ActionType string

const (
	ActionMultiply           ActionType = "multiply"
	ActionAdd                ActionType = "add"
	ActionSubtract           ActionType = "subtract"
	ActionSet                ActionType = "set"
	ActionPercentageIncrease ActionType = "percentage_increase"
	ActionPercentageDecrease ActionType = "percentage_decrease"
)

// Status is the lifecycle state of a rule. Rules are soft-deleted
// (archived), never removed.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusArchived Status = "archived"
)

// Rule types, mirroring the adjustment categories a decision reports.
const (
	TypeSeasonal    = "seasonal"
	TypeTimeOfDay   = "time_of_day"
	TypeDemand      = "demand"
	TypeLoyalty     = "loyalty"
	TypePromotional = "promotional"
)

// Condition is a single field/operator/value predicate evaluated
// against the booking context. Value is used by scalar operators,
// Values by between/in/not_in.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
	Values   []any    `json:"values,omitempty"`
}

// Rule is one configurable pricing rule. Conditions are conjunctive:
// every listed condition must hold for the rule to match.
type Rule struct {
	ID             string
	Code           string
	Name           string
	Type           string
	Status         Status
	Priority       int // lower = evaluated first
	VenueTypes     []string
	VenueIDs       []string
	Conditions     []Condition
	Action         ActionType
	ActionValue    decimal.Decimal
	PriceFloor     *decimal.Decimal // absolute floor override, narrows the global clamp
	PriceCeiling   *decimal.Decimal // absolute ceiling override, narrows the global clamp
	Stackable      bool
	ExclusiveGroup string
	DaysOfWeek     []time.Weekday // empty = any day
	HourStart      *int
	HourEnd        *int
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Version        int
}

// appliesTo checks the rule's venue applicability filters. Rules with
// no filter apply universally.
func (r *Rule) appliesTo(venueID string, venueType pricing.VenueType) bool {
	if len(r.VenueTypes) > 0 {
		found := false
		for _, vt := range r.VenueTypes {
			if vt == string(venueType) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(r.VenueIDs) > 0 {
		found := false
		for _, id := range r.VenueIDs {
			if id == venueID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// timeAllowed checks the rule's day-of-week and hour-range
// restrictions against the booking time. Hour ranges are inclusive
// and may wrap past midnight (e.g. 22-2).
func (r *Rule) timeAllowed(bookingTime time.Time) bool {
	if len(r.DaysOfWeek) > 0 {
		day := bookingTime.Weekday()
		found := false
		for _, d := range r.DaysOfWeek {
			if d == day {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.HourStart != nil && r.HourEnd != nil {
		h := bookingTime.Hour()
		start, end := *r.HourStart, *r.HourEnd
		if start <= end {
			if h < start || h > end {
				return false
			}
		} else {
			if h < start && h > end {
				return false
			}
		}
	}
	return true
}

// effect resolves the rule's monetary effect for the given base price.
func (r *Rule) effect(basePrice decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	switch r.Action {
	case ActionMultiply:
		return basePrice.Mul(r.ActionValue.Sub(decimal.NewFromInt(1)))
	case ActionAdd:
		return r.ActionValue
	case ActionSubtract:
		return r.ActionValue.Neg()
	case ActionSet:
		return r.ActionValue.Sub(basePrice)
	case ActionPercentageIncrease:
		return basePrice.Mul(r.ActionValue).Div(hundred)
	case ActionPercentageDecrease:
		return basePrice.Mul(r.ActionValue).Div(hundred).Neg()
	default:
		return decimal.Zero
	}
}

// categoryForType maps a rule type to its breakdown category.
func categoryForType(ruleType string) string {
	switch ruleType {
	case TypeSeasonal:
		return pricing.AdjustSeasonal
	case TypeTimeOfDay:
		return pricing.AdjustTime
	case TypeDemand:
		return pricing.AdjustDemand
	case TypeLoyalty:
		return pricing.AdjustLoyalty
	case TypePromotional:
		return pricing.AdjustPromotional
	default:
		return ruleType
	}
}

// Match records one matched rule and its resolved monetary effect for
// a specific evaluation. Ephemeral; never persisted on its own.
type Match struct {
	RuleID   string          `json:"rule_id"`
	RuleCode string          `json:"rule_code"`
	RuleType string          `json:"rule_type"`
	Priority int             `json:"priority"`
	Effect   decimal.Decimal `json:"effect"`
}

// EvaluationResult is the outcome of one rule-engine pass.
type EvaluationResult struct {
	BasePrice         decimal.Decimal
	AdjustedPrice     decimal.Decimal
	Matched           []Match
	AdjustmentsByType pricing.Breakdown
	Clamped           bool
	Latency           time.Duration
}
