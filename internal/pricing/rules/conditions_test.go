package rules

import (
	"testing"
	"time"
)

func TestEvalCondition(t *testing.T) {
	ctx := map[string]any{
		"venue_type":     "restaurant",
		"party_size":     4,
		"hour":           19,
		"is_weekend":     true,
		"occupancy_rate": 0.82,
		"guest_tier":     "gold",
		"day_of_week":    "saturday",
	}

	tests := []struct {
		name     string
		cond     Condition
		expected bool
	}{
		{"Equals string", Condition{Field: "venue_type", Operator: OpEquals, Value: "restaurant"}, true},
		{"Equals string mismatch", Condition{Field: "venue_type", Operator: OpEquals, Value: "hotel"}, false},
		{"Equals int vs json float", Condition{Field: "party_size", Operator: OpEquals, Value: float64(4)}, true},
		{"Equals bool", Condition{Field: "is_weekend", Operator: OpEquals, Value: true}, true},
		{"Not equals", Condition{Field: "guest_tier", Operator: OpNotEquals, Value: "bronze"}, true},
		{"Greater than", Condition{Field: "occupancy_rate", Operator: OpGreaterThan, Value: 0.8}, true},
		{"Greater than false at equal", Condition{Field: "hour", Operator: OpGreaterThan, Value: float64(19)}, false},
		{"Less than", Condition{Field: "hour", Operator: OpLessThan, Value: float64(22)}, true},
		{"Between inclusive", Condition{Field: "hour", Operator: OpBetween, Values: []any{float64(18), float64(21)}}, true},
		{"Between outside", Condition{Field: "hour", Operator: OpBetween, Values: []any{float64(8), float64(11)}}, false},
		{"Between malformed", Condition{Field: "hour", Operator: OpBetween, Values: []any{float64(8)}}, false},
		{"In", Condition{Field: "day_of_week", Operator: OpIn, Values: []any{"friday", "saturday"}}, true},
		{"In via value array", Condition{Field: "day_of_week", Operator: OpIn, Value: []any{"saturday"}}, true},
		{"Not in", Condition{Field: "guest_tier", Operator: OpNotIn, Values: []any{"bronze", "silver"}}, true},
		{"Not in member", Condition{Field: "guest_tier", Operator: OpNotIn, Values: []any{"gold"}}, false},
		{"Not in empty list excludes nothing", Condition{Field: "guest_tier", Operator: OpNotIn, Values: []any{}}, true},
		{"Contains substring", Condition{Field: "venue_type", Operator: OpContains, Value: "rest"}, true},
		{"Contains miss", Condition{Field: "venue_type", Operator: OpContains, Value: "hotel"}, false},
		{"Missing field", Condition{Field: "moon_phase", Operator: OpEquals, Value: "full"}, false},
		{"Unknown operator", Condition{Field: "hour", Operator: Operator("matches"), Value: "19"}, false},
		{"Numeric vs string never equal", Condition{Field: "party_size", Operator: OpEquals, Value: "4"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evalCondition(ctx, tt.cond)
			if result != tt.expected {
				t.Errorf("evalCondition(%+v) = %v, want %v", tt.cond, result, tt.expected)
			}
		})
	}
}

func TestTimeAllowedWrapAroundMidnight(t *testing.T) {
	start, end := 22, 2
	rule := Rule{HourStart: &start, HourEnd: &end}

	tests := []struct {
		hour     int
		expected bool
	}{
		{22, true},
		{23, true},
		{0, true},
		{2, true},
		{3, false},
		{12, false},
		{21, false},
	}

	for _, tt := range tests {
		bookingTime := time.Date(2026, 3, 7, tt.hour, 30, 0, 0, time.UTC)
		if got := rule.timeAllowed(bookingTime); got != tt.expected {
			t.Errorf("timeAllowed(hour=%d) = %v, want %v", tt.hour, got, tt.expected)
		}
	}
}
