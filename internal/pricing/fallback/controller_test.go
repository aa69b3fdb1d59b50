package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayrate/pricing-service/internal/pricing"
	"github.com/stayrate/pricing-service/internal/pricing/rules"
)

type mockEvaluator struct {
	result rules.EvaluationResult
	err    error
}

func (m *mockEvaluator) Evaluate(ctx context.Context, in rules.EvalInput) (rules.EvaluationResult, error) {
	if m.err != nil {
		return rules.EvaluationResult{}, m.err
	}
	return m.result, nil
}

type mockCache struct {
	price decimal.Decimal
	found bool
	err   error
}

func (m *mockCache) RecentAIPrice(ctx context.Context, venueID string, partySize, hourOfDay int, since time.Time) (decimal.Decimal, bool, error) {
	return m.price, m.found, m.err
}

func bookingCtx(occupancy *float64) pricing.BookingContext {
	bctx := pricing.BookingContext{
		VenueID:     "venue-001",
		VenueType:   pricing.VenueHotel,
		BookingTime: time.Date(2026, 3, 7, 19, 0, 0, 0, time.UTC),
		PartySize:   2,
	}
	if occupancy != nil {
		bctx.Demand = &pricing.DemandSnapshot{OccupancyRate: *occupancy, DemandLevel: "high"}
	}
	return bctx
}

func occ(v float64) *float64 { return &v }

func TestRuleBasedStrategy(t *testing.T) {
	eval := &mockEvaluator{result: rules.EvaluationResult{
		AdjustedPrice:     decimal.NewFromInt(115),
		AdjustmentsByType: pricing.Breakdown{pricing.AdjustTime: decimal.NewFromInt(15)},
	}}
	c := NewController(eval, nil, DefaultConfig(), nil)

	result := c.GetPrice(context.Background(), decimal.NewFromInt(100), bookingCtx(nil), ReasonAIUnavailable)

	assert.Equal(t, pricing.SourceRuleEngine, result.Source)
	assert.True(t, result.Price.Equal(decimal.NewFromInt(115)))
	assert.Equal(t, 0.8, result.Confidence)
}

func TestRuleFailureDegradesToHeuristic(t *testing.T) {
	eval := &mockEvaluator{err: errors.New("rule store down")}
	c := NewController(eval, nil, DefaultConfig(), nil)

	result := c.GetPrice(context.Background(), decimal.NewFromInt(100), bookingCtx(nil), ReasonAIUnavailable)

	assert.Equal(t, pricing.SourceFallbackBase, result.Source)
	assert.True(t, result.Price.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 0.5, result.Confidence)
}

func TestCachedStrategyHit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyCached
	cache := &mockCache{price: decimal.RequireFromString("123.45"), found: true}
	c := NewController(&mockEvaluator{}, cache, cfg, nil)

	result := c.GetPrice(context.Background(), decimal.NewFromInt(100), bookingCtx(nil), ReasonAILowConfidence)

	assert.Equal(t, pricing.SourceFallbackCached, result.Source)
	assert.True(t, result.Price.Equal(decimal.RequireFromString("123.45")))
	assert.Equal(t, 0.6, result.Confidence)
}

func TestCachedStrategyMissDegradesToRules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyCached
	eval := &mockEvaluator{result: rules.EvaluationResult{
		AdjustedPrice:     decimal.NewFromInt(110),
		AdjustmentsByType: pricing.Breakdown{},
	}}
	c := NewController(eval, &mockCache{found: false}, cfg, nil)

	result := c.GetPrice(context.Background(), decimal.NewFromInt(100), bookingCtx(nil), ReasonAILowConfidence)

	assert.Equal(t, pricing.SourceRuleEngine, result.Source)
	assert.True(t, result.Price.Equal(decimal.NewFromInt(110)))
}

func TestCachedStrategyErrorDegradesToRules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyCached
	eval := &mockEvaluator{result: rules.EvaluationResult{
		AdjustedPrice:     decimal.NewFromInt(110),
		AdjustmentsByType: pricing.Breakdown{},
	}}
	c := NewController(eval, &mockCache{err: errors.New("db down")}, cfg, nil)

	result := c.GetPrice(context.Background(), decimal.NewFromInt(100), bookingCtx(nil), ReasonAILowConfidence)
	assert.Equal(t, pricing.SourceRuleEngine, result.Source)
}

func TestBasePriceHeuristic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyBasePrice
	c := NewController(nil, nil, cfg, nil)

	tests := []struct {
		name      string
		occupancy *float64
		expected  string
	}{
		{"High occupancy", occ(0.95), "110"},
		{"Low occupancy", occ(0.10), "95"},
		{"Neutral occupancy", occ(0.50), "100"},
		{"Demand absent stays neutral", nil, "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.GetPrice(context.Background(), decimal.NewFromInt(100), bookingCtx(tt.occupancy), ReasonAIUnavailable)
			assert.Equal(t, pricing.SourceFallbackBase, result.Source)
			assert.True(t, result.Price.Equal(decimal.RequireFromString(tt.expected)),
				"price = %s, want %s", result.Price, tt.expected)
			assert.Equal(t, 0.5, result.Confidence)
		})
	}
}

func TestFallbackTotality(t *testing.T) {
	// Every combination of broken collaborators must still yield a
	// price and never panic.
	combos := []struct {
		name  string
		eval  RuleEvaluator
		cache DecisionCache
	}{
		{"all nil", nil, nil},
		{"failing rules, nil cache", &mockEvaluator{err: errors.New("boom")}, nil},
		{"failing rules, failing cache", &mockEvaluator{err: errors.New("boom")}, &mockCache{err: errors.New("boom")}},
		{"nil rules, miss cache", nil, &mockCache{found: false}},
	}

	for _, strategy := range []Strategy{StrategyRuleBased, StrategyCached, StrategyBasePrice} {
		for _, combo := range combos {
			t.Run(string(strategy)+"/"+combo.name, func(t *testing.T) {
				cfg := DefaultConfig()
				cfg.Strategy = strategy
				c := NewController(combo.eval, combo.cache, cfg, nil)

				result := c.GetPrice(context.Background(), decimal.NewFromInt(100), bookingCtx(nil), ReasonAIUnavailable)
				require.False(t, result.Price.IsZero(), "fallback must always produce a price")
				assert.NotEmpty(t, result.Source)
				assert.Greater(t, result.Confidence, 0.0)
			})
		}
	}
}

func TestConfidenceOrdering(t *testing.T) {
	cfg := DefaultConfig()
	assert.Greater(t, cfg.RuleConfidence, cfg.CacheConfidence)
	assert.Greater(t, cfg.CacheConfidence, cfg.BaseConfidence)
}
