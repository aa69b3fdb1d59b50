package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayrate/pricing-service/internal/pricing"
)

// fakeSuggester is a scriptable Suggester for testing the gate.
type fakeSuggester struct {
	suggestion Suggestion
	err        error
	delay      time.Duration
}

func (f *fakeSuggester) Suggest(ctx context.Context, req Request) (Suggestion, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Suggestion{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Suggestion{}, f.err
	}
	return f.suggestion, nil
}

func (f *fakeSuggester) ModelVersion() string { return "test-model-v1" }

func testContext() pricing.BookingContext {
	return pricing.BookingContext{
		VenueID:     "venue-001",
		VenueType:   pricing.VenueHotel,
		BookingTime: time.Date(2026, 3, 7, 19, 0, 0, 0, time.UTC),
		PartySize:   2,
	}
}

func TestGateAcceptsValidSuggestion(t *testing.T) {
	gate := NewGate(&fakeSuggester{suggestion: Suggestion{
		Price:      decimal.RequireFromString("118.505"),
		Confidence: 0.91,
		Rationale:  "weekend demand uplift",
	}}, DefaultGateConfig(), nil)

	got, decline := gate.Suggest(context.Background(), decimal.NewFromInt(100), testContext())
	require.Equal(t, DeclineNone, decline)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("118.50")),
		"price = %s, want 118.50 (quantized, banker's rounding)", got.Price)
	assert.Equal(t, 0.91, got.Confidence)
	assert.Equal(t, "test-model-v1", got.ModelVersion)
}

func TestGateRejectsLowConfidence(t *testing.T) {
	// Confidence 0.4 against threshold 0.7 must be rejected.
	gate := NewGate(&fakeSuggester{suggestion: Suggestion{
		Price:      decimal.NewFromInt(110),
		Confidence: 0.4,
	}}, DefaultGateConfig(), nil)

	_, decline := gate.Suggest(context.Background(), decimal.NewFromInt(100), testContext())
	assert.Equal(t, DeclineLowConfidence, decline)
}

func TestGateRejectsExcessiveDeviation(t *testing.T) {
	// 160 deviates 60% from base 100; the default bound is 50%.
	gate := NewGate(&fakeSuggester{suggestion: Suggestion{
		Price:      decimal.NewFromInt(160),
		Confidence: 0.95,
	}}, DefaultGateConfig(), nil)

	_, decline := gate.Suggest(context.Background(), decimal.NewFromInt(100), testContext())
	assert.Equal(t, DeclineDeviation, decline)
}

func TestGateRejectsOutOfBounds(t *testing.T) {
	cfg := DefaultGateConfig()
	cfg.MaxDeviation = 10 // permissive, so only the bounds check bites
	gate := NewGate(&fakeSuggester{suggestion: Suggestion{
		Price:      decimal.NewFromInt(400), // above ceiling 3 x 100
		Confidence: 0.95,
	}}, cfg, nil)

	_, decline := gate.Suggest(context.Background(), decimal.NewFromInt(100), testContext())
	assert.Equal(t, DeclineOutOfBounds, decline)
}

func TestGateAcceptsBoundaryConfidence(t *testing.T) {
	gate := NewGate(&fakeSuggester{suggestion: Suggestion{
		Price:      decimal.NewFromInt(110),
		Confidence: 0.7, // exactly at the threshold
	}}, DefaultGateConfig(), nil)

	_, decline := gate.Suggest(context.Background(), decimal.NewFromInt(100), testContext())
	assert.Equal(t, DeclineNone, decline)
}

func TestGateTreatsErrorAsUnavailable(t *testing.T) {
	gate := NewGate(&fakeSuggester{err: errors.New("model exploded")}, DefaultGateConfig(), nil)

	_, decline := gate.Suggest(context.Background(), decimal.NewFromInt(100), testContext())
	assert.Equal(t, DeclineError, decline)
}

func TestGateTimesOutSlowSuggester(t *testing.T) {
	cfg := DefaultGateConfig()
	cfg.Timeout = 20 * time.Millisecond
	gate := NewGate(&fakeSuggester{
		delay: 500 * time.Millisecond,
		suggestion: Suggestion{
			Price:      decimal.NewFromInt(110),
			Confidence: 0.95,
		},
	}, cfg, nil)

	start := time.Now()
	_, decline := gate.Suggest(context.Background(), decimal.NewFromInt(100), testContext())
	assert.Equal(t, DeclineTimeout, decline)
	assert.Less(t, time.Since(start), 200*time.Millisecond, "gate must enforce its timeout")
}

func TestGateWithoutSuggester(t *testing.T) {
	gate := NewGate(nil, DefaultGateConfig(), nil)

	_, decline := gate.Suggest(context.Background(), decimal.NewFromInt(100), testContext())
	assert.Equal(t, DeclineNoSuggester, decline)
}
