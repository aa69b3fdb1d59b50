package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"calculated to served", StatusCalculated, StatusServed, true},
		{"calculated to accepted", StatusCalculated, StatusAccepted, true},
		{"calculated to rejected", StatusCalculated, StatusRejected, true},
		{"calculated to expired", StatusCalculated, StatusExpired, true},
		{"calculated to invalidated", StatusCalculated, StatusInvalidated, true},
		{"served to accepted", StatusServed, StatusAccepted, true},
		{"served to rejected", StatusServed, StatusRejected, true},
		{"served to expired", StatusServed, StatusExpired, true},
		{"served to invalidated", StatusServed, StatusInvalidated, true},
		{"served back to calculated", StatusServed, StatusCalculated, false},
		{"accepted is terminal", StatusAccepted, StatusRejected, false},
		{"accepted cannot be served", StatusAccepted, StatusServed, false},
		{"rejected is terminal", StatusRejected, StatusAccepted, false},
		{"expired is terminal", StatusExpired, StatusServed, false},
		{"expired cannot be accepted", StatusExpired, StatusAccepted, false},
		{"invalidated is terminal", StatusInvalidated, StatusAccepted, false},
		{"same status is not a move", StatusServed, StatusServed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestDecisionIsValid(t *testing.T) {
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

	valid := func(status Status, until time.Time) bool {
		d := Decision{Status: status, ValidUntil: until}
		return d.IsValid(now)
	}

	assert.True(t, valid(StatusCalculated, now.Add(time.Minute)))
	assert.True(t, valid(StatusServed, now.Add(time.Minute)))

	// A lapsed window invalidates the decision even before the sweep
	// marks it expired.
	assert.False(t, valid(StatusCalculated, now.Add(-time.Second)))
	assert.False(t, valid(StatusServed, now))

	// Terminal statuses are never valid regardless of the window.
	assert.False(t, valid(StatusAccepted, now.Add(time.Hour)))
	assert.False(t, valid(StatusRejected, now.Add(time.Hour)))
	assert.False(t, valid(StatusExpired, now.Add(time.Hour)))
	assert.False(t, valid(StatusInvalidated, now.Add(time.Hour)))
}

func TestExpiredDecisionCannotBeAccepted(t *testing.T) {
	now := time.Now()
	d := Decision{
		Status:     StatusServed,
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(-30 * time.Minute),
	}

	// The status machine still allows served -> accepted, but the
	// validity check gates acceptance: a lapsed decision must be
	// recalculated, never booked at a stale price.
	assert.True(t, CanTransition(d.Status, StatusAccepted))
	assert.False(t, d.IsValid(now))
}
