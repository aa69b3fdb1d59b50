package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRound2BankersRounding(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Exact two decimals", "115.00", "115"},
		{"Half rounds to even down", "10.125", "10.12"},
		{"Half rounds to even up", "10.135", "10.14"},
		{"Above half rounds up", "10.126", "10.13"},
		{"Below half rounds down", "10.124", "10.12"},
		{"Negative half to even", "-10.125", "-10.12"},
		{"Long tail", "99.999999", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := decimal.RequireFromString(tt.input)
			got := Round2(in)
			want := decimal.RequireFromString(tt.expected)
			if !got.Equal(want) {
				t.Errorf("Round2(%s) = %s, want %s", tt.input, got, want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	floor := decimal.NewFromInt(50)
	ceiling := decimal.NewFromInt(300)

	tests := []struct {
		name        string
		price       string
		expected    string
		wantClamped bool
	}{
		{"Within bounds", "100", "100", false},
		{"Below floor", "20", "50", true},
		{"Above ceiling", "500", "300", true},
		{"At floor", "50", "50", false},
		{"At ceiling", "300", "300", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped := Clamp(decimal.RequireFromString(tt.price), floor, ceiling)
			if !got.Equal(decimal.RequireFromString(tt.expected)) || clamped != tt.wantClamped {
				t.Errorf("Clamp(%s) = (%s, %v), want (%s, %v)",
					tt.price, got, clamped, tt.expected, tt.wantClamped)
			}
		})
	}
}

func TestPercent(t *testing.T) {
	got := Percent(decimal.NewFromInt(100), decimal.NewFromInt(15))
	if !got.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Percent(100, 15) = %s, want 15", got)
	}
}
