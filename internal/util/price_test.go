package util

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		tick     float64
		expected float64
	}{
		{
			name:     "basic rounding down",
			x:        2.272,
			tick:     0.05,
			expected: 2.25,
		},
		{
			name:     "basic rounding up",
			x:        2.28,
			tick:     0.05,
			expected: 2.30,
		},
		{
			name:     "dime tick",
			x:        14.34,
			tick:     0.1,
			expected: 14.3,
		},
		{
			name:     "exact multiple unchanged",
			x:        1.25,
			tick:     0.05,
			expected: 1.25,
		},
		{
			name:     "negative price",
			x:        -1.237,
			tick:     0.01,
			expected: -1.24,
		},
		{
			name:     "zero tick passes through",
			x:        1.2345,
			tick:     0,
			expected: 1.2345,
		},
		{
			name:     "negative tick passes through",
			x:        1.2345,
			tick:     -0.01,
			expected: 1.2345,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundToTick(tt.x, tt.tick)
			if math.Abs(result-tt.expected) > 1e-10 {
				t.Errorf("RoundToTick(%v, %v) = %v, expected %v", tt.x, tt.tick, result, tt.expected)
			}
		})
	}
}

func TestRoundToTickIdempotent(t *testing.T) {
	prices := []float64{0, 0.013, 1.2345, 2.275, 99.99, 4301.7, -3.333}
	ticks := []float64{0.01, 0.05, 0.1, 0.25, 1.0}

	for _, p := range prices {
		for _, tick := range ticks {
			once := RoundToTick(p, tick)
			twice := RoundToTick(once, tick)
			if math.Abs(once-twice) > 1e-10 {
				t.Errorf("RoundToTick not idempotent for p=%v tick=%v: %v != %v", p, tick, once, twice)
			}
		}
	}
}

func TestRoundToDollar(t *testing.T) {
	tests := []struct {
		x        float64
		expected float64
	}{
		{453.27, 453},
		{453.62, 454},
		{453.5, 454},
		{0.49, 0},
	}
	for _, tt := range tests {
		if got := RoundToDollar(tt.x); got != tt.expected {
			t.Errorf("RoundToDollar(%v) = %v, expected %v", tt.x, got, tt.expected)
		}
	}
}
