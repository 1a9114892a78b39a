// Package util provides common utility functions for price calculations.
package util

import "math"

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.05, 2.27 becomes 2.25 and 2.28 becomes 2.30.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// RoundToDollar rounds a price to the nearest whole dollar.
func RoundToDollar(x float64) float64 {
	return math.Round(x)
}
