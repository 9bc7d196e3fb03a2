// Package floatutils implements utility functions for floats
package floatutils

import (
	"gonum.org/v1/gonum/spatial/r1"
)

// Clip clips a float to stay within [min, max]
func Clip(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClipInterval clips a float to stay within an interval
func ClipInterval(value float64, interval r1.Interval) float64 {
	return Clip(value, interval.Min, interval.Max)
}
