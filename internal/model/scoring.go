package model

import "math"

// Level is a coarse reading of a predicted engagement rate.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelModerate Level = "MODERATE"
	LevelHigh     Level = "HIGH"
)

// ClassifyRate buckets a clipped engagement rate into a Level.
// Thresholds: [0,0.3) low, [0.3,0.6) moderate, [0.6,1] high.
func ClassifyRate(rate float64) Level {
	switch {
	case rate < 0.3:
		return LevelLow
	case rate < 0.6:
		return LevelModerate
	default:
		return LevelHigh
	}
}

// Describe returns the human reading of a level.
func (l Level) Describe() string {
	switch l {
	case LevelLow:
		return "Needs improvement - consider optimizations"
	case LevelModerate:
		return "Good performance - decent reach expected"
	default:
		return "Excellent! Expect strong engagement"
	}
}

// Percent renders a rate as a whole percentage, e.g. 0.427 -> 43.
func Percent(rate float64) int {
	return int(math.Round(rate * 100))
}
