// Package scoring turns category sub-scores into a single trustworthy final
// score, and computes a deterministic skill-overlap score when no model is
// available.
package scoring

import (
	"math"
)

// Bottleneck weight thresholds. A single catastrophically weak category must
// dominate the final score rather than being averaged away: a candidate has
// to clear every bar, not just be good on average.
const (
	severeMin   = 50.0
	moderateMin = 70.0

	severeWeight   = 0.85
	moderateWeight = 0.75
	defaultWeight  = 0.70
)

// BottleneckWeight selects the weight applied to the minimum sub-score.
func BottleneckWeight(minScore float64) float64 {
	switch {
	case minScore < severeMin:
		return severeWeight
	case minScore < moderateMin:
		return moderateWeight
	default:
		return defaultWeight
	}
}

// Aggregate combines at least one sub-score in [0,100] into the final score:
// round(clamp(min*w + mean*(1-w), 0, 100)). Out-of-range entries are clamped
// before aggregation. An empty input returns 0.
func Aggregate(entries []float64) int {
	if len(entries) == 0 {
		return 0
	}
	minScore := math.MaxFloat64
	sum := 0.0
	for _, v := range entries {
		v = Clamp(v, 0, 100)
		if v < minScore {
			minScore = v
		}
		sum += v
	}
	avg := sum / float64(len(entries))
	w := BottleneckWeight(minScore)
	return int(math.Round(Clamp(minScore*w+avg*(1-w), 0, 100)))
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
