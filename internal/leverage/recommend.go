// Package leverage maps signal confidence to a bounded leverage multiplier.
package leverage

import "math"

const (
	// confidenceCeiling is the top of the confidence scale the recommender
	// normalizes against.
	confidenceCeiling = 95.0

	// globalMaxLeverage is the hard ceiling regardless of per-pair limits.
	globalMaxLeverage = 10.0

	// highVolThreshold caps leverage at highVolCap when exceeded.
	highVolThreshold = 8.0
	highVolCap       = 3.0
)

// Limits holds the per-pair inputs to a recommendation.
type Limits struct {
	MaxLeverage   float64 // pair-specific ceiling, >= 1
	MinConfidence float64 // below this, no leverage
}

// Recommend converts a confidence score into a leverage multiplier, scaled
// down by volatility and clamped to [1.0, min(limits.MaxLeverage, 10.0)].
func Recommend(confidence, volatility float64, limits Limits) float64 {
	if confidence < limits.MinConfidence {
		return 1.0
	}

	confidenceRatio := (confidence - limits.MinConfidence) / (confidenceCeiling - limits.MinConfidence)

	// Volatility scales leverage down but never fully suppresses it.
	volatilityFactor := math.Max(0.5, 1.0-volatility/20)

	recommended := 1.0 + (limits.MaxLeverage-1.0)*confidenceRatio*volatilityFactor

	if volatility > highVolThreshold {
		recommended = math.Min(recommended, highVolCap)
	}
	recommended = math.Min(recommended, globalMaxLeverage)

	return math.Max(1.0, math.Min(limits.MaxLeverage, recommended))
}
