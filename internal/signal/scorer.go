package signal

import "math"

// Trend labels the direction of the recent price sequence.
type Trend int

const (
	Neutral Trend = iota
	Up
	StrongUp
	Down
	StrongDown
)

func (t Trend) String() string {
	switch t {
	case Up:
		return "up"
	case StrongUp:
		return "strong_up"
	case Down:
		return "down"
	case StrongDown:
		return "strong_down"
	default:
		return "neutral"
	}
}

const (
	// trendWindow is the number of trailing points inspected for direction.
	trendWindow = 5

	// shortHistoryConfidence is returned while the rolling history is still warming up.
	shortHistoryConfidence = 40.0

	minConfidence = 30.0
	maxConfidence = 95.0
)

// Scorer turns a rolling price history into volatility and confidence scores
// for one asset. It is stateless; all inputs arrive per call.
type Scorer struct {
	blueChips map[string]bool
}

// NewScorer creates a scorer. Pairs in blueChips receive a small stability
// bonus when scoring confidence.
func NewScorer(blueChips []string) *Scorer {
	set := make(map[string]bool, len(blueChips))
	for _, p := range blueChips {
		set[p] = true
	}
	return &Scorer{blueChips: set}
}

// Volatility returns the population standard deviation of simple returns,
// scaled to a percentage. Fewer than two points yield zero.
func (s *Scorer) Volatility(history []float64) float64 {
	if len(history) < 2 {
		return 0.0
	}

	returns := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		returns = append(returns, (history[i]-history[i-1])/history[i-1])
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance) * 100
}

// Trend inspects the last five points pairwise and buckets the cumulative
// up/down step count into five coarse labels with fixed strength values.
// Scores of +1, -1 and 0 deliberately fall into the neutral bucket.
func (s *Scorer) Trend(history []float64) (Trend, float64) {
	if len(history) < trendWindow {
		return Neutral, 50.0
	}

	recent := history[len(history)-trendWindow:]
	score := 0
	for i := 1; i < len(recent); i++ {
		if recent[i] > recent[i-1] {
			score++
		} else if recent[i] < recent[i-1] {
			score--
		}
	}

	switch {
	case score >= 3:
		return StrongUp, 80.0
	case score == 2:
		return Up, 65.0
	case score == -2:
		return Down, 65.0
	case score <= -3:
		return StrongDown, 80.0
	default:
		return Neutral, 50.0
	}
}

// Confidence combines trend strength with volatility and 24h-change
// adjustments into a signal-quality score clamped to [30, 95]. A history
// shorter than the trend window short-circuits to a fixed low value.
func (s *Scorer) Confidence(pair string, history []float64, volatility, change24h float64) float64 {
	if len(history) < trendWindow {
		return shortHistoryConfidence
	}

	_, strength := s.Trend(history)
	score := strength

	// Moderate volatility is a tradable signal; extreme volatility is not.
	if volatility >= 2 && volatility <= 5 {
		score += 10
	} else if volatility > 10 {
		score -= 15
	}

	// A meaningful but not frantic 24h move supports the signal.
	move := math.Abs(change24h)
	if move >= 3 && move <= 8 {
		score += 15
	} else if move > 15 {
		score -= 10
	}

	if s.blueChips[pair] {
		score += 5
	}

	return math.Max(minConfidence, math.Min(maxConfidence, score))
}
