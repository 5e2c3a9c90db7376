package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestScorer() *Scorer {
	return NewScorer([]string{"BTC/USDC", "ETH/USDC"})
}

func TestVolatility(t *testing.T) {
	s := newTestScorer()

	assert.Zero(t, s.Volatility(nil))
	assert.Zero(t, s.Volatility([]float64{100}))

	// Constant prices have zero volatility.
	assert.Zero(t, s.Volatility([]float64{100, 100, 100}))

	// Alternating +/-10% moves: returns 0.1 and -0.0909..., nonzero spread.
	vol := s.Volatility([]float64{100, 110, 100, 110})
	assert.Greater(t, vol, 5.0)
}

func TestTrendShortHistoryIsNeutral(t *testing.T) {
	s := newTestScorer()

	for _, history := range [][]float64{nil, {100}, {100, 101}, {100, 101, 102, 103}} {
		trend, strength := s.Trend(history)
		assert.Equal(t, Neutral, trend)
		assert.Equal(t, 50.0, strength)
	}
}

func TestTrendBuckets(t *testing.T) {
	s := newTestScorer()

	tests := []struct {
		name     string
		history  []float64
		want     Trend
		strength float64
	}{
		{"all rising", []float64{1, 2, 3, 4, 5}, StrongUp, 80},
		{"mostly rising", []float64{1, 2, 3, 4, 3}, Up, 65},
		{"all falling", []float64{5, 4, 3, 2, 1}, StrongDown, 80},
		{"mostly falling", []float64{5, 4, 3, 2, 3}, Down, 65},
		{"choppy", []float64{1, 2, 1, 2, 1}, Neutral, 50},
		{"flat", []float64{2, 2, 2, 2, 2}, Neutral, 50},
		{"single net step is neutral", []float64{1, 2, 2, 2, 2}, Neutral, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend, strength := s.Trend(tt.history)
			assert.Equal(t, tt.want, trend)
			assert.Equal(t, tt.strength, strength)
		})
	}
}

func TestTrendUsesOnlyRecentWindow(t *testing.T) {
	s := newTestScorer()

	// A long falling prefix must not affect the last five points.
	history := []float64{100, 90, 80, 70, 60, 1, 2, 3, 4, 5}
	trend, _ := s.Trend(history)
	assert.Equal(t, StrongUp, trend)
}

func TestConfidenceShortHistory(t *testing.T) {
	s := newTestScorer()
	assert.Equal(t, 40.0, s.Confidence("BTC/USDC", []float64{1, 2, 3}, 0, 0))
}

func TestConfidenceClamped(t *testing.T) {
	s := newTestScorer()
	rising := []float64{1, 2, 3, 4, 5}
	falling := []float64{5, 4, 3, 2, 1}

	// Best case: strong trend, moderate vol, supportive move, blue chip.
	high := s.Confidence("BTC/USDC", rising, 3, 5)
	assert.LessOrEqual(t, high, 95.0)
	assert.Equal(t, 95.0, high) // 80+10+15+5 clamps at the ceiling

	// Worst case still floors at 30.
	low := s.Confidence("SOL/USDC", falling, 15, 20)
	assert.Equal(t, 55.0, low) // 80-15-10, no bonus
	assert.GreaterOrEqual(t, low, 30.0)
}

func TestConfidenceBlueChipBonus(t *testing.T) {
	s := newTestScorer()
	rising := []float64{1, 2, 3, 4, 5}

	base := s.Confidence("SOL/USDC", rising, 0, 0)
	bonus := s.Confidence("BTC/USDC", rising, 0, 0)
	assert.Equal(t, base+5, bonus)
}

func TestTrendString(t *testing.T) {
	assert.Equal(t, "neutral", Neutral.String())
	assert.Equal(t, "up", Up.String())
	assert.Equal(t, "strong_up", StrongUp.String())
	assert.Equal(t, "down", Down.String())
	assert.Equal(t, "strong_down", StrongDown.String())
}
