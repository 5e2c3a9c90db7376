package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leverrun/leverrun/internal/config"
	"github.com/leverrun/leverrun/internal/lifecycle"
	"github.com/leverrun/leverrun/internal/position"
)

func testAggregator(depth int) *Aggregator {
	return NewAggregator(40000, config.Default().Risk, depth)
}

func openTest(t *testing.T, pair string, entry, margin, lev float64) position.Position {
	t.Helper()
	return position.New(pair, entry, margin, lev, 80, 0.01, 1.5, 2.5, time.Now())
}

func TestEmptyPortfolioIsStartingCapital(t *testing.T) {
	a := testAggregator(100)
	s := a.Summarize(nil, nil, time.Now())

	assert.Equal(t, 40000.0, s.TotalValue)
	assert.Zero(t, s.TotalPnL)
	assert.Zero(t, s.TotalMargin)
	assert.Zero(t, s.OpenPositions)
	assert.Equal(t, RiskLow, s.Risk)
	assert.Equal(t, "low", s.RiskLabel)
}

func TestSummarizeAggregates(t *testing.T) {
	a := testAggregator(100)
	now := time.Now()

	open := []position.Position{
		openTest(t, "BTC/USDC", 100, 1000, 4), // notional 4000
		openTest(t, "ETH/USDC", 50, 500, 2),   // notional 1000
	}
	prices := map[string]float64{"BTC/USDC": 101, "ETH/USDC": 50}

	s := a.Summarize(open, prices, now)

	assert.InDelta(t, 1500, s.TotalMargin, 1e-9)
	assert.InDelta(t, 5000, s.TotalNotional, 1e-9)
	// BTC: 1000*4*1% = 40; ETH flat.
	assert.InDelta(t, 40, s.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 40040, s.TotalValue, 1e-9)
	assert.Equal(t, 4.0, s.MaxLeverage)
	assert.Equal(t, 2, s.OpenPositions)
}

func TestMissingPriceMarksAtEntry(t *testing.T) {
	a := testAggregator(100)
	open := []position.Position{openTest(t, "SOL/USDC", 177, 1000, 3)}

	s := a.Summarize(open, map[string]float64{}, time.Now())
	assert.Zero(t, s.UnrealizedPnL)
}

func TestRealizedPnLAndWinRate(t *testing.T) {
	a := testAggregator(100)
	now := time.Now()
	p := openTest(t, "BTC/USDC", 100, 1000, 4)

	a.RecordTrade(lifecycle.Close(p, 102.5, lifecycle.ReasonTakeProfit, now, 8))
	a.RecordTrade(lifecycle.Close(p, 98.5, lifecycle.ReasonStopLoss, now, 8))
	a.RecordTrade(lifecycle.Close(p, 98.5, lifecycle.ReasonStopLoss, now, 8))

	s := a.Summarize(nil, nil, now)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.InDelta(t, 100.0/3, s.WinRate, 1e-9)
	assert.Equal(t, 3, s.TotalTrades)
	assert.InDelta(t, s.RealizedPnL, s.TotalPnL, 1e-9)
}

func TestRealizedLedgerAccumulates(t *testing.T) {
	a := testAggregator(100)
	now := time.Now()
	p := openTest(t, "BTC/USDC", 100, 1000, 4)

	// Many closes, far more than any display history would retain; the
	// ledger keeps the full total regardless.
	win := lifecycle.Close(p, 102.5, lifecycle.ReasonTakeProfit, now, 8)
	var want float64
	for i := 0; i < 200; i++ {
		a.RecordTrade(win)
		want += win.RealizedPnL
	}

	s := a.Summarize(nil, nil, now)
	assert.InDelta(t, want, s.RealizedPnL, 1e-6)
	assert.Equal(t, 200, s.TotalTrades)
	assert.Equal(t, 200, s.Wins)
	assert.InDelta(t, 40000+want, s.TotalValue, 1e-6)
}

func TestRiskClassification(t *testing.T) {
	now := time.Now()

	// 1500 margin on 40000 capital sits between 2.5% and 10%.
	medium := []position.Position{openTest(t, "BTC/USDC", 100, 1500, 4)}
	assert.Equal(t, RiskMedium, testAggregator(100).Summarize(medium, nil, now).Risk)

	// Any position above 7x is high risk regardless of margin.
	lev := []position.Position{openTest(t, "BTC/USDC", 100, 500, 8)}
	assert.Equal(t, RiskHigh, testAggregator(100).Summarize(lev, nil, now).Risk)

	// Margin above 10% of capital is high risk at modest leverage.
	heavy := []position.Position{openTest(t, "BTC/USDC", 100, 5000, 2)}
	assert.Equal(t, RiskHigh, testAggregator(100).Summarize(heavy, nil, now).Risk)

	// Under 2.5% of capital committed is low risk.
	light := []position.Position{openTest(t, "BTC/USDC", 100, 500, 2)}
	assert.Equal(t, RiskLow, testAggregator(100).Summarize(light, nil, now).Risk)
}

func TestMaxLeverageIsSticky(t *testing.T) {
	a := testAggregator(100)
	now := time.Now()

	high := []position.Position{openTest(t, "BTC/USDC", 100, 500, 8)}
	assert.Equal(t, 8.0, a.Summarize(high, nil, now).MaxLeverage)

	// The book going flat does not forget the leverage once taken, and the
	// risk grade stays high.
	s := a.Summarize(nil, nil, now)
	assert.Equal(t, 8.0, s.MaxLeverage)
	assert.Equal(t, RiskHigh, s.Risk)
}

func TestSeriesBounded(t *testing.T) {
	a := testAggregator(5)
	base := time.Now()

	for i := 0; i < 12; i++ {
		a.Summarize(nil, nil, base.Add(time.Duration(i)*time.Second))
	}

	series := a.Series()
	require.Len(t, series, 5)
	// Oldest retained sample is the 8th of 12.
	assert.Equal(t, base.Add(7*time.Second), series[0].Timestamp)
	assert.Equal(t, base.Add(11*time.Second), series[4].Timestamp)
}

func TestSeriesReturnsCopy(t *testing.T) {
	a := testAggregator(10)
	a.Summarize(nil, nil, time.Now())

	s1 := a.Series()
	s1[0].Value = -1
	assert.NotEqual(t, -1.0, a.Series()[0].Value)
}
