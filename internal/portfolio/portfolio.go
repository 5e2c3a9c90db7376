// Package portfolio aggregates open positions and closed trades into
// account-level figures and a bounded value history.
package portfolio

import (
	"time"

	"github.com/leverrun/leverrun/internal/config"
	"github.com/leverrun/leverrun/internal/lifecycle"
	"github.com/leverrun/leverrun/internal/position"
)

// Risk grades the portfolio's aggregate exposure.
type Risk int

const (
	RiskLow Risk = iota
	RiskMedium
	RiskHigh
)

func (r Risk) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskHigh:
		return "high"
	default:
		return "medium"
	}
}

// Summary is a point-in-time aggregate over the whole account.
type Summary struct {
	Timestamp     time.Time `json:"timestamp"`
	TotalValue    float64   `json:"total_value"` // capital + total P&L
	TotalPnL      float64   `json:"total_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	TotalMargin   float64   `json:"total_margin"`
	TotalNotional float64   `json:"total_notional"`
	OpenPositions int       `json:"open_positions"`
	TotalTrades   int       `json:"total_trades"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	WinRate       float64   `json:"win_rate"`     // percent of closed trades
	MaxLeverage   float64   `json:"max_leverage"` // highest leverage ever used
	Risk          Risk      `json:"-"`
	RiskLabel     string    `json:"risk"`
}

// Point is one sample of the portfolio value series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	PnL       float64   `json:"pnl"`
}

// Aggregator computes portfolio summaries and maintains the bounded value
// series. It is not safe for concurrent use; the engine serializes calls.
type Aggregator struct {
	capital float64
	risk    config.RiskConfig
	depth   int
	series  []Point
	maxLev  float64 // highest leverage ever seen

	// Running realized ledger. Folded in at close time so trimming the
	// retained trade list never changes portfolio totals.
	realized float64
	wins     int
	losses   int
}

// NewAggregator builds an aggregator for a fixed starting capital. depth
// bounds the retained value series.
func NewAggregator(capital float64, risk config.RiskConfig, depth int) *Aggregator {
	return &Aggregator{capital: capital, risk: risk, depth: depth}
}

// RecordTrade folds a closed trade into the running realized ledger.
// Called exactly once per close, before the trade enters (and may later
// leave) the bounded display history.
func (a *Aggregator) RecordTrade(tr lifecycle.Trade) {
	a.realized += tr.RealizedPnL
	if tr.RealizedPnL > 0 {
		a.wins++
	} else {
		a.losses++
	}
}

// Summarize aggregates the current account state and records a value-series
// sample. Open positions are marked with prices; a pair missing from the map
// is marked at its entry price. Realized figures come from the running
// ledger, not from any trade list.
func (a *Aggregator) Summarize(open []position.Position, prices map[string]float64, now time.Time) Summary {
	s := Summary{Timestamp: now, OpenPositions: len(open)}

	for _, p := range open {
		price, ok := prices[p.Pair]
		if !ok {
			price = p.EntryPrice
		}
		s.TotalMargin += p.Margin()
		s.TotalNotional += p.EffectiveSize
		s.UnrealizedPnL += p.PnL(price)
		if p.Leverage > a.maxLev {
			a.maxLev = p.Leverage
		}
	}
	s.MaxLeverage = a.maxLev

	s.RealizedPnL = a.realized
	s.Wins = a.wins
	s.Losses = a.losses
	s.TotalTrades = a.wins + a.losses
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	}

	s.TotalPnL = s.RealizedPnL + s.UnrealizedPnL
	s.TotalValue = a.capital + s.TotalPnL
	s.Risk = a.classify(s)
	s.RiskLabel = s.Risk.String()

	a.record(Point{Timestamp: now, Value: s.TotalValue, PnL: s.TotalPnL})
	return s
}

// classify grades aggregate exposure. High leverage or a heavy margin
// commitment dominates; an idle or lightly committed book is low risk.
func (a *Aggregator) classify(s Summary) Risk {
	switch {
	case s.MaxLeverage > a.risk.HighRiskLeverage || s.TotalMargin > a.risk.HighRiskMarginFrac*a.capital:
		return RiskHigh
	case s.TotalMargin < a.risk.LowRiskMarginFrac*a.capital:
		return RiskLow
	default:
		return RiskMedium
	}
}

func (a *Aggregator) record(p Point) {
	a.series = append(a.series, p)
	if n := len(a.series) - a.depth; n > 0 {
		a.series = a.series[n:]
	}
}

// Series returns a copy of the retained value history, oldest first.
func (a *Aggregator) Series() []Point {
	out := make([]Point, len(a.series))
	copy(out, a.series)
	return out
}
