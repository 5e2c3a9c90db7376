package engine

import (
	"time"

	"github.com/leverrun/leverrun/internal/lifecycle"
	"github.com/leverrun/leverrun/internal/portfolio"
	"github.com/leverrun/leverrun/internal/position"
)

// AssetState is the per-pair view maintained across cycles.
type AssetState struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Icon   string `json:"icon"`

	Price          float64   `json:"price"`
	PriceHistory   []float64 `json:"price_history"`
	Change24h      float64   `json:"change_24h"`
	PriceSource    string    `json:"price_source"`
	LastUpdate     time.Time `json:"last_update"`
	Volatility     float64   `json:"volatility"`
	TrendLabel     string    `json:"trend"`
	Confidence     float64   `json:"confidence"`
	RecommendedLev float64   `json:"recommended_leverage"`
	MaxLeverage    float64   `json:"max_leverage"`
	MinConfidence  float64   `json:"min_confidence"`

	FundingRate    float64   `json:"funding_rate"`
	FundingHistory []float64 `json:"funding_history"`

	// Simulated per-pair wallet: quote currency on hand and asset units
	// held through the open position.
	QuoteBalance float64 `json:"quote_balance"`
	AssetBalance float64 `json:"asset_balance"`

	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"win_rate"`
}

// clone deep-copies the asset state for snapshots.
func (a *AssetState) clone() AssetState {
	out := *a
	out.PriceHistory = append([]float64(nil), a.PriceHistory...)
	out.FundingHistory = append([]float64(nil), a.FundingHistory...)
	return out
}

// pushBounded appends v and trims the slice to cap elements, oldest first.
func pushBounded(s []float64, v float64, depth int) []float64 {
	s = append(s, v)
	if n := len(s) - depth; n > 0 {
		s = s[n:]
	}
	return s
}

// PositionView pairs an open position with its mark price and the risk
// grade at that price.
type PositionView struct {
	position.Position
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RiskLabel     string  `json:"risk"` // safe | risky | danger | liquidated
}

// Snapshot is a self-consistent, fully copied view of the engine at the end
// of a cycle. Readers own it outright.
type Snapshot struct {
	Timestamp time.Time         `json:"timestamp"`
	Cycle     uint64            `json:"cycle"`
	Portfolio portfolio.Summary `json:"portfolio"`
	Series    []portfolio.Point `json:"series"`
	Assets    []AssetState      `json:"assets"`
	Positions []PositionView    `json:"positions"`
	Trades    []lifecycle.Trade `json:"trades"` // newest first
}
