// Package position models a single leveraged exposure and its risk math.
//
// A Position is an immutable value: every risk threshold (liquidation,
// margin call, stop loss, take profit) and the mark-to-market P&L are pure
// functions of the stored entry fields and the current price, never stored
// state. This keeps effective_size = margin x leverage provably invariant
// for the lifetime of the position.
package position

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// liquidationLossFrac is the fraction of margin lost at liquidation.
	liquidationLossFrac = 0.9

	// marginCallLossFrac is the fraction of margin lost at the warning level.
	marginCallLossFrac = 0.7
)

// RiskLevel classifies how close a position is to forced closure.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskRisky
	RiskDanger
	RiskLiquidated
)

func (r RiskLevel) String() string {
	switch r {
	case RiskRisky:
		return "risky"
	case RiskDanger:
		return "danger"
	case RiskLiquidated:
		return "liquidated"
	default:
		return "safe"
	}
}

// Position is one open long exposure on a pair.
type Position struct {
	ID            string    `json:"id"`
	Pair          string    `json:"pair"`
	EntryPrice    float64   `json:"entry_price"`
	Amount        float64   `json:"amount"`         // units of the asset
	Leverage      float64   `json:"leverage"`       // >= 1.0
	Confidence    float64   `json:"confidence"`     // signal confidence at entry
	EffectiveSize float64   `json:"effective_size"` // margin x leverage, quote currency
	FundingRate   float64   `json:"funding_rate"`   // %/interval at entry
	StopLossPct   float64   `json:"stop_loss_pct"`  // e.g. 1.5 (percent)
	TakeProfitPct float64   `json:"take_profit_pct"`
	OpenedAt      time.Time `json:"opened_at"`
}

// New opens a position from margin, leverage and the current price.
// Invariant violations are programming defects and panic.
func New(pair string, entryPrice, margin, lev, confidence, fundingRate, stopLossPct, takeProfitPct float64, openedAt time.Time) Position {
	if lev < 1.0 {
		panic(fmt.Sprintf("position: leverage %.4f < 1.0 for %s", lev, pair))
	}
	if margin <= 0 {
		panic(fmt.Sprintf("position: margin %.4f <= 0 for %s", margin, pair))
	}
	if entryPrice <= 0 {
		panic(fmt.Sprintf("position: entry price %.4f <= 0 for %s", entryPrice, pair))
	}

	effective := margin * lev
	return Position{
		ID:            uuid.New().String(),
		Pair:          pair,
		EntryPrice:    entryPrice,
		Amount:        effective / entryPrice,
		Leverage:      lev,
		Confidence:    confidence,
		EffectiveSize: effective,
		FundingRate:   fundingRate,
		StopLossPct:   stopLossPct,
		TakeProfitPct: takeProfitPct,
		OpenedAt:      openedAt,
	}
}

// Margin is the capital actually at risk, excluding the leverage multiplier.
func (p Position) Margin() float64 {
	return p.EffectiveSize / p.Leverage
}

// LiquidationPrice is where 90% of the margin is lost and the position is
// force-closed.
func (p Position) LiquidationPrice() float64 {
	return p.EntryPrice * (1 - liquidationLossFrac/p.Leverage)
}

// MarginCallPrice is the 70%-loss warning threshold preceding liquidation.
func (p Position) MarginCallPrice() float64 {
	return p.EntryPrice * (1 - marginCallLossFrac/p.Leverage)
}

// StopLossPrice is a fixed percentage below entry, independent of leverage.
func (p Position) StopLossPrice() float64 {
	return p.EntryPrice * (1 - p.StopLossPct/100)
}

// TakeProfitPrice is a fixed percentage above entry, independent of leverage.
func (p Position) TakeProfitPrice() float64 {
	return p.EntryPrice * (1 + p.TakeProfitPct/100)
}

// PnL marks the position to market. At or below the liquidation price the
// loss is capped at exactly the full margin.
func (p Position) PnL(currentPrice float64) float64 {
	if currentPrice <= p.LiquidationPrice() {
		return -p.Margin()
	}
	return p.Margin() * p.Leverage * (currentPrice - p.EntryPrice) / p.EntryPrice
}

// PriceChangePct is the percentage move of the mark price from entry.
func (p Position) PriceChangePct(currentPrice float64) float64 {
	return (currentPrice - p.EntryPrice) / p.EntryPrice * 100
}

// Risk classifies the position against its thresholds at the current price.
func (p Position) Risk(currentPrice float64) RiskLevel {
	switch {
	case currentPrice <= p.LiquidationPrice():
		return RiskLiquidated
	case currentPrice <= p.MarginCallPrice():
		return RiskDanger
	case currentPrice <= p.EntryPrice*0.95:
		return RiskRisky
	default:
		return RiskSafe
	}
}

// Leveraged reports whether the position accrues funding.
func (p Position) Leveraged() bool {
	return p.Leverage > 1.0
}

// CheckInvariants verifies the stored fields still satisfy the position
// invariants. It panics on violation: a corrupted position is a programming
// defect, not a recoverable condition.
func (p Position) CheckInvariants() {
	if p.Leverage < 1.0 {
		panic(fmt.Sprintf("position %s: leverage %.4f < 1.0", p.ID, p.Leverage))
	}
	if p.Margin() <= 0 {
		panic(fmt.Sprintf("position %s: margin %.4f <= 0", p.ID, p.Margin()))
	}
}
