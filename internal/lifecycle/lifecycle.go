// Package lifecycle decides when an open position must close and settles
// the resulting trade.
//
// Close triggers are evaluated in strict precedence order: liquidation
// first, then stop loss, then take profit, then discretionary exits. When a
// price satisfies several thresholds in the same cycle, only the
// highest-precedence reason fires.
package lifecycle

import (
	"time"

	"github.com/leverrun/leverrun/internal/position"
)

// CloseReason identifies which trigger closed a position.
type CloseReason int

const (
	ReasonNone CloseReason = iota
	ReasonLiquidation
	ReasonStopLoss
	ReasonTakeProfit
	ReasonManual
)

func (r CloseReason) String() string {
	switch r {
	case ReasonLiquidation:
		return "liquidation"
	case ReasonStopLoss:
		return "stop_loss"
	case ReasonTakeProfit:
		return "take_profit"
	case ReasonManual:
		return "manual"
	default:
		return "none"
	}
}

// Evaluate checks the close triggers for a position at the current price.
// manual reports whether a discretionary exit was requested this cycle; it
// only fires when no price threshold does.
func Evaluate(p position.Position, currentPrice float64, manual bool) CloseReason {
	switch {
	case currentPrice <= p.LiquidationPrice():
		return ReasonLiquidation
	case currentPrice <= p.StopLossPrice():
		return ReasonStopLoss
	case currentPrice >= p.TakeProfitPrice():
		return ReasonTakeProfit
	case manual:
		return ReasonManual
	default:
		return ReasonNone
	}
}

// FundingCost returns the funding accrued by a position since it opened.
// Only leveraged positions pay funding; the rate is a percentage of the
// effective size per funding interval, prorated by holding time.
func FundingCost(p position.Position, now time.Time, intervalHours float64) float64 {
	if !p.Leveraged() {
		return 0
	}
	hoursHeld := now.Sub(p.OpenedAt).Hours()
	if hoursHeld <= 0 {
		return 0
	}
	return p.EffectiveSize * (p.FundingRate / 100) * (hoursHeld / intervalHours)
}

// Trade is the immutable record of a closed position.
type Trade struct {
	Position    position.Position `json:"position"`
	ClosePrice  float64           `json:"close_price"`
	ClosedAt    time.Time         `json:"closed_at"`
	Reason      CloseReason       `json:"-"`
	ReasonLabel string            `json:"reason"`
	RealizedPnL float64           `json:"realized_pnl"` // price P&L minus funding
	FundingCost float64           `json:"funding_cost"`
	ReturnPct   float64           `json:"return_pct"` // realized P&L over margin
}

// Close settles a position at the given price and builds its trade record.
// Funding is deducted from the price P&L to produce the realized figure.
func Close(p position.Position, closePrice float64, reason CloseReason, now time.Time, fundingIntervalHours float64) Trade {
	funding := FundingCost(p, now, fundingIntervalHours)
	realized := p.PnL(closePrice) - funding

	return Trade{
		Position:    p,
		ClosePrice:  closePrice,
		ClosedAt:    now,
		Reason:      reason,
		ReasonLabel: reason.String(),
		RealizedPnL: realized,
		FundingCost: funding,
		ReturnPct:   realized / p.Margin() * 100,
	}
}
