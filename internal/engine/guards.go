package engine

import (
	"fmt"

	"github.com/leverrun/leverrun/internal/config"
)

// EntryRequest is a candidate position evaluated against the entry guards.
type EntryRequest struct {
	Pair                string
	Confidence          float64
	RecommendedLeverage float64
	Margin              float64
	Notional            float64 // Margin x RecommendedLeverage
}

// BookState captures the pre-trade account totals the guards evaluate
// against. Totals are read once, before any commit, so a passing request
// is never double counted against itself.
type BookState struct {
	Capital       float64
	UsedMargin    float64
	TotalNotional float64
	HasOpen       bool // an open position already exists for the pair
}

// GuardResult reports an entry decision with every violated guard.
// A rejection is a normal decision, not an error.
type GuardResult struct {
	Allowed bool
	Reasons []string
}

// CheckEntry runs all entry guards for a candidate position. Every guard is
// evaluated so the result lists the full set of violations.
func CheckEntry(req EntryRequest, book BookState, risk config.RiskConfig) GuardResult {
	var reasons []string

	if req.Confidence < risk.EntryConfidence {
		reasons = append(reasons, fmt.Sprintf(
			"confidence %.1f below entry threshold %.1f", req.Confidence, risk.EntryConfidence))
	}
	if req.RecommendedLeverage <= risk.MinWorthLeverage {
		reasons = append(reasons, fmt.Sprintf(
			"recommended leverage %.2fx not worth trading (minimum %.2fx)",
			req.RecommendedLeverage, risk.MinWorthLeverage))
	}
	if book.HasOpen {
		reasons = append(reasons, fmt.Sprintf("position already open for %s", req.Pair))
	}
	if book.UsedMargin+req.Margin > book.Capital {
		reasons = append(reasons, fmt.Sprintf(
			"insufficient capital: %.2f used + %.2f new exceeds %.2f",
			book.UsedMargin, req.Margin, book.Capital))
	}
	if maxNotional := book.Capital * risk.MaxExposureMultiple; book.TotalNotional+req.Notional > maxNotional {
		reasons = append(reasons, fmt.Sprintf(
			"total exposure %.2f would exceed cap %.2f",
			book.TotalNotional+req.Notional, maxNotional))
	}
	if maxSingle := book.Capital * risk.MaxPositionMultiple; req.Notional > maxSingle {
		reasons = append(reasons, fmt.Sprintf(
			"position notional %.2f exceeds single-position cap %.2f", req.Notional, maxSingle))
	}

	return GuardResult{Allowed: len(reasons) == 0, Reasons: reasons}
}
