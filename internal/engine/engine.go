// Package engine owns the trading state and runs the periodic analysis
// cycle: refresh market data, decide entries, evaluate open positions,
// aggregate the portfolio.
package engine

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/leverrun/leverrun/internal/config"
	"github.com/leverrun/leverrun/internal/feed"
	"github.com/leverrun/leverrun/internal/leverage"
	"github.com/leverrun/leverrun/internal/lifecycle"
	"github.com/leverrun/leverrun/internal/metrics"
	"github.com/leverrun/leverrun/internal/portfolio"
	"github.com/leverrun/leverrun/internal/position"
	"github.com/leverrun/leverrun/internal/signal"
)

// Engine is the single mutator of all trading state. One goroutine runs
// cycles; readers get deep copies via Snapshot.
type Engine struct {
	cfg     *config.Config
	log     zerolog.Logger
	prices  feed.PriceFeed
	funding feed.FundingSource
	met     *metrics.Metrics
	scorer  *signal.Scorer
	agg     *portfolio.Aggregator
	rng     *rand.Rand
	now     func() time.Time

	mu      sync.RWMutex
	assets  map[string]*AssetState
	open    map[string]position.Position
	trades  []lifecycle.Trade // oldest first, capped
	summary portfolio.Summary
	series  []portfolio.Point
	cycle   uint64

	inCycle atomic.Bool
}

// New wires an engine from its collaborators. A zero seed derives one from
// the clock; simulation runs pass a fixed seed for reproducible cycles.
func New(cfg *config.Config, prices feed.PriceFeed, funding feed.FundingSource, met *metrics.Metrics, seed int64, log zerolog.Logger) *Engine {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var blueChips []string
	assets := make(map[string]*AssetState, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		if p.BlueChip {
			blueChips = append(blueChips, p.Symbol)
		}
		assets[p.Symbol] = &AssetState{
			Symbol:        p.Symbol,
			Name:          p.Name,
			Icon:          p.Icon,
			MaxLeverage:   p.MaxLeverage,
			MinConfidence: p.MinConfidence,
			QuoteBalance:  cfg.Capital.StartingBalance / float64(len(cfg.Pairs)),
		}
	}

	return &Engine{
		cfg:     cfg,
		log:     log.With().Str("component", "engine").Logger(),
		prices:  prices,
		funding: funding,
		met:     met,
		scorer:  signal.NewScorer(blueChips),
		agg:     portfolio.NewAggregator(cfg.Capital.StartingBalance, cfg.Risk, cfg.History.PortfolioDepth),
		rng:     rand.New(rand.NewSource(seed)),
		now:     time.Now,
		assets:  assets,
		open:    make(map[string]position.Position),
	}
}

// Run executes one cycle immediately, then one per interval until ctx is
// canceled.
func (e *Engine) Run(ctx context.Context) {
	e.RunCycle(ctx)

	ticker := time.NewTicker(e.cfg.CycleInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine stopped")
			return
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle performs one full analysis pass. Overlapping ticks are skipped
// rather than queued, and a panic inside the cycle is recovered here so the
// scheduler survives to the next tick.
func (e *Engine) RunCycle(ctx context.Context) {
	if !e.inCycle.CompareAndSwap(false, true) {
		e.log.Warn().Msg("previous cycle still running, skipping tick")
		return
	}
	defer e.inCycle.Store(false)

	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			e.met.CyclesTotal.WithLabelValues("panic").Inc()
			e.log.Error().Interface("panic", r).Msg("cycle panicked")
		}
	}()

	quotes := e.refresh(ctx)

	e.mu.Lock()
	e.cycle++
	cycle := e.cycle
	e.applyQuotes(quotes, start)
	prices := e.markPrices()
	e.evaluateEntries(prices, start)
	e.evaluateLifecycle(prices, start)
	e.aggregate(start)
	summary := e.summary
	e.mu.Unlock()

	e.met.OpenPositions.Set(float64(summary.OpenPositions))
	e.met.PortfolioValue.Set(summary.TotalValue)
	e.met.MaxLeverage.Set(summary.MaxLeverage)
	e.met.CyclesTotal.WithLabelValues("ok").Inc()
	e.met.CycleDuration.Observe(time.Since(start).Seconds())

	e.log.Info().
		Uint64("cycle", cycle).
		Float64("total_value", summary.TotalValue).
		Int("open_positions", summary.OpenPositions).
		Str("risk", summary.RiskLabel).
		Dur("took", time.Since(start)).
		Msg("cycle complete")
}

type cycleQuote struct {
	quote  feed.Quote
	rate   feed.FundingRate
	ok     bool
	rateOK bool
}

// refresh fetches a quote and funding rate per pair. Failures are logged
// and the pair keeps its last-known values for this cycle.
func (e *Engine) refresh(ctx context.Context) map[string]cycleQuote {
	out := make(map[string]cycleQuote, len(e.cfg.Pairs))
	for _, p := range e.cfg.Pairs {
		var cq cycleQuote

		qctx, cancel := context.WithTimeout(ctx, e.cfg.FeedTimeout())
		q, err := e.prices.Price(qctx, p.Symbol)
		cancel()
		if err != nil {
			e.met.FeedErrors.WithLabelValues("price").Inc()
			e.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("price fetch failed, retaining last known")
		} else {
			cq.quote, cq.ok = q, true
		}

		rctx, cancel := context.WithTimeout(ctx, e.cfg.FeedTimeout())
		r, err := e.funding.Rate(rctx, p.Symbol)
		cancel()
		if err != nil {
			e.met.FeedErrors.WithLabelValues("funding").Inc()
			e.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("funding fetch failed, retaining last known")
		} else {
			cq.rate, cq.rateOK = r, true
		}

		out[p.Symbol] = cq
	}
	return out
}

// applyQuotes folds fresh market data into the per-asset states and
// rescores each updated pair. Must hold e.mu.
func (e *Engine) applyQuotes(quotes map[string]cycleQuote, now time.Time) {
	for _, p := range e.cfg.Pairs {
		a := e.assets[p.Symbol]
		cq := quotes[p.Symbol]

		if cq.rateOK {
			a.FundingRate = cq.rate.RatePct8h
			a.FundingHistory = pushBounded(a.FundingHistory, cq.rate.RatePct8h, e.cfg.History.FundingDepth)
		}
		if !cq.ok {
			continue
		}

		a.Price = cq.quote.Price
		a.Change24h = cq.quote.Change24h
		a.PriceSource = cq.quote.Source
		a.LastUpdate = now
		a.PriceHistory = pushBounded(a.PriceHistory, cq.quote.Price, e.cfg.History.PriceDepth)

		a.Volatility = e.scorer.Volatility(a.PriceHistory)
		trend, _ := e.scorer.Trend(a.PriceHistory)
		a.TrendLabel = trend.String()
		a.Confidence = e.scorer.Confidence(p.Symbol, a.PriceHistory, a.Volatility, a.Change24h)
		a.RecommendedLev = leverage.Recommend(a.Confidence, a.Volatility, leverage.Limits{
			MaxLeverage:   p.MaxLeverage,
			MinConfidence: p.MinConfidence,
		})
	}
}

// markPrices returns the last-known price per pair with any price at all.
// Must hold e.mu.
func (e *Engine) markPrices() map[string]float64 {
	prices := make(map[string]float64, len(e.assets))
	for sym, a := range e.assets {
		if a.Price > 0 {
			prices[sym] = a.Price
		}
	}
	return prices
}

// evaluateEntries opens positions for pairs whose signal clears every entry
// guard. Guards see pre-trade totals; each commit updates the book the next
// candidate is judged against. Must hold e.mu.
func (e *Engine) evaluateEntries(prices map[string]float64, now time.Time) {
	for _, p := range e.cfg.Pairs {
		a := e.assets[p.Symbol]
		price, ok := prices[p.Symbol]
		if !ok {
			continue
		}

		margin := e.cfg.Capital.StartingBalance * e.cfg.Risk.PositionFraction
		req := EntryRequest{
			Pair:                p.Symbol,
			Confidence:          a.Confidence,
			RecommendedLeverage: a.RecommendedLev,
			Margin:              margin,
			Notional:            margin * a.RecommendedLev,
		}

		book := BookState{Capital: e.cfg.Capital.StartingBalance}
		for _, pos := range e.open {
			book.UsedMargin += pos.Margin()
			book.TotalNotional += pos.EffectiveSize
		}
		_, book.HasOpen = e.open[p.Symbol]

		res := CheckEntry(req, book, e.cfg.Risk)
		if !res.Allowed {
			e.log.Debug().
				Str("symbol", p.Symbol).
				Strs("reasons", res.Reasons).
				Msg("entry rejected")
			continue
		}

		pos := position.New(p.Symbol, price, margin, a.RecommendedLev, a.Confidence,
			a.FundingRate, e.cfg.Risk.StopLossPct, e.cfg.Risk.TakeProfitPct, now)
		e.open[p.Symbol] = pos
		a.QuoteBalance -= margin
		a.AssetBalance += pos.Amount

		e.log.Info().
			Str("symbol", p.Symbol).
			Str("id", pos.ID).
			Float64("entry", price).
			Float64("leverage", pos.Leverage).
			Float64("margin", margin).
			Float64("confidence", a.Confidence).
			Msg("position opened")
	}
}

// evaluateLifecycle closes positions whose triggers fire at the current
// mark price. Must hold e.mu.
func (e *Engine) evaluateLifecycle(prices map[string]float64, now time.Time) {
	for sym, pos := range e.open {
		price, ok := prices[sym]
		if !ok {
			price = pos.EntryPrice
		}

		manual := e.rng.Float64() < e.cfg.Risk.ManualChance()
		reason := lifecycle.Evaluate(pos, price, manual)
		if reason == lifecycle.ReasonNone {
			continue
		}

		tr := lifecycle.Close(pos, price, reason, now, e.cfg.Risk.FundingIntervalHours)
		delete(e.open, sym)
		e.agg.RecordTrade(tr)

		// Bounded display history only; realized totals live in the
		// aggregator's ledger.
		e.trades = append(e.trades, tr)
		if n := len(e.trades) - e.cfg.History.TradeDepth; n > 0 {
			e.trades = e.trades[n:]
		}

		a := e.assets[sym]
		a.QuoteBalance += pos.Margin() + tr.RealizedPnL
		a.AssetBalance = 0
		a.Trades++
		if tr.RealizedPnL > 0 {
			a.Wins++
		} else {
			a.Losses++
		}
		a.WinRate = float64(a.Wins) / float64(a.Trades) * 100

		e.met.TradesTotal.WithLabelValues(reason.String()).Inc()
		e.log.Info().
			Str("symbol", sym).
			Str("id", pos.ID).
			Str("reason", reason.String()).
			Float64("close", price).
			Float64("pnl", tr.RealizedPnL).
			Float64("funding", tr.FundingCost).
			Msg("position closed")
	}
}

// aggregate recomputes the portfolio summary and value series. Must hold
// e.mu.
func (e *Engine) aggregate(now time.Time) {
	open := make([]position.Position, 0, len(e.open))
	for _, pos := range e.open {
		open = append(open, pos)
	}
	e.summary = e.agg.Summarize(open, e.markPrices(), now)
	e.series = e.agg.Series()
}

// Snapshot deep-copies the engine state as of the last committed cycle.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := Snapshot{
		Timestamp: e.summary.Timestamp,
		Cycle:     e.cycle,
		Portfolio: e.summary,
		Series:    append([]portfolio.Point(nil), e.series...),
		Assets:    make([]AssetState, 0, len(e.cfg.Pairs)),
		Positions: make([]PositionView, 0, len(e.open)),
		Trades:    make([]lifecycle.Trade, 0, len(e.trades)),
	}

	for _, p := range e.cfg.Pairs {
		snap.Assets = append(snap.Assets, e.assets[p.Symbol].clone())
	}
	for _, p := range e.cfg.Pairs {
		pos, ok := e.open[p.Symbol]
		if !ok {
			continue
		}
		price := e.assets[p.Symbol].Price
		if price <= 0 {
			price = pos.EntryPrice
		}
		snap.Positions = append(snap.Positions, PositionView{
			Position:      pos,
			CurrentPrice:  price,
			UnrealizedPnL: pos.PnL(price),
			RiskLabel:     pos.Risk(price).String(),
		})
	}
	for i := len(e.trades) - 1; i >= 0; i-- {
		snap.Trades = append(snap.Trades, e.trades[i])
	}
	return snap
}
