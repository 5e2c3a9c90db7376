package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// SimFeed is a deterministic random-walk price and funding source for
// simulation mode and tests. The same seed always produces the same
// sequence of quotes.
type SimFeed struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
	starts map[string]float64
}

// NewSimFeed seeds a simulated feed. Pairs without a fallback reference
// price start at 100.
func NewSimFeed(seed int64, pairs []string) *SimFeed {
	f := &SimFeed{
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]float64, len(pairs)),
		starts: make(map[string]float64, len(pairs)),
	}
	for _, p := range pairs {
		start := 100.0
		if q, ok := FallbackQuote(p); ok {
			start = q.Price
		}
		f.prices[p] = start
		f.starts[p] = start
	}
	return f
}

// Price advances the walk one step for the pair and returns the new quote.
// Steps are drawn from a +/-1.5% uniform band.
func (f *SimFeed) Price(_ context.Context, symbol string) (Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	price, ok := f.prices[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("sim: unknown pair %s: %w", symbol, ErrUnavailable)
	}

	price *= 1 + (f.rng.Float64()-0.5)*0.03
	f.prices[symbol] = price

	change := (price - f.starts[symbol]) / f.starts[symbol] * 100
	return Quote{Price: price, Change24h: change, Source: "sim"}, nil
}

// Rate jitters the static funding rate by up to +/-20%.
func (f *SimFeed) Rate(_ context.Context, symbol string) (FundingRate, error) {
	base, ok := FallbackFunding(symbol)
	if !ok {
		return FundingRate{}, fmt.Errorf("sim: unknown pair %s: %w", symbol, ErrUnavailable)
	}

	f.mu.Lock()
	jitter := 1 + (f.rng.Float64()-0.5)*0.4
	f.mu.Unlock()

	return FundingRate{RatePct8h: base.RatePct8h * jitter, Source: "sim"}, nil
}
