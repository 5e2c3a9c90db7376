package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Default public endpoints. Overridable for tests.
const (
	defaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
	defaultBinanceURL   = "https://api.binance.com/api/v3"
	defaultFuturesURL   = "https://fapi.binance.com/fapi/v1"
)

// HTTPFeedConfig tunes the live feed.
type HTTPFeedConfig struct {
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int

	// Endpoint overrides, empty means the public defaults.
	CoinGeckoURL string
	BinanceURL   string
	FuturesURL   string
}

// HTTPFeed serves quotes and funding rates from public REST APIs, trying
// CoinGecko first and Binance second, each behind its own circuit breaker.
// An optional stream cache is consulted before any HTTP call.
type HTTPFeed struct {
	client    *http.Client
	log       zerolog.Logger
	coinGecko string
	binance   string
	futures   string
	stream    *StreamCache

	breakers map[string]*gobreaker.CircuitBreaker

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   float64
	burst    int
}

// NewHTTPFeed builds the live feed. stream may be nil.
func NewHTTPFeed(cfg HTTPFeedConfig, stream *StreamCache, log zerolog.Logger) *HTTPFeed {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}
	if cfg.CoinGeckoURL == "" {
		cfg.CoinGeckoURL = defaultCoinGeckoURL
	}
	if cfg.BinanceURL == "" {
		cfg.BinanceURL = defaultBinanceURL
	}
	if cfg.FuturesURL == "" {
		cfg.FuturesURL = defaultFuturesURL
	}

	f := &HTTPFeed{
		client:    &http.Client{Timeout: cfg.Timeout},
		log:       log.With().Str("component", "feed").Logger(),
		coinGecko: cfg.CoinGeckoURL,
		binance:   cfg.BinanceURL,
		futures:   cfg.FuturesURL,
		stream:    stream,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		limiters:  make(map[string]*rate.Limiter),
		perSec:    cfg.RequestsPerSec,
		burst:     cfg.Burst,
	}
	for _, name := range []string{"coingecko", "binance", "binance_futures"} {
		f.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}
	return f
}

// Price returns a quote for a pair: stream cache, then CoinGecko, then
// Binance, then the static fallback table.
func (f *HTTPFeed) Price(ctx context.Context, symbol string) (Quote, error) {
	if f.stream != nil {
		if q, ok := f.stream.Quote(symbol); ok {
			return q, nil
		}
	}

	q, err := f.coinGeckoPrice(ctx, symbol)
	if err == nil {
		return q, nil
	}
	f.log.Debug().Err(err).Str("symbol", symbol).Msg("coingecko price failed")

	q, err = f.binancePrice(ctx, symbol)
	if err == nil {
		return q, nil
	}
	f.log.Debug().Err(err).Str("symbol", symbol).Msg("binance price failed")

	if q, ok := FallbackQuote(symbol); ok {
		f.log.Warn().Str("symbol", symbol).Msg("all price sources down, using fallback")
		return q, nil
	}
	return Quote{}, fmt.Errorf("price %s: %w", symbol, ErrUnavailable)
}

// Rate returns the funding rate: Binance futures, then the static table.
func (f *HTTPFeed) Rate(ctx context.Context, symbol string) (FundingRate, error) {
	r, err := f.binanceFunding(ctx, symbol)
	if err == nil {
		return r, nil
	}
	f.log.Debug().Err(err).Str("symbol", symbol).Msg("binance funding failed")

	if r, ok := FallbackFunding(symbol); ok {
		return r, nil
	}
	return FundingRate{}, fmt.Errorf("funding %s: %w", symbol, ErrUnavailable)
}

func (f *HTTPFeed) coinGeckoPrice(ctx context.Context, symbol string) (Quote, error) {
	id, err := coinGeckoID(symbol)
	if err != nil {
		return Quote{}, err
	}
	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd&include_24hr_change=true", f.coinGecko, id)

	var body map[string]struct {
		USD       float64 `json:"usd"`
		Change24h float64 `json:"usd_24h_change"`
	}
	if err := f.fetch(ctx, "coingecko", u, &body); err != nil {
		return Quote{}, err
	}
	entry, ok := body[id]
	if !ok || entry.USD <= 0 {
		return Quote{}, fmt.Errorf("coingecko: no price for %s", id)
	}
	return Quote{Price: entry.USD, Change24h: entry.Change24h, Source: "coingecko"}, nil
}

func (f *HTTPFeed) binancePrice(ctx context.Context, symbol string) (Quote, error) {
	u := fmt.Sprintf("%s/ticker/24hr?symbol=%s", f.binance, binanceSymbol(symbol))

	var body struct {
		LastPrice          string `json:"lastPrice"`
		PriceChangePercent string `json:"priceChangePercent"`
	}
	if err := f.fetch(ctx, "binance", u, &body); err != nil {
		return Quote{}, err
	}
	price, err := strconv.ParseFloat(body.LastPrice, 64)
	if err != nil || price <= 0 {
		return Quote{}, fmt.Errorf("binance: bad price %q for %s", body.LastPrice, symbol)
	}
	change, _ := strconv.ParseFloat(body.PriceChangePercent, 64)
	return Quote{Price: price, Change24h: change, Source: "binance"}, nil
}

func (f *HTTPFeed) binanceFunding(ctx context.Context, symbol string) (FundingRate, error) {
	u := fmt.Sprintf("%s/premiumIndex?symbol=%s", f.futures, binanceSymbol(symbol))

	var body struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := f.fetch(ctx, "binance_futures", u, &body); err != nil {
		return FundingRate{}, err
	}
	r, err := strconv.ParseFloat(body.LastFundingRate, 64)
	if err != nil {
		return FundingRate{}, fmt.Errorf("binance_futures: bad rate %q for %s", body.LastFundingRate, symbol)
	}
	// Binance reports a fraction per interval; scale to percent.
	return FundingRate{RatePct8h: r * 100, Source: "binance_futures"}, nil
}

// fetch performs one rate-limited GET through the named breaker and decodes
// the JSON body into out.
func (f *HTTPFeed) fetch(ctx context.Context, breaker, rawURL string, out any) error {
	if err := f.wait(ctx, rawURL); err != nil {
		return err
	}

	_, err := f.breakers[breaker].Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s: status %d", breaker, resp.StatusCode)
		}
		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	return err
}

// wait blocks on the per-host rate limiter for the request URL.
func (f *HTTPFeed) wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	f.mu.Lock()
	lim, ok := f.limiters[u.Host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.perSec), f.burst)
		f.limiters[u.Host] = lim
	}
	f.mu.Unlock()

	return lim.Wait(ctx)
}
