package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFeed(t *testing.T, coinGecko, binance, futures string) *HTTPFeed {
	t.Helper()
	return NewHTTPFeed(HTTPFeedConfig{
		Timeout:        time.Second,
		RequestsPerSec: 1000,
		Burst:          1000,
		CoinGeckoURL:   coinGecko,
		BinanceURL:     binance,
		FuturesURL:     futures,
	}, nil, zerolog.Nop())
}

func TestPriceFromCoinGecko(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		w.Write([]byte(`{"ethereum":{"usd":4400.5,"usd_24h_change":2.1}}`))
	}))
	defer srv.Close()

	f := testFeed(t, srv.URL, "http://127.0.0.1:1", "http://127.0.0.1:1")
	q, err := f.Price(context.Background(), "ETH/USDC")

	require.NoError(t, err)
	assert.Equal(t, 4400.5, q.Price)
	assert.Equal(t, 2.1, q.Change24h)
	assert.Equal(t, "coingecko", q.Source)
}

func TestPriceFallsBackToBinance(t *testing.T) {
	gecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer gecko.Close()

	binance := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"lastPrice":"119250.10","priceChangePercent":"-0.8"}`))
	}))
	defer binance.Close()

	f := testFeed(t, gecko.URL, binance.URL, "http://127.0.0.1:1")
	q, err := f.Price(context.Background(), "BTC/USDC")

	require.NoError(t, err)
	assert.Equal(t, 119250.10, q.Price)
	assert.Equal(t, -0.8, q.Change24h)
	assert.Equal(t, "binance", q.Source)
}

func TestPriceStaticFallbackWhenAllSourcesDown(t *testing.T) {
	f := testFeed(t, "http://127.0.0.1:1", "http://127.0.0.1:1", "http://127.0.0.1:1")
	q, err := f.Price(context.Background(), "SOL/USDC")

	require.NoError(t, err)
	assert.Equal(t, 177.0, q.Price)
	assert.Equal(t, "fallback", q.Source)
}

func TestPriceUnknownPairFails(t *testing.T) {
	f := testFeed(t, "http://127.0.0.1:1", "http://127.0.0.1:1", "http://127.0.0.1:1")
	_, err := f.Price(context.Background(), "DOGE/USDC")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFundingFromBinance(t *testing.T) {
	futures := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/premiumIndex", r.URL.Path)
		w.Write([]byte(`{"lastFundingRate":"0.0001"}`))
	}))
	defer futures.Close()

	f := testFeed(t, "http://127.0.0.1:1", "http://127.0.0.1:1", futures.URL)
	r, err := f.Rate(context.Background(), "ETH/USDC")

	require.NoError(t, err)
	// Exchange fraction scaled to percent per interval.
	assert.InDelta(t, 0.01, r.RatePct8h, 1e-9)
	assert.Equal(t, "binance_futures", r.Source)
}

func TestFundingStaticFallback(t *testing.T) {
	f := testFeed(t, "http://127.0.0.1:1", "http://127.0.0.1:1", "http://127.0.0.1:1")
	r, err := f.Rate(context.Background(), "XRP/USDC")

	require.NoError(t, err)
	assert.Equal(t, 0.015, r.RatePct8h)
	assert.Equal(t, "fallback", r.Source)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	gecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gecko.Close()

	f := testFeed(t, gecko.URL, "http://127.0.0.1:1", "http://127.0.0.1:1")
	for i := 0; i < 10; i++ {
		f.Price(context.Background(), "ETH/USDC")
	}

	// The breaker trips after three consecutive failures and stops hitting
	// the endpoint.
	assert.Equal(t, 3, calls)
}

func TestStreamCachePreferred(t *testing.T) {
	cache := NewStreamCache()
	cache.put("ETH/USDC", Quote{Price: 4500, Change24h: 1.0, Source: "stream"})

	f := NewHTTPFeed(HTTPFeedConfig{
		CoinGeckoURL: "http://127.0.0.1:1",
		BinanceURL:   "http://127.0.0.1:1",
		FuturesURL:   "http://127.0.0.1:1",
	}, cache, zerolog.Nop())

	q, err := f.Price(context.Background(), "ETH/USDC")
	require.NoError(t, err)
	assert.Equal(t, "stream", q.Source)
	assert.Equal(t, 4500.0, q.Price)
}

func TestUnmarshalTickerFrame(t *testing.T) {
	frame := []byte(`{"stream":"ethusdt@miniTicker","data":{"s":"ETHUSDT","c":"4510.00","o":"4400.00"}}`)

	symbol, q, err := unmarshalTickerFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", symbol)
	assert.Equal(t, 4510.0, q.Price)
	assert.InDelta(t, 2.5, q.Change24h, 1e-9)
}

func TestSimFeedDeterministic(t *testing.T) {
	pairs := []string{"ETH/USDC", "BTC/USDC"}
	a := NewSimFeed(42, pairs)
	b := NewSimFeed(42, pairs)

	for i := 0; i < 10; i++ {
		for _, p := range pairs {
			qa, err := a.Price(context.Background(), p)
			require.NoError(t, err)
			qb, err := b.Price(context.Background(), p)
			require.NoError(t, err)
			assert.Equal(t, qa, qb)
			assert.Greater(t, qa.Price, 0.0)
		}
	}
}

func TestSimFeedUnknownPair(t *testing.T) {
	f := NewSimFeed(1, []string{"ETH/USDC"})
	_, err := f.Price(context.Background(), "DOGE/USDC")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = f.Rate(context.Background(), "DOGE/USDC")
	assert.ErrorIs(t, err, ErrUnavailable)
}
