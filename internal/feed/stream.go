package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultStreamURL = "wss://stream.binance.com:9443/stream"

// staleAfter bounds how old a streamed quote may be before the HTTP path
// takes over again.
const staleAfter = 30 * time.Second

// StreamCache holds the latest streamed quote per pair.
type StreamCache struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	seen   map[string]time.Time
}

// NewStreamCache creates an empty cache.
func NewStreamCache() *StreamCache {
	return &StreamCache{
		quotes: make(map[string]Quote),
		seen:   make(map[string]time.Time),
	}
}

// Quote returns the cached quote for a pair if it is fresh enough.
func (c *StreamCache) Quote(symbol string) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[symbol]
	if !ok || time.Since(c.seen[symbol]) > staleAfter {
		return Quote{}, false
	}
	return q, true
}

func (c *StreamCache) put(symbol string, q Quote) {
	c.mu.Lock()
	c.quotes[symbol] = q
	c.seen[symbol] = time.Now()
	c.mu.Unlock()
}

// Streamer keeps the cache warm from Binance's combined miniTicker stream.
type Streamer struct {
	url     string
	cache   *StreamCache
	log     zerolog.Logger
	symbols map[string]string // binance ticker -> pair symbol
}

// NewStreamer builds a streamer for the given pairs. url may be empty for
// the public endpoint.
func NewStreamer(url string, pairs []string, cache *StreamCache, log zerolog.Logger) *Streamer {
	if url == "" {
		url = defaultStreamURL
	}
	symbols := make(map[string]string, len(pairs))
	for _, p := range pairs {
		symbols[binanceSymbol(p)] = p
	}
	return &Streamer{
		url:     url,
		cache:   cache,
		log:     log.With().Str("component", "stream").Logger(),
		symbols: symbols,
	}
}

// Run connects and consumes ticker events until ctx is canceled,
// redialing with a fixed backoff on any failure.
func (s *Streamer) Run(ctx context.Context) {
	for {
		if err := s.consume(ctx); err != nil {
			s.log.Warn().Err(err).Msg("stream disconnected")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *Streamer) consume(ctx context.Context) error {
	streams := make([]string, 0, len(s.symbols))
	for ticker := range s.symbols {
		streams = append(streams, strings.ToLower(ticker)+"@miniTicker")
	}
	u := fmt.Sprintf("%s?streams=%s", s.url, strings.Join(streams, "/"))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.log.Info().Int("streams", len(streams)).Msg("stream connected")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		ticker, q, err := unmarshalTickerFrame(msg)
		if err != nil || q.Price <= 0 {
			continue
		}
		if pair, ok := s.symbols[ticker]; ok {
			s.cache.put(pair, q)
		}
	}
}

// unmarshalTickerFrame is split out for tests.
func unmarshalTickerFrame(data []byte) (symbol string, q Quote, err error) {
	var env struct {
		Data struct {
			Symbol string `json:"s"`
			Close  string `json:"c"`
			Open   string `json:"o"`
		} `json:"data"`
	}
	if err = json.Unmarshal(data, &env); err != nil {
		return "", Quote{}, err
	}
	price, err := strconv.ParseFloat(env.Data.Close, 64)
	if err != nil {
		return "", Quote{}, err
	}
	change := 0.0
	if open, perr := strconv.ParseFloat(env.Data.Open, 64); perr == nil && open > 0 {
		change = (price - open) / open * 100
	}
	return env.Data.Symbol, Quote{Price: price, Change24h: change, Source: "stream"}, nil
}
