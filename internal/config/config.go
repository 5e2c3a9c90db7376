package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultManualCloseChance is the simulated discretionary-close probability
// applied when the config leaves it unset.
const defaultManualCloseChance = 0.12

// Config is the top-level configuration for the trading engine.
type Config struct {
	Capital   CapitalConfig   `yaml:"capital"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Risk      RiskConfig      `yaml:"risk"`
	History   HistoryConfig   `yaml:"history"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	API       APIConfig       `yaml:"api"`
	Pairs     []PairConfig    `yaml:"pairs"`
}

// PairConfig describes one tradable pair and its risk limits.
type PairConfig struct {
	Symbol        string  `yaml:"symbol"`         // "BTC/USDC"
	Name          string  `yaml:"name"`           // "Bitcoin"
	Icon          string  `yaml:"icon"`           // display glyph for presentation layers
	MaxLeverage   float64 `yaml:"max_leverage"`   // per-pair leverage ceiling
	MinConfidence float64 `yaml:"min_confidence"` // below this, no leverage is recommended
	BlueChip      bool    `yaml:"blue_chip"`      // stability bonus in confidence scoring
}

// CapitalConfig holds account-level capital settings.
type CapitalConfig struct {
	StartingBalance float64 `yaml:"starting_balance"` // quote-currency capital at start
}

// SchedulerConfig controls the analysis cycle cadence.
type SchedulerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"` // seconds between cycles
}

// RiskConfig holds entry-guard and position-risk thresholds.
type RiskConfig struct {
	StopLossPct          float64 `yaml:"stop_loss_pct"`          // adverse price move that closes, e.g. 1.5
	TakeProfitPct        float64 `yaml:"take_profit_pct"`        // favorable price move that closes, e.g. 2.5
	FundingIntervalHours float64 `yaml:"funding_interval_hours"` // standard perp funding interval, 8h
	EntryConfidence      float64 `yaml:"entry_confidence"`       // minimum confidence to open
	MinWorthLeverage     float64 `yaml:"min_worth_leverage"`     // recommended leverage must exceed this
	PositionFraction     float64 `yaml:"position_fraction"`      // fraction of capital committed per position
	MaxExposureMultiple  float64 `yaml:"max_exposure_multiple"`  // total notional cap as multiple of capital
	MaxPositionMultiple  float64 `yaml:"max_position_multiple"`  // single notional cap as multiple of capital
	HighRiskLeverage     float64 `yaml:"high_risk_leverage"`     // max leverage above which portfolio is HIGH risk
	HighRiskMarginFrac   float64 `yaml:"high_risk_margin_frac"`  // margin fraction above which portfolio is HIGH risk
	LowRiskMarginFrac    float64 `yaml:"low_risk_margin_frac"`   // margin fraction below which portfolio is LOW risk

	// Pointer because zero is meaningful: an explicit 0 disables
	// discretionary closes entirely.
	ManualCloseChance *float64 `yaml:"manual_close_chance"` // per-cycle probability of a discretionary close (sim)
}

// ManualChance returns the discretionary-close probability, defaulted.
func (r RiskConfig) ManualChance() float64 {
	if r.ManualCloseChance == nil {
		return defaultManualCloseChance
	}
	return *r.ManualCloseChance
}

// HistoryConfig caps every in-memory series. Unbounded growth is a defect.
type HistoryConfig struct {
	PriceDepth     int `yaml:"price_depth"`     // rolling price points per pair
	FundingDepth   int `yaml:"funding_depth"`   // funding-rate points per pair
	TradeDepth     int `yaml:"trade_depth"`     // retained closed trades
	PortfolioDepth int `yaml:"portfolio_depth"` // value/pnl time-series points
}

// FeedsConfig selects and tunes the market-data collaborators.
type FeedsConfig struct {
	Mode           string  `yaml:"mode"`            // "live" or "sim"
	TimeoutSeconds int     `yaml:"timeout_seconds"` // per-call HTTP timeout
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	Burst          int     `yaml:"burst"`
	Stream         bool    `yaml:"stream"`   // enable websocket ticker stream
	SimSeed        int64   `yaml:"sim_seed"` // deterministic seed for sim mode
}

// APIConfig configures the read-only snapshot server.
type APIConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	TimeoutMs    int    `yaml:"timeout_ms"`
	ReadTimeout  int    `yaml:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds"`
}

// Load reads a YAML config file, applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Pairs: []PairConfig{
			{Symbol: "ETH/USDC", Name: "Ethereum", Icon: "🔷", MaxLeverage: 10, MinConfidence: 65, BlueChip: true},
			{Symbol: "BTC/USDC", Name: "Bitcoin", Icon: "🟠", MaxLeverage: 10, MinConfidence: 70, BlueChip: true},
			{Symbol: "SOL/USDC", Name: "Solana", Icon: "🟣", MaxLeverage: 10, MinConfidence: 60},
			{Symbol: "XRP/USDC", Name: "Ripple", Icon: "🔵", MaxLeverage: 10, MinConfidence: 55},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Capital.StartingBalance == 0 {
		c.Capital.StartingBalance = 40000
	}
	if c.Scheduler.IntervalSeconds == 0 {
		c.Scheduler.IntervalSeconds = 30
	}

	if c.Risk.StopLossPct == 0 {
		c.Risk.StopLossPct = 1.5
	}
	if c.Risk.TakeProfitPct == 0 {
		c.Risk.TakeProfitPct = 2.5
	}
	if c.Risk.FundingIntervalHours == 0 {
		c.Risk.FundingIntervalHours = 8
	}
	if c.Risk.EntryConfidence == 0 {
		c.Risk.EntryConfidence = 75
	}
	if c.Risk.MinWorthLeverage == 0 {
		c.Risk.MinWorthLeverage = 1.5
	}
	if c.Risk.PositionFraction == 0 {
		c.Risk.PositionFraction = 0.10
	}
	if c.Risk.MaxExposureMultiple == 0 {
		c.Risk.MaxExposureMultiple = 10
	}
	if c.Risk.MaxPositionMultiple == 0 {
		c.Risk.MaxPositionMultiple = 2
	}
	if c.Risk.HighRiskLeverage == 0 {
		c.Risk.HighRiskLeverage = 7
	}
	if c.Risk.HighRiskMarginFrac == 0 {
		c.Risk.HighRiskMarginFrac = 0.10
	}
	if c.Risk.LowRiskMarginFrac == 0 {
		c.Risk.LowRiskMarginFrac = 0.025
	}
	if c.Risk.ManualCloseChance == nil {
		v := defaultManualCloseChance
		c.Risk.ManualCloseChance = &v
	}

	if c.History.PriceDepth == 0 {
		c.History.PriceDepth = 20
	}
	if c.History.FundingDepth == 0 {
		c.History.FundingDepth = 24
	}
	if c.History.TradeDepth == 0 {
		c.History.TradeDepth = 50
	}
	if c.History.PortfolioDepth == 0 {
		c.History.PortfolioDepth = 100
	}

	if c.Feeds.Mode == "" {
		c.Feeds.Mode = "live"
	}
	if c.Feeds.TimeoutSeconds == 0 {
		c.Feeds.TimeoutSeconds = 8
	}
	if c.Feeds.RequestsPerSec == 0 {
		c.Feeds.RequestsPerSec = 2
	}
	if c.Feeds.Burst == 0 {
		c.Feeds.Burst = 4
	}
	if c.Feeds.SimSeed == 0 {
		c.Feeds.SimSeed = 1
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = "127.0.0.1:8080"
	}
	if c.API.TimeoutMs == 0 {
		c.API.TimeoutMs = 5000
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 10
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 10
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Pairs) == 0 {
		return fmt.Errorf("config: at least one trading pair is required")
	}
	seen := make(map[string]bool, len(c.Pairs))
	for _, p := range c.Pairs {
		if p.Symbol == "" {
			return fmt.Errorf("config: pair with empty symbol")
		}
		if seen[p.Symbol] {
			return fmt.Errorf("config: duplicate pair %s", p.Symbol)
		}
		seen[p.Symbol] = true
		if p.MaxLeverage < 1 {
			return fmt.Errorf("config: pair %s: max_leverage must be >= 1, got %.2f", p.Symbol, p.MaxLeverage)
		}
		if p.MinConfidence < 0 || p.MinConfidence >= 95 {
			return fmt.Errorf("config: pair %s: min_confidence must be in [0, 95), got %.1f", p.Symbol, p.MinConfidence)
		}
	}
	if c.Capital.StartingBalance <= 0 {
		return fmt.Errorf("config: starting_balance must be positive")
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.TakeProfitPct <= 0 {
		return fmt.Errorf("config: stop_loss_pct and take_profit_pct must be positive")
	}
	if chance := c.Risk.ManualChance(); chance < 0 || chance > 1 {
		return fmt.Errorf("config: manual_close_chance must be in [0, 1], got %.3f", chance)
	}
	if c.Feeds.Mode != "live" && c.Feeds.Mode != "sim" {
		return fmt.Errorf("config: feeds.mode must be \"live\" or \"sim\", got %q", c.Feeds.Mode)
	}
	return nil
}

// CycleInterval returns the scheduler interval as a duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

// FeedTimeout returns the per-call feed timeout as a duration.
func (c *Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feeds.TimeoutSeconds) * time.Second
}

// Pair returns the configuration for a symbol, if present.
func (c *Config) Pair(symbol string) (PairConfig, bool) {
	for _, p := range c.Pairs {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return PairConfig{}, false
}
