// Command leverrun runs the simulated leveraged-trading engine and its
// read-only snapshot API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/leverrun/leverrun/internal/api"
	"github.com/leverrun/leverrun/internal/config"
	"github.com/leverrun/leverrun/internal/engine"
	"github.com/leverrun/leverrun/internal/feed"
	"github.com/leverrun/leverrun/internal/metrics"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	flagConfig   string
	flagLogLevel string
	flagLogJSON  bool
)

func main() {
	root := &cobra.Command{
		Use:   "leverrun",
		Short: "Simulated leveraged-trading engine",
		Long: `leverrun scores market signals, recommends leverage, and runs a
simulated position lifecycle over live or simulated market data.`,
		SilenceUsage: true,
	}

	registerFlags(root.PersistentFlags())

	root.AddCommand(runCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func registerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&flagConfig, "config", "", "path to YAML config (built-in defaults when empty)")
	fs.StringVar(&flagLogLevel, "log-level", "info", "log level: trace|debug|info|warn|error")
	fs.BoolVar(&flagLogJSON, "log-json", false, "force JSON log output even on a terminal")
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading engine and snapshot API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("leverrun %s (%s)\n", version, commit)
		},
	}
}

func run() error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info().
		Str("mode", cfg.Feeds.Mode).
		Int("pairs", len(cfg.Pairs)).
		Float64("capital", cfg.Capital.StartingBalance).
		Dur("interval", cfg.CycleInterval()).
		Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	prices, funding, seed := buildFeeds(ctx, cfg, log)
	eng := engine.New(cfg, prices, funding, met, seed, log)

	server := api.NewServer(cfg.API, eng, met, log)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	eng.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
	log.Info().Msg("stopped")
	return nil
}

// buildFeeds wires the market-data sources for the configured mode. The
// returned seed is non-zero only in simulation mode, keeping sim runs
// reproducible end to end.
func buildFeeds(ctx context.Context, cfg *config.Config, log zerolog.Logger) (feed.PriceFeed, feed.FundingSource, int64) {
	if cfg.Feeds.Mode == "sim" {
		sim := feed.NewSimFeed(cfg.Feeds.SimSeed, pairSymbols(cfg))
		return sim, sim, cfg.Feeds.SimSeed
	}

	var cache *feed.StreamCache
	if cfg.Feeds.Stream {
		cache = feed.NewStreamCache()
		streamer := feed.NewStreamer("", pairSymbols(cfg), cache, log)
		go streamer.Run(ctx)
	}

	live := feed.NewHTTPFeed(feed.HTTPFeedConfig{
		Timeout:        cfg.FeedTimeout(),
		RequestsPerSec: cfg.Feeds.RequestsPerSec,
		Burst:          cfg.Feeds.Burst,
	}, cache, log)
	return live, live, 0
}

func pairSymbols(cfg *config.Config) []string {
	out := make([]string, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		out = append(out, p.Symbol)
	}
	return out
}

func loadConfig() (*config.Config, error) {
	if flagConfig == "" {
		return config.Default(), nil
	}
	return config.Load(flagConfig)
}

func newLogger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(flagLogLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", flagLogLevel, err)
	}

	var out = os.Stderr
	logger := zerolog.New(out)
	if !flagLogJSON && term.IsTerminal(int(out.Fd())) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}
