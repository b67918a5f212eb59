package main

import (
	"context"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/autotrader/backtest/internal/config"
	"github.com/autotrader/backtest/internal/cost"
	"github.com/autotrader/backtest/internal/marketdata"
	"github.com/autotrader/backtest/internal/telemetry"
)

const (
	appName = "autotrader"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Cost-aware labeling and backtest pipeline",
		Version: version,
		Long: `AutoTrader turns raw bar data into cost-aware training labels, searches
prediction horizons for tradable edge, and backtests strategies against a
conservative execution simulator.

All subcommands read the same pipeline config (--config); flags override
individual fields for one invocation.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			if parsed, err := zerolog.ParseLevel(level); err == nil {
				zerolog.SetGlobalLevel(parsed)
			}
			// Decorated console logs on a terminal, raw JSON when piped or
			// when the user asked for plain/json progress.
			if !progressPlain(cmd) {
				log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to pipeline config YAML (defaults apply when empty)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().String("progress", "auto", "Progress output mode (auto|plain|json)")

	rootCmd.AddCommand(labelCmd())
	rootCmd.AddCommand(horizonCmd())
	rootCmd.AddCommand(backtestCmd())
	rootCmd.AddCommand(walkforwardCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// loadConfig reads the pipeline config named by the persistent flag.
func loadConfig(cmd *cobra.Command) (config.PipelineConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// openSeries loads a bar table, through the Redis cache when one is
// configured. Cache outages degrade to a plain file load.
func openSeries(ctx context.Context, cfg config.PipelineConfig, path, symbol string) (*marketdata.Series, error) {
	var cache *marketdata.Cache
	if cfg.Storage.RedisAddr != "" {
		ttl := 24 * time.Hour
		if cfg.Storage.CacheTTL != "" {
			if parsed, err := time.ParseDuration(cfg.Storage.CacheTTL); err == nil {
				ttl = parsed
			}
		}
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Storage.RedisAddr,
			DB:   cfg.Storage.RedisDB,
		})
		cache = marketdata.NewCache(rdb, ttl)
	}
	return marketdata.LoadCSVCached(ctx, cache, path, symbol)
}

// costModel builds the labeling-side cost model from config.
func costModel(cfg config.PipelineConfig) (cost.Model, error) {
	if err := cfg.Cost.Model.Validate(); err != nil {
		return cost.Model{}, err
	}
	return cfg.Cost.Model, nil
}

// initTelemetry builds the pipeline metric registry the run-path components
// record into. When the telemetry endpoint is enabled, the registry is also
// served on the configured address for the lifetime of the command; the
// returned stop function shuts the endpoint down.
func initTelemetry(cfg config.PipelineConfig) (*telemetry.MetricsRegistry, func()) {
	metrics := telemetry.NewMetricsRegistry()
	if !cfg.Telemetry.Enabled {
		return metrics, func() {}
	}

	srv := telemetry.NewServer(cfg.Telemetry.Addr, metrics)
	go func() {
		if err := srv.Start(); err != nil {
			log.Warn().Err(err).Msg("telemetry server failed")
		}
	}()
	return metrics, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}
}

// progressPlain reports whether output should avoid ANSI decoration: either
// the user asked for plain/json mode, or stderr is not a terminal.
func progressPlain(cmd *cobra.Command) bool {
	mode, _ := cmd.Flags().GetString("progress")
	switch mode {
	case "plain", "json":
		return true
	case "auto":
		return !term.IsTerminal(int(os.Stderr.Fd()))
	default:
		return false
	}
}
