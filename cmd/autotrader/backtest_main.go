package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autotrader/backtest/internal/config"
	"github.com/autotrader/backtest/internal/cost"
	"github.com/autotrader/backtest/internal/engine"
	"github.com/autotrader/backtest/internal/persistence"
	"github.com/autotrader/backtest/internal/persistence/postgres"
	"github.com/autotrader/backtest/internal/report"
	"github.com/autotrader/backtest/internal/sim"
	"github.com/autotrader/backtest/internal/strategy"
)

func backtestCmd() *cobra.Command {
	var (
		input        string
		symbol       string
		strategyName string
		lookback     int
		thresholdBps float64
		outputDir    string
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run one strategy through the event-driven backtest engine",
		Long: `Backtest replays the bar table through the execution simulator with the
configured latency, fee, slippage and spread models, then writes the run
artifacts (metrics, equity curve, trade log, tear sheet) under the output
directory. When a Postgres DSN is configured the run summary and fills are
persisted as well; storage failures are logged, never fatal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			strat, err := buildStrategy(strategyName, lookback, thresholdBps)
			if err != nil {
				return err
			}
			fees, slippage, err := buildExecution(cfg)
			if err != nil {
				return err
			}

			eng, err := engine.New(cfg.Engine, sim.NewSimulator(cfg.Simulator.Latency), fees, slippage)
			if err != nil {
				return err
			}
			metrics, stopTelemetry := initTelemetry(cfg)
			defer stopTelemetry()
			eng.SetMetrics(metrics)

			series, err := openSeries(cmd.Context(), cfg, input, symbol)
			if err != nil {
				return err
			}

			results, err := eng.Run(cmd.Context(), series, strat)
			if err != nil {
				return err
			}

			runMetrics, err := report.NewCalculator(cfg.Report).Calculate(results)
			if err != nil {
				return err
			}

			dir := cfg.Storage.OutputDir
			if outputDir != "" {
				dir = outputDir
			}
			paths, err := report.NewWriter(dir).Write(results, runMetrics)
			if err != nil {
				return err
			}

			persistRun(cmd.Context(), cfg, results)

			fmt.Print(report.TearSheet(runMetrics))
			fmt.Printf("\nartifacts: %s\n", paths.Dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Path to CSV bar file (required)")
	cmd.Flags().StringVar(&symbol, "symbol", "BTCUSD", "Symbol attached to the loaded bars")
	cmd.Flags().StringVar(&strategyName, "strategy", "buyhold", "Strategy (buyhold|momentum)")
	cmd.Flags().IntVar(&lookback, "lookback", 20, "Momentum lookback in bars")
	cmd.Flags().Float64Var(&thresholdBps, "threshold-bps", 10, "Momentum entry threshold in basis points")
	cmd.Flags().StringVar(&outputDir, "output", "", "Artifact directory override")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// buildStrategy maps a CLI strategy name to an implementation.
func buildStrategy(name string, lookback int, thresholdBps float64) (engine.Strategy, error) {
	switch name {
	case "buyhold":
		return &strategy.BuyAndHold{}, nil
	case "momentum":
		return &strategy.MomentumThreshold{Lookback: lookback, ThresholdBps: thresholdBps}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (want buyhold or momentum)", name)
	}
}

// buildExecution assembles the fee and slippage models from config.
func buildExecution(cfg config.PipelineConfig) (*cost.FeeModel, cost.SlippageModel, error) {
	schedule := cost.DefaultFeeSchedule()
	if cfg.Cost.FeeSchedule != "" {
		loaded, err := cost.LoadFeeSchedule(cfg.Cost.FeeSchedule)
		if err != nil {
			return nil, nil, err
		}
		schedule = loaded
	}
	slippage, err := cost.NewSlippageModel(cfg.Cost.Slippage)
	if err != nil {
		return nil, nil, err
	}
	return cost.NewFeeModel(schedule), slippage, nil
}

// persistRun saves a completed run to Postgres when a DSN is configured.
// Storage is a sink: every failure path logs a warning and returns.
func persistRun(ctx context.Context, cfg config.PipelineConfig, results *engine.Results) {
	if cfg.Storage.PostgresDSN == "" {
		return
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Storage.PostgresDSN)
	if err != nil {
		log.Warn().Err(err).Msg("postgres unavailable, run not persisted")
		return
	}
	defer db.Close()

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.Warn().Err(err).Msg("schema check failed, run not persisted")
		return
	}

	store := persistence.NewBreakerStore(postgres.NewRunStore(db, 0))
	run := persistence.NewRunRecord(results)
	fills := persistence.NewFillRecords(results.RunID, results.TradeLog)
	if err := store.SaveRun(ctx, run, fills); err != nil {
		log.Warn().Err(err).Str("run_id", results.RunID).Msg("run persistence failed")
		return
	}
	log.Info().Str("run_id", results.RunID).Int("fills", len(fills)).Msg("run persisted")
}
