package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/autotrader/backtest/internal/engine"
	"github.com/autotrader/backtest/internal/marketdata"
	"github.com/autotrader/backtest/internal/strategy"
	"github.com/autotrader/backtest/internal/walkforward"
)

func walkforwardCmd() *cobra.Command {
	var (
		input        string
		symbol       string
		strategyName string
		lookback     int
		output       string
	)

	cmd := &cobra.Command{
		Use:   "walkforward",
		Short: "Evaluate a strategy over rolling out-of-sample windows",
		Long: `Walkforward splits the bar table into train/test windows separated by the
configured embargo, rebuilds the strategy from each train slice, and
backtests it on the matching test slice only. The summary aggregates
per-window results into mean/std Sharpe, win rate and a stability score.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fees, slippage, err := buildExecution(cfg)
			if err != nil {
				return err
			}

			eval, err := walkforward.New(cfg.WalkForward, cfg.Engine, fees, slippage)
			if err != nil {
				return err
			}
			metrics, stopTelemetry := initTelemetry(cfg)
			defer stopTelemetry()
			eval.SetMetrics(metrics)
			series, err := openSeries(cmd.Context(), cfg, input, symbol)
			if err != nil {
				return err
			}

			factory, err := strategyFactory(strategyName, lookback)
			if err != nil {
				return err
			}

			summary, err := eval.Run(cmd.Context(), series, factory)
			if err != nil {
				return err
			}

			printWalkForwardSummary(summary)

			if output != "" {
				data, err := json.MarshalIndent(summary, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("writing summary %s: %w", output, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Path to CSV bar file (required)")
	cmd.Flags().StringVar(&symbol, "symbol", "BTCUSD", "Symbol attached to the loaded bars")
	cmd.Flags().StringVar(&strategyName, "strategy", "momentum", "Strategy (buyhold|momentum)")
	cmd.Flags().IntVar(&lookback, "lookback", 20, "Momentum lookback in bars")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().StringVar(&output, "output", "", "Optional path for the JSON summary")

	return cmd
}

// strategyFactory returns a walk-forward factory for the named strategy.
// Momentum calibrates its entry threshold to one standard deviation of the
// train slice's bar-to-bar returns, so each window trades at a threshold
// fitted on its own training data only.
func strategyFactory(name string, lookback int) (walkforward.StrategyFactory, error) {
	switch name {
	case "buyhold":
		return func(train *marketdata.Series) (engine.Strategy, error) {
			return &strategy.BuyAndHold{}, nil
		}, nil
	case "momentum":
		return func(train *marketdata.Series) (engine.Strategy, error) {
			threshold := barReturnStdBps(train)
			if threshold <= 0 {
				threshold = 10
			}
			return &strategy.MomentumThreshold{Lookback: lookback, ThresholdBps: threshold}, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (want buyhold or momentum)", name)
	}
}

// barReturnStdBps estimates the standard deviation of close-to-close bar
// returns in basis points.
func barReturnStdBps(s *marketdata.Series) float64 {
	if s.Len() < 3 {
		return 0
	}
	returns := make([]float64, 0, s.Len()-1)
	for i := 1; i < s.Len(); i++ {
		prev := s.Bars[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, (s.Bars[i].Close-prev)/prev*10000)
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(returns)-1))
}

func printWalkForwardSummary(s *walkforward.Summary) {
	fmt.Printf("%-8s %-25s %-25s %12s %10s %8s\n",
		"WINDOW", "TRAIN", "TEST", "RETURN", "SHARPE", "TRADES")
	for _, wr := range s.Windows {
		w := wr.Window
		fmt.Printf("%-8d %s..%s %s..%s %11.2f%% %10.3f %8d\n",
			w.Index,
			w.TrainStart.Format("2006-01-02"), w.TrainEnd.Format("2006-01-02"),
			w.TestStart.Format("2006-01-02"), w.TestEnd.Format("2006-01-02"),
			wr.Results.TotalReturn*100, wr.Results.Sharpe, wr.Results.NumTrades)
	}
	fmt.Printf("\nwindows:        %d\n", len(s.Windows))
	fmt.Printf("mean return:    %.2f%% (std %.2f%%)\n", s.MeanReturn*100, s.StdReturn*100)
	fmt.Printf("mean sharpe:    %.3f (std %.3f)\n", s.MeanSharpe, s.StdSharpe)
	fmt.Printf("mean max dd:    %.2f%%\n", s.MeanMaxDD*100)
	fmt.Printf("win rate:       %.1f%%\n", s.WinRate*100)
	fmt.Printf("stability:      %.3f\n", s.Stability)
	fmt.Printf("total trades:   %d\n", s.NumTrades)
}
