package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autotrader/backtest/internal/label"
)

func labelCmd() *cobra.Command {
	var (
		input   string
		symbol  string
		method  string
		horizon time.Duration
		output  string
	)

	cmd := &cobra.Command{
		Use:   "label",
		Short: "Generate cost-aware training labels from a bar file",
		Long: `Label reads a CSV bar table and emits one JSON object per labeled row.

Classification tags each bar {-1, 0, +1} by whether the forward move clears
the round-trip cost threshold; regression emits clipped, cost-adjusted
forward returns in basis points. Tail rows without a valid horizon lookup
are dropped, never zero-filled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			model, err := costModel(cfg)
			if err != nil {
				return err
			}

			series, err := openSeries(cmd.Context(), cfg, input, symbol)
			if err != nil {
				return err
			}

			metrics, stopTelemetry := initTelemetry(cfg)
			defer stopTelemetry()

			out := os.Stdout
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating output %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}
			enc := json.NewEncoder(out)

			switch method {
			case "classification":
				lcfg := cfg.Label.Classification
				if horizon > 0 {
					lcfg.Horizon = horizon
				}
				if lcfg.Horizon <= 0 {
					lcfg.Horizon = time.Hour
				}
				classifier, err := label.NewClassifier(lcfg, model)
				if err != nil {
					return err
				}
				classifier.SetMetrics(metrics)
				labels, err := classifier.Label(series)
				if err != nil {
					return err
				}
				for _, l := range labels {
					if err := enc.Encode(l); err != nil {
						return err
					}
				}
				log.Info().Int("rows", len(labels)).Str("method", method).Msg("labeling complete")

			case "regression":
				rcfg := cfg.Label.Regression
				if horizon > 0 {
					rcfg.Horizon = horizon
				}
				if rcfg.Horizon <= 0 {
					rcfg.Horizon = time.Hour
				}
				regressor, err := label.NewRegressor(rcfg, model)
				if err != nil {
					return err
				}
				regressor.SetMetrics(metrics)
				labels, err := regressor.Label(series)
				if err != nil {
					return err
				}
				for _, l := range labels {
					if err := enc.Encode(l); err != nil {
						return err
					}
				}
				log.Info().Int("rows", len(labels)).Str("method", method).Msg("labeling complete")

			default:
				return fmt.Errorf("unknown labeling method %q (want classification or regression)", method)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Path to CSV bar file (required)")
	cmd.Flags().StringVar(&symbol, "symbol", "BTCUSD", "Symbol attached to the loaded bars")
	cmd.Flags().StringVar(&method, "method", "classification", "Labeling method (classification|regression)")
	cmd.Flags().DurationVar(&horizon, "horizon", 0, "Forward-return horizon override (e.g. 1h)")
	cmd.Flags().StringVar(&output, "output", "-", "Output path for label JSONL (- for stdout)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
