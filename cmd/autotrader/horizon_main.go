package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/autotrader/backtest/internal/horizon"
)

func horizonCmd() *cobra.Command {
	var (
		input    string
		symbol   string
		method   string
		horizons string
		workers  int
		output   string
	)

	cmd := &cobra.Command{
		Use:   "horizon",
		Short: "Search prediction horizons for tradable edge",
		Long: `Horizon labels the bar table at each candidate horizon and scores the
resulting label stream by information ratio, annualized Sharpe, hit rate
and daily capacity. Horizons with too little data are skipped; the best
surviving horizon is selected by information ratio, capacity breaking
ties.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			model, err := costModel(cfg)
			if err != nil {
				return err
			}

			hcfg := cfg.Horizon
			if horizons != "" {
				hcfg.Horizons = hcfg.Horizons[:0]
				for _, raw := range strings.Split(horizons, ",") {
					d, err := time.ParseDuration(strings.TrimSpace(raw))
					if err != nil {
						return fmt.Errorf("parsing --horizons entry %q: %w", raw, err)
					}
					hcfg.Horizons = append(hcfg.Horizons, d)
				}
			}
			if method != "" {
				hcfg.Method = horizon.Method(method)
			}
			if workers > 0 {
				hcfg.Workers = workers
			}

			opt, err := horizon.New(hcfg, model)
			if err != nil {
				return err
			}
			series, err := openSeries(cmd.Context(), cfg, input, symbol)
			if err != nil {
				return err
			}

			report, err := opt.Optimize(cmd.Context(), series)
			if err != nil {
				return err
			}

			printHorizonReport(report)

			if output != "" {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("writing report %s: %w", output, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Path to CSV bar file (required)")
	cmd.Flags().StringVar(&symbol, "symbol", "BTCUSD", "Symbol attached to the loaded bars")
	cmd.Flags().StringVar(&method, "method", "", "Scoring method override (classification|regression)")
	cmd.Flags().StringVar(&horizons, "horizons", "", "Comma-separated horizon override (e.g. 5m,30m,4h)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel scoring workers (default NumCPU)")
	cmd.Flags().StringVar(&output, "output", "", "Optional path for the JSON report")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func printHorizonReport(report *horizon.Report) {
	fmt.Printf("%-10s %10s %10s %10s %14s %8s\n",
		"HORIZON", "IR", "SHARPE", "HIT RATE", "CAPACITY", "SAMPLES")
	for _, r := range report.Results {
		fmt.Printf("%-10s %10.3f %10.3f %9.1f%% %14.0f %8d\n",
			r.Horizon, r.InformationRatio, r.SharpeRatio, r.HitRate*100, r.Capacity, r.SampleCount)
	}
	for _, d := range report.Skipped {
		fmt.Printf("%-10s skipped: insufficient data\n", d)
	}
	fmt.Printf("\nbest horizon: %s (IR %.3f, capacity %.0f)\n",
		report.Best.Horizon, report.Best.InformationRatio, report.Best.Capacity)
}
