package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/autotrader/backtest/internal/persistence"
	"github.com/autotrader/backtest/internal/persistence/postgres"
	"github.com/autotrader/backtest/internal/report"
)

func reportCmd() *cobra.Command {
	var (
		runDir string
		list   bool
		symbol string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the tear sheet for a saved run, or list persisted runs",
		Long: `Report re-renders the tear sheet from a run's artifact directory
(--run-dir), or with --list queries the configured Postgres store for
recent runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				if cfg.Storage.PostgresDSN == "" {
					return fmt.Errorf("--list requires storage.postgres_dsn in the config")
				}
				db, err := sqlx.ConnectContext(cmd.Context(), "postgres", cfg.Storage.PostgresDSN)
				if err != nil {
					return fmt.Errorf("connecting to postgres: %w", err)
				}
				defer db.Close()

				store := postgres.NewRunStore(db, 0)
				runs, err := store.ListRuns(cmd.Context(), symbol, persistence.TimeRange{}, limit)
				if err != nil {
					return err
				}
				printRunList(runs)
				return nil
			}

			if runDir == "" {
				return fmt.Errorf("either --run-dir or --list is required")
			}
			data, err := os.ReadFile(filepath.Join(runDir, "metrics.json"))
			if err != nil {
				return fmt.Errorf("reading run metrics: %w", err)
			}
			var metrics report.Metrics
			if err := json.Unmarshal(data, &metrics); err != nil {
				return fmt.Errorf("parsing run metrics: %w", err)
			}
			fmt.Print(report.TearSheet(&metrics))
			return nil
		},
	}

	cmd.Flags().StringVar(&runDir, "run-dir", "", "Artifact directory of a completed run")
	cmd.Flags().BoolVar(&list, "list", false, "List persisted runs instead of rendering a tear sheet")
	cmd.Flags().StringVar(&symbol, "symbol", "", "Filter --list by symbol")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max rows for --list")

	return cmd
}

func printRunList(runs []persistence.RunRecord) {
	fmt.Printf("%-36s %-10s %10s %8s %8s %7s  %s\n",
		"RUN ID", "SYMBOL", "RETURN", "SHARPE", "MAX DD", "TRADES", "CREATED")
	for _, r := range runs {
		fmt.Printf("%-36s %-10s %9.2f%% %8.3f %7.2f%% %7d  %s\n",
			r.RunID, r.Symbol, r.TotalReturn*100, r.Sharpe, r.MaxDrawdown*100,
			r.NumTrades, r.CreatedAt.Format("2006-01-02 15:04"))
	}
}
