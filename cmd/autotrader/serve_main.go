package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autotrader/backtest/internal/persistence"
	"github.com/autotrader/backtest/internal/persistence/postgres"
	"github.com/autotrader/backtest/internal/telemetry"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve Prometheus metrics and health checks",
		Long: `Serve exposes /metrics and /health over HTTP. When a Postgres DSN is
configured the store is registered as a health dependency, behind the same
circuit breaker the pipeline uses for writes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Telemetry.Addr
			}

			metrics := telemetry.NewMetricsRegistry()
			srv := telemetry.NewServer(addr, metrics)

			if cfg.Storage.PostgresDSN != "" {
				db, err := sqlx.ConnectContext(cmd.Context(), "postgres", cfg.Storage.PostgresDSN)
				if err != nil {
					log.Warn().Err(err).Msg("postgres unavailable, store health check disabled")
				} else {
					defer db.Close()
					srv.AddHealthCheck("run_store", persistence.NewBreakerStore(postgres.NewRunStore(db, 0)))
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			log.Info().Msg("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address override (default from config)")

	return cmd
}
