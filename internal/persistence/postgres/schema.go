package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is the DDL the run store expects. Idempotent so startup can always
// apply it.
const schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id          TEXT PRIMARY KEY,
	symbol          TEXT NOT NULL,
	total_return    DOUBLE PRECISION NOT NULL,
	sharpe          DOUBLE PRECISION NOT NULL,
	sortino         DOUBLE PRECISION NOT NULL,
	max_drawdown    DOUBLE PRECISION NOT NULL,
	num_trades      INTEGER NOT NULL,
	rejected_orders INTEGER NOT NULL,
	initial_cash    DOUBLE PRECISION NOT NULL,
	final_equity    DOUBLE PRECISION NOT NULL,
	total_costs     DOUBLE PRECISION NOT NULL,
	start_time      TIMESTAMPTZ NOT NULL,
	end_time        TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_backtest_runs_symbol_time
	ON backtest_runs (symbol, start_time);

CREATE TABLE IF NOT EXISTS backtest_fills (
	execution_id TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES backtest_runs (run_id) ON DELETE CASCADE,
	order_id     TEXT NOT NULL,
	ts           TIMESTAMPTZ NOT NULL,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	qty          DOUBLE PRECISION NOT NULL,
	price        DOUBLE PRECISION NOT NULL,
	commission   DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backtest_fills_run
	ON backtest_fills (run_id, ts);
`

// EnsureSchema creates the run store tables when missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying run store schema: %w", err)
	}
	return nil
}
