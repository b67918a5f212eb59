// Package postgres implements the run store on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/autotrader/backtest/internal/persistence"
)

// ErrDuplicateRun means a run with the same run_id was already saved. Run IDs
// are deterministic, so re-running the same backtest hits this; callers
// usually treat it as already-done rather than a failure.
var ErrDuplicateRun = errors.New("run already persisted")

const uniqueViolation = "23505"

type runsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunStore creates a PostgreSQL-backed run store.
func NewRunStore(db *sqlx.DB, timeout time.Duration) persistence.RunStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &runsRepo{db: db, timeout: timeout}
}

// SaveRun stores the run summary and all fills in one transaction.
func (r *runsRepo) SaveRun(ctx context.Context, run persistence.RunRecord, fills []persistence.FillRecord) error {
	// Scale the timeout for large fill batches
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(fills)/1000+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning run transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs (run_id, symbol, total_return, sharpe, sortino, max_drawdown,
			num_trades, rejected_orders, initial_cash, final_equity, total_costs, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		run.RunID, run.Symbol, run.TotalReturn, run.Sharpe, run.Sortino, run.MaxDrawdown,
		run.NumTrades, run.RejectedOrders, run.InitialCash, run.FinalEquity, run.TotalCosts,
		run.StartTime, run.EndTime)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateRun, run.RunID)
		}
		return fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}

	if len(fills) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO backtest_fills (execution_id, run_id, order_id, ts, symbol, side, qty, price, commission)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
		if err != nil {
			return fmt.Errorf("preparing fill insert: %w", err)
		}
		defer stmt.Close()

		for _, f := range fills {
			if _, err := stmt.ExecContext(ctx,
				f.ExecutionID, f.RunID, f.OrderID, f.Timestamp,
				f.Symbol, f.Side, f.Quantity, f.Price, f.Commission); err != nil {
				return fmt.Errorf("inserting fill %s: %w", f.ExecutionID, err)
			}
		}
	}

	return tx.Commit()
}

// GetRun retrieves one run summary; (nil, nil) when absent.
func (r *runsRepo) GetRun(ctx context.Context, runID string) (*persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var run persistence.RunRecord
	err := r.db.GetContext(ctx, &run, `
		SELECT run_id, symbol, total_return, sharpe, sortino, max_drawdown,
			num_trades, rejected_orders, initial_cash, final_equity, total_costs,
			start_time, end_time, created_at
		FROM backtest_runs
		WHERE run_id = $1`, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting run %s: %w", runID, err)
	}
	return &run, nil
}

// ListRuns retrieves run summaries, newest first. An empty symbol matches
// every symbol; a zero range bound leaves that side unbounded.
func (r *runsRepo) ListRuns(ctx context.Context, symbol string, tr persistence.TimeRange, limit int) ([]persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	to := tr.To
	if to.IsZero() {
		to = time.Unix(1<<40, 0)
	}

	var runs []persistence.RunRecord
	err := r.db.SelectContext(ctx, &runs, `
		SELECT run_id, symbol, total_return, sharpe, sortino, max_drawdown,
			num_trades, rejected_orders, initial_cash, final_equity, total_costs,
			start_time, end_time, created_at
		FROM backtest_runs
		WHERE ($1 = '' OR symbol = $1) AND start_time >= $2 AND end_time <= $3
		ORDER BY created_at DESC
		LIMIT $4`, symbol, tr.From, to, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// ListFills retrieves the fills of one run in execution order.
func (r *runsRepo) ListFills(ctx context.Context, runID string) ([]persistence.FillRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var fills []persistence.FillRecord
	err := r.db.SelectContext(ctx, &fills, `
		SELECT execution_id, run_id, order_id, ts, symbol, side, qty, price, commission
		FROM backtest_fills
		WHERE run_id = $1
		ORDER BY ts, order_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing fills for run %s: %w", runID, err)
	}
	return fills, nil
}

// Ping tests connectivity.
func (r *runsRepo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.db.PingContext(ctx)
}
