// Package persistence stores completed backtest runs and their fills for
// later comparison across strategies and configurations. Storage is a sink:
// a failed write must never fail the run that produced the results.
package persistence

import (
	"context"
	"time"

	"github.com/autotrader/backtest/internal/engine"
	"github.com/autotrader/backtest/internal/sim"
)

// TimeRange bounds a query window, inclusive on both ends.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// RunRecord is the persisted summary of one completed backtest run.
type RunRecord struct {
	RunID          string    `json:"run_id" db:"run_id"`
	Symbol         string    `json:"symbol" db:"symbol"`
	TotalReturn    float64   `json:"total_return" db:"total_return"`
	Sharpe         float64   `json:"sharpe" db:"sharpe"`
	Sortino        float64   `json:"sortino" db:"sortino"`
	MaxDrawdown    float64   `json:"max_drawdown" db:"max_drawdown"`
	NumTrades      int       `json:"num_trades" db:"num_trades"`
	RejectedOrders int       `json:"rejected_orders" db:"rejected_orders"`
	InitialCash    float64   `json:"initial_cash" db:"initial_cash"`
	FinalEquity    float64   `json:"final_equity" db:"final_equity"`
	TotalCosts     float64   `json:"total_costs" db:"total_costs"`
	StartTime      time.Time `json:"start_time" db:"start_time"`
	EndTime        time.Time `json:"end_time" db:"end_time"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// FillRecord is one persisted fill, keyed by its deterministic execution ID.
type FillRecord struct {
	ExecutionID string    `json:"execution_id" db:"execution_id"`
	RunID       string    `json:"run_id" db:"run_id"`
	OrderID     string    `json:"order_id" db:"order_id"`
	Timestamp   time.Time `json:"ts" db:"ts"`
	Symbol      string    `json:"symbol" db:"symbol"`
	Side        string    `json:"side" db:"side"`
	Quantity    float64   `json:"qty" db:"qty"`
	Price       float64   `json:"price" db:"price"`
	Commission  float64   `json:"commission" db:"commission"`
}

// NewRunRecord converts engine results into the persisted form.
func NewRunRecord(results *engine.Results) RunRecord {
	return RunRecord{
		RunID:          results.RunID,
		Symbol:         results.Symbol,
		TotalReturn:    results.TotalReturn,
		Sharpe:         results.Sharpe,
		Sortino:        results.Sortino,
		MaxDrawdown:    results.MaxDrawdown,
		NumTrades:      results.NumTrades,
		RejectedOrders: results.RejectedOrders,
		InitialCash:    results.InitialCash,
		FinalEquity:    results.FinalEquity,
		TotalCosts:     results.CostBreakdown.Total(),
		StartTime:      results.StartTime,
		EndTime:        results.EndTime,
	}
}

// NewFillRecords converts the trade log of one run.
func NewFillRecords(runID string, fills []sim.Fill) []FillRecord {
	records := make([]FillRecord, len(fills))
	for i, f := range fills {
		records[i] = FillRecord{
			ExecutionID: f.ExecutionID,
			RunID:       runID,
			OrderID:     f.OrderID,
			Timestamp:   f.Timestamp,
			Symbol:      f.Symbol,
			Side:        string(f.Side),
			Quantity:    f.Quantity,
			Price:       f.Price,
			Commission:  f.Commission,
		}
	}
	return records
}

// RunStore persists runs with their fills and serves them back for reports.
type RunStore interface {
	// SaveRun stores the run summary and its fills atomically.
	SaveRun(ctx context.Context, run RunRecord, fills []FillRecord) error

	// GetRun retrieves one run by ID; (nil, nil) when not found.
	GetRun(ctx context.Context, runID string) (*RunRecord, error)

	// ListRuns retrieves run summaries newest first. An empty symbol matches
	// all symbols; zero range bounds are unbounded.
	ListRuns(ctx context.Context, symbol string, tr TimeRange, limit int) ([]RunRecord, error)

	// ListFills retrieves the fills of one run in execution order.
	ListFills(ctx context.Context, runID string) ([]FillRecord, error)

	// Ping tests basic connectivity to the backing store.
	Ping(ctx context.Context) error
}
