package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autotrader/backtest/internal/engine"
	"github.com/autotrader/backtest/internal/sim"
)

func sampleResults() *engine.Results {
	ts := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	return &engine.Results{
		RunID:       "run-abc",
		Symbol:      "BTC-USD",
		TotalReturn: 0.12,
		Sharpe:      1.4,
		NumTrades:   2,
		InitialCash: 100000,
		FinalEquity: 112000,
		TradeLog: []sim.Fill{
			{ExecutionID: "e1", OrderID: "ord-000001", Symbol: "BTC-USD", Side: sim.SideBuy,
				Quantity: 1, Price: 50000, Commission: 20, Timestamp: ts},
			{ExecutionID: "e2", OrderID: "ord-000002", Symbol: "BTC-USD", Side: sim.SideSell,
				Quantity: 1, Price: 56000, Commission: 22, Timestamp: ts.Add(time.Hour)},
		},
		CostBreakdown: engine.CostBreakdown{Commission: 42, Slippage: 5},
		StartTime:     ts,
		EndTime:       ts.Add(time.Hour),
	}
}

func TestNewRunRecord(t *testing.T) {
	results := sampleResults()
	run := NewRunRecord(results)

	assert.Equal(t, "run-abc", run.RunID)
	assert.Equal(t, "BTC-USD", run.Symbol)
	assert.InDelta(t, 0.12, run.TotalReturn, 1e-12)
	assert.Equal(t, 2, run.NumTrades)
	assert.InDelta(t, 47, run.TotalCosts, 1e-12)
	assert.Equal(t, results.StartTime, run.StartTime)
}

func TestNewFillRecords(t *testing.T) {
	results := sampleResults()
	fills := NewFillRecords(results.RunID, results.TradeLog)

	require.Len(t, fills, 2)
	assert.Equal(t, "e1", fills[0].ExecutionID)
	assert.Equal(t, "run-abc", fills[0].RunID)
	assert.Equal(t, "BUY", fills[0].Side)
	assert.Equal(t, "SELL", fills[1].Side)
	assert.InDelta(t, 56000, fills[1].Price, 1e-12)
}

// flakyStore fails every call until healed.
type flakyStore struct {
	healthy bool
	calls   int
}

func (s *flakyStore) SaveRun(ctx context.Context, run RunRecord, fills []FillRecord) error {
	s.calls++
	if !s.healthy {
		return errors.New("db down")
	}
	return nil
}

func (s *flakyStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	s.calls++
	if !s.healthy {
		return nil, errors.New("db down")
	}
	return &RunRecord{RunID: runID}, nil
}

func (s *flakyStore) ListRuns(ctx context.Context, symbol string, tr TimeRange, limit int) ([]RunRecord, error) {
	return nil, nil
}

func (s *flakyStore) ListFills(ctx context.Context, runID string) ([]FillRecord, error) {
	return nil, nil
}

func (s *flakyStore) Ping(ctx context.Context) error {
	if !s.healthy {
		return errors.New("db down")
	}
	return nil
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyStore{}
	store := NewBreakerStore(inner)
	ctx := context.Background()

	run := RunRecord{RunID: "r1"}
	for i := 0; i < 5; i++ {
		require.Error(t, store.SaveRun(ctx, run, nil))
	}
	assert.Equal(t, 5, inner.calls)

	// Breaker is open now: calls fail fast without reaching the store.
	err := store.SaveRun(ctx, run, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, inner.calls)
}

func TestBreakerPassesThroughWhenHealthy(t *testing.T) {
	inner := &flakyStore{healthy: true}
	store := NewBreakerStore(inner)
	ctx := context.Background()

	require.NoError(t, store.SaveRun(ctx, RunRecord{RunID: "r1"}, nil))

	got, err := store.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "r1", got.RunID)
}
