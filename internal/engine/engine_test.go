package engine

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autotrader/backtest/internal/cost"
	"github.com/autotrader/backtest/internal/marketdata"
	"github.com/autotrader/backtest/internal/sim"
	"github.com/autotrader/backtest/internal/strategy"
	"github.com/autotrader/backtest/internal/telemetry"
)

func flatSeries(t *testing.T, n int, price float64, spreadBps float64) *marketdata.Series {
	t.Helper()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	half := price * spreadBps / 2 / 10000

	bars := make([]marketdata.Bar, n)
	for i := range bars {
		bars[i] = marketdata.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      price, High: price, Low: price, Close: price, Volume: 10000,
			Bid: price - half, Ask: price + half, BidVolume: 1e6, AskVolume: 1e6,
			HasQuote: true,
		}
	}
	s, err := marketdata.NewSeries("TEST-USD", bars)
	require.NoError(t, err)
	return s
}

func randomWalkSeries(t *testing.T, n int, seed int64) *marketdata.Series {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	bars := make([]marketdata.Bar, n)
	price := 100.0
	for i := range bars {
		price *= 1 + rng.NormFloat64()*0.002
		bars[i] = marketdata.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      price, High: price * 1.001, Low: price * 0.999, Close: price,
			Volume: 5000 + rng.Float64()*1000,
		}
	}
	s, err := marketdata.NewSeries("WALK-USD", bars)
	require.NoError(t, err)
	return s
}

// feeScheduleBps builds a single-venue schedule with the given taker rate.
func feeScheduleBps(makerBps, takerBps float64) *cost.FeeModel {
	return cost.NewFeeModel(cost.FeeSchedule{
		Exchanges: map[string]cost.ExchangeFees{
			"binance": {Tiers: map[string]cost.TierFees{
				"vip0": {MakerBps: makerBps, TakerBps: takerBps},
			}},
		},
	})
}

func TestEngineStateMachine(t *testing.T) {
	e, err := New(DefaultConfig(), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StateInitialized, e.State())

	series := flatSeries(t, 10, 100, 2)
	_, err = e.Run(context.Background(), series, &strategy.BuyAndHold{})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, e.State())
}

func TestEngineBuyAndHoldScenario(t *testing.T) {
	// 500 bars at $100 with a 2bps spread, taker fee 4bps, zero slippage.
	// Buy-and-hold must produce exactly one fill at bar 0's ask.
	series := flatSeries(t, 500, 100, 2)

	cfg := DefaultConfig()
	cfg.InitialCash = 100000
	cfg.PositionSize = 100

	e, err := New(cfg, nil, feeScheduleBps(2, 4), &cost.FixedSlippage{Bps: 0})
	require.NoError(t, err)

	results, err := e.Run(context.Background(), series, &strategy.BuyAndHold{})
	require.NoError(t, err)

	require.Equal(t, 1, results.NumTrades)
	fill := results.TradeLog[0]
	ask := 100 + 100*2.0/2/10000
	assert.InDelta(t, ask, fill.Price, 1e-9)
	assert.Equal(t, sim.SideBuy, fill.Side)
	assert.InDelta(t, 100, fill.Quantity, 1e-12)

	// Commission: 4bps of notional
	assert.InDelta(t, fill.Notional()*4/10000, fill.Commission, 1e-9)

	// Flat prices: final equity = initial - entry spread cost - commission
	expectedFinal := 100000.0 - (ask-100.0)*100 - fill.Commission
	assert.InDelta(t, expectedFinal, results.FinalEquity, 1e-6)
	assert.InDelta(t, expectedFinal/100000-1, results.TotalReturn, 1e-12)
}

func TestEngineDeterminism(t *testing.T) {
	series := randomWalkSeries(t, 400, 77)
	strat := &strategy.MomentumThreshold{Lookback: 10, ThresholdBps: 5}

	run := func() *Results {
		e, err := New(DefaultConfig(), nil, feeScheduleBps(2, 4), &cost.FixedSlippage{Bps: 1})
		require.NoError(t, err)
		res, err := e.Run(context.Background(), series, strat)
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()

	logA, err := json.Marshal(a.TradeLog)
	require.NoError(t, err)
	logB, err := json.Marshal(b.TradeLog)
	require.NoError(t, err)
	assert.Equal(t, logA, logB, "trade logs must be byte-identical")

	curveA, err := json.Marshal(a.EquityCurve)
	require.NoError(t, err)
	curveB, err := json.Marshal(b.EquityCurve)
	require.NoError(t, err)
	assert.Equal(t, curveA, curveB, "equity curves must be byte-identical")
}

func TestRunIdentityScopedToStrategyAndData(t *testing.T) {
	series := flatSeries(t, 50, 100, 2)
	other := &marketdata.Series{Symbol: "OTHER-USD", Bars: series.Bars}

	run := func(s *marketdata.Series, strat Strategy) *Results {
		e, err := New(DefaultConfig(), nil, feeScheduleBps(2, 4), &cost.FixedSlippage{Bps: 0})
		require.NoError(t, err)
		res, err := e.Run(context.Background(), s, strat)
		require.NoError(t, err)
		return res
	}

	a := run(series, &strategy.BuyAndHold{})
	b := run(other, &strategy.BuyAndHold{})
	require.NotEmpty(t, a.TradeLog)
	require.NotEmpty(t, b.TradeLog)

	// Runs over different data must not share run or fill identity, or a
	// second run can never persist alongside the first.
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.NotEqual(t, a.TradeLog[0].ExecutionID, b.TradeLog[0].ExecutionID)
	assert.NotEqual(t, a.TradeLog[0].OrderID, b.TradeLog[0].OrderID)

	// Same data under a different strategy is a different run.
	c := run(series, &strategy.MomentumThreshold{Lookback: 5, ThresholdBps: 2})
	assert.NotEqual(t, a.RunID, c.RunID)

	// So is the same strategy under a different configuration.
	cfg := DefaultConfig()
	cfg.PositionSize = 50
	e, err := New(cfg, nil, feeScheduleBps(2, 4), &cost.FixedSlippage{Bps: 0})
	require.NoError(t, err)
	d, err := e.Run(context.Background(), series, &strategy.BuyAndHold{})
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, d.RunID)

	// Repeating an identical setup reproduces the same identifiers.
	again := run(series, &strategy.BuyAndHold{})
	assert.Equal(t, a.RunID, again.RunID)
	assert.Equal(t, a.TradeLog[0].ExecutionID, again.TradeLog[0].ExecutionID)
}

func TestEngineRecordsRunMetrics(t *testing.T) {
	m := telemetry.NewMetricsRegistry()
	series := flatSeries(t, 20, 100, 2)

	e, err := New(DefaultConfig(), nil, nil, nil)
	require.NoError(t, err)
	e.SetMetrics(m)

	_, err = e.Run(context.Background(), series, &strategy.BuyAndHold{})
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsStarted), 1e-12)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsCompleted), 1e-12)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Fills.WithLabelValues(string(sim.SideBuy))), 1e-12)

	// A cancelled run lands in the failure counter, not the success one.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e2, err := New(DefaultConfig(), nil, nil, nil)
	require.NoError(t, err)
	e2.SetMetrics(m)
	_, err = e2.Run(ctx, series, &strategy.BuyAndHold{})
	require.Error(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsFailed.WithLabelValues("cancelled")), 1e-12)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsCompleted), 1e-12)
}

func TestEngineEquityCurveConsistency(t *testing.T) {
	series := randomWalkSeries(t, 300, 13)
	strat := &strategy.MomentumThreshold{Lookback: 5, ThresholdBps: 2}

	e, err := New(DefaultConfig(), nil, feeScheduleBps(2, 4), nil)
	require.NoError(t, err)
	results, err := e.Run(context.Background(), series, strat)
	require.NoError(t, err)

	require.Equal(t, series.Len(), len(results.EquityCurve))

	// Replay fills bar by bar and verify total_value = cash + qty*price at
	// every recorded point.
	cash := results.InitialCash
	qty := 0.0
	fillIdx := 0
	for i, bar := range series.Bars {
		for fillIdx < len(results.TradeLog) &&
			!results.TradeLog[fillIdx].Timestamp.After(bar.Timestamp.Add(time.Second)) {
			f := results.TradeLog[fillIdx]
			cash -= f.SignedQuantity() * f.Price
			cash -= f.Commission
			qty += f.SignedQuantity()
			fillIdx++
		}
		expected := cash + qty*bar.Close
		// Slippage cash deductions are not replayed here, so allow their
		// cumulative total as tolerance
		assert.InDelta(t, expected, results.EquityCurve[i].Value,
			results.CostBreakdown.Slippage+1e-6,
			"equity mismatch at bar %d", i)
	}

	// Strict identity at the end including all cost deductions
	final := cash + qty*series.Bars[series.Len()-1].Close - results.CostBreakdown.Slippage
	assert.InDelta(t, final, results.FinalEquity, 1e-6)
}

func TestEngineFailsOnBadData(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := []marketdata.Bar{
		{Timestamp: base, Open: 100, High: 100, Low: 100, Close: 100, Volume: 1},
		{Timestamp: base.Add(time.Minute), Open: 100, High: 100, Low: 100, Close: math.NaN(), Volume: 1},
	}
	series := &marketdata.Series{Symbol: "BAD-USD", Bars: bars}

	e, err := New(DefaultConfig(), nil, nil, nil)
	require.NoError(t, err)

	_, err = e.Run(context.Background(), series, &strategy.BuyAndHold{})
	var dataErr *marketdata.DataIntegrityError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, StateFailed, e.State())
}

func TestEngineConfigValidation(t *testing.T) {
	var cfgErr *cost.ConfigError

	cfg := DefaultConfig()
	cfg.InitialCash = 0
	_, err := New(cfg, nil, nil, nil)
	assert.ErrorAs(t, err, &cfgErr)

	cfg = DefaultConfig()
	cfg.PositionSize = -1
	_, err = New(cfg, nil, nil, nil)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestEngineCancellation(t *testing.T) {
	series := randomWalkSeries(t, 100, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, err := New(DefaultConfig(), nil, nil, nil)
	require.NoError(t, err)
	_, err = e.Run(ctx, series, &strategy.BuyAndHold{})
	require.Error(t, err)
	assert.Equal(t, StateFailed, e.State())
}

func TestEngineOvernightFinancing(t *testing.T) {
	series := flatSeries(t, 100, 100, 2)

	cfg := DefaultConfig()
	cfg.HoldFinancing = true
	cfg.FundingRate = 0.0001
	e, err := New(cfg, nil, feeScheduleBps(0, 0), &cost.FixedSlippage{Bps: 0})
	require.NoError(t, err)

	results, err := e.Run(context.Background(), series, &strategy.BuyAndHold{})
	require.NoError(t, err)
	assert.Greater(t, results.CostBreakdown.Overnight, 0.0)
}

func TestPortfolioApply(t *testing.T) {
	p := NewPortfolio(10000)
	p.Apply(sim.Fill{Symbol: "X", Side: sim.SideBuy, Quantity: 10, Price: 100, Commission: 1})
	assert.InDelta(t, 10000-1000-1, p.Cash, 1e-12)
	assert.InDelta(t, 10, p.Position("X"), 1e-12)

	p.Apply(sim.Fill{Symbol: "X", Side: sim.SideSell, Quantity: 4, Price: 110, Commission: 1})
	assert.InDelta(t, 8999+440-1, p.Cash, 1e-12)
	assert.InDelta(t, 6, p.Position("X"), 1e-12)

	assert.InDelta(t, p.Cash+6*120, p.TotalValue(map[string]float64{"X": 120}), 1e-12)
}

func TestMaxDrawdown(t *testing.T) {
	curve := []EquityPoint{
		{Value: 100}, {Value: 120}, {Value: 90}, {Value: 95}, {Value: 130},
	}
	assert.InDelta(t, -0.25, maxDrawdown(curve), 1e-12)
	assert.Zero(t, maxDrawdown(nil))
}
