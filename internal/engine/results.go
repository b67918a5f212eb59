package engine

import (
	"math"
	"time"

	"github.com/autotrader/backtest/internal/sim"
)

// CostBreakdown accumulates execution costs over a run, all in currency.
type CostBreakdown struct {
	Commission float64 `json:"commission"`
	Slippage   float64 `json:"slippage"`
	Spread     float64 `json:"spread"`
	Overnight  float64 `json:"overnight"`
}

// Total returns the summed cost.
func (c CostBreakdown) Total() float64 {
	return c.Commission + c.Slippage + c.Spread + c.Overnight
}

// Results is the immutable summary produced once at the end of a completed
// run. A failed run never produces Results.
type Results struct {
	RunID  string `json:"run_id"`
	Symbol string `json:"symbol"`

	TotalReturn float64 `json:"total_return"`
	Sharpe      float64 `json:"sharpe"`
	Sortino     float64 `json:"sortino"`
	MaxDrawdown float64 `json:"max_drawdown"`
	NumTrades   int     `json:"num_trades"`

	InitialCash   float64       `json:"initial_cash"`
	FinalEquity   float64       `json:"final_equity"`
	TradeLog      []sim.Fill    `json:"trade_log"`
	EquityCurve   []EquityPoint `json:"equity_curve"`
	CostBreakdown CostBreakdown `json:"cost_breakdown"`

	RejectedOrders int       `json:"rejected_orders"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	PeriodsPerYear float64   `json:"periods_per_year"`
}

// periodReturns converts an equity curve to simple per-period returns.
func periodReturns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, curve[i].Value/prev-1)
	}
	return returns
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values) - 1)
	return mean, math.Sqrt(variance)
}

// sharpeRatio annualizes mean/std of period returns.
func sharpeRatio(returns []float64, periodsPerYear float64) float64 {
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// sortinoRatio replaces the denominator with downside deviation.
func sortinoRatio(returns []float64, periodsPerYear float64) float64 {
	mean, _ := meanStd(returns)
	var downVar float64
	var downCount int
	for _, r := range returns {
		if r < 0 {
			downVar += r * r
			downCount++
		}
	}
	if downCount == 0 {
		return 0
	}
	downDev := math.Sqrt(downVar / float64(downCount))
	if downDev == 0 {
		return 0
	}
	return mean / downDev * math.Sqrt(periodsPerYear)
}

// maxDrawdown returns the deepest peak-to-trough loss as a negative number.
func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Value
	maxDD := 0.0
	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			dd := (p.Value - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
