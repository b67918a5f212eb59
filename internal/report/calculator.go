// Package report turns completed backtest results into a full performance
// report: return, risk-adjusted, drawdown, trade and distributional metrics,
// a tear-sheet text rendering, and persisted JSON/JSONL artifacts.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/autotrader/backtest/internal/engine"
	"github.com/autotrader/backtest/internal/sim"
)

// Metrics is the structured performance report. All ratios are annualized on
// the run's periods-per-year basis; drawdowns are negative numbers.
type Metrics struct {
	RunID  string `json:"run_id"`
	Symbol string `json:"symbol"`

	// Returns
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	InitialEquity    float64 `json:"initial_equity"`
	FinalEquity      float64 `json:"final_equity"`

	// Risk-adjusted
	Volatility  float64 `json:"volatility"`
	DownsideVol float64 `json:"downside_vol"`
	Sharpe      float64 `json:"sharpe"`
	Sortino     float64 `json:"sortino"`
	Calmar      float64 `json:"calmar"`

	// Drawdown
	MaxDrawdown         float64       `json:"max_drawdown"`
	MaxDrawdownDuration time.Duration `json:"max_drawdown_duration"`

	// Trading
	NumTrades      int     `json:"num_trades"`
	RoundTrips     int     `json:"round_trips"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRate        float64 `json:"win_rate"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"` // Positive magnitude
	ProfitFactor   float64 `json:"profit_factor"`
	Expectancy     float64 `json:"expectancy"`
	RejectedOrders int     `json:"rejected_orders"`

	// Distributional (period returns)
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"` // Excess kurtosis
	VaR95    float64 `json:"var_95"`
	CVaR95   float64 `json:"cvar_95"`

	// Costs
	Costs engine.CostBreakdown `json:"costs"`

	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	PeriodsPerYear float64   `json:"periods_per_year"`
}

// Config holds the reporter's few knobs.
type Config struct {
	RiskFreeRate  float64 `yaml:"risk_free_rate"` // Annual rate netted out of Sharpe/Sortino excess returns (default 0)
	VaRConfidence float64 `yaml:"var_confidence"` // Tail confidence level (default 0.95)
}

// DefaultConfig assumes a zero risk-free rate and 95% tails.
func DefaultConfig() Config {
	return Config{VaRConfidence: 0.95}
}

// Calculator computes Metrics from engine results. It is a pure function of
// its input; the same results always produce the same report.
type Calculator struct {
	cfg Config
}

// NewCalculator builds a calculator, applying defaults for zero fields.
func NewCalculator(cfg Config) *Calculator {
	if cfg.VaRConfidence <= 0 || cfg.VaRConfidence >= 1 {
		cfg.VaRConfidence = 0.95
	}
	return &Calculator{cfg: cfg}
}

// Calculate produces the full metric set for one completed run.
func (c *Calculator) Calculate(results *engine.Results) (*Metrics, error) {
	if results == nil {
		return nil, fmt.Errorf("nil backtest results")
	}
	if len(results.EquityCurve) == 0 {
		return nil, fmt.Errorf("empty equity curve for run %s", results.RunID)
	}

	m := &Metrics{
		RunID:          results.RunID,
		Symbol:         results.Symbol,
		TotalReturn:    results.TotalReturn,
		InitialEquity:  results.InitialCash,
		FinalEquity:    results.FinalEquity,
		NumTrades:      results.NumTrades,
		RejectedOrders: results.RejectedOrders,
		Costs:          results.CostBreakdown,
		StartTime:      results.StartTime,
		EndTime:        results.EndTime,
		PeriodsPerYear: results.PeriodsPerYear,
	}

	returns := periodReturns(results.EquityCurve)
	ppy := results.PeriodsPerYear
	if ppy <= 0 {
		ppy = 252
	}

	if n := len(returns); n > 0 {
		years := float64(n) / ppy
		if years > 0 {
			m.AnnualizedReturn = math.Pow(1+m.TotalReturn, 1/years) - 1
		}
	}

	mean, std := meanStd(returns)
	downDev := downsideDeviation(returns)
	m.Volatility = std * math.Sqrt(ppy)
	m.DownsideVol = downDev * math.Sqrt(ppy)
	if std > 0 {
		m.Sharpe = (mean - c.cfg.RiskFreeRate/ppy) / std * math.Sqrt(ppy)
	}
	// Sortino is Sharpe with the downside deviation in the denominator, on
	// the same per-period basis.
	if downDev > 0 {
		m.Sortino = (mean - c.cfg.RiskFreeRate/ppy) / downDev * math.Sqrt(ppy)
	}

	m.MaxDrawdown, m.MaxDrawdownDuration = maxDrawdown(results.EquityCurve)
	if m.MaxDrawdown < 0 {
		m.Calmar = m.AnnualizedReturn / math.Abs(m.MaxDrawdown)
	}

	c.tradeStats(results.TradeLog, m)
	c.distribution(returns, m)

	return m, nil
}

// tradeStats pairs fills into FIFO round trips and derives the win/loss
// statistics from realized pnl per round trip, commissions included.
func (c *Calculator) tradeStats(fills []sim.Fill, m *Metrics) {
	trips := PairRoundTrips(fills)
	m.RoundTrips = len(trips)
	if len(trips) == 0 {
		return
	}

	var sumWin, sumLoss float64
	for _, rt := range trips {
		if rt.PnL > 0 {
			m.WinningTrades++
			sumWin += rt.PnL
		} else {
			m.LosingTrades++
			sumLoss += -rt.PnL
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(len(trips))
	if m.WinningTrades > 0 {
		m.AvgWin = sumWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = sumLoss / float64(m.LosingTrades)
	}
	if sumLoss > 0 {
		m.ProfitFactor = sumWin / sumLoss
	}
	m.Expectancy = m.WinRate*m.AvgWin - (1-m.WinRate)*m.AvgLoss
}

// distribution fills skewness, excess kurtosis and the left-tail metrics.
func (c *Calculator) distribution(returns []float64, m *Metrics) {
	n := len(returns)
	if n < 2 {
		return
	}
	mean, std := meanStd(returns)
	if std > 0 {
		var s3, s4 float64
		for _, r := range returns {
			z := (r - mean) / std
			s3 += z * z * z
			s4 += z * z * z * z
		}
		m.Skewness = s3 / float64(n)
		m.Kurtosis = s4/float64(n) - 3
	}

	sorted := make([]float64, n)
	copy(sorted, returns)
	sort.Float64s(sorted)

	// VaR at the (1-confidence) quantile: the worst ceil(n*(1-conf)) returns
	// form the tail and VaR is the least bad of them.
	idx := int(math.Ceil(float64(n)*(1-c.cfg.VaRConfidence))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	m.VaR95 = sorted[idx]

	var tailSum float64
	for i := 0; i <= idx; i++ {
		tailSum += sorted[i]
	}
	m.CVaR95 = tailSum / float64(idx+1)
}

// RoundTrip is one FIFO-matched entry/exit pair with its realized pnl net of
// the commissions attributed to the matched quantity.
type RoundTrip struct {
	Symbol     string    `json:"symbol"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	Long       bool      `json:"long"`
	PnL        float64   `json:"pnl"`
}

type openLot struct {
	qty      float64 // Remaining unmatched quantity, always positive
	price    float64
	ts       time.Time
	commPerQ float64 // Commission per unit
	long     bool
}

// PairRoundTrips matches fills into round trips per symbol using FIFO lot
// accounting. A fill that opposes the standing position closes the oldest
// open lots first; any residual opens a new lot in the other direction.
// Still-open lots at the end of the log are not counted as round trips.
func PairRoundTrips(fills []sim.Fill) []RoundTrip {
	books := make(map[string][]openLot)
	var trips []RoundTrip

	for _, f := range fills {
		lots := books[f.Symbol]
		long := f.Side == sim.SideBuy
		qty := f.Quantity
		commPerQ := 0.0
		if f.Quantity > 0 {
			commPerQ = f.Commission / f.Quantity
		}

		// Close opposing lots FIFO
		for qty > 1e-12 && len(lots) > 0 && lots[0].long != long {
			lot := &lots[0]
			matched := math.Min(qty, lot.qty)

			direction := 1.0
			if !lot.long {
				direction = -1
			}
			pnl := (f.Price-lot.price)*matched*direction - matched*(commPerQ+lot.commPerQ)

			trips = append(trips, RoundTrip{
				Symbol:     f.Symbol,
				Quantity:   matched,
				EntryPrice: lot.price,
				ExitPrice:  f.Price,
				EntryTime:  lot.ts,
				ExitTime:   f.Timestamp,
				Long:       lot.long,
				PnL:        pnl,
			})

			lot.qty -= matched
			qty -= matched
			if lot.qty <= 1e-12 {
				lots = lots[1:]
			}
		}

		if qty > 1e-12 {
			lots = append(lots, openLot{qty: qty, price: f.Price, ts: f.Timestamp, commPerQ: commPerQ, long: long})
		}
		books[f.Symbol] = lots
	}
	return trips
}

func periodReturns(curve []engine.EquityPoint) []float64 {
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

func downsideDeviation(returns []float64) float64 {
	var downVar float64
	var count int
	for _, r := range returns {
		if r < 0 {
			downVar += r * r
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(downVar / float64(count))
}

// maxDrawdown returns the deepest peak-to-trough loss (negative) and how long
// the curve stayed below the peak that preceded it.
func maxDrawdown(curve []engine.EquityPoint) (float64, time.Duration) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0].Value
	peakTime := curve[0].Timestamp
	maxDD := 0.0
	var maxDDDuration time.Duration

	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
			peakTime = p.Timestamp
		}
		if peak > 0 {
			dd := (p.Value - peak) / peak
			if dd < maxDD {
				maxDD = dd
				maxDDDuration = p.Timestamp.Sub(peakTime)
			}
		}
	}
	return maxDD, maxDDDuration
}
