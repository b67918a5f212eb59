// Package engine runs event-driven backtests: one strategy over one bar
// table, with realistic fills from the order simulator and execution costs
// from the cost models. A run is strictly sequential and deterministic;
// given the same data, strategy and configuration, two runs produce
// byte-identical trade logs and equity curves.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/autotrader/backtest/internal/cost"
	"github.com/autotrader/backtest/internal/marketdata"
	"github.com/autotrader/backtest/internal/sim"
	"github.com/autotrader/backtest/internal/telemetry"
)

// Strategy is the single entry point the engine calls into. The history
// passed contains bars up to and including the current one; the engine never
// exposes future bars. The returned signal is a target position in
// [-1, +1] as a fraction of the configured position size.
type Strategy interface {
	Signal(history *marketdata.Series) float64
}

// State is the engine run lifecycle.
type State string

const (
	StateInitialized State = "INITIALIZED"
	StateRunning     State = "RUNNING"
	StateCompleted   State = "COMPLETED"
	StateFailed      State = "FAILED"
)

// Config parameterizes a backtest run.
type Config struct {
	InitialCash      float64         `yaml:"initial_cash"`       // Starting cash (default 100000)
	PositionSize     float64         `yaml:"position_size"`      // Units held at full signal (default 100)
	Exchange         string          `yaml:"exchange"`           // Fee lookup venue (default binance)
	Tier             string          `yaml:"tier"`               // Fee lookup tier (default vip0)
	IsMaker          bool            `yaml:"is_maker"`           // Fee assumption for fills
	AssumedSpreadBps float64         `yaml:"assumed_spread_bps"` // Synthetic spread when bars lack quotes (default 2)
	Volatility       float64         `yaml:"volatility"`         // Per-period volatility fed to impact models (default 0.02)
	PeriodsPerYear   float64         `yaml:"periods_per_year"`   // Annualization basis; 0 infers from bar spacing
	HoldFinancing    bool            `yaml:"hold_financing"`     // Charge overnight financing on held positions
	FundingRate      float64         `yaml:"funding_rate"`       // Overnight rate when HoldFinancing is on
	AssetClass       cost.AssetClass `yaml:"asset_class"`        // Financing convention (default crypto)
}

// DefaultConfig returns a runnable configuration.
func DefaultConfig() Config {
	return Config{
		InitialCash:      100000,
		PositionSize:     100,
		Exchange:         "binance",
		Tier:             "vip0",
		AssumedSpreadBps: 2,
		Volatility:       0.02,
		AssetClass:       cost.AssetCrypto,
	}
}

// Engine executes backtest runs. One engine may be reused sequentially; it
// must not be shared across goroutines mid-run.
type Engine struct {
	cfg       Config
	simulator *sim.Simulator
	fees      *cost.FeeModel
	slippage  cost.SlippageModel
	overnight *cost.OvernightCostModel

	state     State
	portfolio *Portfolio
	runID     string
	orderSeq  int
	metrics   *telemetry.MetricsRegistry
}

// New creates an engine with the given execution models. A nil fee model
// falls back to the default schedule; nil slippage falls back to zero fixed
// slippage.
func New(cfg Config, simulator *sim.Simulator, fees *cost.FeeModel, slippage cost.SlippageModel) (*Engine, error) {
	if cfg.InitialCash <= 0 {
		return nil, &cost.ConfigError{Field: "engine.initial_cash", Reason: "must be > 0"}
	}
	if cfg.PositionSize <= 0 {
		return nil, &cost.ConfigError{Field: "engine.position_size", Reason: "must be > 0"}
	}
	if cfg.AssumedSpreadBps < 0 {
		return nil, &cost.ConfigError{Field: "engine.assumed_spread_bps", Reason: "must be >= 0"}
	}
	if simulator == nil {
		simulator = sim.NewSimulator(sim.DefaultLatencyModel())
	}
	if fees == nil {
		fees = cost.NewFeeModel(cost.DefaultFeeSchedule())
	}
	if slippage == nil {
		slippage = &cost.FixedSlippage{Bps: 0}
	}

	var overnight *cost.OvernightCostModel
	if cfg.HoldFinancing {
		var err error
		overnight, err = cost.NewOvernightCostModel(cost.OvernightConfig{
			AssetClass: cfg.AssetClass,
			Rate:       cfg.FundingRate,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Engine{
		cfg:       cfg,
		simulator: simulator,
		fees:      fees,
		slippage:  slippage,
		overnight: overnight,
		state:     StateInitialized,
	}, nil
}

// State returns the current run state.
func (e *Engine) State() State { return e.state }

// SetMetrics attaches a telemetry registry. A nil registry leaves the engine
// uninstrumented; counters never affect run semantics.
func (e *Engine) SetMetrics(m *telemetry.MetricsRegistry) { e.metrics = m }

// Run executes a full backtest over the series. Data-integrity violations
// are fatal: the run transitions to FAILED and no Results are returned.
// Invalid orders are recorded as rejections and the run continues.
func (e *Engine) Run(ctx context.Context, series *marketdata.Series, strategy Strategy) (*Results, error) {
	var timer *telemetry.RunTimer
	if e.metrics != nil {
		timer = e.metrics.StartRunTimer("backtest")
	}

	if err := series.Validate(); err != nil {
		e.state = StateFailed
		if timer != nil {
			timer.Failed("data_integrity")
		}
		return nil, err
	}
	if series.Len() == 0 {
		e.state = StateFailed
		if timer != nil {
			timer.Failed("empty_series")
		}
		return nil, fmt.Errorf("empty bar series for %s", series.Symbol)
	}

	e.state = StateRunning
	e.portfolio = NewPortfolio(e.cfg.InitialCash)
	e.orderSeq = 0

	// Run identity covers the data slice, the strategy and the engine
	// configuration. Identical setups reproduce the same ID; anything else
	// persists as a separate run, and fill execution IDs inherit the
	// uniqueness through run-scoped order IDs.
	e.runID = uuid.NewSHA1(uuid.NameSpaceOID,
		[]byte(fmt.Sprintf("%s/%d/%d/%T%+v/%+v",
			series.Symbol, series.Start().UnixNano(), series.Len(), strategy, strategy, e.cfg))).String()
	runID := e.runID

	log.Info().
		Str("run_id", runID).
		Str("symbol", series.Symbol).
		Int("bars", series.Len()).
		Time("start", series.Start()).
		Time("end", series.End()).
		Msg("backtest run starting")

	adv := series.AvgDailyVolume()
	rejected := 0
	var costs CostBreakdown
	lastFinancingMark := series.Start()

	for i, bar := range series.Bars {
		select {
		case <-ctx.Done():
			e.state = StateFailed
			if timer != nil {
				timer.Failed("cancelled")
			}
			return nil, fmt.Errorf("backtest cancelled at %s: %w", bar.Timestamp.Format(time.RFC3339), ctx.Err())
		default:
		}

		// The strategy sees history up to and including this bar, nothing
		// later.
		signal := strategy.Signal(series.Prefix(i + 1))
		if math.IsNaN(signal) || math.IsInf(signal, 0) {
			e.state = StateFailed
			if timer != nil {
				timer.Failed("data_integrity")
			}
			return nil, &marketdata.DataIntegrityError{
				Symbol: series.Symbol, Timestamp: bar.Timestamp,
				Reason: "strategy produced a non-finite signal",
			}
		}
		signal = clamp(signal, -1, 1)

		target := signal * e.cfg.PositionSize
		delta := target - e.portfolio.Position(series.Symbol)
		if math.Abs(delta) > 1e-9 {
			if err := e.executeOrder(series, bar, delta, adv, &costs, &rejected); err != nil {
				e.state = StateFailed
				if timer != nil {
					timer.Failed("execution")
				}
				return nil, err
			}
		}

		if e.overnight != nil {
			held := math.Abs(e.portfolio.Position(series.Symbol)) * bar.Close
			if held > 0 {
				fin := e.overnight.Cost(held, bar.Timestamp.Sub(lastFinancingMark))
				e.portfolio.Cash -= fin
				costs.Overnight += fin
			}
			lastFinancingMark = bar.Timestamp
		}

		e.portfolio.MarkToMarket(bar.Timestamp, map[string]float64{series.Symbol: bar.Close})
	}

	e.state = StateCompleted

	periodsPerYear := e.cfg.PeriodsPerYear
	if periodsPerYear <= 0 {
		periodsPerYear = inferPeriodsPerYear(series)
	}

	returns := periodReturns(e.portfolio.EquityCurve)
	final := e.portfolio.EquityCurve[len(e.portfolio.EquityCurve)-1].Value

	results := &Results{
		RunID:          runID,
		Symbol:         series.Symbol,
		TotalReturn:    final/e.cfg.InitialCash - 1,
		Sharpe:         sharpeRatio(returns, periodsPerYear),
		Sortino:        sortinoRatio(returns, periodsPerYear),
		MaxDrawdown:    maxDrawdown(e.portfolio.EquityCurve),
		NumTrades:      len(e.portfolio.TradeLog),
		InitialCash:    e.cfg.InitialCash,
		FinalEquity:    final,
		TradeLog:       e.portfolio.TradeLog,
		EquityCurve:    e.portfolio.EquityCurve,
		CostBreakdown:  costs,
		RejectedOrders: rejected,
		StartTime:      series.Start(),
		EndTime:        series.End(),
		PeriodsPerYear: periodsPerYear,
	}

	log.Info().
		Str("run_id", runID).
		Float64("total_return", results.TotalReturn).
		Float64("sharpe", results.Sharpe).
		Int("trades", results.NumTrades).
		Int("rejected_orders", rejected).
		Msg("backtest run completed")

	if timer != nil {
		timer.Completed()
	}
	return results, nil
}

// executeOrder builds and simulates one order against the current bar's
// quote and books the outcome into the portfolio.
func (e *Engine) executeOrder(series *marketdata.Series, bar marketdata.Bar, delta, adv float64, costs *CostBreakdown, rejected *int) error {
	e.orderSeq++
	side := sim.SideBuy
	qty := delta
	if delta < 0 {
		side = sim.SideSell
		qty = -delta
	}

	order := &sim.Order{
		ID:       fmt.Sprintf("%s/ord-%06d", e.runID, e.orderSeq),
		Symbol:   series.Symbol,
		Side:     side,
		Type:     sim.TypeMarket,
		Quantity: qty,
	}

	quote := e.quoteFor(bar)
	res, err := e.simulator.SimulateQuote(order, quote, bar.Timestamp)
	if err != nil {
		// Invalid orders are recoverable: record and continue
		var invalidErr *sim.InvalidOrderError
		if errors.As(err, &invalidErr) {
			*rejected++
			if e.metrics != nil {
				e.metrics.RejectedOrders.Inc()
			}
			log.Warn().Str("order_id", order.ID).Str("reason", invalidErr.Reason).
				Msg("order rejected by simulator")
			return nil
		}
		return err
	}
	if !res.Filled {
		return nil
	}

	fill := *res.Fill
	fill.Commission = e.fees.Commission(fill.Notional(), e.cfg.Exchange, e.cfg.Tier, e.cfg.IsMaker)
	order.Commission = fill.Commission

	slipBps := e.slippage.SlippageBps(fill.Quantity, adv, e.cfg.Volatility)
	slipCost := fill.Notional() * slipBps / 10000
	// Impact beyond the crossed spread comes straight out of cash
	e.portfolio.Cash -= slipCost

	costs.Commission += fill.Commission
	costs.Slippage += slipCost
	if bar.HasQuote {
		costs.Spread += cost.SpreadCost(bar.Bid, bar.Ask, fill.Quantity)
	} else {
		costs.Spread += fill.Notional() * e.cfg.AssumedSpreadBps / 2 / 10000
	}

	e.portfolio.Apply(fill)
	if e.metrics != nil {
		e.metrics.Fills.WithLabelValues(string(fill.Side)).Inc()
	}
	return nil
}

// quoteFor derives the executable quote for a bar. Bars without book data
// get a synthetic spread around the close so market orders still pay to
// cross.
func (e *Engine) quoteFor(bar marketdata.Bar) sim.Quote {
	if bar.HasQuote {
		return sim.Quote{
			Bid: bar.Bid, Ask: bar.Ask,
			BidSize: bar.BidVolume, AskSize: bar.AskVolume,
			Timestamp: bar.Timestamp,
		}
	}
	half := bar.Close * e.cfg.AssumedSpreadBps / 2 / 10000
	return sim.Quote{
		Bid:       bar.Close - half,
		Ask:       bar.Close + half,
		Timestamp: bar.Timestamp,
	}
}

func inferPeriodsPerYear(series *marketdata.Series) float64 {
	spacing := series.MedianSpacing()
	if spacing <= 0 {
		return 252
	}
	const secondsPerYear = 365.25 * 24 * 3600
	return secondsPerYear / spacing.Seconds()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
