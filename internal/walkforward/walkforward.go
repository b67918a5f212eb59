// Package walkforward evaluates a strategy over a sequence of train/test
// windows. Each window fits a fresh strategy on the train slice and backtests
// it on the test slice only; an embargo gap between train end and test start
// keeps forward-looking labels from leaking across the boundary.
package walkforward

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autotrader/backtest/internal/cost"
	"github.com/autotrader/backtest/internal/engine"
	"github.com/autotrader/backtest/internal/marketdata"
	"github.com/autotrader/backtest/internal/telemetry"
)

// ErrInsufficientData means the series cannot fit even one full window.
var ErrInsufficientData = errors.New("walkforward: series shorter than one train+embargo+test window")

// WindowType selects how the train slice grows across windows.
type WindowType string

const (
	// Rolling keeps a fixed-length train window that slides forward.
	Rolling WindowType = "rolling"
	// Expanding anchors train start at the beginning of the data and grows.
	Expanding WindowType = "expanding"
)

// StrategyFactory fits a strategy on the train slice. It must derive
// everything from that slice alone; the evaluator never passes test data.
type StrategyFactory func(train *marketdata.Series) (engine.Strategy, error)

// Config parameterizes window generation and evaluation.
type Config struct {
	TrainPeriod time.Duration `yaml:"train_period"` // Length of the train slice (> 0)
	TestPeriod  time.Duration `yaml:"test_period"`  // Length of the test slice (> 0)
	Step        time.Duration `yaml:"step"`         // Advance between windows (default TestPeriod)
	Embargo     time.Duration `yaml:"embargo"`      // Gap between train end and test start (>= 0)
	WindowType  WindowType    `yaml:"window_type"`  // rolling (default) or expanding
	Workers     int           `yaml:"workers"`      // Parallel window evaluations (default NumCPU)
}

// DefaultConfig returns a 30d/7d rolling configuration with the documented
// five-day embargo.
func DefaultConfig() Config {
	return Config{
		TrainPeriod: 30 * 24 * time.Hour,
		TestPeriod:  7 * 24 * time.Hour,
		Embargo:     5 * 24 * time.Hour,
		WindowType:  Rolling,
	}
}

func (c *Config) normalize() error {
	if c.TrainPeriod <= 0 {
		return &cost.ConfigError{Field: "walkforward.train_period", Reason: "must be > 0"}
	}
	if c.TestPeriod <= 0 {
		return &cost.ConfigError{Field: "walkforward.test_period", Reason: "must be > 0"}
	}
	if c.Embargo < 0 {
		return &cost.ConfigError{Field: "walkforward.embargo", Reason: "must be >= 0"}
	}
	if c.Step <= 0 {
		c.Step = c.TestPeriod
	}
	switch c.WindowType {
	case "":
		c.WindowType = Rolling
	case Rolling, Expanding:
	default:
		return &cost.ConfigError{Field: "walkforward.window_type",
			Reason: fmt.Sprintf("unknown window type %q", c.WindowType)}
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	return nil
}

// Window is one train/test split. Train covers [TrainStart, TrainEnd), test
// covers [TestStart, TestEnd), and TestStart - TrainEnd >= Embargo.
type Window struct {
	Index      int       `json:"index"`
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`
}

// Windows generates the full split sequence over [start, end]. Test slices
// never overlap when Step >= TestPeriod; train slices may.
func Windows(cfg Config, start, end time.Time) ([]Window, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	var windows []Window
	for i := 0; ; i++ {
		offset := time.Duration(i) * cfg.Step
		trainStart := start.Add(offset)
		if cfg.WindowType == Expanding {
			trainStart = start
		}
		trainEnd := start.Add(offset + cfg.TrainPeriod)
		testStart := trainEnd.Add(cfg.Embargo)
		testEnd := testStart.Add(cfg.TestPeriod)
		if testEnd.After(end) {
			break
		}
		windows = append(windows, Window{
			Index:      i,
			TrainStart: trainStart,
			TrainEnd:   trainEnd,
			TestStart:  testStart,
			TestEnd:    testEnd,
		})
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: have %v, need %v",
			ErrInsufficientData, end.Sub(start), cfg.TrainPeriod+cfg.Embargo+cfg.TestPeriod)
	}
	return windows, nil
}

// WindowResult pairs a window with the backtest outcome on its test slice.
type WindowResult struct {
	Window  Window          `json:"window"`
	Results *engine.Results `json:"results"`
}

// Summary aggregates per-window outcomes.
type Summary struct {
	Windows []WindowResult `json:"windows"`

	MeanReturn float64 `json:"mean_return"`
	StdReturn  float64 `json:"std_return"`
	MeanSharpe float64 `json:"mean_sharpe"`
	StdSharpe  float64 `json:"std_sharpe"`
	MeanMaxDD  float64 `json:"mean_max_drawdown"`
	WinRate    float64 `json:"win_rate"`   // Fraction of windows with positive return
	Stability  float64 `json:"stability"`  // 1 - std(sharpe)/mean(sharpe); low or negative flags inconsistency
	NumTrades  int     `json:"num_trades"` // Total across windows
}

// Evaluator runs the full walk-forward procedure.
type Evaluator struct {
	cfg       Config
	engineCfg engine.Config
	fees      *cost.FeeModel
	slippage  cost.SlippageModel
	metrics   *telemetry.MetricsRegistry
}

// SetMetrics attaches a telemetry registry; nil leaves the evaluation
// uninstrumented.
func (e *Evaluator) SetMetrics(m *telemetry.MetricsRegistry) { e.metrics = m }

// New validates the configuration and builds an evaluator. Fee and slippage
// models may be nil; each per-window engine applies its own defaults.
func New(cfg Config, engineCfg engine.Config, fees *cost.FeeModel, slippage cost.SlippageModel) (*Evaluator, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &Evaluator{cfg: cfg, engineCfg: engineCfg, fees: fees, slippage: slippage}, nil
}

// Run generates windows over the series, fits and backtests each one, and
// aggregates. Windows evaluate in parallel; each gets its own engine, and
// results land in window order. A factory or backtest error on any window
// fails the whole evaluation.
func (e *Evaluator) Run(ctx context.Context, series *marketdata.Series, factory StrategyFactory) (*Summary, error) {
	var timer *telemetry.RunTimer
	if e.metrics != nil {
		timer = e.metrics.StartRunTimer("walkforward")
	}
	fail := func(errorType string) {
		if timer != nil {
			timer.Failed(errorType)
		}
	}

	windows, err := Windows(e.cfg, series.Start(), series.End())
	if err != nil {
		fail("insufficient_data")
		return nil, err
	}

	log.Info().
		Str("symbol", series.Symbol).
		Int("windows", len(windows)).
		Str("window_type", string(e.cfg.WindowType)).
		Dur("embargo", e.cfg.Embargo).
		Msg("walk-forward evaluation starting")

	results := make([]WindowResult, len(windows))
	errs := make([]error, len(windows))

	workers := e.cfg.Workers
	if workers > len(windows) {
		workers = len(windows)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i], errs[i] = e.evaluateWindow(ctx, series, windows[i], factory)
			}
		}()
	}
	for i := range windows {
		if err := ctx.Err(); err != nil {
			close(indexes)
			wg.Wait()
			fail("cancelled")
			return nil, fmt.Errorf("walk-forward cancelled: %w", err)
		}
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	for i, werr := range errs {
		if werr != nil {
			fail("window")
			return nil, fmt.Errorf("window %d: %w", i, werr)
		}
	}

	if e.metrics != nil {
		e.metrics.WindowsEvaluated.Add(float64(len(windows)))
	}

	summary := aggregate(results)

	log.Info().
		Int("windows", len(windows)).
		Float64("mean_return", summary.MeanReturn).
		Float64("mean_sharpe", summary.MeanSharpe).
		Float64("stability", summary.Stability).
		Float64("win_rate", summary.WinRate).
		Msg("walk-forward evaluation complete")

	if timer != nil {
		timer.Completed()
	}
	return summary, nil
}

// evaluateWindow fits on the train slice and backtests the test slice.
func (e *Evaluator) evaluateWindow(ctx context.Context, series *marketdata.Series, w Window, factory StrategyFactory) (WindowResult, error) {
	train := series.SliceByTime(w.TrainStart, w.TrainEnd)
	test := series.SliceByTime(w.TestStart, w.TestEnd)
	if train.Len() == 0 || test.Len() == 0 {
		return WindowResult{}, fmt.Errorf("%w: empty train or test slice in [%s, %s)",
			ErrInsufficientData, w.TrainStart.Format(time.RFC3339), w.TestEnd.Format(time.RFC3339))
	}

	strat, err := factory(train)
	if err != nil {
		return WindowResult{}, fmt.Errorf("strategy factory: %w", err)
	}

	eng, err := engine.New(e.engineCfg, nil, e.fees, e.slippage)
	if err != nil {
		return WindowResult{}, err
	}
	res, err := eng.Run(ctx, test, strat)
	if err != nil {
		return WindowResult{}, err
	}
	return WindowResult{Window: w, Results: res}, nil
}

func aggregate(results []WindowResult) *Summary {
	summary := &Summary{Windows: results}

	returns := make([]float64, len(results))
	sharpes := make([]float64, len(results))
	wins := 0
	for i, r := range results {
		returns[i] = r.Results.TotalReturn
		sharpes[i] = r.Results.Sharpe
		summary.MeanMaxDD += r.Results.MaxDrawdown
		summary.NumTrades += r.Results.NumTrades
		if r.Results.TotalReturn > 0 {
			wins++
		}
	}

	n := float64(len(results))
	summary.MeanReturn, summary.StdReturn = meanStd(returns)
	summary.MeanSharpe, summary.StdSharpe = meanStd(sharpes)
	summary.MeanMaxDD /= n
	summary.WinRate = float64(wins) / n

	if summary.MeanSharpe != 0 {
		summary.Stability = 1 - summary.StdSharpe/math.Abs(summary.MeanSharpe)
	}
	return summary
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
