// Package horizon grid-searches labeling horizons and scores each one on
// risk-adjusted signal quality and tradable capacity. The search is
// embarrassingly parallel across horizons and fully deterministic: results
// land in horizon order regardless of worker scheduling.
package horizon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autotrader/backtest/internal/cost"
	"github.com/autotrader/backtest/internal/label"
	"github.com/autotrader/backtest/internal/marketdata"
)

const secondsPerDay = 86400

// Method selects how candidate horizons are scored.
type Method string

const (
	// MethodRegression scores the cost-adjusted forward-return distribution
	// directly.
	MethodRegression Method = "regression"
	// MethodClassification scores the pnl of trading the {-1, 0, +1} labels.
	MethodClassification Method = "classification"
)

// Config parameterizes a horizon search.
type Config struct {
	Horizons             []time.Duration `yaml:"horizons"`               // Candidate horizons (>= 1 required)
	Method               Method          `yaml:"method"`                 // regression (default) or classification
	MaxParticipationRate float64         `yaml:"max_participation_rate"` // Fraction of ADV tradable per horizon (default 0.02)
	Workers              int             `yaml:"workers"`                // Parallel workers (default NumCPU)
	IsMaker              bool            `yaml:"is_maker"`               // Fee assumption passed to the labelers
}

// DefaultConfig returns a search over common intraday horizons.
func DefaultConfig() Config {
	return Config{
		Horizons: []time.Duration{
			5 * time.Minute, 15 * time.Minute, 30 * time.Minute,
			time.Hour, 4 * time.Hour, 24 * time.Hour,
		},
		Method:               MethodRegression,
		MaxParticipationRate: 0.02,
	}
}

// Result scores one candidate horizon.
type Result struct {
	Horizon          time.Duration `json:"horizon"`
	InformationRatio float64       `json:"information_ratio"`
	SharpeRatio      float64       `json:"sharpe_ratio"`
	HitRate          float64       `json:"hit_rate"`
	Capacity         float64       `json:"capacity"` // Tradable units per horizon at the participation cap
	SampleCount      int           `json:"sample_count"`
}

// Report is the full search outcome: one Result per horizon that produced
// enough labels, sorted by horizon, plus the selected best.
type Report struct {
	Results []Result        `json:"results"`
	Best    Result          `json:"best"`
	Skipped []time.Duration `json:"skipped,omitempty"`
}

// Optimizer runs the grid search.
type Optimizer struct {
	cfg   Config
	model cost.Model
}

// New validates the configuration and builds an optimizer.
func New(cfg Config, model cost.Model) (*Optimizer, error) {
	if len(cfg.Horizons) == 0 {
		return nil, &cost.ConfigError{Field: "horizon.horizons", Reason: "at least one candidate required"}
	}
	for _, h := range cfg.Horizons {
		if h <= 0 {
			return nil, &cost.ConfigError{Field: "horizon.horizons",
				Reason: fmt.Sprintf("candidate %v must be > 0", h)}
		}
	}
	switch cfg.Method {
	case "":
		cfg.Method = MethodRegression
	case MethodRegression, MethodClassification:
	default:
		return nil, &cost.ConfigError{Field: "horizon.method",
			Reason: fmt.Sprintf("unknown method %q", cfg.Method)}
	}
	if cfg.MaxParticipationRate <= 0 {
		cfg.MaxParticipationRate = 0.02
	}
	if cfg.MaxParticipationRate > 1 {
		return nil, &cost.ConfigError{Field: "horizon.max_participation_rate", Reason: "must be <= 1"}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return &Optimizer{cfg: cfg, model: model}, nil
}

// Optimize scores every candidate horizon over the series and selects the
// best by information ratio, breaking ties toward the higher-capacity
// (longer) horizon. Horizons without enough valid labels are skipped; the
// search fails only if every candidate is skipped.
func (o *Optimizer) Optimize(ctx context.Context, series *marketdata.Series) (*Report, error) {
	horizons := make([]time.Duration, len(o.cfg.Horizons))
	copy(horizons, o.cfg.Horizons)
	sort.Slice(horizons, func(i, j int) bool { return horizons[i] < horizons[j] })

	type slot struct {
		result Result
		err    error
	}
	slots := make([]slot, len(horizons))

	workers := o.cfg.Workers
	if workers > len(horizons) {
		workers = len(horizons)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				res, err := o.score(series, horizons[i])
				slots[i] = slot{result: res, err: err}
			}
		}()
	}

	for i := range horizons {
		if err := ctx.Err(); err != nil {
			close(indexes)
			wg.Wait()
			return nil, fmt.Errorf("horizon search cancelled: %w", err)
		}
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	report := &Report{}
	for i, s := range slots {
		if s.err != nil {
			var insufficientErr *label.InsufficientDataError
			if errors.As(s.err, &insufficientErr) {
				report.Skipped = append(report.Skipped, horizons[i])
				log.Warn().Dur("horizon", horizons[i]).
					Msg("horizon skipped: not enough valid labels")
				continue
			}
			return nil, fmt.Errorf("scoring horizon %v: %w", horizons[i], s.err)
		}
		report.Results = append(report.Results, s.result)
	}
	if len(report.Results) == 0 {
		return nil, fmt.Errorf("no horizon produced enough labels for %s", series.Symbol)
	}

	best := report.Results[0]
	for _, r := range report.Results[1:] {
		if r.InformationRatio > best.InformationRatio ||
			(r.InformationRatio == best.InformationRatio && r.Capacity > best.Capacity) {
			best = r
		}
	}
	report.Best = best

	log.Info().
		Str("symbol", series.Symbol).
		Dur("best_horizon", best.Horizon).
		Float64("information_ratio", best.InformationRatio).
		Float64("capacity", best.Capacity).
		Int("candidates", len(report.Results)).
		Msg("horizon search complete")

	return report, nil
}

// score labels the series at one horizon and reduces the label set to the
// Result metrics.
func (o *Optimizer) score(series *marketdata.Series, horizon time.Duration) (Result, error) {
	returns, hits, err := o.labelReturns(series, horizon)
	if err != nil {
		return Result{}, err
	}

	n := len(returns)
	mean, std := meanStd(returns)

	result := Result{
		Horizon:     horizon,
		HitRate:     hits,
		SampleCount: n,
		Capacity:    series.AvgDailyVolume() * o.cfg.MaxParticipationRate * horizon.Seconds() / secondsPerDay,
	}
	if std > 0 {
		result.InformationRatio = mean / std * math.Sqrt(float64(n))
		periodsPerYear := 365.25 * secondsPerDay / horizon.Seconds()
		result.SharpeRatio = mean / std * math.Sqrt(periodsPerYear)
	}
	return result, nil
}

// labelReturns produces one per-row cost-adjusted return series for the
// horizon, plus the hit rate, according to the configured method.
func (o *Optimizer) labelReturns(series *marketdata.Series, horizon time.Duration) ([]float64, float64, error) {
	switch o.cfg.Method {
	case MethodClassification:
		classifier, err := label.NewClassifier(label.Config{Horizon: horizon, IsMaker: o.cfg.IsMaker}, o.model)
		if err != nil {
			return nil, 0, err
		}
		labels, err := classifier.Label(series)
		if err != nil {
			return nil, 0, err
		}
		roundTrip := o.model.RoundTripCostBps(o.cfg.IsMaker)
		returns := make([]float64, 0, len(labels))
		traded, wins := 0, 0
		for _, l := range labels {
			// Pnl of acting on the label; hold rows contribute zero.
			pnl := 0.0
			if l.Label != 0 {
				pnl = float64(l.Label)*l.ForwardReturnBps - roundTrip
				traded++
				// Hit: label sign matches the realized return sign
				if float64(l.Label)*l.ForwardReturnBps > 0 {
					wins++
				}
			}
			returns = append(returns, pnl)
		}
		hitRate := 0.0
		if traded > 0 {
			hitRate = float64(wins) / float64(traded)
		}
		return returns, hitRate, nil

	default: // MethodRegression
		regressor, err := label.NewRegressor(label.RegressionConfig{
			Config:        label.Config{Horizon: horizon, IsMaker: o.cfg.IsMaker},
			SubtractCosts: true,
		}, o.model)
		if err != nil {
			return nil, 0, err
		}
		labels, err := regressor.Label(series)
		if err != nil {
			return nil, 0, err
		}
		returns := make([]float64, len(labels))
		positive, wins := 0, 0
		for i, l := range labels {
			returns[i] = l.LabelBps
			// Hit: positive-label rows whose raw return was in fact positive
			if l.LabelBps > 0 {
				positive++
				if l.RawReturnBps > 0 {
					wins++
				}
			}
		}
		hitRate := 0.0
		if positive > 0 {
			hitRate = float64(wins) / float64(positive)
		}
		return returns, hitRate, nil
	}
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
