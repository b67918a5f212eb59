package label

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autotrader/backtest/internal/cost"
	"github.com/autotrader/backtest/internal/marketdata"
	"github.com/autotrader/backtest/internal/telemetry"
)

// RegressionConfig extends Config with clipping and cost-adjustment options.
type RegressionConfig struct {
	Config        `yaml:",inline"`
	ClipLowerPct  float64 `yaml:"clip_lower_pct"` // Lower clip percentile (default 5)
	ClipUpperPct  float64 `yaml:"clip_upper_pct"` // Upper clip percentile (default 95)
	SubtractCosts bool    `yaml:"subtract_costs"` // Apply round-trip cost adjustment
}

// RegLabel is one regression row with the full return decomposition.
type RegLabel struct {
	Timestamp        time.Time `json:"timestamp"`
	LabelBps         float64   `json:"label"`
	RawReturnBps     float64   `json:"raw_return_bps"`
	ClippedReturnBps float64   `json:"clipped_return_bps"`
	CostAdjustedBps  float64   `json:"cost_adjusted_return_bps"`
}

// Regressor produces continuous cost-adjusted forward-return labels.
//
// Clipping bounds are the percentiles of the raw-return series over the
// entire labeling run, computed in an explicit first pass and applied in a
// second. The bounds therefore see data that is temporally after any given
// row; that is acceptable for training-label generation only, as a
// dataset-level outlier normalization, and must never be reproduced as a
// causal feature at inference time.
type Regressor struct {
	cfg     RegressionConfig
	model   cost.Model
	metrics *telemetry.MetricsRegistry
}

// SetMetrics attaches a telemetry registry; nil leaves labeling
// uninstrumented.
func (r *Regressor) SetMetrics(m *telemetry.MetricsRegistry) { r.metrics = m }

// NewRegressor validates the configuration and builds a regressor.
func NewRegressor(cfg RegressionConfig, model cost.Model) (*Regressor, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Config.normalize(); err != nil {
		return nil, err
	}
	if cfg.ClipLowerPct == 0 && cfg.ClipUpperPct == 0 {
		cfg.ClipLowerPct, cfg.ClipUpperPct = 5, 95
	}
	if cfg.ClipLowerPct < 0 || cfg.ClipUpperPct > 100 || cfg.ClipLowerPct >= cfg.ClipUpperPct {
		return nil, &cost.ConfigError{Field: "label.clip_percentiles",
			Reason: "require 0 <= lower < upper <= 100"}
	}
	return &Regressor{cfg: cfg, model: model}, nil
}

// Label computes regression labels. Two passes: collect raw forward returns,
// compute global clip bounds, then map each row through clip and cost
// adjustment.
func (r *Regressor) Label(series *marketdata.Series) ([]RegLabel, error) {
	type rawRow struct {
		ts  time.Time
		ret float64
	}

	rows := make([]rawRow, 0, series.Len())
	for _, bar := range series.Bars {
		fwd, ok := forwardReturnBps(series, bar, r.cfg.Horizon, r.cfg.Tolerance)
		if !ok {
			continue
		}
		rows = append(rows, rawRow{ts: bar.Timestamp, ret: fwd})
	}

	if err := checkCoverage(r.cfg.Config, len(rows), series.Len()); err != nil {
		return nil, err
	}

	raw := make([]float64, len(rows))
	for i, row := range rows {
		raw[i] = row.ret
	}
	lower := Percentile(raw, r.cfg.ClipLowerPct)
	upper := Percentile(raw, r.cfg.ClipUpperPct)

	roundTrip := r.model.RoundTripCostBps(r.cfg.IsMaker)

	labels := make([]RegLabel, len(rows))
	for i, row := range rows {
		clipped := math.Min(math.Max(row.ret, lower), upper)

		adjusted := clipped
		if r.cfg.SubtractCosts {
			// The label is what a round trip in the move's direction would
			// realize after costs, so magnitudes shrink toward zero on both
			// sides: a long captures less of an up move, a short less of a
			// down move. Moves smaller than the round trip go negative for a
			// long and positive for a short.
			if clipped > 0 {
				adjusted = clipped - roundTrip
			} else {
				adjusted = clipped + roundTrip
			}
		}

		labels[i] = RegLabel{
			Timestamp:        row.ts,
			LabelBps:         adjusted,
			RawReturnBps:     row.ret,
			ClippedReturnBps: clipped,
			CostAdjustedBps:  adjusted,
		}
	}

	if r.metrics != nil {
		r.metrics.LabelRows.WithLabelValues("regression").Add(float64(len(labels)))
		r.metrics.LabelCoverage.WithLabelValues(series.Symbol).
			Set(float64(len(labels)) / float64(series.Len()))
	}

	log.Debug().
		Str("symbol", series.Symbol).
		Dur("horizon", r.cfg.Horizon).
		Float64("clip_lower_bps", lower).
		Float64("clip_upper_bps", upper).
		Int("rows", len(labels)).
		Msg("regression labeling complete")

	return labels, nil
}

// Percentile returns the pth percentile (0-100) of values using linear
// interpolation between order statistics. The input slice is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
