// Package label produces cost-aware training labels from bar tables. Labels
// measure realizable forward returns: the move a trade could actually have
// captured after paying round-trip transaction costs. Forward lookups are
// strictly time-based so irregular bar spacing never introduces look-ahead.
package label

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autotrader/backtest/internal/cost"
	"github.com/autotrader/backtest/internal/marketdata"
	"github.com/autotrader/backtest/internal/telemetry"
)

// InsufficientDataError signals that too few bars produced a valid horizon
// lookup, usually because the horizon is too long for the dataset.
type InsufficientDataError struct {
	Horizon     time.Duration
	Valid       int
	Total       int
	MinFraction float64
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for horizon %v: %d/%d rows have a valid lookup (need >= %.0f%%)",
		e.Horizon, e.Valid, e.Total, e.MinFraction*100)
}

// Config holds shared labeling parameters.
type Config struct {
	Horizon          time.Duration `yaml:"horizon"`            // Forward-return horizon (> 0)
	Tolerance        time.Duration `yaml:"tolerance"`          // Max gap past t+horizon accepted (default horizon/2)
	IsMaker          bool          `yaml:"is_maker"`           // Maker or taker fee assumption
	MinValidFraction float64       `yaml:"min_valid_fraction"` // Min fraction of rows with a valid lookup (default 0.5)
}

func (c *Config) normalize() error {
	if c.Horizon <= 0 {
		return &cost.ConfigError{Field: "label.horizon", Reason: "must be > 0"}
	}
	if c.Tolerance <= 0 {
		c.Tolerance = c.Horizon / 2
	}
	if c.MinValidFraction <= 0 {
		c.MinValidFraction = 0.5
	}
	if c.MinValidFraction > 1 {
		return &cost.ConfigError{Field: "label.min_valid_fraction", Reason: "must be <= 1"}
	}
	return nil
}

// ClassLabel is one classification row: the {-1, 0, +1} tag plus the audit
// fields that justify it.
type ClassLabel struct {
	Timestamp        time.Time `json:"timestamp"`
	Label            int       `json:"label"` // +1 buy, -1 sell, 0 hold
	ForwardReturnBps float64   `json:"forward_return_bps"`
	ThresholdBps     float64   `json:"profitable_threshold_bps"`
	Profitable       bool      `json:"is_profitable"`
}

// Classifier labels bars with the sign of the cost-adjusted forward move.
type Classifier struct {
	cfg     Config
	model   cost.Model
	metrics *telemetry.MetricsRegistry
}

// SetMetrics attaches a telemetry registry; nil leaves labeling
// uninstrumented.
func (c *Classifier) SetMetrics(m *telemetry.MetricsRegistry) { c.metrics = m }

// NewClassifier validates the configuration and builds a classifier.
func NewClassifier(cfg Config, model cost.Model) (*Classifier, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg, model: model}, nil
}

// Label computes classification labels for every bar with a valid horizon
// lookup. Tail rows without one are excluded, not zero-filled. The label at
// time t depends only on bars in [t, t+horizon+tolerance]; nothing later.
func (c *Classifier) Label(series *marketdata.Series) ([]ClassLabel, error) {
	threshold := c.model.ProfitableThresholdBps(c.cfg.IsMaker)

	labels := make([]ClassLabel, 0, series.Len())
	for _, bar := range series.Bars {
		fwd, ok := forwardReturnBps(series, bar, c.cfg.Horizon, c.cfg.Tolerance)
		if !ok {
			continue
		}

		l := ClassLabel{
			Timestamp:        bar.Timestamp,
			ForwardReturnBps: fwd,
			ThresholdBps:     threshold,
		}
		switch {
		case fwd > threshold:
			l.Label = 1
			l.Profitable = true
		case fwd < -threshold:
			l.Label = -1
			l.Profitable = true
		default:
			l.Label = 0
		}
		labels = append(labels, l)
	}

	if err := checkCoverage(c.cfg, len(labels), series.Len()); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.LabelRows.WithLabelValues("classification").Add(float64(len(labels)))
		c.metrics.LabelCoverage.WithLabelValues(series.Symbol).
			Set(float64(len(labels)) / float64(series.Len()))
	}

	log.Debug().
		Str("symbol", series.Symbol).
		Dur("horizon", c.cfg.Horizon).
		Int("rows", len(labels)).
		Int("input_rows", series.Len()).
		Msg("classification labeling complete")

	return labels, nil
}

// forwardReturnBps computes the microprice return from a bar to the nearest
// bar at or after t+horizon within tolerance.
func forwardReturnBps(series *marketdata.Series, bar marketdata.Bar, horizon, tolerance time.Duration) (float64, bool) {
	target := bar.Timestamp.Add(horizon)
	future, ok := series.LookupAtOrAfter(target, tolerance)
	if !ok {
		return 0, false
	}
	entry := bar.Microprice()
	if entry <= 0 {
		return 0, false
	}
	return (future.Microprice() - entry) / entry * 10000, true
}

func checkCoverage(cfg Config, valid, total int) error {
	if total == 0 {
		return &InsufficientDataError{Horizon: cfg.Horizon, Valid: 0, Total: 0, MinFraction: cfg.MinValidFraction}
	}
	if float64(valid)/float64(total) < cfg.MinValidFraction {
		return &InsufficientDataError{
			Horizon:     cfg.Horizon,
			Valid:       valid,
			Total:       total,
			MinFraction: cfg.MinValidFraction,
		}
	}
	return nil
}
