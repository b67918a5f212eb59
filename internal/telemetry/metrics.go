// Package telemetry exposes pipeline metrics over Prometheus and serves the
// /metrics and /health endpoints for long-lived batch workers.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// MetricsRegistry holds all Prometheus metrics for the backtest pipeline.
// Each registry owns its own collector set, so tests and embedded uses can
// create as many as they need.
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Run lifecycle
	RunsStarted   prometheus.Counter
	RunsCompleted prometheus.Counter
	RunsFailed    *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec

	// Execution
	Fills          *prometheus.CounterVec
	RejectedOrders prometheus.Counter

	// Labeling
	LabelRows     *prometheus.CounterVec
	LabelCoverage *prometheus.GaugeVec

	// Walk-forward
	WindowsEvaluated prometheus.Counter
}

// NewMetricsRegistry creates and registers the full pipeline metric set.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_runs_started_total",
			Help: "Total number of backtest runs started",
		}),

		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_runs_completed_total",
			Help: "Total number of backtest runs completed successfully",
		}),

		RunsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrader_runs_failed_total",
				Help: "Total number of failed backtest runs by error type",
			},
			[]string{"error_type"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autotrader_run_duration_seconds",
				Help:    "Wall-clock duration of backtest runs in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),

		Fills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrader_fills_total",
				Help: "Total simulated fills by side",
			},
			[]string{"side"},
		),

		RejectedOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_rejected_orders_total",
			Help: "Total orders rejected by the simulator",
		}),

		LabelRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotrader_label_rows_total",
				Help: "Total label rows produced by labeler kind",
			},
			[]string{"kind"},
		),

		LabelCoverage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "autotrader_label_coverage_ratio",
				Help: "Fraction of input bars that produced a valid label, by symbol",
			},
			[]string{"symbol"},
		),

		WindowsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_walkforward_windows_total",
			Help: "Total walk-forward windows evaluated",
		}),
	}

	m.registry.MustRegister(
		m.RunsStarted,
		m.RunsCompleted,
		m.RunsFailed,
		m.RunDuration,
		m.Fills,
		m.RejectedOrders,
		m.LabelRows,
		m.LabelCoverage,
		m.WindowsEvaluated,
	)

	return m
}

// Registry exposes the underlying collector registry for the HTTP handler.
func (m *MetricsRegistry) Registry() *prometheus.Registry {
	return m.registry
}

// RunTimer tracks wall-clock time of one pipeline run.
type RunTimer struct {
	metrics *MetricsRegistry
	kind    string
	start   time.Time
}

// StartRunTimer begins timing a run of the given kind (backtest, label,
// horizon, walkforward).
func (m *MetricsRegistry) StartRunTimer(kind string) *RunTimer {
	m.RunsStarted.Inc()
	return &RunTimer{metrics: m, kind: kind, start: time.Now()}
}

// Completed records a successful run.
func (t *RunTimer) Completed() {
	duration := time.Since(t.start)
	t.metrics.RunsCompleted.Inc()
	t.metrics.RunDuration.WithLabelValues(t.kind).Observe(duration.Seconds())

	log.Debug().
		Str("kind", t.kind).
		Dur("duration", duration).
		Msg("run completed")
}

// Failed records a failed run under the given error type.
func (t *RunTimer) Failed(errorType string) {
	duration := time.Since(t.start)
	t.metrics.RunsFailed.WithLabelValues(errorType).Inc()
	t.metrics.RunDuration.WithLabelValues(t.kind).Observe(duration.Seconds())

	log.Debug().
		Str("kind", t.kind).
		Str("error_type", errorType).
		Dur("duration", duration).
		Msg("run failed")
}
