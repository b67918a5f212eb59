// Package config loads and validates the pipeline configuration file. Every
// component takes its own typed config struct; this package only assembles
// them from YAML and applies documented defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/autotrader/backtest/internal/cost"
	"github.com/autotrader/backtest/internal/engine"
	"github.com/autotrader/backtest/internal/horizon"
	"github.com/autotrader/backtest/internal/label"
	"github.com/autotrader/backtest/internal/report"
	"github.com/autotrader/backtest/internal/sim"
	"github.com/autotrader/backtest/internal/walkforward"
)

// PipelineConfig is the full configuration surface of the pipeline.
type PipelineConfig struct {
	Cost        CostSection        `yaml:"cost"`
	Label       LabelSection       `yaml:"label"`
	Horizon     horizon.Config     `yaml:"horizon"`
	Simulator   SimulatorSection   `yaml:"simulator"`
	Engine      engine.Config      `yaml:"engine"`
	WalkForward walkforward.Config `yaml:"walkforward"`
	Report      report.Config      `yaml:"report"`
	Storage     StorageSection     `yaml:"storage"`
	Telemetry   TelemetrySection   `yaml:"telemetry"`
}

// CostSection groups the cost-model knobs.
type CostSection struct {
	Model       cost.Model           `yaml:"model"`
	FeeSchedule string               `yaml:"fee_schedule"` // Optional path to a fee schedule YAML
	Slippage    cost.SlippageConfig  `yaml:"slippage"`
	Overnight   cost.OvernightConfig `yaml:"overnight"`
}

// LabelSection groups the labeler knobs.
type LabelSection struct {
	Classification label.Config           `yaml:"classification"`
	Regression     label.RegressionConfig `yaml:"regression"`
}

// SimulatorSection selects the simulator mode and latency.
type SimulatorSection struct {
	Latency sim.LatencyModel `yaml:"latency"`
}

// StorageSection configures optional run persistence and bar caching.
type StorageSection struct {
	PostgresDSN string `yaml:"postgres_dsn"` // Empty disables run persistence
	RedisAddr   string `yaml:"redis_addr"`   // Empty disables the bar cache
	RedisDB     int    `yaml:"redis_db"`
	CacheTTL    string `yaml:"cache_ttl"` // Go duration string, default 24h
	OutputDir   string `yaml:"output_dir"`
}

// TelemetrySection configures the metrics endpoint.
type TelemetrySection struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // Default :9090
}

// Default returns the documented default configuration.
func Default() PipelineConfig {
	return PipelineConfig{
		Cost: CostSection{
			Model:    cost.DefaultModel(),
			Slippage: cost.SlippageConfig{Kind: "fixed", FixedBps: 1},
		},
		Horizon:     horizon.DefaultConfig(),
		Simulator:   SimulatorSection{Latency: sim.DefaultLatencyModel()},
		Engine:      engine.DefaultConfig(),
		WalkForward: walkforward.DefaultConfig(),
		Report:      report.DefaultConfig(),
		Storage:     StorageSection{OutputDir: "out"},
		Telemetry:   TelemetrySection{Addr: ":9090"},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. An empty path returns the defaults unchanged.
func Load(path string) (PipelineConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations that would fail at component construction,
// so bad files surface before any work starts.
func (c *PipelineConfig) Validate() error {
	if err := c.Cost.Model.Validate(); err != nil {
		return fmt.Errorf("cost model: %w", err)
	}
	if _, err := cost.NewSlippageModel(c.Cost.Slippage); err != nil {
		return fmt.Errorf("slippage: %w", err)
	}
	if c.Cost.FeeSchedule != "" {
		if _, err := cost.LoadFeeSchedule(c.Cost.FeeSchedule); err != nil {
			return fmt.Errorf("fee schedule: %w", err)
		}
	}
	if c.Simulator.Latency.Total() < 0 {
		return &cost.ConfigError{Field: "simulator.latency", Reason: "must be >= 0"}
	}
	if c.Telemetry.Enabled && c.Telemetry.Addr == "" {
		return &cost.ConfigError{Field: "telemetry.addr", Reason: "required when telemetry is enabled"}
	}
	return nil
}
