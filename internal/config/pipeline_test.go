package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.InDelta(t, 2, cfg.Cost.Model.MakerFeeBps, 1e-12)
	assert.InDelta(t, 4, cfg.Cost.Model.TakerFeeBps, 1e-12)
	assert.Equal(t, 60*time.Millisecond, cfg.Simulator.Latency.Total())
	assert.Equal(t, 5*24*time.Hour, cfg.WalkForward.Embargo)
	assert.Equal(t, ":9090", cfg.Telemetry.Addr)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cost:
  model:
    maker_fee_bps: 1
    taker_fee_bps: 6
  slippage:
    kind: square_root
    coefficient: 0.5
engine:
  initial_cash: 250000
  exchange: kraken
storage:
  postgres_dsn: postgres://localhost/backtests
telemetry:
  enabled: true
  addr: ":9191"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 1, cfg.Cost.Model.MakerFeeBps, 1e-12)
	assert.InDelta(t, 6, cfg.Cost.Model.TakerFeeBps, 1e-12)
	assert.Equal(t, "square_root", cfg.Cost.Slippage.Kind)
	assert.InDelta(t, 250000, cfg.Engine.InitialCash, 1e-12)
	assert.Equal(t, "kraken", cfg.Engine.Exchange)
	assert.Equal(t, "postgres://localhost/backtests", cfg.Storage.PostgresDSN)
	assert.Equal(t, ":9191", cfg.Telemetry.Addr)

	// Untouched sections keep their defaults.
	assert.InDelta(t, 1, cfg.Cost.Model.MinProfitBps, 1e-12)
	assert.Equal(t, 60*time.Millisecond, cfg.Simulator.Latency.Total())
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cost:
  model:
    maker_fee_bps: -5
`), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cost model")

	path = filepath.Join(dir, "badslip.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cost:
  slippage:
    kind: teleport
`), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slippage")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/pipeline.yaml")
	require.Error(t, err)
}
