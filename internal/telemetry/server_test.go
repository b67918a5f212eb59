package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct{ err error }

func (c stubChecker) Ping(ctx context.Context) error { return c.err }

func TestMetricsEndpoint(t *testing.T) {
	m := NewMetricsRegistry()
	m.RunsStarted.Inc()
	m.Fills.WithLabelValues("BUY").Add(3)

	srv := NewServer(":0", m)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "autotrader_runs_started_total 1")
	assert.Contains(t, body, `autotrader_fills_total{side="BUY"} 3`)
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(":0", NewMetricsRegistry())
	srv.AddHealthCheck("store", stubChecker{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy":true`)
	assert.Contains(t, rec.Body.String(), `"store":"ok"`)
}

func TestHealthEndpointUnhealthyDependency(t *testing.T) {
	srv := NewServer(":0", NewMetricsRegistry())
	srv.AddHealthCheck("store", stubChecker{err: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy":false`)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestRunTimerCountsOutcomes(t *testing.T) {
	m := NewMetricsRegistry()

	m.StartRunTimer("backtest").Completed()
	m.StartRunTimer("backtest").Failed("data_integrity")

	srv := NewServer(":0", m)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "autotrader_runs_started_total 2")
	assert.Contains(t, body, "autotrader_runs_completed_total 1")
	assert.Contains(t, body, `autotrader_runs_failed_total{error_type="data_integrity"} 1`)
	assert.True(t, strings.Contains(body, "autotrader_run_duration_seconds"))
}
