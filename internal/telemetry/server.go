package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// HealthChecker reports whether a dependency is reachable. The run store
// implements this; nil checkers are skipped.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server exposes /metrics and /health for a long-running pipeline worker.
type Server struct {
	srv      *http.Server
	metrics  *MetricsRegistry
	checkers map[string]HealthChecker
}

// NewServer builds the telemetry HTTP server on addr.
func NewServer(addr string, metrics *MetricsRegistry) *Server {
	s := &Server{
		metrics:  metrics,
		checkers: make(map[string]HealthChecker),
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// AddHealthCheck registers a named dependency probe.
func (s *Server) AddHealthCheck(name string, checker HealthChecker) {
	s.checkers[name] = checker
}

// Start serves until the listener closes. Blocking; run in a goroutine.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("telemetry server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

type healthResponse struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Healthy: true, Checks: make(map[string]string)}
	for name, checker := range s.checkers {
		if err := checker.Ping(ctx); err != nil {
			resp.Healthy = false
			resp.Checks[name] = err.Error()
		} else {
			resp.Checks[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !resp.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warn().Err(err).Msg("writing health response")
	}
}
