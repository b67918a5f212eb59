package persistence

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerStore wraps a RunStore with a circuit breaker so a struggling
// database degrades run persistence instead of stalling every save on a full
// timeout. Once the breaker opens, writes fail fast until the store recovers.
type BreakerStore struct {
	inner   RunStore
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps the store. The breaker opens after five consecutive
// failures and probes again after 30 seconds.
func NewBreakerStore(inner RunStore) *BreakerStore {
	settings := gobreaker.Settings{
		Name:    "run-store",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("run store breaker state changed")
		},
	}
	return &BreakerStore{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (s *BreakerStore) SaveRun(ctx context.Context, run RunRecord, fills []FillRecord) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.inner.SaveRun(ctx, run, fills)
	})
	return err
}

func (s *BreakerStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.inner.GetRun(ctx, runID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RunRecord), nil
}

func (s *BreakerStore) ListRuns(ctx context.Context, symbol string, tr TimeRange, limit int) ([]RunRecord, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.inner.ListRuns(ctx, symbol, tr, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.([]RunRecord), nil
}

func (s *BreakerStore) ListFills(ctx context.Context, runID string) ([]FillRecord, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.inner.ListFills(ctx, runID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]FillRecord), nil
}

func (s *BreakerStore) Ping(ctx context.Context) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.inner.Ping(ctx)
	})
	return err
}
