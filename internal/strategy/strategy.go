// Package strategy provides reference strategies for the backtest engine.
// Real strategies come from the ML layer; these exist for smoke runs, CLI
// demos and tests.
package strategy

import (
	"github.com/autotrader/backtest/internal/marketdata"
)

// BuyAndHold goes fully long on the first bar and stays there.
type BuyAndHold struct{}

// Signal always targets a full long position.
func (s *BuyAndHold) Signal(history *marketdata.Series) float64 {
	return 1
}

// MomentumThreshold goes long when the close-to-close return over a lookback
// window exceeds a threshold, short when it falls below the negative
// threshold, and is otherwise flat.
type MomentumThreshold struct {
	Lookback     int     // Bars in the momentum window (default 20)
	ThresholdBps float64 // Entry threshold in basis points (default 10)
}

// Signal returns the thresholded momentum sign.
func (s *MomentumThreshold) Signal(history *marketdata.Series) float64 {
	lookback := s.Lookback
	if lookback <= 0 {
		lookback = 20
	}
	threshold := s.ThresholdBps
	if threshold <= 0 {
		threshold = 10
	}

	n := history.Len()
	if n <= lookback {
		return 0
	}
	past := history.Bars[n-1-lookback].Close
	now := history.Bars[n-1].Close
	if past <= 0 {
		return 0
	}
	momBps := (now - past) / past * 10000
	switch {
	case momBps > threshold:
		return 1
	case momBps < -threshold:
		return -1
	default:
		return 0
	}
}
