// Package marketdata holds the immutable bar tables consumed by the labeling
// and backtest layers. Bars are produced once by an external ingestion module
// and never mutated downstream; a Series may be shared read-only across
// concurrent horizon and walk-forward workers.
package marketdata

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Bar is a single time-indexed OHLCV row with optional top-of-book quotes.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`

	// Top-of-book quote, present only when HasQuote is true
	Bid       float64 `json:"bid,omitempty"`
	Ask       float64 `json:"ask,omitempty"`
	BidVolume float64 `json:"bid_volume,omitempty"`
	AskVolume float64 `json:"ask_volume,omitempty"`
	HasQuote  bool    `json:"has_quote"`
}

// Microprice returns the size-weighted mid price when book data is present,
// the plain mid when sizes are missing, and the close otherwise.
func (b Bar) Microprice() float64 {
	if !b.HasQuote {
		return b.Close
	}
	if b.BidVolume+b.AskVolume > 0 {
		return (b.Bid*b.AskVolume + b.Ask*b.BidVolume) / (b.BidVolume + b.AskVolume)
	}
	return (b.Bid + b.Ask) / 2
}

// Mid returns the quote midpoint, falling back to close without book data.
func (b Bar) Mid() float64 {
	if !b.HasQuote {
		return b.Close
	}
	return (b.Bid + b.Ask) / 2
}

// Series is a time-ordered bar table for one symbol. The backing slice is
// treated as read-only after construction.
type Series struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// DataIntegrityError reports malformed input data encountered at validation
// or mid-run. It carries the offending timestamp so the caller can fix the
// upstream feed; bad bars are never silently skipped.
type DataIntegrityError struct {
	Symbol    string
	Timestamp time.Time
	Reason    string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity violation for %s at %s: %s",
		e.Symbol, e.Timestamp.Format(time.RFC3339), e.Reason)
}

// NewSeries validates the bar table and wraps it as a Series.
func NewSeries(symbol string, bars []Bar) (*Series, error) {
	s := &Series{Symbol: symbol, Bars: bars}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks monotonic unique timestamps, positive prices, and NaN-free
// required columns. Returns a DataIntegrityError naming the first bad bar.
func (s *Series) Validate() error {
	for i, b := range s.Bars {
		for _, v := range []struct {
			name  string
			value float64
		}{
			{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close},
		} {
			if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
				return &DataIntegrityError{Symbol: s.Symbol, Timestamp: b.Timestamp,
					Reason: fmt.Sprintf("%s is not finite", v.name)}
			}
			if v.value <= 0 {
				return &DataIntegrityError{Symbol: s.Symbol, Timestamp: b.Timestamp,
					Reason: fmt.Sprintf("%s %.6f is not positive", v.name, v.value)}
			}
		}
		if math.IsNaN(b.Volume) || b.Volume < 0 {
			return &DataIntegrityError{Symbol: s.Symbol, Timestamp: b.Timestamp,
				Reason: "volume is negative or NaN"}
		}
		if b.HasQuote && (b.Bid <= 0 || b.Ask <= 0 || b.Ask < b.Bid) {
			return &DataIntegrityError{Symbol: s.Symbol, Timestamp: b.Timestamp,
				Reason: fmt.Sprintf("crossed or non-positive quote bid=%.6f ask=%.6f", b.Bid, b.Ask)}
		}
		if i > 0 && !s.Bars[i-1].Timestamp.Before(b.Timestamp) {
			return &DataIntegrityError{Symbol: s.Symbol, Timestamp: b.Timestamp,
				Reason: fmt.Sprintf("timestamp not strictly after previous bar %s",
					s.Bars[i-1].Timestamp.Format(time.RFC3339))}
		}
	}
	return nil
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.Bars) }

// IndexAtOrAfter returns the index of the first bar whose timestamp is >= t,
// or Len() when no such bar exists.
func (s *Series) IndexAtOrAfter(t time.Time) int {
	return sort.Search(len(s.Bars), func(i int) bool {
		return !s.Bars[i].Timestamp.Before(t)
	})
}

// LookupAtOrAfter finds the first bar at or after t, accepting it only when
// it lands within tolerance of t. Bar spacing can be irregular (volume or
// dollar bars), so this is a time-based lookup, never a positional shift.
func (s *Series) LookupAtOrAfter(t time.Time, tolerance time.Duration) (Bar, bool) {
	i := s.IndexAtOrAfter(t)
	if i >= len(s.Bars) {
		return Bar{}, false
	}
	if s.Bars[i].Timestamp.Sub(t) > tolerance {
		return Bar{}, false
	}
	return s.Bars[i], true
}

// Prefix returns a view of the first n bars sharing the same backing array.
// The engine uses this to hand a strategy only the history it is allowed to
// see: bars up to and including the current one.
func (s *Series) Prefix(n int) *Series {
	if n > len(s.Bars) {
		n = len(s.Bars)
	}
	return &Series{Symbol: s.Symbol, Bars: s.Bars[:n:n]}
}

// SliceByTime returns the bars with from <= timestamp < to as a view.
func (s *Series) SliceByTime(from, to time.Time) *Series {
	lo := s.IndexAtOrAfter(from)
	hi := s.IndexAtOrAfter(to)
	return &Series{Symbol: s.Symbol, Bars: s.Bars[lo:hi:hi]}
}

// Start returns the first bar timestamp.
func (s *Series) Start() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Timestamp
}

// End returns the last bar timestamp.
func (s *Series) End() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Timestamp
}

// AvgDailyVolume estimates average daily volume from the covered span. Spans
// shorter than one day are scaled up to a daily basis.
func (s *Series) AvgDailyVolume() float64 {
	if len(s.Bars) == 0 {
		return 0
	}
	total := 0.0
	for _, b := range s.Bars {
		total += b.Volume
	}
	span := s.End().Sub(s.Start())
	days := span.Hours() / 24
	if days < 1 {
		days = 1
	}
	return total / days
}

// MedianSpacing returns the median gap between consecutive bars, used to
// infer an annualization basis when none is configured.
func (s *Series) MedianSpacing() time.Duration {
	if len(s.Bars) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(s.Bars)-1)
	for i := 1; i < len(s.Bars); i++ {
		gaps = append(gaps, s.Bars[i].Timestamp.Sub(s.Bars[i-1].Timestamp))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}
