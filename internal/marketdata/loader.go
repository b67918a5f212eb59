package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadCSV reads a bar table from a CSV file. Required columns are
// timestamp, open, high, low, close, volume; bid, ask, bid_volume and
// ask_volume are picked up when present. Timestamps may be RFC3339 or unix
// seconds/milliseconds. The loaded series is validated before return.
func LoadCSV(path, symbol string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bar file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, symbol)
}

// ReadCSV parses bars from r; see LoadCSV for the expected columns.
func ReadCSV(r io.Reader, symbol string) (*Series, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q in bar CSV", required)
		}
	}
	_, hasBid := cols["bid"]
	_, hasAsk := cols["ask"]
	hasQuoteCols := hasBid && hasAsk

	var bars []Bar
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		ts, err := parseTimestamp(record[cols["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		bar := Bar{Timestamp: ts}
		if bar.Open, err = parseFloat(record, cols, "open"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if bar.High, err = parseFloat(record, cols, "high"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if bar.Low, err = parseFloat(record, cols, "low"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if bar.Close, err = parseFloat(record, cols, "close"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if bar.Volume, err = parseFloat(record, cols, "volume"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if hasQuoteCols && record[cols["bid"]] != "" && record[cols["ask"]] != "" {
			if bar.Bid, err = parseFloat(record, cols, "bid"); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			if bar.Ask, err = parseFloat(record, cols, "ask"); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			if i, ok := cols["bid_volume"]; ok && record[i] != "" {
				if bar.BidVolume, err = parseFloat(record, cols, "bid_volume"); err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
			}
			if i, ok := cols["ask_volume"]; ok && record[i] != "" {
				if bar.AskVolume, err = parseFloat(record, cols, "ask_volume"); err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
			}
			bar.HasQuote = true
		}

		bars = append(bars, bar)
	}

	return NewSeries(symbol, bars)
}

func parseFloat(record []string, cols map[string]int, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(record[cols[name]]), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", name, record[cols[name]])
	}
	return v, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// Heuristic: values past the year 2286 in seconds are milliseconds
		if epoch > 1e12 {
			return time.UnixMilli(epoch).UTC(), nil
		}
		return time.Unix(epoch, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}
