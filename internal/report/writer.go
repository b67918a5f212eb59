package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/autotrader/backtest/internal/engine"
)

// Writer persists run artifacts under outputDir/<run_id>/: the metrics JSON,
// the equity curve and trade log as JSONL, and the tear sheet as plain text.
// Field names match the structured report exactly so downstream tooling can
// join artifacts across runs.
type Writer struct {
	outputDir string
}

// NewWriter creates an artifact writer rooted at outputDir.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// ArtifactPaths names the files one run produced.
type ArtifactPaths struct {
	Dir         string `json:"dir"`
	MetricsJSON string `json:"metrics_json"`
	EquityJSONL string `json:"equity_jsonl"`
	TradesJSONL string `json:"trades_jsonl"`
	TearSheet   string `json:"tear_sheet"`
}

// Write persists all artifacts for one run and returns their paths.
func (w *Writer) Write(results *engine.Results, metrics *Metrics) (*ArtifactPaths, error) {
	dir := filepath.Join(w.outputDir, results.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}

	paths := &ArtifactPaths{
		Dir:         dir,
		MetricsJSON: filepath.Join(dir, "metrics.json"),
		EquityJSONL: filepath.Join(dir, "equity_curve.jsonl"),
		TradesJSONL: filepath.Join(dir, "trade_log.jsonl"),
		TearSheet:   filepath.Join(dir, "tearsheet.txt"),
	}

	if err := writeJSON(paths.MetricsJSON, metrics); err != nil {
		return nil, err
	}
	if err := writeJSONL(paths.EquityJSONL, len(results.EquityCurve), func(i int) any {
		return results.EquityCurve[i]
	}); err != nil {
		return nil, err
	}
	if err := writeJSONL(paths.TradesJSONL, len(results.TradeLog), func(i int) any {
		return results.TradeLog[i]
	}); err != nil {
		return nil, err
	}
	if err := os.WriteFile(paths.TearSheet, []byte(TearSheet(metrics)), 0o644); err != nil {
		return nil, fmt.Errorf("writing tear sheet: %w", err)
	}

	log.Info().
		Str("run_id", results.RunID).
		Str("dir", dir).
		Int("equity_points", len(results.EquityCurve)).
		Int("fills", len(results.TradeLog)).
		Msg("run artifacts written")

	return paths, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

func writeJSONL(path string, n int, row func(i int) any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for i := 0; i < n; i++ {
		if err := enc.Encode(row(i)); err != nil {
			return fmt.Errorf("encoding row %d of %s: %w", i, path, err)
		}
	}
	return nil
}
