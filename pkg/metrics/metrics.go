// Package metrics records latency samples and summarizes runs.
package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/montanaflynn/stats"

	"github.com/tripflow/tripflow/internal/model"
	"github.com/tripflow/tripflow/pkg/errors"
)

// Summary holds descriptive statistics for latency samples, in ms.
type Summary struct {
	Count int
	P50   float64
	P95   float64
	Avg   float64
	Min   float64
	Max   float64
}

// Summarize computes a latency summary. Returns a zero Summary for an
// empty sample set.
func Summarize(delaysMs []float64) Summary {
	if len(delaysMs) == 0 {
		return Summary{}
	}
	data := stats.Float64Data(delaysMs)
	p50, _ := stats.Median(data)
	p95, _ := stats.Percentile(data, 95)
	avg, _ := stats.Mean(data)
	min, _ := stats.Min(data)
	max, _ := stats.Max(data)
	return Summary{
		Count: len(delaysMs),
		P50:   p50,
		P95:   p95,
		Avg:   avg,
		Min:   min,
		Max:   max,
	}
}

// WriteLatencyCSV persists latency samples (ms) to a single-column CSV.
func WriteLatencyCSV(path string, delaysMs []float64) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to create latency file").
			WithContext("path", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"delay_ms"}); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to write latency header")
	}
	for _, v := range delaysMs {
		if err := w.Write([]string{fmt.Sprintf("%.3f", v)}); err != nil {
			return errors.Wrap(err, errors.CodeWriteFailed, "failed to write latency row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to flush latency samples")
	}
	return nil
}

// WriteCountersCSV persists run counters as key,value rows.
func WriteCountersCSV(path string, c model.Counters) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to create counters file").
			WithContext("path", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows := [][]string{
		{"counter", "value"},
		{"ingested", fmt.Sprintf("%d", c.Ingested)},
		{"forwarded", fmt.Sprintf("%d", c.Forwarded)},
		{"dropped", fmt.Sprintf("%d", c.Dropped)},
		{"malformed", fmt.Sprintf("%d", c.Malformed)},
		{"out_of_order", fmt.Sprintf("%d", c.OutOfOrder)},
		{"matches", fmt.Sprintf("%d", c.Matches)},
		{"evicted", fmt.Sprintf("%d", c.Evicted)},
		{"pruned", fmt.Sprintf("%d", c.Pruned)},
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return errors.Wrap(err, errors.CodeWriteFailed, "failed to write counters row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to flush counters")
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to create artifact dir").
			WithContext("dir", dir)
	}
	return nil
}
