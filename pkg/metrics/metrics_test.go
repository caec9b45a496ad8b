package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tripflow/tripflow/internal/model"
)

func TestSummarize(t *testing.T) {
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = float64(i + 1) // 1..100
	}

	s := Summarize(samples)
	if s.Count != 100 {
		t.Errorf("count = %d, want 100", s.Count)
	}
	if s.Min != 1 || s.Max != 100 {
		t.Errorf("min/max = %v/%v, want 1/100", s.Min, s.Max)
	}
	if s.P50 != 50.5 {
		t.Errorf("p50 = %v, want 50.5", s.P50)
	}
	if s.Avg != 50.5 {
		t.Errorf("avg = %v, want 50.5", s.Avg)
	}
	if s.P95 < 94 || s.P95 > 96 {
		t.Errorf("p95 = %v, want ~95", s.P95)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Count != 0 || s.P50 != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}

func TestWriteLatencyCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "latency.csv")
	if err := WriteLatencyCSV(path, []float64{1.5, 2.25}); err != nil {
		t.Fatalf("WriteLatencyCSV: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if lines[0] != "delay_ms" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "1.500" || lines[2] != "2.250" {
		t.Errorf("rows = %q, %q", lines[1], lines[2])
	}
}

func TestWriteCountersCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.csv")
	c := model.Counters{Ingested: 10, Forwarded: 8, Dropped: 2, Matches: 3}
	if err := WriteCountersCSV(path, c); err != nil {
		t.Fatalf("WriteCountersCSV: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	content := string(data)
	for _, want := range []string{"ingested,10", "forwarded,8", "dropped,2", "matches,3"} {
		if !strings.Contains(content, want) {
			t.Errorf("missing %q in counters output", want)
		}
	}
}
