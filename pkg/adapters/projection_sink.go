package adapters

import (
	"sync"

	"github.com/tripflow/tripflow/internal/model"
	"github.com/tripflow/tripflow/pkg/recall"
	"github.com/tripflow/tripflow/pkg/stream"
)

// ProjectionSink buffers emitted projections and writes the deduplicated,
// sorted projection CSV at Close. Buffering keeps the hot path free of
// file I/O.
type ProjectionSink struct {
	mu sync.Mutex

	path        string
	projections []model.Projection
	latencies   []float64
}

// NewProjectionSink creates a sink writing to path.
func NewProjectionSink(path string) *ProjectionSink {
	return &ProjectionSink{path: path}
}

// Name returns "projection-csv".
func (s *ProjectionSink) Name() string { return "projection-csv" }

// Write records one match's projection and detection latency.
func (s *ProjectionSink) Write(m *model.Match, detectionLatencyMs float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projections = append(s.projections, m.Projection())
	s.latencies = append(s.latencies, detectionLatencyMs)
	return nil
}

// DetectionLatencies returns per-match detection latencies in emission
// order.
func (s *ProjectionSink) DetectionLatencies() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.latencies))
	copy(out, s.latencies)
	return out
}

// Close writes the projection CSV.
func (s *ProjectionSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	return recall.WriteCSV(s.path, s.projections)
}

var _ stream.MatchSink = (*ProjectionSink)(nil)
