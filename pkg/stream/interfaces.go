// Package stream defines the streaming pipeline around the matcher: the
// Source and MatchSink interfaces and the single-threaded Driver that
// connects ingress, shedder, matcher, and output.
package stream

import (
	"context"
	"io"

	"github.com/tripflow/tripflow/internal/model"
)

// Source reads trip data and emits events to a channel. Sources are the
// entry points of a pipeline; they perform parsing and schema mapping
// and drop malformed rows before the driver sees them.
type Source interface {
	// Name returns the source identifier (e.g., "csv", "memory").
	Name() string

	// Read parses r and emits events to out until exhaustion or context
	// cancellation. The caller closes the channel.
	Read(ctx context.Context, r io.Reader, out chan<- *model.Event) error

	// Skipped returns the number of malformed rows dropped so far.
	Skipped() int64
}

// Shedder is the load-shedding control surface the driver consults per
// event. The production implementation is shed.Controller.
type Shedder interface {
	// ShouldAdmit decides whether the event enters the matcher.
	ShouldAdmit(e *model.Event) bool

	// CurrentCap returns the Kleene cap in effect for the next event.
	CurrentCap() int

	// Observe feeds the latency sample of the last processed event.
	Observe(latencyMs float64)
}

// MatchSink consumes completed matches and their detection latencies.
// Sinks are off the hot path only in the sense that they must not block
// on external systems; artifact formatting happens at Close.
type MatchSink interface {
	// Name returns the sink identifier (e.g., "projection-csv").
	Name() string

	// Write receives one match with its detection latency.
	Write(m *model.Match, detectionLatencyMs float64) error

	// Close flushes and finalizes the sink.
	Close() error
}
