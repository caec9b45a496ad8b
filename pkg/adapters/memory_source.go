package adapters

import (
	"context"
	"io"

	"github.com/tripflow/tripflow/internal/model"
	"github.com/tripflow/tripflow/pkg/stream"
)

// MemorySource emits a pre-built event slice. Used by the bench command,
// where trips come from the synthetic generator rather than a file.
type MemorySource struct {
	events []*model.Event
}

// NewMemorySource creates a source over events.
func NewMemorySource(events []*model.Event) *MemorySource {
	return &MemorySource{events: events}
}

// Name returns "memory".
func (s *MemorySource) Name() string { return "memory" }

// Skipped always returns zero; generated events are well-formed.
func (s *MemorySource) Skipped() int64 { return 0 }

// Read emits the events in order. The reader argument is unused.
func (s *MemorySource) Read(ctx context.Context, _ io.Reader, out chan<- *model.Event) error {
	for _, e := range s.events {
		select {
		case out <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

var _ stream.Source = (*MemorySource)(nil)
