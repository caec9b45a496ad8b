package watch

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/tripflow/tripflow/internal/model"
	"github.com/tripflow/tripflow/pkg/adapters"
	"github.com/tripflow/tripflow/pkg/stream"
)

// TailSource streams a trips CSV that is still being written: existing
// rows are emitted first, then each settled append burst is drained.
// Only complete lines are consumed; a partially written row stays in the
// file until its newline arrives.
type TailSource struct {
	path string

	offset        int64
	headerSkipped bool
	skipped       int64
	emitted       int64
}

// NewTailSource creates a follow-mode source for path.
func NewTailSource(path string) *TailSource {
	return &TailSource{path: path}
}

// Name returns "tail-csv".
func (t *TailSource) Name() string { return "tail-csv" }

// Skipped returns the number of malformed rows dropped.
func (t *TailSource) Skipped() int64 { return t.skipped }

// Read emits events until the context is cancelled. The reader argument
// is unused; the source re-opens the file per append burst.
func (t *TailSource) Read(ctx context.Context, _ io.Reader, out chan<- *model.Event) error {
	if err := t.drain(ctx, out); err != nil {
		return err
	}

	w, err := NewWatcher(t.path)
	if err != nil {
		return err
	}
	w.OnAppend = func() error {
		return t.drain(ctx, out)
	}

	err = w.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

// drain reads complete lines appended since the last offset.
func (t *TailSource) drain(ctx context.Context, out chan<- *model.Event) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReaderSize(f, 256*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			// Incomplete line; re-read it on the next burst.
			return nil
		}
		if err != nil {
			return err
		}
		t.offset += int64(len(line))

		if !t.headerSkipped {
			t.headerSkipped = true
			continue
		}

		trimmed := trimLine(line)
		if len(trimmed) == 0 {
			continue
		}
		event, ok := adapters.ParseTripRow(trimmed)
		if !ok {
			t.skipped++
			continue
		}
		event.ID = t.emitted
		t.emitted++

		select {
		case out <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func trimLine(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

var _ stream.Source = (*TailSource)(nil)
