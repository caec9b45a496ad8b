package adapters

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tripflow/tripflow/internal/model"
)

func testMatch(a1Start, lastAEnd, bEnd int64) *model.Match {
	return &model.Match{
		Steps: []*model.Event{
			{StartLoc: a1Start, EndLoc: lastAEnd},
		},
		Terminator: &model.Event{StartLoc: lastAEnd, EndLoc: bEnd},
		DetectedAt: time.Unix(1700000000, 0),
	}
}

func TestProjectionSinkWritesSortedDedupedCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projections.csv")
	sink := NewProjectionSink(path)

	for _, m := range []*model.Match{
		testMatch(2, 3, 9),
		testMatch(1, 2, 9),
		testMatch(2, 3, 9), // duplicate projection
	} {
		if err := sink.Write(m, 0.5); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{"a1_start,last_a_end,b_end", "1,2,9", "2,3,9"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	if got := sink.DetectionLatencies(); len(got) != 3 {
		t.Errorf("latencies = %d, want 3", len(got))
	}
}
