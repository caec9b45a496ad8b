package stream

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/tripflow/tripflow/internal/clock"
	"github.com/tripflow/tripflow/internal/model"
	"github.com/tripflow/tripflow/pkg/cep"
	"github.com/tripflow/tripflow/pkg/errors"
)

// scriptedShedder drops events whose ID is listed; cap is fixed.
type scriptedShedder struct {
	drop map[int64]bool
	cap  int
}

func (s *scriptedShedder) ShouldAdmit(e *model.Event) bool { return !s.drop[e.ID] }
func (s *scriptedShedder) CurrentCap() int                 { return s.cap }
func (s *scriptedShedder) Observe(float64)                 {}

// collectSink records what the driver emits.
type collectSink struct {
	matches   []*model.Match
	latencies []float64
	closed    bool
}

func (s *collectSink) Name() string { return "collect" }
func (s *collectSink) Write(m *model.Match, latencyMs float64) error {
	s.matches = append(s.matches, m)
	s.latencies = append(s.latencies, latencyMs)
	return nil
}
func (s *collectSink) Close() error {
	s.closed = true
	return nil
}

func trip(id, bike, startLoc, endLoc, startTime, endTime int64) *model.Event {
	return &model.Event{
		ID:        id,
		BikeID:    bike,
		StartLoc:  startLoc,
		EndLoc:    endLoc,
		StartTime: startTime,
		EndTime:   endTime,
	}
}

func newTestDriver(shedder Shedder, sink MatchSink) *Driver {
	targets := map[int64]struct{}{9: {}}
	matcher := cep.NewMatcher(cep.NewPredicates(targets, 3600), clock.NewFake())
	return NewDriver("test-run", matcher, shedder, clock.NewFake(), zap.NewNop().Sugar(), BurstOptions{}, sink)
}

func runEvents(t *testing.T, d *Driver, events ...*model.Event) *Result {
	t.Helper()
	in := make(chan *model.Event, len(events))
	for _, e := range events {
		in <- e
	}
	close(in)

	result, err := d.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return result
}

func TestDriverCountsSimpleRun(t *testing.T) {
	sink := &collectSink{}
	d := newTestDriver(&scriptedShedder{cap: 3}, sink)

	result := runEvents(t, d,
		trip(0, 1, 1, 2, 0, 100),
		trip(1, 1, 2, 3, 100, 200),
		trip(2, 1, 3, 9, 200, 300),
	)

	c := result.Counters
	if c.Ingested != 3 || c.Forwarded != 3 || c.Dropped != 0 {
		t.Errorf("counters = %+v", c)
	}
	if c.Matches != 2 {
		t.Errorf("matches = %d, want 2", c.Matches)
	}
	if len(sink.matches) != 2 {
		t.Errorf("sink received %d matches, want 2", len(sink.matches))
	}
	if len(result.Latencies) != 3 {
		t.Errorf("latency samples = %d, want 3", len(result.Latencies))
	}
	if len(result.Projections) != 2 {
		t.Errorf("projections = %d, want 2", len(result.Projections))
	}
}

// Shedding the seed event removes only the matches that needed it.
func TestShedderDropsSeed(t *testing.T) {
	sink := &collectSink{}
	d := newTestDriver(&scriptedShedder{cap: 3, drop: map[int64]bool{0: true}}, sink)

	result := runEvents(t, d,
		trip(0, 1, 1, 2, 0, 100),
		trip(1, 1, 2, 3, 100, 200),
		trip(2, 1, 3, 9, 200, 300),
	)

	c := result.Counters
	if c.Ingested != 3 || c.Forwarded != 2 || c.Dropped != 1 {
		t.Errorf("counters = %+v", c)
	}
	if c.Matches != 1 {
		t.Errorf("matches = %d, want 1", c.Matches)
	}
	want := model.Projection{A1Start: 2, LastAEnd: 3, BEnd: 9}
	if len(result.Projections) != 1 || result.Projections[0] != want {
		t.Errorf("projections = %+v, want [%+v]", result.Projections, want)
	}
}

func TestMalformedAndOutOfOrderAreRejected(t *testing.T) {
	sink := &collectSink{}
	d := newTestDriver(&scriptedShedder{cap: 3}, sink)

	result := runEvents(t, d,
		trip(0, 1, 1, 2, 100, 200),
		trip(1, 1, 2, 3, 300, 250), // end before start
		trip(2, 1, 2, 3, 50, 150),  // start regresses
		trip(3, 1, 2, 9, 200, 300),
	)

	c := result.Counters
	if c.Malformed != 1 {
		t.Errorf("malformed = %d, want 1", c.Malformed)
	}
	if c.OutOfOrder != 1 {
		t.Errorf("out of order = %d, want 1", c.OutOfOrder)
	}
	if c.Forwarded != 2 {
		t.Errorf("forwarded = %d, want 2", c.Forwarded)
	}
	// e0 still chains to e3: the rejects never reached the matcher.
	if c.Matches != 1 {
		t.Errorf("matches = %d, want 1", c.Matches)
	}
}

func TestCancellationBetweenEvents(t *testing.T) {
	sink := &collectSink{}
	d := newTestDriver(&scriptedShedder{cap: 3}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := make(chan *model.Event)
	result, err := d.Run(ctx, in)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.IsCode(err, errors.CodeContextCanceled) {
		t.Errorf("error code = %v, want E401", err)
	}
	if result == nil {
		t.Fatal("expected partial result on cancellation")
	}
}

// Identical input and seed produce identical emission order.
func TestDriverDeterminism(t *testing.T) {
	run := func() []model.Projection {
		sink := &collectSink{}
		d := newTestDriver(&scriptedShedder{cap: 3}, sink)
		result := runEvents(t, d,
			trip(0, 1, 1, 2, 0, 100),
			trip(1, 2, 2, 3, 50, 150),
			trip(2, 1, 2, 3, 100, 200),
			trip(3, 2, 3, 9, 150, 250),
			trip(4, 1, 3, 9, 200, 300),
		)
		return result.Projections
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("projection counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("projection %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}
