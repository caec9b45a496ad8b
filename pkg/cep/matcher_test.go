package cep

import (
	"testing"

	"github.com/tripflow/tripflow/internal/clock"
	"github.com/tripflow/tripflow/internal/model"
)

// trip builds a test event. Station letters from the scenarios map to
// small integers; 9 is the target station.
func trip(bike, startLoc, endLoc, startTime, endTime int64) *model.Event {
	return &model.Event{
		BikeID:    bike,
		StartLoc:  startLoc,
		EndLoc:    endLoc,
		StartTime: startTime,
		EndTime:   endTime,
	}
}

func newTestMatcher(windowSeconds int64) *Matcher {
	targets := map[int64]struct{}{9: {}}
	return NewMatcher(NewPredicates(targets, windowSeconds), clock.NewFake())
}

func processAll(t *testing.T, m *Matcher, cap int, events ...*model.Event) []*model.Match {
	t.Helper()
	var all []*model.Match
	for _, e := range events {
		matches, err := m.Process(e, cap)
		if err != nil {
			t.Fatalf("Process(%d): %v", e.ID, err)
		}
		all = append(all, matches...)
	}
	return all
}

func projections(matches []*model.Match) []model.Projection {
	out := make([]model.Projection, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Projection())
	}
	return out
}

const (
	locA = 1
	locB = 2
	locC = 3
	locX = 24
)

// Simple length-2 match: one full chain plus its length-1 suffix.
func TestSimpleChainMatch(t *testing.T) {
	m := newTestMatcher(3600)
	matches := processAll(t, m, 3,
		trip(1, locA, locB, 0, 100),
		trip(1, locB, locC, 100, 200),
		trip(1, locC, 9, 200, 300),
	)

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}

	want := []model.Projection{
		{A1Start: locA, LastAEnd: locC, BEnd: 9},
		{A1Start: locB, LastAEnd: locC, BEnd: 9},
	}
	got := projections(matches)
	for _, w := range want {
		found := false
		for _, g := range got {
			if g == w {
				found = true
			}
		}
		if !found {
			t.Errorf("missing projection %+v in %+v", w, got)
		}
	}

	if matches[0].Length() != 2 || matches[1].Length() != 1 {
		t.Errorf("expected lengths 2 and 1 in index order, got %d and %d",
			matches[0].Length(), matches[1].Length())
	}
}

// Window violation: terminator lands past the window for every chain.
func TestWindowViolation(t *testing.T) {
	m := newTestMatcher(3600)
	matches := processAll(t, m, 3,
		trip(1, locA, locB, 0, 100),
		trip(1, locB, locC, 100, 200),
		trip(1, locC, 9, 200, 4000),
	)
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

// Chain break: only the chain starting at the gap closes.
func TestChainBreak(t *testing.T) {
	m := newTestMatcher(3600)
	matches := processAll(t, m, 3,
		trip(1, locA, locB, 0, 100),
		trip(1, locX, locC, 100, 200),
		trip(1, locC, 9, 200, 300),
	)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	want := model.Projection{A1Start: locX, LastAEnd: locC, BEnd: 9}
	if got := matches[0].Projection(); got != want {
		t.Errorf("projection = %+v, want %+v", got, want)
	}
}

// Wrong correlation key: chains never cross bikes.
func TestWrongKey(t *testing.T) {
	m := newTestMatcher(3600)
	matches := processAll(t, m, 3,
		trip(1, locA, locB, 0, 100),
		trip(2, locB, 9, 100, 200),
	)
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

// Kleene cap 2: only suffixes of length <= 2 close; no length-3 match.
func TestKleeneCap(t *testing.T) {
	m := newTestMatcher(3600)
	events := []*model.Event{
		trip(1, 10, 11, 0, 10),
		trip(1, 11, 12, 10, 20),
		trip(1, 12, 13, 20, 30),
		trip(1, 13, 14, 30, 40),
		trip(1, 14, 15, 40, 50),
		trip(1, 15, 9, 50, 60),
	}
	matches := processAll(t, m, 2, events...)

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches under cap 2, got %d", len(matches))
	}
	for _, match := range matches {
		if match.Length() > 2 {
			t.Errorf("match length %d exceeds cap 2", match.Length())
		}
	}
}

// A terminator cannot close the chain seeded from itself: Kleene-plus
// needs at least one a strictly before b.
func TestSeedCannotCloseItself(t *testing.T) {
	m := newTestMatcher(3600)
	matches := processAll(t, m, 3, trip(1, locA, 9, 0, 100))
	if len(matches) != 0 {
		t.Fatalf("single terminator trip must not match, got %d", len(matches))
	}
}

// Extension is non-destructive: a chain extended by one event can still
// be extended by a later branch.
func TestNonDestructiveExtension(t *testing.T) {
	m := newTestMatcher(3600)
	processAll(t, m, 3,
		trip(1, locA, locB, 0, 100),
		trip(1, locB, locC, 100, 200),
		trip(1, locB, locX, 200, 300),
	)

	// Chains: [e1], [e1 e2], [e2], [e1 e3], [e3] = 5 live prefixes.
	if got := m.Index().Size(); got != 5 {
		t.Fatalf("expected 5 live chains, got %d", got)
	}
}

// No expired chain survives processing an event at logical time t.
func TestEvictionBeforeExtension(t *testing.T) {
	m := newTestMatcher(100)
	processAll(t, m, 3,
		trip(1, locA, locB, 0, 50),
		trip(1, locB, locC, 500, 550),
	)

	// The first chain expired at t=500 (anchor 0 + 100 < 500).
	if got := m.Index().Evicted(); got != 1 {
		t.Fatalf("expected 1 evicted chain, got %d", got)
	}
	for _, pm := range m.Index().CandidatesFor(1) {
		if pm.AnchorTime()+100 < 500 {
			t.Errorf("expired chain survived: anchor %d", pm.AnchorTime())
		}
	}
}

// Tightening the cap prunes over-cap chains before the event applies.
func TestCapTighteningPrunes(t *testing.T) {
	m := newTestMatcher(3600)
	processAll(t, m, 3,
		trip(1, 10, 11, 0, 10),
		trip(1, 11, 12, 10, 20),
		trip(1, 12, 13, 20, 30),
	)
	// Live: [e1] [e1e2] [e2] [e1e2e3] [e2e3] [e3] = 6 chains, one of length 3.
	if got := m.Index().Size(); got != 6 {
		t.Fatalf("expected 6 live chains, got %d", got)
	}

	matches := processAll(t, m, 2, trip(1, 13, 9, 30, 40))
	if got := m.Index().Pruned(); got != 1 {
		t.Errorf("expected 1 pruned chain, got %d", got)
	}
	for _, match := range matches {
		if match.Length() > 2 {
			t.Errorf("match length %d exceeds tightened cap", match.Length())
		}
	}
}

// Emitted matches satisfy every chain invariant.
func TestChainInvariants(t *testing.T) {
	m := newTestMatcher(3600)
	events := []*model.Event{
		trip(1, locA, locB, 0, 100),
		trip(2, locB, locC, 50, 150),
		trip(1, locB, locC, 100, 200),
		trip(2, locC, 9, 150, 250),
		trip(1, locC, 9, 200, 300),
		trip(1, 9, locA, 300, 400),
	}
	matches := processAll(t, m, 3, events...)
	if len(matches) == 0 {
		t.Fatal("expected matches")
	}

	for _, match := range matches {
		b := match.Terminator
		steps := match.Steps
		for _, a := range steps {
			if a.BikeID != b.BikeID {
				t.Errorf("correlation key mismatch: %d vs %d", a.BikeID, b.BikeID)
			}
		}
		for i := 1; i < len(steps); i++ {
			if steps[i].StartLoc != steps[i-1].EndLoc {
				t.Errorf("spatial chain broken at step %d", i)
			}
			if steps[i].StartTime < steps[i-1].EndTime {
				t.Errorf("temporal order broken at step %d", i)
			}
		}
		last := steps[len(steps)-1]
		if b.StartLoc != last.EndLoc {
			t.Errorf("terminator does not chain: %d vs %d", b.StartLoc, last.EndLoc)
		}
		if b.EndLoc != 9 {
			t.Errorf("terminator end %d not in target set", b.EndLoc)
		}
		if b.EndTime-steps[0].StartTime > 3600 {
			t.Errorf("match exceeds window: %d", b.EndTime-steps[0].StartTime)
		}
	}
}

// Identical input yields identical match order.
func TestDeterministicEmission(t *testing.T) {
	build := func() []model.Projection {
		m := newTestMatcher(3600)
		matches := processAll(t, m, 3,
			trip(1, locA, locB, 0, 100),
			trip(1, locB, locC, 100, 200),
			trip(1, locB, locX, 150, 250),
			trip(1, locC, 9, 200, 300),
			trip(1, locX, 9, 300, 400),
		)
		return projections(matches)
	}

	first := build()
	second := build()
	if len(first) != len(second) {
		t.Fatalf("match counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("match %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}
