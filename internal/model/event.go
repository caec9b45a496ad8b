// Package model defines core data structures for TripFlow.
package model

import "time"

// Event represents a single bike trip flowing through the engine.
// Trip timestamps are logical (from the data source), stored as Unix
// seconds, and are never compared against wall-clock readings.
type Event struct {
	// ID is unique within a run.
	ID int64

	// BikeID is the correlation key: every event in a match shares it.
	BikeID int64

	// StartLoc and EndLoc are station identifiers.
	StartLoc int64
	EndLoc   int64

	// StartTime and EndTime are Unix seconds, EndTime >= StartTime.
	StartTime int64
	EndTime   int64

	// IngestSeq is the monotonic arrival index assigned by the driver.
	IngestSeq int64
}

// Duration returns the trip duration in seconds.
func (e *Event) Duration() int64 {
	return e.EndTime - e.StartTime
}

// Match is a completed pattern instance (a1, ..., ak, b) with k >= 1.
type Match struct {
	// Steps holds the Kleene prefix a[1..k] in chain order.
	Steps []*Event

	// Terminator is the closing event b, with EndLoc in the target set.
	Terminator *Event

	// DetectedAt is the wall-clock reading taken when the match was
	// emitted, used for latency accounting only.
	DetectedAt time.Time
}

// Length returns k, the number of Kleene steps.
func (m *Match) Length() int {
	return len(m.Steps)
}

// Projection returns the externally observable triple for this match.
func (m *Match) Projection() Projection {
	return Projection{
		A1Start:  m.Steps[0].StartLoc,
		LastAEnd: m.Steps[len(m.Steps)-1].EndLoc,
		BEnd:     m.Terminator.EndLoc,
	}
}

// Projection is the (a[1].start, a[last].end, b.end) triple emitted per
// match. Projections compare by value; the set of projections is the
// recall-evaluation universe.
type Projection struct {
	A1Start  int64
	LastAEnd int64
	BEnd     int64
}

// Less orders projections lexicographically, for stable artifact output.
func (p Projection) Less(o Projection) bool {
	if p.A1Start != o.A1Start {
		return p.A1Start < o.A1Start
	}
	if p.LastAEnd != o.LastAEnd {
		return p.LastAEnd < o.LastAEnd
	}
	return p.BEnd < o.BEnd
}

// Counters accumulates per-run observability counts. Owned by the stream
// driver; read at end of run.
type Counters struct {
	Ingested   int64
	Forwarded  int64
	Dropped    int64
	Malformed  int64
	OutOfOrder int64
	Matches    int64
	Evicted    int64
	Pruned     int64
}
