package cep

import (
	"github.com/tripflow/tripflow/internal/clock"
	"github.com/tripflow/tripflow/internal/model"
	"github.com/tripflow/tripflow/pkg/errors"
)

// Matcher advances the pattern state machine one event at a time. It is
// exclusively owned by the stream driver; no locking.
type Matcher struct {
	preds Predicates
	idx   *Index
	clk   clock.Clock

	lastCap int
}

// NewMatcher creates a matcher over a fresh index.
func NewMatcher(preds Predicates, clk clock.Clock) *Matcher {
	return &Matcher{
		preds: preds,
		idx:   NewIndex(),
		clk:   clk,
	}
}

// Index exposes the partial-match index for counter reads.
func (m *Matcher) Index() *Index { return m.idx }

// Process runs one event through the state machine under the given
// Kleene cap and returns the matches it completes, in deterministic
// index order.
//
// The per-event procedure:
//  1. evict chains whose window closed at e.start_time
//  2. extend each chain the event continues (non-destructively)
//  3. close chains if e is a terminator, emitting matches
//  4. seed a fresh length-1 chain from e
//
// Seeding runs last so the new chain cannot close on its own event: a
// Kleene-plus needs at least one a strictly before b. Closure emits and
// installs nothing, so a terminator never doubles as the a[k+1] of the
// match it just completed; the event still enters future chains through
// steps 2 and 4, where it is an ordinary trip.
func (m *Matcher) Process(e *model.Event, kleeneCap int) ([]*model.Match, error) {
	m.idx.EvictExpired(e.StartTime, m.preds.Window())

	if m.lastCap != 0 && kleeneCap < m.lastCap {
		m.idx.PruneOverCap(kleeneCap)
	}
	m.lastCap = kleeneCap

	key := e.BikeID

	// Extension over a snapshot: chains installed below must not be
	// reconsidered as extension sources for the same event.
	existing := m.idx.CandidatesFor(key)
	n := len(existing)
	for i := 0; i < n; i++ {
		pm := existing[i]
		if pm.Key() != key {
			return nil, errors.Invariant("partial match key mismatch").
				WithContext("chain_key", pm.Key()).
				WithContext("event_key", key).
				WithContext("event_id", e.ID)
		}
		if m.preds.ChainOK(pm, e) && m.preds.WindowOK(pm, e) && pm.Length()+1 <= kleeneCap {
			m.idx.Install(pm.extend(e))
		}
	}

	var matches []*model.Match
	if m.preds.TerminatorOK(e) {
		detected := m.clk.Now()
		for _, pm := range m.idx.CandidatesFor(key) {
			if m.preds.ChainOK(pm, e) && m.preds.WindowOK(pm, e) && pm.Length() <= kleeneCap {
				matches = append(matches, &model.Match{
					Steps:      pm.Events(),
					Terminator: e,
					DetectedAt: detected,
				})
			}
		}
	}

	if kleeneCap >= 1 {
		m.idx.Install(newSeed(e))
	}

	return matches, nil
}
