package cep

import "github.com/tripflow/tripflow/internal/model"

// PartialMatch is a live, non-terminated a[1..k] prefix. Extension is
// non-destructive, so partial matches form a prefix DAG over events:
// each node holds only its tail event and a parent link, giving O(1)
// extension; the full event list is materialized only on emission.
type PartialMatch struct {
	parent *PartialMatch // nil for a seed chain
	tail   *model.Event
	length int
	anchor int64 // start_time of a[1], fixed at creation
}

// newSeed creates a length-1 chain containing only e.
func newSeed(e *model.Event) *PartialMatch {
	return &PartialMatch{tail: e, length: 1, anchor: e.StartTime}
}

// extend creates the chain pm + e. The receiver is retained unchanged.
func (pm *PartialMatch) extend(e *model.Event) *PartialMatch {
	return &PartialMatch{parent: pm, tail: e, length: pm.length + 1, anchor: pm.anchor}
}

// Key returns the correlation key shared by every constituent event.
func (pm *PartialMatch) Key() int64 { return pm.tail.BikeID }

// Length returns k, the number of chained events.
func (pm *PartialMatch) Length() int { return pm.length }

// AnchorTime returns a[1].start_time.
func (pm *PartialMatch) AnchorTime() int64 { return pm.anchor }

// TailEndLoc returns a[last].end_loc.
func (pm *PartialMatch) TailEndLoc() int64 { return pm.tail.EndLoc }

// TailEndTime returns a[last].end_time.
func (pm *PartialMatch) TailEndTime() int64 { return pm.tail.EndTime }

// Events materializes the chain oldest-first by walking parent links.
func (pm *PartialMatch) Events() []*model.Event {
	events := make([]*model.Event, pm.length)
	node := pm
	for i := pm.length - 1; i >= 0; i-- {
		events[i] = node.tail
		node = node.parent
	}
	return events
}

// Index maps a correlation key to its live chains in insertion order.
// Insertion order is the processing order, which makes per-event
// iteration deterministic for a given input stream. No chain survives
// past its window; expired entries are removed before any extension
// considers them.
type Index struct {
	chains map[int64][]*PartialMatch

	evicted int64
	pruned  int64
}

// NewIndex creates an empty partial-match index.
func NewIndex() *Index {
	return &Index{chains: make(map[int64][]*PartialMatch)}
}

// Install appends a freshly constructed chain for its key.
func (idx *Index) Install(pm *PartialMatch) {
	key := pm.Key()
	idx.chains[key] = append(idx.chains[key], pm)
}

// CandidatesFor returns the live chains for key in insertion order. The
// returned slice is the index's own backing array; callers must not
// mutate it and should re-read after installs.
func (idx *Index) CandidatesFor(key int64) []*PartialMatch {
	return idx.chains[key]
}

// EvictExpired removes every chain whose window has closed at the given
// logical time: anchor_time + W < now.
func (idx *Index) EvictExpired(now int64, windowSeconds int64) {
	for key, list := range idx.chains {
		kept := list[:0]
		for _, pm := range list {
			if pm.anchor+windowSeconds < now {
				idx.evicted++
				continue
			}
			kept = append(kept, pm)
		}
		if len(kept) == 0 {
			delete(idx.chains, key)
		} else {
			idx.chains[key] = kept
		}
	}
}

// PruneOverCap removes chains longer than the cap. Called when the
// hybrid shedder tightens the Kleene cap mid-run.
func (idx *Index) PruneOverCap(maxLen int) {
	for key, list := range idx.chains {
		kept := list[:0]
		for _, pm := range list {
			if pm.length > maxLen {
				idx.pruned++
				continue
			}
			kept = append(kept, pm)
		}
		if len(kept) == 0 {
			delete(idx.chains, key)
		} else {
			idx.chains[key] = kept
		}
	}
}

// Size returns the number of live chains across all keys.
func (idx *Index) Size() int {
	n := 0
	for _, list := range idx.chains {
		n += len(list)
	}
	return n
}

// Evicted returns the number of chains removed by window eviction.
func (idx *Index) Evicted() int64 { return idx.evicted }

// Pruned returns the number of chains removed by cap tightening.
func (idx *Index) Pruned() int64 { return idx.pruned }
