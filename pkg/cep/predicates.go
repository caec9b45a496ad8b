// Package cep implements the hot-path pattern engine: a partial-match
// index of growing Kleene chains and the per-event matcher that drives it.
package cep

import "github.com/tripflow/tripflow/internal/model"

// Predicates bundles the pattern's fixed conditions. The pattern shape is
// SEQ(Trip+ a[], Trip b): consecutive a's chain spatially on the same
// bike, b ends at a target station, and the whole sequence fits in the
// window.
type Predicates struct {
	targets map[int64]struct{}
	window  int64 // seconds
}

// NewPredicates builds the predicate bundle for a target set and window.
func NewPredicates(targets map[int64]struct{}, windowSeconds int64) Predicates {
	return Predicates{targets: targets, window: windowSeconds}
}

// ChainOK reports whether event e continues the chain ending at pm:
// start of next equals end of previous, and time moves forward.
func (p Predicates) ChainOK(pm *PartialMatch, e *model.Event) bool {
	return pm.TailEndLoc() == e.StartLoc && e.StartTime >= pm.TailEndTime()
}

// TerminatorOK reports whether e can close a chain: its end location is
// in the target set.
func (p Predicates) TerminatorOK(e *model.Event) bool {
	_, ok := p.targets[e.EndLoc]
	return ok
}

// WindowOK reports whether appending e to pm keeps the sequence inside
// the window: e.end - a[1].start <= W.
func (p Predicates) WindowOK(pm *PartialMatch, e *model.Event) bool {
	return e.EndTime-pm.AnchorTime() <= p.window
}

// Window returns the configured window in seconds.
func (p Predicates) Window() int64 { return p.window }
