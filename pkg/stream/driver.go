package stream

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/tripflow/tripflow/internal/clock"
	"github.com/tripflow/tripflow/internal/model"
	"github.com/tripflow/tripflow/pkg/cep"
	"github.com/tripflow/tripflow/pkg/errors"
)

// BurstOptions is test-only load injection; it must not alter pattern
// semantics. Zero values disable it.
type BurstOptions struct {
	// Every N events, sleep for Sleep before processing.
	Every int
	Sleep time.Duration

	// PerEvent sleeps before every event.
	PerEvent time.Duration
}

// Result summarizes one run.
type Result struct {
	RunID       string
	Counters    model.Counters
	Latencies   []float64 // per-event processing latency, ms
	Projections []model.Projection
	FinalCap    int
	Duration    time.Duration
}

// Driver iterates events in arrival order on a single logical worker:
// shedder decision, matcher step, sink output, latency sample. It owns
// the counters and latency samples; the matcher owns the index; the
// controller owns its control state.
type Driver struct {
	runID   string
	matcher *cep.Matcher
	shedder Shedder
	sinks   []MatchSink
	clk     clock.Clock
	log     *zap.SugaredLogger
	burst   BurstOptions

	counters    model.Counters
	latencies   []float64
	projections []model.Projection
	lastStart   int64
	seq         int64
}

// NewDriver creates a driver for one run.
func NewDriver(runID string, matcher *cep.Matcher, shedder Shedder, clk clock.Clock, log *zap.SugaredLogger, burst BurstOptions, sinks ...MatchSink) *Driver {
	return &Driver{
		runID:     runID,
		matcher:   matcher,
		shedder:   shedder,
		sinks:     sinks,
		clk:       clk,
		log:       log,
		burst:     burst,
		lastStart: math.MinInt64,
	}
}

// Run consumes events until the channel closes or the context is
// cancelled. Cancellation is cooperative: it is checked between events,
// never mid-event.
func (d *Driver) Run(ctx context.Context, in <-chan *model.Event) (*Result, error) {
	started := d.clk.Now()

	for {
		select {
		case <-ctx.Done():
			return d.result(started), errors.Wrap(ctx.Err(), errors.CodeContextCanceled, "run cancelled")
		case e, ok := <-in:
			if !ok {
				return d.result(started), nil
			}
			if err := d.step(e); err != nil {
				return d.result(started), err
			}
		}
	}
}

// step processes one event. Latency is sampled from pre-shed to
// post-matcher; burst sleeps happen before the clock is read so no
// sample crosses a sleep boundary.
func (d *Driver) step(e *model.Event) error {
	d.seq++
	e.IngestSeq = d.seq
	d.counters.Ingested++

	if e.EndTime < e.StartTime {
		d.counters.Malformed++
		return nil
	}
	if e.StartTime < d.lastStart {
		d.counters.OutOfOrder++
		return nil
	}
	d.lastStart = e.StartTime

	if d.burst.PerEvent > 0 {
		time.Sleep(d.burst.PerEvent)
	}
	if d.burst.Every > 0 && d.seq%int64(d.burst.Every) == 0 {
		time.Sleep(d.burst.Sleep)
	}

	t0 := d.clk.Now()

	if !d.shedder.ShouldAdmit(e) {
		d.counters.Dropped++
		return nil
	}
	d.counters.Forwarded++

	matches, err := d.matcher.Process(e, d.shedder.CurrentCap())
	if err != nil {
		d.log.Errorw("matcher invariant violation", "event_id", e.ID, "error", err)
		return err
	}

	for _, m := range matches {
		d.counters.Matches++
		d.projections = append(d.projections, m.Projection())
		detectionMs := float64(m.DetectedAt.Sub(t0)) / float64(time.Millisecond)
		for _, sink := range d.sinks {
			if err := sink.Write(m, detectionMs); err != nil {
				return errors.Wrap(err, errors.CodeWriteFailed, "match sink write failed").
					WithContext("sink", sink.Name())
			}
		}
	}

	sample := float64(d.clk.Now().Sub(t0)) / float64(time.Millisecond)
	d.latencies = append(d.latencies, sample)
	d.shedder.Observe(sample)
	return nil
}

// Counters returns the counters accumulated so far.
func (d *Driver) Counters() model.Counters {
	c := d.counters
	c.Evicted = d.matcher.Index().Evicted()
	c.Pruned = d.matcher.Index().Pruned()
	return c
}

func (d *Driver) result(started time.Time) *Result {
	return &Result{
		RunID:       d.runID,
		Counters:    d.Counters(),
		Latencies:   d.latencies,
		Projections: d.projections,
		FinalCap:    d.shedder.CurrentCap(),
		Duration:    d.clk.Now().Sub(started),
	}
}
