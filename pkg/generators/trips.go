// Package generators produces synthetic trip streams for benchmarks and
// sanity tests. Streams are seeded and monotonically non-decreasing in
// start time, so runs over generated data are reproducible.
package generators

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/tripflow/tripflow/internal/model"
)

// TripGenerator emits a mixture of chained hot paths toward target
// stations, plain noise trips, broken chains, and window violators.
type TripGenerator struct {
	rng *rand.Rand

	// Targets are the hot-path end stations closing chains.
	Targets []int64

	// Stations is the pool for non-target locations.
	Stations []int64

	// Bikes is the pool of correlation keys.
	Bikes []int64

	// ExtendProb is the chance that the next event extends an open chain
	// rather than starting a fresh one.
	ExtendProb float64

	// CloseProb is the chance an extension closes the chain at a target.
	CloseProb float64

	// StepSeconds is the mean logical gap between consecutive trips.
	StepSeconds int64
}

type openChain struct {
	bike    int64
	lastEnd int64
	length  int
}

// New creates a generator with the study's defaults.
func New(seed int64, targets []int64) *TripGenerator {
	stations := make([]int64, 0, 40)
	for i := int64(100); i < 500; i += 10 {
		stations = append(stations, i)
	}
	bikes := make([]int64, 0, 25)
	for i := int64(1); i <= 25; i++ {
		bikes = append(bikes, i)
	}
	return &TripGenerator{
		rng:         rand.New(rand.NewSource(seed)),
		Targets:     targets,
		Stations:    stations,
		Bikes:       bikes,
		ExtendProb:  0.55,
		CloseProb:   0.3,
		StepSeconds: 45,
	}
}

// Generate produces n events with monotonically non-decreasing start
// times. Chains interleave across bikes the way real trip feeds do.
func (g *TripGenerator) Generate(n int) []*model.Event {
	events := make([]*model.Event, 0, n)
	open := make(map[int64]*openChain)
	now := time.Date(2018, 4, 27, 8, 0, 0, 0, time.UTC).Unix()

	for i := 0; i < n; i++ {
		now += 1 + g.rng.Int63n(g.StepSeconds*2)
		duration := 60 + g.rng.Int63n(20*60)

		var e *model.Event
		if ch := g.pickOpen(open); ch != nil && g.rng.Float64() < g.ExtendProb {
			end := g.station()
			if g.rng.Float64() < g.CloseProb {
				end = g.target()
			}
			e = &model.Event{
				BikeID:    ch.bike,
				StartLoc:  ch.lastEnd,
				EndLoc:    end,
				StartTime: now,
				EndTime:   now + duration,
			}
			ch.lastEnd = end
			ch.length++
			if ch.length >= 5 {
				delete(open, ch.bike)
			}
		} else {
			bike := g.Bikes[g.rng.Intn(len(g.Bikes))]
			start := g.station()
			end := g.station()
			e = &model.Event{
				BikeID:    bike,
				StartLoc:  start,
				EndLoc:    end,
				StartTime: now,
				EndTime:   now + duration,
			}
			open[bike] = &openChain{bike: bike, lastEnd: end, length: 1}
		}
		e.ID = int64(i)
		events = append(events, e)
	}
	return events
}

func (g *TripGenerator) pickOpen(open map[int64]*openChain) *openChain {
	if len(open) == 0 {
		return nil
	}
	// Deterministic pick: lowest bike id among open chains.
	var best *openChain
	for _, ch := range open {
		if best == nil || ch.bike < best.bike {
			best = ch
		}
	}
	return best
}

func (g *TripGenerator) station() int64 {
	return g.Stations[g.rng.Intn(len(g.Stations))]
}

func (g *TripGenerator) target() int64 {
	return g.Targets[g.rng.Intn(len(g.Targets))]
}

// WriteCSV renders events as citibike trip rows with the standard
// header, suitable as input for the csv source.
func WriteCSV(w io.Writer, events []*model.Event) error {
	cw := csv.NewWriter(w)
	header := []string{
		"tripduration", "starttime", "stoptime",
		"start station id", "start station name", "start station latitude", "start station longitude",
		"end station id", "end station name", "end station latitude", "end station longitude",
		"bikeid", "usertype", "birth year", "gender",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	const layout = "2006-01-02 15:04:05.000"
	for _, e := range events {
		row := []string{
			fmt.Sprintf("%d", e.Duration()),
			time.Unix(e.StartTime, 0).UTC().Format(layout),
			time.Unix(e.EndTime, 0).UTC().Format(layout),
			fmt.Sprintf("%d", e.StartLoc),
			fmt.Sprintf("Station %d", e.StartLoc),
			"40.75", "-73.99",
			fmt.Sprintf("%d", e.EndLoc),
			fmt.Sprintf("Station %d", e.EndLoc),
			"40.75", "-73.99",
			fmt.Sprintf("%d", e.BikeID),
			"Subscriber", "1990", "1",
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
