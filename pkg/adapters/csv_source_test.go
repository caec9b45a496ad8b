package adapters

import (
	"context"
	"strings"
	"testing"

	"github.com/tripflow/tripflow/internal/model"
)

const tripHeader = "tripduration,starttime,stoptime,start station id,start station name,start station latitude,start station longitude,end station id,end station name,end station latitude,end station longitude,bikeid,usertype,birth year,gender\n"

func readAll(t *testing.T, src *CSVSource, input string) []*model.Event {
	t.Helper()
	out := make(chan *model.Event, 128)
	done := make(chan error, 1)
	go func() {
		done <- src.Read(context.Background(), strings.NewReader(input), out)
		close(out)
	}()

	var events []*model.Event
	for e := range out {
		events = append(events, e)
	}
	if err := <-done; err != nil {
		t.Fatalf("Read: %v", err)
	}
	return events
}

func TestCSVSourceParsesTrips(t *testing.T) {
	input := tripHeader +
		`600,2018-04-27 08:00:00.000,2018-04-27 08:10:00.000,100,Station 100,40.75,-73.99,200,Station 200,40.75,-73.99,31956,Subscriber,1990,1` + "\n" +
		`900,2018-04-27 08:15:00,2018-04-27 08:30:00,200.0,"Broadway, W 41 St",40.75,-73.99,426,Station 426,40.75,-73.99,31956,Customer,1985,2` + "\n"

	src := NewCSVSource(0)
	events := readAll(t, src, input)

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if src.Skipped() != 0 {
		t.Errorf("skipped = %d, want 0", src.Skipped())
	}

	e := events[0]
	if e.BikeID != 31956 || e.StartLoc != 100 || e.EndLoc != 200 {
		t.Errorf("event 0 = %+v", e)
	}
	if e.EndTime-e.StartTime != 600 {
		t.Errorf("duration = %d, want 600", e.EndTime-e.StartTime)
	}

	// Station "200.0" and the quoted name field both parse.
	if events[1].StartLoc != 200 || events[1].EndLoc != 426 {
		t.Errorf("event 1 = %+v", events[1])
	}
	if events[1].StartTime != e.StartTime+900 {
		t.Errorf("start time gap = %d, want 900", events[1].StartTime-e.StartTime)
	}
}

func TestCSVSourceSkipsMalformedRows(t *testing.T) {
	input := tripHeader +
		`600,2018-04-27 08:00:00,2018-04-27 08:10:00,100,S,40.75,-73.99,200,S,40.75,-73.99,1,Subscriber,1990,1` + "\n" +
		`short,row` + "\n" +
		`600,not-a-time,2018-04-27 08:10:00,100,S,40.75,-73.99,200,S,40.75,-73.99,1,Subscriber,1990,1` + "\n" +
		`600,2018-04-27 08:20:00,2018-04-27 08:10:00,100,S,40.75,-73.99,200,S,40.75,-73.99,1,Subscriber,1990,1` + "\n" + // end before start
		`600,2018-04-27 08:30:00,2018-04-27 08:40:00,,S,40.75,-73.99,200,S,40.75,-73.99,1,Subscriber,1990,1` + "\n" // empty station

	src := NewCSVSource(0)
	events := readAll(t, src, input)

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if src.Skipped() != 4 {
		t.Errorf("skipped = %d, want 4", src.Skipped())
	}
}

func TestCSVSourceMaxEvents(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(tripHeader)
	for i := 0; i < 10; i++ {
		sb.WriteString(`600,2018-04-27 08:00:00,2018-04-27 08:10:00,100,S,40.75,-73.99,200,S,40.75,-73.99,1,Subscriber,1990,1` + "\n")
	}

	src := NewCSVSource(3)
	events := readAll(t, src, sb.String())
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	for i, e := range events {
		if e.ID != int64(i) {
			t.Errorf("event %d ID = %d", i, e.ID)
		}
	}
}

func TestCSVSourceEmptyFile(t *testing.T) {
	src := NewCSVSource(0)
	events := readAll(t, src, "")
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
}
