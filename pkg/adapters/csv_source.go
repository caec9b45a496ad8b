// Package adapters provides Source and MatchSink implementations for the
// streaming pipeline.
package adapters

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strconv"
	"time"

	"github.com/tripflow/tripflow/internal/model"
	"github.com/tripflow/tripflow/pkg/stream"
)

// Citibike trip CSV column positions.
const (
	colTripDuration = 0
	colStartTime    = 1
	colStopTime     = 2
	colStartStation = 3
	colEndStation   = 7
	colBikeID       = 11

	minTripColumns = 12
)

// Trip timestamp layouts, with and without a fractional part.
var tripTimeLayouts = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
}

// CSVSource reads citibike trip rows and emits events. Malformed rows
// (short rows, unparseable station/bike/timestamp fields, end before
// start) are dropped and counted; they never reach the driver.
type CSVSource struct {
	// MaxEvents stops after N emitted events; zero means no limit.
	MaxEvents int64

	// OnProgress, when set, is called every 1000 rows.
	OnProgress func(rows int64)

	skipped int64
	row     int64
}

// NewCSVSource creates a trip CSV source.
func NewCSVSource(maxEvents int64) *CSVSource {
	return &CSVSource{MaxEvents: maxEvents}
}

// Name returns "csv".
func (s *CSVSource) Name() string { return "csv" }

// Skipped returns the number of malformed rows dropped.
func (s *CSVSource) Skipped() int64 { return s.skipped }

// Read parses trip rows from r and emits events in file order. The first
// line is assumed to be the header.
func (s *CSVSource) Read(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	reader := bufio.NewReaderSize(r, 256*1024)

	// Header
	if _, err := reader.ReadBytes('\n'); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	s.row = 1

	var emitted int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if s.MaxEvents > 0 && emitted >= s.MaxEvents {
			return nil
		}

		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if len(line) == 0 && err == io.EOF {
			return nil
		}

		s.row++
		line = trimLineEnding(line)
		if len(line) == 0 {
			if err == io.EOF {
				return nil
			}
			continue
		}

		event, ok := ParseTripRow(line)
		if !ok {
			s.skipped++
		} else {
			event.ID = emitted
			emitted++
			select {
			case out <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if s.OnProgress != nil && s.row%1000 == 0 {
			s.OnProgress(s.row)
		}

		if err == io.EOF {
			return nil
		}
	}
}

// ParseTripRow maps one data row to an event. Station IDs may carry a
// trailing ".0" in some exports, so they parse through float.
func ParseTripRow(line []byte) (*model.Event, bool) {
	fields := parseLine(line, ',', '"')
	if len(fields) < minTripColumns {
		return nil, false
	}

	startTime, ok := parseTripTime(fields[colStartTime])
	if !ok {
		return nil, false
	}
	endTime, ok := parseTripTime(fields[colStopTime])
	if !ok {
		return nil, false
	}
	if endTime < startTime {
		return nil, false
	}

	startLoc, ok := parseStation(fields[colStartStation])
	if !ok {
		return nil, false
	}
	endLoc, ok := parseStation(fields[colEndStation])
	if !ok {
		return nil, false
	}

	bikeID, err := strconv.ParseInt(string(bytes.TrimSpace(fields[colBikeID])), 10, 64)
	if err != nil {
		return nil, false
	}

	return &model.Event{
		BikeID:    bikeID,
		StartLoc:  startLoc,
		EndLoc:    endLoc,
		StartTime: startTime,
		EndTime:   endTime,
	}, true
}

func parseTripTime(field []byte) (int64, bool) {
	v := string(bytes.TrimSpace(field))
	for _, layout := range tripTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

func parseStation(field []byte) (int64, bool) {
	v := string(bytes.TrimSpace(field))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

// parseLine splits a CSV line on the delimiter, honoring quoted fields.
func parseLine(line []byte, delimiter, quote byte) [][]byte {
	var fields [][]byte
	start := 0
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case quote:
			inQuote = !inQuote
		case delimiter:
			if !inQuote {
				fields = append(fields, unquote(line[start:i], quote))
				start = i + 1
			}
		}
	}
	fields = append(fields, unquote(line[start:], quote))
	return fields
}

func unquote(field []byte, quote byte) []byte {
	if len(field) >= 2 && field[0] == quote && field[len(field)-1] == quote {
		return field[1 : len(field)-1]
	}
	return field
}

func trimLineEnding(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

var _ stream.Source = (*CSVSource)(nil)
