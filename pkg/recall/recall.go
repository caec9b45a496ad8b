// Package recall computes recall of a run's projection set against an
// unshed baseline. Not on the hot path.
package recall

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/tripflow/tripflow/internal/model"
	"github.com/tripflow/tripflow/pkg/errors"
)

// Set is a projection set compared by exact tuple equality.
type Set map[model.Projection]struct{}

// NewSet builds a set from a projection list, deduplicating.
func NewSet(ps []model.Projection) Set {
	s := make(Set, len(ps))
	for _, p := range ps {
		s[p] = struct{}{}
	}
	return s
}

// Contains reports membership.
func (s Set) Contains(p model.Projection) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the set's projections in lexicographic order.
func (s Set) Sorted() []model.Projection {
	out := make([]model.Projection, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Recall returns |run ∩ baseline| / |baseline|. An empty baseline has
// nothing to miss, so recall is 1.0.
func Recall(baseline, run Set) float64 {
	if len(baseline) == 0 {
		return 1.0
	}
	hit := 0
	for p := range baseline {
		if run.Contains(p) {
			hit++
		}
	}
	return float64(hit) / float64(len(baseline))
}

// WriteCSV persists a projection set with the standard header, rows
// deduplicated and sorted for stable diffs.
func WriteCSV(path string, ps []model.Projection) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.CodeWriteFailed, "failed to create projection dir").
				WithContext("dir", dir)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to create projection file").
			WithContext("path", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"a1_start", "last_a_end", "b_end"}); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to write projection header")
	}
	for _, p := range NewSet(ps).Sorted() {
		row := []string{
			strconv.FormatInt(p.A1Start, 10),
			strconv.FormatInt(p.LastAEnd, 10),
			strconv.FormatInt(p.BEnd, 10),
		}
		if err := w.Write(row); err != nil {
			return errors.Wrap(err, errors.CodeWriteFailed, "failed to write projection row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to flush projections")
	}
	return nil
}

// ReadCSV loads a projection set written by WriteCSV.
func ReadCSV(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeReadFailed, "failed to open projection file").
			WithContext("path", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeReadFailed, "failed to parse projection file").
			WithContext("path", path)
	}

	set := make(Set)
	for i, row := range rows {
		if i == 0 || len(row) < 3 {
			continue
		}
		var vals [3]int64
		ok := true
		for j := 0; j < 3; j++ {
			v, err := strconv.ParseInt(row[j], 10, 64)
			if err != nil {
				ok = false
				break
			}
			vals[j] = v
		}
		if !ok {
			continue
		}
		set[model.Projection{A1Start: vals[0], LastAEnd: vals[1], BEnd: vals[2]}] = struct{}{}
	}
	return set, nil
}
