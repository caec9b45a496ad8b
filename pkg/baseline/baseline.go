// Package baseline persists unshed baseline projection sets so later
// shedding runs can be scored for recall. Backends: local filesystem,
// Redis for low-latency shared access, S3 for fleet-shared baselines.
package baseline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/tripflow/tripflow/internal/model"
)

// Baseline is a stored projection set together with the pattern
// configuration that produced it. A baseline is only comparable to runs
// over the same input and pattern.
type Baseline struct {
	Key           string             `json:"key"`
	InputPath     string             `json:"input_path"`
	TargetEndLocs []int64            `json:"target_end_locs"`
	WindowSeconds int64              `json:"window_seconds"`
	MaxKleene     int                `json:"max_kleene"`
	CreatedAt     time.Time          `json:"created_at"`
	Projections   []model.Projection `json:"projections"`
}

// KeyFor derives a stable baseline key from input path and pattern
// configuration, so re-running baseline for the same setup overwrites
// rather than accumulates.
func KeyFor(inputPath string, targets []int64, windowSeconds int64, maxKleene int) string {
	sorted := append([]int64(nil), targets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	h := sha256.New()
	fmt.Fprintf(h, "%s|%v|%d|%d", inputPath, sorted, windowSeconds, maxKleene)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Store is the interface for baseline persistence backends.
type Store interface {
	// Save persists a baseline, overwriting any previous one for its key.
	Save(ctx context.Context, b *Baseline) error

	// Load retrieves a baseline by key.
	Load(ctx context.Context, key string) (*Baseline, error)

	// Delete removes a baseline.
	Delete(ctx context.Context, key string) error

	// List returns the keys of all stored baselines.
	List(ctx context.Context) ([]string, error)

	// Name returns the backend name for logging.
	Name() string
}
