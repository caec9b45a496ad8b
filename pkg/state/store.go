// Package state provides persistent storage for run history. Each
// completed run's configuration, counters, and latency summary is
// recorded so sweeps can be compared after the fact.
package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/tripflow/tripflow/pkg/errors"
)

// Store manages run history in an embedded DuckDB database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// RunRecord captures one completed run.
type RunRecord struct {
	ID              string    `json:"id"`
	InputPath       string    `json:"input_path"`
	Mode            string    `json:"mode"`
	TargetLatencyMs float64   `json:"target_latency_ms"`
	BaseDropProb    float64   `json:"base_drop_prob"`
	Seed            int64     `json:"seed"`
	WindowSeconds   int64     `json:"window_seconds"`
	MaxKleene       int       `json:"max_kleene"`
	FinalCap        int       `json:"final_cap"`
	Ingested        int64     `json:"ingested"`
	Forwarded       int64     `json:"forwarded"`
	Dropped         int64     `json:"dropped"`
	Malformed       int64     `json:"malformed"`
	Matches         int64     `json:"matches"`
	Evicted         int64     `json:"evicted"`
	Pruned          int64     `json:"pruned"`
	Recall          float64   `json:"recall"`
	P50Ms           float64   `json:"p50_ms"`
	P95Ms           float64   `json:"p95_ms"`
	DurationMs      int64     `json:"duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewStore opens (or creates) the history database.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.CodeStoreInit, "failed to create history dir").
				WithContext("dir", dir)
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreInit, "failed to open history database").
			WithContext("path", dbPath)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// migrate runs database migrations.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			input_path TEXT NOT NULL,
			mode TEXT NOT NULL,
			target_latency_ms DOUBLE,
			base_drop_prob DOUBLE,
			seed BIGINT,
			window_seconds BIGINT,
			max_kleene INTEGER,
			final_cap INTEGER,
			ingested BIGINT,
			forwarded BIGINT,
			dropped BIGINT,
			malformed BIGINT,
			matches BIGINT,
			evicted BIGINT,
			pruned BIGINT,
			recall DOUBLE,
			p50_ms DOUBLE,
			p95_ms DOUBLE,
			duration_ms BIGINT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_mode ON runs(mode)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return errors.Wrap(err, errors.CodeStoreInit, "history migration failed")
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun inserts a run record.
func (s *Store) RecordRun(r *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO runs (
			id, input_path, mode, target_latency_ms, base_drop_prob, seed,
			window_seconds, max_kleene, final_cap,
			ingested, forwarded, dropped, malformed, matches, evicted, pruned,
			recall, p50_ms, p95_ms, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.InputPath, r.Mode, r.TargetLatencyMs, r.BaseDropProb, r.Seed,
		r.WindowSeconds, r.MaxKleene, r.FinalCap,
		r.Ingested, r.Forwarded, r.Dropped, r.Malformed, r.Matches, r.Evicted, r.Pruned,
		r.Recall, r.P50Ms, r.P95Ms, r.DurationMs, r.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to record run").
			WithContext("run_id", r.ID)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, input_path, mode, target_latency_ms, base_drop_prob, seed,
		       window_seconds, max_kleene, final_cap,
		       ingested, forwarded, dropped, malformed, matches, evicted, pruned,
		       recall, p50_ms, p95_ms, duration_ms, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "failed to list runs")
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetRun returns one run by ID.
func (s *Store) GetRun(id string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, input_path, mode, target_latency_ms, base_drop_prob, seed,
		       window_seconds, max_kleene, final_cap,
		       ingested, forwarded, dropped, malformed, matches, evicted, pruned,
		       recall, p50_ms, p95_ms, duration_ms, created_at
		FROM runs WHERE id = ?
	`, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "failed to query run").
			WithContext("run_id", id)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errors.New(errors.CodeStoreNotFound, "run not found").
			WithContext("run_id", id)
	}
	return scanRun(rows)
}

func scanRun(rows *sql.Rows) (*RunRecord, error) {
	var r RunRecord
	err := rows.Scan(
		&r.ID, &r.InputPath, &r.Mode, &r.TargetLatencyMs, &r.BaseDropProb, &r.Seed,
		&r.WindowSeconds, &r.MaxKleene, &r.FinalCap,
		&r.Ingested, &r.Forwarded, &r.Dropped, &r.Malformed, &r.Matches, &r.Evicted, &r.Pruned,
		&r.Recall, &r.P50Ms, &r.P95Ms, &r.DurationMs, &r.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "failed to scan run row")
	}
	return &r, nil
}
