package baseline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/tripflow/tripflow/pkg/errors"
)

// LocalStore keeps baselines as JSON files in a directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreInit, "failed to create baseline dir").
			WithContext("dir", dir)
	}
	return &LocalStore{dir: dir}, nil
}

// Name returns "local".
func (s *LocalStore) Name() string { return "local" }

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Save writes the baseline atomically via a temp file rename.
func (s *LocalStore) Save(_ context.Context, b *Baseline) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to marshal baseline")
	}
	tmp := s.path(b.Key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to write baseline").
			WithContext("path", tmp)
	}
	if err := os.Rename(tmp, s.path(b.Key)); err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to finalize baseline").
			WithContext("path", s.path(b.Key))
	}
	return nil
}

// Load reads a baseline by key.
func (s *LocalStore) Load(_ context.Context, key string) (*Baseline, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeStoreNotFound, "baseline not found").
				WithContext("key", key)
		}
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "failed to read baseline").
			WithContext("key", key)
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "failed to decode baseline").
			WithContext("key", key)
	}
	return &b, nil
}

// Delete removes a baseline file.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to delete baseline").
			WithContext("key", key)
	}
	return nil
}

// List returns all stored baseline keys.
func (s *LocalStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "failed to list baselines").
			WithContext("dir", s.dir)
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}
	return keys, nil
}

var _ Store = (*LocalStore)(nil)
