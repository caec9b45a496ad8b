package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/tripflow/tripflow/internal/model"
	"github.com/tripflow/tripflow/pkg/errors"
)

func testBaseline(key string) *Baseline {
	return &Baseline{
		Key:           key,
		InputPath:     "trips.csv",
		TargetEndLocs: []int64{426, 3002, 462},
		WindowSeconds: 3600,
		MaxKleene:     3,
		CreatedAt:     time.Date(2018, 4, 27, 8, 0, 0, 0, time.UTC),
		Projections: []model.Projection{
			{A1Start: 1, LastAEnd: 2, BEnd: 9},
			{A1Start: 2, LastAEnd: 3, BEnd: 9},
		},
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	b := testBaseline("abc123")
	if err := store.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx, "abc123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.InputPath != b.InputPath || loaded.WindowSeconds != b.WindowSeconds {
		t.Errorf("loaded = %+v", loaded)
	}
	if len(loaded.Projections) != 2 || loaded.Projections[0] != b.Projections[0] {
		t.Errorf("projections = %+v", loaded.Projections)
	}

	keys, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 || keys[0] != "abc123" {
		t.Errorf("keys = %v", keys)
	}

	if err := store.Delete(ctx, "abc123"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx, "abc123"); !errors.IsCode(err, errors.CodeStoreNotFound) {
		t.Errorf("expected not-found after delete, got %v", err)
	}
}

func TestLocalStoreOverwrites(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	b := testBaseline("k")
	if err := store.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b.Projections = b.Projections[:1]
	if err := store.Save(ctx, b); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	loaded, err := store.Load(ctx, "k")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Projections) != 1 {
		t.Errorf("projections = %d, want 1 after overwrite", len(loaded.Projections))
	}
}

func TestKeyForIsStable(t *testing.T) {
	k1 := KeyFor("trips.csv", []int64{426, 3002, 462}, 3600, 3)
	k2 := KeyFor("trips.csv", []int64{462, 426, 3002}, 3600, 3)
	if k1 != k2 {
		t.Errorf("key depends on target order: %s vs %s", k1, k2)
	}

	k3 := KeyFor("trips.csv", []int64{426}, 3600, 3)
	if k1 == k3 {
		t.Error("different target sets must not collide")
	}
	if len(k1) != 16 {
		t.Errorf("key length = %d, want 16", len(k1))
	}
}
