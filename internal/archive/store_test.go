package archive_test

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/saveenergy/openquantile/internal/archive"
	"github.com/saveenergy/openquantile/pkg/types"
)

func tempStore(t *testing.T, maxRows int) (*archive.Store, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "archive.db")
	s, err := archive.New(dbPath, maxRows)
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	return s, dbPath
}

func float(v float64) *float64 { return &v }

func TestStoreSaveAndGet(t *testing.T) {
	store, _ := tempStore(t, 100)
	defer store.Close()

	sum := types.Summary{
		Timer:       "db.select",
		Layout:      "EXPONENTIAL",
		Min:         1000,
		Max:         1000000,
		BucketCount: 4,
		Total:       42,
		Underflow:   1,
		Overflow:    2,
		Median:      float(12345.5),
	}
	id, err := store.Save(sum)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(id) != 36 {
		t.Fatalf("expected uuid ID, got %q", id)
	}

	got, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.ID != id || got.Timer != "db.select" || got.Layout != "EXPONENTIAL" {
		t.Errorf("identity = %q/%q/%q, want %q/db.select/EXPONENTIAL", got.ID, got.Timer, got.Layout, id)
	}
	if got.Min != 1000 || got.Max != 1000000 || got.BucketCount != 4 {
		t.Errorf("bounds = [%d, %d) x%d, want [1000, 1000000) x4", got.Min, got.Max, got.BucketCount)
	}
	if got.Total != 42 || got.Underflow != 1 || got.Overflow != 2 {
		t.Errorf("counts = %d/%d/%d, want 42/1/2", got.Total, got.Underflow, got.Overflow)
	}
	if got.Median == nil || *got.Median != 12345.5 {
		t.Errorf("median = %v, want 12345.5", got.Median)
	}
	if got.P90 != nil {
		t.Errorf("p90 = %v, want nil", *got.P90)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should be set")
	}
}

func TestStoreGetNotFound(t *testing.T) {
	store, _ := tempStore(t, 100)
	defer store.Close()

	got, err := store.Get("00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing ID, got %+v", got)
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	store, _ := tempStore(t, 100)
	defer store.Close()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		for _, timer := range []string{"a", "b"} {
			_, err := store.Save(types.Summary{
				Timer:     timer,
				Layout:    "LINEAR",
				Total:     uint64(i),
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
		}
	}

	got, err := store.List("a", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, sum := range got {
		if sum.Timer != "a" {
			t.Fatalf("row %d timer = %q, want a", i, sum.Timer)
		}
		if want := uint64(2 - i); sum.Total != want {
			t.Fatalf("row %d total = %d, want %d", i, sum.Total, want)
		}
	}

	all, err := store.List("", 4)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len = %d, want 4", len(all))
	}
}

func TestStoreTrimToMax(t *testing.T) {
	store, dbPath := tempStore(t, 3)

	for i := 0; i < 5; i++ {
		if _, err := store.Save(types.Summary{Timer: fmt.Sprintf("t%d", i), Layout: "LINEAR"}); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
	store.Close()

	// Reopen so the startup cleanup trims to max.
	store, err := archive.New(dbPath, 3)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	got, err := store.List("", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len after trim = %d, want 3", len(got))
	}
	if got[0].Timer != "t4" || got[2].Timer != "t2" {
		t.Fatalf("kept %q..%q, want newest t4..t2", got[0].Timer, got[2].Timer)
	}
}

func TestStoreExpiresOldSummaries(t *testing.T) {
	store, dbPath := tempStore(t, 0)

	if _, err := store.Save(types.Summary{Timer: "old", Layout: "LINEAR", CreatedAt: time.Now().Add(-60 * 24 * time.Hour)}); err != nil {
		t.Fatalf("Save old: %v", err)
	}
	if _, err := store.Save(types.Summary{Timer: "new", Layout: "LINEAR"}); err != nil {
		t.Fatalf("Save new: %v", err)
	}
	store.Close()

	store, err := archive.New(dbPath, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	got, err := store.List("", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].Timer != "new" {
		t.Fatalf("summaries = %+v, want only the recent one", got)
	}
}

func TestStoreRetentionOption(t *testing.T) {
	store, dbPath := tempStore(t, 0)
	if _, err := store.Save(types.Summary{Timer: "stale", Layout: "LINEAR", CreatedAt: time.Now().Add(-2 * time.Hour)}); err != nil {
		t.Fatalf("Save stale: %v", err)
	}
	if _, err := store.Save(types.Summary{Timer: "fresh", Layout: "LINEAR"}); err != nil {
		t.Fatalf("Save fresh: %v", err)
	}
	store.Close()

	store, err := archive.New(dbPath, 0, archive.WithRetention(0))
	if err != nil {
		t.Fatalf("reopen with default retention: %v", err)
	}
	if got, _ := store.List("", 10); len(got) != 2 {
		t.Fatalf("default retention kept %d summaries, want 2", len(got))
	}
	store.Close()

	store, err = archive.New(dbPath, 0, archive.WithRetention(time.Hour))
	if err != nil {
		t.Fatalf("reopen with 1h retention: %v", err)
	}
	defer store.Close()
	got, err := store.List("", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].Timer != "fresh" {
		t.Fatalf("summaries = %+v, want only fresh", got)
	}
}

func TestStoreCloseIsIdempotent(t *testing.T) {
	store, _ := tempStore(t, 10)
	store.Close()
	store.Close()
}
