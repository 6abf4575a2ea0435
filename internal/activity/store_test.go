package activity

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	s := New(db)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStore_AppendFillsDefaults(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	e := &Entry{ActionKind: ActionImageDetection, OriginalFilename: "slick.jpg"}
	if err := s.Append(ctx, e); err != nil {
		t.Fatal(err)
	}
	if e.ID == "" {
		t.Fatal("entry id not generated")
	}
	if e.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
	if e.Date == "" || e.Time == "" || e.Day == "" {
		t.Fatalf("date fields not filled: %q %q %q", e.Date, e.Time, e.Day)
	}
	if e.DetectionDetails != "[]" || e.Statistics != "{}" {
		t.Fatalf("serialized defaults: %q %q", e.DetectionDetails, e.Statistics)
	}
	if e.Seq != 1 {
		t.Fatalf("seq: got %d, want 1", e.Seq)
	}
}

func TestStore_MAppendsMReadableRows(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	const m = 7
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for i := 0; i < m; i++ {
		e := &Entry{
			ActionKind:       ActionVideoDetection,
			OriginalFilename: fmt.Sprintf("clip-%d.mp4", i),
			TotalDetections:  i,
			Timestamp:        base.Add(time.Duration(i) * time.Second),
		}
		if err := s.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != m {
		t.Fatalf("got %d rows, want %d", len(entries), m)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq <= entries[i-1].Seq {
			t.Fatal("seq not strictly increasing")
		}
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			t.Fatal("timestamps not increasing")
		}
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity_log.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Append(ctx, &Entry{ActionKind: ActionImageDetection}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Cold start: previously appended rows are all there.
	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	entries, err := s2.List(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d rows after reopen, want 3", len(entries))
	}

	// And appends keep extending the same sequence.
	e := &Entry{ActionKind: ActionImageDetection}
	if err := s2.Append(ctx, e); err != nil {
		t.Fatal(err)
	}
	if e.Seq != 4 {
		t.Fatalf("seq after reopen: got %d, want 4", e.Seq)
	}
}

func TestStore_ListFilter(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	kinds := []string{
		ActionImageDetection, ActionVideoDetection,
		ActionImageDetection, ActionReport,
	}
	for _, k := range kinds {
		if err := s.Append(ctx, &Entry{ActionKind: k}); err != nil {
			t.Fatal(err)
		}
	}

	images, err := s.List(ctx, Filter{ActionKind: ActionImageDetection})
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 2 {
		t.Fatalf("filtered: got %d, want 2", len(images))
	}

	limited, err := s.List(ctx, Filter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit: got %d, want 1", len(limited))
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity_log.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	const workers = 8
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			e := &Entry{ActionKind: ActionVideoDetection, TotalDetections: n}
			if err := s.Append(ctx, e); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != workers {
		t.Fatalf("count: got %d, want %d", count, workers)
	}
}
