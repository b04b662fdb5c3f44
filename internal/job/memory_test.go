package job

import (
	"context"
	"testing"
)

func seedStore() *MemoryStore {
	return NewMemoryStore(
		&Job{ID: 3, Crawled: true},
		&Job{ID: 1, Crawled: true},
		&Job{ID: 2, Crawled: false},
		&Job{ID: 4, Crawled: true, Merged: true},
		&Job{ID: 5, Crawled: false, Merged: true},
	)
}

func TestMemoryStore_FetchPending(t *testing.T) {
	store := seedStore()

	jobs, err := store.FetchPending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(jobs) != 2 {
		t.Fatalf("expected 2 pending jobs, got %d", len(jobs))
	}
	if jobs[0].ID != 1 || jobs[1].ID != 3 {
		t.Errorf("expected IDs [1 3] in order, got [%d %d]", jobs[0].ID, jobs[1].ID)
	}
}

func TestMemoryStore_FetchPending_ReturnsClones(t *testing.T) {
	store := seedStore()
	ctx := context.Background()

	jobs, _ := store.FetchPending(ctx)
	jobs[0].Merged = true

	again, _ := store.FetchPending(ctx)
	if len(again) != 2 {
		t.Error("modifying returned job should not affect store")
	}
}

func TestMemoryStore_MarkPublished(t *testing.T) {
	store := seedStore()
	ctx := context.Background()

	if err := store.MarkPublished(ctx, 1, "https://pub.example/v.mp4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	j, err := store.Get(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !j.Merged {
		t.Error("expected job to be merged")
	}
	if !j.Crawled {
		t.Error("expected crawled flag to be untouched")
	}
	if j.PublishedURL != "https://pub.example/v.mp4" {
		t.Errorf("unexpected URL %q", j.PublishedURL)
	}
	if j.ProcessedAt.IsZero() {
		t.Error("expected ProcessedAt to be stamped")
	}

	pending, _ := store.FetchPending(ctx)
	for _, p := range pending {
		if p.ID == 1 {
			t.Error("published job should no longer be pending")
		}
	}
}

func TestMemoryStore_MarkStale(t *testing.T) {
	store := seedStore()
	ctx := context.Background()

	if err := store.MarkStale(ctx, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	j, _ := store.Get(4)
	if j.Crawled {
		t.Error("expected crawled flag to be cleared")
	}
	if !j.Merged {
		t.Error("expected merged flag to be untouched")
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.MarkPublished(ctx, 99, "u"); err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if err := store.MarkStale(ctx, 99); err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if _, err := store.Get(99); err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}
