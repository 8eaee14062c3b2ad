package papers

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spin-glass/papers-rag-agent/internal/arxiv"
	"github.com/spin-glass/papers-rag-agent/internal/db"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	database, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.Migrate(context.Background(), database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(database)
}

func TestUpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	published := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	stored, err := store.Upsert(ctx, Paper{
		ID:        "2401.00001",
		Title:     "Corrective Retrieval",
		URL:       "http://arxiv.org/abs/2401.00001",
		Summary:   "We study retrieval correction loops.",
		Authors:   []string{"Ada Example", "Lin Sample"},
		Published: published,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stored.ID != "2401.00001" {
		t.Errorf("ID = %q", stored.ID)
	}

	got, err := store.Get(ctx, "2401.00001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Corrective Retrieval" {
		t.Errorf("Title = %q", got.Title)
	}
	if len(got.Authors) != 2 || got.Authors[1] != "Lin Sample" {
		t.Errorf("Authors = %v", got.Authors)
	}
	if !got.Published.Equal(published) {
		t.Errorf("Published = %v, want %v", got.Published, published)
	}
}

func TestUpsertUpdatesExistingRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, Paper{ID: "p1", Title: "Old Title"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := store.Upsert(ctx, Paper{ID: "p1", Title: "New Title", Summary: "updated"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	got, err := store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "New Title" || got.Summary != "updated" {
		t.Errorf("got %+v", got)
	}
}

func TestUpsertGeneratesIDWhenMissing(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.Upsert(context.Background(), Paper{Title: "Seeded Paper"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stored.ID == "" {
		t.Error("generated ID should not be empty")
	}
}

func TestUpsertRejectsEmptyTitle(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Upsert(context.Background(), Paper{ID: "p1"}); err == nil {
		t.Fatal("want error for empty title")
	}
}

func TestGetMissingPaper(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertSearchResultsAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	results := []arxiv.Paper{
		{ID: "2401.00001", Title: "Newest", Published: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{ID: "2401.00002", Title: "Oldest", Published: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	stored, err := store.UpsertSearchResults(ctx, results)
	if err != nil {
		t.Fatalf("UpsertSearchResults: %v", err)
	}
	if stored != 2 {
		t.Fatalf("stored = %d, want 2", stored)
	}

	listed, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("got %d papers, want 2", len(listed))
	}
	if listed[0].Title != "Newest" {
		t.Errorf("first paper = %q, want Newest", listed[0].Title)
	}
}
