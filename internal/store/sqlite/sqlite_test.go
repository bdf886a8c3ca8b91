package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/botherd/botherd/internal/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "botherd.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return db
}

func TestPutGetDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := store.Record{
		BotID:     "w1",
		PID:       4321,
		Command:   "botherd worker --id w1",
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := db.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := db.Get(ctx, "w1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PID != rec.PID || got.Command != rec.Command || !got.StartedAt.Equal(rec.StartedAt) {
		t.Fatalf("record mismatch: got %+v want %+v", got, rec)
	}

	if err := db.Delete(ctx, "w1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Get(ctx, "w1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting a missing record is not an error.
	if err := db.Delete(ctx, "w1"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestPutReplacesExisting(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := store.Record{BotID: "w1", PID: 100, Command: "a", StartedAt: time.Now().UTC()}
	second := store.Record{BotID: "w1", PID: 200, Command: "b", StartedAt: time.Now().UTC()}
	if err := db.Put(ctx, first); err != nil {
		t.Fatalf("Put first: %v", err)
	}
	if err := db.Put(ctx, second); err != nil {
		t.Fatalf("Put second: %v", err)
	}
	got, err := db.Get(ctx, "w1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PID != 200 || got.Command != "b" {
		t.Fatalf("record not replaced: %+v", got)
	}
	recs, err := db.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected single record, got %d", len(recs))
	}
}

func TestListOrdered(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		if err := db.Put(ctx, store.Record{BotID: id, PID: 1, Command: "x", StartedAt: time.Now()}); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}
	recs, err := db.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 3 || recs[0].BotID != "a" || recs[2].BotID != "c" {
		t.Fatalf("unexpected listing: %+v", recs)
	}
}
