package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func newSQLiteStore(t *testing.T) *SQLiteAdapter {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := NewSQLiteAdapter(db)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestSQLiteAdapter_EventStore(t *testing.T) {
	testEventStore(t, newSQLiteStore(t), "co-sqlite")
}

func TestSQLiteAdapter_MigrateIsIdempotent(t *testing.T) {
	store := newSQLiteStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestSQLiteAdapter_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store := NewSQLiteAdapter(db)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	testEventStore(t, store, "co-file")
	db.Close()

	db, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	events, err := NewSQLiteAdapter(db).ListInventoryEvents(ctx, "co-file", 0)
	if err != nil {
		t.Fatalf("list after reopen: %v", err)
	}
	if len(events) != 4 {
		t.Errorf("expected 4 events after reopen, got %d", len(events))
	}
}
