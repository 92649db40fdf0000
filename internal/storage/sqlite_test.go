package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazz-dev/watchdog/internal/storage"
)

func openTestDB(t *testing.T) storage.Store {
	t.Helper()
	db, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLite(t *testing.T) {
	runStoreSuite(t, openTestDB)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchdog.db")
	ctx := context.Background()

	db, err := storage.OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	tgt := mustUpsert(t, db, "https://example.com")
	if err := db.AppendResult(ctx, failureResult(tgt.ID, time.Now(), "timeout")); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = storage.OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer db.Close()

	again := mustUpsert(t, db, "https://example.com")
	if again.ID != tgt.ID {
		t.Errorf("expected id %q after reopen, got %q", tgt.ID, again.ID)
	}
	results, err := db.ResultsSince(ctx, tgt.ID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result after reopen, got %d", len(results))
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := storage.Open(context.Background(), storage.Options{Driver: "mysql"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestOpen_DefaultsToSQLite(t *testing.T) {
	s, err := storage.Open(context.Background(), storage.Options{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*storage.SQLite); !ok {
		t.Errorf("expected *storage.SQLite, got %T", s)
	}
}
