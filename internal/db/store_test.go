package db

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jwulff/sensorwatch/internal/sensor"
	_ "modernc.org/sqlite"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// createTestDB creates an in-memory SQLite database with the readings schema.
func createTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

// createFileDB creates an on-disk database and returns a writable handle
// plus its path, so a read-only Store can watch another connection's writes.
func createFileDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "readings.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db, path
}

func insert(t *testing.T, db *sql.DB, id, channel string, ts, value any) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO readings (id, channel, timestamp, value) VALUES (?, ?, ?, ?)`,
		id, channel, ts, value); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}

func TestSnapshotFor(t *testing.T) {
	rawDB := createTestDB(t)
	defer rawDB.Close()

	insert(t, rawDB, "r1", "ph", 1000.0, 7.1)
	insert(t, rawDB, "r2", "ph", 500.0, 6.9)
	insert(t, rawDB, "r3", "tds", 500.0, 420.0)

	store := newStore(rawDB, 0, quiet)

	snap, err := store.SnapshotFor(context.Background(), "ph")
	if err != nil {
		t.Fatalf("SnapshotFor: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("got %d entries, want 2", len(snap))
	}
	if got := *snap["r2"].Value; got != 6.9 {
		t.Errorf("r2 value = %v, want 6.9", got)
	}

	readings, err := sensor.NewNormalizer(time.UTC, "").Normalize(snap)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if readings[0].Timestamp != 500 || readings[1].Timestamp != 1000 {
		t.Errorf("order = %v, %v; want 500, 1000", readings[0].Timestamp, readings[1].Timestamp)
	}
}

func TestSnapshotForEmpty(t *testing.T) {
	rawDB := createTestDB(t)
	defer rawDB.Close()

	store := newStore(rawDB, 0, quiet)

	snap, err := store.SnapshotFor(context.Background(), "temperature")
	if err != nil {
		t.Fatalf("SnapshotFor: %v", err)
	}
	if snap == nil || len(snap) != 0 {
		t.Errorf("got %v, want empty non-nil snapshot", snap)
	}
}

func TestNullColumnsAreMissingFields(t *testing.T) {
	rawDB := createTestDB(t)
	defer rawDB.Close()

	insert(t, rawDB, "r1", "ph", 1000.0, nil)

	store := newStore(rawDB, 0, quiet)
	snap, err := store.SnapshotFor(context.Background(), "ph")
	if err != nil {
		t.Fatalf("SnapshotFor: %v", err)
	}
	if snap["r1"].Value != nil {
		t.Fatalf("value should be missing")
	}

	_, err = sensor.NewNormalizer(time.UTC, "").Normalize(snap)
	if !errors.Is(err, sensor.ErrMalformedSample) {
		t.Errorf("err = %v, want ErrMalformedSample", err)
	}
}

func TestSubscribeSeesCommits(t *testing.T) {
	writer, path := createFileDB(t)
	insert(t, writer, "r1", "ph", 10.0, 7.0)

	store, err := Open(path, 10*time.Millisecond, quiet)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	got := make(chan sensor.Snapshot, 8)
	cancel, err := store.Subscribe(context.Background(), "sensors/ph", func(s sensor.Snapshot) { got <- s })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	first := <-got
	if len(first) != 1 {
		t.Fatalf("initial snapshot has %d entries, want 1", len(first))
	}

	insert(t, writer, "r2", "ph", 20.0, 7.2)

	select {
	case snap := <-got:
		if len(snap) != 2 {
			t.Errorf("snapshot after commit has %d entries, want 2", len(snap))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no snapshot after commit")
	}
}

func TestSubscribeCancelStopsPolling(t *testing.T) {
	writer, path := createFileDB(t)

	store, err := Open(path, 10*time.Millisecond, quiet)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	got := make(chan sensor.Snapshot, 8)
	cancel, err := store.Subscribe(context.Background(), "sensors/tds", func(s sensor.Snapshot) { got <- s })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	<-got
	cancel()
	cancel()

	insert(t, writer, "r1", "tds", 1.0, 300.0)
	select {
	case <-got:
		t.Fatal("delivery after cancel")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOpenIsReadOnly(t *testing.T) {
	_, path := createFileDB(t)

	store, err := Open(path, 0, quiet)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if _, err := store.db.Exec(`DELETE FROM readings`); err == nil {
		t.Error("write through read-only store succeeded")
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent.sqlite"), 0, quiet); err == nil {
		t.Error("expected error for missing database")
	}
}
