package sqlite

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/nickyhof/dbaccess/engine"
)

func TestOpenMemory(t *testing.T) {
	conn, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	defer conn.Close()

	if conn.Dialect().Name != "sqlite" {
		t.Errorf("Expected sqlite dialect, got %s", conn.Dialect().Name)
	}
	if !conn.CanPrepare() {
		t.Error("Expected sqlite to prepare statements")
	}
	var _ engine.Snapshotter = conn
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	defer conn.Close()

	if err := conn.Exec(ctx, "CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	if err := conn.Exec(ctx, "INSERT INTO t VALUES (1), (2), (3)"); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	path := filepath.Join(t.TempDir(), "it's.db")
	if err := conn.Snapshot(ctx, path); err != nil {
		t.Fatalf("Failed to snapshot: %v", err)
	}

	copied, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Failed to open snapshot: %v", err)
	}
	defer copied.Close()

	rows, err := copied.Query(ctx, "SELECT COUNT(*) FROM t")
	if err != nil {
		t.Fatalf("Failed to query snapshot: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("Expected a row")
	}
	values, err := rows.Values()
	if err != nil {
		t.Fatalf("Failed to read values: %v", err)
	}
	if values[0] != int64(3) {
		t.Errorf("Expected 3 rows in snapshot, got %v", values[0])
	}
}

func TestSnapshotExistingFile(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	defer conn.Close()

	path := filepath.Join(t.TempDir(), "taken.db")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := conn.Snapshot(ctx, path); err == nil {
		t.Error("Expected error snapshotting over an existing file")
	} else if !errors.Is(err, fs.ErrExist) {
		t.Errorf("Expected ErrExist, got %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(data) != "x" {
		t.Errorf("Expected existing file to be left alone, got %d bytes", len(data))
	}
}
