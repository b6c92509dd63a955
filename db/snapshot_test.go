package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nickyhof/dbaccess/engine/sqlite"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw    string
		scheme string
		path   string
	}{
		{"/tmp/backup.zst", "file", "/tmp/backup.zst"},
		{"backup.zst", "file", "backup.zst"},
		{"file:///tmp/backup.zst", "file", "/tmp/backup.zst"},
		{"S3://bucket/backup.zst", "s3", "S3://bucket/backup.zst"},
		{"http://example.com/backup.zst", "http", "http://example.com/backup.zst"},
		{"https://example.com/backup.zst", "https", "https://example.com/backup.zst"},
	}
	for _, tt := range tests {
		loc, err := parseLocation(tt.raw)
		if err != nil {
			t.Fatalf("Failed to parse %q: %v", tt.raw, err)
		}
		if loc.scheme != tt.scheme || loc.path != tt.path {
			t.Errorf("Expected %s %s for %q, got %s %s", tt.scheme, tt.path, tt.raw, loc.scheme, loc.path)
		}
	}

	loc, err := parseLocation("s3://backups/cats/2024.zst")
	if err != nil {
		t.Fatalf("Failed to parse S3 URL: %v", err)
	}
	if loc.bucket != "backups" || loc.key != "cats/2024.zst" {
		t.Errorf("Expected backups and cats/2024.zst, got %s and %s", loc.bucket, loc.key)
	}

	for _, raw := range []string{"s3://backups", "s3:///key", "s3://backups/", "ftp://host/x"} {
		if _, err := parseLocation(raw); err == nil {
			t.Errorf("Expected error for %s", raw)
		}
	}
}

func setupFileAccess(t *testing.T, path string) *Access {
	conn, err := sqlite.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	access := New(conn, Options{})
	t.Cleanup(func() { access.Close() })
	return access
}

func TestBackupAndRestore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	access := setupFileAccess(t, filepath.Join(dir, "cats.db"))
	mustOk(t, access.Exec("CREATE TABLE cat (id INTEGER PRIMARY KEY, name TEXT, weight REAL, photo BLOB)"))
	insertTestCats(t, access)

	backup := filepath.Join(dir, "cats.db.zst")
	size, err := access.Backup(ctx, "file://"+backup, nil)
	if err != nil {
		t.Fatalf("Failed to back up: %v", err)
	}
	if size == 0 {
		t.Error("Expected a non-empty snapshot")
	}

	restored := filepath.Join(dir, "restored.db")
	if _, err := Restore(ctx, backup, restored, nil); err != nil {
		t.Fatalf("Failed to restore: %v", err)
	}

	restoredAccess := setupFileAccess(t, restored)
	if count := countCats(t, restoredAccess); count != 3 {
		t.Errorf("Expected 3 cats in the restored database, got %d", count)
	}
}

func TestRestoreFromHTTP(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	access := setupFileAccess(t, filepath.Join(dir, "cats.db"))
	mustOk(t, access.Exec("CREATE TABLE cat (id INTEGER PRIMARY KEY, name TEXT, weight REAL, photo BLOB)"))
	insertTestCats(t, access)

	backup := filepath.Join(dir, "cats.db.zst")
	if _, err := access.Backup(ctx, backup, nil); err != nil {
		t.Fatalf("Failed to back up: %v", err)
	}
	content, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("Failed to read backup: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cats.db.zst" {
			http.NotFound(w, r)
			return
		}
		w.Write(content)
	}))
	defer server.Close()

	restored := filepath.Join(dir, "restored.db")
	if _, err := Restore(ctx, server.URL+"/cats.db.zst", restored, nil); err != nil {
		t.Fatalf("Failed to restore over HTTP: %v", err)
	}
	restoredAccess := setupFileAccess(t, restored)
	if count := countCats(t, restoredAccess); count != 3 {
		t.Errorf("Expected 3 cats, got %d", count)
	}

	if _, err := Restore(ctx, server.URL+"/missing.zst", filepath.Join(dir, "missing.db"), nil); err == nil {
		t.Error("Expected error for a missing HTTP object")
	}
}

func TestBackupErrors(t *testing.T) {
	ctx := context.Background()

	fake, _ := setupFakeAccess(t, true)
	_, err := fake.Backup(ctx, filepath.Join(t.TempDir(), "x.zst"), nil)
	if err == nil || !strings.Contains(err.Error(), "does not support snapshots") {
		t.Errorf("Expected snapshot support error, got %v", err)
	}

	access := setupTestAccess(t, Options{})
	if _, err := access.Backup(ctx, "https://example.com/backup.zst", nil); err == nil {
		t.Error("Expected error writing to an HTTP URL")
	}
}
