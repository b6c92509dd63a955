// Package duckdb binds DuckDB through github.com/duckdb/duckdb-go.
package duckdb

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nickyhof/dbaccess/engine/sqlengine"
	"github.com/nickyhof/dbaccess/sql"

	_ "github.com/duckdb/duckdb-go/v2"
)

const DriverName = "duckdb"

// Conn is a DuckDB session.
type Conn struct {
	*sqlengine.Conn
	path string
}

// Open opens the database file at dsn. An empty dsn opens an in-memory
// database.
func Open(ctx context.Context, dsn string) (*Conn, error) {
	conn, err := sqlengine.Open(ctx, DriverName, dsn, sql.DuckDB)
	if err != nil {
		return nil, err
	}
	path, _, _ := strings.Cut(dsn, "?")
	return &Conn{Conn: conn, path: path}, nil
}

// Snapshot checkpoints the write-ahead log into the database file and
// copies the file to path. In-memory databases cannot be snapshotted.
func (c *Conn) Snapshot(ctx context.Context, path string) error {
	if c.path == "" || c.path == ":memory:" {
		return fmt.Errorf("cannot snapshot in-memory duckdb database")
	}
	if err := c.Exec(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("failed to checkpoint duckdb database: %w", err)
	}

	src, err := os.Open(c.path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy duckdb database: %w", err)
	}
	return dst.Close()
}
