// Package sqlite binds the pure Go SQLite engine from modernc.org/sqlite.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/nickyhof/dbaccess/engine/sqlengine"
	"github.com/nickyhof/dbaccess/sql"

	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Conn is a SQLite session.
type Conn struct {
	*sqlengine.Conn
}

// Open opens the database file at dsn. ":memory:" opens a private
// in-memory database.
func Open(ctx context.Context, dsn string) (*Conn, error) {
	conn, err := sqlengine.Open(ctx, DriverName, dsn, sql.SQLite)
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: conn}, nil
}

// Snapshot writes a consistent copy of the main database to path with
// VACUUM INTO. path must not exist yet.
func (c *Conn) Snapshot(ctx context.Context, path string) error {
	// VACUUM INTO overwrites small files, so refuse any existing path.
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("failed to snapshot sqlite database: %w", &fs.PathError{Op: "snapshot", Path: path, Err: fs.ErrExist})
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to snapshot sqlite database: %w", err)
	}
	if err := c.Exec(ctx, "VACUUM INTO "+sql.Quote(path)); err != nil {
		return fmt.Errorf("failed to snapshot sqlite database: %w", err)
	}
	return nil
}
