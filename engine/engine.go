// Package engine defines the capabilities a database binding supplies to
// the statement executor. Bindings are injected at construction; the
// executor never loads native symbols itself.
package engine

import (
	"context"
	"errors"

	"github.com/nickyhof/dbaccess/sql"
)

// ErrPrepareUnsupported is returned by Prepare on engines that only take
// literal SQL.
var ErrPrepareUnsupported = errors.New("engine does not support prepared statements")

// Conn is one session with an engine. A Conn may be shared by several
// statements in sequence but not concurrently.
type Conn interface {
	Dialect() sql.Dialect
	// CanPrepare reports whether Prepare is available.
	CanPrepare() bool
	// Prepare compiles query, already normalized to the dialect's markers.
	Prepare(ctx context.Context, query string) (Stmt, error)
	// Query runs literal SQL.
	Query(ctx context.Context, query string) (Rows, error)
	Close() error
}

// Stmt is a prepared statement.
type Stmt interface {
	// NumInput returns the number of parameters, or -1 if unknown.
	NumInput() int
	// Bind sets all parameters at once. The statement keeps its own copy.
	Bind(args []any) error
	// Execute runs the statement with the bound parameters. The previous
	// Rows of the statement must be closed first.
	Execute(ctx context.Context) (Rows, error)
	Close() error
}

// Column describes one result column.
type Column struct {
	Name     string
	DeclType string
}

// Rows is the result of one execution. A statement without result
// columns returns Rows with no columns.
type Rows interface {
	Columns() []Column
	Next() bool
	// Values returns the native values of the current row. The slice is
	// owned by the caller.
	Values() ([]any, error)
	Err() error
	Close() error
}

// Snapshotter is implemented by engines that can write a consistent copy
// of their database to a local file.
type Snapshotter interface {
	Snapshot(ctx context.Context, path string) error
}

// NoRows is an empty result for statements that return no columns.
type NoRows struct{}

func (NoRows) Columns() []Column      { return nil }
func (NoRows) Next() bool             { return false }
func (NoRows) Values() ([]any, error) { return nil, errors.New("no row") }
func (NoRows) Err() error             { return nil }
func (NoRows) Close() error           { return nil }
