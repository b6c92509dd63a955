package db

import (
	"context"
	"errors"
	"testing"

	"github.com/nickyhof/dbaccess/core"
	"github.com/nickyhof/dbaccess/engine"
	"github.com/nickyhof/dbaccess/engine/sqlite"
	"github.com/nickyhof/dbaccess/sql"
)

// fakeConn records every engine call. Statements return the configured
// columns and rows.
type fakeConn struct {
	dialect    sql.Dialect
	canPrepare bool
	prepareErr error
	executeErr error

	columns []engine.Column
	rows    [][]any

	prepared []string
	queries  []string
	executes int
	bound    [][]any
	closed   bool
}

func newFakeConn(canPrepare bool) *fakeConn {
	return &fakeConn{dialect: sql.SQLite, canPrepare: canPrepare}
}

func (c *fakeConn) Dialect() sql.Dialect {
	return c.dialect
}

func (c *fakeConn) CanPrepare() bool {
	return c.canPrepare
}

func (c *fakeConn) Prepare(ctx context.Context, query string) (engine.Stmt, error) {
	if !c.canPrepare {
		return nil, engine.ErrPrepareUnsupported
	}
	c.prepared = append(c.prepared, query)
	if c.prepareErr != nil {
		return nil, c.prepareErr
	}
	return &fakeStmt{conn: c}, nil
}

func (c *fakeConn) Query(ctx context.Context, query string) (engine.Rows, error) {
	c.queries = append(c.queries, query)
	if c.executeErr != nil {
		return nil, c.executeErr
	}
	return c.result(), nil
}

func (c *fakeConn) result() engine.Rows {
	if len(c.columns) == 0 {
		return engine.NoRows{}
	}
	return &fakeRows{columns: c.columns, rows: c.rows, pos: -1}
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// calls returns the number of engine round trips made so far.
func (c *fakeConn) calls() int {
	return len(c.prepared) + len(c.queries) + c.executes
}

type fakeStmt struct {
	conn   *fakeConn
	args   []any
	closed bool
}

func (s *fakeStmt) NumInput() int {
	return -1
}

func (s *fakeStmt) Bind(args []any) error {
	s.args = append(s.args[:0], args...)
	return nil
}

func (s *fakeStmt) Execute(ctx context.Context) (engine.Rows, error) {
	s.conn.executes++
	s.conn.bound = append(s.conn.bound, append([]any(nil), s.args...))
	if s.conn.executeErr != nil {
		return nil, s.conn.executeErr
	}
	return s.conn.result(), nil
}

func (s *fakeStmt) Close() error {
	if s.closed {
		return errors.New("statement closed twice")
	}
	s.closed = true
	return nil
}

type fakeRows struct {
	columns []engine.Column
	rows    [][]any
	pos     int
	closed  bool
}

func (r *fakeRows) Columns() []engine.Column {
	return r.columns
}

func (r *fakeRows) Next() bool {
	if r.closed {
		return false
	}
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Values() ([]any, error) {
	return append([]any(nil), r.rows[r.pos]...), nil
}

func (r *fakeRows) Err() error {
	return nil
}

func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}

func setupFakeAccess(t *testing.T, canPrepare bool) (*Access, *fakeConn) {
	conn := newFakeConn(canPrepare)
	access := New(conn, Options{})
	t.Cleanup(func() { access.Close() })
	return access, conn
}

func setupTestAccess(t testing.TB, options Options) *Access {
	conn, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	access := New(conn, options)
	t.Cleanup(func() { access.Close() })

	if result := access.Exec("CREATE TABLE cat (id INTEGER PRIMARY KEY, name TEXT, weight REAL, photo BLOB)"); !result.IsOk() {
		t.Fatalf("Failed to create table: %v", result.Err())
	}
	return access
}

func insertTestCats(t *testing.T, access *Access) {
	statement := access.NewQuery("INSERT INTO cat (id, name, weight) VALUES (:id, :name, :weight)")
	defer statement.Close()

	cats := []struct {
		id     int
		name   string
		weight float64
	}{
		{1, "Tom", 4.5},
		{2, "Felix", 3.25},
		{3, "Garfield", 9},
	}
	for _, cat := range cats {
		statement.BindInt(Name(":id"), cat.id)
		statement.BindText(Name(":name"), cat.name)
		statement.BindDouble(Name(":weight"), cat.weight)
		if result := statement.Execute(); !result.IsOk() {
			t.Fatalf("Failed to insert %s: %v", cat.name, result.Err())
		}
	}
}

func mustOk(t *testing.T, result core.Result) {
	t.Helper()
	if !result.IsOk() {
		t.Fatalf("Unexpected error: %v", result.Err())
	}
}

func boolPtr(v bool) *bool {
	return &v
}
