// Package sqlengine adapts any database/sql driver to engine.Conn.
//
// The adapter pins a single *sql.Conn so that transactions, session
// settings and last-insert-id queries all see the same session.
package sqlengine

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nickyhof/dbaccess/engine"
	"github.com/nickyhof/dbaccess/sql"
)

// Conn is an engine.Conn over one database/sql session. It tracks the
// statements and rows it hands out: database/sql does not release a
// session while either is open, so Close closes them first.
type Conn struct {
	db      *stdsql.DB
	conn    *stdsql.Conn
	dialect sql.Dialect

	mu   sync.Mutex
	open map[io.Closer]struct{}
}

func (c *Conn) track(handle io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open == nil {
		c.open = make(map[io.Closer]struct{})
	}
	c.open[handle] = struct{}{}
}

func (c *Conn) untrack(handle io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.open, handle)
}

// OpenHandles returns the number of statements and rows not yet closed.
func (c *Conn) OpenHandles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open)
}

// Open opens driverName with dsn and pins one session.
func Open(ctx context.Context, driverName string, dsn string, dialect sql.Dialect) (*Conn, error) {
	db, err := stdsql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect.Name, err)
	}
	db.SetMaxOpenConns(1)

	conn, err := Wrap(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return conn, nil
}

// Wrap pins a session of an already opened pool. Closing the returned
// Conn closes db as well.
func Wrap(ctx context.Context, db *stdsql.DB, dialect sql.Dialect) (*Conn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect.Name, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect.Name, err)
	}
	return &Conn{db: db, conn: conn, dialect: dialect}, nil
}

func (c *Conn) Dialect() sql.Dialect {
	return c.dialect
}

func (c *Conn) CanPrepare() bool {
	return true
}

func (c *Conn) Prepare(ctx context.Context, query string) (engine.Stmt, error) {
	stmt, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	numInput := -1
	if c.dialect.Markers == sql.QuestionMarks {
		numInput = sql.CountParams(query)
	}
	prepared := &Stmt{
		conn:     c,
		stmt:     stmt,
		numInput: numInput,
		rows:     returnsRows(query),
	}
	c.track(prepared)
	return prepared, nil
}

func (c *Conn) Query(ctx context.Context, query string) (engine.Rows, error) {
	if !returnsRows(query) {
		if _, err := c.conn.ExecContext(ctx, query); err != nil {
			return nil, err
		}
		return engine.NoRows{}, nil
	}
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return c.newRows(rows)
}

// Exec runs a statement that returns no rows.
func (c *Conn) Exec(ctx context.Context, query string) error {
	_, err := c.conn.ExecContext(ctx, query)
	return err
}

// Close closes every open statement and rows, then the session. The
// error reports handles that were still open.
func (c *Conn) Close() error {
	c.mu.Lock()
	handles := make([]io.Closer, 0, len(c.open))
	for handle := range c.open {
		handles = append(handles, handle)
	}
	c.mu.Unlock()

	var errs []error
	if len(handles) > 0 {
		errs = append(errs, fmt.Errorf("%d statements or results were still open", len(handles)))
	}
	// Rows before statements: a statement waits for its rows.
	for _, handle := range handles {
		if _, ok := handle.(*Rows); ok {
			handle.Close()
		}
	}
	for _, handle := range handles {
		if _, ok := handle.(*Stmt); ok {
			handle.Close()
		}
	}

	errs = append(errs, c.conn.Close(), c.db.Close())
	return errors.Join(errs...)
}

// Stmt is a prepared database/sql statement with its bound arguments.
type Stmt struct {
	conn     *Conn
	stmt     *stdsql.Stmt
	numInput int
	rows     bool
	args     []any
}

func (s *Stmt) NumInput() int {
	return s.numInput
}

func (s *Stmt) Bind(args []any) error {
	if s.numInput >= 0 && len(args) != s.numInput {
		return fmt.Errorf("statement expects %d arguments, got %d", s.numInput, len(args))
	}
	s.args = append(s.args[:0], args...)
	return nil
}

func (s *Stmt) Execute(ctx context.Context) (engine.Rows, error) {
	if !s.rows {
		if _, err := s.stmt.ExecContext(ctx, s.args...); err != nil {
			return nil, err
		}
		return engine.NoRows{}, nil
	}
	rows, err := s.stmt.QueryContext(ctx, s.args...)
	if err != nil {
		return nil, err
	}
	return s.conn.newRows(rows)
}

func (s *Stmt) Close() error {
	s.conn.untrack(s)
	s.args = nil
	return s.stmt.Close()
}

// Rows adapts *sql.Rows.
type Rows struct {
	conn    *Conn
	rows    *stdsql.Rows
	columns []engine.Column
}

func (c *Conn) newRows(rows *stdsql.Rows) (*Rows, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, err
	}
	columns := make([]engine.Column, len(types))
	for i, columnType := range types {
		columns[i] = engine.Column{Name: columnType.Name(), DeclType: columnType.DatabaseTypeName()}
	}
	result := &Rows{conn: c, rows: rows, columns: columns}
	c.track(result)
	return result, nil
}

func (r *Rows) Columns() []engine.Column {
	return r.columns
}

func (r *Rows) Next() bool {
	return r.rows.Next()
}

// Values scans the current row into driver values. database/sql copies
// byte slices scanned into *any, so the row stays valid after Next.
func (r *Rows) Values() ([]any, error) {
	values := make([]any, len(r.columns))
	dest := make([]any, len(r.columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := r.rows.Scan(dest...); err != nil {
		return nil, err
	}
	return values, nil
}

func (r *Rows) Err() error {
	return r.rows.Err()
}

func (r *Rows) Close() error {
	r.conn.untrack(r)
	return r.rows.Close()
}

var rowKeywords = map[string]bool{
	"SELECT":    true,
	"WITH":      true,
	"PRAGMA":    true,
	"SHOW":      true,
	"EXPLAIN":   true,
	"VALUES":    true,
	"DESCRIBE":  true,
	"DESC":      true,
	"TABLE":     true,
	"CALL":      true,
	"SUMMARIZE": true,
	"FROM":      true,
}

// returnsRows decides between ExecContext and QueryContext from the first
// keyword. Drivers differ in what Query returns for DML, so statements
// that cannot produce rows are always executed with Exec.
func returnsRows(query string) bool {
	text := skipPrefix(query)
	end := strings.IndexAny(text, " \t\r\n(;")
	if end < 0 {
		end = len(text)
	}
	keyword := strings.ToUpper(text[:end])
	if rowKeywords[keyword] {
		// PRAGMA assignments return nothing.
		if keyword == "PRAGMA" && strings.Contains(text, "=") {
			return false
		}
		return true
	}
	return containsWord(strings.ToUpper(blankQuoted(text)), "RETURNING")
}

// blankQuoted replaces the contents of quoted strings and identifiers
// with spaces so that keyword searches only see SQL text.
func blankQuoted(text string) string {
	buf := []byte(text)
	var quote byte
	for i, ch := range buf {
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				buf[i] = ' '
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		}
	}
	return string(buf)
}

// skipPrefix drops leading white space, parentheses and comments.
func skipPrefix(query string) string {
	for {
		query = strings.TrimLeft(query, " \t\r\n(")
		switch {
		case strings.HasPrefix(query, "--"):
			end := strings.IndexByte(query, '\n')
			if end < 0 {
				return ""
			}
			query = query[end+1:]
		case strings.HasPrefix(query, "/*"):
			end := strings.Index(query[2:], "*/")
			if end < 0 {
				return ""
			}
			query = query[end+4:]
		default:
			return query
		}
	}
}

func containsWord(text string, word string) bool {
	for offset := 0; ; {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(word)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		offset = end
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z'
}
