package db

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nickyhof/dbaccess/core"
	"github.com/nickyhof/dbaccess/engine"
	"github.com/nickyhof/dbaccess/sql"
)

// State is the position of a Statement in its execution cycle.
type State int

const (
	// Init has no execution in progress.
	Init State = iota
	// BindParams has a prepared handle waiting for values.
	BindParams
	// Execute is set while the engine runs the statement.
	Execute
	// Get has results available that have not been fetched.
	Get
	// Extract is set while a row is decoded.
	Extract
)

func (state State) String() string {
	switch state {
	case Init:
		return "Init"
	case BindParams:
		return "BindParams"
	case Execute:
		return "Execute"
	case Get:
		return "Get"
	case Extract:
		return "Extract"
	default:
		return "State(" + strconv.Itoa(int(state)) + ")"
	}
}

// Param selects a placeholder by 1-based ordinal or by name.
type Param interface {
	ordinal(query string) (int, error)
}

// Ordinal is a 1-based placeholder position.
type Ordinal int

func (o Ordinal) ordinal(string) (int, error) {
	if o < 1 {
		return 0, fmt.Errorf("Bind ordinal %d is not 1-based", int(o))
	}
	return int(o), nil
}

// Name is a placeholder name such as ":id". It resolves to the ordinal of
// its first occurrence.
type Name string

func (n Name) ordinal(query string) (int, error) {
	ordinal := sql.Ordinal(query, string(n))
	if ordinal == 0 {
		return 0, fmt.Errorf("Unable to find bind parameter %s", string(n))
	}
	return ordinal, nil
}

// Statement runs one query template at a time against the engine of its
// Access. It is not safe for concurrent use.
type Statement struct {
	access      *Access
	ctx         context.Context
	codec       core.Codec
	query       string
	paramCount  int
	usePrepared bool
	internal    bool
	// verbatim queries have no placeholders and reach the engine unchanged.
	verbatim bool
	state    State

	// stmt is the prepared handle of query, kept across executions.
	stmt engine.Stmt
	// oneShot is a handle prepared for a single execution, such as the
	// rewritten text of a batch.
	oneShot engine.Stmt
	rows    engine.Rows
	columns []engine.Column
	types   []string

	values []core.Value
	row    []core.Value
	batch  *batchContext
}

// Set replaces the query. Handles of the previous query are closed,
// bindings are cleared and batch mode ends. The engine is not called.
func (s *Statement) Set(query string) {
	s.reset(query, sql.CountParams(query))
	s.verbatim = false
}

// SetVerbatim replaces the query with SQL that takes no parameters. The
// text is not scanned for placeholders: it goes to the engine unchanged,
// so a colon or question mark inside a string literal stays literal.
func (s *Statement) SetVerbatim(query string) {
	s.reset(query, 0)
	s.verbatim = true
}

func (s *Statement) reset(query string, paramCount int) {
	s.closeHandles()
	s.query = query
	s.paramCount = paramCount
	s.values = make([]core.Value, paramCount)
	s.row = nil
	s.batch = nil
	s.state = Init
}

func (s *Statement) Text() string {
	return s.query
}

func (s *Statement) State() State {
	return s.state
}

// ParamCount returns the number of placeholders in the query.
func (s *Statement) ParamCount() int {
	return s.paramCount
}

// SetContext sets the context passed to engine calls.
func (s *Statement) SetContext(ctx context.Context) {
	s.ctx = ctx
}

// UsePreparedStatement selects the prepared strategy. Engines that cannot
// prepare always use literal SQL.
func (s *Statement) UsePreparedStatement(use bool) {
	use = use && s.access.conn.CanPrepare()
	if use == s.usePrepared {
		return
	}
	s.closeHandles()
	s.usePrepared = use
	s.state = Init
}

func (s *Statement) UsesPreparedStatement() bool {
	return s.usePrepared
}

func (s *Statement) BindNull(param Param) core.Result {
	return s.bind(param, core.NullValue())
}

func (s *Statement) BindInt(param Param, v int) core.Result {
	return s.bind(param, core.IntValue(int64(v)))
}

func (s *Statement) BindInt64(param Param, v int64) core.Result {
	return s.bind(param, core.IntValue(v))
}

func (s *Statement) BindFloat(param Param, v float32) core.Result {
	return s.bind(param, core.FloatValue(v))
}

func (s *Statement) BindDouble(param Param, v float64) core.Result {
	return s.bind(param, core.DoubleValue(v))
}

func (s *Statement) BindBool(param Param, v bool) core.Result {
	return s.bind(param, core.BoolValue(v))
}

func (s *Statement) BindText(param Param, v string) core.Result {
	return s.bind(param, core.TextValue(v))
}

// BindBlob copies v.
func (s *Statement) BindBlob(param Param, v []byte) core.Result {
	return s.bind(param, core.BlobValue(v))
}

// BindValue binds an already canonical value.
func (s *Statement) BindValue(param Param, v core.Value) core.Result {
	return s.bind(param, v)
}

// BindValues binds texts to the placeholders in order. The number of
// values must match the number of placeholders.
func (s *Statement) BindValues(values []string) core.Result {
	var result core.Result
	if len(values) != s.paramCount {
		result.SetError(bindCountMessage(s.paramCount, len(values)))
		return result
	}
	for i, value := range values {
		result = s.bind(Ordinal(i+1), core.TextValue(value))
		if !result.IsOk() {
			return result
		}
	}
	return result
}

func (s *Statement) bind(param Param, value core.Value) core.Result {
	var result core.Result

	ordinal, err := param.ordinal(s.query)
	if err != nil {
		result.SetError(err.Error())
		return result
	}
	if ordinal > s.paramCount {
		result.SetError(fmt.Sprintf("Bind ordinal %d exceeds the %d parameters of the query", ordinal, s.paramCount))
		return result
	}

	// New values start a new cycle; an unread result is dropped.
	if s.state > BindParams {
		s.closeRows()
		s.state = s.restState()
	}

	if s.batch == nil {
		s.values[ordinal-1] = value
		s.state = BindParams
		return result
	}

	if s.batch.cursor >= s.batch.rows {
		result.SetError(fmt.Sprintf("Batch of %d rows is full", s.batch.rows))
		return result
	}
	offset := s.batch.cursor * s.paramCount
	s.values[offset+ordinal-1] = value
	if rowComplete(s.values[offset : offset+s.paramCount]) {
		s.batch.cursor++
	}
	s.state = BindParams
	return result
}

func rowComplete(values []core.Value) bool {
	for _, value := range values {
		if !value.IsSet() {
			return false
		}
	}
	return true
}

func bindCountMessage(expected int, actual int) string {
	return fmt.Sprintf("Incorrect bind count. Query expects %d but the number of values is %d", expected, actual)
}

// checkBindings verifies that every placeholder of one row has a value.
func (s *Statement) checkBindings(values []core.Value, expected int) core.Result {
	var result core.Result
	bound := 0
	for _, value := range values {
		if value.IsSet() {
			bound++
		}
	}
	if bound != expected {
		result.SetError(bindCountMessage(expected, bound))
		result.InsertContext("Unable to execute " + s.query)
	}
	return result
}

// Execute runs the statement. It does nothing while results of a previous
// execution are still being fetched, and inside a batch, where EndBatch
// executes. A statement without result columns completes at once and can
// be executed again with the same bindings.
func (s *Statement) Execute() core.Result {
	var result core.Result
	if s.batch != nil {
		return result
	}
	if s.state != Init && s.state != BindParams {
		return result
	}
	if s.query == "" {
		result.SetError("No query set")
		return result
	}

	result = s.checkBindings(s.values, s.paramCount)
	if !result.IsOk() {
		return result
	}

	return s.run(s.query, s.values, true)
}

// run executes query with values, keeping the prepared handle when
// reusable is set.
func (s *Statement) run(query string, values []core.Value, reusable bool) core.Result {
	var result core.Result
	conn := s.access.conn
	ctx := s.context()

	var rows engine.Rows
	var literal string
	s.columns = nil
	s.state = Execute
	if s.verbatim {
		var err error
		literal = query
		rows, err = conn.Query(ctx, query)
		if err != nil {
			result.SetError(err.Error())
			result.InsertContext("Unable to execute " + query)
			s.state = Init
			return result
		}
	} else if s.usePrepared {
		stmt, prepared := s.stmt, true
		if !reusable || stmt == nil {
			var err error
			stmt, err = conn.Prepare(ctx, sql.Normalize(query, conn.Dialect().Markers))
			if err != nil {
				result.SetError(err.Error())
				result.InsertContext("Unable to prepare " + query)
				s.state = Init
				return result
			}
			prepared = false
		}
		if reusable {
			s.stmt = stmt
		} else {
			s.oneShot = stmt
		}

		args := make([]any, len(values))
		for i, value := range values {
			args[i] = value.Native()
		}
		err := stmt.Bind(args)
		if err == nil {
			rows, err = stmt.Execute(ctx)
		}
		if err != nil {
			result.SetError(err.Error())
			if prepared {
				result.InsertContext("Unable to execute prepared " + query)
			} else {
				result.InsertContext("Unable to execute " + query)
			}
			s.closeOneShot()
			s.state = s.restState()
			return result
		}
	} else {
		var err error
		literal, err = sql.Inline(query, values)
		if err == nil {
			rows, err = conn.Query(ctx, literal)
		}
		if err != nil {
			result.SetError(err.Error())
			result.InsertContext("Unable to execute " + query)
			s.state = Init
			return result
		}
	}

	s.columns = rows.Columns()
	if len(s.columns) == 0 {
		rows.Close()
		s.closeOneShot()
		s.state = Init
		if !s.internal {
			result.Merge(s.access.journalStatement(query, values, literal))
		}
		return result
	}

	s.rows = rows
	s.types = s.types[:0]
	for _, column := range s.columns {
		s.types = append(s.types, column.DeclType)
	}
	s.state = Get
	return result
}

// TestRow executes the statement when needed and fetches the next row.
// It returns false without error when no row remains.
func (s *Statement) TestRow() (bool, core.Result) {
	if s.state == Init || s.state == BindParams {
		result := s.Execute()
		if !result.IsOk() {
			return false, result
		}
	}
	return s.fetch()
}

// GetRow is TestRow with a missing row reported as an error.
func (s *Statement) GetRow() core.Result {
	gotRow, result := s.TestRow()
	if result.IsOk() && !gotRow {
		result.SetError("No row available for " + s.query)
	}
	return result
}

func (s *Statement) fetch() (bool, core.Result) {
	var result core.Result
	if s.rows == nil {
		return false, result
	}

	s.state = Extract
	if !s.rows.Next() {
		err := s.rows.Err()
		s.closeRows()
		s.row = s.row[:0]
		s.state = Init
		if err != nil {
			result.SetError(err.Error())
			result.InsertContext("Unable to fetch row of " + s.query)
		}
		return false, result
	}

	natives, err := s.rows.Values()
	if err != nil {
		s.closeRows()
		s.row = s.row[:0]
		s.state = Init
		result.SetError(err.Error())
		result.InsertContext("Unable to extract row of " + s.query)
		return false, result
	}

	s.row = s.codec.DecodeRow(s.row, natives, s.types)
	s.state = Get
	return true, result
}

// Reset drops unread results and keeps the bindings so the statement can
// be executed again.
func (s *Statement) Reset() {
	s.closeRows()
	s.state = s.restState()
}

func (s *Statement) restState() State {
	if s.stmt != nil {
		return BindParams
	}
	return Init
}

func (s *Statement) context() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

func (s *Statement) closeRows() {
	if s.rows != nil {
		s.rows.Close()
		s.rows = nil
	}
	s.closeOneShot()
}

func (s *Statement) closeOneShot() {
	if s.oneShot != nil {
		s.oneShot.Close()
		s.oneShot = nil
	}
}

func (s *Statement) closeHandles() {
	s.closeRows()
	if s.stmt != nil {
		s.stmt.Close()
		s.stmt = nil
	}
}

// Close releases the engine handles. It may be called more than once.
func (s *Statement) Close() {
	s.closeHandles()
	s.batch = nil
	s.state = Init
}

// LastInsertedRowIndex returns the key the engine generated for the last
// insert on this connection.
func (s *Statement) LastInsertedRowIndex() (int64, core.Result) {
	return s.access.LastInsertedRowIndex()
}
