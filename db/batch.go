package db

import (
	"fmt"

	"github.com/nickyhof/dbaccess/core"
	"github.com/nickyhof/dbaccess/sql"
)

// batchContext tracks the rows bound while a batch is open.
type batchContext struct {
	rows   int
	cursor int
}

// BeginBatch switches the statement into batch mode for up to rows rows.
// Binds fill the rows in order: a row is complete once each of its
// placeholders has a value, and the next bind goes to the following row.
// The query must be an INSERT with a single value tuple.
func (s *Statement) BeginBatch(rows int) core.Result {
	var result core.Result
	if s.paramCount == 0 {
		result.SetError("Batch insert needs a query with bind parameters")
		return result
	}
	if rows < 1 {
		result.SetError(fmt.Sprintf("Batch insert needs at least one row, got %d", rows))
		return result
	}
	if s.batch != nil {
		result.SetError("Batch insert already in progress")
		return result
	}

	s.closeRows()
	s.batch = &batchContext{rows: rows}
	s.values = make([]core.Value, rows*s.paramCount)
	s.state = s.restState()
	return result
}

// InBatch reports whether a batch is open.
func (s *Statement) InBatch() bool {
	return s.batch != nil
}

// BatchRows returns the number of fully bound rows of the open batch.
func (s *Statement) BatchRows() int {
	if s.batch == nil {
		return 0
	}
	return s.batch.cursor
}

// EndBatch inserts the bound rows with one multi-row statement and leaves
// batch mode. A partially bound row is an error and nothing is inserted.
func (s *Statement) EndBatch() core.Result {
	var result core.Result
	batch := s.batch
	if batch == nil {
		result.SetError("No batch insert in progress")
		return result
	}
	values := s.values
	s.batch = nil
	s.values = make([]core.Value, s.paramCount)

	if batch.cursor < batch.rows {
		offset := batch.cursor * s.paramCount
		for _, value := range values[offset : offset+s.paramCount] {
			if value.IsSet() {
				result.SetError(fmt.Sprintf("Batch row %d is only partially bound", batch.cursor+1))
				result.InsertContext("Unable to insert batch for " + s.query)
				return result
			}
		}
	}
	if batch.cursor == 0 {
		return result
	}

	query, err := sql.MultiRow(s.query, batch.cursor, sql.QuestionMarks)
	if err != nil {
		result.SetError(err.Error())
		result.InsertContext("Unable to insert batch")
		return result
	}

	result = s.run(query, values[:batch.cursor*s.paramCount], false)
	if !result.IsOk() {
		result.InsertContext(fmt.Sprintf("Unable to insert batch of %d rows", batch.cursor))
	}
	return result
}
