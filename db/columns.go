package db

import (
	"fmt"

	"github.com/nickyhof/dbaccess/core"
)

func (s *Statement) column(index int) (core.Value, core.Result) {
	var result core.Result
	if index < 0 || index >= len(s.row) {
		result.SetError(fmt.Sprintf("Column index %d is out of range for %d columns", index, len(s.row)))
		return core.Value{}, result
	}
	return s.row[index], result
}

// ColumnValue returns column index of the current row. Indexes are 0-based.
func (s *Statement) ColumnValue(index int) (core.Value, core.Result) {
	return s.column(index)
}

func (s *Statement) ColumnInt(index int) (int, core.Result) {
	value, result := s.column(index)
	if !result.IsOk() {
		return 0, result
	}
	v, err := value.Int()
	if err != nil {
		result.SetError(fmt.Sprintf("Column %d: %v", index, err))
	}
	return v, result
}

func (s *Statement) ColumnInt64(index int) (int64, core.Result) {
	value, result := s.column(index)
	if !result.IsOk() {
		return 0, result
	}
	v, err := value.Int64()
	if err != nil {
		result.SetError(fmt.Sprintf("Column %d: %v", index, err))
	}
	return v, result
}

// ColumnDouble decodes NULL and empty text as NaN.
func (s *Statement) ColumnDouble(index int) (float64, core.Result) {
	value, result := s.column(index)
	if !result.IsOk() {
		return 0, result
	}
	v, err := value.Double()
	if err != nil {
		result.SetError(fmt.Sprintf("Column %d: %v", index, err))
	}
	return v, result
}

func (s *Statement) ColumnFloat(index int) (float32, core.Result) {
	v, result := s.ColumnDouble(index)
	return float32(v), result
}

func (s *Statement) ColumnBool(index int) (bool, core.Result) {
	value, result := s.column(index)
	return value.Bool(), result
}

// ColumnText returns the canonical text. NULL is an empty string; use
// ColumnIsNull to tell them apart.
func (s *Statement) ColumnText(index int) (string, core.Result) {
	value, result := s.column(index)
	return value.Text, result
}

// ColumnBlob returns a copy of the column bytes.
func (s *Statement) ColumnBlob(index int) ([]byte, core.Result) {
	value, result := s.column(index)
	return value.Blob(), result
}

func (s *Statement) ColumnIsNull(index int) (bool, core.Result) {
	value, result := s.column(index)
	return value.IsNull(), result
}

// ColumnCount returns the number of result columns of the current
// execution, or 0 when no result is open.
func (s *Statement) ColumnCount() int {
	return len(s.columns)
}

func (s *Statement) ColumnNames() []string {
	names := make([]string, len(s.columns))
	for i, column := range s.columns {
		names[i] = column.Name
	}
	return names
}

// ColumnTypes returns the declared types of the result columns.
func (s *Statement) ColumnTypes() []string {
	return append([]string(nil), s.types...)
}

// Row returns a copy of the current row buffer. It is empty once no more
// rows are available.
func (s *Statement) Row() []core.Value {
	return append([]core.Value(nil), s.row...)
}
