package db

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/nickyhof/dbaccess/core"
)

type ResultType int

const (
	QueryResultType ResultType = iota
	ExecResultType
)

// Output is what running one statement produced.
type Output interface {
	Type() ResultType
	Display(w io.Writer)
}

// QueryResult holds every row of a statement with result columns.
type QueryResult struct {
	Columns          []string
	Types            []string
	Rows             [][]core.Value
	RecordsRead      int
	ExecutionTimeSec float64
}

// ExecResult describes a statement without result columns.
type ExecResult struct {
	Query            string
	ExecutionTimeSec float64
}

func (result QueryResult) Type() ResultType {
	return QueryResultType
}

func (result ExecResult) Type() ResultType {
	return ExecResultType
}

// Data returns the rows as text, with NULL spelled out.
func (result QueryResult) Data() [][]string {
	data := make([][]string, len(result.Rows))
	for i, row := range result.Rows {
		data[i] = make([]string, len(row))
		for j, value := range row {
			data[i][j] = displayValue(value)
		}
	}
	return data
}

func displayValue(value core.Value) string {
	switch value.Kind {
	case core.NullKind:
		return "NULL"
	case core.BlobKind:
		return fmt.Sprintf("<blob %d bytes>", len(value.Text))
	default:
		return value.Text
	}
}

// formatDuration formats a duration in human-readable form
func formatDuration(secs float64) string {
	if secs < 0.001 {
		return "<1ms"
	} else if secs < 1 {
		ms := secs * 1000
		if ms < 10 {
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%dms", int(ms))
	} else if secs < 60 {
		if secs < 10 {
			return fmt.Sprintf("%.1fs", secs)
		}
		return fmt.Sprintf("%ds", int(secs))
	} else {
		mins := int(secs / 60)
		remainSecs := int(secs) % 60
		if remainSecs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm%ds", mins, remainSecs)
	}
}

func (result QueryResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

func (result ExecResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

// Display renders the rows as a table followed by a stats line.
func (result QueryResult) Display(w io.Writer) {
	if len(result.Columns) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleRounded)
		t.Style().Options.SeparateRows = false

		header := make(table.Row, len(result.Columns))
		for i, column := range result.Columns {
			header[i] = column
		}
		t.AppendHeader(header)

		for _, row := range result.Data() {
			tableRow := make(table.Row, len(row))
			for i, value := range row {
				tableRow[i] = value
			}
			t.AppendRow(tableRow)
		}
		t.Render()
	}

	fmt.Fprintf(w, "%d rows (%s)\n", result.RecordsRead, result.ExecutionTime())
}

func (result ExecResult) Display(w io.Writer) {
	fmt.Fprintf(w, "OK (%s)\n", result.ExecutionTime())
}

// Query executes the statement when needed and collects every remaining
// row.
func (s *Statement) Query() (QueryResult, core.Result) {
	start := time.Now()
	var output QueryResult

	var executed core.Result
	if s.state == Init || s.state == BindParams {
		executed = s.Execute()
		if !executed.IsOk() {
			return output, executed
		}
	}
	output.Columns = s.ColumnNames()
	output.Types = s.ColumnTypes()

	for {
		gotRow, result := s.fetch()
		if !result.IsOk() {
			result.Merge(executed)
			return output, result
		}
		if !gotRow {
			break
		}
		output.Rows = append(output.Rows, s.Row())
	}
	output.RecordsRead = len(output.Rows)
	output.ExecutionTimeSec = time.Since(start).Seconds()
	return output, executed
}

// Run executes query once without parameters. Statements with result
// columns produce a QueryResult, others an ExecResult.
func (a *Access) Run(query string) (Output, core.Result) {
	start := time.Now()
	statement := a.NewStatement()
	defer statement.Close()
	statement.SetVerbatim(query)

	result := statement.Execute()
	if !result.IsOk() {
		return nil, result
	}
	if statement.ColumnCount() == 0 {
		return ExecResult{Query: query, ExecutionTimeSec: time.Since(start).Seconds()}, result
	}

	output, queryResult := statement.Query()
	queryResult.Merge(result)
	output.ExecutionTimeSec = time.Since(start).Seconds()
	return output, queryResult
}
