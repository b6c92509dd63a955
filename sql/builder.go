package sql

import (
	"fmt"
	"strings"
)

// Builder assembles query text with method chaining. Values are normally
// bind placeholders made with Params or written as ":id, :name".
//
//	sql.NewBuilder(sql.SQLite).Select("catId").From("Cat").Where("catName", "=", sql.Params(1))
//	sql.NewBuilder(sql.SQLite).InsertInto("Cat").Columns("catId, catName").Values(":id, :name")
//	sql.NewBuilder(sql.SQLite).Update("Cat").Set("catId, catName", sql.Params(2))
type Builder struct {
	dialect Dialect
	text    strings.Builder
}

func NewBuilder(dialect Dialect) *Builder {
	return &Builder{dialect: dialect}
}

// Params returns n comma separated positional placeholders.
func Params(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func (builder *Builder) start(statement string, arg string) *Builder {
	builder.text.Reset()
	builder.text.WriteString(statement)
	builder.text.WriteString(arg)
	return builder
}

func (builder *Builder) CreateTable(table string) *Builder {
	return builder.start("CREATE TABLE ", table)
}

func (builder *Builder) Select(columns string) *Builder {
	return builder.start("SELECT ", columns)
}

func (builder *Builder) InsertInto(table string) *Builder {
	return builder.start("INSERT INTO ", table)
}

// InsertOrReplaceInto replaces every value of a conflicting row, including
// its primary key. It is not an upsert.
func (builder *Builder) InsertOrReplaceInto(table string) *Builder {
	return builder.start(builder.dialect.InsertOrReplace, table)
}

func (builder *Builder) InsertOrIgnore(table string) *Builder {
	return builder.start(builder.dialect.InsertOrIgnore, table)
}

func (builder *Builder) Update(table string) *Builder {
	return builder.start("UPDATE ", table)
}

func (builder *Builder) DeleteFrom(table string) *Builder {
	return builder.start("DELETE FROM ", table)
}

// DropIndex only drops an existing index, so a repeated drop after a crash
// does not fail.
func (builder *Builder) DropIndex(index string) *Builder {
	return builder.start("DROP INDEX IF EXISTS ", index)
}

// CreateIndex only creates a missing index.
func (builder *Builder) CreateIndex(index string, table string, column string) *Builder {
	return builder.start("CREATE INDEX IF NOT EXISTS ", index+" ON "+table+"("+column+")")
}

func (builder *Builder) From(table string) *Builder {
	builder.text.WriteString(" FROM ")
	builder.text.WriteString(table)
	return builder
}

func (builder *Builder) OrderBy(column string, ascend bool) *Builder {
	builder.text.WriteString(" ORDER BY ")
	builder.text.WriteString(column)
	if !ascend {
		builder.text.WriteString(" DESC")
	}
	return builder
}

func (builder *Builder) Join(table string) *Builder {
	builder.text.WriteString(" JOIN ")
	builder.text.WriteString(table)
	return builder
}

func (builder *Builder) On(condition string) *Builder {
	builder.text.WriteString(" ON ")
	builder.text.WriteString(condition)
	return builder
}

func (builder *Builder) Columns(names string) *Builder {
	builder.text.WriteString("(")
	builder.text.WriteString(strings.Join(splitArgs(names), ","))
	builder.text.WriteString(")")
	return builder
}

func (builder *Builder) Values(values string) *Builder {
	builder.text.WriteString(" VALUES (")
	builder.text.WriteString(strings.Join(splitArgs(values), ","))
	builder.text.WriteString(")")
	return builder
}

func (builder *Builder) ColumnDefs(defs string) *Builder {
	builder.text.WriteString("(")
	builder.text.WriteString(defs)
	builder.text.WriteString(")")
	return builder
}

// Set pairs comma separated columns with comma separated values:
// Set("a, b", "?,?") appends " SET a=?,b=?". Extra columns or values are
// dropped.
func (builder *Builder) Set(columns string, values string) *Builder {
	names := splitArgs(columns)
	args := splitArgs(values)
	builder.text.WriteString(" SET ")
	for i := 0; i < len(names) && i < len(args); i++ {
		if i > 0 {
			builder.text.WriteString(",")
		}
		builder.text.WriteString(names[i])
		builder.text.WriteString("=")
		builder.text.WriteString(args[i])
	}
	return builder
}

func (builder *Builder) Where(column string, operator string, values string) *Builder {
	return builder.condition(" WHERE ", column, operator, values)
}

func (builder *Builder) And(column string, operator string, values string) *Builder {
	return builder.condition(" AND ", column, operator, values)
}

func (builder *Builder) condition(keyword string, column string, operator string, values string) *Builder {
	builder.text.WriteString(keyword)
	builder.text.WriteString(column)
	builder.text.WriteString(operator)
	builder.text.WriteString("(")
	builder.text.WriteString(strings.Join(splitArgs(values), ","))
	builder.text.WriteString(")")
	return builder
}

// NumParams counts the placeholders written so far.
func (builder *Builder) NumParams() int {
	return CountParams(builder.text.String())
}

// String returns the query terminated by a semicolon.
func (builder *Builder) String() string {
	text := builder.text.String()
	if text != "" && !strings.HasSuffix(text, ";") {
		text += ";"
	}
	return text
}

func splitArgs(args string) []string {
	parts := strings.Split(args, ",")
	out := parts[:0]
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ColumnIndex finds field in the select list of query and returns its
// 0-based position, counted as the commas before it.
func ColumnIndex(query string, field string) (int, error) {
	pos := strings.Index(query, field)
	if pos < 0 {
		return 0, fmt.Errorf("Unable to find field %s", field)
	}
	return strings.Count(query[:pos], ","), nil
}

// OptionalColumnIndex is ColumnIndex returning -1 for a missing field.
func OptionalColumnIndex(query string, field string) int {
	index, err := ColumnIndex(query, field)
	if err != nil {
		return -1
	}
	return index
}
