// Package sql handles query text for dbaccess: placeholder lexing,
// rewriting between engine dialects and a small query-text builder.
//
// # Placeholders
//
// Queries use ":name" or "?" placeholders, mixed freely in one statement.
// "::" is a cast and never a placeholder.
//
//	sql.CountParams("SELECT * FROM cat WHERE id = :id AND name = ?") // 2
//	sql.Ordinal("SELECT * FROM cat WHERE id = :id AND name = :name", "name") // 2
//
// # Rewriting
//
// Normalize turns placeholders into the markers an engine prepares,
// Inline turns them into literal SQL, and MultiRow repeats the value tuple
// of an INSERT for batch inserts:
//
//	sql.MultiRow("INSERT INTO cat (id, name) VALUES (:id, :name)", 2, sql.QuestionMarks)
//	// INSERT INTO cat (id, name) VALUES (?, ?),(?, ?)
//
// # Builder
//
//	sql.NewBuilder(sql.SQLite).InsertInto("cat").Columns("id, name").Values(sql.Params(2)).String()
//	// INSERT INTO cat(id,name) VALUES (?,?);
package sql
