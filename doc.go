// Package dbaccess runs SQL statements against interchangeable database
// engines through one statement interface.
//
// A statement is bound by position or by ":name", executed, and read row
// by row as canonical text values. Engines that can prepare statements
// get the query once and are rebound for every execution; others receive
// literal SQL with the values inlined.
//
// # Quick Start
//
//	access, err := dbaccess.Open(ctx, dbaccess.Config{Engine: "sqlite", DSN: ":memory:"})
//	if err != nil {
//		return err
//	}
//	defer access.Close()
//
//	access.Exec("CREATE TABLE cat (id INTEGER PRIMARY KEY, name TEXT)")
//
//	insert := access.NewQuery("INSERT INTO cat (name) VALUES (:name)")
//	insert.BindText(db.Name(":name"), "Tom")
//	insert.Execute()
//
//	output, _ := access.Run("SELECT * FROM cat")
//	output.Display(os.Stdout)
//
// # Engines
//
//   - sqlite: pure Go SQLite (modernc.org/sqlite)
//   - duckdb: DuckDB through cgo
//   - mysql: MySQL and MariaDB servers
//   - postgres: PostgreSQL through pgx
//   - remote: a dbaccess server (cmd/server)
//
// # Journal
//
// Config.Journal records every statement that changed data in a git
// repository, one commit per statement or transaction.
package dbaccess
