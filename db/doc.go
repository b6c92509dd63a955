// Package db runs statements against any engine.Conn.
//
// An Access owns one connection. Statements created from it move through
// the states Init, BindParams, Execute, Get and Extract:
//
//	access := db.New(conn, db.Options{})
//	defer access.Close()
//
//	statement := access.NewQuery("SELECT name FROM cat WHERE id = :id")
//	defer statement.Close()
//	statement.BindInt(db.Name(":id"), 7)
//	for {
//		gotRow, result := statement.TestRow()
//		if !result.IsOk() || !gotRow {
//			break
//		}
//		name, _ := statement.ColumnText(0)
//		fmt.Println(name)
//	}
//
// Statements either prepare the query once and rebind it on every
// execution, or inline the bound values as literal SQL for engines that
// cannot prepare. All bindings are checked before the engine is called.
//
// # Batches
//
// BeginBatch collects several rows of bindings for an INSERT with one
// value tuple. EndBatch rewrites the INSERT into a multi-row statement and
// executes it once.
//
// # Journal
//
// When Options.Journal is set, every statement that completes without
// result columns is recorded as literal SQL in a git-backed journal. A
// Transaction groups its statements into one journal entry.
//
// # Snapshots
//
// Backup writes a zstd compressed copy of the database to a local path or
// an S3 URL, and Restore reads it back.
package db
