// Package journal keeps a git history of the statements that changed a
// database.
//
// Statements are queued with Record and written by Commit as the next
// file under log/ in a single commit, so every commit holds the
// statements of one transaction:
//
//	journal, _ := journal.NewMemory()
//	journal.Record("INSERT INTO cat VALUES (1, 'Tom')")
//	entry, err := journal.Commit(core.Identity{Name: "app", Email: "app@example.com"}, "Autocommit")
//
// NewFile keeps the repository on disk; the entry files are checked out
// next to the .git directory and can be replayed with any SQL client.
package journal
