package sql

import "strings"

// MarkerStyle is the placeholder syntax an engine accepts in prepared text.
type MarkerStyle int

const (
	// QuestionMarks is "?" for every parameter.
	QuestionMarks MarkerStyle = iota
	// DollarNumbers is "$1", "$2", ... numbered by occurrence.
	DollarNumbers
)

// Dialect holds the statements that differ between engines.
type Dialect struct {
	Name            string
	Markers         MarkerStyle
	Begin           string
	Commit          string
	Rollback        string
	LastInsertID    string
	InsertOrReplace string
	InsertOrIgnore  string
	// CacheSize and PageSize format pragma statements. Empty means the
	// engine has no equivalent.
	CacheSize string
	PageSize  string
}

var (
	SQLite = Dialect{
		Name:            "sqlite",
		Markers:         QuestionMarks,
		Begin:           "BEGIN TRANSACTION",
		Commit:          "COMMIT",
		Rollback:        "ROLLBACK",
		LastInsertID:    "SELECT last_insert_rowid()",
		InsertOrReplace: "INSERT OR REPLACE INTO ",
		InsertOrIgnore:  "INSERT OR IGNORE INTO ",
		CacheSize:       "PRAGMA cache_size = %d",
		PageSize:        "PRAGMA page_size = %d",
	}

	MySQL = Dialect{
		Name:            "mysql",
		Markers:         QuestionMarks,
		Begin:           "START TRANSACTION",
		Commit:          "COMMIT",
		Rollback:        "ROLLBACK",
		LastInsertID:    "SELECT LAST_INSERT_ID()",
		InsertOrReplace: "REPLACE INTO ",
		InsertOrIgnore:  "INSERT IGNORE INTO ",
	}

	Postgres = Dialect{
		Name:            "postgres",
		Markers:         DollarNumbers,
		Begin:           "BEGIN",
		Commit:          "COMMIT",
		Rollback:        "ROLLBACK",
		LastInsertID:    "SELECT lastval()",
		InsertOrReplace: "INSERT INTO ",
		InsertOrIgnore:  "INSERT INTO ",
	}

	DuckDB = Dialect{
		Name:            "duckdb",
		Markers:         QuestionMarks,
		Begin:           "BEGIN TRANSACTION",
		Commit:          "COMMIT",
		Rollback:        "ROLLBACK",
		InsertOrReplace: "INSERT OR REPLACE INTO ",
		InsertOrIgnore:  "INSERT OR IGNORE INTO ",
	}

	// Generic is used for engines reached through literal SQL only.
	Generic = Dialect{
		Name:            "generic",
		Markers:         QuestionMarks,
		Begin:           "BEGIN",
		Commit:          "COMMIT",
		Rollback:        "ROLLBACK",
		InsertOrReplace: "INSERT INTO ",
		InsertOrIgnore:  "INSERT INTO ",
	}
)

// LookupDialect returns the dialect registered under name.
func LookupDialect(name string) (Dialect, bool) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, true
	case "mysql":
		return MySQL, true
	case "postgres", "postgresql", "pgx":
		return Postgres, true
	case "duckdb":
		return DuckDB, true
	case "generic", "remote":
		return Generic, true
	default:
		return Dialect{}, false
	}
}
