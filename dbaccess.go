package dbaccess

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/nickyhof/dbaccess/core"
	"github.com/nickyhof/dbaccess/db"
	"github.com/nickyhof/dbaccess/engine"
	"github.com/nickyhof/dbaccess/engine/duckdb"
	"github.com/nickyhof/dbaccess/engine/mysql"
	"github.com/nickyhof/dbaccess/engine/postgres"
	"github.com/nickyhof/dbaccess/engine/remote"
	"github.com/nickyhof/dbaccess/engine/sqlite"
	"github.com/nickyhof/dbaccess/journal"
	"github.com/nickyhof/dbaccess/sql"
)

// MemoryJournal selects an in-memory journal in Config.Journal.
const MemoryJournal = ":memory:"

// Engines lists the engine names accepted by Open.
var Engines = []string{"sqlite", "duckdb", "mysql", "postgres", "remote"}

// Config selects and configures an engine.
type Config struct {
	// Engine is one of Engines.
	Engine string
	// DSN is the data source name of the engine. For remote it is the
	// host:port of the server.
	DSN string

	// Token is the JWT sent to a remote server.
	Token string
	// TLS enables TLS to a remote server.
	TLS *tls.Config
	// RemoteDialect names the engine behind a remote server. It enables
	// dialect features such as transaction keywords and last insert ids.
	RemoteDialect string

	NullPolicy core.NullPolicy
	// UsePrepared overrides the prepared statement default.
	UsePrepared *bool

	// Journal is a directory for a file journal, or MemoryJournal.
	// Statements are not journaled when it is empty.
	Journal string
	// Identity is the journal author.
	Identity core.Identity
}

// Open connects to the configured engine.
func Open(ctx context.Context, config Config) (*db.Access, error) {
	conn, err := OpenConn(ctx, config)
	if err != nil {
		return nil, err
	}

	log, err := OpenJournal(config.Journal)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return db.New(conn, db.Options{
		NullPolicy:  config.NullPolicy,
		UsePrepared: config.UsePrepared,
		Journal:     log,
		Identity:    config.Identity,
	}), nil
}

// OpenConn opens the engine connection of config.
func OpenConn(ctx context.Context, config Config) (engine.Conn, error) {
	switch strings.ToLower(config.Engine) {
	case "sqlite", "sqlite3":
		conn, err := sqlite.Open(ctx, config.DSN)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case "duckdb":
		conn, err := duckdb.Open(ctx, config.DSN)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case "mysql":
		conn, err := mysql.Open(ctx, config.DSN)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case "postgres", "postgresql", "pgx":
		conn, err := postgres.Open(ctx, config.DSN)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case "remote":
		options := remote.Options{Token: config.Token, TLS: config.TLS}
		if config.RemoteDialect != "" {
			dialect, ok := sql.LookupDialect(config.RemoteDialect)
			if !ok {
				return nil, fmt.Errorf("unknown dialect: %s", config.RemoteDialect)
			}
			options.Dialect = dialect
		}
		conn, err := remote.Dial(ctx, config.DSN, options)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unknown engine %q (expected one of %s)", config.Engine, strings.Join(Engines, ", "))
	}
}

// OpenJournal opens the journal at path. It returns nil for an empty path.
func OpenJournal(path string) (*journal.Journal, error) {
	switch path {
	case "":
		return nil, nil
	case MemoryJournal:
		return journal.NewMemory()
	default:
		return journal.NewFile(path)
	}
}
