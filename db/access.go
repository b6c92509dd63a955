package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/nickyhof/dbaccess/core"
	"github.com/nickyhof/dbaccess/engine"
	"github.com/nickyhof/dbaccess/journal"
	"github.com/nickyhof/dbaccess/sql"
)

// Options configures an Access.
type Options struct {
	// NullPolicy selects how NULL columns are decoded.
	NullPolicy core.NullPolicy
	// UsePrepared overrides the default strategy of new statements. The
	// default is prepared whenever the engine can prepare.
	UsePrepared *bool
	// Journal, when set, records every statement that changed data.
	Journal *journal.Journal
	// Identity is the journal commit author.
	Identity core.Identity
}

// Access owns one engine connection and creates the statements that run
// on it.
type Access struct {
	conn    engine.Conn
	options Options
	ctx     context.Context

	transaction *Transaction
}

// New wraps conn. The Access takes ownership and closes conn on Close.
func New(conn engine.Conn, options Options) *Access {
	if options.Identity == (core.Identity{}) {
		options.Identity = core.Identity{Name: "dbaccess", Email: "dbaccess@localhost"}
	}
	return &Access{
		conn:    conn,
		options: options,
		ctx:     context.Background(),
	}
}

func (a *Access) Conn() engine.Conn {
	return a.conn
}

func (a *Access) Dialect() sql.Dialect {
	return a.conn.Dialect()
}

func (a *Access) Journal() *journal.Journal {
	return a.options.Journal
}

func (a *Access) Options() Options {
	return a.options
}

// SetIdentity changes the author of later journal commits.
func (a *Access) SetIdentity(identity core.Identity) {
	a.options.Identity = identity
}

// SetContext sets the context of statements created afterwards.
func (a *Access) SetContext(ctx context.Context) {
	a.ctx = ctx
}

// NewStatement creates a statement with the access defaults.
func (a *Access) NewStatement() *Statement {
	usePrepared := a.conn.CanPrepare()
	if a.options.UsePrepared != nil {
		usePrepared = *a.options.UsePrepared && usePrepared
	}
	return &Statement{
		access:      a,
		ctx:         a.ctx,
		codec:       core.Codec{Policy: a.options.NullPolicy},
		usePrepared: usePrepared,
	}
}

// NewQuery creates a statement and sets query on it.
func (a *Access) NewQuery(query string) *Statement {
	statement := a.NewStatement()
	statement.Set(query)
	return statement
}

// newInternal creates a literal SQL statement that is never journaled.
func (a *Access) newInternal(query string) *Statement {
	statement := a.NewStatement()
	statement.usePrepared = false
	statement.internal = true
	statement.SetVerbatim(query)
	return statement
}

// Exec runs a statement without parameters and discards any rows. The
// query is passed to the engine as is.
func (a *Access) Exec(query string) core.Result {
	statement := a.NewStatement()
	statement.SetVerbatim(query)
	defer statement.Close()

	result := statement.Execute()
	statement.Reset()
	return result
}

// SetCaching sets the page cache size and page size of engines that have
// them. A negative value leaves the setting unchanged.
func (a *Access) SetCaching(cacheSize int, pageSize int) core.Result {
	var result core.Result
	dialect := a.Dialect()
	if dialect.CacheSize == "" {
		result.SetWarning("Caching settings are not supported by " + dialect.Name)
		return result
	}

	if cacheSize >= 0 {
		result.Merge(a.execInternal(fmt.Sprintf(dialect.CacheSize, cacheSize)))
	}
	if pageSize >= 0 && result.IsOk() {
		result.Merge(a.execInternal(fmt.Sprintf(dialect.PageSize, pageSize)))
	}
	return result
}

func (a *Access) execInternal(query string) core.Result {
	statement := a.newInternal(query)
	defer statement.Close()

	result := statement.Execute()
	statement.Reset()
	return result
}

// LastInsertedRowIndex returns the key the engine generated for the last
// insert on this connection.
func (a *Access) LastInsertedRowIndex() (int64, core.Result) {
	var result core.Result
	dialect := a.Dialect()
	if dialect.LastInsertID == "" {
		result.SetError("Last inserted row index is not supported by " + dialect.Name)
		return 0, result
	}

	statement := a.newInternal(dialect.LastInsertID)
	defer statement.Close()

	result = statement.GetRow()
	if !result.IsOk() {
		return 0, result
	}
	return statement.ColumnInt64(0)
}

// journalStatement records a statement that completed without result
// columns. Outside a transaction it is committed at once. Journal failures
// are returned as warnings.
func (a *Access) journalStatement(query string, values []core.Value, literal string) core.Result {
	var result core.Result
	log := a.options.Journal
	if log == nil {
		return result
	}

	if literal == "" {
		var err error
		literal, err = sql.Inline(query, values)
		if err != nil {
			result.SetWarning("Unable to journal " + query + ": " + err.Error())
			return result
		}
	}
	log.Record(literal)

	if a.transaction != nil {
		return result
	}
	return a.commitJournal("Autocommit")
}

func (a *Access) commitJournal(message string) core.Result {
	var result core.Result
	log := a.options.Journal
	if log == nil {
		return result
	}

	entry, err := log.Commit(a.options.Identity, message)
	if err != nil {
		if errors.Is(err, journal.ErrNothingPending) {
			return result
		}
		result.SetWarning("Unable to commit journal: " + err.Error())
		return result
	}
	if glog.V(2) {
		glog.Infof("Journal entry %d committed: %s", entry.Sequence, entry.ID)
	}
	return result
}

// Close rolls back an open transaction and closes the connection.
func (a *Access) Close() core.Result {
	var result core.Result
	if a.transaction != nil {
		result.Merge(a.transaction.Rollback())
	}
	if err := a.conn.Close(); err != nil {
		result.SetError(err.Error())
		result.InsertContext("Unable to close " + a.Dialect().Name + " connection")
	}
	return result
}
