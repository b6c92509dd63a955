// Package postgres binds PostgreSQL through the database/sql driver of
// github.com/jackc/pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/nickyhof/dbaccess/engine/sqlengine"
	"github.com/nickyhof/dbaccess/sql"
)

// Open connects with a URL or keyword/value connection string.
func Open(ctx context.Context, dsn string) (*sqlengine.Conn, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	db := stdlib.OpenDB(*config)
	db.SetMaxOpenConns(1)

	conn, err := sqlengine.Wrap(ctx, db, sql.Postgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	return conn, nil
}
