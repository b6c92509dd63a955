// Package mysql binds MySQL and MariaDB servers through
// github.com/go-sql-driver/mysql.
package mysql

import (
	"context"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/nickyhof/dbaccess/engine/sqlengine"
	"github.com/nickyhof/dbaccess/sql"
)

const DriverName = "mysql"

// Open connects with a go-sql-driver DSN such as
// "user:password@tcp(localhost:3306)/test".
func Open(ctx context.Context, dsn string) (*sqlengine.Conn, error) {
	config, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	// Multi-row inserts can exceed the default packet size.
	config.MaxAllowedPacket = 0
	return sqlengine.Open(ctx, DriverName, config.FormatDSN(), sql.MySQL)
}
