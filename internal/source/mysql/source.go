// Package mysql implements a MySQL Row Source on top of go-sql-driver/mysql.
// Queries are validated with a server-side prepare.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"sql2csv/internal/source"
)

func init() {
	source.Register("mysql", func(ctx context.Context, cfg source.Config) (source.Source, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Open parses dsn, connects and returns a Source.
func Open(ctx context.Context, dsn string) (*source.SQLSource, error) {
	cfg, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	conn, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(conn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return source.NewSQLSource(db, source.PrepareValidate), nil
}

// ParseDSN parses dsn and tags the session with the program name.
func ParseDSN(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	if cfg.ConnectionAttributes == "" {
		cfg.ConnectionAttributes = "program_name:sql2csv"
	}
	return cfg, nil
}
