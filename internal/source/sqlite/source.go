// Package sqlite implements a SQLite Row Source using the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sql2csv/internal/source"
)

func init() {
	source.Register("sqlite", func(ctx context.Context, cfg source.Config) (source.Source, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Open opens the database named by dsn, for example:
//
//	"file:export.db?mode=ro"
//	"export.db"
func Open(ctx context.Context, dsn string) (*source.SQLSource, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return source.NewSQLSource(db, source.PrepareValidate), nil
}
