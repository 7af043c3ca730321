// Package mssql implements a Microsoft SQL Server Row Source on top of
// go-mssqldb. Queries are validated with SET NOEXEC ON, which compiles the
// batch on the server without running it.
package mssql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"net/url"
	"strconv"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"sql2csv/internal/source"
)

// AppName is reported to the server as the client application name.
const AppName = "sql2csv"

// DefaultPort is the SQL Server TCP port.
const DefaultPort = 1433

// openDB is a test hook; tests may replace it to avoid real connections.
var openDB = func(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

func init() {
	source.Register("mssql", func(ctx context.Context, cfg source.Config) (source.Source, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Open validates dsn, connects and returns a Source.
func Open(ctx context.Context, dsn string) (*source.SQLSource, error) {
	// Fail fast on obvious DSN mistakes before dialing.
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := openDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return source.NewSQLSource(db, validateNoExec).WithCellFunc(guidCell), nil
}

// guidCell renders UNIQUEIDENTIFIER cells, which the driver returns as 16
// bytes in SQL Server's mixed-endian layout, in their canonical form.
func guidCell(typeName string, v any) any {
	b, ok := v.([]byte)
	if !ok || typeName != "UNIQUEIDENTIFIER" || len(b) != 16 {
		return v
	}
	var id mssql.UniqueIdentifier
	if err := id.Scan(b); err != nil {
		return v
	}
	return id.String()
}

// validateNoExec compiles query on a dedicated connection with NOEXEC ON.
// The session flag is reset afterwards; if that fails the connection is
// discarded rather than returned to the pool with NOEXEC still set.
func validateNoExec(ctx context.Context, db *sql.DB, query string) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET NOEXEC ON"); err != nil {
		return fmt.Errorf("set noexec: %w", err)
	}
	defer func() {
		if _, rerr := conn.ExecContext(context.WithoutCancel(ctx), "SET NOEXEC OFF"); rerr != nil {
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}()

	if _, err := conn.ExecContext(ctx, query); err != nil {
		return err
	}
	return nil
}

// DSNConfig holds discrete connection settings used to build a DSN.
type DSNConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	Database string
}

// BuildDSN renders cfg as a sqlserver:// URL with read-only intent and
// encryption disabled.
func BuildDSN(cfg DSNConfig) string {
	port := cfg.Port
	if port <= 0 {
		port = DefaultPort
	}
	server := cfg.Server
	if server == "" {
		server = "localhost"
	}

	q := url.Values{}
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}
	q.Set("app name", AppName)
	q.Set("ApplicationIntent", "ReadOnly")
	q.Set("encrypt", "disable")

	u := url.URL{
		Scheme:   "sqlserver",
		Host:     net.JoinHostPort(server, strconv.Itoa(port)),
		RawQuery: q.Encode(),
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	return u.String()
}
