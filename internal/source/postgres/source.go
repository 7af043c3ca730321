// Package postgres implements a PostgreSQL Row Source using pgx v5.
// Queries are validated by preparing them server-side, which parses and plans
// without executing.
package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"sql2csv/internal/source"
)

const validateStmt = "sql2csv_validate"

// Source is a pgxpool-backed source.Source.
type Source struct {
	pool  *pgxpool.Pool
	types *pgtype.Map
}

var _ source.Source = (*Source)(nil)

func init() {
	source.Register("postgres", func(ctx context.Context, cfg source.Config) (source.Source, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Open connects to dsn and pings the server.
func Open(ctx context.Context, dsn string) (*Source, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Source{pool: pool, types: pgtype.NewMap()}, nil
}

// Validate prepares query on a pooled connection and deallocates it.
func (s *Source) Validate(ctx context.Context, query string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Conn().Prepare(ctx, validateStmt, query); err != nil {
		return err
	}
	return conn.Conn().Deallocate(ctx, validateStmt)
}

// Query runs query and returns a cursor over the result.
func (s *Source) Query(ctx context.Context, query string) (source.Cursor, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	types := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
		types[i] = typeName(s.types, fd.DataTypeOID)
	}
	return &cursor{rows: rows, columns: cols, types: types}, nil
}

// typeName resolves a column's type OID to an upper-case name such as
// "BYTEA"; unregistered OIDs yield "".
func typeName(m *pgtype.Map, oid uint32) string {
	if t, ok := m.TypeForOID(oid); ok {
		return strings.ToUpper(t.Name)
	}
	return ""
}

func (s *Source) Close() error {
	s.pool.Close()
	return nil
}

type cursor struct {
	rows    pgx.Rows
	columns []string
	types   []string
}

func (c *cursor) Columns() []string     { return c.columns }
func (c *cursor) ColumnTypes() []string { return c.types }
func (c *cursor) Next() bool            { return c.rows.Next() }
func (c *cursor) Err() error            { return c.rows.Err() }

func (c *cursor) Close() error {
	c.rows.Close()
	return nil
}

func (c *cursor) Scan(dst []any) error {
	vals, err := c.rows.Values()
	if err != nil {
		return err
	}
	if len(vals) != len(dst) {
		return fmt.Errorf("scan: got %d cells, want %d", len(vals), len(dst))
	}
	for i, v := range vals {
		dst[i] = cell(v)
	}
	return nil
}

// cell lowers pgx-specific decoded values to plain Go values the formatter
// understands. Numeric, interval and friends implement driver.Valuer.
func cell(v any) any {
	switch x := v.(type) {
	case nil, string, []byte, bool, int16, int32, int64, float32, float64:
		return x
	case [16]byte:
		return uuid.UUID(x).String()
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return fmt.Sprint(x)
		}
		return dv
	default:
		return x
	}
}
