package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ValidateFunc performs a backend-specific dry run of query.
type ValidateFunc func(ctx context.Context, db *sql.DB, query string) error

// CellFunc rewrites a scanned cell given its column's database type name.
type CellFunc func(typeName string, v any) any

// SQLSource adapts a *sql.DB to Source. Backends built on database/sql only
// supply the pre-flight check and, optionally, a CellFunc.
type SQLSource struct {
	db       *sql.DB
	validate ValidateFunc
	cell     CellFunc
}

var _ Source = (*SQLSource)(nil)

// NewSQLSource wraps db. When validate is nil, PrepareValidate is used.
func NewSQLSource(db *sql.DB, validate ValidateFunc) *SQLSource {
	if validate == nil {
		validate = PrepareValidate
	}
	return &SQLSource{db: db, validate: validate}
}

// WithCellFunc makes every cursor pass scanned cells through fn.
func (s *SQLSource) WithCellFunc(fn CellFunc) *SQLSource {
	s.cell = fn
	return s
}

// PrepareValidate asks the server to prepare query and discards the
// statement; nothing is executed.
func PrepareValidate(ctx context.Context, db *sql.DB, query string) error {
	stmt, err := db.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	return stmt.Close()
}

// DB exposes the underlying pool.
func (s *SQLSource) DB() *sql.DB { return s.db }

func (s *SQLSource) Validate(ctx context.Context, query string) error {
	return s.validate(ctx, s.db, query)
}

func (s *SQLSource) Query(ctx context.Context, query string) (Cursor, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	cur, err := NewSQLCursor(rows)
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	cur.cell = s.cell
	return cur, nil
}

func (s *SQLSource) Close() error { return s.db.Close() }

// SQLCursor adapts *sql.Rows to Cursor. Cells are scanned into *any, so the
// driver's native types (and copies of []byte) reach the transform stage.
type SQLCursor struct {
	rows    *sql.Rows
	columns []string
	types   []string
	ptrs    []any
	cell    CellFunc
}

var _ Cursor = (*SQLCursor)(nil)

// NewSQLCursor reads the column names and types of rows.
func NewSQLCursor(rows *sql.Rows) (*SQLCursor, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}
	types := make([]string, len(cols))
	for i := range cts {
		if i < len(types) {
			types[i] = strings.ToUpper(cts[i].DatabaseTypeName())
		}
	}
	return &SQLCursor{rows: rows, columns: cols, types: types, ptrs: make([]any, len(cols))}, nil
}

func (c *SQLCursor) Columns() []string     { return c.columns }
func (c *SQLCursor) ColumnTypes() []string { return c.types }
func (c *SQLCursor) Next() bool            { return c.rows.Next() }
func (c *SQLCursor) Err() error            { return c.rows.Err() }
func (c *SQLCursor) Close() error          { return c.rows.Close() }

func (c *SQLCursor) Scan(dst []any) error {
	if len(dst) != len(c.columns) {
		return fmt.Errorf("scan: got %d cells, want %d", len(dst), len(c.columns))
	}
	for i := range dst {
		c.ptrs[i] = &dst[i]
	}
	if err := c.rows.Scan(c.ptrs...); err != nil {
		return err
	}
	if c.cell != nil {
		for i, v := range dst {
			dst[i] = c.cell(c.types[i], v)
		}
	}
	return nil
}
