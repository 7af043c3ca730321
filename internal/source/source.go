// Package source defines the storage-agnostic Row Source contract and a
// registry of backend factories.
//
// Backends live in subpackages and register themselves from init; importing
// sql2csv/internal/source/all enables every built-in backend:
//
//	import _ "sql2csv/internal/source/all"
//
//	src, err := source.New(ctx, source.Config{Kind: "mssql", DSN: dsn})
//	if err != nil { ... }
//	defer src.Close()
//	if err := src.Validate(ctx, query); err != nil { ... } // pre-flight
//	cur, err := src.Query(ctx, query)
package source

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config selects and configures a backend.
type Config struct {
	// Kind names a registered backend: "mssql", "postgres", "mysql", "sqlite".
	Kind string
	// DSN is passed to the backend driver unchanged.
	DSN string
}

// Source is a live connection able to validate and run a query.
type Source interface {
	// Validate checks that query compiles without executing it.
	Validate(ctx context.Context, query string) error
	// Query executes query and returns a cursor over its result set. There is
	// no timeout beyond ctx.
	Query(ctx context.Context, query string) (Cursor, error)
	// Close releases the connection pool.
	Close() error
}

// Cursor is a sequential, lazy, finite sequence of rows.
type Cursor interface {
	Columns() []string
	// ColumnTypes returns the upper-case database type name of each column,
	// "" where the driver does not report one.
	ColumnTypes() []string
	Next() bool
	// Scan copies the current row's cells into dst (len(dst) == len(Columns())).
	Scan(dst []any) error
	Err() error
	Close() error
}

// Factory opens a Source for cfg.
type Factory func(ctx context.Context, cfg Config) (Source, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It panics on duplicates,
// which can only happen through a programming error at init time.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("source: duplicate registration for kind " + kind)
	}
	factories[kind] = f
}

// New opens the backend registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Source, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported source kind %q (known: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
