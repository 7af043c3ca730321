package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Cursor is the sequential, lazy row sequence the reader pulls from.
// It is satisfied by source.Cursor.
type Cursor interface {
	// Columns returns the result-set column names; its length is the row width.
	Columns() []string
	// Next advances to the next row, returning false on exhaustion or error.
	Next() bool
	// Scan copies the current row into dst, which has len(Columns()) cells.
	Scan(dst []any) error
	// Err returns the error, if any, that stopped Next.
	Err() error
	// Close releases the result set.
	Close() error
}

// Read pulls rows from cur until it is exhausted, ctx is cancelled, or a
// fetch fails, pushing each row onto rows.
//
// rows is completed on every return path so downstream stages always
// terminate. Cancellation is reported as ctx.Err(); fetch faults are wrapped.
func Read(ctx context.Context, cur Cursor, rows *Queue[*Row], c *Counters) (err error) {
	start := time.Now()
	defer func() {
		rows.Complete()
		c.readTime.Store(int64(time.Since(start)))
	}()

	pool := NewRowPool(len(cur.Columns()))
	var line int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !cur.Next() {
			break
		}
		line++

		r := pool.Get(line)
		if err := cur.Scan(r.V); err != nil {
			r.Free()
			return fmt.Errorf("scan row %d: %w", line, err)
		}
		if err := rows.Put(ctx, r); err != nil {
			r.Free()
			return err
		}
		c.read.Add(1)
	}

	if err := cur.Err(); err != nil {
		return fmt.Errorf("fetch after row %d: %w", line, err)
	}
	return nil
}
