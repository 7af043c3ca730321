package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// RowFormatter renders a row's cells into one record. It must be safe for
// concurrent use. *record.Formatter satisfies it.
type RowFormatter interface {
	Format(values []any) string
}

// Transform drains rows with a pool of workers, formats each row and pushes
// the record onto records.
//
// Every worker stops once rows is completed and drained (or ctx is done). When
// the last worker has stopped, records is completed exactly once. A panic
// while formatting is converted into an error naming the row; it is fatal to
// the stage.
func Transform(
	ctx context.Context,
	rows *Queue[*Row],
	records *Queue[string],
	f RowFormatter,
	workers int,
	c *Counters,
) error {
	start := time.Now()
	defer func() {
		records.Complete()
		c.processTime.Store(int64(time.Since(start)))
	}()

	if workers < 1 {
		workers = 1
	}

	// The group context lets a failing worker stop its siblings.
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return transformLoop(gctx, rows, records, f, c)
		})
	}
	return g.Wait()
}

func transformLoop(
	ctx context.Context,
	rows *Queue[*Row],
	records *Queue[string],
	f RowFormatter,
	c *Counters,
) error {
	for {
		r, ok, err := rows.Take(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		rec, err := formatRow(f, r)
		r.Free()
		if err != nil {
			return err
		}

		if err := records.Put(ctx, rec); err != nil {
			return err
		}
		c.processed.Add(1)
	}
}

// formatRow shields the pool from panics in cell conversion.
func formatRow(f RowFormatter, r *Row) (rec string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("row %d: panic: %v", r.Line, p)
		}
	}()
	return f.Format(r.V), nil
}
