package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sql2csv/internal/sink"
)

// Write opens the sink once, writes header (if non-empty), then appends every
// record taken from records as one line until the queue is completed and
// drained.
//
// The sink is closed exactly once on every return path and a close failure
// is joined to the returned error.
func Write(
	ctx context.Context,
	open sink.Opener,
	records *Queue[string],
	header string,
	c *Counters,
) (err error) {
	start := time.Now()
	defer func() { c.writeTime.Store(int64(time.Since(start))) }()

	s, err := open(ctx)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if header != "" {
		if err := s.WriteLine(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for {
		rec, ok, err := records.Take(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := s.WriteLine(rec); err != nil {
			return err
		}
		c.written.Add(1)
	}
}
