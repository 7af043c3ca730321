package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"sql2csv/internal/sink"
)

// Stage names used in StageError and log fields.
const (
	StageReader    = "reader"
	StageTransform = "transform"
	StageWriter    = "writer"
)

// DefaultQueueCapacity bounds each queue when Config.QueueCapacity is unset.
const DefaultQueueCapacity = 4096

// StageError attributes a fault to the stage that raised it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// Query opens the result set. Run calls it once with a context derived from
// the run, so a fault, an interrupt or a reader failure also aborts the
// in-flight driver query.
type Query func(ctx context.Context) (Cursor, error)

// Config holds the resolved knobs of a run.
type Config struct {
	// Workers is the transform pool size (>= 1).
	Workers int
	// QueueCapacity bounds both the row and the record queue.
	QueueCapacity int
	// Formatter renders rows into records.
	Formatter RowFormatter
	// Header, when non-empty, is written as the first line of the sink and is
	// not counted as a record.
	Header string
	// Prepare, when set, is called with the opened cursor before any row is
	// read and replaces Formatter and Header for this result set.
	Prepare func(cur Cursor) (RowFormatter, string)
	// Logger receives stage lifecycle events. Defaults to the logrus standard
	// logger.
	Logger logrus.FieldLogger
}

// Run opens the cursor through query, streams it into the sink produced by
// open and returns once the reader, the transform pool and the writer have
// all finished. Run owns the cursor and closes it. When query fails the sink
// is never opened.
//
// Coordination:
//   - A reader fault completes the row queue; downstream drains what was read.
//     Only the query context is cancelled, before the cursor is closed.
//   - A transform or writer fault cancels the run so upstream stops producing.
//   - The run context is cancelled when the writer returns, which is what
//     stops observers such as the progress reporter when they share it.
//
// The returned error joins one *StageError per root-cause fault. Errors that
// are only a consequence of another stage's fault (context.Canceled) are
// dropped. If ctx itself is cancelled, ctx.Err() is returned without a stage.
func Run(ctx context.Context, query Query, open sink.Opener, cfg Config, c *Counters) error {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	queryCtx, cancelQuery := context.WithCancel(runCtx)
	defer cancelQuery()

	cur, err := query(queryCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &StageError{Stage: StageReader, Err: err}
	}
	formatter, header := cfg.Formatter, cfg.Header
	if cfg.Prepare != nil {
		formatter, header = cfg.Prepare(cur)
	}

	rows := NewQueue[*Row](capacity)
	records := NewQueue[string](capacity)

	log.WithFields(logrus.Fields{
		"workers":  cfg.Workers,
		"capacity": capacity,
		"columns":  len(cur.Columns()),
	}).Debug("pipeline: starting")

	var (
		wg   sync.WaitGroup
		errs [3]error
	)
	wg.Add(3)

	go func() {
		defer wg.Done()
		err := Read(runCtx, cur, rows, c)
		if err != nil {
			// Abort the query first so Close does not drain the result set.
			cancelQuery()
		}
		if cerr := cur.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close cursor: %w", cerr)
		}
		errs[0] = err
		log.WithFields(logrus.Fields{"stage": StageReader, "rows": c.Read()}).Debug("stage finished")
	}()

	go func() {
		defer wg.Done()
		if err := Transform(runCtx, rows, records, formatter, cfg.Workers, c); err != nil {
			errs[1] = err
			cancel()
		}
		log.WithFields(logrus.Fields{"stage": StageTransform, "rows": c.Processed()}).Debug("stage finished")
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		errs[2] = Write(runCtx, open, records, header, c)
		log.WithFields(logrus.Fields{"stage": StageWriter, "rows": c.Written()}).Debug("stage finished")
	}()

	wg.Wait()
	return collectErrors(ctx, errs)
}

func collectErrors(parent context.Context, errs [3]error) error {
	stages := [3]string{StageReader, StageTransform, StageWriter}

	var (
		faults    []error
		cancelled bool
	)
	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			cancelled = true
			continue
		}
		faults = append(faults, &StageError{Stage: stages[i], Err: err})
	}
	switch len(faults) {
	case 0:
	case 1:
		return faults[0]
	default:
		return errors.Join(faults...)
	}
	// The caller stopped the run; no stage is at fault.
	if cancelled && parent.Err() != nil {
		return parent.Err()
	}
	return nil
}
