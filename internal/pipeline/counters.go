package pipeline

import (
	"sync/atomic"
	"time"
)

// Counters holds the cross-goroutine statistics of a single run.
//
// Each counter has exactly one writer (the owning stage); the progress
// reporter reads them without further synchronisation. Stale reads are fine.
type Counters struct {
	read      atomic.Int64 // rows fetched by the reader
	processed atomic.Int64 // rows turned into records
	written   atomic.Int64 // records appended to the sink

	readTime      atomic.Int64 // nanoseconds
	processTime   atomic.Int64
	writeTime     atomic.Int64
	startUnixNano atomic.Int64
}

// NewCounters returns zeroed counters whose wall clock starts now.
func NewCounters() *Counters {
	c := &Counters{}
	c.startUnixNano.Store(time.Now().UnixNano())
	return c
}

func (c *Counters) Read() int64      { return c.read.Load() }
func (c *Counters) Processed() int64 { return c.processed.Load() }
func (c *Counters) Written() int64   { return c.written.Load() }

// Elapsed returns wall-clock time since the counters were created.
func (c *Counters) Elapsed() time.Duration {
	return time.Since(time.Unix(0, c.startUnixNano.Load()))
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Read      int64
	Processed int64
	Written   int64

	ReadTime    time.Duration
	ProcessTime time.Duration
	WriteTime   time.Duration
	Elapsed     time.Duration
}

// Snapshot copies the current values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Read:        c.read.Load(),
		Processed:   c.processed.Load(),
		Written:     c.written.Load(),
		ReadTime:    time.Duration(c.readTime.Load()),
		ProcessTime: time.Duration(c.processTime.Load()),
		WriteTime:   time.Duration(c.writeTime.Load()),
		Elapsed:     c.Elapsed(),
	}
}
