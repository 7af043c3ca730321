// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics of an export run.
//
//   - Backend is a narrow interface focused on counters and timings.
//   - A global, pluggable backend defaults to a no-op, so instrumentation is
//     always safe to call even when no real backend is configured.
//   - Concrete systems (Prometheus Pushgateway, Datadog) live in subpackages
//     so the pipeline never imports them.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the helpers below.
const (
	StageTotal       = "sql2csv_stage_total"
	StageDuration    = "sql2csv_stage_duration_seconds"
	RowsTotal        = "sql2csv_rows_total"
	OutputBytesTotal = "sql2csv_output_bytes_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStage records the outcome and duration of one pipeline stage
// ("validate", "reader", "transform", "writer").
func RecordStage(job, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    job,
		"stage":  stage,
		"status": status,
	}
	b := current()
	b.IncCounter(StageTotal, 1, lbls)
	b.ObserveHistogram(StageDuration, d.Seconds(), lbls)
}

// RecordRows increments the row counter for kind ("read", "processed",
// "written"). Non-positive deltas are ignored.
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordOutputBytes increments the uncompressed output size counter.
func RecordOutputBytes(job string, n int64) {
	if n <= 0 {
		return
	}
	current().IncCounter(OutputBytesTotal, float64(n), Labels{"job": job})
}
