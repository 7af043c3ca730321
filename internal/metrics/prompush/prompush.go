// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// An export is a short-lived batch process with nothing to scrape, so
// collected series are pushed to a Pushgateway once the run finishes:
//
//   - stage outcomes and durations map onto a CounterVec and SummaryVec keyed
//     by stage and status;
//   - row counts map onto a CounterVec keyed by kind;
//   - the job label becomes the Pushgateway grouping key.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"sql2csv/internal/metrics"
)

// DefaultJob is the grouping key used when no job name is given.
const DefaultJob = "sql2csv"

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stageCounter  *prometheus.CounterVec // sql2csv_stage_total
	stageDuration *prometheus.SummaryVec // sql2csv_stage_duration_seconds
	rowCounter    *prometheus.CounterVec // sql2csv_rows_total
	bytesCounter  prometheus.Counter     // sql2csv_output_bytes_total
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name.
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = DefaultJob
	}

	reg := prometheus.NewRegistry()

	stageCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.StageTotal,
			Help: "Pipeline stage completions, partitioned by stage and status.",
		},
		[]string{"stage", "status"},
	)
	stageDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.StageDuration,
			Help:       "Wall time of pipeline stages in seconds, partitioned by stage and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"stage", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows moved through the pipeline per kind (read, processed, written).",
		},
		[]string{"kind"},
	)
	bytesCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metrics.OutputBytesTotal,
			Help: "Uncompressed bytes written to the output file.",
		},
	)

	for _, c := range []struct {
		what string
		col  prometheus.Collector
	}{
		{"stage counter", stageCounter},
		{"stage summary", stageDuration},
		{"row counter", rowCounter},
		{"bytes counter", bytesCounter},
	} {
		if err := reg.Register(c.col); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", c.what, err)
		}
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		stageCounter:  stageCounter,
		stageDuration: stageDuration,
		rowCounter:    rowCounter,
		bytesCounter:  bytesCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StageTotal:
		if b.stageCounter == nil {
			return
		}
		b.stageCounter.WithLabelValues(labels["stage"], labels["status"]).Add(delta)

	case metrics.RowsTotal:
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["kind"]).Add(delta)

	case metrics.OutputBytesTotal:
		if b.bytesCounter == nil {
			return
		}
		b.bytesCounter.Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StageDuration || b.stageDuration == nil {
		return
	}
	b.stageDuration.WithLabelValues(labels["stage"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
