package config

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

// Environment overrides for runtime knobs left unset in the Export.
const (
	EnvTransformWorkers = "SQL2CSV_TRANSFORM_WORKERS"
	EnvQueueCapacity    = "SQL2CSV_QUEUE_CAPACITY"
)

const (
	defaultQueueCapacity    = 4096
	defaultProgressInterval = 200 * time.Millisecond
	maxDefaultWorkers       = 4
)

// Runtime is the resolved form of RuntimeConfig.
type Runtime struct {
	Workers          int
	QueueCapacity    int
	ProgressInterval time.Duration
}

// Resolve fills unset knobs from the environment (12-factor style) and then
// from built-in defaults. Config values win over environment values.
func (r RuntimeConfig) Resolve() Runtime {
	interval := defaultProgressInterval
	if r.ProgressIntervalMS > 0 {
		interval = time.Duration(r.ProgressIntervalMS) * time.Millisecond
	}
	return Runtime{
		Workers:          pickInt(r.TransformWorkers, getenvInt(EnvTransformWorkers, DefaultWorkers())),
		QueueCapacity:    pickInt(r.QueueCapacity, getenvInt(EnvQueueCapacity, defaultQueueCapacity)),
		ProgressInterval: interval,
	}
}

// DefaultWorkers is half the available CPUs, at least one and at most four.
// Formatting is cheap next to database I/O, so more workers rarely help.
func DefaultWorkers() int {
	n := runtime.NumCPU() / 2
	if n > maxDefaultWorkers {
		n = maxDefaultWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
