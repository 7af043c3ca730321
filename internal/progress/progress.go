// Package progress renders pipeline throughput to a status surface.
//
// It is purely observational: it only reads counters and never blocks the
// pipeline stages.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// DefaultInterval is how often the status line is redrawn.
const DefaultInterval = 200 * time.Millisecond

// Stats is the read-only view of the run counters. *pipeline.Counters
// satisfies it.
type Stats interface {
	Read() int64
	Processed() int64
	Written() int64
	Elapsed() time.Duration
}

// Reporter periodically overwrites a single status line on out.
type Reporter struct {
	out      io.Writer
	stats    Stats
	interval time.Duration
}

// New returns a Reporter. interval <= 0 selects DefaultInterval.
func New(out io.Writer, stats Stats, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{out: out, stats: stats, interval: interval}
}

// Run draws the status line every interval until ctx is done, then draws it
// one last time and terminates the line. It always returns nil so it can sit
// in a supervision group without tearing the group down on its own.
func (r *Reporter) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "Read -> Process -> Write")

	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(r.out, "\r%s\n", Line(r.stats))
			return nil
		case <-t.C:
			fmt.Fprintf(r.out, "\r%s", Line(r.stats))
		}
	}
}

// Line renders "read -> processed -> written in elapsed".
func Line(s Stats) string {
	return fmt.Sprintf("%s -> %s -> %s in %s",
		humanize.Comma(s.Read()),
		humanize.Comma(s.Processed()),
		humanize.Comma(s.Written()),
		s.Elapsed().Truncate(time.Millisecond),
	)
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
