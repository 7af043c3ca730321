package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"sql2csv/internal/pipeline"
)

// Summary prints the final per-stage counts and timings as a table:
//
//	+---------+-------+---------+--------+
//	| STAGE   | ROWS  | ELAPSED | ROWS/S |
//	+---------+-------+---------+--------+
//	| read    | 1,000 | 1.2s    | 833    |
//	...
func Summary(w io.Writer, s pipeline.Snapshot) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"STAGE", "ROWS", "ELAPSED", "ROWS/S"})
	// Auto-formatting would upper-case durations in the footer.
	table.SetAutoFormatHeaders(false)

	table.Append(summaryRow("read", s.Read, s.ReadTime))
	table.Append(summaryRow("process", s.Processed, s.ProcessTime))
	table.Append(summaryRow("write", s.Written, s.WriteTime))
	table.SetFooter([]string{"total", "", s.Elapsed.Truncate(time.Millisecond).String(), ""})
	table.Render()
}

func summaryRow(stage string, n int64, d time.Duration) []string {
	return []string{stage, humanize.Comma(n), d.Truncate(time.Millisecond).String(), rate(n, d)}
}

func rate(n int64, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return humanize.Comma(int64(float64(n) / d.Seconds()))
}

// Digest formats an output checksum line.
func Digest(path string, bytes int64, sum uint64) string {
	return fmt.Sprintf("%s: %s bytes, xxh3 %016x", path, humanize.Comma(bytes), sum)
}
