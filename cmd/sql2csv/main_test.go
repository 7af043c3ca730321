package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sql2csv/internal/pipeline"
	"sql2csv/internal/source"
)

// fakeSource hands out cursors built by newCursor with the query context.
type fakeSource struct {
	newCursor func(ctx context.Context) source.Cursor
}

func (s *fakeSource) Validate(context.Context, string) error { return nil }
func (s *fakeSource) Close() error                           { return nil }

func (s *fakeSource) Query(ctx context.Context, _ string) (source.Cursor, error) {
	return s.newCursor(ctx), nil
}

// stubCursor yields ids 1..n. With err set it fails after n rows; with
// block set it then waits for its query context instead of ending.
type stubCursor struct {
	ctx   context.Context
	n     int
	err   error
	block bool
	pos   int
}

func (c *stubCursor) Columns() []string     { return []string{"id"} }
func (c *stubCursor) ColumnTypes() []string { return []string{"INT"} }
func (c *stubCursor) Close() error          { return nil }

func (c *stubCursor) Next() bool {
	if c.pos < c.n {
		c.pos++
		return true
	}
	if c.block {
		<-c.ctx.Done()
	}
	return false
}

func (c *stubCursor) Scan(dst []any) error {
	dst[0] = int64(c.pos)
	return nil
}

func (c *stubCursor) Err() error {
	if c.block {
		return c.ctx.Err()
	}
	return c.err
}

// withSource swaps the source seam for the duration of a (non-parallel) test.
func withSource(t *testing.T, src source.Source) {
	t.Helper()
	prev := newSource
	newSource = func(context.Context, source.Config) (source.Source, error) { return src, nil }
	t.Cleanup(func() { newSource = prev })
}

// newTestDB creates a SQLite database with a small table and returns its path.
func newTestDB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "src.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE people (id INTEGER, name TEXT, note TEXT)`,
		`INSERT INTO people VALUES (1, '  Ann ', 'say "hi"')`,
		`INSERT INTO people VALUES (2, 'Bob', 'b' || char(9) || char(9) || 'c')`,
		`INSERT INTO people VALUES (3, 'Cy', NULL)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return path
}

func TestRunExportsSQLite(t *testing.T) {
	t.Parallel()

	dbPath := newTestDB(t)
	out := filepath.Join(t.TempDir(), "people.csv")

	var stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-kind", "sqlite",
		"-dsn", dbPath,
		"-query", "SELECT id, name, note FROM people ORDER BY id",
		"-output", out,
		"-headers",
		"-workers", "1",
	}, &stderr)
	if code != exitOK {
		t.Fatalf("run() = %d, want %d; stderr:\n%s", code, exitOK, stderr.String())
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := `"id","name","note"` + "\n" +
		`"1","Ann","say ""hi"""` + "\n" +
		`"2","Bob","b c"` + "\n" +
		`"3","Cy",""` + "\n"
	if string(got) != want {
		t.Fatalf("output =\n%s\nwant\n%s", got, want)
	}
	if !strings.Contains(stderr.String(), "xxh3") {
		t.Fatalf("stderr does not carry the output digest:\n%s", stderr.String())
	}
}

func TestRunCRLFAndDelimiter(t *testing.T) {
	t.Parallel()

	dbPath := newTestDB(t)
	out := filepath.Join(t.TempDir(), "people.csv")

	var stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-kind", "sqlite", "-dsn", dbPath,
		"-query", "SELECT id, name FROM people WHERE id = 2",
		"-output", out, "-crlf", "-delimiter", ";",
	}, &stderr)
	if code != exitOK {
		t.Fatalf("run() = %d; stderr:\n%s", code, stderr.String())
	}
	got, _ := os.ReadFile(out)
	if string(got) != `"2";"Bob"`+"\r\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestRunEmptyResultWritesHeaderOnly(t *testing.T) {
	t.Parallel()

	dbPath := newTestDB(t)
	out := filepath.Join(t.TempDir(), "none.csv")

	var stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-kind", "sqlite", "-dsn", dbPath,
		"-query", "SELECT id FROM people WHERE id > 100",
		"-output", out, "-headers",
	}, &stderr)
	if code != exitOK {
		t.Fatalf("run() = %d; stderr:\n%s", code, stderr.String())
	}
	got, _ := os.ReadFile(out)
	if string(got) != `"id"`+"\n" {
		t.Fatalf("output = %q, want header only", got)
	}
}

func TestRunBlobColumnsRenderAsHex(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "blobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, s := range []string{
		`CREATE TABLE b (id INTEGER, v BLOB)`,
		`INSERT INTO b VALUES (1, x'4142'), (2, x'FF00'), (3, x'0141')`,
	} {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	_ = db.Close()

	out := filepath.Join(t.TempDir(), "b.csv")
	var stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-kind", "sqlite", "-dsn", dbPath,
		"-query", "SELECT id, v FROM b ORDER BY id",
		"-output", out, "-workers", "1",
	}, &stderr)
	if code != exitOK {
		t.Fatalf("run() = %d; stderr:\n%s", code, stderr.String())
	}
	got, _ := os.ReadFile(out)
	want := `"1","0x4142"` + "\n" + `"2","0xFF00"` + "\n" + `"3","0x0141"` + "\n"
	if string(got) != want {
		t.Fatalf("output =\n%s\nwant\n%s", got, want)
	}
}

func TestRunCancelAbortsInFlightQuery(t *testing.T) {
	var cur *stubCursor
	withSource(t, &fakeSource{newCursor: func(ctx context.Context) source.Cursor {
		cur = &stubCursor{ctx: ctx, n: 3, block: true}
		return cur
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)

	out := filepath.Join(t.TempDir(), "slow.csv")
	var stderr bytes.Buffer
	start := time.Now()
	code := run(ctx, []string{"-kind", "sqlite", "-dsn", "x.db", "-query", "SELECT id FROM slow", "-output", out, "-workers", "1"}, &stderr)
	took := time.Since(start)

	if code != exitFail {
		t.Fatalf("run() = %d, want %d; stderr:\n%s", code, exitFail, stderr.String())
	}
	if took > 5*time.Second {
		t.Fatalf("run() took %v after cancellation", took)
	}
	if cur == nil || cur.ctx.Err() == nil {
		t.Fatalf("query context was not cancelled")
	}
	msg := stderr.String()
	if !strings.Contains(msg, "sql2csv: context canceled") || strings.Contains(msg, "transform:") {
		t.Fatalf("stderr = %q, want a stage-less cancellation", msg)
	}
	got, _ := os.ReadFile(out)
	if string(got) != `"1"`+"\n"+`"2"`+"\n"+`"3"`+"\n" {
		t.Fatalf("output = %q, want the rows read before cancellation", got)
	}
}

func TestRunReaderFaultExitsNonZero(t *testing.T) {
	withSource(t, &fakeSource{newCursor: func(ctx context.Context) source.Cursor {
		return &stubCursor{ctx: ctx, n: 2, err: errors.New("connection reset")}
	}})

	out := filepath.Join(t.TempDir(), "partial.csv")
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"-kind", "sqlite", "-dsn", "x.db", "-query", "SELECT id FROM t", "-output", out}, &stderr)
	if code != exitFail {
		t.Fatalf("run() = %d, want %d", code, exitFail)
	}

	msg := stderr.String()
	if !strings.Contains(msg, "sql2csv: reader: fetch after row 2: connection reset") {
		t.Fatalf("stderr = %q, want reader fault", msg)
	}
	for _, stage := range []string{"read", "process", "write"} {
		if got := summaryRows(msg, stage); got != "2" {
			t.Fatalf("summary %s rows = %q, want 2:\n%s", stage, got, msg)
		}
	}
	got, _ := os.ReadFile(out)
	if string(got) != `"1"`+"\n"+`"2"`+"\n" {
		t.Fatalf("output = %q, want the rows read before the fault", got)
	}
}

func TestRunValidationFailure(t *testing.T) {
	t.Parallel()

	dbPath := newTestDB(t)
	out := filepath.Join(t.TempDir(), "never.csv")

	var stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-kind", "sqlite", "-dsn", dbPath,
		"-query", "SELEC nothing FROM",
		"-output", out,
	}, &stderr)
	if code != exitFail {
		t.Fatalf("run() = %d, want %d", code, exitFail)
	}
	if !strings.Contains(stderr.String(), "validate query:") {
		t.Fatalf("stderr = %q, want validate query diagnostic", stderr.String())
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output file exists after failed pre-flight (stat err = %v)", err)
	}
}

func TestRunValidateOnly(t *testing.T) {
	t.Parallel()

	dbPath := newTestDB(t)
	out := filepath.Join(t.TempDir(), "never.csv")

	var stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-kind", "sqlite", "-dsn", dbPath,
		"-query", "SELECT * FROM people",
		"-output", out, "-validate",
	}, &stderr)
	if code != exitOK {
		t.Fatalf("run() = %d; stderr:\n%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "query is valid") {
		t.Fatalf("stderr = %q", stderr.String())
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("-validate created the output file")
	}
}

func TestRunInvalidConfiguration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no output", args: []string{"-kind", "sqlite", "-dsn", "x.db", "-query", "SELECT 1"}, want: "output.path"},
		{name: "no query", args: []string{"-kind", "sqlite", "-dsn", "x.db", "-output", "o.csv"}, want: "query"},
		{name: "unknown kind", args: []string{"-kind", "oracle", "-dsn", "x", "-query", "q", "-output", "o.csv"}, want: "source.kind"},
		{name: "bad flag", args: []string{"-nope"}, want: "nope"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var stderr bytes.Buffer
			if code := run(context.Background(), tt.args, &stderr); code != exitUsage {
				t.Fatalf("run() = %d, want %d", code, exitUsage)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Fatalf("stderr = %q, want mention of %q", stderr.String(), tt.want)
			}
		})
	}
}

func TestParseArgsOverlaysConfigFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := filepath.Join(dir, "export.json")
	body := `{
	  "job": "people",
	  "source": { "kind": "postgres", "dsn": "postgres://ro@db/app" },
	  "input": "people.sql",
	  "output": { "path": "from-file.csv", "headers": true, "delimiter": "|" }
	}`
	if err := os.WriteFile(cfg, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	e, opt, err := parseArgs([]string{"-config", cfg, "-output", "from-flag.csv", "-query", "SELECT 1"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseArgs() error = %v", err)
	}
	if opt.cfgPath != cfg {
		t.Fatalf("cfgPath = %q", opt.cfgPath)
	}
	if e.Output.Path != "from-flag.csv" {
		t.Fatalf("output path = %q, want flag value", e.Output.Path)
	}
	if e.Source.Kind != "postgres" || e.Job != "people" {
		t.Fatalf("file values lost: %+v", e)
	}
	if !e.Output.Headers || e.Output.Delimiter != "|" {
		t.Fatalf("unset flags overrode file values: %+v", e.Output)
	}
	if e.Query != "SELECT 1" || e.Input != "" {
		t.Fatalf("-query should replace the file's input: query=%q input=%q", e.Query, e.Input)
	}
}

func TestParseArgsDefaults(t *testing.T) {
	t.Parallel()

	e, _, err := parseArgs([]string{"-server", "db1", "-query", "SELECT 1", "-output", "o.csv"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseArgs() error = %v", err)
	}
	if e.Source.Kind != "mssql" {
		t.Fatalf("default kind = %q, want mssql", e.Source.Kind)
	}
	if e.Output.Delimiter != "," || e.Output.CRLF || e.Output.Headers {
		t.Fatalf("output defaults = %+v", e.Output)
	}
}

func TestReportErrorSplitsJoinedFaults(t *testing.T) {
	t.Parallel()

	err := errors.Join(
		&pipeline.StageError{Stage: pipeline.StageTransform, Err: errors.New("row 3: panic: boom")},
		&pipeline.StageError{Stage: pipeline.StageWriter, Err: errors.New("disk full")},
	)
	var buf bytes.Buffer
	reportError(&buf, err)

	want := "sql2csv: transform: row 3: panic: boom\nsql2csv: writer: disk full\n"
	if buf.String() != want {
		t.Fatalf("reportError() =\n%q\nwant\n%q", buf.String(), want)
	}
}

// summaryRows returns the ROWS cell of stage in a rendered summary table.
func summaryRows(out, stage string) string {
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(strings.ReplaceAll(line, "|", " "))
		if len(f) >= 2 && f[0] == stage {
			return f[1]
		}
	}
	return ""
}
