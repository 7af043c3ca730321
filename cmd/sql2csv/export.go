package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	group "github.com/oklog/run"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"sql2csv/internal/config"
	"sql2csv/internal/metrics"
	"sql2csv/internal/metrics/datadog"
	"sql2csv/internal/metrics/prompush"
	"sql2csv/internal/pipeline"
	"sql2csv/internal/progress"
	"sql2csv/internal/record"
	"sql2csv/internal/sink"
	"sql2csv/internal/source"
)

// Exit codes.
const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

const defaultJob = "sql2csv"

// Function variables used to introduce test seams.
var (
	newSource     = source.New
	readPassword  = promptPassword
	isInteractive = func(w io.Writer) bool {
		f, ok := w.(*os.File)
		return ok && progress.IsInteractive(f)
	}
)

// run executes one export and returns the process exit code. Diagnostics go
// to stderr; stdout is never written.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	e, opt, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "sql2csv: %v\n", err)
		return exitUsage
	}
	if e.Job == "" {
		e.Job = defaultJob
	}

	issues := config.ValidateExport(e, source.Kinds())
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintln(stderr, "sql2csv: configuration is invalid")
		return exitUsage
	}

	log := newLogger(stderr, opt.verbose).WithFields(logrus.Fields{
		"run_id": uuid.NewString(),
		"job":    e.Job,
	})
	if opt.verbose {
		r := e.Redacted()
		log.WithFields(logrus.Fields{
			"kind":     r.Source.Kind,
			"dsn":      r.Source.DSN,
			"server":   r.Source.Server,
			"port":     r.Source.Port,
			"username": r.Source.Username,
			"password": r.Source.Password,
			"database": r.Source.Database,
			"input":    r.Input,
			"output":   r.Output.Path,
			"headers":  r.Output.Headers,
			"crlf":     r.Output.CRLF,
		}).Debug("arguments")
	}

	if e.Source.Password == "-" {
		pw, err := readPassword(stderr)
		if err != nil {
			fmt.Fprintf(stderr, "sql2csv: read password: %v\n", err)
			return exitFail
		}
		e.Source.Password = pw
	}

	query, err := e.QueryText()
	if err != nil {
		fmt.Fprintf(stderr, "sql2csv: %v\n", err)
		return exitFail
	}

	flush := setupMetrics(e, log)
	defer flush()

	if err := export(ctx, e, query, opt.validate, stderr, log); err != nil {
		reportError(stderr, err)
		return exitFail
	}
	return exitOK
}

// export opens the source, runs the pre-flight check and, unless
// validateOnly is set, streams the result set into the output file.
func export(ctx context.Context, e config.Export, query string, validateOnly bool, stderr io.Writer, log logrus.FieldLogger) error {
	src, err := newSource(ctx, source.Config{Kind: e.Source.Kind, DSN: e.Source.ConnString()})
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	start := time.Now()
	err = src.Validate(ctx, query)
	metrics.RecordStage(e.Job, "validate", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("validate query: %w", err)
	}
	log.WithField("took", time.Since(start).Truncate(time.Millisecond)).Debug("query validated")
	if validateOnly {
		fmt.Fprintln(stderr, "query is valid")
		return nil
	}

	rt := e.Runtime.Resolve()
	compression, err := sink.ParseCompression(e.Output.Compression)
	if err != nil {
		return err
	}
	eol := sink.LF
	if e.Output.CRLF {
		eol = sink.CRLF
	}

	var out *sink.File
	open := sink.FileOpener(sink.FileOptions{
		Path:        e.Output.Path,
		EOL:         eol,
		Compression: compression,
	}, func(f *sink.File) { out = f })

	counters := pipeline.NewCounters()
	cfg := pipeline.Config{
		Workers:       rt.Workers,
		QueueCapacity: rt.QueueCapacity,
		Prepare: func(cur pipeline.Cursor) (pipeline.RowFormatter, string) {
			return layout(e.Output, cur)
		},
		Logger: log,
	}
	// The query runs under the pipeline's context so an interrupt or a
	// stage fault aborts it on the server.
	openRows := func(ctx context.Context) (pipeline.Cursor, error) {
		return src.Query(ctx, query)
	}

	runErr := supervise(ctx, stderr, rt.ProgressInterval, counters, func(ctx context.Context) error {
		return pipeline.Run(ctx, openRows, open, cfg, counters)
	})

	snap := counters.Snapshot()
	progress.Summary(stderr, snap)
	if out != nil {
		fmt.Fprintln(stderr, progress.Digest(out.Path(), out.Bytes(), out.Sum64()))
		metrics.RecordOutputBytes(e.Job, out.Bytes())
	}
	recordRun(e.Job, snap, runErr)

	log.WithFields(logrus.Fields{
		"read":    snap.Read,
		"written": snap.Written,
		"elapsed": snap.Elapsed.Truncate(time.Millisecond),
	}).Info("export finished")
	return runErr
}

// layout builds the formatter and optional header for an opened result set.
// Column types, when the cursor reports them, decide how byte cells render.
func layout(o config.Output, cur pipeline.Cursor) (pipeline.RowFormatter, string) {
	var types []string
	if ct, ok := cur.(interface{ ColumnTypes() []string }); ok {
		types = ct.ColumnTypes()
	}
	f := record.NewFormatter(record.Options{
		Delimiter:        o.Delimiter,
		TimeLayout:       o.TimeLayout,
		NormalizeUnicode: o.NormalizeUnicode,
		ColumnTypes:      types,
	})
	var header string
	if o.Headers {
		header = f.Header(cur.Columns())
	}
	return f, header
}

// supervise runs the pipeline next to the progress reporter and a signal
// handler. Whichever actor returns first interrupts the others; the returned
// error is always the pipeline's.
func supervise(
	ctx context.Context,
	stderr io.Writer,
	interval time.Duration,
	stats progress.Stats,
	pipe func(context.Context) error,
) error {
	var (
		g       group.Group
		pipeErr error
	)

	{
		pctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			pipeErr = pipe(pctx)
			return pipeErr
		}, func(error) {
			cancel()
		})
	}

	if isInteractive(stderr) {
		rctx, cancel := context.WithCancel(ctx)
		reporter := progress.New(stderr, stats, interval)
		g.Add(func() error {
			return reporter.Run(rctx)
		}, func(error) {
			cancel()
		})
	}

	{
		cancelSig := make(chan struct{})
		g.Add(func() error {
			return interrupt(cancelSig)
		}, func(error) {
			close(cancelSig)
		})
	}

	err := g.Run()
	var sig signalError
	if pipeErr != nil && errors.As(err, &sig) {
		return fmt.Errorf("%v: %w", sig, pipeErr)
	}
	return pipeErr
}

type signalError struct{ sig os.Signal }

func (e signalError) Error() string { return "received signal " + e.sig.String() }

// interrupt returns when SIGINT or SIGTERM arrives or cancel is closed.
func interrupt(cancel <-chan struct{}) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	select {
	case sig := <-c:
		return signalError{sig}
	case <-cancel:
		return errors.New("canceled")
	}
}

// reportError prints one "sql2csv: <stage>: <cause>" line per fault.
func reportError(w io.Writer, err error) {
	for _, e := range flatten(err) {
		fmt.Fprintf(w, "sql2csv: %v\n", e)
	}
}

// flatten expands errors.Join trees. Wrapped errors are kept whole.
func flatten(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range j.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

// recordRun emits per-stage outcomes and row counts.
func recordRun(job string, s pipeline.Snapshot, err error) {
	failed := map[string]error{}
	for _, e := range flatten(err) {
		var se *pipeline.StageError
		if errors.As(e, &se) {
			failed[se.Stage] = se.Err
		}
	}
	metrics.RecordStage(job, pipeline.StageReader, failed[pipeline.StageReader], s.ReadTime)
	metrics.RecordStage(job, pipeline.StageTransform, failed[pipeline.StageTransform], s.ProcessTime)
	metrics.RecordStage(job, pipeline.StageWriter, failed[pipeline.StageWriter], s.WriteTime)
	metrics.RecordRows(job, "read", s.Read)
	metrics.RecordRows(job, "processed", s.Processed)
	metrics.RecordRows(job, "written", s.Written)
}

func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	l.SetLevel(logrus.InfoLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// setupMetrics installs the configured backend and returns a flush func to
// defer. Backend errors are logged and fall back to no metrics.
func setupMetrics(e config.Export, log logrus.FieldLogger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch e.Metrics.Backend {
	case "prometheus":
		b, err = prompush.NewBackend(e.Job, e.Metrics.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       e.Metrics.DatadogAddr,
			Namespace:  e.Metrics.Namespace,
			GlobalTags: []string{"job:" + e.Job},
		})
	default:
		return func() {}
	}
	if err != nil {
		log.WithError(err).Warn("metrics: backend unavailable; metrics disabled")
		return func() {}
	}
	metrics.SetBackend(b)
	log.WithField("backend", e.Metrics.Backend).Debug("metrics: enabled")
	return func() {
		if err := metrics.Flush(); err != nil {
			log.WithError(err).Warn("metrics: flush failed")
		}
	}
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}
	fmt.Fprint(w, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
