// Command sql2csv runs one SQL query and streams its result set into a CSV
// file.
//
//	sql2csv -server db1 -username ro -password - -database sales \
//	        -query "SELECT * FROM dbo.Orders" -output orders.csv -headers
//
//	sql2csv -kind postgres -dsn postgres://ro@db/shop -input orders.sql \
//	        -output orders.csv.zst
//
// A JSON export file (-config) can carry any of the settings; flags given on
// the command line override it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"sql2csv/internal/config"
	"sql2csv/internal/source"

	// register every source backend; -kind selects one at run time.
	_ "sql2csv/internal/source/all"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

// options are the flags that do not belong to the Export model.
type options struct {
	cfgPath  string
	validate bool
	verbose  bool
}

// parseArgs builds the Export from an optional config file overlaid with the
// flags that were set explicitly.
func parseArgs(args []string, stderr io.Writer) (config.Export, options, error) {
	var (
		opt options
		e   config.Export
	)
	fs := flag.NewFlagSet("sql2csv", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opt.cfgPath, "config", "", "export config file (.json, .yaml or .yml)")
	fs.BoolVar(&opt.validate, "validate", false, "check the configuration and compile the query, then exit")
	fs.BoolVar(&opt.verbose, "v", false, "enable verbose logs")

	// Flag targets start from zero values; only the flags the user set are
	// copied onto the loaded config below.
	var f config.Export
	fs.StringVar(&f.Job, "job", "", "job name used in logs and metrics")
	fs.StringVar(&f.Source.Kind, "kind", "mssql", "source backend: "+joinKinds())
	fs.StringVar(&f.Source.DSN, "dsn", "", "driver connection string (mssql: built from -server etc. when empty)")
	fs.StringVar(&f.Source.Server, "server", "", "mssql server host")
	fs.IntVar(&f.Source.Port, "port", 0, "mssql server port (default 1433)")
	fs.StringVar(&f.Source.Username, "username", "", "mssql login")
	fs.StringVar(&f.Source.Password, "password", "", `mssql password; "-" prompts on the terminal`)
	fs.StringVar(&f.Source.Database, "database", "", "mssql database")
	fs.StringVar(&f.Query, "query", "", "SQL text to run")
	fs.StringVar(&f.Input, "input", "", "file holding the SQL text")
	fs.StringVar(&f.Output.Path, "output", "", "output CSV path")
	fs.BoolVar(&f.Output.Headers, "headers", false, "write column names as the first line")
	fs.BoolVar(&f.Output.CRLF, "crlf", false, `terminate lines with "\r\n" instead of "\n"`)
	fs.StringVar(&f.Output.Delimiter, "delimiter", ",", "field delimiter")
	fs.StringVar(&f.Output.Compression, "compression", "auto", "none, gzip, zstd or auto (by file suffix)")
	fs.StringVar(&f.Output.TimeLayout, "time-layout", "", "Go time layout for temporal cells")
	fs.BoolVar(&f.Output.NormalizeUnicode, "nfc", false, "normalize text cells to Unicode NFC")
	fs.IntVar(&f.Runtime.TransformWorkers, "workers", 0, "transform workers (env "+config.EnvTransformWorkers+")")
	fs.IntVar(&f.Runtime.QueueCapacity, "queue-capacity", 0, "bound of each stage queue (env "+config.EnvQueueCapacity+")")
	fs.IntVar(&f.Runtime.ProgressIntervalMS, "progress-interval", 0, "status line refresh in milliseconds")
	fs.StringVar(&f.Metrics.Backend, "metrics-backend", "", "metrics backend: none, prometheus or datadog")
	fs.StringVar(&f.Metrics.PushgatewayURL, "pushgateway-url", "", "Pushgateway base URL")
	fs.StringVar(&f.Metrics.DatadogAddr, "datadog-addr", "", "DogStatsD address")
	fs.StringVar(&f.Metrics.Namespace, "metrics-namespace", "", "metric name prefix (datadog)")

	if err := fs.Parse(args); err != nil {
		return e, opt, err
	}
	if fs.NArg() > 0 {
		return e, opt, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if opt.cfgPath != "" {
		loaded, err := config.Load(opt.cfgPath)
		if err != nil {
			return e, opt, err
		}
		e = loaded
	} else {
		// Without a file every flag default applies.
		e = f
	}

	fs.Visit(func(fl *flag.Flag) { overlay(&e, &f, fl.Name) })
	if e.Source.Kind == "" {
		e.Source.Kind = "mssql"
	}
	return e, opt, nil
}

// overlay copies the field behind flag name from src to dst.
func overlay(dst, src *config.Export, name string) {
	switch name {
	case "job":
		dst.Job = src.Job
	case "kind":
		dst.Source.Kind = src.Source.Kind
	case "dsn":
		dst.Source.DSN = src.Source.DSN
	case "server":
		dst.Source.Server = src.Source.Server
	case "port":
		dst.Source.Port = src.Source.Port
	case "username":
		dst.Source.Username = src.Source.Username
	case "password":
		dst.Source.Password = src.Source.Password
	case "database":
		dst.Source.Database = src.Source.Database
	case "query":
		dst.Query, dst.Input = src.Query, ""
	case "input":
		dst.Input, dst.Query = src.Input, ""
	case "output":
		dst.Output.Path = src.Output.Path
	case "headers":
		dst.Output.Headers = src.Output.Headers
	case "crlf":
		dst.Output.CRLF = src.Output.CRLF
	case "delimiter":
		dst.Output.Delimiter = src.Output.Delimiter
	case "compression":
		dst.Output.Compression = src.Output.Compression
	case "time-layout":
		dst.Output.TimeLayout = src.Output.TimeLayout
	case "nfc":
		dst.Output.NormalizeUnicode = src.Output.NormalizeUnicode
	case "workers":
		dst.Runtime.TransformWorkers = src.Runtime.TransformWorkers
	case "queue-capacity":
		dst.Runtime.QueueCapacity = src.Runtime.QueueCapacity
	case "progress-interval":
		dst.Runtime.ProgressIntervalMS = src.Runtime.ProgressIntervalMS
	case "metrics-backend":
		dst.Metrics.Backend = src.Metrics.Backend
	case "pushgateway-url":
		dst.Metrics.PushgatewayURL = src.Metrics.PushgatewayURL
	case "datadog-addr":
		dst.Metrics.DatadogAddr = src.Metrics.DatadogAddr
	case "metrics-namespace":
		dst.Metrics.Namespace = src.Metrics.Namespace
	}
}

func joinKinds() string { return strings.Join(source.Kinds(), ", ") }
