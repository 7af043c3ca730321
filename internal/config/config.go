// Package config defines the JSON-serializable description of one export:
// where rows come from, which query produces them, and how the CSV file is
// written. An Export can be loaded from disk and then overlaid with command
// line flags, so a checked-in file carries the stable parts and the caller
// supplies the rest.
//
// Example:
//
//	{
//	  "job":    "orders-nightly",
//	  "source": { "kind": "postgres", "dsn": "postgres://ro@db/shop" },
//	  "input":  "queries/orders.sql",
//	  "output": { "path": "orders.csv.zst", "headers": true },
//	  "runtime": { "transform_workers": 4, "queue_capacity": 8192 },
//	  "metrics": { "backend": "prometheus", "pushgateway_url": "http://pgw:9091" }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"

	"sql2csv/internal/source/mssql"
)

// Export describes a single query-to-file run.
type Export struct {
	// Job labels the run in logs and metrics.
	Job string `json:"job"`

	Source Source `json:"source"`

	// Query is the SQL text. Exactly one of Query and Input must be set.
	Query string `json:"query"`
	// Input names a file holding the SQL text.
	Input string `json:"input"`

	Output  Output        `json:"output"`
	Runtime RuntimeConfig `json:"runtime"`
	Metrics Metrics       `json:"metrics"`
}

// Source selects the database backend.
type Source struct {
	// Kind is a registered backend: "mssql", "postgres", "mysql" or "sqlite".
	Kind string `json:"kind"`
	// DSN is handed to the driver unchanged. For mssql it may be left empty
	// and built from the discrete fields below.
	DSN string `json:"dsn"`

	Server   string `json:"server"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	// Password "-" means prompt on the terminal.
	Password string `json:"password"`
	Database string `json:"database"`
}

// Output configures the CSV file.
type Output struct {
	Path string `json:"path"`
	// Headers writes the column names as the first line.
	Headers bool `json:"headers"`
	// CRLF selects "\r\n" line endings; the default is "\n".
	CRLF bool `json:"crlf"`
	// Delimiter separates fields; the default is ",".
	Delimiter string `json:"delimiter"`
	// Compression is "none", "gzip", "zstd" or "auto" (by file suffix).
	Compression string `json:"compression"`
	// TimeLayout overrides the Go layout used for temporal cells.
	TimeLayout string `json:"time_layout"`
	// NormalizeUnicode applies NFC to every cell.
	NormalizeUnicode bool `json:"normalize_unicode"`
}

// RuntimeConfig controls concurrency and buffering. Zero values are resolved
// by Resolve.
type RuntimeConfig struct {
	TransformWorkers int `json:"transform_workers"`
	QueueCapacity    int `json:"queue_capacity"`
	// ProgressIntervalMS is the status line refresh period.
	ProgressIntervalMS int `json:"progress_interval_ms"`
}

// Metrics selects an optional metrics backend.
type Metrics struct {
	// Backend is "none", "prometheus" or "datadog".
	Backend        string `json:"backend"`
	PushgatewayURL string `json:"pushgateway_url"`
	DatadogAddr    string `json:"datadog_addr"`
	Namespace      string `json:"namespace"`
}

// Load decodes the Export at path. Files ending in .yaml or .yml are
// converted to JSON first, so both formats share the json tags below.
// Unknown fields are rejected so typos in a checked-in file surface early.
func Load(path string) (Export, error) {
	var e Export
	b, err := os.ReadFile(path)
	if err != nil {
		return e, fmt.Errorf("open config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if b, err = yaml.YAMLToJSON(b); err != nil {
			return e, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&e); err != nil {
		return e, fmt.Errorf("decode config %s: %w", path, err)
	}
	return e, nil
}

// QueryText returns the SQL to run, reading Input when Query is empty.
func (e Export) QueryText() (string, error) {
	q := e.Query
	if q == "" && e.Input != "" {
		b, err := os.ReadFile(e.Input)
		if err != nil {
			return "", fmt.Errorf("read query file: %w", err)
		}
		q = string(b)
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return "", fmt.Errorf("query is empty")
	}
	return q, nil
}

// ConnString returns the driver connection string. For mssql without an explicit
// DSN it is assembled from the discrete connection fields.
func (s Source) ConnString() string {
	if s.DSN != "" || s.Kind != "mssql" {
		return s.DSN
	}
	return mssql.BuildDSN(mssql.DSNConfig{
		Server:   s.Server,
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
		Database: s.Database,
	})
}

// Redacted returns a copy safe to log: the password and any DSN are masked.
func (e Export) Redacted() Export {
	r := e
	if r.Source.Password != "" {
		r.Source.Password = "****"
	}
	r.Source.DSN = redactDSN(r.Source.DSN)
	return r
}

// redactDSN masks the password of URL-shaped DSNs and the whole value of
// anything else.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "****"
	}
	return u.Redacted()
}
