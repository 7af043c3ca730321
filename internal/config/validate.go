package config

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block the run.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is a dotted path into the
// Export (e.g. "source.kind", "output.delimiter").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be returned as one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateExport performs static checks over e. kinds lists the registered
// source backends; an empty list skips the kind check. It does not open
// files or connections.
func ValidateExport(e Export, kinds []string) []Issue {
	var issues []Issue
	issues = append(issues, validateSource(e.Source, kinds)...)
	issues = append(issues, validateQuery(e)...)
	issues = append(issues, validateOutput(e.Output)...)
	issues = append(issues, validateRuntime(e.Runtime)...)
	issues = append(issues, validateMetrics(e.Metrics)...)
	return issues
}

func validateSource(s Source, kinds []string) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{SeverityError, "source.kind", "source.kind must not be empty"})
	}
	if len(kinds) > 0 && !contains(kinds, s.Kind) {
		issues = append(issues, Issue{
			SeverityError, "source.kind",
			fmt.Sprintf("unknown source kind %q (known: %s)", s.Kind, strings.Join(kinds, ", ")),
		})
	}

	discrete := s.Server != "" || s.Username != "" || s.Database != "" || s.Port != 0
	switch {
	case s.Kind == "mssql":
		if s.DSN != "" && discrete {
			issues = append(issues, Issue{SeverityWarning, "source.dsn", "dsn is set; server/port/username/database are ignored"})
		}
	case s.DSN == "":
		issues = append(issues, Issue{SeverityError, "source.dsn", fmt.Sprintf("%s source requires a dsn", s.Kind)})
	case discrete:
		issues = append(issues, Issue{SeverityWarning, "source.server", "discrete connection fields only apply to mssql"})
	}

	if s.Port < 0 || s.Port > 65535 {
		issues = append(issues, Issue{SeverityError, "source.port", fmt.Sprintf("port %d out of range", s.Port)})
	}
	return issues
}

func validateQuery(e Export) []Issue {
	hasQuery := strings.TrimSpace(e.Query) != ""
	hasInput := strings.TrimSpace(e.Input) != ""
	switch {
	case hasQuery && hasInput:
		return []Issue{{SeverityError, "query", "query and input are mutually exclusive"}}
	case !hasQuery && !hasInput:
		return []Issue{{SeverityError, "query", "one of query or input is required"}}
	}
	return nil
}

func validateOutput(o Output) []Issue {
	var issues []Issue
	if strings.TrimSpace(o.Path) == "" {
		issues = append(issues, Issue{SeverityError, "output.path", "output path must not be empty"})
	}
	if o.Delimiter != "" {
		switch {
		case !utf8.ValidString(o.Delimiter):
			issues = append(issues, Issue{SeverityError, "output.delimiter", "delimiter is not valid UTF-8"})
		case strings.ContainsAny(o.Delimiter, "\"\r\n"):
			issues = append(issues, Issue{SeverityError, "output.delimiter", "delimiter must not contain quotes or line breaks"})
		case utf8.RuneCountInString(o.Delimiter) > 1:
			issues = append(issues, Issue{SeverityWarning, "output.delimiter", "multi-character delimiters are not understood by most CSV readers"})
		}
	}
	switch o.Compression {
	case "", "none", "gzip", "zstd", "auto":
	default:
		issues = append(issues, Issue{SeverityError, "output.compression", fmt.Sprintf("unknown compression %q", o.Compression)})
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.TransformWorkers < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.transform_workers", "must be >= 0 (0 selects the default)"})
	}
	if r.QueueCapacity < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.queue_capacity", "must be >= 0 (0 selects the default)"})
	}
	if r.ProgressIntervalMS < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.progress_interval_ms", "must be >= 0"})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	switch m.Backend {
	case "", "none":
	case "prometheus":
		if m.PushgatewayURL == "" {
			return []Issue{{SeverityError, "metrics.pushgateway_url", "prometheus backend requires a pushgateway url"}}
		}
	case "datadog":
		if m.DatadogAddr == "" {
			return []Issue{{SeverityError, "metrics.datadog_addr", "datadog backend requires an agent address"}}
		}
	default:
		return []Issue{{SeverityError, "metrics.backend", fmt.Sprintf("unknown metrics backend %q", m.Backend)}}
	}
	return nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
