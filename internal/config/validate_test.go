package config

import "testing"

var testKinds = []string{"mssql", "mysql", "postgres", "sqlite"}

func validExport() Export {
	return Export{
		Source: Source{Kind: "sqlite", DSN: "file.db"},
		Query:  "SELECT 1",
		Output: Output{Path: "out.csv"},
	}
}

func TestValidateExport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(e *Export)
		wantPath string
		wantSev  IssueSeverity
	}{
		{name: "valid", mutate: func(e *Export) {}},
		{name: "empty kind", mutate: func(e *Export) { e.Source.Kind = "" }, wantPath: "source.kind", wantSev: SeverityError},
		{name: "unknown kind", mutate: func(e *Export) { e.Source.Kind = "oracle" }, wantPath: "source.kind", wantSev: SeverityError},
		{name: "missing dsn", mutate: func(e *Export) { e.Source.DSN = "" }, wantPath: "source.dsn", wantSev: SeverityError},
		{
			name: "mssql from discrete fields",
			mutate: func(e *Export) {
				e.Source = Source{Kind: "mssql", Server: "db", Username: "sa"}
			},
		},
		{
			name: "mssql dsn shadows fields",
			mutate: func(e *Export) {
				e.Source = Source{Kind: "mssql", DSN: "sqlserver://db", Server: "other"}
			},
			wantPath: "source.dsn", wantSev: SeverityWarning,
		},
		{name: "bad port", mutate: func(e *Export) { e.Source.Port = 70000 }, wantPath: "source.port", wantSev: SeverityError},
		{name: "query and input", mutate: func(e *Export) { e.Input = "q.sql" }, wantPath: "query", wantSev: SeverityError},
		{name: "no query", mutate: func(e *Export) { e.Query = "" }, wantPath: "query", wantSev: SeverityError},
		{name: "no output", mutate: func(e *Export) { e.Output.Path = "" }, wantPath: "output.path", wantSev: SeverityError},
		{name: "quote delimiter", mutate: func(e *Export) { e.Output.Delimiter = `"` }, wantPath: "output.delimiter", wantSev: SeverityError},
		{name: "wide delimiter", mutate: func(e *Export) { e.Output.Delimiter = "||" }, wantPath: "output.delimiter", wantSev: SeverityWarning},
		{name: "compression", mutate: func(e *Export) { e.Output.Compression = "bzip2" }, wantPath: "output.compression", wantSev: SeverityError},
		{name: "negative workers", mutate: func(e *Export) { e.Runtime.TransformWorkers = -1 }, wantPath: "runtime.transform_workers", wantSev: SeverityError},
		{name: "prometheus needs url", mutate: func(e *Export) { e.Metrics.Backend = "prometheus" }, wantPath: "metrics.pushgateway_url", wantSev: SeverityError},
		{name: "unknown metrics", mutate: func(e *Export) { e.Metrics.Backend = "graphite" }, wantPath: "metrics.backend", wantSev: SeverityError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := validExport()
			tt.mutate(&e)
			issues := ValidateExport(e, testKinds)

			if tt.wantPath == "" {
				if len(issues) != 0 {
					t.Fatalf("ValidateExport() = %v, want no issues", issues)
				}
				return
			}
			for _, iss := range issues {
				if iss.Path == tt.wantPath && iss.Severity == tt.wantSev {
					return
				}
			}
			t.Fatalf("ValidateExport() = %v, want %s issue at %s", issues, tt.wantSev, tt.wantPath)
		})
	}
}

func TestHasErrors(t *testing.T) {
	t.Parallel()

	if HasErrors([]Issue{{Severity: SeverityWarning}}) {
		t.Fatalf("HasErrors(warnings only) = true")
	}
	if !HasErrors([]Issue{{Severity: SeverityWarning}, {Severity: SeverityError}}) {
		t.Fatalf("HasErrors(with error) = false")
	}
}

func TestIssueError(t *testing.T) {
	t.Parallel()

	got := Issue{SeverityError, "source.kind", "boom"}.Error()
	if got != "error at source.kind: boom" {
		t.Fatalf("Issue.Error() = %q", got)
	}
}
