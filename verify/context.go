// Package verify decides which rule-engine gaps are genuine observability
// problems and which are false alarms already covered by repository-wide
// instrumentation (metrics middleware, global error handlers).
//
// The cheap path filters gaps deterministically from a previously stored
// CodebaseContext. The expensive path discovers that context with LLM
// calls and then verifies gap samples with a tool-using agent. Verdicts
// for a sampled subset extend to the whole rule group; that extrapolation
// assumes gaps sharing a rule id share their coverage fate, which holds
// for global-instrumentation rules but is coarse for per-function logging
// rules.
package verify

import (
	"context"
	"time"
)

// Instrumentation types extracted from infrastructure files.
const (
	TypeHTTPMetrics       = "http_metrics"
	TypeDBInstrumentation = "db_instrumentation"
	TypeTracing           = "tracing"
	TypeErrorHandling     = "error_handling"
	TypeLogging           = "logging"
)

// Coverage values reported for global instrumentation.
const (
	CoverageAllRoutes     = "all_routes"
	CoverageAllRequests   = "all_requests"
	CoverageAllDBQueries  = "all_db_queries"
	CoverageSpecificPaths = "specific_paths"
)

// GlobalInstrumentation is one discovered piece of repository-wide
// observability infrastructure.
type GlobalInstrumentation struct {
	FilePath            string   `json:"file_path"`
	InstrumentationType string   `json:"instrumentation_type"`
	MetricsRecorded     []string `json:"metrics_recorded,omitempty"`
	Coverage            string   `json:"coverage,omitempty"`
	RegistrationFile    string   `json:"registration_file,omitempty"`
	Description         string   `json:"description,omitempty"`
}

// CodebaseContext is the persisted description of a repository's
// observability architecture at one commit. InfrastructureFiles lists the
// paths whose change invalidates the context for reuse.
type CodebaseContext struct {
	ID           string `json:"id"`
	WorkspaceID  string `json:"workspace_id"`
	RepoFullName string `json:"repo_full_name"`
	CommitSHA    string `json:"commit_sha"`

	GlobalHTTPMetrics       []GlobalInstrumentation `json:"global_http_metrics,omitempty"`
	GlobalDBInstrumentation []GlobalInstrumentation `json:"global_db_instrumentation,omitempty"`
	GlobalTracing           []GlobalInstrumentation `json:"global_tracing,omitempty"`
	GlobalErrorHandling     []GlobalInstrumentation `json:"global_error_handling,omitempty"`
	LoggingFramework        string                  `json:"logging_framework,omitempty"`

	InfrastructureFiles []string `json:"infrastructure_files,omitempty"`
	Summary             string   `json:"summary,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// HasGlobalHTTPCoverage reports whether any HTTP metrics instrumentation
// covers every route.
func (c *CodebaseContext) HasGlobalHTTPCoverage() bool {
	for _, inst := range c.GlobalHTTPMetrics {
		if inst.Coverage == CoverageAllRoutes || inst.Coverage == CoverageAllRequests {
			return true
		}
	}
	return false
}

// HasGlobalDBCoverage reports whether any database instrumentation exists.
func (c *CodebaseContext) HasGlobalDBCoverage() bool {
	return len(c.GlobalDBInstrumentation) > 0
}

// HasGlobalErrorCoverage reports whether any global error handling exists.
func (c *CodebaseContext) HasGlobalErrorCoverage() bool {
	return len(c.GlobalErrorHandling) > 0
}

// ChangedSince reports whether any changed file touches the context's
// infrastructure files. A context with no infrastructure files is never
// reusable.
func (c *CodebaseContext) ChangedSince(changedFiles []string) bool {
	if len(c.InfrastructureFiles) == 0 {
		return true
	}
	infra := make(map[string]struct{}, len(c.InfrastructureFiles))
	for _, f := range c.InfrastructureFiles {
		infra[f] = struct{}{}
	}
	for _, f := range changedFiles {
		if _, ok := infra[f]; ok {
			return true
		}
	}
	return false
}

// ContextStore persists codebase contexts append-only. Save adds a new
// revision; LoadMostRecent returns the latest one for a (workspace, repo)
// pair, or storage's not-found error when none exists.
type ContextStore interface {
	Save(ctx context.Context, cc *CodebaseContext) error
	LoadMostRecent(ctx context.Context, workspaceID, repoFullName string) (*CodebaseContext, error)
}
