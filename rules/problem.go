// Package rules implements the deterministic gap-detection rule engine.
// Each rule is a pure predicate over indexed code facts producing zero or
// more detected problems. No I/O and no LLM involvement — detection is
// entirely structural, so the same parsed snapshot always yields the same
// problem set.
package rules

// Severity ranks how urgent a detected problem is.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// ProblemType separates logging gaps from metrics gaps.
type ProblemType string

const (
	ProblemLoggingGap ProblemType = "logging_gap"
	ProblemMetricsGap ProblemType = "metrics_gap"
)

// Evidence is a structured pointer to the code locations that triggered a rule.
type Evidence map[string]any

// Problem is one detected observability gap.
type Problem struct {
	RuleID            string      `json:"rule_id"`
	Type              ProblemType `json:"problem_type"`
	Severity          Severity    `json:"severity"`
	Title             string      `json:"title"`
	Category          string      `json:"category"`
	AffectedFiles     []string    `json:"affected_files"`
	AffectedFunctions []string    `json:"affected_functions,omitempty"`

	// MetricType hints the instrument kind (counter/histogram/gauge) for
	// metrics gaps. Used only for enrichment prompting, never for scoring.
	MetricType           string   `json:"metric_type,omitempty"`
	SuggestedMetricNames []string `json:"suggested_metric_names,omitempty"`

	Evidence []Evidence `json:"evidence,omitempty"`
}

// Result is the rule engine's output for one evaluation run.
type Result struct {
	LoggingGaps  []Problem      `json:"logging_gaps"`
	MetricsGaps  []Problem      `json:"metrics_gaps"`
	FactsSummary map[string]int `json:"facts_summary"`
}

// AllGaps returns logging and metrics gaps as a single slice,
// logging gaps first.
func (r Result) AllGaps() []Problem {
	out := make([]Problem, 0, len(r.LoggingGaps)+len(r.MetricsGaps))
	out = append(out, r.LoggingGaps...)
	out = append(out, r.MetricsGaps...)
	return out
}
