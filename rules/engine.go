package rules

import (
	"sort"
	"strings"

	"github.com/c360studio/healthwatch/facts"
)

// Engine evaluates all detection rules over extracted code facts.
// The zero value is ready to use.
type Engine struct{}

// NewEngine returns a rule engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs every rule over the given per-file facts, deduplicates the
// combined problem list, and splits it into logging and metrics gaps.
func (e *Engine) Evaluate(files []facts.FileFacts) Result {
	idx := facts.BuildIndex(files)

	var all []Problem
	for _, rule := range allRules {
		all = append(all, rule(idx)...)
	}
	all = dedupe(all)

	result := Result{
		LoggingGaps:  []Problem{},
		MetricsGaps:  []Problem{},
		FactsSummary: summarize(idx),
	}
	for _, p := range all {
		switch p.Type {
		case ProblemLoggingGap:
			result.LoggingGaps = append(result.LoggingGaps, p)
		case ProblemMetricsGap:
			result.MetricsGaps = append(result.MetricsGaps, p)
		}
	}
	return result
}

// dedupe drops problems that repeat (rule_id, affected files, affected
// functions), keeping the first occurrence.
func dedupe(problems []Problem) []Problem {
	seen := make(map[string]bool, len(problems))
	out := make([]Problem, 0, len(problems))
	for _, p := range problems {
		key := dedupeKey(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

func dedupeKey(p Problem) string {
	files := append([]string(nil), p.AffectedFiles...)
	fns := append([]string(nil), p.AffectedFunctions...)
	sort.Strings(files)
	sort.Strings(fns)
	return p.RuleID + "\x1f" + strings.Join(files, "\x1f") + "\x1f\x1f" + strings.Join(fns, "\x1f")
}

// summarize counts facts by type for the review's facts summary.
func summarize(idx *facts.Index) map[string]int {
	return map[string]int{
		"total_functions":     len(idx.ByType[facts.FactFunction]),
		"total_classes":       len(idx.ByType[facts.FactClass]),
		"total_try_blocks":    len(idx.ByType[facts.FactTryExcept]),
		"total_logging_calls": len(idx.ByType[facts.FactLoggingCall]),
		"total_metrics_calls": len(idx.ByType[facts.FactMetricsCall]),
		"total_http_handlers": len(idx.ByType[facts.FactHTTPHandler]),
		"total_external_io":   len(idx.ByType[facts.FactExternalIO]),
		"total_imports":       len(idx.ByType[facts.FactImport]),
		"total_files":         idx.FileCount(),
	}
}

// sortedKeys returns map keys in ascending order.
func sortedKeys(m map[string][]facts.CodeFact) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
