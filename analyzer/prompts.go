package analyzer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/c360studio/healthwatch/collector"
	"github.com/c360studio/healthwatch/rules"
)

// maxGapsPerPrompt caps how many gaps of each type reach the prompt.
const maxGapsPerPrompt = 10

// maxErrorsPerPrompt caps how many error groups reach the prompt.
const maxErrorsPerPrompt = 10

const enrichmentSystemPrompt = `You are a senior SRE reviewing a service's observability health.

You are given deterministically detected logging gaps and metrics gaps found by
static code analysis. Your job is to ENRICH these findings with:

1. A concise summary (2-3 paragraphs) of the service's observability posture
2. Prioritized recommendations (numbered list, most important first)
3. For each gap, provide:
   - rationale: Why this gap matters (1-2 sentences, reference the evidence)
   - For logging gaps: a suggested_log_statement (actual code the developer can paste)
   - For metrics gaps: implementation_guide + example_code

Rules:
- Do NOT invent new gaps. Only enrich the gaps provided.
- Use the facts_summary numbers and error data to ground your rationale.
- Keep suggestions practical and language-appropriate.
- Respond ONLY with valid JSON matching the schema below.

Response JSON schema:
{
  "summary": "string - 2-3 paragraph summary",
  "recommendations": "string - numbered list of prioritized actions",
  "gap_enrichments": [
    {
      "rule_id": "string - must match a provided gap's rule_id",
      "rationale": "string - why this matters",
      "suggested_log_statement": "string or null - for logging gaps only",
      "implementation_guide": "string or null - for metrics gaps only",
      "example_code": "string or null - for metrics gaps only"
    }
  ]
}`

const enrichmentUserPromptTemplate = `Analyze service: **{service_name}** (repo: {repository_name})

## Facts Summary
- Files analyzed: {total_files}
- Functions: {total_functions}
- Classes: {total_classes}
- Try/catch blocks: {total_try_blocks}
- Logging calls found: {total_logging_calls}
- Metrics calls found: {total_metrics_calls}
- HTTP handlers: {total_http_handlers}
- External I/O calls: {total_external_io}

## Detected Logging Gaps
{logging_gaps_text}

## Detected Metrics Gaps
{metrics_gaps_text}

## Error Data from Monitoring
{error_summary}

## Metrics Overview
{metrics_overview}

Respond with the JSON enrichment object.`

func enrichmentUserPrompt(in EnrichInput) string {
	facts := in.Rules.FactsSummary
	return strings.NewReplacer(
		"{service_name}", orUnknown(in.ServiceName),
		"{repository_name}", orUnknown(in.RepositoryName),
		"{total_files}", strconv.Itoa(facts["total_files"]),
		"{total_functions}", strconv.Itoa(facts["total_functions"]),
		"{total_classes}", strconv.Itoa(facts["total_classes"]),
		"{total_try_blocks}", strconv.Itoa(facts["total_try_blocks"]),
		"{total_logging_calls}", strconv.Itoa(facts["total_logging_calls"]),
		"{total_metrics_calls}", strconv.Itoa(facts["total_metrics_calls"]),
		"{total_http_handlers}", strconv.Itoa(facts["total_http_handlers"]),
		"{total_external_io}", strconv.Itoa(facts["total_external_io"]),
		"{logging_gaps_text}", formatGapsForPrompt(in.Rules.LoggingGaps),
		"{metrics_gaps_text}", formatGapsForPrompt(in.Rules.MetricsGaps),
		"{error_summary}", formatErrorsForPrompt(in.Collected.Errors),
		"{metrics_overview}", formatMetricsOverview(in.Collected.Metrics),
	).Replace(enrichmentUserPromptTemplate)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// severityRank orders problems highest severity first. Unknown severities
// sort with medium.
func severityRank(s rules.Severity) int {
	switch s {
	case rules.SeverityHigh:
		return 0
	case rules.SeverityLow:
		return 2
	default:
		return 1
	}
}

// formatGapsForPrompt renders detected problems for prompt inclusion,
// highest severity first, capped at maxGapsPerPrompt.
func formatGapsForPrompt(gaps []rules.Problem) string {
	if len(gaps) == 0 {
		return "None detected."
	}

	sorted := make([]rules.Problem, len(gaps))
	copy(sorted, gaps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return severityRank(sorted[i].Severity) < severityRank(sorted[j].Severity)
	})

	shown := sorted
	if len(shown) > maxGapsPerPrompt {
		shown = shown[:maxGapsPerPrompt]
	}

	var lines []string
	for i, gap := range shown {
		lines = append(lines, fmt.Sprintf("%d. [%s] %s", i+1, gap.RuleID, gap.Title))
		lines = append(lines, fmt.Sprintf("   Severity: %s | Category: %s", gap.Severity, gap.Category))
		lines = append(lines, "   Files: "+strings.Join(firstN(gap.AffectedFiles, 3), ", "))
		if len(gap.AffectedFunctions) > 0 {
			lines = append(lines, "   Functions: "+strings.Join(firstN(gap.AffectedFunctions, 3), ", "))
		}
		lines = append(lines, "")
	}

	if len(gaps) > maxGapsPerPrompt {
		lines = append(lines, fmt.Sprintf("... and %d more gaps omitted for brevity.", len(gaps)-maxGapsPerPrompt))
	}

	return strings.Join(lines, "\n")
}

// formatErrorsForPrompt renders the top error groups for prompt inclusion.
func formatErrorsForPrompt(errors []collector.ErrorData) string {
	if len(errors) == 0 {
		return "No errors recorded in the review period."
	}

	shown := errors
	if len(shown) > maxErrorsPerPrompt {
		shown = shown[:maxErrorsPerPrompt]
	}

	lines := make([]string, 0, len(shown))
	for i, e := range shown {
		lines = append(lines, fmt.Sprintf("%d. %s (count: %d) - %s",
			i+1, e.ErrorType, e.Count, truncate(e.MessageSample, 150)))
	}
	return strings.Join(lines, "\n")
}

// formatMetricsOverview renders whichever golden-signal values the
// collector could answer.
func formatMetricsOverview(m collector.MetricsData) string {
	var parts []string
	if m.LatencyP50 != nil {
		parts = append(parts, "Latency p50: "+formatFloat(*m.LatencyP50)+"ms")
	}
	if m.LatencyP99 != nil {
		parts = append(parts, "Latency p99: "+formatFloat(*m.LatencyP99)+"ms")
	}
	if m.ErrorRate != nil {
		parts = append(parts, fmt.Sprintf("Error rate: %.2f%%", *m.ErrorRate*100))
	}
	if m.Availability != nil {
		parts = append(parts, "Availability: "+formatFloat(*m.Availability)+"%")
	}
	if m.ThroughputPerMinute != nil {
		parts = append(parts, "Throughput: "+formatFloat(*m.ThroughputPerMinute)+" req/min")
	}
	if len(parts) == 0 {
		return "No metrics available."
	}

	lines := make([]string, len(parts))
	for i, p := range parts {
		lines[i] = "- " + p
	}
	return strings.Join(lines, "\n")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
