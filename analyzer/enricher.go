// Package analyzer turns deterministic rule findings into reviewer-facing
// narrative. The enricher makes one LLM call that adds a summary,
// prioritized recommendations, and per-gap rationale and code suggestions;
// when the call fails or returns garbage it degrades to a deterministic
// fallback built from the rule data alone, so a review never fails because
// enrichment did. A separate mock analyzer serves demo environments with
// canned findings.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/c360studio/healthwatch/collector"
	"github.com/c360studio/healthwatch/llm"
	"github.com/c360studio/healthwatch/rules"
)

// maxFallbackRecommendations caps the recommendation list when the LLM is
// unavailable.
const maxFallbackRecommendations = 6

// GapEnrichment carries the model's additions for the gaps of one rule.
type GapEnrichment struct {
	RuleID                string `json:"rule_id"`
	Rationale             string `json:"rationale,omitempty"`
	SuggestedLogStatement string `json:"suggested_log_statement,omitempty"`
	ImplementationGuide   string `json:"implementation_guide,omitempty"`
	ExampleCode           string `json:"example_code,omitempty"`
}

// Enrichment is the narrative layer on top of a rule engine result.
type Enrichment struct {
	Summary         string          `json:"summary"`
	Recommendations string          `json:"recommendations"`
	GapEnrichments  []GapEnrichment `json:"gap_enrichments"`
}

// ByRule indexes enrichments by rule id for applying them onto gaps. The
// model is instructed to emit one entry per rule; should it repeat a rule,
// the first entry wins.
func (e *Enrichment) ByRule() map[string]GapEnrichment {
	byRule := make(map[string]GapEnrichment, len(e.GapEnrichments))
	for _, ge := range e.GapEnrichments {
		if ge.RuleID == "" {
			continue
		}
		if _, ok := byRule[ge.RuleID]; !ok {
			byRule[ge.RuleID] = ge
		}
	}
	return byRule
}

// EnrichInput is everything one enrichment call sees.
type EnrichInput struct {
	ServiceName    string
	RepositoryName string

	// Rules carries the verified gaps and the facts summary that ground
	// the narrative.
	Rules rules.Result

	// Collected feeds error and metric context into the prompt. The zero
	// value is fine when collection produced nothing.
	Collected collector.CollectedData

	// Budget, when set, charges the enrichment call against the review's
	// LLM budget. An exhausted budget degrades to the fallback.
	Budget *llm.Budget
}

// llmCompleter is the subset of the LLM client the enricher uses.
type llmCompleter interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Enricher generates summary, recommendations, and per-gap enrichments via
// a single LLM call.
type Enricher struct {
	client llmCompleter
	logger *slog.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithLogger sets the enricher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) {
		e.logger = logger
	}
}

// NewEnricher creates an Enricher.
func NewEnricher(client llmCompleter, opts ...Option) *Enricher {
	e := &Enricher{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich produces the narrative layer for one review. Enrichment is
// best-effort: a failed call, an exhausted budget, or an unparseable
// response all degrade to the deterministic fallback. Only context
// cancellation surfaces as an error.
func (e *Enricher) Enrich(ctx context.Context, in EnrichInput) (*Enrichment, error) {
	resp, err := e.client.Complete(ctx, llm.Request{
		Capability: "enrichment",
		Messages: []llm.Message{
			{Role: "system", Content: enrichmentSystemPrompt},
			{Role: "user", Content: enrichmentUserPrompt(in)},
		},
		Budget: in.Budget,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if llm.IsBudgetExceeded(err) {
			e.logger.Warn("enrichment skipped, review budget exhausted", "error", err)
		} else {
			e.logger.Error("enrichment call failed, using fallback", "error", err)
		}
		return e.fallback(in), nil
	}

	enrichment, ok := parseEnrichment(resp.Content)
	if !ok {
		e.logger.Warn("failed to parse enrichment response, using fallback",
			"content_length", len(resp.Content))
		return e.fallback(in), nil
	}

	e.logger.Info("enrichment complete",
		"gap_enrichments", len(enrichment.GapEnrichments),
		"tokens_used", resp.Usage.TotalTokens)
	return enrichment, nil
}

// parseEnrichment extracts the enrichment object from an LLM response.
// Markdown fences and trailing commas are tolerated.
func parseEnrichment(content string) (*Enrichment, bool) {
	raw := llm.ExtractJSON(content)
	if raw == "" {
		return nil, false
	}
	var enrichment Enrichment
	if err := json.Unmarshal([]byte(raw), &enrichment); err != nil {
		return nil, false
	}
	return &enrichment, true
}

// fallback builds a basic enrichment from rule data alone: one rationale
// per gap naming where it was detected, a facts-derived summary, and
// recommendations ordered by severity.
func (e *Enricher) fallback(in EnrichInput) *Enrichment {
	allGaps := in.Rules.AllGaps()

	enrichments := make([]GapEnrichment, 0, len(allGaps))
	for _, gap := range allGaps {
		where := strings.Join(firstN(gap.AffectedFunctions, 3), ", ")
		if where == "" {
			where = strings.Join(firstN(gap.AffectedFiles, 3), ", ")
		}
		enrichments = append(enrichments, GapEnrichment{
			RuleID:    gap.RuleID,
			Rationale: fmt.Sprintf("%s. Detected in: %s.", gap.Title, where),
		})
	}

	facts := in.Rules.FactsSummary
	summary := fmt.Sprintf("Analyzed %d files with %d functions. Found %d logging gaps and %d metrics gaps.",
		facts["total_files"], facts["total_functions"],
		len(in.Rules.LoggingGaps), len(in.Rules.MetricsGaps))

	sorted := make([]rules.Problem, len(allGaps))
	copy(sorted, allGaps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return severityRank(sorted[i].Severity) < severityRank(sorted[j].Severity)
	})
	if len(sorted) > maxFallbackRecommendations {
		sorted = sorted[:maxFallbackRecommendations]
	}
	recLines := make([]string, len(sorted))
	for i, gap := range sorted {
		recLines[i] = fmt.Sprintf("%d. [%s] %s", i+1, gap.Severity, gap.Title)
	}

	return &Enrichment{
		Summary:         summary,
		Recommendations: strings.Join(recLines, "\n"),
		GapEnrichments:  enrichments,
	}
}
