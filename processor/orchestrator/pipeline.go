package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/healthwatch/analyzer"
	"github.com/c360studio/healthwatch/collector"
	"github.com/c360studio/healthwatch/extractor"
	"github.com/c360studio/healthwatch/facts"
	"github.com/c360studio/healthwatch/llm"
	"github.com/c360studio/healthwatch/review"
	"github.com/c360studio/healthwatch/rules"
	"github.com/c360studio/healthwatch/scorer"
	"github.com/c360studio/healthwatch/storage"
	"github.com/c360studio/healthwatch/verify"
)

// failedPersistTimeout bounds the detached persist of a terminal status
// after the run context was cancelled.
const failedPersistTimeout = 10 * time.Second

// Narrow store views. Extracted as interfaces to enable testing with fakes.
type reviewStore interface {
	Get(ctx context.Context, workspaceID, reviewID string) (*review.ServiceReview, error)
	Put(ctx context.Context, r *review.ServiceReview) error
	LatestCompleted(ctx context.Context, workspaceID, serviceID string) (*review.ServiceReview, error)
}

type serviceStore interface {
	Get(ctx context.Context, workspaceID, serviceID string) (*review.Service, error)
}

type scheduleStore interface {
	Get(ctx context.Context, serviceID string) (*review.Schedule, error)
	Put(ctx context.Context, sched *review.Schedule) error
}

type snapshotStore interface {
	Snapshot(ctx context.Context, workspaceID, serviceID string) (*facts.ParsedRepository, error)
}

type contextLoader interface {
	LoadMostRecent(ctx context.Context, workspaceID, repoFullName string) (*verify.CodebaseContext, error)
}

type gapVerifier interface {
	Run(ctx context.Context, in verify.RunInput) (*verify.Outcome, error)
}

type reviewEnricher interface {
	Enrich(ctx context.Context, in analyzer.EnrichInput) (*analyzer.Enrichment, error)
}

type resolver interface {
	Resolve(ctx context.Context, workspaceID string) collector.ExecutionContext
}

// Pipeline runs one review generation end to end and owns the review row's
// status transitions. By the time Run returns, the row is in a terminal
// status (unless it was never found) and the Result mirrors what was
// persisted.
type Pipeline struct {
	reviews   reviewStore
	services  serviceStore
	schedules scheduleStore
	repos     snapshotStore
	contexts  contextLoader

	sources   resolver
	collector *collector.Service
	extractor *extractor.Service
	engine    *rules.Engine
	verifier  gapVerifier
	enricher  reviewEnricher
	indicator *scorer.Indicator

	logger *slog.Logger

	useMock       bool
	maxIterations int
	maxTokens     int
}

// newPipeline wires the production pipeline. The verifier, enricher, and
// source resolver are passed in because they carry LLM and credential
// dependencies the component owns.
func newPipeline(cfg Config, stores *storage.Stores, verifier gapVerifier, enricher reviewEnricher, sources resolver, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		reviews:   stores.Reviews,
		services:  stores.Services,
		schedules: stores.Schedules,
		repos:     stores.Repositories,
		contexts:  stores.Contexts,
		sources:   sources,
		collector: collector.NewService(collector.WithLogger(logger)),
		extractor: extractor.NewService(
			extractor.WithMaxFiles(cfg.MaxFactsPerFile),
			extractor.WithLogger(logger),
		),
		engine:   rules.NewEngine(),
		verifier: verifier,
		enricher: enricher,
		indicator: scorer.NewIndicator(
			scorer.WithIndicatorLogger(logger),
			scorer.WithMockSLIs(cfg.UseMockAnalyzer),
		),
		logger:        logger,
		useMock:       cfg.UseMockAnalyzer,
		maxIterations: cfg.LLMMaxIterations,
		maxTokens:     cfg.LLMMaxTokenBudget,
	}
}

// Run generates one review. Requests for missing reviews or reviews already
// past pending are reported in the Result without touching stored state.
func (p *Pipeline) Run(ctx context.Context, req review.Request) review.Result {
	start := time.Now()

	rev, err := p.reviews.Get(ctx, req.WorkspaceID, req.ReviewID)
	if err != nil {
		p.logger.Error("review not found for request",
			"review_id", req.ReviewID,
			"workspace_id", req.WorkspaceID,
			"error", err)
		return review.Result{ReviewID: req.ReviewID, ErrorMessage: "review not found"}
	}
	if rev.Status != review.StatusPending {
		p.logger.Warn("skipping review not in pending status",
			"review_id", rev.ID, "status", rev.Status)
		return review.Result{ReviewID: rev.ID, ErrorMessage: fmt.Sprintf("review is %s, not pending", rev.Status)}
	}

	svc, err := p.services.Get(ctx, rev.WorkspaceID, rev.ServiceID)
	if err != nil {
		p.logger.Error("service not found for review",
			"review_id", rev.ID,
			"service_id", rev.ServiceID,
			"error", err)
		return p.fail(ctx, rev, "service not found", start)
	}

	prev := p.previousReview(ctx, rev)

	// The generating transition is persisted before any phase runs so a
	// crash mid-review leaves a diagnosable row.
	if err := rev.Transition(review.StatusGenerating); err != nil {
		return review.Result{ReviewID: rev.ID, ErrorMessage: err.Error()}
	}
	if err := p.reviews.Put(ctx, rev); err != nil {
		p.logger.Error("failed to persist generating status", "review_id", rev.ID, "error", err)
		return p.fail(ctx, rev, "failed to persist status transition", start)
	}

	p.logger.Info("generating review",
		"review_id", rev.ID,
		"service", svc.Name,
		"workspace_id", rev.WorkspaceID,
		"week_start", rev.WeekStart.Format("2006-01-02"),
		"mock", p.useMock)

	found, err := p.generate(ctx, rev, svc, prev)
	if err != nil {
		return p.fail(ctx, rev, failureMessage(ctx, err), start)
	}

	applyFindings(rev, found)
	if err := rev.Complete(found.scores.Overall, time.Since(start)); err != nil {
		return review.Result{ReviewID: rev.ID, ErrorMessage: err.Error()}
	}
	// Single Put commits the whole aggregate: review row, gaps, SLIs, and
	// errors land together or not at all.
	if err := p.reviews.Put(ctx, rev); err != nil {
		p.logger.Error("failed to persist completed review", "review_id", rev.ID, "error", err)
		return review.Result{ReviewID: rev.ID, ErrorMessage: "failed to persist review"}
	}

	p.recordOutcome(ctx, rev)

	duration := time.Since(start)
	p.logger.Info("review completed",
		"review_id", rev.ID,
		"service", svc.Name,
		"overall_score", found.scores.Overall,
		"logging_gaps", len(found.loggingGaps),
		"metrics_gaps", len(found.metricsGaps),
		"duration", duration)

	return review.Result{
		Success:                   true,
		ReviewID:                  rev.ID,
		GenerationDurationSeconds: int(duration.Seconds()),
	}
}

// findings carries everything one generation pass produces, pending the
// single persist that commits it.
type findings struct {
	loggingGaps []review.LoggingGap
	metricsGaps []review.MetricsGap
	slis        []scorer.SLIData
	errors      []collector.ErrorData
	scores      scorer.HealthScores

	summary         string
	recommendations string

	analyzedCommitSHA string
	codebaseChanged   bool

	logCount    int
	metricCount int
	errorCount  int
}

func (p *Pipeline) generate(ctx context.Context, rev *review.ServiceReview, svc *review.Service, prev *review.ServiceReview) (*findings, error) {
	repo, err := p.repos.Snapshot(ctx, rev.WorkspaceID, rev.ServiceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no parsed repository available for service %s", svc.Name)
		}
		return nil, fmt.Errorf("load repository snapshot: %w", err)
	}

	collected, err := p.collect(ctx, rev, svc)
	if err != nil {
		return nil, err
	}

	var prevScores map[string]int
	if prev != nil {
		prevScores = prev.PreviousSLIScores()
	}

	f := &findings{
		errors:            collected.Errors,
		analyzedCommitSHA: repo.CommitSHA,
		codebaseChanged:   codebaseChanged(repo, prev),
		logCount:          collected.LogCount,
		metricCount:       collected.MetricCount,
		errorCount:        len(collected.Errors),
	}

	if p.useMock {
		p.mockFindings(f, svc.Name, collected, prevScores)
		return f, nil
	}

	fileFacts, err := p.extractor.ExtractRepository(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("extract code facts: %w", err)
	}

	ruleResult := p.engine.Evaluate(fileFacts)
	p.logger.Info("rule engine complete",
		"review_id", rev.ID,
		"logging_gaps", len(ruleResult.LoggingGaps),
		"metrics_gaps", len(ruleResult.MetricsGaps))

	// One budget covers verification and enrichment together.
	budget := llm.NewBudget(p.maxIterations, p.maxTokens)

	outcome, err := p.verifier.Run(ctx, verify.RunInput{
		Repo:     repo,
		Rules:    ruleResult,
		Previous: p.previousContext(ctx, rev.WorkspaceID, repo.RepoFullName),
		Budget:   budget,
	})
	if err != nil {
		return nil, fmt.Errorf("verify gaps: %w", err)
	}

	enrichment, err := p.enricher.Enrich(ctx, analyzer.EnrichInput{
		ServiceName:    svc.Name,
		RepositoryName: svc.RepositoryName,
		Rules:          outcome.Result,
		Collected:      *collected,
		Budget:         budget,
	})
	if err != nil {
		return nil, fmt.Errorf("enrich gaps: %w", err)
	}

	f.loggingGaps, f.metricsGaps = buildGaps(outcome, enrichment)
	f.summary = enrichment.Summary
	f.recommendations = enrichment.Recommendations

	gapCount := len(f.loggingGaps) + len(f.metricsGaps)
	f.scores = scorer.CalculateScores(collected.Metrics, gapCount)
	f.slis = p.indicator.Calculate(collected.Metrics, svc.Name, prevScores)
	return f, nil
}

// mockFindings fills the findings from the deterministic demo analyzer.
// Fingerprints and verdicts stay empty because nothing was verified.
func (p *Pipeline) mockFindings(f *findings, serviceName string, collected *collector.CollectedData, prevScores map[string]int) {
	analysis := analyzer.MockAnalysis(serviceName)
	f.loggingGaps = analysis.LoggingGaps
	f.metricsGaps = analysis.MetricsGaps
	f.errors = analysis.Errors
	f.summary = analysis.Summary
	f.recommendations = analysis.Recommendations

	gapCount := len(analysis.LoggingGaps) + len(analysis.MetricsGaps)
	f.scores = scorer.CalculateScores(collected.Metrics, gapCount)
	f.slis = p.indicator.Calculate(collected.Metrics, serviceName, prevScores)
}

// collect runs data collection. Provider failures are absorbed upstream;
// only cancellation aborts the review here. A failed pass degrades to empty
// data so the gap analysis still runs.
func (p *Pipeline) collect(ctx context.Context, rev *review.ServiceReview, svc *review.Service) (*collector.CollectedData, error) {
	ec := p.sources.Resolve(ctx, rev.WorkspaceID)
	collected, err := p.collector.Collect(ctx, ec, collector.Query{
		WorkspaceID: rev.WorkspaceID,
		ServiceName: svc.Name,
		WeekStart:   rev.WeekStart,
		WeekEnd:     rev.WeekEnd,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("data collection failed", "review_id", rev.ID, "error", err)
		return &collector.CollectedData{}, nil
	}
	return collected, nil
}

// previousReview returns the service's most recent completed review, nil
// for a first review.
func (p *Pipeline) previousReview(ctx context.Context, rev *review.ServiceReview) *review.ServiceReview {
	prev, err := p.reviews.LatestCompleted(ctx, rev.WorkspaceID, rev.ServiceID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn("failed to load previous review",
				"service_id", rev.ServiceID, "error", err)
		}
		return nil
	}
	return prev
}

// previousContext loads the stored codebase context for the fast
// verification path. Missing context is normal for a first review.
func (p *Pipeline) previousContext(ctx context.Context, workspaceID, repoFullName string) *verify.CodebaseContext {
	cc, err := p.contexts.LoadMostRecent(ctx, workspaceID, repoFullName)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn("failed to load codebase context",
				"repo", repoFullName, "error", err)
		}
		return nil
	}
	return cc
}

// fail marks the review failed and persists the terminal status. When the
// run context is already cancelled the persist runs on a detached context
// so the row never wedges in generating.
func (p *Pipeline) fail(ctx context.Context, rev *review.ServiceReview, msg string, start time.Time) review.Result {
	if err := rev.Fail(msg, time.Since(start)); err != nil {
		p.logger.Error("failed to mark review failed", "review_id", rev.ID, "error", err)
		return review.Result{ReviewID: rev.ID, ErrorMessage: msg}
	}

	persistCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(context.Background(), failedPersistTimeout)
		defer cancel()
	}
	if err := p.reviews.Put(persistCtx, rev); err != nil {
		p.logger.Error("failed to persist failed review", "review_id", rev.ID, "error", err)
	}
	p.recordOutcome(persistCtx, rev)

	p.logger.Warn("review failed", "review_id", rev.ID, "error_message", msg)
	return review.Result{ReviewID: rev.ID, ErrorMessage: msg}
}

// recordOutcome reflects the review's terminal status onto its schedule.
// Services reviewed on demand have no schedule; that is not an error.
func (p *Pipeline) recordOutcome(ctx context.Context, rev *review.ServiceReview) {
	sched, err := p.schedules.Get(ctx, rev.ServiceID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn("failed to load schedule", "service_id", rev.ServiceID, "error", err)
		}
		return
	}
	sched.RecordOutcome(rev.ID, rev.Status, rev.ErrorMessage, time.Now())
	if err := p.schedules.Put(ctx, sched); err != nil {
		p.logger.Warn("failed to update schedule", "service_id", rev.ServiceID, "error", err)
	}
}

// failureMessage translates a pipeline error into the operator-facing
// error message. Cancellation gets a stable message operators key on;
// budget exhaustion already formats itself.
func failureMessage(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "cancelled"
	}
	return err.Error()
}

// codebaseChanged reports whether the analyzed commit differs from the one
// the previous completed review analyzed. First reviews always count as
// changed.
func codebaseChanged(repo *facts.ParsedRepository, prev *review.ServiceReview) bool {
	if prev == nil || prev.AnalyzedCommitSHA == "" || repo.CommitSHA == "" {
		return true
	}
	return prev.AnalyzedCommitSHA != repo.CommitSHA
}

// applyFindings copies generation output onto the review row.
func applyFindings(rev *review.ServiceReview, f *findings) {
	rev.Summary = f.summary
	rev.Recommendations = f.recommendations
	rev.AnalyzedCommitSHA = f.analyzedCommitSHA
	rev.LoggingGaps = f.loggingGaps
	rev.MetricsGaps = f.metricsGaps
	rev.SLIs = f.slis
	rev.Errors = f.errors

	changed := f.codebaseChanged
	errorCount := f.errorCount
	logCount := f.logCount
	metricCount := f.metricCount
	rev.CodebaseChanged = &changed
	rev.ErrorCountAnalyzed = &errorCount
	rev.LogVolumeAnalyzed = &logCount
	rev.MetricCountAnalyzed = &metricCount
}

// buildGaps converts surviving rule problems into review gap records,
// attaching fingerprints, verification verdicts, and enrichment content.
// The verifier has already dropped false alarms, so every gap built here
// is either genuine or unverified.
func buildGaps(outcome *verify.Outcome, enrichment *analyzer.Enrichment) ([]review.LoggingGap, []review.MetricsGap) {
	byRule := enrichment.ByRule()

	loggingGaps := make([]review.LoggingGap, 0, len(outcome.Result.LoggingGaps))
	for _, problem := range outcome.Result.LoggingGaps {
		gap := review.LoggingGap{
			Description:       problem.Title,
			Category:          problem.Category,
			Severity:          problem.Severity,
			AffectedFiles:     problem.AffectedFiles,
			AffectedFunctions: problem.AffectedFunctions,
			Fingerprint:       rules.ProblemFingerprint(problem),
			Resolution:        review.ResolutionOpen,
			Evidence:          problem.Evidence,
		}
		if e, ok := byRule[problem.RuleID]; ok {
			gap.SuggestedLogStatement = e.SuggestedLogStatement
			gap.Rationale = e.Rationale
		}
		if v, ok := outcome.Verdicts[problem.Title]; ok {
			gap.Verdict = review.VerificationVerdict(v.Verdict)
			gap.VerificationEvidence = v.Reason
		}
		loggingGaps = append(loggingGaps, gap)
	}

	metricsGaps := make([]review.MetricsGap, 0, len(outcome.Result.MetricsGaps))
	for _, problem := range outcome.Result.MetricsGaps {
		gap := review.MetricsGap{
			Description:          problem.Title,
			Category:             problem.Category,
			MetricType:           problem.MetricType,
			Severity:             problem.Severity,
			AffectedFiles:        problem.AffectedFiles,
			AffectedFunctions:    problem.AffectedFunctions,
			SuggestedMetricNames: problem.SuggestedMetricNames,
			Fingerprint:          rules.ProblemFingerprint(problem),
			Resolution:           review.ResolutionOpen,
			Evidence:             problem.Evidence,
		}
		if e, ok := byRule[problem.RuleID]; ok {
			gap.ImplementationGuide = e.ImplementationGuide
			gap.ExampleCode = e.ExampleCode
			gap.Rationale = e.Rationale
		}
		if v, ok := outcome.Verdicts[problem.Title]; ok {
			gap.Verdict = review.VerificationVerdict(v.Verdict)
			gap.VerificationEvidence = v.Reason
		}
		metricsGaps = append(metricsGaps, gap)
	}

	return loggingGaps, metricsGaps
}
