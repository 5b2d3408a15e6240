package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ---------------------------------------------------------------------------
// Fakes for the pipeline's store and stage interfaces
// ---------------------------------------------------------------------------

type fakeReviewStore struct {
	reviews map[string]*review.ServiceReview
	latest  *review.ServiceReview
	puts    int
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{reviews: make(map[string]*review.ServiceReview)}
}

func (s *fakeReviewStore) Get(_ context.Context, _, reviewID string) (*review.ServiceReview, error) {
	r, ok := s.reviews[reviewID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r, nil
}

func (s *fakeReviewStore) Put(_ context.Context, r *review.ServiceReview) error {
	s.puts++
	s.reviews[r.ID] = r
	return nil
}

func (s *fakeReviewStore) LatestCompleted(_ context.Context, _, _ string) (*review.ServiceReview, error) {
	if s.latest == nil {
		return nil, storage.ErrNotFound
	}
	return s.latest, nil
}

type fakeServiceStore struct{ svc *review.Service }

func (s *fakeServiceStore) Get(_ context.Context, _, _ string) (*review.Service, error) {
	if s.svc == nil {
		return nil, storage.ErrNotFound
	}
	return s.svc, nil
}

type fakeScheduleStore struct {
	sched *review.Schedule
	puts  int
}

func (s *fakeScheduleStore) Get(_ context.Context, _ string) (*review.Schedule, error) {
	if s.sched == nil {
		return nil, storage.ErrNotFound
	}
	return s.sched, nil
}

func (s *fakeScheduleStore) Put(_ context.Context, sched *review.Schedule) error {
	s.puts++
	s.sched = sched
	return nil
}

type fakeSnapshotStore struct{ repo *facts.ParsedRepository }

func (s *fakeSnapshotStore) Snapshot(_ context.Context, _, _ string) (*facts.ParsedRepository, error) {
	if s.repo == nil {
		return nil, storage.ErrNotFound
	}
	return s.repo, nil
}

type fakeContextLoader struct{ cc *verify.CodebaseContext }

func (s *fakeContextLoader) LoadMostRecent(_ context.Context, _, _ string) (*verify.CodebaseContext, error) {
	if s.cc == nil {
		return nil, storage.ErrNotFound
	}
	return s.cc, nil
}

type fakeVerifier struct {
	outcome *verify.Outcome
	err     error
	calls   int
	gotIn   verify.RunInput
}

func (v *fakeVerifier) Run(_ context.Context, in verify.RunInput) (*verify.Outcome, error) {
	v.calls++
	v.gotIn = in
	if v.err != nil {
		return nil, v.err
	}
	if v.outcome != nil {
		return v.outcome, nil
	}
	return &verify.Outcome{Result: in.Rules}, nil
}

type fakeEnricher struct {
	enrichment *analyzer.Enrichment
	err        error
	calls      int
	gotIn      analyzer.EnrichInput
}

func (e *fakeEnricher) Enrich(_ context.Context, in analyzer.EnrichInput) (*analyzer.Enrichment, error) {
	e.calls++
	e.gotIn = in
	if e.err != nil {
		return nil, e.err
	}
	if e.enrichment != nil {
		return e.enrichment, nil
	}
	return &analyzer.Enrichment{}, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, _ string) collector.ExecutionContext {
	return collector.ExecutionContext{}
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type pipelineFixture struct {
	reviews   *fakeReviewStore
	services  *fakeServiceStore
	schedules *fakeScheduleStore
	repos     *fakeSnapshotStore
	contexts  *fakeContextLoader
	verifier  *fakeVerifier
	enricher  *fakeEnricher
	pipeline  *Pipeline
}

func newFixture(useMock bool) *pipelineFixture {
	f := &pipelineFixture{
		reviews:   newFakeReviewStore(),
		services:  &fakeServiceStore{},
		schedules: &fakeScheduleStore{},
		repos:     &fakeSnapshotStore{},
		contexts:  &fakeContextLoader{},
		verifier:  &fakeVerifier{},
		enricher:  &fakeEnricher{},
	}
	logger := testLogger()
	f.pipeline = &Pipeline{
		reviews:   f.reviews,
		services:  f.services,
		schedules: f.schedules,
		repos:     f.repos,
		contexts:  f.contexts,
		sources:   fakeResolver{},
		collector: collector.NewService(collector.WithLogger(logger)),
		extractor: extractor.NewService(extractor.WithLogger(logger)),
		engine:    rules.NewEngine(),
		verifier:  f.verifier,
		enricher:  f.enricher,
		indicator: scorer.NewIndicator(
			scorer.WithIndicatorLogger(logger),
			scorer.WithMockSLIs(useMock),
		),
		logger:        logger,
		useMock:       useMock,
		maxIterations: 10,
		maxTokens:     100000,
	}
	return f
}

func pendingReview() *review.ServiceReview {
	now := time.Now().UTC()
	rev := review.New("ws-1", "svc-1", now.AddDate(0, 0, -7), now)
	rev.ServiceName = "checkout"
	return rev
}

func requestFor(rev *review.ServiceReview) review.Request {
	return review.Request{
		ReviewID:    rev.ID,
		WorkspaceID: rev.WorkspaceID,
		ServiceID:   rev.ServiceID,
	}
}

func testService() *review.Service {
	return &review.Service{
		ID:             "svc-1",
		WorkspaceID:    "ws-1",
		Name:           "checkout",
		RepositoryName: "acme/checkout",
		Active:         true,
	}
}

func testSnapshot() *facts.ParsedRepository {
	return &facts.ParsedRepository{
		ID:           "parse-1",
		WorkspaceID:  "ws-1",
		RepoFullName: "acme/checkout",
		CommitSHA:    "abc123",
		Status:       facts.ParseCompleted,
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestPipelineRun_ReviewNotFound(t *testing.T) {
	f := newFixture(false)

	result := f.pipeline.Run(context.Background(), review.Request{
		ReviewID:    "missing",
		WorkspaceID: "ws-1",
		ServiceID:   "svc-1",
	})

	if result.Success {
		t.Fatal("expected failure for missing review")
	}
	if result.ErrorMessage != "review not found" {
		t.Errorf("ErrorMessage = %q, want %q", result.ErrorMessage, "review not found")
	}
	if f.reviews.puts != 0 {
		t.Errorf("puts = %d, want 0", f.reviews.puts)
	}
}

func TestPipelineRun_SkipsNonPending(t *testing.T) {
	f := newFixture(false)
	rev := pendingReview()
	rev.Status = review.StatusCompleted
	f.reviews.reviews[rev.ID] = rev

	result := f.pipeline.Run(context.Background(), requestFor(rev))

	if result.Success {
		t.Fatal("expected skip for non-pending review")
	}
	if !strings.Contains(result.ErrorMessage, "not pending") {
		t.Errorf("ErrorMessage = %q, want mention of not pending", result.ErrorMessage)
	}
	if rev.Status != review.StatusCompleted {
		t.Errorf("Status = %q, terminal review must not change", rev.Status)
	}
	if f.reviews.puts != 0 {
		t.Errorf("puts = %d, want 0 for a skipped review", f.reviews.puts)
	}
}

func TestPipelineRun_ServiceNotFound(t *testing.T) {
	f := newFixture(false)
	rev := pendingReview()
	f.reviews.reviews[rev.ID] = rev

	result := f.pipeline.Run(context.Background(), requestFor(rev))

	if result.Success {
		t.Fatal("expected failure for missing service")
	}
	if result.ErrorMessage != "service not found" {
		t.Errorf("ErrorMessage = %q, want %q", result.ErrorMessage, "service not found")
	}
	if rev.Status != review.StatusFailed {
		t.Errorf("Status = %q, want failed", rev.Status)
	}
	if rev.GeneratedAt == nil {
		t.Error("failed review should record generated_at")
	}
}

func TestPipelineRun_NoParsedRepository(t *testing.T) {
	f := newFixture(false)
	rev := pendingReview()
	f.reviews.reviews[rev.ID] = rev
	f.services.svc = testService()
	f.schedules.sched = &review.Schedule{ID: "sched-1", ServiceID: "svc-1", WorkspaceID: "ws-1"}

	result := f.pipeline.Run(context.Background(), requestFor(rev))

	if result.Success {
		t.Fatal("expected failure without a parsed repository")
	}
	if !strings.Contains(result.ErrorMessage, "no parsed repository") {
		t.Errorf("ErrorMessage = %q, want mention of no parsed repository", result.ErrorMessage)
	}
	if rev.Status != review.StatusFailed {
		t.Errorf("Status = %q, want failed", rev.Status)
	}
	if len(rev.LoggingGaps) != 0 || len(rev.MetricsGaps) != 0 || len(rev.SLIs) != 0 {
		t.Error("failed review must carry no partial findings")
	}
	if f.verifier.calls != 0 {
		t.Errorf("verifier calls = %d, want 0", f.verifier.calls)
	}

	// The schedule reflects the failed outcome.
	if f.schedules.sched.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", f.schedules.sched.ConsecutiveFailures)
	}
	if f.schedules.sched.LastReviewStatus != string(review.StatusFailed) {
		t.Errorf("LastReviewStatus = %q, want failed", f.schedules.sched.LastReviewStatus)
	}
	if f.schedules.sched.LastError == "" {
		t.Error("LastError should record the failure message")
	}
}

func TestPipelineRun_MockRequiresRepository(t *testing.T) {
	f := newFixture(true)
	rev := pendingReview()
	f.reviews.reviews[rev.ID] = rev
	f.services.svc = testService()

	result := f.pipeline.Run(context.Background(), requestFor(rev))

	if result.Success {
		t.Fatal("mock mode must still require a parsed repository")
	}
	if !strings.Contains(result.ErrorMessage, "no parsed repository") {
		t.Errorf("ErrorMessage = %q, want mention of no parsed repository", result.ErrorMessage)
	}
}

func TestPipelineRun_MockAnalyzer(t *testing.T) {
	f := newFixture(true)
	rev := pendingReview()
	f.reviews.reviews[rev.ID] = rev
	f.services.svc = testService()
	f.repos.repo = testSnapshot()

	result := f.pipeline.Run(context.Background(), requestFor(rev))

	if !result.Success {
		t.Fatalf("Run failed: %s", result.ErrorMessage)
	}
	if rev.Status != review.StatusCompleted {
		t.Fatalf("Status = %q, want completed", rev.Status)
	}
	if rev.OverallHealthScore == nil {
		t.Fatal("OverallHealthScore not set")
	}
	if len(rev.LoggingGaps) == 0 {
		t.Error("mock analysis should produce logging gaps")
	}
	if len(rev.MetricsGaps) == 0 {
		t.Error("mock analysis should produce metrics gaps")
	}
	if len(rev.SLIs) == 0 {
		t.Error("mock analysis should produce SLIs")
	}
	if rev.Summary == "" {
		t.Error("Summary not set")
	}
	if rev.AnalyzedCommitSHA != "abc123" {
		t.Errorf("AnalyzedCommitSHA = %q, want %q", rev.AnalyzedCommitSHA, "abc123")
	}
	if rev.CodebaseChanged == nil || !*rev.CodebaseChanged {
		t.Error("first review should report codebase_changed = true")
	}

	// Mock mode makes no verification or enrichment calls.
	if f.verifier.calls != 0 {
		t.Errorf("verifier calls = %d, want 0 in mock mode", f.verifier.calls)
	}
	if f.enricher.calls != 0 {
		t.Errorf("enricher calls = %d, want 0 in mock mode", f.enricher.calls)
	}

	// Nothing was verified, so gaps carry no fingerprints or verdicts.
	for _, gap := range rev.LoggingGaps {
		if gap.Fingerprint != "" {
			t.Errorf("mock gap %q has fingerprint %q, want empty", gap.Description, gap.Fingerprint)
		}
		if gap.Verdict != "" {
			t.Errorf("mock gap %q has verdict %q, want empty", gap.Description, gap.Verdict)
		}
	}
}

func TestPipelineRun_VerifiedAndEnriched(t *testing.T) {
	f := newFixture(false)
	rev := pendingReview()
	f.reviews.reviews[rev.ID] = rev
	f.services.svc = testService()
	f.repos.repo = testSnapshot()
	f.schedules.sched = &review.Schedule{
		ID:                  "sched-1",
		ServiceID:           "svc-1",
		WorkspaceID:         "ws-1",
		ConsecutiveFailures: 2,
		LastError:           "previous failure",
	}

	loggingProblem := rules.Problem{
		RuleID:        "missing-error-logging",
		Type:          rules.ProblemLoggingGap,
		Severity:      rules.SeverityHigh,
		Title:         "Exception handlers swallow errors in payment.go",
		Category:      "error_handling",
		AffectedFiles: []string{"internal/payment.go"},
	}
	metricsProblem := rules.Problem{
		RuleID:               "missing-latency-histogram",
		Type:                 rules.ProblemMetricsGap,
		Severity:             rules.SeverityMedium,
		Title:                "HTTP handlers lack latency instrumentation",
		Category:             "latency",
		MetricType:           "histogram",
		SuggestedMetricNames: []string{"http_request_duration_seconds"},
		AffectedFiles:        []string{"internal/api.go"},
	}

	f.verifier.outcome = &verify.Outcome{
		Result: rules.Result{
			LoggingGaps: []rules.Problem{loggingProblem},
			MetricsGaps: []rules.Problem{metricsProblem},
		},
		Verdicts: map[string]verify.GapVerdictResult{
			loggingProblem.Title: {
				GapTitle: loggingProblem.Title,
				RuleID:   loggingProblem.RuleID,
				Verdict:  verify.VerdictGenuine,
				Reason:   "handler at line 42 drops the error",
			},
		},
	}
	f.enricher.enrichment = &analyzer.Enrichment{
		Summary:         "Service health is degraded by silent error handling.",
		Recommendations: "1. Log swallowed exceptions.",
		GapEnrichments: []analyzer.GapEnrichment{
			{
				RuleID:                "missing-error-logging",
				Rationale:             "Silent failures hide incidents.",
				SuggestedLogStatement: `slog.Error("payment failed", "error", err)`,
			},
			{
				RuleID:              "missing-latency-histogram",
				Rationale:           "Latency budgets need data.",
				ImplementationGuide: "Wrap handlers with a histogram timer.",
				ExampleCode:         "histogram.Observe(elapsed.Seconds())",
			},
		},
	}

	result := f.pipeline.Run(context.Background(), requestFor(rev))

	if !result.Success {
		t.Fatalf("Run failed: %s", result.ErrorMessage)
	}
	if rev.Status != review.StatusCompleted {
		t.Fatalf("Status = %q, want completed", rev.Status)
	}
	if f.verifier.calls != 1 {
		t.Errorf("verifier calls = %d, want 1", f.verifier.calls)
	}
	if f.enricher.calls != 1 {
		t.Errorf("enricher calls = %d, want 1", f.enricher.calls)
	}

	// The verifier saw the snapshot and a live budget.
	if f.verifier.gotIn.Repo == nil || f.verifier.gotIn.Repo.CommitSHA != "abc123" {
		t.Error("verifier did not receive the repository snapshot")
	}
	if f.verifier.gotIn.Budget == nil {
		t.Error("verifier did not receive the review budget")
	}

	// The enricher saw the post-verification gap set and the same budget.
	if f.enricher.gotIn.ServiceName != "checkout" {
		t.Errorf("enricher ServiceName = %q, want %q", f.enricher.gotIn.ServiceName, "checkout")
	}
	if f.enricher.gotIn.RepositoryName != "acme/checkout" {
		t.Errorf("enricher RepositoryName = %q, want %q", f.enricher.gotIn.RepositoryName, "acme/checkout")
	}
	if len(f.enricher.gotIn.Rules.LoggingGaps) != 1 {
		t.Errorf("enricher received %d logging gaps, want 1", len(f.enricher.gotIn.Rules.LoggingGaps))
	}
	if f.enricher.gotIn.Budget != f.verifier.gotIn.Budget {
		t.Error("verification and enrichment must share one budget")
	}

	if rev.Summary != "Service health is degraded by silent error handling." {
		t.Errorf("Summary = %q", rev.Summary)
	}
	if rev.Recommendations != "1. Log swallowed exceptions." {
		t.Errorf("Recommendations = %q", rev.Recommendations)
	}

	if len(rev.LoggingGaps) != 1 {
		t.Fatalf("LoggingGaps = %d, want 1", len(rev.LoggingGaps))
	}
	lg := rev.LoggingGaps[0]
	if lg.Description != loggingProblem.Title {
		t.Errorf("Description = %q, want %q", lg.Description, loggingProblem.Title)
	}
	if lg.Severity != rules.SeverityHigh {
		t.Errorf("Severity = %q, want HIGH", lg.Severity)
	}
	if lg.SuggestedLogStatement == "" {
		t.Error("SuggestedLogStatement not applied from enrichment")
	}
	if lg.Rationale != "Silent failures hide incidents." {
		t.Errorf("Rationale = %q", lg.Rationale)
	}
	if lg.Fingerprint == "" {
		t.Error("Fingerprint not set")
	}
	if lg.Verdict != review.VerdictGenuine {
		t.Errorf("Verdict = %q, want genuine", lg.Verdict)
	}
	if lg.VerificationEvidence != "handler at line 42 drops the error" {
		t.Errorf("VerificationEvidence = %q", lg.VerificationEvidence)
	}
	if lg.Resolution != review.ResolutionOpen {
		t.Errorf("Resolution = %q, want open", lg.Resolution)
	}

	if len(rev.MetricsGaps) != 1 {
		t.Fatalf("MetricsGaps = %d, want 1", len(rev.MetricsGaps))
	}
	mg := rev.MetricsGaps[0]
	if mg.MetricType != "histogram" {
		t.Errorf("MetricType = %q, want histogram", mg.MetricType)
	}
	if len(mg.SuggestedMetricNames) != 1 || mg.SuggestedMetricNames[0] != "http_request_duration_seconds" {
		t.Errorf("SuggestedMetricNames = %v", mg.SuggestedMetricNames)
	}
	if mg.ImplementationGuide != "Wrap handlers with a histogram timer." {
		t.Errorf("ImplementationGuide = %q", mg.ImplementationGuide)
	}
	if mg.ExampleCode == "" {
		t.Error("ExampleCode not applied from enrichment")
	}
	if mg.Fingerprint == "" {
		t.Error("Fingerprint not set on metrics gap")
	}
	if mg.Verdict != "" {
		t.Errorf("unverified gap should carry no verdict, got %q", mg.Verdict)
	}

	if len(rev.SLIs) != 4 {
		t.Errorf("SLIs = %d, want the four golden signals", len(rev.SLIs))
	}
	if rev.OverallHealthScore == nil {
		t.Error("OverallHealthScore not set")
	}
	if rev.GenerationDurationSeconds == nil {
		t.Error("GenerationDurationSeconds not set")
	}

	// Success resets the schedule's failure streak.
	if f.schedules.sched.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0 after success", f.schedules.sched.ConsecutiveFailures)
	}
	if f.schedules.sched.LastReviewStatus != string(review.StatusCompleted) {
		t.Errorf("LastReviewStatus = %q, want completed", f.schedules.sched.LastReviewStatus)
	}
	if f.schedules.sched.LastReviewID != rev.ID {
		t.Errorf("LastReviewID = %q, want %q", f.schedules.sched.LastReviewID, rev.ID)
	}
	if f.schedules.sched.LastError != "" {
		t.Errorf("LastError = %q, want cleared", f.schedules.sched.LastError)
	}

	// Generating transition plus the final aggregate commit.
	if f.reviews.puts != 2 {
		t.Errorf("puts = %d, want 2", f.reviews.puts)
	}
}

func TestPipelineRun_BudgetExhausted(t *testing.T) {
	f := newFixture(false)
	rev := pendingReview()
	f.reviews.reviews[rev.ID] = rev
	f.services.svc = testService()
	f.repos.repo = testSnapshot()
	f.verifier.err = &llm.BudgetExceededError{
		Iterations:    10,
		MaxIterations: 10,
		Tokens:        4000,
		MaxTokens:     100000,
	}

	result := f.pipeline.Run(context.Background(), requestFor(rev))

	if result.Success {
		t.Fatal("expected failure on exhausted budget")
	}
	if !strings.Contains(result.ErrorMessage, "LLM budget exhausted") {
		t.Errorf("ErrorMessage = %q, want mention of LLM budget exhausted", result.ErrorMessage)
	}
	if rev.Status != review.StatusFailed {
		t.Errorf("Status = %q, want failed", rev.Status)
	}
}

func TestPipelineRun_Cancelled(t *testing.T) {
	f := newFixture(false)
	rev := pendingReview()
	f.reviews.reviews[rev.ID] = rev
	f.services.svc = testService()
	f.repos.repo = testSnapshot()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.pipeline.Run(ctx, requestFor(rev))

	if result.Success {
		t.Fatal("expected failure on cancelled context")
	}
	if result.ErrorMessage != "cancelled" {
		t.Errorf("ErrorMessage = %q, want %q", result.ErrorMessage, "cancelled")
	}
	if rev.Status != review.StatusFailed {
		t.Errorf("Status = %q, want failed", rev.Status)
	}
	if rev.ErrorMessage != "cancelled" {
		t.Errorf("review ErrorMessage = %q, want %q", rev.ErrorMessage, "cancelled")
	}
	// The terminal status is persisted even though the run context is dead.
	if f.reviews.puts != 2 {
		t.Errorf("puts = %d, want 2", f.reviews.puts)
	}
}

func TestPipelineRun_CodebaseUnchanged(t *testing.T) {
	f := newFixture(true)
	rev := pendingReview()
	f.reviews.reviews[rev.ID] = rev
	f.services.svc = testService()
	f.repos.repo = testSnapshot()

	previous := pendingReview()
	previous.Status = review.StatusCompleted
	previous.AnalyzedCommitSHA = "abc123"
	f.reviews.latest = previous

	result := f.pipeline.Run(context.Background(), requestFor(rev))

	if !result.Success {
		t.Fatalf("Run failed: %s", result.ErrorMessage)
	}
	if rev.CodebaseChanged == nil || *rev.CodebaseChanged {
		t.Error("matching commit should report codebase_changed = false")
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestCodebaseChanged(t *testing.T) {
	repo := &facts.ParsedRepository{CommitSHA: "abc"}

	tests := []struct {
		name string
		repo *facts.ParsedRepository
		prev *review.ServiceReview
		want bool
	}{
		{name: "first review", repo: repo, prev: nil, want: true},
		{name: "previous without sha", repo: repo, prev: &review.ServiceReview{}, want: true},
		{name: "same sha", repo: repo, prev: &review.ServiceReview{AnalyzedCommitSHA: "abc"}, want: false},
		{name: "different sha", repo: repo, prev: &review.ServiceReview{AnalyzedCommitSHA: "def"}, want: true},
		{name: "snapshot without sha", repo: &facts.ParsedRepository{}, prev: &review.ServiceReview{AnalyzedCommitSHA: "abc"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := codebaseChanged(tt.repo, tt.prev); got != tt.want {
				t.Errorf("codebaseChanged() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFailureMessage(t *testing.T) {
	if got := failureMessage(context.Background(), errors.New("boom")); got != "boom" {
		t.Errorf("failureMessage() = %q, want %q", got, "boom")
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if got := failureMessage(cancelled, errors.New("boom")); got != "cancelled" {
		t.Errorf("failureMessage() = %q, want %q", got, "cancelled")
	}
}
