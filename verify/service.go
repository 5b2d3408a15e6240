package verify

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/c360studio/healthwatch/facts"
	"github.com/c360studio/healthwatch/llm"
	"github.com/c360studio/healthwatch/rules"
)

// Defaults for the verification knobs. Sample size and threshold follow the
// group-decision model: a rule group is dismissed only when at least 70% of
// its sampled gaps are provably covered.
const (
	DefaultSampleSize          = 20
	DefaultConfidenceThreshold = 0.70

	// MaxCandidateFiles caps how many Phase A candidates feed the per-file
	// extraction loop.
	MaxCandidateFiles = 30

	// MaxLinesPerFile truncates file content sent to the extraction prompt.
	MaxLinesPerFile = 300
)

// Verdict classifies one detected gap after verification.
type Verdict string

const (
	// VerdictGenuine means the gap is real and should be reported.
	VerdictGenuine Verdict = "genuine"

	// VerdictFalseAlarm means global instrumentation already covers the gap.
	VerdictFalseAlarm Verdict = "false_alarm"

	// VerdictCoveredGlobally is reported separately for audit but treated
	// identically to a false alarm downstream.
	VerdictCoveredGlobally Verdict = "covered_globally"
)

// GapVerdictResult is the verification outcome for a single gap.
type GapVerdictResult struct {
	GapTitle     string  `json:"gap_title"`
	RuleID       string  `json:"rule_id"`
	Verdict      Verdict `json:"verdict"`
	Reason       string  `json:"reason,omitempty"`
	EvidenceFile string  `json:"evidence_file,omitempty"`
}

// GroupResult is the verification outcome for every gap sharing a rule id.
type GroupResult struct {
	RuleID        string             `json:"rule_id"`
	Verdicts      []GapVerdictResult `json:"verdicts"`
	FilesRead     []string           `json:"files_read,omitempty"`
	ToolCallsUsed int                `json:"tool_calls_used,omitempty"`
}

// Extraction is one instrumentation pattern reported by the per-file
// extraction prompt.
type Extraction struct {
	Type             string   `json:"type"`
	FilePath         string   `json:"file_path"`
	FunctionOrClass  string   `json:"function_or_class,omitempty"`
	Coverage         string   `json:"coverage,omitempty"`
	MetricsRecorded  []string `json:"metrics_recorded,omitempty"`
	RegistrationFile string   `json:"registration_file,omitempty"`
	Description      string   `json:"description,omitempty"`
}

// RunInput carries everything the verification stage needs for one review.
type RunInput struct {
	// Repo is the parsed snapshot the gaps were detected on.
	Repo *facts.ParsedRepository

	// Rules is the unfiltered rule engine output.
	Rules rules.Result

	// Previous is the most recent stored codebase context, nil when none.
	Previous *CodebaseContext

	// Budget caps LLM spend for the whole review. Exhaustion aborts the run.
	Budget *llm.Budget
}

// Outcome is the verification stage's result: the filtered gap set plus the
// verdict metadata that survives onto the persisted review.
type Outcome struct {
	// Result holds the gaps that remain after false alarms are removed.
	// The facts summary passes through unchanged.
	Result rules.Result

	// Verdicts maps gap title to its verification verdict. Empty on the
	// fast path and when verification was skipped.
	Verdicts map[string]GapVerdictResult

	// Context is the codebase context that filtered this run: the reused
	// one on the fast path, the freshly built one on the slow path, nil
	// when verification was skipped entirely.
	Context *CodebaseContext

	// FastPath reports that the previous context filtered gaps without
	// any LLM call.
	FastPath bool
}

// llmAgent is the subset of the LLM client the verifier uses.
type llmAgent interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
	RunAgent(ctx context.Context, req llm.AgentRequest) (*llm.AgentResult, error)
}

// Service verifies rule engine findings.
//
// The fast path filters deterministically from a previous context when no
// infrastructure file changed. The slow path runs three LLM phases:
// candidate identification, per-file extraction, and sample-based gap
// verification with a tool-using agent.
type Service struct {
	client   llmAgent
	contexts ContextStore
	logger   *slog.Logger

	sampleSize          int
	confidenceThreshold float64
	verificationDelay   time.Duration
	extractConcurrency  int
	searchLimit         int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSampleSize overrides how many gaps per rule group are verified.
func WithSampleSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sampleSize = n
		}
	}
}

// WithConfidenceThreshold overrides the pass ratio at which a rule group is
// dismissed as a false alarm.
func WithConfidenceThreshold(t float64) Option {
	return func(s *Service) {
		if t > 0 {
			s.confidenceThreshold = t
		}
	}
}

// WithVerificationDelay sets a pause between rule-group verifications to
// soften provider rate limits. The LLM budget remains the hard cap.
func WithVerificationDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.verificationDelay = d
		}
	}
}

// WithExtractConcurrency bounds how many per-file extraction calls run at
// once. The default of 1 preserves sequential ordering.
func WithExtractConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.extractConcurrency = n
		}
	}
}

// WithToolSearchLimit overrides the agent tools' result cap.
func WithToolSearchLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.searchLimit = n
		}
	}
}

// NewService creates a verification service. contexts may be nil when
// context persistence is not wanted (the slow path then rebuilds every run).
func NewService(client llmAgent, contexts ContextStore, opts ...Option) *Service {
	s := &Service{
		client:              client,
		contexts:            contexts,
		logger:              slog.Default(),
		sampleSize:          DefaultSampleSize,
		confidenceThreshold: DefaultConfidenceThreshold,
		extractConcurrency:  1,
		searchLimit:         defaultSearchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run routes one review's gaps through verification. Reviews with no gaps or
// no parsed snapshot pass through unfiltered. When the previous context's
// infrastructure files are untouched by the snapshot's changed files, gaps
// are filtered deterministically with no LLM call; otherwise the full
// three-phase verification runs and persists a fresh context.
func (s *Service) Run(ctx context.Context, in RunInput) (*Outcome, error) {
	gaps := in.Rules.AllGaps()
	if len(gaps) == 0 {
		s.logger.Info("no gaps detected, skipping verification")
		return s.passThrough(in.Rules), nil
	}
	if in.Repo == nil || len(in.Repo.Files) == 0 {
		s.logger.Info("no parsed repository, skipping verification")
		return s.passThrough(in.Rules), nil
	}

	if canReuseContext(in.Previous, in.Repo.ChangedFiles) {
		s.logger.Info("infrastructure unchanged, using context-based filtering",
			"infrastructure_files", len(in.Previous.InfrastructureFiles),
			"changed_files", len(in.Repo.ChangedFiles))
		return s.filterWithContext(in.Previous, in.Rules), nil
	}

	return s.fullVerification(ctx, in)
}

// passThrough returns the rule result untouched with empty verdict metadata.
func (s *Service) passThrough(result rules.Result) *Outcome {
	return &Outcome{
		Result:   result,
		Verdicts: map[string]GapVerdictResult{},
	}
}

// canReuseContext reports whether the previous context can filter this run
// without LLM calls: a context exists, the snapshot knows its change delta,
// and none of the context's infrastructure files changed. An empty change
// delta means the delta is unknown, which disables reuse.
func canReuseContext(prev *CodebaseContext, changedFiles []string) bool {
	if prev == nil || len(changedFiles) == 0 || len(prev.InfrastructureFiles) == 0 {
		return false
	}
	return !prev.ChangedSince(changedFiles)
}

// filterWithContext suppresses rule groups the previous context proves are
// covered. Only the global-instrumentation rules are suppressible this way.
func (s *Service) filterWithContext(cc *CodebaseContext, result rules.Result) *Outcome {
	suppressed := make(map[string]bool, 3)
	if cc.HasGlobalHTTPCoverage() {
		suppressed["MET_001"] = true
		s.logger.Info("suppressing MET_001: global HTTP coverage in previous context")
	}
	if cc.HasGlobalDBCoverage() {
		suppressed["MET_002"] = true
		s.logger.Info("suppressing MET_002: global DB coverage in previous context")
	}
	if cc.HasGlobalErrorCoverage() {
		suppressed["MET_004"] = true
		s.logger.Info("suppressing MET_004: global error coverage in previous context")
	}

	filteredLogging := dropRules(result.LoggingGaps, suppressed)
	filteredMetrics := dropRules(result.MetricsGaps, suppressed)

	s.logger.Info("context filter decision",
		"removed", len(result.LoggingGaps)+len(result.MetricsGaps)-len(filteredLogging)-len(filteredMetrics),
		"remaining_logging", len(filteredLogging),
		"remaining_metrics", len(filteredMetrics))

	return &Outcome{
		Result: rules.Result{
			LoggingGaps:  filteredLogging,
			MetricsGaps:  filteredMetrics,
			FactsSummary: result.FactsSummary,
		},
		Verdicts: map[string]GapVerdictResult{},
		Context:  cc,
		FastPath: true,
	}
}

// fullVerification runs the three LLM phases and filters on the verdicts.
func (s *Service) fullVerification(ctx context.Context, in RunInput) (*Outcome, error) {
	ruleIDs := gapRuleIDs(in.Rules)

	candidates, phaseAFailed, err := s.IdentifyCandidateFiles(ctx, in.Repo, ruleIDs, in.Budget)
	if err != nil {
		return nil, err
	}

	var extractions []Extraction
	if !phaseAFailed {
		extractions, err = s.extractAll(ctx, in.Repo, candidates, ruleIDs, in.Budget)
		if err != nil {
			return nil, err
		}
	}

	cc := BuildCodebaseContext(extractions, in.Repo.WorkspaceID, in.Repo.RepoFullName, in.Repo.CommitSHA)
	if s.contexts != nil {
		if err := s.contexts.Save(ctx, cc); err != nil {
			return nil, err
		}
	}
	s.logger.Info("codebase context built",
		"extractions", len(extractions),
		"http_metrics", len(cc.GlobalHTTPMetrics),
		"db_instrumentation", len(cc.GlobalDBInstrumentation),
		"tracing", len(cc.GlobalTracing),
		"error_handling", len(cc.GlobalErrorHandling),
		"infrastructure_files", len(cc.InfrastructureFiles))

	if phaseAFailed {
		// No context could be discovered; verifying gaps against nothing
		// would spend budget to conclude what the default already says.
		s.logger.Warn("candidate identification failed, keeping all gaps as genuine")
		out := s.passThrough(in.Rules)
		out.Context = cc
		return out, nil
	}

	groups, err := s.VerifyGaps(ctx, in.Repo, in.Rules.AllGaps(), cc, in.Budget)
	if err != nil {
		return nil, err
	}

	filtered, verdicts := filterGaps(in.Rules, groups, s.logger)
	return &Outcome{
		Result:   filtered,
		Verdicts: verdicts,
		Context:  cc,
	}, nil
}

// dropRules removes the problems whose rule id is suppressed.
func dropRules(gaps []rules.Problem, suppressed map[string]bool) []rules.Problem {
	kept := make([]rules.Problem, 0, len(gaps))
	for _, g := range gaps {
		if !suppressed[g.RuleID] {
			kept = append(kept, g)
		}
	}
	return kept
}

// gapRuleIDs returns the distinct rule ids present in a result, sorted.
func gapRuleIDs(result rules.Result) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, g := range result.AllGaps() {
		if !seen[g.RuleID] {
			seen[g.RuleID] = true
			ids = append(ids, g.RuleID)
		}
	}
	sort.Strings(ids)
	return ids
}

// filterGaps drops every gap whose verdict dismisses it and builds the
// title-keyed verdict lookup persisted with the review.
func filterGaps(result rules.Result, groups map[string]GroupResult, logger *slog.Logger) (rules.Result, map[string]GapVerdictResult) {
	verdicts := make(map[string]GapVerdictResult)
	remove := make(map[string]bool)

	for ruleID, group := range groups {
		genuine, dismissed := 0, 0
		for _, v := range group.Verdicts {
			verdicts[v.GapTitle] = v
			if v.Verdict == VerdictFalseAlarm || v.Verdict == VerdictCoveredGlobally {
				remove[v.GapTitle] = true
				dismissed++
			} else {
				genuine++
			}
		}
		logger.Info("verification group decision",
			"rule_id", ruleID,
			"genuine", genuine,
			"dismissed", dismissed)
	}

	filteredLogging := dropTitles(result.LoggingGaps, remove)
	filteredMetrics := dropTitles(result.MetricsGaps, remove)

	logger.Info("gap filter decision",
		"removed", len(remove),
		"remaining_logging", len(filteredLogging),
		"remaining_metrics", len(filteredMetrics))

	return rules.Result{
		LoggingGaps:  filteredLogging,
		MetricsGaps:  filteredMetrics,
		FactsSummary: result.FactsSummary,
	}, verdicts
}

// dropTitles removes the problems whose title was dismissed.
func dropTitles(gaps []rules.Problem, remove map[string]bool) []rules.Problem {
	kept := make([]rules.Problem, 0, len(gaps))
	for _, g := range gaps {
		if !remove[g.Title] {
			kept = append(kept, g)
		}
	}
	return kept
}
