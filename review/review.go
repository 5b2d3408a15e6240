// Package review defines the service health review aggregate: the parent
// record for one review window plus the gap, SLI, and error children it
// owns. A review is persisted as a single document, so children carry no
// identifiers of their own.
package review

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/healthwatch/collector"
	"github.com/c360studio/healthwatch/rules"
	"github.com/c360studio/healthwatch/scorer"
)

// Status tracks the review lifecycle. Completed and failed are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Trigger sources for a review.
const (
	TriggeredByAPI       = "api"
	TriggeredByScheduler = "scheduler"
)

// VerificationVerdict is the agent's judgment on a detected gap.
type VerificationVerdict string

const (
	VerdictGenuine         VerificationVerdict = "genuine"
	VerdictFalseAlarm      VerificationVerdict = "false_alarm"
	VerdictCoveredGlobally VerificationVerdict = "covered_globally"
)

// ResolutionStatus tracks a gap across reviews once fingerprint matching
// identifies it as the same structural gap.
type ResolutionStatus string

const (
	ResolutionOpen         ResolutionStatus = "open"
	ResolutionResolved     ResolutionStatus = "resolved"
	ResolutionAcknowledged ResolutionStatus = "acknowledged"
)

// LoggingGap is one detected logging gap with its enrichment and
// verification state.
type LoggingGap struct {
	Description       string         `json:"description"`
	Category          string         `json:"category,omitempty"`
	Severity          rules.Severity `json:"severity"`
	AffectedFiles     []string       `json:"affected_files,omitempty"`
	AffectedFunctions []string       `json:"affected_functions,omitempty"`

	SuggestedLogStatement string `json:"suggested_log_statement,omitempty"`
	Rationale             string `json:"rationale,omitempty"`

	Fingerprint          string              `json:"gap_fingerprint,omitempty"`
	Verdict              VerificationVerdict `json:"verification_verdict,omitempty"`
	VerificationEvidence string              `json:"verification_evidence,omitempty"`
	Resolution           ResolutionStatus    `json:"resolution_status,omitempty"`
	ResolvedInReviewID   string              `json:"resolved_in_review_id,omitempty"`

	Evidence []rules.Evidence `json:"evidence,omitempty"`
}

// MetricsGap is one detected metrics gap with its enrichment and
// verification state.
type MetricsGap struct {
	Description       string         `json:"description"`
	Category          string         `json:"category,omitempty"`
	MetricType        string         `json:"metric_type,omitempty"`
	Severity          rules.Severity `json:"severity"`
	AffectedFiles     []string       `json:"affected_files,omitempty"`
	AffectedFunctions []string       `json:"affected_functions,omitempty"`

	SuggestedMetricNames []string `json:"suggested_metric_names,omitempty"`
	ImplementationGuide  string   `json:"implementation_guide,omitempty"`
	ExampleCode          string   `json:"example_code,omitempty"`
	Rationale            string   `json:"rationale,omitempty"`

	Fingerprint          string              `json:"gap_fingerprint,omitempty"`
	Verdict              VerificationVerdict `json:"verification_verdict,omitempty"`
	VerificationEvidence string              `json:"verification_evidence,omitempty"`
	Resolution           ResolutionStatus    `json:"resolution_status,omitempty"`
	ResolvedInReviewID   string              `json:"resolved_in_review_id,omitempty"`

	Evidence []rules.Evidence `json:"evidence,omitempty"`
}

// ServiceReview is the parent aggregate for one health review.
type ServiceReview struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	ServiceID   string `json:"service_id"`
	ServiceName string `json:"service_name,omitempty"`
	Status      Status `json:"status"`
	TriggeredBy string `json:"triggered_by,omitempty"`

	WeekStart time.Time `json:"review_week_start"`
	WeekEnd   time.Time `json:"review_week_end"`

	OverallHealthScore *int   `json:"overall_health_score,omitempty"`
	Summary            string `json:"summary,omitempty"`
	Recommendations    string `json:"recommendations,omitempty"`

	AnalyzedCommitSHA string `json:"analyzed_commit_sha,omitempty"`
	CodebaseChanged   *bool  `json:"codebase_changed,omitempty"`

	ErrorCountAnalyzed  *int `json:"error_count_analyzed,omitempty"`
	LogVolumeAnalyzed   *int `json:"log_volume_analyzed,omitempty"`
	MetricCountAnalyzed *int `json:"metric_count_analyzed,omitempty"`

	GeneratedAt               *time.Time `json:"generated_at,omitempty"`
	GenerationDurationSeconds *int       `json:"generation_duration_seconds,omitempty"`
	ErrorMessage              string     `json:"error_message,omitempty"`

	LoggingGaps []LoggingGap          `json:"logging_gaps,omitempty"`
	MetricsGaps []MetricsGap          `json:"metrics_gaps,omitempty"`
	SLIs        []scorer.SLIData      `json:"slis,omitempty"`
	Errors      []collector.ErrorData `json:"errors,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a pending review for a service and window.
func New(workspaceID, serviceID string, weekStart, weekEnd time.Time) *ServiceReview {
	now := time.Now().UTC()
	return &ServiceReview{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		ServiceID:   serviceID,
		Status:      StatusPending,
		WeekStart:   weekStart,
		WeekEnd:     weekEnd,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Transition moves the review to a new status. Terminal statuses never
// transition back.
func (r *ServiceReview) Transition(to Status) error {
	if r.Status.Terminal() {
		return fmt.Errorf("review %s is %s: cannot transition to %s", r.ID, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete marks the review completed, recording the score and timing.
func (r *ServiceReview) Complete(overallScore int, duration time.Duration) error {
	if err := r.Transition(StatusCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	seconds := int(duration.Seconds())
	r.OverallHealthScore = &overallScore
	r.GeneratedAt = &now
	r.GenerationDurationSeconds = &seconds
	return nil
}

// Fail marks the review failed with an operator-facing message.
func (r *ServiceReview) Fail(message string, duration time.Duration) error {
	if err := r.Transition(StatusFailed); err != nil {
		return err
	}
	now := time.Now().UTC()
	seconds := int(duration.Seconds())
	r.ErrorMessage = message
	r.GeneratedAt = &now
	r.GenerationDurationSeconds = &seconds
	return nil
}

// PreviousSLIScores maps SLI name to score for trend comparison in the
// next review.
func (r *ServiceReview) PreviousSLIScores() map[string]int {
	if len(r.SLIs) == 0 {
		return nil
	}
	scores := make(map[string]int, len(r.SLIs))
	for _, sli := range r.SLIs {
		scores[sli.Name] = sli.Score
	}
	return scores
}

// Request is the queue message that asks the orchestrator to generate a
// review. The review row must already exist in pending status.
type Request struct {
	ReviewID    string `json:"review_id"`
	WorkspaceID string `json:"workspace_id"`
	ServiceID   string `json:"service_id"`
}

// Validate checks that all identifiers are present.
func (r Request) Validate() error {
	if r.ReviewID == "" {
		return fmt.Errorf("review_id is required")
	}
	if r.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if r.ServiceID == "" {
		return fmt.Errorf("service_id is required")
	}
	return nil
}

// Result reports the outcome of one generation run.
type Result struct {
	Success                   bool   `json:"success"`
	ReviewID                  string `json:"review_id"`
	ErrorMessage              string `json:"error_message,omitempty"`
	GenerationDurationSeconds int    `json:"generation_duration_seconds,omitempty"`
}
