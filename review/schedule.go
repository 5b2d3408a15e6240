package review

import "time"

// Schedule tracks when the next automated review for a service is due and
// how the last run went.
type Schedule struct {
	ID          string `json:"id"`
	ServiceID   string `json:"service_id"`
	WorkspaceID string `json:"workspace_id"`
	Enabled     bool   `json:"enabled"`
	Frequency   string `json:"frequency"`

	// GenerationDayOfWeek uses 0=Monday through 6=Sunday.
	GenerationDayOfWeek int    `json:"generation_day_of_week"`
	GenerationHourUTC   int    `json:"generation_hour_utc"`
	Timezone            string `json:"timezone"`

	NextScheduledAt       *time.Time `json:"next_scheduled_at,omitempty"`
	LastReviewID          string     `json:"last_review_id,omitempty"`
	LastReviewGeneratedAt *time.Time `json:"last_review_generated_at,omitempty"`
	LastReviewStatus      string     `json:"last_review_status,omitempty"`
	ConsecutiveFailures   int        `json:"consecutive_failures"`
	LastError             string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NextScheduledAt computes the next run time for a (day-of-week, hour)
// schedule. dayOfWeek uses 0=Monday. The result is always strictly in the
// future; a target day equal to today rolls over to next week.
func NextScheduledAt(dayOfWeek, hourUTC int, now time.Time) time.Time {
	now = now.UTC()

	// Go weekdays start at Sunday; shift so Monday is 0.
	today := (int(now.Weekday()) + 6) % 7

	daysAhead := dayOfWeek - today
	if daysAhead <= 0 {
		daysAhead += 7
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC).
		AddDate(0, 0, daysAhead)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// RecordTrigger updates the schedule after a review was queued (or failed
// to queue). Success resets the failure streak; failure extends it.
func (s *Schedule) RecordTrigger(success bool, reviewID, errMsg string, now time.Time) {
	now = now.UTC()
	next := NextScheduledAt(s.GenerationDayOfWeek, s.GenerationHourUTC, now)
	s.NextScheduledAt = &next
	s.UpdatedAt = now

	if success {
		s.LastReviewID = reviewID
		s.LastReviewGeneratedAt = &now
		s.LastReviewStatus = string(StatusPending)
		s.ConsecutiveFailures = 0
		s.LastError = ""
		return
	}
	s.ConsecutiveFailures++
	s.LastError = errMsg
}

// RecordOutcome updates the schedule once its review reaches a terminal
// status.
func (s *Schedule) RecordOutcome(reviewID string, status Status, errMsg string, now time.Time) {
	now = now.UTC()
	s.LastReviewID = reviewID
	s.LastReviewStatus = string(status)
	s.UpdatedAt = now

	if status == StatusCompleted {
		s.LastReviewGeneratedAt = &now
		s.ConsecutiveFailures = 0
		s.LastError = ""
		return
	}
	s.ConsecutiveFailures++
	s.LastError = errMsg
}
