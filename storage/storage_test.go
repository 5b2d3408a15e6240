package storage

import (
	"testing"
	"time"

	"github.com/c360studio/healthwatch/integration"
	"github.com/c360studio/healthwatch/review"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain uuid", input: "a1b2c3d4-e5f6", want: "a1b2c3d4-e5f6"},
		{name: "repo full name", input: "acme/payments-api", want: "acme_payments-api"},
		{name: "dots become underscores", input: "svc.prod.eu", want: "svc_prod_eu"},
		{name: "spaces and unicode", input: "my répo 1", want: "my_r_po_1"},
		{name: "empty", input: "", want: "_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeKey(tt.input))
		})
	}
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "ws-1.acme_payments", joinKey("ws-1", "acme/payments"))
	assert.Equal(t, "aws.ws-1", joinKey(string(integration.ProviderAWS), "ws-1"))
}

func TestIsDue(t *testing.T) {
	now := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		sched *review.Schedule
		want  bool
	}{
		{
			name:  "enabled and past due",
			sched: &review.Schedule{Enabled: true, NextScheduledAt: &past},
			want:  true,
		},
		{
			name:  "exactly now",
			sched: &review.Schedule{Enabled: true, NextScheduledAt: &now},
			want:  true,
		},
		{
			name:  "future",
			sched: &review.Schedule{Enabled: true, NextScheduledAt: &future},
			want:  false,
		},
		{
			name:  "disabled",
			sched: &review.Schedule{Enabled: false, NextScheduledAt: &past},
			want:  false,
		},
		{
			name:  "never scheduled",
			sched: &review.Schedule{Enabled: true},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isDue(tt.sched, now))
		})
	}
}

func TestSortByWeekDesc(t *testing.T) {
	week := func(day int) time.Time {
		return time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC)
	}

	reviews := []*review.ServiceReview{
		{ID: "old", WeekStart: week(3)},
		{ID: "new", WeekStart: week(17)},
		{ID: "mid", WeekStart: week(10)},
	}

	sortByWeekDesc(reviews)

	assert.Equal(t, "new", reviews[0].ID)
	assert.Equal(t, "mid", reviews[1].ID)
	assert.Equal(t, "old", reviews[2].ID)
}
