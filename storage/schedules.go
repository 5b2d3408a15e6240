package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/healthwatch/review"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// ScheduleStore persists one review schedule per service.
type ScheduleStore struct {
	bucket jetstream.KeyValue
	logger *slog.Logger
}

// NewScheduleStore creates the store and its bucket.
func NewScheduleStore(ctx context.Context, nc *natsclient.Client, opts ...Option) (*ScheduleStore, error) {
	o := applyOptions(opts)
	bucket, err := getOrCreateBucket(ctx, nc, BucketSchedules, "Healthwatch review schedules")
	if err != nil {
		return nil, err
	}
	return &ScheduleStore{bucket: bucket, logger: o.logger}, nil
}

// Put stores a schedule keyed by its service.
func (s *ScheduleStore) Put(ctx context.Context, sched *review.Schedule) error {
	data, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	if _, err := s.bucket.Put(ctx, sanitizeKey(sched.ServiceID), data); err != nil {
		return fmt.Errorf("store schedule for service %s: %w", sched.ServiceID, err)
	}
	return nil
}

// Get retrieves the schedule for a service.
func (s *ScheduleStore) Get(ctx context.Context, serviceID string) (*review.Schedule, error) {
	entry, err := s.bucket.Get(ctx, sanitizeKey(serviceID))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get schedule for service %s: %w", serviceID, err)
	}

	var sched review.Schedule
	if err := json.Unmarshal(entry.Value(), &sched); err != nil {
		return nil, fmt.Errorf("unmarshal schedule for service %s: %w", serviceID, err)
	}
	return &sched, nil
}

// List returns every schedule.
func (s *ScheduleStore) List(ctx context.Context) ([]*review.Schedule, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if isNoKeys(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list schedule keys: %w", err)
	}

	schedules := make([]*review.Schedule, 0, len(keys))
	for _, key := range keys {
		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			continue
		}
		var sched review.Schedule
		if err := json.Unmarshal(entry.Value(), &sched); err != nil {
			s.logger.Warn("skipping unreadable schedule", "key", key, "error", err)
			continue
		}
		schedules = append(schedules, &sched)
	}
	return schedules, nil
}

// Due returns enabled schedules whose next run is at or before now.
func (s *ScheduleStore) Due(ctx context.Context, now time.Time) ([]*review.Schedule, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	due := all[:0]
	for _, sched := range all {
		if isDue(sched, now) {
			due = append(due, sched)
		}
	}
	return due, nil
}

func isDue(sched *review.Schedule, now time.Time) bool {
	return sched.Enabled &&
		sched.NextScheduledAt != nil &&
		!sched.NextScheduledAt.After(now)
}
