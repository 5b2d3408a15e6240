package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/c360studio/healthwatch/review"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// ReviewStore persists review aggregates. A review and its gaps, SLIs, and
// errors live in one document, so every Put is an atomic commit of the
// whole aggregate.
type ReviewStore struct {
	bucket jetstream.KeyValue
	logger *slog.Logger
}

// NewReviewStore creates the store and its bucket.
func NewReviewStore(ctx context.Context, nc *natsclient.Client, opts ...Option) (*ReviewStore, error) {
	o := applyOptions(opts)
	bucket, err := getOrCreateBucket(ctx, nc, BucketReviews, "Healthwatch review aggregates")
	if err != nil {
		return nil, err
	}
	return &ReviewStore{bucket: bucket, logger: o.logger}, nil
}

func reviewKey(workspaceID, reviewID string) string {
	return joinKey(workspaceID, reviewID)
}

// Put writes the full aggregate in a single KV operation.
func (s *ReviewStore) Put(ctx context.Context, r *review.ServiceReview) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal review: %w", err)
	}
	if _, err := s.bucket.Put(ctx, reviewKey(r.WorkspaceID, r.ID), data); err != nil {
		return fmt.Errorf("store review %s: %w", r.ID, err)
	}
	return nil
}

// Get retrieves one review.
func (s *ReviewStore) Get(ctx context.Context, workspaceID, reviewID string) (*review.ServiceReview, error) {
	entry, err := s.bucket.Get(ctx, reviewKey(workspaceID, reviewID))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get review %s: %w", reviewID, err)
	}

	var r review.ServiceReview
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return nil, fmt.Errorf("unmarshal review %s: %w", reviewID, err)
	}
	return &r, nil
}

// ListByWorkspace returns every review in a workspace, newest week first.
func (s *ReviewStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*review.ServiceReview, error) {
	reviews, err := s.scan(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	sortByWeekDesc(reviews)
	return reviews, nil
}

// ListByService returns a service's reviews, newest week first.
func (s *ReviewStore) ListByService(ctx context.Context, workspaceID, serviceID string) ([]*review.ServiceReview, error) {
	all, err := s.scan(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	reviews := all[:0]
	for _, r := range all {
		if r.ServiceID == serviceID {
			reviews = append(reviews, r)
		}
	}
	sortByWeekDesc(reviews)
	return reviews, nil
}

// LatestCompleted returns the most recent completed review for a service,
// or ErrNotFound. It anchors cross-review gap resolution and SLI trends.
func (s *ReviewStore) LatestCompleted(ctx context.Context, workspaceID, serviceID string) (*review.ServiceReview, error) {
	reviews, err := s.ListByService(ctx, workspaceID, serviceID)
	if err != nil {
		return nil, err
	}
	for _, r := range reviews {
		if r.Status == review.StatusCompleted {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// HasActive reports whether a pending or generating review exists for the
// service. The scheduler uses it to avoid stacking reviews.
func (s *ReviewStore) HasActive(ctx context.Context, workspaceID, serviceID string) (bool, error) {
	reviews, err := s.ListByService(ctx, workspaceID, serviceID)
	if err != nil {
		return false, err
	}
	for _, r := range reviews {
		if !r.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *ReviewStore) scan(ctx context.Context, workspaceID string) ([]*review.ServiceReview, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if isNoKeys(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list review keys: %w", err)
	}

	prefix := sanitizeKey(workspaceID) + "."
	var reviews []*review.ServiceReview
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			continue
		}
		var r review.ServiceReview
		if err := json.Unmarshal(entry.Value(), &r); err != nil {
			s.logger.Warn("skipping unreadable review", "key", key, "error", err)
			continue
		}
		reviews = append(reviews, &r)
	}
	return reviews, nil
}

func sortByWeekDesc(reviews []*review.ServiceReview) {
	sort.Slice(reviews, func(i, j int) bool {
		if !reviews[i].WeekStart.Equal(reviews[j].WeekStart) {
			return reviews[i].WeekStart.After(reviews[j].WeekStart)
		}
		return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
	})
}
