package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/c360studio/healthwatch/guard"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// SecurityEventStore records guard decisions for audit. Events are
// append-only. It implements guard.EventStore.
type SecurityEventStore struct {
	bucket jetstream.KeyValue
	logger *slog.Logger
}

// NewSecurityEventStore creates the store and its bucket.
func NewSecurityEventStore(ctx context.Context, nc *natsclient.Client, opts ...Option) (*SecurityEventStore, error) {
	o := applyOptions(opts)
	bucket, err := getOrCreateBucket(ctx, nc, BucketSecurityEvents, "Healthwatch security events")
	if err != nil {
		return nil, err
	}
	return &SecurityEventStore{bucket: bucket, logger: o.logger}, nil
}

// Record appends a security event.
func (s *SecurityEventStore) Record(ctx context.Context, event *guard.SecurityEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal security event: %w", err)
	}
	if _, err := s.bucket.Create(ctx, joinKey(event.WorkspaceID, event.ID), data); err != nil {
		return fmt.Errorf("store security event %s: %w", event.ID, err)
	}
	return nil
}

// ListByWorkspace returns a workspace's security events, newest first.
func (s *SecurityEventStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*guard.SecurityEvent, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if isNoKeys(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list security event keys: %w", err)
	}

	prefix := sanitizeKey(workspaceID) + "."
	var events []*guard.SecurityEvent
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			continue
		}
		var event guard.SecurityEvent
		if err := json.Unmarshal(entry.Value(), &event); err != nil {
			s.logger.Warn("skipping unreadable security event", "key", key, "error", err)
			continue
		}
		events = append(events, &event)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}
