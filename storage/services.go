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

// ServiceStore persists the monitored services of each workspace.
type ServiceStore struct {
	bucket jetstream.KeyValue
	logger *slog.Logger
}

// NewServiceStore creates the store and its bucket.
func NewServiceStore(ctx context.Context, nc *natsclient.Client, opts ...Option) (*ServiceStore, error) {
	o := applyOptions(opts)
	bucket, err := getOrCreateBucket(ctx, nc, BucketServices, "Healthwatch monitored services")
	if err != nil {
		return nil, err
	}
	return &ServiceStore{bucket: bucket, logger: o.logger}, nil
}

// Put stores a service keyed by workspace and service ID.
func (s *ServiceStore) Put(ctx context.Context, svc *review.Service) error {
	if err := svc.Validate(); err != nil {
		return fmt.Errorf("invalid service: %w", err)
	}
	data, err := json.Marshal(svc)
	if err != nil {
		return fmt.Errorf("marshal service: %w", err)
	}
	if _, err := s.bucket.Put(ctx, joinKey(svc.WorkspaceID, svc.ID), data); err != nil {
		return fmt.Errorf("store service %s: %w", svc.ID, err)
	}
	return nil
}

// Get retrieves one service.
func (s *ServiceStore) Get(ctx context.Context, workspaceID, serviceID string) (*review.Service, error) {
	entry, err := s.bucket.Get(ctx, joinKey(workspaceID, serviceID))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get service %s: %w", serviceID, err)
	}

	var svc review.Service
	if err := json.Unmarshal(entry.Value(), &svc); err != nil {
		return nil, fmt.Errorf("unmarshal service %s: %w", serviceID, err)
	}
	return &svc, nil
}

// ListByWorkspace returns a workspace's services sorted by name.
func (s *ServiceStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*review.Service, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if isNoKeys(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list service keys: %w", err)
	}

	prefix := sanitizeKey(workspaceID) + "."
	var services []*review.Service
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			continue
		}
		var svc review.Service
		if err := json.Unmarshal(entry.Value(), &svc); err != nil {
			s.logger.Warn("skipping unreadable service", "key", key, "error", err)
			continue
		}
		services = append(services, &svc)
	}

	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}
