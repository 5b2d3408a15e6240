package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c360studio/healthwatch/facts"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// RepositoryStore persists the latest parsed repository snapshot per
// service. Snapshots can run large (full file contents plus facts); older
// revisions age out with bucket history.
type RepositoryStore struct {
	bucket jetstream.KeyValue
	logger *slog.Logger
}

// NewRepositoryStore creates the store and its bucket.
func NewRepositoryStore(ctx context.Context, nc *natsclient.Client, opts ...Option) (*RepositoryStore, error) {
	o := applyOptions(opts)
	bucket, err := getOrCreateBucket(ctx, nc, BucketRepositories, "Healthwatch parsed repository snapshots")
	if err != nil {
		return nil, err
	}
	return &RepositoryStore{bucket: bucket, logger: o.logger}, nil
}

func repositoryKey(workspaceID, serviceID string) string {
	return joinKey(workspaceID, serviceID)
}

// SaveSnapshot stores the parsed snapshot serving the given service.
func (s *RepositoryStore) SaveSnapshot(ctx context.Context, serviceID string, repo *facts.ParsedRepository) error {
	data, err := json.Marshal(repo)
	if err != nil {
		return fmt.Errorf("marshal repository snapshot: %w", err)
	}
	if _, err := s.bucket.Put(ctx, repositoryKey(repo.WorkspaceID, serviceID), data); err != nil {
		return fmt.Errorf("store repository snapshot for service %s: %w", serviceID, err)
	}

	s.logger.Debug("saved repository snapshot",
		"workspace_id", repo.WorkspaceID,
		"service_id", serviceID,
		"repo", repo.RepoFullName,
		"files", len(repo.Files))
	return nil
}

// Snapshot returns the current parsed snapshot for a service, or
// ErrNotFound when the service has never been parsed.
func (s *RepositoryStore) Snapshot(ctx context.Context, workspaceID, serviceID string) (*facts.ParsedRepository, error) {
	entry, err := s.bucket.Get(ctx, repositoryKey(workspaceID, serviceID))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get repository snapshot for service %s: %w", serviceID, err)
	}

	var repo facts.ParsedRepository
	if err := json.Unmarshal(entry.Value(), &repo); err != nil {
		return nil, fmt.Errorf("unmarshal repository snapshot for service %s: %w", serviceID, err)
	}
	return &repo, nil
}
