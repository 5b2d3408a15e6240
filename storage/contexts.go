package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/healthwatch/verify"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// ContextStore persists LLM-derived codebase contexts keyed by workspace
// and repository. Bucket history keeps prior revisions, so each Save layers
// a new context on top of the old one and LoadMostRecent reads the latest.
// It implements verify.ContextStore.
type ContextStore struct {
	bucket jetstream.KeyValue
	logger *slog.Logger
}

// NewContextStore creates the store and its bucket.
func NewContextStore(ctx context.Context, nc *natsclient.Client, opts ...Option) (*ContextStore, error) {
	o := applyOptions(opts)
	bucket, err := getOrCreateBucket(ctx, nc, BucketContexts, "Healthwatch codebase contexts")
	if err != nil {
		return nil, err
	}
	return &ContextStore{bucket: bucket, logger: o.logger}, nil
}

func contextKey(workspaceID, repoFullName string) string {
	return joinKey(workspaceID, repoFullName)
}

// Save writes a new context revision for the repository.
func (s *ContextStore) Save(ctx context.Context, cc *verify.CodebaseContext) error {
	if cc.ID == "" {
		cc.ID = uuid.NewString()
	}
	if cc.CreatedAt.IsZero() {
		cc.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("marshal codebase context: %w", err)
	}
	if _, err := s.bucket.Put(ctx, contextKey(cc.WorkspaceID, cc.RepoFullName), data); err != nil {
		return fmt.Errorf("store codebase context for %s: %w", cc.RepoFullName, err)
	}

	s.logger.Debug("saved codebase context",
		"workspace_id", cc.WorkspaceID,
		"repo", cc.RepoFullName,
		"commit_sha", cc.CommitSHA)
	return nil
}

// LoadMostRecent returns the latest context for the repository, or
// ErrNotFound when none has been saved.
func (s *ContextStore) LoadMostRecent(ctx context.Context, workspaceID, repoFullName string) (*verify.CodebaseContext, error) {
	entry, err := s.bucket.Get(ctx, contextKey(workspaceID, repoFullName))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get codebase context for %s: %w", repoFullName, err)
	}

	var cc verify.CodebaseContext
	if err := json.Unmarshal(entry.Value(), &cc); err != nil {
		return nil, fmt.Errorf("unmarshal codebase context for %s: %w", repoFullName, err)
	}
	return &cc, nil
}
