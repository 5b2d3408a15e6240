// Package storage persists healthwatch entities in NATS JetStream KV
// buckets: monitored services, review aggregates, schedules, codebase
// contexts, integration records, parsed repository snapshots, and
// security events.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// Bucket names for each entity kind.
const (
	BucketServices       = "HEALTHWATCH_SERVICES"
	BucketReviews        = "HEALTHWATCH_REVIEWS"
	BucketSchedules      = "HEALTHWATCH_SCHEDULES"
	BucketContexts       = "HEALTHWATCH_CODEBASE_CONTEXTS"
	BucketIntegrations   = "HEALTHWATCH_INTEGRATIONS"
	BucketRepositories   = "HEALTHWATCH_REPOSITORIES"
	BucketSecurityEvents = "HEALTHWATCH_SECURITY_EVENTS"
)

// bucketHistory keeps recent revisions of each key so the previous value
// of a context or review is recoverable.
const bucketHistory = 5

// Stores bundles every healthwatch store over one NATS connection.
type Stores struct {
	Services     *ServiceStore
	Reviews      *ReviewStore
	Schedules    *ScheduleStore
	Contexts     *ContextStore
	Integrations *IntegrationStore
	Repositories *RepositoryStore
	Security     *SecurityEventStore
}

// Option configures store construction.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger shared by the stores.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// New creates all stores, creating their KV buckets if needed.
func New(ctx context.Context, nc *natsclient.Client, opts ...Option) (*Stores, error) {
	services, err := NewServiceStore(ctx, nc, opts...)
	if err != nil {
		return nil, err
	}
	reviews, err := NewReviewStore(ctx, nc, opts...)
	if err != nil {
		return nil, err
	}
	schedules, err := NewScheduleStore(ctx, nc, opts...)
	if err != nil {
		return nil, err
	}
	contexts, err := NewContextStore(ctx, nc, opts...)
	if err != nil {
		return nil, err
	}
	integrations, err := NewIntegrationStore(ctx, nc, opts...)
	if err != nil {
		return nil, err
	}
	repositories, err := NewRepositoryStore(ctx, nc, opts...)
	if err != nil {
		return nil, err
	}
	security, err := NewSecurityEventStore(ctx, nc, opts...)
	if err != nil {
		return nil, err
	}

	return &Stores{
		Services:     services,
		Reviews:      reviews,
		Schedules:    schedules,
		Contexts:     contexts,
		Integrations: integrations,
		Repositories: repositories,
		Security:     security,
	}, nil
}

func getOrCreateBucket(ctx context.Context, nc *natsclient.Client, name, description string) (jetstream.KeyValue, error) {
	if nc == nil {
		return nil, fmt.Errorf("NATS client required")
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get jetstream: %w", err)
	}

	// CreateOrUpdateKeyValue is idempotent and handles race conditions
	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: description,
		History:     bucketHistory,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update kv bucket %s: %w", name, err)
	}
	return bucket, nil
}

// keyCharRe matches everything a KV key segment may not contain. Dots stay
// reserved as the segment separator.
var keyCharRe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// sanitizeKey maps an arbitrary identifier (repo full names contain
// slashes) onto a single KV key segment.
func sanitizeKey(part string) string {
	part = keyCharRe.ReplaceAllString(part, "_")
	if part == "" {
		return "_"
	}
	return part
}

func joinKey(parts ...string) string {
	sanitized := make([]string, len(parts))
	for i, p := range parts {
		sanitized[i] = sanitizeKey(p)
	}
	return strings.Join(sanitized, ".")
}

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound)
}

func isNoKeys(err error) bool {
	return errors.Is(err, jetstream.ErrNoKeysFound)
}
