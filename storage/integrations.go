package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c360studio/healthwatch/integration"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// IntegrationStore persists per-workspace provider credentials. One record
// per (provider, workspace); credential fields arrive already encrypted.
// It implements integration.Store.
type IntegrationStore struct {
	bucket jetstream.KeyValue
	logger *slog.Logger
}

// NewIntegrationStore creates the store and its bucket.
func NewIntegrationStore(ctx context.Context, nc *natsclient.Client, opts ...Option) (*IntegrationStore, error) {
	o := applyOptions(opts)
	bucket, err := getOrCreateBucket(ctx, nc, BucketIntegrations, "Healthwatch provider integrations")
	if err != nil {
		return nil, err
	}
	return &IntegrationStore{bucket: bucket, logger: o.logger}, nil
}

func integrationKey(provider integration.Provider, workspaceID string) string {
	return joinKey(string(provider), workspaceID)
}

func (s *IntegrationStore) get(ctx context.Context, provider integration.Provider, workspaceID string, out any) error {
	entry, err := s.bucket.Get(ctx, integrationKey(provider, workspaceID))
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s integration for workspace %s: %w", provider, workspaceID, integration.ErrNotConfigured)
		}
		return fmt.Errorf("get %s integration: %w", provider, err)
	}
	if err := json.Unmarshal(entry.Value(), out); err != nil {
		return fmt.Errorf("unmarshal %s integration: %w", provider, err)
	}
	return nil
}

func (s *IntegrationStore) put(ctx context.Context, provider integration.Provider, workspaceID string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal %s integration: %w", provider, err)
	}
	if _, err := s.bucket.Put(ctx, integrationKey(provider, workspaceID), data); err != nil {
		return fmt.Errorf("store %s integration: %w", provider, err)
	}
	return nil
}

// AWS returns the workspace's AWS integration.
func (s *IntegrationStore) AWS(ctx context.Context, workspaceID string) (*integration.AWSIntegration, error) {
	var integ integration.AWSIntegration
	if err := s.get(ctx, integration.ProviderAWS, workspaceID, &integ); err != nil {
		return nil, err
	}
	return &integ, nil
}

// SaveAWS stores the workspace's AWS integration.
func (s *IntegrationStore) SaveAWS(ctx context.Context, integ *integration.AWSIntegration) error {
	return s.put(ctx, integration.ProviderAWS, integ.WorkspaceID, integ)
}

// Datadog returns the workspace's Datadog integration.
func (s *IntegrationStore) Datadog(ctx context.Context, workspaceID string) (*integration.DatadogIntegration, error) {
	var integ integration.DatadogIntegration
	if err := s.get(ctx, integration.ProviderDatadog, workspaceID, &integ); err != nil {
		return nil, err
	}
	return &integ, nil
}

// SaveDatadog stores the workspace's Datadog integration.
func (s *IntegrationStore) SaveDatadog(ctx context.Context, integ *integration.DatadogIntegration) error {
	return s.put(ctx, integration.ProviderDatadog, integ.WorkspaceID, integ)
}

// NewRelic returns the workspace's New Relic integration.
func (s *IntegrationStore) NewRelic(ctx context.Context, workspaceID string) (*integration.NewRelicIntegration, error) {
	var integ integration.NewRelicIntegration
	if err := s.get(ctx, integration.ProviderNewRelic, workspaceID, &integ); err != nil {
		return nil, err
	}
	return &integ, nil
}

// SaveNewRelic stores the workspace's New Relic integration.
func (s *IntegrationStore) SaveNewRelic(ctx context.Context, integ *integration.NewRelicIntegration) error {
	return s.put(ctx, integration.ProviderNewRelic, integ.WorkspaceID, integ)
}

// Grafana returns the workspace's Grafana integration.
func (s *IntegrationStore) Grafana(ctx context.Context, workspaceID string) (*integration.GrafanaIntegration, error) {
	var integ integration.GrafanaIntegration
	if err := s.get(ctx, integration.ProviderGrafana, workspaceID, &integ); err != nil {
		return nil, err
	}
	return &integ, nil
}

// SaveGrafana stores the workspace's Grafana integration.
func (s *IntegrationStore) SaveGrafana(ctx context.Context, integ *integration.GrafanaIntegration) error {
	return s.put(ctx, integration.ProviderGrafana, integ.WorkspaceID, integ)
}
