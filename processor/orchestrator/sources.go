package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/c360studio/healthwatch/collector"
	"github.com/c360studio/healthwatch/collector/providers"
	"github.com/c360studio/healthwatch/integration"
)

// sourceResolver turns a workspace's active integrations into collector
// sources. Resolution is best effort: a missing, inactive, or undecryptable
// integration is skipped with a warning so collection still runs on
// whatever providers remain.
type sourceResolver struct {
	integrations *integration.Service
	store        integration.Store
	cipher       integration.TokenCipher
	logger       *slog.Logger
}

func newSourceResolver(svc *integration.Service, store integration.Store, cipher integration.TokenCipher, logger *slog.Logger) *sourceResolver {
	return &sourceResolver{
		integrations: svc,
		store:        store,
		cipher:       cipher,
		logger:       logger,
	}
}

// Resolve builds the execution context for one collection pass. Every
// provider currently serves both logs and metrics.
func (r *sourceResolver) Resolve(ctx context.Context, workspaceID string) collector.ExecutionContext {
	var ec collector.ExecutionContext

	if p := r.grafana(ctx, workspaceID); p != nil {
		ec.LogSources = append(ec.LogSources, p)
		ec.MetricSources = append(ec.MetricSources, p)
	}
	if p := r.datadog(ctx, workspaceID); p != nil {
		ec.LogSources = append(ec.LogSources, p)
		ec.MetricSources = append(ec.MetricSources, p)
	}
	if p := r.newRelic(ctx, workspaceID); p != nil {
		ec.LogSources = append(ec.LogSources, p)
		ec.MetricSources = append(ec.MetricSources, p)
	}
	if p := r.cloudWatch(ctx, workspaceID); p != nil {
		ec.LogSources = append(ec.LogSources, p)
		ec.MetricSources = append(ec.MetricSources, p)
	}

	if len(ec.LogSources) == 0 {
		r.logger.Warn("no observability integrations resolved", "workspace_id", workspaceID)
	}
	return ec
}

func (r *sourceResolver) grafana(ctx context.Context, workspaceID string) *providers.Grafana {
	integ, err := r.store.Grafana(ctx, workspaceID)
	if err != nil {
		if !errors.Is(err, integration.ErrNotConfigured) {
			r.logger.Warn("failed to load Grafana integration", "workspace_id", workspaceID, "error", err)
		}
		return nil
	}
	if !integ.Active {
		return nil
	}

	token, err := r.cipher.Decrypt(integ.APIToken)
	if err != nil {
		r.logger.Warn("failed to decrypt Grafana token", "workspace_id", workspaceID, "error", err)
		return nil
	}
	return providers.NewGrafana(integ.URL, token)
}

func (r *sourceResolver) datadog(ctx context.Context, workspaceID string) *providers.Datadog {
	integ, err := r.store.Datadog(ctx, workspaceID)
	if err != nil {
		if !errors.Is(err, integration.ErrNotConfigured) {
			r.logger.Warn("failed to load Datadog integration", "workspace_id", workspaceID, "error", err)
		}
		return nil
	}
	if !integ.Active {
		return nil
	}

	apiKey, err := r.cipher.Decrypt(integ.APIKey)
	if err != nil {
		r.logger.Warn("failed to decrypt Datadog API key", "workspace_id", workspaceID, "error", err)
		return nil
	}
	appKey, err := r.cipher.Decrypt(integ.AppKey)
	if err != nil {
		r.logger.Warn("failed to decrypt Datadog app key", "workspace_id", workspaceID, "error", err)
		return nil
	}
	return providers.NewDatadog(apiKey, appKey, integ.Region)
}

func (r *sourceResolver) newRelic(ctx context.Context, workspaceID string) *providers.NewRelic {
	integ, err := r.store.NewRelic(ctx, workspaceID)
	if err != nil {
		if !errors.Is(err, integration.ErrNotConfigured) {
			r.logger.Warn("failed to load New Relic integration", "workspace_id", workspaceID, "error", err)
		}
		return nil
	}
	if !integ.Active {
		return nil
	}

	accountID, err := strconv.Atoi(integ.AccountID)
	if err != nil {
		r.logger.Warn("invalid New Relic account ID",
			"workspace_id", workspaceID, "account_id", integ.AccountID, "error", err)
		return nil
	}
	apiKey, err := r.cipher.Decrypt(integ.APIKey)
	if err != nil {
		r.logger.Warn("failed to decrypt New Relic API key", "workspace_id", workspaceID, "error", err)
		return nil
	}
	return providers.NewNewRelic(accountID, apiKey)
}

func (r *sourceResolver) cloudWatch(ctx context.Context, workspaceID string) *providers.CloudWatch {
	logs, metrics, err := r.integrations.CloudWatchClients(ctx, workspaceID)
	if err != nil {
		if !errors.Is(err, integration.ErrNotConfigured) {
			r.logger.Warn("failed to build CloudWatch clients", "workspace_id", workspaceID, "error", err)
		}
		return nil
	}
	return providers.NewCloudWatch(logs, metrics)
}
