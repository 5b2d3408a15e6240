package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// credentialRefreshMargin triggers re-assumption when the stored
// credentials have this little validity left.
const credentialRefreshMargin = 5 * time.Minute

// Service resolves workspace integrations into usable credentials and SDK
// clients. It owns the decrypt-refresh-persist cycle for AWS credentials
// and the per-workspace client cache the collector draws from.
type Service struct {
	store   Store
	cipher  TokenCipher
	assumer *STSAssumer
	cache   *ClientCache
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service with an empty client cache.
func NewService(store Store, cipher TokenCipher, assumer *STSAssumer, opts ...Option) *Service {
	s := &Service{
		store:   store,
		cipher:  cipher,
		assumer: assumer,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = NewClientCache(s.logger)
	return s
}

// ConnectAWSParams describe a new role-based AWS integration.
type ConnectAWSParams struct {
	WorkspaceID string
	RoleARN     string
	ExternalID  string
	Region      string
}

// ConnectAWS assumes the tenant role once to prove it works, then persists
// the integration with the encrypted temporary credentials. A workspace
// can hold only one active AWS integration.
func (s *Service) ConnectAWS(ctx context.Context, p ConnectAWSParams) (*AWSIntegration, error) {
	existing, err := s.store.AWS(ctx, p.WorkspaceID)
	if err != nil && !errors.Is(err, ErrNotConfigured) {
		return nil, err
	}
	if existing != nil && existing.Active {
		return nil, fmt.Errorf("an active AWS integration already exists for this workspace")
	}

	integ := NewAWSIntegration(p.WorkspaceID, p.RoleARN, p.Region)

	creds, err := s.assumer.AssumeClientRole(ctx, p.RoleARN, p.ExternalID, integ.Region)
	if err != nil {
		return nil, fmt.Errorf("verify role assumption: %w", err)
	}

	if p.ExternalID != "" {
		encrypted, err := s.cipher.Encrypt(p.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("encrypt external ID: %w", err)
		}
		integ.ExternalID = encrypted
	}
	if err := s.sealCredentials(integ, creds); err != nil {
		return nil, err
	}

	verifiedAt := s.now().UTC()
	integ.LastVerifiedAt = &verifiedAt

	if err := s.store.SaveAWS(ctx, integ); err != nil {
		return nil, fmt.Errorf("save integration: %w", err)
	}

	s.logger.Info("connected AWS integration",
		"workspace_id", p.WorkspaceID,
		"role_arn", p.RoleARN,
		"region", integ.Region)
	return integ, nil
}

// DisconnectAWS deactivates the workspace integration and drops its cached
// clients. The record stays for audit.
func (s *Service) DisconnectAWS(ctx context.Context, workspaceID string) error {
	integ, err := s.store.AWS(ctx, workspaceID)
	if err != nil {
		return err
	}

	integ.Active = false
	integ.UpdatedAt = s.now().UTC()
	if err := s.store.SaveAWS(ctx, integ); err != nil {
		return fmt.Errorf("save integration: %w", err)
	}

	s.cache.Clear(workspaceID, "")
	s.logger.Info("disconnected AWS integration", "workspace_id", workspaceID)
	return nil
}

// Credentials returns decrypted temporary credentials for the workspace
// plus the integration's region. When the stored credentials are within
// the refresh margin of expiry the role is re-assumed, the fresh
// credentials are re-encrypted and persisted, and the integration stays
// active even if that fails.
func (s *Service) Credentials(ctx context.Context, workspaceID string) (*TemporaryCredentials, string, error) {
	integ, err := s.store.AWS(ctx, workspaceID)
	if err != nil {
		return nil, "", err
	}
	if !integ.Active {
		return nil, "", fmt.Errorf("%w: AWS integration for workspace %s is inactive", ErrNotConfigured, workspaceID)
	}

	region := integ.Region
	if region == "" {
		region = DefaultRegion
	}

	if integ.CredentialsExpiration.After(s.now().Add(credentialRefreshMargin)) {
		creds, err := s.openCredentials(integ)
		if err != nil {
			return nil, "", err
		}
		return creds, region, nil
	}

	externalID := ""
	if integ.ExternalID != "" {
		externalID, err = s.cipher.Decrypt(integ.ExternalID)
		if err != nil {
			return nil, "", fmt.Errorf("decrypt external ID: %w", err)
		}
	}

	fresh, err := s.assumer.AssumeClientRole(ctx, integ.RoleARN, externalID, region)
	if err != nil {
		s.logger.Error("credentials refresh failed",
			"workspace_id", workspaceID,
			"role_arn", integ.RoleARN,
			"error", err)
		return nil, "", fmt.Errorf("%w: %v", ErrCredentialsRefreshFailed, err)
	}

	if err := s.sealCredentials(integ, fresh); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrCredentialsRefreshFailed, err)
	}
	integ.UpdatedAt = s.now().UTC()
	if err := s.store.SaveAWS(ctx, integ); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrCredentialsRefreshFailed, err)
	}

	s.logger.Info("refreshed AWS credentials",
		"workspace_id", workspaceID,
		"expires_at", fresh.Expiration)
	return fresh, region, nil
}

// CloudWatchClients returns Logs and Metrics clients for the workspace,
// reusing cached clients while their credentials have validity left. The
// clients are built from an explicit config so development endpoint
// overrides never apply to them.
func (s *Service) CloudWatchClients(ctx context.Context, workspaceID string) (*cloudwatchlogs.Client, *cloudwatch.Client, error) {
	cachedLogs, okLogs := s.cache.Get(workspaceID, KindCloudWatchLogs)
	cachedMetrics, okMetrics := s.cache.Get(workspaceID, KindCloudWatchMetrics)
	if okLogs && okMetrics {
		logs, lok := cachedLogs.(*cloudwatchlogs.Client)
		metrics, mok := cachedMetrics.(*cloudwatch.Client)
		if lok && mok {
			return logs, metrics, nil
		}
	}

	creds, region, err := s.Credentials(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}

	cfg := s.awsConfig(creds, region)
	logs := cloudwatchlogs.NewFromConfig(cfg)
	metrics := cloudwatch.NewFromConfig(cfg)

	s.cache.Put(workspaceID, KindCloudWatchLogs, logs, creds.Expiration)
	s.cache.Put(workspaceID, KindCloudWatchMetrics, metrics, creds.Expiration)
	return logs, metrics, nil
}

// VerifyWorkspace runs the STS and CloudWatch probes against the
// workspace's current credentials and records the verification time on
// success.
func (s *Service) VerifyWorkspace(ctx context.Context, workspaceID string) (VerifyResult, error) {
	creds, region, err := s.Credentials(ctx, workspaceID)
	if err != nil {
		return VerifyResult{}, err
	}

	cfg := s.awsConfig(creds, region)
	result := VerifyAccess(ctx, sts.NewFromConfig(cfg), cloudwatchlogs.NewFromConfig(cfg))

	if result.Valid {
		if integ, err := s.store.AWS(ctx, workspaceID); err == nil {
			verifiedAt := s.now().UTC()
			integ.LastVerifiedAt = &verifiedAt
			integ.UpdatedAt = verifiedAt
			if err := s.store.SaveAWS(ctx, integ); err != nil {
				s.logger.Warn("failed to record verification time",
					"workspace_id", workspaceID,
					"error", err)
			}
		}
	}
	return result, nil
}

// ClearClients invalidates cached clients. Empty arguments widen the match
// as in ClientCache.Clear.
func (s *Service) ClearClients(workspaceID string, kind ClientKind) int {
	return s.cache.Clear(workspaceID, kind)
}

func (s *Service) sealCredentials(integ *AWSIntegration, creds *TemporaryCredentials) error {
	accessKey, err := s.cipher.Encrypt(creds.AccessKeyID)
	if err != nil {
		return fmt.Errorf("encrypt access key: %w", err)
	}
	secretKey, err := s.cipher.Encrypt(creds.SecretAccessKey)
	if err != nil {
		return fmt.Errorf("encrypt secret key: %w", err)
	}
	sessionToken, err := s.cipher.Encrypt(creds.SessionToken)
	if err != nil {
		return fmt.Errorf("encrypt session token: %w", err)
	}

	integ.AccessKeyID = accessKey
	integ.SecretAccessKey = secretKey
	integ.SessionToken = sessionToken
	integ.CredentialsExpiration = creds.Expiration
	return nil
}

func (s *Service) openCredentials(integ *AWSIntegration) (*TemporaryCredentials, error) {
	accessKey, err := s.cipher.Decrypt(integ.AccessKeyID)
	if err != nil {
		return nil, fmt.Errorf("decrypt access key: %w", err)
	}
	secretKey, err := s.cipher.Decrypt(integ.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret key: %w", err)
	}
	sessionToken, err := s.cipher.Decrypt(integ.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt session token: %w", err)
	}

	return &TemporaryCredentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		SessionToken:    sessionToken,
		Expiration:      integ.CredentialsExpiration,
	}, nil
}

func (s *Service) awsConfig(creds *TemporaryCredentials, region string) aws.Config {
	return aws.Config{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
	}
}
