package integration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider identifies an observability backend a workspace can connect.
type Provider string

const (
	ProviderAWS      Provider = "aws"
	ProviderDatadog  Provider = "datadog"
	ProviderNewRelic Provider = "newrelic"
	ProviderGrafana  Provider = "grafana"
)

// ErrNotConfigured is returned when a workspace has no active integration
// for the requested provider.
var ErrNotConfigured = errors.New("integration not configured")

// ErrCredentialsRefreshFailed is returned when stored credentials have
// expired (or are about to) and re-assuming the customer role failed. The
// integration record is left active so a later attempt can succeed.
var ErrCredentialsRefreshFailed = errors.New("credentials refresh failed")

// DefaultRegion is used when an AWS integration does not specify one.
const DefaultRegion = "us-west-1"

// AWSIntegration connects a workspace to a customer AWS account through an
// assumable IAM role. The access key, secret, session token, and external
// ID fields hold ciphertext; the temporary credentials are re-assumed when
// CredentialsExpiration approaches.
type AWSIntegration struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`

	RoleARN    string `json:"role_arn"`
	ExternalID string `json:"external_id,omitempty"`

	AccessKeyID           string    `json:"access_key_id"`
	SecretAccessKey       string    `json:"secret_access_key"`
	SessionToken          string    `json:"session_token"`
	CredentialsExpiration time.Time `json:"credentials_expiration"`

	Region string `json:"region"`
	Active bool   `json:"is_active"`

	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewAWSIntegration creates an active integration for a workspace. Region
// falls back to DefaultRegion.
func NewAWSIntegration(workspaceID, roleARN, region string) *AWSIntegration {
	if strings.TrimSpace(region) == "" {
		region = DefaultRegion
	}
	now := time.Now().UTC()
	return &AWSIntegration{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		RoleARN:     roleARN,
		Region:      region,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DatadogIntegration holds encrypted Datadog API credentials for a
// workspace. Region selects the Datadog site (us1, eu1, ...).
type DatadogIntegration struct {
	ID             string     `json:"id"`
	WorkspaceID    string     `json:"workspace_id"`
	APIKey         string     `json:"api_key"`
	AppKey         string     `json:"app_key"`
	Region         string     `json:"region"`
	Active         bool       `json:"is_active"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewRelicIntegration holds an encrypted New Relic API key plus the
// account it queries.
type NewRelicIntegration struct {
	ID             string     `json:"id"`
	WorkspaceID    string     `json:"workspace_id"`
	AccountID      string     `json:"account_id"`
	APIKey         string     `json:"api_key"`
	Region         string     `json:"region"`
	Active         bool       `json:"is_active"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// GrafanaIntegration holds an encrypted service-account token for a
// customer Grafana instance.
type GrafanaIntegration struct {
	ID             string     `json:"id"`
	WorkspaceID    string     `json:"workspace_id"`
	URL            string     `json:"grafana_url"`
	APIToken       string     `json:"api_token"`
	Active         bool       `json:"is_active"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Store persists integration records keyed by workspace. Implementations
// return an error satisfying errors.Is(err, ErrNotConfigured) when no
// record exists.
type Store interface {
	AWS(ctx context.Context, workspaceID string) (*AWSIntegration, error)
	SaveAWS(ctx context.Context, integ *AWSIntegration) error

	Datadog(ctx context.Context, workspaceID string) (*DatadogIntegration, error)
	SaveDatadog(ctx context.Context, integ *DatadogIntegration) error

	NewRelic(ctx context.Context, workspaceID string) (*NewRelicIntegration, error)
	SaveNewRelic(ctx context.Context, integ *NewRelicIntegration) error

	Grafana(ctx context.Context, workspaceID string) (*GrafanaIntegration, error)
	SaveGrafana(ctx context.Context, integ *GrafanaIntegration) error
}

// MaskAccessKey redacts the middle of an AWS access key for logs. Keys of
// eight characters or fewer are fully masked.
func MaskAccessKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
