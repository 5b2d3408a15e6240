package integration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	// clientRoleDuration is the TTL requested for tenant client roles.
	clientRoleDuration = time.Hour

	// ownerReuseMargin is subtracted from the owner credentials TTL when
	// deciding whether the cached owner hop is still usable.
	ownerReuseMargin = 5 * time.Minute

	defaultOwnerSessionName  = "healthwatch-owner-session"
	defaultClientSessionName = "healthwatch-client-session"
	defaultOwnerRoleDuration = time.Hour
)

// TemporaryCredentials are decrypted STS credentials ready to build SDK
// clients with.
type TemporaryCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// STSAPI is the slice of the STS client role assumption depends on.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// STSFactory builds an STS client for a region. Nil creds binds the client
// to the host's default credential chain; non-nil creds bind it to those
// temporary credentials (the owner hop in development).
type STSFactory func(ctx context.Context, region string, creds *TemporaryCredentials) (STSAPI, error)

// STSConfig selects the assumption mode and names the roles involved.
type STSConfig struct {
	// Production switches to one-stage assumption: the host's task role
	// assumes the tenant role directly. Outside production the host first
	// assumes OwnerRoleARN and the owner credentials front the tenant hop.
	Production bool

	OwnerRoleARN        string
	OwnerRoleExternalID string
	OwnerSessionName    string
	OwnerRoleDuration   time.Duration

	ClientSessionName string
}

// STSAssumer performs the role assumption that turns an AWSIntegration
// into temporary credentials. Owner credentials are cached for their TTL
// minus a safety margin; tenant credentials are never cached here (the
// encrypted integration record is their store).
type STSAssumer struct {
	cfg     STSConfig
	factory STSFactory
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	ownerCreds *TemporaryCredentials
}

// STSOption configures an STSAssumer.
type STSOption func(*STSAssumer)

// WithSTSLogger sets the logger.
func WithSTSLogger(logger *slog.Logger) STSOption {
	return func(a *STSAssumer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithSTSFactory overrides how STS clients are built.
func WithSTSFactory(factory STSFactory) STSOption {
	return func(a *STSAssumer) {
		if factory != nil {
			a.factory = factory
		}
	}
}

// NewSTSAssumer creates an assumer. Session names and the owner role
// duration fall back to defaults when unset.
func NewSTSAssumer(cfg STSConfig, opts ...STSOption) *STSAssumer {
	if cfg.OwnerSessionName == "" {
		cfg.OwnerSessionName = defaultOwnerSessionName
	}
	if cfg.ClientSessionName == "" {
		cfg.ClientSessionName = defaultClientSessionName
	}
	if cfg.OwnerRoleDuration <= 0 {
		cfg.OwnerRoleDuration = defaultOwnerRoleDuration
	}

	a := &STSAssumer{
		cfg:     cfg,
		factory: defaultSTSFactory,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AssumeClientRole assumes the tenant's role and returns its temporary
// credentials. The whole exchange runs with the development endpoint
// override removed so it always reaches real AWS.
func (a *STSAssumer) AssumeClientRole(ctx context.Context, roleARN, externalID, region string) (*TemporaryCredentials, error) {
	if region == "" {
		region = DefaultRegion
	}

	var creds *TemporaryCredentials
	err := WithRealAWS(func() error {
		client, err := a.clientRoleSTS(ctx, region)
		if err != nil {
			return err
		}

		input := &sts.AssumeRoleInput{
			RoleArn:         aws.String(roleARN),
			RoleSessionName: aws.String(a.cfg.ClientSessionName),
			DurationSeconds: aws.Int32(int32(clientRoleDuration.Seconds())),
		}
		if externalID != "" {
			input.ExternalId = aws.String(externalID)
		}

		out, err := client.AssumeRole(ctx, input)
		if err != nil {
			return fmt.Errorf("assume client role %s: %w", roleARN, err)
		}

		creds, err = credentialsFromOutput(out)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("assumed client role",
		"role_arn", roleARN,
		"region", region,
		"expires_at", creds.Expiration)
	return creds, nil
}

// clientRoleSTS returns the STS client that performs the tenant hop: the
// host chain in production, the cached owner credentials otherwise.
func (a *STSAssumer) clientRoleSTS(ctx context.Context, region string) (STSAPI, error) {
	if a.cfg.Production {
		return a.factory(ctx, region, nil)
	}

	owner, err := a.ownerCredentials(ctx, region)
	if err != nil {
		return nil, err
	}
	return a.factory(ctx, region, owner)
}

func (a *STSAssumer) ownerCredentials(ctx context.Context, region string) (*TemporaryCredentials, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ownerCreds != nil && a.ownerCreds.Expiration.After(a.now().Add(ownerReuseMargin)) {
		return a.ownerCreds, nil
	}

	if a.cfg.OwnerRoleARN == "" {
		return nil, fmt.Errorf("owner role ARN not configured")
	}

	host, err := a.factory(ctx, region, nil)
	if err != nil {
		return nil, err
	}

	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(a.cfg.OwnerRoleARN),
		RoleSessionName: aws.String(a.cfg.OwnerSessionName),
		DurationSeconds: aws.Int32(int32(a.cfg.OwnerRoleDuration.Seconds())),
	}
	if a.cfg.OwnerRoleExternalID != "" {
		input.ExternalId = aws.String(a.cfg.OwnerRoleExternalID)
	}

	out, err := host.AssumeRole(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("assume owner role: %w", err)
	}

	creds, err := credentialsFromOutput(out)
	if err != nil {
		return nil, err
	}

	a.ownerCreds = creds
	a.logger.Info("assumed owner role", "expires_at", creds.Expiration)
	return creds, nil
}

func credentialsFromOutput(out *sts.AssumeRoleOutput) (*TemporaryCredentials, error) {
	if out == nil || out.Credentials == nil {
		return nil, fmt.Errorf("assume role returned no credentials")
	}
	c := out.Credentials
	return &TemporaryCredentials{
		AccessKeyID:     aws.ToString(c.AccessKeyId),
		SecretAccessKey: aws.ToString(c.SecretAccessKey),
		SessionToken:    aws.ToString(c.SessionToken),
		Expiration:      aws.ToTime(c.Expiration),
	}, nil
}

func defaultSTSFactory(ctx context.Context, region string, creds *TemporaryCredentials) (STSAPI, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if creds != nil {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return sts.NewFromConfig(cfg), nil
}
