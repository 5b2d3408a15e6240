package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	aws     map[string]*AWSIntegration
	saveErr error
	saves   int
}

func (f *fakeStore) AWS(_ context.Context, workspaceID string) (*AWSIntegration, error) {
	integ, ok := f.aws[workspaceID]
	if !ok {
		return nil, fmt.Errorf("aws integration for workspace %s: %w", workspaceID, ErrNotConfigured)
	}
	return integ, nil
}

func (f *fakeStore) SaveAWS(_ context.Context, integ *AWSIntegration) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.aws == nil {
		f.aws = make(map[string]*AWSIntegration)
	}
	f.aws[integ.WorkspaceID] = integ
	f.saves++
	return nil
}

func (f *fakeStore) Datadog(context.Context, string) (*DatadogIntegration, error) {
	return nil, ErrNotConfigured
}
func (f *fakeStore) SaveDatadog(context.Context, *DatadogIntegration) error { return nil }
func (f *fakeStore) NewRelic(context.Context, string) (*NewRelicIntegration, error) {
	return nil, ErrNotConfigured
}
func (f *fakeStore) SaveNewRelic(context.Context, *NewRelicIntegration) error { return nil }
func (f *fakeStore) Grafana(context.Context, string) (*GrafanaIntegration, error) {
	return nil, ErrNotConfigured
}
func (f *fakeStore) SaveGrafana(context.Context, *GrafanaIntegration) error { return nil }

// newTestService wires a Service to a production-mode assumer backed by the
// given fake STS so tests never hop through an owner role.
func newTestService(t *testing.T, store *fakeStore, fake *fakeSTS, now time.Time) *Service {
	t.Helper()

	assumer := NewSTSAssumer(STSConfig{Production: true}, WithSTSFactory(
		func(_ context.Context, _ string, _ *TemporaryCredentials) (STSAPI, error) {
			return fake, nil
		}))
	svc := NewService(store, newTestCipher(t), assumer)
	svc.now = func() time.Time { return now }
	return svc
}

func TestCredentialsDecryptsWithoutRefresh(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeSTS{}

	integ := NewAWSIntegration("ws-1", "arn:aws:iam::222222222222:role/tenant", "us-east-2")
	store := &fakeStore{aws: map[string]*AWSIntegration{"ws-1": integ}}
	svc := newTestService(t, store, fake, now)

	require.NoError(t, svc.sealCredentials(integ, tempCreds("LIVEKEY", now.Add(time.Hour))))

	creds, region, err := svc.Credentials(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "LIVEKEY", creds.AccessKeyID)
	assert.Equal(t, "secret-LIVEKEY", creds.SecretAccessKey)
	assert.Equal(t, "token-LIVEKEY", creds.SessionToken)
	assert.Equal(t, "us-east-2", region)

	assert.Empty(t, fake.inputs, "no role assumption with validity left")
}

func TestCredentialsRefreshesNearExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeSTS{creds: []*TemporaryCredentials{
		tempCreds("FRESHKEY", now.Add(time.Hour)),
	}}

	integ := NewAWSIntegration("ws-1", "arn:aws:iam::222222222222:role/tenant", "")
	store := &fakeStore{aws: map[string]*AWSIntegration{"ws-1": integ}}
	svc := newTestService(t, store, fake, now)

	// Exactly at the margin counts as expiring.
	require.NoError(t, svc.sealCredentials(integ, tempCreds("OLDKEY", now.Add(5*time.Minute))))

	creds, region, err := svc.Credentials(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "FRESHKEY", creds.AccessKeyID)
	assert.Equal(t, DefaultRegion, region)

	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "arn:aws:iam::222222222222:role/tenant", aws.ToString(fake.inputs[0].RoleArn))

	// The integration record now carries the re-encrypted credentials.
	assert.Equal(t, 1, store.saves)
	saved := store.aws["ws-1"]
	assert.Equal(t, now.Add(time.Hour), saved.CredentialsExpiration)

	reloaded, err := svc.openCredentials(saved)
	require.NoError(t, err)
	assert.Equal(t, "FRESHKEY", reloaded.AccessKeyID)
	assert.Equal(t, "secret-FRESHKEY", reloaded.SecretAccessKey)
}

func TestCredentialsRefreshFailureKeepsIntegrationActive(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeSTS{errs: []error{errors.New("AccessDenied")}}

	integ := NewAWSIntegration("ws-1", "arn:aws:iam::222222222222:role/tenant", "")
	store := &fakeStore{aws: map[string]*AWSIntegration{"ws-1": integ}}
	svc := newTestService(t, store, fake, now)

	require.NoError(t, svc.sealCredentials(integ, tempCreds("OLDKEY", now.Add(2*time.Minute))))
	sealedKey := integ.AccessKeyID

	_, _, err := svc.Credentials(context.Background(), "ws-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialsRefreshFailed)

	assert.True(t, store.aws["ws-1"].Active, "refresh failure must not deactivate the integration")
	assert.Equal(t, sealedKey, store.aws["ws-1"].AccessKeyID, "stored credentials unchanged")
	assert.Equal(t, 0, store.saves)
}

func TestCredentialsRequiresActiveIntegration(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	integ := NewAWSIntegration("ws-1", "arn:role", "")
	integ.Active = false
	store := &fakeStore{aws: map[string]*AWSIntegration{"ws-1": integ}}
	svc := newTestService(t, store, &fakeSTS{}, now)

	_, _, err := svc.Credentials(context.Background(), "ws-1")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = svc.Credentials(context.Background(), "ws-unknown")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestConnectAWS(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeSTS{creds: []*TemporaryCredentials{
		tempCreds("CONNKEY", now.Add(time.Hour)),
	}}
	store := &fakeStore{}
	svc := newTestService(t, store, fake, now)

	integ, err := svc.ConnectAWS(context.Background(), ConnectAWSParams{
		WorkspaceID: "ws-1",
		RoleARN:     "arn:aws:iam::222222222222:role/tenant",
		ExternalID:  "ext-1",
	})
	require.NoError(t, err)

	assert.True(t, integ.Active)
	assert.Equal(t, DefaultRegion, integ.Region)
	require.NotNil(t, integ.LastVerifiedAt)
	assert.Equal(t, now, *integ.LastVerifiedAt)
	assert.NotEmpty(t, integ.ID)

	// Credentials and external ID are stored as ciphertext.
	assert.NotEqual(t, "CONNKEY", integ.AccessKeyID)
	assert.NotEqual(t, "ext-1", integ.ExternalID)

	opened, err := svc.openCredentials(integ)
	require.NoError(t, err)
	assert.Equal(t, "CONNKEY", opened.AccessKeyID)

	externalID, err := svc.cipher.Decrypt(integ.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", externalID)

	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "ext-1", aws.ToString(fake.inputs[0].ExternalId))

	// A second active integration is rejected.
	_, err = svc.ConnectAWS(context.Background(), ConnectAWSParams{
		WorkspaceID: "ws-1",
		RoleARN:     "arn:aws:iam::333333333333:role/other",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestDisconnectAWSClearsCachedClients(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	integ := NewAWSIntegration("ws-1", "arn:role", "")
	store := &fakeStore{aws: map[string]*AWSIntegration{"ws-1": integ}}
	svc := newTestService(t, store, &fakeSTS{}, now)

	svc.cache.Put("ws-1", KindCloudWatchLogs, "client", now.Add(time.Hour))
	svc.cache.Put("ws-2", KindCloudWatchLogs, "other", now.Add(time.Hour))

	require.NoError(t, svc.DisconnectAWS(context.Background(), "ws-1"))

	assert.False(t, store.aws["ws-1"].Active)
	assert.Equal(t, 1, svc.cache.Len(), "only the workspace's clients are dropped")
}

func TestCloudWatchClientsAreCached(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeSTS{}

	integ := NewAWSIntegration("ws-1", "arn:role", "us-west-2")
	store := &fakeStore{aws: map[string]*AWSIntegration{"ws-1": integ}}
	svc := newTestService(t, store, fake, now)
	require.NoError(t, svc.sealCredentials(integ, tempCreds("LIVEKEY", now.Add(time.Hour))))

	logs1, metrics1, err := svc.CloudWatchClients(context.Background(), "ws-1")
	require.NoError(t, err)
	require.NotNil(t, logs1)
	require.NotNil(t, metrics1)
	assert.Equal(t, 2, svc.cache.Len())

	logs2, metrics2, err := svc.CloudWatchClients(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.Same(t, logs1, logs2)
	assert.Same(t, metrics1, metrics2)
	assert.Empty(t, fake.inputs, "cached clients require no assumption")
}
