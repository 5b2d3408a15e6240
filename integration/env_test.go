package integration

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRealAWSRemovesAndRestoresOverride(t *testing.T) {
	t.Setenv(EndpointOverrideVar, "http://localstack:4566")

	var inside string
	var insideSet bool
	err := WithRealAWS(func() error {
		inside, insideSet = os.LookupEnv(EndpointOverrideVar)
		return nil
	})
	require.NoError(t, err)

	assert.False(t, insideSet, "override should be absent inside the scope")
	assert.Empty(t, inside)
	assert.Equal(t, "http://localstack:4566", os.Getenv(EndpointOverrideVar))
}

func TestWithRealAWSPropagatesError(t *testing.T) {
	t.Setenv(EndpointOverrideVar, "http://localstack:4566")

	wantErr := errors.New("assume failed")
	err := WithRealAWS(func() error { return wantErr })

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, "http://localstack:4566", os.Getenv(EndpointOverrideVar))
}

func TestWithRealAWSRestoresOnPanic(t *testing.T) {
	t.Setenv(EndpointOverrideVar, "http://localstack:4566")

	func() {
		defer func() {
			require.NotNil(t, recover())
		}()
		_ = WithRealAWS(func() error {
			panic("boom")
		})
	}()

	assert.Equal(t, "http://localstack:4566", os.Getenv(EndpointOverrideVar))
}

func TestWithRealAWSNoopWhenUnset(t *testing.T) {
	t.Setenv(EndpointOverrideVar, "placeholder") // register cleanup
	os.Unsetenv(EndpointOverrideVar)

	err := WithRealAWS(func() error {
		_, set := os.LookupEnv(EndpointOverrideVar)
		assert.False(t, set)
		return nil
	})
	require.NoError(t, err)

	_, set := os.LookupEnv(EndpointOverrideVar)
	assert.False(t, set, "variable should stay unset")
}
