package integration

import (
	"os"
	"sync"
)

// EndpointOverrideVar points the AWS SDK at a local emulator in
// development. STS role assumption must always hit the real AWS API, so
// calls that assume roles run inside WithRealAWS.
const EndpointOverrideVar = "AWS_ENDPOINT_URL"

var endpointMu sync.Mutex

// WithRealAWS removes the endpoint override for the duration of fn and
// restores it afterwards, including when fn panics. Scopes are serialized
// so concurrent callers cannot capture each other's intermediate state.
func WithRealAWS(fn func() error) error {
	endpointMu.Lock()
	defer endpointMu.Unlock()

	original, wasSet := os.LookupEnv(EndpointOverrideVar)
	if wasSet {
		os.Unsetenv(EndpointOverrideVar)
		defer os.Setenv(EndpointOverrideVar, original)
	}

	return fn()
}
