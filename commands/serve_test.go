package commands

import (
	"encoding/json"
	"testing"
	"time"

	hwconfig "github.com/c360studio/healthwatch/config"
	"github.com/c360studio/healthwatch/processor/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildServiceConfig(t *testing.T) {
	cfg := hwconfig.DefaultConfig()
	cfg.NATS.URL = "nats://nats.internal:4222"
	cfg.Review.UseMockAnalyzer = true
	cfg.Review.VerificationSampleSize = 10
	cfg.Review.Timeout = 5 * time.Minute

	scfg := buildServiceConfig(cfg)

	assert.Equal(t, []string{"nats://nats.internal:4222"}, scfg.NATS.URLs)
	assert.True(t, scfg.NATS.JetStream.Enabled)

	stream, ok := scfg.Streams["HEALTHWATCH"]
	require.True(t, ok, "HEALTHWATCH stream must be configured")
	assert.Contains(t, stream.Subjects, "healthwatch.review.>")

	compCfg, ok := scfg.Components["review-orchestrator"]
	require.True(t, ok, "review-orchestrator component must be configured")
	assert.True(t, compCfg.Enabled)

	// The component JSON must unmarshal cleanly into the orchestrator's
	// own config type with the review knobs carried over.
	var oc orchestrator.Config
	require.NoError(t, json.Unmarshal(compCfg.Config, &oc))
	assert.True(t, oc.UseMockAnalyzer)
	assert.Equal(t, 10, oc.VerificationSampleSize)
	assert.Equal(t, "5m0s", oc.ReviewTimeout)
	assert.Equal(t, 5*time.Minute, oc.GetReviewTimeout())
}

func TestBuildServiceConfigDefaults(t *testing.T) {
	scfg := buildServiceConfig(hwconfig.DefaultConfig())

	compCfg := scfg.Components["review-orchestrator"]
	var oc orchestrator.Config
	require.NoError(t, json.Unmarshal(compCfg.Config, &oc))

	assert.False(t, oc.UseMockAnalyzer)
	assert.Equal(t, 5000, oc.MaxFactsPerFile)
	assert.Equal(t, 100, oc.LLMMaxIterations)
	assert.Equal(t, 500000, oc.LLMMaxTokenBudget)
	assert.InDelta(t, 0.70, oc.VerificationConfidenceThreshold, 0.001)
	assert.Equal(t, 50, oc.SearchResultsLimit)
}

func TestRootCommandWiring(t *testing.T) {
	root := NewRootCommand()

	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"serve", "review", "service", "guard", "config", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
