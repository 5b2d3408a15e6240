package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, 5000, cfg.Review.MaxFactsPerFile)
	assert.Equal(t, 100, cfg.Review.LLMMaxIterations)
	assert.Equal(t, 500000, cfg.Review.LLMMaxTokenBudget)
	assert.Equal(t, 20, cfg.Review.VerificationSampleSize)
	assert.InDelta(t, 0.70, cfg.Review.VerificationConfidenceThreshold, 0.001)
	assert.Equal(t, 0, cfg.Review.VerificationDelaySeconds)
	assert.Equal(t, 50, cfg.Review.SearchResultsLimit)
	assert.Equal(t, 10*time.Minute, cfg.Review.Timeout)
	assert.False(t, cfg.Review.UseMockAnalyzer)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing NATS URL",
			mutate:  func(c *Config) { c.NATS.URL = "" },
			wantErr: "nats.url",
		},
		{
			name:    "zero iterations",
			mutate:  func(c *Config) { c.Review.LLMMaxIterations = 0 },
			wantErr: "llm_max_iterations",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Review.VerificationConfidenceThreshold = 1.5 },
			wantErr: "verification_confidence_threshold",
		},
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.Review.VerificationDelaySeconds = -1 },
			wantErr: "verification_delay_seconds",
		},
		{
			name:    "guard temperature out of range",
			mutate:  func(c *Config) { c.Guard.Temperature = 2.0 },
			wantErr: "guard.temperature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "healthwatch.yaml")

	cfg := DefaultConfig()
	cfg.NATS.URL = "nats://nats.internal:4222"
	cfg.Review.UseMockAnalyzer = true
	cfg.Review.VerificationSampleSize = 10
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://nats.internal:4222", loaded.NATS.URL)
	assert.True(t, loaded.Review.UseMockAnalyzer)
	assert.Equal(t, 10, loaded.Review.VerificationSampleSize)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, 5000, loaded.Review.MaxFactsPerFile)
}

func TestLoadFromFilePartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("review:\n  llm_max_iterations: 42\n"), 0644))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Review.LLMMaxIterations)
	assert.Equal(t, "nats://localhost:4222", loaded.NATS.URL)
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{}
	override.NATS.URL = "nats://other:4222"
	override.Review.UseMockAnalyzer = true
	override.Review.VerificationConfidenceThreshold = 0.9
	override.Guard.MaxTokens = 20

	base.Merge(override)

	assert.Equal(t, "nats://other:4222", base.NATS.URL)
	assert.True(t, base.Review.UseMockAnalyzer)
	assert.InDelta(t, 0.9, base.Review.VerificationConfidenceThreshold, 0.001)
	assert.Equal(t, 20, base.Guard.MaxTokens)

	// Zero values in the override do not clobber defaults.
	assert.Equal(t, 5000, base.Review.MaxFactsPerFile)
	assert.Equal(t, 10*time.Minute, base.Review.Timeout)
}

func TestMergeNil(t *testing.T) {
	base := DefaultConfig()
	base.Merge(nil)
	assert.NoError(t, base.Validate())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("USE_MOCK_LLM_ANALYZER", "true")
	t.Setenv("HEALTH_REVIEW_LLM_MAX_ITERATIONS", "7")
	t.Setenv("HEALTH_REVIEW_VERIFICATION_CONFIDENCE_THRESHOLD", "0.85")
	t.Setenv("LLM_GUARD_TIMEOUT", "45")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	assert.True(t, cfg.Review.UseMockAnalyzer)
	assert.Equal(t, 7, cfg.Review.LLMMaxIterations)
	assert.InDelta(t, 0.85, cfg.Review.VerificationConfidenceThreshold, 0.001)
	assert.Equal(t, 45*time.Second, cfg.Guard.Timeout)
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("HEALTH_REVIEW_LLM_MAX_ITERATIONS", "not-a-number")

	cfg := DefaultConfig()
	err := cfg.ApplyEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HEALTH_REVIEW_LLM_MAX_ITERATIONS")
}
