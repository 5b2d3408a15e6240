// Package config provides configuration loading and management for
// Healthwatch.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Healthwatch configuration.
type Config struct {
	NATS   NATSConfig   `yaml:"nats"`
	Models ModelsConfig `yaml:"models"`
	Review ReviewConfig `yaml:"review"`
	Guard  GuardConfig  `yaml:"guard"`
	Server ServerConfig `yaml:"server"`
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	// URL is the NATS server URL (default: nats://localhost:4222)
	URL string `yaml:"url"`
}

// ModelsConfig configures the LLM model registry.
type ModelsConfig struct {
	// RegistryPath is the path to the model registry JSON file.
	// Empty means the compiled-in default registry.
	RegistryPath string `yaml:"registry_path"`
	// Watch reloads the registry when the file changes.
	Watch bool `yaml:"watch"`
}

// ReviewConfig configures the review pipeline. Every field maps onto the
// review-orchestrator component config.
type ReviewConfig struct {
	// UseMockAnalyzer replaces LLM analysis with deterministic demo output.
	UseMockAnalyzer bool `yaml:"use_mock_analyzer"`
	// MaxFactsPerFile caps how many parsed files feed fact extraction.
	MaxFactsPerFile int `yaml:"max_facts_per_file"`
	// LLMMaxIterations caps LLM calls per review.
	LLMMaxIterations int `yaml:"llm_max_iterations"`
	// LLMMaxTokenBudget caps LLM tokens per review.
	LLMMaxTokenBudget int `yaml:"llm_max_token_budget"`
	// VerificationSampleSize bounds gaps sampled per rule group.
	VerificationSampleSize int `yaml:"verification_sample_size"`
	// VerificationConfidenceThreshold is the pass ratio that dismisses a
	// rule group as a false alarm.
	VerificationConfidenceThreshold float64 `yaml:"verification_confidence_threshold"`
	// VerificationDelaySeconds pauses between rule-group verifications.
	VerificationDelaySeconds int `yaml:"verification_delay_seconds"`
	// SearchResultsLimit bounds the verification agent's search tools.
	SearchResultsLimit int `yaml:"search_results_limit"`
	// Timeout bounds one review generation end to end.
	Timeout time.Duration `yaml:"timeout"`
}

// GuardConfig configures the prompt injection guard.
type GuardConfig struct {
	// Temperature for the guard's classification call.
	Temperature float64 `yaml:"temperature"`
	// MaxTokens for the guard's classification call.
	MaxTokens int `yaml:"max_tokens"`
	// Timeout for the guard's classification call.
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig configures the HTTP surface exposed by the service manager.
type ServerConfig struct {
	// HTTPPort is the port for health and metrics endpoints.
	HTTPPort int `yaml:"http_port"`
}

// DefaultConfig returns a Config with the compiled-in defaults.
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Models: ModelsConfig{
			RegistryPath: "",
			Watch:        false,
		},
		Review: ReviewConfig{
			UseMockAnalyzer:                 false,
			MaxFactsPerFile:                 5000,
			LLMMaxIterations:                100,
			LLMMaxTokenBudget:               500000,
			VerificationSampleSize:          20,
			VerificationConfidenceThreshold: 0.70,
			VerificationDelaySeconds:        0,
			SearchResultsLimit:              50,
			Timeout:                         10 * time.Minute,
		},
		Guard: GuardConfig{
			Temperature: 0.0,
			MaxTokens:   10,
			Timeout:     30 * time.Second,
		},
		Server: ServerConfig{
			HTTPPort: 8080,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.Review.MaxFactsPerFile <= 0 {
		return fmt.Errorf("review.max_facts_per_file must be positive")
	}
	if c.Review.LLMMaxIterations <= 0 {
		return fmt.Errorf("review.llm_max_iterations must be positive")
	}
	if c.Review.LLMMaxTokenBudget <= 0 {
		return fmt.Errorf("review.llm_max_token_budget must be positive")
	}
	if c.Review.VerificationSampleSize <= 0 {
		return fmt.Errorf("review.verification_sample_size must be positive")
	}
	if c.Review.VerificationConfidenceThreshold <= 0 || c.Review.VerificationConfidenceThreshold > 1 {
		return fmt.Errorf("review.verification_confidence_threshold must be in (0, 1]")
	}
	if c.Review.VerificationDelaySeconds < 0 {
		return fmt.Errorf("review.verification_delay_seconds must not be negative")
	}
	if c.Review.Timeout <= 0 {
		return fmt.Errorf("review.timeout must be positive")
	}
	if c.Guard.Temperature < 0 || c.Guard.Temperature > 1 {
		return fmt.Errorf("guard.temperature must be between 0 and 1")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	if other.Models.RegistryPath != "" {
		c.Models.RegistryPath = other.Models.RegistryPath
	}
	if other.Models.Watch {
		c.Models.Watch = true
	}

	if other.Review.UseMockAnalyzer {
		c.Review.UseMockAnalyzer = true
	}
	if other.Review.MaxFactsPerFile != 0 {
		c.Review.MaxFactsPerFile = other.Review.MaxFactsPerFile
	}
	if other.Review.LLMMaxIterations != 0 {
		c.Review.LLMMaxIterations = other.Review.LLMMaxIterations
	}
	if other.Review.LLMMaxTokenBudget != 0 {
		c.Review.LLMMaxTokenBudget = other.Review.LLMMaxTokenBudget
	}
	if other.Review.VerificationSampleSize != 0 {
		c.Review.VerificationSampleSize = other.Review.VerificationSampleSize
	}
	if other.Review.VerificationConfidenceThreshold != 0 {
		c.Review.VerificationConfidenceThreshold = other.Review.VerificationConfidenceThreshold
	}
	if other.Review.VerificationDelaySeconds != 0 {
		c.Review.VerificationDelaySeconds = other.Review.VerificationDelaySeconds
	}
	if other.Review.SearchResultsLimit != 0 {
		c.Review.SearchResultsLimit = other.Review.SearchResultsLimit
	}
	if other.Review.Timeout != 0 {
		c.Review.Timeout = other.Review.Timeout
	}

	if other.Guard.Temperature != 0 {
		c.Guard.Temperature = other.Guard.Temperature
	}
	if other.Guard.MaxTokens != 0 {
		c.Guard.MaxTokens = other.Guard.MaxTokens
	}
	if other.Guard.Timeout != 0 {
		c.Guard.Timeout = other.Guard.Timeout
	}

	if other.Server.HTTPPort != 0 {
		c.Server.HTTPPort = other.Server.HTTPPort
	}
}

// ApplyEnv overlays environment variables onto the config. Variable names
// match the original deployment surface so existing .env files keep working.
func (c *Config) ApplyEnv() error {
	if url := os.Getenv("NATS_URL"); url != "" {
		c.NATS.URL = url
	}

	if v := os.Getenv("USE_MOCK_LLM_ANALYZER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse USE_MOCK_LLM_ANALYZER: %w", err)
		}
		c.Review.UseMockAnalyzer = b
	}

	intVars := []struct {
		name   string
		target *int
	}{
		{"HEALTH_REVIEW_MAX_FACTS_PER_FILE", &c.Review.MaxFactsPerFile},
		{"HEALTH_REVIEW_LLM_MAX_ITERATIONS", &c.Review.LLMMaxIterations},
		{"HEALTH_REVIEW_LLM_MAX_TOKEN_BUDGET", &c.Review.LLMMaxTokenBudget},
		{"HEALTH_REVIEW_VERIFICATION_SAMPLE_SIZE", &c.Review.VerificationSampleSize},
		{"HEALTH_REVIEW_VERIFICATION_DELAY_SECONDS", &c.Review.VerificationDelaySeconds},
		{"HEALTH_REVIEW_SEARCH_RESULTS_LIMIT", &c.Review.SearchResultsLimit},
		{"LLM_GUARD_MAX_TOKENS", &c.Guard.MaxTokens},
	}
	for _, v := range intVars {
		raw := os.Getenv(v.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", v.name, err)
		}
		*v.target = n
	}

	if v := os.Getenv("HEALTH_REVIEW_VERIFICATION_CONFIDENCE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse HEALTH_REVIEW_VERIFICATION_CONFIDENCE_THRESHOLD: %w", err)
		}
		c.Review.VerificationConfidenceThreshold = f
	}

	if v := os.Getenv("LLM_GUARD_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse LLM_GUARD_TEMPERATURE: %w", err)
		}
		c.Guard.Temperature = f
	}

	if v := os.Getenv("LLM_GUARD_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse LLM_GUARD_TIMEOUT: %w", err)
		}
		c.Guard.Timeout = time.Duration(secs) * time.Second
	}

	return nil
}
