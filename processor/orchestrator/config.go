package orchestrator

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"
)

// orchestratorSchema defines the configuration schema.
var orchestratorSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the review orchestrator component.
type Config struct {
	// StreamName is the JetStream stream carrying review requests.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream for review requests,category:basic,default:HEALTHWATCH"`

	// ConsumerName is the durable consumer name for request consumption.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name for review requests,category:basic,default:review-orchestrator"`

	// RequestSubject is the subject review requests are published on.
	RequestSubject string `json:"request_subject" schema:"type:string,description:Subject for review generation requests,category:basic,default:healthwatch.review.request"`

	// ReviewTimeout bounds one review generation end to end. The consumer
	// AckWait is sized from it so a slow review is not redelivered while
	// still running. Uses time.ParseDuration format.
	ReviewTimeout string `json:"review_timeout" schema:"type:string,description:Maximum duration for one review generation,category:advanced,default:10m"`

	// UseMockAnalyzer switches the pipeline to the deterministic demo
	// analyzer: no fact extraction, no rules, no LLM calls.
	UseMockAnalyzer bool `json:"use_mock_analyzer" schema:"type:bool,description:Replace LLM analysis with deterministic demo output,category:advanced,default:false"`

	// MaxFactsPerFile caps how many parsed files feed fact extraction.
	MaxFactsPerFile int `json:"max_facts_per_file" schema:"type:int,description:Maximum parsed files per review,category:advanced,default:5000"`

	// LLMMaxIterations and LLMMaxTokenBudget are the per-review budget
	// caps shared by every LLM call in the pipeline.
	LLMMaxIterations  int `json:"llm_max_iterations" schema:"type:int,description:LLM call budget per review,category:advanced,default:100"`
	LLMMaxTokenBudget int `json:"llm_max_token_budget" schema:"type:int,description:LLM token budget per review,category:advanced,default:500000"`

	// VerificationSampleSize bounds how many gaps per rule group the
	// verification agent checks.
	VerificationSampleSize int `json:"verification_sample_size" schema:"type:int,description:Gaps sampled per rule group during verification,category:advanced,default:20"`

	// VerificationConfidenceThreshold is the false-alarm ratio at which a
	// whole rule group is dismissed.
	VerificationConfidenceThreshold float64 `json:"verification_confidence_threshold" schema:"type:number,description:False-alarm ratio that dismisses a rule group,category:advanced,default:0.7"`

	// VerificationDelaySeconds pauses between rule-group verifications to
	// soften provider rate limits.
	VerificationDelaySeconds int `json:"verification_delay_seconds" schema:"type:int,description:Pause between verification groups in seconds,category:advanced,default:0"`

	// SearchResultsLimit bounds the verification agent's search tools.
	SearchResultsLimit int `json:"search_results_limit" schema:"type:int,description:Result cap for verification search tools,category:advanced,default:50"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Input/output port definitions,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:                      "HEALTHWATCH",
		ConsumerName:                    "review-orchestrator",
		RequestSubject:                  "healthwatch.review.request",
		ReviewTimeout:                   "10m",
		MaxFactsPerFile:                 5000,
		LLMMaxIterations:                100,
		LLMMaxTokenBudget:               500000,
		VerificationSampleSize:          20,
		VerificationConfidenceThreshold: 0.7,
		SearchResultsLimit:              50,
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "review-requests",
					Type:        "jetstream",
					Subject:     "healthwatch.review.request",
					StreamName:  "HEALTHWATCH",
					Description: "Receive review generation requests",
					Required:    true,
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "review-results",
					Type:        "nats",
					Subject:     "healthwatch.review.result",
					Description: "Publish review generation results",
					Required:    false,
				},
			},
		},
	}
}

// GetReviewTimeout parses the review timeout.
// Returns 10 minutes if the field is empty or unparseable.
func (c *Config) GetReviewTimeout() time.Duration {
	if c.ReviewTimeout == "" {
		return 10 * time.Minute
	}
	d, err := time.ParseDuration(c.ReviewTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	if c.RequestSubject == "" {
		return fmt.Errorf("request_subject is required")
	}
	if c.LLMMaxIterations <= 0 {
		return fmt.Errorf("llm_max_iterations must be positive")
	}
	if c.LLMMaxTokenBudget <= 0 {
		return fmt.Errorf("llm_max_token_budget must be positive")
	}
	return nil
}
