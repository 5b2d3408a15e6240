// Package orchestrator provides the processor that generates weekly health
// reviews. It consumes review requests from JetStream and drives the full
// pipeline: collect observability data, extract code facts, evaluate gap
// rules, verify and enrich gaps with the LLM, and score the result.
package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/healthwatch/analyzer"
	"github.com/c360studio/healthwatch/integration"
	"github.com/c360studio/healthwatch/llm"
	"github.com/c360studio/healthwatch/model"
	"github.com/c360studio/healthwatch/storage"
	"github.com/c360studio/healthwatch/verify"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// Component implements the review orchestrator processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	llmClient *llm.Client
	pipeline  *Pipeline

	// JetStream consumer
	consumer jetstream.Consumer
	stream   jetstream.Stream

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	requestsProcessed atomic.Int64
	reviewsFailed     atomic.Int64
	lastActivityMu    sync.RWMutex
	lastActivity      time.Time
}

// NewComponent creates a new review orchestrator processor.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply defaults
	defaults := DefaultConfig()
	if config.StreamName == "" {
		config.StreamName = defaults.StreamName
	}
	if config.ConsumerName == "" {
		config.ConsumerName = defaults.ConsumerName
	}
	if config.RequestSubject == "" {
		config.RequestSubject = defaults.RequestSubject
	}
	if config.ReviewTimeout == "" {
		config.ReviewTimeout = defaults.ReviewTimeout
	}
	if config.MaxFactsPerFile == 0 {
		config.MaxFactsPerFile = defaults.MaxFactsPerFile
	}
	if config.LLMMaxIterations == 0 {
		config.LLMMaxIterations = defaults.LLMMaxIterations
	}
	if config.LLMMaxTokenBudget == 0 {
		config.LLMMaxTokenBudget = defaults.LLMMaxTokenBudget
	}
	if config.VerificationSampleSize == 0 {
		config.VerificationSampleSize = defaults.VerificationSampleSize
	}
	if config.VerificationConfidenceThreshold == 0 {
		config.VerificationConfidenceThreshold = defaults.VerificationConfidenceThreshold
	}
	if config.SearchResultsLimit == 0 {
		config.SearchResultsLimit = defaults.SearchResultsLimit
	}
	if config.Ports == nil {
		config.Ports = defaults.Ports
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := deps.GetLogger()

	return &Component{
		name:       "review-orchestrator",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     logger,
		llmClient: llm.NewClient(model.Global(),
			llm.WithLogger(logger),
			llm.WithCallStore(llm.GlobalCallStore()),
		),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized review-orchestrator",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"request_subject", c.config.RequestSubject,
		"mock_analyzer", c.config.UseMockAnalyzer)
	return nil
}

// Start begins processing review requests.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	c.running = true
	c.startTime = time.Now()

	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	// Get JetStream context
	js, err := c.natsClient.JetStream()
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get jetstream: %w", err)
	}

	stores, err := storage.New(subCtx, c.natsClient, storage.WithLogger(c.logger))
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create stores: %w", err)
	}

	integrations, cipher, err := buildIntegrationService(stores.Integrations, c.logger)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("build integration service: %w", err)
	}

	verifier := verify.NewService(c.llmClient, stores.Contexts,
		verify.WithLogger(c.logger),
		verify.WithSampleSize(c.config.VerificationSampleSize),
		verify.WithConfidenceThreshold(c.config.VerificationConfidenceThreshold),
		verify.WithVerificationDelay(time.Duration(c.config.VerificationDelaySeconds)*time.Second),
		verify.WithToolSearchLimit(c.config.SearchResultsLimit),
	)
	enricher := analyzer.NewEnricher(c.llmClient, analyzer.WithLogger(c.logger))
	sources := newSourceResolver(integrations, stores.Integrations, cipher, c.logger)
	c.pipeline = newPipeline(c.config, stores, verifier, enricher, sources, c.logger)

	// Get stream
	stream, err := js.Stream(subCtx, c.config.StreamName)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get stream %s: %w", c.config.StreamName, err)
	}
	c.stream = stream

	// Create or get consumer
	consumerConfig := jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		FilterSubject: c.config.RequestSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.config.GetReviewTimeout() + time.Minute, // Full review plus persistence headroom
		MaxDeliver:    3,
	}

	consumer, err := stream.CreateOrUpdateConsumer(subCtx, consumerConfig)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer

	// Start consuming messages
	go c.consumeLoop(subCtx)

	c.logger.Info("review-orchestrator started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"subject", c.config.RequestSubject,
		"review_timeout", c.config.GetReviewTimeout())

	return nil
}

func (c *Component) rollbackStart(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()
}

// buildIntegrationService wires the token cipher and STS assumer from the
// environment. CRYPTOGRAPHY_SECRET holds the base64-encoded 32-byte AES key
// that tenant integration credentials are encrypted with; without it no
// stored credential can be decrypted, so startup fails.
func buildIntegrationService(store integration.Store, logger *slog.Logger) (*integration.Service, integration.TokenCipher, error) {
	secret := os.Getenv("CRYPTOGRAPHY_SECRET")
	if secret == "" {
		return nil, nil, fmt.Errorf("CRYPTOGRAPHY_SECRET not set")
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, nil, fmt.Errorf("decode CRYPTOGRAPHY_SECRET: %w", err)
	}
	cipher, err := integration.NewAESCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("create token cipher: %w", err)
	}

	stsCfg := integration.STSConfig{
		Production:          os.Getenv("ENVIRONMENT") == "production",
		OwnerRoleARN:        os.Getenv("OWNER_ROLE_ARN"),
		OwnerRoleExternalID: os.Getenv("OWNER_ROLE_EXTERNAL_ID"),
		OwnerSessionName:    os.Getenv("OWNER_ROLE_SESSION_NAME"),
	}
	if secs := os.Getenv("OWNER_ROLE_DURATION_SECONDS"); secs != "" {
		n, err := strconv.Atoi(secs)
		if err != nil {
			return nil, nil, fmt.Errorf("parse OWNER_ROLE_DURATION_SECONDS: %w", err)
		}
		stsCfg.OwnerRoleDuration = time.Duration(n) * time.Second
	}
	assumer := integration.NewSTSAssumer(stsCfg, integration.WithSTSLogger(logger))

	svc := integration.NewService(store, cipher, assumer, integration.WithLogger(logger))
	return svc, cipher, nil
}

// consumeLoop continuously consumes messages from the JetStream consumer.
func (c *Component) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Fetch messages with a timeout
		msgs, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("Fetch timeout or error", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(ctx, msg)
		}

		if msgs.Error() != nil && msgs.Error() != context.DeadlineExceeded {
			c.logger.Warn("Message fetch error", "error", msgs.Error())
		}
	}
}

// handleMessage processes a single review request.
func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	// Check for context cancellation before expensive operations
	if ctx.Err() != nil {
		if err := msg.Nak(); err != nil {
			c.logger.Warn("Failed to NAK message during shutdown", "error", err)
		}
		return
	}

	c.requestsProcessed.Add(1)
	c.updateLastActivity()

	req, err := parseRequest(msg.Data())
	if err != nil {
		// A request that cannot be parsed will never succeed on redelivery.
		c.logger.Error("Failed to parse review request", "error", err)
		if err := msg.Ack(); err != nil {
			c.logger.Warn("Failed to ACK message", "error", err)
		}
		return
	}

	c.logger.Info("Processing review request",
		"review_id", req.ReviewID,
		"workspace_id", req.WorkspaceID,
		"service_id", req.ServiceID)

	runCtx, cancel := context.WithTimeout(ctx, c.config.GetReviewTimeout())
	metricActiveReviews.Inc()
	result := c.pipeline.Run(runCtx, req)
	metricActiveReviews.Dec()
	cancel()

	metricReviewsProcessed.Inc()
	if !result.Success {
		c.reviewsFailed.Add(1)
		metricReviewsFailed.Inc()
	}

	// The pipeline records the outcome on the review aggregate itself, so
	// the message is always ACKed: a redelivered request for a terminal
	// review would be rejected by the status check anyway.
	if err := msg.Ack(); err != nil {
		c.logger.Warn("Failed to ACK message", "error", err)
	}

	if result.Success {
		c.logger.Info("Review request completed",
			"review_id", req.ReviewID,
			"duration_seconds", result.GenerationDurationSeconds)
	} else {
		c.logger.Warn("Review request failed",
			"review_id", req.ReviewID,
			"error", result.ErrorMessage)
	}
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}

	// Copy cancel function and clear state before releasing lock
	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	// Cancel context after releasing lock to avoid potential deadlock
	if cancel != nil {
		cancel()
	}

	c.logger.Info("review-orchestrator stopped",
		"requests_processed", c.requestsProcessed.Load(),
		"reviews_failed", c.reviewsFailed.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "review-orchestrator",
		Type:        "processor",
		Description: "Generates weekly service health reviews from logs, metrics, and code analysis",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, portDef := range c.config.Ports.Inputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionInput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.NATSPort{
				Subject: portDef.Subject,
			},
		}
	}
	return ports
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionOutput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.NATSPort{
				Subject: portDef.Subject,
			},
		}
	}
	return ports
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return orchestratorSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.reviewsFailed.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.getLastActivity(),
	}
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}
