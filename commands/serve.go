package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	// Register LLM providers via init()
	_ "github.com/c360studio/healthwatch/llm/providers"

	hwconfig "github.com/c360studio/healthwatch/config"
	"github.com/c360studio/healthwatch/llm"
	"github.com/c360studio/healthwatch/model"
	"github.com/c360studio/healthwatch/processor/orchestrator"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/componentregistry"
	"github.com/c360studio/semstreams/config"
	"github.com/c360studio/semstreams/metric"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/c360studio/semstreams/service"
	"github.com/c360studio/semstreams/types"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newServeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the healthwatch service",
		Long: `Serve starts the long-running healthwatch service: it connects to NATS,
ensures the JetStream streams and KV buckets exist, and runs the review
orchestrator that consumes review requests and generates health reviews.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg *hwconfig.Config) error {
	logger := slog.Default()
	ctx := context.Background()

	// Model registry first: every LLM call resolves through it.
	stopWatch, err := initModelRegistry(cfg, logger)
	if err != nil {
		return err
	}
	if stopWatch != nil {
		defer stopWatch()
	}

	natsClient, err := connectToNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	scfg := buildServiceConfig(cfg)

	if err := ensureStreams(ctx, scfg, natsClient, logger); err != nil {
		return err
	}

	// LLM call audit stores. Reviews run without them, so a failure here
	// only costs the audit trail.
	if err := llm.InitGlobalCallStore(ctx, natsClient); err != nil {
		logger.Warn("Failed to initialize LLM call store", "error", err)
	}
	if err := llm.InitGlobalToolCallStore(ctx, natsClient); err != nil {
		logger.Warn("Failed to initialize tool call store", "error", err)
	}

	logger.Info("Healthwatch ready", "version", Version)

	metricsRegistry := metric.NewMetricsRegistry()
	platform := types.PlatformMeta{
		Org:      scfg.Platform.Org,
		Platform: scfg.Platform.ID,
	}

	configManager, err := config.NewConfigManager(scfg, natsClient, logger)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := configManager.Start(ctx); err != nil {
		return fmt.Errorf("start config manager: %w", err)
	}
	defer configManager.Stop(5 * time.Second)

	componentRegistry := component.NewRegistry()
	if err := componentregistry.Register(componentRegistry); err != nil {
		return fmt.Errorf("register semstreams components: %w", err)
	}
	if err := orchestrator.Register(componentRegistry); err != nil {
		return fmt.Errorf("register review-orchestrator: %w", err)
	}

	serviceRegistry := service.NewServiceRegistry()
	if err := service.RegisterAll(serviceRegistry); err != nil {
		return fmt.Errorf("register services: %w", err)
	}

	manager := service.NewServiceManager(serviceRegistry)
	svcDeps := &service.Dependencies{
		NATSClient:        natsClient,
		MetricsRegistry:   metricsRegistry,
		Logger:            logger,
		Platform:          platform,
		Manager:           configManager,
		ComponentRegistry: componentRegistry,
	}

	if err := manager.ConfigureFromServices(scfg.Services, svcDeps); err != nil {
		return fmt.Errorf("configure service manager: %w", err)
	}

	logger.Info("All services configured")

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := manager.StartAll(signalCtx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	logger.Info("All services started")

	<-signalCtx.Done()
	logger.Info("Received shutdown signal")

	if err := manager.StopAll(30 * time.Second); err != nil {
		logger.Error("Error stopping services", "error", err)
	}

	logger.Info("Healthwatch shutdown complete")
	return nil
}

// initModelRegistry loads the model registry from the configured JSON file
// and optionally watches it for changes. Returns a stop function for the
// watcher when one was started.
func initModelRegistry(cfg *hwconfig.Config, logger *slog.Logger) (func(), error) {
	if cfg.Models.RegistryPath == "" {
		logger.Debug("Using compiled-in model registry defaults")
		return nil, nil
	}

	registry, err := model.LoadFromFile(cfg.Models.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("load model registry %s: %w", cfg.Models.RegistryPath, err)
	}
	model.InitGlobal(registry)
	logger.Info("Model registry loaded", "path", cfg.Models.RegistryPath)

	if !cfg.Models.Watch {
		return nil, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create registry watcher: %w", err)
	}
	if err := watcher.Add(cfg.Models.RegistryPath); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch model registry: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				reloadModelRegistry(cfg.Models.RegistryPath, logger)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Model registry watch error", "error", err)
			}
		}
	}()

	logger.Info("Watching model registry for changes", "path", cfg.Models.RegistryPath)
	return func() { _ = watcher.Close() }, nil
}

// reloadModelRegistry merges the on-disk registry config into the live
// global registry. A broken file keeps the last good configuration.
func reloadModelRegistry(path string, logger *slog.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Model registry reload failed", "path", path, "error", err)
		return
	}

	var fullConfig struct {
		ModelRegistry *model.RegistryConfig `json:"model_registry"`
	}
	regConfig := &model.RegistryConfig{}
	if err := json.Unmarshal(data, &fullConfig); err == nil && fullConfig.ModelRegistry != nil {
		regConfig = fullConfig.ModelRegistry
	} else if err := json.Unmarshal(data, regConfig); err != nil {
		logger.Warn("Model registry reload failed", "path", path, "error", err)
		return
	}

	model.Global().MergeFromConfig(regConfig)
	logger.Info("Model registry reloaded", "path", path)
}

// buildServiceConfig maps the healthwatch config onto the semstreams
// service configuration: one processor component plus the stream it
// consumes from.
func buildServiceConfig(cfg *hwconfig.Config) *config.Config {
	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "dev"
	}

	orchestratorConfig := map[string]any{
		"use_mock_analyzer":                 cfg.Review.UseMockAnalyzer,
		"max_facts_per_file":                cfg.Review.MaxFactsPerFile,
		"llm_max_iterations":                cfg.Review.LLMMaxIterations,
		"llm_max_token_budget":              cfg.Review.LLMMaxTokenBudget,
		"verification_sample_size":          cfg.Review.VerificationSampleSize,
		"verification_confidence_threshold": cfg.Review.VerificationConfidenceThreshold,
		"verification_delay_seconds":        cfg.Review.VerificationDelaySeconds,
		"search_results_limit":              cfg.Review.SearchResultsLimit,
		"review_timeout":                    cfg.Review.Timeout.String(),
	}
	orchestratorJSON, _ := json.Marshal(orchestratorConfig)

	serverInfo, _ := json.Marshal(map[string]any{
		"http_port":  cfg.Server.HTTPPort,
		"swagger_ui": false,
		"server_info": map[string]string{
			"title":       "Healthwatch API",
			"description": "service health review platform",
			"version":     Version,
		},
	})

	return &config.Config{
		Version: "1.0.0",
		Platform: config.PlatformConfig{
			Org:         "healthwatch",
			ID:          "healthwatch-local",
			Environment: environment,
		},
		NATS: config.NATSConfig{
			URLs:          []string{cfg.NATS.URL},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			JetStream: config.JetStreamConfig{
				Enabled: true,
			},
		},
		Services: types.ServiceConfigs{
			"service-manager": types.ServiceConfig{
				Name:    "service-manager",
				Enabled: true,
				Config:  serverInfo,
			},
		},
		Components: config.ComponentConfigs{
			"review-orchestrator": types.ComponentConfig{
				Name:    "review-orchestrator",
				Type:    types.ComponentTypeProcessor,
				Enabled: true,
				Config:  orchestratorJSON,
			},
		},
		Streams: config.StreamConfigs{
			"HEALTHWATCH": config.StreamConfig{
				Subjects: []string{
					"healthwatch.review.>",
				},
				MaxAge:   "168h",
				Storage:  "file",
				Replicas: 1,
			},
		},
	}
}

func connectToNATS(ctx context.Context, cfg *hwconfig.Config, logger *slog.Logger) (*natsclient.Client, error) {
	natsURL := cfg.NATS.URL
	logger.Info("Connecting to NATS", "url", natsURL)

	client, err := natsclient.NewClient(natsURL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithCircuitBreakerThreshold(20),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, natsURL)
	}

	logger.Info("Connected to NATS", "url", natsURL)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set NATS_URL to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

func ensureStreams(ctx context.Context, scfg *config.Config, natsClient *natsclient.Client, logger *slog.Logger) error {
	logger.Debug("Creating JetStream streams")
	streamsManager := config.NewStreamsManager(natsClient, logger)

	if err := streamsManager.EnsureStreams(ctx, scfg); err != nil {
		return fmt.Errorf("ensure streams: %w", err)
	}

	logger.Debug("JetStream streams ready")
	return nil
}
