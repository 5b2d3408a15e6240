// Package commands provides the healthwatch CLI: the long-running service
// (serve), operator commands for triggering and inspecting reviews, the
// prompt injection guard check, and config management.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/c360studio/healthwatch/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version and BuildTime are set at build time via -ldflags.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "healthwatch"

// rootFlags holds persistent flags shared by all commands.
type rootFlags struct {
	configPath string
	logLevel   string
}

// Execute runs the healthwatch CLI.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Service health review platform",
		Long: `Healthwatch generates weekly health reviews for registered services:
deterministic code-structure analysis of the service's repository,
LLM-assisted verification of detected observability gaps, and logs and
metrics aggregated from CloudWatch, Datadog, New Relic, and Grafana.

All components communicate via NATS using the semstreams framework.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional; the original worker loads it the same way.
			_ = godotenv.Load()
			configureLogging(flags.logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCommand(flags),
		newReviewCommand(flags),
		newServiceCommand(flags),
		newGuardCommand(flags),
		newConfigCommand(flags),
		newVersionCommand(),
	)

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

func configureLogging(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadConfig resolves the effective config: an explicit --config file when
// given, otherwise the layered user/project/env lookup.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	loader := config.NewLoader(slog.Default())
	if flags.configPath != "" {
		cfg, err := loader.LoadFile(flags.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", flags.configPath, err)
		}
		return cfg, nil
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
