package commands

import (
	"context"
	"fmt"

	"github.com/c360studio/healthwatch/review"
	"github.com/c360studio/healthwatch/storage"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/spf13/cobra"
)

func newServiceCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Register and list reviewable services",
	}
	cmd.AddCommand(
		newServiceAddCommand(flags),
		newServiceListCommand(flags),
	)
	return cmd
}

func newServiceAddCommand(flags *rootFlags) *cobra.Command {
	var workspaceID, repository, metricsProvider, description string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a service for health reviews",
		Long: `Add registers a service in a workspace. A repository reference in
owner/repo form links the service to its parsed codebase; without one,
reviews carry only collected telemetry and no gap analysis.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			return withStores(cfg, func(ctx context.Context, nc *natsclient.Client, stores *storage.Stores) error {
				svc := review.NewService(workspaceID, args[0], repository)
				svc.MetricsProvider = metricsProvider
				svc.Description = description

				if err := stores.Services.Put(ctx, svc); err != nil {
					return fmt.Errorf("store service: %w", err)
				}

				fmt.Printf("Service %s registered as %s\n", svc.Name, svc.ID)
				if svc.RepositoryName == "" {
					fmt.Println("Note: no repository linked; reviews will skip gap analysis")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace ID (required)")
	cmd.Flags().StringVarP(&repository, "repository", "r", "", "Repository reference (owner/repo)")
	cmd.Flags().StringVar(&metricsProvider, "metrics-provider", "", "Authoritative metrics provider tag")
	cmd.Flags().StringVar(&description, "description", "", "Service description")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func newServiceListCommand(flags *rootFlags) *cobra.Command {
	var workspaceID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List services in a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			return withStores(cfg, func(ctx context.Context, nc *natsclient.Client, stores *storage.Stores) error {
				services, err := stores.Services.ListByWorkspace(ctx, workspaceID)
				if err != nil {
					return fmt.Errorf("list services: %w", err)
				}

				if len(services) == 0 {
					fmt.Println("No services registered")
					return nil
				}
				for _, svc := range services {
					repo := svc.RepositoryName
					if repo == "" {
						repo = "(no repository)"
					}
					fmt.Printf("%s  %-20s  %s\n", svc.ID, svc.Name, repo)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace ID (required)")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}
