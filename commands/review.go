package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/healthwatch/config"
	"github.com/c360studio/healthwatch/processor/orchestrator"
	"github.com/c360studio/healthwatch/review"
	"github.com/c360studio/healthwatch/storage"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/spf13/cobra"
)

// cliTimeout bounds one operator command end to end.
const cliTimeout = 30 * time.Second

func newReviewCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Trigger and inspect health reviews",
	}
	cmd.AddCommand(
		newReviewTriggerCommand(flags),
		newReviewShowCommand(flags),
		newReviewListCommand(flags),
	)
	return cmd
}

func newReviewTriggerCommand(flags *rootFlags) *cobra.Command {
	var workspaceID, serviceID string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Queue a health review for a service",
		Long: `Trigger creates a pending review covering the past seven days and
publishes a generation request for the running orchestrator to pick up.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			return withStores(cfg, func(ctx context.Context, nc *natsclient.Client, stores *storage.Stores) error {
				subject := orchestrator.DefaultConfig().RequestSubject
				rev, err := orchestrator.TriggerReview(ctx, nc, stores, subject, orchestrator.TriggerParams{
					WorkspaceID: workspaceID,
					ServiceID:   serviceID,
					TriggeredBy: review.TriggeredByAPI,
				})
				if err != nil {
					return err
				}

				fmt.Printf("Review %s queued for service %s (%s)\n", rev.ID, rev.ServiceName, rev.ServiceID)
				fmt.Printf("Window: %s to %s\n",
					rev.WeekStart.Format("2006-01-02"), rev.WeekEnd.Format("2006-01-02"))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace ID (required)")
	cmd.Flags().StringVarP(&serviceID, "service", "s", "", "Service ID (required)")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func newReviewShowCommand(flags *rootFlags) *cobra.Command {
	var workspaceID string

	cmd := &cobra.Command{
		Use:   "show <review-id>",
		Short: "Show one review's status and scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			return withStores(cfg, func(ctx context.Context, nc *natsclient.Client, stores *storage.Stores) error {
				rev, err := stores.Reviews.Get(ctx, workspaceID, args[0])
				if err != nil {
					return fmt.Errorf("load review %s: %w", args[0], err)
				}
				printReview(rev)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace ID (required)")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func newReviewListCommand(flags *rootFlags) *cobra.Command {
	var workspaceID, serviceID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reviews for a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			return withStores(cfg, func(ctx context.Context, nc *natsclient.Client, stores *storage.Stores) error {
				var (
					reviews []*review.ServiceReview
					err     error
				)
				if serviceID != "" {
					reviews, err = stores.Reviews.ListByService(ctx, workspaceID, serviceID)
				} else {
					reviews, err = stores.Reviews.ListByWorkspace(ctx, workspaceID)
				}
				if err != nil {
					return fmt.Errorf("list reviews: %w", err)
				}

				if len(reviews) == 0 {
					fmt.Println("No reviews found")
					return nil
				}
				for _, rev := range reviews {
					score := "-"
					if rev.OverallHealthScore != nil {
						score = fmt.Sprintf("%d", *rev.OverallHealthScore)
					}
					fmt.Printf("%s  %-10s  score=%-3s  %s  %s\n",
						rev.ID, rev.Status, score,
						rev.WeekStart.Format("2006-01-02"), rev.ServiceID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace ID (required)")
	cmd.Flags().StringVarP(&serviceID, "service", "s", "", "Filter by service ID")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func printReview(rev *review.ServiceReview) {
	fmt.Printf("Review:    %s\n", rev.ID)
	fmt.Printf("Service:   %s (%s)\n", rev.ServiceName, rev.ServiceID)
	fmt.Printf("Status:    %s\n", rev.Status)
	fmt.Printf("Window:    %s to %s\n",
		rev.WeekStart.Format("2006-01-02"), rev.WeekEnd.Format("2006-01-02"))

	if rev.Status == review.StatusCompleted {
		if rev.OverallHealthScore != nil {
			fmt.Printf("Score:     %d/100\n", *rev.OverallHealthScore)
		}
		fmt.Printf("Gaps:      %d logging, %d metrics\n", len(rev.LoggingGaps), len(rev.MetricsGaps))
		logVolume := 0
		if rev.LogVolumeAnalyzed != nil {
			logVolume = *rev.LogVolumeAnalyzed
		}
		fmt.Printf("Errors:    %d fingerprints from %d log lines\n", len(rev.Errors), logVolume)
		if rev.Summary != "" {
			fmt.Printf("\n%s\n", rev.Summary)
		}
	}
	if rev.Status == review.StatusFailed && rev.ErrorMessage != "" {
		fmt.Printf("Error:     %s\n", rev.ErrorMessage)
	}
}

// withStores connects to NATS, builds the stores, runs fn, and tears
// everything down. Shared by the operator commands.
func withStores(cfg *config.Config, fn func(ctx context.Context, nc *natsclient.Client, stores *storage.Stores) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	nc, err := connectToNATS(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer nc.Close(ctx)

	stores, err := storage.New(ctx, nc)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}

	return fn(ctx, nc, stores)
}
