package commands

import (
	"context"
	"fmt"

	"github.com/c360studio/healthwatch/guard"
	"github.com/c360studio/healthwatch/llm"
	"github.com/c360studio/healthwatch/model"
	"github.com/c360studio/healthwatch/storage"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/spf13/cobra"
)

func newGuardCommand(flags *rootFlags) *cobra.Command {
	var workspaceID, msgContext string

	cmd := &cobra.Command{
		Use:   "guard <message>",
		Short: "Screen a message for prompt injection",
		Long: `Guard runs the prompt injection classifier over a user-originated
message. Blocked verdicts and guard degradations are recorded as security
events in the workspace. Exits non-zero when the message is blocked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			return withStores(cfg, func(ctx context.Context, nc *natsclient.Client, stores *storage.Stores) error {
				client := llm.NewClient(model.Global())
				g := guard.New(client,
					guard.WithEventStore(stores.Security),
					guard.WithTemperature(cfg.Guard.Temperature),
					guard.WithMaxTokens(cfg.Guard.MaxTokens),
				)

				guardCtx, cancel := context.WithTimeout(ctx, cfg.Guard.Timeout)
				defer cancel()

				verdict := g.Validate(guardCtx, args[0], msgContext, workspaceID)
				if verdict.IsSafe {
					fmt.Println("safe")
					return nil
				}
				return fmt.Errorf("blocked: %s", verdict.Reason)
			})
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace ID (required)")
	cmd.Flags().StringVar(&msgContext, "context", "", "Conversation context for the classifier")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}
