package main

import (
	"context"
	"time"

	"disputedesk/internal/bootstrap"
	"disputedesk/internal/services/stripesync"

	"github.com/spf13/cobra"
)

func stripeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stripe",
		Short: "Card processor integration",
	}
	cmd.AddCommand(stripeSyncCmd())
	return cmd
}

func stripeSyncCmd() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import Stripe disputes as dispute cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				source, err := stripesync.NewStripeSource(c.Config.StripeSecretKey)
				if err != nil {
					return err
				}
				syncer := stripesync.NewSyncer(source, c.Disputes, c.Log)
				result, err := syncer.Sync(ctx, time.Now().Add(-since))
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().DurationVar(&since, "since", 7*24*time.Hour, "How far back to look for disputes")
	return cmd
}
