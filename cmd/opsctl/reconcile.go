package main

import (
	"context"

	"disputedesk/internal/bootstrap"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Complete or reverse stale staged refunds and retry failed alert effects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				report, err := c.Reconciler.RunOnce(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire pre-dispute alerts past their expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				expired, err := c.Reconciler.Sweep(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int{"expired": expired})
			})
		},
	}
}
