package main

import (
	"context"
	"fmt"

	"disputedesk/internal/bootstrap"
	"disputedesk/internal/services/audit"

	"github.com/spf13/cobra"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}
	cmd.AddCommand(auditVerifyCmd())
	return cmd
}

func auditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [resource-type] [resource-id]",
		Short: "Verify the hash chain of one resource's audit trail",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *bootstrap.Container) error {
				result, err := audit.Verify(ctx, c.Store, args[0], args[1])
				if err != nil {
					return err
				}
				if err := printJSON(cmd, result); err != nil {
					return err
				}
				if !result.Valid {
					return fmt.Errorf("audit chain broken at sequence %d: %s", result.BrokenAt, result.Reason)
				}
				return nil
			})
		},
	}
}
