// Command opsctl runs operator maintenance tasks against the live database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"disputedesk/internal/bootstrap"
	"disputedesk/internal/config"
	"disputedesk/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "opsctl",
		Short:         "Operator tooling for the dispute desk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(stripeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withContainer builds the dependency graph for one command run.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *bootstrap.Container) error) error {
	config.LoadEnv()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, false)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer c.Close()
	return fn(ctx, c)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
