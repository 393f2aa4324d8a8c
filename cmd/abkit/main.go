// Command abkit runs the experimentation service and offline tooling around
// experiment definition files.
//
//	abkit serve                          # HTTP API and decision sweeper
//	abkit validate experiments.yaml      # check definitions
//	abkit assign experiments.yaml checkout-button user-1 user-2
//	abkit migrate                        # apply Postgres migrations
//
// Configuration is read from the environment and an optional .env file; see
// package config for the variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/abkit/pkg/logger"
)

// Build information, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		logger.New(logger.WithFormat(logger.FormatText), logger.WithOutput(os.Stderr)).
			Error("command failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:          "abkit",
		Short:        "Experimentation service: assignment, metrics, analysis and rollout decisions",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Load variables from these .env files (default .env when present)")

	root.AddCommand(
		buildServeCmd(&envFiles),
		buildMigrateCmd(&envFiles),
		buildValidateCmd(),
		buildAssignCmd(),
	)
	return root
}
