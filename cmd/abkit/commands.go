package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/abkit/pkg/config"
)

func buildServeCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the decision sweeper",
		Long: `Start the abkit service.

The service loads experiment definitions from DEFINITIONS_PATH, restores event
aggregates from the raw event log when Postgres is configured, serves the HTTP
API and runs the decision sweeper until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFiles...)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func buildMigrateCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFiles...)
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), cfg)
		},
	}
}

func buildValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "validate <definitions.yaml>",
		Short:   "Parse and validate an experiment definition file",
		Example: "  abkit validate examples/experiments.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args[0])
		},
	}
}

func buildAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "assign <definitions.yaml> <experiment> <participant>...",
		Short:   "Preview variant assignment for participants",
		Long:    "Preview the variant each participant would get once the experiment is running. Nothing is recorded.",
		Example: "  abkit assign examples/experiments.yaml checkout-button user-1 user-2",
		Args:    cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssign(cmd.OutOrStdout(), args[0], args[1], args[2:])
		},
	}
}
