package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.1.0"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rapo",
		Short:         "Modifier graph tooling for the prompt engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newBuildCommand())
	cmd.AddCommand(newInspectCommand())
	cmd.AddCommand(newPushCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rapo version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "rapo %s\n", version)
			return nil
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
