package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "fieldroute",
		Short:         "Schema inference and rule-based routing for work record batches",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newInferCommand())
	rootCmd.AddCommand(newIngestCommand())

	return rootCmd
}
