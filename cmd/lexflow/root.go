package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lexflow",
	Short: "Legal work orchestrator",
	Long: `Lexflow turns natural-language legal requests into orchestrated
agent work: it classifies the request, builds an execution plan across
specialized agents (research, drafting, discovery review, contract
review, timeline), runs the plan with dependency ordering, and caches
results so repeated questions are answered instantly.

Requests can be scoped to a matter with --matter; without one the
request runs in the general scope.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
