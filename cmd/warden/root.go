package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Governance-gated task orchestrator",
	Long: `Warden routes tasks through a governed execution loop: each task is
classified to a capability tier, dispatched to an isolated worker session,
and its proposed changes are verified against quality gates and a
no-regression baseline before anything touches the project tree.

Failing (actor, resource scope) pairs trip a circuit breaker that pauses
dispatch until a cool-down probe succeeds. Outcomes the loop cannot resolve
on its own escalate to a human with a durable review artifact.

Typical flow:
  warden init                # set up .warden/ in the project
  warden add tasks.yaml      # queue tasks
  warden run                 # execute the loop
  warden status              # inspect progress and escalations`,
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
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}
