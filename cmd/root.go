package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the apiserver binary.
var rootCmd = &cobra.Command{
	Use:   "apiserver",
	Short: "Task management REST API",
	Long:  "Backend for the task management service: accounts, sessions, tasks and avatars.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
