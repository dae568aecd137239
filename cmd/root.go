// Package cmd defines the CLI commands for the pagekeep executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagekeep",
		Short: "Bookmark snapshot service",
		Long: `pagekeep stores readable snapshots of bookmarked web pages.
It accepts save submissions, schedules snapshot jobs through a message
broker, and serves the worker endpoint those jobs are delivered to.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (settings also load from PAGEKEEP_* environment variables)")

	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
