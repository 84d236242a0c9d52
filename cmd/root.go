// Package cmd wires the mirra service's command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mirra",
	Short: "Mirra - personal knowledge base chat service",
	Long: `Mirra ingests a user's documents into a searchable knowledge base and
answers chat messages grounded in the most relevant fragments, optionally
speaking as the document owner.

Run "mirra serve" to start the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
