// Package cli implements the sentimentiq command line.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sentimentiq",
	Short: "Product detection and sentiment companion service",
	Long: `sentimentiq detects the product shown on a shopping page and keeps the
extension's current product in sync across tabs, storage and the popup store.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
