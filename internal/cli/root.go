// Package cli wires the cobra command tree over the ingestion pipeline.
package cli

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "crawlify",
	Short: "Bundestag DIP ingestion and semantic search",
	Long: `crawlify fetches legislative processes and printed matter from the
Bundestag DIP API, normalizes them into Postgres, and serves semantic
search over the stored records.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
