// Citeguardd is a retrieval-grounded generation safety daemon.
//
// It ingests documents into citation-addressable chunks, screens queries
// and responses through guardrails, attributes generated answers back to
// their sources, and accounts for token spend.
//
// Usage:
//
//	# Start the server with defaults
//	citeguardd serve
//
//	# Start with a config file
//	citeguardd serve --config /etc/citeguard/config.yaml
//
//	# Ingest a document into a corpus
//	citeguardd ingest --corpus policies handbook.txt
//
//	# Ask a question
//	citeguardd query --corpus policies "When does term start?"
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	version   = "dev"
	gitCommit = "unknown"
)

var (
	configPath string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:     "citeguardd",
	Short:   "Retrieval-grounded generation safety daemon",
	Version: version + " (" + gitCommit + ")",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8520", "citeguardd server URL")

	serveCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(usageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
