// Package main implements the rankd CLI for running ranking requests
// against a candidate set from the command line.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rankd",
	Short: "Relevance ranking for federated literature search",
	Long: `rankd ranks candidate documents by relevance to a free-text query,
streaming progressively refined tier results as JSON lines.`,
	Version: version,
}

func init() {
	rootCmd.AddCommand(rankCmd)
}
