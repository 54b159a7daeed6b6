// Package cmd wires the command-line interface.
package cmd

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "marketlens",
	Short: "MarketLens - conversational stock analysis backend",
	Long: `MarketLens serves a tool-calling AI analyst over HTTP: chat turns stream
as Server-Sent Events while the agent fetches quotes, financials, news,
sentiment, and forecasts on demand, backed by a pgvector knowledge base of
ingested news articles.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Running with no subcommand starts the server.
		return runServe(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
