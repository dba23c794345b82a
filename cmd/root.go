// Package cmd contains the quill CLI: serve, migrate, token, and
// version subcommands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Quill - streaming AI chat backend",
	Long: `Quill is a chat backend that streams AI responses over SSE,
persists conversation history in PostgreSQL, and routes each turn to a
text, image, or document backend chosen by an LLM classifier.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
