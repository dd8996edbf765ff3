package main

import (
	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Easel server via HTTP.

These commands require a running server (easel serve).
Use --server to specify a custom server URL.

Examples:
  easel api health                  # Check server health
  easel api decks list              # List all decks
  easel api decks get <id>          # Get a specific deck
  easel api generate start <id>     # Start batch generation`,
}

var decksCmd = &cobra.Command{
	Use:   "decks",
	Short: "Deck management commands",
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Batch generation commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8799", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StorageStatsEndpoint{}).Command(getServerURL))

	// Decks as subcommand group
	for _, ep := range endpoints.DeckCommands() {
		decksCmd.AddCommand(ep.Command(getServerURL))
	}

	// Generation as subcommand group
	for _, ep := range endpoints.GenerateCommands() {
		generateCmd.AddCommand(ep.Command(getServerURL))
	}

	apiCmd.AddCommand(decksCmd)
	apiCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(apiCmd)
}
