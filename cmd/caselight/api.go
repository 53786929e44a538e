package main

import (
	"github.com/spf13/cobra"

	"github.com/caselight/caselight/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running caselight server via HTTP.

These commands require a running server (caselight serve).
Use --server to specify a custom server URL.

Examples:
  caselight api health                       # Check server health
  caselight api discovery process --case X   # Submit a processing job
  caselight api discovery status <id>        # Get a job snapshot
  caselight api facts list <case>            # List a case's facts`,
}

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discovery processing and retrieval commands",
}

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Fact management commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ServerStatusEndpoint{}).Command(getServerURL))

	// Discovery as subcommand group
	discoveryCmd.AddCommand((&endpoints.ProcessEndpoint{}).Command(getServerURL))
	discoveryCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))
	discoveryCmd.AddCommand((&endpoints.CancelEndpoint{}).Command(getServerURL))
	discoveryCmd.AddCommand((&endpoints.EventsEndpoint{}).Command(getServerURL))
	discoveryCmd.AddCommand((&endpoints.SearchEndpoint{}).Command(getServerURL))
	discoveryCmd.AddCommand((&endpoints.ListDocumentsEndpoint{}).Command(getServerURL))
	discoveryCmd.AddCommand((&endpoints.DeleteDocumentEndpoint{}).Command(getServerURL))

	// Facts as subcommand group
	factsCmd.AddCommand((&endpoints.ListFactsEndpoint{}).Command(getServerURL))
	factsCmd.AddCommand((&endpoints.EditFactEndpoint{}).Command(getServerURL))
	factsCmd.AddCommand((&endpoints.DeleteFactEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(discoveryCmd)
	apiCmd.AddCommand(factsCmd)
	rootCmd.AddCommand(apiCmd)
}
