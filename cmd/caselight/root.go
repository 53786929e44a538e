package main

import (
	"github.com/spf13/cobra"

	"github.com/caselight/caselight/internal/api"
	"github.com/caselight/caselight/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "caselight",
	Short: "Case-isolated discovery document processing and retrieval",
	Long: `Caselight ingests discovery production PDFs, splits them into logical
documents, and indexes them for hybrid retrieval, one vector namespace per
case.

The pipeline includes:
  - Page feature extraction and logical document boundary detection
  - Document type classification with a deterministic pass and LLM fallback
  - Token-bounded chunking with dense, keyword, and citation vectors
  - Content-hash deduplication across production batches
  - Structured fact extraction with similarity-based merging`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.caselight/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "caselight home directory (default: ~/.caselight)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
