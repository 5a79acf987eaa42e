package main

import (
	"fmt"
	"os"

	"github.com/JeremyIV/summary-pyramid/internal/version"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "pyramid",
	Short: "Answer questions about documents too large for one context window",
	Long: `pyramid splits a document into token-budgeted chunks, summarizes
overlapping windows of chunks with an LLM, and keeps reducing each level of
summaries the same way until a single summary remains, then answers your
query from it.

The rollup subcommand folds chunks into one running summary sequentially
instead; serve runs the async HTTP query service.`,
}

func init() {
	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("pyramid %s\n", version.String()))
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log progress detail to stderr")
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
