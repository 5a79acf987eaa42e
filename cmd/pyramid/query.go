package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/JeremyIV/summary-pyramid/internal/summarize"
	"github.com/JeremyIV/summary-pyramid/internal/tokens"
	"github.com/spf13/cobra"
)

// queryOptions holds the flags shared by the run and rollup commands.
type queryOptions struct {
	document           string
	query              string
	model              string
	contextWindow      int
	tokensPerSelection int
	tokensPerChunk     int
	summaryTokens      int
	answerTokens       int
	outputDir          string
	clearOutput        bool
	encoding           string
	countTokens        string
}

func addQueryFlags(cmd *cobra.Command, o *queryOptions, defaultOutputDir string) {
	cmd.Flags().StringVarP(&o.document, "document", "d", "", "Path to the document to query (required)")
	cmd.Flags().StringVarP(&o.query, "query", "q", "", "Question to answer, or path to a file containing it (required)")
	cmd.Flags().StringVar(&o.model, "model", os.Getenv("ANTHROPIC_MODEL"), "Anthropic model id (default "+summarize.DefaultModel+")")
	cmd.Flags().IntVar(&o.contextWindow, "context-window", 100000, "Model context window budget in tokens")
	cmd.Flags().IntVar(&o.tokensPerSelection, "tokens-per-selection", 5000, "Token budget for the text quoted into each prompt")
	cmd.Flags().IntVar(&o.tokensPerChunk, "tokens-per-chunk", 1000, "Token budget per document chunk")
	cmd.Flags().IntVar(&o.summaryTokens, "summary-token-limit", 2000, "Token limit for each summary response")
	cmd.Flags().IntVar(&o.answerTokens, "answer-token-limit", 4000, "Token limit for the final answer")
	cmd.Flags().StringVarP(&o.outputDir, "output-dir", "o", defaultOutputDir, "Directory for summaries, metadata, and the answer")
	cmd.Flags().BoolVar(&o.clearOutput, "clear-output", false, "Remove the output directory before writing")
	cmd.Flags().StringVar(&o.encoding, "encoding", tokens.DefaultEncoding, "tiktoken encoding for local token counts")
	cmd.Flags().StringVar(&o.countTokens, "count-tokens", "local", "Token count backend: local, api, or estimate")
	cmd.MarkFlagRequired("document")
	cmd.MarkFlagRequired("query")
}

// newLogger returns the CLI logger. Warnings only unless --verbose; progress
// goes to stdout through the styled formatters, so logs stay on stderr.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveQuery returns the query text, reading it from a file when the flag
// value names one.
func resolveQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", fmt.Errorf("query is empty")
	}
	if info, err := os.Stat(q); err == nil && !info.IsDir() {
		data, err := os.ReadFile(q)
		if err != nil {
			return "", fmt.Errorf("read query file: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", fmt.Errorf("query file %s is empty", q)
		}
		return text, nil
	}
	return q, nil
}

// newAnthropicClient builds the LLM client from the environment key.
func newAnthropicClient(model string) (*summarize.Client, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	return summarize.NewClient(apiKey, model, 0), nil
}

// newMeter builds the token meter for the chosen counting backend. Only the
// api backend is rate limited; local counting is free.
func newMeter(o *queryOptions, client *summarize.Client, log *slog.Logger) (*tokens.Meter, error) {
	switch o.countTokens {
	case "local":
		tm, err := tokens.NewTiktokenMeasurer(o.encoding)
		if err != nil {
			return nil, fmt.Errorf("load token encoding: %w", err)
		}
		return tokens.NewMeter(tm, 0, log), nil
	case "api":
		return tokens.NewMeter(tokens.MeasureFunc(client.CountTokens), tokens.DefaultMeasureRPM, log), nil
	case "estimate":
		return tokens.NewMeter(nil, 0, log), nil
	default:
		return nil, fmt.Errorf("invalid --count-tokens %q (valid: local, api, estimate)", o.countTokens)
	}
}

func (o *queryOptions) params() summarize.Params {
	return summarize.Params{
		ContextWindow:      o.contextWindow,
		TokensPerSelection: o.tokensPerSelection,
		SummaryTokenLimit:  o.summaryTokens,
		AnswerTokenLimit:   o.answerTokens,
	}
}
