package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JeremyIV/summary-pyramid/internal/document"
	"github.com/JeremyIV/summary-pyramid/internal/output"
	"github.com/JeremyIV/summary-pyramid/internal/pyramid"
	"github.com/JeremyIV/summary-pyramid/internal/segment"
	"github.com/JeremyIV/summary-pyramid/internal/summarize"
	"github.com/spf13/cobra"
)

var runOpts queryOptions

var (
	runWindowSize  int
	runStride      int
	runBaseWindow  int
	runBaseStride  int
	runConcurrency int
	runRetries     int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build a summary pyramid over a document and answer a query",
	Long: `Run splits the document into chunks, summarizes overlapping windows of
chunks, then reduces each level of summaries the same way until a single
summary remains and answers the query from it.

The window geometry applies at every level; --base-window-size and
--base-stride override the chunk level only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runPyramid(ctx)
	},
}

func init() {
	addQueryFlags(runCmd, &runOpts, "pyramid_output")
	runCmd.Flags().IntVarP(&runWindowSize, "window-size", "w", 5, "Items summarized per window")
	runCmd.Flags().IntVarP(&runStride, "stride", "s", 4, "Offset between window starts; must not exceed the window size")
	runCmd.Flags().IntVar(&runBaseWindow, "base-window-size", 0, "Window size for the chunk level (0 = same as --window-size)")
	runCmd.Flags().IntVar(&runBaseStride, "base-stride", 0, "Stride for the chunk level (0 = same as --stride)")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", pyramid.DefaultMaxConcurrent, "Windows summarized in parallel")
	runCmd.Flags().IntVar(&runRetries, "retries", pyramid.DefaultMaxRetries, "Attempts per window on retryable failures")
	rootCmd.AddCommand(runCmd)
}

func runPyramid(ctx context.Context) error {
	log := newLogger()

	query, err := resolveQuery(runOpts.query)
	if err != nil {
		return err
	}

	client, err := newAnthropicClient(runOpts.model)
	if err != nil {
		return err
	}
	defer client.Close()

	meter, err := newMeter(&runOpts, client, log)
	if err != nil {
		return err
	}

	baseSize, baseStride := runWindowSize, runStride
	if runBaseWindow > 0 {
		baseSize = runBaseWindow
	}
	if runBaseStride > 0 {
		baseStride = runBaseStride
	}

	formatQueryHeader(os.Stdout, runOpts.document, query, fmt.Sprintf("pyramid %d/%d", baseSize, baseStride))

	doc, err := document.ReadFile(runOpts.document)
	if err != nil {
		return err
	}

	chunks, err := segment.New(meter, log).Split(ctx, doc.Text, runOpts.tokensPerChunk)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%s contains no extractable text", runOpts.document)
	}
	formatChunkCount(os.Stdout, len(chunks))

	s := summarize.NewSummarizer(client, query, runOpts.params())
	b := pyramid.NewBuilder(s, pyramid.Config{
		WindowSize:          baseSize,
		Stride:              baseStride,
		RecursiveWindowSize: runWindowSize,
		RecursiveStride:     runStride,
		MaxConcurrent:       runConcurrency,
		MaxRetries:          runRetries,
		Retryable:           summarize.IsRetryable,
	}, log)

	lastLevel := 0
	b.Progress = func(level, done, total int) {
		if level != lastLevel {
			lastLevel = level
			formatLevelStart(os.Stdout, level, total)
		}
		formatStepDone(os.Stdout, fmt.Sprintf("window %d/%d", done, total))
	}

	start := time.Now()
	p, err := b.Build(ctx, chunks)
	if err != nil {
		return err
	}

	answer, err := s.Answer(ctx, summarize.AnswerRequest{
		FinalSummary: p.Top().Text,
		TotalChunks:  p.TotalChunks,
		Levels:       len(p.Levels),
	})
	if err != nil {
		return err
	}

	if err := output.Prepare(runOpts.outputDir, runOpts.clearOutput); err != nil {
		return err
	}
	info := output.Info{
		Document:           runOpts.document,
		Query:              query,
		TokensPerChunk:     runOpts.tokensPerChunk,
		TokensPerSelection: runOpts.tokensPerSelection,
		SummaryTokenLimit:  runOpts.summaryTokens,
		WindowSize:         baseSize,
		Stride:             baseStride,
	}
	if err := output.WritePyramid(runOpts.outputDir, p); err != nil {
		return err
	}
	if err := output.WritePyramidMetadata(runOpts.outputDir, info, p); err != nil {
		return err
	}
	if err := output.WriteFinalSummary(runOpts.outputDir, p.Top().Text); err != nil {
		return err
	}
	if err := output.WriteAnswer(runOpts.outputDir, answer); err != nil {
		return err
	}

	sizes := make([]int, len(p.Levels))
	for i, lvl := range p.Levels {
		sizes[i] = len(lvl)
	}
	formatAnswer(os.Stdout, answer)
	formatPyramidSummary(os.Stdout, p.TotalChunks, sizes, runOpts.outputDir, time.Since(start))
	return nil
}
