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
	"github.com/JeremyIV/summary-pyramid/internal/rollup"
	"github.com/JeremyIV/summary-pyramid/internal/segment"
	"github.com/JeremyIV/summary-pyramid/internal/summarize"
	"github.com/spf13/cobra"
)

var rollupOpts queryOptions

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Fold a document into one running summary and answer a query",
	Long: `Rollup summarizes the first chunk, then folds each following chunk into
the running summary one stage at a time. Slower than the pyramid but keeps
a single narrative thread; every intermediate stage is written out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runRollup(ctx)
	},
}

func init() {
	addQueryFlags(rollupCmd, &rollupOpts, "rollup_output")
	rootCmd.AddCommand(rollupCmd)
}

func runRollup(ctx context.Context) error {
	log := newLogger()

	query, err := resolveQuery(rollupOpts.query)
	if err != nil {
		return err
	}

	client, err := newAnthropicClient(rollupOpts.model)
	if err != nil {
		return err
	}
	defer client.Close()

	meter, err := newMeter(&rollupOpts, client, log)
	if err != nil {
		return err
	}

	formatQueryHeader(os.Stdout, rollupOpts.document, query, "rollup")

	doc, err := document.ReadFile(rollupOpts.document)
	if err != nil {
		return err
	}

	chunks, err := segment.New(meter, log).Split(ctx, doc.Text, rollupOpts.tokensPerChunk)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%s contains no extractable text", rollupOpts.document)
	}
	formatChunkCount(os.Stdout, len(chunks))

	s := summarize.NewSummarizer(client, query, rollupOpts.params())
	runner := rollup.NewRunner(s, log)
	runner.Progress = func(done, total int) {
		formatStepDone(os.Stdout, fmt.Sprintf("stage %d/%d", done, total))
	}

	start := time.Now()
	res, err := runner.Run(ctx, chunks)
	if err != nil {
		return err
	}

	answer, err := s.Answer(ctx, summarize.AnswerRequest{
		FinalSummary: res.Final(),
		TotalChunks:  res.TotalChunks,
	})
	if err != nil {
		return err
	}

	if err := output.Prepare(rollupOpts.outputDir, rollupOpts.clearOutput); err != nil {
		return err
	}
	info := output.Info{
		Document:           rollupOpts.document,
		Query:              query,
		TokensPerChunk:     rollupOpts.tokensPerChunk,
		TokensPerSelection: rollupOpts.tokensPerSelection,
		SummaryTokenLimit:  rollupOpts.summaryTokens,
	}
	if err := output.WriteRollup(rollupOpts.outputDir, res); err != nil {
		return err
	}
	if err := output.WriteRollupMetadata(rollupOpts.outputDir, info, res); err != nil {
		return err
	}
	if err := output.WriteFinalSummary(rollupOpts.outputDir, res.Final()); err != nil {
		return err
	}
	if err := output.WriteAnswer(rollupOpts.outputDir, answer); err != nil {
		return err
	}

	formatAnswer(os.Stdout, answer)
	formatRollupSummary(os.Stdout, res.TotalChunks, len(res.History), rollupOpts.outputDir, time.Since(start))
	return nil
}
