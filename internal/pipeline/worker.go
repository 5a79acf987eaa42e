package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/JeremyIV/summary-pyramid/internal/document"
	"github.com/JeremyIV/summary-pyramid/internal/output"
	"github.com/JeremyIV/summary-pyramid/internal/pyramid"
	"github.com/JeremyIV/summary-pyramid/internal/rollup"
	"github.com/JeremyIV/summary-pyramid/internal/segment"
	"github.com/JeremyIV/summary-pyramid/internal/summarize"
)

// WorkerOptions carries the per-job processing knobs.
type WorkerOptions struct {
	TokensPerChunk int
	Params         summarize.Params
	Pyramid        pyramid.Config
	PDFFallback    bool

	// OutputRoot, when set, receives every completed job's files under a
	// per-job directory.
	OutputRoot string
}

// Worker processes a single query job end to end.
type Worker struct {
	claude *summarize.Client
	seg    *segment.Segmenter
	log    *slog.Logger
	opts   WorkerOptions
}

func NewWorker(claude *summarize.Client, seg *segment.Segmenter, log *slog.Logger, opts WorkerOptions) *Worker {
	return &Worker{claude: claude, seg: seg, log: log, opts: opts}
}

// Process runs the full query pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "strategy", job.Strategy)

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	loader, err := document.ForFile(job.Filename)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	if pl, ok := loader.(*document.PDFLoader); ok {
		pl.FallbackPdftotext = w.opts.PDFFallback
	}

	doc, err := loader.Load(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}

	// Phase 2: Segment
	job.SetStatus(StatusSegmenting, "segmenting")
	chunks, err := w.seg.Split(ctx, doc.Text, w.tokensPerChunk(job))
	if err != nil {
		log.Error("segmentation failed", "error", err)
		job.AddError(fmt.Sprintf("segment: %s", err))
		job.SetStatus(StatusFailed, "segmenting")
		return
	}
	job.SetTotalChunks(len(chunks))
	log.Info("segmented document", "chunks", len(chunks))

	if len(chunks) == 0 {
		log.Warn("no chunks produced")
		job.AddError("no extractable content")
		job.SetStatus(StatusFailed, "segmenting")
		return
	}

	// Phase 3: Reduce
	job.SetStatus(StatusReducing, "reducing")
	s := summarize.NewSummarizer(w.claude, job.Query, w.opts.Params)

	res := &Result{}
	switch job.Strategy {
	case StrategyRollup:
		runner := rollup.NewRunner(s, log)
		runner.Progress = func(done, total int) { job.SetReduceProgress(0, done, total) }
		result, err := runner.Run(ctx, chunks)
		if err != nil {
			log.Error("rollup failed", "error", err)
			job.AddError(err.Error())
			job.SetStatus(StatusFailed, "reducing")
			return
		}
		res.Rollup = result
	default:
		cfg := w.opts.Pyramid
		if cfg.Retryable == nil {
			cfg.Retryable = summarize.IsRetryable
		}
		builder := pyramid.NewBuilder(s, cfg, log)
		builder.Progress = func(level, done, total int) { job.SetReduceProgress(level, done, total) }
		p, err := builder.Build(ctx, chunks)
		if err != nil {
			log.Error("pyramid build failed", "error", err)
			job.AddError(err.Error())
			job.SetStatus(StatusFailed, "reducing")
			return
		}
		res.Pyramid = p
	}

	// Phase 4: Answer
	job.SetStatus(StatusAnswering, "answering")
	areq := summarize.AnswerRequest{TotalChunks: len(chunks)}
	if res.Pyramid != nil {
		areq.FinalSummary = res.Pyramid.Top().Text
		areq.Levels = len(res.Pyramid.Levels)
	} else {
		areq.FinalSummary = res.Rollup.Final()
	}

	answer, err := s.Answer(ctx, areq)
	if err != nil {
		log.Error("answer failed", "error", err)
		job.AddError(fmt.Sprintf("answer: %s", err))
		job.SetStatus(StatusFailed, "answering")
		return
	}
	res.Answer = answer
	job.SetResult(res)

	if w.opts.OutputRoot != "" {
		if err := w.writeOutputs(job, res); err != nil {
			log.Error("output write failed", "error", err)
			job.AddError(fmt.Sprintf("write output: %s", err))
		}
	}

	job.SetStatus(StatusCompleted, "done")
	log.Info("query complete", "chunks", len(chunks))
}

func (w *Worker) tokensPerChunk(job *Job) int {
	if job.TokensPerChunk > 0 {
		return job.TokensPerChunk
	}
	return w.opts.TokensPerChunk
}

// writeOutputs mirrors a completed job onto disk under its own directory.
func (w *Worker) writeOutputs(job *Job, res *Result) error {
	dir := filepath.Join(w.opts.OutputRoot, job.ID)
	if err := output.Prepare(dir, false); err != nil {
		return err
	}
	info := output.Info{
		Document:           job.Filename,
		Query:              job.Query,
		TokensPerChunk:     w.tokensPerChunk(job),
		TokensPerSelection: w.opts.Params.TokensPerSelection,
		SummaryTokenLimit:  w.opts.Params.SummaryTokenLimit,
		WindowSize:         w.opts.Pyramid.WindowSize,
		Stride:             w.opts.Pyramid.Stride,
	}
	switch {
	case res.Pyramid != nil:
		if err := output.WritePyramid(dir, res.Pyramid); err != nil {
			return err
		}
		if err := output.WritePyramidMetadata(dir, info, res.Pyramid); err != nil {
			return err
		}
		if err := output.WriteFinalSummary(dir, res.Pyramid.Top().Text); err != nil {
			return err
		}
	case res.Rollup != nil:
		if err := output.WriteRollup(dir, res.Rollup); err != nil {
			return err
		}
		if err := output.WriteRollupMetadata(dir, info, res.Rollup); err != nil {
			return err
		}
		if err := output.WriteFinalSummary(dir, res.Rollup.Final()); err != nil {
			return err
		}
	}
	return output.WriteAnswer(dir, res.Answer)
}
