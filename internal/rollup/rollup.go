package rollup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JeremyIV/summary-pyramid/internal/segment"
)

// InitialRequest seeds the running summary from the first chunk.
type InitialRequest struct {
	Content     string
	TotalChunks int
}

// UpdateRequest folds one more chunk into the running summary.
type UpdateRequest struct {
	CurrentSummary string
	Content        string
	ChunkIndex     int // 0-based index of the chunk being folded in
	TotalChunks    int
}

// Folder carries a running summary forward one chunk at a time.
type Folder interface {
	FoldInitial(ctx context.Context, req InitialRequest) (string, error)
	FoldUpdate(ctx context.Context, req UpdateRequest) (string, error)
}

// Result is the complete fold history. History[i] is the running summary
// after chunks 0 through i have been incorporated.
type Result struct {
	TotalChunks int
	History     []string
}

// Final returns the summary covering every chunk.
func (r *Result) Final() string {
	return r.History[len(r.History)-1]
}

// Runner folds chunks sequentially. Order is inherent here: each fold
// depends on the summary before it, so there is no parallelism and the
// first failure aborts the run.
type Runner struct {
	folder Folder
	log    *slog.Logger

	// Progress, when set, is called after each completed fold.
	Progress func(done, total int)
}

func NewRunner(folder Folder, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{folder: folder, log: log}
}

// Run folds every chunk into a single running summary and returns the full
// stage history.
func (r *Runner) Run(ctx context.Context, chunks []segment.Chunk) (*Result, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to fold")
	}

	total := len(chunks)
	r.log.Info("starting rollup", "chunks", total)

	summary, err := r.folder.FoldInitial(ctx, InitialRequest{Content: chunks[0].Text, TotalChunks: total})
	if err != nil {
		return nil, fmt.Errorf("fold chunk 1 of %d: %w", total, err)
	}
	history := make([]string, 0, total)
	history = append(history, summary)
	r.progress(1, total)

	for i := 1; i < total; i++ {
		summary, err = r.folder.FoldUpdate(ctx, UpdateRequest{
			CurrentSummary: summary,
			Content:        chunks[i].Text,
			ChunkIndex:     i,
			TotalChunks:    total,
		})
		if err != nil {
			return nil, fmt.Errorf("fold chunk %d of %d: %w", i+1, total, err)
		}
		history = append(history, summary)
		r.progress(i+1, total)
	}

	r.log.Info("rollup complete", "stages", len(history))
	return &Result{TotalChunks: total, History: history}, nil
}

func (r *Runner) progress(done, total int) {
	if r.Progress != nil {
		r.Progress(done, total)
	}
}
