package pyramid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JeremyIV/summary-pyramid/internal/segment"
)

// DefaultMaxConcurrent bounds how many windows reduce in parallel.
const DefaultMaxConcurrent = 4

// Config controls pyramid construction. Leaving both recursive fields
// zero applies the base pair to every level.
type Config struct {
	WindowSize          int // chunks per base-level window
	Stride              int // chunk advance between base-level windows
	RecursiveWindowSize int // summaries per window at higher levels
	RecursiveStride     int // summary advance between higher-level windows

	MaxConcurrent int // parallel reductions within a level
	MaxRetries    int // attempts per window before giving up

	// Retryable classifies reducer errors worth retrying. Nil means no
	// error is retried.
	Retryable func(error) bool
}

// DefaultConfig returns the standard window geometry: wide overlapping
// windows at the base, tighter ones above.
func DefaultConfig() Config {
	return Config{
		WindowSize:          10,
		Stride:              9,
		RecursiveWindowSize: 5,
		RecursiveStride:     4,
		MaxConcurrent:       DefaultMaxConcurrent,
		MaxRetries:          DefaultMaxRetries,
	}
}

// Validate rejects window geometry that cannot cover every chunk. A stride
// larger than its window size would leave chunks out of every window.
func (c Config) Validate() error {
	if c.WindowSize < 1 {
		return fmt.Errorf("window size must be at least 1, got %d", c.WindowSize)
	}
	if c.Stride < 1 {
		return fmt.Errorf("stride must be at least 1, got %d", c.Stride)
	}
	if c.Stride > c.WindowSize {
		return fmt.Errorf("stride %d exceeds window size %d and would skip chunks", c.Stride, c.WindowSize)
	}
	if c.RecursiveWindowSize < 1 {
		return fmt.Errorf("recursive window size must be at least 1, got %d", c.RecursiveWindowSize)
	}
	if c.RecursiveStride < 1 {
		return fmt.Errorf("recursive stride must be at least 1, got %d", c.RecursiveStride)
	}
	if c.RecursiveStride > c.RecursiveWindowSize {
		return fmt.Errorf("recursive stride %d exceeds window size %d and would skip summaries", c.RecursiveStride, c.RecursiveWindowSize)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.RecursiveWindowSize < 1 && c.RecursiveStride < 1 {
		c.RecursiveWindowSize = c.WindowSize
		c.RecursiveStride = c.Stride
	}
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// Builder reduces segmented documents into pyramids.
type Builder struct {
	reducer Reducer
	cfg     Config
	log     *slog.Logger

	// Progress, when set, is called after each completed window with the
	// 1-based level, the number of windows finished, and the window total
	// for that level. Calls are sequential.
	Progress func(level, done, total int)
}

func NewBuilder(reducer Reducer, cfg Config, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{reducer: reducer, cfg: cfg.withDefaults(), log: log}
}

// Build reduces chunks level by level until a single summary covers the
// whole document. A lone chunk is returned unreduced as a one-level
// pyramid. Levels are strict barriers: no window of a level starts
// before every window of the level below has finished. Any window that
// fails after retries aborts the build; no partial pyramid is returned.
func (b *Builder) Build(ctx context.Context, chunks []segment.Chunk) (*Pyramid, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to reduce")
	}

	total := len(chunks)
	if total == 1 {
		only := Summary{Text: chunks[0].Text, RangeStart: 0, RangeEnd: 0}
		return &Pyramid{TotalChunks: 1, Levels: []Level{{only}}}, nil
	}

	windows, err := PlanWindows(total, b.cfg.WindowSize, b.cfg.Stride)
	if err != nil {
		return nil, err
	}

	b.log.Info("building base level", "chunks", total, "windows", len(windows))
	base, err := b.reduceAll(ctx, windows, 1, b.baseReduce(chunks, total))
	if err != nil {
		return nil, err
	}

	p := &Pyramid{TotalChunks: total, Levels: []Level{base}}
	for {
		cur := p.Levels[len(p.Levels)-1]
		if len(cur) == 1 {
			break
		}

		windows, err := PlanWindows(len(cur), b.cfg.RecursiveWindowSize, b.cfg.RecursiveStride)
		if err != nil {
			return nil, err
		}
		if len(windows) >= len(cur) {
			return nil, fmt.Errorf("pyramid cannot converge: %d summaries reduce to %d windows (window size %d, stride %d)",
				len(cur), len(windows), b.cfg.RecursiveWindowSize, b.cfg.RecursiveStride)
		}

		level := len(p.Levels) + 1
		b.log.Info("building level", "level", level, "windows", len(windows))
		next, err := b.reduceAll(ctx, windows, level, b.recursiveReduce(cur, len(p.Levels), total))
		if err != nil {
			return nil, err
		}
		p.Levels = append(p.Levels, next)
	}

	b.log.Info("pyramid complete", "levels", len(p.Levels), "chunks", total)
	return p, nil
}

// reduceAll runs one reduction per window with bounded concurrency and
// retry, preserving window order in the returned level.
func (b *Builder) reduceAll(ctx context.Context, windows []Window, level int, reduce func(context.Context, Window) (Summary, error)) (Level, error) {
	type result struct {
		summary Summary
		err     error
		idx     int
	}
	results := make(chan result, len(windows))
	sem := make(chan struct{}, b.cfg.MaxConcurrent)

	for i, w := range windows {
		sem <- struct{}{}
		go func(i int, w Window) {
			defer func() { <-sem }()
			var summary Summary
			var lastErr error
			for attempt := 0; attempt < b.cfg.MaxRetries; attempt++ {
				summary, lastErr = reduce(ctx, w)
				if lastErr == nil || !b.retryable(lastErr) {
					break
				}
				b.log.Warn("retryable reduce error", "level", level, "window", i, "attempt", attempt, "error", lastErr)
				select {
				case <-time.After(Backoff(attempt)):
				case <-ctx.Done():
					results <- result{err: ctx.Err(), idx: i}
					return
				}
			}
			results <- result{summary: summary, err: lastErr, idx: i}
		}(i, w)
	}

	out := make(Level, len(windows))
	var reduceErr *ReduceError
	done := 0
	for range windows {
		r := <-results
		if r.err != nil {
			b.log.Error("reduce failed", "level", level, "window", r.idx, "error", r.err)
			if reduceErr == nil {
				reduceErr = &ReduceError{Level: level, Window: windows[r.idx], Err: r.err}
			}
			continue
		}
		out[r.idx] = r.summary
		done++
		if b.Progress != nil {
			b.Progress(level, done, len(windows))
		}
	}
	if reduceErr != nil {
		return nil, reduceErr
	}
	return out, nil
}

// baseReduce concatenates a window of chunk texts and hands them to the
// reducer.
func (b *Builder) baseReduce(chunks []segment.Chunk, total int) func(context.Context, Window) (Summary, error) {
	return func(ctx context.Context, w Window) (Summary, error) {
		var sb strings.Builder
		for _, c := range chunks[w.Start : w.End+1] {
			sb.WriteString(c.Text)
		}
		text, err := b.reducer.ReduceChunks(ctx, ChunkWindow{
			Content:     sb.String(),
			TotalChunks: total,
			RangeStart:  w.Start,
			RangeEnd:    w.End,
		})
		if err != nil {
			return Summary{}, err
		}
		return Summary{Text: text, RangeStart: w.Start, RangeEnd: w.End}, nil
	}
}

// recursiveReduce merges a window of summaries from the level below. The
// new summary covers everything from the first window member's range start
// to the last member's range end.
func (b *Builder) recursiveReduce(prev Level, inputLevel, total int) func(context.Context, Window) (Summary, error) {
	return func(ctx context.Context, w Window) (Summary, error) {
		win := prev[w.Start : w.End+1]
		text, err := b.reducer.ReduceSummaries(ctx, SummaryWindow{
			Summaries:   win,
			Level:       inputLevel,
			WindowStart: w.Start,
			WindowEnd:   w.End,
			LevelTotal:  len(prev),
			TotalChunks: total,
		})
		if err != nil {
			return Summary{}, err
		}
		return Summary{
			Text:       text,
			RangeStart: win[0].RangeStart,
			RangeEnd:   win[len(win)-1].RangeEnd,
		}, nil
	}
}

func (b *Builder) retryable(err error) bool {
	return b.cfg.Retryable != nil && b.cfg.Retryable(err)
}
