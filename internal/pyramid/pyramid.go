package pyramid

import (
	"context"
	"fmt"
)

// Summary is one reduced window at some level of the pyramid. RangeStart and
// RangeEnd are 0-based inclusive indices of the document chunks it covers.
type Summary struct {
	Text       string
	RangeStart int
	RangeEnd   int
}

// Level is the ordered run of summaries produced by one reduction pass.
type Level []Summary

// Pyramid is the complete reduction of a document. Levels[0] is the base
// pass over document chunks; each later level reduces the one before it.
// The final level always holds exactly one summary covering every chunk.
type Pyramid struct {
	TotalChunks int
	Levels      []Level
}

// Top returns the single summary at the apex of the pyramid.
func (p *Pyramid) Top() Summary {
	last := p.Levels[len(p.Levels)-1]
	return last[0]
}

// ChunkWindow is the input for one base-level reduction: a window of
// document chunks concatenated in order.
type ChunkWindow struct {
	Content     string
	TotalChunks int
	RangeStart  int // 0-based inclusive chunk range
	RangeEnd    int
}

// SummaryWindow is the input for one higher-level reduction: a window of
// summaries from the level below.
type SummaryWindow struct {
	Summaries   []Summary
	Level       int // 1-based level the input summaries belong to
	WindowStart int // 0-based position of the first summary within its level
	WindowEnd   int
	LevelTotal  int // number of summaries at the input level
	TotalChunks int
}

// Reducer turns a window of material into a single summary. Implementations
// typically call a language model and may fail transiently.
type Reducer interface {
	ReduceChunks(ctx context.Context, req ChunkWindow) (string, error)
	ReduceSummaries(ctx context.Context, req SummaryWindow) (string, error)
}

// ReduceError reports the level and window where a reduction failed. Window
// positions index the material of the level below the one being produced.
type ReduceError struct {
	Level  int // 1-based level that was being produced
	Window Window
	Err    error
}

func (e *ReduceError) Error() string {
	return fmt.Sprintf("level %d: reduce window %d-%d: %v", e.Level, e.Window.Start+1, e.Window.End+1, e.Err)
}

func (e *ReduceError) Unwrap() error { return e.Err }
