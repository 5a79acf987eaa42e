package pyramid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JeremyIV/summary-pyramid/internal/segment"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type funcReducer struct {
	chunks    func(context.Context, ChunkWindow) (string, error)
	summaries func(context.Context, SummaryWindow) (string, error)
}

func (r funcReducer) ReduceChunks(ctx context.Context, req ChunkWindow) (string, error) {
	return r.chunks(ctx, req)
}

func (r funcReducer) ReduceSummaries(ctx context.Context, req SummaryWindow) (string, error) {
	return r.summaries(ctx, req)
}

func makeChunks(n int) []segment.Chunk {
	chunks := make([]segment.Chunk, n)
	for i := range chunks {
		chunks[i] = segment.Chunk{Text: fmt.Sprintf("c%d ", i), Index: i, Tokens: 1}
	}
	return chunks
}

func TestBuild_TwoLevelPyramid(t *testing.T) {
	var mu sync.Mutex
	var baseReqs []ChunkWindow
	var recReqs []SummaryWindow

	r := funcReducer{
		chunks: func(_ context.Context, req ChunkWindow) (string, error) {
			mu.Lock()
			baseReqs = append(baseReqs, req)
			mu.Unlock()
			return fmt.Sprintf("base[%d-%d]", req.RangeStart, req.RangeEnd), nil
		},
		summaries: func(_ context.Context, req SummaryWindow) (string, error) {
			mu.Lock()
			recReqs = append(recReqs, req)
			mu.Unlock()
			return fmt.Sprintf("level%d[%d-%d]", req.Level+1, req.WindowStart, req.WindowEnd), nil
		},
	}

	cfg := Config{WindowSize: 10, Stride: 9, RecursiveWindowSize: 5, RecursiveStride: 4, MaxConcurrent: 4, MaxRetries: 1}
	p, err := NewBuilder(r, cfg, discardLogger()).Build(context.Background(), makeChunks(23))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.TotalChunks != 23 {
		t.Errorf("expected 23 total chunks, got %d", p.TotalChunks)
	}
	if len(p.Levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(p.Levels))
	}

	wantRanges := []Window{{0, 9}, {9, 18}, {18, 22}}
	if len(p.Levels[0]) != len(wantRanges) {
		t.Fatalf("expected %d base summaries, got %d", len(wantRanges), len(p.Levels[0]))
	}
	for i, s := range p.Levels[0] {
		if s.RangeStart != wantRanges[i].Start || s.RangeEnd != wantRanges[i].End {
			t.Errorf("base summary %d: expected range %v, got [%d,%d]", i, wantRanges[i], s.RangeStart, s.RangeEnd)
		}
	}

	top := p.Top()
	if top.RangeStart != 0 || top.RangeEnd != 22 {
		t.Errorf("expected top range [0,22], got [%d,%d]", top.RangeStart, top.RangeEnd)
	}
	if top.Text != "level2[0-2]" {
		t.Errorf("unexpected top text %q", top.Text)
	}

	// Base requests arrive in completion order; sort by range for checks.
	sort.Slice(baseReqs, func(i, j int) bool { return baseReqs[i].RangeStart < baseReqs[j].RangeStart })
	if len(baseReqs) != 3 {
		t.Fatalf("expected 3 base reductions, got %d", len(baseReqs))
	}
	first := baseReqs[0]
	if first.TotalChunks != 23 {
		t.Errorf("expected total chunks 23 in request, got %d", first.TotalChunks)
	}
	if !strings.Contains(first.Content, "c0 ") || !strings.Contains(first.Content, "c9 ") {
		t.Errorf("first window content missing chunks: %q", first.Content)
	}
	if strings.Contains(first.Content, "c10 ") {
		t.Errorf("first window content leaks chunk 10: %q", first.Content)
	}
	// Overlapping windows share their boundary chunk.
	if !strings.Contains(baseReqs[1].Content, "c9 ") {
		t.Errorf("second window should include chunk 9: %q", baseReqs[1].Content)
	}

	if len(recReqs) != 1 {
		t.Fatalf("expected 1 recursive reduction, got %d", len(recReqs))
	}
	rec := recReqs[0]
	if rec.Level != 1 || rec.LevelTotal != 3 || rec.TotalChunks != 23 {
		t.Errorf("unexpected recursive request metadata: %+v", rec)
	}
	if rec.WindowStart != 0 || rec.WindowEnd != 2 {
		t.Errorf("expected recursive window [0,2], got [%d,%d]", rec.WindowStart, rec.WindowEnd)
	}
	if len(rec.Summaries) != 3 || rec.Summaries[0].RangeStart != 0 || rec.Summaries[2].RangeEnd != 22 {
		t.Errorf("unexpected recursive window summaries: %+v", rec.Summaries)
	}
}

func TestBuild_SingleChunkSingleLevel(t *testing.T) {
	var calls atomic.Int32
	r := funcReducer{
		chunks: func(context.Context, ChunkWindow) (string, error) {
			calls.Add(1)
			return "should not happen", nil
		},
		summaries: func(context.Context, SummaryWindow) (string, error) {
			calls.Add(1)
			return "should not happen", nil
		},
	}

	p, err := NewBuilder(r, DefaultConfig(), discardLogger()).Build(context.Background(), makeChunks(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.TotalChunks != 1 {
		t.Errorf("expected 1 total chunk, got %d", p.TotalChunks)
	}
	if len(p.Levels) != 1 {
		t.Fatalf("expected 1 level, got %d", len(p.Levels))
	}
	top := p.Top()
	if top.Text != "c0 " || top.RangeStart != 0 || top.RangeEnd != 0 {
		t.Errorf("unexpected top summary: %+v", top)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no reductions for a single chunk, got %d", calls.Load())
	}
}

func TestBuild_RejectsBadGeometry(t *testing.T) {
	ok := funcReducer{
		chunks:    func(context.Context, ChunkWindow) (string, error) { return "s", nil },
		summaries: func(context.Context, SummaryWindow) (string, error) { return "s", nil },
	}
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero window", Config{WindowSize: 0, Stride: 9, RecursiveWindowSize: 5, RecursiveStride: 4}},
		{"zero stride", Config{WindowSize: 10, Stride: 0, RecursiveWindowSize: 5, RecursiveStride: 4}},
		{"stride beyond window", Config{WindowSize: 10, Stride: 11, RecursiveWindowSize: 5, RecursiveStride: 4}},
		{"zero recursive window", Config{WindowSize: 10, Stride: 9, RecursiveWindowSize: 0, RecursiveStride: 4}},
		{"recursive stride beyond window", Config{WindowSize: 10, Stride: 9, RecursiveWindowSize: 5, RecursiveStride: 6}},
	}
	for _, tc := range cases {
		if _, err := NewBuilder(ok, tc.cfg, discardLogger()).Build(context.Background(), makeChunks(5)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}

	if _, err := NewBuilder(ok, DefaultConfig(), discardLogger()).Build(context.Background(), nil); err == nil {
		t.Error("expected error for empty chunk list")
	}
}

func TestBuild_RecursivePairFollowsBase(t *testing.T) {
	r := funcReducer{
		chunks:    func(context.Context, ChunkWindow) (string, error) { return "s", nil },
		summaries: func(context.Context, SummaryWindow) (string, error) { return "s", nil },
	}

	// Only the base pair is set; higher levels reuse it.
	cfg := Config{WindowSize: 5, Stride: 4, MaxConcurrent: 1, MaxRetries: 1}
	p, err := NewBuilder(r, cfg, discardLogger()).Build(context.Background(), makeChunks(17))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(p.Levels))
	}
	if len(p.Levels[0]) != 4 {
		t.Errorf("expected 4 base summaries, got %d", len(p.Levels[0]))
	}
}

func TestBuild_DetectsNonConvergence(t *testing.T) {
	ok := funcReducer{
		chunks:    func(context.Context, ChunkWindow) (string, error) { return "s", nil },
		summaries: func(context.Context, SummaryWindow) (string, error) { return "s", nil },
	}
	// Base pass shrinks 5 chunks to 3 summaries, but a recursive window of
	// 1 with stride 1 can never shrink further.
	cfg := Config{WindowSize: 2, Stride: 2, RecursiveWindowSize: 1, RecursiveStride: 1, MaxConcurrent: 1, MaxRetries: 1}
	_, err := NewBuilder(ok, cfg, discardLogger()).Build(context.Background(), makeChunks(5))
	if err == nil {
		t.Fatal("expected non-convergence error")
	}
	if !strings.Contains(err.Error(), "converge") {
		t.Errorf("expected convergence error, got: %v", err)
	}
}

func TestBuild_AbortsWithFailedWindow(t *testing.T) {
	boom := errors.New("model rejected request")
	r := funcReducer{
		chunks: func(_ context.Context, req ChunkWindow) (string, error) {
			if req.RangeStart == 9 {
				return "", boom
			}
			return "ok", nil
		},
		summaries: func(context.Context, SummaryWindow) (string, error) { return "ok", nil },
	}

	cfg := Config{WindowSize: 10, Stride: 9, RecursiveWindowSize: 5, RecursiveStride: 4, MaxConcurrent: 4, MaxRetries: 1}
	p, err := NewBuilder(r, cfg, discardLogger()).Build(context.Background(), makeChunks(23))
	if err == nil {
		t.Fatal("expected build to abort")
	}
	if p != nil {
		t.Error("expected no partial pyramid on failure")
	}

	var re *ReduceError
	if !errors.As(err, &re) {
		t.Fatalf("expected ReduceError, got %T: %v", err, err)
	}
	if re.Level != 1 {
		t.Errorf("expected failure at level 1, got %d", re.Level)
	}
	if re.Window != (Window{9, 18}) {
		t.Errorf("expected failed window {9 18}, got %v", re.Window)
	}
	if !errors.Is(err, boom) {
		t.Error("expected cause to be preserved")
	}
}

func TestBuild_RetriesTransientErrors(t *testing.T) {
	transient := errors.New("throttled")
	var calls atomic.Int32
	r := funcReducer{
		chunks: func(context.Context, ChunkWindow) (string, error) {
			if calls.Add(1) == 1 {
				return "", transient
			}
			return "recovered", nil
		},
		summaries: func(context.Context, SummaryWindow) (string, error) { return "s", nil },
	}

	cfg := Config{
		WindowSize: 10, Stride: 9, RecursiveWindowSize: 5, RecursiveStride: 4,
		MaxConcurrent: 1, MaxRetries: 3,
		Retryable: func(err error) bool { return errors.Is(err, transient) },
	}
	p, err := NewBuilder(r, cfg, discardLogger()).Build(context.Background(), makeChunks(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
	if p.Top().Text != "recovered" {
		t.Errorf("unexpected top text %q", p.Top().Text)
	}
}

func TestBuild_RetriesExhausted(t *testing.T) {
	transient := errors.New("throttled")
	var calls atomic.Int32
	r := funcReducer{
		chunks: func(context.Context, ChunkWindow) (string, error) {
			calls.Add(1)
			return "", transient
		},
		summaries: func(context.Context, SummaryWindow) (string, error) { return "s", nil },
	}

	cfg := Config{
		WindowSize: 10, Stride: 9, RecursiveWindowSize: 5, RecursiveStride: 4,
		MaxConcurrent: 1, MaxRetries: 1,
		Retryable: func(err error) bool { return errors.Is(err, transient) },
	}
	_, err := NewBuilder(r, cfg, discardLogger()).Build(context.Background(), makeChunks(3))
	if err == nil {
		t.Fatal("expected build to abort after retries")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", calls.Load())
	}
	var re *ReduceError
	if !errors.As(err, &re) {
		t.Fatalf("expected ReduceError, got %T", err)
	}
	if !errors.Is(err, transient) {
		t.Error("expected cause to be preserved")
	}
}

func TestBuild_BoundsConcurrency(t *testing.T) {
	var cur, peak atomic.Int32
	enter := func() {
		c := cur.Add(1)
		for {
			p := peak.Load()
			if c <= p || peak.CompareAndSwap(p, c) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		cur.Add(-1)
	}
	r := funcReducer{
		chunks: func(context.Context, ChunkWindow) (string, error) {
			enter()
			return "s", nil
		},
		summaries: func(context.Context, SummaryWindow) (string, error) {
			enter()
			return "s", nil
		},
	}

	cfg := Config{WindowSize: 1, Stride: 1, RecursiveWindowSize: 5, RecursiveStride: 4, MaxConcurrent: 2, MaxRetries: 1}
	p, err := NewBuilder(r, cfg, discardLogger()).Build(context.Background(), makeChunks(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("expected at most 2 concurrent reductions, saw %d", got)
	}

	sizes := make([]int, len(p.Levels))
	for i, lvl := range p.Levels {
		sizes[i] = len(lvl)
	}
	want := []int{10, 3, 1}
	if len(sizes) != len(want) {
		t.Fatalf("expected level sizes %v, got %v", want, sizes)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("expected level sizes %v, got %v", want, sizes)
		}
	}
}

func TestBuild_LevelBarrier(t *testing.T) {
	var baseDone atomic.Int32
	var violated atomic.Bool
	r := funcReducer{
		chunks: func(context.Context, ChunkWindow) (string, error) {
			time.Sleep(10 * time.Millisecond)
			baseDone.Add(1)
			return "s", nil
		},
		summaries: func(context.Context, SummaryWindow) (string, error) {
			if baseDone.Load() != 3 {
				violated.Store(true)
			}
			return "s", nil
		},
	}

	cfg := Config{WindowSize: 5, Stride: 4, RecursiveWindowSize: 5, RecursiveStride: 4, MaxConcurrent: 2, MaxRetries: 1}
	if _, err := NewBuilder(r, cfg, discardLogger()).Build(context.Background(), makeChunks(10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if violated.Load() {
		t.Error("recursive reduction started before the base level finished")
	}
}

func TestBuild_ReportsProgress(t *testing.T) {
	r := funcReducer{
		chunks:    func(context.Context, ChunkWindow) (string, error) { return "s", nil },
		summaries: func(context.Context, SummaryWindow) (string, error) { return "s", nil },
	}

	cfg := Config{WindowSize: 10, Stride: 9, RecursiveWindowSize: 5, RecursiveStride: 4, MaxConcurrent: 4, MaxRetries: 1}
	b := NewBuilder(r, cfg, discardLogger())
	var got [][3]int
	b.Progress = func(level, done, total int) {
		got = append(got, [3]int{level, done, total})
	}

	if _, err := b.Build(context.Background(), makeChunks(23)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 23 chunks reduce to 3 base windows, then 1 top window.
	want := [][3]int{{1, 1, 3}, {1, 2, 3}, {1, 3, 3}, {2, 1, 1}}
	if len(got) != len(want) {
		t.Fatalf("expected %d progress calls, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected progress %v, got %v", want, got)
		}
	}
}
