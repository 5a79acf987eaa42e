package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JeremyIV/summary-pyramid/internal/pyramid"
	"github.com/JeremyIV/summary-pyramid/internal/rollup"
)

// Info describes a run for the metadata files.
type Info struct {
	Document           string
	Query              string
	TokensPerChunk     int
	TokensPerSelection int
	SummaryTokenLimit  int
	WindowSize         int
	Stride             int
}

// Prepare ensures dir exists, removing it first when clear is set.
func Prepare(dir string, clear bool) error {
	if clear {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clear output dir: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

// WritePyramid writes every summary of every level under dir, one directory
// per level, each summary named by the 1-based chunk range it covers.
func WritePyramid(dir string, p *pyramid.Pyramid) error {
	for i, level := range p.Levels {
		levelDir := filepath.Join(dir, fmt.Sprintf("level_%d", i+1))
		if err := os.MkdirAll(levelDir, 0o755); err != nil {
			return fmt.Errorf("create level dir: %w", err)
		}
		for _, sum := range level {
			name := fmt.Sprintf("chunks_%d-%d.txt", sum.RangeStart+1, sum.RangeEnd+1)
			if err := os.WriteFile(filepath.Join(levelDir, name), []byte(sum.Text), 0o644); err != nil {
				return fmt.Errorf("write summary %s: %w", name, err)
			}
		}
	}
	return nil
}

// WritePyramidMetadata writes pyramid_metadata.txt describing the run and
// the shape of every level.
func WritePyramidMetadata(dir string, info Info, p *pyramid.Pyramid) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", info.Document)
	fmt.Fprintf(&b, "Query: %s\n", info.Query)
	fmt.Fprintf(&b, "Total document chunks: %d\n", p.TotalChunks)
	fmt.Fprintf(&b, "Tokens per chunk: %d\n", info.TokensPerChunk)
	fmt.Fprintf(&b, "Tokens per selection: %d\n", info.TokensPerSelection)
	fmt.Fprintf(&b, "Window size: %d, stride: %d\n", info.WindowSize, info.Stride)
	fmt.Fprintf(&b, "Total levels in pyramid: %d\n\n", len(p.Levels))

	b.WriteString("Pyramid structure:\n")
	for i, level := range p.Levels {
		fmt.Fprintf(&b, "Level %d: %d summaries\n", i+1, len(level))
		for j, sum := range level {
			fmt.Fprintf(&b, "  Summary %d: Chunks %d-%d\n", j+1, sum.RangeStart+1, sum.RangeEnd+1)
		}
	}
	return writeFile(dir, "pyramid_metadata.txt", b.String())
}

// WriteRollup writes each stage of the fold history under dir/summaries.
func WriteRollup(dir string, result *rollup.Result) error {
	summariesDir := filepath.Join(dir, "summaries")
	if err := os.MkdirAll(summariesDir, 0o755); err != nil {
		return fmt.Errorf("create summaries dir: %w", err)
	}
	n := len(result.History)
	for i, summary := range result.History {
		name := fmt.Sprintf("summary_stage_%d_of_%d.txt", i+1, n)
		if err := os.WriteFile(filepath.Join(summariesDir, name), []byte(summary), 0o644); err != nil {
			return fmt.Errorf("write stage %d: %w", i+1, err)
		}
	}
	return nil
}

// WriteRollupMetadata writes rollup_metadata.txt describing the run and the
// fold timeline.
func WriteRollupMetadata(dir string, info Info, result *rollup.Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", info.Document)
	fmt.Fprintf(&b, "Query: %s\n", info.Query)
	fmt.Fprintf(&b, "Total document chunks: %d\n", result.TotalChunks)
	fmt.Fprintf(&b, "Tokens per chunk: %d\n", info.TokensPerChunk)
	fmt.Fprintf(&b, "Tokens per selection: %d\n", info.TokensPerSelection)
	fmt.Fprintf(&b, "Summary token limit: %d\n", info.SummaryTokenLimit)
	fmt.Fprintf(&b, "Total summary stages: %d\n\n", len(result.History))

	b.WriteString("Processing timeline:\n")
	for i := 0; i < result.TotalChunks; i++ {
		if i == 0 {
			b.WriteString("Stage 1: Initial summary of chunk 1\n")
		} else {
			fmt.Fprintf(&b, "Stage %d: Updated summary incorporating chunk %d\n", i+1, i+1)
		}
	}
	return writeFile(dir, "rollup_metadata.txt", b.String())
}

// WriteAnswer writes final_answer.txt.
func WriteAnswer(dir, answer string) error {
	return writeFile(dir, "final_answer.txt", answer)
}

// WriteFinalSummary writes final_summary.txt.
func WriteFinalSummary(dir, summary string) error {
	return writeFile(dir, "final_summary.txt", summary)
}

func writeFile(dir, name, content string) error {
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
