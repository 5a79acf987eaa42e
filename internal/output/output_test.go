package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JeremyIV/summary-pyramid/internal/pyramid"
	"github.com/JeremyIV/summary-pyramid/internal/rollup"
)

func testPyramid() *pyramid.Pyramid {
	return &pyramid.Pyramid{
		TotalChunks: 23,
		Levels: []pyramid.Level{
			{
				{Text: "base one", RangeStart: 0, RangeEnd: 9},
				{Text: "base two", RangeStart: 9, RangeEnd: 18},
				{Text: "base three", RangeStart: 18, RangeEnd: 22},
			},
			{
				{Text: "the top", RangeStart: 0, RangeEnd: 22},
			},
		},
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestWritePyramid_LevelLayout(t *testing.T) {
	dir := t.TempDir()
	if err := WritePyramid(dir, testPyramid()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		path string
		want string
	}{
		{"level_1/chunks_1-10.txt", "base one"},
		{"level_1/chunks_10-19.txt", "base two"},
		{"level_1/chunks_19-23.txt", "base three"},
		{"level_2/chunks_1-23.txt", "the top"},
	}
	for _, tc := range cases {
		got := readFile(t, filepath.Join(dir, tc.path))
		if got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.path, tc.want, got)
		}
	}
}

func TestWritePyramidMetadata_Format(t *testing.T) {
	dir := t.TempDir()
	info := Info{
		Document:           "voyage.txt",
		Query:              "What happened to the ship?",
		TokensPerChunk:     1000,
		TokensPerSelection: 5000,
		WindowSize:         10,
		Stride:             9,
	}
	if err := WritePyramidMetadata(dir, info, testPyramid()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `Document: voyage.txt
Query: What happened to the ship?
Total document chunks: 23
Tokens per chunk: 1000
Tokens per selection: 5000
Window size: 10, stride: 9
Total levels in pyramid: 2

Pyramid structure:
Level 1: 3 summaries
  Summary 1: Chunks 1-10
  Summary 2: Chunks 10-19
  Summary 3: Chunks 19-23
Level 2: 1 summaries
  Summary 1: Chunks 1-23
`
	got := readFile(t, filepath.Join(dir, "pyramid_metadata.txt"))
	if got != want {
		t.Errorf("metadata mismatch:\n--- want ---\n%s\n--- got ---\n%s", want, got)
	}
}

func TestWriteRollup_StageFiles(t *testing.T) {
	dir := t.TempDir()
	result := &rollup.Result{
		TotalChunks: 3,
		History:     []string{"after one", "after two", "after three"},
	}
	if err := WriteRollup(dir, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, want := range result.History {
		name := fmt.Sprintf("summary_stage_%d_of_3.txt", i+1)
		if got := readFile(t, filepath.Join(dir, "summaries", name)); got != want {
			t.Errorf("stage %d: expected %q, got %q", i+1, want, got)
		}
	}
}

func TestWriteRollupMetadata_Timeline(t *testing.T) {
	dir := t.TempDir()
	info := Info{
		Document:           "voyage.txt",
		Query:              "What happened?",
		TokensPerChunk:     1000,
		TokensPerSelection: 5000,
		SummaryTokenLimit:  2000,
	}
	result := &rollup.Result{
		TotalChunks: 3,
		History:     []string{"s1", "s2", "s3"},
	}
	if err := WriteRollupMetadata(dir, info, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := readFile(t, filepath.Join(dir, "rollup_metadata.txt"))
	wantLines := []string{
		"Summary token limit: 2000",
		"Total summary stages: 3",
		"Processing timeline:",
		"Stage 1: Initial summary of chunk 1",
		"Stage 2: Updated summary incorporating chunk 2",
		"Stage 3: Updated summary incorporating chunk 3",
	}
	for _, line := range wantLines {
		if !strings.Contains(got, line) {
			t.Errorf("metadata missing line %q:\n%s", line, got)
		}
	}
}

func TestWriteAnswerAndFinalSummary(t *testing.T) {
	dir := t.TempDir()
	if err := WriteAnswer(dir, "the answer"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := WriteFinalSummary(dir, "the summary"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readFile(t, filepath.Join(dir, "final_answer.txt")); got != "the answer" {
		t.Errorf("unexpected answer: %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "final_summary.txt")); got != "the summary" {
		t.Errorf("unexpected summary: %q", got)
	}
}

func TestPrepare_ClearRemovesStaleOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	if err := Prepare(dir, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stale := filepath.Join(dir, "level_1")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatalf("mk stale: %v", err)
	}
	if err := os.WriteFile(filepath.Join(stale, "chunks_1-2.txt"), []byte("old"), 0o644); err != nil {
		t.Fatalf("write stale: %v", err)
	}

	// Without clear, existing output is kept.
	if err := Prepare(dir, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(stale); err != nil {
		t.Fatalf("stale dir should survive prepare without clear: %v", err)
	}

	// With clear, the directory is recreated empty.
	if err := Prepare(dir, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale dir should be removed by clear")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir after clear, got %d entries", len(entries))
	}
}
