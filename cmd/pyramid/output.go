package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	// titleStyle for bold headers
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	// dimStyle for muted metadata text
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// successStyle for completed steps
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	// boxStyle for the completion summary
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)

	// headerBoxStyle for the run header
	headerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)

	// levelBannerStyle for reduction level banners
	levelBannerStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("255")).
				Background(lipgloss.Color("39")).
				Padding(0, 2)
)

// formatQueryHeader renders the run configuration box.
func formatQueryHeader(w io.Writer, document, query, mode string) {
	content := fmt.Sprintf("%s %s\n%s %s\n%s %s",
		dimStyle.Render("Document:"), titleStyle.Render(document),
		dimStyle.Render("Query:"), oneLine(query, 70),
		dimStyle.Render("Mode:"), titleStyle.Render(mode),
	)
	fmt.Fprintln(w, headerBoxStyle.Render(content))
}

// formatChunkCount reports the segmentation result.
func formatChunkCount(w io.Writer, n int) {
	noun := "chunks"
	if n == 1 {
		noun = "chunk"
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("segmented into %d %s", n, noun)))
}

// formatLevelStart renders the banner for a reduction level.
func formatLevelStart(w io.Writer, level, windows int) {
	noun := "windows"
	if windows == 1 {
		noun = "window"
	}
	banner := fmt.Sprintf(" LEVEL %d  %d %s ", level, windows, noun)
	fmt.Fprintln(w)
	fmt.Fprintln(w, levelBannerStyle.Render(banner))
}

// formatStepDone renders one completed reduction step.
func formatStepDone(w io.Writer, step string) {
	fmt.Fprintf(w, "%s %s\n", successStyle.Render("✓"), step)
}

// formatAnswer renders the final answer under a styled heading. The answer
// itself prints unstyled so long paragraphs flow with the terminal.
func formatAnswer(w io.Writer, answer string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Answer"))
	fmt.Fprintln(w, answer)
}

// formatPyramidSummary renders the completion box for a pyramid run.
func formatPyramidSummary(w io.Writer, totalChunks int, levelSizes []int, outputDir string, elapsed time.Duration) {
	noun := "chunks"
	if totalChunks == 1 {
		noun = "chunk"
	}
	shape := []string{fmt.Sprintf("%d %s", totalChunks, noun)}
	for _, n := range levelSizes {
		shape = append(shape, fmt.Sprintf("%d", n))
	}
	line1 := fmt.Sprintf("%s %s", dimStyle.Render("Shape:"), strings.Join(shape, " -> "))
	line2 := fmt.Sprintf("%s %.1fs  %s %s",
		dimStyle.Render("Duration:"), elapsed.Seconds(),
		dimStyle.Render("Output:"), outputDir,
	)
	content := titleStyle.Render("Pyramid Complete") + "\n" + line1 + "\n" + line2
	fmt.Fprintln(w)
	fmt.Fprintln(w, boxStyle.Render(content))
}

// formatRollupSummary renders the completion box for a rollup run.
func formatRollupSummary(w io.Writer, totalChunks, stages int, outputDir string, elapsed time.Duration) {
	line1 := fmt.Sprintf("%s %d  %s %d",
		dimStyle.Render("Chunks:"), totalChunks,
		dimStyle.Render("Stages:"), stages,
	)
	line2 := fmt.Sprintf("%s %.1fs  %s %s",
		dimStyle.Render("Duration:"), elapsed.Seconds(),
		dimStyle.Render("Output:"), outputDir,
	)
	content := titleStyle.Render("Rollup Complete") + "\n" + line1 + "\n" + line2
	fmt.Fprintln(w)
	fmt.Fprintln(w, boxStyle.Render(content))
}

// oneLine flattens s and shortens it to n runes for single-line display.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
