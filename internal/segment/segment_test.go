package segment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/JeremyIV/summary-pyramid/internal/tokens"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// estimateOnly builds a segmenter with no measurer configured.
func estimateOnly() *Segmenter {
	return New(tokens.NewMeter(nil, 0, discardLogger()), discardLogger())
}

// withMeasurer builds a segmenter whose measurer is the given function.
func withMeasurer(f func(text string) (int, error)) *Segmenter {
	m := tokens.NewMeter(tokens.MeasureFunc(func(_ context.Context, text string) (int, error) {
		return f(text)
	}), 60000, discardLogger())
	return New(m, discardLogger())
}

func TestSplit_ShortDocumentSingleChunk(t *testing.T) {
	doc := "First paragraph here.\n\nSecond paragraph here."
	chunks, err := estimateOnly().Split(context.Background(), doc, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("expected index 0, got %d", chunks[0].Index)
	}
	if !strings.Contains(chunks[0].Text, "First paragraph") || !strings.Contains(chunks[0].Text, "Second paragraph") {
		t.Errorf("expected both paragraphs in one chunk, got %q", chunks[0].Text)
	}
	if chunks[0].Tokens != tokens.Estimate("First paragraph here.")+tokens.Estimate("Second paragraph here.") {
		t.Errorf("unexpected token total %d", chunks[0].Tokens)
	}
}

func TestSplit_PacksParagraphsToBudget(t *testing.T) {
	// Six paragraphs of 10 words (15 estimated tokens each) with a budget
	// of 30 pack pairwise: 15+15 fits, a third would overflow.
	para := strings.TrimSpace(strings.Repeat("word ", 10))
	doc := strings.Join([]string{para, para, para, para, para, para}, "\n\n")

	chunks, err := estimateOnly().Split(context.Background(), doc, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d: expected index %d, got %d", i, i, c.Index)
		}
		if c.Tokens != 30 {
			t.Errorf("chunk %d: expected 30 tokens, got %d", i, c.Tokens)
		}
		if got := len(strings.Fields(c.Text)); got != 20 {
			t.Errorf("chunk %d: expected 20 words, got %d", i, got)
		}
	}
}

func TestSplit_OversizedParagraphSplitsOnSentences(t *testing.T) {
	// One paragraph of three 10-word sentences. The paragraph estimates at
	// 45 tokens against a budget of 20, so it falls to the sentence tier.
	sent := strings.TrimSpace(strings.Repeat("word ", 9)) + " end."
	para := sent + " " + sent + " " + sent

	chunks, err := estimateOnly().Split(context.Background(), para, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !strings.HasSuffix(c.Text, "end.") {
			t.Errorf("chunk %d: expected a whole sentence, got %q", i, c.Text)
		}
		if c.Tokens != 15 {
			t.Errorf("chunk %d: expected 15 tokens, got %d", i, c.Tokens)
		}
	}
}

func TestSplit_OversizedSentenceSplitsOnWords(t *testing.T) {
	// A single 100-word run with no sentence breaks and a budget of 10
	// lands in the word tier: 10 chunks of 10 words.
	sent := strings.TrimSpace(strings.Repeat("word ", 100))

	chunks, err := estimateOnly().Split(context.Background(), sent, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 10 {
		t.Fatalf("expected 10 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if got := len(strings.Fields(c.Text)); got != 10 {
			t.Errorf("chunk %d: expected 10 words, got %d", i, got)
		}
		if c.Tokens != 10 {
			t.Errorf("chunk %d: expected 10 tokens, got %d", i, c.Tokens)
		}
	}
}

func TestSplit_WordSequencePreserved(t *testing.T) {
	doc := "Opening paragraph with a handful of words.\n\n" +
		"A second paragraph. It has two sentences and rather more words than the opening one had.\n\n" +
		strings.TrimSpace(strings.Repeat("longword ", 40))

	chunks, err := estimateOnly().Split(context.Background(), doc, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	var joined []string
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d: expected index %d, got %d", i, i, c.Index)
		}
		joined = append(joined, c.Text)
	}

	got := strings.Fields(strings.Join(joined, " "))
	want := strings.Fields(doc)
	if len(got) != len(want) {
		t.Fatalf("expected %d words after reassembly, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("word %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSplit_EmptyDocument(t *testing.T) {
	for _, doc := range []string{"", "   ", "\n\n \n\n"} {
		chunks, err := estimateOnly().Split(context.Background(), doc, 100)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", doc, err)
		}
		if len(chunks) != 0 {
			t.Errorf("expected 0 chunks for %q, got %d", doc, len(chunks))
		}
	}
}

func TestSplit_InvalidBudget(t *testing.T) {
	for _, budget := range []int{0, -5} {
		if _, err := estimateOnly().Split(context.Background(), "some text", budget); err == nil {
			t.Errorf("expected error for budget %d", budget)
		}
	}
}

func TestSplit_MeasuredParagraphCost(t *testing.T) {
	// The paragraph estimates at 85 tokens against a budget of 100, above
	// the 0.8 measurement threshold, and the measurer doubles the estimate,
	// pushing it over budget and into the sentence tier.
	word := "abcdefghijkl"
	sent := strings.Repeat(word+" ", 18) + word + "."
	para := sent + " " + sent + " " + sent

	s := withMeasurer(func(text string) (int, error) {
		return 2 * tokens.Estimate(text), nil
	})
	chunks, err := s.Split(context.Background(), para, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Tokens != 56 {
			t.Errorf("chunk %d: expected measured 56 tokens, got %d", i, c.Tokens)
		}
		if c.Unverified {
			t.Errorf("chunk %d: expected verified chunk", i)
		}
	}
}

func TestSplit_MeasureFailureMarksUnverified(t *testing.T) {
	// Estimate 85 crosses the measurement threshold at budget 100, and the
	// measurer is down: the chunk keeps its estimate and is flagged.
	para := strings.TrimSpace(strings.Repeat("word ", 57))

	s := withMeasurer(func(string) (int, error) {
		return 0, fmt.Errorf("count endpoint unavailable")
	})
	chunks, err := s.Split(context.Background(), para, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !chunks[0].Unverified {
		t.Error("expected chunk to be flagged unverified")
	}
	if chunks[0].Tokens != 85 {
		t.Errorf("expected estimated 85 tokens, got %d", chunks[0].Tokens)
	}
}

func TestSplit_VerificationFlagsUndersplittableChunk(t *testing.T) {
	// Fifty 20-character words estimate at 75 tokens (under the budget and
	// the measurement threshold) but measure at 150. Verification catches
	// the overrun, re-segmentation cannot split any finer, and the chunk
	// is kept with the oversized flag instead of looping.
	para := strings.TrimSpace(strings.Repeat("abcdefghijklmnopqrst ", 50))
	if len(para) <= verifyLength {
		t.Fatalf("test paragraph too short to trigger verification: %d bytes", len(para))
	}

	s := withMeasurer(func(text string) (int, error) {
		return 2 * tokens.Estimate(text), nil
	})
	chunks, err := s.Split(context.Background(), para, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !chunks[0].Oversized {
		t.Error("expected chunk to be flagged oversized")
	}
	if chunks[0].Tokens != 150 {
		t.Errorf("expected measured 150 tokens, got %d", chunks[0].Tokens)
	}
}

func TestSplit_SingleOversizedWordEmitted(t *testing.T) {
	// A 1200-character word against a budget of 1 cascades through every
	// tier and still cannot fit; it must come out as one flagged chunk
	// rather than an error or an infinite loop.
	word := strings.Repeat("x", 1200)

	s := withMeasurer(func(text string) (int, error) {
		return len(text) / 4, nil
	})
	chunks, err := s.Split(context.Background(), word, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != word {
		t.Errorf("expected chunk to carry the whole word")
	}
	if !chunks[0].Oversized {
		t.Error("expected chunk to be flagged oversized")
	}
}

func TestSplitSentences_TerminalPunctuation(t *testing.T) {
	got := splitSentences("One sentence. Another one! A third? Trailing fragment")
	want := []string{"One sentence.", "Another one!", "A third?", "Trailing fragment"}
	if len(got) != len(want) {
		t.Fatalf("expected %d sentences, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSplitParagraphs_BlankLineVariants(t *testing.T) {
	got := splitParagraphs("first\n\nsecond\n  \nthird\n\n\n\nfourth")
	want := []string{"first", "second", "third", "fourth"}
	if len(got) != len(want) {
		t.Fatalf("expected %d paragraphs, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paragraph %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
