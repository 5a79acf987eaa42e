package segment

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/JeremyIV/summary-pyramid/internal/tokens"
)

// Chunk is one budget-sized piece of a document.
type Chunk struct {
	Text   string
	Index  int
	Tokens int // best known token count, exact or estimated

	// Unverified marks a chunk whose authoritative count was called for
	// but not obtained; Tokens holds an estimate.
	Unverified bool
	// Oversized marks a chunk that still exceeds the budget after the
	// deepest possible split.
	Oversized bool
}

const (
	// measureRatio is the fraction of the budget above which an estimated
	// paragraph cost is replaced with an authoritative measurement.
	measureRatio = 0.8
	// smallSentence is the length in bytes under which sentences are
	// always estimated.
	smallSentence = 200
	// verifyLength is the length in bytes above which a finished chunk
	// gets an authoritative re-count.
	verifyLength = 1000
	// verifySlack tolerates measured counts up to this multiple of the
	// budget before a chunk is re-segmented.
	verifySlack = 1.1
)

// Segmenter splits documents into token-budgeted chunks. It works on
// estimates where it can and spends measurement calls only on material
// close to or over the budget.
type Segmenter struct {
	meter *tokens.Meter
	log   *slog.Logger
}

func New(meter *tokens.Meter, log *slog.Logger) *Segmenter {
	if log == nil {
		log = slog.Default()
	}
	return &Segmenter{meter: meter, log: log}
}

// part is a chunk under construction, before final indices are assigned.
type part struct {
	text       string
	tokens     int
	unverified bool
	oversized  bool
}

// Split breaks text into ordered chunks of at most maxTokens tokens each.
// Paragraph boundaries are preserved where possible; an oversized paragraph
// falls back to sentence and then word boundaries. Measurement failures
// never fail the split; affected chunks are flagged Unverified instead.
func (s *Segmenter) Split(ctx context.Context, text string, maxTokens int) ([]Chunk, error) {
	if maxTokens < 1 {
		return nil, fmt.Errorf("tokens per chunk must be at least 1, got %d", maxTokens)
	}

	parts, err := s.verify(ctx, s.pack(ctx, text, maxTokens), maxTokens)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = Chunk{
			Text:       p.text,
			Index:      i,
			Tokens:     p.tokens,
			Unverified: p.unverified,
			Oversized:  p.oversized,
		}
	}
	return chunks, nil
}

// pack runs the paragraph tier: paragraphs are buffered up to the budget,
// and any single paragraph over the budget is handed to the sentence tier.
func (s *Segmenter) pack(ctx context.Context, text string, maxTokens int) []part {
	var parts []part
	var buf []string
	bufTokens := 0
	bufUnverified := false

	flush := func() {
		if len(buf) == 0 {
			return
		}
		parts = append(parts, part{
			text:       strings.Join(buf, "\n\n"),
			tokens:     bufTokens,
			unverified: bufUnverified,
		})
		buf = nil
		bufTokens = 0
		bufUnverified = false
	}

	for _, para := range splitParagraphs(text) {
		cost, unverified := s.paragraphCost(ctx, para, maxTokens)

		// A paragraph over the budget on its own is split separately;
		// flush first to keep document order.
		if cost > maxTokens {
			flush()
			parts = append(parts, s.splitBySentences(ctx, para, maxTokens)...)
			continue
		}

		if bufTokens+cost > maxTokens {
			flush()
		}
		buf = append(buf, para)
		bufTokens += cost
		bufUnverified = bufUnverified || unverified
	}
	flush()

	return parts
}

// splitBySentences breaks an oversized paragraph into sentence-buffered
// parts. A sentence over the budget on its own falls through to the word
// tier.
func (s *Segmenter) splitBySentences(ctx context.Context, para string, maxTokens int) []part {
	var parts []part
	var buf []string
	bufTokens := 0
	bufUnverified := false

	flush := func() {
		if len(buf) == 0 {
			return
		}
		parts = append(parts, part{
			text:       strings.Join(buf, " "),
			tokens:     bufTokens,
			unverified: bufUnverified,
		})
		buf = nil
		bufTokens = 0
		bufUnverified = false
	}

	for _, sent := range splitSentences(para) {
		cost, unverified := s.sentenceCost(ctx, sent)

		if cost > maxTokens {
			flush()
			parts = append(parts, splitByWords(sent, maxTokens)...)
			continue
		}

		if bufTokens+cost > maxTokens {
			flush()
		}
		buf = append(buf, sent)
		bufTokens += cost
		bufUnverified = bufUnverified || unverified
	}
	flush()

	return parts
}

// splitByWords is the tier of last resort for a sentence that exceeds the
// budget by itself. Words are always estimated.
func splitByWords(sent string, maxTokens int) []part {
	var parts []part
	var buf []string
	bufTokens := 0

	for _, word := range strings.Fields(sent) {
		cost := tokens.Estimate(word + " ")
		if bufTokens+cost > maxTokens && len(buf) > 0 {
			parts = append(parts, part{text: strings.Join(buf, " "), tokens: bufTokens})
			buf = nil
			bufTokens = 0
		}
		buf = append(buf, word)
		bufTokens += cost
	}
	if len(buf) > 0 {
		parts = append(parts, part{text: strings.Join(buf, " "), tokens: bufTokens})
	}

	return parts
}

// verify re-counts long chunks and re-segments any that blew the budget
// despite conservative estimates. Re-segmentation recurses only while it
// makes progress; a chunk that cannot be split any finer is kept and
// flagged oversized rather than failing the document.
func (s *Segmenter) verify(ctx context.Context, parts []part, maxTokens int) ([]part, error) {
	if !s.meter.Enabled() {
		return parts, nil
	}

	var verified []part
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(p.text) <= verifyLength {
			verified = append(verified, p)
			continue
		}

		actual, exact := s.meter.Count(ctx, p.text)
		if !exact {
			p.unverified = true
			verified = append(verified, p)
			continue
		}

		// A whole-chunk measurement supersedes whatever the tiers added up.
		p.tokens = actual
		p.unverified = false
		if float64(actual) <= verifySlack*float64(maxTokens) {
			verified = append(verified, p)
			continue
		}

		sub := s.pack(ctx, p.text, maxTokens)
		if len(sub) < 2 {
			p.oversized = true
			s.log.Warn("chunk exceeds token budget after deepest split",
				"tokens", actual, "budget", maxTokens, "chars", len(p.text))
			verified = append(verified, p)
			continue
		}
		vsub, err := s.verify(ctx, sub, maxTokens)
		if err != nil {
			return nil, err
		}
		verified = append(verified, vsub...)
	}
	return verified, nil
}

// paragraphCost prices a paragraph, switching from estimate to measurement
// when the estimate gets close to the budget. The second result reports
// whether a measurement was attempted and fell back to the estimate.
func (s *Segmenter) paragraphCost(ctx context.Context, para string, maxTokens int) (int, bool) {
	est := tokens.Estimate(para)
	if !s.meter.Enabled() || float64(est) <= measureRatio*float64(maxTokens) {
		return est, false
	}
	n, exact := s.meter.Count(ctx, para)
	return n, !exact
}

// sentenceCost prices a sentence. Short sentences are always estimated.
func (s *Segmenter) sentenceCost(ctx context.Context, sent string) (int, bool) {
	if !s.meter.Enabled() || len(sent) < smallSentence {
		return tokens.Estimate(sent), false
	}
	n, exact := s.meter.Count(ctx, sent)
	return n, !exact
}

var paragraphRe = regexp.MustCompile(`\n\s*\n`)

// splitParagraphs splits on blank lines, dropping empty paragraphs.
func splitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphRe.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences does basic sentence splitting on terminal punctuation
// followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(text)

	for i, r := range runes {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
