package summarize

import (
	"context"
	"fmt"

	"github.com/JeremyIV/summary-pyramid/internal/pyramid"
	"github.com/JeremyIV/summary-pyramid/internal/rollup"
)

// Params are the token geometry knobs shared by every prompt.
type Params struct {
	// ContextWindow is the model context size the prompts describe.
	ContextWindow int
	// TokensPerSelection is the largest document selection a prompt carries.
	TokensPerSelection int
	// SummaryTokenLimit caps each intermediate summary.
	SummaryTokenLimit int
	// AnswerTokenLimit caps the final answer.
	AnswerTokenLimit int
}

func DefaultParams() Params {
	return Params{
		ContextWindow:      100000,
		TokensPerSelection: 5000,
		SummaryTokenLimit:  2000,
		AnswerTokenLimit:   4000,
	}
}

func (p Params) withDefaults() Params {
	def := DefaultParams()
	if p.ContextWindow <= 0 {
		p.ContextWindow = def.ContextWindow
	}
	if p.TokensPerSelection <= 0 {
		p.TokensPerSelection = def.TokensPerSelection
	}
	if p.SummaryTokenLimit <= 0 {
		p.SummaryTokenLimit = def.SummaryTokenLimit
	}
	if p.AnswerTokenLimit <= 0 {
		p.AnswerTokenLimit = def.AnswerTokenLimit
	}
	return p
}

// Summarizer renders prompts for one user query and calls the model. It
// implements pyramid.Reducer and rollup.Folder.
type Summarizer struct {
	client *Client
	query  string
	params Params
}

func NewSummarizer(client *Client, query string, params Params) *Summarizer {
	return &Summarizer{
		client: client,
		query:  query,
		params: params.withDefaults(),
	}
}

// Query returns the user query the prompts are built around.
func (s *Summarizer) Query() string {
	return s.query
}

// ReduceChunks summarizes one window of raw document chunks.
func (s *Summarizer) ReduceChunks(ctx context.Context, req pyramid.ChunkWindow) (string, error) {
	user, err := s.chunkPrompt(req)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, user, s.params.SummaryTokenLimit, KindSummary)
}

// ReduceSummaries combines one window of lower-level summaries.
func (s *Summarizer) ReduceSummaries(ctx context.Context, req pyramid.SummaryWindow) (string, error) {
	user, err := s.summariesPrompt(req)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, user, s.params.SummaryTokenLimit, KindSummary)
}

// AnswerRequest carries the top of a finished reduction.
type AnswerRequest struct {
	FinalSummary string
	TotalChunks  int
	// Levels is the pyramid depth, or 0 when the summary came from a rollup.
	Levels int
}

// Answer produces the final answer from the top-level summary.
func (s *Summarizer) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	user, err := s.answerPrompt(req)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, user, s.params.AnswerTokenLimit, KindAnswer)
}

// FoldInitial starts a rollup from the first chunk.
func (s *Summarizer) FoldInitial(ctx context.Context, req rollup.InitialRequest) (string, error) {
	user, err := s.foldInitialPrompt(req)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, user, s.params.SummaryTokenLimit, KindSummary)
}

// FoldUpdate folds the next chunk into the running summary.
func (s *Summarizer) FoldUpdate(ctx context.Context, req rollup.UpdateRequest) (string, error) {
	user, err := s.foldUpdatePrompt(req)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, user, s.params.SummaryTokenLimit, KindSummary)
}

func (s *Summarizer) complete(ctx context.Context, user string, responseLimit int, kind string) (string, error) {
	system, err := render(systemTmpl, systemData{
		ContextWindow:      s.params.ContextWindow,
		TokensPerSelection: s.params.TokensPerSelection,
		ResponseTokenLimit: responseLimit,
	})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return s.client.Complete(ctx, CompleteRequest{
		System:    system,
		User:      user,
		MaxTokens: responseLimit,
		Kind:      kind,
	})
}

func (s *Summarizer) chunkPrompt(req pyramid.ChunkWindow) (string, error) {
	user, err := render(chunkSummaryTmpl, chunkSummaryData{
		UserQuery:   s.query,
		TotalChunks: req.TotalChunks,
		RangeStart:  req.RangeStart + 1,
		RangeEnd:    req.RangeEnd + 1,
		Content:     req.Content,
	})
	if err != nil {
		return "", fmt.Errorf("render summary prompt: %w", err)
	}
	return user, nil
}

func (s *Summarizer) summariesPrompt(req pyramid.SummaryWindow) (string, error) {
	items := make([]summaryItem, len(req.Summaries))
	for i, sum := range req.Summaries {
		items[i] = summaryItem{
			RangeStart: sum.RangeStart + 1,
			RangeEnd:   sum.RangeEnd + 1,
			Text:       sum.Text,
		}
	}
	user, err := render(recursiveSummaryTmpl, recursiveSummaryData{
		UserQuery:   s.query,
		TotalChunks: req.TotalChunks,
		Level:       req.Level,
		LevelTotal:  req.LevelTotal,
		WindowStart: req.WindowStart + 1,
		WindowEnd:   req.WindowEnd + 1,
		RangeStart:  items[0].RangeStart,
		RangeEnd:    items[len(items)-1].RangeEnd,
		Summaries:   items,
	})
	if err != nil {
		return "", fmt.Errorf("render recursive summary prompt: %w", err)
	}
	return user, nil
}

func (s *Summarizer) answerPrompt(req AnswerRequest) (string, error) {
	user, err := render(answerTmpl, answerData{
		UserQuery:    s.query,
		TotalChunks:  req.TotalChunks,
		Levels:       req.Levels,
		FinalSummary: req.FinalSummary,
	})
	if err != nil {
		return "", fmt.Errorf("render answer prompt: %w", err)
	}
	return user, nil
}

func (s *Summarizer) foldInitialPrompt(req rollup.InitialRequest) (string, error) {
	user, err := render(rollupInitialTmpl, rollupInitialData{
		UserQuery:         s.query,
		TotalChunks:       req.TotalChunks,
		SummaryTokenLimit: s.params.SummaryTokenLimit,
		Content:           req.Content,
	})
	if err != nil {
		return "", fmt.Errorf("render rollup prompt: %w", err)
	}
	return user, nil
}

func (s *Summarizer) foldUpdatePrompt(req rollup.UpdateRequest) (string, error) {
	user, err := render(rollupUpdateTmpl, rollupUpdateData{
		UserQuery:         s.query,
		TotalChunks:       req.TotalChunks,
		CurrentChunk:      req.ChunkIndex + 1,
		PrevChunks:        req.ChunkIndex,
		SummaryTokenLimit: s.params.SummaryTokenLimit,
		CurrentSummary:    req.CurrentSummary,
		Content:           req.Content,
	})
	if err != nil {
		return "", fmt.Errorf("render rollup prompt: %w", err)
	}
	return user, nil
}
