package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-3-7-sonnet-20250219"

const (
	messagesURL    = "https://api.anthropic.com/v1/messages"
	countTokensURL = "https://api.anthropic.com/v1/messages/count_tokens"
)

// Client calls the Anthropic Messages API for summarization and token
// counting.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter

	// Stats aggregates call latencies by kind.
	Stats *Stats
}

// NewClient builds a client for the given model. rpm > 0 throttles message
// calls to that many requests per minute; rpm <= 0 leaves them unthrottled.
func NewClient(apiKey, model string, rpm int) *Client {
	if model == "" {
		model = DefaultModel
	}
	var limiter *rate.Limiter
	if rpm > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		limiter: limiter,
		Stats:   NewStats(time.Hour),
	}
}

// Model reports the configured model id.
func (c *Client) Model() string {
	return c.model
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type countTokensRequest struct {
	Model    string             `json:"model"`
	Messages []anthropicMessage `json:"messages"`
}

type countTokensResponse struct {
	InputTokens int `json:"input_tokens"`
	Error       *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CompleteRequest is a single-turn model call.
type CompleteRequest struct {
	System    string
	User      string
	MaxTokens int
	Kind      string // stats bucket, one of the Kind constants
}

// Complete sends one message to Claude and returns the response text with
// any surrounding code fence stripped.
func (c *Client) Complete(ctx context.Context, req CompleteRequest) (string, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = 4096
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("request rate limit: %w", err)
		}
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.User},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	respBody, err := c.post(ctx, messagesURL, body)
	if err != nil {
		return "", err
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("claude error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("empty response from claude")
	}

	if req.Kind != "" {
		c.Stats.Record(req.Kind, time.Since(start).Milliseconds())
	}
	return stripCodeBlock(apiResp.Content[0].Text), nil
}

// CountTokens returns the model's exact token count for text. It is not
// throttled by the client limiter; callers wrap it in a tokens.Meter for
// caching and rate limiting.
func (c *Client) CountTokens(ctx context.Context, text string) (int, error) {
	body, err := json.Marshal(countTokensRequest{
		Model: c.model,
		Messages: []anthropicMessage{
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	respBody, err := c.post(ctx, countTokensURL, body)
	if err != nil {
		return 0, err
	}

	var apiResp countTokensResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return 0, fmt.Errorf("claude error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	c.Stats.Record(KindCountTokens, time.Since(start).Milliseconds())
	return apiResp.InputTokens, nil
}

// post sends body to url with auth headers and returns the response body.
// 429 and 5xx responses come back as *RetryableError.
func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("claude api status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:[a-z]*)\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
