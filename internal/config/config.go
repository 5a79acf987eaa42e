package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Anthropic. An empty model selects the client's default.
	AnthropicAPIKey string
	AnthropicModel  string
	RequestRPM      int

	// Token counting: local (tiktoken), api (count-tokens endpoint), or
	// estimate (word-count heuristic only).
	TokenCounter   string
	TokenEncoding  string
	CountTokensRPM int

	// Reduction geometry
	TokensPerChunk     int
	TokensPerSelection int
	ContextWindow      int
	SummaryTokenLimit  int
	AnswerTokenLimit   int

	BaseWindowSize      int
	BaseStride          int
	RecursiveWindowSize int
	RecursiveStride     int
	MaxConcurrent       int
	MaxRetries          int

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// OutputRoot, when set, mirrors completed jobs onto disk.
	OutputRoot string

	// PDF
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("PYRAMID_API_KEY"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  os.Getenv("ANTHROPIC_MODEL"),
		RequestRPM:      envInt("REQUEST_RPM", 0),

		TokenCounter:   envOr("TOKEN_COUNTER", "local"),
		TokenEncoding:  os.Getenv("TOKEN_ENCODING"),
		CountTokensRPM: envInt("COUNT_TOKENS_RPM", 10),

		TokensPerChunk:     envInt("TOKENS_PER_CHUNK", 1000),
		TokensPerSelection: envInt("TOKENS_PER_SELECTION", 5000),
		ContextWindow:      envInt("CONTEXT_WINDOW", 100000),
		SummaryTokenLimit:  envInt("SUMMARY_TOKEN_LIMIT", 2000),
		AnswerTokenLimit:   envInt("ANSWER_TOKEN_LIMIT", 4000),

		BaseWindowSize:      envInt("BASE_WINDOW_SIZE", 10),
		BaseStride:          envInt("BASE_STRIDE", 9),
		RecursiveWindowSize: envInt("RECURSIVE_WINDOW_SIZE", 5),
		RecursiveStride:     envInt("RECURSIVE_STRIDE", 4),
		MaxConcurrent:       envInt("MAX_CONCURRENT", 4),
		MaxRetries:          envInt("MAX_RETRIES", 3),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		OutputRoot: os.Getenv("OUTPUT_ROOT"),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.CountTokensRPM <= 0 {
		cfg.CountTokensRPM = 10
	}
	if cfg.TokensPerChunk <= 0 {
		cfg.TokensPerChunk = 1000
	}
	if cfg.TokensPerSelection <= 0 {
		cfg.TokensPerSelection = 5000
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 100000
	}
	if cfg.SummaryTokenLimit <= 0 {
		cfg.SummaryTokenLimit = 2000
	}
	if cfg.AnswerTokenLimit <= 0 {
		cfg.AnswerTokenLimit = 4000
	}
	if cfg.BaseWindowSize <= 0 {
		cfg.BaseWindowSize = 10
	}
	if cfg.BaseStride <= 0 {
		cfg.BaseStride = 9
	}
	if cfg.RecursiveWindowSize <= 0 {
		cfg.RecursiveWindowSize = 5
	}
	if cfg.RecursiveStride <= 0 {
		cfg.RecursiveStride = 4
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("PYRAMID_API_KEY is required")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	switch c.TokenCounter {
	case "local", "api", "estimate":
	default:
		return fmt.Errorf("TOKEN_COUNTER must be local, api, or estimate (got %q)", c.TokenCounter)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
