// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// AIConfig holds shared settings for components that call a chat model.
type AIConfig struct {
	// Provider selects the chat API: "anthropic" or "openai" (any
	// OpenAI-compatible endpoint).
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the default chat model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// BaseURL overrides the provider endpoint. Empty uses the provider default.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// APIKey is the authentication key for the chat API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries is the number of retry attempts on HTTP 429 (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// Timeout bounds a single chat call (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxTokens is the response token cap for routed chat calls (default 1024).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ClassifierConfig holds settings for per-question classification.
type ClassifierConfig struct {
	// ConfidenceThreshold is the rule confidence below which the model
	// fallback is consulted (default 0.85).
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold" mapstructure:"confidence_threshold"`

	// ModelFallback enables the model-based classifier.
	ModelFallback bool `json:"model_fallback" yaml:"model_fallback" mapstructure:"model_fallback"`

	// Model is the model used for fallback classification. Empty uses AIConfig.Model.
	Model string `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`

	// CacheSize is the classification cache capacity (default 1000).
	CacheSize int `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`
}

// RouterConfig holds settings for source routing.
type RouterConfig struct {
	// ContextTopK is the number of chunks fetched for knowledge context (default 3).
	ContextTopK int `json:"context_top_k" yaml:"context_top_k" mapstructure:"context_top_k"`

	// CacheSize is the response cache capacity (default 1000).
	CacheSize int `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`

	// CacheTTL is the response cache entry lifetime (default 1h).
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`

	// MaxToolRounds caps tool-use round trips per request (default 3).
	MaxToolRounds int `json:"max_tool_rounds" yaml:"max_tool_rounds" mapstructure:"max_tool_rounds"`

	// LiteratureSearch offers the search_literature tool backed by OpenAlex.
	LiteratureSearch bool `json:"literature_search" yaml:"literature_search" mapstructure:"literature_search"`

	// LiteratureEmail is sent to OpenAlex for polite pool access.
	LiteratureEmail string `json:"literature_email,omitempty" yaml:"literature_email,omitempty" mapstructure:"literature_email"`
}

// EmbeddingConfig holds settings for the text embedding service.
type EmbeddingConfig struct {
	// Provider selects the embedding API: "openai" or "genai".
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the embedding model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// APIKey is the authentication key for the embedding API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Timeout bounds a single embedding call (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// RerankConfig holds settings for the optional rerank service.
type RerankConfig struct {
	// Model is the rerank model identifier (default "rerank-v4.0-fast").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// BaseURL overrides the rerank endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// APIKey enables reranking when non-empty.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Timeout bounds a single rerank call (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// ResearchConfig holds settings for the deep-research workflow.
type ResearchConfig struct {
	// MaxIterations caps node executions per run (default 10).
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" mapstructure:"max_iterations"`

	// DefaultTopK is the number of chunks kept after reranking (default 20).
	DefaultTopK int `json:"default_top_k" yaml:"default_top_k" mapstructure:"default_top_k"`

	// MaxChunks caps the retrieval request size (default 100).
	MaxChunks int `json:"max_chunks" yaml:"max_chunks" mapstructure:"max_chunks"`

	// ContextBudget is the synthesis context size in characters (default 72000).
	ContextBudget int `json:"context_budget" yaml:"context_budget" mapstructure:"context_budget"`

	// PreviewLength is the maximum source preview length (default 150).
	PreviewLength int `json:"preview_length" yaml:"preview_length" mapstructure:"preview_length"`

	// Deadline bounds a whole run. Zero disables the end-to-end deadline.
	Deadline time.Duration `json:"deadline" yaml:"deadline" mapstructure:"deadline"`

	// SynthesisModel overrides AIConfig.Model for synthesis.
	SynthesisModel string `json:"synthesis_model,omitempty" yaml:"synthesis_model,omitempty" mapstructure:"synthesis_model"`

	// SynthesisMaxTokens is the synthesis response cap (default 4096).
	SynthesisMaxTokens int `json:"synthesis_max_tokens" yaml:"synthesis_max_tokens" mapstructure:"synthesis_max_tokens"`

	// SynthesisTimeout bounds the synthesis call (default 120s).
	SynthesisTimeout time.Duration `json:"synthesis_timeout" yaml:"synthesis_timeout" mapstructure:"synthesis_timeout"`
}

// KnowledgeBaseConfig holds settings for the local knowledge store.
type KnowledgeBaseConfig struct {
	// KnowledgeDir is the base directory for knowledge (contains traits/, documents/, index/).
	KnowledgeDir string `json:"knowledge_dir" yaml:"knowledge_dir" mapstructure:"knowledge_dir"`

	// MaxResults is the default maximum number of lookup results (default 5).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// MemoryConfig holds settings for per-session conversation memory.
type MemoryConfig struct {
	// MaxPairs is the number of user/assistant pairs retained (default 10).
	MaxPairs int `json:"max_pairs" yaml:"max_pairs" mapstructure:"max_pairs"`

	// TTL expires idle sessions (default 30m).
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

// RateLimitConfig holds settings for the caller-side token quota.
type RateLimitConfig struct {
	// TokenLimit is the per-user token allowance per window (default 25000).
	TokenLimit int `json:"token_limit" yaml:"token_limit" mapstructure:"token_limit"`

	// Cooldown is the lockout after the allowance is spent (default 5h).
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown" mapstructure:"cooldown"`

	// RequestsPerSecond caps per-user request rate. Zero disables it.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// Burst is the request-rate bucket size (default 5).
	Burst int `json:"burst" yaml:"burst" mapstructure:"burst"`
}

// ServerConfig holds settings for the HTTP surface.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// ReadTimeout bounds reading a request (default 15s).
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`

	// ShutdownTimeout bounds graceful shutdown (default 10s).
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies (default 1 MiB).
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// LoggingConfig holds settings for the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default info).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Development switches to human-readable console output.
	Development bool `json:"development" yaml:"development" mapstructure:"development"`
}

// AssistantConfig groups all component configurations.
type AssistantConfig struct {
	AI         AIConfig            `json:"ai" yaml:"ai" mapstructure:"ai"`
	Classifier ClassifierConfig    `json:"classifier" yaml:"classifier" mapstructure:"classifier"`
	Router     RouterConfig        `json:"router" yaml:"router" mapstructure:"router"`
	Embedding  EmbeddingConfig     `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Rerank     RerankConfig        `json:"rerank" yaml:"rerank" mapstructure:"rerank"`
	Research   ResearchConfig      `json:"research" yaml:"research" mapstructure:"research"`
	Knowledge  KnowledgeBaseConfig `json:"knowledge" yaml:"knowledge" mapstructure:"knowledge"`
	Memory     MemoryConfig        `json:"memory" yaml:"memory" mapstructure:"memory"`
	RateLimit  RateLimitConfig     `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
	Server     ServerConfig        `json:"server" yaml:"server" mapstructure:"server"`
	Logging    LoggingConfig       `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// DefaultConfig returns the configuration used when no file or environment
// overrides a value.
func DefaultConfig() AssistantConfig {
	return AssistantConfig{
		AI: AIConfig{
			Provider:   "anthropic",
			Model:      "claude-sonnet-4-5-20250929",
			MaxRetries: 3,
			Timeout:    60 * time.Second,
			MaxTokens:  1024,
		},
		Classifier: ClassifierConfig{
			ConfidenceThreshold: 0.85,
			ModelFallback:       true,
			CacheSize:           1000,
		},
		Router: RouterConfig{
			ContextTopK:   3,
			CacheSize:     1000,
			CacheTTL:      time.Hour,
			MaxToolRounds: 3,
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
			Timeout:  30 * time.Second,
		},
		Rerank: RerankConfig{
			Model:   "rerank-v4.0-fast",
			Timeout: 60 * time.Second,
		},
		Research: ResearchConfig{
			MaxIterations:      10,
			DefaultTopK:        20,
			MaxChunks:          100,
			ContextBudget:      72000,
			PreviewLength:      150,
			SynthesisMaxTokens: 4096,
			SynthesisTimeout:   120 * time.Second,
		},
		Knowledge: KnowledgeBaseConfig{
			KnowledgeDir: "knowledge",
			MaxResults:   5,
		},
		Memory: MemoryConfig{
			MaxPairs: 10,
			TTL:      30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			TokenLimit: 25000,
			Cooldown:   5 * time.Hour,
			Burst:      5,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
