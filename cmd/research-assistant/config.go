// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/pdiddy/research-assistant/internal/secrets"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// setDefaults registers every default so environment variables bind to
// known keys and Unmarshal sees a complete tree.
func setDefaults(v *viper.Viper, d types.AssistantConfig) {
	v.SetDefault("ai.provider", d.AI.Provider)
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("ai.base_url", d.AI.BaseURL)
	v.SetDefault("ai.api_key", d.AI.APIKey)
	v.SetDefault("ai.max_retries", d.AI.MaxRetries)
	v.SetDefault("ai.timeout", d.AI.Timeout)
	v.SetDefault("ai.max_tokens", d.AI.MaxTokens)

	v.SetDefault("classifier.confidence_threshold", d.Classifier.ConfidenceThreshold)
	v.SetDefault("classifier.model_fallback", d.Classifier.ModelFallback)
	v.SetDefault("classifier.model", d.Classifier.Model)
	v.SetDefault("classifier.cache_size", d.Classifier.CacheSize)

	v.SetDefault("router.context_top_k", d.Router.ContextTopK)
	v.SetDefault("router.cache_size", d.Router.CacheSize)
	v.SetDefault("router.cache_ttl", d.Router.CacheTTL)
	v.SetDefault("router.max_tool_rounds", d.Router.MaxToolRounds)
	v.SetDefault("router.literature_search", d.Router.LiteratureSearch)
	v.SetDefault("router.literature_email", d.Router.LiteratureEmail)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)

	v.SetDefault("rerank.model", d.Rerank.Model)
	v.SetDefault("rerank.base_url", d.Rerank.BaseURL)
	v.SetDefault("rerank.api_key", d.Rerank.APIKey)
	v.SetDefault("rerank.timeout", d.Rerank.Timeout)

	v.SetDefault("research.max_iterations", d.Research.MaxIterations)
	v.SetDefault("research.default_top_k", d.Research.DefaultTopK)
	v.SetDefault("research.max_chunks", d.Research.MaxChunks)
	v.SetDefault("research.context_budget", d.Research.ContextBudget)
	v.SetDefault("research.preview_length", d.Research.PreviewLength)
	v.SetDefault("research.deadline", d.Research.Deadline)
	v.SetDefault("research.synthesis_model", d.Research.SynthesisModel)
	v.SetDefault("research.synthesis_max_tokens", d.Research.SynthesisMaxTokens)
	v.SetDefault("research.synthesis_timeout", d.Research.SynthesisTimeout)

	v.SetDefault("knowledge.knowledge_dir", d.Knowledge.KnowledgeDir)
	v.SetDefault("knowledge.max_results", d.Knowledge.MaxResults)

	v.SetDefault("memory.max_pairs", d.Memory.MaxPairs)
	v.SetDefault("memory.ttl", d.Memory.TTL)

	v.SetDefault("rate_limit.token_limit", d.RateLimit.TokenLimit)
	v.SetDefault("rate_limit.cooldown", d.RateLimit.Cooldown)
	v.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.development", d.Logging.Development)
}

// loadConfig resolves the configuration from defaults, the config file,
// and the environment, in increasing precedence.
func loadConfig(v *viper.Viper) (types.AssistantConfig, error) {
	setDefaults(v, types.DefaultConfig())
	var out types.AssistantConfig
	if err := v.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("decoding configuration: %w", err)
	}
	return out, nil
}

// applySecrets fills empty API keys from key files. Configured keys win.
func applySecrets(c *types.AssistantConfig, s secrets.Set) {
	switch c.AI.Provider {
	case "openai":
		c.AI.APIKey = s.Get(secrets.OpenAIKey, c.AI.APIKey)
	default:
		c.AI.APIKey = s.Get(secrets.AnthropicKey, c.AI.APIKey)
	}
	switch c.Embedding.Provider {
	case "genai", "gemini":
		c.Embedding.APIKey = s.Get(secrets.GeminiKey, c.Embedding.APIKey)
	default:
		c.Embedding.APIKey = s.Get(secrets.OpenAIKey, c.Embedding.APIKey)
	}
	c.Rerank.APIKey = s.Get(secrets.CohereKey, c.Rerank.APIKey)
}
