// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embedding turns text into vectors for similarity search.
// Implements the OpenAI-compatible /embeddings API and Google's Gemini
// embedding models through the genai SDK.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("embedding service not configured")

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// BatchEmbedder embeds many texts in one call. Ingest uses it when available.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// New builds the Embedder selected by cfg.Provider.
func New(ctx context.Context, cfg types.EmbeddingConfig, log *zap.Logger) (Embedder, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(cfg, log), nil
	case "genai", "gemini":
		return NewGenAI(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q: use openai or genai", cfg.Provider)
	}
}

// EmbedAll embeds texts with e, batching when e supports it.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if be, ok := e.(BatchEmbedder); ok {
		return be.EmbedBatch(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
