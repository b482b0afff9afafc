// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rerank reorders retrieved chunks by query relevance using the
// Cohere v2 rerank API. Reranking is optional: a reranker without an API
// key reports itself unavailable and callers keep the retrieval order.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/httputil"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// ErrUnavailable is returned by Rerank when no API key is configured.
var ErrUnavailable = errors.New("rerank service unavailable")

// Reranker reorders documents by relevance to query and keeps the best topK.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []types.Chunk, topK int) ([]types.Chunk, error)
	Available() bool
}

// cohereBaseURL is the rerank endpoint host. Package-level var for test substitution.
var cohereBaseURL = "https://api.cohere.com"

// CohereReranker calls the Cohere v2 rerank endpoint.
type CohereReranker struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
	Log     *zap.Logger
}

// NewCohere builds a CohereReranker from cfg.
func NewCohere(cfg types.RerankConfig, log *zap.Logger) *CohereReranker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "rerank-v4.0-fast"
	}
	return &CohereReranker{
		APIKey:  cfg.APIKey,
		Model:   model,
		BaseURL: cfg.BaseURL,
		Client:  &http.Client{Timeout: timeout},
		Log:     log,
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Available reports whether an API key is configured.
func (c *CohereReranker) Available() bool {
	return c != nil && c.APIKey != ""
}

// Rerank returns up to topK chunks in relevance order, each carrying its
// rerank score. The input slice is not modified.
func (c *CohereReranker) Rerank(ctx context.Context, query string, docs []types.Chunk, topK int) ([]types.Chunk, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}
	if len(docs) == 0 {
		return nil, nil
	}
	if topK <= 0 || topK > len(docs) {
		topK = len(docs)
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	bodyBytes, err := json.Marshal(rerankRequest{Model: c.Model, Query: query, Documents: texts, TopN: topK})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	base := cohereBaseURL
	if c.BaseURL != "" {
		base = c.BaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/v2/rerank", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, 0, c.Log)
	if err != nil {
		return nil, fmt.Errorf("calling rerank API: %w", err)
	}
	defer resp.Body.Close()
	if err := httputil.CheckResponse("cohere", resp); err != nil {
		return nil, err
	}

	var rResp rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rResp); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}

	out := make([]types.Chunk, 0, len(rResp.Results))
	for _, r := range rResp.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, fmt.Errorf("rerank API returned out-of-range index %d", r.Index)
		}
		chunk := docs[r.Index]
		score := r.RelevanceScore
		chunk.RerankScore = &score
		out = append(out, chunk)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}
