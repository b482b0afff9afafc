// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm adapts chat-completion APIs to a single request/response shape.
// Two providers are supported: the Anthropic Messages API and any
// OpenAI-compatible chat completions endpoint. Both support tool use and
// server-sent-event streaming.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// ErrNotConfigured is returned when a client is built without an API key.
var ErrNotConfigured = errors.New("chat model not configured")

// ErrEmptyResponse is returned when the API answers with no content.
var ErrEmptyResponse = errors.New("chat model returned empty content")

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the output of a tool invocation sent back to the model.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message is one conversation message. Assistant messages may carry
// ToolCalls; user messages may carry ToolResults answering them.
type Message struct {
	Role        types.Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Tool describes a callable tool to the model.
type Tool struct {
	Name        string
	Description string
	// InputSchema is a JSON Schema object describing the tool input.
	InputSchema map[string]any
}

// Request is a provider-neutral chat request.
type Request struct {
	// Model overrides the client default when non-empty.
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
	Tools       []Tool
}

// Response is a provider-neutral chat response.
type Response struct {
	Text       string
	Model      string
	Usage      types.Usage
	ToolCalls  []ToolCall
	StopReason string
}

// ChatCompleter sends a chat request and returns the full response.
type ChatCompleter interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// StreamCompleter is a ChatCompleter that can also stream text deltas.
// onDelta is called synchronously for each text fragment; the returned
// Response carries the full text and usage.
type StreamCompleter interface {
	ChatCompleter
	CompleteStream(ctx context.Context, req Request, onDelta func(string)) (Response, error)
}

// Temperature returns a pointer to t for use in Request.Temperature.
func Temperature(t float64) *float64 {
	return &t
}

// UserText builds a single-message conversation.
func UserText(text string) []Message {
	return []Message{{Role: types.RoleUser, Content: text}}
}

// FromTurns converts conversation history to messages, followed by the
// current question.
func FromTurns(history []types.Turn, question string) []Message {
	msgs := make([]Message, 0, len(history)+1)
	for _, t := range history {
		if t.Text == "" {
			continue
		}
		msgs = append(msgs, Message{Role: t.Role, Content: t.Text})
	}
	return append(msgs, Message{Role: types.RoleUser, Content: question})
}

// New builds a StreamCompleter for cfg.Provider.
func New(cfg types.AIConfig, log *zap.Logger) (StreamCompleter, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch cfg.Provider {
	case "anthropic", "":
		return &AnthropicClient{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
			Client:     client,
			Log:        log,
		}, nil
	case "openai":
		return &OpenAIClient{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
			Client:     client,
			Log:        log,
		}, nil
	default:
		return nil, fmt.Errorf("unknown chat provider %q: use anthropic or openai", cfg.Provider)
	}
}
