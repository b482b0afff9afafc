// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/httputil"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// anthropicAPIURL is the Messages API endpoint. Package-level var for test substitution.
var anthropicAPIURL = "https://api.anthropic.com/v1/messages"

const (
	anthropicVersion   = "2023-06-01"
	defaultMaxTokens   = 1024
	anthropicServiceID = "anthropic"
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	Client     *http.Client
	Log        *zap.Logger
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

// anthropicBlock covers the text, tool_use and tool_result block shapes.
type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Model      string           `json:"model"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      anthropicUsage   `json:"usage"`
}

// anthropicStreamEvent is the union of the streaming event payloads.
type anthropicStreamEvent struct {
	Type    string             `json:"type"`
	Message *anthropicResponse `json:"message,omitempty"`
	Delta   struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *anthropicUsage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends req to the Messages API.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.send(ctx, req, false)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var aResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&aResp); err != nil {
		return Response{}, fmt.Errorf("decoding Anthropic response: %w", err)
	}

	out := Response{
		Model:      aResp.Model,
		StopReason: aResp.StopReason,
		Usage:      types.Usage{InputTokens: aResp.Usage.InputTokens, OutputTokens: aResp.Usage.OutputTokens},
	}
	var text strings.Builder
	for _, block := range aResp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Input: block.Input})
		}
	}
	out.Text = text.String()
	if out.Text == "" && len(out.ToolCalls) == 0 {
		return out, ErrEmptyResponse
	}
	return out, nil
}

// CompleteStream sends req with streaming enabled and calls onDelta for
// each text fragment.
func (c *AnthropicClient) CompleteStream(ctx context.Context, req Request, onDelta func(string)) (Response, error) {
	resp, err := c.send(ctx, req, true)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var (
		out  Response
		text strings.Builder
	)
	reader := newSSEReader(resp.Body)
	for {
		_, data, err := reader.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("reading Anthropic stream: %w", err)
		}

		var ev anthropicStreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				out.Model = ev.Message.Model
				out.Usage.InputTokens = ev.Message.Usage.InputTokens
			}
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				text.WriteString(ev.Delta.Text)
				if onDelta != nil {
					onDelta(ev.Delta.Text)
				}
			}
		case "message_delta":
			out.StopReason = ev.Delta.StopReason
			if ev.Usage != nil {
				out.Usage.OutputTokens = ev.Usage.OutputTokens
			}
		case "error":
			msg := "unknown stream error"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			return out, fmt.Errorf("Anthropic stream error: %s", msg)
		}
		if ev.Type == "message_stop" {
			break
		}
	}

	out.Text = text.String()
	if out.Text == "" {
		return out, ErrEmptyResponse
	}
	return out, nil
}

func (c *AnthropicClient) send(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	body := c.buildRequest(req, stream)
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := anthropicAPIURL
	if c.BaseURL != "" {
		url = strings.TrimRight(c.BaseURL, "/") + "/v1/messages"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, httpReq, c.MaxRetries, c.Log)
	if err != nil {
		return nil, fmt.Errorf("calling Anthropic API: %w", err)
	}
	if err := httputil.CheckResponse(anthropicServiceID, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (c *AnthropicClient) buildRequest(req Request, stream bool) anthropicRequest {
	model := req.Model
	if model == "" {
		model = c.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	out := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	for _, m := range req.Messages {
		msg := anthropicMessage{Role: string(m.Role)}
		if m.Content != "" {
			msg.Content = append(msg.Content, anthropicBlock{Type: "text", Text: m.Content})
		}
		for _, call := range m.ToolCalls {
			input := call.Input
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			msg.Content = append(msg.Content, anthropicBlock{Type: "tool_use", ID: call.ID, Name: call.Name, Input: input})
		}
		for _, res := range m.ToolResults {
			msg.Content = append(msg.Content, anthropicBlock{Type: "tool_result", ToolUseID: res.CallID, Content: res.Content, IsError: res.IsError})
		}
		out.Messages = append(out.Messages, msg)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return out
}
