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

// openAIBaseURL is the default OpenAI-compatible endpoint. Package-level var for test substitution.
var openAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient calls an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	Client     *http.Client
	Log        *zap.Logger
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type openAIRequest struct {
	Model         string          `json:"model"`
	Messages      []openAIMessage `json:"messages"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	Tools         []openAITool    `json:"tools,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage openAIUsage `json:"usage"`
}

type openAIStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage,omitempty"`
}

// Complete sends req to the chat completions endpoint.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.send(ctx, req, false)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var oResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return Response{}, fmt.Errorf("decoding OpenAI response: %w", err)
	}
	if len(oResp.Choices) == 0 {
		return Response{}, ErrEmptyResponse
	}

	choice := oResp.Choices[0]
	out := Response{
		Text:       choice.Message.Content,
		Model:      oResp.Model,
		StopReason: choice.FinishReason,
		Usage:      types.Usage{InputTokens: oResp.Usage.PromptTokens, OutputTokens: oResp.Usage.CompletionTokens},
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: json.RawMessage(call.Function.Arguments),
		})
	}
	if out.Text == "" && len(out.ToolCalls) == 0 {
		return out, ErrEmptyResponse
	}
	return out, nil
}

// CompleteStream sends req with streaming enabled and calls onDelta for
// each text fragment. The stream ends on [DONE].
func (c *OpenAIClient) CompleteStream(ctx context.Context, req Request, onDelta func(string)) (Response, error) {
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
			return out, fmt.Errorf("reading OpenAI stream: %w", err)
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if chunk.Usage != nil {
			out.Usage = types.Usage{InputTokens: chunk.Usage.PromptTokens, OutputTokens: chunk.Usage.CompletionTokens}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			text.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
		if fr := chunk.Choices[0].FinishReason; fr != "" {
			out.StopReason = fr
		}
	}

	out.Text = text.String()
	if out.Text == "" {
		return out, ErrEmptyResponse
	}
	return out, nil
}

func (c *OpenAIClient) send(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	bodyBytes, err := json.Marshal(c.buildRequest(req, stream))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	base := openAIBaseURL
	if c.BaseURL != "" {
		base = c.BaseURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, httpReq, c.MaxRetries, c.Log)
	if err != nil {
		return nil, fmt.Errorf("calling OpenAI API: %w", err)
	}
	if err := httputil.CheckResponse("openai", resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (c *OpenAIClient) buildRequest(req Request, stream bool) openAIRequest {
	model := req.Model
	if model == "" {
		model = c.Model
	}
	out := openAIRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if stream {
		out.StreamOptions = &struct {
			IncludeUsage bool `json:"include_usage"`
		}{IncludeUsage: true}
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openAIMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		// Tool results become one "tool" message each.
		if len(m.ToolResults) > 0 {
			for _, res := range m.ToolResults {
				out.Messages = append(out.Messages, openAIMessage{Role: "tool", Content: res.Content, ToolCallID: res.CallID})
			}
			continue
		}
		msg := openAIMessage{Role: string(m.Role), Content: m.Content}
		for _, call := range m.ToolCalls {
			tc := openAIToolCall{ID: call.ID, Type: "function"}
			tc.Function.Name = call.Name
			tc.Function.Arguments = string(call.Input)
			msg.ToolCalls = append(msg.ToolCalls, tc)
		}
		out.Messages = append(out.Messages, msg)
	}
	for _, t := range req.Tools {
		tool := openAITool{Type: "function"}
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.InputSchema
		out.Tools = append(out.Tools, tool)
	}
	return out
}
