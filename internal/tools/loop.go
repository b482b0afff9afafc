// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"context"
	"fmt"

	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// RunLoop sends req with the executor's tools and answers tool calls until
// the model replies with text. After maxRounds tool rounds the request is
// sent once more without tools so the model must answer. The returned
// Response carries usage summed over every call.
func RunLoop(ctx context.Context, chat llm.ChatCompleter, req llm.Request, exec Executor, maxRounds int) (llm.Response, error) {
	if maxRounds <= 0 {
		maxRounds = 3
	}
	req.Tools = exec.Tools()
	msgs := append([]llm.Message(nil), req.Messages...)

	var total types.Usage
	for round := 0; ; round++ {
		if round == maxRounds {
			req.Tools = nil
		}
		req.Messages = msgs
		resp, err := chat.Complete(ctx, req)
		if err != nil {
			return llm.Response{Usage: total}, err
		}
		total = total.Add(resp.Usage)
		if len(resp.ToolCalls) == 0 || req.Tools == nil {
			resp.Usage = total
			if resp.Text == "" {
				return resp, fmt.Errorf("tool loop: %w", llm.ErrEmptyResponse)
			}
			return resp, nil
		}

		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				return llm.Response{Usage: total}, err
			}
			results = append(results, exec.Execute(ctx, call))
		}
		msgs = append(msgs,
			llm.Message{Role: types.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls},
			llm.Message{Role: types.RoleUser, ToolResults: results},
		)
	}
}
