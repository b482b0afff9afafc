// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llmtest provides a scripted chat model for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/pdiddy/research-assistant/internal/llm"
)

// ErrExhausted is returned when a Fake has no scripted replies left.
var ErrExhausted = errors.New("llmtest: no scripted replies left")

// Reply is one scripted model answer.
type Reply struct {
	Response llm.Response
	Err      error
}

// Fake replays scripted replies in order and records every request.
// It is safe for concurrent use.
type Fake struct {
	mu       sync.Mutex
	replies  []Reply
	requests []llm.Request

	// Default, when set, answers every request after the script runs out.
	Default *Reply
}

// New returns a Fake that answers with replies in order.
func New(replies ...Reply) *Fake {
	return &Fake{replies: replies}
}

// Text is shorthand for a successful text reply.
func Text(text string, in, out int) Reply {
	r := llm.Response{Text: text, Model: "fake-model"}
	r.Usage.InputTokens = in
	r.Usage.OutputTokens = out
	return Reply{Response: r}
}

// ToolUse is shorthand for a reply requesting tool calls.
func ToolUse(calls ...llm.ToolCall) Reply {
	return Reply{Response: llm.Response{Model: "fake-model", ToolCalls: calls, StopReason: "tool_use"}}
}

// Fail is shorthand for an error reply.
func Fail(err error) Reply {
	return Reply{Err: err}
}

// Complete returns the next scripted reply.
func (f *Fake) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		if f.Default != nil {
			return f.Default.Response, f.Default.Err
		}
		return llm.Response{}, ErrExhausted
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.Response, r.Err
}

// CompleteStream returns the next scripted reply, delivering its text to
// onDelta word by word.
func (f *Fake) CompleteStream(ctx context.Context, req llm.Request, onDelta func(string)) (llm.Response, error) {
	resp, err := f.Complete(ctx, req)
	if err != nil {
		return resp, err
	}
	if onDelta != nil {
		for _, w := range strings.SplitAfter(resp.Text, " ") {
			if w != "" {
				onDelta(w)
			}
		}
	}
	return resp, nil
}

// Requests returns a copy of the recorded requests.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// Calls returns how many requests were made.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
