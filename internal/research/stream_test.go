// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/research-assistant/internal/llm/llmtest"
	"github.com/pdiddy/research-assistant/pkg/types"
)

func TestMain(m *testing.M) {
	// The genai dependency starts an opencensus worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func collect(t *testing.T, ch <-chan types.StreamEvent) []types.StreamEvent {
	t.Helper()
	var events []types.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream did not close; got %d events", len(events))
			return events
		}
	}
}

func eventTypes(events []types.StreamEvent) []types.StreamEventType {
	out := make([]types.StreamEventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func phases(events []types.StreamEvent) []types.ResearchPhase {
	var out []types.ResearchPhase
	for _, ev := range events {
		if ev.Type == types.EventPhaseUpdate {
			out = append(out, ev.Phase)
		}
	}
	return out
}

func terminals(events []types.StreamEvent) int {
	n := 0
	for _, ev := range events {
		if ev.Terminal() {
			n++
		}
	}
	return n
}

func TestStream_Completed(t *testing.T) {
	f := newFixture(t, types.ResearchConfig{},
		[]llmtest.Reply{llmtest.Text(synthesisReply, 900, 120)},
		llmtest.Text(`{"needs_clarification": false, "questions": []}`, 50, 10),
	)
	events := collect(t, f.wf.Stream(context.Background(), types.ResearchRequest{Query: "How does CRISPR cut DNA?"}))

	require.NotEmpty(t, events)
	assert.Equal(t, []types.ResearchPhase{
		types.PhaseClarification, types.PhaseRetrieval, types.PhaseSynthesis, types.PhaseCompleted,
	}, phases(events))
	assert.Equal(t, 1, terminals(events))

	last := events[len(events)-1]
	assert.Equal(t, types.EventDone, last.Type)
	assert.Equal(t, string(types.StatusCompleted), last.Metadata["status"])
	assert.Equal(t, 3, last.Metadata["sources_used"])

	// Sources precede the single content event, which precedes done.
	kinds := eventTypes(events)
	content := -1
	for i, k := range kinds {
		switch k {
		case types.EventSource:
			assert.Equal(t, -1, content, "source after content at %d", i)
		case types.EventContent:
			assert.Equal(t, -1, content, "second content event at %d", i)
			content = i
		}
	}
	require.NotEqual(t, -1, content)
	assert.Equal(t, synthesisReply, events[content].Content)
	assert.Equal(t, len(kinds)-2, content)
}

func TestStream_Clarification(t *testing.T) {
	f := newFixture(t, types.ResearchConfig{}, nil, llmtest.Text(ambiguousReply, 200, 80))
	events := collect(t, f.wf.Stream(context.Background(), types.ResearchRequest{Query: "Tell me about CRISPR"}))

	assert.Equal(t, []types.StreamEventType{
		types.EventPhaseUpdate, types.EventClarification, types.EventClarification, types.EventDone,
	}, eventTypes(events))
	assert.Equal(t, "q1", events[1].Clarification.ID)
	assert.Equal(t, "q2", events[2].Clarification.ID)

	done := events[3]
	assert.Equal(t, string(types.StatusNeedsClarification), done.Metadata["status"])
	assert.NotEmpty(t, done.Metadata["session_id"])
	assert.Zero(t, f.chat.Calls())
}

func TestStream_ErrorTerminal(t *testing.T) {
	f := newFixture(t, types.ResearchConfig{}, nil)
	f.wf.next = func(*State, Node) Node { return NodeRetrieval }
	events := collect(t, f.wf.Stream(context.Background(), types.ResearchRequest{Query: "gene drive", SkipClarification: true}))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, types.EventError, last.Type)
	assert.Equal(t, "Research workflow detected a cycle and was stopped.", last.Error)
	assert.Equal(t, 1, terminals(events))
	assert.Contains(t, phases(events), types.PhaseError)
}

func TestStream_ConsumerCancel(t *testing.T) {
	f := newFixture(t, types.ResearchConfig{}, []llmtest.Reply{llmtest.Text(synthesisReply, 1, 1)})
	f.emb.delay = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := f.wf.Stream(ctx, types.ResearchRequest{Query: "What is a gene?", SkipClarification: true})
	first, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, types.EventPhaseUpdate, first.Type)
	cancel()

	rest := collect(t, ch)
	assert.LessOrEqual(t, len(rest), 1, "producer must stop after cancellation: %v", eventTypes(rest))
	assert.Zero(t, terminals(rest))
}

func TestStream_InvalidRequest(t *testing.T) {
	f := newFixture(t, types.ResearchConfig{}, nil)
	events := collect(t, f.wf.Stream(context.Background(), types.ResearchRequest{Query: "   "}))

	require.Len(t, events, 1)
	assert.Equal(t, types.EventError, events[0].Type)
	assert.Equal(t, ErrEmptyQuery.Error(), events[0].Error)
	assert.Empty(t, f.emb.queries)
}

func TestStream_ErrorCarriesPartialUsage(t *testing.T) {
	newFailing := func() *fixture {
		f := newFixture(t, types.ResearchConfig{}, nil,
			llmtest.Text(`{"needs_clarification": false, "questions": []}`, 300, 40))
		f.emb.err = errors.New("connection refused")
		return f
	}
	req := types.ResearchRequest{Query: "What is epistasis?"}

	out, err := newFailing().wf.Research(context.Background(), req)
	require.NoError(t, err)
	failed, ok := out.(*Failed)
	require.True(t, ok, "got %T", out)

	events := collect(t, newFailing().wf.Stream(context.Background(), req))
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, types.EventError, last.Type)
	assert.Equal(t, failed.Message, last.Error)
	assert.Equal(t, string(types.StatusFailed), last.Metadata["status"])
	assert.Equal(t, types.Usage{InputTokens: 300, OutputTokens: 40}, last.Metadata["token_usage"])
	assert.Equal(t, failed.Usage, last.Metadata["token_usage"])
	assert.NotEmpty(t, last.Metadata["session_id"])
}

func TestTerminalEvents_Failed(t *testing.T) {
	events := terminalEvents(&Failed{
		SessionID: "s",
		Message:   "Research failed. Please try again later.",
		Usage:     types.Usage{InputTokens: 7, OutputTokens: 2},
		ElapsedMS: 12,
	})
	require.Len(t, events, 1)
	assert.True(t, events[0].Terminal())
	assert.Equal(t, "Research failed. Please try again later.", events[0].Error)
	assert.Equal(t, types.Usage{InputTokens: 7, OutputTokens: 2}, events[0].Metadata["token_usage"])
	assert.Equal(t, int64(12), events[0].Metadata["processing_time_ms"])
	assert.Equal(t, "s", events[0].Metadata["session_id"])
}
