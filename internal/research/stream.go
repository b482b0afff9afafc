// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// Stream runs the workflow and reports progress on the returned channel:
// phase_update on every phase change, then either clarification events,
// or source events followed by one content event, and finally exactly one
// terminal done or error event. The channel is closed after the terminal
// event. The terminal event of a run carries its token usage in Metadata,
// including the partial usage of a failed run.
//
// When ctx is cancelled the producer stops sending and closes the channel.
// A model or retrieval call already in flight finishes under its own
// timeout; no further node runs after the cancellation is observed.
func (w *Workflow) Stream(ctx context.Context, req types.ResearchRequest) <-chan types.StreamEvent {
	out := make(chan types.StreamEvent)
	go func() {
		defer close(out)
		send := func(ev types.StreamEvent) bool {
			if ctx.Err() != nil {
				return false
			}
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if err := Validate(req); err != nil {
			send(types.StreamEvent{Type: types.EventError, Error: err.Error()})
			return
		}
		outcome, ok := w.execute(context.WithoutCancel(ctx), req, send)
		if !ok {
			return
		}
		for _, ev := range terminalEvents(outcome) {
			if !send(ev) {
				return
			}
		}
	}()
	return out
}

// terminalEvents renders an Outcome as the closing event sequence of a
// stream.
func terminalEvents(o Outcome) []types.StreamEvent {
	switch v := o.(type) {
	case *NeedsClarification:
		events := make([]types.StreamEvent, 0, len(v.Questions)+1)
		for i := range v.Questions {
			q := v.Questions[i]
			events = append(events, types.StreamEvent{Type: types.EventClarification, Clarification: &q})
		}
		return append(events, types.StreamEvent{Type: types.EventDone, Metadata: map[string]any{
			"status":             string(types.StatusNeedsClarification),
			"session_id":         v.SessionID,
			"processing_time_ms": v.ElapsedMS,
			"token_usage":        v.Usage,
		}})
	case *Completed:
		events := make([]types.StreamEvent, 0, len(v.Sources)+2)
		for i := range v.Sources {
			src := v.Sources[i]
			events = append(events, types.StreamEvent{Type: types.EventSource, Source: &src})
		}
		return append(events,
			types.StreamEvent{Type: types.EventContent, Content: v.Response},
			types.StreamEvent{Type: types.EventDone, Metadata: map[string]any{
				"status":             string(types.StatusCompleted),
				"session_id":         v.SessionID,
				"processing_time_ms": v.ElapsedMS,
				"token_usage":        v.Usage,
				"model_usage":        v.ModelUsage,
				"sources_used":       len(v.Sources),
			}})
	case *Failed:
		return []types.StreamEvent{{Type: types.EventError, Error: v.Message, Metadata: map[string]any{
			"status":             string(types.StatusFailed),
			"session_id":         v.SessionID,
			"processing_time_ms": v.ElapsedMS,
			"token_usage":        v.Usage,
			"model_usage":        v.ModelUsage,
		}}}
	}
	return []types.StreamEvent{{Type: types.EventError, Error: failureMessages[failNode]}}
}
