// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"github.com/pdiddy/research-assistant/pkg/types"
)

// Outcome is the result of a research run: exactly one of
// *NeedsClarification, *Completed, or *Failed.
type Outcome interface {
	Session() string
	outcome()
}

// NeedsClarification asks the caller to collect answers and resubmit.
type NeedsClarification struct {
	SessionID  string
	Questions  []types.ClarificationQuestion
	Usage      types.Usage
	ModelUsage map[string]types.Usage
	ElapsedMS  int64
}

// Completed carries the synthesized answer and its sources.
type Completed struct {
	SessionID         string
	Response          string
	Sources           []types.Source
	TotalSourcesFound int
	Usage             types.Usage
	ModelUsage        map[string]types.Usage
	ElapsedMS         int64
}

// Failed carries a stable user-facing message. Raw error text is logged,
// never carried here.
type Failed struct {
	SessionID  string
	Message    string
	Usage      types.Usage
	ModelUsage map[string]types.Usage
	ElapsedMS  int64
}

func (o *NeedsClarification) Session() string { return o.SessionID }
func (o *Completed) Session() string          { return o.SessionID }
func (o *Failed) Session() string             { return o.SessionID }

func (*NeedsClarification) outcome() {}
func (*Completed) outcome()          {}
func (*Failed) outcome()             {}

// Envelope flattens an Outcome for JSON transport, with Status as the
// discriminator.
type Envelope struct {
	SessionID              string                        `json:"session_id"`
	Status                 types.ResearchStatus          `json:"status"`
	Phase                  types.ResearchPhase           `json:"phase"`
	ClarificationQuestions []types.ClarificationQuestion `json:"clarification_questions,omitempty"`
	Response               string                        `json:"response,omitempty"`
	Sources                []types.Source                `json:"sources,omitempty"`
	TotalSourcesFound      int                           `json:"total_sources_found"`
	SourcesUsed            int                           `json:"sources_used"`
	TokenUsage             types.Usage                   `json:"token_usage"`
	ModelUsage             map[string]types.Usage        `json:"model_usage,omitempty"`
	ProcessingTimeMS       int64                         `json:"processing_time_ms"`
	ErrorMessage           string                        `json:"error_message,omitempty"`
}

// NewEnvelope converts o to its transport form.
func NewEnvelope(o Outcome) Envelope {
	switch v := o.(type) {
	case *NeedsClarification:
		return Envelope{
			SessionID:              v.SessionID,
			Status:                 types.StatusNeedsClarification,
			Phase:                  types.PhaseClarification,
			ClarificationQuestions: v.Questions,
			TokenUsage:             v.Usage,
			ModelUsage:             v.ModelUsage,
			ProcessingTimeMS:       v.ElapsedMS,
		}
	case *Completed:
		return Envelope{
			SessionID:         v.SessionID,
			Status:            types.StatusCompleted,
			Phase:             types.PhaseCompleted,
			Response:          v.Response,
			Sources:           v.Sources,
			TotalSourcesFound: v.TotalSourcesFound,
			SourcesUsed:       len(v.Sources),
			TokenUsage:        v.Usage,
			ModelUsage:        v.ModelUsage,
			ProcessingTimeMS:  v.ElapsedMS,
		}
	case *Failed:
		return Envelope{
			SessionID:        v.SessionID,
			Status:           types.StatusFailed,
			Phase:            types.PhaseError,
			TokenUsage:       v.Usage,
			ModelUsage:       v.ModelUsage,
			ProcessingTimeMS: v.ElapsedMS,
			ErrorMessage:     v.Message,
		}
	}
	return Envelope{Status: types.StatusFailed, Phase: types.PhaseError, ErrorMessage: failureMessages[failNode]}
}

// outcomeOf builds the Outcome for a finished state.
func outcomeOf(s *State, elapsedMS int64) Outcome {
	usage := s.totalUsage()
	models := copyUsage(s.ModelUsage)
	switch {
	case s.failed() || s.Status == types.StatusFailed:
		msg := failureMessages[s.failure]
		if msg == "" {
			msg = failureMessages[failNode]
		}
		return &Failed{SessionID: s.SessionID, Message: msg, Usage: usage, ModelUsage: models, ElapsedMS: elapsedMS}
	case s.awaitingAnswers():
		return &NeedsClarification{
			SessionID:  s.SessionID,
			Questions:  append([]types.ClarificationQuestion(nil), s.PendingQuestions...),
			Usage:      usage,
			ModelUsage: models,
			ElapsedMS:  elapsedMS,
		}
	case s.Status == types.StatusCompleted:
		return &Completed{
			SessionID:         s.SessionID,
			Response:          s.FinalResponse,
			Sources:           s.Sources,
			TotalSourcesFound: len(s.RetrievedChunks),
			Usage:             usage,
			ModelUsage:        models,
			ElapsedMS:         elapsedMS,
		}
	}
	// The interpreter stopped without a terminal status.
	return &Failed{SessionID: s.SessionID, Message: failureMessages[failNode], Usage: usage, ModelUsage: models, ElapsedMS: elapsedMS}
}
