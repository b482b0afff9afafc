// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// maxQuestions caps clarification questions per run.
const maxQuestions = 3

// Clarification is the verdict on whether a query needs disambiguation.
type Clarification struct {
	Needed    bool
	Reasoning string
	Questions []types.ClarificationQuestion
	Model     string
	Usage     types.Usage
}

// Clarifier decides whether a research query is ambiguous and merges the
// user's answers into a refined query.
type Clarifier interface {
	Analyze(ctx context.Context, query string) (Clarification, error)
	BuildClarifiedQuery(ctx context.Context, query string, questions []types.ClarificationQuestion, answers []types.ClarificationAnswer) (string, string, types.Usage)
}

const clarifySystemPrompt = `You are a research assistant that helps users refine their queries before conducting in-depth research.
Analyze the user's research query and decide whether clarification is needed.

GUIDELINES:
1. Only ask for clarification if the query is genuinely ambiguous or too broad.
2. Simple, clear questions do NOT need clarification.
3. Ask at most 3 questions. Each question should be specific and helpful.
4. Provide suggested answers when appropriate.

Ask when the query has several interpretations, an unclear scope (time period, organism, population), or technical terms with more than one meaning.
Do not ask when the query is specific, factual, or already carries enough context.

Respond with JSON only:
{
  "needs_clarification": true,
  "reasoning": "why clarification is or isn't needed",
  "questions": [
    {"id": "q1", "question": "...", "context": "why this matters", "suggested_answers": ["...", "..."]}
  ]
}
The questions array is empty when no clarification is needed.`

const clarifiedQueryPrompt = `Based on the original query and the clarification answers, create an enhanced, specific research query that incorporates all the context provided.

Original Query: %s

Clarifications:
%s

Create a single, comprehensive research query that captures the user's intent precisely.
Only output the enhanced query, nothing else.`

// ModelClarifier asks a chat model for clarification questions.
type ModelClarifier struct {
	Chat  llm.ChatCompleter
	Model string
	Log   *zap.Logger
}

type clarifyReply struct {
	NeedsClarification bool   `json:"needs_clarification"`
	Reasoning          string `json:"reasoning"`
	Questions          []struct {
		ID               string   `json:"id"`
		Question         string   `json:"question"`
		Context          string   `json:"context"`
		SuggestedAnswers []string `json:"suggested_answers"`
	} `json:"questions"`
}

// Analyze asks the model whether query needs clarification. A reply that is
// not valid JSON means no clarification is needed; only transport errors are
// returned.
func (m *ModelClarifier) Analyze(ctx context.Context, query string) (Clarification, error) {
	resp, err := m.Chat.Complete(ctx, llm.Request{
		Model:       m.Model,
		System:      clarifySystemPrompt,
		Messages:    llm.UserText("Research Query: " + query),
		MaxTokens:   1000,
		Temperature: llm.Temperature(0.3),
	})
	if err != nil {
		return Clarification{}, fmt.Errorf("clarification call: %w", err)
	}
	out := Clarification{Model: resp.Model, Usage: resp.Usage}

	var reply clarifyReply
	if err := json.Unmarshal([]byte(stripFences(resp.Text)), &reply); err != nil {
		m.logger().Warn("unparseable clarification reply", zap.Error(err))
		return out, nil
	}
	out.Reasoning = reply.Reasoning
	for _, q := range reply.Questions {
		if strings.TrimSpace(q.Question) == "" {
			continue
		}
		id := q.ID
		if id == "" {
			id = uuid.NewString()
		}
		out.Questions = append(out.Questions, types.ClarificationQuestion{
			ID:               id,
			Question:         strings.TrimSpace(q.Question),
			Context:          q.Context,
			SuggestedAnswers: q.SuggestedAnswers,
		})
		if len(out.Questions) == maxQuestions {
			break
		}
	}
	out.Needed = reply.NeedsClarification && len(out.Questions) > 0
	return out, nil
}

// BuildClarifiedQuery merges query with the answered questions. When the
// model call fails the answers are appended to the query verbatim.
func (m *ModelClarifier) BuildClarifiedQuery(ctx context.Context, query string, questions []types.ClarificationQuestion, answers []types.ClarificationAnswer) (string, string, types.Usage) {
	prompt := fmt.Sprintf(clarifiedQueryPrompt, query, qaPairs(questions, answers))
	resp, err := m.Chat.Complete(ctx, llm.Request{
		Model:       m.Model,
		Messages:    llm.UserText(prompt),
		MaxTokens:   500,
		Temperature: llm.Temperature(0.3),
	})
	if err == nil && strings.TrimSpace(resp.Text) != "" {
		return strings.TrimSpace(resp.Text), resp.Model, resp.Usage
	}
	if err != nil {
		m.logger().Warn("building clarified query failed, appending answers", zap.Error(err))
	}
	return fallbackQuery(query, answers), resp.Model, resp.Usage
}

func (m *ModelClarifier) logger() *zap.Logger {
	if m.Log == nil {
		return zap.NewNop()
	}
	return m.Log
}

// qaPairs renders answered questions as "Q: ...\nA: ..." blocks. Answers are
// matched by question ID, then by position.
func qaPairs(questions []types.ClarificationQuestion, answers []types.ClarificationAnswer) string {
	byID := make(map[string]string, len(questions))
	for _, q := range questions {
		byID[q.ID] = q.Question
	}
	pairs := make([]string, 0, len(answers))
	for i, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok && i < len(questions) {
			q = questions[i].Question
		}
		if q == "" {
			q = fmt.Sprintf("Question %d", i+1)
		}
		pairs = append(pairs, "Q: "+q+"\nA: "+a.Answer)
	}
	return strings.Join(pairs, "\n\n")
}

func fallbackQuery(query string, answers []types.ClarificationAnswer) string {
	parts := make([]string, len(answers))
	for i, a := range answers {
		parts[i] = a.Answer
	}
	return fmt.Sprintf("%s (Context: %s)", query, strings.Join(parts, "; "))
}

// stripFences removes a Markdown code fence around a JSON reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
