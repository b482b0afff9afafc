// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"time"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// Node names a step of the research state machine.
type Node string

const (
	NodeClarification Node = "clarification"
	NodeAwaitAnswers  Node = "await_answers"
	NodeRetrieval     Node = "retrieval"
	NodeReranking     Node = "reranking"
	NodeSynthesis     Node = "synthesis"
	NodeErrorHandler  Node = "error_handler"

	// nodeEnd stops the interpreter.
	nodeEnd Node = ""
)

// failure classifies why a run reached the error handler. Each kind maps to
// one stable user-facing message.
type failure int

const (
	failNone failure = iota
	failNode
	failSynthesis
	failCycle
	failMaxIterations
	failDeadline
)

var failureMessages = map[failure]string{
	failNode:          "Research failed. Please try again later.",
	failSynthesis:     "Research synthesis failed. Please try again later.",
	failCycle:         "Research workflow detected a cycle and was stopped.",
	failMaxIterations: "Research workflow exceeded maximum iterations. Please try a simpler query.",
	failDeadline:      "Research took too long and was stopped. Please try again later.",
}

// State is the mutable record of one research run. It is owned by a single
// goroutine for the lifetime of the run.
type State struct {
	OriginalQuery  string
	ClarifiedQuery string
	SessionID      string
	UserID         string
	UserName       string

	PendingQuestions  []types.ClarificationQuestion
	UserAnswers       []types.ClarificationAnswer
	NeedsClarify      bool
	ClarificationDone bool

	RetrievedChunks []types.Chunk
	RerankedChunks  []types.Chunk
	TopK            int

	Phase          types.ResearchPhase
	Status         types.ResearchStatus
	VisitedNodes   []Node
	IterationCount int
	MaxIterations  int
	ErrorMessage   string
	failure        failure

	FinalResponse string
	Sources       []types.Source

	ModelUsage   map[string]types.Usage
	PhaseTimings map[Node]time.Duration
	StartedAt    time.Time
	CompletedAt  time.Time
}

// newState builds the initial state for req.
func newState(req types.ResearchRequest, sessionID string, topK, maxIterations int, now time.Time) *State {
	return &State{
		OriginalQuery:     req.Query,
		SessionID:         sessionID,
		UserID:            req.UserID,
		UserName:          req.UserName,
		PendingQuestions:  req.Questions,
		UserAnswers:       nonEmptyAnswers(req.Answers),
		ClarificationDone: req.SkipClarification,
		TopK:              topK,
		Phase:             types.PhaseClarification,
		Status:            types.StatusPending,
		MaxIterations:     maxIterations,
		ModelUsage:        make(map[string]types.Usage),
		PhaseTimings:      make(map[Node]time.Duration),
		StartedAt:         now,
	}
}

func nonEmptyAnswers(answers []types.ClarificationAnswer) []types.ClarificationAnswer {
	var out []types.ClarificationAnswer
	for _, a := range answers {
		if a.Answer != "" {
			out = append(out, a)
		}
	}
	return out
}

// query is the text retrieval and synthesis work from.
func (s *State) query() string {
	if s.ClarifiedQuery != "" {
		return s.ClarifiedQuery
	}
	return s.OriginalQuery
}

// addUsage accumulates token usage for model.
func (s *State) addUsage(model string, u types.Usage) {
	if u.Total() == 0 {
		return
	}
	if model == "" {
		model = "unknown"
	}
	s.ModelUsage[model] = s.ModelUsage[model].Add(u)
}

// totalUsage sums usage across models.
func (s *State) totalUsage() types.Usage {
	var total types.Usage
	for _, u := range s.ModelUsage {
		total = total.Add(u)
	}
	return total
}

// fail records a failure. The first failure wins.
func (s *State) fail(kind failure, msg string) {
	if s.failure != failNone {
		return
	}
	s.failure = kind
	s.ErrorMessage = msg
}

func (s *State) failed() bool {
	return s.failure != failNone
}

// awaitingAnswers reports whether the run must stop and return questions.
func (s *State) awaitingAnswers() bool {
	return s.Status == types.StatusNeedsClarification && len(s.PendingQuestions) > 0
}

// ranked returns the chunks synthesis works from: the reranked set, or the
// first TopK retrieved chunks in retrieval order when reranking was skipped.
func (s *State) ranked() []types.Chunk {
	if s.RerankedChunks != nil {
		return s.RerankedChunks
	}
	return firstK(s.RetrievedChunks, s.TopK)
}

func firstK(chunks []types.Chunk, k int) []types.Chunk {
	if k <= 0 || k > len(chunks) {
		k = len(chunks)
	}
	return append([]types.Chunk{}, chunks[:k]...)
}

func copyUsage(m map[string]types.Usage) map[string]types.Usage {
	out := make(map[string]types.Usage, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
