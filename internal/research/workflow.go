// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package research runs the deep-research workflow: an optional
// clarification round, vector retrieval, reranking, and cited synthesis.
//
// The workflow is a fixed state machine. An interpreter loop applies the
// iteration and cycle guard before every node and routes failures to a
// terminal error handler, so every run ends in exactly one Outcome.
// Stream runs the same interpreter and reports progress as events.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/embedding"
	"github.com/pdiddy/research-assistant/internal/knowledge"
	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/internal/rerank"
	"github.com/pdiddy/research-assistant/internal/usage"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// Request limits.
const (
	MaxQueryLength = 10000
	MaxTopK        = 50
)

var (
	// ErrEmptyQuery is returned for a blank research query.
	ErrEmptyQuery = errors.New("research query is empty")

	// ErrQueryTooLong is returned for queries over MaxQueryLength characters.
	ErrQueryTooLong = fmt.Errorf("research query exceeds %d characters", MaxQueryLength)

	// ErrInvalidTopK is returned when TopK is outside 1..MaxTopK.
	ErrInvalidTopK = fmt.Errorf("top_k must be between 1 and %d", MaxTopK)
)

// Validate checks req against the request limits.
func Validate(req types.ResearchRequest) error {
	switch {
	case strings.TrimSpace(req.Query) == "":
		return ErrEmptyQuery
	case utf8.RuneCountInString(req.Query) > MaxQueryLength:
		return ErrQueryTooLong
	case req.TopK < 0 || req.TopK > MaxTopK:
		return ErrInvalidTopK
	}
	return nil
}

// Deps are the collaborators of a Workflow. Chat, Embedder, and Vectors
// are required. Without a Clarifier every query proceeds straight to
// retrieval; without an available Reranker the reranking node is skipped.
type Deps struct {
	Chat      llm.ChatCompleter
	Clarifier Clarifier
	Embedder  embedding.Embedder
	Vectors   knowledge.VectorSearcher
	Reranker  rerank.Reranker
	Usage     *usage.Recorder
	Log       *zap.Logger
}

// Workflow executes research runs. It holds no per-run state and is safe
// for concurrent use.
type Workflow struct {
	cfg       types.ResearchConfig
	model     string
	chat      llm.ChatCompleter
	clarifier Clarifier
	emb       embedding.Embedder
	vectors   knowledge.VectorSearcher
	reranker  rerank.Reranker
	usage     *usage.Recorder
	log       *zap.Logger

	// next routes from a finished node; tests replace it to force loops.
	next func(s *State, from Node) Node
	now  func() time.Time
}

// SynthesisAI returns ai with a client timeout long enough for the
// synthesis call. The chat client's own timeout would otherwise cut
// synthesis off before SynthesisTimeout.
func SynthesisAI(ai types.AIConfig, cfg types.ResearchConfig) types.AIConfig {
	timeout := cfg.SynthesisTimeout
	if timeout <= 0 {
		timeout = types.DefaultConfig().Research.SynthesisTimeout
	}
	if timeout > ai.Timeout {
		ai.Timeout = timeout
	}
	return ai
}

// New builds a Workflow from cfg and deps. Zero config values take their
// defaults; ai supplies the synthesis model when cfg does not name one.
func New(cfg types.ResearchConfig, ai types.AIConfig, deps Deps) (*Workflow, error) {
	if deps.Chat == nil || deps.Embedder == nil || deps.Vectors == nil {
		return nil, errors.New("research workflow requires a chat model, an embedder, and a vector index")
	}
	d := types.DefaultConfig().Research
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = d.MaxIterations
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = d.DefaultTopK
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = d.MaxChunks
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = d.ContextBudget
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = d.PreviewLength
	}
	if cfg.SynthesisMaxTokens <= 0 {
		cfg.SynthesisMaxTokens = d.SynthesisMaxTokens
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = d.SynthesisTimeout
	}
	model := cfg.SynthesisModel
	if model == "" {
		model = ai.Model
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	w := &Workflow{
		cfg:       cfg,
		model:     model,
		chat:      deps.Chat,
		clarifier: deps.Clarifier,
		emb:       deps.Embedder,
		vectors:   deps.Vectors,
		reranker:  deps.Reranker,
		usage:     deps.Usage,
		log:       log,
		now:       time.Now,
	}
	w.next = w.transition
	return w, nil
}

// Research runs the workflow to completion or to a clarification stop.
// The error is non-nil only for requests that fail Validate.
func (w *Workflow) Research(ctx context.Context, req types.ResearchRequest) (Outcome, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	out, _ := w.execute(ctx, req, nil)
	return out, nil
}

// emitFunc delivers a progress event. It returns false when the consumer
// has gone away.
type emitFunc func(types.StreamEvent) bool

// execute prepares the state, runs the interpreter, and records usage. The
// boolean is false when emit reported the consumer gone.
func (w *Workflow) execute(ctx context.Context, req types.ResearchRequest, emit emitFunc) (Outcome, bool) {
	start := w.now()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	topK := req.TopK
	if topK <= 0 {
		topK = w.cfg.DefaultTopK
	}
	s := newState(req, sessionID, topK, w.cfg.MaxIterations, start)

	if w.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Deadline)
		defer cancel()
	}

	w.log.Info("research started",
		zap.String("session_id", sessionID),
		zap.String("user_id", s.UserID),
		zap.Int("top_k", topK),
		zap.Bool("resumed", len(s.UserAnswers) > 0))

	ok := w.run(ctx, s, emit)
	out := outcomeOf(s, w.now().Sub(start).Milliseconds())
	w.record(ctx, s, out)
	return out, ok
}

// run is the interpreter loop. The guard runs before every node; a failure
// anywhere routes to the error handler, which always ends the run.
func (w *Workflow) run(ctx context.Context, s *State, emit emitFunc) bool {
	var lastPhase types.ResearchPhase
	notify := func(node Node) bool {
		if emit == nil || s.Phase == lastPhase {
			return true
		}
		lastPhase = s.Phase
		return emit(types.StreamEvent{Type: types.EventPhaseUpdate, Phase: s.Phase, Node: string(node)})
	}

	node := NodeClarification
	for node != nodeEnd {
		if node != NodeErrorHandler {
			if err := ctx.Err(); err != nil {
				kind := failNode
				if errors.Is(err, context.DeadlineExceeded) {
					kind = failDeadline
				}
				s.fail(kind, fmt.Sprintf("stopped before node %s: %v", node, err))
				node = NodeErrorHandler
			} else if !w.guard(s, node) {
				node = NodeErrorHandler
			}
		}
		if node == NodeErrorHandler {
			s.VisitedNodes = append(s.VisitedNodes, NodeErrorHandler)
			w.errorHandler(s)
			return notify(NodeErrorHandler)
		}

		s.Phase = phaseOf(node)
		if !notify(node) {
			return false
		}
		next := w.step(ctx, s, node)
		if !notify(node) {
			return false
		}
		if s.failed() {
			next = NodeErrorHandler
		} else if s.awaitingAnswers() {
			return true
		}
		node = next
	}
	return true
}

// guard enforces the iteration cap and rejects a node that would run twice
// in a row. It records the visit when the node may run.
func (w *Workflow) guard(s *State, node Node) bool {
	if s.IterationCount >= s.MaxIterations {
		s.fail(failMaxIterations, "max iterations exceeded")
		return false
	}
	if n := len(s.VisitedNodes); n > 0 && s.VisitedNodes[n-1] == node {
		s.fail(failCycle, fmt.Sprintf("cycle detected at node %s", node))
		return false
	}
	s.IterationCount++
	s.VisitedNodes = append(s.VisitedNodes, node)
	return true
}

// step executes node against s and returns the node to run next.
func (w *Workflow) step(ctx context.Context, s *State, node Node) Node {
	start := w.now()
	switch node {
	case NodeClarification:
		w.clarification(ctx, s)
	case NodeAwaitAnswers:
		w.awaitAnswers(ctx, s)
	case NodeRetrieval:
		w.retrieval(ctx, s)
	case NodeReranking:
		w.reranking(ctx, s)
	case NodeSynthesis:
		w.synthesis(ctx, s)
	default:
		s.fail(failNode, "unknown node "+string(node))
	}
	s.PhaseTimings[node] += w.now().Sub(start)
	return w.next(s, node)
}

// transition is the fixed edge set of the workflow.
func (w *Workflow) transition(s *State, from Node) Node {
	switch from {
	case NodeClarification:
		return afterClarification(s)
	case NodeAwaitAnswers:
		return afterAnswers(s)
	case NodeRetrieval:
		return w.afterRetrieval(s)
	case NodeReranking:
		if s.failed() {
			return NodeErrorHandler
		}
		return NodeSynthesis
	case NodeSynthesis:
		if s.failed() {
			return NodeErrorHandler
		}
	}
	return nodeEnd
}

func afterClarification(s *State) Node {
	switch {
	case s.failed():
		return NodeErrorHandler
	case len(s.UserAnswers) > 0:
		// Supplied answers are merged even when clarification was skipped.
		return NodeAwaitAnswers
	case s.ClarificationDone:
		return NodeRetrieval
	case s.NeedsClarify:
		return NodeAwaitAnswers
	}
	return NodeRetrieval
}

func afterAnswers(s *State) Node {
	if s.failed() {
		return NodeErrorHandler
	}
	if s.awaitingAnswers() {
		return nodeEnd
	}
	return NodeRetrieval
}

func (w *Workflow) afterRetrieval(s *State) Node {
	switch {
	case s.failed():
		return NodeErrorHandler
	case w.rerankAvailable():
		return NodeReranking
	}
	return NodeSynthesis
}

func (w *Workflow) rerankAvailable() bool {
	return w.reranker != nil && w.reranker.Available()
}

func phaseOf(n Node) types.ResearchPhase {
	switch n {
	case NodeClarification:
		return types.PhaseClarification
	case NodeAwaitAnswers:
		return types.PhaseAwaitAnswers
	case NodeRetrieval:
		return types.PhaseRetrieval
	case NodeReranking:
		return types.PhaseReranking
	case NodeSynthesis:
		return types.PhaseSynthesis
	}
	return types.PhaseError
}

func (w *Workflow) clarification(ctx context.Context, s *State) {
	switch {
	case len(s.UserAnswers) > 0:
		// Resumed run: answers are merged by await_answers.
		s.NeedsClarify = false
		s.Status = types.StatusInProgress
		return
	case s.ClarificationDone:
		s.NeedsClarify = false
		s.Status = types.StatusInProgress
		return
	case w.clarifier == nil:
		s.ClarificationDone = true
		s.Status = types.StatusInProgress
		return
	}

	c, err := w.clarifier.Analyze(ctx, s.OriginalQuery)
	s.addUsage(c.Model, c.Usage)
	if err != nil {
		w.log.Warn("clarification failed, proceeding without it",
			zap.String("session_id", s.SessionID), zap.Error(err))
		s.ClarificationDone = true
		s.Status = types.StatusInProgress
		return
	}
	if c.Needed {
		s.PendingQuestions = c.Questions
		s.NeedsClarify = true
		s.Status = types.StatusNeedsClarification
		w.log.Info("clarification requested",
			zap.String("session_id", s.SessionID), zap.Int("questions", len(c.Questions)))
		return
	}
	s.ClarificationDone = true
	s.Status = types.StatusInProgress
}

func (w *Workflow) awaitAnswers(ctx context.Context, s *State) {
	if len(s.UserAnswers) == 0 {
		s.Status = types.StatusNeedsClarification
		return
	}
	if w.clarifier == nil {
		s.ClarifiedQuery = fallbackQuery(s.OriginalQuery, s.UserAnswers)
	} else {
		q, model, u := w.clarifier.BuildClarifiedQuery(ctx, s.OriginalQuery, s.PendingQuestions, s.UserAnswers)
		s.addUsage(model, u)
		s.ClarifiedQuery = q
	}
	s.PendingQuestions = nil
	s.NeedsClarify = false
	s.ClarificationDone = true
	s.Status = types.StatusInProgress
}

func (w *Workflow) retrieval(ctx context.Context, s *State) {
	s.Status = types.StatusInProgress
	n := min(s.TopK*4, w.cfg.MaxChunks)
	vec, err := w.emb.Embed(ctx, s.query())
	if err != nil {
		w.log.Error("embedding research query failed", zap.String("session_id", s.SessionID), zap.Error(err))
		s.fail(failNode, "retrieval: embedding query: "+err.Error())
		return
	}
	chunks, err := w.vectors.Search(ctx, vec, n)
	if err != nil {
		w.log.Error("vector search failed", zap.String("session_id", s.SessionID), zap.Error(err))
		s.fail(failNode, "retrieval: vector search: "+err.Error())
		return
	}
	if chunks == nil {
		chunks = []types.Chunk{}
	}
	s.RetrievedChunks = chunks
	w.log.Info("retrieved chunks",
		zap.String("session_id", s.SessionID), zap.Int("requested", n), zap.Int("found", len(chunks)))
}

// reranking never fails the run: any error keeps the first TopK chunks in
// retrieval order.
func (w *Workflow) reranking(ctx context.Context, s *State) {
	if len(s.RetrievedChunks) == 0 {
		s.RerankedChunks = []types.Chunk{}
		return
	}
	out, err := w.reranker.Rerank(ctx, s.query(), s.RetrievedChunks, s.TopK)
	if err == nil && len(out) == 0 {
		err = errors.New("reranker returned no documents")
	}
	if err != nil {
		w.log.Warn("reranking failed, keeping retrieval order",
			zap.String("session_id", s.SessionID), zap.Error(err))
		s.RerankedChunks = firstK(s.RetrievedChunks, s.TopK)
		return
	}
	s.RerankedChunks = out
}

func (w *Workflow) synthesis(ctx context.Context, s *State) {
	chunks := s.ranked()
	if s.RerankedChunks == nil {
		s.RerankedChunks = chunks
	}
	contextText, sources := buildContext(chunks, w.cfg.ContextBudget, w.cfg.PreviewLength)
	if len(sources) == 0 {
		w.log.Warn("no chunks available for synthesis", zap.String("session_id", s.SessionID))
		s.complete(noResultsResponse, []types.Source{}, w.now())
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.SynthesisTimeout)
	defer cancel()
	resp, err := w.chat.Complete(callCtx, llm.Request{
		Model:       w.model,
		System:      synthesisSystemPrompt,
		Messages:    llm.UserText(fmt.Sprintf(synthesisUserPrompt, s.query(), contextText)),
		MaxTokens:   w.cfg.SynthesisMaxTokens,
		Temperature: llm.Temperature(0.3),
	})
	model := resp.Model
	if model == "" {
		model = w.model
	}
	s.addUsage(model, resp.Usage)
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		w.log.Error("synthesis failed", zap.String("session_id", s.SessionID), zap.Error(err))
		s.fail(failSynthesis, "synthesis: "+err.Error())
		return
	}
	markCited(resp.Text, sources)
	w.log.Info("synthesis complete",
		zap.String("session_id", s.SessionID),
		zap.Int("context_chars", len(contextText)),
		zap.Int("sources", len(sources)),
		zap.Int("response_chars", len(resp.Text)))
	s.complete(resp.Text, sources, w.now())
}

func (s *State) complete(response string, sources []types.Source, now time.Time) {
	s.FinalResponse = response
	s.Sources = sources
	s.Phase = types.PhaseCompleted
	s.Status = types.StatusCompleted
	s.CompletedAt = now
}

func (w *Workflow) errorHandler(s *State) {
	if !s.failed() {
		s.fail(failNode, "error handler reached without a recorded failure")
	}
	s.Phase = types.PhaseError
	s.Status = types.StatusFailed
	s.CompletedAt = w.now()
	w.log.Error("research failed",
		zap.String("session_id", s.SessionID),
		zap.String("error_message", s.ErrorMessage),
		zap.Int("iterations", s.IterationCount),
		zap.Strings("visited_nodes", nodeNames(s.VisitedNodes)))
}

// record logs the run summary and its per-model token usage.
func (w *Workflow) record(ctx context.Context, s *State, out Outcome) {
	env := NewEnvelope(out)
	for model, u := range s.ModelUsage {
		w.usage.Record(ctx, usage.Record{
			UserID:   s.UserID,
			UserName: s.UserName,
			Model:    model,
			Kind:     usage.KindResearch,
			Usage:    u,
			Preview:  s.OriginalQuery,
		})
	}
	w.log.Info("research finished",
		zap.String("session_id", s.SessionID),
		zap.String("status", string(env.Status)),
		zap.String("phase", string(s.Phase)),
		zap.Int("sources_used", env.SourcesUsed),
		zap.Int("total_sources_found", len(s.RetrievedChunks)),
		zap.Int("iterations", s.IterationCount),
		zap.Int("total_tokens", env.TokenUsage.Total()),
		zap.Int64("processing_time_ms", env.ProcessingTimeMS))
}

func nodeNames(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = string(n)
	}
	return out
}
