// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ChunkMetadata carries bibliographic details of the document a chunk came from.
type ChunkMetadata struct {
	Title      string            `json:"title,omitempty" yaml:"title,omitempty"`
	Author     string            `json:"author,omitempty" yaml:"author,omitempty"`
	Year       string            `json:"year,omitempty" yaml:"year,omitempty"`
	Publisher  string            `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Journal    string            `json:"journal,omitempty" yaml:"journal,omitempty"`
	DOI        string            `json:"doi,omitempty" yaml:"doi,omitempty"`
	ISBN       string            `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	URL        string            `json:"url,omitempty" yaml:"url,omitempty"`
	SourceType string            `json:"source_type,omitempty" yaml:"source_type,omitempty"`
	Pages      string            `json:"pages,omitempty" yaml:"pages,omitempty"`
	Edition    string            `json:"edition,omitempty" yaml:"edition,omitempty"`
	Place      string            `json:"place,omitempty" yaml:"place,omitempty"`
	Extra      map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Chunk is a retrieved passage of source text.
type Chunk struct {
	// ID is the stable chunk identifier.
	ID string `json:"id" yaml:"id"`

	// Text is the passage content.
	Text string `json:"text" yaml:"text"`

	// Score is the vector similarity in [0,1].
	Score float64 `json:"score" yaml:"score"`

	// RerankScore is set only when a reranker scored the chunk.
	RerankScore *float64 `json:"rerank_score,omitempty" yaml:"rerank_score,omitempty"`

	// Metadata describes the originating document.
	Metadata ChunkMetadata `json:"metadata" yaml:"metadata"`
}

// Source is a cited document in a research answer.
type Source struct {
	ID             string   `json:"id" yaml:"id"`
	Title          string   `json:"title" yaml:"title"`
	ContentPreview string   `json:"content_preview" yaml:"content_preview"`
	RelevanceScore float64  `json:"relevance_score" yaml:"relevance_score"`
	RerankScore    *float64 `json:"rerank_score,omitempty" yaml:"rerank_score,omitempty"`
	CitationKey    string   `json:"citation_key" yaml:"citation_key"`
	Author         string   `json:"author,omitempty" yaml:"author,omitempty"`
	Year           string   `json:"year,omitempty" yaml:"year,omitempty"`
	Publisher      string   `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Journal        string   `json:"journal,omitempty" yaml:"journal,omitempty"`
	DOI            string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	ISBN           string   `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	URL            string   `json:"url,omitempty" yaml:"url,omitempty"`
	SourceType     string   `json:"source_type,omitempty" yaml:"source_type,omitempty"`
	Pages          string   `json:"pages,omitempty" yaml:"pages,omitempty"`
	Edition        string   `json:"edition,omitempty" yaml:"edition,omitempty"`
	Place          string   `json:"place,omitempty" yaml:"place,omitempty"`

	// Cited reports whether CitationKey appears in the synthesized answer.
	Cited bool `json:"cited" yaml:"cited"`
}

// ClarificationQuestion is one question asked before research proceeds.
type ClarificationQuestion struct {
	ID               string   `json:"id" yaml:"id"`
	Question         string   `json:"question" yaml:"question"`
	Context          string   `json:"context,omitempty" yaml:"context,omitempty"`
	SuggestedAnswers []string `json:"suggested_answers,omitempty" yaml:"suggested_answers,omitempty"`
}

// ClarificationAnswer is the user's reply to a ClarificationQuestion.
type ClarificationAnswer struct {
	QuestionID string `json:"question_id" yaml:"question_id"`
	Answer     string `json:"answer" yaml:"answer"`
}

// ResearchPhase is the coarse progress marker of a research run.
type ResearchPhase string

const (
	PhaseClarification ResearchPhase = "clarification"
	PhaseAwaitAnswers  ResearchPhase = "await_answers"
	PhaseRetrieval     ResearchPhase = "retrieval"
	PhaseReranking     ResearchPhase = "reranking"
	PhaseSynthesis     ResearchPhase = "synthesis"
	PhaseCompleted     ResearchPhase = "completed"
	PhaseError         ResearchPhase = "error"
)

// ResearchStatus is the externally visible status of a research run.
type ResearchStatus string

const (
	StatusPending            ResearchStatus = "pending"
	StatusInProgress         ResearchStatus = "in_progress"
	StatusNeedsClarification ResearchStatus = "needs_clarification"
	StatusCompleted          ResearchStatus = "completed"
	StatusFailed             ResearchStatus = "failed"
)

// ResearchRequest starts or resumes a research run.
type ResearchRequest struct {
	UserContext `yaml:",inline"`

	// Query is the research question (1-10000 characters).
	Query string `json:"query" yaml:"query"`

	// SessionID resumes a prior run that asked for clarification.
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`

	// Questions echoes the clarification questions being answered.
	Questions []ClarificationQuestion `json:"questions,omitempty" yaml:"questions,omitempty"`

	// Answers are the user's clarification answers. Non-empty answers skip
	// the clarification node.
	Answers []ClarificationAnswer `json:"answers,omitempty" yaml:"answers,omitempty"`

	// TopK is the number of chunks kept after reranking (1-50, default 20).
	TopK int `json:"top_k,omitempty" yaml:"top_k,omitempty"`

	// SkipClarification proceeds straight to retrieval.
	SkipClarification bool `json:"skip_clarification,omitempty" yaml:"skip_clarification,omitempty"`
}

// StreamEventType discriminates StreamEvent payloads.
type StreamEventType string

const (
	EventPhaseUpdate   StreamEventType = "phase_update"
	EventClarification StreamEventType = "clarification"
	EventSource        StreamEventType = "source"
	EventContent       StreamEventType = "content"
	EventDone          StreamEventType = "done"
	EventError         StreamEventType = "error"
)

// StreamEvent is one incremental progress event of a streamed research run.
type StreamEvent struct {
	Type StreamEventType `json:"type" yaml:"type"`

	// Phase and Node are set on phase_update.
	Phase ResearchPhase `json:"phase,omitempty" yaml:"phase,omitempty"`
	Node  string        `json:"node,omitempty" yaml:"node,omitempty"`

	// Clarification is set on clarification events.
	Clarification *ClarificationQuestion `json:"clarification,omitempty" yaml:"clarification,omitempty"`

	// Source is set on source events.
	Source *Source `json:"source,omitempty" yaml:"source,omitempty"`

	// Content is set on content events.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`

	// Metadata is set on terminal events of a run (status, session_id, usage,
	// elapsed).
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Error is set on error events.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Terminal reports whether e ends a stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
