// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the research assistant:
// configuration, queries and routing results, research requests and stream
// events, and knowledge records.
package types

import "time"

// Category is the handling class of a question.
type Category string

const (
	CategoryConversational Category = "conversational"
	CategoryKnowledge      Category = "knowledge"
	CategoryTools          Category = "tools"
	CategoryHybrid         Category = "hybrid"
)

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryConversational, CategoryKnowledge, CategoryTools, CategoryHybrid:
		return true
	}
	return false
}

// ClassificationSource records which classifier produced a result.
type ClassificationSource string

const (
	SourceRule  ClassificationSource = "rule"
	SourceModel ClassificationSource = "model"
)

// SourceTag names a data source that contributed to an answer.
type SourceTag string

const (
	TagModelOnly     SourceTag = "model_only"
	TagVectorSearch  SourceTag = "vector_search"
	TagRAGContext    SourceTag = "rag_context"
	TagDomainLookup  SourceTag = "domain_lookup"
	TagTools         SourceTag = "tools"
	TagResponseCache SourceTag = "response_cache"
)

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of prior conversation.
type Turn struct {
	Role Role   `json:"role" yaml:"role"`
	Text string `json:"text" yaml:"text"`
}

// UserContext identifies the person asking, for attribution and accounting.
type UserContext struct {
	// UserID is the stable account identifier.
	UserID string `json:"user_id,omitempty" yaml:"user_id,omitempty"`

	// UserName is the display name used in prompts and usage records.
	UserName string `json:"user_name,omitempty" yaml:"user_name,omitempty"`
}

// Query is a single user question with its surrounding context.
type Query struct {
	UserContext `yaml:",inline"`

	// Text is the question as typed.
	Text string `json:"text" yaml:"text"`

	// PageContext names the page the question was asked from (e.g. "punnett-lab").
	PageContext string `json:"page_context,omitempty" yaml:"page_context,omitempty"`

	// SessionID keys conversation memory. Empty disables memory.
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`

	// History is prior conversation supplied by the caller. When empty and a
	// session is set, history is loaded from conversation memory.
	History []Turn `json:"history,omitempty" yaml:"history,omitempty"`
}

// ClassificationResult is the outcome of classifying one question.
type ClassificationResult struct {
	Category   Category             `json:"category" yaml:"category"`
	Confidence float64              `json:"confidence" yaml:"confidence"`
	Source     ClassificationSource `json:"source" yaml:"source"`
}

// Usage counts model tokens.
type Usage struct {
	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// RoutingDecision is the record of how one request was routed. It is
// produced after the handler returns and is only logged.
type RoutingDecision struct {
	Category    Category    `json:"category" yaml:"category"`
	Confidence  float64     `json:"confidence" yaml:"confidence"`
	SourcesUsed []SourceTag `json:"sources_used" yaml:"sources_used"`
	ElapsedMS   int64       `json:"elapsed_ms" yaml:"elapsed_ms"`
	Timestamp   time.Time   `json:"timestamp" yaml:"timestamp"`
}

// RoutingResult is the envelope returned to callers of RouteAndExecute.
type RoutingResult struct {
	Response    string      `json:"response" yaml:"response"`
	Category    Category    `json:"category" yaml:"category"`
	SourcesUsed []SourceTag `json:"sources_used" yaml:"sources_used"`
	Confidence  float64     `json:"confidence" yaml:"confidence"`
	ElapsedMS   int64       `json:"elapsed_ms" yaml:"elapsed_ms"`
	TokenUsage  Usage       `json:"token_usage" yaml:"token_usage"`
	Cached      bool        `json:"cached" yaml:"cached"`
}
