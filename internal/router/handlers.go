// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package router

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/embedding"
	"github.com/pdiddy/research-assistant/internal/knowledge"
	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/internal/tools"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// handlerOutput is what a category handler contributes to the envelope.
type handlerOutput struct {
	response string
	sources  []types.SourceTag
	usage    types.Usage
	model    string
}

// handler answers questions of one category.
type handler interface {
	handle(ctx context.Context, q types.Query) (handlerOutput, error)
}

// retriever fetches knowledge-base context by vector similarity.
type retriever struct {
	emb     embedding.Embedder
	vectors knowledge.VectorSearcher
	topK    int
	log     *zap.Logger
}

func (r *retriever) enabled() bool {
	return r != nil && r.emb != nil && r.vectors != nil
}

// context returns the text of the best matching chunks. Retrieval errors
// degrade to an empty context.
func (r *retriever) context(ctx context.Context, text string) string {
	vec, err := r.emb.Embed(ctx, text)
	if err != nil {
		r.log.Warn("embedding query failed, answering without context", zap.Error(err))
		return ""
	}
	chunks, err := r.vectors.Search(ctx, vec, r.topK)
	if err != nil {
		r.log.Warn("vector search failed, answering without context", zap.Error(err))
		return ""
	}
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// domainContext gathers structured trait records and a pre-computed cross
// when the question contains one.
type domainContext struct {
	lookup knowledge.DomainLookup
	log    *zap.Logger
}

func (d *domainContext) context(ctx context.Context, text string) string {
	var parts []string
	if d.lookup != nil {
		s, err := d.lookup.Lookup(ctx, text)
		if err != nil {
			d.log.Warn("domain lookup failed", zap.Error(err))
		} else if s != "" {
			parts = append(parts, s)
		}
	}
	if p1, p2, ok := tools.ParseCross(text); ok {
		if c, err := tools.ComputeCross(p1, p2); err == nil {
			parts = append(parts, "Pre-computed cross:\n"+c.Summary())
		}
	}
	return strings.Join(parts, "\n\n")
}

// responder renders prompts and calls the chat model, with or without tools.
type responder struct {
	chat      llm.ChatCompleter
	model     string
	maxTokens int
	tools     tools.Executor
	maxRounds int
}

func (r *responder) answer(ctx context.Context, system *template.Template, q types.Query, background string, withTools bool) (llm.Response, error) {
	useTools := withTools && r.tools != nil
	name := q.UserName
	if name == "" {
		name = "there"
	}
	sys, err := render(system, promptData{UserName: name, Tools: useTools})
	if err != nil {
		return llm.Response{}, fmt.Errorf("rendering system prompt: %w", err)
	}
	question, err := render(questionTmpl, promptData{PageContext: q.PageContext, Context: background, Question: q.Text})
	if err != nil {
		return llm.Response{}, fmt.Errorf("rendering question: %w", err)
	}
	req := llm.Request{
		Model:     r.model,
		System:    sys,
		Messages:  llm.FromTurns(q.History, question),
		MaxTokens: r.maxTokens,
	}
	if useTools {
		return tools.RunLoop(ctx, r.chat, req, r.tools, r.maxRounds)
	}
	return r.chat.Complete(ctx, req)
}

func output(resp llm.Response, sources ...types.SourceTag) handlerOutput {
	return handlerOutput{response: resp.Text, sources: sources, usage: resp.Usage, model: resp.Model}
}

// conversationalHandler answers small talk from the model alone.
type conversationalHandler struct {
	resp *responder
}

func (h *conversationalHandler) handle(ctx context.Context, q types.Query) (handlerOutput, error) {
	q.PageContext = ""
	resp, err := h.resp.answer(ctx, conversationalTmpl, q, "", false)
	if err != nil {
		return output(resp), err
	}
	return output(resp, types.TagModelOnly), nil
}

// knowledgeHandler answers from vector-search context without tools.
type knowledgeHandler struct {
	resp      *responder
	retriever *retriever
}

func (h *knowledgeHandler) handle(ctx context.Context, q types.Query) (handlerOutput, error) {
	var (
		background string
		sources    []types.SourceTag
	)
	if h.retriever.enabled() {
		background = h.retriever.context(ctx, q.Text)
		sources = append(sources, types.TagVectorSearch)
	}
	resp, err := h.resp.answer(ctx, assistantTmpl, q, background, false)
	if err != nil {
		return output(resp), err
	}
	if background != "" {
		sources = append(sources, types.TagRAGContext)
	}
	return output(resp, sources...), nil
}

// toolsHandler answers with domain lookup context and tools. Vector search
// is never consulted.
type toolsHandler struct {
	resp   *responder
	domain *domainContext
}

func (h *toolsHandler) handle(ctx context.Context, q types.Query) (handlerOutput, error) {
	background := h.domain.context(ctx, q.Text)
	resp, err := h.resp.answer(ctx, assistantTmpl, q, background, true)
	if err != nil {
		return output(resp), err
	}
	sources := []types.SourceTag{types.TagDomainLookup}
	if h.resp.tools != nil {
		sources = append(sources, types.TagTools)
	}
	return output(resp, sources...), nil
}

// hybridHandler combines vector search, domain lookup, and tools.
type hybridHandler struct {
	resp      *responder
	retriever *retriever
	domain    *domainContext
}

func (h *hybridHandler) handle(ctx context.Context, q types.Query) (handlerOutput, error) {
	var (
		rag     string
		sources []types.SourceTag
	)
	if h.retriever.enabled() {
		rag = h.retriever.context(ctx, q.Text)
		sources = append(sources, types.TagVectorSearch)
	}
	domain := h.domain.context(ctx, q.Text)

	var parts []string
	if rag != "" {
		parts = append(parts, "Knowledge base:\n"+rag)
	}
	if domain != "" {
		parts = append(parts, domain)
	}
	resp, err := h.resp.answer(ctx, assistantTmpl, q, strings.Join(parts, "\n\n"), true)
	if err != nil {
		return output(resp), err
	}
	sources = append(sources, types.TagDomainLookup)
	if h.resp.tools != nil {
		sources = append(sources, types.TagTools)
	}
	if rag != "" {
		sources = append(sources, types.TagRAGContext)
	}
	return output(resp, sources...), nil
}
