// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/classify"
	"github.com/pdiddy/research-assistant/internal/embedding"
	"github.com/pdiddy/research-assistant/internal/knowledge"
	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/internal/memory"
	"github.com/pdiddy/research-assistant/internal/rerank"
	"github.com/pdiddy/research-assistant/internal/research"
	"github.com/pdiddy/research-assistant/internal/router"
	"github.com/pdiddy/research-assistant/internal/tools"
	"github.com/pdiddy/research-assistant/internal/usage"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// errNoResearch is returned when research is requested without an
// embedding service.
var errNoResearch = errors.New("research requires an embedding API key (embedding.api_key or .secrets/)")

// app holds the wired components shared by the subcommands.
type app struct {
	cfg        types.AssistantConfig
	log        *zap.Logger
	store      *knowledge.Store
	embedder   embedding.Embedder
	usage      *usage.Recorder
	memory     *memory.Store
	classifier *classify.Classifier
	router     *router.Router
	research   *research.Workflow
}

// newApp opens the knowledge store and wires the chat, classification,
// routing, and research components from c. Research is left nil when no
// embedding service is configured.
func newApp(ctx context.Context, c types.AssistantConfig, log *zap.Logger) (*app, error) {
	chat, err := llm.New(c.AI, log.Named("llm"))
	if err != nil {
		return nil, fmt.Errorf("chat model: %w", err)
	}

	store, err := knowledge.NewStore(c.Knowledge, log.Named("knowledge"))
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    c,
		log:    log,
		store:  store,
		usage:  usage.NewRecorder(log.Named("usage")),
		memory: memory.NewStore(c.Memory, log.Named("memory")),
	}

	emb, err := embedding.New(ctx, c.Embedding, log.Named("embedding"))
	switch {
	case errors.Is(err, embedding.ErrNotConfigured):
		log.Warn("embedding not configured; vector search and research are disabled")
	case err != nil:
		store.Close()
		return nil, fmt.Errorf("embedding: %w", err)
	default:
		a.embedder = emb
	}

	classifierModel := c.Classifier.Model
	if classifierModel == "" {
		classifierModel = c.AI.Model
	}
	a.classifier = classify.New(c.Classifier,
		&classify.ModelClassifier{Chat: chat, Model: classifierModel},
		a.usage, log.Named("classify"))

	registry := tools.NewRegistry(store, log.Named("tools"))
	if c.Router.LiteratureSearch {
		registry.WithLiterature(tools.NewOpenAlex(c.Router.LiteratureEmail, log.Named("openalex")))
	}

	a.router, err = router.New(c.Router, c.AI, router.Deps{
		Classifier: a.classifier,
		Chat:       chat,
		Embedder:   a.embedder,
		Vectors:    store,
		Lookup:     store,
		Tools:      registry,
		Memory:     a.memory,
		Usage:      a.usage,
		Log:        log.Named("router"),
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	if a.embedder != nil {
		synthChat, err := llm.New(research.SynthesisAI(c.AI, c.Research), log.Named("llm"))
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("synthesis model: %w", err)
		}
		a.research, err = research.New(c.Research, c.AI, research.Deps{
			Chat:      synthChat,
			Clarifier: &research.ModelClarifier{Chat: chat, Model: c.AI.Model, Log: log.Named("clarify")},
			Embedder:  a.embedder,
			Vectors:   store,
			Reranker:  rerank.NewCohere(c.Rerank, log.Named("rerank")),
			Usage:     a.usage,
			Log:       log.Named("research"),
		})
		if err != nil {
			store.Close()
			return nil, err
		}
	}
	return a, nil
}

// requireResearch returns the workflow or errNoResearch.
func (a *app) requireResearch() (*research.Workflow, error) {
	if a.research == nil {
		return nil, errNoResearch
	}
	return a.research, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
