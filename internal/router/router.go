// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package router classifies each question and dispatches it to the handler
// for its category. Each handler consults only the data sources its
// category needs: small talk goes to the model alone, knowledge questions
// add vector-search context, and tool questions add domain lookup and tool
// use without vector search.
package router

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/cache"
	"github.com/pdiddy/research-assistant/internal/embedding"
	"github.com/pdiddy/research-assistant/internal/knowledge"
	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/internal/tools"
	"github.com/pdiddy/research-assistant/internal/usage"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// ErrEmptyQuery is returned for blank questions.
var ErrEmptyQuery = errors.New("query text is empty")

// Classifier assigns a category to a question.
type Classifier interface {
	Classify(ctx context.Context, text string, user types.UserContext) types.ClassificationResult
}

// Memory stores per-session conversation turns.
type Memory interface {
	History(sessionID string) []types.Turn
	Append(sessionID string, role types.Role, text string)
}

// Deps are the collaborators of a Router. Chat and Classifier are
// required; the rest are optional and their sources are skipped when nil.
type Deps struct {
	Classifier Classifier
	Chat       llm.ChatCompleter
	Embedder   embedding.Embedder
	Vectors    knowledge.VectorSearcher
	Lookup     knowledge.DomainLookup
	Tools      tools.Executor
	Memory     Memory
	Usage      *usage.Recorder
	Log        *zap.Logger
}

// cachedAnswer is a response cache entry.
type cachedAnswer struct {
	response string
	sources  []types.SourceTag
}

// Router dispatches questions to category handlers.
type Router struct {
	classifier Classifier
	handlers   map[types.Category]handler
	cache      *cache.LRU[string, cachedAnswer]
	memory     Memory
	usage      *usage.Recorder
	log        *zap.Logger

	// now is replaced in tests.
	now func() time.Time
}

// New builds a Router from cfg and deps.
func New(cfg types.RouterConfig, ai types.AIConfig, deps Deps) (*Router, error) {
	if deps.Classifier == nil || deps.Chat == nil {
		return nil, errors.New("router requires a classifier and a chat model")
	}
	if cfg.ContextTopK <= 0 {
		cfg.ContextTopK = 3
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 3
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	resp := &responder{
		chat:      deps.Chat,
		model:     ai.Model,
		maxTokens: ai.MaxTokens,
		tools:     deps.Tools,
		maxRounds: cfg.MaxToolRounds,
	}
	ret := &retriever{emb: deps.Embedder, vectors: deps.Vectors, topK: cfg.ContextTopK, log: log}
	dom := &domainContext{lookup: deps.Lookup, log: log}

	return &Router{
		classifier: deps.Classifier,
		handlers: map[types.Category]handler{
			types.CategoryConversational: &conversationalHandler{resp: resp},
			types.CategoryKnowledge:      &knowledgeHandler{resp: resp, retriever: ret},
			types.CategoryTools:          &toolsHandler{resp: resp, domain: dom},
			types.CategoryHybrid:         &hybridHandler{resp: resp, retriever: ret, domain: dom},
		},
		cache:  cache.NewLRU[string, cachedAnswer](cfg.CacheSize, cfg.CacheTTL),
		memory: deps.Memory,
		usage:  deps.Usage,
		log:    log,
		now:    time.Now,
	}, nil
}

// responseKey is the md5 of the normalized question, the page context, and
// the user name the system prompt addresses. Answers are personalized, so
// two users never share an entry.
func responseKey(text, page, userName string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(text)) + "|" + page + "|" + strings.TrimSpace(userName)))
	return hex.EncodeToString(sum[:])
}

// cacheable reports whether answers in category c may be served from the
// response cache. Answers that depend on conversation history never are.
func cacheable(c types.Category, q types.Query) bool {
	return (c == types.CategoryConversational || c == types.CategoryKnowledge) && len(q.History) == 0
}

// RouteAndExecute classifies q, runs the matching handler, and returns the
// result envelope. Handler errors are returned wrapped with the category.
func (r *Router) RouteAndExecute(ctx context.Context, q types.Query) (types.RoutingResult, error) {
	start := r.now()
	if strings.TrimSpace(q.Text) == "" {
		return types.RoutingResult{}, ErrEmptyQuery
	}

	cls := r.classifier.Classify(ctx, q.Text, q.UserContext)
	res := types.RoutingResult{Category: cls.Category, Confidence: cls.Confidence}

	if len(q.History) == 0 && r.memory != nil && q.SessionID != "" {
		q.History = r.memory.History(q.SessionID)
	}

	key := responseKey(q.Text, q.PageContext, q.UserName)
	useCache := cacheable(cls.Category, q)
	if useCache {
		if hit, ok := r.cache.Get(key); ok {
			res.Response = hit.response
			res.SourcesUsed = append(append([]types.SourceTag(nil), hit.sources...), types.TagResponseCache)
			res.Cached = true
			r.remember(q, res.Response)
			r.usage.Record(ctx, usage.Record{
				UserID: q.UserID, UserName: q.UserName, Kind: usage.KindChat, Cached: true, Preview: q.Text,
			})
			return r.finish(res, start), nil
		}
	}

	h, ok := r.handlers[cls.Category]
	if !ok {
		h = r.handlers[types.CategoryKnowledge]
	}
	out, err := h.handle(ctx, q)
	res.TokenUsage = out.usage
	if err != nil {
		r.log.Error("routing failed",
			zap.String("category", string(cls.Category)),
			zap.Error(err))
		res.ElapsedMS = r.now().Sub(start).Milliseconds()
		return res, fmt.Errorf("%s handler: %w", cls.Category, err)
	}

	res.Response = out.response
	res.SourcesUsed = out.sources
	if useCache {
		r.cache.Put(key, cachedAnswer{response: out.response, sources: out.sources})
	}
	r.remember(q, res.Response)
	r.usage.Record(ctx, usage.Record{
		UserID: q.UserID, UserName: q.UserName, Model: out.model, Kind: usage.KindChat,
		Usage: out.usage, Preview: q.Text,
	})
	return r.finish(res, start), nil
}

func (r *Router) remember(q types.Query, answer string) {
	if r.memory == nil || q.SessionID == "" {
		return
	}
	r.memory.Append(q.SessionID, types.RoleUser, q.Text)
	r.memory.Append(q.SessionID, types.RoleAssistant, answer)
}

// finish stamps elapsed time and logs the routing decision.
func (r *Router) finish(res types.RoutingResult, start time.Time) types.RoutingResult {
	end := r.now()
	res.ElapsedMS = end.Sub(start).Milliseconds()
	d := types.RoutingDecision{
		Category:    res.Category,
		Confidence:  res.Confidence,
		SourcesUsed: res.SourcesUsed,
		ElapsedMS:   res.ElapsedMS,
		Timestamp:   end,
	}
	tags := make([]string, len(d.SourcesUsed))
	for i, t := range d.SourcesUsed {
		tags[i] = string(t)
	}
	r.log.Info("routing decision",
		zap.String("category", string(d.Category)),
		zap.Float64("confidence", d.Confidence),
		zap.Strings("sources_used", tags),
		zap.Int64("elapsed_ms", d.ElapsedMS),
		zap.Time("timestamp", d.Timestamp),
		zap.Bool("cached", res.Cached),
	)
	return res
}

// CacheStats reports the response cache counters.
func (r *Router) CacheStats() cache.Stats {
	return r.cache.Stats()
}
