// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/cache"
	"github.com/pdiddy/research-assistant/internal/memory"
	"github.com/pdiddy/research-assistant/internal/ratelimit"
	"github.com/pdiddy/research-assistant/internal/research"
	"github.com/pdiddy/research-assistant/internal/usage"
	"github.com/pdiddy/research-assistant/pkg/types"
)

type fakeChat struct {
	mu      sync.Mutex
	queries []types.Query
	result  types.RoutingResult
	err     error
}

func (c *fakeChat) RouteAndExecute(_ context.Context, q types.Query) (types.RoutingResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)
	return c.result, c.err
}

func (c *fakeChat) CacheStats() cache.Stats { return cache.Stats{Hits: 2, Misses: 3, Size: 1, MaxSize: 1000} }

type fakeResearch struct {
	outcome research.Outcome
	events  []types.StreamEvent
	reqs    []types.ResearchRequest
}

func (f *fakeResearch) Research(_ context.Context, req types.ResearchRequest) (research.Outcome, error) {
	f.reqs = append(f.reqs, req)
	return f.outcome, nil
}

func (f *fakeResearch) Stream(ctx context.Context, req types.ResearchRequest) <-chan types.StreamEvent {
	f.reqs = append(f.reqs, req)
	ch := make(chan types.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range f.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

type panicChat struct{ fakeChat }

func (*panicChat) RouteAndExecute(context.Context, types.Query) (types.RoutingResult, error) {
	panic("boom")
}

func newTestServer(t *testing.T, chat Chat, res Researcher, limiter *ratelimit.Limiter) *Server {
	t.Helper()
	s, err := New(types.ServerConfig{MaxBodyBytes: 4096}, Deps{
		Chat:     chat,
		Research: res,
		Limiter:  limiter,
		Memory:   memory.NewStore(types.MemoryConfig{}, nil),
		Usage:    usage.NewRecorder(zap.NewNop()),
		Version:  "test",
	})
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestChat(t *testing.T) {
	chat := &fakeChat{result: types.RoutingResult{
		Response:    "Dominant alleles mask recessive ones.",
		Category:    types.CategoryKnowledge,
		SourcesUsed: []types.SourceTag{types.TagModelOnly, types.TagVectorSearch},
		TokenUsage:  types.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	limiter := ratelimit.New(types.RateLimitConfig{}, nil)
	s := newTestServer(t, chat, &fakeResearch{}, limiter)

	rec := do(t, s.Handler(), http.MethodPost, "/v1/chat", `{"text": "What is dominance?", "user_id": "u1", "session_id": "s1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "knowledge", body["category"])
	assert.Equal(t, []any{"model_only", "vector_search"}, body["sources_used"])

	require.Len(t, chat.queries, 1)
	assert.Equal(t, "u1", chat.queries[0].UserID)
	assert.Equal(t, "s1", chat.queries[0].SessionID)
	assert.Equal(t, 15, limiter.Usage("u1").TokensUsed)
}

func TestChat_Validation(t *testing.T) {
	s := newTestServer(t, &fakeChat{}, &fakeResearch{}, nil)
	tests := []struct {
		name string
		body string
		code int
	}{
		{"empty text", `{"text": "  "}`, http.StatusBadRequest},
		{"too long", `{"text": "` + strings.Repeat("a", MaxQueryLength+1) + `"}`, http.StatusRequestEntityTooLarge},
		{"bad json", `{"text":`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s.Handler(), http.MethodPost, "/v1/chat", tc.body)
			assert.Equal(t, tc.code, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["error"])
		})
	}
}

func TestChat_QueryLengthLimit(t *testing.T) {
	s, err := New(types.ServerConfig{}, Deps{Chat: &fakeChat{}})
	require.NoError(t, err)
	rec := do(t, s.Handler(), http.MethodPost, "/v1/chat", `{"text": "`+strings.Repeat("é", MaxQueryLength+1)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "10000")
}

func TestChat_RateLimited(t *testing.T) {
	chat := &fakeChat{result: types.RoutingResult{Response: "ok", TokenUsage: types.Usage{InputTokens: 60, OutputTokens: 0}}}
	limiter := ratelimit.New(types.RateLimitConfig{TokenLimit: 50}, nil)
	s := newTestServer(t, chat, &fakeResearch{}, limiter)

	first := do(t, s.Handler(), http.MethodPost, "/v1/chat", `{"text": "hi", "user_id": "u1"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := do(t, s.Handler(), http.MethodPost, "/v1/chat", `{"text": "hi again", "user_id": "u1"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	body := decodeBody(t, second)
	assert.Equal(t, "rate limit exceeded", body["error"])
	snap := body["rate_limit"].(map[string]any)
	assert.Equal(t, true, snap["is_limited"])
	assert.Equal(t, true, snap["cooldown_active"])
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Len(t, chat.queries, 1, "a limited request never reaches the router")

	other := do(t, s.Handler(), http.MethodPost, "/v1/chat", `{"text": "hi", "user_id": "u2"}`)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestChat_RouterErrorIsHidden(t *testing.T) {
	s := newTestServer(t, &fakeChat{err: errors.New("anthropic: 500 upstream exploded")}, &fakeResearch{}, nil)
	rec := do(t, s.Handler(), http.MethodPost, "/v1/chat", `{"text": "hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "exploded")
}

func TestResearch(t *testing.T) {
	res := &fakeResearch{outcome: &research.Completed{
		SessionID: "sess",
		Response:  "Answer (Smith, 2023).",
		Sources:   []types.Source{{ID: "c1", Title: "Paper", CitationKey: "(Smith, 2023)", Cited: true}},
		Usage:     types.Usage{InputTokens: 100, OutputTokens: 20},
	}}
	limiter := ratelimit.New(types.RateLimitConfig{}, nil)
	s := newTestServer(t, &fakeChat{}, res, limiter)

	rec := do(t, s.Handler(), http.MethodPost, "/v1/research", `{"query": "CRISPR off-target", "user_id": "u1", "top_k": 5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "sess", body["session_id"])
	assert.Equal(t, "Answer (Smith, 2023).", body["response"])
	require.Len(t, res.reqs, 1)
	assert.Equal(t, 5, res.reqs[0].TopK)
	assert.Equal(t, 120, limiter.Usage("u1").TokensUsed)
}

func TestResearch_Validation(t *testing.T) {
	res := &fakeResearch{}
	s := newTestServer(t, &fakeChat{}, res, nil)
	for _, body := range []string{`{"query": ""}`, `{"query": "genes", "top_k": 51}`} {
		rec := do(t, s.Handler(), http.MethodPost, "/v1/research", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, res.reqs)
}

func TestResearchStream(t *testing.T) {
	res := &fakeResearch{events: []types.StreamEvent{
		{Type: types.EventPhaseUpdate, Phase: types.PhaseRetrieval, Node: "retrieval"},
		{Type: types.EventSource, Source: &types.Source{ID: "c1", CitationKey: "[Source 1]"}},
		{Type: types.EventContent, Content: "Answer [Source 1]."},
		{Type: types.EventDone, Metadata: map[string]any{"status": "completed", "token_usage": types.Usage{InputTokens: 7, OutputTokens: 3}}},
	}}
	limiter := ratelimit.New(types.RateLimitConfig{}, nil)
	s := newTestServer(t, &fakeChat{}, res, limiter)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/research/stream", "application/json", strings.NewReader(`{"query": "genes", "user_id": "u9"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var names []string
	var datas []types.StreamEvent
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			names = append(names, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			var ev types.StreamEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
			datas = append(datas, ev)
		}
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"phase_update", "source", "content", "done"}, names)
	require.Len(t, datas, 4)
	assert.Equal(t, "Answer [Source 1].", datas[2].Content)
	assert.Equal(t, 10, limiter.Usage("u9").TokensUsed)
}

func TestResearchStream_ChargesFailedRunUsage(t *testing.T) {
	res := &fakeResearch{events: []types.StreamEvent{
		{Type: types.EventPhaseUpdate, Phase: types.PhaseRetrieval, Node: "retrieval"},
		{Type: types.EventError, Error: "Research failed. Please try again later.", Metadata: map[string]any{
			"status": "failed", "token_usage": types.Usage{InputTokens: 300, OutputTokens: 40},
		}},
	}}
	limiter := ratelimit.New(types.RateLimitConfig{}, nil)
	s := newTestServer(t, &fakeChat{}, res, limiter)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/research/stream", "application/json", strings.NewReader(`{"query": "epistasis", "user_id": "u3"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var names []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "event: ") {
			names = append(names, strings.TrimPrefix(line, "event: "))
		}
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"phase_update", "error"}, names)
	assert.Equal(t, 340, limiter.Usage("u3").TokensUsed)
}

func TestResearchStream_InvalidRequestIsNotStreamed(t *testing.T) {
	s := newTestServer(t, &fakeChat{}, &fakeResearch{}, nil)
	rec := do(t, s.Handler(), http.MethodPost, "/v1/research/stream", `{"query": " "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRateLimitEndpoint(t *testing.T) {
	limiter := ratelimit.New(types.RateLimitConfig{TokenLimit: 100}, nil)
	limiter.Record("u1", 40)
	s := newTestServer(t, &fakeChat{}, &fakeResearch{}, limiter)

	rec := do(t, s.Handler(), http.MethodGet, "/v1/rate-limit/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(40), body["tokens_used"])
	assert.Equal(t, float64(60), body["tokens_remaining"])

	s = newTestServer(t, &fakeChat{}, &fakeResearch{}, nil)
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodGet, "/v1/rate-limit/u1", "").Code)
}

func TestStatsAndHealth(t *testing.T) {
	s := newTestServer(t, &fakeChat{}, &fakeResearch{}, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	cacheStats := body["response_cache"].(map[string]any)
	assert.Equal(t, float64(2), cacheStats["hits"])
	assert.Contains(t, body, "memory")
	assert.Contains(t, body, "usage")
	assert.NotContains(t, body, "classifier_cache")

	rec = do(t, s.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody(t, rec)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "test", health["version"])
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &fakeChat{}, &fakeResearch{}, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s.Handler(), http.MethodGet, "/v1/chat", "").Code)
}

func TestRecoverPanics(t *testing.T) {
	s := newTestServer(t, &panicChat{}, &fakeResearch{}, nil)
	rec := do(t, s.Handler(), http.MethodPost, "/v1/chat", `{"text": "hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNew_RequiresChat(t *testing.T) {
	_, err := New(types.ServerConfig{}, Deps{Research: &fakeResearch{}})
	assert.Error(t, err)
}

func TestResearch_NotConfigured(t *testing.T) {
	s, err := New(types.ServerConfig{}, Deps{Chat: &fakeChat{}})
	require.NoError(t, err)
	for _, path := range []string{"/v1/research", "/v1/research/stream"} {
		rec := do(t, s.Handler(), http.MethodPost, path, `{"query": "genes"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, &fakeChat{}, &fakeResearch{}, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
