// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the assistant over HTTP.
//
// Endpoints:
//   - POST /v1/chat             routed question answering
//   - POST /v1/research         blocking deep research (JSON envelope)
//   - POST /v1/research/stream  deep research as server-sent events
//   - GET  /v1/rate-limit/{user} token quota state for a user
//   - GET  /v1/cache/stats      cache, memory, and usage counters
//   - GET  /health              liveness
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/cache"
	"github.com/pdiddy/research-assistant/internal/memory"
	"github.com/pdiddy/research-assistant/internal/ratelimit"
	"github.com/pdiddy/research-assistant/internal/research"
	"github.com/pdiddy/research-assistant/internal/usage"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// MaxQueryLength caps chat question text, in characters.
const MaxQueryLength = 10000

// Chat answers routed questions.
type Chat interface {
	RouteAndExecute(ctx context.Context, q types.Query) (types.RoutingResult, error)
	CacheStats() cache.Stats
}

// Researcher runs deep research in blocking and streaming form.
type Researcher interface {
	Research(ctx context.Context, req types.ResearchRequest) (research.Outcome, error)
	Stream(ctx context.Context, req types.ResearchRequest) <-chan types.StreamEvent
}

// CacheReporter reports counters for a cache the server does not own.
type CacheReporter interface {
	CacheStats() cache.Stats
}

// Deps are the collaborators of a Server. Chat is required; without
// Research the research endpoints answer 503.
type Deps struct {
	Chat       Chat
	Research   Researcher
	Classifier CacheReporter
	Limiter    *ratelimit.Limiter
	Memory     *memory.Store
	Usage      *usage.Recorder
	Version    string
	Log        *zap.Logger
}

// Server is the HTTP surface of the assistant.
type Server struct {
	cfg        types.ServerConfig
	chat       Chat
	research   Researcher
	classifier CacheReporter
	limiter    *ratelimit.Limiter
	memory     *memory.Store
	usage      *usage.Recorder
	version    string
	log        *zap.Logger
	mux        *http.ServeMux
	started    time.Time
}

// New builds a Server from cfg and deps. Zero config values take the
// defaults of types.DefaultConfig.
func New(cfg types.ServerConfig, deps Deps) (*Server, error) {
	if deps.Chat == nil {
		return nil, errors.New("server requires a chat router")
	}
	def := types.DefaultConfig().Server
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		cfg:        cfg,
		chat:       deps.Chat,
		research:   deps.Research,
		classifier: deps.Classifier,
		limiter:    deps.Limiter,
		memory:     deps.Memory,
		usage:      deps.Usage,
		version:    version,
		log:        log,
		mux:        http.NewServeMux(),
		started:    time.Now(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/chat", s.handleChat)
	s.mux.HandleFunc("POST /v1/research", s.handleResearch)
	s.mux.HandleFunc("POST /v1/research/stream", s.handleResearchStream)
	s.mux.HandleFunc("GET /v1/rate-limit/{user}", s.handleRateLimit)
	s.mux.HandleFunc("GET /v1/cache/stats", s.handleStats)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the routed handler wrapped in recovery and request
// logging.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, s.recoverPanics, s.logRequests)
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("server started", zap.String("addr", ln.Addr().String()), zap.String("version", s.version))

	select {
	case err := <-errc:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.log.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// handleChat serves POST /v1/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var q types.Query
	if !s.decode(w, r, &q) {
		return
	}
	switch {
	case strings.TrimSpace(q.Text) == "":
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	case utf8.RuneCountInString(q.Text) > MaxQueryLength:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("text exceeds %d characters", MaxQueryLength))
		return
	}
	user := s.quotaKey(r, q.UserContext)
	if !s.admit(w, user) {
		return
	}

	res, err := s.chat.RouteAndExecute(r.Context(), q)
	if err != nil {
		s.log.Error("chat failed", zap.String("user_id", q.UserID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "I'm sorry, I couldn't answer that right now. Please try again later.")
		return
	}
	s.charge(user, res.TokenUsage)
	s.writeJSON(w, http.StatusOK, res)
}

// handleResearch serves POST /v1/research.
func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	req, user, ok := s.researchRequest(w, r)
	if !ok {
		return
	}
	out, err := s.research.Research(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	env := research.NewEnvelope(out)
	s.charge(user, env.TokenUsage)
	s.writeJSON(w, http.StatusOK, env)
}

// handleResearchStream serves POST /v1/research/stream as server-sent
// events, one "event: <type>" frame per StreamEvent.
func (s *Server) handleResearchStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	req, user, ok := s.researchRequest(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.research.Stream(r.Context(), req) {
		if err := writeEvent(w, ev); err != nil {
			s.log.Warn("writing stream event failed", zap.String("type", string(ev.Type)), zap.Error(err))
			continue
		}
		flusher.Flush()
		if ev.Terminal() {
			if u, ok := ev.Metadata["token_usage"].(types.Usage); ok {
				s.charge(user, u)
			}
		}
	}
}

// writeEvent writes one SSE frame.
func writeEvent(w http.ResponseWriter, ev types.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

// researchRequest decodes and validates a research body and admits it
// against the caller's quota.
func (s *Server) researchRequest(w http.ResponseWriter, r *http.Request) (types.ResearchRequest, string, bool) {
	var req types.ResearchRequest
	if s.research == nil {
		s.writeError(w, http.StatusServiceUnavailable, "research is not configured")
		return req, "", false
	}
	if !s.decode(w, r, &req) {
		return req, "", false
	}
	if err := research.Validate(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return req, "", false
	}
	user := s.quotaKey(r, req.UserContext)
	if !s.admit(w, user) {
		return req, "", false
	}
	return req, user, true
}

// handleRateLimit serves GET /v1/rate-limit/{user}.
func (s *Server) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	if s.limiter == nil {
		s.writeError(w, http.StatusNotFound, "rate limiting is disabled")
		return
	}
	s.writeJSON(w, http.StatusOK, s.limiter.Usage(r.PathValue("user")))
}

// statsResponse is the body of GET /v1/cache/stats.
type statsResponse struct {
	ResponseCache   cache.Stats       `json:"response_cache"`
	ClassifierCache *cache.Stats      `json:"classifier_cache,omitempty"`
	Memory          *memory.Stats     `json:"memory,omitempty"`
	Usage           *usage.Summary    `json:"usage,omitempty"`
	TopUsers        []usage.UserTotal `json:"top_users,omitempty"`
}

// handleStats serves GET /v1/cache/stats.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{ResponseCache: s.chat.CacheStats()}
	if s.classifier != nil {
		st := s.classifier.CacheStats()
		resp.ClassifierCache = &st
	}
	if s.memory != nil {
		st := s.memory.Stats()
		resp.Memory = &st
	}
	if s.usage != nil {
		sum := s.usage.Summary()
		resp.Usage = &sum
		resp.TopUsers = s.usage.TopUsers(10)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleHealth serves GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// decode reads a JSON body capped at MaxBodyBytes into v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit))
			return false
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// quotaKey identifies the caller for rate limiting: the user id when
// given, otherwise the client address.
func (s *Server) quotaKey(r *http.Request, u types.UserContext) string {
	if u.UserID != "" {
		return u.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return "ip:" + host
}

// admit checks the caller's quota and writes 429 when it is spent.
func (s *Server) admit(w http.ResponseWriter, user string) bool {
	if s.limiter == nil {
		return true
	}
	ok, snap := s.limiter.Check(user)
	if ok {
		return true
	}
	if snap.ResetTime != nil {
		if secs := int(time.Until(*snap.ResetTime).Seconds()); secs > 0 {
			w.Header().Set("Retry-After", fmt.Sprint(secs))
		}
	}
	s.log.Info("request rate limited", zap.String("user_id", user), zap.Int("tokens_used", snap.TokensUsed))
	s.writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":      "rate limit exceeded",
		"rate_limit": snap,
	})
	return false
}

// charge records a completed request's tokens against the caller's quota.
func (s *Server) charge(user string, u types.Usage) {
	if s.limiter != nil && u.Total() > 0 {
		s.limiter.Record(user, u.Total())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("writing response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
