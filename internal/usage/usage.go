// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package usage records token consumption of every model call. Records are
// written to the structured log and aggregated in memory per model and
// per kind of call.
package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// Kinds of model call.
const (
	KindChat       = "chat"
	KindClassifier = "classifier"
	KindResearch   = "research"
	KindEmbedding  = "embedding"
)

// Record is one model call's token usage.
type Record struct {
	UserID   string
	UserName string
	Model    string
	Kind     string
	Usage    types.Usage
	Cached   bool
	// Preview is the start of the user message, at most 50 characters.
	Preview string
}

// Pricing is the cost in USD per thousand tokens.
type Pricing struct {
	Input  float64
	Output float64
}

// defaultPricing applies to models missing from the pricing table.
var defaultPricing = Pricing{Input: 0.00025, Output: 0.00125}

var modelPricing = map[string]Pricing{
	"claude-3-haiku-20240307":    {Input: 0.00025, Output: 0.00125},
	"claude-3-5-haiku-20241022":  {Input: 0.0008, Output: 0.004},
	"claude-3-5-sonnet-20241022": {Input: 0.003, Output: 0.015},
	"claude-sonnet-4-5-20250929": {Input: 0.003, Output: 0.015},
	"claude-haiku-4-5-20251001":  {Input: 0.001, Output: 0.005},
	"claude-opus-4-5-20251101":   {Input: 0.005, Output: 0.025},
	"gpt-4o-mini":                {Input: 0.00015, Output: 0.0006},
	"text-embedding-3-small":     {Input: 0.00002},
	"text-embedding-3-large":     {Input: 0.00013},
}

// Cost returns the USD cost of u on model.
func Cost(model string, u types.Usage) float64 {
	p, ok := modelPricing[model]
	if !ok {
		p = defaultPricing
	}
	return float64(u.InputTokens)/1000*p.Input + float64(u.OutputTokens)/1000*p.Output
}

// Totals aggregates usage for one model or kind.
type Totals struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CachedCalls  int     `json:"cached_calls"`
	Cost         float64 `json:"cost_usd"`
}

// Summary is a snapshot of the recorder's aggregates.
type Summary struct {
	Since   time.Time         `json:"since"`
	Total   Totals            `json:"total"`
	ByModel map[string]Totals `json:"by_model"`
	ByKind  map[string]Totals `json:"by_kind"`
	Users   int               `json:"users"`
}

// Recorder logs usage records and keeps running totals. The zero value is
// not usable; call NewRecorder. A nil *Recorder discards records.
type Recorder struct {
	log   *zap.Logger
	mu    sync.Mutex
	since time.Time
	total Totals
	model map[string]*Totals
	kind  map[string]*Totals
	users map[string]int
}

// NewRecorder returns a Recorder that logs to log.
func NewRecorder(log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		log:   log,
		since: time.Now(),
		model: make(map[string]*Totals),
		kind:  make(map[string]*Totals),
		users: make(map[string]int),
	}
}

// Record logs r and adds it to the totals.
func (rec *Recorder) Record(ctx context.Context, r Record) {
	if rec == nil {
		return
	}
	if r.UserID == "" {
		r.UserID = "anonymous"
	}
	if r.UserName == "" {
		r.UserName = "Unknown"
	}
	if p := []rune(r.Preview); len(p) > 50 {
		r.Preview = string(p[:50])
	}
	cost := Cost(r.Model, r.Usage)

	rec.log.Info("token usage",
		zap.String("user_id", r.UserID),
		zap.String("user_name", r.UserName),
		zap.String("model", r.Model),
		zap.String("kind", r.Kind),
		zap.Int("input_tokens", r.Usage.InputTokens),
		zap.Int("output_tokens", r.Usage.OutputTokens),
		zap.Int("total_tokens", r.Usage.Total()),
		zap.Bool("cached", r.Cached),
		zap.Float64("cost_usd", cost),
		zap.String("preview", r.Preview),
	)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	add(&rec.total, r, cost)
	add(bucket(rec.model, r.Model), r, cost)
	add(bucket(rec.kind, r.Kind), r, cost)
	rec.users[r.UserID] += r.Usage.Total()
}

func bucket(m map[string]*Totals, key string) *Totals {
	t, ok := m[key]
	if !ok {
		t = &Totals{}
		m[key] = t
	}
	return t
}

func add(t *Totals, r Record, cost float64) {
	t.Calls++
	t.InputTokens += r.Usage.InputTokens
	t.OutputTokens += r.Usage.OutputTokens
	t.Cost += cost
	if r.Cached {
		t.CachedCalls++
	}
}

// Summary returns a copy of the current aggregates.
func (rec *Recorder) Summary() Summary {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	s := Summary{
		Since:   rec.since,
		Total:   rec.total,
		ByModel: make(map[string]Totals, len(rec.model)),
		ByKind:  make(map[string]Totals, len(rec.kind)),
		Users:   len(rec.users),
	}
	for k, v := range rec.model {
		s.ByModel[k] = *v
	}
	for k, v := range rec.kind {
		s.ByKind[k] = *v
	}
	return s
}

// UserTotal is one user's cumulative token count.
type UserTotal struct {
	UserID string `json:"user_id"`
	Tokens int    `json:"tokens"`
}

// TopUsers returns the n heaviest users, most tokens first.
func (rec *Recorder) TopUsers(n int) []UserTotal {
	rec.mu.Lock()
	out := make([]UserTotal, 0, len(rec.users))
	for id, tokens := range rec.users {
		out = append(out, UserTotal{UserID: id, Tokens: tokens})
	}
	rec.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Tokens != out[j].Tokens {
			return out[i].Tokens > out[j].Tokens
		}
		return out[i].UserID < out[j].UserID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
