// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit enforces per-user token quotas and request rates.
//
// A user spends tokens freely until the quota is reached; a cooldown then
// starts, after which the quota is restored. Independently, requests are
// throttled per user with a token-bucket limiter.
package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// Snapshot is a user's quota state.
type Snapshot struct {
	TokensUsed      int        `json:"tokens_used"`
	TokensRemaining int        `json:"tokens_remaining"`
	ResetTime       *time.Time `json:"reset_time,omitempty"`
	Limited         bool       `json:"is_limited"`
	CooldownActive  bool       `json:"cooldown_active"`
}

type account struct {
	tokensUsed    int
	cooldownStart time.Time
	limiter       *rate.Limiter
}

// Limiter tracks quotas for every user seen.
type Limiter struct {
	mu       sync.Mutex
	limit    int
	cooldown time.Duration
	rps      rate.Limit
	burst    int
	accounts map[string]*account
	log      *zap.Logger

	// now is replaced in tests.
	now func() time.Time
}

// New returns a Limiter from cfg. Zero values default to 25,000 tokens,
// a 5 hour cooldown, and no request-rate limit.
func New(cfg types.RateLimitConfig, log *zap.Logger) *Limiter {
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = 25000
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Hour
	}
	rps := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		rps = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		limit:    cfg.TokenLimit,
		cooldown: cfg.Cooldown,
		rps:      rps,
		burst:    burst,
		accounts: make(map[string]*account),
		log:      log,
		now:      time.Now,
	}
}

func (l *Limiter) account(userID string) *account {
	a, ok := l.accounts[userID]
	if !ok {
		a = &account{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.accounts[userID] = a
	}
	return a
}

// snapshot reports a's state, restoring the quota once a cooldown has
// elapsed. Callers hold l.mu.
func (l *Limiter) snapshot(a *account, now time.Time) Snapshot {
	if !a.cooldownStart.IsZero() {
		reset := a.cooldownStart.Add(l.cooldown)
		if now.Before(reset) {
			return Snapshot{TokensUsed: a.tokensUsed, ResetTime: &reset, Limited: true, CooldownActive: true}
		}
		a.tokensUsed = 0
		a.cooldownStart = time.Time{}
	}
	remaining := l.limit - a.tokensUsed
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{TokensUsed: a.tokensUsed, TokensRemaining: remaining, Limited: remaining == 0}
}

// Check reports whether userID may make a request. A request denied by the
// request-rate limiter is reported as limited without a cooldown.
func (l *Limiter) Check(userID string) (bool, Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	a := l.account(userID)
	s := l.snapshot(a, now)
	if s.Limited {
		return false, s
	}
	if !a.limiter.AllowN(now, 1) {
		s.Limited = true
		return false, s
	}
	return true, s
}

// Usage returns userID's quota state without consuming a request.
func (l *Limiter) Usage(userID string) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot(l.account(userID), l.now())
}

// Record adds tokens to userID's usage and starts the cooldown when the
// quota is reached. Usage during an active cooldown is ignored.
func (l *Limiter) Record(userID string, tokens int) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	a := l.account(userID)
	if s := l.snapshot(a, now); s.CooldownActive {
		return s
	}
	a.tokensUsed += tokens
	if a.tokensUsed >= l.limit {
		a.cooldownStart = now
		l.log.Info("token quota reached, cooldown started",
			zap.String("user_id", userID),
			zap.Int("tokens_used", a.tokensUsed),
			zap.Int("limit", l.limit),
			zap.Duration("cooldown", l.cooldown))
	}
	return l.snapshot(a, now)
}
