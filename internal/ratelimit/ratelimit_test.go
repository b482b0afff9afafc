// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-assistant/pkg/types"
)

func newTestLimiter(cfg types.RateLimitConfig) (*Limiter, *time.Time) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	l := New(cfg, nil)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_QuotaAndCooldown(t *testing.T) {
	l, now := newTestLimiter(types.RateLimitConfig{TokenLimit: 100, Cooldown: time.Hour})

	ok, s := l.Check("u")
	require.True(t, ok)
	assert.Equal(t, 100, s.TokensRemaining)

	s = l.Record("u", 60)
	assert.Equal(t, 40, s.TokensRemaining)
	assert.False(t, s.Limited)

	s = l.Record("u", 50)
	assert.True(t, s.Limited)
	assert.True(t, s.CooldownActive)
	require.NotNil(t, s.ResetTime)
	assert.Equal(t, now.Add(time.Hour), *s.ResetTime)

	ok, _ = l.Check("u")
	assert.False(t, ok)

	s = l.Record("u", 500)
	assert.Equal(t, 110, s.TokensUsed, "usage during cooldown is ignored")

	*now = now.Add(time.Hour)
	ok, s = l.Check("u")
	assert.True(t, ok)
	assert.Equal(t, 0, s.TokensUsed)
	assert.Equal(t, 100, s.TokensRemaining)
}

func TestLimiter_UsersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(types.RateLimitConfig{TokenLimit: 10})
	l.Record("a", 10)
	ok, _ := l.Check("a")
	assert.False(t, ok)
	ok, _ = l.Check("b")
	assert.True(t, ok)
	assert.Equal(t, 10, l.Usage("b").TokensRemaining)
}

func TestLimiter_RequestRate(t *testing.T) {
	l, now := newTestLimiter(types.RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	ok1, _ := l.Check("u")
	ok2, _ := l.Check("u")
	ok3, s := l.Check("u")
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3)
	assert.True(t, s.Limited)
	assert.False(t, s.CooldownActive)

	*now = now.Add(time.Second)
	ok, _ := l.Check("u")
	assert.True(t, ok)
}

func TestNew_Defaults(t *testing.T) {
	l := New(types.RateLimitConfig{}, nil)
	assert.Equal(t, 25000, l.limit)
	assert.Equal(t, 5*time.Hour, l.cooldown)
	for i := 0; i < 100; i++ {
		ok, _ := l.Check("u")
		require.True(t, ok, "no request-rate limit by default")
	}
}
