// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package memory keeps short per-session conversation history so follow-up
// questions reach the model with their preceding turns.
package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/pkg/types"
)

type session struct {
	turns        []types.Turn
	lastActivity time.Time
}

// Store holds the most recent message pairs of each session. Sessions
// idle for longer than the TTL are forgotten.
type Store struct {
	mu       sync.Mutex
	maxPairs int
	ttl      time.Duration
	sessions map[string]*session
	log      *zap.Logger

	// now is replaced in tests.
	now func() time.Time
}

// Stats describes the store.
type Stats struct {
	ActiveSessions int           `json:"active_sessions"`
	MaxPairs       int           `json:"max_pairs_per_session"`
	TTL            time.Duration `json:"ttl"`
}

// NewStore returns a Store from cfg. Zero values default to 10 pairs and
// 30 minutes.
func NewStore(cfg types.MemoryConfig, log *zap.Logger) *Store {
	if cfg.MaxPairs <= 0 {
		cfg.MaxPairs = 10
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		maxPairs: cfg.MaxPairs,
		ttl:      cfg.TTL,
		sessions: make(map[string]*session),
		log:      log,
		now:      time.Now,
	}
}

// History returns a copy of the session's turns, oldest first. An expired
// session is dropped and yields nil.
func (s *Store) History(sessionID string) []types.Turn {
	if sessionID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if s.now().Sub(sess.lastActivity) > s.ttl {
		delete(s.sessions, sessionID)
		return nil
	}
	return append([]types.Turn(nil), sess.turns...)
}

// Append adds a turn and trims the session to its newest message pairs.
func (s *Store) Append(sessionID string, role types.Role, text string) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	sess, ok := s.sessions[sessionID]
	if !ok || now.Sub(sess.lastActivity) > s.ttl {
		sess = &session{}
		s.sessions[sessionID] = sess
	}
	sess.turns = append(sess.turns, types.Turn{Role: role, Text: text})
	sess.lastActivity = now
	if max := s.maxPairs * 2; len(sess.turns) > max {
		sess.turns = append([]types.Turn(nil), sess.turns[len(sess.turns)-max:]...)
	}
}

// Clear forgets a session.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Sweep removes expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastActivity) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.log.Info("expired conversation sessions removed", zap.Int("count", removed))
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Stats returns the store's current size and limits.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{ActiveSessions: len(s.sessions), MaxPairs: s.maxPairs, TTL: s.ttl}
}
