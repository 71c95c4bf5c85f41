// Package memory maintains bounded, time-limited conversation state per
// session.
//
// Each session holds an ordered sequence of turns capped at a configurable
// maximum (oldest evicted first) and expires after a configurable idle TTL.
// Expiry is silent: an expired session is purged on next access and behaves
// exactly like a session that never existed — a missing session is an
// expected steady-state condition, not an error.
//
// Concurrency: mutations for a single session are serialized by a
// per-session lock; operations on different sessions do not block one
// another. The session index itself is guarded by a read-write lock held
// only for map access.
package memory

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single conversation turn. Append-only: never mutated once
// recorded. Sources lists the distinct document IDs that grounded an
// assistant reply.
type Turn struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []string  `json:"sources,omitempty"`
}

// Config bounds the per-session state.
type Config struct {
	MaxTurns int           // maximum turns kept per session
	TTL      time.Duration // idle duration after which a session expires
}

// session is the mutable per-session state, owned exclusively by Service.
type session struct {
	mu         sync.Mutex
	turns      []Turn
	createdAt  time.Time
	lastActive time.Time
}

// Service is the conversation memory store.
type Service struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session

	// now is swappable in tests to control TTL expiry.
	now func() time.Time
}

// New creates a Service. MaxTurns and TTL must both be positive.
func New(cfg Config, logger *slog.Logger) (*Service, error) {
	if cfg.MaxTurns <= 0 {
		return nil, fmt.Errorf("max turns must be positive, got %d", cfg.MaxTurns)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", cfg.TTL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*session),
		now:      time.Now,
	}, nil
}

// Append records a turn, creating the session lazily on first use. When the
// session is full the oldest turn is evicted first, keeping the turn count
// at most MaxTurns regardless of conversation length.
func (s *Service) Append(sessionID string, turn Turn) {
	now := s.now()

	var sess *session
	for {
		sess = s.getOrCreate(sessionID, now)
		sess.mu.Lock()

		// A concurrent purge may have evicted this session from the
		// index between lookup and lock, in which case the write would
		// land on orphaned state and vanish. Re-check under the lock
		// and start over with a fresh session.
		s.mu.RLock()
		current := s.sessions[sessionID]
		s.mu.RUnlock()
		if current == sess {
			break
		}
		sess.mu.Unlock()
	}
	defer sess.mu.Unlock()

	// An idle session past its TTL restarts from empty rather than
	// resurrecting stale turns.
	if now.Sub(sess.lastActive) > s.cfg.TTL {
		sess.turns = nil
		sess.createdAt = now
	}

	if len(sess.turns) == s.cfg.MaxTurns {
		copy(sess.turns, sess.turns[1:])
		sess.turns = sess.turns[:s.cfg.MaxTurns-1]
	}
	sess.turns = append(sess.turns, turn)
	sess.lastActive = now

	s.logger.Debug("turn appended",
		"session_id", sessionID,
		"role", turn.Role,
		"turns", len(sess.turns),
	)
}

// History returns the session's turns oldest-first. An expired or unknown
// session yields an empty slice, indistinguishable from a brand-new one.
// A live session's idle clock is refreshed by the access.
func (s *Service) History(sessionID string) []Turn {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return []Turn{}
	}

	now := s.now()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if now.Sub(sess.lastActive) > s.cfg.TTL {
		s.purge(sessionID, sess)
		return []Turn{}
	}
	sess.lastActive = now

	out := make([]Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Clear removes the session unconditionally. Subsequent History calls
// behave as a fresh session.
func (s *Service) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; ok {
		delete(s.sessions, sessionID)
		s.logger.Debug("session cleared", "session_id", sessionID)
	}
}

// ActiveSessions returns the IDs of sessions that have not expired,
// purging the ones that have.
func (s *Service) ActiveSessions() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	candidates := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		ids = append(ids, id)
		candidates = append(candidates, sess)
	}
	s.mu.RUnlock()

	now := s.now()
	active := make([]string, 0, len(ids))
	for i, sess := range candidates {
		sess.mu.Lock()
		expired := now.Sub(sess.lastActive) > s.cfg.TTL
		sess.mu.Unlock()
		if expired {
			s.purge(ids[i], sess)
			continue
		}
		active = append(active, ids[i])
	}
	return active
}

// getOrCreate returns the session, creating it lazily.
func (s *Service) getOrCreate(sessionID string, now time.Time) *session {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[sessionID]; ok {
		return sess
	}
	sess = &session{createdAt: now, lastActive: now}
	s.sessions[sessionID] = sess
	s.logger.Debug("session created", "session_id", sessionID)
	return sess
}

// purge removes an expired session from the index. The entry is only
// deleted if it still points at the same state, so a session recreated
// concurrently under the same ID survives.
func (s *Service) purge(sessionID string, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[sessionID]; ok && current == sess {
		delete(s.sessions, sessionID)
		s.logger.Debug("session expired", "session_id", sessionID)
	}
}
