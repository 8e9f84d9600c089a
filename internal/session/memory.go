package session

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/stablepay/paybot/core/logger"
)

// MemoryStore is the default in-process backend.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]Session
	opts     Options
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	opts.normalize()
	return &MemoryStore{
		sessions: make(map[int64]Session),
		opts:     opts,
	}
}

// Get returns the session, purging it if expired. Reads under the refresh
// threshold signal OnRefreshDue without blocking the caller.
func (m *MemoryStore) Get(ctx context.Context, id int64) (Session, bool) {
	now := m.opts.clock()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return Session{}, false
	}
	if !now.Before(s.ExpiresAt) {
		delete(m.sessions, id)
		m.mu.Unlock()
		logger.Info(ctx, "session", "expired",
			slog.Int64("chat_id", id),
		)
		return Session{}, false
	}
	m.mu.Unlock()

	if s.Remaining(now) < m.opts.RefreshThreshold && m.opts.OnRefreshDue != nil {
		m.opts.OnRefreshDue(id)
	}
	return s, true
}

// Peek returns the session without purge or refresh side effects.
func (m *MemoryStore) Peek(ctx context.Context, id int64) (Session, bool) {
	now := m.opts.clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !now.Before(s.ExpiresAt) {
		return Session{}, false
	}
	return s, true
}

// Put stores the session, raising expiry to the minimum-lifetime floor.
func (m *MemoryStore) Put(ctx context.Context, s Session) error {
	now := m.opts.clock()
	floor := now.Add(m.opts.MinLifetime)
	if s.ExpiresAt.Before(floor) {
		s.ExpiresAt = floor
	}
	if s.LastActivity.IsZero() {
		s.LastActivity = now
	}

	m.mu.Lock()
	m.sessions[s.ConversationID] = s
	m.mu.Unlock()

	logger.Info(ctx, "session", "stored",
		slog.Int64("chat_id", s.ConversationID),
		slog.Int64("expires_in_s", int64(s.Remaining(now).Seconds())),
	)
	return nil
}

// Delete removes the session; idempotent.
func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Touch updates last-activity without altering expiry.
func (m *MemoryStore) Touch(ctx context.Context, id int64) error {
	now := m.opts.clock()
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		s.LastActivity = now
		m.sessions[id] = s
	}
	m.mu.Unlock()
	return nil
}

// Expiring snapshots sessions due for refresh within the window.
func (m *MemoryStore) Expiring(ctx context.Context, within time.Duration) []Session {
	now := m.opts.clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []Session
	for _, s := range m.sessions {
		remaining := s.Remaining(now)
		if remaining > 0 && remaining <= within {
			due = append(due, s)
		}
	}
	return due
}

// ApplyRefresh installs a refreshed token under the lock. The floor applies
// here too so a short-lived refresh never produces an already-dead session.
func (m *MemoryStore) ApplyRefresh(ctx context.Context, id int64, token string, expiresAt time.Time) bool {
	now := m.opts.clock()
	floor := now.Add(m.opts.MinLifetime)
	if expiresAt.Before(floor) {
		expiresAt = floor
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	s.Token = token
	s.ExpiresAt = expiresAt
	m.sessions[id] = s
	return true
}

// Count returns the number of live sessions.
func (m *MemoryStore) Count(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
