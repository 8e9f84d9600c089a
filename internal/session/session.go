// Package session owns the per-conversation authorization lifecycle: storage
// with purge-on-read expiry, a minimum-lifetime floor on writes, and a
// background refresher that extends tokens before they lapse.
package session

import (
	"context"
	"time"
)

// Session is one conversation's authorization state.
type Session struct {
	ConversationID int64     `json:"conversation_id"`
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expires_at"`
	TenantID       string    `json:"tenant_id"`
	LastActivity   time.Time `json:"last_activity"`
}

// Remaining returns the time left before expiry at the given instant.
func (s Session) Remaining(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

// Store holds at most one session per conversation id.
//
// Get purges expired sessions on read and, when the remaining lifetime drops
// under the refresh threshold, signals a non-blocking refresh while still
// returning the valid session synchronously. Peek has neither side effect.
type Store interface {
	Get(ctx context.Context, id int64) (Session, bool)
	Peek(ctx context.Context, id int64) (Session, bool)
	// Put stores the session, raising ExpiresAt to at least now plus the
	// configured minimum lifetime.
	Put(ctx context.Context, s Session) error
	// Delete removes the session; idempotent.
	Delete(ctx context.Context, id int64) error
	// Touch updates last-activity without altering expiry.
	Touch(ctx context.Context, id int64) error
	// Expiring snapshots sessions whose remaining lifetime is at most the
	// given window. Expired sessions are excluded.
	Expiring(ctx context.Context, within time.Duration) []Session
	// ApplyRefresh installs a refreshed token if the session still exists.
	// It reports false when the session was deleted while the refresh ran.
	ApplyRefresh(ctx context.Context, id int64, token string, expiresAt time.Time) bool
	// Count returns the number of live sessions.
	Count(ctx context.Context) int
}

// Options tune store behaviour shared by all backends.
type Options struct {
	// MinLifetime is the floor applied to ExpiresAt on every Put.
	MinLifetime time.Duration
	// RefreshThreshold triggers OnRefreshDue when a Get observes less
	// remaining lifetime than this.
	RefreshThreshold time.Duration
	// OnRefreshDue must not block; it is called inline from Get.
	OnRefreshDue func(conversationID int64)

	clock func() time.Time
}

func (o *Options) normalize() {
	if o.MinLifetime <= 0 {
		o.MinLifetime = time.Minute
	}
	if o.RefreshThreshold <= 0 {
		o.RefreshThreshold = 10 * time.Minute
	}
	if o.clock == nil {
		o.clock = time.Now
	}
}
