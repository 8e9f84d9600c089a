package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestStore(clk *fakeClock, onRefresh func(int64)) *MemoryStore {
	return NewMemoryStore(Options{
		MinLifetime:      time.Minute,
		RefreshThreshold: 10 * time.Minute,
		OnRefreshDue:     onRefresh,
		clock:            clk.Now,
	})
}

func TestGetReturnsUntilExpiryThenPurges(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(clk, nil)

	require.NoError(t, store.Put(ctx, Session{
		ConversationID: 7,
		Token:          "tok",
		ExpiresAt:      clk.now.Add(time.Hour),
		TenantID:       "org-1",
	}))

	for i := 0; i < 5; i++ {
		s, ok := store.Get(ctx, 7)
		require.True(t, ok, "read %d before expiry", i)
		assert.Equal(t, "tok", s.Token)
		clk.Advance(10 * time.Minute)
	}

	// Now exactly at expiry.
	clk.Advance(10 * time.Minute)
	_, ok := store.Get(ctx, 7)
	assert.False(t, ok, "read at expiry must be absent")

	// Purged on read, not just hidden.
	clk.Advance(-30 * time.Minute)
	_, ok = store.Get(ctx, 7)
	assert.False(t, ok, "purge must be permanent")
}

func TestPutEnforcesMinimumLifetime(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(clk, nil)

	// Expiry in the past is raised to now + minimum lifetime.
	require.NoError(t, store.Put(ctx, Session{
		ConversationID: 1,
		Token:          "tok",
		ExpiresAt:      clk.now.Add(-time.Hour),
	}))

	s, ok := store.Peek(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, clk.now.Add(time.Minute), s.ExpiresAt)
}

func TestGetUnderThresholdSignalsRefreshWithoutBlocking(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	var due []int64
	store := newTestStore(clk, func(id int64) { due = append(due, id) })

	// Five minutes remaining is under the ten minute threshold.
	require.NoError(t, store.Put(ctx, Session{
		ConversationID: 9,
		Token:          "pre-refresh",
		ExpiresAt:      clk.now.Add(5 * time.Minute),
	}))

	s, ok := store.Get(ctx, 9)
	require.True(t, ok, "caller still gets the valid session synchronously")
	assert.Equal(t, "pre-refresh", s.Token)
	assert.Equal(t, []int64{9}, due)

	// Peek must not re-signal.
	_, ok = store.Peek(ctx, 9)
	require.True(t, ok)
	assert.Len(t, due, 1)
}

func TestGetAboveThresholdDoesNotSignal(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	var due []int64
	store := newTestStore(clk, func(id int64) { due = append(due, id) })

	require.NoError(t, store.Put(ctx, Session{
		ConversationID: 9,
		ExpiresAt:      clk.now.Add(time.Hour),
	}))

	_, ok := store.Get(ctx, 9)
	require.True(t, ok)
	assert.Empty(t, due)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Now()}
	store := newTestStore(clk, nil)

	require.NoError(t, store.Put(ctx, Session{ConversationID: 3, ExpiresAt: clk.now.Add(time.Hour)}))
	require.NoError(t, store.Delete(ctx, 3))
	require.NoError(t, store.Delete(ctx, 3))
	require.NoError(t, store.Delete(ctx, 404))

	_, ok := store.Get(ctx, 3)
	assert.False(t, ok)
}

func TestTouchUpdatesActivityNotExpiry(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(clk, nil)

	expiry := clk.now.Add(time.Hour)
	require.NoError(t, store.Put(ctx, Session{ConversationID: 5, ExpiresAt: expiry}))

	clk.Advance(15 * time.Minute)
	require.NoError(t, store.Touch(ctx, 5))

	s, ok := store.Peek(ctx, 5)
	require.True(t, ok)
	assert.Equal(t, expiry, s.ExpiresAt)
	assert.Equal(t, clk.now, s.LastActivity)

	// Touching an absent session is a no-op.
	require.NoError(t, store.Touch(ctx, 404))
}

func TestExpiringSnapshotsOnlySessionsInWindow(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(clk, nil)

	require.NoError(t, store.Put(ctx, Session{ConversationID: 1, ExpiresAt: clk.now.Add(5 * time.Minute)}))
	require.NoError(t, store.Put(ctx, Session{ConversationID: 2, ExpiresAt: clk.now.Add(time.Hour)}))

	due := store.Expiring(ctx, 10*time.Minute)
	require.Len(t, due, 1)
	assert.Equal(t, int64(1), due[0].ConversationID)
}

func TestApplyRefresh(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(clk, nil)

	require.NoError(t, store.Put(ctx, Session{
		ConversationID: 8,
		Token:          "old",
		TenantID:       "org-1",
		ExpiresAt:      clk.now.Add(5 * time.Minute),
	}))

	newExpiry := clk.now.Add(time.Hour)
	require.True(t, store.ApplyRefresh(ctx, 8, "new", newExpiry))

	s, ok := store.Peek(ctx, 8)
	require.True(t, ok)
	assert.Equal(t, "new", s.Token)
	assert.Equal(t, newExpiry, s.ExpiresAt)
	assert.Equal(t, "org-1", s.TenantID, "refresh must not disturb other fields")

	require.NoError(t, store.Delete(ctx, 8))
	assert.False(t, store.ApplyRefresh(ctx, 8, "newer", newExpiry), "refresh after logout is discarded")
}

func TestCount(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Now()}
	store := newTestStore(clk, nil)

	assert.Equal(t, 0, store.Count(ctx))
	require.NoError(t, store.Put(ctx, Session{ConversationID: 1, ExpiresAt: clk.now.Add(time.Hour)}))
	require.NoError(t, store.Put(ctx, Session{ConversationID: 2, ExpiresAt: clk.now.Add(time.Hour)}))
	assert.Equal(t, 2, store.Count(ctx))
}
