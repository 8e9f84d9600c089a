package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/stablepay/paybot/core/logger"
)

const redisKeyPrefix = "paysession:"

// RedisStore keeps sessions in Redis as JSON values with a TTL matching the
// session expiry, so expired sessions vanish without an explicit purge.
type RedisStore struct {
	client *redis.Client
	opts   Options
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client, opts Options) *RedisStore {
	opts.normalize()
	return &RedisStore{client: client, opts: opts}
}

func redisKey(id int64) string {
	return redisKeyPrefix + strconv.FormatInt(id, 10)
}

func (r *RedisStore) load(ctx context.Context, id int64) (Session, bool) {
	data, err := r.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false
	}
	if err != nil {
		logger.Warn(ctx, "session", "redis.get.fail",
			slog.Int64("chat_id", id),
			slog.String("err", err.Error()),
		)
		return Session{}, false
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		logger.Warn(ctx, "session", "redis.decode.fail",
			slog.Int64("chat_id", id),
			slog.String("err", err.Error()),
		)
		return Session{}, false
	}
	return s, true
}

func (r *RedisStore) store(ctx context.Context, s Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(s.ConversationID), data, ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

// Get returns the session, relying on the TTL for expiry but re-checking the
// stored timestamp to close the clock-skew window. Sub-threshold reads signal
// OnRefreshDue without blocking.
func (r *RedisStore) Get(ctx context.Context, id int64) (Session, bool) {
	now := r.opts.clock()
	s, ok := r.load(ctx, id)
	if !ok {
		return Session{}, false
	}
	if !now.Before(s.ExpiresAt) {
		_ = r.client.Del(ctx, redisKey(id)).Err()
		logger.Info(ctx, "session", "expired", slog.Int64("chat_id", id))
		return Session{}, false
	}
	if s.Remaining(now) < r.opts.RefreshThreshold && r.opts.OnRefreshDue != nil {
		r.opts.OnRefreshDue(id)
	}
	return s, true
}

// Peek returns the session without purge or refresh side effects.
func (r *RedisStore) Peek(ctx context.Context, id int64) (Session, bool) {
	now := r.opts.clock()
	s, ok := r.load(ctx, id)
	if !ok || !now.Before(s.ExpiresAt) {
		return Session{}, false
	}
	return s, true
}

// Put stores the session, raising expiry to the minimum-lifetime floor.
func (r *RedisStore) Put(ctx context.Context, s Session) error {
	now := r.opts.clock()
	floor := now.Add(r.opts.MinLifetime)
	if s.ExpiresAt.Before(floor) {
		s.ExpiresAt = floor
	}
	if s.LastActivity.IsZero() {
		s.LastActivity = now
	}
	if err := r.store(ctx, s, s.Remaining(now)); err != nil {
		return err
	}
	logger.Info(ctx, "session", "stored",
		slog.Int64("chat_id", s.ConversationID),
		slog.Int64("expires_in_s", int64(s.Remaining(now).Seconds())),
	)
	return nil
}

// Delete removes the session; idempotent.
func (r *RedisStore) Delete(ctx context.Context, id int64) error {
	if err := r.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

// Touch updates last-activity while keeping the existing TTL.
func (r *RedisStore) Touch(ctx context.Context, id int64) error {
	now := r.opts.clock()
	s, ok := r.load(ctx, id)
	if !ok {
		return nil
	}
	s.LastActivity = now
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(id), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

// Expiring scans live sessions and returns those inside the refresh window.
func (r *RedisStore) Expiring(ctx context.Context, within time.Duration) []Session {
	now := r.opts.clock()
	var due []Session

	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		remaining := s.Remaining(now)
		if remaining > 0 && remaining <= within {
			due = append(due, s)
		}
	}
	if err := iter.Err(); err != nil {
		logger.Warn(ctx, "session", "redis.scan.fail", slog.String("err", err.Error()))
	}
	return due
}

// ApplyRefresh installs a refreshed token if the session still exists.
func (r *RedisStore) ApplyRefresh(ctx context.Context, id int64, token string, expiresAt time.Time) bool {
	now := r.opts.clock()
	floor := now.Add(r.opts.MinLifetime)
	if expiresAt.Before(floor) {
		expiresAt = floor
	}

	s, ok := r.load(ctx, id)
	if !ok {
		return false
	}
	s.Token = token
	s.ExpiresAt = expiresAt
	if err := r.store(ctx, s, s.Remaining(now)); err != nil {
		logger.Warn(ctx, "session", "refresh.store.fail",
			slog.Int64("chat_id", id),
			slog.String("err", err.Error()),
		)
		return false
	}
	return true
}

// Count returns the number of live session keys.
func (r *RedisStore) Count(ctx context.Context) int {
	n := 0
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n
}
