package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lastSeenTTL = 30 * 24 * time.Hour

// RedisStore handles Redis operations: rate-limit counters and the
// last-seen cache. It is optional; a nil *RedisStore degrades to
// unlimited requests and store-only last-seen.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func rateLimitKey(scope, subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, subject)
}

func lastSeenKey(userID string) string {
	return fmt.Sprintf("lastseen:%s", userID)
}

// IncrRateLimit increments the counter for subject within scope and
// returns the new count. The counter expires after window.
func (s *RedisStore) IncrRateLimit(ctx context.Context, scope, subject string, window time.Duration) (int64, error) {
	key := rateLimitKey(scope, subject)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// CacheLastSeen records the user's last-seen time for fast presence reads.
func (s *RedisStore) CacheLastSeen(ctx context.Context, userID string, t time.Time) {
	s.client.Set(ctx, lastSeenKey(userID), t.UnixMilli(), lastSeenTTL)
}

// LastSeen returns the cached last-seen time, or zero when unknown.
func (s *RedisStore) LastSeen(ctx context.Context, userID string) time.Time {
	ms, err := s.client.Get(ctx, lastSeenKey(userID)).Int64()
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
