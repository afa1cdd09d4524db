package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scribely/backend/internal/cache"
)

// RedisStore is the connection-style backend: a long-lived go-redis client
// issuing one atomic INCRBY per consumption, plus a corrective EXPIRE.
type RedisStore struct {
	redis *cache.Redis
}

// NewRedisStore creates a redis counter backend, or nil when no client is
// available so the chain skips it.
func NewRedisStore(r *cache.Redis) *RedisStore {
	if r == nil {
		return nil
	}
	return &RedisStore{redis: r}
}

// Name implements Store
func (s *RedisStore) Name() string { return "redis" }

// Get reads the counter value, reporting absent keys without error
func (s *RedisStore) Get(ctx context.Context, key string) (int64, bool, error) {
	raw, err := s.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis get: %w", err)
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("non-numeric counter %q", raw)
	}
	return val, true, nil
}

// IncrBy performs the atomic increment, then corrects the expiry when it is
// unset or longer than intended. A TTL that is already within bounds is left
// alone so concurrent writers never shorten each other's expiry.
func (s *RedisStore) IncrBy(ctx context.Context, key string, by int64, ttl time.Duration) (int64, error) {
	val, err := s.redis.IncrBy(ctx, key, by)
	if err != nil {
		return 0, fmt.Errorf("redis incrby: %w", err)
	}

	current, err := s.redis.TTL(ctx, key)
	if err == nil && (current < 0 || current > ttl) {
		// best effort; the counter value is already correct
		_ = s.redis.Expire(ctx, key, ttl)
	}

	return val, nil
}
