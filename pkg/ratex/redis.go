package ratex

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a shared counter store for multi-process deployments. The
// window lives as a key TTL, so expiry doubles as eviction.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "ratex:"}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	rkey := s.prefix + key

	count, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratex: redis incr: %w", err)
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, rkey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("ratex: redis pexpire: %w", err)
		}
		return int(count), time.Now().Add(window), nil
	}

	ttl, err := s.client.PTTL(ctx, rkey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratex: redis pttl: %w", err)
	}
	if ttl < 0 {
		// Expiry was lost (e.g. another INCR raced key creation); reinstate
		// it so the window still closes.
		if err := s.client.PExpire(ctx, rkey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("ratex: redis pexpire: %w", err)
		}
		ttl = window
	}

	return int(count), time.Now().Add(ttl), nil
}
