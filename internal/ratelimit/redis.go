package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps counters in Redis so multiple processes can share them.
//
// A window ends when the key expires, so the window start is derived from
// the remaining TTL of the key.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration) (Entry, error) {
	k := s.prefix + key

	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to increment %s: %w", k, err)
	}

	// Only the first hit of a window sets the expiry.
	if count == 1 {
		err = s.client.PExpire(ctx, k, window).Err()
		if err != nil {
			return Entry{}, fmt.Errorf("failed to set expiry of %s: %w", k, err)
		}
	}

	ttl, err := s.client.PTTL(ctx, k).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get ttl of %s: %w", k, err)
	}

	// A key without expiry would never reset.
	if ttl < 0 {
		err = s.client.PExpire(ctx, k, window).Err()
		if err != nil {
			return Entry{}, fmt.Errorf("failed to set expiry of %s: %w", k, err)
		}
		ttl = window
	}

	return Entry{
		Count:       int(count),
		WindowStart: now.Add(ttl - window),
	}, nil
}

// Evict is a no-op, Redis expires keys by itself.
func (s *RedisStore) Evict(time.Time, time.Duration) {}
