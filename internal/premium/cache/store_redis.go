package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "premiumblocker:status:"

// RedisCache shares verdicts between proxy replicas. Redis expires each key
// after the TTL; Get also applies the age check so both stores agree.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisCache wraps client. A nil now uses time.Now.
func NewRedisCache(client redis.Cmdable, ttl time.Duration, now func() time.Time) *RedisCache {
	if now == nil {
		now = time.Now
	}
	return &RedisCache{client: client, ttl: ttl, now: now}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached entry %s: %w", key, err)
	}
	if !fresh(e, c.now(), c.ttl) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, verdict bool, now time.Time) error {
	raw, err := json.Marshal(Entry{Key: key, Verdict: verdict, WrittenAt: now})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
