package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joeott/docpipeline/pkg/logger"
)

// RedisCache implements Cache on a shared Redis, which is what production
// workers use so locks and staged outputs are visible across processes.
type RedisCache struct {
	client *redis.Client
	logger logger.Logger
}

var _ Cache = (*RedisCache)(nil)

// unlockScript deletes the lock only when the stored owner token matches,
// atomically, so an expired holder cannot release a successor's lock.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

func NewRedisCache(addr string, db int, log logger.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	return &RedisCache{client: client, logger: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return ok, nil
}

func (c *RedisCache) Unlock(ctx context.Context, key, owner string) error {
	released, err := unlockScript.Run(ctx, c.client, []string{key}, owner).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if released == 0 {
		// Lock expired or was taken over; nothing to release.
		c.logger.Debug("lock already released", logger.String("key", key))
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
