// Package cache содержит TTL-блокировки для согласования реплик.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"glaze-bot/internal/domain"
)

// commander покрывает команды redis.Cmdable, нужные для блокировок.
type commander interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCache реализует domain.Cache через SET NX.
type RedisCache struct {
	client commander
	prefix string
}

var _ domain.Cache = (*RedisCache)(nil)

// NewRedis создаёт кэш. prefix добавляется ко всем ключам.
func NewRedis(client redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Once выполняет fn, только если ключ ещё не занят. Ключ живёт ttl;
// если fn вернула ошибку, ключ снимается, чтобы следующая попытка могла повторить работу.
func (c *RedisCache) Once(key string, ttl time.Duration, fn func() error) error {
	ctx := context.Background()
	full := c.prefix + key
	ok, err := c.client.SetNX(ctx, full, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return fmt.Errorf("захват ключа %s: %w", full, err)
	}
	if !ok {
		return nil
	}
	if err := fn(); err != nil {
		if delErr := c.client.Del(ctx, full).Err(); delErr != nil {
			return fmt.Errorf("%w (снятие ключа: %v)", err, delErr)
		}
		return err
	}
	return nil
}
