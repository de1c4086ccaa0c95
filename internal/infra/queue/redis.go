package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type listCommander interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// RedisQueue реализует очередь на списке Redis. Доставка не более одного раза.
type RedisQueue struct {
	client listCommander
	key    string
	poll   time.Duration
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue создаёт очередь по ключу key.
func NewRedisQueue(client redis.Cmdable, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key, poll: time.Second}
}

// Push кладёт сообщение в голову списка.
func (q *RedisQueue) Push(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push %s: %w", q.key, err)
	}
	return nil
}

// Pop блокирующе читает сообщение из хвоста списка.
func (q *RedisQueue) Pop(ctx context.Context) (Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Delivery{}, err
		}
		res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() != nil {
				return Delivery{}, ctx.Err()
			}
			continue
		case err != nil:
			return Delivery{}, fmt.Errorf("pop %s: %w", q.key, err)
		}
		if len(res) != 2 {
			return Delivery{}, errors.New("redis queue: unexpected response")
		}
		return Delivery{Body: []byte(res[1])}, nil
	}
}

// Close ничего не делает: клиентом Redis владеет вызывающий.
func (q *RedisQueue) Close() error {
	return nil
}
