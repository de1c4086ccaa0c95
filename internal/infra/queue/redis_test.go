package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeList struct {
	mu    sync.Mutex
	items []string
}

func (f *fakeList) LPush(_ context.Context, _ string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.items = append([]string{string(v.([]byte))}, f.items...)
	}
	return redis.NewIntResult(int64(len(f.items)), nil)
}

func (f *fakeList) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
	last := f.items[len(f.items)-1]
	f.items = f.items[:len(f.items)-1]
	return redis.NewStringSliceResult([]string{keys[0], last}, nil)
}

func TestRedisQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := &RedisQueue{client: &fakeList{}, key: "events", poll: time.Millisecond}

	require.NoError(t, q.Push(ctx, []byte("first")))
	require.NoError(t, q.Push(ctx, []byte("second")))

	d, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", string(d.Body))
	assert.NoError(t, d.Done(true))

	d, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(d.Body))
}

func TestRedisQueuePopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	q := &RedisQueue{client: &fakeList{}, key: "events", poll: time.Millisecond}

	_, err := q.Pop(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
