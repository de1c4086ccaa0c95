package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glaze-bot/internal/adapters/notifier"
	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/config"
)

func memoryConfig() config.AppConfig {
	var cfg config.AppConfig
	cfg.Store.Backend = "memory"
	cfg.Store.MaxAttempts = 3
	cfg.Notifier.Kind = NotifierLog
	return cfg
}

func TestOpenMemoryStoreAndServices(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	st, closeFn, err := OpenStore(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()

	n, closeNotifier, err := OpenNotifier(ctx, cfg, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	defer closeNotifier()
	assert.IsType(t, notifier.Log{}, n)

	svc := NewServices(st, n, time.UTC, zerolog.Nop())
	sub, err := svc.Ledger.Submit(ctx, "1", "2", "you are a great friend", time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, sub.ApprovalStatus)

	board, err := svc.Board.Get(ctx)
	require.NoError(t, err)
	require.Len(t, board.Senders, 1)
}

func TestOpenNotifierErrors(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()

	cfg.Notifier.Kind = NotifierTelegram
	_, _, err := OpenNotifier(ctx, cfg, nil, nil, zerolog.Nop())
	assert.Error(t, err)

	cfg.Notifier.Kind = "pigeon"
	_, _, err = OpenNotifier(ctx, cfg, nil, nil, zerolog.Nop())
	assert.Error(t, err)

	cfg.Notifier.Kind = NotifierRedis
	_, _, err = OpenNotifier(ctx, cfg, nil, nil, zerolog.Nop())
	assert.Error(t, err, "redis queue needs REDIS_ADDR")
}

func TestOpenCacheDisabledWithoutRedis(t *testing.T) {
	c, err := OpenCache(context.Background(), memoryConfig())
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Backend = "floppy"
	_, _, err := OpenStore(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
