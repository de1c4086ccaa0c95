// Package app собирает зависимости бинарников из конфигурации окружения.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"glaze-bot/internal/adapters/docstore"
	"glaze-bot/internal/adapters/notifier"
	"glaze-bot/internal/adapters/telegram"
	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/cache"
	"glaze-bot/internal/infra/config"
	"glaze-bot/internal/infra/queue"
	"glaze-bot/internal/store"
	"glaze-bot/internal/usecase/drop"
	"glaze-bot/internal/usecase/leaderboard"
	"glaze-bot/internal/usecase/ledger"
	"glaze-bot/internal/usecase/moderation"
	"glaze-bot/internal/usecase/settings"
)

// Способы доставки уведомлений.
const (
	NotifierTelegram = "telegram"
	NotifierAMQP     = "amqp"
	NotifierRedis    = "redis"
	NotifierLog      = "log"
)

// Services собирает сервисы ядра поверх одного хранилища и нотификатора.
type Services struct {
	Store      *store.Store
	Ledger     *ledger.Service
	Inbox      *ledger.Inbox
	Moderation *moderation.Service
	Drops      *drop.Scheduler
	Settings   *settings.Service
	Board      *leaderboard.Service
}

// NewServices создаёт сервисы ядра.
func NewServices(st *store.Store, n domain.Notifier, loc *time.Location, logger zerolog.Logger, dropOpts ...drop.Option) Services {
	ledgerSvc := ledger.NewService(st, loc, logger)
	return Services{
		Store:      st,
		Ledger:     ledgerSvc,
		Inbox:      ledger.NewInbox(ledgerSvc, n),
		Moderation: moderation.NewService(st, n, logger),
		Drops:      drop.NewScheduler(st, n, loc, logger, dropOpts...),
		Settings:   settings.NewService(st, logger),
		Board:      leaderboard.NewService(st),
	}
}

// OpenStore открывает выбранный бэкенд документа и оборачивает его в store.Store.
func OpenStore(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*store.Store, func(), error) {
	backend, closeFn, err := docstore.Open(ctx, docstore.Options{
		Kind: docstore.Kind(cfg.Store.Backend),
		GitHub: docstore.GitHubConfig{
			Repo:    cfg.GitHub.Repo,
			Token:   cfg.GitHub.Token,
			Path:    cfg.GitHub.File,
			BaseURL: cfg.GitHub.API,
		},
		PGDSN:        cfg.PGDSN,
		DocumentName: cfg.Store.DocumentName,
		S3: docstore.S3Config{
			Bucket:   cfg.S3.Bucket,
			Key:      cfg.S3.Key,
			Region:   cfg.AWSRegion,
			Endpoint: cfg.S3.Endpoint,
		},
		RedisAddr:    cfg.Redis.Addr,
		RedisKey:     cfg.Redis.DocumentKey,
		DynamoTable:  cfg.DynamoTable,
		DynamoRegion: cfg.AWSRegion,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("открытие хранилища %s: %w", cfg.Store.Backend, err)
	}
	logger.Info().Str("backend", cfg.Store.Backend).Msg("хранилище открыто")
	return store.New(backend, logger, store.WithMaxAttempts(cfg.Store.MaxAttempts)), closeFn, nil
}

// OpenTelegram создаёт клиента Bot API и справочник участников группы.
func OpenTelegram(cfg config.AppConfig) (*tgbotapi.BotAPI, *telegram.Members, error) {
	if cfg.Telegram.Token == "" {
		return nil, nil, errors.New("TG_BOT_TOKEN is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("создание бота: %w", err)
	}
	return bot, telegram.NewMembers(bot, cfg.Telegram.GroupChat), nil
}

// UsesTelegram сообщает, что уведомления отправляются напрямую в Bot API.
func UsesTelegram(cfg config.AppConfig) bool {
	kind := strings.ToLower(cfg.Notifier.Kind)
	return kind == NotifierTelegram || kind == ""
}

// OpenQueue подключает очередь уведомлений для NOTIFIER=amqp или redis.
func OpenQueue(ctx context.Context, cfg config.AppConfig) (queue.Queue, error) {
	switch strings.ToLower(cfg.Notifier.Kind) {
	case NotifierAMQP:
		return queue.NewAMQPQueue(cfg.Notifier.AMQPURL, cfg.Notifier.AMQPQueue)
	case NotifierRedis:
		client, err := redisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return queue.NewRedisQueue(client, cfg.Notifier.RedisKey), nil
	default:
		return nil, fmt.Errorf("notifier %q does not use a queue", cfg.Notifier.Kind)
	}
}

// OpenNotifier выбирает доставку уведомлений. bot и members нужны только для NOTIFIER=telegram.
func OpenNotifier(ctx context.Context, cfg config.AppConfig, bot *tgbotapi.BotAPI, members *telegram.Members, logger zerolog.Logger) (domain.Notifier, func(), error) {
	noop := func() {}
	switch strings.ToLower(cfg.Notifier.Kind) {
	case NotifierTelegram, "":
		if bot == nil || members == nil {
			return nil, noop, errors.New("telegram notifier needs a bot client")
		}
		return notifier.NewTelegram(bot, members, logger), noop, nil
	case NotifierLog:
		return notifier.NewLog(logger), noop, nil
	case NotifierAMQP, NotifierRedis:
		q, err := OpenQueue(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		return notifier.NewQueued(q, logger), func() { _ = q.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown notifier %q", cfg.Notifier.Kind)
	}
}

// OpenCache возвращает Redis-блокировку для нескольких реплик планировщика или nil без REDIS_ADDR.
func OpenCache(ctx context.Context, cfg config.AppConfig) (domain.Cache, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	client, err := redisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return cache.NewRedis(client, "glaze:lock:"), nil
}

func redisClient(ctx context.Context, cfg config.AppConfig) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, errors.New("REDIS_ADDR is empty")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
