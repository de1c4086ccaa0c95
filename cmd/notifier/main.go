// Команда notifier доставляет в Telegram события, которые bot, scheduler и api кладут в очередь.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"glaze-bot/internal/adapters/notifier"
	"glaze-bot/internal/app"
	"glaze-bot/internal/infra/config"
	applog "glaze-bot/internal/infra/log"
	"glaze-bot/internal/infra/metrics"
	"glaze-bot/internal/usecase/moderation"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, err := app.OpenQueue(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("notifier: нет очереди")
	}
	defer q.Close()

	st, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("notifier: нет хранилища")
	}
	defer closeStore()

	botAPI, members, err := app.OpenTelegram(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("notifier: не удалось создать бота")
	}
	target := notifier.NewTelegram(botAPI, members, logger)
	mod := moderation.NewService(st, target, logger)

	relay := notifier.NewRelay(q, target, mod.AttachModerationRef, logger)
	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	logger.Info().Str("queue", cfg.Notifier.Kind).Msg("notifier: старт")
	if err := relay.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("notifier: очередь недоступна")
	}
	logger.Info().Msg("notifier: остановка")
}
