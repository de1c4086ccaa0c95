package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"glaze-bot/internal/adapters/telegram"
	"glaze-bot/internal/app"
	"glaze-bot/internal/infra/config"
	applog "glaze-bot/internal/infra/log"
	"glaze-bot/internal/infra/metrics"
	"glaze-bot/internal/usecase/drop"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: неверный часовой пояс")
	}
	st, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: нет хранилища")
	}
	defer closeStore()

	var (
		botAPI  *tgbotapi.BotAPI
		members *telegram.Members
	)
	if app.UsesTelegram(cfg) {
		botAPI, members, err = app.OpenTelegram(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
		}
	}
	n, closeNotifier, err := app.OpenNotifier(ctx, cfg, botAPI, members, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: нет доставки уведомлений")
	}
	defer closeNotifier()

	opts := []drop.Option{drop.WithTick(cfg.Scheduler.Tick)}
	lock, err := app.OpenCache(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: нет подключения к redis")
	}
	if lock != nil {
		opts = append(opts, drop.WithCache(lock))
	}
	scheduler := app.NewServices(st, n, loc, logger, opts...).Drops

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("scheduler: остановлен с ошибкой")
	}
	logger.Info().Msg("scheduler: остановка")
}
