package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"glaze-bot/internal/adapters/api"
	"glaze-bot/internal/adapters/telegram"
	"glaze-bot/internal/app"
	"glaze-bot/internal/infra/config"
	httpinfra "glaze-bot/internal/infra/http"
	applog "glaze-bot/internal/infra/log"
	"glaze-bot/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	if cfg.API.JWTSecret == "" {
		log.Fatal().Msg("api: API_JWT_SECRET не задан")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("api: неверный часовой пояс")
	}
	st, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет хранилища")
	}
	defer closeStore()

	var (
		botAPI  *tgbotapi.BotAPI
		members *telegram.Members
	)
	if app.UsesTelegram(cfg) {
		botAPI, members, err = app.OpenTelegram(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("api: не удалось создать бота")
		}
	}
	n, closeNotifier, err := app.OpenNotifier(ctx, cfg, botAPI, members, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет доставки уведомлений")
	}
	defer closeNotifier()

	services := app.NewServices(st, n, loc, logger)
	srv := httpinfra.NewServer(logger)
	api.Mount(srv.Router, api.Deps{
		Board:      services.Board,
		Moderation: services.Moderation,
		Settings:   services.Settings,
		Drops:      services.Drops,
		Secret:     []byte(cfg.API.JWTSecret),
		Log:        logger,
	})

	go func() {
		log.Info().Int("port", cfg.Port).Msg("api: старт")
		if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			log.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	log.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
