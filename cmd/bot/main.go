package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"glaze-bot/internal/adapters/bot"
	"glaze-bot/internal/adapters/notifier"
	"glaze-bot/internal/app"
	"glaze-bot/internal/infra/config"
	httpinfra "glaze-bot/internal/infra/http"
	"glaze-bot/internal/infra/log"
	"glaze-bot/internal/infra/metrics"
)

const webhookPath = "/bot/webhook"

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: неверный часовой пояс")
	}
	st, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: нет хранилища")
	}
	defer closeStore()

	botAPI, members, err := app.OpenTelegram(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось создать бота")
	}
	n, closeNotifier, err := app.OpenNotifier(ctx, cfg, botAPI, members, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: нет доставки уведомлений")
	}
	defer closeNotifier()

	services := app.NewServices(st, n, loc, logger)
	h := bot.NewHandler(bot.Deps{
		Bot:        botAPI,
		Members:    members,
		Ledger:     services.Ledger,
		Inbox:      services.Inbox,
		Moderation: services.Moderation,
		Drops:      services.Drops,
		Settings:   services.Settings,
		Board:      services.Board,
		Resolver:   notifier.NewTelegram(botAPI, members, logger),
		Location:   loc,
		Log:        logger,
	})

	restored, err := h.RestorePendingControls(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("bot: не удалось восстановить кнопки модерации")
	} else if restored > 0 {
		logger.Info().Int("restored", restored).Msg("bot: кнопки модерации восстановлены")
	}

	srv := httpinfra.NewServer(logger)
	if cfg.Telegram.WebhookURL != "" {
		srv.Router.Post(webhookPath, func(w http.ResponseWriter, r *http.Request) {
			var update tgbotapi.Update
			if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			h.HandleUpdate(r.Context(), update)
			w.WriteHeader(http.StatusOK)
		})
		if err := setWebhook(botAPI, cfg.Telegram.WebhookURL); err != nil {
			logger.Fatal().Err(err).Msg("bot: не удалось установить webhook")
		}
	} else {
		go poll(ctx, botAPI, h, logger)
	}

	go func() {
		if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("bot: HTTP сервер остановлен")
			stop()
		}
	}()
	logger.Info().Str("bot", botAPI.Self.UserName).Bool("webhook", cfg.Telegram.WebhookURL != "").Msg("bot: запущен")

	<-ctx.Done()
	logger.Info().Msg("bot: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func setWebhook(botAPI *tgbotapi.BotAPI, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return err
	}
	_, err = botAPI.Request(wh)
	return err
}

// poll получает апдейты long polling до отмены контекста.
func poll(ctx context.Context, botAPI *tgbotapi.BotAPI, h *bot.Handler, logger zerolog.Logger) {
	if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		logger.Warn().Err(err).Msg("bot: не удалось снять webhook")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := botAPI.GetUpdatesChan(u)
	defer botAPI.StopReceivingUpdates()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			h.HandleUpdate(ctx, update)
		}
	}
}
