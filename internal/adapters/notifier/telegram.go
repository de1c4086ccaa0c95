// Package notifier доставляет сообщения ядра в Telegram напрямую или через очередь.
package notifier

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"glaze-bot/internal/adapters/telegram"
	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
)

// Telegram реализует domain.Notifier через Bot API.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	members *telegram.Members
	log     zerolog.Logger
}

var _ domain.Notifier = (*Telegram)(nil)

// NewTelegram создаёт нотификатор.
func NewTelegram(bot *tgbotapi.BotAPI, members *telegram.Members, logger zerolog.Logger) *Telegram {
	return &Telegram{bot: bot, members: members, log: logger.With().Str("component", "notifier").Logger()}
}

// DeliverDailyDrop публикует сообщение в канал публикаций.
func (t *Telegram) DeliverDailyDrop(ctx context.Context, channel domain.ChannelID, recipient domain.MemberID, text string) error {
	chatID, err := telegram.ParseChatID(channel)
	if err != nil {
		return err
	}
	body := telegram.DailyDrop(recipient, t.members.Name(recipient), text)
	_, err = t.send(chatID, body, tgbotapi.ModeHTML, nil)
	return err
}

// DeliverMonthlyAnnouncement объявляет победителя месяца.
func (t *Telegram) DeliverMonthlyAnnouncement(ctx context.Context, channel domain.ChannelID, winner domain.MemberID, count int, monthKey string) error {
	chatID, err := telegram.ParseChatID(channel)
	if err != nil {
		return err
	}
	body := telegram.MonthlyAnnouncement(winner, t.members.Name(winner), count, monthKey)
	_, err = t.send(chatID, body, tgbotapi.ModeHTML, nil)
	return err
}

// DeliverModerationNotice отправляет жалобу или запрос на одобрение с кнопками модератора.
func (t *Telegram) DeliverModerationNotice(ctx context.Context, notice domain.ModerationNotice) (domain.ModerationRef, error) {
	chatID, err := telegram.ParseChatID(notice.Channel)
	if err != nil {
		return domain.ModerationRef{}, err
	}
	keyboard := telegram.ApprovalKeyboard(notice.Submission.ID)
	if notice.Kind == domain.ModerationReport {
		keyboard = telegram.ReportKeyboard(notice.Submission.ID)
	}
	msg, err := t.send(chatID, telegram.ModerationNotice(notice), tgbotapi.ModeHTML, keyboard)
	if err != nil {
		return domain.ModerationRef{}, err
	}
	return domain.ModerationRef{ChannelID: notice.Channel, MessageID: strconv.Itoa(msg.MessageID)}, nil
}

// DeliverShare публикует сообщение, которым поделился получатель.
func (t *Telegram) DeliverShare(ctx context.Context, channel domain.ChannelID, text, note string) error {
	chatID, err := telegram.ParseChatID(channel)
	if err != nil {
		return err
	}
	_, err = t.send(chatID, telegram.Shared(text, note), tgbotapi.ModeHTML, nil)
	return err
}

// DeliverDirectMessage пишет участнику в личные сообщения. Длинный текст режется на части.
func (t *Telegram) DeliverDirectMessage(ctx context.Context, user domain.MemberID, text string) bool {
	chatID, err := telegram.ParseUserID(user)
	if err != nil {
		t.log.Warn().Err(err).Msg("личное сообщение без адресата")
		return false
	}
	for _, part := range telegram.Split(text) {
		if _, err := t.send(chatID, part, "", nil); err != nil {
			t.log.Warn().Err(err).Str("user", string(user)).Msg("личное сообщение не доставлено")
			return false
		}
	}
	return true
}

// Resolve заменяет кнопки модерации итогом действия.
func (t *Telegram) Resolve(ref domain.ModerationRef, label string) error {
	chatID, err := telegram.ParseChatID(ref.ChannelID)
	if err != nil {
		return err
	}
	messageID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return fmt.Errorf("некорректный message id %q: %w", ref.MessageID, err)
	}
	start := time.Now()
	_, err = t.bot.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, telegram.ResolvedKeyboard(label)))
	metrics.ObserveNetworkRequest("telegram_bot", "edit_reply_markup", string(ref.ChannelID), start, err)
	return err
}

func (t *Telegram) send(chatID int64, text, mode string, markup any) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = mode
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	start := time.Now()
	sent, err := t.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("отправка в %d: %w", chatID, err)
	}
	return sent, nil
}
