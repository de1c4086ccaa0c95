package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"glaze-bot/internal/adapters/telegram"
	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
	"glaze-bot/internal/usecase/drop"
	"glaze-bot/internal/usecase/leaderboard"
	"glaze-bot/internal/usecase/ledger"
	"glaze-bot/internal/usecase/moderation"
	"glaze-bot/internal/usecase/settings"
)

// pendingTTL ограничивает ожидание текста после нажатия кнопки.
const pendingTTL = 10 * time.Minute

// Resolver заменяет кнопки модерации итогом действия.
type Resolver interface {
	Resolve(ref domain.ModerationRef, label string) error
}

// Deps собирает зависимости обработчика.
type Deps struct {
	Bot        *tgbotapi.BotAPI
	Members    *telegram.Members
	Ledger     *ledger.Service
	Inbox      *ledger.Inbox
	Moderation *moderation.Service
	Drops      *drop.Scheduler
	Settings   *settings.Service
	Board      *leaderboard.Service
	Resolver   Resolver
	Location   *time.Location
	Log        zerolog.Logger
}

type inputKind int

const (
	inputThanks inputKind = iota + 1
	inputShareNote
	inputShareConfirm
)

// pendingInput описывает ожидаемый от пользователя текст после нажатия кнопки.
type pendingInput struct {
	kind inputKind
	id   string
	note string
	at   time.Time
}

// Handler обслуживает апдейты бота.
type Handler struct {
	bot        *tgbotapi.BotAPI
	log        zerolog.Logger
	members    *telegram.Members
	ledger     *ledger.Service
	inbox      *ledger.Inbox
	moderation *moderation.Service
	drops      *drop.Scheduler
	settings   *settings.Service
	board      *leaderboard.Service
	resolver   Resolver
	loc        *time.Location
	now        func() time.Time

	mu      sync.Mutex
	pending map[int64]pendingInput
}

// NewHandler создаёт обработчик.
func NewHandler(d Deps) *Handler {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		bot:        d.Bot,
		log:        d.Log.With().Str("component", "bot").Logger(),
		members:    d.Members,
		ledger:     d.Ledger,
		inbox:      d.Inbox,
		moderation: d.Moderation,
		drops:      d.Drops,
		settings:   d.Settings,
		board:      d.Board,
		resolver:   d.Resolver,
		loc:        loc,
		now:        time.Now,
		pending:    make(map[int64]pendingInput),
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	private := msg.Chat != nil && msg.Chat.IsPrivate()
	if !msg.IsCommand() {
		if private && !h.tryHandleInput(ctx, msg.Chat.ID, msg.From.ID, strings.TrimSpace(msg.Text)) {
			h.reply(msg.Chat.ID, "Unknown command. Use /help", nil)
		}
		return
	}
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		h.reply(msg.Chat.ID, helpMessage, nil)
	case "glaze":
		h.handleGlaze(ctx, msg)
	case "myglaze":
		h.handleMyGlaze(ctx, msg.Chat.ID, msg.From)
	case "mail":
		h.handleMail(ctx, msg.Chat.ID, msg.From)
	case "thanks":
		id, note := splitFirst(args)
		h.sendThanks(ctx, msg.Chat.ID, msg.From.ID, id, note)
	case "share":
		id, note := splitFirst(args)
		h.share(ctx, msg.Chat.ID, msg.From.ID, id, note)
	case "report":
		id, _ := splitFirst(args)
		h.report(ctx, msg.Chat.ID, msg.From.ID, id)
	case "skip":
		if !h.tryHandleInput(ctx, msg.Chat.ID, msg.From.ID, "") {
			h.reply(msg.Chat.ID, "🍯 Nothing to skip.", nil)
		}
	case "cancel":
		h.clearInput(msg.From.ID)
		h.reply(msg.Chat.ID, "❌ Cancelled.", nil)
	case "leaderboard", "glazeleaderboard":
		h.handleLeaderboard(ctx, msg.Chat.ID)
	case "controlpanel":
		h.handleControlPanel(ctx, msg, args)
	case "testdrop":
		h.handleTestDrop(ctx, msg, args)
	case "randomdrop":
		h.handleRandomDrop(ctx, msg)
	default:
		if private {
			h.reply(msg.Chat.ID, "Unknown command. Use /help", nil)
		}
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	action, arg := telegram.ParseCallback(cb.Data)
	var chatID int64
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
	}
	switch action {
	case telegram.ActionApprove, telegram.ActionDecline, telegram.ActionScold:
		h.answer(cb, h.moderate(ctx, cb, action, arg))
	case telegram.ActionPage:
		index, err := strconv.Atoi(arg)
		if err != nil {
			h.answer(cb, "")
			return
		}
		h.answer(cb, "")
		h.showPage(ctx, cb.Message, cb.From.ID, index)
	case telegram.ActionThanks:
		h.setInput(cb.From.ID, pendingInput{kind: inputThanks, id: arg})
		h.answer(cb, "")
		h.reply(chatID, "💐 Write a thank-you message (optional, up to 500 characters).\nSend /skip to thank without a message or /cancel to stop.", nil)
	case telegram.ActionShare:
		h.setInput(cb.From.ID, pendingInput{kind: inputShareNote, id: arg})
		h.answer(cb, "")
		h.reply(chatID, "📣 Add a message to go with your glaze (optional, up to 200 characters).\nSend /skip for none or /cancel to stop.", nil)
	case telegram.ActionConfirm:
		in, ok := h.takeInput(cb.From.ID)
		if !ok || in.kind != inputShareConfirm || in.id != arg {
			h.answer(cb, "⌛ This share request expired.")
			return
		}
		h.answer(cb, "")
		h.share(ctx, chatID, cb.From.ID, in.id, in.note)
	case telegram.ActionCancel:
		h.clearInput(cb.From.ID)
		h.answer(cb, "❌ Share cancelled.")
	case telegram.ActionReport:
		h.answer(cb, "")
		h.report(ctx, chatID, cb.From.ID, arg)
	case telegram.ActionMail:
		h.answer(cb, "")
		h.handleMail(ctx, chatID, cb.From)
	default:
		h.answer(cb, "")
	}
}

// tryHandleInput принимает текст, которого бот ждёт после нажатия кнопки.
func (h *Handler) tryHandleInput(ctx context.Context, chatID, userID int64, text string) bool {
	in, ok := h.takeInput(userID)
	if !ok {
		return false
	}
	switch in.kind {
	case inputThanks:
		h.sendThanks(ctx, chatID, userID, in.id, text)
	case inputShareNote:
		if len([]rune(text)) > ledger.MaxShareNote {
			h.setInput(userID, in)
			h.reply(chatID, fmt.Sprintf("🍯 Keep the note under %d characters please.", ledger.MaxShareNote), nil)
			return true
		}
		h.setInput(userID, pendingInput{kind: inputShareConfirm, id: in.id, note: text})
		keyboard := telegram.ShareConfirmKeyboard(in.id)
		h.reply(chatID, "📣 Share this glaze in the group?\nOnce shared, it can’t be undone.", &keyboard)
	case inputShareConfirm:
		// ждём нажатия кнопки, текст игнорируем
		h.setInput(userID, in)
		return false
	}
	return true
}

func (h *Handler) setInput(userID int64, in pendingInput) {
	in.at = h.now()
	h.mu.Lock()
	h.pending[userID] = in
	h.mu.Unlock()
}

func (h *Handler) takeInput(userID int64) (pendingInput, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	in, ok := h.pending[userID]
	if !ok {
		return pendingInput{}, false
	}
	delete(h.pending, userID)
	if h.now().Sub(in.at) > pendingTTL {
		return pendingInput{}, false
	}
	return in, true
}

func (h *Handler) clearInput(userID int64) {
	h.mu.Lock()
	delete(h.pending, userID)
	h.mu.Unlock()
}

// RestorePendingControls заново выставляет кнопки одобрения на сообщениях модерации,
// оставшихся без решения после перезапуска. Возвращает число восстановленных сообщений.
func (h *Handler) RestorePendingControls(ctx context.Context) (int, error) {
	subs, err := h.moderation.PendingWithRefs(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, sub := range subs {
		chatID, err := telegram.ParseChatID(sub.ModerationRef.ChannelID)
		if err != nil {
			continue
		}
		messageID, err := strconv.Atoi(sub.ModerationRef.MessageID)
		if err != nil {
			continue
		}
		start := time.Now()
		_, err = h.bot.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, telegram.ApprovalKeyboard(sub.ID)))
		metrics.ObserveNetworkRequest("telegram_bot", "edit_reply_markup", strconv.FormatInt(chatID, 10), start, err)
		if err != nil && !strings.Contains(err.Error(), "message is not modified") {
			h.log.Warn().Err(err).Str("id", sub.ID).Msg("не удалось восстановить кнопки модерации")
			continue
		}
		restored++
	}
	return restored, nil
}

// errorMessage переводит ошибку ядра в ответ пользователю.
func (h *Handler) errorMessage(err error) string {
	var cooldown *domain.CooldownError
	switch {
	case errors.As(err, &cooldown):
		return fmt.Sprintf("⏳ You can only glaze once per cooldown. Try again in %s.", formatWait(cooldown.Remaining))
	case errors.Is(err, domain.ErrTextTooShort):
		return fmt.Sprintf("🍯 Make it a bit longer, at least %d characters.", ledger.MinTextLength)
	case errors.Is(err, domain.ErrTextTooLong):
		return fmt.Sprintf("🍯 Keep it under %d characters please.", ledger.MaxTextLength)
	case errors.Is(err, domain.ErrValidation):
		return "⚠️ " + err.Error()
	case errors.Is(err, domain.ErrDisabled):
		return "🍯 Glazing is paused right now."
	case errors.Is(err, domain.ErrPermission):
		return "🚫 You don’t have permission to do that."
	case errors.Is(err, domain.ErrNotFound):
		return "😔 That glaze is no longer available."
	case errors.Is(err, domain.ErrAlreadyProcessed):
		return "🍯 That glaze was already handled."
	case errors.Is(err, domain.ErrNothingChanged):
		return "🍯 Nothing changed, provide at least one option to update."
	case errors.Is(err, domain.ErrNoDropChannel):
		return "⚠️ Drop channel isn’t set. Ask an admin to run /controlpanel."
	case errors.Is(err, domain.ErrNoReportChannel):
		return "⚠️ Report channel isn’t set. Ask an admin to run /controlpanel."
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrStoreUnavailable):
		h.log.Warn().Err(err).Msg("хранилище недоступно")
		return "⚠️ Glaze storage is busy right now, please try again in a moment."
	default:
		h.log.Error().Err(err).Msg("необработанная ошибка")
		return "⚠️ Something went wrong, please try again later."
	}
}

// formatWait округляет оставшееся время ожидания до минут.
func formatWait(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "less than a minute"
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	switch {
	case hours == 0:
		return fmt.Sprintf("%dm", minutes)
	case minutes == 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
}

func splitFirst(args string) (string, string) {
	first, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	return first, strings.TrimSpace(rest)
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	h.send(chatID, text, "", keyboard)
}

func (h *Handler) replyHTML(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	h.send(chatID, text, tgbotapi.ModeHTML, keyboard)
}

func (h *Handler) send(chatID int64, text, mode string, keyboard *tgbotapi.InlineKeyboardMarkup) bool {
	parts := telegram.Split(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = mode
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось отправить сообщение")
			return false
		}
	}
	return true
}

func (h *Handler) answer(cb *tgbotapi.CallbackQuery, text string) {
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, text))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", "callback", start, err)
	if err != nil {
		h.log.Warn().Err(err).Msg("не удалось ответить на callback")
	}
}

const helpMessage = `🍯 Glaze, anonymous compliments for the group

• /glaze: reply to someone’s message in the group with /glaze <text>, or DM me /glaze <user id> <text>. One glaze per cooldown, 10–500 characters, keep it SFW!
• /myglaze: browse the glazes you received, say thanks, share or report them.
• /mail: get all your glazes in one DM.
• /leaderboard: monthly winners and top glazers.

Every day a glaze drops in the group, and on the last day of the month the most glazed member is crowned 🎉

Admins: /controlpanel, /testdrop daily|monthly, /randomdrop`
