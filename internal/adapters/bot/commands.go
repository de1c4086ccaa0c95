package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"glaze-bot/internal/adapters/telegram"
	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
)

const selfGlazeRoast = "🚫🚫 %s only ugly people glaze themselves, try being nice to someone else!"

var errNoRecipient = errors.New("recipient is not specified")

// ParseGlazeTarget выделяет получателя и текст из аргументов /glaze.
// Получатель берётся из ответа на сообщение, из упоминания без username или из числового id в начале.
func ParseGlazeTarget(msg *tgbotapi.Message) (domain.MemberID, string, error) {
	args := strings.TrimSpace(msg.CommandArguments())
	if reply := msg.ReplyToMessage; reply != nil && reply.From != nil && !reply.From.IsBot {
		return telegram.MemberID(reply.From.ID), args, nil
	}
	for _, e := range msg.Entities {
		if e.Type != "text_mention" || e.User == nil {
			continue
		}
		mention := entityText(msg.Text, e)
		text := strings.TrimSpace(strings.Replace(args, mention, "", 1))
		return telegram.MemberID(e.User.ID), text, nil
	}
	first, rest := splitFirst(args)
	if id, err := strconv.ParseInt(first, 10, 64); err == nil && id > 0 {
		return telegram.MemberID(id), rest, nil
	}
	return "", "", errNoRecipient
}

// entityText вырезает текст сущности; смещения Telegram считаются в UTF-16.
func entityText(text string, e tgbotapi.MessageEntity) string {
	units := utf16.Encode([]rune(text))
	if e.Offset < 0 || e.Offset+e.Length > len(units) {
		return ""
	}
	return string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
}

func (h *Handler) handleGlaze(ctx context.Context, msg *tgbotapi.Message) {
	sender := msg.From
	private := msg.Chat.IsPrivate()
	// в группе команда видна всем, поэтому удаляем её и отвечаем в личку
	respondTo := msg.Chat.ID
	if !private {
		h.deleteMessage(msg.Chat.ID, msg.MessageID)
		respondTo = sender.ID
	}

	recipient, text, err := ParseGlazeTarget(msg)
	if err != nil {
		h.reply(respondTo, "🍯 Who are you glazing? Reply to their message in the group with /glaze <text>, or DM me /glaze <user id> <text>.", nil)
		return
	}

	sub, err := h.ledger.Submit(ctx, telegram.MemberID(sender.ID), recipient, text, h.now())
	switch {
	case errors.Is(err, domain.ErrSelfTarget):
		mention := telegram.Mention(telegram.MemberID(sender.ID), telegram.DisplayName(sender))
		h.replyHTML(msg.Chat.ID, fmt.Sprintf(selfGlazeRoast, mention), nil)
		return
	case err != nil:
		h.reply(respondTo, h.errorMessage(err), nil)
		return
	}

	if sub.ApprovalStatus == domain.ApprovalPending {
		if err := h.moderation.RequestApproval(ctx, sub); err != nil {
			h.log.Error().Err(err).Str("id", sub.ID).Msg("не удалось отправить сообщение на модерацию")
		}
		h.reply(respondTo, "🕒 Your glaze has been submitted and is waiting for a mod to approve it 🍯", nil)
		return
	}
	h.reply(respondTo, "✅ Your glaze has been submitted! 🍯", nil)
}

func (h *Handler) handleMyGlaze(ctx context.Context, chatID int64, user *tgbotapi.User) {
	subs, err := h.ledger.ListForRecipient(ctx, telegram.MemberID(user.ID))
	if err != nil {
		h.reply(chatID, h.errorMessage(err), nil)
		return
	}
	if len(subs) == 0 {
		h.reply(chatID, "😔 You don’t have any glazes yet… but your time will come 🍯", nil)
		return
	}
	keyboard := telegram.PagerKeyboard(0, len(subs), subs[0].ID)
	body := telegram.MyGlaze(0, len(subs), subs[0], h.loc)
	// список личный, в группе отправляем его в личку
	if user.ID != chatID {
		if h.send(user.ID, body, tgbotapi.ModeHTML, &keyboard) {
			h.reply(chatID, "🍯 Sent your glazes to your DMs!", nil)
			return
		}
		h.reply(chatID, "⚠️ I couldn’t DM you, please start a chat with me first.", nil)
		return
	}
	h.replyHTML(chatID, body, &keyboard)
}

func (h *Handler) showPage(ctx context.Context, msg *tgbotapi.Message, userID int64, index int) {
	if msg == nil || msg.Chat == nil {
		return
	}
	subs, err := h.ledger.ListForRecipient(ctx, telegram.MemberID(userID))
	if err != nil {
		h.reply(msg.Chat.ID, h.errorMessage(err), nil)
		return
	}
	if index < 0 || index >= len(subs) {
		h.edit(msg.Chat.ID, msg.MessageID, "😔 That glaze is no longer available.", nil)
		return
	}
	keyboard := telegram.PagerKeyboard(index, len(subs), subs[index].ID)
	h.edit(msg.Chat.ID, msg.MessageID, telegram.MyGlaze(index, len(subs), subs[index], h.loc), &keyboard)
}

func (h *Handler) handleMail(ctx context.Context, chatID int64, user *tgbotapi.User) {
	delivered, err := h.inbox.SendMail(ctx, telegram.MemberID(user.ID))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.reply(chatID, "😔 You don’t have any glazes yet…", nil)
	case err != nil:
		h.reply(chatID, h.errorMessage(err), nil)
	case !delivered:
		h.reply(chatID, "⚠️ I couldn’t DM you, please start a chat with me to receive Glaze Mail.", nil)
	case chatID != user.ID:
		h.reply(chatID, "💌 Glaze Mail complete, check your DMs!", nil)
	}
}

func (h *Handler) sendThanks(ctx context.Context, chatID, userID int64, id, note string) {
	if id == "" {
		h.reply(chatID, "💐 Use the Say Thanks button under /myglaze.", nil)
		return
	}
	delivered, err := h.inbox.Thanks(ctx, id, telegram.MemberID(userID), note)
	switch {
	case errors.Is(err, domain.ErrPermission):
		h.reply(chatID, telegram.NotYourMenu, nil)
	case errors.Is(err, domain.ErrTextTooLong):
		h.reply(chatID, "🍯 Keep your thank-you under 500 characters please.", nil)
	case err != nil:
		h.reply(chatID, h.errorMessage(err), nil)
	case !delivered:
		h.reply(chatID, "⚠️ I couldn’t deliver your thanks right now, the glazer may have blocked DMs.", nil)
	default:
		h.reply(chatID, "💐 Thanks sent!", nil)
	}
}

func (h *Handler) share(ctx context.Context, chatID, userID int64, id, note string) {
	if id == "" {
		h.reply(chatID, "📣 Use the Share button under /myglaze.", nil)
		return
	}
	err := h.inbox.Share(ctx, id, telegram.MemberID(userID), note)
	switch {
	case errors.Is(err, domain.ErrPermission):
		h.reply(chatID, telegram.NotYourMenu, nil)
	case errors.Is(err, domain.ErrNotFound):
		h.reply(chatID, "⚠️ This glaze can’t be shared.", nil)
	case errors.Is(err, domain.ErrTextTooLong):
		h.reply(chatID, "🍯 Keep the note under 200 characters please.", nil)
	case err != nil:
		h.reply(chatID, h.errorMessage(err), nil)
	default:
		h.reply(chatID, "📣 Glaze shared in the group 🍯", nil)
	}
}

func (h *Handler) report(ctx context.Context, chatID, userID int64, id string) {
	if id == "" {
		h.reply(chatID, "⚠️ Use the Report button under /myglaze.", nil)
		return
	}
	if _, err := h.moderation.Report(ctx, id, telegram.MemberID(userID)); err != nil {
		h.reply(chatID, h.errorMessage(err), nil)
		return
	}
	h.reply(chatID, "⚠️ Report sent to the mods. Thank you.", nil)
}

func (h *Handler) handleLeaderboard(ctx context.Context, chatID int64) {
	board, err := h.board.Get(ctx)
	if err != nil {
		h.reply(chatID, h.errorMessage(err), nil)
		return
	}
	ids := make([]domain.MemberID, 0, len(board.Wins)+len(board.Senders))
	for _, e := range board.Wins {
		ids = append(ids, e.MemberID)
	}
	for _, e := range board.Senders {
		ids = append(ids, e.MemberID)
	}
	h.replyHTML(chatID, telegram.Leaderboard(board, h.members.Names(ids...)), nil)
}

func (h *Handler) edit(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.ReplyMarkup = keyboard
	start := time.Now()
	_, err := h.bot.Request(cfg)
	metrics.ObserveNetworkRequest("telegram_bot", "edit_message", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Warn().Err(err).Int64("chat", chatID).Msg("не удалось обновить сообщение")
	}
}

func (h *Handler) deleteMessage(chatID int64, messageID int) {
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	metrics.ObserveNetworkRequest("telegram_bot", "delete_message", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Warn().Err(err).Int64("chat", chatID).Msg("не удалось удалить команду")
	}
}
