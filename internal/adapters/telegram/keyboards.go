package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Действия inline-кнопок.
const (
	ActionApprove = "approve"
	ActionDecline = "decline"
	ActionScold   = "scold"
	ActionPage    = "page"
	ActionThanks  = "thanks"
	ActionReport  = "report"
	ActionShare   = "share"
	ActionMail    = "mail"
	ActionConfirm = "share_ok"
	ActionCancel  = "share_no"
	ActionNoop    = "noop"
)

// CallbackData собирает данные кнопки в формате action:arg.
func CallbackData(action, arg string) string {
	if arg == "" {
		return action
	}
	return action + ":" + arg
}

// ParseCallback разбирает данные кнопки.
func ParseCallback(data string) (action, arg string) {
	action, arg, _ = strings.Cut(data, ":")
	return action, arg
}

// ApprovalKeyboard строит кнопки модератора для нового сообщения.
func ApprovalKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", CallbackData(ActionApprove, id)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Decline", CallbackData(ActionDecline, id)),
		),
	)
}

// ReportKeyboard строит кнопку удаления сообщения по жалобе.
func ReportKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💥 Delete Glaze and Scold Glazer", CallbackData(ActionScold, id)),
		),
	)
}

// ResolvedKeyboard заменяет кнопки модерации итогом.
func ResolvedKeyboard(label string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, ActionNoop)),
	)
}

// PagerKeyboard строит навигацию по сообщениям получателя и действия над текущим.
func PagerKeyboard(index, total int, id string) tgbotapi.InlineKeyboardMarkup {
	var nav []tgbotapi.InlineKeyboardButton
	if index > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Prev", CallbackData(ActionPage, strconv.Itoa(index-1))))
	}
	if index < total-1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", CallbackData(ActionPage, strconv.Itoa(index+1))))
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💐 Say Thanks", CallbackData(ActionThanks, id)),
			tgbotapi.NewInlineKeyboardButtonData("📣 Share", CallbackData(ActionShare, id)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⚠️ Report", CallbackData(ActionReport, id)),
			tgbotapi.NewInlineKeyboardButtonData("💌 DM Me", ActionMail),
		),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// ShareConfirmKeyboard подтверждает публикацию своего сообщения.
func ShareConfirmKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", ActionCancel),
			tgbotapi.NewInlineKeyboardButtonData("📣 Share", CallbackData(ActionConfirm, id)),
		),
	)
}
