// Package telegram содержит оформление сообщений для Telegram.
package telegram

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/usecase/leaderboard"
)

// MessageLimit задаёт максимальную длину одного сообщения Telegram в символах.
const MessageLimit = 4096

const (
	footer    = "Use /glaze to submit an anonymous glaze, and remember to keep it SFW! ⚠️"
	dailyPing = "🍯 A glaze has landed…"
	noneYet   = "No monthly winners yet 🍯"
	noSenders = "No glazes sent yet 🍯"
)

// NotYourMenu отвечает на нажатие чужой кнопки.
const NotYourMenu = "🍯 Hands off, this glaze menu isn’t yours!"

// Split режет текст на части не длиннее MessageLimit, по возможности по границам строк.
func Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var (
		parts   []string
		current []rune
	)
	flush := func() {
		if chunk := strings.Trim(string(current), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		current = current[:0]
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		runes := []rune(line)
		if len(current)+len(runes) > MessageLimit {
			flush()
		}
		for len(runes) > MessageLimit {
			parts = append(parts, string(runes[:MessageLimit]))
			runes = runes[MessageLimit:]
		}
		current = append(current, runes...)
	}
	flush()
	return parts
}

// Escape экранирует текст для ParseMode HTML.
func Escape(s string) string {
	return html.EscapeString(s)
}

// Mention ссылается на пользователя без username.
func Mention(id domain.MemberID, name string) string {
	if name == "" {
		name = "this member"
	}
	return fmt.Sprintf(`<a href="tg://user?id=%s">%s</a>`, Escape(string(id)), Escape(name))
}

// ParseChatID переводит идентификатор канала в chat_id.
func ParseChatID(id domain.ChannelID) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(string(id)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректный chat id %q: %w", id, err)
	}
	return v, nil
}

// ParseUserID переводит идентификатор участника в user_id.
func ParseUserID(id domain.MemberID) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(string(id)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректный user id %q: %w", id, err)
	}
	return v, nil
}

// DailyDrop оформляет ежедневную публикацию. Пустое имя означает, что получатель покинул группу.
func DailyDrop(recipient domain.MemberID, name, text string) string {
	if name == "" {
		return "🍯 A glaze landed, but the member is no longer here."
	}
	return dailyPing + "\n" + Mention(recipient, name) + "\n\n" +
		"🍯 <b>GLAZEEEEE DROP</b>\n" +
		"Today’s glaze is for <b>" + Escape(name) + "</b>\n\n" +
		"<i>“" + Escape(text) + "”</i>\n\n<i>" + footer + "</i>"
}

// MonthlyAnnouncement оформляет объявление победителя месяца.
func MonthlyAnnouncement(winner domain.MemberID, name string, count int, monthKey string) string {
	pretty := monthKey
	if t, err := time.Parse("2006-01", monthKey); err == nil {
		pretty = t.Format("January 2006")
	}
	return "🍯 <b>MOST GLAZED</b>\n" +
		"The group’s most glazed member for <b>" + Escape(pretty) + "</b> is " + Mention(winner, name) +
		fmt.Sprintf(" with a total of <b>%d glazes</b>, yayyyy 🎉🎉\n\n", count) + "<i>" + footer + "</i>"
}

// Shared оформляет сообщение, которым поделился получатель.
func Shared(text, note string) string {
	out := "🍯 <b>SHARED GLAZE</b>\n\n<i>“" + Escape(text) + "”</i>"
	if note = strings.TrimSpace(note); note != "" {
		out += "\n\n💬 “" + Escape(note) + "”"
	}
	return out + "\n\nShared via /myglaze 🍯"
}

// ModerationNotice оформляет жалобу или запрос на одобрение.
func ModerationNotice(notice domain.ModerationNotice) string {
	sub := notice.Submission
	switch notice.Kind {
	case domain.ModerationReport:
		return "⚠️ <b>GLAZE REPORTED</b>\n\n" +
			"Reported by: " + Mention(notice.Actor, "reporter") + "\n" +
			"Glaze was for: " + Mention(sub.RecipientID, "recipient") + "\n" +
			"Glaze ID: <code>" + Escape(sub.ID) + "</code>\n\n" +
			"Content:\n“" + Escape(sub.Text) + "”"
	default:
		return "🆕 <b>GLAZE AWAITING APPROVAL</b>\n\n" +
			"For: " + Mention(sub.RecipientID, "recipient") + "\n" +
			"Glaze ID: <code>" + Escape(sub.ID) + "</code>\n\n" +
			"“" + Escape(sub.Text) + "”"
	}
}

// MyGlaze оформляет одно сообщение из списка получателя.
func MyGlaze(index, total int, sub domain.Submission, loc *time.Location) string {
	return fmt.Sprintf("🍯 <b>Your Glaze (%d / %d)</b>\n\n<i>“%s”</i>\n\n📅 Received: %s",
		index+1, total, Escape(sub.Text), sub.CreatedAt.In(loc).Format("02 Jan 2006"))
}

// Leaderboard оформляет таблицу победителей месяца и самых активных отправителей.
// names сопоставляет участников с отображаемыми именами.
func Leaderboard(board leaderboard.Board, names map[domain.MemberID]string) string {
	var b strings.Builder
	b.WriteString("🍯 <b>Glaze Leaderboard</b>\n\n🏆 <b>Most Glazed (Monthly Wins)</b>\n")
	if len(board.Wins) == 0 {
		b.WriteString(noneYet + "\n")
	}
	for i, e := range board.Wins {
		fmt.Fprintf(&b, "<b>%d.</b> %s: <b>%d</b> win(s)\n", i+1, Mention(e.MemberID, names[e.MemberID]), e.Count)
	}
	b.WriteString("\n🍯 <b>Top Glazers (Most Sent)</b>\n")
	if len(board.Senders) == 0 {
		b.WriteString(noSenders + "\n")
	}
	for i, e := range board.Senders {
		fmt.Fprintf(&b, "<b>%d.</b> %s: <b>%d</b> glazes sent\n", i+1, Mention(e.MemberID, names[e.MemberID]), e.Count)
	}
	b.WriteString("\n<i>" + footer + "</i>")
	return b.String()
}
