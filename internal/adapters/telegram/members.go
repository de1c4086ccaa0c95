package telegram

import (
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
)

// Members читает состав группы через getChatMember.
type Members struct {
	bot   *tgbotapi.BotAPI
	group int64
}

// NewMembers создаёт справочник участников группы group.
func NewMembers(bot *tgbotapi.BotAPI, group int64) *Members {
	return &Members{bot: bot, group: group}
}

// Group возвращает chat_id группы.
func (m *Members) Group() int64 {
	return m.group
}

// Lookup возвращает участника, если он всё ещё состоит в группе.
func (m *Members) Lookup(userID int64) (tgbotapi.ChatMember, bool) {
	start := time.Now()
	member, err := m.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: m.group, UserID: userID},
	})
	metrics.ObserveNetworkRequest("telegram_bot", "get_chat_member", strconv.FormatInt(m.group, 10), start, err)
	if err != nil || member.HasLeft() || member.WasKicked() {
		return tgbotapi.ChatMember{}, false
	}
	return member, true
}

// Name возвращает отображаемое имя или пустую строку, если участника нет в группе.
func (m *Members) Name(id domain.MemberID) string {
	userID, err := ParseUserID(id)
	if err != nil {
		return ""
	}
	member, ok := m.Lookup(userID)
	if !ok || member.User == nil {
		return ""
	}
	return DisplayName(member.User)
}

// Names собирает имена для набора участников.
func (m *Members) Names(ids ...domain.MemberID) map[domain.MemberID]string {
	out := make(map[domain.MemberID]string, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		out[id] = m.Name(id)
	}
	return out
}

// Actor описывает права участника: администраторы чата получают права сразу,
// остальные сверяются с ролями из настроек по user id и подписи администратора.
func (m *Members) Actor(user *tgbotapi.User) domain.Actor {
	if user == nil {
		return domain.Actor{}
	}
	actor := domain.Actor{
		ID:      MemberID(user.ID),
		RoleIDs: []domain.RoleID{domain.RoleID(strconv.FormatInt(user.ID, 10))},
	}
	member, ok := m.Lookup(user.ID)
	if !ok {
		return actor
	}
	actor.Administrator = member.IsAdministrator() || member.IsCreator()
	if title := strings.TrimSpace(member.CustomTitle); title != "" {
		actor.RoleIDs = append(actor.RoleIDs, domain.RoleID(title))
	}
	return actor
}

// MemberID переводит user_id в идентификатор участника.
func MemberID(userID int64) domain.MemberID {
	return domain.MemberID(strconv.FormatInt(userID, 10))
}

// DisplayName собирает имя пользователя для упоминания.
func DisplayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.UserName != "" {
		name = "@" + u.UserName
	}
	return name
}
