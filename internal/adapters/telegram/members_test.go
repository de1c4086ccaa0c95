package telegram_test

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glaze-bot/internal/adapters/telegram"
	"glaze-bot/internal/adapters/telegram/telegramtest"
	"glaze-bot/internal/domain"
)

const group = -1001

func TestMembersActor(t *testing.T) {
	srv := telegramtest.New(t)
	srv.AddMember(10, telegramtest.Member{Name: "Owner", Status: "creator"})
	srv.AddMember(11, telegramtest.Member{Name: "Mod", Status: "member", CustomTitle: "glaze mod"})
	members := telegram.NewMembers(srv.Bot(t), group)

	owner := members.Actor(&tgbotapi.User{ID: 10})
	assert.True(t, owner.Administrator)

	mod := members.Actor(&tgbotapi.User{ID: 11})
	assert.False(t, mod.Administrator)
	assert.Equal(t, []domain.RoleID{"11", "glaze mod"}, mod.RoleIDs)

	cfg := domain.DefaultConfig()
	cfg.AdminRoleIDs = []domain.RoleID{"glaze mod"}
	assert.True(t, cfg.IsAdmin(mod))

	stranger := members.Actor(&tgbotapi.User{ID: 99})
	assert.Equal(t, domain.MemberID("99"), stranger.ID)
	assert.False(t, cfg.IsAdmin(stranger))
}

func TestMembersName(t *testing.T) {
	srv := telegramtest.New(t)
	srv.AddMember(5, telegramtest.Member{Name: "Ann"})
	srv.AddMember(6, telegramtest.Member{Name: "Gone", Status: "left"})
	members := telegram.NewMembers(srv.Bot(t), group)

	assert.Equal(t, "Ann", members.Name("5"))
	assert.Empty(t, members.Name("6"))
	assert.Empty(t, members.Name("not-a-number"))

	names := members.Names("5", "5", "7")
	require.Len(t, names, 2)
	assert.Len(t, srv.Calls("getChatMember"), 4)
}

func TestParseCallback(t *testing.T) {
	action, arg := telegram.ParseCallback(telegram.CallbackData(telegram.ActionApprove, "g-1"))
	assert.Equal(t, telegram.ActionApprove, action)
	assert.Equal(t, "g-1", arg)

	action, arg = telegram.ParseCallback(telegram.ActionMail)
	assert.Equal(t, telegram.ActionMail, action)
	assert.Empty(t, arg)
}

func TestPagerKeyboardBounds(t *testing.T) {
	first := telegram.PagerKeyboard(0, 3, "a")
	require.Len(t, first.InlineKeyboard, 3)
	require.Len(t, first.InlineKeyboard[0], 1)
	assert.Equal(t, "page:1", *first.InlineKeyboard[0][0].CallbackData)

	single := telegram.PagerKeyboard(0, 1, "a")
	assert.Len(t, single.InlineKeyboard, 2)
}
