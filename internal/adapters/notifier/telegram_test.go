package notifier

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glaze-bot/internal/adapters/telegram"
	"glaze-bot/internal/adapters/telegram/telegramtest"
	"glaze-bot/internal/domain"
)

const (
	group    = -1001
	drops    = -2002
	mods     = -3003
	ann      = 5
	leftUser = 6
)

func newTelegram(t *testing.T) (*Telegram, *telegramtest.Server) {
	t.Helper()
	srv := telegramtest.New(t)
	srv.AddMember(ann, telegramtest.Member{Name: "Ann"})
	srv.AddMember(leftUser, telegramtest.Member{Name: "Gone", Status: "left"})
	bot := srv.Bot(t)
	return NewTelegram(bot, telegram.NewMembers(bot, group), zerolog.Nop()), srv
}

func TestTelegramDailyDrop(t *testing.T) {
	n, srv := newTelegram(t)
	ctx := context.Background()

	require.NoError(t, n.DeliverDailyDrop(ctx, "-2002", "5", "you <3 rock"))
	require.NoError(t, n.DeliverDailyDrop(ctx, "-2002", "6", "bye"))

	sent := srv.Sent(drops)
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "GLAZEEEEE DROP")
	assert.Contains(t, sent[0], "you &lt;3 rock")
	assert.Contains(t, sent[1], "no longer here")

	calls := srv.Calls("sendMessage")
	assert.Equal(t, "HTML", calls[0].Params.Get("parse_mode"))
}

func TestTelegramDailyDropBadChannel(t *testing.T) {
	n, _ := newTelegram(t)
	assert.Error(t, n.DeliverDailyDrop(context.Background(), "drops", "5", "x"))
}

func TestTelegramModerationNoticeReturnsRef(t *testing.T) {
	n, srv := newTelegram(t)
	notice := domain.ModerationNotice{
		Kind:       domain.ModerationReport,
		Channel:    "-3003",
		Actor:      "9",
		Submission: domain.Submission{ID: "g1", RecipientID: "5", Text: "hi"},
	}
	ref, err := n.DeliverModerationNotice(context.Background(), notice)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelID("-3003"), ref.ChannelID)
	assert.NotEmpty(t, ref.MessageID)

	calls := srv.Calls("sendMessage")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Params.Get("reply_markup"), "scold:g1")
	assert.Len(t, srv.Sent(mods), 1)

	require.NoError(t, n.Resolve(ref, "✅ Deleted and scolded"))
	edits := srv.Calls("editMessageReplyMarkup")
	require.Len(t, edits, 1)
	assert.Equal(t, ref.MessageID, edits[0].Params.Get("message_id"))
}

func TestTelegramDirectMessage(t *testing.T) {
	n, srv := newTelegram(t)
	ctx := context.Background()

	long := strings.Repeat("line of glaze mail\n", 400)
	assert.True(t, n.DeliverDirectMessage(ctx, "5", long))
	assert.Len(t, srv.Sent(ann), 2)

	srv.Block(7)
	assert.False(t, n.DeliverDirectMessage(ctx, "7", "hello"))
	assert.False(t, n.DeliverDirectMessage(ctx, "nobody", "hello"))
}

func TestTelegramMonthlyAndShare(t *testing.T) {
	n, srv := newTelegram(t)
	ctx := context.Background()

	require.NoError(t, n.DeliverMonthlyAnnouncement(ctx, "-2002", "5", 3, "2026-03"))
	require.NoError(t, n.DeliverShare(ctx, "-2002", "so kind", "made my day"))

	sent := srv.Sent(drops)
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "March 2026")
	assert.Contains(t, sent[1], "made my day")
}
