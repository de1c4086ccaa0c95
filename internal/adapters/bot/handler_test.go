package bot

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glaze-bot/internal/adapters/docstore"
	"glaze-bot/internal/adapters/notifier"
	"glaze-bot/internal/adapters/telegram"
	"glaze-bot/internal/adapters/telegram/telegramtest"
	"glaze-bot/internal/domain"
	"glaze-bot/internal/store"
	"glaze-bot/internal/usecase/drop"
	"glaze-bot/internal/usecase/leaderboard"
	"glaze-bot/internal/usecase/ledger"
	"glaze-bot/internal/usecase/moderation"
	"glaze-bot/internal/usecase/settings"
)

func TestParseLocalTime(t *testing.T) {
	tm, err := ParseLocalTime(" 09:15 ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tm.Format("15:04") != "09:15" {
		t.Fatalf("expected 09:15, got %s", tm.Format("15:04"))
	}
}

func TestParseLocalTimeInvalid(t *testing.T) {
	if _, err := ParseLocalTime("9-15"); err == nil {
		t.Fatal("expected error for invalid time format")
	}
}

func TestParseControlPanel(t *testing.T) {
	cases := []struct {
		name    string
		args    string
		wantErr bool
		check   func(t *testing.T, p settings.Patch)
	}{
		{
			name: "channels here",
			args: "drop=here report=-100200",
			check: func(t *testing.T, p settings.Patch) {
				if *p.DropChannelID != "-42" || *p.ReportChannelID != "-100200" {
					t.Fatalf("unexpected channels %v %v", *p.DropChannelID, *p.ReportChannelID)
				}
			},
		},
		{
			name: "times and limit",
			args: "daily=09:30 monthly=20:05 limit=unbounded cooldown=12h",
			check: func(t *testing.T, p settings.Patch) {
				if *p.DailyDropHour != 9 || *p.DailyDropMinute != 30 || *p.MonthlyDropHour != 20 || *p.MonthlyDropMinute != 5 {
					t.Fatal("unexpected times")
				}
				if !p.DailyDropLimit.IsUnbounded() || *p.CooldownHours != 12 {
					t.Fatal("unexpected limit or cooldown")
				}
			},
		},
		{
			name: "switches and admin title",
			args: "submissions=off approvals=on admin=glaze_mod",
			check: func(t *testing.T, p settings.Patch) {
				if *p.SubmissionsEnabled || !*p.ApprovalsEnabled || *p.AdminRole != "glaze mod" {
					t.Fatal("unexpected switches")
				}
			},
		},
		{name: "unknown key", args: "colour=gold", wantErr: true},
		{name: "bad time", args: "daily=25:00", wantErr: true},
		{name: "bad channel", args: "drop=general", wantErr: true},
		{name: "zero limit", args: "limit=0", wantErr: true},
		{name: "negative cooldown", args: "cooldown=-1", wantErr: true},
		{name: "missing value", args: "drop", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ParseControlPanel(tc.args, -42)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.check(t, p)
		})
	}
}

func TestFormatWait(t *testing.T) {
	cases := map[time.Duration]string{
		20 * time.Second:                "less than a minute",
		45 * time.Minute:                "45m",
		3 * time.Hour:                   "3h",
		23*time.Hour + 59*time.Minute:   "23h 59m",
		90*time.Minute + 40*time.Second: "1h 31m",
	}
	for in, want := range cases {
		if got := formatWait(in); got != want {
			t.Fatalf("formatWait(%s) = %q, want %q", in, got, want)
		}
	}
}

func commandMessage(chat *tgbotapi.Chat, from *tgbotapi.User, text string) *tgbotapi.Message {
	command, _, _ := strings.Cut(text, " ")
	return &tgbotapi.Message{
		MessageID: 1,
		From:      from,
		Chat:      chat,
		Text:      text,
		Entities: []tgbotapi.MessageEntity{{
			Type:   "bot_command",
			Offset: 0,
			Length: len(utf16.Encode([]rune(command))),
		}},
	}
}

func TestParseGlazeTarget(t *testing.T) {
	chat := &tgbotapi.Chat{ID: 5, Type: "private"}
	from := &tgbotapi.User{ID: 5}

	reply := commandMessage(&tgbotapi.Chat{ID: -1, Type: "supergroup"}, from, "/glaze you are wonderful")
	reply.ReplyToMessage = &tgbotapi.Message{From: &tgbotapi.User{ID: 6}}
	id, text, err := ParseGlazeTarget(reply)
	require.NoError(t, err)
	assert.Equal(t, domain.MemberID("6"), id)
	assert.Equal(t, "you are wonderful", text)

	mention := commandMessage(chat, from, "/glaze Анна ты лучшая подруга")
	mention.Entities = append(mention.Entities, tgbotapi.MessageEntity{
		Type: "text_mention", Offset: 7, Length: 4, User: &tgbotapi.User{ID: 7},
	})
	id, text, err = ParseGlazeTarget(mention)
	require.NoError(t, err)
	assert.Equal(t, domain.MemberID("7"), id)
	assert.Equal(t, "ты лучшая подруга", text)

	numeric := commandMessage(chat, from, "/glaze 8 thanks for always helping")
	id, text, err = ParseGlazeTarget(numeric)
	require.NoError(t, err)
	assert.Equal(t, domain.MemberID("8"), id)
	assert.Equal(t, "thanks for always helping", text)

	_, _, err = ParseGlazeTarget(commandMessage(chat, from, "/glaze hello there friend"))
	assert.ErrorIs(t, err, errNoRecipient)
}

const (
	groupChat    = -1001
	dropChat     = -2002
	approvalChat = -3003
	admin        = 10
	alice        = 5
	bob          = 6
)

type harness struct {
	h     *Handler
	srv   *telegramtest.Server
	store *store.Store
}

func newHarness(t *testing.T, mutate func(cfg *domain.Config)) *harness {
	t.Helper()
	srv := telegramtest.New(t)
	srv.AddMember(admin, telegramtest.Member{Name: "Admin", Status: "creator"})
	srv.AddMember(alice, telegramtest.Member{Name: "Alice"})
	srv.AddMember(bob, telegramtest.Member{Name: "Bob"})
	api := srv.Bot(t)

	logger := zerolog.Nop()
	st := store.New(docstore.NewMemory(), logger)
	_, err := st.Update(context.Background(), "seed", func(doc *domain.Document) error {
		doc.Config.DropChannelID = "-2002"
		doc.Config.ReportChannelID = "-3003"
		doc.Config.ApprovalChannelID = "-3003"
		if mutate != nil {
			mutate(&doc.Config)
		}
		return nil
	})
	require.NoError(t, err)

	members := telegram.NewMembers(api, groupChat)
	tg := notifier.NewTelegram(api, members, logger)
	ledgerSvc := ledger.NewService(st, time.UTC, logger)
	h := NewHandler(Deps{
		Bot:        api,
		Members:    members,
		Ledger:     ledgerSvc,
		Inbox:      ledger.NewInbox(ledgerSvc, tg),
		Moderation: moderation.NewService(st, tg, logger),
		Drops:      drop.NewScheduler(st, tg, time.UTC, logger),
		Settings:   settings.NewService(st, logger),
		Board:      leaderboard.NewService(st),
		Resolver:   tg,
		Location:   time.UTC,
		Log:        logger,
	})
	return &harness{h: h, srv: srv, store: st}
}

func (hs *harness) command(chat *tgbotapi.Chat, userID int64, text string) {
	from := &tgbotapi.User{ID: userID, FirstName: "User"}
	hs.h.HandleUpdate(context.Background(), tgbotapi.Update{Message: commandMessage(chat, from, text)})
}

func (hs *harness) click(chatID, userID int64, messageID int, data string) {
	hs.h.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		From: &tgbotapi.User{ID: userID, FirstName: "User"},
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: messageID,
			Chat:      &tgbotapi.Chat{ID: chatID, Type: "supergroup"},
		},
	}})
}

func (hs *harness) submissions(t *testing.T) []domain.Submission {
	t.Helper()
	hs.store.Invalidate()
	doc, _, err := hs.store.Load(context.Background())
	require.NoError(t, err)
	return doc.Submissions
}

func private(id int64) *tgbotapi.Chat {
	return &tgbotapi.Chat{ID: id, Type: "private"}
}

func TestGlazeFromPrivateChat(t *testing.T) {
	hs := newHarness(t, nil)

	hs.command(private(alice), alice, "/glaze 6 you always make my day better")

	subs := hs.submissions(t)
	require.Len(t, subs, 1)
	assert.Equal(t, domain.MemberID("5"), subs[0].SenderID)
	assert.Equal(t, domain.MemberID("6"), subs[0].RecipientID)
	assert.Equal(t, domain.ApprovalApproved, subs[0].ApprovalStatus)

	replies := hs.srv.Sent(alice)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "submitted")

	hs.command(private(alice), alice, "/glaze 6 one more because you rock")
	replies = hs.srv.Sent(alice)
	require.Len(t, replies, 2)
	assert.Contains(t, replies[1], "Try again in")
	assert.Len(t, hs.submissions(t), 1)
}

func TestGlazeInGroupStaysAnonymous(t *testing.T) {
	hs := newHarness(t, nil)
	group := &tgbotapi.Chat{ID: groupChat, Type: "supergroup"}
	from := &tgbotapi.User{ID: alice, FirstName: "Alice"}
	msg := commandMessage(group, from, "/glaze you are the best teammate")
	msg.ReplyToMessage = &tgbotapi.Message{From: &tgbotapi.User{ID: bob}}

	hs.h.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})

	assert.Len(t, hs.srv.Calls("deleteMessage"), 1)
	assert.Empty(t, hs.srv.Sent(groupChat))
	assert.Len(t, hs.srv.Sent(alice), 1)
	assert.Len(t, hs.submissions(t), 1)
}

func TestSelfGlazeIsRoastedInChat(t *testing.T) {
	hs := newHarness(t, nil)

	hs.command(private(alice), alice, "/glaze 5 I am simply the greatest")

	replies := hs.srv.Sent(alice)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "only ugly people glaze themselves")
	assert.Empty(t, hs.submissions(t))
}

func TestApprovalFlow(t *testing.T) {
	hs := newHarness(t, func(cfg *domain.Config) { cfg.ApprovalsEnabled = true })

	hs.command(private(alice), alice, "/glaze 6 you are such a kind person")
	subs := hs.submissions(t)
	require.Len(t, subs, 1)
	require.Equal(t, domain.ApprovalPending, subs[0].ApprovalStatus)
	require.NotNil(t, subs[0].ModerationRef)

	notices := hs.srv.Sent(approvalChat)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "AWAITING APPROVAL")

	for _, c := range hs.srv.Calls("sendMessage") {
		if c.Params.Get("chat_id") == "-3003" {
			assert.Contains(t, c.Params.Get("reply_markup"), "approve:"+subs[0].ID)
		}
	}
	messageID, err := strconv.Atoi(subs[0].ModerationRef.MessageID)
	require.NoError(t, err)

	// обычный участник не может одобрить
	hs.click(approvalChat, bob, messageID, "approve:"+subs[0].ID)
	assert.Equal(t, domain.ApprovalPending, hs.submissions(t)[0].ApprovalStatus)

	hs.click(approvalChat, admin, messageID, "approve:"+subs[0].ID)
	approved := hs.submissions(t)[0]
	assert.Equal(t, domain.ApprovalApproved, approved.ApprovalStatus)
	assert.Equal(t, domain.MemberID("10"), approved.ReviewedBy)
	require.Len(t, hs.srv.Calls("editMessageReplyMarkup"), 1)

	// повторное нажатие ничего не меняет
	hs.click(approvalChat, admin, messageID, "decline:"+subs[0].ID)
	assert.False(t, hs.submissions(t)[0].Deleted)
}

func TestRestorePendingControls(t *testing.T) {
	hs := newHarness(t, func(cfg *domain.Config) { cfg.ApprovalsEnabled = true })
	hs.command(private(alice), alice, "/glaze 6 you are such a kind person")

	restored, err := hs.h.RestorePendingControls(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	edits := hs.srv.Calls("editMessageReplyMarkup")
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0].Params.Get("reply_markup"), "decline:")
}

func TestMyGlazeThanksAndShare(t *testing.T) {
	hs := newHarness(t, nil)
	hs.command(private(alice), alice, "/glaze 6 your playlists are unmatched")
	id := hs.submissions(t)[0].ID

	hs.command(private(bob), bob, "/myglaze")
	pages := hs.srv.Sent(bob)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0], "Your Glaze (1 / 1)")

	// благодарность доходит до автора без раскрытия получателя
	hs.click(bob, bob, 200, "thanks:"+id)
	hs.h.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 2, From: &tgbotapi.User{ID: bob}, Chat: private(bob), Text: "this made my week",
	}})
	toAlice := hs.srv.Sent(alice)
	require.Len(t, toAlice, 2)
	assert.Contains(t, toAlice[1], "Someone wants to thank you")
	assert.Contains(t, toAlice[1], "this made my week")
	assert.NotContains(t, toAlice[1], "Bob")

	hs.click(bob, bob, 200, "share:"+id)
	hs.command(private(bob), bob, "/skip")
	hs.click(bob, bob, 201, "share_ok:"+id)
	shared := hs.srv.Sent(dropChat)
	require.Len(t, shared, 1)
	assert.Contains(t, shared[0], "SHARED GLAZE")

	// чужое сообщение поделиться нельзя
	hs.command(private(alice), alice, "/share "+id)
	last := hs.srv.Sent(alice)
	assert.Contains(t, last[len(last)-1], "isn’t yours")
}

func TestControlPanelRequiresAdmin(t *testing.T) {
	hs := newHarness(t, nil)
	group := &tgbotapi.Chat{ID: groupChat, Type: "supergroup"}

	hs.command(group, bob, "/controlpanel drop=here")
	replies := hs.srv.Sent(groupChat)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Admins only")

	hs.command(group, admin, "/controlpanel drop=here limit=3")
	replies = hs.srv.Sent(groupChat)
	require.Len(t, replies, 2)
	assert.Contains(t, replies[1], "Drop channel → -1001")

	hs.store.Invalidate()
	doc, _, err := hs.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelID("-1001"), doc.Config.DropChannelID)
	assert.Equal(t, domain.LimitOf(3), doc.Config.DailyDropLimit)
}

func TestTestDropDaily(t *testing.T) {
	hs := newHarness(t, nil)
	group := &tgbotapi.Chat{ID: groupChat, Type: "supergroup"}

	hs.command(group, admin, "/testdrop daily")
	replies := hs.srv.Sent(groupChat)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "No pending glazes")

	hs.command(private(alice), alice, "/glaze 6 you light up every room")
	hs.command(group, admin, "/testdrop daily")
	replies = hs.srv.Sent(groupChat)
	require.Len(t, replies, 2)
	assert.Contains(t, replies[1], "Daily test drop complete")
	drops := hs.srv.Sent(dropChat)
	require.Len(t, drops, 1)
	assert.Contains(t, drops[0], "GLAZEEEEE DROP")
}
