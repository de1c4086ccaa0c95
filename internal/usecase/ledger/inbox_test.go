package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glaze-bot/internal/domain"
)

type recordingNotifier struct {
	dms      map[domain.MemberID][]string
	shares   []string
	dmFails  bool
	shareErr error
}

func (r *recordingNotifier) DeliverDailyDrop(context.Context, domain.ChannelID, domain.MemberID, string) error {
	return nil
}

func (r *recordingNotifier) DeliverMonthlyAnnouncement(context.Context, domain.ChannelID, domain.MemberID, int, string) error {
	return nil
}

func (r *recordingNotifier) DeliverModerationNotice(context.Context, domain.ModerationNotice) (domain.ModerationRef, error) {
	return domain.ModerationRef{}, nil
}

func (r *recordingNotifier) DeliverShare(_ context.Context, channel domain.ChannelID, text, note string) error {
	if r.shareErr != nil {
		return r.shareErr
	}
	r.shares = append(r.shares, string(channel)+"|"+text+"|"+note)
	return nil
}

func (r *recordingNotifier) DeliverDirectMessage(_ context.Context, user domain.MemberID, text string) bool {
	if r.dmFails {
		return false
	}
	if r.dms == nil {
		r.dms = map[domain.MemberID][]string{}
	}
	r.dms[user] = append(r.dms[user], text)
	return true
}

func TestInboxThanksKeepsSenderAnonymous(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	sub, err := svc.Submit(ctx, "alice", "bob", "your playlist rules", base)
	require.NoError(t, err)

	n := &recordingNotifier{}
	inbox := NewInbox(svc, n)

	_, err = inbox.Thanks(ctx, sub.ID, "carol", "")
	require.ErrorIs(t, err, domain.ErrPermission)

	ok, err := inbox.Thanks(ctx, sub.ID, "bob", "  made my week  ")
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, n.dms["alice"], 1)
	assert.Contains(t, n.dms["alice"][0], "made my week")
	assert.NotContains(t, n.dms["alice"][0], "bob")

	_, err = inbox.Thanks(ctx, sub.ID, "bob", strings.Repeat("x", MaxThanksLength+1))
	assert.ErrorIs(t, err, domain.ErrTextTooLong)
}

func TestInboxShare(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, nil)
	sub, err := svc.Submit(ctx, "alice", "bob", "your playlist rules", base)
	require.NoError(t, err)
	n := &recordingNotifier{}
	inbox := NewInbox(svc, n)

	err = inbox.Share(ctx, sub.ID, "bob", "")
	require.ErrorIs(t, err, domain.ErrNoDropChannel)

	_, err = st.Update(ctx, "set channel", func(doc *domain.Document) error {
		doc.Config.DropChannelID = "drops"
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, inbox.Share(ctx, sub.ID, "bob", "so true"))
	assert.Equal(t, []string{"drops|your playlist rules|so true"}, n.shares)

	assert.ErrorIs(t, inbox.Share(ctx, sub.ID, "bob", strings.Repeat("n", MaxShareNote+1)), domain.ErrTextTooLong)

	n.shareErr = errors.New("chat not found")
	assert.Error(t, inbox.Share(ctx, sub.ID, "bob", ""))
}

func TestInboxSendMail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	n := &recordingNotifier{}
	inbox := NewInbox(svc, n)

	_, err := inbox.SendMail(ctx, "bob")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Submit(ctx, "alice", "bob", "your playlist rules", base)
	require.NoError(t, err)
	ok, err := inbox.SendMail(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	n.dmFails = true
	ok, err = inbox.SendMail(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}
