package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/queue"
)

type memQueue struct {
	items chan []byte
	acks  chan bool
	// failures столько раз подряд Pop вернёт ошибку брокера
	failures int
}

func newMemQueue() *memQueue {
	return &memQueue{items: make(chan []byte, 16), acks: make(chan bool, 16)}
}

func (q *memQueue) Push(_ context.Context, payload []byte) error {
	q.items <- payload
	return nil
}

func (q *memQueue) Pop(ctx context.Context) (queue.Delivery, error) {
	if q.failures > 0 {
		q.failures--
		return queue.Delivery{}, errors.New("redis: connection reset by peer")
	}
	select {
	case <-ctx.Done():
		return queue.Delivery{}, ctx.Err()
	case body := <-q.items:
		return queue.NewDelivery(body, func(ok bool) error {
			q.acks <- ok
			return nil
		}), nil
	}
}

func (q *memQueue) Close() error { return nil }

type recorder struct {
	Log
	drops   []string
	notices []domain.ModerationNotice
	dmOK    bool
}

func (r *recorder) DeliverDailyDrop(_ context.Context, _ domain.ChannelID, recipient domain.MemberID, text string) error {
	r.drops = append(r.drops, string(recipient)+":"+text)
	return nil
}

func (r *recorder) DeliverModerationNotice(_ context.Context, notice domain.ModerationNotice) (domain.ModerationRef, error) {
	r.notices = append(r.notices, notice)
	return domain.ModerationRef{ChannelID: notice.Channel, MessageID: "77"}, nil
}

func (r *recorder) DeliverDirectMessage(context.Context, domain.MemberID, string) bool {
	return r.dmOK
}

func TestQueuedRelayRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue()
	n := NewQueued(q, zerolog.Nop())
	target := &recorder{Log: NewLog(zerolog.Nop())}

	var attached []string
	relay := NewRelay(q, target, func(_ context.Context, id string, ref domain.ModerationRef) error {
		attached = append(attached, id+"@"+ref.MessageID)
		return nil
	}, zerolog.Nop())

	require.NoError(t, n.DeliverDailyDrop(ctx, "drops", "5", "hello"))
	ref, err := n.DeliverModerationNotice(ctx, domain.ModerationNotice{
		Kind:       domain.ModerationApproval,
		Channel:    "approvals",
		Submission: domain.Submission{ID: "g1"},
	})
	require.NoError(t, err)
	assert.Empty(t, ref.MessageID)

	for i := 0; i < 2; i++ {
		require.NoError(t, relay.Handle(ctx, <-q.items))
	}
	assert.Equal(t, []string{"5:hello"}, target.drops)
	require.Len(t, target.notices, 1)
	assert.Equal(t, []string{"g1@77"}, attached)
}

func TestRelayRunAcksByOutcome(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q := newMemQueue()
	n := NewQueued(q, zerolog.Nop())
	target := &recorder{Log: NewLog(zerolog.Nop())}
	relay := NewRelay(q, target, nil, zerolog.Nop())

	assert.True(t, n.DeliverDirectMessage(ctx, "5", "thanks"))
	require.NoError(t, q.Push(ctx, []byte(`{"kind":"mystery"}`)))

	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	assert.False(t, <-q.acks, "failed dm must be rejected")
	assert.False(t, <-q.acks, "unknown event must be rejected")
	cancel()
	assert.NoError(t, <-done)
}

func TestRelayRejectsGarbage(t *testing.T) {
	relay := NewRelay(newMemQueue(), NewLog(zerolog.Nop()), nil, zerolog.Nop())
	err := relay.Handle(context.Background(), []byte("{"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestRelayRunSurvivesBrokerErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q := newMemQueue()
	q.failures = 2
	target := &recorder{Log: NewLog(zerolog.Nop())}
	relay := NewRelay(q, target, nil, zerolog.Nop(), WithRelayBackoff(time.Millisecond))

	require.NoError(t, NewQueued(q, zerolog.Nop()).DeliverDailyDrop(ctx, "drops", "5", "still delivered"))

	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	select {
	case ok := <-q.acks:
		assert.True(t, ok)
	case err := <-done:
		t.Fatalf("relay stopped on a broker error: %v", err)
	}
	assert.Equal(t, []string{"5:still delivered"}, target.drops)
	assert.Zero(t, q.failures)
	cancel()
	assert.NoError(t, <-done)
}
