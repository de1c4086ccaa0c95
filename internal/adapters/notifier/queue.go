package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/queue"
)

// EventKind различает события доставки в очереди.
type EventKind string

const (
	EventDailyDrop  EventKind = "daily_drop"
	EventMonthly    EventKind = "monthly_announcement"
	EventModeration EventKind = "moderation_notice"
	EventShare      EventKind = "share"
	EventDirect     EventKind = "direct_message"
)

// Event описывает задачу доставки для Relay.
type Event struct {
	Kind      EventKind                `json:"kind"`
	Channel   domain.ChannelID         `json:"channel,omitempty"`
	Member    domain.MemberID          `json:"member,omitempty"`
	Text      string                   `json:"text,omitempty"`
	Note      string                   `json:"note,omitempty"`
	Count     int                      `json:"count,omitempty"`
	MonthKey  string                   `json:"month_key,omitempty"`
	Notice    *domain.ModerationNotice `json:"notice,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

// Queued реализует domain.Notifier публикацией событий в очередь.
// Личные сообщения считаются доставленными, если событие попало в очередь,
// ссылка на сообщение модерации проставляется позже на стороне Relay.
type Queued struct {
	q   queue.Queue
	now func() time.Time
	log zerolog.Logger
}

var _ domain.Notifier = (*Queued)(nil)

// NewQueued создаёт нотификатор поверх очереди.
func NewQueued(q queue.Queue, logger zerolog.Logger) *Queued {
	return &Queued{q: q, now: time.Now, log: logger.With().Str("component", "notifier").Str("kind", "queue").Logger()}
}

func (n *Queued) publish(ctx context.Context, ev Event) error {
	ev.CreatedAt = n.now().UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("кодирование события: %w", err)
	}
	return n.q.Push(ctx, payload)
}

func (n *Queued) DeliverDailyDrop(ctx context.Context, channel domain.ChannelID, recipient domain.MemberID, text string) error {
	return n.publish(ctx, Event{Kind: EventDailyDrop, Channel: channel, Member: recipient, Text: text})
}

func (n *Queued) DeliverMonthlyAnnouncement(ctx context.Context, channel domain.ChannelID, winner domain.MemberID, count int, monthKey string) error {
	return n.publish(ctx, Event{Kind: EventMonthly, Channel: channel, Member: winner, Count: count, MonthKey: monthKey})
}

func (n *Queued) DeliverModerationNotice(ctx context.Context, notice domain.ModerationNotice) (domain.ModerationRef, error) {
	if err := n.publish(ctx, Event{Kind: EventModeration, Notice: &notice}); err != nil {
		return domain.ModerationRef{}, err
	}
	return domain.ModerationRef{}, nil
}

func (n *Queued) DeliverShare(ctx context.Context, channel domain.ChannelID, text, note string) error {
	return n.publish(ctx, Event{Kind: EventShare, Channel: channel, Text: text, Note: note})
}

func (n *Queued) DeliverDirectMessage(ctx context.Context, user domain.MemberID, text string) bool {
	if err := n.publish(ctx, Event{Kind: EventDirect, Member: user, Text: text}); err != nil {
		n.log.Warn().Err(err).Str("user", string(user)).Msg("не удалось поставить личное сообщение в очередь")
		return false
	}
	return true
}

// RefFunc сохраняет ссылку на опубликованное сообщение модерации.
type RefFunc func(ctx context.Context, submissionID string, ref domain.ModerationRef) error

const (
	defaultRelayBackoff = time.Second
	maxRelayBackoff     = 30 * time.Second
)

// Relay читает события из очереди и доставляет их целевым нотификатором.
type Relay struct {
	q       queue.Queue
	target  domain.Notifier
	onRef   RefFunc
	backoff time.Duration
	log     zerolog.Logger
}

// RelayOption настраивает Relay.
type RelayOption func(*Relay)

// WithRelayBackoff задаёт начальную паузу после ошибки чтения очереди.
func WithRelayBackoff(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.backoff = d
		}
	}
}

// NewRelay создаёт исполнителя очереди. onRef может быть nil.
func NewRelay(q queue.Queue, target domain.Notifier, onRef RefFunc, logger zerolog.Logger, opts ...RelayOption) *Relay {
	r := &Relay{
		q:       q,
		target:  target,
		onRef:   onRef,
		backoff: defaultRelayBackoff,
		log:     logger.With().Str("component", "relay").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run обрабатывает очередь до отмены контекста. Ошибки брокера логируются,
// чтение повторяется с растущей паузой.
func (r *Relay) Run(ctx context.Context) error {
	wait := r.backoff
	for {
		d, err := r.q.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			r.log.Error().Err(err).Dur("retry_in", wait).Msg("ошибка чтения очереди")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			wait = min(wait*2, maxRelayBackoff)
			continue
		}
		wait = r.backoff
		handleErr := r.Handle(ctx, d.Body)
		if handleErr != nil {
			r.log.Error().Err(handleErr).Msg("событие не доставлено")
		}
		if err := d.Done(handleErr == nil); err != nil {
			r.log.Warn().Err(err).Msg("не удалось подтвердить событие")
		}
	}
}

// Handle доставляет одно событие.
func (r *Relay) Handle(ctx context.Context, payload []byte) error {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("разбор события: %w", err)
	}
	switch ev.Kind {
	case EventDailyDrop:
		return r.target.DeliverDailyDrop(ctx, ev.Channel, ev.Member, ev.Text)
	case EventMonthly:
		return r.target.DeliverMonthlyAnnouncement(ctx, ev.Channel, ev.Member, ev.Count, ev.MonthKey)
	case EventShare:
		return r.target.DeliverShare(ctx, ev.Channel, ev.Text, ev.Note)
	case EventDirect:
		if !r.target.DeliverDirectMessage(ctx, ev.Member, ev.Text) {
			return fmt.Errorf("личное сообщение %s не доставлено", ev.Member)
		}
		return nil
	case EventModeration:
		if ev.Notice == nil {
			return errors.New("событие модерации без уведомления")
		}
		ref, err := r.target.DeliverModerationNotice(ctx, *ev.Notice)
		if err != nil {
			return err
		}
		if r.onRef != nil && ev.Notice.Kind == domain.ModerationApproval {
			return r.onRef(ctx, ev.Notice.Submission.ID, ref)
		}
		return nil
	default:
		return fmt.Errorf("неизвестное событие %q", ev.Kind)
	}
}
