// Package moderation реализует модерацию сообщений: одобрение, отклонение и жалобы.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
	"glaze-bot/internal/store"
)

// Service выполняет действия модераторов над сообщениями.
type Service struct {
	store    domain.DocumentStore
	notifier domain.Notifier
	now      func() time.Time
	log      zerolog.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт сервис модерации.
func NewService(st domain.DocumentStore, notifier domain.Notifier, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    st,
		notifier: notifier,
		now:      time.Now,
		log:      logger.With().Str("component", "moderation").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Outcome описывает результат действия и доставку личного сообщения автору.
type Outcome struct {
	Submission domain.Submission
	// Notice содержит текст для автора сообщения, если он положен.
	Notice    string
	Delivered bool
}

// Approve переводит сообщение из pending в approved.
func (s *Service) Approve(ctx context.Context, id string, actor domain.Actor) (domain.Submission, error) {
	out, err := s.review(ctx, id, actor, "Approve glaze", func(sub *domain.Submission) {
		sub.ApprovalStatus = domain.ApprovalApproved
	})
	if err != nil {
		return domain.Submission{}, err
	}
	metrics.ModerationActions.WithLabelValues("approve").Inc()
	s.log.Info().Str("id", id).Str("actor", string(actor.ID)).Msg("сообщение одобрено")
	return out, nil
}

// Decline отклоняет сообщение, скрывает его навсегда и сообщает автору.
func (s *Service) Decline(ctx context.Context, id string, actor domain.Actor) (Outcome, error) {
	sub, err := s.review(ctx, id, actor, "Decline glaze", func(sub *domain.Submission) {
		sub.ApprovalStatus = domain.ApprovalDeclined
		sub.Deleted = true
	})
	if err != nil {
		return Outcome{}, err
	}
	metrics.ModerationActions.WithLabelValues("decline").Inc()
	notice := DeclineNotice(sub)
	delivered := s.notifier.DeliverDirectMessage(ctx, sub.SenderID, notice)
	if !delivered {
		metrics.DeliveryErrors.WithLabelValues("decline_dm").Inc()
		s.log.Warn().Str("id", id).Msg("не удалось сообщить автору об отклонении")
	}
	return Outcome{Submission: sub, Notice: notice, Delivered: delivered}, nil
}

// review перечитывает документ и применяет решение только к сообщению в статусе pending.
func (s *Service) review(ctx context.Context, id string, actor domain.Actor, message string, apply func(sub *domain.Submission)) (domain.Submission, error) {
	s.store.Invalidate()
	now := s.now().UTC()
	var out domain.Submission
	_, err := s.store.Update(ctx, message, func(doc *domain.Document) error {
		if !doc.Config.IsAdmin(actor) {
			return domain.ErrPermission
		}
		sub, ok := doc.Find(id)
		if !ok {
			return domain.ErrNotFound
		}
		if sub.ApprovalStatus != domain.ApprovalPending {
			return domain.ErrAlreadyProcessed
		}
		apply(sub)
		sub.ReviewedBy = actor.ID
		sub.ReviewedAt = &now
		out = *sub
		return nil
	})
	if err != nil {
		return domain.Submission{}, err
	}
	return out, nil
}

// RequestApproval публикует ожидающее сообщение в канал одобрения и запоминает ссылку на публикацию.
// Ничего не делает, если сообщение не ждёт модерации или канал не настроен.
func (s *Service) RequestApproval(ctx context.Context, sub domain.Submission) error {
	if sub.ApprovalStatus != domain.ApprovalPending {
		return nil
	}
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("загрузка документа: %w", err)
	}
	channel := doc.Config.ApprovalChannelID
	if channel == "" {
		s.log.Warn().Str("id", sub.ID).Msg("канал одобрения не настроен")
		return nil
	}
	ref, err := s.notifier.DeliverModerationNotice(ctx, domain.ModerationNotice{
		Kind:       domain.ModerationApproval,
		Channel:    channel,
		Actor:      sub.SenderID,
		Submission: sub,
	})
	metrics.ObserveDelivery("approval_request", err)
	if err != nil {
		return fmt.Errorf("отправка на модерацию: %w", err)
	}
	// при доставке через очередь ссылка появится позже
	if ref.MessageID == "" {
		return nil
	}
	return s.AttachModerationRef(ctx, sub.ID, ref)
}

// AttachModerationRef сохраняет расположение сообщения модерации.
func (s *Service) AttachModerationRef(ctx context.Context, id string, ref domain.ModerationRef) error {
	_, err := s.store.Update(ctx, "Attach moderation message", func(doc *domain.Document) error {
		sub, ok := doc.Find(id)
		if !ok {
			return domain.ErrNotFound
		}
		if sub.ModerationRef != nil && *sub.ModerationRef == ref {
			return store.ErrNoChanges
		}
		sub.ModerationRef = &ref
		return nil
	})
	return err
}

// PendingWithRefs возвращает ожидающие сообщения, у которых есть сообщение модерации.
// После перезапуска к ним нужно заново привязать кнопки.
func (s *Service) PendingWithRefs(ctx context.Context) ([]domain.Submission, error) {
	return s.pending(ctx, func(sub domain.Submission) bool { return sub.ModerationRef != nil })
}

// Pending возвращает все сообщения, ожидающие решения, от старых к новым.
func (s *Service) Pending(ctx context.Context) ([]domain.Submission, error) {
	return s.pending(ctx, func(domain.Submission) bool { return true })
}

func (s *Service) pending(ctx context.Context, keep func(domain.Submission) bool) ([]domain.Submission, error) {
	s.store.Invalidate()
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("загрузка документа: %w", err)
	}
	out := make([]domain.Submission, 0)
	for _, sub := range doc.Submissions {
		if sub.ApprovalStatus == domain.ApprovalPending && !sub.Deleted && keep(sub) {
			out = append(out, sub)
		}
	}
	return out, nil
}

// Report помечает сообщение жалобой и уведомляет модераторов при первой жалобе.
func (s *Service) Report(ctx context.Context, id string, reporter domain.MemberID) (domain.Submission, error) {
	var (
		out   domain.Submission
		fresh bool
	)
	doc, err := s.store.Update(ctx, "Report glaze", func(doc *domain.Document) error {
		if doc.Config.ReportChannelID == "" {
			return domain.ErrNoReportChannel
		}
		sub, ok := doc.Find(id)
		if !ok || sub.Deleted {
			return domain.ErrNotFound
		}
		out = *sub
		if sub.Reported {
			fresh = false
			return store.ErrNoChanges
		}
		sub.Reported = true
		out.Reported = true
		fresh = true
		return nil
	})
	if err != nil {
		return domain.Submission{}, err
	}
	if !fresh {
		return out, nil
	}
	metrics.ModerationActions.WithLabelValues("report").Inc()
	_, err = s.notifier.DeliverModerationNotice(ctx, domain.ModerationNotice{
		Kind:       domain.ModerationReport,
		Channel:    doc.Config.ReportChannelID,
		Actor:      reporter,
		Submission: out,
	})
	metrics.ObserveDelivery("report", err)
	if err != nil {
		// жалоба уже сохранена, уведомление лишь best-effort
		s.log.Error().Err(err).Str("id", id).Msg("не удалось уведомить модераторов о жалобе")
	}
	return out, nil
}

// DeleteAndScold удаляет сообщение по решению администратора и отправляет автору его текст.
func (s *Service) DeleteAndScold(ctx context.Context, id string, actor domain.Actor) (Outcome, error) {
	s.store.Invalidate()
	var out domain.Submission
	_, err := s.store.Update(ctx, "Delete glaze (mod action)", func(doc *domain.Document) error {
		if !doc.Config.IsAdmin(actor) {
			return domain.ErrPermission
		}
		sub, ok := doc.Find(id)
		if !ok || sub.Deleted {
			return domain.ErrNotFound
		}
		sub.Deleted = true
		out = *sub
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	metrics.ModerationActions.WithLabelValues("delete").Inc()
	notice := ScoldNotice(out)
	delivered := s.notifier.DeliverDirectMessage(ctx, out.SenderID, notice)
	if !delivered {
		metrics.DeliveryErrors.WithLabelValues("scold_dm").Inc()
	}
	return Outcome{Submission: out, Notice: notice, Delivered: delivered}, nil
}

// IsInformational сообщает, что ошибка является ожидаемым исходом гонки, а не сбоем.
func IsInformational(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAlreadyProcessed)
}

// DeclineNotice формирует текст для автора отклонённого сообщения.
func DeclineNotice(sub domain.Submission) string {
	return "🍯 Your glaze wasn’t approved by the mods.\n\n" +
		"“" + sub.Text + "”\n\n" +
		"Please keep glazes kind and SFW."
}

// ScoldNotice формирует текст для автора удалённого по жалобе сообщения.
func ScoldNotice(sub domain.Submission) string {
	return "⚠️ Your glaze was reported and removed\n\n" +
		"🍯 Reported glaze:\n“" + sub.Text + "”\n\n" +
		"Please remember to keep glazes kind and SFW."
}
