// Package ledger реализует операции над списком сообщений документа.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
	"glaze-bot/internal/store"
)

const (
	MinTextLength = 10
	MaxTextLength = 500
	// MailLimit ограничивает число сообщений в одном письме.
	MailLimit = 50
)

// Service управляет сообщениями в документе.
type Service struct {
	store domain.DocumentStore
	loc   *time.Location
	newID func() string
	log   zerolog.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService создаёт сервис. loc задаёт часовой пояс для ключа месяца.
func NewService(st domain.DocumentStore, loc *time.Location, logger zerolog.Logger, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		store: st,
		loc:   loc,
		newID: uuid.NewString,
		log:   logger.With().Str("component", "ledger").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeText обрезает пробелы и проверяет длину текста в символах.
func NormalizeText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case n < MinTextLength:
		return "", domain.ErrTextTooShort
	case n > MaxTextLength:
		return "", domain.ErrTextTooLong
	}
	return trimmed, nil
}

// Submit принимает новое сообщение от sender для recipient.
func (s *Service) Submit(ctx context.Context, sender, recipient domain.MemberID, text string, now time.Time) (domain.Submission, error) {
	if sender == recipient {
		return domain.Submission{}, domain.ErrSelfTarget
	}
	body, err := NormalizeText(text)
	if err != nil {
		return domain.Submission{}, err
	}

	// переключатели и кулдауны могли поменять вручную прямо в хранилище
	s.store.Invalidate()

	now = now.UTC()
	var created domain.Submission
	_, err = s.store.Update(ctx, "Add glaze", func(doc *domain.Document) error {
		if !doc.Config.SubmissionsEnabled {
			return domain.ErrDisabled
		}
		if last, ok := doc.Cooldowns[sender]; ok {
			if elapsed := now.Sub(last); elapsed < doc.Config.Cooldown() {
				return &domain.CooldownError{Remaining: doc.Config.Cooldown() - elapsed}
			}
		}
		status := domain.ApprovalApproved
		if doc.Config.ApprovalsEnabled {
			status = domain.ApprovalPending
		}
		created = domain.Submission{
			ID:             s.newID(),
			SenderID:       sender,
			RecipientID:    recipient,
			Text:           body,
			CreatedAt:      now,
			MonthKey:       domain.MonthKey(now, s.loc),
			ApprovalStatus: status,
		}
		doc.Submissions = append(doc.Submissions, created)
		doc.Cooldowns[sender] = now
		return nil
	})
	if err != nil {
		return domain.Submission{}, fmt.Errorf("сохранение сообщения: %w", err)
	}
	metrics.SubmissionsTotal.WithLabelValues(string(created.ApprovalStatus)).Inc()
	s.log.Info().Str("id", created.ID).Str("status", string(created.ApprovalStatus)).Msg("сообщение принято")
	return created, nil
}

// ListForRecipient возвращает видимые сообщения получателя, новые первыми.
func (s *Service) ListForRecipient(ctx context.Context, recipient domain.MemberID) ([]domain.Submission, error) {
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("загрузка документа: %w", err)
	}
	return newestFirst(doc.Submissions, func(sub domain.Submission) bool {
		return sub.RecipientID == recipient
	}), nil
}

// ListBySender возвращает видимые сообщения отправителя, новые первыми.
func (s *Service) ListBySender(ctx context.Context, sender domain.MemberID) ([]domain.Submission, error) {
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("загрузка документа: %w", err)
	}
	return newestFirst(doc.Submissions, func(sub domain.Submission) bool {
		return sub.SenderID == sender
	}), nil
}

// ListForMonth возвращает видимые сообщения месяца, новые первыми.
func (s *Service) ListForMonth(ctx context.Context, monthKey string) ([]domain.Submission, error) {
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("загрузка документа: %w", err)
	}
	return newestFirst(doc.Submissions, func(sub domain.Submission) bool {
		return sub.MonthKey == monthKey
	}), nil
}

// Get возвращает неудалённое сообщение по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Submission, error) {
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("загрузка документа: %w", err)
	}
	sub, ok := doc.Find(id)
	if !ok || sub.Deleted {
		return domain.Submission{}, domain.ErrNotFound
	}
	return *sub, nil
}

// MarkDeleted необратимо скрывает сообщение.
func (s *Service) MarkDeleted(ctx context.Context, id string) (domain.Submission, error) {
	var out domain.Submission
	_, err := s.store.Update(ctx, "Delete glaze", func(doc *domain.Document) error {
		sub, ok := doc.Find(id)
		if !ok || sub.Deleted {
			return domain.ErrNotFound
		}
		sub.Deleted = true
		out = *sub
		return nil
	})
	if err != nil {
		return domain.Submission{}, err
	}
	return out, nil
}

// MarkReported помечает сообщение как пожалованное. Повторная пометка ничего не пишет.
func (s *Service) MarkReported(ctx context.Context, id string) (domain.Submission, error) {
	var out domain.Submission
	_, err := s.store.Update(ctx, "Report glaze", func(doc *domain.Document) error {
		sub, ok := doc.Find(id)
		if !ok || sub.Deleted {
			return domain.ErrNotFound
		}
		if sub.Reported {
			out = *sub
			return store.ErrNoChanges
		}
		sub.Reported = true
		out = *sub
		return nil
	})
	if err != nil {
		return domain.Submission{}, err
	}
	return out, nil
}

// PendingDropCandidates возвращает кандидатов на публикацию, старые первыми.
func (s *Service) PendingDropCandidates(ctx context.Context) ([]domain.Submission, error) {
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("загрузка документа: %w", err)
	}
	return Candidates(doc), nil
}

// Mail собирает письмо из последних видимых сообщений получателя.
// Возвращает ErrNotFound, если сообщений нет.
func (s *Service) Mail(ctx context.Context, recipient domain.MemberID) (string, error) {
	subs, err := s.ListForRecipient(ctx, recipient)
	if err != nil {
		return "", err
	}
	if len(subs) == 0 {
		return "", domain.ErrNotFound
	}
	if len(subs) > MailLimit {
		subs = subs[:MailLimit]
	}
	var b strings.Builder
	b.WriteString("💌 Your Glaze Mail\n")
	for _, sub := range subs {
		fmt.Fprintf(&b, "\n• %s: “%s”", sub.CreatedAt.In(s.loc).Format("02 Jan 2006"), sub.Text)
	}
	return b.String(), nil
}

// Candidates возвращает кандидатов документа на публикацию по возрастанию времени создания.
func Candidates(doc *domain.Document) []domain.Submission {
	out := make([]domain.Submission, 0)
	for _, sub := range doc.Submissions {
		if sub.Candidate() {
			out = append(out, sub)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func newestFirst(all []domain.Submission, keep func(domain.Submission) bool) []domain.Submission {
	out := make([]domain.Submission, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Visible() && keep(all[i]) {
			out = append(out, all[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
