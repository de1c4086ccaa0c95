package ledger

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
)

const (
	MaxThanksLength = 500
	MaxShareNote    = 200
)

// Inbox выполняет действия получателя со своими сообщениями.
type Inbox struct {
	ledger   *Service
	notifier domain.Notifier
}

// NewInbox создаёт Inbox поверх сервиса сообщений.
func NewInbox(ledger *Service, notifier domain.Notifier) *Inbox {
	return &Inbox{ledger: ledger, notifier: notifier}
}

// SendMail отправляет получателю письмо со всеми сообщениями. false означает, что личка закрыта.
func (i *Inbox) SendMail(ctx context.Context, recipient domain.MemberID) (bool, error) {
	mail, err := i.ledger.Mail(ctx, recipient)
	if err != nil {
		return false, err
	}
	delivered := i.notifier.DeliverDirectMessage(ctx, recipient, mail)
	if !delivered {
		metrics.DeliveryErrors.WithLabelValues("mail").Inc()
	}
	return delivered, nil
}

// Thanks анонимно передаёт благодарность автору сообщения.
func (i *Inbox) Thanks(ctx context.Context, id string, actor domain.MemberID, note string) (bool, error) {
	sub, err := i.owned(ctx, id, actor)
	if err != nil {
		return false, err
	}
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > MaxThanksLength {
		return false, domain.ErrTextTooLong
	}
	text := "💐 Someone wants to thank you for your glaze!\n\n🍯 Your glaze:\n“" + sub.Text + "”"
	if note != "" {
		text += "\n\n💬 Their message:\n“" + note + "”"
	}
	delivered := i.notifier.DeliverDirectMessage(ctx, sub.SenderID, text)
	if !delivered {
		metrics.DeliveryErrors.WithLabelValues("thanks").Inc()
	}
	return delivered, nil
}

// Share публикует своё сообщение в канал публикаций с необязательной подписью.
func (i *Inbox) Share(ctx context.Context, id string, actor domain.MemberID, note string) error {
	sub, err := i.owned(ctx, id, actor)
	if err != nil {
		return err
	}
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > MaxShareNote {
		return domain.ErrTextTooLong
	}
	doc, _, err := i.ledger.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("загрузка документа: %w", err)
	}
	if doc.Config.DropChannelID == "" {
		return domain.ErrNoDropChannel
	}
	err = i.notifier.DeliverShare(ctx, doc.Config.DropChannelID, sub.Text, note)
	metrics.ObserveDelivery("share", err)
	if err != nil {
		return fmt.Errorf("публикация: %w", err)
	}
	metrics.DropsTotal.WithLabelValues("share").Inc()
	return nil
}

func (i *Inbox) owned(ctx context.Context, id string, actor domain.MemberID) (domain.Submission, error) {
	sub, err := i.ledger.Get(ctx, id)
	if err != nil {
		return domain.Submission{}, err
	}
	if !sub.Visible() {
		return domain.Submission{}, domain.ErrNotFound
	}
	if sub.RecipientID != actor {
		return domain.Submission{}, domain.ErrPermission
	}
	return sub, nil
}
