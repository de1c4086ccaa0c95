package domain

import (
	"context"
	"time"
)

// Token — непрозрачная версия документа (ETag, sha, номер версии) для compare-and-swap.
// Пустой токен означает «документа ещё нет».
type Token string

// DocumentBackend хранит сериализованный документ с проверкой версии.
type DocumentBackend interface {
	// Get возвращает тело документа и его токен. Если документа нет, возвращает ErrDocumentNotFound.
	Get(ctx context.Context) ([]byte, Token, error)
	// PutIfMatch записывает тело, только если текущий токен совпадает с expected.
	// Пустой expected означает создание. При несовпадении возвращает ErrConflict.
	PutIfMatch(ctx context.Context, body []byte, expected Token, message string) (Token, error)
}

// DocumentStore даёт сервисам доступ к документу через цикл чтение-изменение-запись.
type DocumentStore interface {
	Load(ctx context.Context) (*Document, Token, error)
	// Update применяет fn к свежей копии документа и сохраняет результат.
	Update(ctx context.Context, message string, fn func(doc *Document) error) (*Document, error)
	// Invalidate сбрасывает кэш, чтобы увидеть внешние правки.
	Invalidate()
}

// ModerationKind различает уведомления для модераторов.
type ModerationKind string

const (
	ModerationReport   ModerationKind = "report"
	ModerationApproval ModerationKind = "approval"
)

// ModerationNotice описывает сообщение для канала модерации.
type ModerationNotice struct {
	Kind       ModerationKind
	Channel    ChannelID
	Actor      MemberID
	Submission Submission
}

// Notifier доставляет сообщения во внешнюю платформу. Ядро никогда не считает доставку гарантированной.
type Notifier interface {
	DeliverDailyDrop(ctx context.Context, channel ChannelID, recipient MemberID, text string) error
	DeliverMonthlyAnnouncement(ctx context.Context, channel ChannelID, winner MemberID, count int, monthKey string) error
	DeliverModerationNotice(ctx context.Context, notice ModerationNotice) (ModerationRef, error)
	DeliverShare(ctx context.Context, channel ChannelID, text, note string) error
	// DeliverDirectMessage возвращает false, если личное сообщение доставить не удалось.
	DeliverDirectMessage(ctx context.Context, user MemberID, text string) bool
}

// Cache используется для простых TTL-блокировок между репликами.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
}
