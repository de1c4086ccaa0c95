package notifier

import (
	"context"

	"github.com/rs/zerolog"

	"glaze-bot/internal/domain"
)

// Log пишет доставки в журнал вместо платформы. Используется локально без токена бота.
type Log struct {
	log zerolog.Logger
}

var _ domain.Notifier = Log{}

// NewLog создаёт журналирующий нотификатор.
func NewLog(logger zerolog.Logger) Log {
	return Log{log: logger.With().Str("component", "notifier").Str("kind", "log").Logger()}
}

func (l Log) DeliverDailyDrop(ctx context.Context, channel domain.ChannelID, recipient domain.MemberID, text string) error {
	l.log.Info().Str("channel", string(channel)).Str("recipient", string(recipient)).Str("text", text).Msg("публикация дня")
	return nil
}

func (l Log) DeliverMonthlyAnnouncement(ctx context.Context, channel domain.ChannelID, winner domain.MemberID, count int, monthKey string) error {
	l.log.Info().Str("channel", string(channel)).Str("winner", string(winner)).Int("count", count).Str("month", monthKey).Msg("победитель месяца")
	return nil
}

func (l Log) DeliverModerationNotice(ctx context.Context, notice domain.ModerationNotice) (domain.ModerationRef, error) {
	l.log.Info().Str("kind", string(notice.Kind)).Str("channel", string(notice.Channel)).Str("submission", notice.Submission.ID).Msg("уведомление модераторам")
	return domain.ModerationRef{ChannelID: notice.Channel, MessageID: "log-" + notice.Submission.ID}, nil
}

func (l Log) DeliverShare(ctx context.Context, channel domain.ChannelID, text, note string) error {
	l.log.Info().Str("channel", string(channel)).Str("text", text).Str("note", note).Msg("поделились сообщением")
	return nil
}

func (l Log) DeliverDirectMessage(ctx context.Context, user domain.MemberID, text string) bool {
	l.log.Info().Str("user", string(user)).Str("text", text).Msg("личное сообщение")
	return true
}
