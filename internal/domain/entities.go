package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// MemberID идентифицирует участника группы на платформе чата.
type MemberID string

// ChannelID идентифицирует канал или чат, куда бот публикует сообщения.
type ChannelID string

// RoleID идентифицирует роль с правами администратора.
type RoleID string

// UnmarshalJSON принимает как строки, так и числовые идентификаторы старого формата.
func (id *MemberID) UnmarshalJSON(data []byte) error {
	v, err := decodeID(data)
	if err != nil {
		return fmt.Errorf("member id: %w", err)
	}
	if v != nil {
		*id = MemberID(*v)
	}
	return nil
}

// UnmarshalJSON принимает как строки, так и числовые идентификаторы старого формата.
func (id *ChannelID) UnmarshalJSON(data []byte) error {
	v, err := decodeID(data)
	if err != nil {
		return fmt.Errorf("channel id: %w", err)
	}
	if v != nil {
		*id = ChannelID(*v)
	}
	return nil
}

// UnmarshalJSON принимает как строки, так и числовые идентификаторы старого формата.
func (id *RoleID) UnmarshalJSON(data []byte) error {
	v, err := decodeID(data)
	if err != nil {
		return fmt.Errorf("role id: %w", err)
	}
	if v != nil {
		*id = RoleID(*v)
	}
	return nil
}

func decodeID(data []byte) (*string, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return &s, nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return nil, err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return nil, fmt.Errorf("unexpected numeric id %s", n)
	}
	s := n.String()
	return &s, nil
}

// ApprovalStatus описывает результат модерации сообщения.
type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalDeclined ApprovalStatus = "declined"
)

// ModerationRef указывает на сообщение модерации, чтобы позже синхронизировать его состояние.
type ModerationRef struct {
	ChannelID ChannelID `json:"channel_id"`
	MessageID string    `json:"message_id"`
}

// Submission — одно анонимное сообщение («глейз») от отправителя получателю.
type Submission struct {
	ID             string         `json:"id"`
	SenderID       MemberID       `json:"sender_id"`
	RecipientID    MemberID       `json:"recipient_id"`
	Text           string         `json:"text"`
	CreatedAt      time.Time      `json:"created_at"`
	MonthKey       string         `json:"month_key"`
	DroppedAt      *time.Time     `json:"dropped_at"`
	Deleted        bool           `json:"deleted"`
	Reported       bool           `json:"reported"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	ModerationRef  *ModerationRef `json:"moderation_ref,omitempty"`
	ReviewedBy     MemberID       `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
}

// Visible сообщает, может ли сообщение показываться кому-либо.
func (s Submission) Visible() bool {
	return !s.Deleted && s.ApprovalStatus == ApprovalApproved
}

// Candidate сообщает, может ли сообщение попасть в плановую публикацию.
func (s Submission) Candidate() bool {
	return s.Visible() && s.DroppedAt == nil
}

// Config хранит настройки, которые меняет оператор через панель управления.
type Config struct {
	DropChannelID      ChannelID `json:"drop_channel_id,omitempty"`
	ReportChannelID    ChannelID `json:"report_channel_id,omitempty"`
	ApprovalChannelID  ChannelID `json:"approval_channel_id,omitempty"`
	AdminRoleIDs       []RoleID  `json:"admin_role_ids"`
	DailyDropHour      int       `json:"daily_drop_hour"`
	DailyDropMinute    int       `json:"daily_drop_minute"`
	MonthlyDropHour    int       `json:"monthly_drop_hour"`
	MonthlyDropMinute  int       `json:"monthly_drop_minute"`
	DailyDropLimit     DropLimit `json:"daily_drop_limit"`
	CooldownHours      int       `json:"cooldown_hours"`
	SubmissionsEnabled bool      `json:"submissions_enabled"`
	ApprovalsEnabled   bool      `json:"approvals_enabled"`
}

// MaxCooldownHours ограничивает кулдаун одним годом.
const MaxCooldownHours = 8760

// Cooldown возвращает минимальный интервал между сообщениями одного отправителя.
// Значение вне 0..MaxCooldownHours прижимается к границе, чтобы умножение не переполнилось.
func (c Config) Cooldown() time.Duration {
	hours := min(max(c.CooldownHours, 0), MaxCooldownHours)
	return time.Duration(hours) * time.Hour
}

// UnmarshalJSON декодирует поверх текущих значений и отвергает кулдаун вне допустимого диапазона.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	if err := json.Unmarshal(data, (*plain)(c)); err != nil {
		return err
	}
	if c.CooldownHours < 0 || c.CooldownHours > MaxCooldownHours {
		return fmt.Errorf("cooldown_hours %d out of range 0..%d", c.CooldownHours, MaxCooldownHours)
	}
	return nil
}

// Meta хранит маркеры идемпотентности планировщика.
type Meta struct {
	LastDailyDropDate   string               `json:"last_daily_drop_date,omitempty"`
	LastMonthlyAnnounce map[string]time.Time `json:"last_monthly_announce"`
}

// MonthKey возвращает метку месяца YYYY-MM в указанном часовом поясе.
func MonthKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01")
}

// DateKey возвращает календарную дату YYYY-MM-DD в указанном часовом поясе.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
