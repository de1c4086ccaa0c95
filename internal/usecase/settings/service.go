// Package settings — панель управления настройками группы.
package settings

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"glaze-bot/internal/domain"
)

// Patch содержит только изменяемые поля; nil означает «не менять».
// AdminRole переключает роль: добавляет, если её нет, и убирает, если есть.
type Patch struct {
	DropChannelID      *domain.ChannelID `json:"drop_channel_id,omitempty"`
	ReportChannelID    *domain.ChannelID `json:"report_channel_id,omitempty"`
	ApprovalChannelID  *domain.ChannelID `json:"approval_channel_id,omitempty"`
	AdminRole          *domain.RoleID    `json:"admin_role,omitempty"`
	DailyDropHour      *int              `json:"daily_drop_hour,omitempty"`
	DailyDropMinute    *int              `json:"daily_drop_minute,omitempty"`
	MonthlyDropHour    *int              `json:"monthly_drop_hour,omitempty"`
	MonthlyDropMinute  *int              `json:"monthly_drop_minute,omitempty"`
	DailyDropLimit     *domain.DropLimit `json:"daily_drop_limit,omitempty"`
	CooldownHours      *int              `json:"cooldown_hours,omitempty"`
	SubmissionsEnabled *bool             `json:"submissions_enabled,omitempty"`
	ApprovalsEnabled   *bool             `json:"approvals_enabled,omitempty"`
}

// Empty сообщает, что в патче нет ни одного поля.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Validate проверяет диапазоны значений.
func (p Patch) Validate() error {
	checks := []struct {
		name     string
		value    *int
		min, max int
	}{
		{"daily_drop_hour", p.DailyDropHour, 0, 23},
		{"daily_drop_minute", p.DailyDropMinute, 0, 59},
		{"monthly_drop_hour", p.MonthlyDropHour, 0, 23},
		{"monthly_drop_minute", p.MonthlyDropMinute, 0, 59},
		{"cooldown_hours", p.CooldownHours, 0, domain.MaxCooldownHours},
	}
	for _, c := range checks {
		if c.value != nil && (*c.value < c.min || *c.value > c.max) {
			return fmt.Errorf("%w: %s must be within %d..%d", domain.ErrValidation, c.name, c.min, c.max)
		}
	}
	return nil
}

// Result содержит новые настройки и человекочитаемый список изменений.
type Result struct {
	Config  domain.Config
	Changes []string
}

// Service изменяет настройки документа.
type Service struct {
	store domain.DocumentStore
	log   zerolog.Logger
}

// NewService создаёт сервис настроек.
func NewService(st domain.DocumentStore, logger zerolog.Logger) *Service {
	return &Service{store: st, log: logger.With().Str("component", "settings").Logger()}
}

// Get возвращает текущие настройки.
func (s *Service) Get(ctx context.Context) (domain.Config, error) {
	doc, _, err := s.store.Load(ctx)
	if err != nil {
		return domain.Config{}, fmt.Errorf("загрузка документа: %w", err)
	}
	return doc.Config, nil
}

// Update применяет патч от имени actor.
func (s *Service) Update(ctx context.Context, actor domain.Actor, patch Patch) (Result, error) {
	if patch.Empty() {
		return Result{}, domain.ErrNothingChanged
	}
	if err := patch.Validate(); err != nil {
		return Result{}, err
	}
	s.store.Invalidate()
	var result Result
	_, err := s.store.Update(ctx, "Update Glaze controlpanel", func(doc *domain.Document) error {
		if !doc.Config.IsAdmin(actor) {
			return domain.ErrPermission
		}
		result = Result{Changes: apply(&doc.Config, patch)}
		result.Config = doc.Config
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.log.Info().Str("actor", string(actor.ID)).Strs("changes", result.Changes).Msg("настройки обновлены")
	return result, nil
}

func apply(cfg *domain.Config, p Patch) []string {
	var changes []string
	if p.DropChannelID != nil {
		cfg.DropChannelID = *p.DropChannelID
		changes = append(changes, fmt.Sprintf("• Drop channel → %s", *p.DropChannelID))
	}
	if p.ReportChannelID != nil {
		cfg.ReportChannelID = *p.ReportChannelID
		changes = append(changes, fmt.Sprintf("• Report channel → %s", *p.ReportChannelID))
	}
	if p.ApprovalChannelID != nil {
		cfg.ApprovalChannelID = *p.ApprovalChannelID
		changes = append(changes, fmt.Sprintf("• Approval channel → %s", *p.ApprovalChannelID))
	}
	if p.AdminRole != nil {
		if cfg.ToggleAdminRole(*p.AdminRole) {
			changes = append(changes, fmt.Sprintf("• Admin role added → %s", *p.AdminRole))
		} else {
			changes = append(changes, fmt.Sprintf("• Admin role removed → %s", *p.AdminRole))
		}
	}
	if p.DailyDropHour != nil || p.DailyDropMinute != nil {
		setInt(&cfg.DailyDropHour, p.DailyDropHour)
		setInt(&cfg.DailyDropMinute, p.DailyDropMinute)
		changes = append(changes, fmt.Sprintf("• Daily drop time → %02d:%02d", cfg.DailyDropHour, cfg.DailyDropMinute))
	}
	if p.MonthlyDropHour != nil || p.MonthlyDropMinute != nil {
		setInt(&cfg.MonthlyDropHour, p.MonthlyDropHour)
		setInt(&cfg.MonthlyDropMinute, p.MonthlyDropMinute)
		changes = append(changes, fmt.Sprintf("• Monthly drop time → %02d:%02d", cfg.MonthlyDropHour, cfg.MonthlyDropMinute))
	}
	if p.DailyDropLimit != nil {
		cfg.DailyDropLimit = *p.DailyDropLimit
		changes = append(changes, fmt.Sprintf("• Daily drop limit → %s", cfg.DailyDropLimit))
	}
	if p.CooldownHours != nil {
		cfg.CooldownHours = *p.CooldownHours
		changes = append(changes, fmt.Sprintf("• Cooldown → %dh", cfg.CooldownHours))
	}
	if p.SubmissionsEnabled != nil {
		cfg.SubmissionsEnabled = *p.SubmissionsEnabled
		changes = append(changes, "• Submissions → "+onOff(cfg.SubmissionsEnabled))
	}
	if p.ApprovalsEnabled != nil {
		cfg.ApprovalsEnabled = *p.ApprovalsEnabled
		changes = append(changes, "• Approvals → "+onOff(cfg.ApprovalsEnabled))
	}
	return changes
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func onOff(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}
