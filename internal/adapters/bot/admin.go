package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"glaze-bot/internal/adapters/telegram"
	"glaze-bot/internal/domain"
	"glaze-bot/internal/usecase/moderation"
	"glaze-bot/internal/usecase/settings"
)

// moderate выполняет действие модератора и возвращает текст ответа на нажатие.
func (h *Handler) moderate(ctx context.Context, cb *tgbotapi.CallbackQuery, action, id string) string {
	actor := h.members.Actor(cb.From)
	var (
		label string
		err   error
	)
	switch action {
	case telegram.ActionApprove:
		_, err = h.moderation.Approve(ctx, id, actor)
		label = "✅ Approved by " + telegram.DisplayName(cb.From)
	case telegram.ActionDecline:
		var out moderation.Outcome
		out, err = h.moderation.Decline(ctx, id, actor)
		label = "❌ Declined by " + telegram.DisplayName(cb.From)
		if err == nil && !out.Delivered {
			label += " (glazer not notified)"
		}
	case telegram.ActionScold:
		var out moderation.Outcome
		out, err = h.moderation.DeleteAndScold(ctx, id, actor)
		label = "✅ Deleted and scolded."
		if err == nil && !out.Delivered {
			label = "✅ Deleted (couldn’t DM the glazer)."
		}
	}
	switch {
	case errors.Is(err, domain.ErrPermission):
		return "🚫 You don’t have permission to do that."
	case moderation.IsInformational(err):
		h.resolve(cb, "🍯 Already handled")
		return "😔 That glaze is already handled or missing."
	case err != nil:
		return h.errorMessage(err)
	}
	h.resolve(cb, label)
	return label
}

func (h *Handler) resolve(cb *tgbotapi.CallbackQuery, label string) {
	if h.resolver == nil || cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	ref := domain.ModerationRef{
		ChannelID: domain.ChannelID(strconv.FormatInt(cb.Message.Chat.ID, 10)),
		MessageID: strconv.Itoa(cb.Message.MessageID),
	}
	if err := h.resolver.Resolve(ref, label); err != nil {
		h.log.Warn().Err(err).Msg("не удалось обновить кнопки модерации")
	}
}

func (h *Handler) handleControlPanel(ctx context.Context, msg *tgbotapi.Message, args string) {
	actor := h.members.Actor(msg.From)
	if args == "" {
		cfg, err := h.settings.Get(ctx)
		if err != nil {
			h.reply(msg.Chat.ID, h.errorMessage(err), nil)
			return
		}
		h.reply(msg.Chat.ID, describeConfig(cfg), nil)
		return
	}
	patch, err := ParseControlPanel(args, msg.Chat.ID)
	if err != nil {
		h.reply(msg.Chat.ID, "⚠️ "+err.Error()+"\n\n"+controlPanelUsage, nil)
		return
	}
	res, err := h.settings.Update(ctx, actor, patch)
	if err != nil {
		if errors.Is(err, domain.ErrPermission) {
			h.reply(msg.Chat.ID, "🚫 Admins only.", nil)
			return
		}
		h.reply(msg.Chat.ID, h.errorMessage(err), nil)
		return
	}
	h.reply(msg.Chat.ID, "🍯 Glaze configuration updated\n"+strings.Join(res.Changes, "\n")+"\n• Current admin roles: "+adminRoles(res.Config), nil)
}

func (h *Handler) handleTestDrop(ctx context.Context, msg *tgbotapi.Message, args string) {
	actor := h.members.Actor(msg.From)
	fields := strings.Fields(strings.ToLower(args))
	kind := "daily"
	if len(fields) > 0 {
		kind = fields[0]
	}
	switch kind {
	case "daily":
		res, err := h.drops.ForceDaily(ctx, actor)
		switch {
		case err != nil:
			h.reply(msg.Chat.ID, h.errorMessage(err), nil)
		case len(res.Dropped) == 0:
			h.reply(msg.Chat.ID, "🍯 No pending glazes to drop.", nil)
		case len(res.Failed) > 0:
			h.reply(msg.Chat.ID, fmt.Sprintf("🍯 Daily test drop complete, %d of %d could not be posted.", len(res.Failed), len(res.Dropped)), nil)
		default:
			h.reply(msg.Chat.ID, "🍯 Daily test drop complete.", nil)
		}
	case "monthly":
		var (
			month    string
			override bool
		)
		for _, f := range fields[1:] {
			if f == "override" {
				override = true
				continue
			}
			month = f
		}
		res, err := h.drops.ForceMonthly(ctx, actor, month, override)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			h.reply(msg.Chat.ID, "🍯 No glazes available for this month.", nil)
		case errors.Is(err, domain.ErrAlreadyProcessed):
			h.reply(msg.Chat.ID, "🍯 That month was already announced. Add override to announce it again.", nil)
		case err != nil:
			h.reply(msg.Chat.ID, h.errorMessage(err), nil)
		default:
			h.reply(msg.Chat.ID, fmt.Sprintf("🍯 Monthly test drop complete: %d glazes for the winner.", res.Count), nil)
		}
	default:
		h.reply(msg.Chat.ID, "🍯 Usage: /testdrop daily or /testdrop monthly [YYYY-MM] [override]", nil)
	}
}

func (h *Handler) handleRandomDrop(ctx context.Context, msg *tgbotapi.Message) {
	_, err := h.drops.RandomRelease(ctx, h.members.Actor(msg.From))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.reply(msg.Chat.ID, "🍯 No pending glazes to drop.", nil)
	case err != nil:
		h.reply(msg.Chat.ID, h.errorMessage(err), nil)
	default:
		h.reply(msg.Chat.ID, "🍯 Random glaze dropped!", nil)
	}
}

const controlPanelUsage = `Usage: /controlpanel key=value ...
drop=here|<chat id>  report=here|<chat id>  approval=here|<chat id>
admin=<user id or admin title> (toggles)
daily=HH:MM  monthly=HH:MM  limit=<n>|unbounded  cooldown=<hours>
submissions=on|off  approvals=on|off`

// ParseControlPanel разбирает аргументы /controlpanel в патч настроек.
// Значение here подставляет текущий чат.
func ParseControlPanel(args string, chatID int64) (settings.Patch, error) {
	var p settings.Patch
	for _, field := range strings.Fields(args) {
		key, value, ok := strings.Cut(field, "=")
		if !ok || value == "" {
			return settings.Patch{}, fmt.Errorf("expected key=value, got %q", field)
		}
		key = strings.ToLower(key)
		switch key {
		case "drop", "report", "approval":
			channel := domain.ChannelID(value)
			if strings.EqualFold(value, "here") {
				channel = domain.ChannelID(strconv.FormatInt(chatID, 10))
			} else if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				return settings.Patch{}, fmt.Errorf("%s must be a chat id or here", key)
			}
			switch key {
			case "drop":
				p.DropChannelID = &channel
			case "report":
				p.ReportChannelID = &channel
			default:
				p.ApprovalChannelID = &channel
			}
		case "admin":
			role := domain.RoleID(strings.ReplaceAll(value, "_", " "))
			p.AdminRole = &role
		case "daily", "monthly":
			t, err := ParseLocalTime(value)
			if err != nil {
				return settings.Patch{}, fmt.Errorf("%s must look like HH:MM", key)
			}
			hour, minute := t.Hour(), t.Minute()
			if key == "daily" {
				p.DailyDropHour, p.DailyDropMinute = &hour, &minute
			} else {
				p.MonthlyDropHour, p.MonthlyDropMinute = &hour, &minute
			}
		case "limit":
			limit, err := domain.ParseDropLimit(value)
			if err != nil {
				return settings.Patch{}, errors.New("limit must be a positive number or unbounded")
			}
			p.DailyDropLimit = &limit
		case "cooldown":
			hours, err := strconv.Atoi(strings.TrimSuffix(value, "h"))
			if err != nil {
				return settings.Patch{}, errors.New("cooldown must be a number of hours")
			}
			p.CooldownHours = &hours
		case "submissions", "approvals":
			on, err := parseSwitch(value)
			if err != nil {
				return settings.Patch{}, fmt.Errorf("%s must be on or off", key)
			}
			if key == "submissions" {
				p.SubmissionsEnabled = &on
			} else {
				p.ApprovalsEnabled = &on
			}
		default:
			return settings.Patch{}, fmt.Errorf("unknown option %q", key)
		}
	}
	if err := p.Validate(); err != nil {
		return settings.Patch{}, err
	}
	return p, nil
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("unexpected switch %q", value)
}

// ParseLocalTime парсит время формата ЧЧ:ММ.
func ParseLocalTime(input string) (time.Time, error) {
	return time.Parse("15:04", strings.TrimSpace(input))
}

func describeConfig(cfg domain.Config) string {
	orUnset := func(id domain.ChannelID) string {
		if id == "" {
			return "not set"
		}
		return string(id)
	}
	lines := []string{
		"🍯 Glaze configuration",
		"• Drop channel: " + orUnset(cfg.DropChannelID),
		"• Report channel: " + orUnset(cfg.ReportChannelID),
		"• Approval channel: " + orUnset(cfg.ApprovalChannelID),
		"• Admin roles: " + adminRoles(cfg),
		fmt.Sprintf("• Daily drop: %02d:%02d, limit %s", cfg.DailyDropHour, cfg.DailyDropMinute, cfg.DailyDropLimit),
		fmt.Sprintf("• Monthly drop: %02d:%02d on the last day", cfg.MonthlyDropHour, cfg.MonthlyDropMinute),
		fmt.Sprintf("• Cooldown: %dh", cfg.CooldownHours),
		"• Submissions: " + onOff(cfg.SubmissionsEnabled),
		"• Approvals: " + onOff(cfg.ApprovalsEnabled),
		"",
		controlPanelUsage,
	}
	return strings.Join(lines, "\n")
}

func adminRoles(cfg domain.Config) string {
	if len(cfg.AdminRoleIDs) == 0 {
		return "None"
	}
	out := make([]string, len(cfg.AdminRoleIDs))
	for i, r := range cfg.AdminRoleIDs {
		out[i] = string(r)
	}
	return strings.Join(out, ", ")
}

func onOff(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}
