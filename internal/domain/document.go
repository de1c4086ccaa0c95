package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	docKeyConfig      = "config"
	docKeyMeta        = "meta"
	docKeyCooldowns   = "cooldowns"
	docKeySubmissions = "submissions"
	docKeyWins        = "wins"
	// старые версии хранили сообщения под ключом glazes
	docKeyLegacySubmissions = "glazes"
)

// Document — единственный сохраняемый агрегат, общий для всей группы.
type Document struct {
	Config      Config
	Meta        Meta
	Cooldowns   map[MemberID]time.Time
	Submissions []Submission
	Wins        map[MemberID]int
	// Extra сохраняет неизвестные ключи верхнего уровня от других версий схемы.
	Extra map[string]json.RawMessage
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		AdminRoleIDs:       []RoleID{},
		DailyDropHour:      17,
		DailyDropMinute:    0,
		MonthlyDropHour:    18,
		MonthlyDropMinute:  0,
		DailyDropLimit:     LimitOf(1),
		CooldownHours:      24,
		SubmissionsEnabled: true,
		ApprovalsEnabled:   false,
	}
}

// DefaultDocument возвращает пустой документ с настройками по умолчанию.
func DefaultDocument() *Document {
	return &Document{
		Config:      DefaultConfig(),
		Meta:        Meta{LastMonthlyAnnounce: map[string]time.Time{}},
		Cooldowns:   map[MemberID]time.Time{},
		Submissions: []Submission{},
		Wins:        map[MemberID]int{},
		Extra:       map[string]json.RawMessage{},
	}
}

// UnmarshalJSON накладывает сохранённые данные поверх значений по умолчанию:
// отсутствующие поля получают дефолт, неизвестные ключи сохраняются в Extra.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if legacy, ok := raw[docKeyLegacySubmissions]; ok {
		if _, has := raw[docKeySubmissions]; !has {
			raw[docKeySubmissions] = legacy
			delete(raw, docKeyLegacySubmissions)
		}
	}

	*d = *DefaultDocument()
	for key, value := range raw {
		var target any
		switch key {
		case docKeyConfig:
			target = &d.Config
		case docKeyMeta:
			target = &d.Meta
		case docKeyCooldowns:
			target = &d.Cooldowns
		case docKeySubmissions:
			target = &d.Submissions
		case docKeyWins:
			target = &d.Wins
		default:
			d.Extra[key] = append(json.RawMessage(nil), value...)
			continue
		}
		if err := json.Unmarshal(value, target); err != nil {
			return fmt.Errorf("decode document %s: %w", key, err)
		}
	}
	d.normalize()
	return nil
}

// MarshalJSON пишет известные поля вместе с сохранёнными неизвестными ключами.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+5)
	for key, value := range d.Extra {
		out[key] = value
	}
	out[docKeyConfig] = d.Config
	out[docKeyMeta] = d.Meta
	out[docKeyCooldowns] = d.Cooldowns
	out[docKeySubmissions] = d.Submissions
	out[docKeyWins] = d.Wins
	return json.Marshal(out)
}

func (d *Document) normalize() {
	if d.Config.AdminRoleIDs == nil {
		d.Config.AdminRoleIDs = []RoleID{}
	}
	if d.Meta.LastMonthlyAnnounce == nil {
		d.Meta.LastMonthlyAnnounce = map[string]time.Time{}
	}
	if d.Cooldowns == nil {
		d.Cooldowns = map[MemberID]time.Time{}
	}
	if d.Submissions == nil {
		d.Submissions = []Submission{}
	}
	if d.Wins == nil {
		d.Wins = map[MemberID]int{}
	}
	if d.Extra == nil {
		d.Extra = map[string]json.RawMessage{}
	}
	for i := range d.Submissions {
		if d.Submissions[i].ApprovalStatus == "" {
			d.Submissions[i].ApprovalStatus = ApprovalApproved
		}
	}
}

// Clone возвращает полную копию документа, не разделяющую память с оригиналом.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Config:      d.Config,
		Meta:        Meta{LastDailyDropDate: d.Meta.LastDailyDropDate},
		Cooldowns:   make(map[MemberID]time.Time, len(d.Cooldowns)),
		Submissions: make([]Submission, len(d.Submissions)),
		Wins:        make(map[MemberID]int, len(d.Wins)),
		Extra:       make(map[string]json.RawMessage, len(d.Extra)),
	}
	out.Config.AdminRoleIDs = append([]RoleID{}, d.Config.AdminRoleIDs...)
	out.Meta.LastMonthlyAnnounce = make(map[string]time.Time, len(d.Meta.LastMonthlyAnnounce))
	for k, v := range d.Meta.LastMonthlyAnnounce {
		out.Meta.LastMonthlyAnnounce[k] = v
	}
	for k, v := range d.Cooldowns {
		out.Cooldowns[k] = v
	}
	for i, s := range d.Submissions {
		out.Submissions[i] = s.clone()
	}
	for k, v := range d.Wins {
		out.Wins[k] = v
	}
	for k, v := range d.Extra {
		out.Extra[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

func (s Submission) clone() Submission {
	if s.DroppedAt != nil {
		t := *s.DroppedAt
		s.DroppedAt = &t
	}
	if s.ReviewedAt != nil {
		t := *s.ReviewedAt
		s.ReviewedAt = &t
	}
	if s.ModerationRef != nil {
		ref := *s.ModerationRef
		s.ModerationRef = &ref
	}
	return s
}

// Find возвращает указатель на сообщение внутри документа для изменения на месте.
func (d *Document) Find(id string) (*Submission, bool) {
	for i := range d.Submissions {
		if d.Submissions[i].ID == id {
			return &d.Submissions[i], true
		}
	}
	return nil, false
}
