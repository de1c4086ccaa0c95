package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const unboundedLiteral = "unbounded"

// DropLimit ограничивает размер ежедневной публикации: либо конкретное число, либо без ограничений.
// Нулевое значение означает отсутствие ограничения.
type DropLimit struct {
	count int
}

// Unbounded возвращает лимит без ограничения.
func Unbounded() DropLimit {
	return DropLimit{}
}

// LimitOf возвращает лимит на n сообщений. n должен быть положительным.
func LimitOf(n int) DropLimit {
	if n <= 0 {
		return Unbounded()
	}
	return DropLimit{count: n}
}

// IsUnbounded сообщает, что лимит не задан.
func (l DropLimit) IsUnbounded() bool {
	return l.count <= 0
}

// Count возвращает числовой лимит; ok=false для неограниченного.
func (l DropLimit) Count() (int, bool) {
	if l.IsUnbounded() {
		return 0, false
	}
	return l.count, true
}

// Take возвращает, сколько из available элементов можно забрать.
func (l DropLimit) Take(available int) int {
	if l.IsUnbounded() || l.count > available {
		return available
	}
	return l.count
}

func (l DropLimit) String() string {
	if l.IsUnbounded() {
		return unboundedLiteral
	}
	return strconv.Itoa(l.count)
}

// ParseDropLimit разбирает ввод оператора: положительное число или "unbounded".
func ParseDropLimit(raw string) (DropLimit, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case unboundedLiteral, "all", "none":
		return Unbounded(), nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return DropLimit{}, fmt.Errorf("%w: drop limit must be a positive integer or %q", ErrValidation, unboundedLiteral)
	}
	return LimitOf(n), nil
}

// MarshalJSON пишет число или строку "unbounded".
func (l DropLimit) MarshalJSON() ([]byte, error) {
	if l.IsUnbounded() {
		return json.Marshal(unboundedLiteral)
	}
	return json.Marshal(l.count)
}

// UnmarshalJSON принимает число или строку.
func (l *DropLimit) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		parsed, err := ParseDropLimit(s)
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("drop limit: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("%w: drop limit must be positive, got %d", ErrValidation, n)
	}
	*l = LimitOf(n)
	return nil
}
