package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation — некорректный ввод, исправляется пользователем и никогда не повторяется автоматически.
	ErrValidation   = errors.New("validation failed")
	ErrTextTooShort = fmt.Errorf("%w: text is too short", ErrValidation)
	ErrTextTooLong  = fmt.Errorf("%w: text is too long", ErrValidation)

	// ErrSelfTarget: отправитель пытается отправить сообщение самому себе.
	ErrSelfTarget = errors.New("sender and recipient are the same member")
	// ErrCooldown сопоставляется с *CooldownError через errors.Is.
	ErrCooldown = errors.New("sender is on cooldown")
	// ErrDisabled: функция выключена оператором.
	ErrDisabled = errors.New("feature is disabled")

	// ErrNotFound и ErrAlreadyProcessed описывают информационные исходы гонок состояния.
	ErrNotFound         = errors.New("submission not found")
	ErrAlreadyProcessed = errors.New("submission already processed")

	ErrPermission      = errors.New("actor lacks admin capability")
	ErrNothingChanged  = errors.New("nothing changed")
	ErrNoDropChannel   = errors.New("drop channel is not configured")
	ErrNoReportChannel = errors.New("report channel is not configured")

	// ErrConflict — коллизия оптимистичной блокировки, вызывающий может повторить операцию.
	ErrConflict = errors.New("document version conflict")
	// ErrStoreUnavailable: хранилище недоступно, повтор на усмотрение вызывающего.
	ErrStoreUnavailable = errors.New("document store unavailable")
	// ErrDocumentNotFound возвращается бэкендом, если документа ещё нет.
	ErrDocumentNotFound = errors.New("document not found")
)

// CooldownError сообщает, сколько ещё нужно подождать до следующей отправки.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: %s remaining", ErrCooldown, e.Remaining.Round(time.Minute))
}

// Is позволяет сравнивать с ErrCooldown.
func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldown
}
