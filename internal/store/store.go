// Package store владеет кэшированной копией документа и сериализует доступ к бэкенду.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
)

// ErrNoChanges возвращается из функции Update, когда записывать нечего.
var ErrNoChanges = errors.New("no changes")

const (
	defaultMaxAttempts = 3
	createMessage      = "Create glaze_data.json"
)

// Store реализует domain.DocumentStore поверх domain.DocumentBackend.
type Store struct {
	backend     domain.DocumentBackend
	log         zerolog.Logger
	maxAttempts int

	// ioMu держится на время одного обращения к бэкенду.
	ioMu   sync.Mutex
	cached *domain.Document
	token  domain.Token

	// opMu сериализует полные циклы Update внутри процесса.
	opMu sync.Mutex
}

var _ domain.DocumentStore = (*Store)(nil)

// Option настраивает Store.
type Option func(*Store)

// WithMaxAttempts задаёт число попыток Update при конфликте версий.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New создаёт хранилище.
func New(backend domain.DocumentBackend, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		log:         logger.With().Str("component", "store").Logger(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load возвращает копию документа и токен его версии. При отсутствии документа
// создаёт документ по умолчанию.
func (s *Store) Load(ctx context.Context) (*domain.Document, domain.Token, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if s.cached != nil {
		return s.cached.Clone(), s.token, nil
	}
	doc, token, err := s.fetchLocked(ctx)
	if errors.Is(err, domain.ErrConflict) {
		// документ одновременно создал другой процесс, читаем его версию
		s.log.Info().Msg("документ создан другим процессом, перечитываем")
		doc, token, err = s.fetchLocked(ctx)
	}
	return doc, token, err
}

func (s *Store) fetchLocked(ctx context.Context) (*domain.Document, domain.Token, error) {
	body, token, err := s.backend.Get(ctx)
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		s.log.Info().Msg("документ не найден, создаём документ по умолчанию")
		doc := domain.DefaultDocument()
		created, err := s.saveLocked(ctx, doc, "", createMessage)
		if err != nil {
			return nil, "", err
		}
		return doc.Clone(), created, nil
	case err != nil:
		return nil, "", unavailable("load", err)
	}

	var doc domain.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, "", fmt.Errorf("%w: decode document: %v", domain.ErrStoreUnavailable, err)
	}
	s.cached = &doc
	s.token = token
	return doc.Clone(), token, nil
}

// Save записывает документ, если версия в бэкенде совпадает с token.
// При конфликте кэш не меняется.
func (s *Store) Save(ctx context.Context, doc *domain.Document, token domain.Token, message string) (domain.Token, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	return s.saveLocked(ctx, doc, token, message)
}

func (s *Store) saveLocked(ctx context.Context, doc *domain.Document, token domain.Token, message string) (domain.Token, error) {
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	next, err := s.backend.PutIfMatch(ctx, body, token, message)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.StoreConflicts.Inc()
			return "", fmt.Errorf("save %q: %w", message, err)
		}
		return "", unavailable("save", err)
	}
	s.cached = doc.Clone()
	s.token = next
	s.log.Debug().Str("message", message).Str("token", string(next)).Msg("документ сохранён")
	return next, nil
}

// Invalidate сбрасывает кэш; следующий Load прочитает документ из бэкенда.
func (s *Store) Invalidate() {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	s.cached = nil
	s.token = ""
}

// Update выполняет чтение-изменение-запись. Внутри процесса циклы сериализуются,
// конфликты с другими процессами повторяются с перечитыванием документа.
// fn должна быть готова к повторному вызову на свежей копии.
func (s *Store) Update(ctx context.Context, message string, fn func(doc *domain.Document) error) (*domain.Document, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		doc, token, err := s.Load(ctx)
		if err != nil {
			// документ мог одновременно создать другой процесс
			if errors.Is(err, domain.ErrConflict) {
				lastErr = err
				s.Invalidate()
				continue
			}
			return nil, err
		}
		if err := fn(doc); err != nil {
			if errors.Is(err, ErrNoChanges) {
				return doc, nil
			}
			return nil, err
		}
		if _, err := s.Save(ctx, doc, token, message); err != nil {
			if !errors.Is(err, domain.ErrConflict) {
				return nil, err
			}
			lastErr = err
			s.log.Warn().Int("attempt", attempt).Str("message", message).Msg("конфликт версий, перечитываем документ")
			s.Invalidate()
			continue
		}
		return doc, nil
	}
	return nil, lastErr
}

func unavailable(op string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
}
