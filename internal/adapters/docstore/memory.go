// Package docstore содержит реализации domain.DocumentBackend для разных хранилищ.
package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"glaze-bot/internal/domain"
)

// Memory хранит документ в памяти процесса; токеном служит хеш содержимого.
type Memory struct {
	mu       sync.Mutex
	body     []byte
	token    domain.Token
	messages []string
}

var _ domain.DocumentBackend = (*Memory)(nil)

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{}
}

// Get реализует domain.DocumentBackend.
func (m *Memory) Get(ctx context.Context) ([]byte, domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.body == nil {
		return nil, "", domain.ErrDocumentNotFound
	}
	return append([]byte(nil), m.body...), m.token, nil
}

// PutIfMatch реализует domain.DocumentBackend.
func (m *Memory) PutIfMatch(ctx context.Context, body []byte, expected domain.Token, message string) (domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expected != m.token {
		return "", domain.ErrConflict
	}
	m.body = append([]byte(nil), body...)
	sum := sha256.Sum256(body)
	m.token = domain.Token(hex.EncodeToString(sum[:]))
	m.messages = append(m.messages, message)
	return m.token, nil
}

// Messages возвращает описания всех успешных записей по порядку.
func (m *Memory) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}
