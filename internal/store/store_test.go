package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glaze-bot/internal/adapters/docstore"
	"glaze-bot/internal/domain"
)

type countingBackend struct {
	*docstore.Memory
	mu     sync.Mutex
	gets   int
	getErr error
}

func (b *countingBackend) Get(ctx context.Context) ([]byte, domain.Token, error) {
	b.mu.Lock()
	b.gets++
	err := b.getErr
	b.mu.Unlock()
	if err != nil {
		return nil, "", err
	}
	return b.Memory.Get(ctx)
}

func newBackend() *countingBackend {
	return &countingBackend{Memory: docstore.NewMemory()}
}

func TestLoadCreatesDefaultDocument(t *testing.T) {
	backend := newBackend()
	s := New(backend, zerolog.Nop())

	doc, token, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, domain.DefaultConfig(), doc.Config)
	assert.Equal(t, []string{createMessage}, backend.Messages())

	_, _, err = s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, backend.gets, "second load must be served from cache")
}

func TestLoadReturnsCopy(t *testing.T) {
	s := New(newBackend(), zerolog.Nop())
	doc, _, err := s.Load(context.Background())
	require.NoError(t, err)
	doc.Config.CooldownHours = 99

	again, _, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 24, again.Config.CooldownHours)
}

func TestSaveConflictKeepsCache(t *testing.T) {
	ctx := context.Background()
	backend := newBackend()
	s := New(backend, zerolog.Nop())

	doc, token, err := s.Load(ctx)
	require.NoError(t, err)

	// другой процесс меняет документ
	other := domain.DefaultDocument()
	other.Config.CooldownHours = 1
	body, err := json.Marshal(other)
	require.NoError(t, err)
	_, err = backend.PutIfMatch(ctx, body, token, "external edit")
	require.NoError(t, err)

	doc.Config.CooldownHours = 48
	_, err = s.Save(ctx, doc, token, "stale write")
	require.ErrorIs(t, err, domain.ErrConflict)

	cached, cachedToken, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, token, cachedToken)
	assert.Equal(t, 24, cached.Config.CooldownHours)

	s.Invalidate()
	fresh, _, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Config.CooldownHours)
}

func TestUpdateRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	backend := newBackend()
	s := New(backend, zerolog.Nop())
	_, token, err := s.Load(ctx)
	require.NoError(t, err)

	other := domain.DefaultDocument()
	other.Wins["7"] = 1
	body, err := json.Marshal(other)
	require.NoError(t, err)
	_, err = backend.PutIfMatch(ctx, body, token, "external edit")
	require.NoError(t, err)

	calls := 0
	doc, err := s.Update(ctx, "increment", func(doc *domain.Document) error {
		calls++
		doc.Wins["7"]++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, doc.Wins["7"])
}

func TestUpdateGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	backend := &alwaysConflict{Memory: docstore.NewMemory()}
	s := New(backend, zerolog.Nop(), WithMaxAttempts(2))
	_, _, err := s.Load(ctx)
	require.NoError(t, err)

	calls := 0
	_, err = s.Update(ctx, "doomed", func(doc *domain.Document) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 2, calls)
}

type alwaysConflict struct {
	*docstore.Memory
	created bool
}

func (b *alwaysConflict) PutIfMatch(ctx context.Context, body []byte, expected domain.Token, message string) (domain.Token, error) {
	if !b.created {
		b.created = true
		return b.Memory.PutIfMatch(ctx, body, expected, message)
	}
	return "", domain.ErrConflict
}

func TestUpdateNoChangesSkipsWrite(t *testing.T) {
	ctx := context.Background()
	backend := newBackend()
	s := New(backend, zerolog.Nop())

	_, err := s.Update(ctx, "noop", func(doc *domain.Document) error { return ErrNoChanges })
	require.NoError(t, err)
	assert.Equal(t, []string{createMessage}, backend.Messages())
}

func TestUpdatePropagatesMutationError(t *testing.T) {
	s := New(newBackend(), zerolog.Nop())
	boom := errors.New("boom")
	_, err := s.Update(context.Background(), "fail", func(doc *domain.Document) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestLoadBackendFailureIsUnavailable(t *testing.T) {
	backend := newBackend()
	backend.getErr = errors.New("connection refused")
	s := New(backend, zerolog.Nop())

	_, _, err := s.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	s := New(newBackend(), zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "increment", func(doc *domain.Document) error {
				doc.Wins["a"]++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, _, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, doc.Wins["a"])
}

func TestReloadAfterRestartReproducesDocument(t *testing.T) {
	ctx := context.Background()
	backend := newBackend()
	first := New(backend, zerolog.Nop())
	_, err := first.Update(ctx, "seed", func(doc *domain.Document) error {
		doc.Config.DropChannelID = "drops"
		doc.Meta.LastDailyDropDate = "2026-02-01"
		doc.Submissions = append(doc.Submissions, domain.Submission{ID: "s1", SenderID: "1", RecipientID: "2", Text: "restart safe", ApprovalStatus: domain.ApprovalApproved})
		return nil
	})
	require.NoError(t, err)

	restarted := New(backend, zerolog.Nop())
	doc, _, err := restarted.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelID("drops"), doc.Config.DropChannelID)
	assert.Equal(t, "2026-02-01", doc.Meta.LastDailyDropDate)
	require.Len(t, doc.Submissions, 1)
	assert.Equal(t, "restart safe", doc.Submissions[0].Text)
}

// lateCreator отвечает «нет документа», но перед этим документ успевает создать другой процесс.
type lateCreator struct {
	*docstore.Memory
	once sync.Once
}

func (b *lateCreator) Get(ctx context.Context) ([]byte, domain.Token, error) {
	var created bool
	b.once.Do(func() {
		doc := domain.DefaultDocument()
		doc.Config.CooldownHours = 6
		body, _ := json.Marshal(doc)
		_, err := b.Memory.PutIfMatch(ctx, body, "", "created elsewhere")
		created = err == nil
	})
	if created {
		return nil, "", domain.ErrDocumentNotFound
	}
	return b.Memory.Get(ctx)
}

func TestLoadRereadsDocumentCreatedConcurrently(t *testing.T) {
	backend := &lateCreator{Memory: docstore.NewMemory()}
	s := New(backend, zerolog.Nop())

	doc, token, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 6, doc.Config.CooldownHours, "the other process's document wins")
	assert.Equal(t, []string{"created elsewhere"}, backend.Messages())
}
