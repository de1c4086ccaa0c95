package docstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
)

//go:embed migrations/*.sql
var migrations embed.FS

// gooseUpContext подменяется в тестах.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// rowQuerier выполняет запрос, возвращающий одну строку; *pgxpool.Pool ему удовлетворяет.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres хранит документ в строке таблицы glaze_documents; токен — номер версии.
type Postgres struct {
	pool *pgxpool.Pool
	db   rowQuerier
	name string
}

var _ domain.DocumentBackend = (*Postgres)(nil)

// NewPostgres создаёт бэкенд для документа с именем name.
func NewPostgres(pool *pgxpool.Pool, name string) *Postgres {
	return &Postgres{pool: pool, db: pool, name: name}
}

// Migrate применяет встроенные миграции.
func (p *Postgres) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Get реализует domain.DocumentBackend.
func (p *Postgres) Get(ctx context.Context) ([]byte, domain.Token, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		body    []byte
		version int64
	)
	start := time.Now()
	err := p.db.QueryRow(ctx, `SELECT body, version FROM glaze_documents WHERE name = $1`, p.name).Scan(&body, &version)
	metrics.ObserveNetworkRequest("postgres", "document_get", "glaze_documents", start, ignoreNoRows(err))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return body, versionToken(version), nil
}

// PutIfMatch реализует domain.DocumentBackend.
func (p *Postgres) PutIfMatch(ctx context.Context, body []byte, expected domain.Token, message string) (domain.Token, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		next int64
		err  error
	)
	start := time.Now()
	if expected == "" {
		err = p.db.QueryRow(ctx, `
INSERT INTO glaze_documents (name, body, version, message)
VALUES ($1, $2, 1, $3)
ON CONFLICT (name) DO NOTHING
RETURNING version
`, p.name, body, message).Scan(&next)
	} else {
		current, parseErr := strconv.ParseInt(string(expected), 10, 64)
		if parseErr != nil {
			return "", fmt.Errorf("%w: unexpected token %q", domain.ErrConflict, expected)
		}
		err = p.db.QueryRow(ctx, `
UPDATE glaze_documents
SET body = $2, version = version + 1, message = $4, updated_at = now()
WHERE name = $1 AND version = $3
RETURNING version
`, p.name, body, current, message).Scan(&next)
	}
	metrics.ObserveNetworkRequest("postgres", "document_put", "glaze_documents", start, ignoreNoRows(err))
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrConflict
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return versionToken(next), nil
}

func versionToken(v int64) domain.Token {
	return domain.Token(strconv.FormatInt(v, 10))
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
