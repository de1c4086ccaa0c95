package docstore

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/db"
)

// Kind выбирает реализацию бэкенда.
type Kind string

const (
	KindMemory   Kind = "memory"
	KindGitHub   Kind = "github"
	KindPostgres Kind = "postgres"
	KindS3       Kind = "s3"
	KindRedis    Kind = "redis"
	KindDynamo   Kind = "dynamodb"
)

// Options собирает параметры всех бэкендов; используется только выбранный.
type Options struct {
	Kind Kind

	GitHub GitHubConfig

	PGDSN        string
	DocumentName string

	S3 S3Config

	RedisAddr string
	RedisKey  string

	DynamoTable  string
	DynamoRegion string
}

// Open создаёт бэкенд и функцию освобождения ресурсов.
func Open(ctx context.Context, opts Options) (domain.DocumentBackend, func(), error) {
	noop := func() {}
	name := opts.DocumentName
	if name == "" {
		name = "glaze"
	}
	switch Kind(strings.ToLower(string(opts.Kind))) {
	case KindMemory, "":
		return NewMemory(), noop, nil
	case KindGitHub:
		backend, err := NewGitHub(opts.GitHub)
		if err != nil {
			return nil, noop, err
		}
		return backend, noop, nil
	case KindPostgres:
		pool, err := db.Connect(opts.PGDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("connect postgres: %w", err)
		}
		backend := NewPostgres(pool, name)
		if err := backend.Migrate(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		return backend, pool.Close, nil
	case KindS3:
		client, err := NewS3Client(ctx, opts.S3)
		if err != nil {
			return nil, noop, err
		}
		return NewS3(client, opts.S3.Bucket, opts.S3.Key), noop, nil
	case KindRedis:
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("ping redis: %w", err)
		}
		key := opts.RedisKey
		if key == "" {
			key = "glaze:document"
		}
		return NewRedis(client, key), func() { _ = client.Close() }, nil
	case KindDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.DynamoRegion))
		if err != nil {
			return nil, noop, fmt.Errorf("load aws config: %w", err)
		}
		return NewDynamo(dynamodb.NewFromConfig(awsCfg), opts.DynamoTable, name), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", opts.Kind)
	}
}
