package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"glaze-bot/internal/domain"
	"glaze-bot/internal/infra/metrics"
)

// S3API описывает методы клиента S3, которые нужны бэкенду.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 хранит документ как объект; токен — ETag, запись условная (If-Match / If-None-Match).
type S3 struct {
	client S3API
	bucket string
	key    string
}

var _ domain.DocumentBackend = (*S3)(nil)

// S3Config описывает объект документа.
type S3Config struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string
}

// NewS3Client создаёт клиент по стандартной цепочке AWS-кредов.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3 создаёт бэкенд.
func NewS3(client S3API, bucket, key string) *S3 {
	return &S3{client: client, bucket: bucket, key: key}
}

// Get реализует domain.DocumentBackend.
func (b *S3) Get(ctx context.Context) ([]byte, domain.Token, error) {
	start := time.Now()
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if isS3NotFound(err) {
		metrics.ObserveNetworkRequest("s3", "get", b.key, start, nil)
		return nil, "", domain.ErrDocumentNotFound
	}
	metrics.ObserveNetworkRequest("s3", "get", b.key, start, err)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read object: %v", domain.ErrStoreUnavailable, err)
	}
	return body, domain.Token(aws.ToString(out.ETag)), nil
}

// PutIfMatch реализует domain.DocumentBackend.
func (b *S3) PutIfMatch(ctx context.Context, body []byte, expected domain.Token, message string) (domain.Token, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata:    map[string]string{"change": message},
	}
	if expected == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(string(expected))
	}
	start := time.Now()
	out, err := b.client.PutObject(ctx, in)
	if isS3Conflict(err) {
		metrics.ObserveNetworkRequest("s3", "put", b.key, start, nil)
		return "", domain.ErrConflict
	}
	metrics.ObserveNetworkRequest("s3", "put", b.key, start, err)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return domain.Token(aws.ToString(out.ETag)), nil
}

func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

func isS3Conflict(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		return code == http.StatusPreconditionFailed || code == http.StatusConflict
	}
	return false
}
