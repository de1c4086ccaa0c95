package docstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glaze-bot/internal/domain"
)

type fakeS3 struct {
	mu   sync.Mutex
	body []byte
	etag string
	meta map[string]string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.etag == "" {
		return nil, &s3types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body)), ETag: aws.String(f.etag)}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	precondition := &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	if aws.ToString(in.IfNoneMatch) == "*" && f.etag != "" {
		return nil, precondition
	}
	if in.IfMatch != nil && aws.ToString(in.IfMatch) != f.etag {
		return nil, precondition
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum(body)
	f.body = body
	f.etag = `"` + hex.EncodeToString(sum[:]) + `"`
	f.meta = in.Metadata
	return &s3.PutObjectOutput{ETag: aws.String(f.etag)}, nil
}

func TestS3ConditionalWrites(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{}
	backend := NewS3(fake, "glaze", "glaze_data.json")

	_, _, err := backend.Get(ctx)
	require.ErrorIs(t, err, domain.ErrDocumentNotFound)

	etag, err := backend.PutIfMatch(ctx, []byte(`{}`), "", "Create glaze_data.json")
	require.NoError(t, err)
	assert.Equal(t, "Create glaze_data.json", fake.meta["change"])

	_, err = backend.PutIfMatch(ctx, []byte(`{"x":1}`), "", "race")
	require.ErrorIs(t, err, domain.ErrConflict)

	next, err := backend.PutIfMatch(ctx, []byte(`{"x":1}`), etag, "update")
	require.NoError(t, err)

	_, err = backend.PutIfMatch(ctx, []byte(`{"x":2}`), etag, "stale")
	require.ErrorIs(t, err, domain.ErrConflict)

	body, token, err := backend.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, token)
	assert.JSONEq(t, `{"x":1}`, string(body))
}
