package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc := []byte(`{"type":"snapshot","seq":3}`)
	require.NoError(t, s.Put(ctx, "b", doc))
	require.NoError(t, s.Put(ctx, "a", []byte(`{}`)))
	doc[0] = 'x'

	got, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"snapshot","seq":3}`, string(got))

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	url, err := s.GetURL(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestObjectKey(t *testing.T) {
	key, err := objectKey(" 8f1c ")
	require.NoError(t, err)
	assert.Equal(t, "snapshots/8f1c.json", key)
	assert.Equal(t, "8f1c", sessionOf(key))

	_, err = objectKey("")
	assert.Error(t, err)
	_, err = objectKey("../etc")
	assert.Error(t, err)
}

func TestS3ConfigValidation(t *testing.T) {
	assert.False(t, S3Config{Endpoint: "localhost:9000"}.Enabled())
	assert.True(t, S3Config{Endpoint: "localhost:9000", Bucket: "snaps"}.Enabled())

	_, err := NewS3Store(S3Config{Endpoint: "localhost:9000", Bucket: "snaps"})
	assert.Error(t, err)
	s, err := NewS3Store(S3Config{Endpoint: "localhost:9000", Bucket: "snaps", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", s.region)
}

func TestS3BucketIsRetriedAfterFailure(t *testing.T) {
	calls := 0
	s := &S3Store{initBucket: func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return context.DeadlineExceeded
		}
		return nil
	}}
	ctx := context.Background()

	assert.ErrorIs(t, s.ensureBucket(ctx), context.DeadlineExceeded)
	require.NoError(t, s.ensureBucket(ctx))
	require.NoError(t, s.ensureBucket(ctx))
	assert.Equal(t, 2, calls)
}
