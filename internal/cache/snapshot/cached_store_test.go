package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snapshotrepo "livepage/internal/gateway/repository/snapshot"
)

type countingOrigin struct {
	*snapshotrepo.MemoryStore

	mu       sync.Mutex
	gets     int
	urlCalls int
	failPut  bool
}

func (o *countingOrigin) Put(ctx context.Context, id string, data []byte) error {
	if o.failPut {
		return errors.New("put failed")
	}
	return o.MemoryStore.Put(ctx, id, data)
}

func (o *countingOrigin) Get(ctx context.Context, id string) ([]byte, error) {
	o.mu.Lock()
	o.gets++
	o.mu.Unlock()
	return o.MemoryStore.Get(ctx, id)
}

func (o *countingOrigin) GetURL(context.Context, string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urlCalls++
	return "https://example.invalid/signed", nil
}

func TestCachedStoreServesWritesFromCache(t *testing.T) {
	ctx := context.Background()
	origin := &countingOrigin{MemoryStore: snapshotrepo.NewMemoryStore()}
	s := NewCachedStore(origin, CacheConfig{})

	require.NoError(t, s.Put(ctx, "s1", []byte(`{"seq":1}`)))
	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, `{"seq":1}`, string(got))
	assert.Zero(t, origin.gets)

	got[0] = 'x'
	again, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, `{"seq":1}`, string(again))

	m := s.Metrics()
	assert.Equal(t, uint64(2), m.DocHits)
	assert.Equal(t, uint64(1), m.OriginWrites)
}

func TestCachedStoreFillsOnMiss(t *testing.T) {
	ctx := context.Background()
	origin := &countingOrigin{MemoryStore: snapshotrepo.NewMemoryStore()}
	require.NoError(t, origin.MemoryStore.Put(ctx, "s1", []byte(`{}`)))
	s := NewCachedStore(origin, CacheConfig{})

	for i := 0; i < 3; i++ {
		_, err := s.Get(ctx, "s1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, origin.gets)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, snapshotrepo.ErrNotFound)
	assert.Equal(t, uint64(1), s.Metrics().OriginReadErr)
}

func TestCachedStoreURLs(t *testing.T) {
	ctx := context.Background()
	origin := &countingOrigin{MemoryStore: snapshotrepo.NewMemoryStore()}
	s := NewCachedStore(origin, CacheConfig{})

	for i := 0; i < 2; i++ {
		url, err := s.GetURL(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "https://example.invalid/signed", url)
	}
	assert.Equal(t, 1, origin.urlCalls)

	require.NoError(t, s.Put(ctx, "s1", []byte(`{}`)))
	_, err := s.GetURL(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, origin.urlCalls)
}

func TestCachedStorePutFailureLeavesCacheCold(t *testing.T) {
	ctx := context.Background()
	origin := &countingOrigin{MemoryStore: snapshotrepo.NewMemoryStore(), failPut: true}
	s := NewCachedStore(origin, CacheConfig{})

	assert.Error(t, s.Put(ctx, "s1", []byte(`{}`)))
	_, err := s.Get(ctx, "s1")
	assert.ErrorIs(t, err, snapshotrepo.ErrNotFound)
	assert.Equal(t, uint64(1), s.Metrics().OriginWriteErr)
}
