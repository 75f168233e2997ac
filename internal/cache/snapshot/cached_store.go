package snapshot

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	memcache "livepage/internal/cache/memory"
	snapshotrepo "livepage/internal/gateway/repository/snapshot"
)

type Store = snapshotrepo.Store

type CacheConfig struct {
	DocTTL        time.Duration
	DocMaxEntries int
	DocMaxBytes   int

	URLTTL        time.Duration
	URLMaxEntries int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DocTTL:        5 * time.Minute,
		DocMaxEntries: 256,
		DocMaxBytes:   64 * 1024 * 1024,
		URLTTL:        5 * time.Minute,
		URLMaxEntries: 256,
	}
}

func (c CacheConfig) withDefaults() CacheConfig {
	def := DefaultCacheConfig()
	if c.DocTTL <= 0 {
		c.DocTTL = def.DocTTL
	}
	if c.DocMaxEntries <= 0 {
		c.DocMaxEntries = def.DocMaxEntries
	}
	if c.DocMaxBytes < 0 {
		c.DocMaxBytes = def.DocMaxBytes
	}
	if c.URLTTL <= 0 {
		c.URLTTL = def.URLTTL
	}
	if c.URLMaxEntries <= 0 {
		c.URLMaxEntries = def.URLMaxEntries
	}
	return c
}

type MetricsSnapshot struct {
	DocHits        uint64
	DocMisses      uint64
	URLHits        uint64
	URLMisses      uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
}

type metrics struct {
	urlHits        atomic.Uint64
	urlMisses      atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

// CachedStore is write-through: Put reaches the origin before the cache.
type CachedStore struct {
	origin Store

	docs    *memcache.LRUTTL[string, []byte]
	urls    *memcache.LRUTTL[string, string]
	metrics metrics
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	cfg = cfg.withDefaults()
	return &CachedStore{
		origin: origin,
		docs:   memcache.NewLRUTTL[string, []byte](cfg.DocMaxEntries, cfg.DocMaxBytes, cfg.DocTTL),
		urls:   memcache.NewLRUTTL[string, string](cfg.URLMaxEntries, 0, cfg.URLTTL),
	}
}

func (s *CachedStore) Put(ctx context.Context, sessionID string, data []byte) error {
	s.metrics.originWrites.Add(1)
	if err := s.origin.Put(ctx, sessionID, data); err != nil {
		s.metrics.originWriteErr.Add(1)
		return err
	}
	id := strings.TrimSpace(sessionID)
	copied := append([]byte(nil), data...)
	s.docs.Set(id, copied, len(copied))
	s.urls.Delete(id)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	id := strings.TrimSpace(sessionID)
	if raw, ok := s.docs.Get(id); ok {
		return append([]byte(nil), raw...), nil
	}
	s.metrics.originReads.Add(1)
	raw, err := s.origin.Get(ctx, id)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	copied := append([]byte(nil), raw...)
	s.docs.Set(id, copied, len(copied))
	return append([]byte(nil), copied...), nil
}

func (s *CachedStore) GetURL(ctx context.Context, sessionID string) (string, error) {
	id := strings.TrimSpace(sessionID)
	if cached, ok := s.urls.Get(id); ok {
		s.metrics.urlHits.Add(1)
		return cached, nil
	}
	s.metrics.urlMisses.Add(1)
	s.metrics.originReads.Add(1)
	url, err := s.origin.GetURL(ctx, id)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return "", err
	}
	if strings.TrimSpace(url) != "" {
		s.urls.Set(id, url, len(url))
	}
	return url, nil
}

// List always reads the origin.
func (s *CachedStore) List(ctx context.Context) ([]string, error) {
	s.metrics.originReads.Add(1)
	ids, err := s.origin.List(ctx)
	if err != nil {
		s.metrics.originReadErr.Add(1)
	}
	return ids, err
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{}
	}
	docs := s.docs.Stats()
	return MetricsSnapshot{
		DocHits:        docs.Hits,
		DocMisses:      docs.Misses,
		URLHits:        s.metrics.urlHits.Load(),
		URLMisses:      s.metrics.urlMisses.Load(),
		OriginReads:    s.metrics.originReads.Load(),
		OriginWrites:   s.metrics.originWrites.Load(),
		OriginReadErr:  s.metrics.originReadErr.Load(),
		OriginWriteErr: s.metrics.originWriteErr.Load(),
	}
}
