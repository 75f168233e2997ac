package app

import (
	"context"
	"fmt"
	"log"

	snapshotcache "livepage/internal/cache/snapshot"
	"livepage/internal/gateway/config"
	"livepage/internal/gateway/repository/sessionlog"
	snapshotrepo "livepage/internal/gateway/repository/snapshot"
)

type gatewayStores struct {
	history   sessionlog.Store
	snapshots snapshotrepo.Store
}

func initStores(ctx context.Context, cfg *config.Config) (*gatewayStores, error) {
	history := sessionlog.Open(ctx, sessionlog.Config{
		PostgresDSN: cfg.SessionLog.PostgresDSN,
		BoltPath:    cfg.SessionLog.BoltPath,
	})
	log.Printf("session log: %T", history)

	snapshots, err := chooseSnapshotStore(cfg, snapshotrepo.NewMemoryStore(), "in-memory", newSnapshotS3StoreFactory(cfg))
	if err != nil {
		_ = history.Close()
		return nil, err
	}
	return &gatewayStores{history: history, snapshots: snapshots}, nil
}

func (s *gatewayStores) Close() error {
	return s.history.Close()
}

func newSnapshotS3StoreFactory(cfg *config.Config) func() (snapshotrepo.Store, error) {
	return func() (snapshotrepo.Store, error) {
		s3Cfg := snapshotrepo.S3Config{
			Endpoint:  cfg.Snapshot.Endpoint,
			Region:    cfg.Snapshot.Region,
			AccessKey: cfg.Snapshot.AccessKey,
			SecretKey: cfg.Snapshot.SecretKey,
			Bucket:    cfg.Snapshot.Bucket,
			UseSSL:    cfg.Snapshot.UseSSL,
		}
		s3Store, err := snapshotrepo.NewS3Store(s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize snapshot s3 store: %w", err)
		}
		log.Printf("snapshot store: s3 bucket=%s endpoint=%s", s3Cfg.Bucket, s3Cfg.Endpoint)
		return s3Store, nil
	}
}

func chooseSnapshotStore(
	cfg *config.Config,
	fallback snapshotrepo.Store,
	fallbackLabel string,
	s3Factory func() (snapshotrepo.Store, error),
) (snapshotrepo.Store, error) {
	var origin snapshotrepo.Store
	s3Cfg := snapshotrepo.S3Config{Endpoint: cfg.Snapshot.Endpoint, Bucket: cfg.Snapshot.Bucket}
	if cfg.Snapshot.Enabled && s3Cfg.Enabled() {
		s3Store, err := s3Factory()
		if err != nil {
			return nil, err
		}
		origin = s3Store
	} else {
		if cfg.Snapshot.Enabled {
			log.Printf("snapshot store: using %s fallback (s3 config incomplete)", fallbackLabel)
		}
		origin = fallback
	}
	if origin == nil {
		return nil, fmt.Errorf("snapshot origin store is nil")
	}
	return snapshotcache.NewCachedStore(origin, snapshotcache.DefaultCacheConfig()), nil
}
