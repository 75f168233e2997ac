package config

import (
	"os"
	"strings"
)

// applyLocal fills in the docker-compose services used for local runs: a
// bbolt history file and the minio container for snapshots.
func applyLocal(cfg *Config) {
	cfg.SessionLog.BoltPath = firstNonEmpty(cfg.SessionLog.BoltPath, "tmp/session_log.db")
	s := &cfg.Snapshot
	s.Endpoint = firstNonEmpty(strings.TrimSpace(os.Getenv("SNAPSHOT_MINIO_ENDPOINT")), s.Endpoint, "minio:9000")
	s.AccessKey = firstNonEmpty(s.AccessKey, strings.TrimSpace(os.Getenv("MINIO_ROOT_USER")), "livepage")
	s.SecretKey = firstNonEmpty(s.SecretKey, strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD")), "livepage123")
	s.UseSSL = false
	s.Enabled = true
}
