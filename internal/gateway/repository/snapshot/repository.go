package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store persists encoded snapshot documents by session id.
type Store interface {
	Put(ctx context.Context, sessionID string, data []byte) error
	Get(ctx context.Context, sessionID string) ([]byte, error)
	// GetURL returns a time-limited download link, or "" when the backend
	// cannot serve one.
	GetURL(ctx context.Context, sessionID string) (string, error)
	List(ctx context.Context) ([]string, error)
}

var ErrNotFound = errors.New("snapshot not found")

const keyPrefix = "snapshots/"

func objectKey(sessionID string) (string, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return "", fmt.Errorf("session_id is required")
	}
	if strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("invalid session_id %q", id)
	}
	return keyPrefix + id + ".json", nil
}

func sessionOf(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), ".json")
}
