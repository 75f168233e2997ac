package sessionlog

import (
	"context"
	"time"
)

// Entry records one lifecycle transition of a session.
type Entry struct {
	SessionID string    `json:"session_id"`
	From      string    `json:"from,omitempty"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	Nodes     int       `json:"nodes"`
	Flushes   int64     `json:"flushes"`
	BytesSent int64     `json:"bytes_sent"`
	At        time.Time `json:"at"`
}

// Store persists session history.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// List returns entries newest first. An empty sessionID lists across
	// all sessions.
	List(ctx context.Context, sessionID string, limit int) ([]Entry, error)
	Close() error
}

const defaultListLimit = 100

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultListLimit
	}
	return limit
}
