package sessionlog

import (
	"context"
	"log"
	"strings"
)

type Config struct {
	PostgresDSN string
	BoltPath    string
	MemoryMax   int
}

// Open picks the first configured backend: Postgres, then bbolt, then
// memory. A backend that fails to open falls through to the next one.
func Open(ctx context.Context, cfg Config) Store {
	if dsn := strings.TrimSpace(cfg.PostgresDSN); dsn != "" {
		s, err := NewPostgres(ctx, dsn)
		if err == nil {
			return s
		}
		log.Printf("session log: postgres unavailable, falling back: %v", err)
	}
	if path := strings.TrimSpace(cfg.BoltPath); path != "" {
		s, err := NewBoltStore(path)
		if err == nil {
			return s
		}
		log.Printf("session log: bolt store unavailable, falling back: %v", err)
	}
	return NewMemoryStore(cfg.MemoryMax)
}
