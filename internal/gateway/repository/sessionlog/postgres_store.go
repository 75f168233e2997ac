package sessionlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const tableSessionLog = "session_log"

var logColumns = []string{"session_id", "from_state", "state", "detail", "nodes", "flushes", "bytes_sent", "at"}

// PostgresStore persists history in Postgres. Recent reads are served from
// an LRU that is invalidated on append.
type PostgresStore struct {
	db *sql.DB

	schemaMu    sync.Mutex
	schemaReady bool
	execSchema  func(ctx context.Context) error

	recent *lru.Cache[string, []Entry]
}

func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	recent, err := lru.New[string, []Entry](256)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &PostgresStore{db: db, recent: recent}
	s.execSchema = func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, schemaDDL)
		return err
	}
	return s, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS session_log (
  id BIGSERIAL PRIMARY KEY,
  session_id TEXT NOT NULL,
  from_state TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL,
  detail TEXT NOT NULL DEFAULT '',
  nodes INTEGER NOT NULL DEFAULT 0,
  flushes BIGINT NOT NULL DEFAULT 0,
  bytes_sent BIGINT NOT NULL DEFAULT 0,
  at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_session_log_session_id ON session_log (session_id, id);
`

// ensureSchema creates the table on first use. A failed attempt is retried
// by the next call.
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	if err := s.execSchema(ctx); err != nil {
		return fmt.Errorf("ensure session_log schema: %w", err)
	}
	s.schemaReady = true
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	e.SessionID = strings.TrimSpace(e.SessionID)
	if e.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	query, args := insertQuery(e)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	s.recent.Remove(e.SessionID)
	s.recent.Remove("")
	return nil
}

func (s *PostgresStore) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	sessionID = strings.TrimSpace(sessionID)
	limit = normalizeLimit(limit)
	if cached, ok := s.recent.Get(sessionID); ok {
		return append([]Entry(nil), cached[:min(limit, len(cached))]...), nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	query, args := listQuery(sessionID, maxCachedEntries)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0, 32)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SessionID, &e.From, &e.State, &e.Detail, &e.Nodes, &e.Flushes, &e.BytesSent, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.recent.Add(sessionID, out)
	return append([]Entry(nil), out[:min(limit, len(out))]...), nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// maxCachedEntries is how many rows a cached read fetches. It is not below
// the largest list limit.
const maxCachedEntries = 1000

func insertQuery(e Entry) (string, []any) {
	return entsql.Dialect(dialect.Postgres).
		Insert(tableSessionLog).
		Columns(logColumns...).
		Values(strings.TrimSpace(e.SessionID), e.From, e.State, e.Detail, e.Nodes, e.Flushes, e.BytesSent, e.At).
		Query()
}

func listQuery(sessionID string, limit int) (string, []any) {
	sel := entsql.Dialect(dialect.Postgres).
		Select(logColumns...).
		From(entsql.Table(tableSessionLog))
	if sessionID != "" {
		sel = sel.Where(entsql.EQ("session_id", sessionID))
	}
	return sel.OrderBy(entsql.Desc("id")).Limit(limit).Query()
}
