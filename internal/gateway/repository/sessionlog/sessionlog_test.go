package sessionlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(base time.Time) []Entry {
	return []Entry{
		{SessionID: "a", State: "connecting", At: base},
		{SessionID: "b", State: "connecting", At: base.Add(time.Second)},
		{SessionID: "a", From: "connecting", State: "active", Nodes: 3, At: base.Add(2 * time.Second)},
		{SessionID: "a", From: "active", State: "closed", Flushes: 2, BytesSent: 120, At: base.Add(3 * time.Second)},
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, e := range entries(base) {
		require.NoError(t, s.Append(ctx, e))
	}
	assert.Error(t, s.Append(ctx, Entry{SessionID: "  ", State: "active"}))

	got, err := s.List(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"closed", "active", "connecting"}, []string{got[0].State, got[1].State, got[2].State})
	assert.Equal(t, int64(120), got[0].BytesSent)
	assert.Equal(t, 3, got[1].Nodes)
	assert.True(t, got[0].At.Equal(base.Add(3*time.Second)))

	got, err = s.List(ctx, "a", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "closed", got[0].State)

	all, err := s.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "b", all[2].SessionID)

	none, err := s.List(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(0))
}

func TestMemoryStoreDropsOldest(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, Entry{SessionID: "s", State: fmt.Sprint(i)}))
	}
	got, err := s.List(ctx, "s", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "4", got[0].State)
	assert.Equal(t, "2", got[2].State)
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "log.db")
	s, err := NewBoltStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	reopened, err := NewBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.List(context.Background(), "b", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestBoltStoreKeepsSessionsApart(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, Entry{SessionID: "ab", State: "active"}))
	require.NoError(t, s.Append(ctx, Entry{SessionID: "a", State: "closed"}))

	got, err := s.List(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "closed", got[0].State)
}

func TestPostgresQueries(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	query, args := insertQuery(Entry{SessionID: " s1 ", State: "active", From: "connecting", Nodes: 4, At: at})
	assert.True(t, strings.HasPrefix(query, `INSERT INTO "session_log"`), query)
	assert.Contains(t, query, "$8")
	assert.Equal(t, []any{"s1", "connecting", "active", "", 4, int64(0), int64(0), at}, args)

	query, args = listQuery("s1", 25)
	assert.Contains(t, query, `FROM "session_log"`)
	assert.Contains(t, query, "$1")
	assert.Contains(t, query, "LIMIT 25")
	assert.Equal(t, []any{"s1"}, args)

	query, args = listQuery("", 25)
	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, args)
}

func TestPostgresStore(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("SESSION_LOG_TEST_PG_DSN"))
	if dsn == "" {
		t.Skip("SESSION_LOG_TEST_PG_DSN not set")
	}
	s, err := NewPostgres(context.Background(), dsn)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.db.Exec(`DROP TABLE IF EXISTS session_log`)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestOpenFallsBackToMemory(t *testing.T) {
	s := Open(context.Background(), Config{BoltPath: "   "})
	_, ok := s.(*MemoryStore)
	assert.True(t, ok)

	s = Open(context.Background(), Config{BoltPath: filepath.Join(t.TempDir(), "log.db")})
	defer s.Close()
	_, ok = s.(*BoltStore)
	assert.True(t, ok)
}

func TestPostgresSchemaIsRetriedAfterFailure(t *testing.T) {
	calls := 0
	s := &PostgresStore{execSchema: func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return context.DeadlineExceeded
		}
		return nil
	}}
	ctx := context.Background()

	assert.ErrorIs(t, s.ensureSchema(ctx), context.DeadlineExceeded)
	require.NoError(t, s.ensureSchema(ctx))
	require.NoError(t, s.ensureSchema(ctx))
	assert.Equal(t, 2, calls)
}
