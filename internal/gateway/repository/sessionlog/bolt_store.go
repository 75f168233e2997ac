package sessionlog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSessionLog = []byte("session_log")

// BoltStore keeps the history in a local bbolt file. Keys are
// "<session id>/<sequence>" so a session's entries are contiguous.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("session log db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessionLog)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Append(_ context.Context, e Entry) error {
	e.SessionID = strings.TrimSpace(e.SessionID)
	if e.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessionLog)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(entryKey(e.SessionID, seq), raw)
	})
}

func (s *BoltStore) List(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	sessionID = strings.TrimSpace(sessionID)
	limit = normalizeLimit(limit)
	var out []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSessionLog).Cursor()
		decode := func(v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		}
		if sessionID == "" {
			for k, v := c.First(); k != nil; k, v = c.Next() {
				if err := decode(v); err != nil {
					return err
				}
			}
			return nil
		}
		prefix := []byte(sessionID + "/")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := decode(v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Entries of one session are in append order; across sessions only the
	// timestamp orders them.
	slices.Reverse(out)
	if sessionID == "" {
		sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func entryKey(sessionID string, seq uint64) []byte {
	key := make([]byte, 0, len(sessionID)+1+8)
	key = append(key, sessionID...)
	key = append(key, '/')
	return binary.BigEndian.AppendUint64(key, seq)
}
