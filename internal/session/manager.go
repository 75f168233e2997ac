package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"livepage/internal/channel"
	"livepage/internal/gateway/repository/sessionlog"
	"livepage/internal/ui"
	"livepage/internal/wire"
)

// History receives every session lifecycle transition.
type History interface {
	Append(ctx context.Context, e sessionlog.Entry) error
}

// Archive stores the final tree of terminated sessions.
type Archive interface {
	Put(ctx context.Context, sessionID string, data []byte) error
}

type Config struct {
	MaxMessageBytes  int
	ReconnectTimeout time.Duration
	// MaxParked bounds how many disconnected sessions wait for their
	// surface; the oldest is expired when the bound is hit.
	MaxParked int
	Channel   channel.Config
}

func DefaultConfig() Config {
	return Config{
		MaxMessageBytes:  wire.DefaultLimit,
		ReconnectTimeout: 30 * time.Second,
		MaxParked:        1024,
		Channel:          channel.DefaultConfig(),
	}
}

type Option func(*Manager)

func WithHistory(h History) Option {
	return func(m *Manager) {
		m.history = h
	}
}

func WithArchive(a Archive) Option {
	return func(m *Manager) {
		m.archive = a
	}
}

// WithIDGenerator overrides how session ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// Manager owns every live session of the process.
type Manager struct {
	cfg        Config
	entry      EntryFunc
	enc        *wire.Encoder
	archiveEnc *wire.Encoder
	history    History
	archive    Archive
	newID      func() string

	mu       sync.RWMutex
	sessions map[string]*Session
	parked   *expirable.LRU[string, *Session]
}

func NewManager(entry EntryFunc, cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if cfg.ReconnectTimeout <= 0 {
		cfg.ReconnectTimeout = def.ReconnectTimeout
	}
	if cfg.MaxParked <= 0 {
		cfg.MaxParked = def.MaxParked
	}
	m := &Manager{
		cfg:        cfg,
		entry:      entry,
		enc:        wire.NewEncoder(cfg.MaxMessageBytes),
		archiveEnc: wire.NewEncoder(math.MaxInt),
		newID:      uuid.NewString,
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.parked = expirable.NewLRU[string, *Session](cfg.MaxParked, func(_ string, s *Session) {
		// Called with the LRU locked; expiry takes other locks.
		go m.expire(s)
	}, cfg.ReconnectTimeout)
	return m
}

func (m *Manager) Limit() int {
	return m.enc.Limit()
}

// Connect binds conn to a session. A non-empty resumeID reattaches the
// surface to its parked session; lastSeq is the last patch sequence the
// surface applied (negative if unknown). Otherwise, or when the session is
// gone, a new session is created and the entry callback started. On error
// conn was not taken over and is still owned by the caller.
func (m *Manager) Connect(ctx context.Context, conn channel.Conn, resumeID string, lastSeq int64) (*Session, bool, error) {
	if resumeID != "" {
		if s, ok := m.Get(resumeID); ok {
			err := s.resume(ctx, conn, lastSeq)
			if err == nil {
				m.parked.Remove(s.id)
				log.Printf("session %s: resumed", s.id)
				return s, true, nil
			}
			if !errors.Is(err, ErrClosed) {
				return nil, false, fmt.Errorf("resume session %s: %w", resumeID, err)
			}
		}
		log.Printf("session %s: unknown or expired, starting a new session", resumeID)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        m.newID(),
		mgr:       m,
		tree:      ui.NewTree(),
		enc:       m.enc,
		createdAt: time.Now(),
		ctx:       sctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateConnecting,
		handlers:  make(map[handlerKey]HandlerFunc),
	}
	s.ch = channel.New(m.cfg.Channel, func() { m.disconnected(s) })

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	m.record(ctx, s, StateConnecting, StateConnecting, "created")

	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()
	if err := s.ch.Attach(conn); err != nil {
		_ = m.terminate(ctx, s, StateClosed)
		close(s.done)
		return nil, false, fmt.Errorf("attach session %s: %w", s.id, err)
	}
	m.record(ctx, s, StateConnecting, StateActive, "")

	hello, err := s.enc.EncodeHello(s.id, false)
	if err == nil {
		err = s.ch.Post(ctx, hello)
	}
	if err != nil {
		log.Printf("session %s: hello not delivered: %v", s.id, err)
	}

	go s.run(m.entry)
	return s, false, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns a summary of every session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	slices.SortFunc(out, func(a, b Info) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

func (m *Manager) Close(ctx context.Context, id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrNotFound)
	}
	return m.terminate(ctx, s, StateClosed)
}

// Shutdown closes every session.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var errs []error
	for _, s := range sessions {
		if err := m.terminate(ctx, s, StateClosed); err != nil {
			errs = append(errs, err)
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) disconnected(s *Session) {
	if !s.markDisconnected() {
		return
	}
	ctx := context.Background()
	m.record(ctx, s, StateActive, StateDisconnected, "")
	m.record(ctx, s, StateDisconnected, StateReconnecting, "")
	log.Printf("session %s: surface disconnected, waiting %s for it to return", s.id, m.cfg.ReconnectTimeout)
	m.parked.Add(s.id, s)
}

func (m *Manager) expire(s *Session) {
	if s.State() != StateReconnecting {
		return
	}
	if err := m.terminate(context.Background(), s, StateExpired); err != nil {
		log.Printf("session %s: expire: %v", s.id, err)
	}
}

// terminate tears s down once; later calls are no-ops.
func (m *Manager) terminate(ctx context.Context, s *Session, final State) error {
	from, ok := s.finish(final)
	if !ok {
		return nil
	}
	s.cancel()
	_ = s.ch.Close()

	var snap []byte
	if m.archive != nil {
		s.flushMu.Lock()
		data, err := m.archiveEnc.EncodeSnapshot(s.seq, s.tree.Snapshot())
		s.flushMu.Unlock()
		if err != nil {
			log.Printf("session %s: encode final snapshot: %v", s.id, err)
		}
		snap = data
	}
	m.record(ctx, s, from, final, "")

	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
	m.parked.Remove(s.id)

	var err error
	if snap != nil {
		if putErr := m.archive.Put(ctx, s.id, snap); putErr != nil {
			err = fmt.Errorf("archive session %s: %w", s.id, putErr)
		}
	}
	s.tree.Destroy()
	log.Printf("session %s: %s", s.id, final)
	return err
}

func (m *Manager) record(ctx context.Context, s *Session, from, to State, detail string) {
	if m.history == nil {
		return
	}
	e := sessionlog.Entry{
		SessionID: s.id,
		State:     to.String(),
		Detail:    detail,
		Nodes:     s.tree.Len(),
		Flushes:   s.flushes.Load(),
		BytesSent: s.bytesSent.Load(),
		At:        time.Now().UTC(),
	}
	if from != to {
		e.From = from.String()
	}
	if err := m.history.Append(ctx, e); err != nil {
		log.Printf("session %s: record %s: %v", s.id, to, err)
	}
}
