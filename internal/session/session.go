package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"livepage/internal/channel"
	"livepage/internal/ui"
	"livepage/internal/wire"
)

var (
	ErrClosed   = errors.New("session closed")
	ErrNotFound = errors.New("session not found")
)

// EntryFunc builds the initial UI of a new session. It runs once, on the
// session's worker, before any input event is dispatched.
type EntryFunc func(ctx context.Context, s *Session) error

// HandlerFunc handles one input event. Handlers of a session never run
// concurrently with each other.
type HandlerFunc func(ctx context.Context, s *Session, ev ui.Event) error

type handlerKey struct {
	node ui.NodeID
	kind string
}

// Session is one connected display surface and its control tree.
type Session struct {
	id        string
	mgr       *Manager
	tree      *ui.Tree
	ch        *channel.Channel
	enc       *wire.Encoder
	createdAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// flushMu orders drains with sends and guards seq and needResync.
	flushMu    sync.Mutex
	seq        uint64
	needResync bool

	mu       sync.Mutex
	state    State
	handlers map[handlerKey]HandlerFunc

	flushes   atomic.Int64
	bytesSent atomic.Int64
}

func (s *Session) ID() string { return s.id }

// Tree returns the control tree. Mutations may happen from any goroutine;
// they become visible to the surface on the next Flush.
func (s *Session) Tree() *ui.Tree { return s.tree }

func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// On binds handler to events of kind on node id, replacing any previous
// binding.
func (s *Session) On(id ui.NodeID, kind string, handler HandlerFunc) error {
	if handler == nil {
		return fmt.Errorf("bind %q on %d: handler is nil", kind, id)
	}
	if s.State().Terminal() {
		return ErrClosed
	}
	if _, err := s.tree.Get(id); err != nil {
		return fmt.Errorf("bind %q: %w", kind, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return ErrClosed
	}
	s.handlers[handlerKey{node: id, kind: kind}] = handler
	return nil
}

func (s *Session) Off(id ui.NodeID, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, handlerKey{node: id, kind: kind})
}

func (s *Session) handler(id ui.NodeID, kind string) HandlerFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[handlerKey{node: id, kind: kind}]
}

// Flush drains pending mutations, encodes them and sends them to the
// surface. While the surface is reconnecting the mutations stay pending and
// are delivered on resume. wire.ErrMessageTooLarge is returned as is:
// nothing is sent and the changes stay pending, so the caller can shrink
// them and flush again.
func (s *Session) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	switch st := s.State(); {
	case st.Terminal():
		return ErrClosed
	case st == StateReconnecting:
		return nil
	}
	return s.flushLocked(ctx)
}

func (s *Session) flushLocked(ctx context.Context) error {
	var data []byte
	if s.needResync {
		_, released, err := s.tree.ResyncIf(func(root ui.AddedNode) error {
			msg, err := s.enc.EncodeSnapshot(s.seq+1, root)
			data = msg
			return err
		})
		if err != nil {
			return fmt.Errorf("flush session %s: %w", s.id, err)
		}
		s.release(released)
		s.needResync = false
	} else {
		cs, err := s.tree.DrainIf(func(cs ui.ChangeSet) error {
			if cs.Empty() {
				return nil
			}
			msg, err := s.enc.Encode(s.seq+1, cs)
			data = msg
			return err
		})
		if err != nil {
			return fmt.Errorf("flush session %s: %w", s.id, err)
		}
		s.release(cs.Released)
		if data == nil {
			return nil
		}
	}
	s.seq++
	return s.sendLocked(ctx, data)
}

func (s *Session) sendLocked(ctx context.Context, data []byte) error {
	err := s.ch.Send(ctx, data)
	switch {
	case err == nil:
		s.flushes.Add(1)
		s.bytesSent.Add(int64(len(data)))
		return nil
	case errors.Is(err, channel.ErrDisconnected):
		return nil
	case errors.Is(err, channel.ErrClosed):
		return ErrClosed
	default:
		return err
	}
}

func (s *Session) Close(ctx context.Context) error {
	return s.mgr.terminate(ctx, s, StateClosed)
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) release(ids []ui.NodeID) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.handlers {
		for _, id := range ids {
			if key.node == id {
				delete(s.handlers, key)
				break
			}
		}
	}
}

// resume attaches conn to a parked session. lastSeq is the last patch the
// surface applied, or negative when unknown. Once conn is attached it
// belongs to the channel, so later failures are reported to the surface
// and logged rather than returned.
func (s *Session) resume(ctx context.Context, conn channel.Conn, lastSeq int64) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrClosed
	}
	from := s.state
	s.state = StateActive
	s.mu.Unlock()

	if err := s.ch.Attach(conn); err != nil {
		s.mu.Lock()
		if s.state == StateActive {
			s.state = from
		}
		s.mu.Unlock()
		return err
	}
	s.mgr.record(ctx, s, from, StateActive, "resumed")

	if err := s.catchUp(ctx, lastSeq); err != nil {
		log.Printf("session %s: resume: %v", s.id, err)
		if errors.Is(err, wire.ErrMessageTooLarge) {
			s.notify(wire.TypeError, "resource_exhausted", err.Error())
		}
	}
	return nil
}

// catchUp brings a reattached surface to the current tree: the hello, then
// the buffered patch or a snapshot when the surface missed patches, then
// whatever changed while it was away.
func (s *Session) catchUp(ctx context.Context, lastSeq int64) error {
	hello, err := s.enc.EncodeHello(s.id, true)
	if err != nil {
		return err
	}
	if err := s.ch.Post(ctx, hello); err != nil {
		return err
	}

	pending, superseded := s.ch.TakePending()
	switch {
	case s.needResync:
	case superseded > 0:
		s.needResync = true
	case pending == nil:
		s.needResync = lastSeq >= 0 && uint64(lastSeq) != s.seq
	case lastSeq < 0 || uint64(lastSeq)+1 == s.seq:
		if err := s.sendLocked(ctx, pending); err != nil {
			return err
		}
	case uint64(lastSeq) != s.seq:
		s.needResync = true
	}
	return s.flushLocked(ctx)
}

func (s *Session) markDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.state = StateReconnecting
	return true
}

// finish moves the session into a terminal state. Expiry only applies to
// sessions still waiting for their surface.
func (s *Session) finish(final State) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return s.state, false
	}
	if final == StateExpired && s.state != StateReconnecting {
		return s.state, false
	}
	from := s.state
	s.state = final
	clear(s.handlers)
	return from, true
}

func (s *Session) run(entry EntryFunc) {
	defer close(s.done)
	if entry != nil {
		s.invoke("entry", func() error { return entry(s.ctx, s) })
	}
	for {
		if err := s.ch.WaitActive(s.ctx); err != nil {
			return
		}
		for raw := range s.ch.Events() {
			s.handleInbound(raw)
		}
		if s.ctx.Err() != nil {
			return
		}
	}
}

func (s *Session) handleInbound(raw []byte) {
	in, err := wire.DecodeInbound(raw)
	if err != nil {
		log.Printf("session %s: %v", s.id, err)
		s.notify(wire.TypeError, "invalid_argument", err.Error())
		return
	}
	switch in.Type {
	case wire.TypePing:
		s.notify(wire.TypePong, "", "")
	case wire.TypeEvent:
		s.dispatch(in.Event())
	}
}

// dispatch runs the handler bound to the event target. Events for unknown,
// hidden or disabled nodes and events without a handler are dropped.
func (s *Session) dispatch(ev ui.Event) {
	if !s.tree.Eligible(ev.Node) {
		return
	}
	h := s.handler(ev.Node, ev.Kind)
	if h == nil {
		return
	}
	s.invoke(fmt.Sprintf("%s handler on node %d", ev.Kind, ev.Node), func() error {
		return h(s.ctx, s, ev)
	})
}

// invoke isolates application code: errors and panics are logged and never
// reach the transport.
func (s *Session) invoke(what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session %s: %s panicked: %v\n%s", s.id, what, r, debug.Stack())
		}
	}()
	if err := fn(); err != nil {
		log.Printf("session %s: %s failed: %v", s.id, what, err)
	}
}

func (s *Session) notify(typ wire.MessageType, code, message string) {
	data, err := s.enc.EncodeNotice(typ, code, message)
	if err != nil {
		return
	}
	_ = s.ch.Post(s.ctx, data)
}

type Info struct {
	ID        string
	State     State
	CreatedAt time.Time
	Nodes     int
	Seq       uint64
	Flushes   int64
	BytesSent int64
}

func (s *Session) Info() Info {
	s.flushMu.Lock()
	seq := s.seq
	s.flushMu.Unlock()
	return Info{
		ID:        s.id,
		State:     s.State(),
		CreatedAt: s.createdAt,
		Nodes:     s.tree.Len(),
		Seq:       seq,
		Flushes:   s.flushes.Load(),
		BytesSent: s.bytesSent.Load(),
	}
}
