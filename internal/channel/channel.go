package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrClosed is returned once the channel has been closed for good.
	ErrClosed = errors.New("channel closed")
	// ErrDisconnected is returned by Send while no connection is attached.
	// The message has been kept as the pending flush.
	ErrDisconnected = errors.New("channel disconnected")
)

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Conn is the subset of *websocket.Conn the channel uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Config struct {
	WriteWait     time.Duration
	PongWait      time.Duration
	PingEvery     time.Duration
	ReadLimit     int64
	InboundBuffer int
}

func DefaultConfig() Config {
	pongWait := 60 * time.Second
	return Config{
		WriteWait:     10 * time.Second,
		PongWait:      pongWait,
		PingEvery:     (pongWait * 9) / 10,
		ReadLimit:     64 << 10,
		InboundBuffer: 32,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.PingEvery <= 0 || c.PingEvery >= c.PongWait {
		c.PingEvery = (c.PongWait * 9) / 10
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = def.ReadLimit
	}
	if c.InboundBuffer <= 0 {
		c.InboundBuffer = def.InboundBuffer
	}
	return c
}

type outbound struct {
	data []byte
	done chan error
}

type link struct {
	conn   Conn
	out    chan outbound
	in     chan []byte
	cancel context.CancelFunc
	done   chan struct{}
}

// Channel carries one session's traffic across connection instances.
type Channel struct {
	cfg          Config
	onDisconnect func()

	mu         sync.Mutex
	state      State
	link       *link
	active     chan struct{}
	closed     chan struct{}
	pending    []byte
	superseded int
}

// New returns a channel in the Connecting state. onDisconnect, if set, is
// called without locks held whenever an attached connection drops
// unexpectedly.
func New(cfg Config, onDisconnect func()) *Channel {
	return &Channel{
		cfg:          cfg.withDefaults(),
		onDisconnect: onDisconnect,
		state:        StateConnecting,
		active:       make(chan struct{}),
		closed:       make(chan struct{}),
	}
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attach binds a new connection instance and makes the channel Active. A
// connection still attached is replaced.
func (c *Channel) Attach(conn Conn) error {
	if conn == nil {
		return fmt.Errorf("attach: conn is nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{
		conn:   conn,
		out:    make(chan outbound),
		in:     make(chan []byte, c.cfg.InboundBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		cancel()
		return ErrClosed
	}
	prev := c.link
	c.link = l
	if c.state != StateActive {
		c.state = StateActive
		close(c.active)
	}
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
	go c.run(ctx, l)
	return nil
}

// Send writes msg on the current connection and waits until the write
// completed. While reconnecting, msg replaces any older pending flush and
// ErrDisconnected is returned.
func (c *Channel) Send(ctx context.Context, msg []byte) error {
	return c.send(ctx, msg, true)
}

// Post writes msg like Send but never keeps it for retransmission. It is
// meant for control replies that are meaningless on a later connection.
func (c *Channel) Post(ctx context.Context, msg []byte) error {
	return c.send(ctx, msg, false)
}

func (c *Channel) send(ctx context.Context, msg []byte, keep bool) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateReconnecting:
		if keep {
			c.bufferLocked(msg)
		}
		c.mu.Unlock()
		return ErrDisconnected
	}
	l := c.link
	c.mu.Unlock()
	fail := func() error {
		if keep {
			return c.buffer(msg)
		}
		if c.State() == StateClosed {
			return ErrClosed
		}
		return ErrDisconnected
	}

	o := outbound{data: msg, done: make(chan error, 1)}
	select {
	case l.out <- o:
	case <-l.done:
		return fail()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-o.done:
		if err != nil {
			return fail()
		}
		return nil
	case <-l.done:
		select {
		case err := <-o.done:
			if err == nil {
				return nil
			}
		default:
		}
		return fail()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) buffer(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrClosed
	}
	c.bufferLocked(msg)
	return ErrDisconnected
}

func (c *Channel) bufferLocked(msg []byte) {
	if c.pending != nil {
		c.superseded++
	}
	c.pending = msg
}

// TakePending returns and clears the buffered flush together with the
// number of older flushes it superseded since the last call.
func (c *Channel) TakePending() ([]byte, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, n := c.pending, c.superseded
	c.pending = nil
	c.superseded = 0
	return msg, n
}

// Events returns the inbound messages of the current connection instance.
// The returned channel is closed when that connection ends; a new one is
// available after the next Attach.
func (c *Channel) Events() <-chan []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil || c.state != StateActive {
		done := make(chan []byte)
		close(done)
		return done
	}
	return c.link.in
}

func (c *Channel) WaitActive(ctx context.Context) error {
	c.mu.Lock()
	state, active, closed := c.state, c.active, c.closed
	c.mu.Unlock()
	switch state {
	case StateActive:
		return nil
	case StateClosed:
		return ErrClosed
	}
	select {
	case <-active:
		return nil
	case <-closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) Done() <-chan struct{} {
	return c.closed
}

// Close shuts the channel down and unblocks pending Send and Events calls.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	close(c.closed)
	l := c.link
	c.pending = nil
	c.superseded = 0
	c.mu.Unlock()

	if l != nil {
		l.cancel()
	}
	return nil
}

func (c *Channel) run(ctx context.Context, l *link) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx, l) })
	g.Go(func() error { return c.writeLoop(gctx, l) })
	g.Go(func() error {
		<-gctx.Done()
		return l.conn.Close()
	})
	_ = g.Wait()

	c.dropped(l)
	close(l.in)
	close(l.done)
}

func (c *Channel) dropped(l *link) {
	c.mu.Lock()
	if c.link != l || c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.state = StateReconnecting
	c.active = make(chan struct{})
	c.mu.Unlock()

	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}

func (c *Channel) readLoop(ctx context.Context, l *link) error {
	l.conn.SetReadLimit(c.cfg.ReadLimit)
	if err := l.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		return err
	}
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := l.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
			return err
		}
		select {
		case l.in <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Channel) writeLoop(ctx context.Context, l *link) error {
	ticker := time.NewTicker(c.cfg.PingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case o := <-l.out:
			err := l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err == nil {
				err = l.conn.WriteMessage(websocket.TextMessage, o.data)
			}
			o.done <- err
			if err != nil {
				return err
			}
		case <-ticker.C:
			if err := l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				return err
			}
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
