package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livepage/internal/session"
	"livepage/internal/ui"
)

// pipeConn is an in-memory surface connection.
type pipeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *pipeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.in:
		return websocket.TextMessage, msg, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *pipeConn) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	select {
	case c.out <- append([]byte(nil), data...):
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	}
}

func (c *pipeConn) SetReadDeadline(time.Time) error { return nil }
func (c *pipeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *pipeConn) SetReadLimit(int64) {}
func (c *pipeConn) SetPongHandler(func(appData string) error) {}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type message struct {
	Type    string              `json:"type"`
	Seq     uint64              `json:"seq"`
	Removed []ui.NodeID         `json:"removed"`
	Added   []ui.AddedNode      `json:"added"`
	Updated []ui.PropertyUpdate `json:"updated"`
}

func next(t *testing.T, c *pipeConn) message {
	t.Helper()
	select {
	case raw := <-c.out:
		var m message
		require.NoError(t, json.Unmarshal(raw, &m), string(raw))
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("no message from session")
		return message{}
	}
}

func click(t *testing.T, c *pipeConn, kind string, node ui.NodeID, payload string) {
	t.Helper()
	doc := fmt.Sprintf(`{"type":"event","node":%d,"kind":%q}`, node, kind)
	if payload != "" {
		doc = fmt.Sprintf(`{"type":"event","node":%d,"kind":%q,"payload":%s}`, node, kind, payload)
	}
	c.in <- []byte(doc)
}

// find returns the first node in the subtree matching kind and prop value.
func find(n ui.AddedNode, kind ui.Kind, prop, value string) (ui.AddedNode, bool) {
	if n.Kind == kind {
		if v, ok := n.Props[prop]; ok {
			if s, _ := v.Str(); s == value {
				return n, true
			}
		}
	}
	for _, c := range n.Children {
		if found, ok := find(c, kind, prop, value); ok {
			return found, true
		}
	}
	return ui.AddedNode{}, false
}

func findKind(n ui.AddedNode, kind ui.Kind) (ui.AddedNode, bool) {
	if n.Kind == kind {
		return n, true
	}
	for _, c := range n.Children {
		if found, ok := findKind(c, kind); ok {
			return found, true
		}
	}
	return ui.AddedNode{}, false
}

func start(t *testing.T, opts Options) (*pipeConn, ui.AddedNode) {
	t.Helper()
	mgr := session.NewManager(Entry(opts), session.Config{})
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	conn := newPipeConn()
	t.Cleanup(func() { _ = conn.Close() })
	_, _, err := mgr.Connect(context.Background(), conn, "", -1)
	require.NoError(t, err)

	assert.Equal(t, "session", next(t, conn).Type)
	initial := next(t, conn)
	require.Equal(t, "patch", initial.Type)
	require.Len(t, initial.Added, 1)
	return conn, initial.Added[0]
}

func TestInitialPageMaterializesVisibleRowsOnly(t *testing.T) {
	_, layout := start(t, Options{Rows: 5000, Viewport: 240, RowHeight: 24})
	list, ok := findKind(layout, ui.KindList)
	require.True(t, ok)
	assert.Len(t, list.Children, 10)
	_, ok = find(list, ui.KindText, "value", "Row 1")
	assert.True(t, ok)
	_, ok = find(list, ui.KindText, "value", "Row 11")
	assert.False(t, ok)
}

func TestCounterButtons(t *testing.T) {
	conn, layout := start(t, Options{})
	inc, ok := find(layout, ui.KindButton, "text", "+1")
	require.True(t, ok)
	dec, ok := find(layout, ui.KindButton, "text", "-1")
	require.True(t, ok)
	counter, ok := find(layout, ui.KindText, "value", "0")
	require.True(t, ok)

	click(t, conn, EventClick, inc.ID, "")
	click(t, conn, EventClick, inc.ID, "")
	click(t, conn, EventClick, dec.ID, "")
	var last message
	for i := 0; i < 3; i++ {
		last = next(t, conn)
	}
	assert.Equal(t, []ui.PropertyUpdate{{Node: counter.ID, Name: "value", Value: ui.String("1")}}, last.Updated)
}

func TestDisabledCounterIgnoresClicks(t *testing.T) {
	conn, layout := start(t, Options{})
	inc, _ := find(layout, ui.KindButton, "text", "+1")
	toggle, ok := find(layout, ui.KindCheckbox, "label", "Disable counter")
	require.True(t, ok)

	click(t, conn, EventChange, toggle.ID, `{"value":true}`)
	m := next(t, conn)
	require.Len(t, m.Updated, 1)
	assert.Equal(t, ui.PropDisabled, m.Updated[0].Name)

	click(t, conn, EventClick, inc.ID, "")
	conn.in <- []byte(`{"type":"ping"}`)
	assert.Equal(t, "pong", next(t, conn).Type)
}

func TestRenameUpdatesGreeting(t *testing.T) {
	conn, layout := start(t, Options{})
	field, ok := find(layout, ui.KindTextField, "label", "Name")
	require.True(t, ok)
	greeting, ok := find(layout, ui.KindText, "value", "Hello!")
	require.True(t, ok)

	click(t, conn, EventChange, field.ID, `{"value":"Ada"}`)
	m := next(t, conn)
	assert.Equal(t, []ui.PropertyUpdate{{Node: greeting.ID, Name: "value", Value: ui.String("Hello, Ada!")}}, m.Updated)
}

func TestBulkAddFlushesInBatches(t *testing.T) {
	conn, layout := start(t, Options{BulkRows: 50, Batch: 20})
	add, ok := find(layout, ui.KindButton, "text", "Add 50 rows")
	require.True(t, ok)

	click(t, conn, EventClick, add.ID, "")
	sizes := []int{}
	for i := 0; i < 3; i++ {
		m := next(t, conn)
		sizes = append(sizes, len(m.Added))
		if i == 2 {
			require.Len(t, m.Updated, 1)
			assert.Equal(t, ui.String("50 items"), m.Updated[0].Value)
		}
	}
	assert.Equal(t, []int{20, 20, 10}, sizes)

	clearBtn, ok := find(layout, ui.KindButton, "text", "Clear")
	require.True(t, ok)
	click(t, conn, EventClick, clearBtn.ID, "")
	m := next(t, conn)
	assert.Len(t, m.Removed, 50)
	assert.Empty(t, m.Added)
}

func TestScrollMovesWindow(t *testing.T) {
	conn, layout := start(t, Options{Rows: 5000, Viewport: 240, RowHeight: 24})
	list, ok := findKind(layout, ui.KindList)
	require.True(t, ok)

	click(t, conn, EventScroll, list.ID, `{"offset":2400}`)
	m := next(t, conn)
	assert.Len(t, m.Removed, 10)
	require.Len(t, m.Added, 10)
	_, ok = find(m.Added[0], ui.KindText, "value", "Row 101")
	assert.True(t, ok)
}
