package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"livepage/internal/ui"
)

// DefaultLimit is the default maximum size of one encoded message in bytes.
const DefaultLimit = 1_000_000

var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMalformed       = errors.New("malformed message")
)

type MessageType string

const (
	// downstream
	TypeSession  MessageType = "session"
	TypePatch    MessageType = "patch"
	TypeSnapshot MessageType = "snapshot"
	TypePong     MessageType = "pong"
	TypeError    MessageType = "error"
	// upstream
	TypeEvent MessageType = "event"
	TypePing  MessageType = "ping"
)

// Patch is the encoded form of one flush. Sections are applied in field
// order: removals, additions, then property updates.
type Patch struct {
	Type    MessageType         `json:"type"`
	Seq     uint64              `json:"seq"`
	Removed []ui.NodeID         `json:"removed"`
	Added   []ui.AddedNode      `json:"added"`
	Updated []ui.PropertyUpdate `json:"updated"`
}

// Snapshot replaces the whole surface content.
type Snapshot struct {
	Type MessageType  `json:"type"`
	Seq  uint64       `json:"seq"`
	Root ui.AddedNode `json:"root"`
}

type Hello struct {
	Type    MessageType `json:"type"`
	Session string      `json:"session"`
	Resumed bool        `json:"resumed,omitempty"`
	Limit   int         `json:"limit"`
}

type Notice struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Inbound is an upstream document.
type Inbound struct {
	Type    MessageType         `json:"type"`
	Node    ui.NodeID           `json:"node,omitempty"`
	Kind    string              `json:"kind,omitempty"`
	Payload map[string]ui.Value `json:"payload,omitempty"`
}

func (in Inbound) Event() ui.Event {
	return ui.Event{Node: in.Node, Kind: in.Kind, Payload: in.Payload}
}

type Encoder struct {
	limit int
}

func NewEncoder(limit int) *Encoder {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Encoder{limit: limit}
}

func (e *Encoder) Limit() int {
	return e.limit
}

// Encode serializes cs as a patch. It fails with ErrMessageTooLarge when
// the result exceeds the limit; callers are expected to flush in smaller
// batches instead.
func (e *Encoder) Encode(seq uint64, cs ui.ChangeSet) ([]byte, error) {
	p := Patch{
		Type:    TypePatch,
		Seq:     seq,
		Removed: cs.Removed,
		Added:   cs.Added,
		Updated: cs.Updated,
	}
	if p.Removed == nil {
		p.Removed = []ui.NodeID{}
	}
	if p.Added == nil {
		p.Added = []ui.AddedNode{}
	}
	if p.Updated == nil {
		p.Updated = []ui.PropertyUpdate{}
	}
	return e.marshal(p)
}

func (e *Encoder) EncodeSnapshot(seq uint64, root ui.AddedNode) ([]byte, error) {
	return e.marshal(Snapshot{Type: TypeSnapshot, Seq: seq, Root: root})
}

func (e *Encoder) EncodeHello(sessionID string, resumed bool) ([]byte, error) {
	return e.marshal(Hello{Type: TypeSession, Session: sessionID, Resumed: resumed, Limit: e.limit})
}

func (e *Encoder) EncodeNotice(typ MessageType, code, message string) ([]byte, error) {
	return e.marshal(Notice{Type: typ, Code: code, Message: message})
}

func (e *Encoder) marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if len(data) > e.limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMessageTooLarge, len(data), e.limit)
	}
	return data, nil
}

// DecodeInbound parses an upstream document.
func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	in.Type = MessageType(strings.ToLower(strings.TrimSpace(string(in.Type))))
	in.Kind = strings.TrimSpace(in.Kind)
	switch in.Type {
	case TypeEvent:
		if in.Node == 0 {
			return Inbound{}, fmt.Errorf("%w: event without node", ErrMalformed)
		}
		if in.Kind == "" {
			return Inbound{}, fmt.Errorf("%w: event without kind", ErrMalformed)
		}
	case TypePing:
	case "":
		return Inbound{}, fmt.Errorf("%w: type is required", ErrMalformed)
	default:
		return Inbound{}, fmt.Errorf("%w: unsupported type %q", ErrMalformed, in.Type)
	}
	return in, nil
}
