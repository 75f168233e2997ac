package ui

import "errors"

// NodeID identifies a node within one session's tree. Ids are never reused
// by a tree.
type NodeID uint64

// RootID is the id of the page node every tree is rooted at.
const RootID NodeID = 1

type Kind string

const (
	KindPage      Kind = "page"
	KindText      Kind = "text"
	KindButton    Kind = "button"
	KindContainer Kind = "container"
	KindColumn    Kind = "column"
	KindRow       Kind = "row"
	KindList      Kind = "list"
	KindGrid      Kind = "grid"
	KindTextField Kind = "textfield"
	KindCheckbox  Kind = "checkbox"
)

// Reserved property names used on the wire for the flag pair.
const (
	PropVisible  = "visible"
	PropDisabled = "disabled"
)

var (
	ErrNotFound      = errors.New("node not found")
	ErrCycleRejected = errors.New("attach would create a cycle")
	ErrRootImmutable = errors.New("root node cannot be attached or detached")
	ErrInvalidValue  = errors.New("invalid property value")
)

// Node is a copy of one tree element as returned by Tree.Get.
type Node struct {
	ID       NodeID
	Kind     Kind
	Parent   NodeID
	Children []NodeID
	Props    map[string]Value
	Visible  bool
	Disabled bool
}

func (n Node) Prop(name string) (Value, bool) {
	v, ok := n.Props[name]
	return v, ok
}

// AddedNode is the full initial state of a node entering the surface,
// including the subtree under it.
type AddedNode struct {
	ID       NodeID           `json:"id"`
	Parent   NodeID           `json:"parent,omitempty"`
	Index    int              `json:"index"`
	Kind     Kind             `json:"kind"`
	Props    map[string]Value `json:"props,omitempty"`
	Hidden   bool             `json:"hidden,omitempty"`
	Disabled bool             `json:"disabled,omitempty"`
	Children []AddedNode      `json:"children,omitempty"`
}

// Count returns the number of nodes in the subtree, including n.
func (n AddedNode) Count() int {
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

type PropertyUpdate struct {
	Node  NodeID `json:"node"`
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// ChangeSet is the drained content of a tracker: what the surface must do
// to catch up with the tree since the previous drain.
type ChangeSet struct {
	Removed []NodeID
	Added   []AddedNode
	Updated []PropertyUpdate
	// Released lists ids whose lifetime ended in this window. It is not
	// sent to the surface.
	Released []NodeID
}

func (cs ChangeSet) Empty() bool {
	return len(cs.Removed) == 0 && len(cs.Added) == 0 && len(cs.Updated) == 0
}

// Event is an input event reported by the surface for one node.
type Event struct {
	Node    NodeID
	Kind    string
	Payload map[string]Value
}

func (e Event) Number(name string) (float64, bool) {
	v, ok := e.Payload[name]
	if !ok {
		return 0, false
	}
	return v.Num()
}

func (e Event) Text(name string) (string, bool) {
	v, ok := e.Payload[name]
	if !ok {
		return "", false
	}
	return v.Str()
}
