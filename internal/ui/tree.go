package ui

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

var ErrDestroyed = errors.New("tree destroyed")

type node struct {
	id       NodeID
	kind     Kind
	parent   NodeID
	children []NodeID
	props    map[string]Value
	visible  bool
	disabled bool
	// onSurface is set once the node has been flushed and cleared when it
	// leaves the live tree.
	onSurface bool
}

// Tree is the arena holding every node of one session. Nodes reference
// each other by id only. All mutations are recorded into the tree's
// Tracker under the same lock that Drain takes.
type Tree struct {
	mu        sync.Mutex
	nodes     map[NodeID]*node
	next      NodeID
	tracker   *Tracker
	orphans   map[NodeID]struct{}
	destroyed bool
}

func NewTree() *Tree {
	t := &Tree{
		nodes:   make(map[NodeID]*node),
		next:    RootID,
		tracker: NewTracker(),
		orphans: make(map[NodeID]struct{}),
	}
	t.nodes[RootID] = &node{
		id:        RootID,
		kind:      KindPage,
		props:     make(map[string]Value),
		visible:   true,
		onSurface: true,
	}
	return t
}

// Create allocates a detached node. It becomes visible to the surface once
// attached under the live tree.
func (t *Tree) Create(kind Kind, props map[string]Value) (NodeID, error) {
	if kind == "" {
		return 0, fmt.Errorf("create node: kind is required")
	}
	for name, v := range props {
		if err := v.validate(); err != nil {
			return 0, fmt.Errorf("create %s: property %q: %w", kind, name, ErrInvalidValue)
		}
		if name == PropVisible || name == PropDisabled {
			if _, ok := v.Truth(); !ok {
				return 0, fmt.Errorf("create %s: property %q: want bool: %w", kind, name, ErrInvalidValue)
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return 0, ErrDestroyed
	}
	t.next++
	n := &node{
		id:      t.next,
		kind:    kind,
		props:   make(map[string]Value, len(props)),
		visible: true,
	}
	for name, v := range props {
		switch name {
		case PropVisible:
			n.visible, _ = v.Truth()
		case PropDisabled:
			n.disabled, _ = v.Truth()
		default:
			n.props[name] = v
		}
	}
	t.nodes[n.id] = n
	return n.id, nil
}

// Attach inserts child under parent at position. A negative or out of range
// position appends. Attaching a node that already has a parent moves it.
func (t *Tree) Attach(parentID, childID NodeID, position int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.nodes[parentID]
	if !ok {
		return fmt.Errorf("attach parent %d: %w", parentID, ErrNotFound)
	}
	child, ok := t.nodes[childID]
	if !ok {
		return fmt.Errorf("attach child %d: %w", childID, ErrNotFound)
	}
	if childID == RootID {
		return ErrRootImmutable
	}
	for cur := parentID; cur != 0; cur = t.nodes[cur].parent {
		if cur == childID {
			return fmt.Errorf("attach %d under %d: %w", childID, parentID, ErrCycleRejected)
		}
	}

	if child.parent != 0 {
		t.detachLocked(child)
	}
	if position < 0 || position > len(parent.children) {
		position = len(parent.children)
	}
	parent.children = slices.Insert(parent.children, position, childID)
	child.parent = parentID
	delete(t.orphans, childID)

	if t.liveLocked(parentID) {
		t.tracker.RecordAdd(childID)
	}
	return nil
}

// Detach removes child from its parent. Detaching a node without a parent
// is a no-op. Unless re-attached before the next Drain, the node and its
// subtree are released.
func (t *Tree) Detach(childID NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if childID == RootID {
		return ErrRootImmutable
	}
	child, ok := t.nodes[childID]
	if !ok {
		return fmt.Errorf("detach %d: %w", childID, ErrNotFound)
	}
	if child.parent == 0 {
		return nil
	}
	t.detachLocked(child)
	return nil
}

func (t *Tree) detachLocked(child *node) {
	parent := t.nodes[child.parent]
	wasLive := t.liveLocked(child.parent)
	if i := slices.Index(parent.children, child.id); i >= 0 {
		parent.children = slices.Delete(parent.children, i, i+1)
	}
	child.parent = 0
	t.orphans[child.id] = struct{}{}
	if !wasLive {
		return
	}
	descendants := t.descendantsLocked(child.id)
	t.tracker.RecordRemove(child.id, child.onSurface, descendants)
	child.onSurface = false
	for _, id := range descendants {
		t.nodes[id].onSurface = false
	}
}

// SetProperty stores value under name. The reserved names "visible" and
// "disabled" set the flag pair and require bool values.
func (t *Tree) SetProperty(id NodeID, name string, value Value) error {
	if name == "" {
		return fmt.Errorf("set property on %d: name is required", id)
	}
	if err := value.validate(); err != nil {
		return fmt.Errorf("set property %q on %d: %w", name, id, ErrInvalidValue)
	}
	if name == PropVisible || name == PropDisabled {
		b, ok := value.Truth()
		if !ok {
			return fmt.Errorf("set property %q on %d: want bool: %w", name, id, ErrInvalidValue)
		}
		return t.setFlag(id, name, b)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("set property %q on %d: %w", name, id, ErrNotFound)
	}
	if cur, ok := n.props[name]; ok && cur == value {
		return nil
	}
	n.props[name] = value
	if n.onSurface {
		t.tracker.RecordPropertyChange(id, name, value)
	}
	return nil
}

func (t *Tree) SetVisible(id NodeID, visible bool) error {
	return t.setFlag(id, PropVisible, visible)
}

func (t *Tree) SetDisabled(id NodeID, disabled bool) error {
	return t.setFlag(id, PropDisabled, disabled)
}

func (t *Tree) setFlag(id NodeID, name string, b bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("set %s on %d: %w", name, id, ErrNotFound)
	}
	field := &n.visible
	if name == PropDisabled {
		field = &n.disabled
	}
	if *field == b {
		return nil
	}
	*field = b
	if n.onSurface {
		t.tracker.RecordPropertyChange(id, name, Bool(b))
	}
	return nil
}

func (n *node) clone() Node {
	return Node{
		ID:       n.id,
		Kind:     n.kind,
		Parent:   n.parent,
		Children: slices.Clone(n.children),
		Props:    maps.Clone(n.props),
		Visible:  n.visible,
		Disabled: n.disabled,
	}
}

func (t *Tree) Get(id NodeID) (Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("get %d: %w", id, ErrNotFound)
	}
	return n.clone(), nil
}

func (t *Tree) Children(id NodeID) ([]NodeID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("children of %d: %w", id, ErrNotFound)
	}
	return slices.Clone(n.children), nil
}

func (t *Tree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

func (t *Tree) Live(id NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.liveLocked(id)
}

// IsDisabled evaluates the disabled flag at render time: a node is disabled
// when it or any ancestor is.
func (t *Tree) IsDisabled(id NodeID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[id]; !ok {
		return false, fmt.Errorf("disabled %d: %w", id, ErrNotFound)
	}
	for cur := id; cur != 0; cur = t.nodes[cur].parent {
		if t.nodes[cur].disabled {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tree) IsVisible(id NodeID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[id]; !ok {
		return false, fmt.Errorf("visible %d: %w", id, ErrNotFound)
	}
	for cur := id; cur != 0; cur = t.nodes[cur].parent {
		if !t.nodes[cur].visible {
			return false, nil
		}
	}
	return true, nil
}

// Eligible reports whether id may receive input events: live, visible and
// not disabled.
func (t *Tree) Eligible(id NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[id]; !ok {
		return false
	}
	cur := id
	for cur != 0 {
		n := t.nodes[cur]
		if !n.visible || n.disabled {
			return false
		}
		if cur == RootID {
			return true
		}
		cur = n.parent
	}
	return false
}

func (t *Tree) Pending() int {
	return t.tracker.Len()
}

// Drain returns the change set accumulated since the previous drain:
// removals, then additions in document order with their full subtrees,
// then property updates. Detached nodes that were not re-attached are
// released.
func (t *Tree) Drain() ChangeSet {
	cs, _ := t.DrainIf(nil)
	return cs
}

// DrainIf is Drain with a veto: the change set is handed to accept while the
// tree is locked, and the tree only moves past it when accept returns nil.
// Otherwise every change stays pending and the error is returned.
func (t *Tree) DrainIf(accept func(ChangeSet) error) (ChangeSet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cs := t.changesLocked()
	if accept != nil {
		if err := accept(cs); err != nil {
			return ChangeSet{}, err
		}
	}
	t.tracker.Reset()
	for _, a := range cs.Added {
		t.markLocked(a)
	}
	t.releaseLocked(cs.Released)
	return cs, nil
}

func (t *Tree) changesLocked() ChangeSet {
	p := t.tracker.Peek()
	cs := ChangeSet{Removed: p.Removed}

	if len(p.Added) > 0 {
		pendingAdds := make(map[NodeID]struct{}, len(p.Added))
		for _, id := range p.Added {
			pendingAdds[id] = struct{}{}
		}
		var walk func(n *node)
		walk = func(n *node) {
			for i, childID := range n.children {
				child := t.nodes[childID]
				if _, ok := pendingAdds[childID]; ok && !child.onSurface {
					cs.Added = append(cs.Added, t.snapshotLocked(child, i))
					continue
				}
				walk(child)
			}
		}
		walk(t.nodes[RootID])
	}

	for _, u := range p.Updated {
		n, ok := t.nodes[u.Node]
		if !ok || !n.onSurface {
			continue
		}
		cs.Updated = append(cs.Updated, u)
	}

	for id := range t.orphans {
		n, ok := t.nodes[id]
		if !ok || n.parent != 0 {
			continue
		}
		cs.Released = append(cs.Released, id)
		cs.Released = append(cs.Released, t.descendantsLocked(id)...)
	}
	slices.Sort(cs.Released)
	return cs
}

func (t *Tree) markLocked(a AddedNode) {
	if n, ok := t.nodes[a.ID]; ok {
		n.onSurface = true
	}
	for _, c := range a.Children {
		t.markLocked(c)
	}
}

func (t *Tree) releaseLocked(ids []NodeID) {
	for _, id := range ids {
		delete(t.nodes, id)
	}
	clear(t.orphans)
}

func (t *Tree) Snapshot() AddedNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(t.nodes[RootID], 0)
}

// Resync discards pending changes and returns a full snapshot; afterwards
// every live node counts as known to the surface.
func (t *Tree) Resync() (AddedNode, []NodeID) {
	root, released, _ := t.ResyncIf(nil)
	return root, released
}

// ResyncIf is Resync with the same veto as DrainIf.
func (t *Tree) ResyncIf(accept func(AddedNode) error) (AddedNode, []NodeID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cs := t.changesLocked()
	root := t.snapshotLocked(t.nodes[RootID], 0)
	if accept != nil {
		if err := accept(root); err != nil {
			return AddedNode{}, nil, err
		}
	}
	t.tracker.Reset()
	t.markLocked(root)
	t.releaseLocked(cs.Released)
	return root, cs.Released, nil
}

// Destroy releases every node. Later mutations fail.
func (t *Tree) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroyed = true
	clear(t.nodes)
	clear(t.orphans)
	t.tracker.Drain()
}

func (t *Tree) snapshotLocked(n *node, index int) AddedNode {
	out := AddedNode{
		ID:       n.id,
		Parent:   n.parent,
		Index:    index,
		Kind:     n.kind,
		Hidden:   !n.visible,
		Disabled: n.disabled,
	}
	if len(n.props) > 0 {
		out.Props = maps.Clone(n.props)
	}
	if len(n.children) > 0 {
		out.Children = make([]AddedNode, 0, len(n.children))
		for i, childID := range n.children {
			out.Children = append(out.Children, t.snapshotLocked(t.nodes[childID], i))
		}
	}
	return out
}

func (t *Tree) liveLocked(id NodeID) bool {
	for cur := id; ; {
		if cur == RootID {
			return true
		}
		n, ok := t.nodes[cur]
		if !ok || n.parent == 0 {
			return false
		}
		cur = n.parent
	}
}

func (t *Tree) descendantsLocked(id NodeID) []NodeID {
	var out []NodeID
	stack := slices.Clone(t.nodes[id].children)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		stack = append(stack, t.nodes[cur].children...)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
