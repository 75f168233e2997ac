package ui

import "sync"

// Pending is the raw content of a Tracker between two drains.
type Pending struct {
	Added   []NodeID
	Removed []NodeID
	Updated []PropertyUpdate
}

func (p Pending) Empty() bool {
	return len(p.Added) == 0 && len(p.Removed) == 0 && len(p.Updated) == 0
}

// Tracker accumulates the changes made to a tree since the last drain.
// Recording is combinable: a node added then removed in the same window
// leaves no trace, and repeated property writes keep only the last value.
// It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	added   orderedSet
	removed orderedSet
	props   map[NodeID]map[string]Value
	order   []NodeID
}

func NewTracker() *Tracker {
	return &Tracker{
		props: make(map[NodeID]map[string]Value),
	}
}

// RecordAdd marks id as a new subtree root that the surface does not know.
func (t *Tracker) RecordAdd(id NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.added.add(id)
	delete(t.props, id)
}

// RecordRemove records that id and its descendants left the live tree.
// onSurface reports whether the surface has seen id; only then is a
// removal sent.
func (t *Tracker) RecordRemove(id NodeID, onSurface bool, descendants []NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.added.remove(id)
	delete(t.props, id)
	for _, d := range descendants {
		t.added.remove(d)
		delete(t.props, d)
	}
	if onSurface {
		t.removed.add(id)
	}
}

func (t *Tracker) RecordPropertyChange(id NodeID, name string, value Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byName, ok := t.props[id]
	if !ok {
		byName = make(map[string]Value)
		t.props[id] = byName
		t.order = append(t.order, id)
	}
	byName[name] = value
}

// Len reports how many entries are pending.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.added.len() + t.removed.len()
	for _, byName := range t.props {
		n += len(byName)
	}
	return n
}

// Drain returns everything recorded since the previous drain and resets
// the tracker.
func (t *Tracker) Drain() Pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.peekLocked()
	t.resetLocked()
	return out
}

// Peek returns what Drain would return without resetting the tracker.
func (t *Tracker) Peek() Pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peekLocked()
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *Tracker) peekLocked() Pending {
	out := Pending{
		Added:   t.added.items(),
		Removed: t.removed.items(),
	}
	seen := make(map[NodeID]struct{}, len(t.props))
	for _, id := range t.order {
		byName, ok := t.props[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		for _, name := range sortedKeys(byName) {
			out.Updated = append(out.Updated, PropertyUpdate{Node: id, Name: name, Value: byName[name]})
		}
	}
	return out
}

func (t *Tracker) resetLocked() {
	t.added = orderedSet{}
	t.removed = orderedSet{}
	t.order = nil
	t.props = make(map[NodeID]map[string]Value)
}

// orderedSet keeps insertion order; removal is lazy.
type orderedSet struct {
	index map[NodeID]struct{}
	list  []NodeID
}

func (s *orderedSet) add(id NodeID) {
	if s.index == nil {
		s.index = make(map[NodeID]struct{})
	}
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = struct{}{}
	s.list = append(s.list, id)
}

func (s *orderedSet) remove(id NodeID) {
	delete(s.index, id)
}

func (s *orderedSet) has(id NodeID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *orderedSet) len() int {
	return len(s.index)
}

func (s *orderedSet) items() []NodeID {
	if len(s.index) == 0 {
		return nil
	}
	out := make([]NodeID, 0, len(s.index))
	seen := make(map[NodeID]struct{}, len(s.index))
	for _, id := range s.list {
		if !s.has(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
