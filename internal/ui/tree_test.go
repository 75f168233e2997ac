package ui

import (
	"errors"
	"math/rand"
	"testing"
)

func mustText(t *testing.T, tree *Tree, value string) NodeID {
	t.Helper()
	id, err := BuildText(tree, value)
	if err != nil {
		t.Fatalf("BuildText(%q) error = %v", value, err)
	}
	return id
}

func TestGetUnknownNodeReturnsNotFound(t *testing.T) {
	tree := NewTree()
	if _, err := tree.Get(42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if err := tree.Attach(RootID, 42, -1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Attach() error = %v, want ErrNotFound", err)
	}
	if err := tree.Detach(42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Detach() error = %v, want ErrNotFound", err)
	}
	if err := tree.SetProperty(42, "value", String("x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetProperty() error = %v, want ErrNotFound", err)
	}
}

func TestAttachRejectsCycleAndLeavesTreeUnchanged(t *testing.T) {
	tree := NewTree()
	outer, err := BuildColumn(tree)
	if err != nil {
		t.Fatalf("BuildColumn() error = %v", err)
	}
	inner, err := BuildColumn(tree)
	if err != nil {
		t.Fatalf("BuildColumn() error = %v", err)
	}
	if err := tree.Attach(RootID, outer, -1); err != nil {
		t.Fatalf("Attach(outer) error = %v", err)
	}
	if err := tree.Attach(outer, inner, -1); err != nil {
		t.Fatalf("Attach(inner) error = %v", err)
	}

	if err := tree.Attach(inner, outer, -1); !errors.Is(err, ErrCycleRejected) {
		t.Fatalf("Attach(outer under inner) error = %v, want ErrCycleRejected", err)
	}
	if err := tree.Attach(inner, inner, -1); !errors.Is(err, ErrCycleRejected) {
		t.Fatalf("Attach(inner under itself) error = %v, want ErrCycleRejected", err)
	}
	got, _ := tree.Get(outer)
	if got.Parent != RootID || len(got.Children) != 1 || got.Children[0] != inner {
		t.Fatalf("outer changed after rejected attach: %+v", got)
	}
	if err := tree.Attach(inner, RootID, -1); !errors.Is(err, ErrRootImmutable) {
		t.Fatalf("Attach(root) error = %v, want ErrRootImmutable", err)
	}
}

func TestAttachPositionsChildren(t *testing.T) {
	tree := NewTree()
	a := mustText(t, tree, "a")
	b := mustText(t, tree, "b")
	c := mustText(t, tree, "c")
	for _, id := range []NodeID{a, c} {
		if err := tree.Attach(RootID, id, -1); err != nil {
			t.Fatalf("Attach() error = %v", err)
		}
	}
	if err := tree.Attach(RootID, b, 1); err != nil {
		t.Fatalf("Attach(b, 1) error = %v", err)
	}
	children, _ := tree.Children(RootID)
	want := []NodeID{a, b, c}
	for i := range want {
		if children[i] != want[i] {
			t.Fatalf("children = %v, want %v", children, want)
		}
	}
}

// Random attach/detach sequences must keep a single acyclic tree rooted at
// the page where every parent/child link is mirrored.
func TestRandomAttachDetachKeepsTreeIntegrity(t *testing.T) {
	tree := NewTree()
	rng := rand.New(rand.NewSource(7))
	ids := []NodeID{RootID}
	for i := 0; i < 40; i++ {
		id, err := BuildColumn(tree)
		if err != nil {
			t.Fatalf("BuildColumn() error = %v", err)
		}
		ids = append(ids, id)
	}

	for step := 0; step < 2000; step++ {
		child := ids[1+rng.Intn(len(ids)-1)]
		if rng.Intn(4) == 0 {
			if err := tree.Detach(child); err != nil {
				t.Fatalf("step %d: Detach() error = %v", step, err)
			}
			continue
		}
		parent := ids[rng.Intn(len(ids))]
		err := tree.Attach(parent, child, rng.Intn(5)-1)
		if err != nil && !errors.Is(err, ErrCycleRejected) {
			t.Fatalf("step %d: Attach() error = %v", step, err)
		}
	}

	for _, id := range ids {
		n, err := tree.Get(id)
		if err != nil {
			t.Fatalf("Get(%d) error = %v", id, err)
		}
		for _, c := range n.Children {
			cn, _ := tree.Get(c)
			if cn.Parent != id {
				t.Fatalf("child %d of %d reports parent %d", c, id, cn.Parent)
			}
		}
		seen := map[NodeID]bool{}
		for cur := id; cur != 0; {
			if seen[cur] {
				t.Fatalf("cycle through %d", cur)
			}
			seen[cur] = true
			p, _ := tree.Get(cur)
			cur = p.Parent
		}
	}

	reached := map[NodeID]bool{}
	var visit func(id NodeID)
	visit = func(id NodeID) {
		if reached[id] {
			t.Fatalf("node %d reached twice from root", id)
		}
		reached[id] = true
		children, _ := tree.Children(id)
		for _, c := range children {
			visit(c)
		}
	}
	visit(RootID)
	for _, id := range ids {
		if tree.Live(id) != reached[id] {
			t.Fatalf("Live(%d) = %v, reachable = %v", id, tree.Live(id), reached[id])
		}
	}
}

func TestDisabledPropagatesToDescendants(t *testing.T) {
	tree := NewTree()
	col, _ := BuildColumn(tree)
	child := mustText(t, tree, "child")
	grandchild := mustText(t, tree, "grandchild")
	_ = tree.Attach(RootID, col, -1)
	_ = tree.Attach(col, child, -1)
	_ = tree.Attach(child, grandchild, -1)

	if err := tree.SetDisabled(col, true); err != nil {
		t.Fatalf("SetDisabled() error = %v", err)
	}
	for _, id := range []NodeID{col, child, grandchild} {
		disabled, err := tree.IsDisabled(id)
		if err != nil || !disabled {
			t.Fatalf("IsDisabled(%d) = %v, %v; want true", id, disabled, err)
		}
	}
	n, _ := tree.Get(grandchild)
	if n.Disabled {
		t.Fatalf("grandchild flag was written; propagation must be evaluated, not stored")
	}
}

func TestChildAttachedUnderDisabledParentEvaluatesDisabled(t *testing.T) {
	tree := NewTree()
	col, _ := BuildColumn(tree)
	_ = tree.Attach(RootID, col, -1)
	_ = tree.SetDisabled(col, true)

	late, _ := BuildButton(tree, "late")
	if err := tree.Attach(col, late, -1); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	disabled, _ := tree.IsDisabled(late)
	if !disabled {
		t.Fatalf("late child is not evaluated as disabled")
	}
	n, _ := tree.Get(late)
	if n.Disabled {
		t.Fatalf("late child own flag = true, want untouched")
	}
	if tree.Eligible(late) {
		t.Fatalf("disabled child must not be event-eligible")
	}
}

func TestInvisibleAncestorHidesSubtree(t *testing.T) {
	tree := NewTree()
	col, _ := BuildColumn(tree)
	btn, _ := BuildButton(tree, "go")
	_ = tree.Attach(RootID, col, -1)
	_ = tree.Attach(col, btn, -1)
	if !tree.Eligible(btn) {
		t.Fatalf("button should be eligible")
	}
	_ = tree.SetVisible(col, false)
	visible, _ := tree.IsVisible(btn)
	if visible || tree.Eligible(btn) {
		t.Fatalf("button under hidden column: visible=%v eligible=%v", visible, tree.Eligible(btn))
	}
}

func TestDetachedNodeIsReleasedOnDrain(t *testing.T) {
	tree := NewTree()
	col, _ := BuildColumn(tree)
	child := mustText(t, tree, "x")
	_ = tree.Attach(RootID, col, -1)
	_ = tree.Attach(col, child, -1)
	tree.Drain()

	if err := tree.Detach(col); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}
	cs := tree.Drain()
	if len(cs.Released) != 2 {
		t.Fatalf("released = %v, want col and child", cs.Released)
	}
	if _, err := tree.Get(child); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(child) after release error = %v, want ErrNotFound", err)
	}
}

func TestUnattachedNodeSurvivesDrain(t *testing.T) {
	tree := NewTree()
	id := mustText(t, tree, "later")
	tree.Drain()
	if _, err := tree.Get(id); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestCreateRejectsInvalidValues(t *testing.T) {
	tree := NewTree()
	if _, err := tree.Create(KindText, map[string]Value{"bg": Color("red")}); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("Create() error = %v, want ErrInvalidValue", err)
	}
	if _, err := tree.Create(KindText, map[string]Value{PropVisible: String("no")}); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("Create() error = %v, want ErrInvalidValue", err)
	}
	id, err := tree.Create(KindText, map[string]Value{PropVisible: Bool(false), "bg": Color("#FF0000")})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	n, _ := tree.Get(id)
	if n.Visible {
		t.Fatalf("visible flag from props not applied")
	}
	if _, ok := n.Prop(PropVisible); ok {
		t.Fatalf("reserved name stored as a plain property")
	}
	if bg, _ := n.Prop("bg"); bg.String() != "#ff0000" {
		t.Fatalf("bg = %q, want normalized #ff0000", bg.String())
	}
}

func TestDestroyedTreeRejectsCreate(t *testing.T) {
	tree := NewTree()
	tree.Destroy()
	if _, err := BuildText(tree, "x"); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("Create() error = %v, want ErrDestroyed", err)
	}
	if _, err := tree.Get(RootID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(root) error = %v, want ErrNotFound", err)
	}
}
