package ui

import "strings"

func BuildText(t *Tree, value string) (NodeID, error) {
	return t.Create(KindText, map[string]Value{"value": String(value)})
}

func BuildButton(t *Tree, label string) (NodeID, error) {
	return t.Create(KindButton, map[string]Value{"text": String(strings.TrimSpace(label))})
}

func BuildTextField(t *Tree, label, value string) (NodeID, error) {
	return t.Create(KindTextField, map[string]Value{
		"label": String(strings.TrimSpace(label)),
		"value": String(value),
	})
}

func BuildCheckbox(t *Tree, label string, checked bool) (NodeID, error) {
	return t.Create(KindCheckbox, map[string]Value{
		"label": String(strings.TrimSpace(label)),
		"value": Bool(checked),
	})
}

// BuildColumn creates a column and attaches children in order.
func BuildColumn(t *Tree, children ...NodeID) (NodeID, error) {
	return buildContainer(t, KindColumn, children)
}

func BuildRow(t *Tree, children ...NodeID) (NodeID, error) {
	return buildContainer(t, KindRow, children)
}

func buildContainer(t *Tree, kind Kind, children []NodeID) (NodeID, error) {
	id, err := t.Create(kind, nil)
	if err != nil {
		return 0, err
	}
	for _, child := range children {
		if err := t.Attach(id, child, -1); err != nil {
			return 0, err
		}
	}
	return id, nil
}
