// Package ast holds the language-neutral syntax tree handed to observers and
// the per-kind schema describing which child slots each node kind has.
package ast

import (
	"sort"

	"github.com/phobologic/treedeco/internal/model"
)

// ChildrenSlot holds named children that the grammar does not attach to a
// field.
const ChildrenSlot = "children"

// Point is a zero-based row and byte column inside the source.
type Point struct {
	Row    int
	Column int
}

// Node is a typed syntax node with named child slots.
type Node struct {
	Kind      string
	Start     Point
	End       Point
	StartByte int
	EndByte   int

	// Raw is the source text of leaf nodes. Nodes with children leave it
	// empty; use Tree.Text for their text.
	Raw string

	slots map[string][]*Node
}

// NewNode creates a node of the given kind. Mostly useful for tests and
// synthetic trees; parsed trees come from the parse package.
func NewNode(kind string, start, end Point) *Node {
	return &Node{Kind: kind, Start: start, End: end}
}

// Append adds child to the named slot.
func (n *Node) Append(slot string, child *Node) *Node {
	if n.slots == nil {
		n.slots = make(map[string][]*Node)
	}
	n.slots[slot] = append(n.slots[slot], child)
	return n
}

// Slot returns the nodes held by a slot, in source order.
func (n *Node) Slot(name string) []*Node {
	if n == nil {
		return nil
	}
	return n.slots[name]
}

// Field returns the first node held by a slot, or nil.
func (n *Node) Field(name string) *Node {
	nodes := n.Slot(name)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// SlotNames returns the names of the populated slots, sorted.
func (n *Node) SlotNames() []string {
	names := make([]string, 0, len(n.slots))
	for name := range n.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Valid reports whether n can be traversed: it must exist and carry a kind.
func (n *Node) Valid() bool {
	return n != nil && n.Kind != ""
}

// Slot describes one child slot of a node kind.
type Slot struct {
	Name string
	// Many is true when the slot holds a sequence rather than a single node.
	Many bool
}

// Schema maps node kinds to their ordered child slots. It is built once per
// language and is read-only afterwards.
type Schema struct {
	kinds map[string][]Slot
}

// NewSchema builds a schema from kind → slots. The ChildrenSlot is appended
// to every kind that does not already declare it, so that unnamed children
// remain reachable.
func NewSchema(kinds map[string][]Slot) *Schema {
	s := &Schema{kinds: make(map[string][]Slot, len(kinds))}
	for kind, slots := range kinds {
		s.Declare(kind, slots...)
	}
	return s
}

// Declare registers kind with the given slots, replacing any earlier entry.
func (s *Schema) Declare(kind string, slots ...Slot) {
	out := make([]Slot, 0, len(slots)+1)
	hasChildren := false
	for _, slot := range slots {
		if slot.Name == ChildrenSlot {
			hasChildren = true
		}
		out = append(out, slot)
	}
	if !hasChildren {
		out = append(out, Slot{Name: ChildrenSlot, Many: true})
	}
	s.kinds[kind] = out
}

// Slots returns the ordered slots for kind. Unknown kinds have none and are
// treated as leaves.
func (s *Schema) Slots(kind string) []Slot {
	if s == nil {
		return nil
	}
	return s.kinds[kind]
}

// Has reports whether kind declares a slot called name.
func (s *Schema) Has(kind, name string) bool {
	for _, slot := range s.Slots(kind) {
		if slot.Name == name {
			return true
		}
	}
	return false
}

// Known reports whether kind is part of the schema.
func (s *Schema) Known(kind string) bool {
	_, ok := s.kinds[kind]
	return ok
}

// Tree is a parsed document.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
	Schema   *Schema

	lineStarts []int
}

// NewTree wraps root and its source.
func NewTree(root *Node, source []byte, language string, schema *Schema) *Tree {
	t := &Tree{Root: root, Source: source, Language: language, Schema: schema}
	t.lineStarts = append(t.lineStarts, 0)
	for i, b := range source {
		if b == '\n' {
			t.lineStarts = append(t.lineStarts, i+1)
		}
	}
	return t
}

// Text returns the source text covered by n.
func (t *Tree) Text(n *Node) string {
	if n == nil || n.StartByte < 0 || n.EndByte > len(t.Source) || n.StartByte > n.EndByte {
		return ""
	}
	return string(t.Source[n.StartByte:n.EndByte])
}

// RangeOf converts a node's source span to a rendering range (zero-based
// lines, UTF-16 character columns, exclusive end).
func (t *Tree) RangeOf(n *Node) model.Range {
	return model.Range{
		Start: t.Position(n.Start),
		End:   t.Position(n.End),
	}
}

// Position converts a byte point to a UTF-16 position.
func (t *Tree) Position(p Point) model.Position {
	if len(t.lineStarts) == 0 {
		return model.Position{Line: p.Row, Character: p.Column}
	}
	row := p.Row
	if row >= len(t.lineStarts) {
		row = len(t.lineStarts) - 1
	}
	start := t.lineStarts[row]
	end := start + p.Column
	if end > len(t.Source) {
		end = len(t.Source)
	}
	units := 0
	for _, r := range string(t.Source[start:end]) {
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
	}
	return model.Position{Line: row, Character: units}
}
