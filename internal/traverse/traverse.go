// Package traverse implements a depth-first walker over ast trees with enter
// and exit hooks and early-termination directives.
package traverse

import "github.com/phobologic/treedeco/internal/ast"

// Directive is returned by an EnterFunc to steer the walk.
type Directive int

const (
	// Continue descends into the node's children.
	Continue Directive = iota
	// Ignore skips the node's children. Siblings are still visited.
	Ignore
	// SkipSiblings skips the node's children and the remaining children of
	// its parent. The grandparent continues normally.
	SkipSiblings
	// Stop aborts the walk. Exit still runs for every entered node.
	Stop
)

func (d Directive) String() string {
	switch d {
	case Continue:
		return "continue"
	case Ignore:
		return "ignore"
	case SkipSiblings:
		return "skipSiblings"
	case Stop:
		return "stop"
	}
	return "unknown"
}

// EnterFunc is called before a node's children are visited. parent is nil and
// slot is "" for the node the walk started at.
type EnterFunc func(node, parent *ast.Node, slot string) Directive

// ExitFunc is called exactly once for every node passed to EnterFunc, after
// its children, on every exit path including panics.
type ExitFunc func(node, parent *ast.Node, slot string)

// Traverser walks trees shaped by a schema.
type Traverser struct {
	schema *ast.Schema
	enter  EnterFunc
	exit   ExitFunc
}

// New returns a Traverser. exit may be nil.
func New(schema *ast.Schema, enter EnterFunc, exit ExitFunc) *Traverser {
	return &Traverser{schema: schema, enter: enter, exit: exit}
}

// Walk visits node and its descendants in pre-order. It returns Stop when the
// walk was aborted, SkipSiblings when node itself asked to skip its siblings,
// and Continue otherwise.
func (t *Traverser) Walk(node *ast.Node) Directive {
	return t.visit(node, nil, "")
}

// Walk is a convenience wrapper around New(...).Walk(node).
func Walk(schema *ast.Schema, node *ast.Node, enter EnterFunc, exit ExitFunc) Directive {
	return New(schema, enter, exit).Walk(node)
}

func (t *Traverser) visit(node, parent *ast.Node, slot string) Directive {
	if !node.Valid() {
		return Continue
	}
	if t.exit != nil {
		defer t.exit(node, parent, slot)
	}

	switch t.enter(node, parent, slot) {
	case Ignore:
		return Continue
	case SkipSiblings:
		return SkipSiblings
	case Stop:
		return Stop
	}

	for _, s := range t.schema.Slots(node.Kind) {
		for _, child := range node.Slot(s.Name) {
			switch t.visit(child, node, s.Name) {
			case SkipSiblings:
				return Continue
			case Stop:
				return Stop
			}
		}
	}
	return Continue
}
