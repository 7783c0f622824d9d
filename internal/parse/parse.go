// Package parse turns source text into an ast.Tree using tree-sitter.
package parse

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/treedeco/internal/ast"
	"github.com/phobologic/treedeco/internal/lang"
)

// ParseError reports malformed input. Line and Column are one-based.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// Parse parses the full source with the given language. Every call uses a
// fresh parser, so Parse is safe to call from concurrent passes.
func Parse(ctx context.Context, l *lang.Language, source []byte) (*ast.Tree, error) {
	parser := l.NewParser()
	defer parser.Close()

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", l.Name, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if perr := firstError(root); perr != nil {
			return nil, perr
		}
		return nil, &ParseError{Line: 1, Column: 1, Message: "syntax error"}
	}

	schema := l.Schema()
	return ast.NewTree(convert(root, schema, source), source, l.Name, schema), nil
}

// convert copies the named nodes of a tree-sitter tree into ast nodes,
// placing each child in its field slot when the schema declares one.
func convert(n *sitter.Node, schema *ast.Schema, source []byte) *ast.Node {
	kind := n.Type()
	out := &ast.Node{
		Kind:      kind,
		Start:     point(n.StartPoint()),
		End:       point(n.EndPoint()),
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
	}

	named := 0
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !child.IsNamed() {
			continue
		}
		named++
		slot := ast.ChildrenSlot
		if field := n.FieldNameForChild(i); field != "" && schema.Has(kind, field) {
			slot = field
		}
		out.Append(slot, convert(child, schema, source))
	}

	if named == 0 && out.EndByte <= len(source) {
		out.Raw = string(source[out.StartByte:out.EndByte])
	}
	return out
}

func point(p sitter.Point) ast.Point {
	return ast.Point{Row: int(p.Row), Column: int(p.Column)}
}

// firstError returns the first ERROR or MISSING node in document order.
func firstError(n *sitter.Node) *ParseError {
	if n.IsMissing() {
		return errorAt(n, fmt.Sprintf("missing %s", n.Type()))
	}
	if n.IsError() {
		return errorAt(n, "unexpected input")
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !child.HasError() && !child.IsMissing() {
			continue
		}
		if perr := firstError(child); perr != nil {
			return perr
		}
	}
	return nil
}

func errorAt(n *sitter.Node, msg string) *ParseError {
	p := n.StartPoint()
	return &ParseError{Line: int(p.Row) + 1, Column: int(p.Column) + 1, Message: msg}
}
