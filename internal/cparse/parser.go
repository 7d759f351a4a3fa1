package cparse

import (
	"context"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// Unit is a parsed C compilation unit. The tree and source stay alive for
// the duration of an analysis run; Close releases the tree-sitter tree.
type Unit struct {
	Path   string
	Source []byte
	Root   *sitter.Node
	tree   *sitter.Tree
}

// ParseFile reads and parses a single C source file.
func ParseFile(ctx context.Context, path string) (*Unit, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseSource(ctx, path, source)
}

// ParseSource parses in-memory C source. The name is used for positions.
func ParseSource(ctx context.Context, name string, source []byte) (*Unit, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	return &Unit{
		Path:   name,
		Source: source,
		Root:   tree.RootNode(),
		tree:   tree,
	}, nil
}

// Close releases the underlying parse tree.
func (u *Unit) Close() {
	if u.tree != nil {
		u.tree.Close()
		u.tree = nil
	}
}

// Text returns the source text of a node.
func (u *Unit) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(u.Source)
}

// Position returns the 1-based line and column of a node.
func Position(n *sitter.Node) (line, col int) {
	if n == nil {
		return 0, 0
	}
	return int(n.StartPoint().Row) + 1, int(n.StartPoint().Column) + 1
}

// Field fetches a child by field name, tolerating grammar-version drift
// between the field spellings used for subscript expressions.
func Field(n *sitter.Node, names ...string) *sitter.Node {
	if n == nil {
		return nil
	}
	for _, name := range names {
		if child := n.ChildByFieldName(name); child != nil {
			return child
		}
	}
	return nil
}

// Unparen strips parenthesized_expression wrappers.
func Unparen(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "parenthesized_expression" {
		next := firstNamedChild(n)
		if next == nil {
			return n
		}
		n = next
	}
	return n
}

// Uncast strips cast_expression wrappers, e.g. `(char *) f(10)`.
func Uncast(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "cast_expression":
			n = Field(n, "value")
		case "parenthesized_expression":
			n = Unparen(n)
		default:
			return n
		}
	}
	return n
}

func firstNamedChild(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child != nil {
			return child
		}
	}
	return nil
}
