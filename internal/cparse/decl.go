package cparse

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Param describes one parameter of a function declarator.
type Param struct {
	Index   int // 1-based
	Name    string
	Pointer bool
}

// FuncDecl is a function declaration or definition at file scope.
// Prototype-only declarations have HasBody false and a nil Body.
type FuncDecl struct {
	Name           string
	Params         []Param
	ReturnsPointer bool
	HasBody        bool
	Body           *sitter.Node
	Node           *sitter.Node
	// DeclText is the full source text of the declaration, attributes
	// included. Attribute extraction works on this text.
	DeclText string
}

// GlobalDecl is a file-scope variable declaration.
type GlobalDecl struct {
	Name      string
	Pointer   bool
	ArraySize int64 // -1 when not an array or size unknown
	Node      *sitter.Node
	DeclText  string
}

// TopLevel is the structured view of a unit's file scope.
type TopLevel struct {
	Defines   map[string]int64
	Functions []FuncDecl
	Globals   []GlobalDecl
}

// ScanTopLevel walks the translation unit once and collects object-like
// integer macros, function declarations and definitions, and globals.
func (u *Unit) ScanTopLevel() *TopLevel {
	top := &TopLevel{Defines: map[string]int64{}}

	// end of the last declaration after attribute recovery; nodes the
	// recovery already accounted for are skipped
	var absorbed uint32

	for i := 0; i < int(u.Root.NamedChildCount()); i++ {
		node := u.Root.NamedChild(i)
		if node == nil || node.EndByte() <= absorbed {
			continue
		}
		switch node.Type() {
		case "preproc_def":
			name := u.Text(Field(node, "name"))
			value := strings.TrimSpace(u.Text(Field(node, "value")))
			if name == "" || value == "" {
				continue
			}
			if v, err := strconv.ParseInt(value, 0, 64); err == nil {
				top.Defines[name] = v
			}
		case "function_definition":
			if fd, ok := u.funcFromDefinition(node); ok {
				top.Functions = append(top.Functions, fd)
			}
		case "declaration":
			absorbed = u.scanDeclaration(node, top)
		}
	}
	return top
}

// scanDeclaration collects the declarators of one declaration and returns
// the byte offset where the declaration really ends, which may lie past
// the node when the grammar recovered around a trailing attribute.
func (u *Unit) scanDeclaration(node *sitter.Node, top *TopLevel) uint32 {
	declText, end := u.declarationText(node)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "function_declarator", "pointer_declarator", "array_declarator",
			"identifier", "init_declarator":
			if fn := findFunctionDeclarator(child); fn != nil {
				fd := u.funcFromDeclarator(node, fn, child)
				fd.DeclText = declText
				top.Functions = append(top.Functions, fd)
				continue
			}
			name, pointer, size := u.UnwrapDeclarator(child, top.Defines)
			if name == "" {
				continue
			}
			top.Globals = append(top.Globals, GlobalDecl{
				Name:      name,
				Pointer:   pointer,
				ArraySize: size,
				Node:      node,
				DeclText:  declText,
			})
		}
	}
	return end
}

// declarationText returns the attribute-complete source text of a
// declaration. The grammar only accepts trailing attributes on function
// declarators; on an object declarator error recovery ends the
// declaration at the identifier (missing semicolon) and glues the
// attribute onto the next top-level node. Two compensations: an
// unterminated declaration extends to the next semicolon in the source,
// and text recovered in front of a declaration's own type specifier
// belongs to the symbol above it.
func (u *Unit) declarationText(node *sitter.Node) (string, uint32) {
	end := node.EndByte()
	text := u.Text(node)
	if !strings.HasSuffix(strings.TrimSpace(text), ";") {
		for e := int(end); e < len(u.Source); e++ {
			if u.Source[e] == ';' {
				end = uint32(e + 1)
				break
			}
		}
		text = string(u.Source[node.StartByte():end])
	}
	return u.trimRecoveredPrefix(node, text), end
}

// trimRecoveredPrefix drops recovered text glued in front of a
// declaration's own type specifier; the stray semicolon marks where the
// previous declaration really ended.
func (u *Unit) trimRecoveredPrefix(node *sitter.Node, text string) string {
	anchor := Field(node, "type")
	if anchor == nil {
		anchor = firstSubstantiveChild(node)
	}
	if anchor == nil {
		return text
	}
	off := int(anchor.StartByte() - node.StartByte())
	if off <= 0 || off > len(text) {
		return text
	}
	if idx := strings.LastIndexByte(text[:off], ';'); idx >= 0 {
		return text[idx+1:]
	}
	return text
}

// firstSubstantiveChild skips recovery debris at the front of a node:
// attribute specifiers, error nodes, comments.
func firstSubstantiveChild(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "attribute_specifier", "ERROR", "comment":
			continue
		}
		return child
	}
	return nil
}

func (u *Unit) funcFromDefinition(node *sitter.Node) (FuncDecl, bool) {
	decl := Field(node, "declarator")
	fn := findFunctionDeclarator(decl)
	if fn == nil {
		return FuncDecl{}, false
	}
	fd := u.funcFromDeclarator(node, fn, decl)
	fd.HasBody = true
	fd.Body = Field(node, "body")
	// attributes on a definition sit between declarator and body, so the
	// full node text covers them
	fd.DeclText = u.Text(node)
	if fd.Body != nil {
		fd.DeclText = strings.TrimSuffix(fd.DeclText, u.Text(fd.Body))
	}
	fd.DeclText = u.trimRecoveredPrefix(node, fd.DeclText)
	return fd, true
}

func (u *Unit) funcFromDeclarator(node, fn, outer *sitter.Node) FuncDecl {
	fd := FuncDecl{Node: node}
	fd.Name = u.DeclaratorName(Field(fn, "declarator"))
	fd.ReturnsPointer = pointerWrapped(outer, fn)

	params := Field(fn, "parameters")
	if params != nil {
		idx := 0
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if p == nil || p.Type() != "parameter_declaration" {
				continue
			}
			idx++
			name, pointer, size := u.UnwrapDeclarator(Field(p, "declarator"), nil)
			// array parameters decay to pointers
			fd.Params = append(fd.Params, Param{Index: idx, Name: name, Pointer: pointer || size >= 0})
		}
	}
	return fd
}

// DeclaratorName digs through declarator wrappers to the identifier.
func (u *Unit) DeclaratorName(n *sitter.Node) string {
	for n != nil {
		switch n.Type() {
		case "identifier", "field_identifier":
			return u.Text(n)
		case "pointer_declarator", "array_declarator", "function_declarator",
			"parenthesized_declarator", "init_declarator":
			n = Field(n, "declarator")
		default:
			return ""
		}
	}
	return ""
}

// UnwrapDeclarator resolves a declarator to (name, pointer, arraySize).
// Array parameters count as pointers. defines may be nil.
func (u *Unit) UnwrapDeclarator(n *sitter.Node, defines map[string]int64) (string, bool, int64) {
	pointer := false
	size := int64(-1)
	for n != nil {
		switch n.Type() {
		case "identifier", "field_identifier":
			return u.Text(n), pointer, size
		case "pointer_declarator":
			pointer = true
			n = Field(n, "declarator")
		case "array_declarator":
			size = u.arraySize(n, defines)
			n = Field(n, "declarator")
		case "init_declarator", "parenthesized_declarator", "function_declarator":
			n = Field(n, "declarator")
		default:
			return "", pointer, size
		}
	}
	return "", pointer, size
}

func (u *Unit) arraySize(n *sitter.Node, defines map[string]int64) int64 {
	sizeNode := Field(n, "size")
	if sizeNode == nil {
		return -1
	}
	text := strings.TrimSpace(u.Text(sizeNode))
	if v, err := strconv.ParseInt(text, 0, 64); err == nil {
		return v
	}
	if defines != nil {
		if v, ok := defines[text]; ok {
			return v
		}
	}
	return -1
}

// findFunctionDeclarator returns the function_declarator nested in a
// declarator chain, or nil when the declarator declares an object.
func findFunctionDeclarator(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "function_declarator":
			return n
		case "pointer_declarator", "init_declarator", "parenthesized_declarator":
			n = Field(n, "declarator")
		default:
			return nil
		}
	}
	return nil
}

// pointerWrapped reports whether fn is wrapped by a pointer_declarator
// somewhere under outer, i.e. the function returns a pointer.
func pointerWrapped(outer, fn *sitter.Node) bool {
	n := outer
	for n != nil && n != fn {
		if n.Type() == "pointer_declarator" {
			return true
		}
		n = Field(n, "declarator")
	}
	return false
}
