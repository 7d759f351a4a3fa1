package obligation

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/chkclabs/chkc/internal/annotation"
	"github.com/chkclabs/chkc/internal/cparse"
	"github.com/chkclabs/chkc/internal/summary"
)

// Generator walks function bodies and emits proof obligations in source
// order. The annotation model and summary table are read-only inputs.
type Generator struct {
	unit   *cparse.Unit
	model  *annotation.Model
	table  *summary.Table
	logger *zap.Logger

	seq    int
	obs    []*Obligation
	warned map[string]bool
}

func NewGenerator(unit *cparse.Unit, model *annotation.Model, table *summary.Table, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		unit:   unit,
		model:  model,
		table:  table,
		logger: logger,
		warned: map[string]bool{},
	}
}

// Function generates the ordered obligation sequence for one definition.
func (g *Generator) Function(fd cparse.FuncDecl) []*Obligation {
	g.obs = nil
	e := newEnv()
	for _, p := range fd.Params {
		if p.Name == "" {
			continue
		}
		e.locals[p.Name] = localInfo{pointer: p.Pointer}
		e.vars[p.Name] = &varState{origin: Origin{Kind: OriginParam, Name: p.Name}}
	}
	if fd.Body != nil {
		g.stmt(fd.Body, e)
	}
	return g.obs
}

/***** statements *****/

func (g *Generator) stmt(n *sitter.Node, e *env) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "compound_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			g.stmt(n.NamedChild(i), e)
		}
	case "declaration":
		g.declaration(n, e)
	case "expression_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			g.expr(n.NamedChild(i), e)
		}
	case "if_statement":
		g.ifStatement(n, e)
	case "return_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			g.expr(n.NamedChild(i), e)
		}
	case "comment":
		// skip
	default:
		// while/for bodies and other constructs are walked for their
		// obligations but contribute no flow-sensitive facts; loop
		// support needs an iteration bound first
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child == nil {
				continue
			}
			if strings.HasSuffix(child.Type(), "statement") {
				g.stmt(child, e.clone())
			} else {
				g.expr(child, e)
			}
		}
	}
}

func (g *Generator) declaration(n *sitter.Node, e *env) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "init_declarator":
			name, pointer, size := g.unit.UnwrapDeclarator(child, g.model.Defines)
			value := cparse.Field(child, "value")
			g.bind(name, pointer, size, value, e)
		case "identifier", "pointer_declarator", "array_declarator":
			name, pointer, size := g.unit.UnwrapDeclarator(child, g.model.Defines)
			g.bind(name, pointer, size, nil, e)
		}
	}
}

// bind declares a local, records its shape, and threads initializer
// obligations and value origin.
func (g *Generator) bind(name string, pointer bool, size int64, value *sitter.Node, e *env) {
	if name == "" {
		return
	}
	e.reset(name)
	e.locals[name] = localInfo{pointer: pointer, arraySize: size}
	if size >= 0 {
		e.vars[name] = &varState{origin: Origin{Kind: OriginArray, ArraySize: size, Name: name}}
		return
	}
	if value != nil {
		origin := g.expr(value, e)
		origin.Name = name
		e.vars[name] = &varState{origin: origin}
	}
}

func (g *Generator) ifStatement(n *sitter.Node, e *env) {
	cond := cparse.Unparen(cparse.Field(n, "condition"))
	whenTrue, whenFalse := g.guards(cond)

	g.expr(cond, e)

	consequence := cparse.Field(n, "consequence")
	branch := e.clone()
	branch.apply(whenTrue)
	g.stmt(consequence, branch)
	e.absorb(branch)

	alternative := cparse.Field(n, "alternative")
	if alternative != nil {
		other := e.clone()
		other.apply(whenFalse)
		g.stmt(other.unwrapElse(alternative), other)
		e.absorb(other)
		return
	}

	// guard-with-return: `if (p == NULL) return;` leaves the negated
	// condition true on the fall-through path
	if containsReturn(consequence) {
		e.apply(whenFalse)
	}
}

// unwrapElse skips the else_clause wrapper some grammar versions emit.
func (e *env) unwrapElse(n *sitter.Node) *sitter.Node {
	if n != nil && n.Type() == "else_clause" {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child != nil && child.Type() != "comment" {
				return child
			}
		}
	}
	return n
}

// containsReturn reports whether the branch body unconditionally leaves
// the function. Only top-level returns count; a return nested under a
// further condition guarantees nothing.
func containsReturn(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "return_statement":
		return true
	case "compound_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child == nil {
				continue
			}
			if child.Type() == "return_statement" || containsReturnCompound(child) {
				return true
			}
		}
	}
	return false
}

func containsReturnCompound(n *sitter.Node) bool {
	return n.Type() == "compound_statement" && containsReturn(n)
}

/***** expressions *****/

// expr emits obligations for an expression in source order and returns
// the origin of its value.
func (g *Generator) expr(n *sitter.Node, e *env) Origin {
	if n == nil {
		return Origin{Kind: OriginUnknown}
	}
	switch n.Type() {
	case "identifier":
		return g.identifierOrigin(g.unit.Text(n), e)

	case "call_expression":
		return g.call(n, e)

	case "assignment_expression":
		left := cparse.Field(n, "left")
		right := cparse.Field(n, "right")
		origin := g.expr(right, e)
		g.assignTarget(left, e)
		if left != nil && left.Type() == "identifier" {
			name := g.unit.Text(left)
			e.reset(name)
			origin.Name = name
			e.vars[name] = &varState{origin: origin}
		}
		return origin

	case "pointer_expression":
		arg := cparse.Field(n, "argument")
		op := g.operatorText(n)
		if op == "&" {
			return Origin{Kind: OriginAddressOf, Name: g.unit.Text(arg)}
		}
		// unary dereference
		g.emitNotNull(arg, e, "", false)
		g.expr(arg, e)
		return Origin{Kind: OriginUnknown}

	case "field_expression":
		base := cparse.Field(n, "argument")
		if g.operatorText(n) == "->" || g.baseIsPointer(base, e) {
			g.emitNotNull(base, e, "", false)
		}
		g.expr(base, e)
		return Origin{Kind: OriginUnknown}

	case "subscript_expression":
		g.subscript(n, e)
		return Origin{Kind: OriginUnknown}

	case "cast_expression":
		return g.expr(cparse.Field(n, "value"), e)

	case "parenthesized_expression":
		return g.expr(cparse.Unparen(n), e)

	case "binary_expression":
		g.expr(cparse.Field(n, "left"), e)
		g.expr(cparse.Field(n, "right"), e)
		return Origin{Kind: OriginUnknown}

	case "unary_expression", "update_expression":
		g.expr(cparse.Field(n, "argument"), e)
		return Origin{Kind: OriginUnknown}

	case "comma_expression":
		g.expr(cparse.Field(n, "left"), e)
		return g.expr(cparse.Field(n, "right"), e)

	case "conditional_expression":
		g.expr(cparse.Field(n, "condition"), e)
		g.expr(cparse.Field(n, "consequence"), e)
		g.expr(cparse.Field(n, "alternative"), e)
		return Origin{Kind: OriginUnknown}

	default:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			g.expr(n.NamedChild(i), e)
		}
		return Origin{Kind: OriginUnknown}
	}
}

// assignTarget walks an assignment's left side: a subscript target still
// carries in-bounds obligations, a plain identifier does not.
func (g *Generator) assignTarget(n *sitter.Node, e *env) {
	if n == nil || n.Type() == "identifier" {
		return
	}
	g.expr(n, e)
}

func (g *Generator) identifierOrigin(name string, e *env) Origin {
	if name == "" || name == "NULL" {
		return Origin{Kind: OriginUnknown}
	}
	if _, isLocal := e.locals[name]; isLocal {
		if s, ok := e.vars[name]; ok {
			return s.origin
		}
		return Origin{Kind: OriginUnknown, Name: name}
	}
	if gv := g.model.LookupGlobal(name); gv != nil {
		return Origin{Kind: OriginGlobal, Name: name, ArraySize: gv.ArraySize}
	}
	if s, ok := e.vars[name]; ok {
		return s.origin
	}
	return Origin{Kind: OriginUnknown, Name: name}
}

func (g *Generator) operatorText(n *sitter.Node) string {
	if op := cparse.Field(n, "operator"); op != nil {
		return g.unit.Text(op)
	}
	return ""
}

func (g *Generator) baseIsPointer(base *sitter.Node, e *env) bool {
	if base == nil || base.Type() != "identifier" {
		return false
	}
	info, ok := e.locals[g.unit.Text(base)]
	return ok && info.pointer
}
