package obligation

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/chkclabs/chkc/internal/cparse"
)

// guardFacts is what a condition proves about values on one branch.
type guardFacts struct {
	nonnull []string
	lower   []string // index known >= 0
	upper   map[string]int64
}

func (gf *guardFacts) addUpper(name string, max int64) {
	if gf.upper == nil {
		gf.upper = map[string]int64{}
	}
	if cur, ok := gf.upper[name]; !ok || max < cur {
		gf.upper[name] = max
	}
}

func (e *env) apply(gf guardFacts) {
	for _, name := range gf.nonnull {
		e.nonnull[name] = true
	}
	for _, name := range gf.lower {
		e.lowerGuard[name] = true
	}
	for name, max := range gf.upper {
		if cur, ok := e.upperGuard[name]; !ok || max < cur {
			e.upperGuard[name] = max
		}
	}
}

// guards derives the facts a condition establishes when it is true and
// when it is false. Recognized shapes: `p`, `!p`, `p == NULL`,
// `p != NULL`, conjunctions/disjunctions of those, and integer
// comparisons against constants.
func (g *Generator) guards(cond *sitter.Node) (whenTrue, whenFalse guardFacts) {
	cond = cparse.Unparen(cond)
	if cond == nil {
		return
	}

	switch cond.Type() {
	case "identifier":
		whenTrue.nonnull = []string{g.unit.Text(cond)}
		return

	case "unary_expression":
		if g.operatorText(cond) == "!" {
			f, t := g.guards(cparse.Field(cond, "argument"))
			return t, f
		}
		return

	case "binary_expression":
		op := g.operatorText(cond)
		left := cparse.Unparen(cparse.Field(cond, "left"))
		right := cparse.Unparen(cparse.Field(cond, "right"))

		switch op {
		case "&&":
			lt, _ := g.guards(left)
			rt, _ := g.guards(right)
			whenTrue = merge(lt, rt)
			return
		case "||":
			_, lf := g.guards(left)
			_, rf := g.guards(right)
			whenFalse = merge(lf, rf)
			return
		}

		name, konst, swapped, ok := g.nameVsConstant(left, right)
		if !ok {
			return
		}
		if swapped {
			op = flip(op)
		}

		if (op == "==" || op == "!=") && (g.isNullConstant(right) || g.isNullConstant(left)) {
			if op == "==" {
				whenFalse.nonnull = []string{name}
			} else {
				whenTrue.nonnull = []string{name}
			}
			return
		}

		switch op {
		case "<":
			whenTrue.addUpper(name, konst-1)
			if konst >= 1 {
				whenFalse.lower = []string{name}
			}
		case "<=":
			whenTrue.addUpper(name, konst)
			if konst >= 0 {
				whenFalse.lower = []string{name}
			}
		case ">":
			if konst >= -1 {
				whenTrue.lower = []string{name}
			}
			whenFalse.addUpper(name, konst)
		case ">=":
			if konst >= 0 {
				whenTrue.lower = []string{name}
			}
			whenFalse.addUpper(name, konst-1)
		case "==":
			if konst >= 0 {
				whenTrue.lower = []string{name}
			}
			whenTrue.addUpper(name, konst)
		}
		return
	}
	return
}

// nameVsConstant matches `ident op const` or `const op ident`.
func (g *Generator) nameVsConstant(left, right *sitter.Node) (name string, konst int64, swapped, ok bool) {
	if left != nil && left.Type() == "identifier" {
		if v, valid := g.constValue(right); valid {
			return g.unit.Text(left), v, false, true
		}
		if g.isNullConstant(right) {
			return g.unit.Text(left), 0, false, true
		}
	}
	if right != nil && right.Type() == "identifier" {
		if v, valid := g.constValue(left); valid {
			return g.unit.Text(right), v, true, true
		}
		if g.isNullConstant(left) {
			return g.unit.Text(right), 0, true, true
		}
	}
	return "", 0, false, false
}

func (g *Generator) constValue(n *sitter.Node) (int64, bool) {
	if n == nil {
		return 0, false
	}
	switch n.Type() {
	case "number_literal":
		return parseInt(g.unit.Text(n))
	case "identifier":
		if v, ok := g.model.Defines[g.unit.Text(n)]; ok {
			return v, true
		}
	}
	return 0, false
}

func (g *Generator) isNullConstant(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "null":
		return true
	case "identifier":
		return g.unit.Text(n) == "NULL"
	case "number_literal":
		return g.unit.Text(n) == "0"
	}
	return false
}

func merge(a, b guardFacts) guardFacts {
	out := guardFacts{
		nonnull: append(append([]string{}, a.nonnull...), b.nonnull...),
		lower:   append(append([]string{}, a.lower...), b.lower...),
	}
	for name, v := range a.upper {
		out.addUpper(name, v)
	}
	for name, v := range b.upper {
		out.addUpper(name, v)
	}
	return out
}

func flip(op string) string {
	switch op {
	case "<":
		return ">"
	case ">":
		return "<"
	case "<=":
		return ">="
	case ">=":
		return "<="
	}
	return op
}
