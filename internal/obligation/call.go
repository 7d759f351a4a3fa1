package obligation

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/chkclabs/chkc/internal/annotation"
	"github.com/chkclabs/chkc/internal/cparse"
	"github.com/chkclabs/chkc/internal/report"
	"github.com/chkclabs/chkc/internal/summary"
)

// call emits the obligations a call site carries and returns the origin
// of the call's result.
func (g *Generator) call(call *sitter.Node, e *env) Origin {
	calleeNode := cparse.Field(call, "function")
	callee := g.unit.Text(calleeNode)

	var args []*sitter.Node
	if list := cparse.Field(call, "arguments"); list != nil {
		for i := 0; i < int(list.NamedChildCount()); i++ {
			if a := list.NamedChild(i); a != nil && a.Type() != "comment" {
				args = append(args, a)
			}
		}
	}

	origins := make([]Origin, len(args))
	for i, a := range args {
		origins[i] = g.expr(a, e)
	}

	sig := g.model.LookupFunction(callee)
	summ, haveSummary := g.table.Lookup(callee)
	known := haveSummary || (sig != nil && (sig.HasBody || len(sig.Attrs) > 0))

	if !known {
		g.unknownCall(call, callee, sig, args, origins, e)
	} else {
		g.knownCall(call, callee, sig, summ, args, origins, e)
	}

	g.seq++
	result := Origin{Kind: OriginCall, Callee: callee, Seq: g.seq}
	return result
}

// unknownCall applies worst-case semantics: every pointer argument gets a
// not-null obligation no rule may discharge, and allocation facts for
// pointers passed through are invalidated.
func (g *Generator) unknownCall(call *sitter.Node, callee string, sig *annotation.FunctionSignature, args []*sitter.Node, origins []Origin, e *env) {
	if !g.warned[callee] {
		g.warned[callee] = true
		g.logger.Info("no annotation or summary for function, assuming worst case",
			zap.String("function", callee),
			zap.String("file", g.unit.Path))
	}

	for i, a := range args {
		if !g.pointerArg(i, sig, a, origins[i], e) {
			continue
		}
		o := g.newObligation(report.KindNotNull, g.unit.Text(a), a)
		o.Callee = callee
		o.WorstCase = true
		o.Facts = g.valueFacts(a, origins[i], e)
		g.emit(o)

		g.trackPointerArg(a, i+1, callee, e, false)
	}
}

func (g *Generator) knownCall(call *sitter.Node, callee string, sig *annotation.FunctionSignature, summ *summary.Summary, args []*sitter.Node, origins []Origin, e *env) {
	nonnull := map[int]bool{}
	var accessSpecs []annotation.Attribute
	if sig != nil {
		for idx := range sig.NonNullParams() {
			nonnull[idx] = true
		}
		accessSpecs = sig.AccessSpecs()
		for _, acc := range accessSpecs {
			// every access mode reads or writes through the pointer
			nonnull[acc.ArgIndex] = true
		}
	}
	if summ != nil {
		for _, idx := range summ.NonNullArgs {
			nonnull[idx] = true
		}
	}

	for i, a := range args {
		if !nonnull[i+1] {
			continue
		}
		o := g.newObligation(report.KindNotNull, g.unit.Text(a), a)
		o.Callee = callee
		o.Facts = g.valueFacts(a, origins[i], e)
		g.emit(o)
	}

	for _, acc := range accessSpecs {
		g.accessBounds(call, callee, acc, args, origins, e)
	}

	if summ != nil && summ.NoOverlap != nil {
		g.overlap(call, callee, summ.NoOverlap, args, origins, e)
	}

	freesArg := 0
	if summ != nil {
		freesArg = summ.FreesArg
	}
	if freesArg >= 1 && freesArg <= len(args) {
		g.freeCall(callee, args[freesArg-1], origins[freesArg-1], e)
	}

	for i, a := range args {
		if i+1 == freesArg {
			continue
		}
		if !g.pointerArg(i, sig, a, origins[i], e) {
			continue
		}
		g.trackPointerArg(a, i+1, callee, e, false)
	}
}

// accessBounds emits the caller-side size obligation of an access
// attribute: no attribute claims to validate the passed size, so a size
// beyond the declared buffer is always reported.
func (g *Generator) accessBounds(call *sitter.Node, callee string, acc annotation.Attribute, args []*sitter.Node, origins []Origin, e *env) {
	if acc.SizeArgIndex < 1 || acc.SizeArgIndex > len(args) || acc.ArgIndex > len(args) {
		return
	}
	buf := args[acc.ArgIndex-1]
	sizeNode := args[acc.SizeArgIndex-1]

	o := g.newObligation(report.KindInBoundsUpper, g.unit.Text(buf), sizeNode)
	o.Callee = callee
	o.Index = g.unit.Text(sizeNode)
	o.ArraySize = bufferSize(origins[acc.ArgIndex-1])
	o.Facts = g.valueFacts(buf, origins[acc.ArgIndex-1], e)
	if v, ok := g.constValue(cparse.Uncast(sizeNode)); ok {
		o.SizeValue = &v
	}
	g.emit(o)
}

func (g *Generator) overlap(call *sitter.Node, callee string, ov *summary.Overlap, args []*sitter.Node, origins []Origin, e *env) {
	if ov.DstArg < 1 || ov.DstArg > len(args) || ov.SrcArg < 1 || ov.SrcArg > len(args) {
		return
	}
	dst := args[ov.DstArg-1]
	src := args[ov.SrcArg-1]

	o := g.newObligation(report.KindNoOverlap, g.unit.Text(dst), call)
	o.Callee = callee
	o.OtherValue = g.unit.Text(src)
	o.Facts = g.valueFacts(dst, origins[ov.DstArg-1], e)
	o.Facts.OtherOrigin = origins[ov.SrcArg-1]
	g.emit(o)
}

// freeCall emits the allocation-base and double-free obligations of a
// deallocating call, then marks the value freed.
func (g *Generator) freeCall(callee string, arg *sitter.Node, origin Origin, e *env) {
	name := g.identifierName(arg)
	var st *varState
	if name != "" {
		st = e.state(name)
	} else {
		st = &varState{origin: origin}
	}

	facts := Facts{
		GuardedNonNull: name != "" && e.nonnull[name],
		Origin:         st.origin,
		Freed:          st.freed,
		Interveners:    append([]Intervener(nil), st.interveners...),
	}

	valid := g.newObligation(report.KindAllocationValid, g.unit.Text(arg), arg)
	valid.Callee = callee
	valid.Facts = facts
	g.emit(valid)

	double := g.newObligation(report.KindNoDoubleFree, g.unit.Text(arg), arg)
	double.Callee = callee
	double.Facts = facts
	g.emit(double)

	st.freed = true
}

// trackPointerArg emits a valid-mem obligation for an allocation-tracked
// pointer whose state is no longer pristine, then records the call as an
// intervener: unless the callee preserves the argument it may free it.
func (g *Generator) trackPointerArg(arg *sitter.Node, index int, callee string, e *env, frees bool) {
	name := g.identifierName(arg)
	if name == "" {
		return
	}
	st, ok := e.vars[name]
	if !ok || st.origin.Kind != OriginCall {
		return
	}

	if len(st.interveners) > 0 || st.freed {
		o := g.newObligation(report.KindAllocationValid, name, arg)
		o.Callee = callee
		o.Facts = Facts{
			GuardedNonNull: e.nonnull[name],
			Origin:         st.origin,
			Freed:          st.freed,
			Interveners:    append([]Intervener(nil), st.interveners...),
		}
		g.emit(o)
	}

	if !frees {
		st.interveners = append(st.interveners, Intervener{Callee: callee, ArgIndex: index})
	}
}

// pointerArg decides whether an argument position is pointer-valued,
// preferring the declared parameter type, falling back to what the
// argument expression itself reveals.
func (g *Generator) pointerArg(i int, sig *annotation.FunctionSignature, arg *sitter.Node, origin Origin, e *env) bool {
	if sig != nil && i < len(sig.Params) {
		return sig.Params[i].Pointer
	}
	switch origin.Kind {
	case OriginArray, OriginAddressOf:
		return true
	case OriginGlobal:
		gv := g.model.LookupGlobal(origin.Name)
		return gv != nil && (gv.Pointer || gv.ArraySize >= 0)
	}
	if name := g.identifierName(arg); name != "" {
		if info, ok := e.locals[name]; ok {
			return info.pointer || info.arraySize >= 0
		}
	}
	return false
}

// emitNotNull records a not-null obligation for a dereferenced value.
func (g *Generator) emitNotNull(value *sitter.Node, e *env, callee string, worst bool) {
	value = cparse.Uncast(cparse.Unparen(value))
	if value == nil {
		return
	}
	origin := Origin{Kind: OriginUnknown}
	if value.Type() == "identifier" {
		origin = g.identifierOrigin(g.unit.Text(value), e)
	}
	o := g.newObligation(report.KindNotNull, g.unit.Text(value), value)
	o.Callee = callee
	o.WorstCase = worst
	o.Facts = g.valueFacts(value, origin, e)
	g.emit(o)
}

func (g *Generator) valueFacts(arg *sitter.Node, origin Origin, e *env) Facts {
	facts := Facts{Origin: origin}
	name := g.identifierName(arg)
	if name != "" {
		facts.GuardedNonNull = e.nonnull[name]
		if st, ok := e.vars[name]; ok {
			facts.Freed = st.freed
			facts.Interveners = append([]Intervener(nil), st.interveners...)
		}
	}
	return facts
}

func (g *Generator) identifierName(n *sitter.Node) string {
	n = cparse.Uncast(n)
	if n != nil && n.Type() == "identifier" {
		return g.unit.Text(n)
	}
	return ""
}

/***** subscripts and emission *****/

// subscript emits the paired lower/upper in-bounds obligations for an
// array access. The two halves discharge independently so a one-sided
// range attribute leaves exactly the uncovered half open.
func (g *Generator) subscript(n *sitter.Node, e *env) {
	obj := cparse.Field(n, "argument", "object")
	idx := cparse.Field(n, "index")

	objOrigin := g.expr(obj, e)
	g.expr(idx, e)

	if name := g.identifierName(obj); name != "" {
		if info, ok := e.locals[name]; ok && info.pointer && info.arraySize < 0 {
			o := g.newObligation(report.KindNotNull, name, obj)
			o.Facts = g.valueFacts(obj, objOrigin, e)
			g.emit(o)
		}
	}

	lower := g.newObligation(report.KindInBoundsLower, g.unit.Text(obj), n)
	lower.Index = g.unit.Text(idx)
	lower.ArraySize = bufferSize(objOrigin)
	g.indexFacts(lower, idx, e)

	upper := g.newObligation(report.KindInBoundsUpper, lower.Value, n)
	upper.Index = lower.Index
	upper.ArraySize = lower.ArraySize
	upper.ConstIndex = lower.ConstIndex
	upper.IndexIsGlobal = lower.IndexIsGlobal
	upper.FieldName = lower.FieldName
	upper.FieldOf = lower.FieldOf
	upper.Facts = lower.Facts

	g.emit(lower)
	g.emit(upper)
}

// indexFacts classifies the index expression: compile-time constant,
// attributed global, struct field behind a summarized call, or a plain
// value with whatever guard facts dominate the site.
func (g *Generator) indexFacts(o *Obligation, idx *sitter.Node, e *env) {
	idx = cparse.Uncast(cparse.Unparen(idx))
	if idx == nil {
		return
	}

	if v, ok := g.constValue(idx); ok {
		o.ConstIndex = &v
		return
	}

	switch idx.Type() {
	case "identifier":
		name := g.unit.Text(idx)
		if _, isLocal := e.locals[name]; !isLocal && g.model.LookupGlobal(name) != nil {
			o.IndexIsGlobal = true
			o.Index = name
		}
		o.Facts.IndexLowerGuard = e.lowerGuard[name]
		if max, ok := e.upperGuard[name]; ok {
			o.Facts.IndexUpperGuard = &max
		}

	case "field_expression":
		base := cparse.Field(idx, "argument")
		field := cparse.Field(idx, "field")
		o.FieldName = g.unit.Text(field)
		if name := g.identifierName(base); name != "" {
			if st, ok := e.vars[name]; ok && st.origin.Kind == OriginCall {
				o.FieldOf = st.origin.Callee
			}
		}
	}
}

func bufferSize(origin Origin) int64 {
	if origin.Kind == OriginArray || origin.Kind == OriginGlobal {
		if origin.ArraySize >= 0 {
			return origin.ArraySize
		}
	}
	return -1
}

func (g *Generator) newObligation(kind report.Kind, value string, site *sitter.Node) *Obligation {
	line, col := cparse.Position(site)
	return &Obligation{
		Kind:      kind,
		Value:     strings.TrimSpace(value),
		Site:      Site{File: g.unit.Path, Line: line, Col: col},
		ArraySize: -1,
	}
}

func (g *Generator) emit(o *Obligation) {
	g.seq++
	o.Seq = g.seq
	g.obs = append(g.obs, o)
}

func parseInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "uUlL")
	v, err := strconv.ParseInt(s, 0, 64)
	return v, err == nil
}
