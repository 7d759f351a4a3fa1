// Package discharge closes proof obligations against locally derivable
// facts, attributes, and summaries. Rules run in a fixed priority order
// and stop at the first success. The engine never clears an obligation
// without a concrete rule firing: a missed discharge is a false
// positive, a wrong discharge hides a real issue.
package discharge

import (
	"github.com/chkclabs/chkc/internal/annotation"
	"github.com/chkclabs/chkc/internal/obligation"
	"github.com/chkclabs/chkc/internal/report"
	"github.com/chkclabs/chkc/internal/summary"
)

// Rule names recorded on discharged obligations.
const (
	RuleLocalDominance  = "local-dominance"
	RuleDeclaredType    = "declared-type"
	RuleCalleeAttribute = "callee-attribute"
	RuleGlobalRange     = "global-range"
	RuleSummaryRange    = "summary-range"
	RulePreserves       = "preserves-memory"
)

// Engine holds the read-only inputs discharge runs against.
type Engine struct {
	model *annotation.Model
	table *summary.Table
}

func New(model *annotation.Model, table *summary.Table) *Engine {
	return &Engine{model: model, table: table}
}

// Run attempts to close every obligation in place. Worst-case
// obligations (unknown callee sites) are skipped: nothing can be
// discharged through a contract that does not exist.
func (e *Engine) Run(obs []*obligation.Obligation) {
	for _, o := range obs {
		if o.Status != obligation.Open || o.WorstCase {
			continue
		}
		e.discharge(o)
	}
}

func (e *Engine) discharge(o *obligation.Obligation) {
	switch o.Kind {
	case report.KindNotNull:
		e.notNull(o)
	case report.KindInBoundsLower:
		e.inBoundsLower(o)
	case report.KindInBoundsUpper:
		e.inBoundsUpper(o)
	case report.KindAllocationValid:
		e.allocationValid(o)
	case report.KindNoDoubleFree:
		e.noDoubleFree(o)
	case report.KindNoOverlap:
		e.noOverlap(o)
	}
}

func (e *Engine) notNull(o *obligation.Obligation) {
	// 1. dominating null check
	if o.Facts.GuardedNonNull {
		o.DischargeBy(RuleLocalDominance)
		return
	}

	// 2. the value is a declared array or the address of an object
	switch o.Facts.Origin.Kind {
	case obligation.OriginArray, obligation.OriginAddressOf:
		o.DischargeBy(RuleDeclaredType)
		return
	}

	// 3. the value flows directly from a returns_nonnull callee
	if o.Facts.Origin.Kind == obligation.OriginCall {
		callee := o.Facts.Origin.Callee
		if sig := e.model.LookupFunction(callee); sig != nil && sig.Has(annotation.AttrReturnsNonNull) {
			o.DischargeBy(RuleCalleeAttribute)
			return
		}
		if s, ok := e.table.Lookup(callee); ok && s.ReturnsNonNull {
			o.DischargeBy(RuleCalleeAttribute)
			return
		}
	}

	// 4. chkc_not_null on a global
	if o.Facts.Origin.Kind == obligation.OriginGlobal {
		if gv := e.model.LookupGlobal(o.Facts.Origin.Name); gv != nil && gv.NotNull() {
			o.DischargeBy(RuleGlobalRange)
			return
		}
	}
}

func (e *Engine) inBoundsLower(o *obligation.Obligation) {
	// 1. dominating `i >= 0` check
	if o.Facts.IndexLowerGuard {
		o.DischargeBy(RuleLocalDominance)
		return
	}

	// 2. constant index
	if o.ConstIndex != nil {
		if *o.ConstIndex >= 0 {
			o.DischargeBy(RuleDeclaredType)
		}
		return
	}

	// 4. global lower-bound attribute
	if o.IndexIsGlobal {
		if gv := e.model.LookupGlobal(o.Index); gv != nil {
			if lo, hasLo, _, _ := gv.RangeInterval(); hasLo && lo >= 0 {
				o.DischargeBy(RuleGlobalRange)
			}
		}
		return
	}

	// summarized struct-field bound (e.g. tm fields behind localtime)
	if r, ok := e.fieldRange(o); ok && r.Min >= 0 {
		o.DischargeBy(RuleSummaryRange)
	}
}

func (e *Engine) inBoundsUpper(o *obligation.Obligation) {
	// access-spec size obligations compare the passed size against the
	// declared buffer length; nothing else applies to them
	if o.SizeValue != nil {
		if o.ArraySize >= 0 && *o.SizeValue <= o.ArraySize {
			o.DischargeBy(RuleDeclaredType)
		}
		return
	}

	if o.ArraySize < 0 {
		return // no size to compare against, stays open
	}

	// 1. dominating `i < k` check
	if o.Facts.IndexUpperGuard != nil && *o.Facts.IndexUpperGuard < o.ArraySize {
		o.DischargeBy(RuleLocalDominance)
		return
	}

	// 2. constant index
	if o.ConstIndex != nil {
		if *o.ConstIndex < o.ArraySize {
			o.DischargeBy(RuleDeclaredType)
		}
		return
	}

	// 4. global upper-bound attribute
	if o.IndexIsGlobal {
		if gv := e.model.LookupGlobal(o.Index); gv != nil {
			if _, _, hi, hasHi := gv.RangeInterval(); hasHi && hi < o.ArraySize {
				o.DischargeBy(RuleGlobalRange)
			}
		}
		return
	}

	if r, ok := e.fieldRange(o); ok && r.Max < o.ArraySize {
		o.DischargeBy(RuleSummaryRange)
	}
}

func (e *Engine) fieldRange(o *obligation.Obligation) (summary.FieldRange, bool) {
	if o.FieldName == "" || o.FieldOf == "" {
		return summary.FieldRange{}, false
	}
	s, ok := e.table.Lookup(o.FieldOf)
	if !ok || s.Fields == nil {
		return summary.FieldRange{}, false
	}
	r, ok := s.Fields[o.FieldName]
	return r, ok
}

func (e *Engine) allocationValid(o *obligation.Obligation) {
	if o.Facts.Freed {
		return // freed is freed; stays open
	}
	if o.Facts.Origin.Kind != obligation.OriginCall || !e.allocates(o.Facts.Origin.Callee) {
		return
	}

	// 3. fresh allocation, untouched since
	if len(o.Facts.Interveners) == 0 {
		o.DischargeBy(RuleCalleeAttribute)
		return
	}

	// 5. every intervening call preserves the argument
	if e.allPreserve(o.Facts.Interveners) {
		o.DischargeBy(RulePreserves)
	}
}

func (e *Engine) noDoubleFree(o *obligation.Obligation) {
	if o.Facts.Freed {
		return
	}

	// 1. no prior free and nothing touched the value
	if len(o.Facts.Interveners) == 0 {
		o.DischargeBy(RuleLocalDominance)
		return
	}

	// 5. intervening calls all guarantee not to free it
	if e.allPreserve(o.Facts.Interveners) {
		o.DischargeBy(RulePreserves)
	}
}

func (e *Engine) noOverlap(o *obligation.Obligation) {
	// 3. two distinct fresh allocations cannot overlap
	a, b := o.Facts.Origin, o.Facts.OtherOrigin
	if a.Kind == obligation.OriginCall && b.Kind == obligation.OriginCall &&
		a.Seq != b.Seq && e.allocates(a.Callee) && e.allocates(b.Callee) {
		o.DischargeBy(RuleCalleeAttribute)
		return
	}

	// 2. two distinct declared arrays are disjoint by construction
	if a.Kind == obligation.OriginArray && b.Kind == obligation.OriginArray && a.Name != b.Name {
		o.DischargeBy(RuleDeclaredType)
	}
}

func (e *Engine) allocates(callee string) bool {
	if sig := e.model.LookupFunction(callee); sig != nil && sig.Has(annotation.AttrMalloc) {
		return true
	}
	if s, ok := e.table.Lookup(callee); ok && s.Allocates {
		return true
	}
	return false
}

// allPreserve reports whether every intervening callee guarantees, by
// attribute or summary, that it does not free the tracked argument.
func (e *Engine) allPreserve(ivs []obligation.Intervener) bool {
	for _, iv := range ivs {
		if sig := e.model.LookupFunction(iv.Callee); sig != nil && sig.PreservesArg(iv.ArgIndex) {
			continue
		}
		if s, ok := e.table.Lookup(iv.Callee); ok && s.Preserves {
			continue
		}
		return false
	}
	return true
}
