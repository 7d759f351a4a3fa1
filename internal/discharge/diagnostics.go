package discharge

import (
	"fmt"

	"github.com/chkclabs/chkc/internal/obligation"
	"github.com/chkclabs/chkc/internal/report"
)

// Diagnostics converts the obligations still open after discharge into
// reportable diagnostics, one per obligation, in emission order.
func Diagnostics(obs []*obligation.Obligation) []report.Diagnostic {
	var out []report.Diagnostic
	for _, o := range obs {
		if o.Status != obligation.Open {
			continue
		}
		out = append(out, report.Diagnostic{
			File:    o.Site.File,
			Line:    o.Site.Line,
			Column:  o.Site.Col,
			Kind:    o.Kind,
			Value:   o.Value,
			Message: message(o),
			Seq:     o.Seq,
		})
	}
	return out
}

func message(o *obligation.Obligation) string {
	switch o.Kind {
	case report.KindNotNull:
		if o.WorstCase {
			return fmt.Sprintf("%q may be NULL when passed to unannotated function %q", o.Value, o.Callee)
		}
		if o.Callee != "" {
			return fmt.Sprintf("%q may be NULL when passed to %q, which requires a non-null argument", o.Value, o.Callee)
		}
		return fmt.Sprintf("%q may be NULL at this dereference", o.Value)

	case report.KindInBoundsLower:
		return fmt.Sprintf("index %q of %q may be negative", o.Index, o.Value)

	case report.KindInBoundsUpper:
		if o.SizeValue != nil {
			if o.ArraySize >= 0 {
				return fmt.Sprintf("%q declares %d element(s) but %q passes a size of %d", o.Value, o.ArraySize, o.Callee, *o.SizeValue)
			}
			return fmt.Sprintf("size %d passed to %q may exceed the extent of %q", *o.SizeValue, o.Callee, o.Value)
		}
		if o.ArraySize >= 0 {
			return fmt.Sprintf("index %q of %q may reach past its %d element(s)", o.Index, o.Value, o.ArraySize)
		}
		return fmt.Sprintf("index %q of %q may be out of bounds", o.Index, o.Value)

	case report.KindAllocationValid:
		if o.Facts.Freed {
			return fmt.Sprintf("%q is used after it was freed", o.Value)
		}
		return fmt.Sprintf("%q may no longer point to valid memory here", o.Value)

	case report.KindNoDoubleFree:
		return fmt.Sprintf("%q may already have been freed when %q frees it", o.Value, o.Callee)

	case report.KindNoOverlap:
		return fmt.Sprintf("%q and %q may overlap, which %q forbids", o.Value, o.OtherValue, o.Callee)
	}
	return fmt.Sprintf("open proof obligation on %q", o.Value)
}
