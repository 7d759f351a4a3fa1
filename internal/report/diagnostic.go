package report

import (
	"fmt"
	"sort"
)

// Kind identifies the proof obligation a diagnostic originates from.
type Kind string

const (
	KindNotNull         Kind = "not-null"
	KindInBoundsLower   Kind = "index-lower-bound"
	KindInBoundsUpper   Kind = "index-upper-bound"
	KindAllocationValid Kind = "valid-mem"
	KindNoDoubleFree    Kind = "no-double-free"
	KindNoOverlap       Kind = "no-overlap"
)

// Diagnostic reports a proof obligation that stayed open after discharge.
type Diagnostic struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Kind    Kind   `json:"kind"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`

	// Seq preserves emission order within a line so output is stable.
	Seq int `json:"-"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Kind, d.Message)
}

// Sort orders diagnostics by file, then source position, then emission order.
func Sort(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.Seq < b.Seq
	})
}
