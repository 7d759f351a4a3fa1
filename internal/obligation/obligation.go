// Package obligation turns function bodies into ordered sequences of
// proof obligations. Generation is a single pass in statement order; the
// fixture corpus is straight-line and acyclic, so no fixed point is
// needed. Loops are a documented limitation: adding them requires an
// iteration bound to keep termination guaranteed.
package obligation

import (
	"github.com/chkclabs/chkc/internal/report"
)

// Status of an obligation. The transition Open -> Discharged is one-way;
// nothing ever re-opens a discharged obligation.
type Status int

const (
	Open Status = iota
	Discharged
)

// Site is the source location an obligation attaches to.
type Site struct {
	File string
	Line int
	Col  int
}

// OriginKind classifies where a value came from: the result of a tracked
// call, a declared fixed-size array, taking an object's address, a
// file-scope variable, or a function parameter.
type OriginKind int

const (
	OriginUnknown OriginKind = iota
	OriginCall
	OriginArray
	OriginAddressOf
	OriginGlobal
	OriginParam
)

// Origin identifies the producer of a value. Seq distinguishes two
// allocations from the same callee (two malloc calls are two regions).
type Origin struct {
	Kind      OriginKind
	Callee    string
	Seq       int
	ArraySize int64
	Name      string
}

// Intervener is a call a tracked pointer passed through between its
// allocation and the obligation site. Unless the callee preserves the
// argument, the call may have freed it.
type Intervener struct {
	Callee   string
	ArgIndex int
}

// Facts is the environment snapshot captured at the obligation site.
// The generator writes it once; the discharge engine only reads it.
type Facts struct {
	// GuardedNonNull: a dominating null check covers the value here.
	GuardedNonNull bool
	// Origin of the value the obligation is about.
	Origin Origin
	// OtherOrigin: second region of a no-overlap obligation.
	OtherOrigin Origin
	// Freed: the value was already freed before this site.
	Freed bool
	// Interveners since the value's allocation.
	Interveners []Intervener
	// IndexLowerGuard: a dominating `i >= 0`-style check covers the index.
	IndexLowerGuard bool
	// IndexUpperGuard: a dominating `i < k` check; nil when absent.
	IndexUpperGuard *int64
}

// Obligation is one proof obligation. Created by the Generator, status
// mutated only by the discharge engine.
type Obligation struct {
	Kind  report.Kind
	Value string
	Site  Site
	Seq   int

	Status Status
	Rule   string // discharge rule that closed it

	// WorstCase marks obligations at unknown-callee call sites. Nothing
	// can be discharged through an unknown callee, so no rule applies.
	WorstCase bool

	Callee string // callee at the site, for messages
	Facts  Facts

	// In-bounds specifics.
	Index         string // index expression text
	ArraySize     int64  // declared size hint, -1 unknown
	ConstIndex    *int64 // compile-time constant index
	IndexIsGlobal bool   // index names an attributed global candidate
	FieldName     string // index is a struct field access: field name
	FieldOf       string // ...behind the return value of this callee
	SizeValue     *int64 // access-spec: the passed size constant

	// No-overlap second region.
	OtherValue string
}

// DischargeBy transitions the obligation out of Open exactly once.
func (o *Obligation) DischargeBy(rule string) {
	if o.Status == Open {
		o.Status = Discharged
		o.Rule = rule
	}
}
