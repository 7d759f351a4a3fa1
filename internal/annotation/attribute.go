package annotation

import "fmt"

// AttrKind discriminates the attribute variants the checker understands.
type AttrKind int

const (
	AttrAccess AttrKind = iota
	AttrNonNull
	AttrNotNullValue // chkc_not_null on a global
	AttrReturnsNonNull
	AttrMalloc
	AttrPreservesMemory
	AttrPreservesAllMemory
	AttrRangeLT
	AttrRangeLE
	AttrRangeGT
	AttrRangeGE
)

func (k AttrKind) String() string {
	switch k {
	case AttrAccess:
		return "access"
	case AttrNonNull:
		return "nonnull"
	case AttrNotNullValue:
		return "chkc_not_null"
	case AttrReturnsNonNull:
		return "returns_nonnull"
	case AttrMalloc:
		return "malloc"
	case AttrPreservesMemory:
		return "chkc_preserves_memory"
	case AttrPreservesAllMemory:
		return "chkc_preserves_all_memory"
	case AttrRangeLT:
		return "chkc_lt"
	case AttrRangeLE:
		return "chkc_le"
	case AttrRangeGT:
		return "chkc_gt"
	case AttrRangeGE:
		return "chkc_ge"
	}
	return "unknown"
}

// AccessMode is the first argument of an access attribute.
type AccessMode int

const (
	AccessReadOnly AccessMode = iota
	AccessWriteOnly
	AccessReadWrite
	AccessNone
)

// Attribute is one parsed attribute instance. Kind-specific fields:
//
//	AttrAccess          Mode, ArgIndex, SizeArgIndex (0 when absent)
//	AttrNonNull         ArgIndices (empty means all pointer parameters)
//	AttrPreservesMemory ArgIndex
//	AttrRange*          Bound
type Attribute struct {
	Kind         AttrKind
	Mode         AccessMode
	ArgIndex     int
	SizeArgIndex int
	ArgIndices   []int
	Bound        int64
}

// Param mirrors the declared parameter order of a function.
type Param struct {
	Index   int
	Name    string
	Pointer bool
}

// FunctionSignature is a declared function plus its attributes.
// Immutable once the model is loaded. Two declarations of the same name
// with different attribute sets are rejected; the fixture corpus keeps
// such pairs under distinct _no_attr/_attr names.
type FunctionSignature struct {
	Name           string
	Params         []Param
	ReturnsPointer bool
	HasBody        bool
	Attrs          []Attribute
}

// NonNullParams returns the set of 1-based parameter indices the
// function's nonnull attributes cover.
func (f *FunctionSignature) NonNullParams() map[int]bool {
	out := map[int]bool{}
	for _, a := range f.Attrs {
		if a.Kind != AttrNonNull {
			continue
		}
		if len(a.ArgIndices) == 0 {
			for _, p := range f.Params {
				if p.Pointer {
					out[p.Index] = true
				}
			}
			continue
		}
		for _, i := range a.ArgIndices {
			out[i] = true
		}
	}
	return out
}

// Has reports whether any attribute of the given kind is attached.
func (f *FunctionSignature) Has(kind AttrKind) bool {
	for _, a := range f.Attrs {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// AccessSpecs returns all access attributes on the function.
func (f *FunctionSignature) AccessSpecs() []Attribute {
	var out []Attribute
	for _, a := range f.Attrs {
		if a.Kind == AttrAccess {
			out = append(out, a)
		}
	}
	return out
}

// PreservesArg reports whether a call to this function is guaranteed not
// to free the memory passed as the given 1-based argument index.
func (f *FunctionSignature) PreservesArg(index int) bool {
	for _, a := range f.Attrs {
		switch a.Kind {
		case AttrPreservesAllMemory:
			return true
		case AttrPreservesMemory:
			if a.ArgIndex == index {
				return true
			}
		}
	}
	return false
}

// GlobalVar is a file-scope variable plus its attributes.
type GlobalVar struct {
	Name      string
	Pointer   bool
	ArraySize int64 // -1 when not a fixed-size array
	Attrs     []Attribute
}

// RangeInterval folds the global's range attributes into an inclusive
// [lo, hi] interval. Missing directions come back as (min, false) /
// (max, false).
func (g *GlobalVar) RangeInterval() (lo int64, hasLo bool, hi int64, hasHi bool) {
	for _, a := range g.Attrs {
		switch a.Kind {
		case AttrRangeGE:
			if !hasLo || a.Bound > lo {
				lo, hasLo = a.Bound, true
			}
		case AttrRangeGT:
			if !hasLo || a.Bound+1 > lo {
				lo, hasLo = a.Bound+1, true
			}
		case AttrRangeLE:
			if !hasHi || a.Bound < hi {
				hi, hasHi = a.Bound, true
			}
		case AttrRangeLT:
			if !hasHi || a.Bound-1 < hi {
				hi, hasHi = a.Bound-1, true
			}
		}
	}
	return lo, hasLo, hi, hasHi
}

// NotNull reports whether the global carries chkc_not_null.
func (g *GlobalVar) NotNull() bool {
	for _, a := range g.Attrs {
		if a.Kind == AttrNotNullValue {
			return true
		}
	}
	return false
}

// MalformedAttributeError is fatal: an annotation that fails arity or
// type validation cannot be trusted, so the whole run aborts.
type MalformedAttributeError struct {
	Decl   string
	Attr   string
	Reason string
}

func (e *MalformedAttributeError) Error() string {
	return fmt.Sprintf("malformed attribute %q on %q: %s", e.Attr, e.Decl, e.Reason)
}
