package annotation

import (
	"fmt"

	"github.com/chkclabs/chkc/internal/cparse"
)

// Model is the loaded annotation view of all compilation units: function
// signatures and annotated globals, keyed by name. Read-only after Load.
// The _no_attr/_attr fixture pairing keeps conflicting attribute sets
// under distinct names, so plain name keying is enough.
type Model struct {
	Functions map[string]*FunctionSignature
	Globals   map[string]*GlobalVar
	Defines   map[string]int64
}

// Load builds the model from parsed units, validating every attribute.
// The first malformed attribute aborts the load: an annotation that fails
// arity or type checks cannot be trusted anywhere downstream.
func Load(units []*cparse.Unit) (*Model, error) {
	m := &Model{
		Functions: map[string]*FunctionSignature{},
		Globals:   map[string]*GlobalVar{},
		Defines:   map[string]int64{},
	}

	for _, unit := range units {
		top := unit.ScanTopLevel()
		for k, v := range top.Defines {
			m.Defines[k] = v
		}

		for _, fd := range top.Functions {
			sig, err := m.loadFunction(fd, top.Defines)
			if err != nil {
				return nil, err
			}
			m.mergeFunction(sig)
		}

		for _, gd := range top.Globals {
			gv, err := m.loadGlobal(gd, top.Defines)
			if err != nil {
				return nil, err
			}
			if err := m.mergeGlobal(gv); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// LookupFunction returns the signature for a name, or nil.
func (m *Model) LookupFunction(name string) *FunctionSignature {
	return m.Functions[name]
}

// LookupGlobal returns the global variable record for a name, or nil.
func (m *Model) LookupGlobal(name string) *GlobalVar {
	return m.Globals[name]
}

func (m *Model) loadFunction(fd cparse.FuncDecl, defines map[string]int64) (*FunctionSignature, error) {
	sig := &FunctionSignature{
		Name:           fd.Name,
		ReturnsPointer: fd.ReturnsPointer,
		HasBody:        fd.HasBody,
	}
	for _, p := range fd.Params {
		sig.Params = append(sig.Params, Param{Index: p.Index, Name: p.Name, Pointer: p.Pointer})
	}

	for _, raw := range extractAttributes(fd.DeclText) {
		attr, known, err := m.validateFunctionAttr(sig, raw, defines)
		if err != nil {
			return nil, err
		}
		if known {
			sig.Attrs = append(sig.Attrs, attr)
		}
	}
	return sig, nil
}

func (m *Model) validateFunctionAttr(sig *FunctionSignature, raw rawAttr, defines map[string]int64) (Attribute, bool, error) {
	malformed := func(reason string) error {
		return &MalformedAttributeError{Decl: sig.Name, Attr: raw.Name, Reason: reason}
	}

	switch raw.Name {
	case "access":
		if len(raw.Args) < 2 || len(raw.Args) > 3 {
			return Attribute{}, false, malformed("access takes a mode and one or two argument indices")
		}
		mode, ok := accessMode(raw.Args[0])
		if !ok {
			return Attribute{}, false, malformed(fmt.Sprintf("unknown access mode %q", raw.Args[0]))
		}
		attr := Attribute{Kind: AttrAccess, Mode: mode}
		idx, err := sig.pointerParamIndex(raw.Args[1], defines)
		if err != nil {
			return Attribute{}, false, malformed(err.Error())
		}
		attr.ArgIndex = idx
		if len(raw.Args) == 3 {
			sizeIdx, err := sig.paramIndex(raw.Args[2], defines)
			if err != nil {
				return Attribute{}, false, malformed(err.Error())
			}
			attr.SizeArgIndex = sizeIdx
		}
		return attr, true, nil

	case "nonnull":
		attr := Attribute{Kind: AttrNonNull}
		for _, arg := range raw.Args {
			idx, err := sig.pointerParamIndex(arg, defines)
			if err != nil {
				return Attribute{}, false, malformed(err.Error())
			}
			attr.ArgIndices = append(attr.ArgIndices, idx)
		}
		return attr, true, nil

	case "returns_nonnull":
		if len(raw.Args) != 0 {
			return Attribute{}, false, malformed("returns_nonnull takes no arguments")
		}
		if !sig.ReturnsPointer {
			return Attribute{}, false, malformed("returns_nonnull requires a pointer return type")
		}
		return Attribute{Kind: AttrReturnsNonNull}, true, nil

	case "malloc":
		if len(raw.Args) != 0 {
			return Attribute{}, false, malformed("malloc takes no arguments")
		}
		if !sig.ReturnsPointer {
			return Attribute{}, false, malformed("malloc requires a pointer return type")
		}
		return Attribute{Kind: AttrMalloc}, true, nil

	case "chkc_preserves_memory":
		if len(raw.Args) != 1 {
			return Attribute{}, false, malformed("chkc_preserves_memory takes one argument index")
		}
		idx, err := sig.pointerParamIndex(raw.Args[0], defines)
		if err != nil {
			return Attribute{}, false, malformed(err.Error())
		}
		return Attribute{Kind: AttrPreservesMemory, ArgIndex: idx}, true, nil

	case "chkc_preserves_all_memory":
		if len(raw.Args) != 0 {
			return Attribute{}, false, malformed("chkc_preserves_all_memory takes no arguments")
		}
		return Attribute{Kind: AttrPreservesAllMemory}, true, nil

	case "chkc_lt", "chkc_le", "chkc_gt", "chkc_ge", "chkc_not_null":
		return Attribute{}, false, malformed("attribute is only valid on global variables")
	}

	// nothrow, leaf, const, pure and friends are real-world noise the
	// checker has no use for
	return Attribute{}, false, nil
}

func (m *Model) loadGlobal(gd cparse.GlobalDecl, defines map[string]int64) (*GlobalVar, error) {
	gv := &GlobalVar{Name: gd.Name, Pointer: gd.Pointer, ArraySize: gd.ArraySize}

	malformed := func(attr, reason string) error {
		return &MalformedAttributeError{Decl: gd.Name, Attr: attr, Reason: reason}
	}

	for _, raw := range extractAttributes(gd.DeclText) {
		switch raw.Name {
		case "chkc_not_null":
			if len(raw.Args) != 0 {
				return nil, malformed(raw.Name, "chkc_not_null takes no arguments")
			}
			if !gv.Pointer {
				return nil, malformed(raw.Name, "chkc_not_null requires a pointer-typed variable")
			}
			gv.Attrs = append(gv.Attrs, Attribute{Kind: AttrNotNullValue})

		case "chkc_lt", "chkc_le", "chkc_gt", "chkc_ge":
			if len(raw.Args) != 1 {
				return nil, malformed(raw.Name, "range attributes take exactly one integer bound")
			}
			bound, ok := intArg(raw.Args[0], defines)
			if !ok {
				return nil, malformed(raw.Name, fmt.Sprintf("bound %q is not an integer constant", raw.Args[0]))
			}
			if gv.Pointer {
				return nil, malformed(raw.Name, "range attributes require an integer-typed variable")
			}
			kind := map[string]AttrKind{
				"chkc_lt": AttrRangeLT, "chkc_le": AttrRangeLE,
				"chkc_gt": AttrRangeGT, "chkc_ge": AttrRangeGE,
			}[raw.Name]
			gv.Attrs = append(gv.Attrs, Attribute{Kind: kind, Bound: bound})

		case "access", "nonnull", "returns_nonnull", "malloc",
			"chkc_preserves_memory", "chkc_preserves_all_memory":
			return nil, malformed(raw.Name, "attribute is only valid on function declarations")
		}
	}

	// range attributes on one symbol must be jointly satisfiable
	lo, hasLo, hi, hasHi := gv.RangeInterval()
	if hasLo && hasHi && lo > hi {
		return nil, malformed("chkc range",
			fmt.Sprintf("contradictory bounds: lower %d exceeds upper %d", lo, hi))
	}
	return gv, nil
}

// mergeFunction unions a redeclaration (prototype + definition) into one
// signature. Parameter info from the richer declaration wins.
func (m *Model) mergeFunction(sig *FunctionSignature) {
	existing, ok := m.Functions[sig.Name]
	if !ok {
		m.Functions[sig.Name] = sig
		return
	}
	existing.Attrs = append(existing.Attrs, sig.Attrs...)
	existing.HasBody = existing.HasBody || sig.HasBody
	if len(existing.Params) == 0 {
		existing.Params = sig.Params
	}
}

// mergeGlobal unions a redeclaration into one variable record. Each
// declaration contributes bounds independently, so the merged set needs
// its own satisfiability check.
func (m *Model) mergeGlobal(gv *GlobalVar) error {
	existing, ok := m.Globals[gv.Name]
	if !ok {
		m.Globals[gv.Name] = gv
		return nil
	}
	existing.Attrs = append(existing.Attrs, gv.Attrs...)
	if existing.ArraySize < 0 {
		existing.ArraySize = gv.ArraySize
	}

	lo, hasLo, hi, hasHi := existing.RangeInterval()
	if hasLo && hasHi && lo > hi {
		return &MalformedAttributeError{
			Decl: existing.Name,
			Attr: "chkc range",
			Reason: fmt.Sprintf(
				"contradictory bounds across declarations: lower %d exceeds upper %d", lo, hi),
		}
	}
	return nil
}

func (sig *FunctionSignature) paramIndex(arg string, defines map[string]int64) (int, error) {
	v, ok := intArg(arg, defines)
	if !ok || v < 1 {
		return 0, fmt.Errorf("argument index %q must be a positive integer", arg)
	}
	if int(v) > len(sig.Params) {
		return 0, fmt.Errorf("argument index %d exceeds the %d declared parameters", v, len(sig.Params))
	}
	return int(v), nil
}

func (sig *FunctionSignature) pointerParamIndex(arg string, defines map[string]int64) (int, error) {
	idx, err := sig.paramIndex(arg, defines)
	if err != nil {
		return 0, err
	}
	if !sig.Params[idx-1].Pointer {
		return 0, fmt.Errorf("argument index %d must name a pointer-typed parameter", idx)
	}
	return idx, nil
}

func accessMode(arg string) (AccessMode, bool) {
	switch canonicalName(arg) {
	case "read_only":
		return AccessReadOnly, true
	case "write_only":
		return AccessWriteOnly, true
	case "read_write":
		return AccessReadWrite, true
	case "none":
		return AccessNone, true
	}
	return 0, false
}
