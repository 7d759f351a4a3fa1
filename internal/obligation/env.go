package obligation

// localInfo records the declared shape of a local variable.
type localInfo struct {
	pointer   bool
	arraySize int64
}

// varState tracks the lifetime facts of one pointer-valued variable.
type varState struct {
	origin      Origin
	interveners []Intervener
	freed       bool
}

// env is the mutable fact environment threaded through the statement
// walk. Branch bodies get a clone; destructive effects (frees, calls the
// pointer passed through) are merged back conservatively.
type env struct {
	nonnull    map[string]bool
	locals     map[string]localInfo
	vars       map[string]*varState
	lowerGuard map[string]bool
	upperGuard map[string]int64
}

func newEnv() *env {
	return &env{
		nonnull:    map[string]bool{},
		locals:     map[string]localInfo{},
		vars:       map[string]*varState{},
		lowerGuard: map[string]bool{},
		upperGuard: map[string]int64{},
	}
}

func (e *env) clone() *env {
	c := newEnv()
	for k, v := range e.nonnull {
		c.nonnull[k] = v
	}
	for k, v := range e.locals {
		c.locals[k] = v
	}
	for k, v := range e.vars {
		state := *v
		state.interveners = append([]Intervener(nil), v.interveners...)
		c.vars[k] = &state
	}
	for k, v := range e.lowerGuard {
		c.lowerGuard[k] = v
	}
	for k, v := range e.upperGuard {
		c.upperGuard[k] = v
	}
	return c
}

// absorb merges destructive effects observed in a branch back into the
// parent: a free or an intervening call inside a taken-or-not branch must
// count afterwards, erring toward reporting.
func (e *env) absorb(branch *env) {
	for name, bs := range branch.vars {
		cur, ok := e.vars[name]
		if !ok {
			continue
		}
		if bs.freed {
			cur.freed = true
		}
		if len(bs.interveners) > len(cur.interveners) {
			cur.interveners = append([]Intervener(nil), bs.interveners...)
		}
	}
}

// state returns the tracked state of a variable, creating an untracked
// placeholder for names seen for the first time.
func (e *env) state(name string) *varState {
	if s, ok := e.vars[name]; ok {
		return s
	}
	s := &varState{origin: Origin{Kind: OriginUnknown, Name: name}}
	e.vars[name] = s
	return s
}

// reset drops all facts about a name; used on reassignment.
func (e *env) reset(name string) {
	delete(e.nonnull, name)
	delete(e.vars, name)
	delete(e.lowerGuard, name)
	delete(e.upperGuard, name)
}
