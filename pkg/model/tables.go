package model

import (
	"slices"

	"github.com/raymyers/ralph-cdecl/pkg/constexpr"
	"github.com/raymyers/ralph-cdecl/pkg/ctypes"
)

// tables holds the namespaces of a model. Builder fills them one
// declaration at a time; Merge fills a fresh set from finalized models.
// Every add method keeps the first definition and reports a different
// second one as a *ConflictError.
type tables struct {
	typedefs    map[string]*Typedef
	typedefSeq  []*Typedef
	records     map[string]*Record
	recordSeq   []*Record
	enums       map[string]*Enum // tagged enums
	enumSeq     []*Enum
	enumerators map[string]*Enumerator
	functions   map[string]*Function
	functionSeq []*Function
	variables   map[string]*Variable
	variableSeq []*Variable
	constants   map[string]*Constant
	constantSeq []*Constant
	refs        []Ref
}

func newTables() *tables {
	return &tables{
		typedefs:    make(map[string]*Typedef),
		records:     make(map[string]*Record),
		enums:       make(map[string]*Enum),
		enumerators: make(map[string]*Enumerator),
		functions:   make(map[string]*Function),
		variables:   make(map[string]*Variable),
		constants:   make(map[string]*Constant),
	}
}

func (t *tables) addTypedef(td Typedef) error {
	if prev, ok := t.typedefs[td.Name]; ok {
		if ctypes.Equal(prev.Type, td.Type) {
			return nil
		}
		return &ConflictError{Kind: "typedef", Name: td.Name, Loc: td.Loc, Prev: prev.Loc}
	}
	p := &td
	t.typedefs[td.Name] = p
	t.typedefSeq = append(t.typedefSeq, p)
	return nil
}

// addRecord registers a tag. An opaque record only claims the tag; a
// complete one fills in an opaque entry and moves it to the definition
// point.
func (t *tables) addRecord(r Record) error {
	prev, ok := t.records[r.Tag]
	if !ok {
		p := &r
		t.records[r.Tag] = p
		t.recordSeq = append(t.recordSeq, p)
		return nil
	}
	if prev.Union != r.Union {
		return &ConflictError{Kind: r.Kind(), Name: r.Tag, Loc: r.Loc, Prev: prev.Loc}
	}
	switch {
	case !r.Complete:
		return nil
	case !prev.Complete:
		prev.Fields, prev.Complete, prev.Loc, prev.body = r.Fields, true, r.Loc, r.body
		t.recordSeq = moveToEnd(t.recordSeq, prev)
		return nil
	case prev.body == r.body || ctypes.Equal(prev.Type(), r.Type()):
		return nil
	}
	return &ConflictError{Kind: r.Kind(), Name: r.Tag, Loc: r.Loc, Prev: prev.Loc}
}

// addEnum registers an enum and returns the entry now in the model. added
// is true when e supplied a body the model did not have yet, in which
// case the caller adds its enumerators. Anonymous enums are deduplicated
// by body.
func (t *tables) addEnum(e Enum) (got *Enum, added bool, err error) {
	if e.Tag == "" {
		for _, prev := range t.enumSeq {
			if prev.Tag == "" && prev.body == e.body {
				return prev, false, nil
			}
		}
		p := &e
		t.enumSeq = append(t.enumSeq, p)
		return p, true, nil
	}
	prev, ok := t.enums[e.Tag]
	switch {
	case !ok:
		p := &e
		t.enums[e.Tag] = p
		t.enumSeq = append(t.enumSeq, p)
		return p, e.Complete, nil
	case !e.Complete:
		return prev, false, nil
	case !prev.Complete:
		prev.Items, prev.Complete, prev.Type, prev.Loc, prev.body = e.Items, true, e.Type, e.Loc, e.body
		t.enumSeq = moveToEnd(t.enumSeq, prev)
		return prev, true, nil
	case prev.body == e.body || sameItems(prev.Items, e.Items):
		return prev, false, nil
	}
	return prev, false, &ConflictError{Kind: "enum", Name: e.Tag, Loc: e.Loc, Prev: prev.Loc}
}

func (t *tables) addEnumerator(en Enumerator) error {
	if prev, ok := t.enumerators[en.Name]; ok {
		if prev.Resolved == en.Resolved && prev.Value == en.Value && prev.Expr == en.Expr {
			return nil
		}
		return &ConflictError{Kind: "enumerator", Name: en.Name, Loc: en.Loc, Prev: prev.Loc}
	}
	t.enumerators[en.Name] = &en
	return nil
}

func sameItems(a, b []Enumerator) bool {
	return slices.EqualFunc(a, b, func(x, y Enumerator) bool {
		return x.Name == y.Name && x.Resolved == y.Resolved && x.Value == y.Value
	})
}

// addFunction merges a prototype with a later definition or a fuller
// prototype. Types must agree except that `()` matches any parameter list
// with the same return type.
func (t *tables) addFunction(f Function) error {
	prev, ok := t.functions[f.Name]
	if !ok {
		p := &f
		t.functions[f.Name] = p
		t.functionSeq = append(t.functionSeq, p)
		return nil
	}
	if !compatibleFunctions(prev.Type, f.Type) {
		return &ConflictError{Kind: "function", Name: f.Name, Loc: f.Loc, Prev: prev.Loc}
	}
	if prev.Type.Unspecified && !f.Type.Unspecified {
		prev.Type = f.Type
	}
	prev.HasBody = prev.HasBody || f.HasBody
	prev.Inline = prev.Inline || f.Inline
	return nil
}

func compatibleFunctions(a, b ctypes.Tfunction) bool {
	if ctypes.Equal(a, b) {
		return true
	}
	return (a.Unspecified || b.Unspecified) && ctypes.Equal(a.Return, b.Return)
}

// addVariable merges `extern int a[];` with a later `int a[3];`
func (t *tables) addVariable(v Variable) error {
	prev, ok := t.variables[v.Name]
	if !ok {
		p := &v
		t.variables[v.Name] = p
		t.variableSeq = append(t.variableSeq, p)
		return nil
	}
	switch {
	case ctypes.Equal(prev.Type, v.Type):
	case completes(prev.Type, v.Type):
		prev.Type = v.Type
	case completes(v.Type, prev.Type):
	default:
		return &ConflictError{Kind: "variable", Name: v.Name, Loc: v.Loc, Prev: prev.Loc}
	}
	prev.HasInit = prev.HasInit || v.HasInit
	return nil
}

// completes reports whether b is the array type a leaves incomplete
func completes(a, b ctypes.Type) bool {
	x, ok1 := a.(ctypes.Tarray)
	y, ok2 := b.(ctypes.Tarray)
	return ok1 && ok2 && x.Len == ctypes.LenIncomplete && y.Len != ctypes.LenIncomplete && ctypes.Equal(x.Elem, y.Elem)
}

func (t *tables) addConstant(c Constant) error {
	if prev, ok := t.constants[c.Name]; ok {
		if prev.Kind == c.Kind && prev.Text == c.Text {
			return nil
		}
		return &ConflictError{Kind: "constant", Name: c.Name, Loc: c.Loc, Prev: prev.Loc}
	}
	p := &c
	t.constants[c.Name] = p
	t.constantSeq = append(t.constantSeq, p)
	return nil
}

func moveToEnd[T any](seq []*T, p *T) []*T {
	if i := slices.Index(seq, p); i >= 0 {
		seq = slices.Delete(seq, i, i+1)
	}
	return append(seq, p)
}

func (t *tables) hasTag(n ctypes.Tnamed) bool {
	switch n.Kind {
	case ctypes.KindStruct, ctypes.KindUnion:
		r, ok := t.records[n.Name]
		return ok && r.Union == (n.Kind == ctypes.KindUnion)
	case ctypes.KindEnum:
		_, ok := t.enums[n.Name]
		return ok
	}
	return false
}

func (t *tables) resolveNamed(n ctypes.Tnamed) (ctypes.Type, bool) {
	switch n.Kind {
	case ctypes.KindTypedef:
		if td, ok := t.typedefs[n.Name]; ok {
			return td.Type, true
		}
		return ctypes.WellKnown(n.Name)
	case ctypes.KindStruct, ctypes.KindUnion:
		r, ok := t.records[n.Name]
		if !ok || !r.Complete {
			return nil, false
		}
		return r.Type(), true
	case ctypes.KindEnum:
		e, ok := t.enums[n.Name]
		if !ok || !e.Complete {
			return nil, false
		}
		return e.Type, true
	}
	return nil, false
}

func (t *tables) lookup(name string) (constexpr.Value, bool) {
	if en, ok := t.enumerators[name]; ok {
		return en.Value, en.Resolved
	}
	if c, ok := t.constants[name]; ok && (c.Kind == ConstInt || c.Kind == ConstChar) {
		return c.Int, true
	}
	return constexpr.Value{}, false
}

func (t *tables) unresolved() []Ref {
	var out []Ref
	seen := make(map[string]bool)
	for _, r := range t.refs {
		if seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		if _, ok := t.typedefs[r.Name]; ok {
			continue
		}
		if _, ok := ctypes.WellKnown(r.Name); ok {
			continue
		}
		out = append(out, r)
	}
	return out
}
