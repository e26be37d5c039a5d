// Package model assembles parsed declarations into a queryable type model:
// typedefs, records, enums, functions, variables and macro constants, each
// listed in source order.
package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raymyers/ralph-cdecl/pkg/cabs"
	"github.com/raymyers/ralph-cdecl/pkg/constexpr"
	"github.com/raymyers/ralph-cdecl/pkg/ctypes"
)

// ErrUnresolvedType is returned by Resolve for a name the model does not
// define.
var ErrUnresolvedType = errors.New("unresolved type")

// ConflictError reports a second definition of a name with a different
// shape. The first definition is kept.
type ConflictError struct {
	Kind string // struct, union, enum, typedef, function, variable, enumerator or constant
	Name string
	Loc  cabs.Loc
	Prev cabs.Loc
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting definition of %s %s (previous definition at %s)", e.Kind, e.Name, e.Prev)
}

// Typedef is a typedef name and its target
type Typedef struct {
	Name string
	Type ctypes.Type
	Loc  cabs.Loc
}

// Record is a tagged struct or union. A record that was only referenced
// or forward-declared is opaque: Complete is false and Fields is empty.
type Record struct {
	Tag      string
	Union    bool
	Fields   []ctypes.Field
	Complete bool
	Loc      cabs.Loc

	body string
}

// Kind returns "struct" or "union"
func (r Record) Kind() string {
	if r.Union {
		return "union"
	}
	return "struct"
}

// Type returns the record as a Trecord
func (r Record) Type() ctypes.Trecord {
	return ctypes.Trecord{Union: r.Union, Fields: r.Fields}
}

// Enumerator is one enum member. Resolved is false when its value depends
// on something the model cannot evaluate; Expr keeps the written value.
type Enumerator struct {
	Name     string
	Value    constexpr.Value
	Resolved bool
	Expr     string
	Loc      cabs.Loc
}

// Enum is an enum definition. Tag is empty for an anonymous enum; Typedef
// names the first typedef declared for an anonymous enum.
type Enum struct {
	Tag      string
	Typedef  string
	Items    []Enumerator
	Complete bool
	Type     ctypes.Type // integer type holding every value
	Loc      cabs.Loc

	body string
}

// Function is a function declaration. A prototype followed by a
// definition is a single Function with HasBody set.
type Function struct {
	Name    string
	Type    ctypes.Tfunction
	Storage cabs.Storage
	Inline  bool
	HasBody bool
	Loc     cabs.Loc
}

// Variable is an object declaration at file scope
type Variable struct {
	Name    string
	Type    ctypes.Type
	Storage cabs.Storage
	HasInit bool
	Loc     cabs.Loc
}

// ConstKind classifies a macro constant
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstString
	ConstChar
)

func (k ConstKind) String() string {
	switch k {
	case ConstInt:
		return "int"
	case ConstFloat:
		return "float"
	case ConstString:
		return "string"
	}
	return "char"
}

// Constant is an object-like macro whose body is a constant. Int holds
// ConstInt and ConstChar values, Float ConstFloat and Str ConstString.
type Constant struct {
	Name  string
	Kind  ConstKind
	Int   constexpr.Value
	Float float64
	Str   string
	Text  string // body as written
	Loc   cabs.Loc
}

// Value renders the constant as C source
func (c Constant) Value() string {
	switch c.Kind {
	case ConstString:
		return fmt.Sprintf("%q", c.Str)
	case ConstFloat:
		return fmt.Sprintf("%g", c.Float)
	}
	return c.Int.String()
}

// Ref is a use of a typedef name
type Ref struct {
	Name string
	Loc  cabs.Loc
}

// Model is a finalized, read-only declaration model. Listings return
// copies in source order.
type Model struct {
	t *tables
}

// Typedefs lists the typedefs
func (m *Model) Typedefs() []Typedef {
	return values(m.t.typedefSeq)
}

// Records lists the tagged structs and unions. A record is placed where
// its body was defined, or where it was first mentioned if it is opaque.
func (m *Model) Records() []Record {
	return values(m.t.recordSeq)
}

// Enums lists the enums, anonymous ones included
func (m *Model) Enums() []Enum {
	return values(m.t.enumSeq)
}

// Functions lists the functions
func (m *Model) Functions() []Function {
	return values(m.t.functionSeq)
}

// Variables lists the file-scope objects
func (m *Model) Variables() []Variable {
	return values(m.t.variableSeq)
}

// Constants lists the macro constants
func (m *Model) Constants() []Constant {
	return values(m.t.constantSeq)
}

// Typedef looks up a typedef by name
func (m *Model) Typedef(name string) (Typedef, bool) {
	return lookup(m.t.typedefs, name)
}

// Record looks up a struct or union by tag
func (m *Model) Record(tag string) (Record, bool) {
	return lookup(m.t.records, tag)
}

// Enum looks up an enum by tag
func (m *Model) Enum(tag string) (Enum, bool) {
	return lookup(m.t.enums, tag)
}

// Enumerator looks up an enum member by name
func (m *Model) Enumerator(name string) (Enumerator, bool) {
	return lookup(m.t.enumerators, name)
}

// Function looks up a function by name
func (m *Model) Function(name string) (Function, bool) {
	return lookup(m.t.functions, name)
}

// Constant looks up a macro constant by name
func (m *Model) Constant(name string) (Constant, bool) {
	return lookup(m.t.constants, name)
}

// Unresolved lists typedef names that were used but never defined and
// are not standard library names, each at its first use.
func (m *Model) Unresolved() []Ref {
	return m.t.unresolved()
}

// Lookup implements constexpr.Context: enumerators, then integer and
// character constants.
func (m *Model) Lookup(name string) (constexpr.Value, bool) {
	return m.t.lookup(name)
}

// ResolveNamed implements ctypes.Resolver
func (m *Model) ResolveNamed(n ctypes.Tnamed) (ctypes.Type, bool) {
	return m.t.resolveNamed(n)
}

// Resolve returns the type a name denotes. name is a typedef name or a tag
// written as "struct T", "union T" or "enum T". Typedef chains are
// followed to the first type that is not a typedef name; tags resolve to
// themselves once known. Unknown names give an error wrapping
// ErrUnresolvedType.
func (m *Model) Resolve(name string) (ctypes.Type, error) {
	n := parseName(name)
	if n.Kind.IsTag() {
		if !m.t.hasTag(n) {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedType, name)
		}
		return n, nil
	}
	for depth := 0; depth < maxChain; depth++ {
		td, ok := m.t.typedefs[n.Name]
		if !ok {
			if prim, ok := ctypes.WellKnown(n.Name); ok {
				return prim, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedType, n.Name)
		}
		next, ok := td.Type.(ctypes.Tnamed)
		if !ok || next.Kind != ctypes.KindTypedef {
			return td.Type, nil
		}
		n = next
	}
	return nil, fmt.Errorf("%w: typedef cycle through %s", ErrUnresolvedType, name)
}

// Sizeof returns the LP64 size of a named type
func (m *Model) Sizeof(name string) (int64, bool) {
	t, err := m.Resolve(name)
	if err != nil {
		return 0, false
	}
	return ctypes.Sizeof(t, m)
}

// Signature reports whether t is a function type or a pointer to one,
// looking through qualifiers. isPointer tells the two apart: `typedef
// int A13(int, int)` is a function type, `typedef int (*A13)(int, int)`
// a pointer to one.
func Signature(t ctypes.Type) (fn ctypes.Tfunction, isPointer, ok bool) {
	t, _ = ctypes.Unqualified(t)
	if p, isPtr := t.(ctypes.Tpointer); isPtr {
		elem, _ := ctypes.Unqualified(p.Elem)
		fn, ok = elem.(ctypes.Tfunction)
		return fn, true, ok
	}
	fn, ok = t.(ctypes.Tfunction)
	return fn, false, ok
}

const maxChain = 64

func parseName(name string) ctypes.Tnamed {
	name = strings.TrimSpace(name)
	for kind, prefix := range map[ctypes.NamedKind]string{
		ctypes.KindStruct: "struct ",
		ctypes.KindUnion:  "union ",
		ctypes.KindEnum:   "enum ",
	} {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			return ctypes.Tnamed{Kind: kind, Name: strings.TrimSpace(rest)}
		}
	}
	return ctypes.Tnamed{Kind: ctypes.KindTypedef, Name: name}
}

func values[T any](seq []*T) []T {
	out := make([]T, len(seq))
	for i, p := range seq {
		out[i] = *p
	}
	return out
}

func lookup[T any](m map[string]*T, name string) (T, bool) {
	p, ok := m[name]
	if !ok {
		var zero T
		return zero, false
	}
	return *p, true
}
