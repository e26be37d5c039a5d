// Package ctypes defines the resolved C type graph. Named types are
// lookup keys into a declaration model, never owning links, so recursive
// and forward-declared records need no cycles.
package ctypes

import (
	"fmt"
	"strings"
)

// Type is a resolved C type. String renders it in the model notation.
type Type interface {
	implType()
	String() string
}

// Signedness of an integer type
type Signedness int

const (
	Signed Signedness = iota
	Unsigned
)

func (s Signedness) String() string {
	if s == Signed {
		return "signed"
	}
	return "unsigned"
}

// IntSize represents the size of integer types narrower than long
type IntSize int

const (
	I8 IntSize = iota
	I16
	I32
	IBool
)

func (s IntSize) String() string {
	switch s {
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	}
	return "bool"
}

// FloatSize is the width of a floating type
type FloatSize int

const (
	F32 FloatSize = iota
	F64
	F128 // long double
)

func (s FloatSize) String() string {
	switch s {
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return "f128"
}

// Qualifiers on a type level
type Qualifiers uint8

const (
	Const Qualifiers = 1 << iota
	Volatile
	Restrict
	Atomic
)

func (q Qualifiers) String() string {
	var parts []string
	if q&Const != 0 {
		parts = append(parts, "const")
	}
	if q&Volatile != 0 {
		parts = append(parts, "volatile")
	}
	if q&Restrict != 0 {
		parts = append(parts, "restrict")
	}
	if q&Atomic != 0 {
		parts = append(parts, "atomic")
	}
	return strings.Join(parts, " ")
}

// NamedKind tells which namespace a Tnamed refers to
type NamedKind int

const (
	KindTypedef NamedKind = iota
	KindStruct
	KindUnion
	KindEnum
)

func (k NamedKind) String() string {
	names := []string{"typedef", "struct", "union", "enum"}
	if int(k) < len(names) {
		return names[k]
	}
	return "?"
}

// IsTag reports whether the kind lives in the tag namespace
func (k NamedKind) IsTag() bool {
	return k != KindTypedef
}

// ArrayLen tells how an array length is known
type ArrayLen int

const (
	LenKnown      ArrayLen = iota
	LenIncomplete          // []
	LenUnresolved          // bound expression could not be evaluated
)

type Tvoid struct{}

// Tint represents integer types (char, short, int, _Bool)
type Tint struct {
	Size IntSize
	Sign Signedness
}

// Tlong represents the 64-bit integer types long and long long
type Tlong struct {
	Sign     Signedness
	LongLong bool
}

// Tfloat represents floating-point types (float, double, long double)
type Tfloat struct {
	Size FloatSize
}

// Tpointer represents pointer types. Qualifiers of the pointer itself
// (`* const`) are a Tqualified around the Tpointer.
type Tpointer struct {
	Elem Type
}

// Tqualified adds qualifiers to one level of a type
type Tqualified struct {
	Quals Qualifiers
	Elem  Type
}

// Tarray represents array types. Expr keeps the bound text when Len is
// LenUnresolved.
type Tarray struct {
	Elem Type
	Size int64
	Len  ArrayLen
	Expr string
}

// Param is one function parameter. Declared is the type as written;
// Type is the adjusted type (arrays and functions decay to pointers).
type Param struct {
	Name     string
	Type     Type
	Declared Type
}

// Tfunction represents function types. Unspecified marks a `()` prototype.
type Tfunction struct {
	Params      []Param
	Return      Type
	VarArg      bool
	Unspecified bool
}

// Tnamed refers to a typedef or tag by name
type Tnamed struct {
	Kind NamedKind
	Name string
}

// Field represents a struct or union field. BitWidth is -1 for ordinary
// fields. Name is empty for an anonymous member record.
type Field struct {
	Name     string
	Type     Type
	BitWidth int
}

// Trecord is an anonymous struct or union owned by the field or typedef
// that declares it.
type Trecord struct {
	Union  bool
	Fields []Field
}

// Tenum is an anonymous enum used in place. Its members live in the
// model; Members spells them, as in "A=0, B=1", so enums with different
// bodies are different types.
type Tenum struct {
	Members string
}

func (Tvoid) implType()      {}
func (Tint) implType()       {}
func (Tlong) implType()      {}
func (Tfloat) implType()     {}
func (Tpointer) implType()   {}
func (Tqualified) implType() {}
func (Tarray) implType()     {}
func (Tfunction) implType()  {}
func (Tnamed) implType()     {}
func (Trecord) implType()    {}
func (Tenum) implType()      {}

// String methods render Go-style, read left to right:
// `*[3]*char` is a pointer to an array of 3 pointers to char.
func (Tvoid) String() string { return "void" }

func (t Tint) String() string {
	sign := ""
	if t.Sign == Unsigned {
		sign = "unsigned "
	}
	switch t.Size {
	case I8:
		return sign + "char"
	case I16:
		return sign + "short"
	case I32:
		return sign + "int"
	case IBool:
		return "_Bool"
	}
	return sign + "int"
}

func (t Tlong) String() string {
	s := "long"
	if t.LongLong {
		s = "long long"
	}
	if t.Sign == Unsigned {
		return "unsigned " + s
	}
	return s
}

func (t Tfloat) String() string {
	switch t.Size {
	case F32:
		return "float"
	case F64:
		return "double"
	}
	return "long double"
}

func (t Tpointer) String() string {
	if t.Elem == nil {
		return "*void"
	}
	return "*" + t.Elem.String()
}

func (t Tqualified) String() string {
	return t.Quals.String() + " " + t.Elem.String()
}

func (t Tarray) String() string {
	elem := "?"
	if t.Elem != nil {
		elem = t.Elem.String()
	}
	switch t.Len {
	case LenIncomplete:
		return "[]" + elem
	case LenUnresolved:
		return "[" + t.Expr + "]" + elem
	}
	return fmt.Sprintf("[%d]%s", t.Size, elem)
}

func (t Tfunction) String() string {
	var parts []string
	for _, p := range t.Params {
		parts = append(parts, p.Type.String())
	}
	if t.VarArg {
		parts = append(parts, "...")
	}
	s := "func(" + strings.Join(parts, ", ") + ")"
	if t.Unspecified {
		s = "func(?)"
	}
	if t.Return != nil {
		if _, void := t.Return.(Tvoid); !void {
			s += " " + t.Return.String()
		}
	}
	return s
}

func (t Tnamed) String() string {
	if t.Kind == KindTypedef {
		return t.Name
	}
	return t.Kind.String() + " " + t.Name
}

func (t Trecord) String() string {
	var sb strings.Builder
	if t.Union {
		sb.WriteString("union {")
	} else {
		sb.WriteString("struct {")
	}
	for i, f := range t.Fields {
		if i > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(" ")
		if f.Name != "" {
			sb.WriteString(f.Name + " ")
		}
		sb.WriteString(f.Type.String())
		if f.BitWidth >= 0 {
			fmt.Fprintf(&sb, " : %d", f.BitWidth)
		}
	}
	sb.WriteString(" }")
	return sb.String()
}

func (e Tenum) String() string {
	if e.Members == "" {
		return "enum {}"
	}
	return "enum { " + e.Members + " }"
}

// Shorthands for the types header code uses most. char is signed, as on
// the LP64 targets the sizes assume.
func Void() Type   { return Tvoid{} }
func Char() Type   { return Tint{Size: I8, Sign: Signed} }
func UChar() Type  { return Tint{Size: I8, Sign: Unsigned} }
func Short() Type  { return Tint{Size: I16, Sign: Signed} }
func Int() Type    { return Tint{Size: I32, Sign: Signed} }
func UInt() Type   { return Tint{Size: I32, Sign: Unsigned} }
func Long() Type   { return Tlong{Sign: Signed} }
func Float() Type  { return Tfloat{Size: F32} }
func Double() Type { return Tfloat{Size: F64} }

// Pointer returns *elem
func Pointer(elem Type) Type { return Tpointer{Elem: elem} }

// Array returns an array type of known length
func Array(elem Type, size int64) Type {
	return Tarray{Elem: elem, Size: size, Len: LenKnown}
}

// Qualify wraps t with quals, merging with an existing qualifier level.
func Qualify(t Type, quals Qualifiers) Type {
	if quals == 0 {
		return t
	}
	if q, ok := t.(Tqualified); ok {
		return Tqualified{Quals: q.Quals | quals, Elem: q.Elem}
	}
	return Tqualified{Quals: quals, Elem: t}
}

// Unqualified strips one level of qualifiers
func Unqualified(t Type) (Type, Qualifiers) {
	if q, ok := t.(Tqualified); ok {
		return q.Elem, q.Quals
	}
	return t, 0
}

// Decay adjusts a parameter type: arrays become pointers to their element
// and functions become pointers to functions. Qualifiers on the array
// level are dropped.
func Decay(t Type) Type {
	switch u := t.(type) {
	case Tarray:
		return Tpointer{Elem: u.Elem}
	case Tfunction:
		return Tpointer{Elem: u}
	case Tqualified:
		if _, ok := u.Elem.(Tarray); ok {
			return Decay(u.Elem)
		}
	}
	return t
}

// primitives maps canonical C spellings to types
var primitives = map[string]Type{
	"void":               Tvoid{},
	"char":               Tint{Size: I8, Sign: Signed},
	"signed char":        Tint{Size: I8, Sign: Signed},
	"unsigned char":      Tint{Size: I8, Sign: Unsigned},
	"short":              Tint{Size: I16, Sign: Signed},
	"unsigned short":     Tint{Size: I16, Sign: Unsigned},
	"int":                Tint{Size: I32, Sign: Signed},
	"unsigned int":       Tint{Size: I32, Sign: Unsigned},
	"long":               Tlong{Sign: Signed},
	"unsigned long":      Tlong{Sign: Unsigned},
	"long long":          Tlong{Sign: Signed, LongLong: true},
	"unsigned long long": Tlong{Sign: Unsigned, LongLong: true},
	"_Bool":              Tint{Size: IBool, Sign: Unsigned},
	"float":              Tfloat{Size: F32},
	"double":             Tfloat{Size: F64},
	"long double":        Tfloat{Size: F128},
}

// Primitive returns the type for a canonical primitive spelling such as
// "unsigned long long".
func Primitive(name string) (Type, bool) {
	t, ok := primitives[name]
	return t, ok
}

// wellKnown holds the <stdint.h>, <stddef.h> and <stdbool.h> names a header
// may use without including them. LP64.
var wellKnown = map[string]string{
	"int8_t":         "signed char",
	"int16_t":        "short",
	"int32_t":        "int",
	"int64_t":        "long",
	"uint8_t":        "unsigned char",
	"uint16_t":       "unsigned short",
	"uint32_t":       "unsigned int",
	"uint64_t":       "unsigned long",
	"int_least8_t":   "signed char",
	"int_least16_t":  "short",
	"int_least32_t":  "int",
	"int_least64_t":  "long",
	"uint_least8_t":  "unsigned char",
	"uint_least16_t": "unsigned short",
	"uint_least32_t": "unsigned int",
	"uint_least64_t": "unsigned long",
	"int_fast8_t":    "signed char",
	"int_fast16_t":   "long",
	"int_fast32_t":   "long",
	"int_fast64_t":   "long",
	"uint_fast8_t":   "unsigned char",
	"uint_fast16_t":  "unsigned long",
	"uint_fast32_t":  "unsigned long",
	"uint_fast64_t":  "unsigned long",
	"intptr_t":       "long",
	"uintptr_t":      "unsigned long",
	"intmax_t":       "long",
	"uintmax_t":      "unsigned long",
	"size_t":         "unsigned long",
	"ssize_t":        "long",
	"ptrdiff_t":      "long",
	"wchar_t":        "int",
	"char16_t":       "unsigned short",
	"char32_t":       "unsigned int",
	"bool":           "_Bool",
}

// WellKnown returns the primitive behind a standard typedef name.
func WellKnown(name string) (Type, bool) {
	prim, ok := wellKnown[name]
	if !ok {
		return nil, false
	}
	return primitives[prim], true
}

// Equal checks if two types are equal
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch ta := a.(type) {
	case Tvoid:
		_, ok := b.(Tvoid)
		return ok
	case Tint:
		tb, ok := b.(Tint)
		return ok && ta.Size == tb.Size && ta.Sign == tb.Sign
	case Tlong:
		tb, ok := b.(Tlong)
		return ok && ta.Sign == tb.Sign && ta.LongLong == tb.LongLong
	case Tfloat:
		tb, ok := b.(Tfloat)
		return ok && ta.Size == tb.Size
	case Tpointer:
		tb, ok := b.(Tpointer)
		return ok && Equal(ta.Elem, tb.Elem)
	case Tqualified:
		tb, ok := b.(Tqualified)
		return ok && ta.Quals == tb.Quals && Equal(ta.Elem, tb.Elem)
	case Tarray:
		tb, ok := b.(Tarray)
		return ok && ta.Len == tb.Len && ta.Size == tb.Size && ta.Expr == tb.Expr && Equal(ta.Elem, tb.Elem)
	case Tnamed:
		tb, ok := b.(Tnamed)
		return ok && ta == tb
	case Tenum:
		tb, ok := b.(Tenum)
		return ok && ta.Members == tb.Members
	case Trecord:
		tb, ok := b.(Trecord)
		if !ok || ta.Union != tb.Union || len(ta.Fields) != len(tb.Fields) {
			return false
		}
		for i, f := range ta.Fields {
			g := tb.Fields[i]
			if f.Name != g.Name || f.BitWidth != g.BitWidth || !Equal(f.Type, g.Type) {
				return false
			}
		}
		return true
	case Tfunction:
		tb, ok := b.(Tfunction)
		if !ok || ta.VarArg != tb.VarArg || ta.Unspecified != tb.Unspecified || len(ta.Params) != len(tb.Params) {
			return false
		}
		if !Equal(ta.Return, tb.Return) {
			return false
		}
		for i, p := range ta.Params {
			if !Equal(p.Type, tb.Params[i].Type) {
				return false
			}
		}
		return true
	}
	return false
}
