package cabs

import "strings"

// Storage is the storage class of a declaration
type Storage int

const (
	StorageNone Storage = iota
	StorageTypedef
	StorageExtern
	StorageStatic
	StorageAuto
	StorageRegister
)

func (s Storage) String() string {
	names := []string{"", "typedef", "extern", "static", "auto", "register"}
	if int(s) < len(names) {
		return names[s]
	}
	return "?"
}

// Qualifiers is a set of type qualifiers
type Qualifiers uint8

const (
	QualConst Qualifiers = 1 << iota
	QualVolatile
	QualRestrict
	QualAtomic
)

func (q Qualifiers) String() string {
	var parts []string
	if q&QualConst != 0 {
		parts = append(parts, "const")
	}
	if q&QualVolatile != 0 {
		parts = append(parts, "volatile")
	}
	if q&QualRestrict != 0 {
		parts = append(parts, "restrict")
	}
	if q&QualAtomic != 0 {
		parts = append(parts, "_Atomic")
	}
	return strings.Join(parts, " ")
}

// DeclSpec is the shared part of a declaration: storage class, qualifiers
// and the base type. Every declarator of a statement points at the same
// DeclSpec.
type DeclSpec struct {
	Storage Storage
	Inline  bool
	Quals   Qualifiers
	Type    TypeSpec
	Loc     Loc
}

// TypeSpec is the base type named by a DeclSpec
type TypeSpec interface {
	Node
	implTypeSpec()
}

// Primitive is a builtin arithmetic type or void, in canonical spelling
// such as "unsigned long long" or "long double".
type Primitive struct {
	Name string
}

// NamedType is a reference to a typedef name. The name may be unknown when
// parsed, in which case it stays an opaque reference.
type NamedType struct {
	Name string
}

// RecordKind tells a struct from a union
type RecordKind int

const (
	Struct RecordKind = iota
	Union
)

func (k RecordKind) String() string {
	if k == Union {
		return "union"
	}
	return "struct"
}

// RecordSpec is a struct or union specifier. Without a body it is a
// reference (or forward declaration) to the tag.
type RecordSpec struct {
	Kind    RecordKind
	Tag     string // empty for anonymous records
	Fields  []*Field
	HasBody bool
	Body    string // normalized body text, used to compare re-declarations
	Loc     Loc
}

// Field is one member of a record. Members declared together share Spec.
// Decl.Name is empty for an anonymous struct or union member.
type Field struct {
	Spec     *DeclSpec
	Decl     *Declarator
	BitWidth Expr // nil unless a bitfield
}

// EnumSpec is an enum specifier
type EnumSpec struct {
	Tag     string
	Items   []*Enumerator
	HasBody bool
	Body    string
	Loc     Loc
}

// Enumerator is one enum member. Value is nil when implicit.
type Enumerator struct {
	Name  string
	Value Expr
	Loc   Loc
}

func (Primitive) implCabsNode()   {}
func (Primitive) implTypeSpec()   {}
func (NamedType) implCabsNode()   {}
func (NamedType) implTypeSpec()   {}
func (*RecordSpec) implCabsNode() {}
func (*RecordSpec) implTypeSpec() {}
func (*EnumSpec) implCabsNode()   {}
func (*EnumSpec) implTypeSpec()   {}

// Declarator is one declared name plus its modifier chain. Mods run from
// the name outward: for `char *(*A11)[3]` they are pointer, array 3,
// pointer, so the type reads "pointer to array of 3 pointers to char".
type Declarator struct {
	Name    string
	Mods    []Mod
	HasInit bool
	Loc     Loc
}

// IsFunction reports whether the declarator declares a function rather
// than an object (the modifier closest to the name is a parameter list).
func (d *Declarator) IsFunction() bool {
	if d == nil || len(d.Mods) == 0 {
		return false
	}
	_, ok := d.Mods[0].(*FuncMod)
	return ok
}

// Mod is one link of a declarator chain
type Mod interface {
	implMod()
}

// PointerMod is a `*` with the qualifiers written after it
type PointerMod struct {
	Quals Qualifiers
}

// ArrayMod is `[size]`. Size is nil for an incomplete array.
type ArrayMod struct {
	Size Expr
}

// FuncMod is a parameter list. Unspecified marks `()`, which in C declares
// a function whose parameters are not given.
type FuncMod struct {
	Params      []*Param
	Variadic    bool
	Unspecified bool
}

// Param is one parameter. Decl.Name may be empty.
type Param struct {
	Spec *DeclSpec
	Decl *Declarator
	Loc  Loc
}

func (*PointerMod) implMod() {}
func (*ArrayMod) implMod()   {}
func (*FuncMod) implMod()    {}

// Declaration is one top-level statement: a shared DeclSpec and zero or
// more declarators. A function definition has HasBody set and exactly one
// declarator; its body is not kept.
type Declaration struct {
	Spec        *DeclSpec
	Declarators []*Declarator
	HasBody     bool
	Loc         Loc
}

func (*Declaration) implCabsNode() {}

// IsTypedef reports whether the statement is a typedef
func (d *Declaration) IsTypedef() bool {
	return d.Spec != nil && d.Spec.Storage == StorageTypedef
}
