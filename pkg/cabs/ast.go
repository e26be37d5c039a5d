// Package cabs defines the raw syntax tree for C declarations: the untyped
// nodes the parser produces before the type model resolves them.
package cabs

import "fmt"

// Node is any node of the declaration tree
type Node interface {
	implCabsNode()
}

// Expr is a constant expression as written: array sizes, bitfield widths,
// enumerator values and macro bodies.
type Expr interface {
	Node
	implCabsExpr()
}

// Loc is a source position
type Loc struct {
	File   string
	Line   int
	Column int
}

func (l Loc) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// BinaryOp is a binary operator of a constant expression
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpAnd // &&
	OpOr  // ||
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl // <<
	OpShr // >>
	OpComma
)

var binarySpelling = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=", OpEq: "==", OpNe: "!=",
	OpAnd: "&&", OpOr: "||",
	OpBitAnd: "&", OpBitOr: "|", OpBitXor: "^", OpShl: "<<", OpShr: ">>",
	OpComma: ",",
}

// String returns the operator as written in C
func (op BinaryOp) String() string {
	if op >= 0 && int(op) < len(binarySpelling) {
		return binarySpelling[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// UnaryOp is a prefix operator
type UnaryOp int

const (
	OpNeg    UnaryOp = iota // -
	OpNot                   // !
	OpBitNot                // ~
	OpPlus                  // +
)

var unarySpelling = [...]string{OpNeg: "-", OpNot: "!", OpBitNot: "~", OpPlus: "+"}

func (op UnaryOp) String() string {
	if op >= 0 && int(op) < len(unarySpelling) {
		return unarySpelling[op]
	}
	return fmt.Sprintf("UnaryOp(%d)", int(op))
}

// ConstKind classifies a literal
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstChar
	ConstString
)

// Constant is a literal kept in its source spelling, e.g. 10UL or '\x4E'.
// Interpretation happens in the evaluator.
type Constant struct {
	Kind ConstKind
	Text string
}

// Variable is an identifier: a macro, enumerator or other name resolved
// later by the evaluator
type Variable struct {
	Name string
}

type Unary struct {
	Op   UnaryOp
	Expr Expr
}

type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// Paren keeps source parentheses so printing round-trips
type Paren struct {
	Expr Expr
}

// Conditional is cond ? then : else
type Conditional struct {
	Cond Expr
	Then Expr
	Else Expr
}

// Call is never constant; it is kept so the expression can be printed
type Call struct {
	Func Expr
	Args []Expr
}

type Index struct {
	Array Expr
	Index Expr
}

// TypeName is the type operand of a cast or sizeof. Words holds the
// specifier words in source order ("unsigned", "long", or "struct", "foo").
type TypeName struct {
	Words    []string
	Pointers int
}

// Cast is (type)expr
type Cast struct {
	Type TypeName
	Expr Expr
}

// SizeofType is sizeof(type)
type SizeofType struct {
	Type TypeName
}

// SizeofExpr is sizeof applied to an expression
type SizeofExpr struct {
	Expr Expr
}

func (Constant) implCabsNode()    {}
func (Constant) implCabsExpr()    {}
func (Variable) implCabsNode()    {}
func (Variable) implCabsExpr()    {}
func (Unary) implCabsNode()       {}
func (Unary) implCabsExpr()       {}
func (Binary) implCabsNode()      {}
func (Binary) implCabsExpr()      {}
func (Paren) implCabsNode()       {}
func (Paren) implCabsExpr()       {}
func (Conditional) implCabsNode() {}
func (Conditional) implCabsExpr() {}
func (Call) implCabsNode()        {}
func (Call) implCabsExpr()        {}
func (Index) implCabsNode()       {}
func (Index) implCabsExpr()       {}
func (Cast) implCabsNode()        {}
func (Cast) implCabsExpr()        {}
func (SizeofType) implCabsNode()  {}
func (SizeofType) implCabsExpr()  {}
func (SizeofExpr) implCabsNode()  {}
func (SizeofExpr) implCabsExpr()  {}
