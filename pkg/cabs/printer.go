// Package cabs provides AST printing functionality
package cabs

import (
	"fmt"
	"io"
	"strings"
)

// Printer outputs declarations back as C
type Printer struct {
	w      io.Writer
	indent int
}

// NewPrinter creates a new AST printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, indent: 0}
}

// PrintDeclarations prints each declaration on its own line
func (p *Printer) PrintDeclarations(decls []*Declaration) {
	for _, d := range decls {
		p.PrintDeclaration(d)
	}
}

// PrintDeclaration prints one top-level declaration
func (p *Printer) PrintDeclaration(d *Declaration) {
	p.printSpec(d.Spec)
	for i, decl := range d.Declarators {
		if i > 0 {
			fmt.Fprint(p.w, ",")
		}
		if s := p.declaratorString(decl); s != "" {
			fmt.Fprint(p.w, " ", s)
		}
	}
	if d.HasBody {
		fmt.Fprintln(p.w, " { ... }")
		return
	}
	fmt.Fprintln(p.w, ";")
}

func (p *Printer) writeIndent() {
	fmt.Fprint(p.w, strings.Repeat("  ", p.indent))
}

func (p *Printer) printSpec(s *DeclSpec) {
	var words []string
	if s.Storage != StorageNone {
		words = append(words, s.Storage.String())
	}
	if s.Inline {
		words = append(words, "inline")
	}
	if s.Quals != 0 {
		words = append(words, s.Quals.String())
	}
	if len(words) > 0 {
		fmt.Fprint(p.w, strings.Join(words, " "), " ")
	}
	p.printTypeSpec(s.Type)
}

func (p *Printer) printTypeSpec(t TypeSpec) {
	switch t := t.(type) {
	case Primitive:
		fmt.Fprint(p.w, t.Name)
	case NamedType:
		fmt.Fprint(p.w, t.Name)
	case *RecordSpec:
		p.printRecordSpec(t)
	case *EnumSpec:
		p.printEnumSpec(t)
	default:
		fmt.Fprintf(p.w, "/* unknown type %T */", t)
	}
}

func (p *Printer) printRecordSpec(r *RecordSpec) {
	fmt.Fprint(p.w, r.Kind.String())
	if r.Tag != "" {
		fmt.Fprint(p.w, " ", r.Tag)
	}
	if !r.HasBody {
		return
	}
	fmt.Fprint(p.w, " {\n")
	p.indent++
	for _, f := range r.Fields {
		p.writeIndent()
		p.printSpec(f.Spec)
		if s := p.declaratorString(f.Decl); s != "" {
			fmt.Fprint(p.w, " ", s)
		}
		if f.BitWidth != nil {
			fmt.Fprint(p.w, " : ")
			p.printExpr(f.BitWidth)
		}
		fmt.Fprintln(p.w, ";")
	}
	p.indent--
	p.writeIndent()
	fmt.Fprint(p.w, "}")
}

func (p *Printer) printEnumSpec(e *EnumSpec) {
	fmt.Fprint(p.w, "enum")
	if e.Tag != "" {
		fmt.Fprint(p.w, " ", e.Tag)
	}
	if !e.HasBody {
		return
	}
	fmt.Fprint(p.w, " {\n")
	p.indent++
	for i, item := range e.Items {
		p.writeIndent()
		fmt.Fprint(p.w, item.Name)
		if item.Value != nil {
			fmt.Fprint(p.w, " = ")
			p.printExpr(item.Value)
		}
		if i < len(e.Items)-1 {
			fmt.Fprint(p.w, ",")
		}
		fmt.Fprintln(p.w)
	}
	p.indent--
	p.writeIndent()
	fmt.Fprint(p.w, "}")
}

// declaratorString renders a declarator inside out: pointers are prefixed,
// arrays and parameter lists appended, with parentheses wherever a suffix
// follows a pointer.
func (p *Printer) declaratorString(d *Declarator) string {
	if d == nil {
		return ""
	}
	s := d.Name
	prevPointer := false
	for _, m := range d.Mods {
		switch m := m.(type) {
		case *PointerMod:
			if m.Quals != 0 {
				s = "*" + m.Quals.String() + " " + s
			} else {
				s = "*" + s
			}
			s = strings.TrimRight(s, " ")
			prevPointer = true
			continue
		case *ArrayMod:
			if prevPointer {
				s = "(" + s + ")"
			}
			if m.Size == nil {
				s += "[]"
			} else {
				s += "[" + FormatExpr(m.Size) + "]"
			}
		case *FuncMod:
			if prevPointer {
				s = "(" + s + ")"
			}
			s += "(" + p.paramsString(m) + ")"
		}
		prevPointer = false
	}
	return s
}

func (p *Printer) paramsString(f *FuncMod) string {
	if f.Unspecified {
		return ""
	}
	var parts []string
	for _, param := range f.Params {
		var sb strings.Builder
		sub := &Printer{w: &sb}
		sub.printSpec(param.Spec)
		if s := sub.declaratorString(param.Decl); s != "" {
			sb.WriteString(" " + s)
		}
		parts = append(parts, sb.String())
	}
	if f.Variadic {
		parts = append(parts, "...")
	}
	if len(parts) == 0 {
		return "void"
	}
	return strings.Join(parts, ", ")
}

// FormatExpr renders an expression as C source
func FormatExpr(e Expr) string {
	var sb strings.Builder
	NewPrinter(&sb).printExpr(e)
	return sb.String()
}

// FormatDeclarator renders a declarator without its base type, e.g. "*(*A11)[3]".
func FormatDeclarator(d *Declarator) string {
	return (&Printer{}).declaratorString(d)
}

func (p *Printer) printExpr(expr Expr) {
	switch e := expr.(type) {
	case Constant:
		fmt.Fprint(p.w, e.Text)
	case Variable:
		fmt.Fprint(p.w, e.Name)
	case Unary:
		fmt.Fprint(p.w, e.Op.String())
		p.printExpr(e.Expr)
	case Binary:
		p.printExpr(e.Left)
		if e.Op == OpComma {
			fmt.Fprint(p.w, ", ")
		} else {
			fmt.Fprintf(p.w, " %s ", e.Op)
		}
		p.printExpr(e.Right)
	case Paren:
		fmt.Fprint(p.w, "(")
		p.printExpr(e.Expr)
		fmt.Fprint(p.w, ")")
	case Conditional:
		p.printExpr(e.Cond)
		fmt.Fprint(p.w, " ? ")
		p.printExpr(e.Then)
		fmt.Fprint(p.w, " : ")
		p.printExpr(e.Else)
	case Call:
		p.printExpr(e.Func)
		fmt.Fprint(p.w, "(")
		for i, arg := range e.Args {
			if i > 0 {
				fmt.Fprint(p.w, ", ")
			}
			p.printExpr(arg)
		}
		fmt.Fprint(p.w, ")")
	case Index:
		p.printExpr(e.Array)
		fmt.Fprint(p.w, "[")
		p.printExpr(e.Index)
		fmt.Fprint(p.w, "]")
	case SizeofExpr:
		fmt.Fprint(p.w, "sizeof ")
		p.printExpr(e.Expr)
	case SizeofType:
		fmt.Fprintf(p.w, "sizeof(%s)", e.Type)
	case Cast:
		fmt.Fprintf(p.w, "(%s)", e.Type)
		p.printExpr(e.Expr)
	default:
		fmt.Fprintf(p.w, "/* unknown expr %T */", expr)
	}
}

func (t TypeName) String() string {
	s := strings.Join(t.Words, " ")
	if t.Pointers > 0 {
		s += " " + strings.Repeat("*", t.Pointers)
	}
	return s
}
