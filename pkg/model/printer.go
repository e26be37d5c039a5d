package model

import (
	"fmt"
	"io"
	"strings"

	"github.com/raymyers/ralph-cdecl/pkg/cabs"
	"github.com/raymyers/ralph-cdecl/pkg/ctypes"
)

// Printer outputs a model as text, one entry per line. Types are written
// left to right, so `*[3]*char` is a pointer to an array of 3 pointers
// to char.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new model printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintModel prints every section of m that has entries, separated by a
// blank line.
func (p *Printer) PrintModel(m *Model) {
	sections := []func(*Printer, *Model) bool{
		(*Printer).printConstants,
		(*Printer).printRecords,
		(*Printer).printEnums,
		(*Printer).printTypedefs,
		(*Printer).printVariables,
		(*Printer).printFunctions,
	}
	printed := false
	for _, section := range sections {
		var sb strings.Builder
		if !section(&Printer{w: &sb}, m) {
			continue
		}
		if printed {
			fmt.Fprintln(p.w)
		}
		fmt.Fprint(p.w, sb.String())
		printed = true
	}
}

func (p *Printer) printConstants(m *Model) bool {
	for _, c := range m.Constants() {
		fmt.Fprintf(p.w, "#define %s %s // %s\n", c.Name, c.Value(), c.Kind)
	}
	return len(m.Constants()) > 0
}

func (p *Printer) printRecords(m *Model) bool {
	for _, r := range m.Records() {
		if !r.Complete {
			fmt.Fprintf(p.w, "%s %s;\n", r.Kind(), r.Tag)
			continue
		}
		fmt.Fprintf(p.w, "%s %s {\n", r.Kind(), r.Tag)
		for _, f := range r.Fields {
			p.printField(f, 1)
		}
		fmt.Fprintln(p.w, "}")
	}
	return len(m.Records()) > 0
}

func (p *Printer) printField(f ctypes.Field, depth int) {
	indent := strings.Repeat("  ", depth)
	name := f.Name
	if name == "" {
		name = "_"
	}
	if rec, ok := f.Type.(ctypes.Trecord); ok {
		kind := "struct"
		if rec.Union {
			kind = "union"
		}
		fmt.Fprintf(p.w, "%s%s %s {\n", indent, name, kind)
		for _, inner := range rec.Fields {
			p.printField(inner, depth+1)
		}
		fmt.Fprintf(p.w, "%s}\n", indent)
		return
	}
	if f.BitWidth >= 0 {
		fmt.Fprintf(p.w, "%s%s %s : %d\n", indent, name, f.Type, f.BitWidth)
		return
	}
	fmt.Fprintf(p.w, "%s%s %s\n", indent, name, f.Type)
}

func (p *Printer) printEnums(m *Model) bool {
	for _, e := range m.Enums() {
		name := e.Tag
		switch {
		case name == "" && e.Typedef != "":
			name = "/* " + e.Typedef + " */"
		case name == "":
			name = "/* anonymous */"
		}
		if !e.Complete {
			fmt.Fprintf(p.w, "enum %s;\n", name)
			continue
		}
		fmt.Fprintf(p.w, "enum %s {\n", name)
		for _, it := range e.Items {
			if it.Resolved {
				fmt.Fprintf(p.w, "  %s = %s\n", it.Name, it.Value)
			} else {
				fmt.Fprintf(p.w, "  %s = %s // unresolved\n", it.Name, it.Expr)
			}
		}
		fmt.Fprintln(p.w, "}")
	}
	return len(m.Enums()) > 0
}

func (p *Printer) printTypedefs(m *Model) bool {
	for _, td := range m.Typedefs() {
		fmt.Fprintf(p.w, "typedef %s = %s\n", td.Name, td.Type)
	}
	return len(m.Typedefs()) > 0
}

func (p *Printer) printVariables(m *Model) bool {
	for _, v := range m.Variables() {
		fmt.Fprintf(p.w, "%svar %s %s\n", storagePrefix(v.Storage, false), v.Name, v.Type)
	}
	return len(m.Variables()) > 0
}

func (p *Printer) printFunctions(m *Model) bool {
	for _, f := range m.Functions() {
		sig := strings.TrimPrefix(f.Type.String(), "func")
		line := fmt.Sprintf("%sfunc %s%s", storagePrefix(f.Storage, f.Inline), f.Name, sig)
		if f.HasBody {
			line += " { ... }"
		}
		fmt.Fprintln(p.w, line)
	}
	return len(m.Functions()) > 0
}

func storagePrefix(s cabs.Storage, inline bool) string {
	var words []string
	if s != cabs.StorageNone {
		words = append(words, s.String())
	}
	if inline {
		words = append(words, "inline")
	}
	if len(words) == 0 {
		return ""
	}
	return strings.Join(words, " ") + " "
}
