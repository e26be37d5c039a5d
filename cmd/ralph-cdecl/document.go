package main

import (
	"github.com/raymyers/ralph-cdecl/pkg/ctypes"
	"github.com/raymyers/ralph-cdecl/pkg/model"
)

// document is the YAML form of a model. Types are written as strings in
// the model printer's notation.
type document struct {
	Constants  []constantDoc `yaml:"constants,omitempty"`
	Records    []recordDoc   `yaml:"records,omitempty"`
	Enums      []enumDoc     `yaml:"enums,omitempty"`
	Typedefs   []typedefDoc  `yaml:"typedefs,omitempty"`
	Variables  []variableDoc `yaml:"variables,omitempty"`
	Functions  []functionDoc `yaml:"functions,omitempty"`
	Unresolved []string      `yaml:"unresolved,omitempty"`
}

type constantDoc struct {
	Name  string `yaml:"name"`
	Kind  string `yaml:"kind"`
	Value string `yaml:"value"`
	Loc   string `yaml:"loc"`
}

type fieldDoc struct {
	Name   string     `yaml:"name,omitempty"`
	Type   string     `yaml:"type"`
	Bits   *int       `yaml:"bits,omitempty"`
	Fields []fieldDoc `yaml:"fields,omitempty"` // members of an anonymous struct or union
}

type recordDoc struct {
	Kind     string     `yaml:"kind"`
	Tag      string     `yaml:"tag"`
	Complete bool       `yaml:"complete"`
	Size     int64      `yaml:"size,omitempty"`
	Fields   []fieldDoc `yaml:"fields,omitempty"`
	Loc      string     `yaml:"loc"`
}

type enumeratorDoc struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
	// Unresolved marks a value kept as written
	Unresolved bool `yaml:"unresolved,omitempty"`
}

type enumDoc struct {
	Tag     string          `yaml:"tag,omitempty"`
	Typedef string          `yaml:"typedef,omitempty"`
	Items   []enumeratorDoc `yaml:"items"`
	Loc     string          `yaml:"loc"`
}

type typedefDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Loc  string `yaml:"loc"`
}

type variableDoc struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Storage string `yaml:"storage,omitempty"`
	Loc     string `yaml:"loc"`
}

type paramDoc struct {
	Name string `yaml:"name,omitempty"`
	Type string `yaml:"type"`
}

type functionDoc struct {
	Name        string     `yaml:"name"`
	Return      string     `yaml:"return"`
	Params      []paramDoc `yaml:"params,omitempty"`
	Variadic    bool       `yaml:"variadic,omitempty"`
	Unspecified bool       `yaml:"unspecified,omitempty"`
	Storage     string     `yaml:"storage,omitempty"`
	Inline      bool       `yaml:"inline,omitempty"`
	Body        bool       `yaml:"body,omitempty"`
	Loc         string     `yaml:"loc"`
}

func newDocument(m *model.Model) document {
	var doc document
	for _, c := range m.Constants() {
		doc.Constants = append(doc.Constants, constantDoc{
			Name:  c.Name,
			Kind:  c.Kind.String(),
			Value: c.Value(),
			Loc:   c.Loc.String(),
		})
	}
	for _, r := range m.Records() {
		rd := recordDoc{
			Kind:     r.Kind(),
			Tag:      r.Tag,
			Complete: r.Complete,
			Fields:   fieldDocs(r.Fields),
			Loc:      r.Loc.String(),
		}
		if r.Complete {
			rd.Size, _ = m.Sizeof(r.Kind() + " " + r.Tag)
		}
		doc.Records = append(doc.Records, rd)
	}
	for _, e := range m.Enums() {
		ed := enumDoc{Tag: e.Tag, Typedef: e.Typedef, Loc: e.Loc.String()}
		for _, it := range e.Items {
			item := enumeratorDoc{Name: it.Name, Value: it.Value.String()}
			if !it.Resolved {
				item.Value, item.Unresolved = it.Expr, true
			}
			ed.Items = append(ed.Items, item)
		}
		doc.Enums = append(doc.Enums, ed)
	}
	for _, td := range m.Typedefs() {
		doc.Typedefs = append(doc.Typedefs, typedefDoc{Name: td.Name, Type: td.Type.String(), Loc: td.Loc.String()})
	}
	for _, v := range m.Variables() {
		doc.Variables = append(doc.Variables, variableDoc{
			Name:    v.Name,
			Type:    v.Type.String(),
			Storage: v.Storage.String(),
			Loc:     v.Loc.String(),
		})
	}
	for _, f := range m.Functions() {
		fd := functionDoc{
			Name:        f.Name,
			Return:      typeString(f.Type.Return),
			Variadic:    f.Type.VarArg,
			Unspecified: f.Type.Unspecified,
			Storage:     f.Storage.String(),
			Inline:      f.Inline,
			Body:        f.HasBody,
			Loc:         f.Loc.String(),
		}
		for _, p := range f.Type.Params {
			fd.Params = append(fd.Params, paramDoc{Name: p.Name, Type: p.Type.String()})
		}
		doc.Functions = append(doc.Functions, fd)
	}
	for _, r := range m.Unresolved() {
		doc.Unresolved = append(doc.Unresolved, r.Name)
	}
	return doc
}

func fieldDocs(fields []ctypes.Field) []fieldDoc {
	var out []fieldDoc
	for _, f := range fields {
		fd := fieldDoc{Name: f.Name, Type: f.Type.String()}
		if f.BitWidth >= 0 {
			bits := f.BitWidth
			fd.Bits = &bits
		}
		if rec, ok := f.Type.(ctypes.Trecord); ok {
			fd.Type = "struct"
			if rec.Union {
				fd.Type = "union"
			}
			fd.Fields = fieldDocs(rec.Fields)
		}
		out = append(out, fd)
	}
	return out
}

func typeString(t ctypes.Type) string {
	if t == nil {
		return "void"
	}
	return t.String()
}

