package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/raymyers/ralph-cdecl/pkg/cabs"
	"github.com/raymyers/ralph-cdecl/pkg/constexpr"
	"github.com/raymyers/ralph-cdecl/pkg/cpp"
	"github.com/raymyers/ralph-cdecl/pkg/ctypes"
	"github.com/raymyers/ralph-cdecl/pkg/diag"
	"github.com/raymyers/ralph-cdecl/pkg/lexer"
)

// ErrFinalized is returned when a Builder is used after Finalize
var ErrFinalized = errors.New("model: builder already finalized")

// Builder folds raw declarations into a model, one statement at a time.
// Named types are kept as references, so a typedef or tag may be used
// before it is defined; Finalize reports the names that never were.
type Builder struct {
	t         *tables
	diags     *diag.List
	local     constexpr.Env // members of the enum being registered
	anonEnums map[*cabs.EnumSpec]*Enum
	errs      []error
	done      bool
}

// NewBuilder creates an empty Builder. Problems found while registering
// are added to diags, which may be nil.
func NewBuilder(diags *diag.List) *Builder {
	if diags == nil {
		diags = &diag.List{}
	}
	return &Builder{
		t:         newTables(),
		diags:     diags,
		anonEnums: make(map[*cabs.EnumSpec]*Enum),
	}
}

// Lookup implements constexpr.Context over the enumerators registered so
// far.
func (b *Builder) Lookup(name string) (constexpr.Value, bool) {
	if v, ok := b.local[name]; ok {
		return v, true
	}
	return b.t.lookup(name)
}

// ResolveNamed implements ctypes.Resolver over the declarations
// registered so far.
func (b *Builder) ResolveNamed(n ctypes.Tnamed) (ctypes.Type, bool) {
	return b.t.resolveNamed(n)
}

// Register adds one declaration. Conflicting re-definitions are reported
// to the diagnostics list and returned joined; the declaration's other
// names are still registered. Unresolved array bounds and enumerator
// values are not errors: they are noted and kept unresolved in the model.
func (b *Builder) Register(d *cabs.Declaration) error {
	if b.done {
		return ErrFinalized
	}
	b.errs = nil
	base := b.baseType(d.Spec)

	for _, decl := range d.Declarators {
		t := b.declType(base, decl)
		switch {
		case d.IsTypedef():
			err := b.t.addTypedef(Typedef{Name: decl.Name, Type: t, Loc: decl.Loc})
			b.check(err)
			if es, ok := d.Spec.Type.(*cabs.EnumSpec); ok && err == nil {
				if e := b.anonEnums[es]; e != nil && e.Typedef == "" {
					e.Typedef = decl.Name
				}
			}
		case isFunction(t):
			fn := t.(ctypes.Tfunction)
			b.check(b.t.addFunction(Function{
				Name:    decl.Name,
				Type:    fn,
				Storage: d.Spec.Storage,
				Inline:  d.Spec.Inline,
				HasBody: d.HasBody,
				Loc:     decl.Loc,
			}))
		default:
			b.check(b.t.addVariable(Variable{
				Name:    decl.Name,
				Type:    t,
				Storage: d.Spec.Storage,
				HasInit: decl.HasInit,
				Loc:     decl.Loc,
			}))
		}
	}
	return errors.Join(b.errs...)
}

func isFunction(t ctypes.Type) bool {
	_, ok := t.(ctypes.Tfunction)
	return ok
}

// AddMacros records the object-like macros of a table whose expansion is
// a constant: an integer expression, a floating literal, a character or
// adjacent string literals. Other macros are ignored.
func (b *Builder) AddMacros(macros *cpp.MacroTable) error {
	if b.done {
		return ErrFinalized
	}
	b.errs = nil
	exp := cpp.NewExpander(macros)
	for m := range macros.All() {
		if m.Kind != cpp.MacroObject || len(m.Body) == 0 {
			continue
		}
		name := lexer.Token{Kind: lexer.Ident, Text: m.Name, File: m.Loc.File, Line: m.Loc.Line, Column: m.Loc.Column}
		toks, err := exp.Expand([]lexer.Token{name})
		if err != nil {
			continue
		}
		c, ok := classify(toks, b)
		if !ok {
			continue
		}
		c.Name = m.Name
		c.Text = m.BodyText()
		c.Loc = cabs.Loc{File: m.Loc.File, Line: m.Loc.Line, Column: m.Loc.Column}
		b.check(b.t.addConstant(c))
	}
	return errors.Join(b.errs...)
}

// Finalize ends registration and returns the read-only model. Typedef
// names that were used but never defined are reported as notes.
func (b *Builder) Finalize() *Model {
	b.done = true
	m := &Model{t: b.t}
	for _, r := range m.Unresolved() {
		b.diags.Add(diag.Diagnostic{
			Severity: diag.Note,
			Kind:     diag.KindUnresolved,
			Message:  "unresolved type name " + r.Name,
			File:     r.Loc.File,
			Line:     r.Loc.Line,
			Column:   r.Loc.Column,
			Err:      fmt.Errorf("%w: %s", ErrUnresolvedType, r.Name),
		})
	}
	return m
}

// check reports a registration error and keeps it for Register's result
func (b *Builder) check(err error) {
	if err == nil {
		return
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		b.diags.Add(diag.Diagnostic{
			Severity: diag.Error,
			Kind:     diag.KindConflict,
			Message:  ce.Error(),
			File:     ce.Loc.File,
			Line:     ce.Loc.Line,
			Column:   ce.Loc.Column,
			Err:      ce,
		})
	}
	b.errs = append(b.errs, err)
}

// unresolvedExpr notes an expression the model keeps unevaluated.
// Overflow is a warning; an unknown name is only a note.
func (b *Builder) unresolvedExpr(err error, loc cabs.Loc, what string) {
	sev, kind := diag.Note, diag.KindUnresolved
	var oe *constexpr.OverflowError
	switch {
	case errors.As(err, &oe):
		sev, kind = diag.Warning, diag.KindOverflow
	case !errors.Is(err, constexpr.ErrUnresolved):
		sev, kind = diag.Warning, diag.KindOther
	}
	b.diags.Add(diag.Diagnostic{
		Severity: sev,
		Kind:     kind,
		Message:  fmt.Sprintf("%s left unresolved: %v", what, err),
		File:     loc.File,
		Line:     loc.Line,
		Column:   loc.Column,
		Err:      err,
	})
}

func qualifiers(q cabs.Qualifiers) ctypes.Qualifiers {
	var out ctypes.Qualifiers
	if q&cabs.QualConst != 0 {
		out |= ctypes.Const
	}
	if q&cabs.QualVolatile != 0 {
		out |= ctypes.Volatile
	}
	if q&cabs.QualRestrict != 0 {
		out |= ctypes.Restrict
	}
	if q&cabs.QualAtomic != 0 {
		out |= ctypes.Atomic
	}
	return out
}

// baseType converts a specifier, registering any tag it defines or
// mentions.
func (b *Builder) baseType(spec *cabs.DeclSpec) ctypes.Type {
	var t ctypes.Type
	switch ts := spec.Type.(type) {
	case cabs.Primitive:
		prim, ok := ctypes.Primitive(ts.Name)
		if !ok {
			prim = ctypes.Int()
		}
		t = prim
	case cabs.NamedType:
		t = ctypes.Tnamed{Kind: ctypes.KindTypedef, Name: ts.Name}
		b.t.refs = append(b.t.refs, Ref{Name: ts.Name, Loc: spec.Loc})
	case *cabs.RecordSpec:
		t = b.record(ts)
	case *cabs.EnumSpec:
		t = b.enum(ts)
	default:
		t = ctypes.Int()
	}
	return ctypes.Qualify(t, qualifiers(spec.Quals))
}

// declType applies a declarator's modifiers to the base type. Mods run
// from the name outward, so the outermost one wraps the base first.
func (b *Builder) declType(base ctypes.Type, d *cabs.Declarator) ctypes.Type {
	t := base
	if d == nil {
		return t
	}
	for i := len(d.Mods) - 1; i >= 0; i-- {
		switch m := d.Mods[i].(type) {
		case *cabs.PointerMod:
			t = ctypes.Qualify(ctypes.Pointer(t), qualifiers(m.Quals))
		case *cabs.ArrayMod:
			t = b.array(t, m, d)
		case *cabs.FuncMod:
			t = b.function(t, m)
		}
	}
	return t
}

func (b *Builder) array(elem ctypes.Type, m *cabs.ArrayMod, d *cabs.Declarator) ctypes.Type {
	if m.Size == nil {
		return ctypes.Tarray{Elem: elem, Len: ctypes.LenIncomplete}
	}
	v, err := constexpr.Eval(m.Size, b)
	if err == nil && !v.Unsigned && v.Int64() < 0 {
		err = fmt.Errorf("negative size %s", v)
	}
	if err != nil {
		b.unresolvedExpr(err, d.Loc, "array bound of "+nameOr(d.Name, "abstract declarator"))
		return ctypes.Tarray{Elem: elem, Len: ctypes.LenUnresolved, Expr: cabs.FormatExpr(m.Size)}
	}
	if v.Unsigned && v.Uint64() > math.MaxInt64 {
		b.unresolvedExpr(&constexpr.OverflowError{Op: "array bound", Expr: cabs.FormatExpr(m.Size)}, d.Loc, "array bound of "+nameOr(d.Name, "abstract declarator"))
		return ctypes.Tarray{Elem: elem, Len: ctypes.LenUnresolved, Expr: cabs.FormatExpr(m.Size)}
	}
	return ctypes.Tarray{Elem: elem, Size: v.Int64(), Len: ctypes.LenKnown}
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func (b *Builder) function(ret ctypes.Type, m *cabs.FuncMod) ctypes.Type {
	fn := ctypes.Tfunction{Return: ret, VarArg: m.Variadic, Unspecified: m.Unspecified}
	for _, p := range m.Params {
		declared := b.declType(b.baseType(p.Spec), p.Decl)
		var name string
		if p.Decl != nil {
			name = p.Decl.Name
		}
		fn.Params = append(fn.Params, ctypes.Param{Name: name, Type: ctypes.Decay(declared), Declared: declared})
	}
	return fn
}

func (b *Builder) record(rs *cabs.RecordSpec) ctypes.Type {
	kind := ctypes.KindStruct
	if rs.Kind == cabs.Union {
		kind = ctypes.KindUnion
	}
	union := kind == ctypes.KindUnion
	if !rs.HasBody {
		b.check(b.t.addRecord(Record{Tag: rs.Tag, Union: union, Loc: rs.Loc}))
		return ctypes.Tnamed{Kind: kind, Name: rs.Tag}
	}
	fields := b.fields(rs.Fields)
	if rs.Tag == "" {
		return ctypes.Trecord{Union: union, Fields: fields}
	}
	b.check(b.t.addRecord(Record{
		Tag:      rs.Tag,
		Union:    union,
		Fields:   fields,
		Complete: true,
		Loc:      rs.Loc,
		body:     rs.Body,
	}))
	return ctypes.Tnamed{Kind: kind, Name: rs.Tag}
}

func (b *Builder) fields(in []*cabs.Field) []ctypes.Field {
	out := []ctypes.Field{}
	for _, f := range in {
		base := b.baseType(f.Spec)
		if f.Decl == nil {
			// a member that only declares a tag
			continue
		}
		field := ctypes.Field{Name: f.Decl.Name, Type: b.declType(base, f.Decl), BitWidth: -1}
		if f.BitWidth != nil {
			v, err := constexpr.Eval(f.BitWidth, b)
			switch {
			case err != nil:
				b.unresolvedExpr(err, f.Decl.Loc, "bit-field width of "+nameOr(f.Decl.Name, "unnamed member"))
			case v.Int64() < 0 || v.Int64() > 64:
				b.unresolvedExpr(fmt.Errorf("invalid width %s", v), f.Decl.Loc, "bit-field width of "+nameOr(f.Decl.Name, "unnamed member"))
			default:
				field.BitWidth = int(v.Int64())
			}
		}
		out = append(out, field)
	}
	return out
}

func (b *Builder) enum(es *cabs.EnumSpec) ctypes.Type {
	if !es.HasBody {
		_, _, err := b.t.addEnum(Enum{Tag: es.Tag, Loc: es.Loc})
		b.check(err)
		return ctypes.Tnamed{Kind: ctypes.KindEnum, Name: es.Tag}
	}
	items := b.enumerators(es.Items)
	e, added, err := b.t.addEnum(Enum{
		Tag:      es.Tag,
		Items:    items,
		Complete: true,
		Type:     enumType(items),
		Loc:      es.Loc,
		body:     es.Body,
	})
	b.check(err)
	if added {
		for _, en := range items {
			b.check(b.t.addEnumerator(en))
		}
	}
	if es.Tag == "" {
		b.anonEnums[es] = e
		return ctypes.Tenum{Members: members(e.Items)}
	}
	return ctypes.Tnamed{Kind: ctypes.KindEnum, Name: es.Tag}
}

// enumerators computes member values. An implicit value is the previous
// one plus one; after an unresolved member the implicit ones stay
// unresolved until the next explicit value.
func (b *Builder) enumerators(in []*cabs.Enumerator) []Enumerator {
	b.local = constexpr.Env{}
	defer func() { b.local = nil }()

	out := make([]Enumerator, 0, len(in))
	next, ok := constexpr.Int(0), true
	var overflow error // the previous member has no successor
	for _, item := range in {
		en := Enumerator{Name: item.Name, Loc: item.Loc}
		switch {
		case item.Value != nil:
			en.Expr = cabs.FormatExpr(item.Value)
			v, err := constexpr.Eval(item.Value, b)
			if err != nil {
				b.unresolvedExpr(err, item.Loc, "value of enumerator "+item.Name)
			}
			next, ok, overflow = v, err == nil, nil
		case overflow != nil:
			b.unresolvedExpr(overflow, item.Loc, "value of enumerator "+item.Name)
			overflow = nil
		}
		if ok {
			en.Value, en.Resolved = next, true
			b.local[item.Name] = next
			next, overflow = increment(item.Name, next)
			ok = overflow == nil
		}
		out = append(out, en)
	}
	return out
}

func members(items []Enumerator) string {
	parts := make([]string, len(items))
	for i, en := range items {
		switch {
		case en.Resolved:
			parts[i] = en.Name + "=" + en.Value.String()
		case en.Expr != "":
			parts[i] = en.Name + "=" + en.Expr
		default:
			parts[i] = en.Name
		}
	}
	return strings.Join(parts, ", ")
}

// increment is prev + 1. An unsigned int past its range becomes unsigned
// long; the 64-bit maximums have no successor.
func increment(prev string, v constexpr.Value) (constexpr.Value, error) {
	overflow := &constexpr.OverflowError{Op: "enumerator increment", Expr: prev + " + 1"}
	if !v.Unsigned {
		if v.Int64() == math.MaxInt64 {
			return constexpr.Value{}, overflow
		}
		return constexpr.Int(v.Int64() + 1), nil
	}
	if v.Uint64() == math.MaxUint64 {
		return constexpr.Value{}, overflow
	}
	n := constexpr.Value{Bits: v.Bits + 1, Unsigned: true, Rank: v.Rank}
	if n.Rank == constexpr.RankInt && n.Bits > math.MaxUint32 {
		n.Rank = constexpr.RankLong
	}
	return n, nil
}

// enumType picks int unless a value needs a wider type
func enumType(items []Enumerator) ctypes.Type {
	t := ctypes.Int()
	for _, en := range items {
		if !en.Resolved {
			continue
		}
		switch {
		case en.Value.Unsigned && en.Value.Uint64() > math.MaxInt64:
			return ctypes.Tlong{Sign: ctypes.Unsigned}
		case en.Value.Unsigned && en.Value.Uint64() > math.MaxUint32,
			!en.Value.Unsigned && (en.Value.Int64() > math.MaxUint32 || en.Value.Int64() < math.MinInt32):
			t = ctypes.Long()
		case en.Value.Int64() > math.MaxInt32 && t == ctypes.Int():
			t = ctypes.UInt()
		}
	}
	return t
}

// classify decides whether an expanded macro body is a constant
func classify(toks []lexer.Token, ctx constexpr.Context) (Constant, bool) {
	toks = stripParens(toks)
	if len(toks) == 0 {
		return Constant{}, false
	}
	if allStrings(toks) {
		var sb strings.Builder
		for _, tok := range toks {
			s, err := constexpr.StringValue(tok.Text)
			if err != nil {
				return Constant{}, false
			}
			sb.WriteString(s)
		}
		return Constant{Kind: ConstString, Str: sb.String()}, true
	}
	if len(toks) == 1 && toks[0].Kind == lexer.Char {
		v, err := constexpr.CharValue(toks[0].Text)
		if err != nil {
			return Constant{}, false
		}
		return Constant{Kind: ConstChar, Int: v}, true
	}
	if f, ok := floatLiteral(toks); ok {
		return Constant{Kind: ConstFloat, Float: f}, true
	}
	v, err := constexpr.Evaluate(toks, ctx)
	if err != nil {
		return Constant{}, false
	}
	return Constant{Kind: ConstInt, Int: v}, true
}

func stripParens(toks []lexer.Token) []lexer.Token {
	for len(toks) >= 2 && toks[0].Is("(") && toks[len(toks)-1].Is(")") {
		depth := 0
		for i, tok := range toks {
			switch {
			case tok.Is("("):
				depth++
			case tok.Is(")"):
				depth--
			}
			if depth == 0 && i < len(toks)-1 {
				return toks
			}
		}
		toks = toks[1 : len(toks)-1]
	}
	return toks
}

func allStrings(toks []lexer.Token) bool {
	for _, tok := range toks {
		if tok.Kind != lexer.String {
			return false
		}
	}
	return true
}

// floatLiteral accepts an optionally signed floating constant
func floatLiteral(toks []lexer.Token) (float64, bool) {
	sign := 1.0
	if len(toks) == 2 && (toks[0].Is("-") || toks[0].Is("+")) {
		if toks[0].Is("-") {
			sign = -1
		}
		toks = toks[1:]
	}
	if len(toks) != 1 || toks[0].Kind != lexer.Number || !constexpr.IsFloatLiteral(toks[0].Text) {
		return 0, false
	}
	text := strings.TrimRight(toks[0].Text, "fFlL")
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return sign * f, true
}
