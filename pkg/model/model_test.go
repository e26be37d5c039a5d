package model

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymyers/ralph-cdecl/pkg/constexpr"
	"github.com/raymyers/ralph-cdecl/pkg/cpp"
	"github.com/raymyers/ralph-cdecl/pkg/ctypes"
	"github.com/raymyers/ralph-cdecl/pkg/diag"
	"github.com/raymyers/ralph-cdecl/pkg/parser"
)

func build(t *testing.T, name, src string, symbols ...string) (*Model, *diag.List) {
	t.Helper()
	diags := &diag.List{}
	pp := cpp.New(name, src, cpp.Options{Symbols: symbols}, diags)
	p := parser.New(pp, diags)
	b := NewBuilder(diags)
	for d := range p.Decls() {
		_ = b.Register(d)
	}
	require.NoError(t, p.Err())
	_ = b.AddMacros(pp.Macros())
	return b.Finalize(), diags
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", name))
	require.NoError(t, err)
	return string(data)
}

// summary renders a model without locations, so models built from
// different text can be compared.
func summary(m *Model) []string {
	var out []string
	for _, td := range m.Typedefs() {
		out = append(out, "typedef "+td.Name+" = "+td.Type.String())
	}
	for _, r := range m.Records() {
		out = append(out, fmt.Sprintf("%s %s complete=%v %s", r.Kind(), r.Tag, r.Complete, r.Type()))
	}
	for _, e := range m.Enums() {
		items := make([]string, len(e.Items))
		for i, it := range e.Items {
			items[i] = it.Name + "=" + it.Value.String()
		}
		out = append(out, fmt.Sprintf("enum %s/%s {%s}", e.Tag, e.Typedef, strings.Join(items, ", ")))
	}
	for _, f := range m.Functions() {
		out = append(out, fmt.Sprintf("func %s %s body=%v", f.Name, f.Type, f.HasBody))
	}
	for _, v := range m.Variables() {
		out = append(out, "var "+v.Name+" "+v.Type.String())
	}
	for _, c := range m.Constants() {
		out = append(out, "const "+c.Name+" "+c.Kind.String()+" "+c.Value())
	}
	return out
}

func enumValues(t *testing.T, m *Model, tag string) []int64 {
	t.Helper()
	e, ok := m.Enum(tag)
	require.True(t, ok, "enum %s", tag)
	var out []int64
	for _, it := range e.Items {
		require.True(t, it.Resolved, "%s unresolved", it.Name)
		out = append(out, it.Value.Int64())
	}
	return out
}

func TestDuplicatedHeaderIsIdempotent(t *testing.T) {
	src := fixture(t, "tast2.h")
	half, _, found := strings.Cut(src, "// DUPLICATES")
	require.True(t, found)

	once, onceDiags := build(t, "tast2.h", half)
	twice, twiceDiags := build(t, "tast2.h", src)

	assert.Equal(t, summary(once), summary(twice))
	assert.Zero(t, onceDiags.Count(diag.KindConflict))
	assert.Zero(t, twiceDiags.Count(diag.KindConflict), "%v", twiceDiags.Items())
	assert.Zero(t, twiceDiags.Count(diag.KindDirective), "%v", twiceDiags.Items())
}

func TestTast2(t *testing.T) {
	m, _ := build(t, "tast2.h", fixture(t, "tast2.h"))

	t.Run("records", func(t *testing.T) {
		var tags []string
		for _, r := range m.Records() {
			tags = append(tags, r.Tag)
		}
		// A0 moves to its definition
		assert.Equal(t, []string{"A1", "A2", "A3", "A4", "A0", "A14", "A15", "A16", "A17", "A20", "A22", "U1", "U2"}, tags)

		a2, ok := m.Record("A2")
		require.True(t, ok)
		assert.False(t, a2.Complete)

		a0, _ := m.Record("A0")
		assert.True(t, a0.Complete)
		assert.Equal(t, []ctypes.Field{{Name: "f1", Type: ctypes.Int(), BitWidth: -1}}, a0.Fields)
	})

	t.Run("A20 tag and typedefs", func(t *testing.T) {
		tag := ctypes.Tnamed{Kind: ctypes.KindStruct, Name: "A20"}
		for _, name := range []string{"A20", "A21"} {
			td, ok := m.Typedef(name)
			require.True(t, ok)
			assert.Equal(t, tag, td.Type)
		}
		td, _ := m.Typedef("A21p")
		assert.Equal(t, ctypes.Pointer(tag), td.Type)
		size, ok := m.Sizeof("A21")
		assert.True(t, ok)
		assert.EqualValues(t, 1, size)
	})

	t.Run("declarator shapes", func(t *testing.T) {
		char := ctypes.Char()
		want := map[string]ctypes.Type{
			"A5":   ctypes.Qualify(ctypes.Int(), ctypes.Const),
			"A9p":  ctypes.Array(ctypes.Pointer(char), 3),
			"A10":  ctypes.Array(ctypes.Array(ctypes.Pointer(char), 6), 3),
			"A11":  ctypes.Pointer(ctypes.Array(ctypes.Pointer(char), 3)),
			"A111": ctypes.Array(ctypes.Pointer(ctypes.Tnamed{Kind: ctypes.KindStruct, Name: "A1"}), 12),
			"A7":   ctypes.Pointer(ctypes.Pointer(ctypes.Tnamed{Kind: ctypes.KindTypedef, Name: "A0"})),
		}
		for name, typ := range want {
			td, ok := m.Typedef(name)
			require.True(t, ok, name)
			assert.True(t, ctypes.Equal(typ, td.Type), "%s: got %s, want %s", name, td.Type, typ)
		}
	})

	t.Run("function typedefs", func(t *testing.T) {
		a12, _ := m.Typedef("A12")
		fn, isPointer, ok := Signature(a12.Type)
		require.True(t, ok)
		assert.True(t, isPointer)
		assert.Len(t, fn.Params, 6)
		assert.Equal(t, "count", fn.Params[4].Name)
		assert.Equal(t, ctypes.Array(ctypes.Pointer(ctypes.Int()), 4), fn.Params[4].Declared)
		assert.Equal(t, ctypes.Pointer(ctypes.Pointer(ctypes.Int())), fn.Params[4].Type)
		assert.Equal(t, ctypes.Pointer(ctypes.Pointer(ctypes.Int())), fn.Return)

		a13, _ := m.Typedef("A13")
		fn, isPointer, ok = Signature(a13.Type)
		require.True(t, ok)
		assert.False(t, isPointer)
		assert.Len(t, fn.Params, 2)
	})

	t.Run("enums", func(t *testing.T) {
		assert.Equal(t, []int64{0, 1, 2, 4, 16, 32, 64, 128}, enumValues(t, m, "nk_panel_type"))
		assert.Equal(t, []int64{240, 244, 246}, enumValues(t, m, "nk_panel_set"))
		assert.Equal(t, []int64{0, 1000010, 1000011, 3000010, 3000011, 2000010, 2000011, 9000010, 9000011},
			enumValues(t, m, "VSPresetFormat"))
	})

	t.Run("constants", func(t *testing.T) {
		var got []string
		for _, c := range m.Constants() {
			got = append(got, c.Name+" "+c.Kind.String()+" "+c.Value())
		}
		assert.Equal(t, []string{"A int 1", "B float 1", "C int 16", `D string "hello"`, "E char 99"}, got)
	})

	t.Run("array bound expression", func(t *testing.T) {
		u2, _ := m.Record("U2")
		assert.Equal(t, ctypes.Array(ctypes.Int(), 255), u2.Fields[1].Type)
		size, ok := m.Sizeof("U2")
		assert.True(t, ok)
		assert.EqualValues(t, 1024, size)
	})

	t.Run("unresolved typedef name", func(t *testing.T) {
		refs := m.Unresolved()
		require.Len(t, refs, 1)
		assert.Equal(t, "A0", refs[0].Name)
		_, err := m.Resolve("A0")
		assert.ErrorIs(t, err, ErrUnresolvedType)
	})
}

func TestTestHeader(t *testing.T) {
	m, diags := build(t, "test.h", fixture(t, "test.h"))
	assert.Zero(t, diags.Count(diag.KindConflict))
	assert.Zero(t, diags.Count(diag.KindUnresolved), "%v", diags.Items())
	assert.Empty(t, m.Unresolved())

	assert.Equal(t, []int64{4, 9, 2}, enumValues(t, m, "ENUM5"))
	assert.Equal(t, []int64{0, 1, 2}, enumValues(t, m, "ENUM"))

	var anon []Enum
	for _, e := range m.Enums() {
		if e.Tag == "" {
			anon = append(anon, e)
		}
	}
	require.Len(t, anon, 2)
	assert.Equal(t, "ENUM2", anon[0].Typedef)
	assert.Equal(t, []string{"enum4", "enum5", "enum6"}, []string{anon[0].Items[0].Name, anon[0].Items[1].Name, anon[0].Items[2].Name})
	assert.EqualValues(t, 5, anon[0].Items[2].Value.Int64())
	assert.Equal(t, "", anon[1].Typedef)
	en, ok := m.Enumerator("enum9")
	require.True(t, ok)
	assert.EqualValues(t, 2, en.Value.Int64())

	typ, err := m.Resolve("CUSTTYPE")
	require.NoError(t, err)
	assert.Equal(t, ctypes.UChar(), typ)

	s4, ok := m.Typedef("STRUCT4")
	require.True(t, ok)
	rec, ok := s4.Type.(ctypes.Trecord)
	require.True(t, ok)
	require.Len(t, rec.Fields, 5)
	assert.Equal(t, ctypes.Array(ctypes.Int(), 512), rec.Fields[1].Type)
	assert.Equal(t, ctypes.Array(ctypes.Tnamed{Kind: ctypes.KindEnum, Name: "ENUM"}, 512), rec.Fields[2].Type)
	assert.Equal(t, ctypes.Array(ctypes.Pointer(ctypes.Tnamed{Kind: ctypes.KindTypedef, Name: "ENUM4"}), 1024), rec.Fields[4].Type)

	call, ok := m.Function("test_call_int")
	require.True(t, ok)
	assert.True(t, call.Type.Unspecified)

	m2, ok := m.Function("multiline2")
	require.True(t, ok)
	assert.Equal(t, ctypes.Pointer(ctypes.Void()), m2.Type.Return)
	assert.Empty(t, m2.Type.Params)

	var consts []string
	for _, c := range m.Constants() {
		consts = append(consts, c.Name+"="+c.Value())
	}
	assert.Equal(t, []string{"TEST_INT=512", "TEST_FLOAT=5.12", "TEST_HEX=1298"}, consts)
}

func TestExternCBlockGivesSameModel(t *testing.T) {
	src := fixture(t, "test.h")
	plain, _ := build(t, "test.h", src)
	cplusplus, diags := build(t, "test.h", src, "__cplusplus")
	assert.Equal(t, summary(plain), summary(cplusplus))
	assert.False(t, diags.HasErrors(), "%v", diags.Items())
}

func TestDefinitionAfterPrototype(t *testing.T) {
	m, diags := build(t, "test.c", fixture(t, "test.h")+"\n"+fixture(t, "test.c"))
	assert.Zero(t, diags.Count(diag.KindConflict), "%v", diags.Items())

	f, ok := m.Function("test_call_int")
	require.True(t, ok)
	assert.True(t, f.HasBody)

	_, ok = m.Function("_test_call_int_param_")
	assert.False(t, ok, "FORCE is not defined")

	var names []string
	for _, fn := range m.Functions() {
		if fn.HasBody {
			names = append(names, fn.Name)
		}
	}
	assert.Equal(t, []string{"test_call_int", "test_call_int_param2", "test_call_int_param3", "test_call_int_param4"}, names)
}

func TestNestedRecords(t *testing.T) {
	m, diags := build(t, "nested.h", fixture(t, "nested.h"))
	assert.Zero(t, diags.Len(), "%v", diags.Items())

	var tags []string
	for _, r := range m.Records() {
		tags = append(tags, r.Tag)
	}
	assert.Equal(t, []string{"NT1", "nested", "parent_struct_s"}, tags)

	nested, _ := m.Record("nested")
	var names []string
	for _, f := range nested.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a", "inner", "", "", "kind", "next"}, names)

	inner, ok := nested.Fields[1].Type.(ctypes.Trecord)
	require.True(t, ok)
	assert.Equal(t, ctypes.Array(ctypes.Char(), 4), inner.Fields[1].Type)
	anon, ok := nested.Fields[2].Type.(ctypes.Trecord)
	require.True(t, ok)
	assert.True(t, anon.Union)
	// a tagged body with no declarator is still an instance of the tag
	assert.Equal(t, ctypes.Tnamed{Kind: ctypes.KindStruct, Name: "NT1"}, nested.Fields[3].Type)
	assert.IsType(t, ctypes.Tenum{}, nested.Fields[4].Type)
	assert.Equal(t, ctypes.Pointer(ctypes.Tnamed{Kind: ctypes.KindStruct, Name: "nested"}), nested.Fields[5].Type)

	_, ok = m.Enumerator("NE2")
	assert.True(t, ok)

	arrType, _ := m.Typedef("ucArrType1")
	assert.Equal(t, ctypes.Tarray{Elem: ctypes.Array(ctypes.Int(), 5), Len: ctypes.LenIncomplete}, arrType.Type)

	fn, _ := m.Function("ucArrFunc1")
	require.Len(t, fn.Type.Params, 1)
	assert.Equal(t, ctypes.Tarray{Elem: ctypes.Int(), Len: ctypes.LenIncomplete}, fn.Type.Params[0].Declared)
	assert.Equal(t, ctypes.Pointer(ctypes.Int()), fn.Type.Params[0].Type)

	fn2, _ := m.Function("ucArrFunc2")
	require.Len(t, fn2.Type.Params, 2)
	assert.Equal(t, ctypes.Pointer(ctypes.Array(ctypes.Int(), 5)), fn2.Type.Params[0].Type)
	_, isPointer, ok := Signature(fn2.Type.Params[1].Type)
	assert.True(t, ok)
	assert.True(t, isPointer)

	typ, err := m.Resolve("fast_t")
	require.NoError(t, err)
	assert.Equal(t, ctypes.Long(), typ)
	size, ok := m.Sizeof("fast_t")
	assert.True(t, ok)
	assert.EqualValues(t, 8, size)
}

func TestConditionalGating(t *testing.T) {
	src := fixture(t, "nested.h")

	m, _ := build(t, "nested.h", src)
	parent, _ := m.Record("parent_struct_s")
	assert.Equal(t, []ctypes.Field{{Name: "x", Type: ctypes.Int(), BitWidth: -1}}, parent.Fields)
	_, ok := m.Constant("SOME_CONST")
	assert.False(t, ok)

	m, diags := build(t, "nested.h", src, "NIMTEROP")
	assert.Zero(t, diags.Len(), "%v", diags.Items())
	parent, _ = m.Record("parent_struct_s")
	require.Len(t, parent.Fields, 2)
	assert.Equal(t, "s", parent.Fields[0].Name)
	assert.Equal(t, ctypes.Array(ctypes.Int(), 8), parent.Fields[0].Type)
	c, ok := m.Constant("SOME_CONST")
	require.True(t, ok)
	assert.EqualValues(t, 8, c.Int.Int64())
}

func TestConstants(t *testing.T) {
	m, _ := build(t, "nested.h", fixture(t, "nested.h"))

	tests := []struct {
		name  string
		kind  ConstKind
		check func(t *testing.T, c Constant)
	}{
		{"SOME_SIZE", ConstInt, func(t *testing.T, c Constant) { assert.EqualValues(t, 4, c.Int.Int64()) }},
		{"REG_STR", ConstString, func(t *testing.T, c Constant) { assert.Equal(t, "reg", c.Str) }},
		{"NOTSUPPORTEDSTR", ConstString, func(t *testing.T, c Constant) {
			assert.Equal(t, "not a reg", c.Str)
			assert.Equal(t, `"not a " REG_STR`, c.Text)
		}},
		{"INT_FAST16_MIN", ConstInt, func(t *testing.T, c Constant) {
			assert.Equal(t, int64(math.MinInt64), c.Int.Int64())
			assert.False(t, c.Int.Unsigned)
		}},
		{"HALF", ConstFloat, func(t *testing.T, c Constant) { assert.InDelta(t, 0.5, c.Float, 0) }},
		{"NEWLINE", ConstChar, func(t *testing.T, c Constant) { assert.EqualValues(t, 10, c.Int.Int64()) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := m.Constant(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.kind, c.Kind)
			tt.check(t, c)
		})
	}

	v, ok := m.Lookup("INT_FAST16_MIN")
	assert.True(t, ok)
	assert.Equal(t, "-9223372036854775808", v.String())
}

func TestVariables(t *testing.T) {
	m, _ := build(t, "vars.h", "extern const char *names[];\nextern int count;\nconst char *names[4];\nint count = 3;\n")
	vars := m.Variables()
	require.Len(t, vars, 2)
	assert.Equal(t, "names", vars[0].Name)
	assert.Equal(t, ctypes.Array(ctypes.Pointer(ctypes.Qualify(ctypes.Char(), ctypes.Const)), 4), vars[0].Type)
	assert.True(t, vars[1].HasInit)
}

func TestConflicts(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind string
	}{
		{"struct body", "struct S { int a; };\nstruct S { char a; };\n", "struct"},
		{"struct and union", "struct S { int a; };\nunion S *p;\n", "union"},
		{"typedef", "typedef int T;\ntypedef long T;\n", "typedef"},
		{"function", "int f(int);\nlong f(int);\n", "function"},
		{"enumerator", "enum E1 { X = 1 };\nenum E2 { X = 2 };\n", "enumerator"},
		{"enum body", "enum E { A, B };\nenum E { B, A };\n", "enum"},
		{"anonymous enum typedef", "typedef enum { a1 } E;\ntypedef enum { b1 } E;\n", "typedef"},
		{"variable", "int v;\nchar v;\n", "variable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := &diag.List{}
			decls, err := parser.ParseString(tt.src)
			require.NoError(t, err)
			b := NewBuilder(diags)
			var last error
			for _, d := range decls {
				if err := b.Register(d); err != nil {
					last = err
				}
			}
			var ce *ConflictError
			require.ErrorAs(t, last, &ce)
			assert.Equal(t, tt.kind, ce.Kind)
			assert.Equal(t, 2, ce.Loc.Line)
			assert.Equal(t, 1, ce.Prev.Line)
			assert.GreaterOrEqual(t, diags.Count(diag.KindConflict), 1)
		})
	}

	m, _ := build(t, "c.h", "struct S { int a; };\nstruct S { char a; };\n")
	s, _ := m.Record("S")
	assert.Equal(t, ctypes.Int(), s.Fields[0].Type, "first definition wins")

	m, _ = build(t, "e.h", "typedef enum { a1 } E;\ntypedef enum { b1 } E;\n")
	td, _ := m.Typedef("E")
	assert.Equal(t, ctypes.Tenum{Members: "a1=0"}, td.Type)
	var owners []string
	for _, e := range m.Enums() {
		owners = append(owners, e.Typedef)
	}
	assert.Equal(t, []string{"E", ""}, owners, "only the first body is named by the typedef")
}

func TestCompatibleRedeclarations(t *testing.T) {
	src := `int f();
int f(int a);
int f(int b) { return b; }
extern int arr[];
int arr[3];
typedef struct S S;
struct S { int x; };
struct S;
enum E;
enum E { E0 };
`
	m, diags := build(t, "ok.h", src)
	assert.False(t, diags.HasErrors(), "%v", diags.Items())

	f, _ := m.Function("f")
	assert.True(t, f.HasBody)
	assert.False(t, f.Type.Unspecified)
	require.Len(t, f.Type.Params, 1)
	assert.Equal(t, "a", f.Type.Params[0].Name)

	v := m.Variables()
	require.Len(t, v, 1)
	assert.Equal(t, ctypes.Array(ctypes.Int(), 3), v[0].Type)

	s, _ := m.Record("S")
	assert.True(t, s.Complete)
	e, _ := m.Enum("E")
	assert.True(t, e.Complete)
	assert.Equal(t, 10, e.Loc.Line)
}

func TestUnresolvedExpressions(t *testing.T) {
	src := `int a[UNKNOWN];
char big[9223372036854775807 + 1];
enum E { X = UNKNOWN, Y, Z = 5, W };
struct B { int f : WIDTH; };
`
	m, diags := build(t, "u.h", src)
	assert.False(t, diags.HasErrors(), "%v", diags.Items())
	assert.Equal(t, 1, diags.Count(diag.KindOverflow))
	assert.Equal(t, 3, diags.Count(diag.KindUnresolved))

	vars := m.Variables()
	require.Len(t, vars, 2)
	assert.Equal(t, ctypes.Tarray{Elem: ctypes.Int(), Len: ctypes.LenUnresolved, Expr: "UNKNOWN"}, vars[0].Type)
	big, ok := vars[1].Type.(ctypes.Tarray)
	require.True(t, ok)
	assert.Equal(t, ctypes.LenUnresolved, big.Len)

	e, _ := m.Enum("E")
	var resolved []bool
	for _, it := range e.Items {
		resolved = append(resolved, it.Resolved)
	}
	assert.Equal(t, []bool{false, false, true, true}, resolved)
	assert.Equal(t, "UNKNOWN", e.Items[0].Expr)
	assert.EqualValues(t, 6, e.Items[3].Value.Int64())

	b, _ := m.Record("B")
	assert.Equal(t, -1, b.Fields[0].BitWidth)
}

func TestEnumeratorOverflow(t *testing.T) {
	src := `enum S { m = 9223372036854775807, m2, m3 = 1, m4 };
enum U { u1 = 0xFFFFFFFFFFFFFFFFull, u2 };
enum W { w1 = 0xFFFFFFFFu, w2 };
`
	m, diags := build(t, "o.h", src)
	assert.Equal(t, 2, diags.Count(diag.KindOverflow), "%v", diags.Items())

	s, _ := m.Enum("S")
	assert.False(t, s.Items[1].Resolved, "m2 has no value")
	assert.EqualValues(t, 2, s.Items[3].Value.Int64(), "an explicit value restarts the count")

	u, _ := m.Enum("U")
	assert.True(t, u.Items[0].Resolved)
	assert.False(t, u.Items[1].Resolved, "u2 must not wrap to 0")

	w, _ := m.Enum("W")
	require.True(t, w.Items[1].Resolved)
	assert.EqualValues(t, uint64(1)<<32, w.Items[1].Value.Uint64())
	assert.Equal(t, constexpr.RankLong, w.Items[1].Value.Rank)
}

func TestResolve(t *testing.T) {
	m, _ := build(t, "r.h", "struct S; typedef struct S S; typedef S *SP; typedef SP SPP; enum K { K0 };")

	tests := []struct {
		name string
		want ctypes.Type
	}{
		{"struct S", ctypes.Tnamed{Kind: ctypes.KindStruct, Name: "S"}},
		{"S", ctypes.Tnamed{Kind: ctypes.KindStruct, Name: "S"}},
		{"SPP", ctypes.Pointer(ctypes.Tnamed{Kind: ctypes.KindTypedef, Name: "S"})},
		{"enum K", ctypes.Tnamed{Kind: ctypes.KindEnum, Name: "K"}},
		{"size_t", ctypes.Tlong{Sign: ctypes.Unsigned}},
	}
	for _, tt := range tests {
		got, err := m.Resolve(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	for _, name := range []string{"missing", "union S", "struct missing"} {
		_, err := m.Resolve(name)
		assert.ErrorIs(t, err, ErrUnresolvedType, name)
	}

	_, ok := m.Sizeof("S")
	assert.False(t, ok, "opaque struct has no size")
	size, ok := m.Sizeof("enum K")
	assert.True(t, ok)
	assert.EqualValues(t, 4, size)
}

func TestBuilderFinalized(t *testing.T) {
	b := NewBuilder(nil)
	b.Finalize()
	decls, err := parser.ParseString("int x;")
	require.NoError(t, err)
	assert.ErrorIs(t, b.Register(decls[0]), ErrFinalized)
	assert.ErrorIs(t, b.AddMacros(cpp.NewMacroTable()), ErrFinalized)
}

func TestMerge(t *testing.T) {
	unit1, _ := build(t, "a.h", "struct S; typedef struct S *SP; typedef T2 *T2P; int shared(int);")
	unit2, _ := build(t, "b.h", "struct S { int x; }; typedef int T2; int shared(int n);")

	require.Len(t, unit1.Unresolved(), 1)
	_, ok := unit1.Sizeof("SP")
	assert.True(t, ok, "pointer to opaque struct has a size")

	merged, err := Merge(unit1, unit2)
	require.NoError(t, err)
	assert.Empty(t, merged.Unresolved())
	s, ok := merged.Record("S")
	require.True(t, ok)
	assert.True(t, s.Complete)
	assert.Len(t, merged.Functions(), 1)

	size, ok := merged.Sizeof("struct S")
	assert.True(t, ok)
	assert.EqualValues(t, 4, size)

	// the inputs are unchanged
	s1, _ := unit1.Record("S")
	assert.False(t, s1.Complete)

	unit3, _ := build(t, "c.h", "struct S { char y; };")
	merged, err = Merge(unit1, unit2, unit3)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "c.h", ce.Loc.File)
	s, _ = merged.Record("S")
	assert.Equal(t, "x", s.Fields[0].Name)

	colorA, _ := build(t, "a.h", "typedef enum { RED, GREEN } color;")
	colorB, _ := build(t, "b.h", "typedef enum { RED, GREEN } color;")
	colorC, _ := build(t, "c.h", "typedef enum { CYAN } color;")
	_, err = Merge(colorA, colorB)
	assert.NoError(t, err)
	_, err = Merge(colorA, colorC)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "typedef", ce.Kind)
}
