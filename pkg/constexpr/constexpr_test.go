package constexpr

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymyers/ralph-cdecl/pkg/ctypes"
	"github.com/raymyers/ralph-cdecl/pkg/lexer"
)

func eval(t *testing.T, src string, ctx Context) (Value, error) {
	t.Helper()
	toks, err := lexer.New(src).All()
	require.NoError(t, err)
	return Evaluate(toks, ctx)
}

func TestEvaluateSigned(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"(1 << 2)", 4},
		{"((1 << 3) | 1)", 9},
		{"(1 << (1 & 1))", 2},
		{"123+132", 255},
		{"0x512", 1298},
		{"077", 63},
		{"0b101", 5},
		{"3 <= 4", 1},
		{"4 >= 5", 0},
		{"2 == 2", 1},
		{"2 != 2", 0},
		{"1 && 0", 0},
		{"0 || 2", 1},
		{"!5", 0},
		{"~0", -1},
		{"-(3)", -3},
		{"+7", 7},
		{"1 ? 2 : 3", 2},
		{"0 ? 2 : 3", 3},
		{"7 / -2", -3},
		{"7 % -2", 1},
		{"-7 % 2", -1},
		{"-8 >> 1", -4},
		{"6 ^ 3", 5},
		{"(1, 2)", 2},
		{"'\\x4E'", 78},
		{"'\\034'", 28},
		{"'\\e'", 27},
		{"'\\0'", 0},
		{"'\\''", 39},
		{"'\\\\'", 92},
		{"'\\?'", 63},
		{"'a' + 1", 98},
		{"'\\xff'", -1},
		{"'ab'", 0x6162},
		{"(unsigned char)300", 44},
		{"(signed char)200", -56},
		{"(int)4294967295u", -1},
		{"(uint8_t)0x1ff", 255},
		{"(_Bool)5", 1},
		{"(short)-1", -1},
		{"1 << 40", 1 << 40},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v, err := eval(t, tt.src, nil)
			require.NoError(t, err)
			assert.False(t, v.Unsigned, "expected a signed result")
			assert.Equal(t, tt.want, v.Int64())
		})
	}
}

func TestEvaluateUnsigned(t *testing.T) {
	tests := []struct {
		src  string
		want uint64
		rank Rank
	}{
		{"10UL", 10, RankLong},
		{"0ULL - 1", math.MaxUint64, RankLongLong},
		{"0u - 1", math.MaxUint32, RankInt},
		{"18446744073709551615", math.MaxUint64, RankLong},
		{"0xFFFFFFFFFFFFFFFF", math.MaxUint64, RankLong},
		{"0x80000000", 0x80000000, RankInt},
		{"1ULL << 63", 1 << 63, RankLongLong},
		{"~0u", math.MaxUint32, RankInt},
		{"-1 + 0UL", math.MaxUint64, RankLong},
		{"sizeof(int)", 4, RankLong},
		{"sizeof(unsigned long long)", 8, RankLong},
		{"sizeof(char *)", 8, RankLong},
		{"sizeof(uint16_t)", 2, RankLong},
		{"sizeof(long double)", 16, RankLong},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v, err := eval(t, tt.src, nil)
			require.NoError(t, err)
			assert.True(t, v.Unsigned, "expected an unsigned result")
			assert.Equal(t, tt.want, v.Uint64())
			assert.Equal(t, tt.rank, v.Rank)
		})
	}
}

func TestWideIntegerBoundary(t *testing.T) {
	v, err := eval(t, "(-9223372036854775807L-1)", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), v.Int64())
	assert.Equal(t, "-9223372036854775808", v.String())
}

func TestOverflow(t *testing.T) {
	for _, src := range []string{
		"9223372036854775807L + 1",
		"(-9223372036854775807L-1) - 1",
		"-(-9223372036854775807L-1)",
		"4611686018427387904 * 2",
		"18446744073709551616",
		"1 << 64",
		"1 << -1",
		"1L << 63",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := eval(t, src, nil)
			var oe *OverflowError
			require.ErrorAs(t, err, &oe)
			assert.NotEmpty(t, oe.Expr)
		})
	}
}

func TestDivideByZero(t *testing.T) {
	for _, src := range []string{"1 / 0", "5 % (2 - 2)"} {
		_, err := eval(t, src, nil)
		assert.ErrorIs(t, err, ErrDivideByZero, src)
	}
}

func TestUnresolved(t *testing.T) {
	_, err := eval(t, "SOME_CONST + 1", nil)
	require.ErrorIs(t, err, ErrUnresolved)
	assert.Contains(t, err.Error(), "SOME_CONST")

	_, err = eval(t, "sizeof(struct A0)", nil)
	assert.ErrorIs(t, err, ErrUnresolved)

	_, err = eval(t, "f(1)", nil)
	assert.ErrorIs(t, err, ErrUnresolved)

	// short circuit never looks at the right operand
	v, err := eval(t, "0 && MISSING", nil)
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	v, err = eval(t, "1 ? 5 : MISSING", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Int64())
}

func TestNotInteger(t *testing.T) {
	for _, src := range []string{"1.5", "\"str\"", "5.12 + 1", "(float)1"} {
		_, err := eval(t, src, nil)
		assert.ErrorIs(t, err, ErrNotInteger, src)
	}
}

func TestContextLookup(t *testing.T) {
	env := Env{
		"NK_PANEL_POPUP":      Int(4),
		"NK_PANEL_CONTEXTUAL": Int(16),
		"NK_PANEL_COMBO":      Int(32),
		"NK_PANEL_MENU":       Int(64),
		"NK_PANEL_TOOLTIP":    Int(128),
	}
	v, err := eval(t, "NK_PANEL_CONTEXTUAL|NK_PANEL_COMBO|NK_PANEL_MENU|NK_PANEL_TOOLTIP", env)
	require.NoError(t, err)
	assert.Equal(t, int64(240), v.Int64())

	env["NK_PANEL_SET_NONBLOCK"] = v
	v, err = eval(t, "NK_PANEL_SET_NONBLOCK|NK_PANEL_POPUP", env)
	require.NoError(t, err)
	assert.Equal(t, int64(244), v.Int64())
}

type typedCtx struct {
	Env
	types map[ctypes.Tnamed]ctypes.Type
}

func (c typedCtx) ResolveNamed(t ctypes.Tnamed) (ctypes.Type, bool) {
	typ, ok := c.types[t]
	return typ, ok
}

func TestSizeofThroughTypedefs(t *testing.T) {
	ctx := typedCtx{
		Env: Env{},
		types: map[ctypes.Tnamed]ctypes.Type{
			{Kind: ctypes.KindStruct, Name: "A22"}: ctypes.Trecord{Fields: []ctypes.Field{
				{Name: "f1", Type: ctypes.Pointer(ctypes.Pointer(ctypes.Int())), BitWidth: -1},
				{Name: "f2", Type: ctypes.Array(ctypes.Pointer(ctypes.Int()), 255), BitWidth: -1},
			}},
			{Kind: ctypes.KindTypedef, Name: "A22"}:      ctypes.Tnamed{Kind: ctypes.KindStruct, Name: "A22"},
			{Kind: ctypes.KindTypedef, Name: "PRIMTYPE"}: ctypes.UChar(),
		},
	}
	isType := func(name string) bool {
		_, ok := ctx.types[ctypes.Tnamed{Kind: ctypes.KindTypedef, Name: name}]
		return ok
	}
	tests := []struct {
		src  string
		want uint64
	}{
		{"sizeof(A22)", 8 * 256},
		{"sizeof(struct A22)", 8 * 256},
		{"sizeof(PRIMTYPE)", 1},
		{"(PRIMTYPE)257", 1},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks, err := lexer.New(tt.src).All()
			require.NoError(t, err)
			e, err := ParseWith(toks, isType)
			require.NoError(t, err)
			v, err := Eval(e, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Uint64())
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"(1 + 2", "1 +", "", "1 2", "a ? b", "(int"} {
		t.Run(src, func(t *testing.T) {
			toks, err := lexer.New(src).All()
			require.NoError(t, err)
			_, err = Parse(toks)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe), "expected *ParseError, got %v", err)
		})
	}
}

func TestStringValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"hello"`, "hello"},
		{`"a\"b\\"`, `a"b\`},
		{`"\x41\102"`, "AB"},
		{`"é"`, "é"},
		{`L"wide"`, "wide"},
		{`"tab\there"`, "tab\there"},
	}
	for _, tt := range tests {
		got, err := StringValue(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestIsFloatLiteral(t *testing.T) {
	assert.True(t, IsFloatLiteral("5.12"))
	assert.True(t, IsFloatLiteral("1e10"))
	assert.True(t, IsFloatLiteral("0x1p-3"))
	assert.False(t, IsFloatLiteral("0x512"))
	assert.False(t, IsFloatLiteral("0xE"))
	assert.False(t, IsFloatLiteral("10UL"))
}
