package cabs_test

import (
	"bytes"
	"testing"

	"github.com/raymyers/ralph-cdecl/pkg/cabs"
	"github.com/raymyers/ralph-cdecl/pkg/parser"
)

func TestPrintDeclaration(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"int x;", "int x;\n"},
		{"typedef char *A9p[3];", "typedef char *A9p[3];\n"},
		{"typedef char *(*A11)[3];", "typedef char *(*A11)[3];\n"},
		{"extern const int *const p, q[];", "extern const int *const p, q[];\n"},
		{"int (*signal(int sig, void (*fn)(int)))(int);", "int (*signal(int sig, void (*fn)(int)))(int);\n"},
		{"int f(void); int g();", "int f(void);\nint g();\n"},
		{"int printf(const char *fmt, ...);", "int printf(const char *fmt, ...);\n"},
		{"static inline int h(int a) { return a; }", "static inline int h(int a) { ... }\n"},
		{"struct S;", "struct S;\n"},
		{"struct S { int a : 3; char *b[4]; };", "struct S {\n  int a : 3;\n  char *b[4];\n};\n"},
		{"enum E { A, B = 1 << 2 };", "enum E {\n  A,\n  B = 1 << 2\n};\n"},
		{"int a[N * 2];", "int a[N * 2];\n"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			decls, err := parser.ParseString(tt.input)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			var buf bytes.Buffer
			cabs.NewPrinter(&buf).PrintDeclarations(decls)
			if got := buf.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDeclarator(t *testing.T) {
	decls, err := parser.ParseString("void (*handlers[4])(int);")
	if err != nil {
		t.Fatal(err)
	}
	got := cabs.FormatDeclarator(decls[0].Declarators[0])
	if want := "(*handlers[4])(int)"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
