package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(normalizeFlags(args))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestFlagsExist(t *testing.T) {
	cmd := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	for _, name := range []string{"config", "include", "isystem", "system-includes", "define", "macro", "fail-fast", "external-cpp", "format", "preprocess", "dparse", "verbose"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected flag --%s to exist", name)
		}
	}
}

func TestBindAndConfig(t *testing.T) {
	var o options
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.bind(fs)
	err := fs.Parse([]string{"-DWIDE", "-DLEN=4", "-I", "inc", "--isystem", "sys", "--system-includes", "--macro", "N=2"})
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := o.config()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(cfg.DefinedSymbols, []string{"WIDE", "LEN"}) {
		t.Errorf("symbols = %v", cfg.DefinedSymbols)
	}
	if cfg.MacroOverrides["LEN"] != "4" || cfg.MacroOverrides["N"] != "2" || len(cfg.MacroOverrides) != 2 {
		t.Errorf("overrides = %v", cfg.MacroOverrides)
	}
	if !slices.Equal(cfg.IncludePaths, []string{"inc"}) || !slices.Equal(cfg.SystemPaths, []string{"sys"}) || !cfg.SearchSystem {
		t.Errorf("paths = %v %v search=%v", cfg.IncludePaths, cfg.SystemPaths, cfg.SearchSystem)
	}
	if o.format != "text" {
		t.Errorf("default format = %q", o.format)
	}
}

func TestNormalizeFlags(t *testing.T) {
	got := normalizeFlags([]string{"-dparse", "-E", "-DX", "file.h"})
	want := []string{"--dparse", "-E", "-DX", "file.h"}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNoArgsShowsHelp(t *testing.T) {
	out, _, err := execute(t)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "ralph-cdecl [flags] file...") {
		t.Errorf("expected usage, got %q", out)
	}
}

func TestModelText(t *testing.T) {
	out, errOut, err := execute(t, filepath.Join("..", "..", "testdata", "test.h"))
	if err != nil {
		t.Fatalf("expected no error, got %v (stderr %q)", err, errOut)
	}
	for _, want := range []string{
		"#define TEST_INT 512 // int",
		"struct STRUCT1 {\n  field1 int\n}",
		"enum ENUM5 {\n  enum13 = 4\n  enum14 = 9\n  enum15 = 2\n}",
		"typedef STRUCT2 = struct STRUCT1",
		"func test_call10(**int) **void",
		"func multiline1()\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
	// <stddef.h> and <stdint.h> are not searched
	if !strings.Contains(errOut, "note:") {
		t.Errorf("expected include notes on stderr, got %q", errOut)
	}
}

func TestModelYAML(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "a.h", `#define SIZE 4
struct pair { int a; int b : 3; };
typedef struct pair pair_t;
int sum(const pair_t *p, int n, ...);
`)
	out, _, err := execute(t, "--format", "yaml", file)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var doc document
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out)
	}
	if len(doc.Constants) != 1 || doc.Constants[0].Value != "4" {
		t.Errorf("constants: %+v", doc.Constants)
	}
	if len(doc.Records) != 1 || doc.Records[0].Size != 8 || len(doc.Records[0].Fields) != 2 {
		t.Fatalf("records: %+v", doc.Records)
	}
	if bits := doc.Records[0].Fields[1].Bits; bits == nil || *bits != 3 {
		t.Errorf("expected bitfield width 3, got %v", bits)
	}
	if len(doc.Functions) != 1 {
		t.Fatalf("functions: %+v", doc.Functions)
	}
	fn := doc.Functions[0]
	if fn.Name != "sum" || fn.Return != "int" || !fn.Variadic || len(fn.Params) != 2 || fn.Params[0].Name != "p" {
		t.Errorf("function: %+v", fn)
	}
}

func TestUnknownFormat(t *testing.T) {
	_, errOut, err := execute(t, "--format", "json", "x.h")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.HasPrefix(errOut, "ralph-cdecl: unknown format") {
		t.Errorf("got %q", errOut)
	}
}

func TestDefinesAndMacros(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "g.h", `#ifdef WIDE
#define N 8
int wide[N];
#endif
int narrow[LEN];
`)
	out, errOut, err := execute(t, "-D", "WIDE", "--macro", "LEN=2", file)
	if err != nil {
		t.Fatalf("expected no error, got %v (stderr %q)", err, errOut)
	}
	for _, want := range []string{"var wide [8]int", "var narrow [2]int"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}

	_, _, err = execute(t, "--macro", "LEN", file)
	if err == nil {
		t.Error("expected --macro without a value to fail")
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "cdecl.yaml", "definedSymbols: [WIDE]\nmacroOverrides:\n  LEN: \"3\"\n")
	file := writeFile(t, dir, "g.h", "#ifdef WIDE\nint wide[LEN];\n#endif\n")
	out, _, err := execute(t, "--config", cfg, file)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "var wide [3]int") {
		t.Errorf("got:\n%s", out)
	}

	_, errOut, err := execute(t, "--config", filepath.Join(dir, "missing.yaml"), file)
	if err == nil || !strings.Contains(errOut, "reading config file") {
		t.Errorf("expected a config error, got %v %q", err, errOut)
	}
}

func TestDiagnosticsExitStatus(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "bad.h", "int (broken;\nint ok;\n")
	out, errOut, err := execute(t, file)
	if !errors.Is(err, ErrDiagnostics) {
		t.Fatalf("expected ErrDiagnostics, got %v", err)
	}
	if !strings.Contains(out, "var ok int") {
		t.Errorf("expected the good declaration, got:\n%s", out)
	}
	if !strings.Contains(errOut, "bad.h:1:") || !strings.Contains(errOut, ": error: ") {
		t.Errorf("expected a located error, got %q", errOut)
	}
	if strings.Contains(errOut, "ralph-cdecl:") {
		t.Errorf("diagnostics should not be prefixed, got %q", errOut)
	}

	_, errOut, err = execute(t, "--fail-fast", file)
	if err == nil || !strings.Contains(errOut, "ralph-cdecl: stopped at first syntax error") {
		t.Errorf("expected fail-fast error, got %v %q", err, errOut)
	}
}

func TestMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.h", "struct S;\ntypedef struct S S_t;\n")
	b := writeFile(t, dir, "b.h", "struct S { long x; };\n")
	out, errOut, err := execute(t, "-v", a, b)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "struct S {\n  x long\n}") {
		t.Errorf("expected the completed record, got:\n%s", out)
	}
	if !strings.Contains(errOut, "ralph-cdecl: parsing "+a) || !strings.Contains(errOut, "ralph-cdecl: merged 2 units") {
		t.Errorf("expected progress lines, got %q", errOut)
	}
}

func TestMissingFile(t *testing.T) {
	_, errOut, err := execute(t, filepath.Join(t.TempDir(), "none.h"))
	if err == nil || !strings.HasPrefix(errOut, "ralph-cdecl: ") {
		t.Errorf("expected a read error, got %v %q", err, errOut)
	}
}

func TestPreprocessOnly(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "pp.h", "#define N 4\n#define STR(x) #x\nint a[N];\nconst char *s = STR(hi);\n")
	out, _, err := execute(t, "-E", file)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "int a[4];") || !strings.Contains(out, `"hi"`) {
		t.Errorf("got %q", out)
	}
	if strings.Contains(out, "#define") {
		t.Errorf("directives should be consumed, got %q", out)
	}
}

func TestDParseFlag(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "test.c", `typedef char *(*A11)[3];
int add(int a, int b) { return a + b; }
`)
	out, _, err := execute(t, "-dparse", file)
	if err != nil {
		t.Fatalf("expected no error for -dparse, got %v", err)
	}
	for _, want := range []string{"typedef char *(*A11)[3];", "int add(int a, int b) { ... }"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
}
