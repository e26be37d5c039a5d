package cpp

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSearchPath_Find(t *testing.T) {
	here, user, system := t.TempDir(), t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(here, "cfg.h"), "here")
	writeFile(t, filepath.Join(user, "cfg.h"), "user")
	writeFile(t, filepath.Join(system, "cfg.h"), "system")
	writeFile(t, filepath.Join(system, "sys", "types.h"), "system types")
	writeFile(t, filepath.Join(here, "stdint.h"), "local stdint")

	s := NewSearchPath([]string{user}, []string{system})
	if err := s.Enter(filepath.Join(here, "main.h")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		form HeaderForm
		want string
	}{
		{"cfg.h", Quoted, "here"},
		{"cfg.h", Angled, "user"},
		{"sys/types.h", Angled, "system types"},
		{"sys/types.h", Quoted, "system types"},
	}
	for _, tt := range tests {
		path, err := s.Find(tt.name, tt.form)
		if err != nil {
			t.Errorf("Find(%s): %v", tt.form.quote(tt.name), err)
			continue
		}
		if !filepath.IsAbs(path) {
			t.Errorf("Find(%s) = %s, want an absolute path", tt.form.quote(tt.name), path)
		}
		if got, _ := os.ReadFile(path); string(got) != tt.want {
			t.Errorf("Find(%s) read %q, want %q", tt.form.quote(tt.name), got, tt.want)
		}
	}

	// angled names never look next to the including file
	_, err := s.Find("stdint.h", Angled)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
	if err.Error() != "cannot find <stdint.h>" || len(nf.Searched) != 2 {
		t.Errorf("got %v searched %v", err, nf.Searched)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("NotFoundError should match os.ErrNotExist")
	}
}

func TestSearchPath_QuotedFollowsInnermostFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.h"), "outer")
	writeFile(t, filepath.Join(root, "sub", "a.h"), "inner")

	s := NewSearchPath(nil, nil)
	s.Enter(filepath.Join(root, "main.h"))
	s.Enter(filepath.Join(root, "sub", "b.h"))
	if path, _ := s.Find("a.h", Quoted); filepath.Dir(path) != filepath.Join(root, "sub") {
		t.Errorf("inside sub/b.h found %s", path)
	}
	s.Leave()
	if path, _ := s.Find("a.h", Quoted); filepath.Dir(path) != root {
		t.Errorf("after leaving sub/b.h found %s", path)
	}
	if s.Depth() != 1 {
		t.Errorf("depth = %d, want 1", s.Depth())
	}
}

func TestSearchPath_Cycle(t *testing.T) {
	s := NewSearchPath(nil, nil)
	for _, f := range []string{"/top.h", "/a.h", "/b.h"} {
		if err := s.Enter(f); err != nil {
			t.Fatal(err)
		}
	}
	err := s.Enter("/a.h")
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CycleError, got %v", err)
	}
	if want := "#include cycle: a.h -> b.h -> a.h"; err.Error() != want {
		t.Errorf("got %q, want %q", err, want)
	}
	if s.Depth() != 3 {
		t.Errorf("a rejected file must not be pushed, depth = %d", s.Depth())
	}
}

func TestSearchPath_TooDeep(t *testing.T) {
	s := NewSearchPath(nil, nil)
	for i := range MaxIncludeDepth {
		if err := s.Enter(filepath.Join("/deep", strings.Repeat("x", i+1)+".h")); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Enter("/deep/last.h"); err == nil || !strings.Contains(err.Error(), "nested deeper") {
		t.Errorf("expected a nesting error, got %v", err)
	}
}

func TestSearchPath_Once(t *testing.T) {
	s := NewSearchPath(nil, nil)
	if s.Skip("/guarded.h") {
		t.Error("nothing is skipped before #pragma once")
	}
	s.Once("/guarded.h")
	if !s.Skip("/guarded.h") || s.Skip("/other.h") {
		t.Error("only the marked file is skipped")
	}
}

func TestParseIncludeName(t *testing.T) {
	tests := []struct {
		line string
		name string
		form HeaderForm
	}{
		{`"test.h"`, "test.h", Quoted},
		{"<stddef.h>", "stddef.h", Angled},
		{"<sys/types.h>", "sys/types.h", Angled},
		{`"dir/a b.h"`, "dir/a b.h", Quoted},
	}
	for _, tt := range tests {
		name, form, err := ParseIncludeName(tokenize(t, tt.line))
		if err != nil {
			t.Errorf("%s: %v", tt.line, err)
			continue
		}
		if name != tt.name || form != tt.form {
			t.Errorf("%s: got %s, want %s", tt.line, form.quote(name), tt.form.quote(tt.name))
		}
	}

	for _, bad := range []string{"", "<stdio.h", "<>", "stdio"} {
		if _, _, err := ParseIncludeName(tokenize(t, bad)); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestParseSearchList(t *testing.T) {
	dir := t.TempDir()
	first, second := filepath.Join(dir, "include"), filepath.Join(dir, "local")
	os.MkdirAll(first, 0o755)
	os.MkdirAll(second, 0o755)

	out := "Using built-in specs.\n" +
		"Target: x86_64-linux-gnu\n" +
		"#include \"...\" search starts here:\n" +
		"#include <...> search starts here:\n" +
		" " + first + "\n" +
		" " + second + "\n" +
		" /no/such/dir\n" +
		" /System/Library/Frameworks (framework directory)\n" +
		"End of search list.\n" +
		" " + dir + "\n"

	got := parseSearchList(out)
	if len(got) != 2 || got[0] != first || got[1] != second {
		t.Errorf("got %v, want [%s %s]", got, first, second)
	}
}
