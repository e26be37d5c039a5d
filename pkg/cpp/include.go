package cpp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/raymyers/ralph-cdecl/pkg/lexer"
)

// HeaderForm tells "name.h" includes from <name.h> includes.
type HeaderForm int

const (
	Quoted HeaderForm = iota
	Angled
)

func (f HeaderForm) quote(name string) string {
	if f == Angled {
		return "<" + name + ">"
	}
	return `"` + name + `"`
}

// MaxIncludeDepth bounds the chain of files being read at once.
const MaxIncludeDepth = 200

// SearchPath locates the files named by #include and keeps the chain of
// files currently open. Nothing outside the configured directories is
// searched, so a bare <stdio.h> is normally not found.
type SearchPath struct {
	user   []string // -I
	system []string // after user, <...> and "..." alike
	open   []string // absolute paths, innermost last
	once   map[string]bool
}

// NewSearchPath returns a SearchPath over the given directories.
func NewSearchPath(user, system []string) *SearchPath {
	return &SearchPath{
		user:   slices.Clone(user),
		system: slices.Clone(system),
		once:   map[string]bool{},
	}
}

// Find returns the absolute path of the header. A quoted name is looked up
// next to the innermost open file before the configured directories.
func (s *SearchPath) Find(name string, form HeaderForm) (string, error) {
	dirs := make([]string, 0, 1+len(s.user)+len(s.system))
	if form == Quoted && len(s.open) > 0 {
		dirs = append(dirs, filepath.Dir(s.open[len(s.open)-1]))
	}
	dirs = append(dirs, s.user...)
	dirs = append(dirs, s.system...)
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if st, err := os.Stat(candidate); err == nil && st.Mode().IsRegular() {
			return absolute(candidate), nil
		}
	}
	return "", &NotFoundError{Name: name, Form: form, Searched: dirs}
}

// Enter pushes path onto the open chain. Re-entering a file that is still
// open is a cycle.
func (s *SearchPath) Enter(path string) error {
	path = absolute(path)
	if i := slices.Index(s.open, path); i >= 0 {
		return &CycleError{Chain: append(slices.Clone(s.open[i:]), path)}
	}
	if len(s.open) >= MaxIncludeDepth {
		return fmt.Errorf("#include nested deeper than %d files", MaxIncludeDepth)
	}
	s.open = append(s.open, path)
	return nil
}

// Leave pops the innermost open file.
func (s *SearchPath) Leave() {
	if n := len(s.open); n > 0 {
		s.open = s.open[:n-1]
	}
}

// Depth is the number of open files.
func (s *SearchPath) Depth() int { return len(s.open) }

// Once records #pragma once for path.
func (s *SearchPath) Once(path string) {
	s.once[absolute(path)] = true
}

// Skip reports whether path carried #pragma once and must not be read again.
func (s *SearchPath) Skip(path string) bool {
	return s.once[absolute(path)]
}

func absolute(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// NotFoundError is returned by Find.
type NotFoundError struct {
	Name     string
	Form     HeaderForm
	Searched []string
}

func (e *NotFoundError) Error() string {
	return "cannot find " + e.Form.quote(e.Name)
}

// Is makes errors.Is(err, os.ErrNotExist) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == os.ErrNotExist
}

// CycleError names the files of an include cycle, first file repeated at
// the end.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Chain))
	for i, p := range e.Chain {
		names[i] = filepath.Base(p)
	}
	return "#include cycle: " + strings.Join(names, " -> ")
}

var errIncludeSyntax = errors.New(`#include expects "FILENAME" or <FILENAME>`)

// ParseIncludeName reads the header name from the operand of #include.
// The lexer splits <sys/types.h> into punctuators, so an angled name is
// rebuilt from the token texts.
func ParseIncludeName(toks []lexer.Token) (string, HeaderForm, error) {
	switch {
	case len(toks) == 0:
		return "", 0, errIncludeSyntax
	case toks[0].Kind == lexer.String && strings.HasPrefix(toks[0].Text, `"`):
		return strings.Trim(toks[0].Text, `"`), Quoted, nil
	case !toks[0].Is("<"):
		return "", 0, errIncludeSyntax
	}
	var name strings.Builder
	for i, tok := range toks[1:] {
		if tok.Is(">") {
			if name.Len() == 0 {
				return "", 0, errors.New("empty header name in #include <>")
			}
			return name.String(), Angled, nil
		}
		if i > 0 && tok.Space {
			name.WriteByte(' ')
		}
		name.WriteString(tok.Text)
	}
	return "", 0, errors.New("missing > after #include <")
}

// SystemIncludePaths returns the <...> search list of the first C compiler
// found among cc, gcc and clang, or nil when none answers.
func SystemIncludePaths(ctx context.Context) []string {
	for _, name := range []string{"cc", "gcc", "clang"} {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		if dirs := compilerSearchList(ctx, path); len(dirs) > 0 {
			return dirs
		}
	}
	return nil
}

func compilerSearchList(ctx context.Context, compiler string) []string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, compiler, "-v", "-E", "-x", "c", "-")
	cmd.Stdin = strings.NewReader("")
	cmd.Stderr = &stderr
	// the list is printed whatever the exit status
	_ = cmd.Run()
	return parseSearchList(stderr.String())
}

// parseSearchList extracts the directories between "search starts here"
// and "End of search list" in the -v output of gcc or clang. Framework
// directories and directories that do not exist are dropped.
func parseSearchList(out string) []string {
	var dirs []string
	listing := false
	for line := range strings.Lines(out) {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasSuffix(line, "search starts here:"):
			listing = true
		case strings.HasPrefix(line, "End of search list"):
			listing = false
		case listing && line != "" && !strings.HasSuffix(line, "(framework directory)"):
			if st, err := os.Stat(line); err == nil && st.IsDir() {
				dirs = append(dirs, line)
			}
		}
	}
	return dirs
}
