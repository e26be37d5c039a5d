// Package preproc runs the system C preprocessor (cc -E) for headers that
// need more than the built-in preprocessor supports, such as token
// pasting or system headers.
package preproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when no preprocessor command is available
var ErrNotFound = errors.New("no C preprocessor found (tried: cc, gcc, clang)")

// Options configures the preprocessing step
type Options struct {
	Command      string            // preprocessor to run; empty means the first of cc, gcc, clang
	Args         []string          // extra arguments passed before the input
	IncludePaths []string          // -I directories
	SystemPaths  []string          // -isystem directories
	Defines      map[string]string // -D macros (name -> value, empty string for simple define)
	Undefines    []string          // -U macros
}

// args builds the command line for input, which is a path or "-"
func (o Options) args(input string) []string {
	args := []string{"-E", "-P"}
	for _, path := range o.IncludePaths {
		args = append(args, "-I"+path)
	}
	for _, path := range o.SystemPaths {
		args = append(args, "-isystem", path)
	}
	names := make([]string, 0, len(o.Defines))
	for name := range o.Defines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if value := o.Defines[name]; value != "" {
			args = append(args, "-D"+name+"="+value)
		} else {
			args = append(args, "-D"+name)
		}
	}
	for _, name := range o.Undefines {
		args = append(args, "-U"+name)
	}
	args = append(args, o.Args...)
	if input == "-" {
		args = append(args, "-x", "c")
	}
	return append(args, input)
}

// File preprocesses a file on disk and returns the output text.
func File(ctx context.Context, filename string, opts Options) (string, error) {
	return run(ctx, filepath.Dir(filename), opts.args(filepath.Base(filename)), nil, opts)
}

// Source preprocesses source text from memory. Quoted includes resolve
// against the directory of filename.
func Source(ctx context.Context, src, filename string, opts Options) (string, error) {
	dir := filepath.Dir(filename)
	opts.IncludePaths = append([]string{dir}, opts.IncludePaths...)
	return run(ctx, dir, opts.args("-"), strings.NewReader(src), opts)
}

func run(ctx context.Context, dir string, args []string, stdin *strings.Reader, opts Options) (string, error) {
	command := opts.Command
	if command == "" {
		command = findPreprocessor()
		if command == "" {
			return "", ErrNotFound
		}
	}

	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Dir = dir
	if stdin != nil {
		cmd.Stdin = stdin
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("preprocessing failed: %w\n%s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// findPreprocessor searches for a C preprocessor on the system
func findPreprocessor() string {
	for _, cmd := range []string{"cc", "gcc", "clang"} {
		if path, err := exec.LookPath(cmd); err == nil {
			return path
		}
	}
	return ""
}
