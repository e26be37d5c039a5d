// Package diag carries the diagnostics produced alongside a declaration model.
package diag

import (
	"fmt"
	"iter"
	"sync"
)

// Severity of a diagnostic
type Severity int

const (
	Note Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Note:
		return "note"
	case Warning:
		return "warning"
	default:
		return "error"
	}
}

// Kind tells which stage raised the diagnostic
type Kind int

const (
	KindLex Kind = iota
	KindDirective
	KindSyntax
	KindConflict
	KindOverflow
	KindUnresolved
	KindOther
)

func (k Kind) String() string {
	names := []string{"lex", "directive", "syntax", "conflict", "overflow", "unresolved", "other"}
	if int(k) < len(names) {
		return names[k]
	}
	return "?"
}

// Diagnostic is one message about the source
type Diagnostic struct {
	Severity Severity
	Kind     Kind
	Message  string
	File     string
	Line     int
	Column   int
	Err      error `yaml:"-"` // typed cause, if any
}

func (d Diagnostic) String() string {
	loc := fmt.Sprintf("%d:%d", d.Line, d.Column)
	if d.File != "" {
		loc = d.File + ":" + loc
	}
	return fmt.Sprintf("%s: %s: %s", loc, d.Severity, d.Message)
}

// List collects diagnostics in the order they were reported. It is safe
// for concurrent use so parallel units may share one list.
type List struct {
	mu    sync.Mutex
	items []Diagnostic
}

// Add appends a diagnostic
func (l *List) Add(d Diagnostic) {
	l.mu.Lock()
	l.items = append(l.items, d)
	l.mu.Unlock()
}

// Addf appends a diagnostic built from a format string.
func (l *List) Addf(sev Severity, kind Kind, file string, line, col int, format string, args ...any) {
	l.Add(Diagnostic{
		Severity: sev,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		File:     file,
		Line:     line,
		Column:   col,
	})
}

// Len returns the number of diagnostics
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Count returns the number of diagnostics of the given kind.
func (l *List) Count(kind Kind) int {
	n := 0
	for d := range l.All() {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// HasErrors reports whether any diagnostic has Error severity.
func (l *List) HasErrors() bool {
	for d := range l.All() {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Items returns a copy of the collected diagnostics.
func (l *List) Items() []Diagnostic {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Diagnostic(nil), l.items...)
}

// All returns a lazy sequence over a snapshot of the diagnostics.
func (l *List) All() iter.Seq[Diagnostic] {
	items := l.Items()
	return func(yield func(Diagnostic) bool) {
		for _, d := range items {
			if !yield(d) {
				return
			}
		}
	}
}
