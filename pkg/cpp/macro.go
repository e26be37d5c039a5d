// Package cpp implements the subset of the C preprocessor a declaration
// parser needs: object-like and simple function-like macros, conditional
// compilation against a caller-supplied symbol set, and includes.
package cpp

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/raymyers/ralph-cdecl/pkg/lexer"
)

// SourceLoc is where a macro was defined or expanded
type SourceLoc struct {
	File   string
	Line   int
	Column int
}

func (l SourceLoc) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

func locOf(tok lexer.Token) SourceLoc {
	return SourceLoc{File: tok.File, Line: tok.Line, Column: tok.Column}
}

// MacroKind distinguishes object-like, function-like and built-in macros.
type MacroKind int

const (
	MacroObject MacroKind = iota
	MacroFunction
	MacroBuiltin
)

// Macro is one #define. Body holds the replacement tokens as lexed, so
// locations survive expansion.
type Macro struct {
	Name     string
	Kind     MacroKind
	Params   []string
	Variadic bool // last parameter collects the extra arguments
	Body     []lexer.Token
	Loc      SourceLoc
}

// FunctionLike reports whether the macro takes arguments
func (m *Macro) FunctionLike() bool { return m.Kind == MacroFunction }

// BodyText renders the replacement list with single spaces
func (m *Macro) BodyText() string {
	return TokensToString(m.Body)
}

// sameAs reports whether two definitions are identical in the C sense:
// same parameters and the same replacement spelling and spacing.
func (m *Macro) sameAs(o *Macro) bool {
	if m.Kind != o.Kind || m.Variadic != o.Variadic || len(m.Params) != len(o.Params) || len(m.Body) != len(o.Body) {
		return false
	}
	for i := range m.Params {
		if m.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range m.Body {
		if m.Body[i].Text != o.Body[i].Text || (i > 0 && m.Body[i].Space != o.Body[i].Space) {
			return false
		}
	}
	return true
}

var (
	// ErrOverridden is returned when a definition or #undef targets a
	// name pinned by Override.
	ErrOverridden = errors.New("macro is overridden by configuration")
)

// RedefinitionError reports a #define that changes an existing macro.
// The new definition is in effect.
type RedefinitionError struct {
	Name string
	Prev SourceLoc
}

func (e *RedefinitionError) Error() string {
	return fmt.Sprintf("%q redefined (previous definition at %s)", e.Name, e.Prev)
}

// MacroTable holds the macros of one parse session
type MacroTable struct {
	macros    map[string]*Macro
	order     []string
	overrides map[string]bool
}

// NewMacroTable creates a table holding only the built-in macros.
func NewMacroTable() *MacroTable {
	t := &MacroTable{
		macros:    make(map[string]*Macro),
		overrides: make(map[string]bool),
	}
	for _, name := range []string{"__FILE__", "__LINE__"} {
		t.macros[name] = &Macro{Name: name, Kind: MacroBuiltin}
	}
	return t
}

// Define adds or replaces a macro. Redefining with a different body
// returns *RedefinitionError after installing the new body; an identical
// redefinition is silent and keeps the first definition with its
// location. Names pinned by Override are left alone and ErrOverridden is
// returned.
func (t *MacroTable) Define(m *Macro) error {
	if t.overrides[m.Name] {
		return ErrOverridden
	}
	return t.define(m)
}

func (t *MacroTable) define(m *Macro) error {
	prev, exists := t.macros[m.Name]
	if exists && prev.Kind == MacroBuiltin {
		return fmt.Errorf("cannot redefine built-in macro %s", m.Name)
	}
	if !exists {
		t.macros[m.Name] = m
		t.order = append(t.order, m.Name)
		return nil
	}
	if prev.sameAs(m) {
		return nil
	}
	t.macros[m.Name] = m
	return &RedefinitionError{Name: m.Name, Prev: prev.Loc}
}

// DefineSimple defines an object-like macro from replacement text.
func (t *MacroTable) DefineSimple(name, value string, loc SourceLoc) error {
	body, err := tokenizeBody(value, loc)
	if err != nil {
		return err
	}
	return t.Define(&Macro{Name: name, Kind: MacroObject, Body: body, Loc: loc})
}

// Override pins name to value for the whole session: later #define and
// #undef of the name are ignored.
func (t *MacroTable) Override(name, value string) error {
	body, err := tokenizeBody(value, SourceLoc{File: "<override>"})
	if err != nil {
		return err
	}
	delete(t.overrides, name)
	if err := t.define(&Macro{Name: name, Kind: MacroObject, Body: body, Loc: SourceLoc{File: "<override>"}}); err != nil {
		var re *RedefinitionError
		if !errors.As(err, &re) {
			return err
		}
	}
	t.overrides[name] = true
	return nil
}

// IsOverridden reports whether name was pinned by Override
func (t *MacroTable) IsOverridden(name string) bool {
	return t.overrides[name]
}

// Undefine removes a macro. It reports ErrOverridden for pinned names.
func (t *MacroTable) Undefine(name string) error {
	if t.overrides[name] {
		return ErrOverridden
	}
	if m, ok := t.macros[name]; !ok || m.Kind == MacroBuiltin {
		return nil
	}
	delete(t.macros, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// IsDefined reports whether name is a macro
func (t *MacroTable) IsDefined(name string) bool {
	_, ok := t.macros[name]
	return ok
}

// Lookup returns the macro for name, or nil
func (t *MacroTable) Lookup(name string) *Macro {
	return t.macros[name]
}

// All yields the user macros in the order they were first defined.
func (t *MacroTable) All() iter.Seq[*Macro] {
	return func(yield func(*Macro) bool) {
		for _, name := range t.order {
			if !yield(t.macros[name]) {
				return
			}
		}
	}
}

// Len returns the number of user macros
func (t *MacroTable) Len() int { return len(t.order) }

// ParseDefine builds a macro from the tokens after `#define`. A '('
// directly after the name, with no space, makes the macro function-like.
func ParseDefine(toks []lexer.Token) (*Macro, error) {
	if len(toks) == 0 || toks[0].Kind != lexer.Ident && toks[0].Kind != lexer.Keyword {
		return nil, fmt.Errorf("macro name missing")
	}
	m := &Macro{Name: toks[0].Text, Kind: MacroObject, Loc: locOf(toks[0])}
	rest := toks[1:]
	if len(rest) > 0 && rest[0].Is("(") && !rest[0].Space {
		m.Kind = MacroFunction
		i := 1
		for {
			if i >= len(rest) {
				return nil, fmt.Errorf("missing ')' in parameter list of %s", m.Name)
			}
			tok := rest[i]
			switch {
			case tok.Is(")") && len(m.Params) == 0:
			case tok.Is("..."):
				m.Params = append(m.Params, "__VA_ARGS__")
				m.Variadic = true
				i++
			case tok.Kind == lexer.Ident || tok.Kind == lexer.Keyword:
				m.Params = append(m.Params, tok.Text)
				i++
				if i < len(rest) && rest[i].Is("...") {
					m.Variadic = true // GNU named variadic: args...
					i++
				}
			default:
				return nil, fmt.Errorf("unexpected %q in parameter list of %s", tok.Text, m.Name)
			}
			if i >= len(rest) {
				return nil, fmt.Errorf("missing ')' in parameter list of %s", m.Name)
			}
			if rest[i].Is(")") {
				i++
				break
			}
			if !rest[i].Is(",") || m.Variadic {
				return nil, fmt.Errorf("expected ',' or ')' in parameter list of %s, got %q", m.Name, rest[i].Text)
			}
			i++
		}
		rest = rest[i:]
	}
	m.Body = append([]lexer.Token(nil), rest...)
	if len(m.Body) > 0 {
		m.Body[0].Space = false
		m.Body[0].BOL = false
	}
	return m, nil
}

// HasPaste reports whether the body uses the ## operator
func (m *Macro) HasPaste() bool {
	for _, tok := range m.Body {
		if tok.Is("##") {
			return true
		}
	}
	return false
}

func tokenizeBody(value string, loc SourceLoc) ([]lexer.Token, error) {
	toks, err := lexer.NewFile(value, loc.File).All()
	if err != nil {
		return nil, err
	}
	toks = toks[:len(toks)-1] // EOF
	for i := range toks {
		toks[i].Line, toks[i].Column = loc.Line, loc.Column
		toks[i].BOL = false
	}
	if len(toks) > 0 {
		toks[0].Space = false
	}
	return toks, nil
}

// TokensToString joins tokens back into source text: a newline before each
// token that started a line, a space where whitespace separated tokens.
func TokensToString(toks []lexer.Token) string {
	var sb strings.Builder
	for i, tok := range toks {
		if tok.Kind == lexer.EOF {
			continue
		}
		if i > 0 {
			if tok.BOL {
				sb.WriteByte('\n')
			} else if tok.Space {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(tok.Text)
	}
	return sb.String()
}
