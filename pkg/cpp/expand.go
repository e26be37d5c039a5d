// expand.go implements macro expansion with argument substitution and
// stringification. Token pasting is not performed: ## is dropped and its
// operands are left side by side.
package cpp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/raymyers/ralph-cdecl/pkg/lexer"
)

// hideset is an immutable set of macro names that must not be expanded
// again for a token (blue paint). Sets share tails, so adding is O(1).
type hideset struct {
	name string
	next *hideset
}

func (h *hideset) has(name string) bool {
	for ; h != nil; h = h.next {
		if h.name == name {
			return true
		}
	}
	return false
}

func (h *hideset) add(name string) *hideset {
	if h.has(name) {
		return h
	}
	return &hideset{name: name, next: h}
}

func (h *hideset) union(o *hideset) *hideset {
	for ; o != nil; o = o.next {
		h = h.add(o.name)
	}
	return h
}

func (h *hideset) intersect(o *hideset) *hideset {
	var out *hideset
	for ; h != nil; h = h.next {
		if o.has(h.name) {
			out = &hideset{name: h.name, next: out}
		}
	}
	return out
}

// ptok is a token under expansion
type ptok struct {
	lexer.Token
	hide *hideset
}

// ExpandError reports a malformed macro invocation
type ExpandError struct {
	Tok lexer.Token // the macro name
	Msg string
}

func (e *ExpandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Tok.Pos(), e.Msg)
}

// Expander handles macro expansion.
type Expander struct {
	macros *MacroTable
}

// NewExpander creates a new macro expander.
func NewExpander(macros *MacroTable) *Expander {
	return &Expander{macros: macros}
}

// Expand expands all macros in the token slice.
func (e *Expander) Expand(tokens []lexer.Token) ([]lexer.Token, error) {
	i := 0
	x := e.stream(func() (lexer.Token, bool) {
		for i < len(tokens) && tokens[i].Kind == lexer.EOF {
			i++
		}
		if i >= len(tokens) {
			return lexer.Token{}, false
		}
		i++
		return tokens[i-1], true
	})
	var out []lexer.Token
	for {
		tok, ok, err := x.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, tok)
	}
}

// ExpandString tokenizes input, expands it and renders the result.
func (e *Expander) ExpandString(input string) (string, error) {
	toks, err := lexer.New(input).All()
	if err != nil {
		return "", err
	}
	out, err := e.Expand(toks)
	if err != nil {
		return "", err
	}
	return TokensToString(out), nil
}

// expansion is an expanding view over a raw token source. Tokens produced
// by expansion wait in pending (top of stack is the next token) and are
// rescanned before anything more is read from src.
type expansion struct {
	e       *Expander
	src     func() (lexer.Token, bool)
	pending []ptok
}

func (e *Expander) stream(src func() (lexer.Token, bool)) *expansion {
	return &expansion{e: e, src: src}
}

func (x *expansion) read() (ptok, bool) {
	if n := len(x.pending); n > 0 {
		t := x.pending[n-1]
		x.pending = x.pending[:n-1]
		return t, true
	}
	tok, ok := x.src()
	return ptok{Token: tok}, ok
}

func (x *expansion) unread(t ptok) {
	x.pending = append(x.pending, t)
}

// push queues toks so that toks[0] is read next.
func (x *expansion) push(toks []ptok) {
	for i := len(toks) - 1; i >= 0; i-- {
		x.pending = append(x.pending, toks[i])
	}
}

// next returns the next fully expanded token, or false when the source is
// exhausted.
func (x *expansion) next() (lexer.Token, bool, error) {
	t, ok, err := x.nextP()
	return t.Token, ok, err
}

func (x *expansion) nextP() (ptok, bool, error) {
	for {
		t, ok := x.read()
		if !ok {
			return ptok{}, false, nil
		}
		if t.Kind != lexer.Ident && t.Kind != lexer.Keyword {
			return t, true, nil
		}
		m := x.e.macros.Lookup(t.Text)
		if m == nil || t.hide.has(t.Text) {
			return t, true, nil
		}
		switch m.Kind {
		case MacroBuiltin:
			return ptok{Token: x.e.builtin(m, t.Token), hide: t.hide}, true, nil
		case MacroObject:
			x.push(x.e.subst(m, nil, t.hide.add(m.Name), t.Token))
		case MacroFunction:
			paren, ok := x.read()
			if !ok || !paren.Is("(") {
				// a function-like macro name without arguments is left alone
				if ok {
					x.unread(paren)
				}
				return t, true, nil
			}
			args, rparen, err := x.collectArgs(m, t.Token)
			if err != nil {
				return ptok{}, false, err
			}
			hs := t.hide.intersect(rparen.hide).add(m.Name)
			x.push(x.e.subst(m, args, hs, t.Token))
		}
	}
}

// collectArgs reads the arguments of an invocation after its '('. Commas
// inside nested parentheses do not separate arguments; once the variadic
// parameter is reached every remaining comma belongs to it.
func (x *expansion) collectArgs(m *Macro, name lexer.Token) ([][]ptok, ptok, error) {
	var args [][]ptok
	var cur []ptok
	depth := 0
	for {
		t, ok := x.read()
		if !ok {
			return nil, ptok{}, &ExpandError{Tok: name, Msg: fmt.Sprintf("unterminated argument list invoking macro %q", m.Name)}
		}
		switch {
		case t.Is("(") || t.Is("[") || t.Is("{"):
			depth++
		case (t.Is(")") || t.Is("]") || t.Is("}")) && depth > 0:
			depth--
		case t.Is(")"):
			args = append(args, cur)
			args, err := checkArgs(m, args, name)
			return args, t, err
		case t.Is(",") && depth == 0 && !(m.Variadic && len(args) == len(m.Params)-1):
			args = append(args, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
}

func checkArgs(m *Macro, args [][]ptok, name lexer.Token) ([][]ptok, error) {
	if len(m.Params) == 0 && len(args) == 1 && len(args[0]) == 0 {
		return nil, nil
	}
	if m.Variadic && len(args) == len(m.Params)-1 {
		args = append(args, nil)
	}
	if len(args) != len(m.Params) {
		return nil, &ExpandError{Tok: name, Msg: fmt.Sprintf("macro %q requires %d arguments, but %d given", m.Name, len(m.Params), len(args))}
	}
	return args, nil
}

func (e *Expander) paramIndex(m *Macro, tok lexer.Token) int {
	if m.Kind != MacroFunction || (tok.Kind != lexer.Ident && tok.Kind != lexer.Keyword) {
		return -1
	}
	for i, p := range m.Params {
		if p == tok.Text {
			return i
		}
	}
	return -1
}

// subst builds the replacement for one invocation. Parameters are replaced
// by their fully expanded argument, or by the raw argument when next to
// ##. Every produced token carries the invocation's location and hideset.
func (e *Expander) subst(m *Macro, args [][]ptok, hs *hideset, at lexer.Token) []ptok {
	var out []ptok
	body := m.Body
	for i := 0; i < len(body); i++ {
		tok := body[i]
		if tok.Is("#") && m.Kind == MacroFunction && i+1 < len(body) {
			if p := e.paramIndex(m, body[i+1]); p >= 0 {
				s := stringify(args[p])
				s.Space = tok.Space
				out = append(out, ptok{Token: s})
				i++
				continue
			}
		}
		if tok.Is("##") {
			continue
		}
		if p := e.paramIndex(m, tok); p >= 0 {
			arg := args[p]
			pasted := (i > 0 && body[i-1].Is("##")) || (i+1 < len(body) && body[i+1].Is("##"))
			if !pasted {
				arg = e.expandArg(arg)
			}
			for j, a := range arg {
				if j == 0 {
					a.Space = tok.Space
				}
				out = append(out, a)
			}
			continue
		}
		out = append(out, ptok{Token: tok})
	}
	for i := range out {
		out[i].hide = out[i].hide.union(hs)
		out[i].File, out[i].Line, out[i].Column = at.File, at.Line, at.Column
		out[i].BOL = false
	}
	if len(out) > 0 {
		out[0].BOL, out[0].Space = at.BOL, at.Space
	}
	return out
}

// expandArg fully expands one argument in isolation. An invocation left
// unterminated inside the argument keeps the argument as written.
func (e *Expander) expandArg(arg []ptok) []ptok {
	x := e.stream(func() (lexer.Token, bool) { return lexer.Token{}, false })
	x.push(arg)
	var out []ptok
	for {
		t, ok, err := x.nextP()
		if err != nil {
			return arg
		}
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

// stringify implements the # operator
func stringify(arg []ptok) lexer.Token {
	var sb strings.Builder
	sb.WriteByte('"')
	for i, t := range arg {
		if i > 0 && (t.Space || t.BOL) {
			sb.WriteByte(' ')
		}
		if t.Kind == lexer.String || t.Kind == lexer.Char {
			sb.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(t.Text))
		} else {
			sb.WriteString(t.Text)
		}
	}
	sb.WriteByte('"')
	return lexer.Token{Kind: lexer.String, Text: sb.String()}
}

func (e *Expander) builtin(m *Macro, at lexer.Token) lexer.Token {
	tok := at
	switch m.Name {
	case "__FILE__":
		tok.Kind, tok.Text = lexer.String, strconv.Quote(at.File)
	case "__LINE__":
		tok.Kind, tok.Text = lexer.Number, strconv.Itoa(at.Line)
	}
	return tok
}
