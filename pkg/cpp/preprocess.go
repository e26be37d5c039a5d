// preprocess.go implements the preprocessor driver: directives, includes
// and a lazily expanded token stream for the declaration parser.
package cpp

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/raymyers/ralph-cdecl/pkg/diag"
	"github.com/raymyers/ralph-cdecl/pkg/lexer"
)

// Options configures one preprocessing session.
type Options struct {
	Symbols      []string          // names that count as defined for #ifdef and defined()
	Overrides    map[string]string // object-like macros pinned for the whole session
	IncludePaths []string          // -I directories
	SystemPaths  []string          // searched for <...> after IncludePaths
}

// source is one file on the include stack. The peeked token stays with its
// file so an #include never steals the parent's next line.
type source struct {
	lex    *lexer.Lexer
	path   string
	peeked *lexer.Token
	depth  int // conditional depth when the file was entered
}

func (s *source) peek(active bool) (lexer.Token, error) {
	if s.peeked == nil {
		s.lex.Tolerant = !active
		tok, err := s.lex.Next()
		if err != nil {
			return lexer.Token{}, err
		}
		s.peeked = &tok
	}
	return *s.peeked, nil
}

// Preprocessor is the main driver for C preprocessing. It is not safe for
// concurrent use; each parse session owns one.
type Preprocessor struct {
	macros   *MacroTable
	cond     *Conditions
	expander *Expander
	stream   *expansion
	search   *SearchPath
	diags    *diag.List

	files    []*source
	included []string
	err      error // fatal lexing error
}

// New creates a preprocessor over src, which is named filename in
// locations and for resolving quoted includes. Diagnostics are added to
// diags.
func New(filename, src string, opts Options, diags *diag.List) *Preprocessor {
	if diags == nil {
		diags = &diag.List{}
	}
	macros := NewMacroTable()
	p := &Preprocessor{
		macros:   macros,
		cond:     NewConditions(macros, opts.Symbols...),
		expander: NewExpander(macros),
		search:   NewSearchPath(opts.IncludePaths, opts.SystemPaths),
		diags:    diags,
	}
	names := make([]string, 0, len(opts.Overrides))
	for name := range opts.Overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := macros.Override(name, opts.Overrides[name]); err != nil {
			diags.Addf(diag.Error, diag.KindDirective, "", 0, 0, "macro override %s: %v", name, err)
		}
	}
	if filename != "" {
		_ = p.search.Enter(filename)
	}
	p.files = []*source{{lex: lexer.NewFile(src, filename), path: filename}}
	p.stream = p.expander.stream(p.raw)
	return p
}

// Macros returns the macro table of the session.
func (p *Preprocessor) Macros() *MacroTable {
	return p.macros
}

// Included returns the resolved paths of every file entered by #include,
// in the order they were first entered.
func (p *Preprocessor) Included() []string {
	return p.included
}

func (p *Preprocessor) top() *source {
	return p.files[len(p.files)-1]
}

// raw feeds the expansion with active source tokens. It stops at a
// directive or the end of the current file, leaving that token peeked.
func (p *Preprocessor) raw() (lexer.Token, bool) {
	for p.err == nil {
		src := p.top()
		active := p.cond.Active()
		tok, err := src.peek(active)
		if err != nil {
			p.err = err
			break
		}
		if tok.Kind == lexer.EOF || (tok.BOL && tok.Is("#")) {
			break
		}
		src.peeked = nil
		if active {
			return tok, true
		}
	}
	return lexer.Token{}, false
}

// Next returns the next token after preprocessing. After the end of the
// main file it keeps returning EOF. The only error is a *lexer.LexError,
// which ends the session; everything else becomes a diagnostic.
func (p *Preprocessor) Next() (lexer.Token, error) {
	for {
		tok, ok, err := p.stream.next()
		if p.err != nil {
			return lexer.Token{}, p.err
		}
		if err != nil {
			p.report(diag.Error, errTok(err), err)
			continue
		}
		if ok {
			return tok, nil
		}

		src := p.top()
		hash := *src.peeked
		if hash.Kind == lexer.EOF {
			if err := p.cond.closeTo(src.depth); err != nil {
				p.report(diag.Error, hash, err)
			}
			if len(p.files) == 1 {
				return hash, nil
			}
			p.files = p.files[:len(p.files)-1]
			p.search.Leave()
			continue
		}
		src.peeked = nil
		rest, err := src.lex.RestOfLine()
		if err != nil {
			p.err = err
			return lexer.Token{}, err
		}
		p.directive(hash, rest)
	}
}

// All returns every token up to and including EOF.
func (p *Preprocessor) All() ([]lexer.Token, error) {
	var toks []lexer.Token
	for {
		tok, err := p.Next()
		if err != nil {
			return toks, err
		}
		toks = append(toks, tok)
		if tok.Kind == lexer.EOF {
			return toks, nil
		}
	}
}

// Text renders the whole preprocessed unit as source text.
func (p *Preprocessor) Text() (string, error) {
	toks, err := p.All()
	if err != nil {
		return "", err
	}
	return TokensToString(toks), nil
}

func errTok(err error) lexer.Token {
	var ee *ExpandError
	if errors.As(err, &ee) {
		return ee.Tok
	}
	return lexer.Token{}
}

func (p *Preprocessor) report(sev diag.Severity, at lexer.Token, err error) {
	msg := err.Error()
	var ee *ExpandError
	if errors.As(err, &ee) {
		msg = ee.Msg
	}
	p.diags.Add(diag.Diagnostic{
		Severity: sev,
		Kind:     diag.KindDirective,
		Message:  msg,
		File:     at.File,
		Line:     at.Line,
		Column:   at.Column,
		Err:      err,
	})
}

func (p *Preprocessor) reportf(sev diag.Severity, at lexer.Token, format string, args ...any) {
	p.diags.Addf(sev, diag.KindDirective, at.File, at.Line, at.Column, format, args...)
}

// directive handles one directive line. hash is the '#' token and rest
// the tokens after it on the same logical line.
func (p *Preprocessor) directive(hash lexer.Token, rest []lexer.Token) {
	if len(rest) == 0 {
		return // null directive
	}
	name, args := rest[0], rest[1:]
	src := p.top()
	active := p.cond.Active()

	// conditionals are tracked even inside skipped groups
	switch name.Text {
	case "if":
		if err := p.cond.If(args); err != nil {
			p.report(diag.Error, name, err)
		}
		return
	case "ifdef", "ifndef":
		ident := ""
		if len(args) > 0 && (args[0].Kind == lexer.Ident || args[0].Kind == lexer.Keyword) {
			ident = args[0].Text
		} else if active {
			p.reportf(diag.Error, name, "#%s with no macro name", name.Text)
		}
		p.cond.Ifdef(ident, name.Text == "ifndef")
		return
	case "elif", "else", "endif":
		if p.cond.Depth() <= src.depth {
			p.reportf(diag.Error, name, "#%s without #if", name.Text)
			return
		}
		var err error
		switch name.Text {
		case "elif":
			err = p.cond.Elif(args)
		case "else":
			err = p.cond.Else()
		default:
			err = p.cond.Endif()
		}
		if err != nil {
			p.report(diag.Error, name, err)
		}
		return
	}
	if !active {
		return
	}

	switch name.Text {
	case "define":
		p.define(name, args)
	case "undef":
		if len(args) == 0 {
			p.reportf(diag.Error, name, "no macro name given in #undef directive")
			return
		}
		if err := p.macros.Undefine(args[0].Text); errors.Is(err, ErrOverridden) {
			p.reportf(diag.Note, args[0], "#undef %s ignored: macro is overridden by configuration", args[0].Text)
		}
	case "include", "include_next", "import":
		p.include(name, args)
	case "error":
		p.reportf(diag.Error, name, "#error %s", TokensToString(args))
	case "warning":
		p.reportf(diag.Warning, name, "#warning %s", TokensToString(args))
	case "pragma":
		if len(args) > 0 && args[0].IsIdent("once") {
			p.search.Once(src.path)
		}
	case "line", "ident", "sccs", "assert", "unassert":
	default:
		if name.Kind == lexer.Number {
			return // GCC line marker: # 12 "file.h" 2
		}
		p.reportf(diag.Warning, name, "unknown directive #%s", name.Text)
	}
}

func (p *Preprocessor) define(at lexer.Token, args []lexer.Token) {
	m, err := ParseDefine(args)
	if err != nil {
		p.reportf(diag.Error, at, "#define: %v", err)
		return
	}
	if m.HasPaste() {
		p.reportf(diag.Warning, at, "token pasting (##) in macro %s is not supported; operands are left unpasted", m.Name)
	}
	switch err := p.macros.Define(m); {
	case err == nil:
	case errors.Is(err, ErrOverridden):
		p.reportf(diag.Note, args[0], "#define %s ignored: macro is overridden by configuration", m.Name)
	default:
		p.report(diag.Warning, args[0], err)
	}
}

func (p *Preprocessor) include(at lexer.Token, args []lexer.Token) {
	if len(args) > 0 && args[0].Kind != lexer.String && !args[0].Is("<") {
		// computed include: #include HEADER
		if expanded, err := p.expander.Expand(args); err == nil {
			args = expanded
		}
	}
	name, form, err := ParseIncludeName(args)
	if err != nil {
		p.report(diag.Error, at, err)
		return
	}
	path, err := p.search.Find(name, form)
	if err != nil {
		p.reportf(diag.Note, at, "%v; skipped", err)
		return
	}
	if p.search.Skip(path) {
		return
	}
	if err := p.search.Enter(path); err != nil {
		p.report(diag.Warning, at, err)
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		p.search.Leave()
		p.report(diag.Error, at, fmt.Errorf("reading %s: %w", name, err))
		return
	}
	if !slices.Contains(p.included, path) {
		p.included = append(p.included, path)
	}
	p.files = append(p.files, &source{
		lex:   lexer.NewFile(strings.TrimPrefix(string(content), "\ufeff"), path),
		path:  path,
		depth: p.cond.Depth(),
	})
}
