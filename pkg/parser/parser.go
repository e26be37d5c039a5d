// Package parser implements a recursive descent parser for C declarations.
// It reads preprocessed tokens and produces raw cabs declarations, skipping
// function bodies and initializers.
package parser

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/raymyers/ralph-cdecl/pkg/cabs"
	"github.com/raymyers/ralph-cdecl/pkg/diag"
	"github.com/raymyers/ralph-cdecl/pkg/lexer"
)

// TokenSource yields tokens. After the end of input it keeps returning
// EOF. Both *lexer.Lexer and *cpp.Preprocessor satisfy it.
type TokenSource interface {
	Next() (lexer.Token, error)
}

// SyntaxError reports a malformed declaration. The parser has already
// skipped past the statement when it is returned.
type SyntaxError struct {
	Tok lexer.Token
	Msg string
	Err error // underlying cause, e.g. a constant expression error
}

func (e *SyntaxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tok.Pos(), e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Tok.Pos(), e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Parser parses C declarations from a token source
type Parser struct {
	src      TokenSource
	diags    *diag.List
	toks     []lexer.Token // lookahead
	held     *lexer.Token  // raw token read past an extension keyword
	last     lexer.Token
	err      error           // fatal error from the token source
	typedefs map[string]bool // typedef names in scope

	braces    int // braces opened by the current statement
	externC   int // open extern "C" { blocks
	recorders []*strings.Builder
}

// New creates a Parser reading from src. Decls reports syntax errors to
// diags, which may be nil.
func New(src TokenSource, diags *diag.List) *Parser {
	if diags == nil {
		diags = &diag.List{}
	}
	return &Parser{
		src:      src,
		diags:    diags,
		typedefs: make(map[string]bool),
	}
}

// ParseString parses a complete source text without preprocessing.
func ParseString(src string) ([]*cabs.Declaration, error) {
	p := New(lexer.New(src), nil)
	var decls []*cabs.Declaration
	for {
		d, err := p.Next()
		if errors.Is(err, io.EOF) {
			return decls, nil
		}
		if err != nil {
			return decls, err
		}
		decls = append(decls, d)
	}
}

// Err returns the error that ended Decls early, if any.
func (p *Parser) Err() error {
	return p.err
}

// IsTypedef reports whether name has been declared as a typedef so far.
func (p *Parser) IsTypedef(name string) bool {
	return p.typedefs[name]
}

// DeclareTypedef makes name parse as a type, as if a typedef for it had
// been seen.
func (p *Parser) DeclareTypedef(name string) {
	p.typedefs[name] = true
}

// Next parses the next top-level declaration. It returns io.EOF at the
// end of input. A *SyntaxError means one statement was skipped and
// parsing may continue; any other error is fatal.
func (p *Parser) Next() (*cabs.Declaration, error) {
	for {
		p.braces = 0
		p.recorders = nil
		tok := p.cur()
		switch {
		case tok.Kind == lexer.EOF:
			if p.err != nil {
				return nil, p.err
			}
			return nil, io.EOF
		case tok.Is(";"):
			p.advance()
			continue
		case tok.Is("extern") && p.peek(1).Kind == lexer.String:
			if p.peek(2).Is("{") {
				p.advance()
				p.advance()
				p.advance()
				p.externC++
				continue
			}
			// extern "C" int f(void);
			p.advance()
			p.advance()
		case tok.Is("}") && p.externC > 0:
			p.advance()
			p.externC--
			continue
		}

		d, err := p.declaration()
		if err != nil {
			if p.err != nil {
				return nil, p.err
			}
			p.recover()
			return nil, err
		}
		return d, nil
	}
}

// Decls returns the declarations as a lazy sequence. Syntax errors are
// added to the diagnostics list; a fatal error ends the sequence and is
// available from Err.
func (p *Parser) Decls() iter.Seq[*cabs.Declaration] {
	return func(yield func(*cabs.Declaration) bool) {
		for {
			d, err := p.Next()
			var se *SyntaxError
			switch {
			case errors.As(err, &se):
				p.diags.Add(diag.Diagnostic{
					Severity: diag.Error,
					Kind:     diag.KindSyntax,
					Message:  strings.TrimPrefix(se.Error(), se.Tok.Pos()+": "),
					File:     se.Tok.File,
					Line:     se.Tok.Line,
					Column:   se.Tok.Column,
					Err:      se,
				})
				continue
			case errors.Is(err, io.EOF):
				return
			case err != nil:
				p.err = err
				return
			}
			if !yield(d) {
				return
			}
		}
	}
}

// recover skips to the end of the broken statement: a ';' outside braces
// or the '}' closing the braces the statement opened. A '}' the statement
// did not open is left for Next when it may close an extern "C" block.
func (p *Parser) recover() {
	for {
		tok := p.cur()
		if tok.Kind == lexer.EOF {
			return
		}
		if tok.Is("}") && p.braces == 0 && p.externC > 0 {
			return
		}
		p.advance()
		if tok.Is(";") && p.braces == 0 {
			return
		}
		if tok.Is("}") && p.braces == 0 {
			if p.cur().Is(";") {
				p.advance()
			}
			return
		}
	}
}

func (p *Parser) errorf(format string, args ...any) *SyntaxError {
	return &SyntaxError{Tok: p.cur(), Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) unexpected(what string) *SyntaxError {
	tok := p.cur()
	if tok.Kind == lexer.EOF {
		return p.errorf("expected %s, got end of input", what)
	}
	return p.errorf("expected %s, got %q", what, tok.Text)
}

func (p *Parser) expect(text string) error {
	if !p.cur().Is(text) {
		return p.unexpected(fmt.Sprintf("%q", text))
	}
	p.advance()
	return nil
}

func (p *Parser) cur() lexer.Token {
	return p.peek(0)
}

func (p *Parser) peek(n int) lexer.Token {
	for len(p.toks) <= n {
		p.toks = append(p.toks, p.read())
	}
	return p.toks[n]
}

func (p *Parser) advance() {
	tok := p.cur()
	if tok.Kind == lexer.EOF {
		return
	}
	p.toks = p.toks[1:]
	switch {
	case tok.Is("{"):
		p.braces++
	case tok.Is("}") && p.braces > 0:
		p.braces--
	}
	for _, r := range p.recorders {
		if r.Len() > 0 {
			r.WriteByte(' ')
		}
		r.WriteString(tok.Text)
	}
}

// record starts capturing the text of consumed tokens; the returned
// function stops and returns it.
func (p *Parser) record() func() string {
	sb := &strings.Builder{}
	p.recorders = append(p.recorders, sb)
	return func() string {
		for i, r := range p.recorders {
			if r == sb {
				p.recorders = append(p.recorders[:i], p.recorders[i+1:]...)
				break
			}
		}
		return sb.String()
	}
}

func (p *Parser) loc(tok lexer.Token) cabs.Loc {
	return cabs.Loc{File: tok.File, Line: tok.Line, Column: tok.Column}
}

// Extension keywords: aliases spell a standard keyword, noise words are
// dropped, and noise calls are dropped together with their parenthesized
// argument list.
var aliases = map[string]string{
	"__inline":     "inline",
	"__inline__":   "inline",
	"__restrict":   "restrict",
	"__restrict__": "restrict",
	"__const":      "const",
	"__const__":    "const",
	"__volatile":   "volatile",
	"__volatile__": "volatile",
	"__signed":     "signed",
	"__signed__":   "signed",
}

var noiseWords = map[string]bool{
	"__extension__": true,
	"_Noreturn":     true,
	"_Thread_local": true,
	"__thread":      true,
	"__cdecl":       true,
	"__stdcall":     true,
	"__fastcall":    true,
	"__w64":         true,
	"__ptr32":       true,
	"__ptr64":       true,
	"__unaligned":   true,
}

var noiseCalls = map[string]bool{
	"__attribute__":  true,
	"__attribute":    true,
	"__asm__":        true,
	"__asm":          true,
	"asm":            true,
	"__declspec":     true,
	"_Alignas":       true,
	"_Static_assert": true,
}

// read returns the next significant token with extensions filtered out.
func (p *Parser) read() lexer.Token {
	for {
		tok := p.raw()
		if tok.Kind == lexer.Comment {
			continue
		}
		if tok.Kind != lexer.Ident && tok.Kind != lexer.Keyword {
			return tok
		}
		if alias, ok := aliases[tok.Text]; ok {
			tok.Kind, tok.Text = lexer.Keyword, alias
			return tok
		}
		if noiseWords[tok.Text] {
			continue
		}
		if noiseCalls[tok.Text] {
			next := p.raw()
			if !next.Is("(") {
				p.held = &next
				continue
			}
			for depth := 1; depth > 0; {
				t := p.raw()
				switch {
				case t.Kind == lexer.EOF:
					return t
				case t.Is("("):
					depth++
				case t.Is(")"):
					depth--
				}
			}
			continue
		}
		return tok
	}
}

func (p *Parser) raw() lexer.Token {
	if p.held != nil {
		tok := *p.held
		p.held = nil
		return tok
	}
	if p.err != nil {
		return lexer.Token{Kind: lexer.EOF, File: p.last.File, Line: p.last.Line, Column: p.last.Column}
	}
	tok, err := p.src.Next()
	if err != nil {
		p.err = err
		return lexer.Token{Kind: lexer.EOF, File: p.last.File, Line: p.last.Line, Column: p.last.Column}
	}
	p.last = tok
	return tok
}
