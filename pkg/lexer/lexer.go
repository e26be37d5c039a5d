// Package lexer turns C header text into tokens.
package lexer

import (
	"fmt"
	"iter"
)

// LexError reports a malformed literal or comment. Token boundaries past
// the fault are unknown, so a LexError ends the unit.
type LexError struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *LexError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("line %d, col %d: %s", e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Msg)
}

// Lexer tokenizes C source code
type Lexer struct {
	// KeepComments makes the lexer return Comment tokens instead of
	// folding comments into the Space flag of the next token.
	KeepComments bool

	// Tolerant turns unterminated literals into Other tokens running to the
	// end of the line. The preprocessor sets it while skipping inactive
	// conditional blocks.
	Tolerant bool

	input    string
	filename string
	pos      int
	line     int
	column   int

	bol         bool // next token starts a line
	space       bool // whitespace seen since the last token
	inDirective bool // current line started with '#'
}

// New creates a new Lexer for the given input
func New(input string) *Lexer {
	return NewFile(input, "")
}

// NewFile creates a Lexer that stamps tokens with filename.
func NewFile(input, filename string) *Lexer {
	return &Lexer{input: input, filename: filename, line: 1, column: 1, bol: true}
}

// Tokenize returns a lazy, restartable token sequence over source. Each
// iteration starts a fresh lexer. The sequence ends after EOF or the first
// error.
func Tokenize(source string) iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		l := New(source)
		for {
			tok, err := l.Next()
			if err != nil {
				yield(Token{}, err)
				return
			}
			if !yield(tok, nil) || tok.Kind == EOF {
				return
			}
		}
	}
}

// All returns every token up to and including EOF.
func (l *Lexer) All() ([]Token, error) {
	var toks []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return toks, err
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) peek() byte {
	return l.peekAt(0)
}

func (l *Lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.input) {
		return 0
	}
	return l.input[l.pos+off]
}

func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	if l.input[l.pos] == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
}

func (l *Lexer) errorf(line, col int, format string, args ...any) *LexError {
	return &LexError{File: l.filename, Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

// Next returns the next token from the input
func (l *Lexer) Next() (Token, error) {
	comment, err := l.skipSpace()
	if err != nil {
		return Token{}, err
	}
	if comment != nil {
		return *comment, nil
	}

	tok := Token{File: l.filename, Line: l.line, Column: l.column, BOL: l.bol, Space: l.space}
	l.bol = false
	l.space = false

	if l.pos >= len(l.input) {
		tok.Kind = EOF
		return tok, nil
	}

	ch := l.peek()
	if tok.BOL && ch == '#' {
		l.inDirective = true
	}

	start := l.pos
	switch {
	case ch == '"':
		return l.scanQuoted(tok, start, '"', String)
	case ch == '\'':
		return l.scanQuoted(tok, start, '\'', Char)
	case isDigit(ch) || (ch == '.' && isDigit(l.peekAt(1))):
		l.scanNumber()
		tok.Kind = Number
	case isIdentStart(ch):
		for isIdentContinue(l.peek()) {
			l.advance()
		}
		text := l.input[start:l.pos]
		// Encoding prefixes: L"x", u8"x", u'x', U'x'
		if q := l.peek(); (q == '"' || q == '\'') && isEncodingPrefix(text) {
			kind := String
			if q == '\'' {
				kind = Char
			}
			return l.scanQuoted(tok, start, q, kind)
		}
		tok.Kind = LookupIdent(text)
	default:
		if n := punctLen(l.input[l.pos:]); n > 0 {
			for i := 0; i < n; i++ {
				l.advance()
			}
			tok.Kind = Punct
		} else {
			l.advance()
			tok.Kind = Other
		}
	}
	tok.Text = l.input[start:l.pos]
	return tok, nil
}

// skipSpace consumes whitespace, line continuations and comments. When
// KeepComments is set the first comment found is returned as a token.
func (l *Lexer) skipSpace() (*Token, error) {
	for l.pos < len(l.input) {
		ch := l.peek()
		switch {
		case ch == '\\' && l.peekAt(1) == '\n':
			l.advance()
			l.advance()
			l.space = true
		case ch == '\\' && l.peekAt(1) == '\r' && l.peekAt(2) == '\n':
			l.advance()
			l.advance()
			l.advance()
			l.space = true
		case ch == '\n':
			l.advance()
			l.bol = true
			l.space = false
			l.inDirective = false
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\f' || ch == '\v':
			l.advance()
			l.space = true
		case ch == '/' && l.peekAt(1) == '/':
			tok := Token{Kind: Comment, File: l.filename, Line: l.line, Column: l.column, BOL: l.bol, Space: l.space}
			start := l.pos
			for l.pos < len(l.input) && l.peek() != '\n' {
				l.advance()
			}
			if l.KeepComments {
				tok.Text = l.input[start:l.pos]
				l.bol = false
				return &tok, nil
			}
			l.space = true
		case ch == '/' && l.peekAt(1) == '*':
			tok := Token{Kind: Comment, File: l.filename, Line: l.line, Column: l.column, BOL: l.bol, Space: l.space}
			start := l.pos
			l.advance()
			l.advance()
			closed := false
			for l.pos < len(l.input) {
				if l.peek() == '*' && l.peekAt(1) == '/' {
					l.advance()
					l.advance()
					closed = true
					break
				}
				l.advance()
			}
			if !closed {
				return nil, l.errorf(tok.Line, tok.Column, "unterminated block comment")
			}
			if l.KeepComments {
				tok.Text = l.input[start:l.pos]
				l.bol = false
				return &tok, nil
			}
			l.space = true
		default:
			return nil, nil
		}
	}
	return nil, nil
}

// scanQuoted scans a string or character literal starting at the opening
// quote (or encoding prefix). Escapes are kept verbatim.
func (l *Lexer) scanQuoted(tok Token, start int, quote byte, kind Kind) (Token, error) {
	for l.peek() != quote {
		l.advance() // encoding prefix
	}
	l.advance() // opening quote
	for {
		ch := l.peek()
		if l.pos >= len(l.input) || ch == '\n' {
			if l.inDirective || l.Tolerant {
				// #error don't panic: keep the rest of the line as one token
				for l.pos < len(l.input) && l.peek() != '\n' {
					l.advance()
				}
				tok.Kind = Other
				tok.Text = l.input[start:l.pos]
				return tok, nil
			}
			what := "string literal"
			if kind == Char {
				what = "character literal"
			}
			return Token{}, l.errorf(tok.Line, tok.Column, "unterminated %s", what)
		}
		if ch == '\\' {
			l.advance()
			if l.peek() == '\r' && l.peekAt(1) == '\n' {
				l.advance()
			}
			l.advance()
			continue
		}
		l.advance()
		if ch == quote {
			break
		}
	}
	tok.Kind = kind
	tok.Text = l.input[start:l.pos]
	return tok, nil
}

// scanNumber scans a preprocessing number, which is broader than a C
// number: 1.0e+5f, 0x1p-3, 10ULL and 1abc all form one token.
func (l *Lexer) scanNumber() {
	for l.pos < len(l.input) {
		c := l.peek()
		if (c == 'e' || c == 'E' || c == 'p' || c == 'P') && (l.peekAt(1) == '+' || l.peekAt(1) == '-') {
			l.advance()
			l.advance()
			continue
		}
		if isIdentContinue(c) || c == '.' {
			l.advance()
			continue
		}
		break
	}
}

var punct3 = []string{"...", "<<=", ">>="}

var punct2 = map[string]bool{
	"->": true, "++": true, "--": true, "<<": true, ">>": true, "<=": true,
	">=": true, "==": true, "!=": true, "&&": true, "||": true, "*=": true,
	"/=": true, "%=": true, "+=": true, "-=": true, "&=": true, "^=": true,
	"|=": true, "##": true,
}

const punct1 = "[](){}.&*+-~!/%<>^|?:;=,#"

// punctLen returns the length of the punctuator at the start of s, or 0.
func punctLen(s string) int {
	for _, p := range punct3 {
		if len(s) >= 3 && s[:3] == p {
			return 3
		}
	}
	if len(s) >= 2 && punct2[s[:2]] {
		return 2
	}
	for i := 0; i < len(punct1); i++ {
		if len(s) > 0 && s[0] == punct1[i] {
			return 1
		}
	}
	return 0
}

func isEncodingPrefix(s string) bool {
	return s == "L" || s == "u" || s == "U" || s == "u8"
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '$'
}

func isIdentContinue(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

// RestOfLine returns the remaining tokens of the current logical line. The
// first token of the next line is left unread, so options changed after
// the call (Tolerant, for a skipped block) apply to it.
func (l *Lexer) RestOfLine() ([]Token, error) {
	var toks []Token
	for {
		saved := *l
		tok, err := l.Next()
		if err != nil {
			if saved.lineHasMore() {
				return toks, err
			}
			// the fault is on a later line
			*l = saved
			return toks, nil
		}
		if tok.Kind == EOF || tok.BOL {
			*l = saved
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

// lineHasMore reports whether anything but blanks is left before the next
// newline. Comments count as content.
func (l *Lexer) lineHasMore() bool {
	for i := l.pos; i < len(l.input); i++ {
		switch l.input[i] {
		case ' ', '\t', '\r', '\f', '\v':
		case '\n':
			return false
		case '\\':
			if i+1 < len(l.input) && l.input[i+1] == '\n' {
				i++
				continue
			}
			return true
		default:
			return true
		}
	}
	return false
}
