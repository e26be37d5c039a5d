package lexer

import "fmt"

// Kind classifies a token
type Kind int

const (
	EOF Kind = iota
	Ident
	Keyword
	Punct
	Number  // 42, 0x10, 1.0f, 10UL
	Char    // 'c', '\x4E'
	String  // "text"
	Comment // only produced when KeepComments is set
	Other   // bytes that are not part of C, e.g. '@' or a stray quote on a directive line
)

var kindNames = map[Kind]string{
	EOF:     "EOF",
	Ident:   "IDENT",
	Keyword: "KEYWORD",
	Punct:   "PUNCT",
	Number:  "NUMBER",
	Char:    "CHAR",
	String:  "STRING",
	Comment: "COMMENT",
	Other:   "OTHER",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// Token is a lexical token. Tokens are values and never change once produced.
type Token struct {
	Kind   Kind
	Text   string
	File   string
	Line   int
	Column int
	BOL    bool // first token on its logical line
	Space  bool // preceded by whitespace or a comment
}

// Is reports whether the token is the punctuator or keyword text.
func (t Token) Is(text string) bool {
	return (t.Kind == Punct || t.Kind == Keyword) && t.Text == text
}

// IsIdent reports whether the token is the identifier name.
func (t Token) IsIdent(name string) bool {
	return t.Kind == Ident && t.Text == name
}

// Pos formats the token location as file:line:col.
func (t Token) Pos() string {
	if t.File == "" {
		return fmt.Sprintf("%d:%d", t.Line, t.Column)
	}
	return fmt.Sprintf("%s:%d:%d", t.File, t.Line, t.Column)
}

func (t Token) String() string {
	if t.Kind == EOF {
		return "EOF"
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Text)
}

// keywords holds the C99/C11 keywords
var keywords = map[string]bool{
	"auto":           true,
	"break":          true,
	"case":           true,
	"char":           true,
	"const":          true,
	"continue":       true,
	"default":        true,
	"do":             true,
	"double":         true,
	"else":           true,
	"enum":           true,
	"extern":         true,
	"float":          true,
	"for":            true,
	"goto":           true,
	"if":             true,
	"inline":         true,
	"int":            true,
	"long":           true,
	"register":       true,
	"restrict":       true,
	"return":         true,
	"short":          true,
	"signed":         true,
	"sizeof":         true,
	"static":         true,
	"struct":         true,
	"switch":         true,
	"typedef":        true,
	"union":          true,
	"unsigned":       true,
	"void":           true,
	"volatile":       true,
	"while":          true,
	"_Alignas":       true,
	"_Alignof":       true,
	"_Atomic":        true,
	"_Bool":          true,
	"_Complex":       true,
	"_Noreturn":      true,
	"_Static_assert": true,
	"_Thread_local":  true,
}

// LookupIdent returns Keyword for C keywords and Ident otherwise
func LookupIdent(ident string) Kind {
	if keywords[ident] {
		return Keyword
	}
	return Ident
}
