package cpp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raymyers/ralph-cdecl/pkg/constexpr"
	"github.com/raymyers/ralph-cdecl/pkg/lexer"
)

// branch is the position of a conditional group
type branch uint8

const (
	seeking branch = iota // no branch taken yet
	taking                // the current branch is read
	skipping              // a branch was taken, or the whole group is inside a skipped one
)

type group struct {
	at      branch
	sawElse bool
}

// Conditions tracks the #if groups of a session.
//
// Definedness, for #ifdef, #ifndef and defined(), comes from the symbol set
// only. Macros do expand inside #if, and any identifier left afterwards is 1
// when it is a symbol and 0 when it is not.
type Conditions struct {
	symbols map[string]bool
	expand  *Expander
	groups  []group
}

// NewConditions returns an empty group stack. macros expand inside #if.
func NewConditions(macros *MacroTable, symbols ...string) *Conditions {
	c := &Conditions{symbols: map[string]bool{}, expand: NewExpander(macros)}
	for _, s := range symbols {
		c.symbols[s] = true
	}
	return c
}

// Active reports whether tokens at the current position are read.
func (c *Conditions) Active() bool {
	return len(c.groups) == 0 || c.groups[len(c.groups)-1].at == taking
}

// Depth is the number of open groups.
func (c *Conditions) Depth() int { return len(c.groups) }

func (c *Conditions) open(take bool) {
	at := seeking
	if take {
		at = taking
	}
	c.groups = append(c.groups, group{at: at})
}

// If opens a group for #if. When expr cannot be evaluated the group is
// opened untaken, so a later #elif or #else may still be taken.
func (c *Conditions) If(expr []lexer.Token) error {
	if !c.Active() {
		c.groups = append(c.groups, group{at: skipping})
		return nil
	}
	ok, err := c.eval(expr)
	c.open(ok)
	if err != nil {
		return fmt.Errorf("#if: %w", err)
	}
	return nil
}

// Ifdef opens a group for #ifdef, or for #ifndef when negate is set.
func (c *Conditions) Ifdef(name string, negate bool) {
	if !c.Active() {
		c.groups = append(c.groups, group{at: skipping})
		return
	}
	c.open(c.symbols[name] != negate)
}

// Elif moves the innermost group to its next branch.
func (c *Conditions) Elif(expr []lexer.Token) error {
	g, err := c.innermost("#elif")
	if err != nil {
		return err
	}
	if g.sawElse {
		return errors.New("#elif after #else")
	}
	switch g.at {
	case taking:
		g.at = skipping
	case seeking:
		ok, err := c.eval(expr)
		if ok {
			g.at = taking
		}
		if err != nil {
			return fmt.Errorf("#elif: %w", err)
		}
	}
	return nil
}

// Else moves the innermost group to its last branch.
func (c *Conditions) Else() error {
	g, err := c.innermost("#else")
	if err != nil {
		return err
	}
	if g.sawElse {
		return errors.New("duplicate #else")
	}
	g.sawElse = true
	switch g.at {
	case taking:
		g.at = skipping
	case seeking:
		g.at = taking
	}
	return nil
}

// Endif closes the innermost group.
func (c *Conditions) Endif() error {
	if _, err := c.innermost("#endif"); err != nil {
		return err
	}
	c.groups = c.groups[:len(c.groups)-1]
	return nil
}

func (c *Conditions) innermost(directive string) (*group, error) {
	if len(c.groups) == 0 {
		return nil, fmt.Errorf("%s without #if", directive)
	}
	return &c.groups[len(c.groups)-1], nil
}

// closeTo drops the groups opened past depth, which is how many were open
// when the current file was entered, and reports them as unterminated.
func (c *Conditions) closeTo(depth int) error {
	n := len(c.groups) - depth
	if n <= 0 {
		return nil
	}
	c.groups = c.groups[:depth]
	if n == 1 {
		return errors.New("unterminated #if at end of file")
	}
	return fmt.Errorf("%d unterminated #if groups at end of file", n)
}

func (c *Conditions) eval(expr []lexer.Token) (bool, error) {
	toks, err := c.substitute(expr)
	if err != nil {
		return false, err
	}
	v, err := constexpr.Evaluate(toks, nil)
	if err != nil {
		return false, err
	}
	return !v.IsZero(), nil
}

// substitute turns an #if line into a plain constant expression: defined()
// is answered from the symbol set, macros expand, and every identifier
// left becomes 0 or 1. __has_include(...) and the other __has_ queries
// are 0.
func (c *Conditions) substitute(expr []lexer.Token) ([]lexer.Token, error) {
	toks, err := c.replaceDefined(expr)
	if err != nil {
		return nil, err
	}
	if toks, err = c.expand.Expand(toks); err != nil {
		return nil, err
	}
	// an expanded body can use defined too
	if toks, err = c.replaceDefined(toks); err != nil {
		return nil, err
	}
	out := make([]lexer.Token, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		if tok.Kind != lexer.Ident && tok.Kind != lexer.Keyword {
			out = append(out, tok)
			continue
		}
		if strings.HasPrefix(tok.Text, "__has_") && i+1 < len(toks) && toks[i+1].Is("(") {
			i = closingParen(toks, i+1)
			out = append(out, number(tok, false))
			continue
		}
		out = append(out, number(tok, c.symbols[tok.Text]))
	}
	return out, nil
}

func (c *Conditions) replaceDefined(toks []lexer.Token) ([]lexer.Token, error) {
	var out []lexer.Token
	for i := 0; i < len(toks); i++ {
		if !toks[i].IsIdent("defined") {
			out = append(out, toks[i])
			continue
		}
		at := toks[i]
		rest := toks[i+1:]
		paren := len(rest) > 0 && rest[0].Is("(")
		if paren {
			rest = rest[1:]
		}
		if len(rest) == 0 || (rest[0].Kind != lexer.Ident && rest[0].Kind != lexer.Keyword) {
			return nil, errors.New("defined needs a macro name")
		}
		used := 1
		if paren {
			if len(rest) < 2 || !rest[1].Is(")") {
				return nil, errors.New("missing ) after defined(" + rest[0].Text)
			}
			used = 3
		}
		out = append(out, number(at, c.symbols[rest[0].Text]))
		i += used
	}
	return out, nil
}

// closingParen returns the index of the ) matching the ( at open, or the
// last index when there is none.
func closingParen(toks []lexer.Token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch {
		case toks[i].Is("("):
			depth++
		case toks[i].Is(")"):
			if depth--; depth == 0 {
				return i
			}
		}
	}
	return len(toks) - 1
}

func number(at lexer.Token, truth bool) lexer.Token {
	at.Kind, at.Text = lexer.Number, "0"
	if truth {
		at.Text = "1"
	}
	return at
}
