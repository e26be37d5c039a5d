package constexpr

import (
	"fmt"

	"github.com/raymyers/ralph-cdecl/pkg/cabs"
	"github.com/raymyers/ralph-cdecl/pkg/ctypes"
	"github.com/raymyers/ralph-cdecl/pkg/lexer"
)

// ParseError reports a malformed constant expression
type ParseError struct {
	Tok lexer.Token
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Tok.Pos(), e.Msg)
}

// binaryPrec holds binding power per operator; higher binds tighter.
var binaryPrec = map[string]struct {
	prec int
	op   cabs.BinaryOp
}{
	"||": {1, cabs.OpOr},
	"&&": {2, cabs.OpAnd},
	"|":  {3, cabs.OpBitOr},
	"^":  {4, cabs.OpBitXor},
	"&":  {5, cabs.OpBitAnd},
	"==": {6, cabs.OpEq},
	"!=": {6, cabs.OpNe},
	"<":  {7, cabs.OpLt},
	"<=": {7, cabs.OpLe},
	">":  {7, cabs.OpGt},
	">=": {7, cabs.OpGe},
	"<<": {8, cabs.OpShl},
	">>": {8, cabs.OpShr},
	"+":  {9, cabs.OpAdd},
	"-":  {9, cabs.OpSub},
	"*":  {10, cabs.OpMul},
	"/":  {10, cabs.OpDiv},
	"%":  {10, cabs.OpMod},
}

// Parser builds an expression tree from tokens. IsType tells which
// identifiers are typedef names, so `(T)x` parses as a cast.
type Parser struct {
	IsType func(name string) bool

	toks []lexer.Token
	pos  int
}

// Parse parses a whole token slice as one conditional expression.
func Parse(toks []lexer.Token) (cabs.Expr, error) {
	return ParseWith(toks, nil)
}

// ParseWith is Parse with a typedef-name predicate for casts and sizeof.
func ParseWith(toks []lexer.Token, isType func(string) bool) (cabs.Expr, error) {
	p := &Parser{IsType: isType}
	for _, t := range toks {
		if t.Kind != lexer.EOF && t.Kind != lexer.Comment {
			p.toks = append(p.toks, t)
		}
	}
	if len(p.toks) == 0 {
		return nil, &ParseError{Msg: "empty expression"}
	}
	e, err := p.conditional()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		return nil, p.errorf("unexpected %q after expression", p.cur().Text)
	}
	return e, nil
}

func (p *Parser) cur() lexer.Token {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	var end lexer.Token
	if len(p.toks) > 0 {
		end = p.toks[len(p.toks)-1]
	}
	end.Kind, end.Text = lexer.EOF, ""
	return end
}

func (p *Parser) peekAt(off int) lexer.Token {
	if p.pos+off < len(p.toks) {
		return p.toks[p.pos+off]
	}
	return lexer.Token{Kind: lexer.EOF}
}

func (p *Parser) errorf(format string, args ...any) *ParseError {
	return &ParseError{Tok: p.cur(), Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(text string) error {
	if !p.cur().Is(text) {
		if p.cur().Kind == lexer.EOF {
			return p.errorf("expected %q, got end of expression", text)
		}
		return p.errorf("expected %q, got %q", text, p.cur().Text)
	}
	p.pos++
	return nil
}

// comma parses expr, expr (only inside parentheses)
func (p *Parser) comma() (cabs.Expr, error) {
	left, err := p.conditional()
	if err != nil {
		return nil, err
	}
	for p.cur().Is(",") {
		p.pos++
		right, err := p.conditional()
		if err != nil {
			return nil, err
		}
		left = cabs.Binary{Op: cabs.OpComma, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) conditional() (cabs.Expr, error) {
	cond, err := p.binary(1)
	if err != nil {
		return nil, err
	}
	if !p.cur().Is("?") {
		return cond, nil
	}
	p.pos++
	then, err := p.comma()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	els, err := p.conditional()
	if err != nil {
		return nil, err
	}
	return cabs.Conditional{Cond: cond, Then: then, Else: els}, nil
}

// binary is precedence climbing over the table above
func (p *Parser) binary(minPrec int) (cabs.Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.cur()
		info, ok := binaryPrec[tok.Text]
		if tok.Kind != lexer.Punct || !ok || info.prec < minPrec {
			return left, nil
		}
		p.pos++
		right, err := p.binary(info.prec + 1)
		if err != nil {
			return nil, err
		}
		left = cabs.Binary{Op: info.op, Left: left, Right: right}
	}
}

func (p *Parser) unary() (cabs.Expr, error) {
	tok := p.cur()
	if tok.Kind == lexer.Punct {
		var op cabs.UnaryOp
		switch tok.Text {
		case "-":
			op = cabs.OpNeg
		case "+":
			op = cabs.OpPlus
		case "!":
			op = cabs.OpNot
		case "~":
			op = cabs.OpBitNot
		case "(":
			if p.startsTypeName(p.peekAt(1)) {
				p.pos++
				tn, err := p.typeName()
				if err != nil {
					return nil, err
				}
				operand, err := p.unary()
				if err != nil {
					return nil, err
				}
				return cabs.Cast{Type: tn, Expr: operand}, nil
			}
			return p.postfix()
		default:
			return p.postfix()
		}
		p.pos++
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return cabs.Unary{Op: op, Expr: operand}, nil
	}
	if tok.Is("sizeof") {
		p.pos++
		if p.cur().Is("(") && p.startsTypeName(p.peekAt(1)) {
			p.pos++
			tn, err := p.typeName()
			if err != nil {
				return nil, err
			}
			return cabs.SizeofType{Type: tn}, nil
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return cabs.SizeofExpr{Expr: operand}, nil
	}
	return p.postfix()
}

func (p *Parser) startsTypeName(tok lexer.Token) bool {
	switch tok.Kind {
	case lexer.Keyword:
		switch tok.Text {
		case "struct", "union", "enum", "const", "volatile":
			return true
		}
		return ctypes.IsPrimitiveWord(tok.Text)
	case lexer.Ident:
		if _, ok := ctypes.WellKnown(tok.Text); ok {
			return true
		}
		return p.IsType != nil && p.IsType(tok.Text)
	}
	return false
}

// typeName parses the inside of a cast or sizeof up to and including ')'.
func (p *Parser) typeName() (cabs.TypeName, error) {
	var tn cabs.TypeName
	for {
		tok := p.cur()
		switch {
		case tok.Is("const") || tok.Is("volatile"):
		case tok.Kind == lexer.Keyword || tok.Kind == lexer.Ident:
			tn.Words = append(tn.Words, tok.Text)
		case tok.Is("*"):
			tn.Pointers++
		case tok.Is(")"):
			p.pos++
			if len(tn.Words) == 0 {
				return tn, p.errorf("missing type name")
			}
			return tn, nil
		default:
			return tn, p.errorf("unexpected %q in type name", tok.Text)
		}
		p.pos++
	}
}

func (p *Parser) postfix() (cabs.Expr, error) {
	e, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.cur().Is("("):
			p.pos++
			var args []cabs.Expr
			for !p.cur().Is(")") {
				arg, err := p.conditional()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if !p.cur().Is(",") {
					break
				}
				p.pos++
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			e = cabs.Call{Func: e, Args: args}
		case p.cur().Is("["):
			p.pos++
			idx, err := p.comma()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			e = cabs.Index{Array: e, Index: idx}
		default:
			return e, nil
		}
	}
}

func (p *Parser) primary() (cabs.Expr, error) {
	tok := p.cur()
	switch tok.Kind {
	case lexer.Number:
		p.pos++
		kind := cabs.ConstInt
		if IsFloatLiteral(tok.Text) {
			kind = cabs.ConstFloat
		}
		return cabs.Constant{Kind: kind, Text: tok.Text}, nil
	case lexer.Char:
		p.pos++
		return cabs.Constant{Kind: cabs.ConstChar, Text: tok.Text}, nil
	case lexer.String:
		p.pos++
		text := tok.Text
		for p.cur().Kind == lexer.String {
			text += " " + p.cur().Text
			p.pos++
		}
		return cabs.Constant{Kind: cabs.ConstString, Text: text}, nil
	case lexer.Ident:
		p.pos++
		return cabs.Variable{Name: tok.Text}, nil
	case lexer.Punct:
		if tok.Text == "(" {
			p.pos++
			inner, err := p.comma()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return cabs.Paren{Expr: inner}, nil
		}
	case lexer.EOF:
		return nil, p.errorf("unexpected end of expression")
	}
	return nil, p.errorf("unexpected %q in expression", tok.Text)
}
