package parser

import (
	"slices"

	"github.com/raymyers/ralph-cdecl/pkg/cabs"
	"github.com/raymyers/ralph-cdecl/pkg/constexpr"
	"github.com/raymyers/ralph-cdecl/pkg/ctypes"
	"github.com/raymyers/ralph-cdecl/pkg/lexer"
)

var storageClasses = map[string]cabs.Storage{
	"typedef":  cabs.StorageTypedef,
	"extern":   cabs.StorageExtern,
	"static":   cabs.StorageStatic,
	"auto":     cabs.StorageAuto,
	"register": cabs.StorageRegister,
}

var qualifierWords = map[string]cabs.Qualifiers{
	"const":    cabs.QualConst,
	"volatile": cabs.QualVolatile,
	"restrict": cabs.QualRestrict,
	"_Atomic":  cabs.QualAtomic,
}

func qualifier(tok lexer.Token) (cabs.Qualifiers, bool) {
	if tok.Kind != lexer.Keyword {
		return 0, false
	}
	q, ok := qualifierWords[tok.Text]
	return q, ok
}

// isTypeName reports whether an identifier names a type at this point
func (p *Parser) isTypeName(name string) bool {
	if p.typedefs[name] {
		return true
	}
	_, ok := ctypes.WellKnown(name)
	return ok
}

// declaration parses one statement: specifiers followed by a declarator
// list, or a function definition whose body is skipped.
func (p *Parser) declaration() (*cabs.Declaration, error) {
	start := p.cur()
	spec, err := p.declSpec()
	if err != nil {
		return nil, err
	}
	decl := &cabs.Declaration{Spec: spec, Loc: p.loc(start)}
	if p.cur().Is(";") {
		p.advance()
		return decl, nil
	}

	for {
		d, err := p.declarator(false)
		if err != nil {
			return nil, err
		}
		if spec.Storage == cabs.StorageTypedef {
			p.typedefs[d.Name] = true
		}
		decl.Declarators = append(decl.Declarators, d)

		switch {
		case p.cur().Is("{") && len(decl.Declarators) == 1 && d.IsFunction():
			if err := p.skipBody(); err != nil {
				return nil, err
			}
			decl.HasBody = true
			return decl, nil
		case p.cur().Is("="):
			if spec.Storage == cabs.StorageTypedef {
				return nil, p.errorf("typedef %s is initialized", d.Name)
			}
			p.advance()
			if err := p.skipInitializer(); err != nil {
				return nil, err
			}
			d.HasInit = true
		}

		if p.cur().Is(",") {
			p.advance()
			continue
		}
		if err := p.expect(";"); err != nil {
			return nil, err
		}
		return decl, nil
	}
}

// declSpec parses storage class, qualifiers and the base type. An
// identifier in type position is taken as a type name even when no
// typedef for it was seen.
func (p *Parser) declSpec() (*cabs.DeclSpec, error) {
	spec := &cabs.DeclSpec{Loc: p.loc(p.cur())}
	var (
		words   []string
		wordTok lexer.Token
	)
	twoTypes := func() error {
		return p.errorf("two or more data types in declaration specifiers")
	}

loop:
	for {
		tok := p.cur()
		switch tok.Kind {
		case lexer.Keyword:
			if s, ok := storageClasses[tok.Text]; ok {
				if spec.Storage != cabs.StorageNone && spec.Storage != s {
					return nil, p.errorf("multiple storage classes in declaration specifiers")
				}
				spec.Storage = s
				p.advance()
				continue
			}
			if q, ok := qualifier(tok); ok {
				spec.Quals |= q
				p.advance()
				continue
			}
			switch tok.Text {
			case "inline":
				spec.Inline = true
				p.advance()
				continue
			case "struct", "union":
				if spec.Type != nil || len(words) > 0 {
					return nil, twoTypes()
				}
				rec, err := p.recordSpec()
				if err != nil {
					return nil, err
				}
				spec.Type = rec
				continue
			case "enum":
				if spec.Type != nil || len(words) > 0 {
					return nil, twoTypes()
				}
				en, err := p.enumSpec()
				if err != nil {
					return nil, err
				}
				spec.Type = en
				continue
			}
			if !ctypes.IsPrimitiveWord(tok.Text) {
				break loop
			}
			if spec.Type != nil {
				return nil, twoTypes()
			}
			if len(words) == 0 {
				wordTok = tok
			}
			words = append(words, tok.Text)
			p.advance()
		case lexer.Ident:
			if spec.Type != nil || len(words) > 0 {
				break loop
			}
			spec.Type = cabs.NamedType{Name: tok.Text}
			p.advance()
		default:
			break loop
		}
	}

	if len(words) > 0 {
		name, err := ctypes.CanonicalPrimitive(words)
		if err != nil {
			return nil, &SyntaxError{Tok: wordTok, Msg: "invalid type", Err: err}
		}
		spec.Type = cabs.Primitive{Name: name}
	}
	if spec.Type == nil {
		if spec.Storage == cabs.StorageNone && spec.Quals == 0 && !spec.Inline {
			return nil, p.unexpected("declaration")
		}
		spec.Type = cabs.Primitive{Name: "int"}
	}
	return spec, nil
}

// recordSpec parses struct or union with an optional tag and body
func (p *Parser) recordSpec() (*cabs.RecordSpec, error) {
	kw := p.cur()
	rec := &cabs.RecordSpec{Kind: cabs.Struct, Loc: p.loc(kw)}
	if kw.Text == "union" {
		rec.Kind = cabs.Union
	}
	p.advance()
	if p.cur().Kind == lexer.Ident {
		rec.Tag = p.cur().Text
		p.advance()
	}
	if !p.cur().Is("{") {
		if rec.Tag == "" {
			return nil, p.unexpected("tag name or \"{\"")
		}
		return rec, nil
	}
	p.advance()

	stop := p.record()
	fields, err := p.fields()
	rec.Body = stop()
	if err != nil {
		return nil, err
	}
	p.advance() // }
	rec.Fields = fields
	rec.HasBody = true
	return rec, nil
}

// fields parses member declarations up to, not including, the closing brace
func (p *Parser) fields() ([]*cabs.Field, error) {
	var fields []*cabs.Field
	for !p.cur().Is("}") {
		if p.cur().Kind == lexer.EOF {
			return nil, p.unexpected("\"}\"")
		}
		if p.cur().Is(";") {
			p.advance()
			continue
		}
		spec, err := p.declSpec()
		if err != nil {
			return nil, err
		}
		if spec.Storage != cabs.StorageNone {
			return nil, &SyntaxError{Tok: p.cur(), Msg: "storage class specified for a member"}
		}

		if p.cur().Is(";") {
			p.advance()
			switch t := spec.Type.(type) {
			case *cabs.RecordSpec:
				if t.HasBody {
					// unnamed member; an untagged body's fields are reached through the parent
					fields = append(fields, &cabs.Field{Spec: spec, Decl: &cabs.Declarator{Loc: t.Loc}})
				} else {
					fields = append(fields, &cabs.Field{Spec: spec})
				}
			case *cabs.EnumSpec:
				fields = append(fields, &cabs.Field{Spec: spec})
			}
			continue
		}

		for {
			d, err := p.declarator(true)
			if err != nil {
				return nil, err
			}
			f := &cabs.Field{Spec: spec, Decl: d}
			if p.cur().Is(":") {
				p.advance()
				if f.BitWidth, err = p.constExpr(",", ";"); err != nil {
					return nil, err
				}
			} else if d.Name == "" {
				return nil, p.unexpected("member name")
			}
			fields = append(fields, f)
			if p.cur().Is(",") {
				p.advance()
				continue
			}
			if err := p.expect(";"); err != nil {
				return nil, err
			}
			break
		}
	}
	return fields, nil
}

// enumSpec parses enum with an optional tag and enumerator list
func (p *Parser) enumSpec() (*cabs.EnumSpec, error) {
	kw := p.cur()
	en := &cabs.EnumSpec{Loc: p.loc(kw)}
	p.advance()
	if p.cur().Kind == lexer.Ident {
		en.Tag = p.cur().Text
		p.advance()
	}
	if p.cur().Is(":") {
		// enum E : unsigned char { ... }
		p.advance()
		if _, err := p.declSpec(); err != nil {
			return nil, err
		}
	}
	if !p.cur().Is("{") {
		if en.Tag == "" {
			return nil, p.unexpected("tag name or \"{\"")
		}
		return en, nil
	}
	p.advance()

	stop := p.record()
	for !p.cur().Is("}") {
		tok := p.cur()
		if tok.Kind != lexer.Ident {
			stop()
			return nil, p.unexpected("enumerator name")
		}
		item := &cabs.Enumerator{Name: tok.Text, Loc: p.loc(tok)}
		p.advance()
		if p.cur().Is("=") {
			p.advance()
			v, err := p.constExpr(",", "}")
			if err != nil {
				stop()
				return nil, err
			}
			item.Value = v
		}
		en.Items = append(en.Items, item)
		if p.cur().Is(",") {
			p.advance()
			continue
		}
		if !p.cur().Is("}") {
			stop()
			return nil, p.unexpected("\",\" or \"}\"")
		}
	}
	en.Body = stop()
	p.advance() // }
	en.HasBody = true
	return en, nil
}

// declarator parses pointers, the name or a parenthesized inner
// declarator, then array and parameter suffixes. Modifiers are stored from
// the name outward: the inner declarator's first, then the suffixes left
// to right, then the leading pointers right to left. With abstract set the
// name may be omitted.
func (p *Parser) declarator(abstract bool) (*cabs.Declarator, error) {
	var ptrs []cabs.Mod
	for p.cur().Is("*") || p.cur().Is("^") {
		p.advance()
		ptr := &cabs.PointerMod{}
		for {
			q, ok := qualifier(p.cur())
			if !ok {
				break
			}
			ptr.Quals |= q
			p.advance()
		}
		ptrs = append(ptrs, ptr)
	}

	d := &cabs.Declarator{Loc: p.loc(p.cur())}
	var inner []cabs.Mod
	switch tok := p.cur(); {
	case tok.Kind == lexer.Ident:
		d.Name = tok.Text
		p.advance()
	case tok.Is("(") && p.nestedDeclarator():
		p.advance()
		sub, err := p.declarator(abstract)
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		d.Name, d.Loc, inner = sub.Name, sub.Loc, sub.Mods
	case !abstract:
		return nil, p.unexpected("identifier")
	}

	suffixes, err := p.suffixes()
	if err != nil {
		return nil, err
	}
	d.Mods = append(inner, suffixes...)
	for i := len(ptrs) - 1; i >= 0; i-- {
		d.Mods = append(d.Mods, ptrs[i])
	}
	return d, nil
}

// nestedDeclarator tells `(*name)` from a parameter list when the current
// token is '('.
func (p *Parser) nestedDeclarator() bool {
	next := p.peek(1)
	switch {
	case next.Is("*"), next.Is("^"), next.Is("("), next.Is("["):
		return true
	case next.Kind == lexer.Ident:
		return !p.isTypeName(next.Text)
	}
	return false
}

func (p *Parser) suffixes() ([]cabs.Mod, error) {
	var mods []cabs.Mod
	for {
		switch {
		case p.cur().Is("["):
			p.advance()
			for {
				if _, ok := qualifier(p.cur()); !ok && !p.cur().Is("static") {
					break
				}
				p.advance()
			}
			arr := &cabs.ArrayMod{}
			switch {
			case p.cur().Is("]"):
			case p.cur().Is("*") && p.peek(1).Is("]"):
				p.advance() // [*]
			default:
				size, err := p.constExpr("]")
				if err != nil {
					return nil, err
				}
				arr.Size = size
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			mods = append(mods, arr)
		case p.cur().Is("("):
			p.advance()
			fn, err := p.params()
			if err != nil {
				return nil, err
			}
			mods = append(mods, fn)
		default:
			return mods, nil
		}
	}
}

// params parses a parameter list after the opening parenthesis
func (p *Parser) params() (*cabs.FuncMod, error) {
	fn := &cabs.FuncMod{}
	if p.cur().Is(")") {
		p.advance()
		fn.Unspecified = true
		return fn, nil
	}
	if p.cur().Is("void") && p.peek(1).Is(")") {
		p.advance()
		p.advance()
		return fn, nil
	}
	for {
		if p.cur().Is("...") {
			p.advance()
			if !p.cur().Is(")") {
				return nil, p.errorf("\"...\" must be the last parameter")
			}
			p.advance()
			fn.Variadic = true
			return fn, nil
		}
		start := p.cur()
		spec, err := p.declSpec()
		if err != nil {
			return nil, err
		}
		d, err := p.declarator(true)
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, &cabs.Param{Spec: spec, Decl: d, Loc: p.loc(start)})
		if p.cur().Is(",") {
			p.advance()
			continue
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return fn, nil
	}
}

// constExpr collects tokens up to a terminator outside brackets and
// parses them as a constant expression. The terminator is not consumed.
func (p *Parser) constExpr(terminators ...string) (cabs.Expr, error) {
	start := p.cur()
	var toks []lexer.Token
	depth := 0
	for {
		tok := p.cur()
		if tok.Kind == lexer.EOF {
			return nil, p.unexpected("end of constant expression")
		}
		if depth == 0 && slices.ContainsFunc(terminators, tok.Is) {
			break
		}
		switch {
		case tok.Is("("), tok.Is("["), tok.Is("{"):
			depth++
		case tok.Is(")"), tok.Is("]"), tok.Is("}"):
			if depth == 0 {
				return nil, p.errorf("unbalanced %q in constant expression", tok.Text)
			}
			depth--
		}
		toks = append(toks, tok)
		p.advance()
	}
	if len(toks) == 0 {
		return nil, p.unexpected("expression")
	}
	e, err := constexpr.ParseWith(toks, p.isTypeName)
	if err != nil {
		return nil, &SyntaxError{Tok: start, Msg: "invalid constant expression", Err: err}
	}
	return e, nil
}

// skipBody consumes a function body with balanced braces
func (p *Parser) skipBody() error {
	open := p.cur()
	outer := p.braces
	p.advance()
	for p.braces > outer {
		if p.cur().Kind == lexer.EOF {
			return &SyntaxError{Tok: open, Msg: "unterminated function body"}
		}
		p.advance()
	}
	return nil
}

// skipInitializer consumes `= ...` up to the next ',' or ';' outside
// brackets.
func (p *Parser) skipInitializer() error {
	depth := 0
	for {
		tok := p.cur()
		switch {
		case tok.Kind == lexer.EOF:
			return p.unexpected("\";\"")
		case depth == 0 && (tok.Is(",") || tok.Is(";")):
			return nil
		case tok.Is("("), tok.Is("["), tok.Is("{"):
			depth++
		case tok.Is(")"), tok.Is("]"), tok.Is("}"):
			if depth == 0 {
				return nil
			}
			depth--
		}
		p.advance()
	}
}
