package parser

import (
	"strings"

	"go.perlls.io/perlls/ast"
	"go.perlls.io/perlls/token"
)

func (p *parser) parseStatement() ast.Node {
	if !p.enter() {
		defer p.leave()
		return p.errorNode("statement")
	}
	defer p.leave()

	switch p.peek() {
	case token.Semicolon:
		p.next() // empty statement
		return nil
	case token.KwPackage:
		return p.parsePackage()
	case token.KwUse, token.KwNo, token.KwRequire:
		return p.parseUse()
	case token.KwSub:
		// `sub name ...` is a definition; bare `sub {` in statement
		// position is an expression statement.
		// A dotless v<digits> name (sub v1) lexes as a v-string.
		if k := p.peekAt(1); k.Kind == token.Ident || (k.Kind == token.Version && strings.HasPrefix(k.Text, "v") && !strings.Contains(k.Text, ".")) {
			return p.parseSubroutine()
		}
		return p.parseExpressionStatement()
	case token.KwMy, token.KwOur, token.KwLocal, token.KwState:
		return p.parseVariableDeclaration()
	case token.KwIf, token.KwUnless:
		return p.parseIf()
	case token.KwWhile, token.KwUntil:
		return p.parseWhile()
	case token.KwFor, token.KwForeach:
		return p.parseFor()
	case token.KwReturn:
		return p.parseReturn()
	case token.KwLast, token.KwNext, token.KwRedo:
		return p.parseLoopControl()
	case token.LBrace:
		return p.parseBlock()
	case token.Ident:
		// Statement label: NAME: stmt. '::' lexes as PackageSep, so a
		// lone Colon after an identifier is unambiguous here.
		if p.peekAt(1).Kind == token.Colon {
			return p.parseLabeledStatement()
		}
		return p.parseExpressionStatement()
	case token.EOF:
		return nil
	default:
		return p.parseExpressionStatement()
	}
}

func (p *parser) parsePackage() ast.Node {
	start := p.next().Start // package
	nameTok, ok := p.expect(token.Ident, "package name")
	if !ok {
		p.synchronize()
		return &ast.Error{Msg: "package without a name", Loc: ast.Span{Start: start, End: p.prevEnd()}}
	}
	pkg := &ast.Package{
		Name:    nameTok.Text,
		NameLoc: ast.Span{Start: nameTok.Start, End: nameTok.End},
	}
	// `package Foo 1.23;` version is allowed and ignored.
	if p.peek() == token.Number || p.peek() == token.Version {
		p.next()
	}
	if p.peek() == token.LBrace {
		pkg.Block = p.parseBlock()
	} else {
		p.eatSemi()
	}
	pkg.Loc = ast.Span{Start: start, End: p.prevEnd()}
	return pkg
}

func (p *parser) parseUse() ast.Node {
	lead := p.next()
	use := &ast.Use{
		No:      lead.Kind == token.KwNo,
		Require: lead.Kind == token.KwRequire,
	}

	switch p.peek() {
	case token.Ident:
		mod := p.next()
		use.Module = mod.Text
		use.ModuleLoc = ast.Span{Start: mod.Start, End: mod.End}
	case token.Number, token.Version:
		// `use 5.036;` minimum-version form.
		v := p.next()
		use.Module = v.Text
		use.ModuleLoc = ast.Span{Start: v.Start, End: v.End}
	case token.StringSingle, token.StringDouble:
		// `require "file.pl";`
		s := p.next()
		use.Module = strings.Trim(s.Text, `"'`)
		use.ModuleLoc = ast.Span{Start: s.Start, End: s.End}
	default:
		p.errorf(lead.Start, lead.End, "use without a module name")
	}

	// Import list: everything up to the terminator, as expressions.
	for p.peek() != token.Semicolon && p.peek() != token.RBrace && !p.atEOF() {
		before := p.pos
		arg := p.parseTernary()
		use.Args = append(use.Args, arg)
		if p.peek() == token.Comma || p.peek() == token.FatComma {
			p.next()
		}
		if p.pos == before {
			break
		}
	}
	p.eatSemi()
	use.Loc = ast.Span{Start: lead.Start, End: p.prevEnd()}
	return use
}

func (p *parser) parseSubroutine() ast.Node {
	start := p.next().Start // sub
	sub := &ast.Subroutine{}
	if k := p.cur(); k.Kind == token.Ident || (k.Kind == token.Version && strings.HasPrefix(k.Text, "v") && !strings.Contains(k.Text, ".")) {
		nameTok := p.next()
		sub.Name = nameTok.Text
		sub.NameLoc = ast.Span{Start: nameTok.Start, End: nameTok.End}
	}

	if p.peek() == token.LParen {
		p.parseSubParen(sub)
	}
	sub.Attributes = p.parseAttributes()

	switch p.peek() {
	case token.LBrace:
		sub.Body = p.parseBlock()
	case token.Semicolon:
		p.next() // forward declaration
	default:
		p.errorf(p.cur().Start, p.cur().End, "expected sub body")
		p.synchronize()
	}
	sub.Loc = ast.Span{Start: start, End: p.prevEnd()}
	return sub
}

// parseSubParen reads the parenthesized part after a sub name and decides
// whether it is a signature (named parameters, parsed) or a prototype
// (opaque text, captured as written).
func (p *parser) parseSubParen(sub *ast.Subroutine) {
	open := p.next() // (

	// Peek ahead: a named variable token before the closing paren means
	// signature; pure sigil soup means prototype.
	sig := false
	depth := 1
	for k := 0; depth > 0; k++ {
		t := p.peekAt(k)
		switch t.Kind {
		case token.LParen:
			depth++
		case token.RParen:
			depth--
		case token.EOF:
			depth = 0
		case token.ScalarVar, token.ArrayVar, token.HashVar:
			if len(t.Text) > 1 && isNameStart(t.Text[1]) {
				sig = true
			}
		}
		if sig {
			break
		}
	}

	if !sig {
		protoStart := open.End
		depth = 1
		for depth > 0 && !p.atEOF() {
			switch p.next().Kind {
			case token.LParen:
				depth++
			case token.RParen:
				depth--
			}
		}
		sub.Prototype = "(" + trimProto(protoStart, p.prevEnd(), p) + ")"
		return
	}

	for p.peek() != token.RParen && !p.atEOF() {
		before := p.pos
		switch p.peek() {
		case token.ScalarVar, token.ArrayVar, token.HashVar:
			v := p.next()
			param := &ast.Variable{
				Sigil: v.Text[:1],
				Name:  v.Text[1:],
				Loc:   ast.Span{Start: v.Start, End: v.End},
			}
			decl := &ast.VariableDeclaration{
				Declarator: "my",
				Variables:  []*ast.Variable{param},
				Loc:        param.Loc,
			}
			if p.peek() == token.Operator && p.cur().Text == "=" {
				p.next()
				decl.Init = p.parseTernary()
				decl.Loc = ast.Span{Start: v.Start, End: p.prevEnd()}
			}
			sub.Signature = append(sub.Signature, decl)
		default:
			p.next()
		}
		if p.peek() == token.Comma {
			p.next()
		}
		if p.pos == before {
			break
		}
	}
	p.expect(token.RParen, `")"`)
}

// trimProto recovers the prototype text between two offsets by joining the
// consumed tokens; prototypes are short so this stays cheap.
func trimProto(start, end int, p *parser) string {
	var b strings.Builder
	for _, t := range p.toks {
		if t.Start >= start && t.End <= end && t.Kind != token.RParen {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// parseAttributes consumes a `:attr :attr(args)` chain.
func (p *parser) parseAttributes() []string {
	var attrs []string
	for p.peek() == token.Colon && p.peekAt(1).Kind == token.Ident {
		p.next() // :
		name := p.next().Text
		if p.peek() == token.LParen {
			depth := 0
			for !p.atEOF() {
				t := p.next()
				if t.Kind == token.LParen {
					depth++
				} else if t.Kind == token.RParen {
					depth--
					if depth == 0 {
						break
					}
				}
			}
		}
		attrs = append(attrs, name)
	}
	return attrs
}

func (p *parser) parseVariableDeclaration() ast.Node {
	lead := p.next()
	decl := &ast.VariableDeclaration{Declarator: lead.Text}

	switch p.peek() {
	case token.ScalarVar, token.ArrayVar, token.HashVar, token.GlobVar:
		v := p.next()
		decl.Variables = append(decl.Variables, varFromToken(v))
	case token.LParen:
		p.next()
		for p.peek() != token.RParen && !p.atEOF() {
			if p.peek().IsVariable() {
				decl.Variables = append(decl.Variables, varFromToken(p.next()))
			} else if p.peek() == token.KwMy {
				// `my ($a, my $b)` is weird but seen in the wild; just
				// skip the inner declarator.
				p.next()
				continue
			} else {
				t := p.next()
				p.errorf(t.Start, t.End, "expected variable in declaration list")
			}
			if p.peek() == token.Comma {
				p.next()
			}
		}
		p.expect(token.RParen, `")"`)
	default:
		p.errorf(lead.Start, lead.End, "expected variable after %s", lead.Text)
		node := &ast.Error{Msg: "declaration without variable", Loc: ast.Span{Start: lead.Start, End: p.cur().End}}
		p.synchronize()
		return node
	}

	decl.Attributes = p.parseAttributes()

	if p.peek() == token.Operator && p.cur().Text == "=" {
		p.next()
		decl.Init = p.parseExpression()
	}
	decl.Loc = ast.Span{Start: lead.Start, End: p.prevEnd()}
	node := p.applyStatementModifiers(decl, lead.Start)
	p.eatSemi()
	return node
}

func varFromToken(t token.Token) *ast.Variable {
	sigil := ""
	name := t.Text
	if len(name) > 0 {
		sigil = name[:1]
		name = name[1:]
	}
	return &ast.Variable{Sigil: sigil, Name: name, Loc: ast.Span{Start: t.Start, End: t.End}}
}

func (p *parser) parseIf() ast.Node {
	lead := p.next()
	stmt := &ast.If{Negated: lead.Kind == token.KwUnless}

	stmt.Cond = p.parseCondParen()
	stmt.Then = p.parseBlockOrMissing()

	for p.peek() == token.KwElsif {
		p.next()
		cond := p.parseCondParen()
		body := p.parseBlockOrMissing()
		stmt.Elsifs = append(stmt.Elsifs, ast.ElsifBranch{Cond: cond, Body: body})
	}
	if p.peek() == token.KwElse {
		p.next()
		stmt.Else = p.parseBlockOrMissing()
	}
	stmt.Loc = ast.Span{Start: lead.Start, End: p.prevEnd()}
	return stmt
}

func (p *parser) parseCondParen() ast.Node {
	if _, ok := p.expect(token.LParen, `"("`); !ok {
		return p.missing("condition")
	}
	cond := p.parseExpression()
	p.expect(token.RParen, `")"`)
	return cond
}

func (p *parser) parseBlockOrMissing() *ast.Block {
	if p.peek() == token.LBrace {
		return p.parseBlock()
	}
	t := p.cur()
	p.errorf(t.Start, t.End, "expected block")
	return &ast.Block{Loc: ast.Span{Start: t.Start, End: t.Start}}
}

func (p *parser) parseWhile() ast.Node {
	lead := p.next()
	stmt := &ast.While{Until: lead.Kind == token.KwUntil}
	stmt.Cond = p.parseCondParen()
	stmt.Body = p.parseBlockOrMissing()
	stmt.Loc = ast.Span{Start: lead.Start, End: p.prevEnd()}
	return stmt
}

// parseFor handles both the C-style three-clause form and the foreach
// form, for either keyword.
func (p *parser) parseFor() ast.Node {
	lead := p.next()

	if p.peek() == token.KwMy || p.peek() == token.KwOur || p.peek() == token.KwState || p.peek().IsVariable() {
		return p.parseForeachTail(lead.Start)
	}
	if p.peek() == token.LParen && p.cStyleAhead() {
		return p.parseCStyleFor(lead.Start)
	}
	return p.parseForeachTail(lead.Start)
}

// cStyleAhead looks ahead inside the upcoming paren group for a top-level
// semicolon, which only the C-style form has.
func (p *parser) cStyleAhead() bool {
	depth := 0
	for k := 0; ; k++ {
		t := p.peekAt(k)
		switch t.Kind {
		case token.LParen:
			depth++
		case token.RParen:
			depth--
			if depth == 0 {
				return false
			}
		case token.Semicolon:
			if depth == 1 {
				return true
			}
		case token.EOF:
			return false
		}
	}
}

func (p *parser) parseCStyleFor(start int) ast.Node {
	stmt := &ast.For{}
	p.expect(token.LParen, `"("`)
	if p.peek() != token.Semicolon {
		if p.peek() == token.KwMy || p.peek() == token.KwOur || p.peek() == token.KwState {
			stmt.Init = p.parseForInitDecl()
		} else {
			stmt.Init = p.parseExpression()
		}
	}
	p.expect(token.Semicolon, `";"`)
	if p.peek() != token.Semicolon {
		stmt.Cond = p.parseExpression()
	}
	p.expect(token.Semicolon, `";"`)
	if p.peek() != token.RParen {
		stmt.Update = p.parseExpression()
	}
	p.expect(token.RParen, `")"`)
	stmt.Body = p.parseBlockOrMissing()
	stmt.Loc = ast.Span{Start: start, End: p.prevEnd()}
	return stmt
}

// parseForInitDecl is a variable declaration without the trailing
// semicolon handling, for C-style for initializers.
func (p *parser) parseForInitDecl() ast.Node {
	lead := p.next()
	decl := &ast.VariableDeclaration{Declarator: lead.Text}
	if p.peek().IsVariable() {
		decl.Variables = append(decl.Variables, varFromToken(p.next()))
	}
	if p.peek() == token.Operator && p.cur().Text == "=" {
		p.next()
		decl.Init = p.parseExpression()
	}
	decl.Loc = ast.Span{Start: lead.Start, End: p.prevEnd()}
	return decl
}

func (p *parser) parseForeachTail(start int) ast.Node {
	stmt := &ast.Foreach{}

	switch p.peek() {
	case token.KwMy, token.KwOur, token.KwState:
		lead := p.next()
		decl := &ast.VariableDeclaration{Declarator: lead.Text}
		if p.peek().IsVariable() {
			decl.Variables = append(decl.Variables, varFromToken(p.next()))
		} else {
			p.errorf(lead.Start, lead.End, "expected loop variable")
		}
		decl.Loc = ast.Span{Start: lead.Start, End: p.prevEnd()}
		stmt.Var = decl
	case token.ScalarVar:
		stmt.Var = varFromToken(p.next())
	}

	if _, ok := p.expect(token.LParen, `"("`); ok {
		for p.peek() != token.RParen && !p.atEOF() {
			before := p.pos
			stmt.List = append(stmt.List, p.parseTernary())
			if p.peek() == token.Comma || p.peek() == token.FatComma {
				p.next()
			}
			if p.pos == before {
				break
			}
		}
		p.expect(token.RParen, `")"`)
	}
	stmt.Body = p.parseBlockOrMissing()
	stmt.Loc = ast.Span{Start: start, End: p.prevEnd()}
	return stmt
}

func (p *parser) parseReturn() ast.Node {
	lead := p.next()
	ret := &ast.Return{}
	if p.peek() != token.Semicolon && p.peek() != token.RBrace && !p.atEOF() &&
		!isStatementModifierKw(p.peek()) {
		ret.Value = p.parseExpression()
	}
	end := p.prevEnd()
	if end < lead.End {
		end = lead.End
	}
	ret.Loc = ast.Span{Start: lead.Start, End: end}
	node := p.applyStatementModifiers(ret, lead.Start)
	p.eatSemi()
	return node
}

func (p *parser) parseLoopControl() ast.Node {
	lead := p.next()
	lc := &ast.LoopControl{Keyword: lead.Text}
	if p.peek() == token.Ident && p.peekAt(1).Kind != token.LParen {
		lc.Label = p.next().Text
	}
	lc.Loc = ast.Span{Start: lead.Start, End: p.prevEnd()}
	node := p.applyStatementModifiers(lc, lead.Start)
	p.eatSemi()
	return node
}

func (p *parser) parseBlock() *ast.Block {
	open, _ := p.expect(token.LBrace, `"{"`)
	blk := &ast.Block{}
	for p.peek() != token.RBrace && !p.atEOF() {
		before := p.pos
		stmt := p.parseStatement()
		if stmt != nil {
			blk.Statements = append(blk.Statements, stmt)
		}
		if p.pos == before {
			t := p.next()
			p.errorf(t.Start, t.End, "unexpected %s in block", t.Kind)
			blk.Statements = append(blk.Statements,
				&ast.Error{Msg: "unexpected token", Loc: ast.Span{Start: t.Start, End: t.End}})
		}
	}
	if p.peek() == token.RBrace {
		p.next()
	} else {
		p.errorf(open.Start, open.End, "unclosed block")
	}
	blk.Loc = ast.Span{Start: open.Start, End: p.prevEnd()}
	return blk
}

func (p *parser) parseLabeledStatement() ast.Node {
	nameTok := p.next()
	p.next() // colon
	stmt := p.parseStatement()
	if stmt == nil {
		stmt = &ast.Missing{What: "statement", Loc: ast.Span{Start: p.cur().Start, End: p.cur().Start}}
	}
	return &ast.Label{
		Name:    nameTok.Text,
		NameLoc: ast.Span{Start: nameTok.Start, End: nameTok.End},
		Stmt:    stmt,
		Loc:     ast.Span{Start: nameTok.Start, End: stmt.Span().End},
	}
}

func (p *parser) parseExpressionStatement() ast.Node {
	start := p.cur().Start
	expr := p.parseExpression()
	node := p.applyStatementModifiers(expr, start)
	p.eatSemi()
	return node
}

func isStatementModifierKw(k token.Kind) bool {
	switch k {
	case token.KwIf, token.KwUnless, token.KwWhile, token.KwUntil, token.KwFor, token.KwForeach:
		return true
	}
	return false
}

// applyStatementModifiers handles the postfix forms: EXPR if COND,
// EXPR while COND, EXPR for LIST, and friends.
func (p *parser) applyStatementModifiers(stmt ast.Node, start int) ast.Node {
	for isStatementModifierKw(p.peek()) {
		kw := p.next()
		cond := p.parseExpression()
		body := &ast.Block{Statements: []ast.Node{stmt}, Loc: stmt.Span()}
		loc := ast.Span{Start: start, End: p.prevEnd()}
		switch kw.Kind {
		case token.KwIf:
			stmt = &ast.If{Cond: cond, Then: body, Loc: loc}
		case token.KwUnless:
			stmt = &ast.If{Cond: cond, Negated: true, Then: body, Loc: loc}
		case token.KwWhile:
			stmt = &ast.While{Cond: cond, Body: body, Loc: loc}
		case token.KwUntil:
			stmt = &ast.While{Cond: cond, Until: true, Body: body, Loc: loc}
		case token.KwFor, token.KwForeach:
			stmt = &ast.Foreach{List: []ast.Node{cond}, Body: body, Loc: loc}
		}
	}
	return stmt
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
