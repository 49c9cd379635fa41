package parser

import (
	"go.perlls.io/perlls/ast"
	"go.perlls.io/perlls/token"
)

// The expression ladder, lowest precedence first. Each level parses the
// next-tighter level for its operands.

func (p *parser) parseExpression() ast.Node {
	if !p.enter() {
		defer p.leave()
		return p.errorNode("expression")
	}
	defer p.leave()
	return p.parseCommaList()
}

// parseCommaList builds a List node when top-level commas are present.
func (p *parser) parseCommaList() ast.Node {
	first := p.parseLowWordOps()
	if p.peek() != token.Comma && p.peek() != token.FatComma {
		return first
	}
	list := &ast.List{Elements: []ast.Node{first}}
	for p.peek() == token.Comma || p.peek() == token.FatComma {
		p.next()
		if !p.startsTerm(p.peek()) && !p.startsUnary() {
			break // trailing comma
		}
		list.Elements = append(list.Elements, p.parseLowWordOps())
	}
	list.Loc = ast.Span{Start: first.Span().Start, End: p.prevEnd()}
	return list
}

// parseLowWordOps handles the low-precedence word operators: or, xor, and,
// and prefix not.
func (p *parser) parseLowWordOps() ast.Node {
	if p.peek() == token.Operator && p.cur().Text == "not" {
		op := p.next()
		operand := p.parseLowWordOps()
		return &ast.Unary{Op: "not", Operand: operand, Loc: ast.Span{Start: op.Start, End: operand.Span().End}}
	}
	left := p.parseLowAnd()
	for p.peek() == token.Operator && (p.cur().Text == "or" || p.cur().Text == "xor") {
		op := p.next()
		right := p.parseLowAnd()
		left = &ast.Binary{Op: op.Text, Left: left, Right: right,
			Loc: ast.Span{Start: left.Span().Start, End: right.Span().End}}
	}
	return left
}

func (p *parser) parseLowAnd() ast.Node {
	left := p.parseTernary()
	for p.peek() == token.Operator && p.cur().Text == "and" {
		op := p.next()
		right := p.parseTernary()
		left = &ast.Binary{Op: op.Text, Left: left, Right: right,
			Loc: ast.Span{Start: left.Span().Start, End: right.Span().End}}
	}
	return left
}

func (p *parser) parseTernary() ast.Node {
	cond := p.parseAssignment()
	if p.peek() != token.Question {
		return cond
	}
	p.next()
	then := p.parseAssignment()
	var els ast.Node
	if p.peek() == token.Colon {
		p.next()
		els = p.parseAssignment()
	} else {
		els = p.missing(`":" branch`)
	}
	return &ast.Ternary{Cond: cond, Then: then, Else: els,
		Loc: ast.Span{Start: cond.Span().Start, End: els.Span().End}}
}

func isAssignOp(text string) bool {
	switch text {
	case "=", "+=", "-=", "*=", "/=", ".=", "%=", "x=", "**=",
		"||=", "&&=", "//=", "|=", "&=", "^=", "<<=", ">>=":
		return true
	}
	return false
}

func (p *parser) parseAssignment() ast.Node {
	lhs := p.parseLogicalOr()
	if p.peek() == token.Operator && isAssignOp(p.cur().Text) {
		op := p.next()
		rhs := p.parseAssignment() // right-associative
		return &ast.Assignment{Op: op.Text, LHS: lhs, RHS: rhs,
			Loc: ast.Span{Start: lhs.Span().Start, End: rhs.Span().End}}
	}
	return lhs
}

// binaryLevel builds the generic left-associative level.
func (p *parser) binaryLevel(ops map[string]bool, operand func() ast.Node) ast.Node {
	left := operand()
	for p.peek() == token.Operator && ops[p.cur().Text] {
		op := p.next()
		right := operand()
		left = &ast.Binary{Op: op.Text, Left: left, Right: right,
			Loc: ast.Span{Start: left.Span().Start, End: right.Span().End}}
	}
	return left
}

var (
	opsLogicalOr      = map[string]bool{"||": true, "//": true}
	opsLogicalAnd     = map[string]bool{"&&": true}
	opsBitOr          = map[string]bool{"|": true}
	opsBitXor         = map[string]bool{"^": true}
	opsBitAnd         = map[string]bool{"&": true}
	opsEquality       = map[string]bool{"==": true, "!=": true, "eq": true, "ne": true, "<=>": true, "cmp": true}
	opsRelational     = map[string]bool{"<": true, ">": true, "<=": true, ">=": true, "lt": true, "gt": true, "le": true, "ge": true}
	opsRange          = map[string]bool{"..": true, "...": true}
	opsShift          = map[string]bool{"<<": true, ">>": true}
	opsAdditive       = map[string]bool{"+": true, "-": true, ".": true}
	opsMultiplicative = map[string]bool{"*": true, "/": true, "%": true, "x": true}
	opsRegexBind      = map[string]bool{"=~": true, "!~": true}
)

func (p *parser) parseLogicalOr() ast.Node {
	return p.binaryLevel(opsLogicalOr, p.parseLogicalAnd)
}
func (p *parser) parseLogicalAnd() ast.Node {
	return p.binaryLevel(opsLogicalAnd, p.parseBitOr)
}
func (p *parser) parseBitOr() ast.Node  { return p.binaryLevel(opsBitOr, p.parseBitXor) }
func (p *parser) parseBitXor() ast.Node { return p.binaryLevel(opsBitXor, p.parseBitAnd) }
func (p *parser) parseBitAnd() ast.Node { return p.binaryLevel(opsBitAnd, p.parseEquality) }
func (p *parser) parseEquality() ast.Node {
	return p.binaryLevel(opsEquality, p.parseRelational)
}
func (p *parser) parseRelational() ast.Node {
	return p.binaryLevel(opsRelational, p.parseRange)
}
func (p *parser) parseRange() ast.Node { return p.binaryLevel(opsRange, p.parseShift) }
func (p *parser) parseShift() ast.Node { return p.binaryLevel(opsShift, p.parseAdditive) }
func (p *parser) parseAdditive() ast.Node {
	return p.binaryLevel(opsAdditive, p.parseMultiplicative)
}
func (p *parser) parseMultiplicative() ast.Node {
	return p.binaryLevel(opsMultiplicative, p.parseRegexBind)
}
func (p *parser) parseRegexBind() ast.Node {
	return p.binaryLevel(opsRegexBind, p.parseUnary)
}

func (p *parser) startsUnary() bool {
	if p.peek() != token.Operator {
		return false
	}
	switch p.cur().Text {
	case "!", "~", "\\", "-", "+", "++", "--", "not":
		return true
	}
	return false
}

func (p *parser) parseUnary() ast.Node {
	if !p.enter() {
		defer p.leave()
		return p.errorNode("expression")
	}
	defer p.leave()

	if p.peek() == token.Operator {
		switch p.cur().Text {
		case "!", "~", "\\", "-", "+":
			op := p.next()
			operand := p.parseUnary()
			return &ast.Unary{Op: op.Text, Operand: operand,
				Loc: ast.Span{Start: op.Start, End: operand.Span().End}}
		case "++", "--":
			op := p.next()
			operand := p.parseUnary()
			return &ast.Unary{Op: op.Text, Operand: operand,
				Loc: ast.Span{Start: op.Start, End: operand.Span().End}}
		}
	}
	return p.parseExponent()
}

func (p *parser) parseExponent() ast.Node {
	left := p.parsePostfix()
	if p.peek() == token.Operator && p.cur().Text == "**" {
		p.next()
		right := p.parseUnary() // right-associative, allows 2**-1
		return &ast.Binary{Op: "**", Left: left, Right: right,
			Loc: ast.Span{Start: left.Span().Start, End: right.Span().End}}
	}
	return left
}

func (p *parser) parsePostfix() ast.Node {
	expr := p.parsePrimary()

	for {
		switch {
		case p.peek() == token.Arrow:
			p.next()
			expr = p.parseArrowTail(expr)

		case p.peek() == token.LBracket && subscriptable(expr):
			p.next()
			idx := p.parseExpression()
			p.expect(token.RBracket, `"]"`)
			expr = &ast.Index{Target: expr, Index: idx,
				Loc: ast.Span{Start: expr.Span().Start, End: p.prevEnd()}}

		case p.peek() == token.LBrace && subscriptable(expr):
			p.next()
			idx := p.parseHashKey()
			p.expect(token.RBrace, `"}"`)
			expr = &ast.Index{Target: expr, Index: idx, Brace: true,
				Loc: ast.Span{Start: expr.Span().Start, End: p.prevEnd()}}

		case p.peek() == token.Operator && (p.cur().Text == "++" || p.cur().Text == "--"):
			op := p.next()
			expr = &ast.Unary{Op: op.Text, Operand: expr, Postfix: true,
				Loc: ast.Span{Start: expr.Span().Start, End: op.End}}

		default:
			return expr
		}
	}
}

// parseArrowTail handles everything an -> can lead to: method calls,
// subscript dereference, and coderef invocation.
func (p *parser) parseArrowTail(obj ast.Node) ast.Node {
	switch p.peek() {
	case token.Ident:
		nameTok := p.next()
		mc := &ast.MethodCall{
			Object:    obj,
			Method:    nameTok.Text,
			MethodLoc: ast.Span{Start: nameTok.Start, End: nameTok.End},
		}
		if p.peek() == token.LParen {
			mc.Args = p.parseParenArgs()
		}
		mc.Loc = ast.Span{Start: obj.Span().Start, End: p.prevEnd()}
		return mc

	case token.ScalarVar:
		// dynamic method name: $obj->$method(...)
		nameTok := p.next()
		mc := &ast.MethodCall{
			Object:    obj,
			Method:    nameTok.Text,
			MethodLoc: ast.Span{Start: nameTok.Start, End: nameTok.End},
		}
		if p.peek() == token.LParen {
			mc.Args = p.parseParenArgs()
		}
		mc.Loc = ast.Span{Start: obj.Span().Start, End: p.prevEnd()}
		return mc

	case token.LBracket:
		p.next()
		idx := p.parseExpression()
		p.expect(token.RBracket, `"]"`)
		return &ast.Index{Target: obj, Index: idx, Arrow: true,
			Loc: ast.Span{Start: obj.Span().Start, End: p.prevEnd()}}

	case token.LBrace:
		p.next()
		idx := p.parseHashKey()
		p.expect(token.RBrace, `"}"`)
		return &ast.Index{Target: obj, Index: idx, Brace: true, Arrow: true,
			Loc: ast.Span{Start: obj.Span().Start, End: p.prevEnd()}}

	case token.LParen:
		// coderef call: $code->(args)
		mc := &ast.MethodCall{Object: obj}
		mc.Args = p.parseParenArgs()
		mc.Loc = ast.Span{Start: obj.Span().Start, End: p.prevEnd()}
		return mc

	default:
		t := p.cur()
		p.errorf(t.Start, t.End, "expected method name after ->")
		return &ast.Error{Msg: "dangling arrow", Loc: ast.Span{Start: obj.Span().Start, End: t.End}}
	}
}

// parseHashKey allows bareword keys: $h{key} reads key as a string-ish
// identifier rather than a function call.
func (p *parser) parseHashKey() ast.Node {
	if p.peek() == token.Ident && p.peekAt(1).Kind == token.RBrace {
		t := p.next()
		return &ast.Identifier{Name: t.Text, Loc: ast.Span{Start: t.Start, End: t.End}}
	}
	return p.parseExpression()
}

func subscriptable(n ast.Node) bool {
	switch n.(type) {
	case *ast.Variable, *ast.Index:
		return true
	}
	return false
}

func (p *parser) parseParenArgs() []ast.Node {
	p.expect(token.LParen, `"("`)
	var args []ast.Node
	for p.peek() != token.RParen && !p.atEOF() {
		before := p.pos
		args = append(args, p.parseLowWordOps())
		if p.peek() == token.Comma || p.peek() == token.FatComma {
			p.next()
		}
		if p.pos == before {
			break
		}
	}
	p.expect(token.RParen, `")"`)
	return args
}

// startsTerm reports whether a token kind can begin a term.
func (p *parser) startsTerm(k token.Kind) bool {
	switch k {
	case token.Number, token.Version,
		token.StringSingle, token.StringDouble, token.Backtick, token.QuoteWords,
		token.Match, token.Substitution, token.Transliteration, token.QuoteRegexp,
		token.HeredocIntro,
		token.ScalarVar, token.ArrayVar, token.HashVar, token.CodeVar, token.GlobVar,
		token.Ident, token.LBracket, token.KwSub, token.KwDo, token.KwEval:
		return true
	}
	return false
}

func (p *parser) parsePrimary() ast.Node {
	t := p.cur()
	switch t.Kind {
	case token.Number, token.Version:
		p.next()
		return &ast.Number{Value: t.Text, Loc: ast.Span{Start: t.Start, End: t.End}}

	case token.StringSingle, token.QuoteWords:
		p.next()
		return &ast.String{Value: t.Text, Loc: ast.Span{Start: t.Start, End: t.End}}

	case token.StringDouble, token.Backtick:
		p.next()
		return &ast.String{Value: t.Text, Interpolated: true, Loc: ast.Span{Start: t.Start, End: t.End}}

	case token.Match:
		p.next()
		return &ast.Match{Text: t.Text, Loc: ast.Span{Start: t.Start, End: t.End}}

	case token.Substitution:
		p.next()
		return &ast.Substitution{Text: t.Text, Loc: ast.Span{Start: t.Start, End: t.End}}

	case token.Transliteration:
		p.next()
		return &ast.Transliteration{Text: t.Text, Loc: ast.Span{Start: t.Start, End: t.End}}

	case token.QuoteRegexp:
		p.next()
		return &ast.Regex{Text: t.Text, Loc: ast.Span{Start: t.Start, End: t.End}}

	case token.HeredocIntro:
		p.next()
		node := &ast.Heredoc{Loc: ast.Span{Start: t.Start, End: t.End}}
		if hd, ok := p.heredocs[t.Start]; ok {
			node.Tag = hd.Tag
			node.Interpolate = hd.Interpolate
			node.Indented = hd.Indented
			node.BodyStart = hd.BodyStart
			node.BodyEnd = hd.BodyEnd
		}
		return node

	case token.ScalarVar, token.ArrayVar, token.HashVar, token.CodeVar, token.GlobVar:
		p.next()
		return varFromToken(t)

	case token.Ident:
		return p.parseBarewordExpr()

	case token.LParen:
		open := p.next()
		if p.peek() == token.RParen {
			p.next()
			return &ast.List{Loc: ast.Span{Start: open.Start, End: p.prevEnd()}}
		}
		inner := p.parseExpression()
		p.expect(token.RParen, `")"`)
		if list, ok := inner.(*ast.List); ok {
			list.Loc = ast.Span{Start: open.Start, End: p.prevEnd()}
			return list
		}
		return inner

	case token.LBracket:
		open := p.next()
		arr := &ast.AnonArray{}
		for p.peek() != token.RBracket && !p.atEOF() {
			before := p.pos
			arr.Elements = append(arr.Elements, p.parseLowWordOps())
			if p.peek() == token.Comma || p.peek() == token.FatComma {
				p.next()
			}
			if p.pos == before {
				break
			}
		}
		p.expect(token.RBracket, `"]"`)
		arr.Loc = ast.Span{Start: open.Start, End: p.prevEnd()}
		return arr

	case token.LBrace:
		open := p.next()
		h := &ast.AnonHash{}
		for p.peek() != token.RBrace && !p.atEOF() {
			before := p.pos
			h.Elements = append(h.Elements, p.parseLowWordOps())
			if p.peek() == token.Comma || p.peek() == token.FatComma {
				p.next()
			}
			if p.pos == before {
				break
			}
		}
		p.expect(token.RBrace, `"}"`)
		h.Loc = ast.Span{Start: open.Start, End: p.prevEnd()}
		return h

	case token.KwSub:
		return p.parseSubroutine() // anonymous: no name follows

	case token.KwDo:
		p.next()
		if p.peek() == token.LBrace {
			blk := p.parseBlock()
			return blk
		}
		operand := p.parseUnary()
		return &ast.FunctionCall{Name: "do", NameLoc: ast.Span{Start: t.Start, End: t.End},
			Args: []ast.Node{operand}, Loc: ast.Span{Start: t.Start, End: operand.Span().End}}

	case token.KwEval:
		p.next()
		ev := &ast.Eval{}
		if p.peek() == token.LBrace {
			ev.Body = p.parseBlock()
		} else if p.startsTerm(p.peek()) {
			ev.Body = p.parseUnary()
		} else {
			ev.Body = p.missing("eval body")
		}
		ev.Loc = ast.Span{Start: t.Start, End: ev.Body.Span().End}
		return ev

	case token.KwMy, token.KwOur, token.KwLocal, token.KwState:
		// declaration in expression position: `($x, my $y) = ...` or
		// `my $line = ...` inside a condition.
		return p.parseExprDeclaration()

	case token.Operator:
		// <FH> readline shorthand.
		if t.Text == "<" && p.peekAt(1).Kind == token.Ident &&
			p.peekAt(2).Kind == token.Operator && p.peekAt(2).Text == ">" {
			p.next()
			fh := p.next()
			p.next()
			return &ast.FunctionCall{
				Name:    "readline",
				NameLoc: ast.Span{Start: t.Start, End: t.End},
				Args: []ast.Node{&ast.Identifier{Name: fh.Text,
					Loc: ast.Span{Start: fh.Start, End: fh.End}}},
				Loc: ast.Span{Start: t.Start, End: p.prevEnd()},
			}
		}
		fallthrough

	default:
		tok := p.next()
		p.errorf(tok.Start, tok.End, "expected expression, found %s", tok.Kind)
		return &ast.Error{Msg: "expected expression", Loc: ast.Span{Start: tok.Start, End: tok.End}}
	}
}

// parseExprDeclaration is my/our/local/state in expression position,
// without statement-modifier or semicolon handling.
func (p *parser) parseExprDeclaration() ast.Node {
	lead := p.next()
	decl := &ast.VariableDeclaration{Declarator: lead.Text}
	switch {
	case p.peek().IsVariable():
		decl.Variables = append(decl.Variables, varFromToken(p.next()))
	case p.peek() == token.LParen:
		p.next()
		for p.peek() != token.RParen && !p.atEOF() {
			if p.peek().IsVariable() {
				decl.Variables = append(decl.Variables, varFromToken(p.next()))
			} else {
				p.next()
			}
			if p.peek() == token.Comma {
				p.next()
			}
		}
		p.expect(token.RParen, `")"`)
	default:
		p.errorf(lead.Start, lead.End, "expected variable after %s", lead.Text)
	}
	if p.peek() == token.Operator && p.cur().Text == "=" {
		p.next()
		decl.Init = p.parseTernary()
	}
	decl.Loc = ast.Span{Start: lead.Start, End: p.prevEnd()}
	return decl
}

// parseBarewordExpr decides what an identifier in term position is:
// a parenthesized call, a list-operator call, a class name ahead of an
// arrow, a hash key ahead of a fat comma, or a plain bareword.
func (p *parser) parseBarewordExpr() ast.Node {
	nameTok := p.next()
	nameLoc := ast.Span{Start: nameTok.Start, End: nameTok.End}

	switch {
	case p.peek() == token.LParen:
		call := &ast.FunctionCall{Name: nameTok.Text, NameLoc: nameLoc}
		call.Args = p.parseParenArgs()
		call.Loc = ast.Span{Start: nameTok.Start, End: p.prevEnd()}
		return call

	case p.peek() == token.Arrow, p.peek() == token.FatComma:
		return &ast.Identifier{Name: nameTok.Text, Loc: nameLoc}

	case p.startsTerm(p.peek()) || p.startsUnary():
		// List operator: print $x, "y";  push @a, 1;
		call := &ast.FunctionCall{Name: nameTok.Text, NameLoc: nameLoc}
		for {
			before := p.pos
			call.Args = append(call.Args, p.parseLowWordOps())
			if p.peek() == token.Comma || p.peek() == token.FatComma {
				p.next()
				if p.startsTerm(p.peek()) || p.startsUnary() {
					continue
				}
				break
			}
			// Filehandle position: `print STDERR "x"` has no comma
			// after the handle.
			if len(call.Args) == 1 && p.startsTerm(p.peek()) {
				if _, ok := call.Args[0].(*ast.Identifier); ok {
					continue
				}
			}
			if p.pos == before {
				break
			}
			break
		}
		call.Loc = ast.Span{Start: nameTok.Start, End: p.prevEnd()}
		return call

	default:
		return &ast.Identifier{Name: nameTok.Text, Loc: nameLoc}
	}
}
