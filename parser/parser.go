// Package parser turns Perl source into an ast.Program.
//
// The parser is recursive descent with precedence climbing in expressions.
// It never fails and never panics: malformed regions become ast.Error and
// ast.Missing nodes, and parsing resynchronizes at statement terminators
// and a fixed set of anchor keywords. A recursion guard bounds the depth
// on adversarial input.
package parser

import (
	"fmt"

	"go.perlls.io/perlls/ast"
	"go.perlls.io/perlls/lexer"
	"go.perlls.io/perlls/token"
)

const maxRecursionDepth = 500

// Problem is a parse-time diagnostic with a source span.
type Problem struct {
	Start int
	End   int
	Msg   string
}

// Result bundles the AST with everything else a single parse produced:
// trivia for documentation harvesting, heredoc metadata for interpolation
// scanning, and the combined lexer+parser problem list for diagnostics.
type Result struct {
	Root     *ast.Program
	Comments []token.Token
	Pods     []token.Token
	Heredocs []lexer.Heredoc
	Problems []Problem
}

// HasErrors reports whether the parse produced any problems.
func (r *Result) HasErrors() bool { return len(r.Problems) > 0 }

type parser struct {
	toks     []token.Token
	pos      int
	depth    int
	problems []Problem
	heredocs map[int]lexer.Heredoc // keyed by introducer start offset
	srcLen   int
}

// Parse parses text and always returns a Result with a non-nil Program,
// no matter how broken the input is.
func Parse(text string) *Result {
	lx := lexer.New(text)
	res := &Result{}
	p := &parser{srcLen: len(text), heredocs: map[int]lexer.Heredoc{}}

	for {
		t := lx.Next()
		switch t.Kind {
		case token.Comment:
			res.Comments = append(res.Comments, t)
		case token.Pod:
			res.Pods = append(res.Pods, t)
		case token.HeredocBody:
			// bodies are reached through heredoc metadata, not the
			// token stream
		default:
			p.toks = append(p.toks, t)
		}
		if t.Kind == token.EOF {
			break
		}
	}
	res.Heredocs = lx.Heredocs()
	for _, hd := range res.Heredocs {
		p.heredocs[hd.IntroStart] = hd
	}
	for _, lp := range lx.Problems() {
		p.problems = append(p.problems, Problem(lp))
	}

	res.Root = p.parseProgram()
	res.Problems = p.problems
	return res
}

func (p *parser) errorf(start, end int, format string, args ...any) {
	p.problems = append(p.problems, Problem{Start: start, End: end, Msg: fmt.Sprintf(format, args...)})
}

func (p *parser) cur() token.Token  { return p.toks[min(p.pos, len(p.toks)-1)] }
func (p *parser) peek() token.Kind  { return p.cur().Kind }
func (p *parser) atEOF() bool       { return p.peek() == token.EOF }
func (p *parser) peekAt(k int) token.Token {
	return p.toks[min(p.pos+k, len(p.toks)-1)]
}

func (p *parser) next() token.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

// prevEnd is the end offset of the last consumed token, used to close
// node spans.
func (p *parser) prevEnd() int {
	if p.pos == 0 {
		return 0
	}
	return p.toks[p.pos-1].End
}

func (p *parser) expect(k token.Kind, what string) (token.Token, bool) {
	if p.peek() == k {
		return p.next(), true
	}
	t := p.cur()
	p.errorf(t.Start, t.End, "expected %s, found %s", what, t.Kind)
	return t, false
}

// eatSemi consumes an optional statement terminator. Per the
// last-statement rule a closing brace or EOF also terminates.
func (p *parser) eatSemi() {
	if p.peek() == token.Semicolon {
		p.next()
	}
}

// missing records and returns a Missing node at the current position.
func (p *parser) missing(what string) ast.Node {
	t := p.cur()
	p.errorf(t.Start, t.Start, "missing %s", what)
	return &ast.Missing{What: what, Loc: ast.Span{Start: t.Start, End: t.Start}}
}

// errorNode consumes the current token into an Error node and
// resynchronizes to the next statement boundary.
func (p *parser) errorNode(why string) ast.Node {
	t := p.next()
	p.errorf(t.Start, t.End, "%s: unexpected %s", why, t.Kind)
	end := t.End
	p.synchronize()
	if p.prevEnd() > end {
		end = p.prevEnd()
	}
	return &ast.Error{Msg: why, Loc: ast.Span{Start: t.Start, End: end}}
}

// synchronize advances to the next semicolon or anchor keyword, leaving
// the parser positioned to attempt the next statement.
func (p *parser) synchronize() {
	for !p.atEOF() {
		switch p.peek() {
		case token.Semicolon:
			p.next()
			return
		case token.RBrace,
			token.KwPackage, token.KwSub, token.KwMy,
			token.KwIf, token.KwWhile, token.KwFor, token.KwForeach:
			return
		}
		p.next()
	}
}

// enter/leave implement the recursion depth guard.
func (p *parser) enter() bool {
	p.depth++
	if p.depth > maxRecursionDepth {
		t := p.cur()
		p.errorf(t.Start, t.End, "expression nesting too deep")
		return false
	}
	return true
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseProgram() *ast.Program {
	prog := &ast.Program{Loc: ast.Span{Start: 0, End: p.srcLen}}
	for !p.atEOF() {
		before := p.pos
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
		if p.pos == before {
			// Whatever it was, no rule consumed it; skip a token so the
			// loop always terminates.
			t := p.next()
			p.errorf(t.Start, t.End, "unexpected %s", t.Kind)
			prog.Statements = append(prog.Statements,
				&ast.Error{Msg: "unexpected token", Loc: ast.Span{Start: t.Start, End: t.End}})
		}
	}
	return prog
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
