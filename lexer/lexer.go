// Package lexer implements the context-sensitive tokenizer for Perl source.
//
// The lexer is hand-written because Perl cannot be tokenized by a static
// grammar: whether '/' starts a regex or divides depends on the previous
// token, quote-like operators pick their own delimiters, and heredoc bodies
// are consumed far from their introducers. All of that state lives in the
// Lexer struct and never leaks to callers; the parser only sees tokens.
//
// The lexer never fails. Malformed input produces an Illegal token spanning
// the offending bytes plus an entry in Problems, and lexing resumes at the
// next syntactic anchor.
package lexer

import (
	"strings"

	"go.perlls.io/perlls/token"
)

// Problem is a lexical error with its source span, surfaced to the
// diagnostics publisher.
type Problem struct {
	Start int
	End   int
	Msg   string
}

type pendingHeredoc struct {
	tag         string
	interpolate bool
	indented    bool // <<~ form
}

// Lexer produces tokens from a single source buffer on demand.
type Lexer struct {
	src string
	pos int

	// lastValue is the single bit of cross-token state for slash
	// disambiguation: true when the previous significant token produced
	// a value, making '/' division and '//' defined-or.
	lastValue bool

	atLineStart   bool
	pending       []pendingHeredoc
	pendingIntros [][2]int
	heredocs      []Heredoc
	queue         []token.Token
	probs         []Problem
}

// New returns a lexer over src positioned at the start.
func New(src string) *Lexer {
	return &Lexer{src: src, atLineStart: true}
}

// Problems returns the lexical errors recorded so far.
func (lx *Lexer) Problems() []Problem { return lx.probs }

// Tokenize runs a lexer over src to completion and returns every token
// including comments and POD, plus the problems encountered.
func Tokenize(src string) ([]token.Token, []Problem) {
	lx := New(src)
	var toks []token.Token
	for {
		t := lx.Next()
		toks = append(toks, t)
		if t.Kind == token.EOF {
			break
		}
	}
	return toks, lx.probs
}

func (lx *Lexer) errorf(start, end int, msg string) {
	lx.probs = append(lx.probs, Problem{Start: start, End: end, Msg: msg})
}

func (lx *Lexer) emit(k token.Kind, start int, text string) token.Token {
	t := token.Token{Kind: k, Start: start, End: lx.pos, Text: text}
	if k != token.Comment && k != token.Pod && k != token.HeredocBody {
		lx.lastValue = k.ProducesValue()
	}
	return t
}

func (lx *Lexer) peek() byte {
	if lx.pos < len(lx.src) {
		return lx.src[lx.pos]
	}
	return 0
}

func (lx *Lexer) peekAt(off int) byte {
	if lx.pos+off < len(lx.src) {
		return lx.src[lx.pos+off]
	}
	return 0
}

// Next returns the next token. After EOF it keeps returning EOF.
func (lx *Lexer) Next() token.Token {
	if len(lx.queue) > 0 {
		t := lx.queue[0]
		lx.queue = lx.queue[1:]
		return t
	}

	lx.skipSpace()
	if len(lx.queue) > 0 {
		// skipSpace crossed a newline and drained pending heredocs.
		return lx.Next()
	}

	start := lx.pos
	if lx.pos >= len(lx.src) {
		return token.Token{Kind: token.EOF, Start: start, End: start}
	}

	c := lx.src[lx.pos]
	wasLineStart := lx.atLineStart
	lx.atLineStart = false

	switch {
	case c == '#':
		return lx.scanComment(start)
	case c == '=' && wasLineStart && isIdentStart(lx.peekAt(1)):
		return lx.scanPod(start)
	case isDigit(c):
		return lx.scanNumber(start)
	case c == '.' && isDigit(lx.peekAt(1)):
		return lx.scanNumber(start)
	case c == '$' || c == '@':
		return lx.scanVariable(start)
	case c == '%' || c == '&' || c == '*':
		if !lx.lastValue && lx.variableFollows(1) {
			return lx.scanVariable(start)
		}
		return lx.scanOperator(start)
	case c == '\'':
		return lx.scanQuoted(start, '\'', token.StringSingle)
	case c == '"':
		return lx.scanQuoted(start, '"', token.StringDouble)
	case c == '`':
		return lx.scanQuoted(start, '`', token.Backtick)
	case c == '/':
		if lx.lastValue {
			return lx.scanOperator(start)
		}
		return lx.scanRegexLiteral(start)
	case c == '<' && lx.peekAt(1) == '<' && lx.heredocFollows():
		return lx.scanHeredocIntro(start)
	case isIdentStart(c):
		return lx.scanWord(start)
	default:
		return lx.scanOperator(start)
	}
}

// skipSpace advances past whitespace. Crossing a newline while heredocs are
// pending consumes their bodies immediately, in declaration order, and
// queues the body tokens.
func (lx *Lexer) skipSpace() {
	for lx.pos < len(lx.src) {
		switch lx.src[lx.pos] {
		case ' ', '\t', '\r':
			lx.pos++
		case '\n':
			lx.pos++
			lx.atLineStart = true
			if len(lx.pending) > 0 {
				lx.consumeHeredocBodies()
				return
			}
		default:
			return
		}
	}
}

func (lx *Lexer) scanComment(start int) token.Token {
	for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
		lx.pos++
	}
	return lx.emit(token.Comment, start, lx.src[start:lx.pos])
}

// scanPod consumes from a '=word' line through the matching '=cut' line (or
// EOF). POD is a comment as far as parsing is concerned.
func (lx *Lexer) scanPod(start int) token.Token {
	for lx.pos < len(lx.src) {
		lineStart := lx.pos
		lineEnd := strings.IndexByte(lx.src[lx.pos:], '\n')
		if lineEnd < 0 {
			lx.pos = len(lx.src)
		} else {
			lx.pos += lineEnd + 1
		}
		line := lx.src[lineStart:min(lx.pos, len(lx.src))]
		if strings.HasPrefix(line, "=cut") {
			break
		}
	}
	lx.atLineStart = true
	return lx.emit(token.Pod, start, "")
}

func (lx *Lexer) scanNumber(start int) token.Token {
	// 0x / 0b / 0o prefixes.
	if lx.peek() == '0' && (lx.peekAt(1) == 'x' || lx.peekAt(1) == 'X' || lx.peekAt(1) == 'b' || lx.peekAt(1) == 'B' || lx.peekAt(1) == 'o' || lx.peekAt(1) == 'O') {
		lx.pos += 2
		for isHexDigit(lx.peek()) || lx.peek() == '_' {
			lx.pos++
		}
		return lx.emit(token.Number, start, lx.src[start:lx.pos])
	}
	dots := 0
	for {
		c := lx.peek()
		switch {
		case isDigit(c) || c == '_':
			lx.pos++
		case c == '.' && isDigit(lx.peekAt(1)):
			dots++
			lx.pos++
		case (c == 'e' || c == 'E') && dots <= 1 && (isDigit(lx.peekAt(1)) || ((lx.peekAt(1) == '+' || lx.peekAt(1) == '-') && isDigit(lx.peekAt(2)))):
			lx.pos += 2
			for isDigit(lx.peek()) {
				lx.pos++
			}
			return lx.emit(token.Number, start, lx.src[start:lx.pos])
		default:
			if dots > 1 {
				return lx.emit(token.Version, start, lx.src[start:lx.pos])
			}
			return lx.emit(token.Number, start, lx.src[start:lx.pos])
		}
	}
}

// scanWord handles identifiers, keywords, word operators, quote-like
// operators and v-strings.
func (lx *Lexer) scanWord(start int) token.Token {
	lx.pos++
	for isIdentChar(lx.peek()) {
		lx.pos++
	}
	// Package-qualified names: Foo::Bar::baz.
	for lx.peek() == ':' && lx.peekAt(1) == ':' && isIdentStart(lx.peekAt(2)) {
		lx.pos += 2
		for isIdentChar(lx.peek()) {
			lx.pos++
		}
	}
	word := lx.src[start:lx.pos]

	if isQuoteLikeOp(word) {
		if t, ok := lx.tryQuoteLike(start, word); ok {
			return t
		}
	}

	if len(word) > 1 && word[0] == 'v' && isAllDigitsAndDots(word[1:]) {
		// v-strings continue across dotted groups: v5.36.0
		for lx.peek() == '.' && isDigit(lx.peekAt(1)) {
			lx.pos++
			for isDigit(lx.peek()) {
				lx.pos++
			}
		}
		return lx.emit(token.Version, start, lx.src[start:lx.pos])
	}

	if isWordOperator(word) {
		return lx.emit(token.Operator, start, word)
	}

	if k := token.Lookup(word); k != token.Ident {
		t := token.Token{Kind: k, Start: start, End: lx.pos, Text: word}
		lx.lastValue = false
		return t
	}
	t := lx.emit(token.Ident, start, word)
	// List operators expect arguments, so a following '/' opens a regex:
	// `split /,/, $s` is the canonical case. Plain identifiers produce a
	// value and keep '/' as division.
	if listOperators[word] {
		lx.lastValue = false
	}
	return t
}

// listOperators are the builtin names after which a term (and therefore a
// regex) is expected rather than an infix operator.
var listOperators = map[string]bool{
	"split": true, "grep": true, "map": true, "join": true,
	"print": true, "printf": true, "say": true, "push": true,
	"unshift": true, "die": true, "warn": true, "defined": true,
	"scalar": true, "ref": true, "wantarray": true, "chomp": true,
	"chop": true, "lc": true, "uc": true, "sort": true, "reverse": true,
	"keys": true, "values": true, "each": true, "exists": true,
	"delete": true, "sprintf": true,
}

// scanQuoted reads a simple quoted literal with backslash escapes.
func (lx *Lexer) scanQuoted(start int, delim byte, kind token.Kind) token.Token {
	lx.pos++ // opening delimiter
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c == '\\' && lx.pos+1 < len(lx.src) {
			lx.pos += 2
			continue
		}
		if c == delim {
			lx.pos++
			return lx.emit(kind, start, lx.src[start:lx.pos])
		}
		lx.pos++
	}
	lx.errorf(start, lx.pos, "unterminated string literal")
	return lx.emit(kind, start, lx.src[start:lx.pos])
}

func (lx *Lexer) scanOperator(start int) token.Token {
	rest := lx.src[lx.pos:]
	for _, op := range multiCharOps {
		if strings.HasPrefix(rest, op) {
			lx.pos += len(op)
			if k, ok := punctKinds[op]; ok {
				t := token.Token{Kind: k, Start: start, End: lx.pos, Text: op}
				lx.lastValue = k.ProducesValue()
				return t
			}
			return lx.emit(token.Operator, start, op)
		}
	}

	c := lx.src[lx.pos]
	lx.pos++
	one := string(c)
	if k, ok := punctKinds[one]; ok {
		t := token.Token{Kind: k, Start: start, End: lx.pos, Text: one}
		lx.lastValue = k.ProducesValue()
		return t
	}
	if isKnownOperatorChar(c) {
		return lx.emit(token.Operator, start, one)
	}

	// Not a byte we can make sense of: record it and resume at the next
	// anchor so one bad byte can't poison the rest of the document.
	anchor := lx.pos
	for anchor < len(lx.src) {
		b := lx.src[anchor]
		if b == ' ' || b == '\t' || b == '\n' || b == ';' || b == '}' {
			break
		}
		anchor++
	}
	lx.pos = anchor
	lx.errorf(start, lx.pos, "unexpected character "+quoteByte(c))
	return lx.emit(token.Illegal, start, lx.src[start:lx.pos])
}

// multiCharOps is ordered longest first so prefixes never shadow.
var multiCharOps = []string{
	"<=>", "**=", "||=", "&&=", "//=", "...", "<<=", ">>=",
	"=~", "!~", "==", "!=", "<=", ">=", "=>", "->", "::", "..",
	"**", "||", "&&", "//", "++", "--", "+=", "-=", "*=", "/=", ".=",
	"%=", "x=", "|=", "&=", "^=", "<<", ">>",
}

var punctKinds = map[string]token.Kind{
	"(":  token.LParen,
	")":  token.RParen,
	"{":  token.LBrace,
	"}":  token.RBrace,
	"[":  token.LBracket,
	"]":  token.RBracket,
	";":  token.Semicolon,
	",":  token.Comma,
	"=>": token.FatComma,
	"->": token.Arrow,
	"?":  token.Question,
	":":  token.Colon,
	"::": token.PackageSep,
}

func isKnownOperatorChar(c byte) bool {
	switch c {
	case '+', '-', '*', '/', '%', '=', '<', '>', '!', '~', '^', '&', '|', '.', '\\', 'x':
		return true
	}
	return false
}

func isWordOperator(w string) bool {
	switch w {
	case "and", "or", "not", "xor", "eq", "ne", "lt", "gt", "le", "ge", "cmp", "x":
		return true
	}
	return false
}

func isQuoteLikeOp(w string) bool {
	switch w {
	case "q", "qq", "qw", "qr", "m", "s", "tr", "y":
		return true
	}
	return false
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isAllDigitsAndDots(s string) bool {
	seen := false
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			seen = true
			continue
		}
		if s[i] != '.' {
			return false
		}
	}
	return seen
}

func quoteByte(c byte) string {
	if c >= 0x20 && c < 0x7f {
		return "'" + string(c) + "'"
	}
	return "0x" + hexDigits[c>>4:c>>4+1] + hexDigits[c&0xf:c&0xf+1]
}

const hexDigits = "0123456789abcdef"

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
