package lexer

import "go.perlls.io/perlls/token"

// specialScalarPunct are the single-character punctuation variables ($_,
// $!, $@, $0, ...). Digits are handled separately so $1..$99 capture the
// whole number.
const specialScalarPunct = "_!@/\\,;.&`'+^<>()[]:?$0"

// variableFollows reports whether the byte at pos+off can begin a variable
// name, which is what turns '%', '&' and '*' into sigils rather than
// operators.
func (lx *Lexer) variableFollows(off int) bool {
	c := lx.peekAt(off)
	return isIdentStart(c) || c == '{' || c == '$' || c == '^'
}

// scanVariable reads a sigil-prefixed variable. The token text includes the
// sigil; the symbol layers strip it when they need the bare name.
func (lx *Lexer) scanVariable(start int) token.Token {
	sigil := lx.src[lx.pos]
	lx.pos++

	kind := token.ScalarVar
	switch sigil {
	case '@':
		kind = token.ArrayVar
	case '%':
		kind = token.HashVar
	case '&':
		kind = token.CodeVar
	case '*':
		kind = token.GlobVar
	}

	// $#array: last-index of an array, still a scalar value.
	if sigil == '$' && lx.peek() == '#' && (isIdentStart(lx.peekAt(1)) || lx.peekAt(1) == '{' || lx.peekAt(1) == '$') {
		lx.pos++
	}

	switch c := lx.peek(); {
	case c == '{':
		// ${name} / @{...}: consume through the matching brace. Complex
		// dereference blocks keep their inner text opaque here; the
		// parser sees one variable token.
		depth := 0
		for lx.pos < len(lx.src) {
			switch lx.src[lx.pos] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					lx.pos++
					return lx.emit(kind, start, lx.src[start:lx.pos])
				}
			case '\n':
				// A dereference block never spans lines in practice;
				// bail out so an unclosed ${ doesn't eat the document.
				lx.errorf(start, lx.pos, "unterminated ${...} variable")
				return lx.emit(kind, start, lx.src[start:lx.pos])
			}
			lx.pos++
		}
		lx.errorf(start, lx.pos, "unterminated ${...} variable")
		return lx.emit(kind, start, lx.src[start:lx.pos])

	case c == '$':
		// $$ref dereference chain, or the PID variable $$ alone.
		if isIdentStart(lx.peekAt(1)) || lx.peekAt(1) == '$' {
			lx.pos++
			return lx.continueVarName(kind, start)
		}
		lx.pos++
		return lx.emit(kind, start, lx.src[start:lx.pos])

	case isIdentStart(c):
		return lx.continueVarName(kind, start)

	case isDigit(c) && sigil == '$':
		for isDigit(lx.peek()) {
			lx.pos++
		}
		return lx.emit(kind, start, lx.src[start:lx.pos])

	case sigil == '$' && c == '^' && isUpper(lx.peekAt(1)):
		lx.pos += 2
		return lx.emit(kind, start, lx.src[start:lx.pos])

	case sigil == '$' && c != 0 && indexByte(specialScalarPunct, c) >= 0:
		lx.pos++
		return lx.emit(kind, start, lx.src[start:lx.pos])

	case (sigil == '@' || sigil == '%') && (c == '_' || c == '+' || c == '-'):
		lx.pos++
		return lx.emit(kind, start, lx.src[start:lx.pos])

	default:
		// A bare sigil with nothing variable-ish after it. For $ and @
		// this is an error; for the rest the caller already checked.
		lx.errorf(start, lx.pos, "bare sigil")
		return lx.emit(token.Illegal, start, lx.src[start:lx.pos])
	}
}

func (lx *Lexer) continueVarName(kind token.Kind, start int) token.Token {
	for isIdentChar(lx.peek()) {
		lx.pos++
	}
	for lx.peek() == ':' && lx.peekAt(1) == ':' && isIdentStart(lx.peekAt(2)) {
		lx.pos += 2
		for isIdentChar(lx.peek()) {
			lx.pos++
		}
	}
	return lx.emit(kind, start, lx.src[start:lx.pos])
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}
