package lexer

import "go.perlls.io/perlls/token"

// closerFor maps an opening delimiter to its closer. Bracket pairs pair;
// anything else closes itself.
func closerFor(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	case '{':
		return '}'
	case '<':
		return '>'
	}
	return open
}

func isBracketDelim(open byte) bool {
	switch open {
	case '(', '[', '{', '<':
		return true
	}
	return false
}

// tryQuoteLike is called by scanWord after reading one of q/qq/qw/qr/m/s/tr/y.
// It commits to a quote-like token only when a plausible delimiter follows;
// otherwise the word stays a bareword (so hash keys like `{ s => 1 }` and
// method calls like `->y()` keep working). The caller's position is at the
// end of the word.
func (lx *Lexer) tryQuoteLike(start int, op string) (token.Token, bool) {
	pos := lx.pos
	// The delimiter may be separated by horizontal whitespace. A newline
	// between the operator and its delimiter is legal Perl but never
	// written; refusing it keeps `s` on a line end a bareword.
	for pos < len(lx.src) && (lx.src[pos] == ' ' || lx.src[pos] == '\t') {
		pos++
	}
	if pos >= len(lx.src) {
		return token.Token{}, false
	}
	delim := lx.src[pos]
	if isIdentChar(delim) || delim == ' ' || delim == '\t' || delim == '\n' || delim == '\r' {
		return token.Token{}, false
	}
	// `s => 1` and friends: a fat comma wins over a quote-like reading.
	if delim == '=' && pos+1 < len(lx.src) && lx.src[pos+1] == '>' {
		return token.Token{}, false
	}
	// `m,` as a list element etc. is technically valid Perl, but in user
	// code a comma or semicolon after the word is list punctuation.
	if delim == ',' || delim == ';' {
		return token.Token{}, false
	}

	lx.pos = pos + 1 // past the opening delimiter

	kind := token.Match
	bodies := 1
	switch op {
	case "q":
		kind = token.StringSingle
	case "qq":
		kind = token.StringDouble
	case "qw":
		kind = token.QuoteWords
	case "qr":
		kind = token.QuoteRegexp
	case "m":
		kind = token.Match
	case "s":
		kind, bodies = token.Substitution, 2
	case "tr", "y":
		kind, bodies = token.Transliteration, 2
	}

	if !lx.consumeDelimited(start, delim) {
		return lx.emit(kind, start, lx.src[start:lx.pos]), true
	}

	if bodies == 2 {
		if isBracketDelim(delim) {
			// The replacement part opens with its own delimiter, which
			// may be a different bracket pair: s{...}{...} or s{...}(...)
			for lx.pos < len(lx.src) && (lx.src[lx.pos] == ' ' || lx.src[lx.pos] == '\t' || lx.src[lx.pos] == '\n' || lx.src[lx.pos] == '\r') {
				lx.pos++
			}
			if lx.pos >= len(lx.src) {
				lx.errorf(start, lx.pos, "unterminated "+op+" operator")
				return lx.emit(kind, start, lx.src[start:lx.pos]), true
			}
			second := lx.src[lx.pos]
			lx.pos++
			if !lx.consumeDelimited(start, second) {
				return lx.emit(kind, start, lx.src[start:lx.pos]), true
			}
		} else {
			// Simple delimiters share the closer: s/.../.../ — the middle
			// delimiter was already consumed as the first closer, so only
			// the second body remains.
			if !lx.consumeSimpleBody(start, delim) {
				return lx.emit(kind, start, lx.src[start:lx.pos]), true
			}
		}
	}

	// Trailing modifier letters belong to the token.
	for isIdentChar(lx.peek()) && !isDigit(lx.peek()) {
		lx.pos++
	}
	return lx.emit(kind, start, lx.src[start:lx.pos]), true
}

// consumeDelimited advances past one delimited body whose opening delimiter
// was already consumed. Bracket delimiters nest; all delimiters honor
// backslash escapes. Returns false (with an error recorded) on EOF.
func (lx *Lexer) consumeDelimited(start int, open byte) bool {
	closer := closerFor(open)
	if closer == open {
		return lx.consumeSimpleBody(start, open)
	}
	depth := 1
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch c {
		case '\\':
			lx.pos++
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				lx.pos++
				return true
			}
		}
		lx.pos++
	}
	lx.errorf(start, lx.pos, "unterminated quote-like operator")
	return false
}

func (lx *Lexer) consumeSimpleBody(start int, delim byte) bool {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c == '\\' {
			lx.pos += 2
			continue
		}
		if c == delim {
			lx.pos++
			return true
		}
		lx.pos++
	}
	lx.errorf(start, lx.pos, "unterminated quote-like operator")
	return false
}

// scanRegexLiteral handles a bare /.../ in regex position, including the
// defined-or corner: in regex position '//' is an empty match, not an
// operator.
func (lx *Lexer) scanRegexLiteral(start int) token.Token {
	lx.pos++ // opening /
	if !lx.consumeSimpleBody(start, '/') {
		return lx.emit(token.Match, start, lx.src[start:lx.pos])
	}
	for isIdentChar(lx.peek()) && !isDigit(lx.peek()) {
		lx.pos++
	}
	return lx.emit(token.Match, start, lx.src[start:lx.pos])
}
