package lexer

import (
	"strings"

	"go.perlls.io/perlls/token"
)

// Heredoc describes one heredoc found in the source: where its introducer
// sits, where its deferred body ended up, and how the body is to be read.
// The analysis layer uses these to scan interpolated bodies for variable
// references with spans that map back to the real source.
type Heredoc struct {
	IntroStart  int
	IntroEnd    int
	BodyStart   int
	BodyEnd     int // exclusive; does not include the terminator line
	Tag         string
	Interpolate bool
	Indented    bool
	Terminated  bool
}

// Heredocs returns the heredocs recorded so far, in source order.
func (lx *Lexer) Heredocs() []Heredoc { return lx.heredocs }

// heredocFollows decides whether '<<' at the current position introduces a
// heredoc rather than a left shift. Shift only makes sense after a value;
// in term position '<<' followed by a tag is always a heredoc.
func (lx *Lexer) heredocFollows() bool {
	if lx.lastValue {
		return false
	}
	off := 2
	if lx.peekAt(off) == '~' {
		off++
	}
	c := lx.peekAt(off)
	return isIdentStart(c) || c == '"' || c == '\''
}

// scanHeredocIntro consumes <<TAG / <<"TAG" / <<'TAG' / <<~TAG and records
// the pending body. The body itself is consumed when the current logical
// line ends (see skipSpace).
func (lx *Lexer) scanHeredocIntro(start int) token.Token {
	lx.pos += 2
	indented := false
	if lx.peek() == '~' {
		indented = true
		lx.pos++
	}

	interpolate := true
	var tag string
	switch c := lx.peek(); c {
	case '"', '\'':
		interpolate = c == '"'
		lx.pos++
		tagStart := lx.pos
		for lx.pos < len(lx.src) && lx.src[lx.pos] != c && lx.src[lx.pos] != '\n' {
			lx.pos++
		}
		tag = lx.src[tagStart:lx.pos]
		if lx.peek() == c {
			lx.pos++
		} else {
			lx.errorf(start, lx.pos, "unterminated heredoc tag")
		}
	default:
		tagStart := lx.pos
		for isIdentChar(lx.peek()) {
			lx.pos++
		}
		tag = lx.src[tagStart:lx.pos]
	}

	lx.pending = append(lx.pending, pendingHeredoc{tag: tag, interpolate: interpolate, indented: indented})
	lx.pendingIntros = append(lx.pendingIntros, [2]int{start, lx.pos})
	return lx.emit(token.HeredocIntro, start, lx.src[start:lx.pos])
}

// consumeHeredocBodies runs right after the newline that ends the logical
// line carrying one or more heredoc introducers. Bodies are consumed in
// declaration order; each produces a HeredocBody token queued ahead of the
// next line's tokens.
func (lx *Lexer) consumeHeredocBodies() {
	pending := lx.pending
	intros := lx.pendingIntros
	lx.pending = nil
	lx.pendingIntros = nil

	for i, hd := range pending {
		bodyStart := lx.pos
		bodyEnd := bodyStart
		terminated := false
		for lx.pos < len(lx.src) {
			lineStart := lx.pos
			nl := strings.IndexByte(lx.src[lx.pos:], '\n')
			var line string
			if nl < 0 {
				line = lx.src[lineStart:]
				lx.pos = len(lx.src)
			} else {
				line = lx.src[lineStart : lineStart+nl]
				lx.pos = lineStart + nl + 1
			}
			line = strings.TrimSuffix(line, "\r")
			cmp := line
			if hd.indented {
				cmp = strings.TrimLeft(line, " \t")
			}
			if cmp == hd.tag {
				terminated = true
				bodyEnd = lineStart
				break
			}
			bodyEnd = lx.pos
		}
		if !terminated {
			bodyEnd = len(lx.src)
			lx.pos = len(lx.src)
			lx.errorf(intros[i][0], intros[i][1],
				`can't find heredoc terminator "`+hd.tag+`"`)
		}

		lx.heredocs = append(lx.heredocs, Heredoc{
			IntroStart:  intros[i][0],
			IntroEnd:    intros[i][1],
			BodyStart:   bodyStart,
			BodyEnd:     bodyEnd,
			Tag:         hd.tag,
			Interpolate: hd.interpolate,
			Indented:    hd.indented,
			Terminated:  terminated,
		})
		lx.queue = append(lx.queue, token.Token{
			Kind:  token.HeredocBody,
			Start: bodyStart,
			End:   bodyEnd,
		})
	}
	lx.atLineStart = true
}
