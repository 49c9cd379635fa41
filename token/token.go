// Package token defines the lexical token kinds produced by the Perl lexer.
//
// Tokens carry byte-offset spans into the document they were lexed from and,
// for literals and identifiers, an owned text fragment. They never keep a
// pointer back to the source string, so a token slice can outlive the
// buffer it was produced from.
package token

import "fmt"

// Kind identifies the lexical class of a token.
type Kind uint8

const (
	// EOF marks the end of input.
	EOF Kind = iota
	// Illegal is emitted for bytes the lexer could not form a token from.
	// The lexer resumes at the next syntactic anchor after emitting one.
	Illegal
	// Comment is a '#' comment running to end of line.
	Comment
	// Pod is an inline documentation section from '=word' through '=cut'.
	Pod

	// Ident is a bare identifier, possibly package-qualified (Foo::bar).
	Ident
	// Number is an integer or floating point literal, including
	// hex/octal/binary forms and underscore separators.
	Number
	// Version is a v-string or decimal version literal (v5.36, 5.036).
	Version

	// StringSingle is a '...' literal or q{...} form. No interpolation.
	StringSingle
	// StringDouble is a "..." literal or qq{...} form. Interpolates.
	StringDouble
	// Backtick is a `...` command literal. Interpolates.
	Backtick
	// QuoteWords is a qw(...) word list.
	QuoteWords
	// Match is a m/.../ or bare /.../ regex match.
	Match
	// Substitution is a s/../../ with two bodies.
	Substitution
	// Transliteration is tr/../../ or y/../../.
	Transliteration
	// QuoteRegexp is a qr/.../ compiled-regex literal.
	QuoteRegexp
	// HeredocIntro is the <<TAG introducer; the body arrives later as a
	// HeredocBody token once the current logical line has ended.
	HeredocIntro
	// HeredocBody is the deferred body of a heredoc, spanning from the
	// line after the introducer's line through the terminator tag line.
	HeredocBody

	// ScalarVar is $name, ${name} or a scalar special like $_ and $1.
	ScalarVar
	// ArrayVar is @name or an array special like @ARGV.
	ArrayVar
	// HashVar is %name or a hash special like %ENV.
	HashVar
	// CodeVar is &name, a code reference by sigil.
	CodeVar
	// GlobVar is *name, a typeglob.
	GlobVar

	// Keyword kinds. Only words that change the shape of the parse get
	// their own kind; everything else (print, defined, ...) stays Ident
	// and is recognized by the builtins table where it matters.
	KwMy
	KwOur
	KwLocal
	KwState
	KwSub
	KwPackage
	KwUse
	KwNo
	KwRequire
	KwIf
	KwElsif
	KwElse
	KwUnless
	KwWhile
	KwUntil
	KwFor
	KwForeach
	KwDo
	KwReturn
	KwLast
	KwNext
	KwRedo
	KwEval

	// Punctuation.
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semicolon
	Comma
	FatComma // =>
	Arrow    // ->
	Question
	Colon
	PackageSep // ::, only when free-standing

	// Operator covers all remaining operators; the parser keys precedence
	// off the token text ("+", "==", "=~", "and", ...).
	Operator
)

var kindNames = [...]string{
	EOF:             "EOF",
	Illegal:         "Illegal",
	Comment:         "Comment",
	Pod:             "Pod",
	Ident:           "Ident",
	Number:          "Number",
	Version:         "Version",
	StringSingle:    "StringSingle",
	StringDouble:    "StringDouble",
	Backtick:        "Backtick",
	QuoteWords:      "QuoteWords",
	Match:           "Match",
	Substitution:    "Substitution",
	Transliteration: "Transliteration",
	QuoteRegexp:     "QuoteRegexp",
	HeredocIntro:    "HeredocIntro",
	HeredocBody:     "HeredocBody",
	ScalarVar:       "ScalarVar",
	ArrayVar:        "ArrayVar",
	HashVar:         "HashVar",
	CodeVar:         "CodeVar",
	GlobVar:         "GlobVar",
	KwMy:            "my",
	KwOur:           "our",
	KwLocal:         "local",
	KwState:         "state",
	KwSub:           "sub",
	KwPackage:       "package",
	KwUse:           "use",
	KwNo:            "no",
	KwRequire:       "require",
	KwIf:            "if",
	KwElsif:         "elsif",
	KwElse:          "else",
	KwUnless:        "unless",
	KwWhile:         "while",
	KwUntil:         "until",
	KwFor:           "for",
	KwForeach:       "foreach",
	KwDo:            "do",
	KwReturn:        "return",
	KwLast:          "last",
	KwNext:          "next",
	KwRedo:          "redo",
	KwEval:          "eval",
	LParen:          "LParen",
	RParen:          "RParen",
	LBrace:          "LBrace",
	RBrace:          "RBrace",
	LBracket:        "LBracket",
	RBracket:        "RBracket",
	Semicolon:       "Semicolon",
	Comma:           "Comma",
	FatComma:        "FatComma",
	Arrow:           "Arrow",
	Question:        "Question",
	Colon:           "Colon",
	PackageSep:      "PackageSep",
	Operator:        "Operator",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var keywords = map[string]Kind{
	"my":      KwMy,
	"our":     KwOur,
	"local":   KwLocal,
	"state":   KwState,
	"sub":     KwSub,
	"package": KwPackage,
	"use":     KwUse,
	"no":      KwNo,
	"require": KwRequire,
	"if":      KwIf,
	"elsif":   KwElsif,
	"else":    KwElse,
	"unless":  KwUnless,
	"while":   KwWhile,
	"until":   KwUntil,
	"for":     KwFor,
	"foreach": KwForeach,
	"do":      KwDo,
	"return":  KwReturn,
	"last":    KwLast,
	"next":    KwNext,
	"redo":    KwRedo,
	"eval":    KwEval,
}

// Lookup returns the keyword kind for an identifier, or Ident.
func Lookup(name string) Kind {
	if k, ok := keywords[name]; ok {
		return k
	}
	return Ident
}

// Token is a single lexical token with its byte-range span.
type Token struct {
	Kind  Kind
	Start int
	End   int
	// Text is the token's source fragment for identifiers, literals,
	// variables (sigil included) and operators. Empty for punctuation
	// whose kind already pins the text down.
	Text string
}

// Span returns the token's [start, end) byte range.
func (t Token) Span() (int, int) { return t.Start, t.End }

func (t Token) String() string {
	if t.Text != "" {
		return fmt.Sprintf("%s(%q)@%d..%d", t.Kind, t.Text, t.Start, t.End)
	}
	return fmt.Sprintf("%s@%d..%d", t.Kind, t.Start, t.End)
}

// IsKeyword reports whether the kind is one of the parse-shaping keywords.
func (k Kind) IsKeyword() bool { return k >= KwMy && k <= KwEval }

// IsVariable reports whether the kind is a sigil-prefixed variable.
func (k Kind) IsVariable() bool { return k >= ScalarVar && k <= GlobVar }

// IsLiteral reports whether the kind is a literal family member.
func (k Kind) IsLiteral() bool { return k >= Number && k <= HeredocBody }

// ProducesValue reports whether a token of this kind leaves the lexer in a
// position where '/' must mean division rather than the start of a regex.
// This is the one bit of cross-token state the lexer carries (see the
// slash-disambiguation rules in the lexer package).
func (k Kind) ProducesValue() bool {
	switch k {
	case Ident, Number, Version,
		StringSingle, StringDouble, Backtick, QuoteWords,
		Match, Substitution, Transliteration, QuoteRegexp,
		HeredocIntro,
		ScalarVar, ArrayVar, HashVar, CodeVar, GlobVar,
		RParen, RBrace, RBracket:
		return true
	default:
		return false
	}
}
