package server

import (
	"context"
	"encoding/json"
	"sort"

	"go.perlls.io/perlls/analysis"
	"go.perlls.io/perlls/builtins"
	"go.perlls.io/perlls/document"
	"go.perlls.io/perlls/lexer"
	"go.perlls.io/perlls/lsp"
	"go.perlls.io/perlls/token"
)

// Semantic token legend indices; keep in sync with
// lsp.SemanticTokenTypes / lsp.SemanticTokenModifiers.
const (
	tokNamespace = 0
	tokFunction  = 1
	tokVariable  = 2
	tokParameter = 3
	tokProperty  = 4
	tokKeyword   = 5
	tokString    = 6
	tokNumber    = 7
	tokRegexp    = 8
	tokComment   = 9
	tokOperator  = 10
)

const (
	modDeclaration    = 1 << 0
	modReadonly       = 1 << 1
	modDefaultLibrary = 1 << 2
	modModification   = 1 << 3
)

type semToken struct {
	start int
	end   int
	typ   int
	mods  int
}

// semanticTokensFull retokenizes the document (cheap and exact for
// lexical classes) and overlays symbol-table knowledge for identifier
// classification, then emits LSP's delta-encoded data.
func (s *Server) semanticTokensFull(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TextDocument lsp.TextDocumentIdentifier `json:"textDocument"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	doc, ok := s.store.Get(p.TextDocument.URI)
	if !ok {
		return lsp.SemanticTokens{Data: []uint32{}}, nil
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	toks := collectSemTokens(doc)
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}
	return lsp.SemanticTokens{Data: encodeSemTokens(doc, toks)}, nil
}

func collectSemTokens(doc *document.Document) []semToken {
	var out []semToken
	add := func(start, end, typ, mods int) {
		if end > start {
			out = append(out, semToken{start: start, end: end, typ: typ, mods: mods})
		}
	}

	lexToks, _ := lexer.Tokenize(doc.Text)
	for _, t := range lexToks {
		switch t.Kind {
		case token.Comment, token.Pod:
			add(t.Start, t.End, tokComment, 0)
		case token.Number, token.Version:
			add(t.Start, t.End, tokNumber, 0)
		case token.StringSingle, token.StringDouble, token.Backtick,
			token.QuoteWords, token.HeredocIntro, token.HeredocBody:
			add(t.Start, t.End, tokString, 0)
		case token.Match, token.Substitution, token.Transliteration, token.QuoteRegexp:
			add(t.Start, t.End, tokRegexp, 0)
		case token.ScalarVar, token.ArrayVar, token.HashVar, token.CodeVar, token.GlobVar:
			add(t.Start, t.End, tokVariable, varModifiers(doc, t))
		case token.Operator:
			add(t.Start, t.End, tokOperator, 0)
		case token.Ident:
			typ, mods, ok := identClass(doc, t)
			if ok {
				add(t.Start, t.End, typ, mods)
			}
		default:
			if t.Kind.IsKeyword() {
				add(t.Start, t.End, tokKeyword, 0)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// varModifiers inspects the symbol table for declaration/write context.
func varModifiers(doc *document.Document, t token.Token) int {
	if doc.Table == nil {
		return 0
	}
	if sym := doc.Table.SymbolAt(t.Start); sym != nil {
		mods := modDeclaration
		if sym.Declarator == "state" {
			mods |= modReadonly
		}
		return mods
	}
	if ref := doc.Table.ReferenceAt(t.Start); ref != nil && ref.Write {
		return modModification
	}
	return 0
}

func identClass(doc *document.Document, t token.Token) (int, int, bool) {
	if doc.Table != nil {
		if sym := doc.Table.SymbolAt(t.Start); sym != nil {
			switch sym.Kind {
			case analysis.KindPackage:
				return tokNamespace, modDeclaration, true
			case analysis.KindSubroutine:
				return tokFunction, modDeclaration, true
			case analysis.KindConstant:
				return tokVariable, modDeclaration | modReadonly, true
			}
		}
		if ref := doc.Table.ReferenceAt(t.Start); ref != nil && ref.Kind == analysis.KindSubroutine {
			if builtins.IsBuiltin(t.Text) {
				return tokFunction, modDefaultLibrary, true
			}
			return tokFunction, 0, true
		}
	}
	if builtins.IsBuiltin(t.Text) {
		return tokFunction, modDefaultLibrary, true
	}
	return 0, 0, false
}

// encodeSemTokens produces the LSP delta encoding: five uint32 per token
// (deltaLine, deltaStart, length, type, modifiers) with UTF-16 lengths.
func encodeSemTokens(doc *document.Document, toks []semToken) []uint32 {
	data := make([]uint32, 0, len(toks)*5)
	prevLine, prevChar := 0, 0
	for _, t := range toks {
		sp := doc.OffsetToPosition(t.start)
		ep := doc.OffsetToPosition(t.end)
		if ep.Line != sp.Line {
			// multi-line tokens (POD, heredoc bodies) are emitted line
			// by line so clients that cannot wrap survive
			for line := sp.Line; line <= ep.Line; line++ {
				startChar := 0
				if line == sp.Line {
					startChar = sp.Character
				}
				endChar := doc.OffsetToPosition(doc.LineEndOffset(line)).Character
				if line == ep.Line {
					endChar = ep.Character
				}
				if endChar <= startChar {
					continue
				}
				deltaLine := line - prevLine
				deltaStart := startChar
				if deltaLine == 0 {
					deltaStart = startChar - prevChar
				}
				data = append(data, uint32(deltaLine), uint32(deltaStart),
					uint32(endChar-startChar), uint32(t.typ), uint32(t.mods))
				prevLine, prevChar = line, startChar
			}
			continue
		}
		deltaLine := sp.Line - prevLine
		deltaStart := sp.Character
		if deltaLine == 0 {
			deltaStart = sp.Character - prevChar
		}
		data = append(data, uint32(deltaLine), uint32(deltaStart),
			uint32(ep.Character-sp.Character), uint32(t.typ), uint32(t.mods))
		prevLine, prevChar = sp.Line, sp.Character
	}
	return data
}
