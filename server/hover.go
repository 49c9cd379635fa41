package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.perlls.io/perlls/analysis"
	"go.perlls.io/perlls/builtins"
	"go.perlls.io/perlls/document"
	"go.perlls.io/perlls/lsp"
)

func (s *Server) hover(ctx context.Context, params json.RawMessage) (any, error) {
	doc, off, ok, err := s.docAndOffset(params)
	if err != nil || !ok {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	sym, ref := symbolAt(doc, off)
	if sym != nil {
		rng := s.rangeFor(doc, sym.Loc.Start, sym.Loc.End)
		if ref != nil {
			rng = s.rangeFor(doc, ref.Loc.Start, ref.Loc.End)
		}
		return &lsp.Hover{
			Contents: lsp.MarkupContent{Kind: "markdown", Value: hoverMarkdown(sym)},
			Range:    &rng,
		}, nil
	}

	// Unresolved reference: try the workspace index before giving up.
	if ref != nil {
		if h := s.hoverFromIndex(ref); h != nil {
			rng := s.rangeFor(doc, ref.Loc.Start, ref.Loc.End)
			h.Range = &rng
			return h, nil
		}
	}

	// Fall back to the bare token at the position: builtins first, then
	// a plain word echo for anything identifier-shaped.
	word, span := doc.WordAt(off)
	if word == "" {
		return nil, nil
	}
	if fn, ok := builtins.Lookup(strings.TrimLeft(word, "$@%&")); ok && !strings.HasPrefix(word, "$") {
		value := fmt.Sprintf("```perl\n%s\n```\n\n%s\n\n_built-in function_", fn.Signature, fn.Doc)
		rng := s.rangeFor(doc, span.Start, span.End)
		return &lsp.Hover{
			Contents: lsp.MarkupContent{Kind: "markdown", Value: value},
			Range:    &rng,
		}, nil
	}
	return nil, nil
}

// hoverFromIndex builds hover content from a cross-file definition.
func (s *Server) hoverFromIndex(ref *analysis.Reference) *lsp.Hover {
	entries := s.findCrossFile(ref)
	if len(entries) == 0 {
		return nil
	}
	e := entries[0]
	doc := s.openOrDiskSnapshot(e.URI)
	if doc == nil {
		return nil
	}
	sym := doc.Table.SymbolAt(e.Span.Start)
	if sym == nil {
		return nil
	}
	return &lsp.Hover{Contents: lsp.MarkupContent{Kind: "markdown", Value: hoverMarkdown(sym)}}
}

// openOrDiskSnapshot returns the open snapshot or a parsed disk copy.
func (s *Server) openOrDiskSnapshot(uri string) *document.Document {
	if doc, ok := s.store.Get(uri); ok {
		return doc
	}
	loc, ok := s.locationDocFromDisk(uri)
	if !ok {
		return nil
	}
	return loc
}

// hoverMarkdown composes the hover block: kind, qualified name,
// declaration form, attributes and harvested documentation.
func hoverMarkdown(sym *analysis.Symbol) string {
	var b strings.Builder
	b.WriteString("```perl\n")
	switch sym.Kind {
	case analysis.KindSubroutine:
		b.WriteString("sub " + sym.Qualified)
	case analysis.KindPackage:
		b.WriteString("package " + sym.Name)
	case analysis.KindConstant:
		b.WriteString("use constant " + sym.Qualified)
	case analysis.KindLabel:
		b.WriteString(sym.Name + ":")
	default:
		decl := sym.Declarator
		if decl == "" {
			decl = "our"
		}
		b.WriteString(decl + " " + sym.Kind.Sigil() + displayName(sym))
	}
	if len(sym.Attributes) > 0 {
		b.WriteString(" :" + strings.Join(sym.Attributes, " :"))
	}
	b.WriteString("\n```\n")

	b.WriteString("\n_" + sym.Kind.String())
	if sym.Declarator != "" {
		b.WriteString(", `" + sym.Declarator + "`-declared")
	}
	b.WriteString("_\n")

	if sym.Doc != "" {
		b.WriteString("\n---\n" + sym.Doc + "\n")
	}
	return b.String()
}

func displayName(sym *analysis.Symbol) string {
	if sym.Declarator == "our" {
		return sym.Qualified
	}
	return sym.Name
}
