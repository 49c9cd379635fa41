package server

import (
	"context"
	"encoding/json"
	"sort"

	"go.perlls.io/perlls/analysis"
	"go.perlls.io/perlls/document"
	"go.perlls.io/perlls/lsp"
)

// occurrence is one definition or reference site used by the references,
// highlight and rename handlers.
type occurrence struct {
	uri   string
	start int
	end   int
	write bool
	decl  bool
}

// localOccurrences gathers the in-document sites of the symbol at off:
// the declaration plus every reference resolving to it.
func localOccurrences(doc *document.Document, off int) (*analysis.Symbol, []occurrence) {
	sym, _ := symbolAt(doc, off)
	if sym == nil {
		return nil, nil
	}
	occs := []occurrence{{
		uri: doc.URI, start: sym.Loc.Start, end: sym.Loc.End, write: true, decl: true,
	}}
	for _, ref := range doc.Table.ReferencesTo(sym) {
		occs = append(occs, occurrence{
			uri: doc.URI, start: ref.Loc.Start, end: ref.Loc.End, write: ref.Write,
		})
	}
	sort.Slice(occs, func(i, j int) bool { return occs[i].start < occs[j].start })
	return sym, occs
}

// crossFileOccurrences extends the local set with workspace hits for
// symbols visible across files (subs, constants, our variables).
func (s *Server) crossFileOccurrences(doc *document.Document, sym *analysis.Symbol, occs []occurrence) []occurrence {
	if sym.Kind != analysis.KindSubroutine && sym.Kind != analysis.KindConstant &&
		sym.Declarator != "our" && sym.Kind != analysis.KindPackage {
		return occs
	}
	for _, e := range s.index.FindRefs(sym.Qualified, sym.Kind, doc.URI) {
		occs = append(occs, occurrence{uri: e.URI, start: e.Span.Start, end: e.Span.End})
	}
	return occs
}

func (s *Server) references(ctx context.Context, params json.RawMessage) (any, error) {
	doc, off, ok, err := s.docAndOffset(params)
	if err != nil || !ok {
		return []lsp.Location{}, err
	}
	var p struct {
		Context struct {
			IncludeDeclaration bool `json:"includeDeclaration"`
		} `json:"context"`
	}
	_ = json.Unmarshal(params, &p)

	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	sym, occs := localOccurrences(doc, off)
	if sym == nil {
		return []lsp.Location{}, nil
	}
	occs = s.crossFileOccurrences(doc, sym, occs)

	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	out := make([]lsp.Location, 0, len(occs))
	for _, occ := range occs {
		if occ.decl && !p.Context.IncludeDeclaration {
			continue
		}
		if loc, ok := s.locationFor(occ.uri, occ.start, occ.end); ok {
			out = append(out, loc)
		}
	}
	return out, nil
}

func (s *Server) documentHighlight(ctx context.Context, params json.RawMessage) (any, error) {
	doc, off, ok, err := s.docAndOffset(params)
	if err != nil || !ok {
		return []lsp.DocumentHighlight{}, err
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	_, occs := localOccurrences(doc, off)
	out := make([]lsp.DocumentHighlight, 0, len(occs))
	for _, occ := range occs {
		kind := lsp.HighlightRead
		if occ.write {
			kind = lsp.HighlightWrite
		}
		out = append(out, lsp.DocumentHighlight{
			Range: s.rangeFor(doc, occ.start, occ.end),
			Kind:  kind,
		})
	}
	return out, nil
}
