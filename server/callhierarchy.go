package server

import (
	"context"
	"encoding/json"

	"go.perlls.io/perlls/analysis"
	"go.perlls.io/perlls/ast"
	"go.perlls.io/perlls/document"
	"go.perlls.io/perlls/lsp"
)

func (s *Server) prepareCallHierarchy(ctx context.Context, params json.RawMessage) (any, error) {
	doc, off, ok, err := s.docAndOffset(params)
	if err != nil || !ok {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	sym, _ := symbolAt(doc, off)
	if sym == nil || sym.Kind != analysis.KindSubroutine {
		return nil, nil
	}
	sub := findSub(doc, sym.Name)
	rng := s.rangeFor(doc, sym.Loc.Start, sym.Loc.End)
	full := rng
	if sub != nil {
		full = s.rangeFor(doc, sub.Loc.Start, sub.Loc.End)
	}
	return []lsp.CallHierarchyItem{{
		Name:           sym.Name,
		Kind:           lsp.SymbolKindFunction,
		Detail:         sym.Qualified,
		URI:            doc.URI,
		Range:          full,
		SelectionRange: rng,
	}}, nil
}

// incomingCalls finds call-shaped references to the item across the open
// documents and the workspace index, grouped by the calling sub.
func (s *Server) incomingCalls(ctx context.Context, params json.RawMessage) (any, error) {
	item, err := decodeHierarchyItem(params)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	// Collect every URI that may reference the target.
	uris := s.store.URIs()
	seen := map[string]bool{}
	for _, uri := range uris {
		seen[uri] = true
	}
	for _, e := range s.index.FindRefs(item.Detail, analysis.KindSubroutine, "") {
		if !seen[e.URI] {
			seen[e.URI] = true
			uris = append(uris, e.URI)
		}
	}

	var out []lsp.CallHierarchyIncomingCall
	for _, uri := range uris {
		if ctx.Err() != nil {
			return nil, lsp.ErrRequestCancelled
		}
		doc := s.openOrDiskSnapshot(uri)
		if doc == nil || doc.Table == nil {
			continue
		}
		byCaller := map[*ast.Subroutine][]lsp.Range{}
		var topLevel []lsp.Range
		for _, ref := range doc.Table.References[bareName(item.Name)] {
			if ref.Kind != analysis.KindSubroutine {
				continue
			}
			if caller := enclosingSub(doc, ref.Loc.Start); caller != nil {
				byCaller[caller] = append(byCaller[caller], s.rangeFor(doc, ref.Loc.Start, ref.Loc.End))
			} else {
				topLevel = append(topLevel, s.rangeFor(doc, ref.Loc.Start, ref.Loc.End))
			}
		}
		for caller, ranges := range byCaller {
			out = append(out, lsp.CallHierarchyIncomingCall{
				From: lsp.CallHierarchyItem{
					Name:           caller.Name,
					Kind:           lsp.SymbolKindFunction,
					URI:            uri,
					Range:          s.rangeFor(doc, caller.Loc.Start, caller.Loc.End),
					SelectionRange: s.rangeFor(doc, caller.NameLoc.Start, caller.NameLoc.End),
				},
				FromRanges: ranges,
			})
		}
		if len(topLevel) > 0 {
			out = append(out, lsp.CallHierarchyIncomingCall{
				From: lsp.CallHierarchyItem{
					Name:           "(file)",
					Kind:           lsp.SymbolKindFile,
					URI:            uri,
					Range:          s.rangeFor(doc, 0, len(doc.Text)),
					SelectionRange: s.rangeFor(doc, 0, 0),
				},
				FromRanges: topLevel,
			})
		}
	}
	return out, nil
}

// outgoingCalls lists the calls made inside the item's body.
func (s *Server) outgoingCalls(ctx context.Context, params json.RawMessage) (any, error) {
	item, err := decodeHierarchyItem(params)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	doc := s.openOrDiskSnapshot(item.URI)
	if doc == nil {
		return nil, nil
	}
	sub := findSub(doc, bareName(item.Name))
	if sub == nil || sub.Body == nil {
		return nil, nil
	}

	type callee struct {
		name string
	}
	calls := map[callee][]lsp.Range{}
	ast.Walk(sub.Body, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.FunctionCall:
			if node.Name != "" {
				calls[callee{node.Name}] = append(calls[callee{node.Name}],
					s.rangeFor(doc, node.NameLoc.Start, node.NameLoc.End))
			}
		case *ast.MethodCall:
			if node.Method != "" {
				calls[callee{node.Method}] = append(calls[callee{node.Method}],
					s.rangeFor(doc, node.MethodLoc.Start, node.MethodLoc.End))
			}
		}
		return true
	})

	var out []lsp.CallHierarchyOutgoingCall
	for c, ranges := range calls {
		target, ok := s.calleeItem(doc, c.name)
		if !ok {
			continue
		}
		out = append(out, lsp.CallHierarchyOutgoingCall{To: target, FromRanges: ranges})
	}
	return out, nil
}

// calleeItem resolves a call target to a hierarchy item, locally first
// and then through the index. Builtins are not navigable and drop out.
func (s *Server) calleeItem(doc *document.Document, name string) (lsp.CallHierarchyItem, bool) {
	if sub := findSub(doc, bareName(name)); sub != nil {
		return lsp.CallHierarchyItem{
			Name:           sub.Name,
			Kind:           lsp.SymbolKindFunction,
			URI:            doc.URI,
			Range:          s.rangeFor(doc, sub.Loc.Start, sub.Loc.End),
			SelectionRange: s.rangeFor(doc, sub.NameLoc.Start, sub.NameLoc.End),
		}, true
	}
	ref := &analysis.Reference{Name: name, Kind: analysis.KindSubroutine}
	for _, e := range s.findCrossFile(ref) {
		target := s.openOrDiskSnapshot(e.URI)
		if target == nil {
			continue
		}
		return lsp.CallHierarchyItem{
			Name:           bareName(name),
			Kind:           lsp.SymbolKindFunction,
			URI:            e.URI,
			Range:          s.rangeFor(target, e.Span.Start, e.Span.End),
			SelectionRange: s.rangeFor(target, e.Span.Start, e.Span.End),
		}, true
	}
	return lsp.CallHierarchyItem{}, false
}

// enclosingSub returns the named sub whose body contains the offset.
func enclosingSub(doc *document.Document, off int) *ast.Subroutine {
	var found *ast.Subroutine
	ast.Walk(doc.Root(), func(n ast.Node) bool {
		if !n.Span().Contains(off) {
			return false
		}
		if sub, ok := n.(*ast.Subroutine); ok && sub.Name != "" {
			found = sub
		}
		return true
	})
	return found
}

func decodeHierarchyItem(params json.RawMessage) (lsp.CallHierarchyItem, error) {
	var p struct {
		Item lsp.CallHierarchyItem `json:"item"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return lsp.CallHierarchyItem{}, invalidParams(err)
	}
	return p.Item, nil
}
