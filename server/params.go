package server

import (
	"encoding/json"
	"fmt"

	"go.perlls.io/perlls/analysis"
	"go.perlls.io/perlls/document"
	"go.perlls.io/perlls/lsp"
)

// positionParams is the common {textDocument, position} request shape.
type positionParams struct {
	TextDocument lsp.VersionedTextDocumentIdentifier `json:"textDocument"`
	Position     lsp.Position                        `json:"position"`
}

// docAndOffset decodes position params and returns the snapshot plus the
// byte offset of the position. Handlers tolerate absent documents by
// receiving ok=false and returning empty results.
func (s *Server) docAndOffset(params json.RawMessage) (*document.Document, int, bool, error) {
	var p positionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, 0, false, invalidParams(err)
	}
	if p.TextDocument.URI == "" {
		return nil, 0, false, invalidParams(fmt.Errorf("missing textDocument.uri"))
	}
	doc, ok := s.store.Get(p.TextDocument.URI)
	if !ok {
		return nil, 0, false, nil
	}
	off := doc.PositionToOffset(document.Position{
		Line:      p.Position.Line,
		Character: p.Position.Character,
	})
	return doc, off, true, nil
}

// symbolAt resolves whatever sits at the offset to its best local
// definition: a definition site itself, or a reference resolved through
// the scope chain.
func symbolAt(doc *document.Document, off int) (*analysis.Symbol, *analysis.Reference) {
	table := doc.Table
	if table == nil {
		return nil, nil
	}
	if sym := table.SymbolAt(off); sym != nil {
		return sym, nil
	}
	ref := table.ReferenceAt(off)
	if ref == nil {
		return nil, nil
	}
	if syms := table.Resolve(bareName(ref.Name), ref.Kind, ref.Scope); len(syms) > 0 {
		return syms[0], ref
	}
	return nil, ref
}

func bareName(name string) string {
	for i := len(name) - 2; i >= 0; i-- {
		if name[i] == ':' && name[i+1] == ':' {
			return name[i+2:]
		}
	}
	return name
}
