package server

import (
	"context"
	"encoding/json"

	"go.perlls.io/perlls/analysis"
	"go.perlls.io/perlls/ast"
	"go.perlls.io/perlls/document"
	"go.perlls.io/perlls/lsp"
)

// documentSymbol builds the outline. Clients with hierarchical support
// get packages containing subs and our-variables; older clients get the
// flat SymbolInformation form.
func (s *Server) documentSymbol(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TextDocument lsp.TextDocumentIdentifier `json:"textDocument"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	doc, ok := s.store.Get(p.TextDocument.URI)
	if !ok || doc.Root() == nil {
		return []lsp.DocumentSymbol{}, nil
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	if s.clientCap.hierarchicalDocumentSymbols {
		return s.outline(doc, doc.Root().Statements), nil
	}

	var flat []lsp.SymbolInformation
	doc.Table.AllSymbols(func(sym *analysis.Symbol) {
		if sym.Kind == analysis.KindLabel {
			return
		}
		flat = append(flat, lsp.SymbolInformation{
			Name:     sym.Name,
			Kind:     lspSymbolKind(sym.Kind),
			Location: lsp.Location{URI: doc.URI, Range: s.rangeFor(doc, sym.Loc.Start, sym.Loc.End)},
		})
	})
	return flat, nil
}

// outline converts top-level statements to DocumentSymbols, recursing
// into package blocks.
func (s *Server) outline(doc *document.Document, stmts []ast.Node) []lsp.DocumentSymbol {
	var out []lsp.DocumentSymbol
	i := 0
	for i < len(stmts) {
		stmt := stmts[i]
		switch node := stmt.(type) {
		case *ast.Package:
			pkg := lsp.DocumentSymbol{
				Name:           node.Name,
				Kind:           lsp.SymbolKindPackage,
				Range:          s.rangeFor(doc, node.Loc.Start, node.Loc.End),
				SelectionRange: s.rangeFor(doc, node.NameLoc.Start, node.NameLoc.End),
			}
			if node.Block != nil {
				pkg.Children = s.outline(doc, node.Block.Statements)
				i++
			} else {
				// Block-less package: claim the following statements
				// until the next package declaration.
				j := i + 1
				for j < len(stmts) {
					if _, isPkg := stmts[j].(*ast.Package); isPkg {
						break
					}
					j++
				}
				pkg.Children = s.outline(doc, stmts[i+1:j])
				if j > i+1 {
					last := stmts[j-1].Span().End
					pkg.Range = s.rangeFor(doc, node.Loc.Start, last)
				}
				i = j
			}
			out = append(out, pkg)
			continue

		case *ast.Subroutine:
			if node.Name != "" {
				out = append(out, lsp.DocumentSymbol{
					Name:           node.Name,
					Detail:         subDetail(node),
					Kind:           lsp.SymbolKindFunction,
					Range:          s.rangeFor(doc, node.Loc.Start, node.Loc.End),
					SelectionRange: s.rangeFor(doc, node.NameLoc.Start, node.NameLoc.End),
				})
			}

		case *ast.VariableDeclaration:
			if node.Declarator == "our" {
				for _, v := range node.Variables {
					out = append(out, lsp.DocumentSymbol{
						Name:           v.Sigil + v.Name,
						Detail:         "our",
						Kind:           variableSymbolKind(v.Sigil),
						Range:          s.rangeFor(doc, node.Loc.Start, node.Loc.End),
						SelectionRange: s.rangeFor(doc, v.Loc.Start, v.Loc.End),
					})
				}
			}

		case *ast.Use:
			if node.Module == "constant" {
				// surfaced through the symbol table as constants
				for _, sym := range constantsIn(doc, node) {
					out = append(out, lsp.DocumentSymbol{
						Name:           sym.Name,
						Kind:           lsp.SymbolKindConstant,
						Range:          s.rangeFor(doc, node.Loc.Start, node.Loc.End),
						SelectionRange: s.rangeFor(doc, sym.Loc.Start, sym.Loc.End),
					})
				}
			}
		}
		i++
	}
	return out
}

func constantsIn(doc *document.Document, use *ast.Use) []*analysis.Symbol {
	var out []*analysis.Symbol
	doc.Table.AllSymbols(func(sym *analysis.Symbol) {
		if sym.Kind == analysis.KindConstant && use.Loc.Covers(sym.Loc) {
			out = append(out, sym)
		}
	})
	return out
}

func subDetail(sub *ast.Subroutine) string {
	params := signatureParams(sub)
	if len(params) == 0 {
		return ""
	}
	detail := "("
	for i, p := range params {
		if i > 0 {
			detail += ", "
		}
		detail += p
	}
	return detail + ")"
}

func variableSymbolKind(sigil string) int {
	switch sigil {
	case "@":
		return lsp.SymbolKindArray
	case "%":
		return lsp.SymbolKindObject
	default:
		return lsp.SymbolKindVariable
	}
}
