package server

import (
	"context"
	"encoding/json"

	"go.perlls.io/perlls/ast"
	"go.perlls.io/perlls/document"
	"go.perlls.io/perlls/lsp"
)

// inlayHint mirrors the protocol InlayHint structure.
type inlayHint struct {
	Position lsp.Position `json:"position"`
	Label    string       `json:"label"`
	Kind     int          `json:"kind,omitempty"` // 1 type, 2 parameter
	PaddingRight bool     `json:"paddingRight,omitempty"`
}

const (
	inlayKindType      = 1
	inlayKindParameter = 2
)

// inlayHints serves textDocument/inlayHint: parameter-name hints at call
// sites whose callee signature is known, gated by the inlayHints config.
func (s *Server) inlayHints(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TextDocument lsp.TextDocumentIdentifier `json:"textDocument"`
		Range        lsp.Range                  `json:"range"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}

	cfg := s.config.get().InlayHints
	if !cfg.Enabled || !cfg.ParameterHints {
		return []inlayHint{}, nil
	}
	doc, ok := s.store.Get(p.TextDocument.URI)
	if !ok || doc.Root() == nil {
		return []inlayHint{}, nil
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	from := doc.PositionToOffset(document.Position{Line: p.Range.Start.Line, Character: p.Range.Start.Character})
	to := doc.PositionToOffset(document.Position{Line: p.Range.End.Line, Character: p.Range.End.Character})
	if to == 0 {
		to = len(doc.Text)
	}

	hints := make([]inlayHint, 0, 16)
	ast.Walk(doc.Root(), func(n ast.Node) bool {
		call, ok := n.(*ast.FunctionCall)
		if !ok || len(call.Args) == 0 {
			return true
		}
		if sp := call.Span(); sp.End < from || sp.Start > to {
			return true
		}
		sub := findSub(doc, bareName(call.Name))
		if sub == nil {
			return true
		}
		names := signatureParams(sub)
		for i, arg := range call.Args {
			if i >= len(names) {
				break
			}
			// hinting `f($count)` with "$count:" is noise
			if v, ok := arg.(*ast.Variable); ok && v.Sigil+v.Name == names[i] {
				continue
			}
			label := names[i]
			if cfg.MaxLength > 0 && len(label) > cfg.MaxLength {
				label = label[:cfg.MaxLength]
			}
			pos := doc.OffsetToPosition(arg.Span().Start)
			hints = append(hints, inlayHint{
				Position:     lsp.Position{Line: pos.Line, Character: pos.Character},
				Label:        label + ":",
				Kind:         inlayKindParameter,
				PaddingRight: true,
			})
		}
		return true
	})
	return hints, nil
}
