package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.perlls.io/perlls/lsp"
)

func (s *Server) rename(ctx context.Context, params json.RawMessage) (any, error) {
	doc, off, ok, err := s.docAndOffset(params)
	if err != nil || !ok {
		return nil, err
	}
	var p struct {
		NewName string `json:"newName"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if !validIdentifier(p.NewName) {
		return nil, invalidParams(fmt.Errorf("%q is not a valid identifier", p.NewName))
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	sym, occs := localOccurrences(doc, off)
	if sym == nil {
		return nil, nil
	}

	// Reject renames that would collide with an existing binding of the
	// same kind in any scope holding an occurrence.
	for _, occ := range occs {
		if occ.uri != doc.URI {
			continue
		}
		scope := doc.Table.ScopeAt(occ.start)
		if existing := doc.Table.Resolve(p.NewName, sym.Kind, scope); len(existing) > 0 {
			return nil, invalidParams(fmt.Errorf(
				"rename would collide with existing %s %q", sym.Kind, p.NewName))
		}
	}

	occs = s.crossFileOccurrences(doc, sym, occs)
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	changes := map[string][]lsp.TextEdit{}
	for _, occ := range occs {
		target := s.openOrDiskSnapshot(occ.uri)
		if target == nil {
			continue
		}
		// The occurrence span covers the sigil for variables and may
		// cover a qualified name; replace only the final name part.
		start, end := occ.start, occ.end
		text := target.Text[start:end]
		if i := strings.LastIndex(text, "::"); i >= 0 {
			start += i + 2
		} else if len(text) > 0 {
			switch text[0] {
			case '$', '@', '%', '&':
				start++
			}
		}
		changes[occ.uri] = append(changes[occ.uri], lsp.TextEdit{
			Range:   s.rangeFor(target, start, end),
			NewText: p.NewName,
		})
	}
	if len(changes) == 0 {
		return nil, nil
	}
	return lsp.WorkspaceEdit{Changes: changes}, nil
}

func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
