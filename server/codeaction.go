package server

import (
	"context"
	"encoding/json"
	"strings"

	"go.perlls.io/perlls/lsp"
)

// codeAction derives quick fixes from the diagnostics the client sent
// back in the request context.
func (s *Server) codeAction(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TextDocument lsp.TextDocumentIdentifier `json:"textDocument"`
		Range        lsp.Range                  `json:"range"`
		Context      struct {
			Diagnostics []lsp.Diagnostic `json:"diagnostics"`
		} `json:"context"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	doc, ok := s.store.Get(p.TextDocument.URI)
	if !ok {
		return []lsp.CodeAction{}, nil
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	var actions []lsp.CodeAction
	for _, diag := range p.Context.Diagnostics {
		switch diag.Code {
		case "missing-strict":
			actions = append(actions, insertTopAction(doc.URI, "Add `use strict;`", "use strict;\n", diag))
		case "missing-warnings":
			actions = append(actions, insertTopAction(doc.URI, "Add `use warnings;`", "use warnings;\n", diag))
		default:
			if strings.Contains(diag.Message, "expected Semicolon") ||
				strings.Contains(diag.Message, `expected ";"`) {
				actions = append(actions, lsp.CodeAction{
					Title:       "Insert missing semicolon",
					Kind:        "quickfix",
					Diagnostics: []lsp.Diagnostic{diag},
					Edit: &lsp.WorkspaceEdit{Changes: map[string][]lsp.TextEdit{
						doc.URI: {{
							Range:   lsp.Range{Start: diag.Range.Start, End: diag.Range.Start},
							NewText: ";",
						}},
					}},
				})
			}
		}
	}
	return actions, nil
}

func insertTopAction(uri, title, text string, diag lsp.Diagnostic) lsp.CodeAction {
	top := lsp.Range{Start: lsp.Position{Line: 0, Character: 0}, End: lsp.Position{Line: 0, Character: 0}}
	return lsp.CodeAction{
		Title:       title,
		Kind:        "quickfix",
		Diagnostics: []lsp.Diagnostic{diag},
		Edit: &lsp.WorkspaceEdit{Changes: map[string][]lsp.TextEdit{
			uri: {{Range: top, NewText: text}},
		}},
	}
}

// formatting is deliberately conservative: whitespace-only edits
// (trailing-space removal, final newline). A file that does not parse
// cleanly gets no edits at all.
func (s *Server) formatting(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		TextDocument lsp.TextDocumentIdentifier `json:"textDocument"`
		Options      struct {
			InsertFinalNewline bool `json:"insertFinalNewline"`
			TrimTrailingWhitespace *bool `json:"trimTrailingWhitespace"`
		} `json:"options"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	doc, ok := s.store.Get(p.TextDocument.URI)
	if !ok {
		return []lsp.TextEdit{}, nil
	}
	if doc.Parse.HasErrors() {
		return []lsp.TextEdit{}, nil
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	trim := true
	if p.Options.TrimTrailingWhitespace != nil {
		trim = *p.Options.TrimTrailingWhitespace
	}

	var edits []lsp.TextEdit
	if trim {
		for line := 0; line < len(doc.Lines); line++ {
			start := doc.Lines[line]
			end := doc.LineEndOffset(line)
			content := doc.Text[start:end]
			trimmed := strings.TrimRight(content, " \t")
			if len(trimmed) != len(content) {
				edits = append(edits, lsp.TextEdit{
					Range:   s.rangeFor(doc, start+len(trimmed), end),
					NewText: "",
				})
			}
		}
	}
	if len(doc.Text) > 0 && !strings.HasSuffix(doc.Text, "\n") {
		edits = append(edits, lsp.TextEdit{
			Range:   s.rangeFor(doc, len(doc.Text), len(doc.Text)),
			NewText: "\n",
		})
	}
	return edits, nil
}
