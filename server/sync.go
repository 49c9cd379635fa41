package server

import (
	"encoding/json"

	"go.perlls.io/perlls/document"
	"go.perlls.io/perlls/event"
	"go.perlls.io/perlls/lsp"
)

func (s *Server) didOpen(params json.RawMessage) {
	var p struct {
		TextDocument lsp.TextDocumentItem `json:"textDocument"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.WithError(err).Warn("malformed didOpen")
		return
	}
	doc := s.store.Open(p.TextDocument.URI, p.TextDocument.Version, p.TextDocument.Text)
	s.index.IndexTable(doc.URI, doc.Table)
	s.publishDiagnostics(doc)
	s.events.Emit(&event.Event{Type: event.DocumentOpened, Data: doc.URI})
}

func (s *Server) didChange(params json.RawMessage) {
	var p struct {
		TextDocument   lsp.VersionedTextDocumentIdentifier  `json:"textDocument"`
		ContentChanges []lsp.TextDocumentContentChangeEvent `json:"contentChanges"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.WithError(err).Warn("malformed didChange")
		return
	}
	prev, ok := s.store.Get(p.TextDocument.URI)
	if !ok {
		s.logger.WithField("uri", p.TextDocument.URI).Warn("didChange for unopened document")
		return
	}

	text := prev.Text
	for _, change := range p.ContentChanges {
		if change.Range == nil {
			text = change.Text
			continue
		}
		// Range edits are resolved against the evolving text through a
		// transient snapshot; the protocol guarantees in-order changes.
		base := prev
		if text != prev.Text {
			base = document.New(prev.URI, prev.Version, text)
		}
		start := document.Position{Line: change.Range.Start.Line, Character: change.Range.Start.Character}
		end := document.Position{Line: change.Range.End.Line, Character: change.Range.End.Character}
		text = document.SpliceChange(base, &start, &end, change.Text)
	}

	version := prev.Version + 1
	if p.TextDocument.Version != nil {
		version = *p.TextDocument.Version
	}
	doc, err := s.store.Change(p.TextDocument.URI, version, text)
	if err != nil {
		s.logger.WithError(err).Debug("didChange discarded")
		return
	}
	s.index.IndexTable(doc.URI, doc.Table)
	s.publishDiagnostics(doc)
	s.events.Emit(&event.Event{Type: event.DocumentChanged, Data: doc.URI})
}

func (s *Server) didClose(params json.RawMessage) {
	var p struct {
		TextDocument lsp.TextDocumentIdentifier `json:"textDocument"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	s.store.Close(p.TextDocument.URI)
	// Closed files keep their index entries; they still exist on disk
	// and other files reference them. Diagnostics are cleared.
	s.notify("textDocument/publishDiagnostics", lsp.PublishDiagnosticsParams{
		URI:         p.TextDocument.URI,
		Diagnostics: []lsp.Diagnostic{},
	})
	s.events.Emit(&event.Event{Type: event.DocumentClosed, Data: p.TextDocument.URI})
}

func (s *Server) didSave(params json.RawMessage) {
	var p struct {
		TextDocument lsp.TextDocumentIdentifier `json:"textDocument"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	if doc, ok := s.store.Get(p.TextDocument.URI); ok {
		s.index.IndexTable(doc.URI, doc.Table)
	}
}

// publishDiagnostics converts the snapshot's parse problems plus the
// pragma lints into a publishDiagnostics notification.
func (s *Server) publishDiagnostics(doc *document.Document) {
	diags := make([]lsp.Diagnostic, 0, len(doc.Parse.Problems))
	for _, prob := range doc.Parse.Problems {
		diags = append(diags, lsp.Diagnostic{
			Range:    s.rangeFor(doc, prob.Start, prob.End),
			Severity: lsp.SeverityError,
			Source:   "perlls",
			Message:  prob.Msg,
		})
	}
	diags = append(diags, pragmaLints(doc)...)

	version := doc.Version
	s.notify("textDocument/publishDiagnostics", lsp.PublishDiagnosticsParams{
		URI:         doc.URI,
		Version:     &version,
		Diagnostics: diags,
	})
	s.events.Emit(&event.Event{Type: event.DiagnosticsPublished, Data: doc.URI})
}

// pragmaLints flags missing `use strict`/`use warnings` on script-looking
// files as information-level diagnostics.
func pragmaLints(doc *document.Document) []lsp.Diagnostic {
	if doc.Table == nil || len(doc.Text) == 0 {
		return nil
	}
	var hasStrict, hasWarnings bool
	for _, u := range doc.Table.Uses {
		switch u.Module {
		case "strict":
			hasStrict = true
		case "warnings":
			hasWarnings = true
		case "Modern::Perl", "Moose", "Moo", "Mojolicious::Lite":
			hasStrict, hasWarnings = true, true
		}
		// `use v5.36` and later imply strict and warnings.
		if len(u.Module) > 0 && (u.Module[0] == 'v' || u.Module[0] == '5') {
			hasStrict = true
			hasWarnings = true
		}
	}
	var out []lsp.Diagnostic
	head := lsp.Range{Start: lsp.Position{Line: 0, Character: 0}, End: lsp.Position{Line: 0, Character: 0}}
	if !hasStrict {
		out = append(out, lsp.Diagnostic{
			Range: head, Severity: lsp.SeverityInformation, Source: "perlls",
			Code: "missing-strict", Message: "file does not `use strict`",
		})
	}
	if !hasWarnings {
		out = append(out, lsp.Diagnostic{
			Range: head, Severity: lsp.SeverityInformation, Source: "perlls",
			Code: "missing-warnings", Message: "file does not `use warnings`",
		})
	}
	return out
}

// rangeFor converts a byte span to a protocol range.
func (s *Server) rangeFor(doc *document.Document, start, end int) lsp.Range {
	sp := doc.OffsetToPosition(start)
	ep := doc.OffsetToPosition(end)
	return lsp.Range{
		Start: lsp.Position{Line: sp.Line, Character: sp.Character},
		End:   lsp.Position{Line: ep.Line, Character: ep.Character},
	}
}

// DiagnosticsFor is the batch-mode entry used by `perlls check`: parse
// one buffer and return its diagnostics without any server state.
func DiagnosticsFor(uri, text string) []lsp.Diagnostic {
	doc := document.New(uri, 0, text)
	diags := make([]lsp.Diagnostic, 0, len(doc.Parse.Problems))
	for _, prob := range doc.Parse.Problems {
		sp := doc.OffsetToPosition(prob.Start)
		ep := doc.OffsetToPosition(prob.End)
		diags = append(diags, lsp.Diagnostic{
			Range: lsp.Range{
				Start: lsp.Position{Line: sp.Line, Character: sp.Character},
				End:   lsp.Position{Line: ep.Line, Character: ep.Character},
			},
			Severity: lsp.SeverityError,
			Source:   "perlls",
			Message:  prob.Msg,
		})
	}
	return diags
}
