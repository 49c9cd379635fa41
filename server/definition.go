package server

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.perlls.io/perlls/analysis"
	"go.perlls.io/perlls/document"
	"go.perlls.io/perlls/fsext"
	"go.perlls.io/perlls/index"
	"go.perlls.io/perlls/lsp"
)

// definition serves definition, declaration, typeDefinition and
// implementation; for Perl the four collapse onto the same answer.
// Resolution order: local scope chain, exact qualified key in the
// workspace index, bare-name fallback, then `use Module` file targets.
func (s *Server) definition(ctx context.Context, params json.RawMessage) (any, error) {
	doc, off, ok, err := s.docAndOffset(params)
	if err != nil || !ok {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	// On a `use Module` line, jump to the module file.
	if loc, ok := s.moduleDefinition(ctx, doc, off); ok {
		return s.emitLocations(doc, off, []lsp.Location{loc}), nil
	}

	sym, ref := symbolAt(doc, off)
	if sym != nil {
		loc := lsp.Location{URI: doc.URI, Range: s.rangeFor(doc, sym.Loc.Start, sym.Loc.End)}
		return s.emitLocations(doc, off, []lsp.Location{loc}), nil
	}

	if ref == nil {
		// Maybe the cursor is on a bareword that names a sub or package.
		word, span := doc.WordAt(off)
		if word == "" {
			return nil, nil
		}
		word = strings.TrimLeft(word, "$@%&")
		ref = &analysis.Reference{
			Name:  word,
			Kind:  analysis.KindSubroutine,
			Loc:   span,
			Scope: doc.Table.ScopeAt(off),
		}
	}

	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	var locs []lsp.Location
	for _, e := range s.findCrossFile(ref) {
		if loc, ok := s.locationFor(e.URI, e.Span.Start, e.Span.End); ok {
			locs = append(locs, loc)
		}
	}
	if len(locs) == 0 {
		// On a `use Module` line, jump to the module file.
		if loc, ok := s.moduleDefinition(ctx, doc, off); ok {
			return s.emitLocations(doc, off, []lsp.Location{loc}), nil
		}
		return nil, nil
	}
	return s.emitLocations(doc, off, locs), nil
}

// findCrossFile queries the index for a reference: exact qualified key
// first, then the same name under main::, then the bare-name fallback.
func (s *Server) findCrossFile(ref *analysis.Reference) []index.Entry {
	if strings.Contains(ref.Name, "::") {
		key := index.ParseKey(ref.Name, ref.Kind)
		if entries := s.index.FindDef(key); len(entries) > 0 {
			return entries
		}
		// A qualified miss can still hit as a package symbol
		// (Foo::Bar->new resolves Foo::Bar).
		if entries := s.index.FindDef(index.SymbolKey{Name: ref.Name, Kind: analysis.KindPackage}); len(entries) > 0 {
			return entries
		}
	}

	if entries := s.index.FindDef(index.SymbolKey{
		Package: analysis.DefaultPackage, Name: ref.Name, Kind: ref.Kind,
	}); len(entries) > 0 {
		return entries
	}

	var out []index.Entry
	for _, be := range s.index.FindBare(bareName(ref.Name)) {
		if be.Key.Kind != ref.Kind && be.Key.Kind != analysis.KindPackage {
			continue
		}
		out = append(out, index.Entry{URI: be.URI, Span: be.Span})
	}
	return out
}

// moduleDefinition resolves `use Foo::Bar` under the cursor to the file
// defining the module. The filesystem probing is bounded by the
// configured resolution timeout.
func (s *Server) moduleDefinition(ctx context.Context, doc *document.Document, off int) (lsp.Location, bool) {
	if doc.Table == nil {
		return lsp.Location{}, false
	}
	var use *analysis.Use
	for i := range doc.Table.Uses {
		if doc.Table.Uses[i].Loc.Contains(off) {
			use = &doc.Table.Uses[i]
			break
		}
	}
	if use == nil || use.Module == "" || !strings.Contains(use.Module, "::") && !isModuleName(use.Module) {
		return lsp.Location{}, false
	}

	cfg := s.config.get()
	resolved := make(chan string, 1)
	go func() {
		if path, ok := fsext.ResolveModule(s.fs, use.Module, s.roots, cfg.searchPaths()); ok {
			resolved <- path
		}
		close(resolved)
	}()

	timer := time.NewTimer(cfg.ResolutionTimeout())
	defer timer.Stop()
	select {
	case path, ok := <-resolved:
		if !ok || path == "" {
			return lsp.Location{}, false
		}
		uri := fsext.FileURI(path)
		if loc, ok := s.locationFor(uri, 0, 0); ok {
			return loc, true
		}
		return lsp.Location{URI: uri}, true
	case <-timer.C:
		s.logger.WithField("module", use.Module).Debug("module resolution timed out")
		return lsp.Location{}, false
	case <-ctx.Done():
		return lsp.Location{}, false
	}
}

// isModuleName filters pragmas and version numbers out of module
// navigation.
func isModuleName(m string) bool {
	if m == "" || m[0] >= '0' && m[0] <= '9' || m[0] == 'v' && len(m) > 1 && m[1] >= '0' && m[1] <= '9' {
		return false
	}
	switch m {
	case "strict", "warnings", "utf8", "constant", "lib", "vars", "base", "parent", "feature":
		return false
	}
	return m[0] >= 'A' && m[0] <= 'Z'
}

// emitLocations shapes the result per the client's linkSupport.
func (s *Server) emitLocations(doc *document.Document, off int, locs []lsp.Location) any {
	if !s.clientCap.definitionLinkSupport {
		return locs
	}
	_, originSpan := doc.WordAt(off)
	origin := s.rangeFor(doc, originSpan.Start, originSpan.End)
	links := make([]lsp.LocationLink, 0, len(locs))
	for _, loc := range locs {
		links = append(links, lsp.LocationLink{
			OriginSelectionRange: &origin,
			TargetURI:            loc.URI,
			TargetRange:          loc.Range,
			TargetSelectionRange: loc.Range,
		})
	}
	return links
}

// locationDocFromDisk parses a closed file for span conversion.
func (s *Server) locationDocFromDisk(uri string) (*document.Document, bool) {
	path, ok := fsext.URIToPath(uri)
	if !ok {
		return nil, false
	}
	data, err := fsext.ReadFile(s.fs, path)
	if err != nil {
		return nil, false
	}
	return s.snapshotForText(uri, string(data)), true
}
