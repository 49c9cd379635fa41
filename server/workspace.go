package server

import (
	"context"
	"encoding/json"
	"strings"

	"go.perlls.io/perlls/analysis"
	"go.perlls.io/perlls/fsext"
	"go.perlls.io/perlls/lsp"
)

func (s *Server) didChangeConfiguration(params json.RawMessage) {
	var p struct {
		Settings json.RawMessage `json:"settings"`
	}
	if err := json.Unmarshal(params, &p); err != nil || len(p.Settings) == 0 {
		// Some clients send empty settings and expect the server to pull
		// via workspace/configuration; ask and apply nothing for now.
		s.request("config-pull", "workspace/configuration", map[string]any{
			"items": []map[string]any{{"section": "perlls"}},
		})
		return
	}
	cfg, err := mergeJSONSettings(s.config.get(), p.Settings)
	if err != nil {
		s.logger.WithError(err).Warn("ignoring malformed configuration update")
		return
	}
	s.config.set(cfg)
	s.logger.Debug("configuration updated")
}

func (s *Server) didChangeWatchedFiles(params json.RawMessage) {
	var p struct {
		Changes []struct {
			URI  string `json:"uri"`
			Type int    `json:"type"` // 1 created, 2 changed, 3 deleted
		} `json:"changes"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	for _, change := range p.Changes {
		path, ok := fsext.URIToPath(change.URI)
		if !ok || !fsext.IsPerlFile(path) {
			continue
		}
		switch change.Type {
		case 3:
			s.index.RemoveFile(change.URI)
		default:
			// Open documents track the editor buffer, not the disk.
			if _, open := s.store.Get(change.URI); open {
				continue
			}
			s.indexer.enqueue(path)
		}
	}
}

func (s *Server) didChangeWorkspaceFolders(params json.RawMessage) {
	var p struct {
		Event struct {
			Added []struct {
				URI string `json:"uri"`
			} `json:"added"`
			Removed []struct {
				URI string `json:"uri"`
			} `json:"removed"`
		} `json:"event"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	for _, rm := range p.Event.Removed {
		root, ok := fsext.URIToPath(rm.URI)
		if !ok {
			continue
		}
		for i, r := range s.roots {
			if r == root {
				s.roots = append(s.roots[:i], s.roots[i+1:]...)
				break
			}
		}
		for _, uri := range s.index.URIs() {
			if path, ok := fsext.URIToPath(uri); ok && strings.HasPrefix(path, root) {
				s.index.RemoveFile(uri)
			}
		}
	}
	var added []string
	for _, ad := range p.Event.Added {
		if root, ok := fsext.URIToPath(ad.URI); ok {
			s.roots = append(s.roots, root)
			added = append(added, root)
		}
	}
	if len(added) > 0 {
		go s.indexer.scan(added)
	}
}

func (s *Server) didDeleteFiles(params json.RawMessage) {
	var p struct {
		Files []struct {
			URI string `json:"uri"`
		} `json:"files"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	for _, f := range p.Files {
		s.index.RemoveFile(f.URI)
		s.store.Close(f.URI)
	}
}

// willRenameFiles previews the import edits for a module file rename:
// every dependent's `use Old::Name` line is rewritten to the new module
// name.
func (s *Server) willRenameFiles(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Files []struct {
			OldURI string `json:"oldUri"`
			NewURI string `json:"newUri"`
		} `json:"files"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}

	changes := map[string][]lsp.TextEdit{}
	for _, f := range p.Files {
		oldPath, ok1 := fsext.URIToPath(f.OldURI)
		newPath, ok2 := fsext.URIToPath(f.NewURI)
		if !ok1 || !ok2 || !strings.HasSuffix(oldPath, ".pm") {
			continue
		}
		oldMod := fsext.PathToModule(oldPath, s.moduleRoots())
		newMod := fsext.PathToModule(newPath, s.moduleRoots())
		if oldMod == newMod {
			continue
		}
		for _, depURI := range s.index.FindDependents(oldMod) {
			if ctx.Err() != nil {
				return nil, lsp.ErrRequestCancelled
			}
			doc, ok := s.store.Get(depURI)
			if !ok {
				continue
			}
			for _, u := range doc.Table.Uses {
				if u.Module != oldMod {
					continue
				}
				changes[depURI] = append(changes[depURI], lsp.TextEdit{
					Range:   s.rangeFor(doc, u.Loc.Start, u.Loc.End),
					NewText: newMod,
				})
			}
		}
	}
	if len(changes) == 0 {
		return nil, nil
	}
	return lsp.WorkspaceEdit{Changes: changes}, nil
}

// moduleRoots returns the roots used for path↔module mapping: each
// workspace root plus its lib/ child, then the include paths.
func (s *Server) moduleRoots() []string {
	cfg := s.config.get()
	roots := make([]string, 0, len(s.roots)*2+len(cfg.IncludePaths))
	for _, r := range s.roots {
		roots = append(roots, r+"/lib", r)
	}
	roots = append(roots, cfg.IncludePaths...)
	return roots
}

func (s *Server) workspaceSymbol(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	const limit = 500
	hits := s.index.Query(p.Query, limit)
	out := make([]lsp.SymbolInformation, 0, len(hits))
	for _, hit := range hits {
		loc, ok := s.locationFor(hit.URI, hit.Span.Start, hit.Span.End)
		if !ok {
			continue
		}
		out = append(out, lsp.SymbolInformation{
			Name:          hit.Key.Name,
			Kind:          lspSymbolKind(hit.Key.Kind),
			Location:      loc,
			ContainerName: hit.Key.Package,
		})
	}
	return out, nil
}

// workspaceSymbolResolve is a pass-through: the symbols we emit are
// already fully resolved.
func (s *Server) workspaceSymbolResolve(_ context.Context, params json.RawMessage) (any, error) {
	var sym lsp.SymbolInformation
	if err := json.Unmarshal(params, &sym); err != nil {
		return nil, invalidParams(err)
	}
	return sym, nil
}

// locationFor builds a Location for a URI that may or may not be open.
// Closed files are read from disk to compute the position mapping.
func (s *Server) locationFor(uri string, start, end int) (lsp.Location, bool) {
	doc, ok := s.store.Get(uri)
	if !ok {
		path, isFile := fsext.URIToPath(uri)
		if !isFile {
			return lsp.Location{}, false
		}
		data, err := fsext.ReadFile(s.fs, path)
		if err != nil {
			return lsp.Location{}, false
		}
		doc = s.snapshotForText(uri, string(data))
	}
	return lsp.Location{URI: uri, Range: s.rangeFor(doc, start, end)}, true
}

func lspSymbolKind(k analysis.SymbolKind) int {
	switch k {
	case analysis.KindPackage:
		return lsp.SymbolKindPackage
	case analysis.KindSubroutine:
		return lsp.SymbolKindFunction
	case analysis.KindConstant:
		return lsp.SymbolKindConstant
	case analysis.KindArray:
		return lsp.SymbolKindArray
	case analysis.KindHash:
		return lsp.SymbolKindObject
	case analysis.KindLabel:
		return lsp.SymbolKindKey
	case analysis.KindFormat:
		return lsp.SymbolKindString
	default:
		return lsp.SymbolKindVariable
	}
}
