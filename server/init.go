package server

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"go.perlls.io/perlls/fsext"
	"go.perlls.io/perlls/lsp"
)

// serverInfo identifies the server in the initialize response.
var serverInfo = map[string]any{
	"name":    "perlls",
	"version": Version,
}

// Version is the server version reported to clients; overridden at build
// time by the release linker flags.
var Version = "dev"

func (s *Server) initialize(params json.RawMessage) (any, *lsp.ResponseError) {
	if s.initialized.Load() {
		return nil, lsp.NewError(lsp.CodeInvalidRequest, "server already initialized")
	}

	// Workspace roots: workspaceFolders when present, else rootUri.
	folders := gjson.GetBytes(params, "workspaceFolders")
	if folders.IsArray() {
		for _, f := range folders.Array() {
			if p, ok := fsext.URIToPath(f.Get("uri").String()); ok {
				s.roots = append(s.roots, p)
			}
		}
	}
	if len(s.roots) == 0 {
		if p, ok := fsext.URIToPath(gjson.GetBytes(params, "rootUri").String()); ok && p != "" {
			s.roots = append(s.roots, p)
		}
	}

	caps := gjson.GetBytes(params, "capabilities")
	s.clientCap = clientCapabilities{
		definitionLinkSupport:       caps.Get("textDocument.definition.linkSupport").Bool(),
		hierarchicalDocumentSymbols: caps.Get("textDocument.documentSymbol.hierarchicalDocumentSymbolSupport").Bool(),
		snippetSupport:              caps.Get("textDocument.completion.completionItem.snippetSupport").Bool(),
	}

	// Layer the workspace config file over whatever the CLI provided.
	if len(s.roots) > 0 {
		cfg, err := LoadWorkspaceConfig(s.fs, s.roots[0], s.config.get())
		if err != nil {
			s.logger.WithError(err).Warn("ignoring malformed .perlls.yaml")
		} else {
			s.config.set(cfg)
		}
	}

	s.initialized.Store(true)
	s.logger.WithField("roots", s.roots).Info("initialized")

	return map[string]any{
		"serverInfo": serverInfo,
		"capabilities": map[string]any{
			"textDocumentSync": map[string]any{
				"openClose": true,
				"change":    2, // incremental
				"save":      map[string]any{"includeText": false},
			},
			"hoverProvider":             true,
			"definitionProvider":        true,
			"declarationProvider":       true,
			"typeDefinitionProvider":    true,
			"implementationProvider":    true,
			"referencesProvider":        true,
			"documentHighlightProvider": true,
			"documentSymbolProvider":    true,
			"workspaceSymbolProvider":   true,
			"renameProvider":            true,
			"inlayHintProvider":         true,
			"callHierarchyProvider":     true,
			"codeActionProvider":        true,
			"documentFormattingProvider": true,
			"completionProvider": map[string]any{
				"triggerCharacters": []string{"$", "@", "%", ">", ":"},
				"resolveProvider":   true,
			},
			"signatureHelpProvider": map[string]any{
				"triggerCharacters": []string{"(", ","},
			},
			"semanticTokensProvider": map[string]any{
				"legend": map[string]any{
					"tokenTypes":     lsp.SemanticTokenTypes,
					"tokenModifiers": lsp.SemanticTokenModifiers,
				},
				"full": true,
			},
			"workspace": map[string]any{
				"workspaceFolders": map[string]any{
					"supported":           true,
					"changeNotifications": true,
				},
				"fileOperations": map[string]any{
					"willRename": map[string]any{
						"filters": []map[string]any{
							{"pattern": map[string]any{"glob": "**/*.{pl,pm,t}"}},
						},
					},
				},
			},
		},
	}, nil
}
