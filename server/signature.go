package server

import (
	"context"
	"encoding/json"
	"strings"

	"go.perlls.io/perlls/analysis"
	"go.perlls.io/perlls/ast"
	"go.perlls.io/perlls/builtins"
	"go.perlls.io/perlls/document"
	"go.perlls.io/perlls/lsp"
)

func (s *Server) signatureHelp(ctx context.Context, params json.RawMessage) (any, error) {
	doc, off, ok, err := s.docAndOffset(params)
	if err != nil || !ok {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	callee, activeParam, found := enclosingCall(doc.Text, off)
	if !found || callee == "" {
		return nil, nil
	}

	// User-defined sub first: local table, then the index.
	if sig := s.userSignature(doc, callee); sig != nil {
		return &lsp.SignatureHelp{
			Signatures:      []lsp.SignatureInformation{*sig},
			ActiveParameter: clampParam(activeParam, len(sig.Parameters)),
		}, nil
	}

	if fn, ok := builtins.Lookup(callee); ok {
		sig := lsp.SignatureInformation{
			Label:         fn.Signature,
			Documentation: fn.Doc,
		}
		for _, p := range fn.Params {
			sig.Parameters = append(sig.Parameters, lsp.ParameterInformation{Label: p})
		}
		return &lsp.SignatureHelp{
			Signatures:      []lsp.SignatureInformation{sig},
			ActiveParameter: clampParam(activeParam, len(sig.Parameters)),
		}, nil
	}
	return nil, nil
}

func clampParam(active, n int) int {
	if n == 0 {
		return 0
	}
	if active >= n {
		return n - 1
	}
	return active
}

// enclosingCall walks backward from the cursor through balanced brackets
// to the nearest unmatched '(' and returns the callee name before it plus
// the active argument index (top-level commas between the paren and the
// cursor).
func enclosingCall(text string, off int) (callee string, activeParam int, found bool) {
	if off > len(text) {
		off = len(text)
	}
	depth := 0
	commas := 0
	i := off - 1
	for i >= 0 {
		switch text[i] {
		case ')', ']', '}':
			depth++
		case '(', '[', '{':
			if depth == 0 {
				if text[i] != '(' {
					return "", 0, false
				}
				goto opened
			}
			depth--
		case ',':
			if depth == 0 {
				commas++
			}
		case ';':
			if depth == 0 {
				return "", 0, false
			}
		}
		i--
	}
	return "", 0, false

opened:
	// name (possibly qualified, possibly a method after ->) before '('
	j := i
	for j > 0 && (text[j-1] == ' ' || text[j-1] == '\t') {
		j--
	}
	end := j
	for j > 0 {
		c := text[j-1]
		if c == '_' || c == ':' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			j--
			continue
		}
		break
	}
	return text[j:end], commas, true
}

// userSignature derives a SignatureInformation for a user sub from its
// signature, its prototype, or the `my (...) = @_;` pattern in its body.
func (s *Server) userSignature(doc *document.Document, callee string) *lsp.SignatureInformation {
	sub := findSub(doc, bareName(callee))
	if sub == nil {
		// try the workspace: first definition wins
		for _, e := range s.findCrossFile(&analysis.Reference{Name: callee, Kind: analysis.KindSubroutine}) {
			if other := s.openOrDiskSnapshot(e.URI); other != nil {
				if sub = findSub(other, bareName(callee)); sub != nil {
					break
				}
			}
		}
	}
	if sub == nil {
		return nil
	}

	params := signatureParams(sub)
	label := "sub " + sub.Name
	if len(params) > 0 {
		label += "(" + strings.Join(params, ", ") + ")"
	} else if sub.Prototype != "" {
		label += sub.Prototype
	}
	sig := &lsp.SignatureInformation{Label: label}
	for _, p := range params {
		sig.Parameters = append(sig.Parameters, lsp.ParameterInformation{Label: p})
	}
	return sig
}

// findSub locates a named sub node in a document's AST.
func findSub(doc *document.Document, name string) *ast.Subroutine {
	var found *ast.Subroutine
	ast.Walk(doc.Root(), func(n ast.Node) bool {
		if found != nil {
			return false
		}
		if sub, ok := n.(*ast.Subroutine); ok && sub.Name == name {
			found = sub
			return false
		}
		return true
	})
	return found
}

// signatureParams extracts display parameters from a sub's signature or
// its leading `my (...) = @_;` statement.
func signatureParams(sub *ast.Subroutine) []string {
	var params []string
	for _, p := range sub.Signature {
		if decl, ok := p.(*ast.VariableDeclaration); ok {
			for _, v := range decl.Variables {
				params = append(params, v.Sigil+v.Name)
			}
		}
	}
	if len(params) > 0 || sub.Body == nil {
		return params
	}
	// my ($a, $b) = @_;
	for _, stmt := range sub.Body.Statements {
		decl, ok := stmt.(*ast.VariableDeclaration)
		if !ok || decl.Init == nil {
			continue
		}
		initVar, ok := decl.Init.(*ast.Variable)
		if !ok || initVar.Sigil != "@" || initVar.Name != "_" {
			continue
		}
		for _, v := range decl.Variables {
			params = append(params, v.Sigil+v.Name)
		}
		break
	}
	return params
}
