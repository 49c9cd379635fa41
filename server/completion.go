package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.perlls.io/perlls/analysis"
	"go.perlls.io/perlls/builtins"
	"go.perlls.io/perlls/document"
	"go.perlls.io/perlls/lsp"
)

// completionContext is what the cursor neighborhood tells us to offer.
type completionContext struct {
	kind   string // "sigil", "method", "package", "bare"
	sigil  string
	prefix string // typed name part, sigil/:: excluded
	pkg    string // for "package": the qualifying package typed so far
}

func (s *Server) completion(ctx context.Context, params json.RawMessage) (any, error) {
	doc, off, ok, err := s.docAndOffset(params)
	if err != nil || !ok {
		return lsp.CompletionList{Items: []lsp.CompletionItem{}}, err
	}
	if ctx.Err() != nil {
		return nil, lsp.ErrRequestCancelled
	}

	cctx := completionContextAt(doc, off)
	var items []lsp.CompletionItem

	switch cctx.kind {
	case "sigil":
		items = s.variableCandidates(doc, off, cctx)
	case "method":
		items = s.methodCandidates(doc, off, cctx)
	case "package":
		items = s.packageCandidates(cctx)
	default:
		items = s.bareCandidates(doc, off, cctx)
	}

	sort.SliceStable(items, func(i, j int) bool {
		si, sj := items[i].SortText, items[j].SortText
		if si == "" {
			si = items[i].Label
		}
		if sj == "" {
			sj = items[j].Label
		}
		return si < sj
	})
	return lsp.CompletionList{IsIncomplete: false, Items: items}, nil
}

// completionContextAt inspects the bytes left of the cursor to decide the
// trigger context.
func completionContextAt(doc *document.Document, off int) completionContext {
	text := doc.Text
	if off > len(text) {
		off = len(text)
	}
	// collect the identifier-ish run left of the cursor
	i := off
	for i > 0 {
		c := text[i-1]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			i--
			continue
		}
		break
	}
	prefix := text[i:off]

	if i >= 2 && text[i-2] == ':' && text[i-1] == ':' {
		// Foo::Bar::<cursor> — walk back over the qualified chain.
		j := i - 2
		for j > 0 {
			c := text[j-1]
			if c == '_' || c == ':' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
				j--
				continue
			}
			break
		}
		return completionContext{kind: "package", prefix: prefix, pkg: strings.TrimSuffix(text[j:i], "::")}
	}
	if i >= 2 && text[i-2] == '-' && text[i-1] == '>' {
		return completionContext{kind: "method", prefix: prefix}
	}
	if i >= 1 {
		switch text[i-1] {
		case '$', '@', '%':
			return completionContext{kind: "sigil", sigil: string(text[i-1]), prefix: prefix}
		}
	}
	return completionContext{kind: "bare", prefix: prefix}
}

// variableCandidates walks the scope chain collecting visible variables
// of every sigil: in Perl `$x[0]` indexes @x, so after `$` the array and
// hash names are candidates too.
func (s *Server) variableCandidates(doc *document.Document, off int, cctx completionContext) []lsp.CompletionItem {
	table := doc.Table
	if table == nil {
		return nil
	}
	scope := table.ScopeAt(off)
	seen := map[string]bool{}
	var items []lsp.CompletionItem

	for id := scope; id != analysis.NoScope; {
		sc := table.Scope(id)
		if sc == nil {
			break
		}
		for name := range sc.Names {
			for _, sym := range table.Symbols[name] {
				if sym.Scope != id || sym.Kind.Sigil() == "" {
					continue
				}
				label := sym.Kind.Sigil() + sym.Name
				if seen[label] || !strings.HasPrefix(sym.Name, cctx.prefix) {
					continue
				}
				seen[label] = true
				items = append(items, lsp.CompletionItem{
					Label:      label,
					Kind:       lsp.CompletionKindVariable,
					Detail:     sym.Declarator + " " + label,
					InsertText: sym.Name,
					FilterText: sym.Name,
				})
			}
		}
		id = sc.Parent
	}
	return items
}

// methodCandidates offers subs from the invocant's package when the
// invocant is a literal package name, otherwise subs from every package
// in the index.
func (s *Server) methodCandidates(doc *document.Document, off int, cctx completionContext) []lsp.CompletionItem {
	invocant := invocantPackage(doc, off)
	var items []lsp.CompletionItem
	seen := map[string]bool{}
	add := func(name, pkg string) {
		if seen[name] || !strings.HasPrefix(name, cctx.prefix) {
			return
		}
		seen[name] = true
		items = append(items, lsp.CompletionItem{
			Label:  name,
			Kind:   lsp.CompletionKindMethod,
			Detail: pkg + "::" + name,
		})
	}
	if invocant != "" {
		for _, be := range s.index.SymbolsInPackage(invocant, cctx.prefix) {
			if be.Key.Kind == analysis.KindSubroutine {
				add(be.Key.Name, be.Key.Package)
			}
		}
		if len(items) > 0 {
			return items
		}
	}
	for _, be := range s.index.Query(cctx.prefix, 200) {
		if be.Key.Kind == analysis.KindSubroutine {
			add(be.Key.Name, be.Key.Package)
		}
	}
	return items
}

// invocantPackage extracts `Foo::Bar` from `Foo::Bar->` left of the
// cursor.
func invocantPackage(doc *document.Document, off int) string {
	text := doc.Text[:min(off, len(doc.Text))]
	arrow := strings.LastIndex(text, "->")
	if arrow < 0 {
		return ""
	}
	j := arrow
	for j > 0 {
		c := text[j-1]
		if c == '_' || c == ':' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			j--
			continue
		}
		break
	}
	name := text[j:arrow]
	if name == "" || name[0] < 'A' || name[0] > 'Z' {
		return ""
	}
	return name
}

func (s *Server) packageCandidates(cctx completionContext) []lsp.CompletionItem {
	var items []lsp.CompletionItem
	seen := map[string]bool{}
	for _, be := range s.index.SymbolsInPackage(cctx.pkg, cctx.prefix) {
		if seen[be.Key.Name] {
			continue
		}
		seen[be.Key.Name] = true
		kind := lsp.CompletionKindFunction
		if be.Key.Kind == analysis.KindConstant {
			kind = lsp.CompletionKindConstant
		}
		items = append(items, lsp.CompletionItem{
			Label:  be.Key.Name,
			Kind:   kind,
			Detail: be.Key.Qualified(),
		})
	}
	// nested package names: Foo:: offers Foo::Bar
	for _, pkg := range s.index.Packages() {
		if rest, ok := strings.CutPrefix(pkg, cctx.pkg+"::"); ok {
			head := rest
			if i := strings.Index(rest, "::"); i >= 0 {
				head = rest[:i]
			}
			if !seen[head] && strings.HasPrefix(head, cctx.prefix) {
				seen[head] = true
				items = append(items, lsp.CompletionItem{
					Label: head,
					Kind:  lsp.CompletionKindModule,
					Detail: cctx.pkg + "::" + head,
				})
			}
		}
	}
	return items
}

func (s *Server) bareCandidates(doc *document.Document, off int, cctx completionContext) []lsp.CompletionItem {
	var items []lsp.CompletionItem
	seen := map[string]bool{}

	// subs and constants of the current document
	if doc.Table != nil {
		doc.Table.AllSymbols(func(sym *analysis.Symbol) {
			if sym.Kind != analysis.KindSubroutine && sym.Kind != analysis.KindConstant {
				return
			}
			if seen[sym.Name] || !strings.HasPrefix(sym.Name, cctx.prefix) {
				return
			}
			seen[sym.Name] = true
			kind := lsp.CompletionKindFunction
			if sym.Kind == analysis.KindConstant {
				kind = lsp.CompletionKindConstant
			}
			items = append(items, lsp.CompletionItem{
				Label:         sym.Name,
				Kind:          kind,
				Detail:        sym.Qualified,
				Documentation: sym.Doc,
				SortText:      "1" + sym.Name,
			})
		})

		// subs from used packages
		for _, u := range doc.Table.Uses {
			for _, be := range s.index.SymbolsInPackage(u.Module, cctx.prefix) {
				if be.Key.Kind != analysis.KindSubroutine || seen[be.Key.Name] {
					continue
				}
				seen[be.Key.Name] = true
				items = append(items, lsp.CompletionItem{
					Label:    be.Key.Name,
					Kind:     lsp.CompletionKindFunction,
					Detail:   be.Key.Qualified(),
					SortText: "2" + be.Key.Name,
				})
			}
		}
	}

	// built-in functions
	for _, fn := range builtins.Matching(cctx.prefix) {
		if seen[fn.Name] {
			continue
		}
		seen[fn.Name] = true
		items = append(items, lsp.CompletionItem{
			Label:         fn.Name,
			Kind:          lsp.CompletionKindFunction,
			Detail:        fn.Signature,
			Documentation: fn.Doc,
			SortText:      "3" + fn.Name,
		})
	}

	// keyword snippets
	for _, sn := range keywordSnippets {
		if !strings.HasPrefix(sn.label, cctx.prefix) || seen[sn.label] {
			continue
		}
		item := lsp.CompletionItem{
			Label:    sn.label,
			Kind:     lsp.CompletionKindSnippet,
			Detail:   sn.detail,
			SortText: "4" + sn.label,
		}
		if s.clientCap.snippetSupport {
			item.InsertText = sn.snippet
			item.InsertTextFormat = lsp.InsertTextSnippet
		}
		items = append(items, item)
	}
	return items
}

type snippet struct {
	label   string
	detail  string
	snippet string
}

var keywordSnippets = []snippet{
	{"sub", "sub name { ... }", "sub ${1:name} {\n\t$0\n}"},
	{"if", "if (...) { ... }", "if (${1:condition}) {\n\t$0\n}"},
	{"unless", "unless (...) { ... }", "unless (${1:condition}) {\n\t$0\n}"},
	{"while", "while (...) { ... }", "while (${1:condition}) {\n\t$0\n}"},
	{"foreach", "foreach my $x (...) { ... }", "foreach my \\$${1:item} (${2:@list}) {\n\t$0\n}"},
	{"for", "for (...;...;...) { ... }", "for (my \\$${1:i} = 0; \\$$1 < ${2:n}; \\$$1++) {\n\t$0\n}"},
	{"package", "package Name;", "package ${1:Name};\n$0"},
	{"use", "use Module;", "use ${1:Module};"},
	{"my", "my $var = ...;", "my \\$${1:var} = ${2:value};"},
	{"elsif", "elsif (...) { ... }", "elsif (${1:condition}) {\n\t$0\n}"},
}

func (s *Server) completionResolve(_ context.Context, params json.RawMessage) (any, error) {
	var item lsp.CompletionItem
	if err := json.Unmarshal(params, &item); err != nil {
		return nil, invalidParams(err)
	}
	// Late documentation fill for builtins kept cheap at list time.
	if item.Documentation == "" {
		if fn, ok := builtins.Lookup(item.Label); ok {
			item.Documentation = fmt.Sprintf("%s\n\n%s", fn.Signature, fn.Doc)
		}
	}
	return item, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
