// Package document owns per-URI state: versioned immutable snapshots of
// text together with the AST and symbol table derived from that exact
// text, plus the byte↔UTF-16 position mapping the protocol boundary
// needs.
package document

import (
	"sync"

	"go.perlls.io/perlls/analysis"
	"go.perlls.io/perlls/ast"
	"go.perlls.io/perlls/parser"
)

// Document is a read-only snapshot of one open document at one version.
// Handlers receive a *Document and never a live reference into the store,
// so they can compute without holding any lock. The AST and the symbol
// table are always derived from Text; a newer AST is never paired with an
// older table.
type Document struct {
	URI     string
	Version int32
	Text    string

	// Lines holds the byte offset of each line start. Lines[0] is 0;
	// entries point just past '\n' (a "\r\n" pair counts as one
	// separator).
	Lines []int

	Parse *parser.Result
	Table *analysis.Table

	parentsOnce sync.Once
	parents     map[ast.Node]ast.Node
}

// New parses text and builds the full snapshot for it. It never fails;
// broken text yields a snapshot whose Parse carries the problems.
func New(uri string, version int32, text string) *Document {
	res := parser.Parse(text)
	return &Document{
		URI:     uri,
		Version: version,
		Text:    text,
		Lines:   lineStarts(text),
		Parse:   res,
		Table:   analysis.Extract(res, text),
	}
}

// Root returns the AST root, nil only before New has run.
func (d *Document) Root() *ast.Program {
	if d.Parse == nil {
		return nil
	}
	return d.Parse.Root
}

// ParentMap returns the node→parent table, built lazily once per
// snapshot.
func (d *Document) ParentMap() map[ast.Node]ast.Node {
	d.parentsOnce.Do(func() {
		d.parents = ast.BuildParentMap(d.Root())
	})
	return d.parents
}

// NodeAt returns the innermost node containing the byte offset and its
// ancestor path.
func (d *Document) NodeAt(off int) (ast.Node, []ast.Node) {
	if d.Root() == nil {
		return nil, nil
	}
	return ast.NodeAt(d.Root(), off)
}

// WordAt returns the identifier-ish word containing the offset, with its
// span. Used as the hover/definition fallback when no symbol resolves.
func (d *Document) WordAt(off int) (string, ast.Span) {
	if off < 0 || off > len(d.Text) {
		return "", ast.Span{}
	}
	isWord := func(c byte) bool {
		return c == '_' || c == ':' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
	}
	start := off
	for start > 0 && isWord(d.Text[start-1]) {
		start--
	}
	// include a leading sigil
	if start > 0 {
		switch d.Text[start-1] {
		case '$', '@', '%', '&':
			start--
		}
	}
	end := off
	for end < len(d.Text) && isWord(d.Text[end]) {
		end++
	}
	if start == end {
		return "", ast.Span{}
	}
	return d.Text[start:end], ast.Span{Start: start, End: end}
}

func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}
