// Package index implements the workspace-wide symbol registry: a
// concurrent multi-map from symbol keys to definition sites, with a
// reverse table for whole-file invalidation and a bare-name fallback for
// unqualified lookups.
//
// Concurrency discipline: readers share an RWMutex and never block each
// other; writers parse and extract outside the shared lock (holding only
// their URI's writer mutex) and serialize per URI,
// so a reader may observe two URIs mid-update but never a partial update
// of one URI.
package index

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"go.perlls.io/perlls/analysis"
	"go.perlls.io/perlls/ast"
	"go.perlls.io/perlls/parser"
)

// SymbolKey is the canonical cross-file lookup key. Sigil is derived from
// Kind, so the pair (Name, Kind) plus the owning Package identifies a
// symbol.
type SymbolKey struct {
	Package string
	Name    string
	Kind    analysis.SymbolKind
}

// Sigil returns the key's variable sigil, or "".
func (k SymbolKey) Sigil() string { return k.Kind.Sigil() }

// Qualified returns the Package::Name form.
func (k SymbolKey) Qualified() string {
	if k.Package == "" {
		return k.Name
	}
	return k.Package + "::" + k.Name
}

// ParseKey splits a possibly-qualified name into a key.
func ParseKey(name string, kind analysis.SymbolKind) SymbolKey {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return SymbolKey{Package: name[:i], Name: name[i+2:], Kind: kind}
	}
	return SymbolKey{Name: name, Kind: kind}
}

// Entry is one definition (or reference) site.
type Entry struct {
	URI  string
	Span ast.Span
}

// BareEntry is a bare-name fallback hit, carrying the full key so the
// caller can see which package it came from.
type BareEntry struct {
	URI  string
	Span ast.Span
	Key  SymbolKey
}

type refKey struct {
	Name string
	Kind analysis.SymbolKind
}

type fileEntries struct {
	keys map[SymbolKey][]Entry
	refs map[refKey][]Entry
	uses []string
}

// Index is the workspace symbol registry.
type Index struct {
	mu     sync.RWMutex
	byKey  map[SymbolKey]map[string][]Entry // key → uri → entries
	byBare map[string][]BareEntry
	byURI  map[string]*fileEntries
	byRef  map[refKey]map[string][]Entry

	uriLocksMu sync.Mutex
	uriLocks   map[string]*sync.Mutex

	logger logrus.FieldLogger
}

// New returns an empty index.
func New(logger logrus.FieldLogger) *Index {
	return &Index{
		byKey:    map[SymbolKey]map[string][]Entry{},
		byBare:   map[string][]BareEntry{},
		byURI:    map[string]*fileEntries{},
		byRef:    map[refKey]map[string][]Entry{},
		uriLocks: map[string]*sync.Mutex{},
		logger:   logger,
	}
}

func (ix *Index) uriLock(uri string) *sync.Mutex {
	ix.uriLocksMu.Lock()
	defer ix.uriLocksMu.Unlock()
	if l, ok := ix.uriLocks[uri]; ok {
		return l
	}
	l := &sync.Mutex{}
	ix.uriLocks[uri] = l
	return l
}

// IndexFile parses text and replaces every entry for uri atomically from
// the reader's point of view. A parse that yields errors and not a single
// symbol leaves any prior entries untouched so the index degrades to
// whatever last parsed rather than going empty on a syntax error.
func (ix *Index) IndexFile(uri, text string) error {
	l := ix.uriLock(uri)
	l.Lock()
	defer l.Unlock()

	res := parser.Parse(text)
	table := analysis.Extract(res, text)

	entries := buildEntries(uri, table)
	if len(entries.keys) == 0 && res.HasErrors() {
		ix.mu.RLock()
		_, hadPrior := ix.byURI[uri]
		ix.mu.RUnlock()
		if hadPrior {
			ix.logger.WithField("uri", uri).Warn("keeping stale index entries: file no longer parses")
			return nil
		}
	}

	ix.mu.Lock()
	ix.removeLocked(uri)
	ix.insertLocked(uri, entries)
	ix.mu.Unlock()
	return nil
}

// IndexTable replaces uri's entries from an already-built symbol table
// (used when the document store just reparsed the same text).
func (ix *Index) IndexTable(uri string, table *analysis.Table) {
	l := ix.uriLock(uri)
	l.Lock()
	defer l.Unlock()

	entries := buildEntries(uri, table)
	ix.mu.Lock()
	ix.removeLocked(uri)
	ix.insertLocked(uri, entries)
	ix.mu.Unlock()
}

// RemoveFile clears every entry for uri.
func (ix *Index) RemoveFile(uri string) {
	l := ix.uriLock(uri)
	l.Lock()
	defer l.Unlock()

	ix.mu.Lock()
	ix.removeLocked(uri)
	ix.mu.Unlock()
}

func buildEntries(uri string, table *analysis.Table) *fileEntries {
	fe := &fileEntries{keys: map[SymbolKey][]Entry{}, refs: map[refKey][]Entry{}}
	table.AllSymbols(func(s *analysis.Symbol) {
		// Lexicals are invisible across files; only package-reachable
		// symbols enter the index.
		switch {
		case s.Kind == analysis.KindSubroutine, s.Kind == analysis.KindPackage,
			s.Kind == analysis.KindConstant, s.Declarator == "our":
		default:
			return
		}
		key := ParseKey(s.Qualified, s.Kind)
		if key.Package == "" && s.Kind != analysis.KindPackage {
			key.Package = analysis.DefaultPackage
		}
		fe.keys[key] = append(fe.keys[key], Entry{URI: uri, Span: s.Loc})
	})
	for name, refs := range table.References {
		for _, r := range refs {
			rk := refKey{Name: name, Kind: r.Kind}
			fe.refs[rk] = append(fe.refs[rk], Entry{URI: uri, Span: r.Loc})
		}
	}
	for _, u := range table.Uses {
		fe.uses = append(fe.uses, u.Module)
	}
	return fe
}

func (ix *Index) removeLocked(uri string) {
	prior, ok := ix.byURI[uri]
	if !ok {
		return
	}
	for key := range prior.keys {
		if m, ok := ix.byKey[key]; ok {
			delete(m, uri)
			if len(m) == 0 {
				delete(ix.byKey, key)
			}
		}
		bares := ix.byBare[key.Name][:0]
		for _, be := range ix.byBare[key.Name] {
			if be.URI != uri {
				bares = append(bares, be)
			}
		}
		if len(bares) == 0 {
			delete(ix.byBare, key.Name)
		} else {
			ix.byBare[key.Name] = bares
		}
	}
	for rk := range prior.refs {
		if m, ok := ix.byRef[rk]; ok {
			delete(m, uri)
			if len(m) == 0 {
				delete(ix.byRef, rk)
			}
		}
	}
	delete(ix.byURI, uri)
}

func (ix *Index) insertLocked(uri string, fe *fileEntries) {
	for key, entries := range fe.keys {
		m, ok := ix.byKey[key]
		if !ok {
			m = map[string][]Entry{}
			ix.byKey[key] = m
		}
		m[uri] = entries
		for _, e := range entries {
			ix.byBare[key.Name] = append(ix.byBare[key.Name], BareEntry{URI: uri, Span: e.Span, Key: key})
		}
	}
	for rk, entries := range fe.refs {
		m, ok := ix.byRef[rk]
		if !ok {
			m = map[string][]Entry{}
			ix.byRef[rk] = m
		}
		m[uri] = entries
	}
	ix.byURI[uri] = fe
}

// FindDef returns every definition site for an exact key.
func (ix *Index) FindDef(key SymbolKey) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Entry
	for _, entries := range ix.byKey[key] {
		out = append(out, entries...)
	}
	return out
}

// FindBare returns candidates across all packages for an unqualified name.
func (ix *Index) FindBare(name string) []BareEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]BareEntry, len(ix.byBare[name]))
	copy(out, ix.byBare[name])
	return out
}

// FindRefs returns reference sites across the workspace for a name/kind,
// excluding the given URI (whose local table already has better data).
func (ix *Index) FindRefs(name string, kind analysis.SymbolKind, excludeURI string) []Entry {
	bare := name
	if i := strings.LastIndex(name, "::"); i >= 0 {
		bare = name[i+2:]
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Entry
	for _, rk := range []refKey{{Name: name, Kind: kind}, {Name: bare, Kind: kind}} {
		for uri, entries := range ix.byRef[rk] {
			if uri == excludeURI {
				continue
			}
			out = append(out, entries...)
		}
		if bare == name {
			break
		}
	}
	return out
}

// FindDependents returns the URIs that use or require the given module.
func (ix *Index) FindDependents(module string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []string
	for uri, fe := range ix.byURI {
		for _, m := range fe.uses {
			if m == module {
				out = append(out, uri)
				break
			}
		}
	}
	return out
}

// Query returns keys whose bare or qualified name contains the query,
// case-insensitively. An empty query matches everything. Used by
// workspace/symbol.
func (ix *Index) Query(q string, limit int) []BareEntry {
	q = strings.ToLower(q)
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []BareEntry
	for key, byURI := range ix.byKey {
		if q != "" && !strings.Contains(strings.ToLower(key.Qualified()), q) {
			continue
		}
		for uri, entries := range byURI {
			for _, e := range entries {
				out = append(out, BareEntry{URI: uri, Span: e.Span, Key: key})
				if limit > 0 && len(out) >= limit {
					return out
				}
			}
		}
	}
	return out
}

// Packages returns the distinct package names present in the index.
func (ix *Index) Packages() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for key := range ix.byKey {
		if key.Package == "" {
			continue
		}
		if _, ok := seen[key.Package]; !ok {
			seen[key.Package] = struct{}{}
			out = append(out, key.Package)
		}
	}
	return out
}

// SymbolsInPackage returns entries for every symbol of a package,
// optionally filtered by name prefix.
func (ix *Index) SymbolsInPackage(pkg, prefix string) []BareEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []BareEntry
	for key, byURI := range ix.byKey {
		if key.Package != pkg {
			continue
		}
		if prefix != "" && !strings.HasPrefix(key.Name, prefix) {
			continue
		}
		for uri, entries := range byURI {
			for _, e := range entries {
				out = append(out, BareEntry{URI: uri, Span: e.Span, Key: key})
			}
		}
	}
	return out
}

// URIs returns every indexed URI.
func (ix *Index) URIs() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]string, 0, len(ix.byURI))
	for uri := range ix.byURI {
		out = append(out, uri)
	}
	return out
}
