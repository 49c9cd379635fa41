package document

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Store owns the open documents. The lock protects only the map and is
// never held across a parse: Change parses the new text first and then
// swaps the snapshot in, discarding the work if a newer version arrived
// in the meantime.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]*Document
	logger logrus.FieldLogger
}

// NewStore returns an empty document store.
func NewStore(logger logrus.FieldLogger) *Store {
	return &Store{docs: map[string]*Document{}, logger: logger}
}

// Get returns the current snapshot for a URI.
func (s *Store) Get(uri string) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[uri]
	return d, ok
}

// URIs returns the open document URIs.
func (s *Store) URIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		out = append(out, uri)
	}
	return out
}

// Open stores the initial snapshot for a document.
func (s *Store) Open(uri string, version int32, text string) *Document {
	doc := New(uri, version, text)
	s.mu.Lock()
	s.docs[uri] = doc
	s.mu.Unlock()
	s.logger.WithFields(logrus.Fields{"uri": uri, "version": version}).Debug("document opened")
	return doc
}

// Change replaces a document's content at a strictly newer version. The
// reparse happens before the lock is taken; if a newer snapshot landed
// first, the stale result is discarded.
func (s *Store) Change(uri string, version int32, text string) (*Document, error) {
	s.mu.RLock()
	prev, ok := s.docs[uri]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("change for unopened document %q", uri)
	}
	if version <= prev.Version {
		return nil, fmt.Errorf("stale change for %q: version %d <= stored %d", uri, version, prev.Version)
	}

	doc := New(uri, version, text)

	s.mu.Lock()
	cur, ok := s.docs[uri]
	if !ok || cur.Version >= version {
		s.mu.Unlock()
		return nil, fmt.Errorf("discarded stale reparse of %q at version %d", uri, version)
	}
	s.docs[uri] = doc
	s.mu.Unlock()
	return doc, nil
}

// Close drops a document.
func (s *Store) Close(uri string) {
	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()
	s.logger.WithField("uri", uri).Debug("document closed")
}

// Len returns the number of open documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// SpliceChange applies one LSP content change to text. A nil start or end
// means full replacement. The splice works in byte offsets computed from the
// previous snapshot's line table.
func SpliceChange(prev *Document, start, end *Position, newText string) string {
	if start == nil || end == nil {
		return newText
	}
	s := prev.PositionToOffset(*start)
	e := prev.PositionToOffset(*end)
	if e < s {
		s, e = e, s
	}
	return prev.Text[:s] + newText + prev.Text[e:]
}
