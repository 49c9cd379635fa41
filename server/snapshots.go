package server

import (
	"sync"

	"go.perlls.io/perlls/document"
)

// snapshotCache keeps parsed snapshots of closed on-disk files so
// cross-file queries don't reparse the same module for every position
// conversion. Entries are invalidated by text identity: a different
// content simply misses.
type snapshotCache struct {
	mu      sync.Mutex
	entries map[string]*document.Document
}

func newSnapshotCache() *snapshotCache {
	return &snapshotCache{entries: map[string]*document.Document{}}
}

const diskSnapshotLimit = 128

// snapshotForText returns a snapshot for a non-open document's text.
func (s *Server) snapshotForText(uri, text string) *document.Document {
	c := s.snapshots
	c.mu.Lock()
	if doc, ok := c.entries[uri]; ok && doc.Text == text {
		c.mu.Unlock()
		return doc
	}
	c.mu.Unlock()

	doc := document.New(uri, 0, text)

	c.mu.Lock()
	if len(c.entries) >= diskSnapshotLimit {
		// drop an arbitrary entry; this is a bounded cache, not an LRU
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
	c.entries[uri] = doc
	c.mu.Unlock()
	return doc
}
