package server

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go.perlls.io/perlls/event"
	"go.perlls.io/perlls/fsext"
)

// indexer drives background workspace indexing on a single goroutine:
// the initial scan of every workspace root after initialized, plus
// fsnotify-driven updates for includePaths directories the client does
// not watch on our behalf. Work-done progress is reported under a fresh
// token per scan.
type indexer struct {
	s       *Server
	queue   chan string // paths to (re)index
	stopped chan struct{}
	once    sync.Once
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

func newIndexer(s *Server) *indexer {
	return &indexer{
		s:       s,
		queue:   make(chan string, 256),
		stopped: make(chan struct{}),
	}
}

// start launches the initial scan. Called from `initialized`.
func (ix *indexer) start(roots []string) {
	ix.once.Do(func() {
		ix.wg.Add(1)
		go func() {
			defer ix.wg.Done()
			ix.scan(roots)
			ix.watch()
			ix.drain()
		}()
	})
}

func (ix *indexer) stop() {
	select {
	case <-ix.stopped:
	default:
		close(ix.stopped)
	}
	if ix.watcher != nil {
		_ = ix.watcher.Close()
	}
	ix.wg.Wait()
}

// scan indexes every Perl file under the given roots.
func (ix *indexer) scan(roots []string) {
	s := ix.s
	token := uuid.NewString()
	s.notify("$/progress", map[string]any{
		"token": token,
		"value": map[string]any{"kind": "begin", "title": "Indexing workspace"},
	})
	s.events.Emit(&event.Event{Type: event.IndexingStarted})

	files := 0
	for _, root := range roots {
		err := fsext.WalkPerlFiles(s.fs, root, func(path string) error {
			select {
			case <-ix.stopped:
				return nil
			default:
			}
			ix.indexPath(path)
			files++
			return nil
		})
		if err != nil {
			s.logger.WithError(err).WithField("root", root).Warn("workspace scan failed")
		}
	}

	s.notify("$/progress", map[string]any{
		"token": token,
		"value": map[string]any{"kind": "end", "message": "workspace indexed"},
	})
	s.notify("window/logMessage", map[string]any{
		"type":    3, // Info
		"message": fmt.Sprintf("perlls: indexed %d workspace files", files),
	})
	s.events.Emit(&event.Event{Type: event.IndexingDone, Data: files})
	s.logger.WithField("files", files).Info("workspace indexing done")
}

// indexPath reads and indexes one on-disk file, unless the editor has a
// newer in-memory copy open.
func (ix *indexer) indexPath(path string) {
	s := ix.s
	uri := fsext.FileURI(path)
	if _, open := s.store.Get(uri); open {
		return
	}
	data, err := fsext.ReadFile(s.fs, path)
	if err != nil {
		s.logger.WithError(err).WithField("path", path).Debug("skipping unreadable file")
		return
	}
	if err := s.index.IndexFile(uri, string(data)); err != nil {
		s.logger.WithError(err).WithField("path", path).Warn("indexing failed")
	}
}

// watch registers the configured include paths with fsnotify. The
// workspace roots themselves are covered by client didChangeWatchedFiles
// notifications; includePaths usually live outside the workspace.
func (ix *indexer) watch() {
	paths := ix.s.config.get().IncludePaths
	if len(paths) == 0 {
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		ix.s.logger.WithError(err).Warn("fsnotify unavailable; include paths will not auto-refresh")
		return
	}
	ix.watcher = w
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			ix.s.logger.WithError(err).WithField("path", p).Debug("cannot watch include path")
		}
	}
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		for {
			select {
			case <-ix.stopped:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !fsext.IsPerlFile(ev.Name) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					select {
					case ix.queue <- ev.Name:
					default:
						ix.s.logger.Debug("index queue full, dropping fs event")
					}
				}
				if ev.Op&fsnotify.Remove != 0 {
					ix.s.index.RemoveFile(fsext.FileURI(ev.Name))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				ix.s.logger.WithError(err).Debug("fsnotify error")
			}
		}
	}()
}

// drain serves queued reindex requests until stopped.
func (ix *indexer) drain() {
	for {
		select {
		case <-ix.stopped:
			return
		case path := <-ix.queue:
			ix.indexPath(path)
		}
	}
}

// enqueue schedules one path for background reindexing.
func (ix *indexer) enqueue(path string) {
	select {
	case ix.queue <- path:
	default:
		ix.s.logger.WithFields(logrus.Fields{"path": path}).Debug("index queue full")
	}
}
