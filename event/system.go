// Package event provides the in-process pub/sub system that decouples the
// document store and background indexer from the diagnostics publisher
// and tests: producers emit typed events, subscribers drain buffered
// channels at their own pace.
package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Type identifies an event type.
type Type uint8

// The event types.
const (
	// DocumentOpened fires after didOpen stored the first snapshot.
	DocumentOpened Type = iota + 1
	// DocumentChanged fires after a didChange snapshot replaced the
	// previous one.
	DocumentChanged
	// DocumentClosed fires after didClose dropped the document.
	DocumentClosed
	// IndexingStarted fires when a background workspace scan begins.
	IndexingStarted
	// IndexingDone fires when a background workspace scan completes.
	IndexingDone
	// DiagnosticsPublished fires after diagnostics for a URI went out.
	DiagnosticsPublished
	// Exit fires once when the server shuts down.
	Exit
)

func (t Type) String() string {
	switch t {
	case DocumentOpened:
		return "documentOpened"
	case DocumentChanged:
		return "documentChanged"
	case DocumentClosed:
		return "documentClosed"
	case IndexingStarted:
		return "indexingStarted"
	case IndexingDone:
		return "indexingDone"
	case DiagnosticsPublished:
		return "diagnosticsPublished"
	case Exit:
		return "exit"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Event is a single emitted event. Done, when non-nil, is called by the
// system once every subscriber has received the event.
type Event struct {
	Type Type
	Data any
	Done func()
}

// System fan-outs events to subscribers. Emit never blocks the caller
// beyond the buffered channel capacity; a slow subscriber eventually
// backpressures its own channel only.
type System struct {
	mu          sync.RWMutex
	nextID      uint64
	subscribers map[Type]map[uint64]chan *Event
	buffer      int
	logger      logrus.FieldLogger
}

// NewSystem returns an event system whose subscriber channels hold up to
// buffer events.
func NewSystem(buffer int, logger logrus.FieldLogger) *System {
	return &System{
		subscribers: make(map[Type]map[uint64]chan *Event),
		buffer:      buffer,
		logger:      logger,
	}
}

// Subscribe registers for the given event types and returns the
// subscriber ID and receive channel.
func (s *System) Subscribe(types ...Type) (uint64, <-chan *Event) {
	if len(types) == 0 {
		panic("must subscribe to at least 1 event type")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	ch := make(chan *Event, s.buffer)
	for _, t := range types {
		if s.subscribers[t] == nil {
			s.subscribers[t] = make(map[uint64]chan *Event)
		}
		s.subscribers[t][id] = ch
	}
	s.logger.WithFields(logrus.Fields{"subscriber": id, "types": types}).Debug("event subscriber added")
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *System) Unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ch chan *Event
	for _, subs := range s.subscribers {
		if c, ok := subs[id]; ok {
			ch = c
			delete(subs, id)
		}
	}
	if ch != nil {
		close(ch)
	}
}

// Emit delivers the event to every subscriber of its type. When the event
// has a Done callback, it runs after all deliveries complete (on a
// separate goroutine so Emit never blocks on slow consumers).
func (s *System) Emit(ev *Event) {
	s.mu.RLock()
	subs := make([]chan *Event, 0, len(s.subscribers[ev.Type]))
	for _, ch := range s.subscribers[ev.Type] {
		subs = append(subs, ch)
	}
	s.mu.RUnlock()

	if len(subs) == 0 {
		if ev.Done != nil {
			ev.Done()
		}
		return
	}

	go func() {
		for _, ch := range subs {
			ch <- ev
		}
		if ev.Done != nil {
			ev.Done()
		}
	}()
}

// EmitAndWait emits and blocks until every subscriber has received the
// event or the context is done.
func (s *System) EmitAndWait(ctx context.Context, ev *Event) error {
	done := make(chan struct{})
	prev := ev.Done
	ev.Done = func() {
		if prev != nil {
			prev()
		}
		close(done)
	}
	s.Emit(ev)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
