package server

import (
	"context"
	"sync"
)

// cancelRegistry tracks the cancellation context of every in-flight
// request by request ID. Registration returns a context cancelled either
// by $/cancelRequest or by the scope-bound release; release always runs,
// panic or not, so tokens never leak.
type cancelRegistry struct {
	mu      sync.Mutex
	pending map[string]context.CancelFunc
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{pending: map[string]context.CancelFunc{}}
}

// register creates the request's context. The returned release removes
// the token from the registry and cancels the context; callers defer it.
func (r *cancelRegistry) register(parent context.Context, id string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	r.mu.Lock()
	r.pending[id] = cancel
	r.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.pending, id)
			r.mu.Unlock()
			cancel()
		})
	}
	return ctx, release
}

// cancel cancels the request with the given ID, if still in flight.
func (r *cancelRegistry) cancel(id string) {
	r.mu.Lock()
	cancel, ok := r.pending[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// len reports the number of in-flight tokens (used by tests).
func (r *cancelRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
