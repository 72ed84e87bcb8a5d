package pending

import (
	"context"
	"sync"
)

// Registry tracks the single live request for each fingerprint.
// Registering a key that is already present aborts the previous holder,
// so the most recently dispatched request always wins.
type Registry struct {
	mu  sync.Mutex
	m   map[string]*entry
	seq uint64
}

// entry is one registered in-flight request.
type entry struct {
	id     uint64
	cancel context.CancelCauseFunc
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		m: make(map[string]*entry),
	}
}

// Register creates the cancellation scope for a new request under key.
// An existing holder of the key is cancelled with ErrSuperseded and
// replaced. The returned id must be handed back to Deregister.
func (r *Registry) Register(parent context.Context, key string) (context.Context, uint64, bool) {
	ctx, cancel := context.WithCancelCause(parent)

	r.mu.Lock()
	defer r.mu.Unlock()

	superseded := false
	if prev, ok := r.m[key]; ok {
		prev.cancel(ErrSuperseded)
		superseded = true
	}

	r.seq++
	r.m[key] = &entry{id: r.seq, cancel: cancel}
	return ctx, r.seq, superseded
}

// Deregister removes the entry for key if it is still owned by id and
// releases its context. It reports whether the entry was removed; false
// means the request was already superseded or cancelled.
func (r *Registry) Deregister(key string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.m[key]
	if !ok || e.id != id {
		return false
	}
	delete(r.m, key)
	e.cancel(nil)
	return true
}

// CancelAll aborts every registered request with ErrCancelled and empties
// the registry. It returns the number of requests aborted.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.m)
	for key, e := range r.m {
		e.cancel(ErrCancelled)
		delete(r.m, key)
	}
	return n
}

// Len returns the number of registered requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// Has reports whether key currently has a live request.
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.m[key]
	return ok
}
