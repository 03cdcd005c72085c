// Package task tracks cancellable background jobs by session id.
//
// The registry holds at most one handle per id. Registration fails while a
// previous job for the same id is still present, which is what makes
// "one concurrent processing run per session" enforceable without touching
// the database. Jobs unregister themselves when their goroutine exits.
package task

import (
	"context"
	"sync"
)

// Handle is the controller for one running job.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHandle wraps a job's cancel function. Finish closes the Done channel
// when the job goroutine exits.
func NewHandle(cancel context.CancelFunc) *Handle {
	return &Handle{cancel: cancel, done: make(chan struct{})}
}

// Cancel signals the job's context. Safe to call more than once.
func (h *Handle) Cancel() { h.cancel() }

// Finish marks the job as exited. Must be called exactly once, by the job
// goroutine itself.
func (h *Handle) Finish() { close(h.done) }

// Done is closed once the job goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Registry maps session ids to their running job handles.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Handle)}
}

// Register records h as the running job for id. It reports false, without
// replacing anything, when a job for id is already registered.
func (r *Registry) Register(id string, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[id]; exists {
		return false
	}
	r.jobs[id] = h
	return true
}

// Get returns the handle registered for id, if any.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.jobs[id]
	return h, ok
}

// Cancel signals the job registered for id, removes the registration, and
// reports whether one existed. A second call for the same id returns false.
// The job goroutine may still be winding down after Cancel returns; wait on
// the handle's Done channel to observe its exit.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	h, ok := r.jobs[id]
	if ok {
		delete(r.jobs, id)
	}
	r.mu.Unlock()

	if ok {
		h.Cancel()
	}
	return ok
}

// Remove unregisters h from id. A handle other than the current one is left
// in place, so a slow finished job cannot unregister its replacement.
func (r *Registry) Remove(id string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs[id] == h {
		delete(r.jobs, id)
	}
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// CancelAll cancels and unregisters every job, returning the handles so the
// caller can wait for them to drain.
func (r *Registry) CancelAll() []*Handle {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.jobs))
	for id, h := range r.jobs {
		handles = append(handles, h)
		delete(r.jobs, id)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	return handles
}
