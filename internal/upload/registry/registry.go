// Package registry tracks in-flight upload jobs by identifier.
package registry

import (
	"log/slog"
	"sort"
	"sync"
)

// Handle is the capability the registry holds for a running job
type Handle interface {
	Cancel()
}

type entry struct {
	handle  Handle
	failure error
}

// Registry maps job ids to running-job handles. It is safe for concurrent use
// by the dispatch path and by worker goroutines reporting completion.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *slog.Logger
}

// New creates an empty registry
func New(logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register stores the handle iff no entry exists for id
func (r *Registry) Register(id string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return false
	}
	r.entries[id] = &entry{handle: h}
	return true
}

// Swap replaces the handle for id only if the current handle is old.
// It returns false when the entry is gone or holds a different handle.
func (r *Registry) Swap(id string, old, next Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[id]
	if !exists || e.handle != old {
		return false
	}
	e.handle = next
	return true
}

// Unregister removes the entry for id. Removing an absent id is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Cancel signals the job's handle. The entry stays registered until the job
// reports terminal completion.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	e, exists := r.entries[id]
	var h Handle
	if exists {
		h = e.handle
	}
	r.mu.Unlock()

	if !exists {
		return false
	}

	r.logger.Info("Cancelling upload job", slog.String("job_id", id))
	h.Cancel()
	return true
}

// CancelAll cancels every job registered at the time of the call and returns
// how many were signalled
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	handles := make(map[string]Handle, len(r.entries))
	for id, e := range r.entries {
		handles[id] = e.handle
	}
	r.mu.Unlock()

	for id, h := range handles {
		r.logger.Info("Cancelling upload job", slog.String("job_id", id))
		h.Cancel()
	}

	return len(handles)
}

// MarkFailed records a failure against a registered job without removing it
func (r *Registry) MarkFailed(id string, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[id]
	if !exists {
		return false
	}
	e.failure = err
	return true
}

// Failure returns the failure recorded for id, if any
func (r *Registry) Failure(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.entries[id]; exists {
		return e.failure
	}
	return nil
}

// Contains reports whether id is currently registered
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.entries[id]
	return exists
}

// List returns a sorted snapshot of registered ids
func (r *Registry) List() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of registered jobs
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
