package sync

import (
	"sync"
	"sync/atomic"
)

// Flag is the shared cancellation flag for one run. The scan loop reads it
// between accounts and between messages; the HTTP cancel handler writes it.
type Flag struct {
	cancelled atomic.Bool
}

// Cancel requests cooperative cancellation.
func (f *Flag) Cancel() {
	f.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested.
func (f *Flag) Cancelled() bool {
	return f.cancelled.Load()
}

// Registry is the process-wide table of in-flight sync runs. Entries exist
// only while their run is active; Unregister must run unconditionally when a
// run reaches any terminal state.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*Flag
}

// NewRegistry creates an empty run registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Flag)}
}

// Register creates the entry for a run and returns its cancellation flag.
func (r *Registry) Register(runID string) *Flag {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag := &Flag{}
	r.runs[runID] = flag
	return flag
}

// RequestCancel sets the run's cancel flag. Returns false when no matching
// in-flight run exists.
func (r *Registry) RequestCancel(runID string) bool {
	r.mu.Lock()
	flag, ok := r.runs[runID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	flag.Cancel()
	return true
}

// Unregister removes the run's entry.
func (r *Registry) Unregister(runID string) {
	r.mu.Lock()
	delete(r.runs, runID)
	r.mu.Unlock()
}

// Running reports whether a run is currently registered.
func (r *Registry) Running(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runs[runID]
	return ok
}
