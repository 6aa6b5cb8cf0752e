// Package shutdown provides an ordered registry of cleanup tasks invoked
// exactly once at process exit.
//
// The registry is an explicit object passed to whoever needs exit cleanup,
// not a process-wide singleton: tests construct their own and drain it at
// will. It starts empty, accumulates tasks during normal operation, and
// Drain invokes whatever is still registered, newest first, exactly once.
package shutdown

import (
	"container/list"
	"sync"
	"time"

	"github.com/caskfs/caskfs/internal/logger"
)

// Registry holds cleanup tasks to run at process exit.
// The zero value is not usable; call NewRegistry.
type Registry struct {
	mu      sync.Mutex
	tasks   *list.List // of *entry, registration order
	drained bool
}

type entry struct {
	name string
	task func()
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: list.New()}
}

// Register adds a cleanup task and returns its deregister function.
//
// Deregistering is race-free with respect to a concurrent Drain: the task
// runs exactly once or not at all, never twice. Deregistering after the
// drain, or twice, is a no-op. Registering on an already-drained registry
// runs the task immediately, since the exit window it was meant for has
// already passed.
func (r *Registry) Register(name string, task func()) (deregister func()) {
	r.mu.Lock()
	if r.drained {
		r.mu.Unlock()
		logger.Warn("shutdown task registered after drain, running immediately", "task", name)
		task()
		return func() {}
	}
	elem := r.tasks.PushBack(&entry{name: name, task: task})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if !r.drained {
				r.tasks.Remove(elem)
			}
		})
	}
}

// Len reports the number of currently registered tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks.Len()
}

// Drain invokes every remaining task, newest first, then discards them.
// A second Drain is a no-op. Tasks run outside the registry lock, so a task
// may deregister other tasks (a vault stop deregisters its own entry).
func (r *Registry) Drain() {
	r.mu.Lock()
	if r.drained {
		r.mu.Unlock()
		return
	}
	r.drained = true

	entries := make([]*entry, 0, r.tasks.Len())
	for e := r.tasks.Back(); e != nil; e = e.Prev() {
		entries = append(entries, e.Value.(*entry))
	}
	r.tasks.Init()
	r.mu.Unlock()

	for _, en := range entries {
		start := time.Now()
		logger.Debug("running shutdown task", "task", en.name)
		en.task()
		logger.Debug("shutdown task finished", "task", en.name, "duration", time.Since(start))
	}
}
