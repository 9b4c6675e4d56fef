// Package lifecycle provides an idempotent start/stop wrapper for
// components that own long-lived resources, such as a store holding a
// connection pool.
package lifecycle

import "sync"

// Hooks are the transition callbacks invoked by a Runner. Start is called
// on the Stopped→Running transition, Stop on Running→Stopped. A hook error
// leaves the state unchanged.
type Hooks struct {
	Start func() error
	Stop  func() error
}

// Runner guards a running flag with a single mutex so concurrent Start and
// Stop calls never interleave hook execution, and the observable flag is
// never inconsistent with whether the hooks completed. Each Runner owns its
// own lock and flag; there is no process-global state.
type Runner struct {
	mu      sync.Mutex
	running bool
	hooks   Hooks
}

// NewRunner creates a Runner in the Stopped state. Nil hooks are treated as
// no-ops.
func NewRunner(hooks Hooks) *Runner {
	return &Runner{hooks: hooks}
}

// Start transitions to Running, invoking the start hook while holding the
// lock. It is a no-op if already running.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	if r.hooks.Start != nil {
		if err := r.hooks.Start(); err != nil {
			return err
		}
	}
	r.running = true
	return nil
}

// Stop transitions to Stopped, invoking the stop hook while holding the
// lock. It is a no-op if already stopped.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	if r.hooks.Stop != nil {
		if err := r.hooks.Stop(); err != nil {
			return err
		}
	}
	r.running = false
	return nil
}

// Running reports whether the Runner is in the Running state.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
