// Package exithook provides process-exit hooks for hosts that exit through
// it: hooks run once, in reverse registration order, before the process
// terminates. Abort terminates without running them.
package exithook

import (
	"fmt"
	"os"
	"sync"
)

// AbortCode is the exit status used by the default Abort (128 + SIGABRT).
const AbortCode = 134

// Process terminates the running process. Tests substitute a recorder.
type Process interface {
	Exit(code int)
	Abort(msg string)
}

type osProcess struct{}

func (osProcess) Exit(code int) { os.Exit(code) }

func (osProcess) Abort(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(AbortCode)
}

// OS returns the Process backed by os.Exit.
func OS() Process { return osProcess{} }

// Registry holds exit hooks.
type Registry struct {
	proc  Process
	hooks []func()
	mu    sync.Mutex
}

// NewRegistry creates a registry that terminates through p.
func NewRegistry(p Process) *Registry {
	if p == nil {
		p = OS()
	}
	return &Registry{proc: p}
}

// Register adds fn to the hooks run by Exit.
func (r *Registry) Register(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Len returns the number of pending hooks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hooks)
}

// Run executes and clears the pending hooks, last registered first. A hook
// that calls Exit does not run the remaining hooks twice.
func (r *Registry) Run() {
	r.mu.Lock()
	hooks := r.hooks
	r.hooks = nil
	r.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// Exit runs the hooks and terminates with code.
func (r *Registry) Exit(code int) {
	r.Run()
	r.proc.Exit(code)
}

// Abort terminates immediately with msg; hooks do not run.
func (r *Registry) Abort(msg string) {
	r.proc.Abort(msg)
}

// Process returns the underlying process.
func (r *Registry) Process() Process {
	return r.proc
}
