package boot

import (
	"context"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Locker is the guard lock of a Gate. *sync.Mutex satisfies it.
type Locker interface {
	Lock()
	Unlock()
	TryLock() bool
}

// StackBase marks the first managed frame of the booting goroutine.
//
// Go's collector is precise and goroutine stacks move, so the value is only
// recorded for diagnostics. Hosts embedding a collector that scans native
// stacks conservatively must keep every frame above this mark alive until
// their callback returns.
type StackBase uintptr

// CaptureStackBase returns the address of a local in the caller's frame.
//
//go:noinline
func CaptureStackBase() StackBase {
	var marker byte
	return StackBase(uintptr(unsafe.Pointer(&marker)))
}

// Gate runs a boot sequence exactly once.
//
// The guard lock is held for the whole sequence and protects only the
// initialized flag and the boot window. It is not reentrant: a step that
// calls Initialize on its own gate deadlocks.
type Gate struct {
	mu     Locker
	seq    *Sequence
	tracer Tracer
	onInit []func()
	err    atomic.Pointer[failure]

	initialized atomic.Bool
	base        atomic.Uintptr
	checks      bool
}

type failure struct{ err error }

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLocker replaces the default mutex, mainly so tests can hold the lock.
func WithLocker(l Locker) GateOption {
	return func(g *Gate) { g.mu = l }
}

// WithChecks enables the per-step prerequisite assertion.
func WithChecks(enabled bool) GateOption {
	return func(g *Gate) { g.checks = enabled }
}

// WithTracer installs a tracer for every step.
func WithTracer(t Tracer) GateOption {
	return func(g *Gate) { g.tracer = t }
}

// WithOnInitialized registers fn to run once, right after the sequence
// completes and before the guard lock is released.
func WithOnInitialized(fn func()) GateOption {
	return func(g *Gate) { g.onInit = append(g.onInit, fn) }
}

// NewGate creates a gate for seq.
func NewGate(seq *Sequence, opts ...GateOption) *Gate {
	g := &Gate{
		mu:     &sync.Mutex{},
		seq:    seq,
		tracer: NopTracer(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Initialize runs the sequence on the first call and is a no-op afterwards.
// Concurrent callers block until the first one finishes. A failed sequence
// is never retried; every later call returns the same error.
func (g *Gate) Initialize(ctx context.Context, base StackBase) error {
	if g.initialized.Load() {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initialized.Load() {
		return nil
	}
	if f := g.err.Load(); f != nil {
		return f.err
	}

	g.base.Store(uintptr(base))
	if err := g.seq.Run(ctx, RunOptions{Check: g.checks, Tracer: g.tracer}); err != nil {
		g.err.Store(&failure{err: err})
		return err
	}

	g.initialized.Store(true)
	for _, fn := range g.onInit {
		fn()
	}
	return nil
}

// Initialized reports whether the sequence has completed.
func (g *Gate) Initialized() bool {
	return g.initialized.Load()
}

// Idle probes the guard lock without blocking. It returns false while
// another goroutine is inside Initialize.
func (g *Gate) Idle() bool {
	if !g.mu.TryLock() {
		return false
	}
	g.mu.Unlock()
	return true
}

// Err returns the error of a failed sequence, if any. It does not wait for
// a boot in progress.
func (g *Gate) Err() error {
	if f := g.err.Load(); f != nil {
		return f.err
	}
	return nil
}

// StackBase returns the base recorded by the initializing call. Steps may
// call it while the sequence runs.
func (g *Gate) StackBase() StackBase {
	return StackBase(g.base.Load())
}

// Sequence returns the gate's boot sequence.
func (g *Gate) Sequence() *Sequence {
	return g.seq
}
