package runtime

import (
	"context"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/boot"
	"github.com/wippyai/wasm-host/errors"
)

// Thread is the bookkeeping record of a goroutine inside the managed
// execution context.
type Thread struct {
	Entered time.Time
	ID      uuid.UUID
	Base    boot.StackBase
}

type threadRegistry struct {
	active map[uuid.UUID]*Thread
	max    int
	base   boot.StackBase
	mu     sync.Mutex
}

func newThreadRegistry(max int) *threadRegistry {
	return &threadRegistry{active: make(map[uuid.UUID]*Thread), max: max}
}

// attach allocates a thread record. Unbounded attaches are reserved for the
// exit path, which must be able to enter however many threads are inside.
func (r *threadRegistry) attach(base boot.StackBase, bounded bool) (*Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bounded && r.max > 0 && len(r.active) >= r.max {
		return nil, errors.Allocation(errors.PhaseEntry, "thread record", r.max)
	}
	t := &Thread{ID: uuid.New(), Base: base, Entered: time.Now()}
	r.active[t.ID] = t
	return t, nil
}

func (r *threadRegistry) detach(t *Thread) {
	r.mu.Lock()
	delete(r.active, t.ID)
	r.mu.Unlock()
}

func (r *threadRegistry) setBase(base boot.StackBase) {
	r.mu.Lock()
	r.base = base
	r.mu.Unlock()
}

func (r *threadRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

type threadKey struct{}

type binding struct {
	state  *State
	thread *Thread
}

// CurrentThread returns the thread record carried by ctx, if ctx was
// created by Enter.
func CurrentThread(ctx context.Context) (*Thread, bool) {
	b, ok := ctx.Value(threadKey{}).(binding)
	if !ok {
		return nil, false
	}
	return b.thread, true
}

// Threads returns the number of goroutines currently inside the managed
// context.
func (s *State) Threads() int {
	return s.threads.len()
}

// StackBase returns the stack base recorded by the booting goroutine.
func (s *State) StackBase() boot.StackBase {
	s.threads.mu.Lock()
	defer s.threads.mu.Unlock()
	return s.threads.base
}

// Enter runs fn inside the managed execution context: the goroutine is
// pinned to its OS thread, a thread record is allocated, and the boot
// sequence runs if it has not yet. Entering again from a context returned
// by Enter reuses the current record.
//
// An allocation failure or a failed boot sequence is returned without
// running fn.
func (s *State) Enter(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.enter(ctx, true, fn)
}

func (s *State) enter(ctx context.Context, bounded bool, fn func(ctx context.Context) error) error {
	if b, ok := ctx.Value(threadKey{}).(binding); ok && b.state == s {
		return fn(ctx)
	}

	goruntime.LockOSThread()
	defer goruntime.UnlockOSThread()

	base := boot.CaptureStackBase()
	t, err := s.threads.attach(base, bounded)
	if err != nil {
		s.log.Error("cannot enter runtime", zap.Error(err))
		return err
	}
	defer s.threads.detach(t)

	ctx = context.WithValue(ctx, threadKey{}, binding{state: s, thread: t})
	if err := s.gate.Initialize(ctx, base); err != nil {
		return err
	}
	return fn(ctx)
}
