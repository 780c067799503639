package boot

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/wasm-host/errors"
)

func countingSequence(t *testing.T, counter *atomic.Int32) *Sequence {
	t.Helper()
	seq, err := NewSequence(
		Step{ID: "storage", Run: func(context.Context) error { counter.Add(1); return nil }},
		Step{ID: "symbols", Requires: []StepID{"storage"}, Run: func(context.Context) error { return nil }},
	)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	return seq
}

func TestGate_Idempotent(t *testing.T) {
	var runs atomic.Int32
	gate := NewGate(countingSequence(t, &runs), WithChecks(true))
	ctx := context.Background()

	if gate.Initialized() {
		t.Fatal("gate should start uninitialized")
	}
	if err := gate.Initialize(ctx, CaptureStackBase()); err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	if err := gate.Initialize(ctx, CaptureStackBase()); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}

	if got := runs.Load(); got != 1 {
		t.Errorf("registration ran %d times, want 1", got)
	}
	if !gate.Initialized() {
		t.Error("gate should be initialized")
	}
	if gate.StackBase() == 0 {
		t.Error("stack base should be recorded")
	}
}

func TestGate_Concurrent(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})
	seq := MustSequence(
		Step{ID: "slow", Run: func(context.Context) error {
			runs.Add(1)
			<-release
			return nil
		}},
	)
	gate := NewGate(seq)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- gate.Initialize(context.Background(), CaptureStackBase())
			if !gate.Initialized() {
				errs <- stderrors.New("caller returned before initialization completed")
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Initialize: %v", err)
		}
	}
	if got := runs.Load(); got != 1 {
		t.Errorf("sequence ran %d times, want 1", got)
	}
}

func TestGate_FailureIsNotRetried(t *testing.T) {
	var runs atomic.Int32
	cause := stderrors.New("allocation failed")
	seq := MustSequence(
		Step{ID: "storage", Run: func(context.Context) error { runs.Add(1); return cause }},
	)
	gate := NewGate(seq)
	ctx := context.Background()

	err := gate.Initialize(ctx, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseBoot, Kind: errors.KindFatalBoot}) {
		t.Errorf("error should be fatal_boot, got %v", err)
	}
	if !stderrors.Is(err, cause) {
		t.Errorf("error should wrap cause, got %v", err)
	}

	again := gate.Initialize(ctx, 0)
	if again != err {
		t.Errorf("second call returned %v, want the recorded error", again)
	}
	if got := runs.Load(); got != 1 {
		t.Errorf("failing step ran %d times, want 1", got)
	}
	if gate.Initialized() {
		t.Error("failed gate must not report initialized")
	}
	if gate.Err() != err {
		t.Error("Err should return the recorded error")
	}
}

func TestGate_PanickingStepIsFatal(t *testing.T) {
	seq := MustSequence(Step{ID: "boom", Run: func(context.Context) error { panic("out of memory") }})
	gate := NewGate(seq)

	err := gate.Initialize(context.Background(), 0)
	if err == nil {
		t.Fatal("expected error from panicking step")
	}
	if !gate.Idle() {
		t.Error("lock must be released after a failed boot")
	}
}

func TestGate_OnInitializedRunsOnceUnderLock(t *testing.T) {
	var calls int
	var idleDuringHook bool
	var gate *Gate
	seq := MustSequence(Step{ID: "only", Run: func(context.Context) error { return nil }})
	gate = NewGate(seq, WithOnInitialized(func() {
		calls++
		idleDuringHook = gate.Idle()
	}))

	for i := 0; i < 3; i++ {
		if err := gate.Initialize(context.Background(), 0); err != nil {
			t.Fatalf("Initialize: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("hook ran %d times, want 1", calls)
	}
	if idleDuringHook {
		t.Error("hook should run while the guard lock is still held")
	}
	if !gate.Idle() {
		t.Error("lock should be free after Initialize returns")
	}
}

func TestGate_IdleWithHeldLock(t *testing.T) {
	mu := &sync.Mutex{}
	seq := MustSequence(Step{ID: "only", Run: func(context.Context) error { return nil }})
	gate := NewGate(seq, WithLocker(mu))

	mu.Lock()
	if gate.Idle() {
		t.Error("Idle should report false while the lock is held")
	}
	mu.Unlock()

	if !gate.Idle() {
		t.Error("Idle should report true once the lock is free")
	}
}

func TestGate_StepSeesStackBase(t *testing.T) {
	var gate *Gate
	var seen StackBase
	seq := MustSequence(Step{ID: "threads", Run: func(context.Context) error {
		seen = gate.StackBase()
		return nil
	}})
	gate = NewGate(seq)

	if err := gate.Initialize(context.Background(), StackBase(0x1234)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if seen != 0x1234 {
		t.Errorf("step saw base %#x, want 0x1234", seen)
	}
}

func TestGate_TracerPanicDoesNotAffectBoot(t *testing.T) {
	seq := MustSequence(Step{ID: "only", Run: func(context.Context) error { return nil }})
	gate := NewGate(seq, WithTracer(TracerFunc(func(Event) { panic("broken trace sink") })))

	if err := gate.Initialize(context.Background(), 0); err != nil {
		t.Fatalf("tracer panic leaked into boot: %v", err)
	}
	if !gate.Initialized() {
		t.Error("gate should be initialized")
	}
}

func TestGate_ErrDoesNotWaitForBoot(t *testing.T) {
	mu := &sync.Mutex{}
	seq := MustSequence(Step{ID: "only", Run: func(context.Context) error { return nil }})
	gate := NewGate(seq, WithLocker(mu))

	mu.Lock()
	defer mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- gate.Err() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Err = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Err blocked while the guard lock was held")
	}
}
