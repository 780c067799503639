package runtime

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasm-host/boot"
	"github.com/wippyai/wasm-host/errors"
)

func TestBoot_WritesOkAndExitsZero(t *testing.T) {
	h := newHarness(t, testConfig())

	h.boot(nil, func(ctx context.Context, _ any, _ []string) error {
		_, err := h.state.Standard().Output.WriteString("ok")
		return err
	})

	if got := h.proc.exits(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("exit codes = %v, want [0]", got)
	}
	if got := h.stdout(t); got != "ok" {
		t.Errorf("stdout = %q, want ok", got)
	}
}

func TestBoot_ExitMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		panics  bool
		want    int
		wantErr string
	}{
		{name: "nil", want: 0},
		{name: "exit code", err: ExitCode(3), want: 3},
		{name: "wrapped exit code", err: stderrors.Join(stderrors.New("ctx"), ExitCode(7)), want: 7},
		{name: "guest exit", err: sys.NewExitError(4), want: 4},
		{name: "plain error", err: stderrors.New("boom"), want: 1, wantErr: "wasmhost: boom"},
		{name: "panic", panics: true, want: 1, wantErr: "panic: kaboom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testConfig())
			h.boot(nil, func(context.Context, any, []string) error {
				if tt.panics {
					panic("kaboom")
				}
				return tt.err
			})

			if got := h.proc.exits(); !reflect.DeepEqual(got, []int{tt.want}) {
				t.Errorf("exit codes = %v, want [%d]", got, tt.want)
			}
			stderr := h.stderr(t)
			if tt.wantErr == "" && stderr != "" {
				t.Errorf("unexpected stderr %q", stderr)
			}
			if !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("stderr = %q, want %q", stderr, tt.wantErr)
			}
		})
	}
}

func TestBoot_CallbackRequestsExit(t *testing.T) {
	h := newHarness(t, testConfig())

	var after bool
	h.boot(nil, func(context.Context, any, []string) error {
		h.state.Standard().Output.WriteString("before exit")
		h.state.Exit(5)
		after = true
		return nil
	})

	if after {
		t.Error("callback continued after Exit")
	}
	if got := h.proc.exits(); !reflect.DeepEqual(got, []int{5}) {
		t.Errorf("exit codes = %v, want [5]", got)
	}
	if got := h.stdout(t); got != "before exit" {
		t.Errorf("stdout = %q, exit hooks should flush output", got)
	}
}

func TestBoot_ExitFlushesAtThreadLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxThreads = 1
	h := newHarness(t, cfg)

	h.boot(nil, func(context.Context, any, []string) error {
		h.state.Standard().Output.WriteString("ok")
		h.state.Exit(0)
		return nil
	})

	if got := h.proc.exits(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("exit codes = %v, aborts = %q", got, h.proc.aborted())
	}
	if got := h.stdout(t); got != "ok" {
		t.Errorf("stdout = %q, the exit flush must not count against the thread limit", got)
	}
	if n := h.state.Threads(); n != 0 {
		t.Errorf("Threads = %d after exit, want 0", n)
	}
}

func TestBoot_ProgramArguments(t *testing.T) {
	h := newHarness(t, testConfig())
	args := []string{filepath.FromSlash("bin/host"), "-x", "file"}

	var seen []string
	h.boot(args, func(_ context.Context, _ any, got []string) error {
		seen = got
		return nil
	})

	want := []string{"bin/host", "-x", "file"}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("callback args = %v, want %v", seen, want)
	}
	if got := h.state.ProgramArguments(); !reflect.DeepEqual(got, want) {
		t.Errorf("ProgramArguments = %v, want %v", got, want)
	}
	if args[0] != filepath.FromSlash("bin/host") {
		t.Error("caller's args were modified")
	}
}

func TestBoot_PassesClosureData(t *testing.T) {
	h := newHarness(t, testConfig())
	type payload struct{ n int }

	var got any
	inGoroutine(func() {
		h.state.Boot(nil, func(_ context.Context, data any, _ []string) error {
			got = data
			return nil
		}, &payload{n: 42})
	})

	if p, ok := got.(*payload); !ok || p.n != 42 {
		t.Errorf("data = %#v", got)
	}
}

func TestBoot_InitializesOnce(t *testing.T) {
	var runs atomic.Int32
	h := newHarness(t, testConfig(), WithStep(StepFeatures, boot.Step{
		ID:       "count",
		Requires: []boot.StepID{StepSymbols},
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	noop := func(context.Context, any, []string) error { return nil }
	h.boot(nil, noop)
	h.boot(nil, noop)

	if runs.Load() != 1 {
		t.Errorf("boot sequence ran %d times, want 1", runs.Load())
	}
	if got := h.proc.exits(); !reflect.DeepEqual(got, []int{0, 0}) {
		t.Errorf("exit codes = %v, want [0 0]", got)
	}
}

func TestBoot_FailedStepAborts(t *testing.T) {
	h := newHarness(t, testConfig(), WithStep(StepStorage, boot.Step{
		ID:       "broken",
		Requires: []boot.StepID{StepStorage},
		Run:      func(context.Context) error { return stderrors.New("out of memory") },
	}))

	var called bool
	h.boot(nil, func(context.Context, any, []string) error {
		called = true
		return nil
	})

	if called {
		t.Error("callback ran after a failed boot")
	}
	if len(h.proc.exits()) != 0 {
		t.Errorf("failed boot must abort, not exit: %v", h.proc.exits())
	}
	aborts := h.proc.aborted()
	if len(aborts) != 1 || !strings.Contains(aborts[0], "out of memory") {
		t.Errorf("aborts = %q", aborts)
	}
	if !stderrors.Is(h.state.Gate().Err(), &errors.Error{Phase: errors.PhaseBoot, Kind: errors.KindFatalBoot}) {
		t.Errorf("gate err = %v, want fatal boot", h.state.Gate().Err())
	}
	if h.state.Exits().Len() != 0 {
		t.Error("exit cleanup must not be registered after a failed boot")
	}
}

func TestBoot_RestoresSignalsAndRunsAsyncs(t *testing.T) {
	h := newHarness(t, testConfig())

	var ticked bool
	h.boot(nil, func(context.Context, any, []string) error {
		h.state.Asyncs().Mark(func(context.Context) { ticked = true })
		return nil
	})

	if !ticked {
		t.Error("pending asyncs should run after the callback")
	}
	if n := len(h.state.Signals().Handled()); n != 0 {
		t.Errorf("%d signal handlers left installed", n)
	}
}

func TestNew_RejectsBadStepInsertion(t *testing.T) {
	_, err := New(testConfig(), WithStep(StepStorage, boot.Step{
		ID:       "early",
		Requires: []boot.StepID{StepBootScript},
		Run:      func(context.Context) error { return nil },
	}))
	if err == nil {
		t.Fatal("step requiring a later step should be rejected")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BootScript = ""
	if _, err := New(cfg); err == nil {
		t.Error("expected config validation error")
	}
}

func TestSteps_Order(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	var ids []boot.StepID
	for _, step := range s.Steps() {
		ids = append(ids, step.ID)
	}
	want := []boot.StepID{
		StepStorage, StepThreads, StepSymbols, StepModules, StepEngine,
		StepAsyncs, StepSignals, StepPrimitives, StepWASI, StepPorts,
		StepStandardPorts, StepFeatures, StepLoadPath, StepBootScript,
	}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("steps = %v, want %v", ids, want)
	}
	if err := s.Gate().Sequence().Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
