package runtime

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/boot"
	"github.com/wippyai/wasm-host/config"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/exithook"
	"github.com/wippyai/wasm-host/port"
)

// MainFunc is the host callback run by Boot inside the managed context.
// args is the program argument list; data is passed through untouched.
type MainFunc func(ctx context.Context, data any, args []string) error

// State is the process-wide runtime context: the init gate, the boot
// sequence and every subsystem the sequence creates.
//
// Subsystem accessors return nil until the corresponding boot step ran.
type State struct {
	cfg   config.Config
	log   *zap.Logger
	gate  *boot.Gate
	exits *exithook.Registry

	portOpts []port.FactoryOption

	threads *threadRegistry

	mu       sync.RWMutex
	cache    wazero.CompilationCache
	engine   *engine.Engine
	symbols  *Symbols
	modules  *Modules
	asyncs   *Asyncs
	signals  *Signals
	features *Features
	factory  *port.Factory
	std      port.Standard
	loadPath []string
	args     []string

	id     uuid.UUID
	closed atomic.Bool
}

type insertion struct {
	step  boot.Step
	after boot.StepID
}

type options struct {
	log     *zap.Logger
	proc    exithook.Process
	locker  boot.Locker
	tracer  boot.Tracer
	portOps []port.FactoryOption
	extra   []insertion
}

// Option configures a State.
type Option func(*options)

// WithLogger sets the state's logger. The package logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithProcess replaces the process used to exit and abort.
func WithProcess(p exithook.Process) Option {
	return func(o *options) { o.proc = p }
}

// WithLocker replaces the init gate's guard lock.
func WithLocker(l boot.Locker) Option {
	return func(o *options) { o.locker = l }
}

// WithTracer installs a boot step tracer in addition to the debug log.
func WithTracer(t boot.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithDescriptors overrides the descriptors wrapped as the standard ports.
func WithDescriptors(in, out, errFd int) Option {
	return func(o *options) { o.portOps = append(o.portOps, port.WithDescriptors(in, out, errFd)) }
}

// WithTerminalProbe replaces the terminal check that decides buffering.
func WithTerminalProbe(fn func(fd int) bool) Option {
	return func(o *options) { o.portOps = append(o.portOps, port.WithTerminalProbe(fn)) }
}

// WithStep inserts an extra boot step right after the step named after.
// Its prerequisites must come no later than after.
func WithStep(after boot.StepID, step boot.Step) Option {
	return func(o *options) { o.extra = append(o.extra, insertion{step: step, after: after}) }
}

// New creates a State for cfg. Nothing is initialized until the first
// Enter or Boot.
func New(cfg config.Config, opts ...Option) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = Logger()
	}

	s := &State{
		cfg:      cfg,
		id:       uuid.New(),
		exits:    exithook.NewRegistry(o.proc),
		portOpts: o.portOps,
		threads:  newThreadRegistry(cfg.MaxThreads),
	}
	s.log = o.log.With(zap.String("boot_id", s.id.String()))

	seq, err := boot.NewSequence(s.steps()...)
	if err != nil {
		return nil, err
	}
	for _, ins := range o.extra {
		if err := seq.InsertAfter(ins.after, ins.step); err != nil {
			return nil, err
		}
	}
	if err := seq.Validate(); err != nil {
		return nil, err
	}

	tracer := boot.ZapTracer(s.log)
	if o.tracer != nil {
		tracer = boot.MultiTracer(tracer, o.tracer)
	}

	gateOpts := []boot.GateOption{
		boot.WithChecks(cfg.Debug),
		boot.WithTracer(tracer),
		boot.WithOnInitialized(s.registerCleanup),
	}
	if o.locker != nil {
		gateOpts = append(gateOpts, boot.WithLocker(o.locker))
	}
	s.gate = boot.NewGate(seq, gateOpts...)

	return s, nil
}

var (
	defaultState *State
	defaultOnce  sync.Once
)

// Default returns the process singleton, created on first use from the
// configuration found by config.Load. An unreadable configuration falls back
// to config.Default with a warning on stderr.
func Default() *State {
	defaultOnce.Do(func() {
		cfg, err := config.Load("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "wasmhost: %v; using defaults\n", err)
			cfg = config.Default()
		}
		s, err := New(cfg)
		if err != nil {
			panic(err)
		}
		defaultState = s
	})
	return defaultState
}

// ID identifies this state in logs.
func (s *State) ID() uuid.UUID { return s.id }

// Config returns the configuration the state was created with.
func (s *State) Config() config.Config { return s.cfg }

// Gate returns the init gate.
func (s *State) Gate() *boot.Gate { return s.gate }

// Exits returns the exit hook registry.
func (s *State) Exits() *exithook.Registry { return s.exits }

// Initialized reports whether the boot sequence has completed.
func (s *State) Initialized() bool { return s.gate.Initialized() }

// Engine returns the wazero engine.
func (s *State) Engine() *engine.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Symbols returns the symbol table.
func (s *State) Symbols() *Symbols {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.symbols
}

// Modules returns the registry of loaded guest modules.
func (s *State) Modules() *Modules {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modules
}

// Asyncs returns the deferred callback queue.
func (s *State) Asyncs() *Asyncs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.asyncs
}

// Signals returns the signal table.
func (s *State) Signals() *Signals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signals
}

// Features returns the feature list.
func (s *State) Features() *Features {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.features
}

// Ports returns the table of live ports.
func (s *State) Ports() *port.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.factory == nil {
		return nil
	}
	return s.factory.Table()
}

// PortFactory returns the port factory.
func (s *State) PortFactory() *port.Factory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.factory
}

// Standard returns the current input, output, error and warning ports.
func (s *State) Standard() port.Standard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.std
}

// LoadPath returns the directories searched for boot modules.
func (s *State) LoadPath() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.loadPath)
}

// ProgramArguments returns the externally visible program arguments.
func (s *State) ProgramArguments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.args)
}

// SetProgramArguments replaces the program arguments.
func (s *State) SetProgramArguments(args []string) {
	s.mu.Lock()
	s.args = slices.Clone(args)
	s.mu.Unlock()
}

// ModuleConfig returns a wazero module configuration bound to the current
// standard ports and program arguments.
func (s *State) ModuleConfig() wazero.ModuleConfig {
	std := s.Standard()
	mc := wazero.NewModuleConfig().
		WithArgs(s.ProgramArguments()...).
		WithSysWalltime().
		WithSysNanotime()
	if std.Input != nil {
		mc = mc.WithStdin(std.Input)
	}
	if std.Output != nil {
		mc = mc.WithStdout(std.Output)
	}
	if std.Error != nil {
		mc = mc.WithStderr(std.Error)
	}
	return mc
}

// Exit runs the exit hooks, which flush every port, and terminates the
// process with code.
func (s *State) Exit(code int) {
	s.exits.Exit(code)
}

// Close releases the engine, the compilation cache and every port, and
// restores signal handlers. Exit hooks are not run.
func (s *State) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	eng, cache, sigs, factory := s.engine, s.cache, s.signals, s.factory
	s.mu.Unlock()

	var err error
	if sigs != nil {
		sigs.Restore()
	}
	if factory != nil {
		err = multierr.Append(err, factory.Table().Close())
	}
	if eng != nil {
		err = multierr.Append(err, eng.Close(ctx))
	}
	if cache != nil {
		err = multierr.Append(err, cache.Close(ctx))
	}
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindClosed, err, "close state")
	}
	return nil
}
