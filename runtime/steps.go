package runtime

import (
	"context"
	goruntime "runtime"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/boot"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/port"
)

// Boot step identifiers, in execution order.
const (
	StepStorage       boot.StepID = "storage"
	StepThreads       boot.StepID = "threads"
	StepSymbols       boot.StepID = "symbols"
	StepModules       boot.StepID = "modules"
	StepEngine        boot.StepID = "engine"
	StepAsyncs        boot.StepID = "asyncs"
	StepSignals       boot.StepID = "signals"
	StepPrimitives    boot.StepID = "primitives"
	StepWASI          boot.StepID = "wasi"
	StepPorts         boot.StepID = "ports"
	StepStandardPorts boot.StepID = "standard-ports"
	StepFeatures      boot.StepID = "features"
	StepLoadPath      boot.StepID = "load-path"
	StepBootScript    boot.StepID = "boot-script"
)

func requires(ids ...boot.StepID) []boot.StepID { return ids }

// steps lists the boot sequence. The order is the execution order; Requires
// documents and, in debug mode, enforces it.
func (s *State) steps() []boot.Step {
	return []boot.Step{
		{ID: StepStorage, Run: s.initStorage},
		{ID: StepThreads, Requires: requires(StepStorage), Run: s.initThreads},
		{ID: StepSymbols, Requires: requires(StepStorage), Run: s.initSymbols},
		{ID: StepModules, Requires: requires(StepSymbols), Run: s.initModules},
		{ID: StepEngine, Requires: requires(StepStorage), Run: s.initEngine},
		{ID: StepAsyncs, Requires: requires(StepThreads), Run: s.initAsyncs},
		{ID: StepSignals, Requires: requires(StepAsyncs), Run: s.initSignals},
		{ID: StepPrimitives, Requires: requires(StepEngine, StepSymbols, StepModules), Run: s.registerPrimitives},
		{ID: StepWASI, Requires: requires(StepEngine, StepModules), Run: s.initWASI},
		{ID: StepPorts, Requires: requires(StepStorage), Run: s.initPorts},
		{ID: StepStandardPorts, Requires: requires(StepPorts), Run: s.initStandardPorts},
		{ID: StepFeatures, Requires: requires(StepSymbols), Run: s.initFeatures},
		{ID: StepLoadPath, Requires: requires(StepFeatures), Run: s.initLoadPath},
		{ID: StepBootScript, Requires: requires(StepPrimitives, StepWASI, StepStandardPorts, StepLoadPath), Run: s.loadStartupModules},
	}
}

// Steps returns the boot sequence in execution order, including steps added
// with WithStep.
func (s *State) Steps() []boot.Step {
	return s.gate.Sequence().Steps()
}

func (s *State) initStorage(context.Context) error {
	cache, err := engine.NewCache(s.cfg.CacheDir)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()
	return nil
}

func (s *State) initThreads(context.Context) error {
	base := s.gate.StackBase()
	s.threads.setBase(base)
	s.log.Debug("stack base recorded", zap.Uintptr("base", uintptr(base)))
	return nil
}

func (s *State) initSymbols(context.Context) error {
	s.mu.Lock()
	s.symbols = NewSymbols()
	s.mu.Unlock()
	return nil
}

func (s *State) initModules(context.Context) error {
	s.mu.Lock()
	s.modules = NewModules(s.symbols)
	s.mu.Unlock()
	return nil
}

func (s *State) initEngine(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine.New(ctx, engine.Config{
		Cache:            s.cache,
		MemoryLimitPages: s.cfg.MemoryLimitPages,
		EnableThreads:    s.cfg.WasmThreads,
	})
	return nil
}

func (s *State) initAsyncs(context.Context) error {
	s.mu.Lock()
	s.asyncs = NewAsyncs(s.log)
	s.mu.Unlock()
	return nil
}

func (s *State) initSignals(context.Context) error {
	s.mu.Lock()
	s.signals = NewSignals(s.asyncs)
	s.mu.Unlock()
	return nil
}

func (s *State) initWASI(ctx context.Context) error {
	return s.Engine().InitWASI(ctx)
}

func (s *State) initPorts(context.Context) error {
	opts := append([]port.FactoryOption{port.WithTable(port.NewTable())}, s.portOpts...)
	s.mu.Lock()
	s.factory = port.NewFactory(opts...)
	s.mu.Unlock()
	return nil
}

func (s *State) initStandardPorts(context.Context) error {
	std := s.PortFactory().Standard()
	s.mu.Lock()
	s.std = std
	s.mu.Unlock()
	s.log.Debug("standard ports",
		zap.String("input", std.Input.Mode().String()),
		zap.Bool("input_void", std.Input.Void()),
		zap.String("output", std.Output.Mode().String()),
		zap.Bool("output_void", std.Output.Void()),
		zap.String("error", std.Error.Mode().String()),
		zap.Bool("error_void", std.Error.Void()))
	return nil
}

func (s *State) initFeatures(context.Context) error {
	f := NewFeatures(s.Symbols())
	for _, name := range []string{"wasm", "wasi-preview1", "ports", goruntime.GOOS, goruntime.GOARCH} {
		f.Provide(name)
	}
	if s.cfg.Debug {
		f.Provide("debug")
	}
	if s.cfg.WasmThreads {
		f.Provide("threads")
	}
	s.mu.Lock()
	s.features = f
	s.mu.Unlock()
	return nil
}

func (s *State) initLoadPath(context.Context) error {
	path := s.cfg.SearchPath()
	s.mu.Lock()
	s.loadPath = path
	s.mu.Unlock()
	s.log.Debug("load path", zap.Strings("dirs", path))
	return nil
}
