package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/errors"
)

// Config holds configuration for engine creation
type Config struct {
	// Cache is shared across engines when set; NewCache builds one.
	Cache wazero.CompilationCache

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	EnableThreads bool
}

// NewCache returns an in-memory compilation cache, or one backed by dir
// when dir is non-empty.
func NewCache(dir string) (wazero.CompilationCache, error) {
	if dir == "" {
		return wazero.NewCompilationCache(), nil
	}
	cache, err := wazero.NewCompilationCacheWithDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBoot, errors.KindInvalidInput, err, "compilation cache "+dir)
	}
	return cache, nil
}

// Engine owns a wazero runtime.
type Engine struct {
	runtime  wazero.Runtime
	wasiMu   sync.Mutex
	wasiDone atomic.Bool
	closed   atomic.Bool
}

// New creates an engine. Instances are closed when their call context is
// cancelled.
func New(ctx context.Context, cfg Config) *Engine {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.EnableThreads {
		runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	if cfg.Cache != nil {
		runtimeCfg = runtimeCfg.WithCompilationCache(cfg.Cache)
	}

	Logger().Debug("engine created",
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages),
		zap.Bool("threads", cfg.EnableThreads),
		zap.Bool("cache", cfg.Cache != nil))

	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Compile compiles a module binary. name is used in errors only.
func (e *Engine) Compile(ctx context.Context, name string, bin []byte) (wazero.CompiledModule, error) {
	if e.closed.Load() {
		return nil, errors.New(errors.PhaseLoad, errors.KindClosed).Name(name).Detail("engine closed").Build()
	}
	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).Name(name).Cause(err).Detail("compile failed").Build()
	}
	Logger().Debug("module compiled", zap.String("module", name), zap.Int("bytes", len(bin)))
	return compiled, nil
}

// Instantiate instantiates compiled with mc. A nil mc uses wazero's default
// module configuration. Errors are returned as wazero reports them so a
// guest exit stays visible as *sys.ExitError.
func (e *Engine) Instantiate(ctx context.Context, compiled wazero.CompiledModule, mc wazero.ModuleConfig) (api.Module, error) {
	if mc == nil {
		mc = wazero.NewModuleConfig()
	}
	return e.runtime.InstantiateModule(ctx, compiled, mc)
}

// Run compiles and instantiates bin. The compiled form is released once
// the instance exists; start functions have already run on return.
func (e *Engine) Run(ctx context.Context, name string, bin []byte, mc wazero.ModuleConfig) (api.Module, error) {
	compiled, err := e.Compile(ctx, name, bin)
	if err != nil {
		return nil, err
	}
	defer compiled.Close(ctx)

	return e.Instantiate(ctx, compiled, mc)
}

// Module returns an instantiated module by name, or nil.
func (e *Engine) Module(name string) api.Module {
	return e.runtime.Module(name)
}

// Close closes the runtime and every module it instantiated.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.runtime.Close(ctx)
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	return e.closed.Load()
}
