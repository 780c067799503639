package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/errors"
)

// WASIModule is the import module name of WASI preview1.
const WASIModule = wasi_snapshot_preview1.ModuleName

const (
	ebadf     = 8          // POSIX EBADF error code
	invalidFD = 0xFFFFFFFF // -1 as uint32
)

// HostModule collects Go functions exported to guests under one module name.
type HostModule struct {
	engine  *Engine
	builder wazero.HostModuleBuilder
	name    string
	exports []string
}

// HostModule starts a host module named name.
func (e *Engine) HostModule(name string) *HostModule {
	return &HostModule{
		engine:  e,
		builder: e.runtime.NewHostModuleBuilder(name),
		name:    name,
	}
}

// Func exports fn as name with the given core signature.
func (h *HostModule) Func(name string, fn api.GoModuleFunc, params, results []api.ValueType) *HostModule {
	h.builder = h.builder.NewFunctionBuilder().
		WithGoModuleFunction(fn, params, results).
		WithName(name).
		Export(name)
	h.exports = append(h.exports, name)
	return h
}

// Exports returns the function names added so far.
func (h *HostModule) Exports() []string {
	return append([]string(nil), h.exports...)
}

// Instantiate registers the module with the runtime.
func (h *HostModule) Instantiate(ctx context.Context) (api.Module, error) {
	mod, err := h.builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Registration(errors.PhaseHost, h.name, "", err)
	}
	Logger().Debug("host module registered", zap.String("module", h.name), zap.Strings("exports", h.exports))
	return mod, nil
}

// InitWASI instantiates WASI preview1 once per engine. Concurrent callers
// wait for the first.
func (e *Engine) InitWASI(ctx context.Context) error {
	if e.wasiDone.Load() {
		return nil
	}

	e.wasiMu.Lock()
	defer e.wasiMu.Unlock()

	if e.wasiDone.Load() {
		return nil
	}

	if e.runtime.Module(WASIModule) == nil {
		if _, err := instantiateWASI(ctx, e.runtime); err != nil {
			return errors.Registration(errors.PhaseHost, WASIModule, "", err)
		}
	}

	e.wasiDone.Store(true)
	return nil
}

// instantiateWASI exports preview1 plus the adapter stubs expected by
// modules built with the preview1 component adapter.
func instantiateWASI(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(WASIModule)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, _ []uint64) {
		}), nil, nil).
		Export("reset_adapter_state")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = ebadf
		}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("adapter_close_badfd")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = invalidFD
		}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("adapter_open_badfd")

	return builder.Instantiate(ctx)
}
