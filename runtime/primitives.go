package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/errors"
)

// PrimitivesModule is the import module name of the host primitives.
const PrimitivesModule = "wasmhost"

var (
	i32  = api.ValueTypeI32
	none []api.ValueType
)

// registerPrimitives exports the host primitives to guests:
//
//	print(ptr, len)        write to the current output port
//	eprint(ptr, len)       write to the current error port
//	flush()                flush every port
//	provide(ptr, len)      add a feature
//	provided(ptr, len) i32 1 if the feature is present
//	exit(code)             stop the guest with an exit code
//	arg_count() i32        number of program arguments
func (s *State) registerPrimitives(ctx context.Context) error {
	_, err := s.Engine().HostModule(PrimitivesModule).
		Func("print", s.primWrite(false), []api.ValueType{i32, i32}, none).
		Func("eprint", s.primWrite(true), []api.ValueType{i32, i32}, none).
		Func("flush", s.primFlush, none, none).
		Func("provide", s.primProvide, []api.ValueType{i32, i32}, none).
		Func("provided", s.primProvided, []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Func("exit", primExit, []api.ValueType{i32}, none).
		Func("arg_count", s.primArgCount, none, []api.ValueType{i32}).
		Instantiate(ctx)
	return err
}

func (s *State) primWrite(toError bool) api.GoModuleFunc {
	return func(_ context.Context, mod api.Module, stack []uint64) {
		data := readGuest(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
		std := s.Standard()
		p := std.Output
		if toError {
			p = std.Error
		}
		if p == nil {
			return
		}
		if _, err := p.Write(data); err != nil {
			s.log.Warn("primitive write failed", zap.String("port", p.Name()), zap.Error(err))
		}
	}
}

func (s *State) primFlush(context.Context, api.Module, []uint64) {
	if t := s.Ports(); t != nil {
		if err := t.FlushAll(); err != nil {
			s.log.Warn("flush failed", zap.Error(err))
		}
	}
}

func (s *State) primProvide(_ context.Context, mod api.Module, stack []uint64) {
	name := readGuest(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	s.Features().Provide(string(name))
}

func (s *State) primProvided(_ context.Context, mod api.Module, stack []uint64) {
	name := readGuest(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	var ok uint32
	if s.Features().Provided(string(name)) {
		ok = 1
	}
	stack[0] = api.EncodeU32(ok)
}

func (s *State) primArgCount(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = api.EncodeU32(uint32(len(s.ProgramArguments())))
}

// primExit stops the calling module the way WASI proc_exit does.
func primExit(ctx context.Context, mod api.Module, stack []uint64) {
	code := api.DecodeU32(stack[0])
	_ = mod.CloseWithExitCode(ctx, code)
	panic(sys.NewExitError(code))
}

// readGuest copies len bytes at ptr out of the caller's memory. Out of range
// access traps the guest.
func readGuest(mod api.Module, ptr, n uint32) []byte {
	mem := mod.Memory()
	if mem == nil {
		panic(errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("module %q has no memory", mod.Name())))
	}
	data, ok := mem.Read(ptr, n)
	if !ok {
		panic(errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("read of %d bytes at %d is out of range", n, ptr)))
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}
