package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

// ExitCode is an error a MainFunc returns to request a specific exit status.
type ExitCode int

func (c ExitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(c))
}

type closure struct {
	main MainFunc
	data any
	args []string
}

// Boot enters the managed context, initializes the runtime on first use,
// runs main and exits the process with its status. It never returns.
//
// A nil error exits 0. ExitCode and wazero's *sys.ExitError keep their
// code. Any other error is printed on the current error port and exits 1.
// A boot sequence failure aborts without running exit hooks.
//
// Boot may be called again; later calls skip initialization.
func (s *State) Boot(args []string, main MainFunc, data any) {
	c := closure{main: main, data: data, args: slices.Clone(args)}
	if len(c.args) > 0 {
		c.args[0] = filepath.ToSlash(c.args[0])
	}

	var code int
	err := s.Enter(context.Background(), func(ctx context.Context) error {
		code = s.invoke(ctx, c)
		return nil
	})
	if err != nil {
		s.log.Error("boot failed", zap.Error(err))
		s.exits.Abort(fmt.Sprintf("wasmhost: %v", err))
		return
	}
	s.exits.Exit(code)
}

func (s *State) invoke(ctx context.Context, c closure) int {
	s.SetProgramArguments(c.args)

	err := callMain(ctx, c)

	s.Signals().Restore()
	s.Asyncs().Tick(ctx)

	return s.exitCode(err)
}

func callMain(ctx context.Context, c closure) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if c.main == nil {
		return nil
	}
	return c.main(ctx, c.data, c.args)
}

func (s *State) exitCode(err error) int {
	if err == nil {
		return 0
	}

	var code ExitCode
	if stderrors.As(err, &code) {
		return int(code)
	}
	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		return int(exit.ExitCode())
	}

	if p := s.Standard().Error; p != nil {
		fmt.Fprintf(p, "wasmhost: %v\n", err)
		_ = p.Flush()
	}
	s.log.Debug("main failed", zap.Error(err))
	return 1
}
