// Package runtime embeds a WebAssembly runtime in the host process and owns
// its lifecycle: one-time initialization, the managed execution context,
// standard ports, boot modules and the exit path.
//
// # Lifecycle
//
//	s, err := runtime.New(config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s.Boot(os.Args, func(ctx context.Context, data any, args []string) error {
//	    _, err := s.Standard().Output.WriteString("ok")
//	    return err
//	}, nil)
//
// Boot never returns. The first Boot or Enter runs the boot sequence under
// the init gate:
//
//	storage         compilation cache
//	threads         stack base of the booting goroutine
//	symbols         interned names
//	modules         registry of loaded guest modules
//	engine          wazero runtime
//	asyncs          deferred callback queue
//	signals         signal table feeding asyncs
//	primitives      the "wasmhost" host module
//	wasi            wasi_snapshot_preview1
//	ports           port table
//	standard-ports  current input, output, error and warning
//	features        feature list
//	load-path       module search path
//	boot-script     required boot module, then the optional site module
//
// With Config.Debug set, every step asserts that its prerequisites already
// ran. Once the sequence completes an exit hook is registered that flushes
// every port when the process exits through State.Exit or Boot.
//
// # Standard ports
//
// Descriptors 0, 1 and 2 are wrapped once. A broken descriptor becomes a
// void port rather than a boot failure. Terminals are unbuffered; anything
// else is buffered and flushed at exit.
//
// # Exit status
//
// A nil error from the callback exits 0. ExitCode(n) and a guest
// *sys.ExitError keep their code; any other error is printed on the error
// port and exits 1.
package runtime
