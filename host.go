package wasmhost

import (
	"github.com/wippyai/wasm-host/runtime"
)

// MainFunc is the host callback run by Boot.
type MainFunc = runtime.MainFunc

// ExitCode requests a specific exit status when returned from a MainFunc.
type ExitCode = runtime.ExitCode

// Boot runs main inside the process-wide runtime and exits with its
// status. It never returns.
func Boot(args []string, main MainFunc, data any) {
	runtime.Default().Boot(args, main, data)
}

// Exit flushes every port and terminates the process with code.
func Exit(code int) {
	runtime.Default().Exit(code)
}

// State returns the process-wide runtime state used by Boot.
func State() *runtime.State {
	return runtime.Default()
}
