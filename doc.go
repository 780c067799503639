// Package wasmhost embeds a WebAssembly runtime in a Go host process.
//
// The host hands control to Boot once, from main:
//
//	func main() {
//	    wasmhost.Boot(os.Args, func(ctx context.Context, _ any, args []string) error {
//	        _, err := wasmhost.State().Standard().Output.WriteString("ok")
//	        return err
//	    }, nil)
//	}
//
// Boot initializes the runtime exactly once, wraps the standard descriptors
// as ports, loads the boot module found on the load path, runs the callback
// and exits the process with the callback's status.
//
// # Packages
//
//	wasmhost/       Boot entry point
//	├── runtime/    process state, boot steps, managed context, exit path
//	├── boot/       init gate and ordered boot sequence
//	├── port/       standard stream factory and port table
//	├── engine/     wazero engine, host modules, WASI
//	├── exithook/   process exit hooks
//	├── config/     configuration (TOML, WASMHOST_* environment)
//	├── errors/     structured error types
//	└── testbed/    WebAssembly binaries for tests
//
// # Configuration
//
// Settings come from defaults, ~/.config/wasmhost/config.toml (or the file
// named by WASMHOST_CONFIG) and WASMHOST_* variables. WASMHOST_LOAD_PATH is
// a list separated like PATH.
package wasmhost
