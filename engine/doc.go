// Package engine wraps wazero for the host: runtime creation with a memory
// limit and a compilation cache, module compilation and instantiation, host
// module registration and WASI preview1.
//
// An Engine is created by the "engine" boot step and lives until the host
// state is closed. Instances are closed when the context of the call that
// runs them is cancelled.
package engine
