// Package errors provides structured error types for the wasm-host library.
//
// Errors are categorized by Phase (where in the host lifecycle the error
// occurred) and Kind (error category). The Error type carries the boot step,
// the subject name (descriptor, module, script) and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBoot, errors.KindFatalBoot).
//		Step("engine").
//		Detail("cannot create runtime").
//		Cause(cause).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.FatalBoot("engine", cause)
//	err := errors.MissingBootScript("boot", loadPath)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
