package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Phase indicates where in the host lifecycle the error occurred
type Phase string

const (
	PhaseConfig  Phase = "config"  // configuration loading
	PhaseBoot    Phase = "boot"    // boot sequence steps
	PhaseStream  Phase = "stream"  // standard stream wrapping
	PhaseLoad    Phase = "load"    // boot module resolution and loading
	PhaseHost    Phase = "host"    // primitive registration
	PhaseEntry   Phase = "entry"   // host entry point and managed context
	PhaseRuntime Phase = "runtime" // calls into guest modules
	PhaseExit    Phase = "exit"    // exit hooks and cleanup
)

// Kind categorizes the error
type Kind string

const (
	KindFatalBoot         Kind = "fatal_boot"
	KindOrdering          Kind = "ordering"
	KindDescriptorFault   Kind = "descriptor_fault"
	KindReentrantExit     Kind = "reentrant_exit"
	KindMissingBootScript Kind = "missing_boot_script"
	KindAllocation        Kind = "allocation"
	KindNotFound          Kind = "not_found"
	KindNotInitialized    Kind = "not_initialized"
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidData       Kind = "invalid_data"
	KindRegistration      Kind = "registration"
	KindInstantiation     Kind = "instantiation"
	KindClosed            Kind = "closed"
)

// Error is the structured error type used throughout the host
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Step   string
	Name   string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Step != "" {
		b.WriteString(" in step ")
		b.WriteString(e.Step)
	}

	if e.Name != "" {
		b.WriteString(" (")
		b.WriteString(e.Name)
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Step sets the boot step identifier
func (b *Builder) Step(id string) *Builder {
	b.err.Step = id
	return b
}

// Name sets the subject name (descriptor, module, script)
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Boot sequence constructors

// FatalBoot creates the error reported when a boot step fails.
func FatalBoot(step string, cause error) *Error {
	return &Error{
		Phase:  PhaseBoot,
		Kind:   KindFatalBoot,
		Step:   step,
		Detail: "boot step failed",
		Cause:  cause,
	}
}

// Ordering creates the error reported when a step runs before one of its
// prerequisites.
func Ordering(step string, missing []string) *Error {
	return &Error{
		Phase:  PhaseBoot,
		Kind:   KindOrdering,
		Step:   step,
		Value:  missing,
		Detail: fmt.Sprintf("prerequisites not completed: %s", strings.Join(missing, ", ")),
	}
}

// DescriptorFault creates a standard stream wrapping error.
func DescriptorFault(fd int, mode string, cause error) *Error {
	return &Error{
		Phase:  PhaseStream,
		Kind:   KindDescriptorFault,
		Name:   fmt.Sprintf("fd %d", fd),
		Detail: fmt.Sprintf("cannot wrap descriptor with mode %q", mode),
		Value:  fd,
		Cause:  cause,
	}
}

// ReentrantExit creates the error reported when the process exits while
// initialization is still running.
func ReentrantExit() *Error {
	return &Error{
		Phase:  PhaseExit,
		Kind:   KindReentrantExit,
		Detail: "Cannot exit gracefully when init is in progress; aborting.",
	}
}

// MissingBootScript creates the error for a required boot module that is not
// on the search path.
func MissingBootScript(name string, path []string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMissingBootScript,
		Name:   name,
		Value:  path,
		Detail: fmt.Sprintf("unable to find %q in load path [%s]", name, strings.Join(path, string(filepath.ListSeparator))),
	}
}

// Allocation creates an error for exhausted bookkeeping capacity.
func Allocation(phase Phase, what string, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Value:  limit,
		Detail: fmt.Sprintf("cannot allocate %s (limit %d)", what, limit),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Name:   name,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, namespace, name string, cause error) *Error {
	detail := "register " + namespace
	if name != "" {
		detail += "#" + name
	}
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Name:   name,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Config creates a configuration error
func Config(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}
