package port

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/errors"
)

// Result is the outcome of wrapping a descriptor.
type Result struct {
	Port *Port
	Err  error
}

// OK reports whether the descriptor was wrapped.
func (r Result) OK() bool { return r.Err == nil && r.Port != nil }

// Standard holds the current input, output, error and warning ports.
// Warning is the same port as Error.
type Standard struct {
	Input   *Port
	Output  *Port
	Error   *Port
	Warning *Port
}

// Factory converts descriptors into ports and registers them in a table.
type Factory struct {
	table      *Table
	isTerminal func(fd int) bool
	stdio      [3]int
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithTable registers wrapped ports in t instead of a private table.
func WithTable(t *Table) FactoryOption {
	return func(f *Factory) { f.table = t }
}

// WithTerminalProbe replaces the isatty check used to pick buffering.
func WithTerminalProbe(fn func(fd int) bool) FactoryOption {
	return func(f *Factory) { f.isTerminal = fn }
}

// WithDescriptors overrides the descriptors used by Standard.
func WithDescriptors(in, out, errFd int) FactoryOption {
	return func(f *Factory) { f.stdio = [3]int{in, out, errFd} }
}

// NewFactory creates a factory for the process's standard descriptors.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		isTerminal: IsTerminal,
		stdio:      [3]int{0, 1, 2},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.table == nil {
		f.table = NewTable()
	}
	return f
}

// Table returns the table wrapped ports are registered in.
func (f *Factory) Table() *Table {
	return f.table
}

// Open wraps fd as a revealed port. The descriptor is checked with fstat and
// its access mode must cover mode; nothing is read or written.
func (f *Factory) Open(fd int, mode Mode) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: errors.DescriptorFault(fd, mode.String(), fmt.Errorf("panic: %v", r))}
		}
	}()

	if !mode.Readable() && !mode.Writable() {
		return Result{Err: errors.DescriptorFault(fd, mode.String(), os.ErrInvalid)}
	}
	if fd < 0 {
		return Result{Err: errors.DescriptorFault(fd, mode.String(), os.ErrInvalid)}
	}

	if err := checkAccess(fd, mode); err != nil {
		return Result{Err: errors.DescriptorFault(fd, mode.String(), err)}
	}

	file := descriptorFile(fd)
	if file == nil {
		return Result{Err: errors.DescriptorFault(fd, mode.String(), os.ErrInvalid)}
	}
	if _, err := file.Stat(); err != nil {
		return Result{Err: errors.DescriptorFault(fd, mode.String(), err)}
	}

	p := newPort(file, fd, file.Name(), mode, true)
	f.table.Add(p)
	return Result{Port: p}
}

// Wrap is Open with a guaranteed port: any failure yields a void port of the
// same mode, and no error crosses this call.
func (f *Factory) Wrap(fd int, mode Mode) *Port {
	res := f.Open(fd, mode)
	if res.OK() {
		return res.Port
	}
	Logger().Debug("descriptor replaced by void port",
		zap.Int("fd", fd),
		zap.Stringer("mode", mode),
		zap.Error(res.Err))
	return f.Void(mode)
}

// Void creates and registers a void port.
func (f *Factory) Void(mode Mode) *Port {
	p := NewVoid(mode)
	f.table.Add(p)
	return p
}

// Standard wraps the input, output and error descriptors. Each one is
// unbuffered when attached to a terminal and buffered otherwise.
func (f *Factory) Standard() Standard {
	in := f.Wrap(f.stdio[0], f.modeFor(f.stdio[0], ModeRead))
	out := f.Wrap(f.stdio[1], f.modeFor(f.stdio[1], ModeWrite))
	errp := f.Wrap(f.stdio[2], f.modeFor(f.stdio[2], ModeWrite))
	return Standard{
		Input:   in,
		Output:  out,
		Error:   errp,
		Warning: errp,
	}
}

func (f *Factory) modeFor(fd int, base Mode) Mode {
	if f.isTerminal(fd) {
		return base | ModeUnbuffered
	}
	return base
}

// OpenFile opens path as a runtime-owned port. Closing it closes the file.
func (f *Factory) OpenFile(path string, mode Mode) (*Port, error) {
	flag := os.O_RDONLY
	switch {
	case mode.Readable() && mode.Writable():
		flag = os.O_RDWR | os.O_CREATE
	case mode.Writable():
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	file, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, errors.New(errors.PhaseStream, errors.KindNotFound).Name(path).Cause(err).Detail("open port").Build()
	}
	p := newPort(file, int(file.Fd()), path, mode, false)
	f.table.Add(p)
	return p, nil
}

var (
	pinnedMu sync.Mutex
	pinned   = map[int]*os.File{}
)

// descriptorFile returns an *os.File for a descriptor the runtime does not
// own. Files created here stay reachable for the life of the process, so the
// os.File finalizer never closes a foreign descriptor.
func descriptorFile(fd int) *os.File {
	switch fd {
	case 0:
		return os.Stdin
	case 1:
		return os.Stdout
	case 2:
		return os.Stderr
	}

	pinnedMu.Lock()
	defer pinnedMu.Unlock()
	if f, ok := pinned[fd]; ok {
		return f
	}
	f := os.NewFile(uintptr(fd), fmt.Sprintf("fd%d", fd))
	if f != nil {
		pinned[fd] = f
	}
	return f
}
