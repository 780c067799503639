package port

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wippyai/wasm-host/errors"
)

// Mode is the access mode of a port.
type Mode uint8

const (
	ModeRead Mode = 1 << iota
	ModeWrite
	// ModeUnbuffered disables the port's buffer; every Write reaches the
	// descriptor immediately and reads never consume ahead.
	ModeUnbuffered
)

// Readable reports whether the mode allows reads.
func (m Mode) Readable() bool { return m&ModeRead != 0 }

// Writable reports whether the mode allows writes.
func (m Mode) Writable() bool { return m&ModeWrite != 0 }

// Buffered reports whether the port buffers data.
func (m Mode) Buffered() bool { return m&ModeUnbuffered == 0 }

// String renders the mode the way fopen-style mode strings do: "r", "w",
// "rw", with a trailing "0" for unbuffered ports.
func (m Mode) String() string {
	var b strings.Builder
	if m.Readable() {
		b.WriteByte('r')
	}
	if m.Writable() {
		b.WriteByte('w')
	}
	if !m.Buffered() {
		b.WriteByte('0')
	}
	return b.String()
}

// Port is a readable and/or writable channel over a descriptor.
//
// A revealed port wraps a descriptor owned by someone else (the standard
// streams); Close only flushes it. Reads and writes are serialized
// separately, so a reader blocked on input never holds up a flush.
type Port struct {
	file     *os.File
	r        *bufio.Reader
	w        *bufio.Writer
	name     string
	rmu      sync.Mutex
	wmu      sync.Mutex
	fd       int
	closed   atomic.Bool
	mode     Mode
	revealed bool
	void     bool
}

func newPort(file *os.File, fd int, name string, mode Mode, revealed bool) *Port {
	p := &Port{
		file:     file,
		name:     name,
		fd:       fd,
		mode:     mode,
		revealed: revealed,
	}
	if mode.Buffered() {
		if mode.Readable() {
			p.r = bufio.NewReader(file)
		}
		if mode.Writable() {
			p.w = bufio.NewWriter(file)
		}
	}
	return p
}

// NewVoid returns a port that discards writes and reports end of input.
func NewVoid(mode Mode) *Port {
	return &Port{
		name: "void",
		fd:   -1,
		mode: mode,
		void: true,
	}
}

// Read reads from the port. A void port always returns io.EOF.
func (p *Port) Read(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, errors.New(errors.PhaseStream, errors.KindClosed).Name(p.name).Detail("read from closed port").Build()
	}
	if !p.mode.Readable() {
		return 0, errors.New(errors.PhaseStream, errors.KindInvalidInput).Name(p.name).Detail("port is not open for reading").Build()
	}
	if p.void {
		return 0, io.EOF
	}
	p.rmu.Lock()
	defer p.rmu.Unlock()
	if p.r != nil {
		return p.r.Read(b)
	}
	return p.file.Read(b)
}

// Write writes to the port. A void port accepts and discards everything.
func (p *Port) Write(b []byte) (int, error) {
	if !p.mode.Writable() {
		return 0, errors.New(errors.PhaseStream, errors.KindInvalidInput).Name(p.name).Detail("port is not open for writing").Build()
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.closed.Load() {
		return 0, errors.New(errors.PhaseStream, errors.KindClosed).Name(p.name).Detail("write to closed port").Build()
	}
	if p.void {
		return len(b), nil
	}
	if p.w != nil {
		return p.w.Write(b)
	}
	return p.file.Write(b)
}

// WriteString writes s to the port.
func (p *Port) WriteString(s string) (int, error) {
	return p.Write([]byte(s))
}

// Flush pushes buffered output to the descriptor.
func (p *Port) Flush() error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.flushLocked()
}

func (p *Port) flushLocked() error {
	if p.closed.Load() || p.void || p.w == nil {
		return nil
	}
	return p.w.Flush()
}

// Buffered returns the number of bytes waiting in the output buffer.
func (p *Port) Buffered() int {
	if p.w == nil {
		return 0
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.w.Buffered()
}

// Close flushes the port and, unless it is revealed, closes its descriptor.
func (p *Port) Close() error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.closed.Load() {
		return nil
	}
	err := p.flushLocked()
	p.closed.Store(true)
	if p.void || p.revealed {
		return err
	}
	if cerr := p.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Fd returns the wrapped descriptor, or -1 for a void port.
func (p *Port) Fd() int { return p.fd }

// Name returns a display name for the port.
func (p *Port) Name() string { return p.name }

// Mode returns the port's access mode.
func (p *Port) Mode() Mode { return p.mode }

// Revealed reports whether the descriptor is owned outside the runtime.
func (p *Port) Revealed() bool { return p.revealed }

// Void reports whether the port is a fallback sink.
func (p *Port) Void() bool { return p.void }

// Closed reports whether Close has been called.
func (p *Port) Closed() bool { return p.closed.Load() }
