package runtime

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	goruntime "runtime"
	"sync"
	"testing"

	"github.com/wippyai/wasm-host/config"
	"github.com/wippyai/wasm-host/testbed"
)

// closedFd is far above any descriptor a test process opens.
const closedFd = 987654

// fakeProcess records exits and aborts. Both end the calling goroutine, so
// code after them does not run, like the real process.
type fakeProcess struct {
	codes  []int
	aborts []string
	mu     sync.Mutex
}

func (p *fakeProcess) Exit(code int) {
	p.mu.Lock()
	p.codes = append(p.codes, code)
	p.mu.Unlock()
	goruntime.Goexit()
}

func (p *fakeProcess) Abort(msg string) {
	p.mu.Lock()
	p.aborts = append(p.aborts, msg)
	p.mu.Unlock()
	goruntime.Goexit()
}

func (p *fakeProcess) exits() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.codes...)
}

func (p *fakeProcess) aborted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.aborts...)
}

// inGoroutine runs fn on its own goroutine and waits for it, whether it
// returns or ends through the fake process.
func inGoroutine(fn func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	<-done
}

type harness struct {
	state *State
	proc  *fakeProcess
	out   *os.File
	errf  *os.File
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.SiteDir = ""
	cfg.LibraryDir = ""
	cfg.SkipBootScript = true
	cfg.Debug = true
	return cfg
}

func newHarness(t *testing.T, cfg config.Config, opts ...Option) *harness {
	t.Helper()
	dir := t.TempDir()
	out, err := os.Create(filepath.Join(dir, "stdout"))
	if err != nil {
		t.Fatal(err)
	}
	errf, err := os.Create(filepath.Join(dir, "stderr"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		out.Close()
		errf.Close()
	})

	proc := &fakeProcess{}
	base := []Option{
		WithProcess(proc),
		WithDescriptors(closedFd, int(out.Fd()), int(errf.Fd())),
		WithTerminalProbe(func(int) bool { return false }),
	}
	s, err := New(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })

	return &harness{state: s, proc: proc, out: out, errf: errf}
}

func (h *harness) boot(args []string, main MainFunc) {
	inGoroutine(func() { h.state.Boot(args, main, nil) })
}

func (h *harness) stdout(t *testing.T) string {
	t.Helper()
	return readFile(t, h.out.Name())
}

func (h *harness) stderr(t *testing.T) string {
	t.Helper()
	return readFile(t, h.errf.Name())
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func writeModule(t *testing.T, dir, file string, bin []byte) string {
	t.Helper()
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, bin, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

var strSig = testbed.FuncType{Params: []byte{testbed.I32, testbed.I32}}

// guestCalling builds a module whose start function calls each named
// (ptr, len) primitive with msg.
func guestCalling(msg string, prims ...string) []byte {
	m := testbed.Module{
		Types:        []testbed.FuncType{strSig, {}},
		HasMemory:    true,
		MemoryPages:  1,
		ExportMemory: "memory",
		Data:         []testbed.Data{{Offset: 0, Bytes: []byte(msg)}},
		HasStart:     true,
		Start:        len(prims),
	}
	var body []byte
	for i, name := range prims {
		m.Imports = append(m.Imports, testbed.Import{Module: PrimitivesModule, Name: name, Type: 0})
		body = append(body, testbed.Seq(testbed.I32Const(0), testbed.I32Const(int32(len(msg))), testbed.Call(uint32(i)))...)
	}
	m.Funcs = []testbed.Func{{Type: 1, Body: body}}
	return m.Encode()
}

// guestExiting builds a module whose start function calls exit(code).
func guestExiting(code int32) []byte {
	return testbed.Module{
		Types:    []testbed.FuncType{{Params: []byte{testbed.I32}}, {}},
		Imports:  []testbed.Import{{Module: PrimitivesModule, Name: "exit", Type: 0}},
		Funcs:    []testbed.Func{{Type: 1, Body: testbed.Seq(testbed.I32Const(code), testbed.Call(0))}},
		HasStart: true,
		Start:    1,
	}.Encode()
}

// guestExitingWithArgCount builds a module that exits with arg_count().
func guestExitingWithArgCount() []byte {
	return testbed.Module{
		Types: []testbed.FuncType{
			{Params: []byte{testbed.I32}},
			{Results: []byte{testbed.I32}},
			{},
		},
		Imports: []testbed.Import{
			{Module: PrimitivesModule, Name: "exit", Type: 0},
			{Module: PrimitivesModule, Name: "arg_count", Type: 1},
		},
		Funcs:    []testbed.Func{{Type: 2, Body: testbed.Seq(testbed.Call(1), testbed.Call(0))}},
		HasStart: true,
		Start:    2,
	}.Encode()
}

// guestWASIWrite builds a module that writes msg to fd 1 with fd_write.
func guestWASIWrite(msg string) []byte {
	iov := make([]byte, 8)
	binary.LittleEndian.PutUint32(iov[0:], 16)
	binary.LittleEndian.PutUint32(iov[4:], uint32(len(msg)))

	return testbed.Module{
		Types: []testbed.FuncType{
			{Params: []byte{testbed.I32, testbed.I32, testbed.I32, testbed.I32}, Results: []byte{testbed.I32}},
			{},
		},
		Imports:      []testbed.Import{{Module: "wasi_snapshot_preview1", Name: "fd_write", Type: 0}},
		HasMemory:    true,
		MemoryPages:  1,
		ExportMemory: "memory",
		Data: []testbed.Data{
			{Offset: 0, Bytes: iov},
			{Offset: 16, Bytes: []byte(msg)},
		},
		Funcs: []testbed.Func{{
			Type: 1,
			Body: testbed.Seq(
				testbed.I32Const(1), testbed.I32Const(0), testbed.I32Const(1), testbed.I32Const(8),
				testbed.Call(0), testbed.Drop(),
			),
		}},
		HasStart: true,
		Start:    1,
	}.Encode()
}
