package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/errors"
)

// registerCleanup runs once, under the gate lock, right after the boot
// sequence completes.
func (s *State) registerCleanup() {
	s.exits.Register(s.cleanupForExit)
}

// cleanupForExit flushes every port before the process exits. Exiting while
// another goroutine is still inside the boot sequence aborts instead: the
// gate lock cannot be waited for from an exit path, and flushing half
// initialized ports is not safe.
func (s *State) cleanupForExit() {
	if !s.gate.Idle() {
		err := errors.ReentrantExit()
		s.log.Error("exit during initialization", zap.Error(err))
		s.exits.Abort(err.Detail)
		return
	}

	// The thread bound does not apply here: an exit from a full runtime
	// still flushes.
	err := s.enter(context.Background(), false, func(context.Context) error {
		if t := s.Ports(); t != nil {
			return t.FlushAll()
		}
		return nil
	})
	if err != nil {
		s.log.Warn("flush at exit failed", zap.Error(err))
	}
}
