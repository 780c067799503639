package runtime

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

// SignalFunc handles a delivered signal at the next async tick.
type SignalFunc func(ctx context.Context, sig os.Signal)

// Signals routes OS signals into the async queue. Handlers installed here
// override the process default until Restore.
type Signals struct {
	asyncs   *Asyncs
	handlers map[os.Signal]*signalHandler
	mu       sync.Mutex
}

type signalHandler struct {
	ch   chan os.Signal
	fn   SignalFunc
	done chan struct{}
}

// NewSignals creates a table that queues handlers on asyncs.
func NewSignals(asyncs *Asyncs) *Signals {
	return &Signals{asyncs: asyncs, handlers: make(map[os.Signal]*signalHandler)}
}

// Handle installs fn for sig, replacing any handler installed here before.
func (s *Signals) Handle(sig os.Signal, fn SignalFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.handlers[sig]; ok {
		old.stop()
	}

	h := &signalHandler{
		ch:   make(chan os.Signal, 1),
		fn:   fn,
		done: make(chan struct{}),
	}
	signal.Notify(h.ch, sig)
	go h.forward(s.asyncs)
	s.handlers[sig] = h
}

// Handled returns the signals that currently have a handler.
func (s *Signals) Handled() []os.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]os.Signal, 0, len(s.handlers))
	for sig := range s.handlers {
		out = append(out, sig)
	}
	return out
}

// Restore removes every handler and returns the signals to their previous
// disposition.
func (s *Signals) Restore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sig, h := range s.handlers {
		h.stop()
		delete(s.handlers, sig)
	}
}

func (h *signalHandler) forward(asyncs *Asyncs) {
	for {
		select {
		case sig := <-h.ch:
			fn := h.fn
			asyncs.Mark(func(ctx context.Context) { fn(ctx, sig) })
		case <-h.done:
			return
		}
	}
}

func (h *signalHandler) stop() {
	signal.Stop(h.ch)
	close(h.done)
}
