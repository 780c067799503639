package runtime

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Asyncs queues callbacks to run at the next safe point instead of where
// they were raised, for example from a signal handler.
type Asyncs struct {
	log   *zap.Logger
	queue []func(context.Context)
	mu    sync.Mutex
}

// NewAsyncs creates an empty queue. Panicking callbacks are logged to log.
func NewAsyncs(log *zap.Logger) *Asyncs {
	if log == nil {
		log = zap.NewNop()
	}
	return &Asyncs{log: log}
}

// Mark queues fn.
func (a *Asyncs) Mark(fn func(context.Context)) {
	a.mu.Lock()
	a.queue = append(a.queue, fn)
	a.mu.Unlock()
}

// Pending returns the number of queued callbacks.
func (a *Asyncs) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Tick runs queued callbacks until the queue is empty, including callbacks
// queued by the ones it runs, and returns how many ran.
func (a *Asyncs) Tick(ctx context.Context) int {
	ran := 0
	for {
		a.mu.Lock()
		batch := a.queue
		a.queue = nil
		a.mu.Unlock()

		if len(batch) == 0 {
			return ran
		}
		for _, fn := range batch {
			a.run(ctx, fn)
			ran++
		}
	}
}

func (a *Asyncs) run(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("async callback panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn(ctx)
}
