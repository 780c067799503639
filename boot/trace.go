package boot

import (
	"time"

	"go.uber.org/zap"
)

// EventKind tells whether a trace event marks the start or the end of a step.
type EventKind int

const (
	EventStart EventKind = iota
	EventDone
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventDone:
		return "done"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event describes one boot step transition.
type Event struct {
	Err     error
	Step    StepID
	Kind    EventKind
	Index   int
	Total   int
	Elapsed time.Duration
}

// Tracer observes boot steps. A tracer can never change the outcome of the
// boot: panics are swallowed and nothing is returned.
type Tracer interface {
	Trace(Event)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(Event)

func (f TracerFunc) Trace(e Event) { f(e) }

type nopTracer struct{}

func (nopTracer) Trace(Event) {}

// NopTracer returns a tracer that does nothing.
func NopTracer() Tracer { return nopTracer{} }

// MultiTracer fans events out to every tracer in order.
func MultiTracer(tracers ...Tracer) Tracer {
	return TracerFunc(func(e Event) {
		for _, t := range tracers {
			emit(t, e)
		}
	})
}

// ZapTracer logs step transitions at debug level and failures at error level.
func ZapTracer(l *zap.Logger) Tracer {
	if l == nil {
		return NopTracer()
	}
	return TracerFunc(func(e Event) {
		fields := []zap.Field{
			zap.String("step", string(e.Step)),
			zap.Int("index", e.Index),
			zap.Int("total", e.Total),
		}
		switch e.Kind {
		case EventStart:
			l.Debug("boot step start", fields...)
		case EventDone:
			l.Debug("boot step done", append(fields, zap.Duration("elapsed", e.Elapsed))...)
		case EventFailed:
			l.Error("boot step failed", append(fields, zap.Duration("elapsed", e.Elapsed), zap.Error(e.Err))...)
		}
	})
}

func emit(t Tracer, e Event) {
	if t == nil {
		return
	}
	defer func() { _ = recover() }()
	t.Trace(e)
}
