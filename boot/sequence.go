package boot

import (
	"context"
	"fmt"
	"time"

	"github.com/wippyai/wasm-host/errors"
)

// StepID names a boot step.
type StepID string

// Step is one subsystem initializer together with the steps it depends on.
// Run is a one-shot side effect; it is never retried.
type Step struct {
	Run      func(ctx context.Context) error
	ID       StepID
	Requires []StepID
}

// Sequence is a fixed, totally ordered list of boot steps. The order given at
// construction is the order of execution; dependencies are declared so the
// order can be verified, not to compute it.
type Sequence struct {
	index map[StepID]int
	steps []Step
}

// RunOptions controls a single Sequence.Run.
type RunOptions struct {
	Tracer Tracer
	// Check asserts, before every step, that all of its prerequisites have
	// already completed.
	Check bool
}

// NewSequence builds a sequence from steps in execution order.
// IDs must be unique and non-empty, every step needs a Run function and every
// prerequisite must name a step in the sequence. Order is not checked here;
// use Validate.
func NewSequence(steps ...Step) (*Sequence, error) {
	s := &Sequence{index: make(map[StepID]int, len(steps))}
	for _, step := range steps {
		if err := s.add(len(s.steps), step); err != nil {
			return nil, err
		}
	}
	for _, step := range s.steps {
		for _, req := range step.Requires {
			if _, ok := s.index[req]; !ok {
				return nil, errors.New(errors.PhaseBoot, errors.KindNotFound).
					Step(string(step.ID)).
					Name(string(req)).
					Detail("unknown prerequisite %q", req).
					Build()
			}
		}
	}
	return s, nil
}

// MustSequence is like NewSequence but panics on error.
func MustSequence(steps ...Step) *Sequence {
	s, err := NewSequence(steps...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Sequence) add(pos int, step Step) error {
	if step.ID == "" {
		return errors.InvalidInput(errors.PhaseBoot, "step has empty id")
	}
	if step.Run == nil {
		return errors.New(errors.PhaseBoot, errors.KindInvalidInput).
			Step(string(step.ID)).
			Detail("step has no run function").
			Build()
	}
	if _, dup := s.index[step.ID]; dup {
		return errors.New(errors.PhaseBoot, errors.KindInvalidInput).
			Step(string(step.ID)).
			Detail("duplicate step id").
			Build()
	}

	s.steps = append(s.steps, Step{})
	copy(s.steps[pos+1:], s.steps[pos:])
	s.steps[pos] = step
	s.reindex()
	return nil
}

func (s *Sequence) reindex() {
	for i, step := range s.steps {
		s.index[step.ID] = i
	}
}

// Append adds step at the end of the sequence. Its prerequisites must
// already be present.
func (s *Sequence) Append(step Step) error {
	for _, req := range step.Requires {
		if _, ok := s.index[req]; !ok {
			return errors.Ordering(string(step.ID), []string{string(req)})
		}
	}
	return s.add(len(s.steps), step)
}

// InsertAfter places step right after the step named after. Every
// prerequisite of step must be at or before that position.
func (s *Sequence) InsertAfter(after StepID, step Step) error {
	pos, ok := s.index[after]
	if !ok {
		return errors.NotFound(errors.PhaseBoot, "step", string(after))
	}
	var missing []string
	for _, req := range step.Requires {
		i, ok := s.index[req]
		if !ok || i > pos {
			missing = append(missing, string(req))
		}
	}
	if len(missing) > 0 {
		return errors.Ordering(string(step.ID), missing)
	}
	return s.add(pos+1, step)
}

// Validate reports the first step that is placed before one of its
// prerequisites.
func (s *Sequence) Validate() error {
	for i, step := range s.steps {
		var missing []string
		for _, req := range step.Requires {
			if j, ok := s.index[req]; !ok || j >= i {
				missing = append(missing, string(req))
			}
		}
		if len(missing) > 0 {
			return errors.Ordering(string(step.ID), missing)
		}
	}
	return nil
}

// IDs returns the step identifiers in execution order.
func (s *Sequence) IDs() []StepID {
	ids := make([]StepID, len(s.steps))
	for i, step := range s.steps {
		ids[i] = step.ID
	}
	return ids
}

// Steps returns a copy of the steps in execution order.
func (s *Sequence) Steps() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// Len returns the number of steps.
func (s *Sequence) Len() int {
	return len(s.steps)
}

// Run executes every step once, in order. The first failure stops the
// sequence; steps that already ran are not undone.
func (s *Sequence) Run(ctx context.Context, opts RunOptions) error {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = NopTracer()
	}

	done := make(map[StepID]struct{}, len(s.steps))
	for i, step := range s.steps {
		if opts.Check {
			if missing := missingPrerequisites(step, done); len(missing) > 0 {
				err := errors.Ordering(string(step.ID), missing)
				emit(tracer, Event{Kind: EventFailed, Step: step.ID, Index: i, Total: len(s.steps), Err: err})
				return errors.FatalBoot(string(step.ID), err)
			}
		}

		emit(tracer, Event{Kind: EventStart, Step: step.ID, Index: i, Total: len(s.steps)})
		start := time.Now()
		err := runStep(ctx, step)
		elapsed := time.Since(start)
		if err != nil {
			emit(tracer, Event{Kind: EventFailed, Step: step.ID, Index: i, Total: len(s.steps), Elapsed: elapsed, Err: err})
			return errors.FatalBoot(string(step.ID), err)
		}
		emit(tracer, Event{Kind: EventDone, Step: step.ID, Index: i, Total: len(s.steps), Elapsed: elapsed})

		done[step.ID] = struct{}{}
	}
	return nil
}

// runStep converts a panicking step into an error so the gate can record the
// failure instead of leaving the lock state undefined.
func runStep(ctx context.Context, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.Run(ctx)
}

func missingPrerequisites(step Step, done map[StepID]struct{}) []string {
	var missing []string
	for _, req := range step.Requires {
		if _, ok := done[req]; !ok {
			missing = append(missing, string(req))
		}
	}
	return missing
}
