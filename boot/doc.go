// Package boot runs a dependency-ordered initialization sequence exactly once.
//
// A Sequence is a list of (ID, Requires, Run) steps kept in a fixed total
// order. Dependencies are declared explicitly so the order can be checked,
// both statically with Validate and, in debug mode, before every step:
//
//	seq := boot.MustSequence(
//		boot.Step{ID: "storage", Run: initStorage},
//		boot.Step{ID: "engine", Requires: []boot.StepID{"storage"}, Run: initEngine},
//	)
//	gate := boot.NewGate(seq, boot.WithChecks(true))
//	if err := gate.Initialize(ctx, boot.CaptureStackBase()); err != nil {
//		// fatal: steps are not retried and nothing is rolled back
//	}
//
// A Gate guards the sequence with a non-reentrant lock. The first caller runs
// every step while holding it; concurrent callers block and then observe a
// no-op. Idle probes the lock without blocking, which lets exit-time code
// detect a boot still in progress instead of deadlocking on it.
//
// Tracers observe step transitions. They default to no-op, and a tracer that
// panics cannot affect the result of the boot.
package boot
