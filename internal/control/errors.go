package control

import "errors"

// Common errors.
var (
	// ErrInvalidResult marks a decision rejected before it reaches the
	// host: Splice{0, []} or Fork{0}.
	ErrInvalidResult = errors.New("invalid controller result")

	// ErrEmptyBias marks a SampleWithBias decision whose bias vector has
	// no true bit. The step is logically stuck; it is surfaced as an
	// error rather than silently masked.
	ErrEmptyBias = errors.New("sample requested with empty bias vector")

	// ErrStopped marks an event delivered to a sequence that already
	// returned Stop.
	ErrStopped = errors.New("sequence already stopped")

	// ErrUnexpectedFork marks a ForkGroup event without a preceding Fork
	// decision, or an Append while a fork is pending.
	ErrUnexpectedFork = errors.New("fork event does not match controller state")

	// ErrNotForkable marks a Fork decision from a controller that does
	// not implement Forker.
	ErrNotForkable = errors.New("controller cannot fork")
)
