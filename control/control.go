// Package control provides the public surface of the steer control core.
//
// This package wraps the internal implementations and provides a clean
// public API for writing process controllers and hosting them: the event
// and decision shapes, the controller contract, the shared variable store,
// and the runtime that drives sequences.
//
// Example usage:
//
//	import (
//	    "github.com/steer-ml/steer/control"
//	    "github.com/steer-ml/steer/tokenizer"
//	)
//
//	env, _ := tokenizer.NewStatic(cfg)
//	rt := control.NewRuntime(env)
//
//	helper := rt.NewHelper()
//	ctrl := control.NewPhraseController(helper, phrase, 4)
//	seq := rt.Spawn(ctrl, prompt)
//
//	err := rt.Run(ctx, seq, sample)
package control

import (
	"context"
	"io"
	"log/slog"

	"github.com/steer-ml/steer/internal/bias"
	"github.com/steer-ml/steer/internal/control"
	"github.com/steer-ml/steer/internal/runtime"
	"github.com/steer-ml/steer/internal/store"
	"github.com/steer-ml/steer/internal/tokenenv"
	"github.com/steer-ml/steer/internal/toktrie"
)

// SeqID identifies one logical generation sequence.
type SeqID = control.SeqID

// Event shapes.
type (
	// Event is one inbound controller invocation.
	Event = control.Event
	// Append delivers tokens appended to the sequence history.
	Append = control.Append
	// ForkGroup resumes a member of a fork with its sibling ids.
	ForkGroup = control.ForkGroup
)

// Decision shapes.
type (
	// Decision is the single outbound result of one event.
	Decision = control.Decision
	// Stop terminates the sequence.
	Stop = control.Stop
	// SampleWithBias samples under the controller's bias vector.
	SampleWithBias = control.SampleWithBias
	// Splice rewrites recent history: backtrack then fast-forward.
	Splice = control.Splice
	// Fork splits the sequence into ranked copies.
	Fork = control.Fork
	// WaitAll suspends on variables existing and sequences finishing.
	WaitAll = control.WaitAll
)

// Controller is the per-sequence state machine contract.
type Controller = control.Controller

// Forker is implemented by controllers that support fork fan-out.
type Forker = control.Forker

// Helper bundles a controller's trie handle, bias vector and storage port.
type Helper = control.Helper

// StoragePort is the controller's view of the shared variable store.
type StoragePort = control.StoragePort

// BiasVector is the per-step allow/disallow bitmap.
type BiasVector = bias.Vector

// Store is the versioned shared-variable store.
type Store = store.Store

// Storage write ops.
const (
	OpSet    = store.OpSet
	OpAppend = store.OpAppend
)

// Runtime hosts the sequences of one generation request.
type Runtime = runtime.Runtime

// HostPort is the injected host-call boundary.
type HostPort = runtime.HostPort

// SampleFunc picks the next token under a bias constraint.
type SampleFunc = runtime.SampleFunc

// NewRuntime creates a runtime over a tokenizer environment.
func NewRuntime(env tokenenv.Env, opts ...runtime.Option) *Runtime {
	return runtime.New(env, opts...)
}

// WithLogger sets the runtime logger.
func WithLogger(log *slog.Logger) runtime.Option {
	return runtime.WithLogger(log)
}

// WithStore shares an existing variable store between runtimes.
func WithStore(s *Store) runtime.Option {
	return runtime.WithStore(s)
}

// NewLogger builds the conventional runtime logger.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return runtime.NewLogger(w, level)
}

// NewStore creates an empty variable store.
func NewStore() *Store {
	return store.New()
}

// NewPhraseController creates the reference single-sequence policy: sample
// freely for a bounded number of steps, then backtrack and splice a fixed
// phrase.
func NewPhraseController(helper *Helper, phrase []toktrie.TokenID, freeTokens int) Controller {
	return control.NewPhraseController(helper, phrase, freeTokens)
}

// NewVoteController creates the reference multi-sequence policy: fork
// ranked voters that coordinate through the variable store, then splice
// the tally.
func NewVoteController(helper *Helper, encode toktrie.EncodeFunc, children uint32) Controller {
	return control.NewVoteController(helper, encode, children)
}

// Run drives a sequence (and everything it forks) to termination.
func Run(ctx context.Context, rt *Runtime, id SeqID, sample SampleFunc) error {
	return rt.Run(ctx, id, sample)
}
