package control

import (
	"github.com/steer-ml/steer/internal/store"
	"github.com/steer-ml/steer/internal/toktrie"
)

// SeqID identifies one logical generation sequence within a request.
type SeqID uint32

// Event is one inbound controller invocation.
type Event interface {
	isEvent()
}

// Append delivers tokens appended to the sequence history.
//
// Tokens is empty only on the very first call, which requests the bias for
// the first generated token. After an ordinary sample it holds exactly one
// id; it holds more than one id only immediately after this controller
// requested a splice.
type Append struct {
	Tokens []toktrie.TokenID
}

// ForkGroup is delivered only after this controller emitted a Fork decision
// with NumChildren >= 2. Group lists the sibling sequence ids created by
// the fork, rank 0 (the original) first.
type ForkGroup struct {
	Group []SeqID
}

func (Append) isEvent()    {}
func (ForkGroup) isEvent() {}

// Decision is the single outbound result of processing one event.
type Decision interface {
	isDecision()
}

// Stop terminates the sequence; no further event will be delivered.
type Stop struct{}

// SampleWithBias asks the host to sample the next token against the
// controller's already-populated bias vector.
type SampleWithBias struct{}

// Splice asks the host to remove the Backtrack most recent tokens from
// history and then deterministically append FFTokens. At least one of the
// two must be non-trivial.
type Splice struct {
	Backtrack uint32
	FFTokens  []toktrie.TokenID
}

// Fork splits the sequence into NumChildren logical copies sharing history
// so far. NumChildren == 1 is a valid no-op fork; 0 is invalid.
type Fork struct {
	NumChildren uint32
}

// WaitAll suspends the sequence until every named variable exists and every
// listed sequence is terminal. The conjunction is re-evaluated as a whole
// on each re-invocation; there is no partial wake.
type WaitAll struct {
	Variables []string
	Finished  []SeqID
}

func (Stop) isDecision()           {}
func (SampleWithBias) isDecision() {}
func (Splice) isDecision()         {}
func (Fork) isDecision()           {}
func (WaitAll) isDecision()        {}

// Validate rejects decisions the host must never see: a Splice with both
// fields empty and a Fork with zero children.
func Validate(d Decision) error {
	switch d := d.(type) {
	case Splice:
		if d.Backtrack == 0 && len(d.FFTokens) == 0 {
			return ErrInvalidResult
		}
	case Fork:
		if d.NumChildren == 0 {
			return ErrInvalidResult
		}
	}
	return nil
}

// StoragePort is the controller's view of the shared variable store. It is
// the only coordination channel between forked sequences.
type StoragePort interface {
	ReadVar(name string) (store.Value, bool)
	WriteVar(name string, value []byte, op store.Op, whenVersion *uint64) store.WriteResult
}

// Controller is the per-sequence state machine. A controller transitions
// out of its uninitialized state exactly once, on InitPrompt, and must emit
// exactly one decision per Process call. Implementations are owned by a
// single sequence and need no internal locking.
type Controller interface {
	// InitPrompt receives the initial prompt. Called exactly once,
	// before any Process call.
	InitPrompt(prompt []toktrie.TokenID)

	// Process consumes one event and returns one decision.
	Process(ev Event) Decision

	// Helper exposes the controller's bias vector and trie handle to the
	// host for publishing and fork bookkeeping.
	Helper() *Helper
}

// Forker is implemented by controllers that support Fork decisions with
// NumChildren >= 2. ForkChild returns the controller for one new child
// sequence; rank 0 remains the original instance.
type Forker interface {
	ForkChild(rank uint32) Controller
}
