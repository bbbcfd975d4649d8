// Package runtime is the host side of the control core: it owns the
// explicit mapping from sequence id to controller instance, delivers
// events, validates decisions, applies splices and fork fan-out, realizes
// WaitAll by re-invocation, and executes storage commands against the
// request's shared variable store.
//
// Every call for one sequence runs to completion synchronously and returns
// exactly one decision; the core never blocks inside a call. Calls for
// different sequences may run concurrently: the only state they share is
// the variable store.
package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/steer-ml/steer/internal/bias"
	"github.com/steer-ml/steer/internal/control"
	"github.com/steer-ml/steer/internal/store"
	"github.com/steer-ml/steer/internal/tokenenv"
	"github.com/steer-ml/steer/internal/toktrie"
)

// Common errors.
var (
	ErrUnknownSequence = errors.New("unknown sequence id")
	ErrSuspended       = errors.New("sequence is suspended on WaitAll")
	ErrNoPendingFork   = errors.New("no fork decision pending")
	ErrBacktrack       = errors.New("splice backtrack exceeds history")
)

// Runtime hosts every sequence of one generation request.
type Runtime struct {
	env   tokenenv.Env
	store *store.Store
	log   *slog.Logger

	mu     sync.Mutex
	seqs   map[control.SeqID]*sequence
	nextID control.SeqID
	wake   chan struct{}
}

// sequence is the host-side bookkeeping for one controller instance. Its
// fields past id are mutated only by the single goroutine stepping it.
type sequence struct {
	id          control.SeqID
	ctrl        control.Controller
	state       control.State
	history     []toktrie.TokenID
	pendingFork uint32 // children requested by the last Fork decision
	awaitFork   bool   // next event must be ForkGroup
	parked      *parkedWait
}

// parkedWait remembers a WaitAll decision and the event to re-deliver once
// the conjunction holds.
type parkedWait struct {
	cond control.WaitAll
	ev   control.Event
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runtime) { r.log = log }
}

// WithStore shares an existing variable store.
func WithStore(s *store.Store) Option {
	return func(r *Runtime) { r.store = s }
}

// New creates a runtime over one tokenizer environment.
func New(env tokenenv.Env, opts ...Option) *Runtime {
	r := &Runtime{
		env:  env,
		seqs: make(map[control.SeqID]*sequence),
		wake: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = store.New()
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// Env returns the shared tokenizer environment.
func (r *Runtime) Env() tokenenv.Env {
	return r.env
}

// Store returns the request's shared variable store.
func (r *Runtime) Store() *store.Store {
	return r.store
}

// NewHelper builds controller working state bound to this runtime's trie
// and store.
func (r *Runtime) NewHelper() *control.Helper {
	return control.NewHelper(r.env.Trie(), seqStorage{r: r})
}

// Spawn registers a controller as a new sequence and delivers the prompt.
func (r *Runtime) Spawn(ctrl control.Controller, prompt []toktrie.TokenID) control.SeqID {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	seq := &sequence{
		id:      id,
		ctrl:    ctrl,
		state:   control.StatePrompted,
		history: append([]toktrie.TokenID(nil), prompt...),
	}
	r.seqs[id] = seq
	r.mu.Unlock()

	ctrl.Helper().SetSeqID(id)
	ctrl.InitPrompt(prompt)
	r.log.Debug("sequence spawned", "seq", id, "prompt_len", len(prompt))
	return id
}

func (r *Runtime) lookup(id control.SeqID) (*sequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq, ok := r.seqs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSequence, id)
	}
	return seq, nil
}

// State reports the lifecycle state of a sequence.
func (r *Runtime) State(id control.SeqID) (control.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq, ok := r.seqs[id]
	if !ok {
		return control.StateUninitialized, fmt.Errorf("%w: %d", ErrUnknownSequence, id)
	}
	return seq.state, nil
}

// setState transitions a sequence's lifecycle state. State is read by
// WaitAll evaluation on other goroutines, so every access goes through the
// runtime lock.
func (r *Runtime) setState(seq *sequence, s control.State) {
	r.mu.Lock()
	seq.state = s
	r.mu.Unlock()
}

// stateOf reads a sequence's state under the runtime lock.
func (r *Runtime) stateOf(seq *sequence) control.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return seq.state
}

// History returns a copy of the host-side token history of a sequence.
func (r *Runtime) History(id control.SeqID) ([]toktrie.TokenID, error) {
	seq, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return append([]toktrie.TokenID(nil), seq.history...), nil
}

// Bias returns the bias vector of a sequence's controller. After a
// SampleWithBias decision it is the authoritative constraint for the next
// token choice.
func (r *Runtime) Bias(id control.SeqID) (*bias.Vector, error) {
	seq, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return seq.ctrl.Helper().Bias(), nil
}

// Step delivers one Append event. Tokens is nil on the very first call and
// when re-invoking a sequence suspended on WaitAll; otherwise it holds the
// sampled token, or the fast-forward tokens of the controller's own splice.
func (r *Runtime) Step(id control.SeqID, tokens []toktrie.TokenID) (control.Decision, error) {
	seq, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if r.stateOf(seq).Terminal() {
		return nil, fmt.Errorf("sequence %d: %w", id, control.ErrStopped)
	}
	if seq.awaitFork {
		return nil, fmt.Errorf("sequence %d: %w", id, control.ErrUnexpectedFork)
	}

	if seq.parked != nil {
		if len(tokens) != 0 {
			return nil, fmt.Errorf("sequence %d: %w", id, ErrSuspended)
		}
		if !r.waitSatisfied(seq.parked.cond) {
			// Not ready: the whole conjunction is re-evaluated, never a
			// subset, and the controller is not re-entered.
			return seq.parked.cond, nil
		}
		ev := seq.parked.ev
		seq.parked = nil
		return r.deliver(seq, ev)
	}

	seq.history = append(seq.history, tokens...)
	return r.deliver(seq, control.Append{Tokens: tokens})
}

// ResumeFork materializes the fan-out requested by the last Fork decision:
// it clones the controller into ranked children sharing the parent's
// history and returns the full group, rank 0 first. Every member must then
// receive its ForkGroup event via StepFork before any Append.
func (r *Runtime) ResumeFork(id control.SeqID) ([]control.SeqID, error) {
	seq, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if !seq.awaitFork || seq.pendingFork == 0 {
		return nil, fmt.Errorf("sequence %d: %w", id, ErrNoPendingFork)
	}

	forker, _ := seq.ctrl.(control.Forker)
	group := []control.SeqID{id}

	r.mu.Lock()
	for rank := uint32(1); rank < seq.pendingFork; rank++ {
		child := forker.ForkChild(rank)
		cid := r.nextID
		r.nextID++
		r.seqs[cid] = &sequence{
			id:        cid,
			ctrl:      child,
			state:     control.StateSampling,
			history:   append([]toktrie.TokenID(nil), seq.history...),
			awaitFork: true,
		}
		child.Helper().SetSeqID(cid)
		group = append(group, cid)
	}
	// The fan-out is materialized exactly once; the sequence still awaits
	// its ForkGroup event.
	seq.pendingFork = 0
	r.mu.Unlock()

	r.log.Debug("fork fan-out", "seq", id, "children", seq.pendingFork, "group", group)
	return group, nil
}

// StepFork delivers the ForkGroup event that resumes a member of a fork.
func (r *Runtime) StepFork(id control.SeqID, group []control.SeqID) (control.Decision, error) {
	seq, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if r.stateOf(seq).Terminal() {
		return nil, fmt.Errorf("sequence %d: %w", id, control.ErrStopped)
	}
	if !seq.awaitFork {
		return nil, fmt.Errorf("sequence %d: %w", id, control.ErrUnexpectedFork)
	}
	seq.awaitFork = false
	seq.pendingFork = 0
	return r.deliver(seq, control.ForkGroup{Group: group})
}

// deliver runs the controller on one event and applies its decision. A
// panic in the controller is recovered here and isolated to this sequence;
// the shared store is never left partially written because its operations
// are individually atomic.
func (r *Runtime) deliver(seq *sequence, ev control.Event) (d control.Decision, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.terminate(seq)
			if pe, ok := p.(error); ok && errors.Is(pe, tokenenv.ErrStopRequested) {
				r.log.Warn("sequence stop requested", "seq", seq.id)
				d, err = control.Stop{}, nil
				return
			}
			err = fmt.Errorf("sequence %d: controller panic: %v", seq.id, p)
			r.log.Error("controller panic", "seq", seq.id, "panic", p)
		}
	}()

	d = seq.ctrl.Process(ev)
	if verr := control.Validate(d); verr != nil {
		r.terminate(seq)
		return nil, fmt.Errorf("sequence %d: %w", seq.id, verr)
	}
	return r.apply(seq, ev, d)
}

// apply enforces decision semantics against the host-side state.
func (r *Runtime) apply(seq *sequence, ev control.Event, d control.Decision) (control.Decision, error) {
	switch d := d.(type) {
	case control.Stop:
		r.terminate(seq)

	case control.SampleWithBias:
		if seq.ctrl.Helper().Bias().NumSet() == 0 {
			r.terminate(seq)
			return nil, fmt.Errorf("sequence %d: %w", seq.id, control.ErrEmptyBias)
		}
		r.setState(seq, control.StateSampling)

	case control.Splice:
		if int(d.Backtrack) > len(seq.history) {
			r.terminate(seq)
			return nil, fmt.Errorf("sequence %d: %w: %d > %d",
				seq.id, ErrBacktrack, d.Backtrack, len(seq.history))
		}
		seq.history = seq.history[:len(seq.history)-int(d.Backtrack)]
		r.setState(seq, control.StateSampling)

	case control.Fork:
		if d.NumChildren >= 2 {
			if _, ok := seq.ctrl.(control.Forker); !ok {
				r.terminate(seq)
				return nil, fmt.Errorf("sequence %d: %w", seq.id, control.ErrNotForkable)
			}
		}
		seq.pendingFork = d.NumChildren
		seq.awaitFork = true
		r.setState(seq, control.StateSampling)

	case control.WaitAll:
		seq.parked = &parkedWait{cond: d, ev: ev}
		r.setState(seq, control.StateSampling)
	}

	r.log.Debug("decision", "seq", seq.id, "decision", fmt.Sprintf("%T", d))
	return d, nil
}

// terminate marks a sequence stopped and wakes WaitAll waiters watching
// for its termination.
func (r *Runtime) terminate(seq *sequence) {
	r.mu.Lock()
	seq.state = control.StateStopped
	close(r.wake)
	r.wake = make(chan struct{})
	r.mu.Unlock()
}

// waitSatisfied evaluates a WaitAll conjunction: every named variable
// exists and every listed sequence is terminal. A sequence id the runtime
// no longer knows counts as terminal (abandoned by the host).
func (r *Runtime) waitSatisfied(w control.WaitAll) bool {
	for _, name := range w.Variables {
		if _, ok := r.store.Read(name); !ok {
			return false
		}
	}
	for _, id := range w.Finished {
		r.mu.Lock()
		seq, ok := r.seqs[id]
		terminal := !ok || seq.state.Terminal()
		r.mu.Unlock()
		if !terminal {
			return false
		}
	}
	return true
}

// waitChan returns a channel closed at the next broadcast. Callers must
// re-check their condition after grabbing the channel.
func (r *Runtime) waitChan() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wake
}

// broadcast wakes every parked waiter to re-evaluate its conjunction.
func (r *Runtime) broadcast() {
	r.mu.Lock()
	close(r.wake)
	r.wake = make(chan struct{})
	r.mu.Unlock()
}

// seqStorage adapts the shared store to the controller-facing port and
// wakes waiters on every write.
type seqStorage struct {
	r *Runtime
}

func (p seqStorage) ReadVar(name string) (store.Value, bool) {
	return p.r.store.Read(name)
}

func (p seqStorage) WriteVar(name string, value []byte, op store.Op, whenVersion *uint64) store.WriteResult {
	res := p.r.store.Write(name, value, op, whenVersion)
	if res.Written {
		p.r.broadcast()
	}
	return res
}
