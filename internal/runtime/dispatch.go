package runtime

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/steer-ml/steer/internal/control"
	"github.com/steer-ml/steer/internal/protocol"
	"github.com/steer-ml/steer/internal/toktrie"
)

// HostPort is the injected host-call boundary: the runtime pulls raw event
// bytes through it, pushes encoded decisions back, and publishes the bias
// bitmap on its own channel, out of band of the tagged messages. Test
// harnesses substitute an in-memory implementation.
type HostPort interface {
	// ProcessArgBytes fetches the raw inbound event for one sequence.
	ProcessArgBytes(seq uint32) ([]byte, error)

	// ReturnProcessResult hands the encoded decision back to the host.
	ReturnProcessResult(seq uint32, result []byte) error

	// ReturnBias publishes the raw bias bitmap for the next sample.
	ReturnBias(seq uint32, words []uint32) error
}

// Dispatch performs one wire-level controller invocation: fetch the event
// for seq from the port, decode it, step the state machine, and return the
// encoded decision through the port. On a SampleWithBias decision the bias
// bitmap is published first.
//
// A malformed message aborts only this sequence's step: the error carries
// the sequence id and no state is modified.
func (r *Runtime) Dispatch(port HostPort, id control.SeqID) error {
	raw, err := port.ProcessArgBytes(uint32(id))
	if err != nil {
		return fmt.Errorf("sequence %d: fetch event: %w", id, err)
	}

	var arg protocol.ProcessArg
	if err := cbor.Unmarshal(raw, &arg); err != nil {
		derr := &protocol.DecodeError{Seq: uint32(id), Err: err}
		r.log.Error("dropping malformed event", "seq", id, "err", err)
		return derr
	}
	ev, err := arg.Event()
	if err != nil {
		return &protocol.DecodeError{Seq: uint32(id), Err: err}
	}

	var d control.Decision
	switch ev := ev.(type) {
	case control.Append:
		d, err = r.Step(id, ev.Tokens)
	case control.ForkGroup:
		d, err = r.StepFork(id, ev.Group)
	}
	if err != nil {
		return err
	}

	if _, ok := d.(control.SampleWithBias); ok {
		v, berr := r.Bias(id)
		if berr != nil {
			return berr
		}
		if berr := port.ReturnBias(uint32(id), v.Words()); berr != nil {
			return fmt.Errorf("sequence %d: publish bias: %w", id, berr)
		}
	}

	res, err := protocol.ResultFromDecision(d)
	if err != nil {
		return fmt.Errorf("sequence %d: %w", id, err)
	}
	out, err := cbor.Marshal(res)
	if err != nil {
		return fmt.Errorf("sequence %d: encode result: %w", id, err)
	}
	return port.ReturnProcessResult(uint32(id), out)
}

// SpawnWire registers a controller from an encoded InitPromptArg.
func (r *Runtime) SpawnWire(ctrl control.Controller, raw []byte) (control.SeqID, error) {
	var arg protocol.InitPromptArg
	if err := cbor.Unmarshal(raw, &arg); err != nil {
		return 0, &protocol.DecodeError{Err: err}
	}
	prompt := make([]toktrie.TokenID, len(arg.Prompt))
	copy(prompt, arg.Prompt)
	return r.Spawn(ctrl, prompt), nil
}

// ExecStorage runs one encoded storage command against the shared store
// and returns the encoded response. Commands from different sequences may
// race; each one applies atomically.
func (r *Runtime) ExecStorage(raw []byte) ([]byte, error) {
	var cmd protocol.StorageCmd
	if err := cbor.Unmarshal(raw, &cmd); err != nil {
		return nil, &protocol.DecodeError{Err: err}
	}
	resp, err := protocol.ExecStorage(r.store, cmd)
	if err != nil {
		return nil, err
	}
	if cmd.WriteVar != nil && resp.WriteVar != nil {
		r.broadcast()
	}
	return cbor.Marshal(resp)
}

// MemHost is an in-memory HostPort for tests and demos: inbound events are
// queued per sequence, and outbound results and bias bitmaps are recorded.
type MemHost struct {
	mu      sync.Mutex
	inbox   map[uint32][][]byte
	Results map[uint32][][]byte
	Biases  map[uint32][][]uint32
}

// NewMemHost returns an empty in-memory host.
func NewMemHost() *MemHost {
	return &MemHost{
		inbox:   make(map[uint32][][]byte),
		Results: make(map[uint32][][]byte),
		Biases:  make(map[uint32][][]uint32),
	}
}

// Push queues one encoded event for a sequence.
func (h *MemHost) Push(seq uint32, raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inbox[seq] = append(h.inbox[seq], raw)
}

// PushArg encodes and queues one event.
func (h *MemHost) PushArg(seq uint32, arg protocol.ProcessArg) error {
	raw, err := cbor.Marshal(arg)
	if err != nil {
		return err
	}
	h.Push(seq, raw)
	return nil
}

// ProcessArgBytes implements HostPort.
func (h *MemHost) ProcessArgBytes(seq uint32) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	q := h.inbox[seq]
	if len(q) == 0 {
		return nil, fmt.Errorf("no event queued for sequence %d", seq)
	}
	raw := q[0]
	h.inbox[seq] = q[1:]
	return raw, nil
}

// ReturnProcessResult implements HostPort.
func (h *MemHost) ReturnProcessResult(seq uint32, result []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Results[seq] = append(h.Results[seq], result)
	return nil
}

// ReturnBias implements HostPort.
func (h *MemHost) ReturnBias(seq uint32, words []uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]uint32, len(words))
	copy(cp, words)
	h.Biases[seq] = append(h.Biases[seq], cp)
	return nil
}

// LastResult decodes the most recent result returned for a sequence.
func (h *MemHost) LastResult(seq uint32) (protocol.ProcessResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs := h.Results[seq]
	if len(rs) == 0 {
		return protocol.ProcessResult{}, false
	}
	var res protocol.ProcessResult
	if err := cbor.Unmarshal(rs[len(rs)-1], &res); err != nil {
		return protocol.ProcessResult{}, false
	}
	return res, true
}
