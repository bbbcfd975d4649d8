package control

import (
	"github.com/steer-ml/steer/internal/bias"
	"github.com/steer-ml/steer/internal/toktrie"
)

// Helper bundles the per-controller working state: a cheap shared handle to
// the immutable token trie, a private bias vector sized vocab+1, and the
// storage port shared with sibling sequences.
type Helper struct {
	trie    *toktrie.Trie
	bias    *bias.Vector
	storage StoragePort
	seqID   SeqID
}

// NewHelper creates the working state for one controller. The bias vector
// is sized to the trie's vocabulary plus the stop sentinel bit.
func NewHelper(trie *toktrie.Trie, storage StoragePort) *Helper {
	return &Helper{
		trie:    trie,
		bias:    bias.New(trie.VocabSize() + 1),
		storage: storage,
	}
}

// Clone returns a helper for a forked child: it shares the trie and the
// storage port but gets a fresh bias vector, since bias state never
// survives a step.
func (h *Helper) Clone() *Helper {
	return NewHelper(h.trie, h.storage)
}

// Trie returns the shared read-only trie handle.
func (h *Helper) Trie() *toktrie.Trie {
	return h.trie
}

// Bias returns the controller's private bias vector.
func (h *Helper) Bias() *bias.Vector {
	return h.bias
}

// Storage returns the shared variable store port.
func (h *Helper) Storage() StoragePort {
	return h.storage
}

// SeqID returns the id of the sequence owning this controller.
func (h *Helper) SeqID() SeqID {
	return h.seqID
}

// SetSeqID binds the owning sequence id; called by the host when the
// sequence is registered or resumed after a fork.
func (h *Helper) SetSeqID(id SeqID) {
	h.seqID = id
}

// ClearBias disallows every token, the required starting point before a
// controller incrementally allows tokens for one step.
func (h *Helper) ClearBias() {
	h.bias.Clear()
}

// Allow marks one token as samplable this step.
func (h *Helper) Allow(id toktrie.TokenID) error {
	return h.bias.Allow(id)
}

// AllowEOS marks the end-of-sequence token as samplable.
func (h *Helper) AllowEOS() {
	_ = h.bias.Allow(h.trie.EOS())
}

// ReturnBias is the conventional tail of a bias-building step: the decision
// tells the host to publish the bitmap and sample under it.
func (h *Helper) ReturnBias() Decision {
	return SampleWithBias{}
}
