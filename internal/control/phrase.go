package control

import "github.com/steer-ml/steer/internal/toktrie"

// PhraseController samples a bounded number of free tokens, then rewrites
// them: it backtracks everything it sampled and splices a fixed phrase in
// their place. It exercises the bias, splice and stop paths and serves as
// the reference for writing single-sequence policies.
type PhraseController struct {
	helper  *Helper
	phrase  []toktrie.TokenID
	free    int
	sampled int
	spliced bool
}

// NewPhraseController creates a controller that lets the sampler run free
// for freeTokens steps and then forces the given phrase.
func NewPhraseController(helper *Helper, phrase []toktrie.TokenID, freeTokens int) *PhraseController {
	return &PhraseController{
		helper: helper,
		phrase: phrase,
		free:   freeTokens,
	}
}

// InitPrompt ignores the prompt; the policy does not depend on it.
func (c *PhraseController) InitPrompt(_ []toktrie.TokenID) {}

// Helper returns the controller's working state.
func (c *PhraseController) Helper() *Helper {
	return c.helper
}

// Process implements Controller.
func (c *PhraseController) Process(ev Event) Decision {
	ap, ok := ev.(Append)
	if !ok {
		// This policy never forks, so a fork event means the host lost
		// track of the sequence. Terminate rather than guess.
		return Stop{}
	}

	if c.spliced {
		// The appended tokens are the echo of our own splice.
		return Stop{}
	}

	if c.sampled < c.free {
		c.sampled += len(ap.Tokens)
		if c.sampled < c.free {
			h := c.helper
			h.ClearBias()
			h.Trie().ComputeBias(func([]byte) bool { return true }, h.Bias())
			return h.ReturnBias()
		}
	}

	if len(c.phrase) == 0 && c.sampled == 0 {
		return Stop{}
	}

	c.spliced = true
	return Splice{
		Backtrack: uint32(c.sampled),
		FFTokens:  c.phrase,
	}
}
