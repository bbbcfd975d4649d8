package tokenenv

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/steer-ml/steer/internal/parallel"
	"github.com/steer-ml/steer/internal/toktrie"
)

// Known tiktoken encodings and their ordinary vocabulary sizes.
const (
	encodingCL100kBase = "cl100k_base"
	encodingO200kBase  = "o200k_base"

	vocabSizeCL100kBase = 100256
	vocabSizeO200kBase  = 199998
)

// TiktokenConfig configures a tiktoken-backed environment.
type TiktokenConfig struct {
	// Encoding names the tiktoken encoding ("cl100k_base", "o200k_base").
	Encoding string

	// EOS is the end-of-sequence token id.
	EOS toktrie.TokenID

	// VocabOverride, when non-zero, pads the vocabulary with reserved
	// empty slots up to this size. It must not be smaller than the
	// natural size.
	VocabOverride int

	// SpecialTokens maps bracketed special-token names (e.g. "<eos>") to
	// their ids. Ids beyond the ordinary vocabulary extend it.
	SpecialTokens map[string]toktrie.TokenID

	// Kinds optionally binds well-known kinds to ids. EndOfSentence is
	// always bound to EOS.
	Kinds map[SpecialKind]toktrie.TokenID
}

// Tiktoken is an Env backed by the tiktoken BPE encoder. The trie resolves
// most spans itself; spans it cannot resolve fall back to the encoder.
type Tiktoken struct {
	*env
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTiktoken builds the environment: it materializes the byte string of
// every ordinary token through the encoder, splices the special-token
// names in, and constructs the shared trie. Errors here are fatal at
// startup.
func NewTiktoken(cfg TiktokenConfig) (*Tiktoken, error) {
	size, err := encodingVocabSize(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	enc, err := tiktoken.GetEncoding(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", cfg.Encoding, err)
	}

	// Decoding is read-only on the encoder, so materializing a hundred
	// thousand entries parallelizes cleanly.
	tokens := make([][]byte, size)
	parallel.For(size, func(i int) {
		tokens[i] = []byte(enc.Decode([]int{i}))
	}, parallel.DefaultConfig())
	if cfg.VocabOverride != 0 {
		need := size
		for _, id := range cfg.SpecialTokens {
			if int(id) >= need {
				need = int(id) + 1
			}
		}
		if cfg.VocabOverride < need {
			return nil, fmt.Errorf("%w: %d, need at least %d",
				ErrVocabOverride, cfg.VocabOverride, need)
		}
		padded := make([][]byte, cfg.VocabOverride)
		copy(padded, tokens)
		tokens = padded
	}

	fallback := func(b []byte) []toktrie.TokenID {
		ids := enc.EncodeOrdinary(string(b))
		out := make([]toktrie.TokenID, len(ids))
		for i, id := range ids {
			out[i] = toktrie.TokenID(id) //nolint:gosec // G115: token ids fit in uint32
		}
		return out
	}

	base, err := newEnv(tokens, cfg.EOS, cfg.SpecialTokens, cfg.Kinds, fallback)
	if err != nil {
		return nil, err
	}
	return &Tiktoken{env: base, encoding: enc, name: cfg.Encoding}, nil
}

// Name returns the encoding name.
func (t *Tiktoken) Name() string {
	return t.name
}

func encodingVocabSize(name string) (int, error) {
	switch name {
	case encodingCL100kBase:
		return vocabSizeCL100kBase, nil
	case encodingO200kBase:
		return vocabSizeO200kBase, nil
	default:
		return 0, fmt.Errorf("%w: %q (allowed: %s, %s)",
			ErrUnknownEncoding, name, encodingCL100kBase, encodingO200kBase)
	}
}
