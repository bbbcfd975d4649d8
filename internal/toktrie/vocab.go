package toktrie

import (
	"errors"
	"fmt"
)

// TokenID identifies one vocabulary entry. Token ids are dense and
// contiguous, starting at 0.
type TokenID = uint32

// SpecialTokenPrefix marks vocabulary entries that encode special tokens
// (end-of-sequence and friends). The remaining bytes of such an entry are
// the token's human-readable name, not literal text content. 0xFF never
// appears in valid UTF-8, so ordinary token content cannot contain it.
const SpecialTokenPrefix byte = 0xFF

// Common errors.
var (
	ErrEOSOutOfRange = errors.New("eos token id out of vocabulary range")
	ErrNoFallback    = errors.New("byte span not covered by vocabulary and no fallback encoder")
)

// Vocabulary is the fixed ordered table of token byte-strings for one
// environment. Entries may be empty (reserved slots) or start with
// SpecialTokenPrefix. The table is immutable after construction.
type Vocabulary struct {
	tokens [][]byte
	eos    TokenID
}

// NewVocabulary creates a vocabulary over the given token table.
//
// The eos id must be within range; environments are expected to treat a
// failure here as fatal at startup.
func NewVocabulary(tokens [][]byte, eos TokenID) (*Vocabulary, error) {
	if int(eos) >= len(tokens) {
		return nil, fmt.Errorf("%w: eos %d, vocab size %d", ErrEOSOutOfRange, eos, len(tokens))
	}
	return &Vocabulary{tokens: tokens, eos: eos}, nil
}

// Size returns the number of vocabulary entries.
func (v *Vocabulary) Size() int {
	return len(v.tokens)
}

// EOS returns the end-of-sequence token id.
func (v *Vocabulary) EOS() TokenID {
	return v.eos
}

// TokenBytes returns the byte representation of one token.
// Returns nil for out-of-range ids.
func (v *Vocabulary) TokenBytes(id TokenID) []byte {
	if int(id) >= len(v.tokens) {
		return nil
	}
	return v.tokens[id]
}

// IsSpecial reports whether the entry for id is a special token.
func (v *Vocabulary) IsSpecial(id TokenID) bool {
	b := v.TokenBytes(id)
	return len(b) > 0 && b[0] == SpecialTokenPrefix
}

// SpecialName returns the registered name of a special token.
func (v *Vocabulary) SpecialName(id TokenID) (string, bool) {
	if !v.IsSpecial(id) {
		return "", false
	}
	return string(v.tokens[id][1:]), true
}
