package tokenenv

import "github.com/steer-ml/steer/internal/toktrie"

// StaticConfig configures an environment over a fixed in-memory token
// table. Static environments back tests and demos, where hitting a real
// BPE encoder is unwanted.
type StaticConfig struct {
	// Tokens is the ordered token table; entries may be empty.
	Tokens [][]byte

	// EOS is the end-of-sequence token id.
	EOS toktrie.TokenID

	// SpecialTokens maps bracketed names to ids; ids beyond the table
	// extend it.
	SpecialTokens map[string]toktrie.TokenID

	// Kinds optionally binds well-known kinds to ids.
	Kinds map[SpecialKind]toktrie.TokenID

	// Fallback handles spans the trie cannot resolve. May be nil when
	// the table covers every byte value that can occur in inputs.
	Fallback toktrie.EncodeFunc
}

// Static is an Env over a fixed token table.
type Static struct {
	*env
}

// NewStatic builds a static environment. Errors are fatal at startup.
func NewStatic(cfg StaticConfig) (*Static, error) {
	base, err := newEnv(cfg.Tokens, cfg.EOS, cfg.SpecialTokens, cfg.Kinds, cfg.Fallback)
	if err != nil {
		return nil, err
	}
	return &Static{env: base}, nil
}

// ByteFallback returns an encoder that maps every byte to a single-byte
// token looked up in the table, for test vocabularies that enumerate all
// byte values they need.
func ByteFallback(tokens [][]byte) toktrie.EncodeFunc {
	byID := make(map[byte]toktrie.TokenID)
	for id, b := range tokens {
		if len(b) == 1 {
			if _, ok := byID[b[0]]; !ok {
				byID[b[0]] = toktrie.TokenID(id) //nolint:gosec // G115: table index fits in uint32
			}
		}
	}
	return func(b []byte) []toktrie.TokenID {
		out := make([]toktrie.TokenID, 0, len(b))
		for _, c := range b {
			if id, ok := byID[c]; ok {
				out = append(out, id)
			}
		}
		return out
	}
}
