// Package tokenizer provides the tokenizer environment for steer.
//
// This package wraps the internal implementations and provides a clean
// public API for building a tokenizer environment: the one capability
// surface controllers consume for tokenization, special-token lookup and
// access to the shared token trie.
//
// Example usage:
//
//	import "github.com/steer-ml/steer/tokenizer"
//
//	env, err := tokenizer.NewTiktoken(tokenizer.TiktokenConfig{
//	    Encoding: "cl100k_base",
//	    EOS:      100257,
//	    SpecialTokens: map[string]tokenizer.TokenID{
//	        "<|endoftext|>": 100257,
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ids := env.TokenizeBytes([]byte("Hello, world!"))
//	trie := env.Trie()
package tokenizer

import (
	"github.com/steer-ml/steer/internal/tokenenv"
	"github.com/steer-ml/steer/internal/toktrie"
)

// TokenID identifies one vocabulary entry.
type TokenID = toktrie.TokenID

// Trie is the shared immutable prefix trie over the vocabulary.
type Trie = toktrie.Trie

// Vocabulary is the fixed ordered table of token byte-strings.
type Vocabulary = toktrie.Vocabulary

// Env is the tokenizer capability surface consumed by controllers.
type Env = tokenenv.Env

// SpecialKind names the well-known special tokens.
type SpecialKind = tokenenv.SpecialKind

// Well-known special token kinds.
const (
	EndOfSentence       = tokenenv.EndOfSentence
	BeginningOfSentence = tokenenv.BeginningOfSentence
	Unknown             = tokenenv.Unknown
	Padding             = tokenenv.Padding
)

// TiktokenConfig configures a tiktoken-backed environment.
type TiktokenConfig = tokenenv.TiktokenConfig

// StaticConfig configures an environment over a fixed in-memory table.
type StaticConfig = tokenenv.StaticConfig

// NewTiktoken builds an environment backed by a tiktoken BPE encoder.
//
// Supported encodings: "cl100k_base", "o200k_base".
func NewTiktoken(cfg TiktokenConfig) (Env, error) {
	return tokenenv.NewTiktoken(cfg)
}

// NewStatic builds an environment over a fixed token table, mainly for
// tests and demos.
func NewStatic(cfg StaticConfig) (Env, error) {
	return tokenenv.NewStatic(cfg)
}

// ByteFallback returns a fallback encoder mapping bytes to single-byte
// tokens of the given table.
func ByteFallback(tokens [][]byte) toktrie.EncodeFunc {
	return tokenenv.ByteFallback(tokens)
}
