// Package tokenenv binds a concrete tokenizer backend into the one
// capability surface the control core consumes: tokenization, special-token
// lookup and access to the shared token trie.
//
// An Env is built once at startup; construction failures (unknown encoding,
// end-of-sequence id out of range, malformed special-token table) are fatal
// and abort startup, never a per-sequence condition. Once built, an Env is
// immutable and safe for concurrent use by every sequence of a request.
package tokenenv

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/steer-ml/steer/internal/toktrie"
)

// Common errors.
var (
	ErrUnknownSpecialToken = errors.New("unknown special token")
	ErrUnknownEncoding     = errors.New("unknown tiktoken encoding")
	ErrBadSpecialTable     = errors.New("malformed special-token table")
	ErrVocabOverride       = errors.New("vocab size override too small")

	// ErrStopRequested is the panic value of Env.Stop. The dispatch
	// boundary recovers it and terminates only the requesting sequence.
	ErrStopRequested = errors.New("tokenizer environment stop requested")
)

// SpecialKind names the well-known special tokens an environment may
// register. Only EndOfSentence is guaranteed to exist.
type SpecialKind uint8

const (
	EndOfSentence SpecialKind = iota
	BeginningOfSentence
	Unknown
	Padding
)

// String implements fmt.Stringer.
func (k SpecialKind) String() string {
	switch k {
	case EndOfSentence:
		return "end-of-sentence"
	case BeginningOfSentence:
		return "beginning-of-sentence"
	case Unknown:
		return "unknown"
	case Padding:
		return "padding"
	default:
		return "invalid"
	}
}

// Env is the tokenizer capability surface consumed by controllers and the
// host runtime.
type Env interface {
	// TokenizeBytes encodes arbitrary bytes; the byte representations of
	// the result always concatenate back to the input exactly.
	TokenizeBytes(b []byte) []toktrie.TokenID

	// TokenizeSpecial returns the registered id for a special-token
	// name; unregistered names are tokenized as ordinary text.
	TokenizeSpecial(name string) []toktrie.TokenID

	// TokenizeBytesPrefix encodes bytes that may interleave ordinary
	// text with marker-flagged special-token names.
	TokenizeBytesPrefix(b []byte) []toktrie.TokenID

	// SpecialToken resolves a well-known special token kind.
	SpecialToken(kind SpecialKind) (toktrie.TokenID, error)

	// Trie returns the shared immutable trie.
	Trie() *toktrie.Trie

	// Stop aborts the current sequence's step by panicking with
	// ErrStopRequested; the dispatch boundary recovers it.
	Stop()
}

// env is the backend-independent implementation shared by every concrete
// environment; backends differ only in how the vocabulary and the fallback
// encoder are produced.
type env struct {
	trie     *toktrie.Trie
	specials map[string]toktrie.TokenID
	kinds    map[SpecialKind]toktrie.TokenID
	fallback toktrie.EncodeFunc
}

func newEnv(tokens [][]byte, eos toktrie.TokenID, specials map[string]toktrie.TokenID,
	kinds map[SpecialKind]toktrie.TokenID, fallback toktrie.EncodeFunc) (*env, error) {
	tokens, err := applySpecials(tokens, specials)
	if err != nil {
		return nil, err
	}
	vocab, err := toktrie.NewVocabulary(tokens, eos)
	if err != nil {
		return nil, err
	}

	allKinds := map[SpecialKind]toktrie.TokenID{EndOfSentence: eos}
	for k, id := range kinds {
		allKinds[k] = id
	}

	return &env{
		trie:     toktrie.New(vocab),
		specials: specials,
		kinds:    allKinds,
		fallback: fallback,
	}, nil
}

// applySpecials extends the token table to cover every special id and
// writes the marker-prefixed names into their slots.
func applySpecials(tokens [][]byte, specials map[string]toktrie.TokenID) ([][]byte, error) {
	seen := make(map[toktrie.TokenID]string, len(specials))
	max := len(tokens)
	for name, id := range specials {
		if name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrBadSpecialTable)
		}
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: id %d registered for both %q and %q",
				ErrBadSpecialTable, id, prev, name)
		}
		seen[id] = name
		if int(id) >= max {
			max = int(id) + 1
		}
	}

	out := make([][]byte, max)
	copy(out, tokens)
	for name, id := range specials {
		entry := make([]byte, 0, len(name)+1)
		entry = append(entry, toktrie.SpecialTokenPrefix)
		entry = append(entry, name...)
		out[id] = entry
	}
	return out, nil
}

func (e *env) Trie() *toktrie.Trie {
	return e.trie
}

func (e *env) TokenizeBytes(b []byte) []toktrie.TokenID {
	ids, err := e.trie.Tokenize(b, e.fallback)
	if err != nil {
		// Only reachable with a nil fallback encoder and a vocabulary
		// hole, which is a misconfigured environment.
		panic(err)
	}
	return ids
}

func (e *env) TokenizeSpecial(name string) []toktrie.TokenID {
	if id, ok := e.specials[name]; ok {
		return []toktrie.TokenID{id}
	}
	return e.TokenizeBytes([]byte(name))
}

// specialScanWindow bounds how far ahead of a marker byte a bracketed
// special-token name is searched for.
const specialScanWindow = 100

func (e *env) TokenizeBytesPrefix(s []byte) []toktrie.TokenID {
	var result []toktrie.TokenID
	idx := 0
	for idx < len(s) {
		normalLen := bytes.IndexByte(s[idx:], toktrie.SpecialTokenPrefix)
		if normalLen < 0 {
			normalLen = len(s) - idx
		}
		if normalLen != 0 {
			result = append(result, e.TokenizeBytes(s[idx:idx+normalLen])...)
			idx += normalLen
		}
		idx++ // step over the marker
		if idx+3 < len(s) && s[idx] == '<' {
			end := min(len(s), idx+specialScanWindow)
			if p := bytes.IndexByte(s[idx:end], '>'); p >= 0 {
				name := string(s[idx : idx+p+1])
				if id, ok := e.specials[name]; ok {
					result = append(result, id)
					idx += p + 1
				}
			}
		}
	}
	return result
}

func (e *env) SpecialToken(kind SpecialKind) (toktrie.TokenID, error) {
	id, ok := e.kinds[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSpecialToken, kind)
	}
	return id, nil
}

func (e *env) Stop() {
	panic(ErrStopRequested)
}
