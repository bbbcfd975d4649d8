package toktrie

import "fmt"

// EncodeFunc is the opaque external encoder capability: it encodes an
// arbitrary byte span into token ids whose concatenated byte
// representations reproduce the span exactly.
type EncodeFunc func([]byte) []TokenID

// Tokenize walks the trie greedily, preferring the longest matching token
// at every position. Maximal spans the trie cannot resolve are delegated to
// the fallback encoder and its output spliced back in.
//
// Invariant: concatenating TokenBytes of the returned ids reproduces src
// exactly. An error is returned only when a span is unresolvable and
// fallback is nil.
func (t *Trie) Tokenize(src []byte, fallback EncodeFunc) ([]TokenID, error) {
	out := make([]TokenID, 0, len(src)/3+1)
	i := 0
	for i < len(src) {
		id, n := t.longestMatch(src[i:])
		if n > 0 {
			out = append(out, id)
			i += n
			continue
		}

		// No token starts here. Grow the span until the trie matches again.
		start := i
		for i++; i < len(src); i++ {
			if _, n := t.longestMatch(src[i:]); n > 0 {
				break
			}
		}
		if fallback == nil {
			return nil, fmt.Errorf("%w: offset %d", ErrNoFallback, start)
		}
		out = append(out, fallback(src[start:i])...)
	}
	return out, nil
}

// longestMatch returns the id of the longest token matching a prefix of
// src, and its byte length. A length of 0 means no token matches. Ties
// (distinct ids with identical bytes) resolve to the lowest id, which is
// inserted first.
func (t *Trie) longestMatch(src []byte) (TokenID, int) {
	var (
		bestID  TokenID
		bestLen int
	)
	n := rootNode
	for j := 0; j < len(src); j++ {
		next, ok := t.Child(n, src[j])
		if !ok {
			break
		}
		n = next
		if toks := t.nodes[n].tokens; len(toks) > 0 {
			bestID, bestLen = toks[0], j+1
		}
	}
	return bestID, bestLen
}
