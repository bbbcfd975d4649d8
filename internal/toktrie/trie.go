package toktrie

import (
	"sort"

	"github.com/steer-ml/steer/internal/bias"
)

// NodeID addresses one trie node inside the arena.
type NodeID uint32

// rootNode is always the first arena slot.
const rootNode NodeID = 0

type edge struct {
	b     byte
	child NodeID
}

type node struct {
	edges  []edge // sorted by byte
	tokens []TokenID
}

// Trie is an immutable prefix trie over all non-empty vocabulary entries.
//
// Nodes live in a flat arena addressed by NodeID, so the whole structure is
// a pair of slices with no pointer cycles; a single *Trie handle is shared
// read-only by every controller of a request.
type Trie struct {
	nodes       []node
	vocab       *Vocabulary
	maxTokenLen int
}

// New builds the trie for a vocabulary. Distinct ids with identical bytes
// all terminate at the same node.
func New(vocab *Vocabulary) *Trie {
	t := &Trie{
		nodes: make([]node, 1, vocab.Size()*2),
		vocab: vocab,
	}
	for id := 0; id < vocab.Size(); id++ {
		b := vocab.tokens[id]
		if len(b) == 0 {
			continue
		}
		t.insert(b, TokenID(id))
		if len(b) > t.maxTokenLen {
			t.maxTokenLen = len(b)
		}
	}
	for i := range t.nodes {
		n := &t.nodes[i]
		sort.Slice(n.edges, func(a, b int) bool { return n.edges[a].b < n.edges[b].b })
	}
	return t
}

func (t *Trie) insert(b []byte, id TokenID) {
	cur := rootNode
	for _, c := range b {
		next, ok := t.childSlow(cur, c)
		if !ok {
			t.nodes = append(t.nodes, node{})
			next = NodeID(len(t.nodes) - 1)
			t.nodes[cur].edges = append(t.nodes[cur].edges, edge{b: c, child: next})
		}
		cur = next
	}
	t.nodes[cur].tokens = append(t.nodes[cur].tokens, id)
}

// childSlow scans edges linearly; only used during construction, before the
// edge lists are sorted.
func (t *Trie) childSlow(n NodeID, b byte) (NodeID, bool) {
	for _, e := range t.nodes[n].edges {
		if e.b == b {
			return e.child, true
		}
	}
	return 0, false
}

// Root returns the handle of the root node.
func (t *Trie) Root() NodeID {
	return rootNode
}

// Child descends one byte from n. The second result is false when the trie
// has no continuation for b.
func (t *Trie) Child(n NodeID, b byte) (NodeID, bool) {
	edges := t.nodes[n].edges
	i := sort.Search(len(edges), func(i int) bool { return edges[i].b >= b })
	if i < len(edges) && edges[i].b == b {
		return edges[i].child, true
	}
	return 0, false
}

// NodeTokens returns the ids terminating at n. The returned slice is shared;
// callers must not modify it.
func (t *Trie) NodeTokens(n NodeID) []TokenID {
	return t.nodes[n].tokens
}

// Vocab returns the underlying vocabulary.
func (t *Trie) Vocab() *Vocabulary {
	return t.vocab
}

// VocabSize returns the number of vocabulary entries.
func (t *Trie) VocabSize() int {
	return t.vocab.Size()
}

// EOS returns the end-of-sequence token id.
func (t *Trie) EOS() TokenID {
	return t.vocab.EOS()
}

// TokenBytes returns the byte representation of one token.
func (t *Trie) TokenBytes(id TokenID) []byte {
	return t.vocab.TokenBytes(id)
}

// MaxTokenLen returns the length of the longest vocabulary entry.
func (t *Trie) MaxTokenLen() int {
	return t.maxTokenLen
}

// ComputeBias allows every token whose byte string is accepted as a
// continuation by the predicate. The walk prunes a subtree as soon as its
// prefix is rejected, so the cost is proportional to the accepted part of
// the trie, not to the vocabulary size. Special-token entries are skipped:
// their bytes are names, not content.
//
// The prefix slice passed to accept is reused between calls and must not be
// retained.
func (t *Trie) ComputeBias(accept func(prefix []byte) bool, v *bias.Vector) {
	prefix := make([]byte, 0, t.maxTokenLen)
	t.walkBias(rootNode, prefix, accept, v)
}

func (t *Trie) walkBias(n NodeID, prefix []byte, accept func([]byte) bool, v *bias.Vector) {
	for _, e := range t.nodes[n].edges {
		if n == rootNode && e.b == SpecialTokenPrefix {
			continue
		}
		next := append(prefix, e.b)
		if !accept(next) {
			continue
		}
		for _, id := range t.nodes[e.child].tokens {
			_ = v.Allow(id)
		}
		t.walkBias(e.child, next, accept, v)
	}
}
