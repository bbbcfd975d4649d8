package toktrie

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steer-ml/steer/internal/bias"
)

func TestTrie_ComputeBias(t *testing.T) {
	tokens := [][]byte{
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		[]byte("b"),
		append([]byte{SpecialTokenPrefix}, "<eos>"...),
	}
	vocab, err := NewVocabulary(tokens, 4)
	require.NoError(t, err)
	trie := New(vocab)

	tests := []struct {
		name   string
		accept func([]byte) bool
		want   []TokenID
	}{
		{
			name:   "everything ordinary",
			accept: func([]byte) bool { return true },
			want:   []TokenID{0, 1, 2, 3},
		},
		{
			name:   "prefix a only",
			accept: func(b []byte) bool { return b[0] == 'a' },
			want:   []TokenID{0, 1, 2},
		},
		{
			name:   "length capped",
			accept: func(b []byte) bool { return len(b) <= 2 },
			want:   []TokenID{0, 1, 3},
		},
		{
			name:   "nothing",
			accept: func([]byte) bool { return false },
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := bias.New(trie.VocabSize() + 1)
			trie.ComputeBias(tt.accept, v)

			var got []TokenID
			for id := 0; id < trie.VocabSize(); id++ {
				if v.IsAllowed(TokenID(id)) {
					got = append(got, TokenID(id))
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrie_ComputeBiasPrunes(t *testing.T) {
	// The walk must never descend past a rejected prefix.
	tokens := [][]byte{[]byte("x"), []byte("xy"), []byte("xyz")}
	vocab, err := NewVocabulary(tokens, 0)
	require.NoError(t, err)
	trie := New(vocab)

	var seen [][]byte
	v := bias.New(trie.VocabSize() + 1)
	trie.ComputeBias(func(b []byte) bool {
		seen = append(seen, append([]byte(nil), b...))
		return len(b) < 2
	}, v)

	for _, b := range seen {
		assert.LessOrEqual(t, len(b), 2)
	}
	assert.True(t, v.IsAllowed(0))
	assert.False(t, v.IsAllowed(1))
	assert.False(t, v.IsAllowed(2))

	// "xyz" is three deep; the rejected "xy" prefix must have cut it off.
	assert.False(t, bytesContains(seen, []byte("xyz")))
}

func bytesContains(set [][]byte, want []byte) bool {
	for _, b := range set {
		if bytes.Equal(b, want) {
			return true
		}
	}
	return false
}
