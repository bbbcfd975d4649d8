package tokenenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steer-ml/steer/internal/toktrie"
)

// asciiEnv builds a byte-level static environment with two registered
// special tokens.
func asciiEnv(t *testing.T) Env {
	t.Helper()
	tokens := make([][]byte, 255)
	for i := range tokens {
		tokens[i] = []byte{byte(i)}
	}
	env, err := NewStatic(StaticConfig{
		Tokens: tokens,
		EOS:    255,
		SpecialTokens: map[string]toktrie.TokenID{
			"<eos>":  255,
			"<turn>": 256,
		},
		Fallback: ByteFallback(tokens),
	})
	require.NoError(t, err)
	return env
}

func TestStatic_ConstructionErrors(t *testing.T) {
	tokens := [][]byte{[]byte("a")}

	tests := []struct {
		name string
		cfg  StaticConfig
		want error
	}{
		{
			name: "eos out of range",
			cfg:  StaticConfig{Tokens: tokens, EOS: 5},
			want: toktrie.ErrEOSOutOfRange,
		},
		{
			name: "duplicate special id",
			cfg: StaticConfig{
				Tokens: tokens,
				EOS:    0,
				SpecialTokens: map[string]toktrie.TokenID{
					"<a>": 7,
					"<b>": 7,
				},
			},
			want: ErrBadSpecialTable,
		},
		{
			name: "empty special name",
			cfg: StaticConfig{
				Tokens:        tokens,
				EOS:           0,
				SpecialTokens: map[string]toktrie.TokenID{"": 3},
			},
			want: ErrBadSpecialTable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStatic(tt.cfg)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStatic_SpecialsExtendVocab(t *testing.T) {
	env := asciiEnv(t)
	// Id 256 was introduced by the special-token table.
	assert.Equal(t, 257, env.Trie().VocabSize())

	name, ok := env.Trie().Vocab().SpecialName(256)
	require.True(t, ok)
	assert.Equal(t, "<turn>", name)
}

func TestEnv_TokenizeBytesRoundTrip(t *testing.T) {
	env := asciiEnv(t)
	in := []byte("hello world")
	ids := env.TokenizeBytes(in)

	var out []byte
	for _, id := range ids {
		out = append(out, env.Trie().TokenBytes(id)...)
	}
	assert.Equal(t, in, out)
}

func TestEnv_TokenizeSpecial(t *testing.T) {
	env := asciiEnv(t)

	assert.Equal(t, []toktrie.TokenID{255}, env.TokenizeSpecial("<eos>"))
	assert.Equal(t, []toktrie.TokenID{256}, env.TokenizeSpecial("<turn>"))

	// Unregistered names tokenize as ordinary text.
	ids := env.TokenizeSpecial("<missing>")
	assert.Len(t, ids, len("<missing>"))
}

func TestEnv_TokenizeBytesPrefix(t *testing.T) {
	env := asciiEnv(t)
	marker := toktrie.SpecialTokenPrefix

	tests := []struct {
		name string
		in   []byte
		want []toktrie.TokenID
	}{
		{
			name: "plain text passes through",
			in:   []byte("ab"),
			want: []toktrie.TokenID{'a', 'b'},
		},
		{
			name: "marker substitutes special id",
			in:   append(append([]byte("a"), marker), []byte("<eos>b")...),
			want: []toktrie.TokenID{'a', 255, 'b'},
		},
		{
			name: "unmatched name skips marker",
			in:   append(append([]byte("a"), marker), []byte("<zz>b")...),
			want: []toktrie.TokenID{'a', '<', 'z', 'z', '>', 'b'},
		},
		{
			name: "marker at end is dropped",
			in:   append([]byte("ab"), marker),
			want: []toktrie.TokenID{'a', 'b'},
		},
		{
			name: "marker without bracket",
			in:   append(append([]byte("a"), marker), []byte("eosx")...),
			want: []toktrie.TokenID{'a', 'e', 'o', 's', 'x'},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, env.TokenizeBytesPrefix(tt.in))
		})
	}
}

func TestEnv_SpecialToken(t *testing.T) {
	env := asciiEnv(t)

	id, err := env.SpecialToken(EndOfSentence)
	require.NoError(t, err)
	assert.Equal(t, toktrie.TokenID(255), id)

	_, err = env.SpecialToken(Padding)
	require.ErrorIs(t, err, ErrUnknownSpecialToken)
}

func TestEnv_StopPanics(t *testing.T) {
	env := asciiEnv(t)
	assert.PanicsWithValue(t, ErrStopRequested, func() { env.Stop() })
}

func TestTiktoken_UnknownEncoding(t *testing.T) {
	_, err := NewTiktoken(TiktokenConfig{Encoding: "bogus", EOS: 0})
	require.ErrorIs(t, err, ErrUnknownEncoding)
}
