package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steer-ml/steer/internal/store"
	"github.com/steer-ml/steer/internal/toktrie"
)

// testTrie builds a tiny vocabulary trie for controller tests.
func testTrie(t *testing.T) *toktrie.Trie {
	t.Helper()
	tokens := [][]byte{
		[]byte("a"), []byte("b"), []byte("c"), []byte("ab"),
		append([]byte{toktrie.SpecialTokenPrefix}, "<eos>"...),
	}
	vocab, err := toktrie.NewVocabulary(tokens, 4)
	require.NoError(t, err)
	return toktrie.New(vocab)
}

// directStorage adapts a bare store to the StoragePort for tests.
type directStorage struct{ s *store.Store }

func (d directStorage) ReadVar(name string) (store.Value, bool) {
	return d.s.Read(name)
}

func (d directStorage) WriteVar(name string, value []byte, op store.Op, whenVersion *uint64) store.WriteResult {
	return d.s.Write(name, value, op, whenVersion)
}

func newTestHelper(t *testing.T) *Helper {
	t.Helper()
	return NewHelper(testTrie(t), directStorage{s: store.New()})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       Decision
		wantErr bool
	}{
		{name: "stop", d: Stop{}},
		{name: "sample", d: SampleWithBias{}},
		{name: "empty splice", d: Splice{}, wantErr: true},
		{name: "backtrack only", d: Splice{Backtrack: 2}},
		{name: "ff only", d: Splice{FFTokens: []toktrie.TokenID{1}}},
		{name: "fork zero", d: Fork{NumChildren: 0}, wantErr: true},
		{name: "fork one is noop", d: Fork{NumChildren: 1}},
		{name: "fork many", d: Fork{NumChildren: 4}},
		{name: "waitall", d: WaitAll{Variables: []string{"x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.d)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidResult)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHelper_Bias(t *testing.T) {
	h := newTestHelper(t)

	// vocab of 5 plus the stop sentinel.
	assert.Equal(t, 6, h.Bias().Size())
	assert.Equal(t, 0, h.Bias().NumSet())

	require.NoError(t, h.Allow(1))
	h.AllowEOS()
	assert.True(t, h.Bias().IsAllowed(1))
	assert.True(t, h.Bias().IsAllowed(4))

	h.ClearBias()
	assert.Equal(t, 0, h.Bias().NumSet())

	assert.Equal(t, SampleWithBias{}, h.ReturnBias())
}

func TestHelper_Clone(t *testing.T) {
	h := newTestHelper(t)
	require.NoError(t, h.Allow(0))
	h.SetSeqID(7)

	c := h.Clone()
	assert.Same(t, h.Trie(), c.Trie())
	assert.Equal(t, 0, c.Bias().NumSet(), "clone starts with a fresh bias")

	// The storage port is shared: a write through one is visible to the
	// other.
	h.Storage().WriteVar("k", []byte("v"), store.OpSet, nil)
	_, ok := c.Storage().ReadVar("k")
	assert.True(t, ok)
}

func TestPhraseController_ForcesPhrase(t *testing.T) {
	h := newTestHelper(t)
	phrase := []toktrie.TokenID{3, 2} // "ab" "c"
	ctrl := NewPhraseController(h, phrase, 2)
	ctrl.InitPrompt(nil)

	// First call: bias for the first free token.
	d := ctrl.Process(Append{})
	require.Equal(t, SampleWithBias{}, d)
	assert.Positive(t, h.Bias().NumSet())
	assert.False(t, h.Bias().IsAllowed(4), "special tokens stay disallowed")

	// Second free token.
	d = ctrl.Process(Append{Tokens: []toktrie.TokenID{0}})
	require.Equal(t, SampleWithBias{}, d)

	// Budget reached: backtrack both free tokens, force the phrase.
	d = ctrl.Process(Append{Tokens: []toktrie.TokenID{1}})
	require.Equal(t, Splice{Backtrack: 2, FFTokens: phrase}, d)

	// The echo of the splice ends the sequence.
	d = ctrl.Process(Append{Tokens: phrase})
	assert.Equal(t, Stop{}, d)
}

func TestPhraseController_NoFreeTokens(t *testing.T) {
	h := newTestHelper(t)
	phrase := []toktrie.TokenID{0}
	ctrl := NewPhraseController(h, phrase, 0)
	ctrl.InitPrompt(nil)

	d := ctrl.Process(Append{})
	require.Equal(t, Splice{Backtrack: 0, FFTokens: phrase}, d)

	d = ctrl.Process(Append{Tokens: phrase})
	assert.Equal(t, Stop{}, d)
}

func TestPhraseController_NothingToDo(t *testing.T) {
	h := newTestHelper(t)
	ctrl := NewPhraseController(h, nil, 0)
	ctrl.InitPrompt(nil)

	assert.Equal(t, Stop{}, ctrl.Process(Append{}))
}

func TestVoteController_SingleVoter(t *testing.T) {
	h := newTestHelper(t)
	encode := func(b []byte) []toktrie.TokenID {
		ids := make([]toktrie.TokenID, len(b))
		for i := range b {
			ids[i] = 0
		}
		return ids
	}
	ctrl := NewVoteController(h, encode, 1)
	ctrl.InitPrompt(nil)

	d := ctrl.Process(Append{})
	sp, ok := d.(Splice)
	require.True(t, ok, "single voter splices its own ballot, got %T", d)
	assert.Equal(t, uint32(0), sp.Backtrack)
	assert.NotEmpty(t, sp.FFTokens)

	// The ballot landed in the store.
	tally, ok := h.Storage().ReadVar("tally")
	require.True(t, ok)
	assert.Equal(t, []byte("rank0;"), tally.Data)

	assert.Equal(t, Stop{}, ctrl.Process(Append{Tokens: sp.FFTokens}))
}

func TestVoteController_ForkThenWait(t *testing.T) {
	h := newTestHelper(t)
	encode := func(b []byte) []toktrie.TokenID { return []toktrie.TokenID{0} }
	ctrl := NewVoteController(h, encode, 3)
	ctrl.InitPrompt(nil)
	h.SetSeqID(0)

	d := ctrl.Process(Append{})
	require.Equal(t, Fork{NumChildren: 3}, d)

	// Children are ranked clones.
	forker, ok := Controller(ctrl).(Forker)
	require.True(t, ok)
	c1 := forker.ForkChild(1)
	c2 := forker.ForkChild(2)

	group := []SeqID{0, 1, 2}

	// Children cast and stop.
	assert.Equal(t, Stop{}, c1.Process(ForkGroup{Group: group}))
	assert.Equal(t, Stop{}, c2.Process(ForkGroup{Group: group}))

	// Rank 0 casts and waits for the whole conjunction.
	d = ctrl.Process(ForkGroup{Group: group})
	w, ok := d.(WaitAll)
	require.True(t, ok, "rank 0 must wait, got %T", d)
	assert.ElementsMatch(t, []string{"vote.1", "vote.2"}, w.Variables)
	assert.Equal(t, []SeqID{1, 2}, w.Finished)

	// All three ballots are in the tally, each exactly once.
	tally, ok := h.Storage().ReadVar("tally")
	require.True(t, ok)
	assert.Len(t, tally.Data, len("rank0;rank1;rank2;"))
	assert.Equal(t, uint64(3), tally.Version)

	// Re-invocation after the conjunction holds splices the tally.
	d = ctrl.Process(ForkGroup{Group: group})
	_, ok = d.(Splice)
	assert.True(t, ok, "woken rank 0 must splice, got %T", d)
}
