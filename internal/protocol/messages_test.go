package protocol

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steer-ml/steer/internal/control"
	"github.com/steer-ml/steer/internal/store"
	"github.com/steer-ml/steer/internal/toktrie"
)

func uptr(v uint64) *uint64 { return &v }

func TestProcessArg_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		arg  ProcessArg
	}{
		{name: "append", arg: ProcessArg{Append: &AppendArg{Tokens: []uint32{1, 2, 3}}}},
		{name: "append empty", arg: ProcessArg{Append: &AppendArg{}}},
		{name: "fork", arg: ProcessArg{Fork: &ForkArg{Group: []uint32{0, 1, 2}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := cbor.Marshal(tt.arg)
			require.NoError(t, err)

			var got ProcessArg
			require.NoError(t, cbor.Unmarshal(data, &got))
			assert.Equal(t, tt.arg, got)
		})
	}
}

func TestProcessResult_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		res  ProcessResult
	}{
		{name: "stop", res: ProcessResult{Stop: &StopResult{}}},
		{name: "sample", res: ProcessResult{SampleWithBias: &SampleResult{}}},
		{name: "splice", res: ProcessResult{Splice: &SpliceResult{Backtrack: 2, FFTokens: []uint32{9}}}},
		{name: "fork", res: ProcessResult{Fork: &ForkResult{NumChildren: 4}}},
		{name: "waitall", res: ProcessResult{WaitAll: &WaitAllResult{
			Variables: []string{"a", "b"},
			Finished:  []uint32{3},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := cbor.Marshal(tt.res)
			require.NoError(t, err)

			var got ProcessResult
			require.NoError(t, cbor.Unmarshal(data, &got))
			assert.Equal(t, tt.res, got)
		})
	}
}

func TestUnion_DecodeErrors(t *testing.T) {
	// Unknown variant name.
	data, err := cbor.Marshal(map[string]any{"Bogus": map[string]any{}})
	require.NoError(t, err)
	var arg ProcessArg
	assert.ErrorContains(t, arg.UnmarshalCBOR(data), "unknown variant")

	// More than one variant key.
	data, err = cbor.Marshal(map[string]any{
		"Append": map[string]any{},
		"Fork":   map[string]any{},
	})
	require.NoError(t, err)
	assert.ErrorContains(t, arg.UnmarshalCBOR(data), "exactly one variant")

	// Not a map at all.
	data, err = cbor.Marshal([]int{1, 2})
	require.NoError(t, err)
	assert.Error(t, arg.UnmarshalCBOR(data))

	// A union with nothing set refuses to encode.
	_, err = cbor.Marshal(ProcessResult{})
	assert.Error(t, err)
}

func TestStorageCmd_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cmd  StorageCmd
	}{
		{name: "read", cmd: StorageCmd{ReadVar: &ReadVarCmd{Name: "x"}}},
		{name: "set", cmd: StorageCmd{WriteVar: &WriteVarCmd{
			Name: "x", Value: []byte("v"), Op: "Set",
		}}},
		{name: "cas append", cmd: StorageCmd{WriteVar: &WriteVarCmd{
			Name: "x", Value: []byte("v"), Op: "Append", WhenVersionIs: uptr(3),
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := cbor.Marshal(tt.cmd)
			require.NoError(t, err)

			var got StorageCmd
			require.NoError(t, cbor.Unmarshal(data, &got))
			assert.Equal(t, tt.cmd, got)
		})
	}
}

func TestConvert_EventRoundTrip(t *testing.T) {
	events := []control.Event{
		control.Append{Tokens: []toktrie.TokenID{5, 6}},
		control.ForkGroup{Group: []control.SeqID{0, 1}},
	}

	for _, ev := range events {
		arg, err := ArgFromEvent(ev)
		require.NoError(t, err)

		back, err := arg.Event()
		require.NoError(t, err)
		assert.Equal(t, ev, back)
	}
}

func TestConvert_DecisionRoundTrip(t *testing.T) {
	decisions := []control.Decision{
		control.Stop{},
		control.SampleWithBias{},
		control.Splice{Backtrack: 1, FFTokens: []toktrie.TokenID{7}},
		control.Fork{NumChildren: 2},
		control.WaitAll{Variables: []string{"v"}, Finished: []control.SeqID{4}},
	}

	for _, d := range decisions {
		res, err := ResultFromDecision(d)
		require.NoError(t, err)

		back, err := res.Decision()
		require.NoError(t, err)
		assert.Equal(t, d, back)
	}
}

func TestExecStorage(t *testing.T) {
	s := store.New()

	// Reading a variable that was never written.
	resp, err := ExecStorage(s, StorageCmd{ReadVar: &ReadVarCmd{Name: "x"}})
	require.NoError(t, err)
	require.NotNil(t, resp.VariableMissing)

	// First write creates version 1.
	resp, err = ExecStorage(s, StorageCmd{WriteVar: &WriteVarCmd{
		Name: "x", Value: []byte("one"), Op: "Set",
	}})
	require.NoError(t, err)
	require.NotNil(t, resp.WriteVar)
	assert.Equal(t, uint64(1), resp.WriteVar.Version)

	// A read sees it.
	resp, err = ExecStorage(s, StorageCmd{ReadVar: &ReadVarCmd{Name: "x"}})
	require.NoError(t, err)
	require.NotNil(t, resp.ReadVar)
	assert.Equal(t, []byte("one"), resp.ReadVar.Value)

	// CAS against a stale version: not an error, the response carries the
	// current state so the caller can retry.
	resp, err = ExecStorage(s, StorageCmd{WriteVar: &WriteVarCmd{
		Name: "x", Value: []byte("two"), Op: "Set", WhenVersionIs: uptr(9),
	}})
	require.NoError(t, err)
	require.NotNil(t, resp.ReadVar)
	assert.Equal(t, uint64(1), resp.ReadVar.Version)
	assert.Equal(t, []byte("one"), resp.ReadVar.Value)

	// CAS against the right version wins.
	resp, err = ExecStorage(s, StorageCmd{WriteVar: &WriteVarCmd{
		Name: "x", Value: []byte("!"), Op: "Append", WhenVersionIs: uptr(1),
	}})
	require.NoError(t, err)
	require.NotNil(t, resp.WriteVar)
	assert.Equal(t, uint64(2), resp.WriteVar.Version)

	// CAS on a missing variable never matches.
	resp, err = ExecStorage(s, StorageCmd{WriteVar: &WriteVarCmd{
		Name: "y", Value: []byte("v"), Op: "Set", WhenVersionIs: uptr(0),
	}})
	require.NoError(t, err)
	require.NotNil(t, resp.VariableMissing)

	// Unknown op is a protocol error.
	_, err = ExecStorage(s, StorageCmd{WriteVar: &WriteVarCmd{
		Name: "x", Value: nil, Op: "Swap",
	}})
	assert.ErrorContains(t, err, "unknown op")
}
