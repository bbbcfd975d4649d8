// Package protocol defines the tagged messages exchanged with the host.
//
// Every message is a CBOR map with exactly one key naming the variant, so
// the encoding is self-describing and round-trips byte-identically. The
// bias bitmap never travels inside these messages; it crosses the host
// boundary on its own fixed-size channel.
package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// InitPromptArg carries the initial prompt of a sequence.
type InitPromptArg struct {
	Prompt []uint32 `cbor:"prompt"`
}

// AppendArg is the Append variant payload of ProcessArg.
type AppendArg struct {
	Tokens []uint32 `cbor:"tokens"`
}

// ForkArg is the Fork variant payload of ProcessArg.
type ForkArg struct {
	Group []uint32 `cbor:"group"`
}

// ProcessArg is the inbound event union: exactly one variant is set.
type ProcessArg struct {
	Append *AppendArg
	Fork   *ForkArg
}

// MarshalCBOR implements cbor.Marshaler.
func (a ProcessArg) MarshalCBOR() ([]byte, error) {
	switch {
	case a.Append != nil:
		return marshalVariant("Append", a.Append)
	case a.Fork != nil:
		return marshalVariant("Fork", a.Fork)
	default:
		return nil, fmt.Errorf("ProcessArg: no variant set")
	}
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (a *ProcessArg) UnmarshalCBOR(data []byte) error {
	tag, raw, err := decodeUnion("ProcessArg", data)
	if err != nil {
		return err
	}
	*a = ProcessArg{}
	switch tag {
	case "Append":
		a.Append = &AppendArg{}
		return cbor.Unmarshal(raw, a.Append)
	case "Fork":
		a.Fork = &ForkArg{}
		return cbor.Unmarshal(raw, a.Fork)
	default:
		return fmt.Errorf("ProcessArg: unknown variant %q", tag)
	}
}

// StopResult and SampleResult are the payload-free ProcessResult variants.
type (
	StopResult   struct{}
	SampleResult struct{}
)

// SpliceResult asks the host to pop Backtrack tokens, then append FFTokens.
type SpliceResult struct {
	Backtrack uint32   `cbor:"backtrack"`
	FFTokens  []uint32 `cbor:"ff_tokens"`
}

// ForkResult asks the host to fork the sequence.
type ForkResult struct {
	NumChildren uint32 `cbor:"num_children"`
}

// WaitAllResult suspends the sequence on a conjunction of conditions.
type WaitAllResult struct {
	Variables []string `cbor:"variables"`
	Finished  []uint32 `cbor:"finished"`
}

// ProcessResult is the outbound decision union: exactly one variant is set.
type ProcessResult struct {
	Stop           *StopResult
	SampleWithBias *SampleResult
	Splice         *SpliceResult
	Fork           *ForkResult
	WaitAll        *WaitAllResult
}

// MarshalCBOR implements cbor.Marshaler.
func (r ProcessResult) MarshalCBOR() ([]byte, error) {
	switch {
	case r.Stop != nil:
		return marshalVariant("Stop", r.Stop)
	case r.SampleWithBias != nil:
		return marshalVariant("SampleWithBias", r.SampleWithBias)
	case r.Splice != nil:
		return marshalVariant("Splice", r.Splice)
	case r.Fork != nil:
		return marshalVariant("Fork", r.Fork)
	case r.WaitAll != nil:
		return marshalVariant("WaitAll", r.WaitAll)
	default:
		return nil, fmt.Errorf("ProcessResult: no variant set")
	}
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (r *ProcessResult) UnmarshalCBOR(data []byte) error {
	tag, raw, err := decodeUnion("ProcessResult", data)
	if err != nil {
		return err
	}
	*r = ProcessResult{}
	switch tag {
	case "Stop":
		r.Stop = &StopResult{}
		return cbor.Unmarshal(raw, r.Stop)
	case "SampleWithBias":
		r.SampleWithBias = &SampleResult{}
		return cbor.Unmarshal(raw, r.SampleWithBias)
	case "Splice":
		r.Splice = &SpliceResult{}
		return cbor.Unmarshal(raw, r.Splice)
	case "Fork":
		r.Fork = &ForkResult{}
		return cbor.Unmarshal(raw, r.Fork)
	case "WaitAll":
		r.WaitAll = &WaitAllResult{}
		return cbor.Unmarshal(raw, r.WaitAll)
	default:
		return fmt.Errorf("ProcessResult: unknown variant %q", tag)
	}
}

// ReadVarCmd reads one variable.
type ReadVarCmd struct {
	Name string `cbor:"name"`
}

// WriteVarCmd writes one variable, optionally guarded by a version check.
// Op is "Set" or "Append".
type WriteVarCmd struct {
	Name          string  `cbor:"name"`
	Value         []byte  `cbor:"value"`
	Op            string  `cbor:"op"`
	WhenVersionIs *uint64 `cbor:"when_version_is,omitempty"`
}

// StorageCmd is the storage request union: exactly one variant is set.
type StorageCmd struct {
	ReadVar  *ReadVarCmd
	WriteVar *WriteVarCmd
}

// MarshalCBOR implements cbor.Marshaler.
func (c StorageCmd) MarshalCBOR() ([]byte, error) {
	switch {
	case c.ReadVar != nil:
		return marshalVariant("ReadVar", c.ReadVar)
	case c.WriteVar != nil:
		return marshalVariant("WriteVar", c.WriteVar)
	default:
		return nil, fmt.Errorf("StorageCmd: no variant set")
	}
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (c *StorageCmd) UnmarshalCBOR(data []byte) error {
	tag, raw, err := decodeUnion("StorageCmd", data)
	if err != nil {
		return err
	}
	*c = StorageCmd{}
	switch tag {
	case "ReadVar":
		c.ReadVar = &ReadVarCmd{}
		return cbor.Unmarshal(raw, c.ReadVar)
	case "WriteVar":
		c.WriteVar = &WriteVarCmd{}
		return cbor.Unmarshal(raw, c.WriteVar)
	default:
		return fmt.Errorf("StorageCmd: unknown variant %q", tag)
	}
}

// ReadVarResp reports the value and version a read (or a conflicted write)
// observed.
type ReadVarResp struct {
	Version uint64 `cbor:"version"`
	Value   []byte `cbor:"value"`
}

// MissingResp reports that the variable has never been written.
type MissingResp struct{}

// WriteVarResp reports the new version of a successful write.
type WriteVarResp struct {
	Version uint64 `cbor:"version"`
}

// StorageResp is the storage response union: exactly one variant is set.
// A version conflict is not an error; it surfaces as ReadVar or
// VariableMissing, exactly as a read would.
type StorageResp struct {
	ReadVar         *ReadVarResp
	VariableMissing *MissingResp
	WriteVar        *WriteVarResp
}

// MarshalCBOR implements cbor.Marshaler.
func (r StorageResp) MarshalCBOR() ([]byte, error) {
	switch {
	case r.ReadVar != nil:
		return marshalVariant("ReadVar", r.ReadVar)
	case r.VariableMissing != nil:
		return marshalVariant("VariableMissing", r.VariableMissing)
	case r.WriteVar != nil:
		return marshalVariant("WriteVar", r.WriteVar)
	default:
		return nil, fmt.Errorf("StorageResp: no variant set")
	}
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (r *StorageResp) UnmarshalCBOR(data []byte) error {
	tag, raw, err := decodeUnion("StorageResp", data)
	if err != nil {
		return err
	}
	*r = StorageResp{}
	switch tag {
	case "ReadVar":
		r.ReadVar = &ReadVarResp{}
		return cbor.Unmarshal(raw, r.ReadVar)
	case "VariableMissing":
		r.VariableMissing = &MissingResp{}
		return cbor.Unmarshal(raw, r.VariableMissing)
	case "WriteVar":
		r.WriteVar = &WriteVarResp{}
		return cbor.Unmarshal(raw, r.WriteVar)
	default:
		return fmt.Errorf("StorageResp: unknown variant %q", tag)
	}
}

// marshalVariant encodes a one-key map naming the variant.
func marshalVariant(tag string, v any) ([]byte, error) {
	return cbor.Marshal(map[string]any{tag: v})
}

// decodeUnion pulls the single variant tag and its raw payload out of a
// union message.
func decodeUnion(union string, data []byte) (string, cbor.RawMessage, error) {
	var m map[string]cbor.RawMessage
	if err := cbor.Unmarshal(data, &m); err != nil {
		return "", nil, fmt.Errorf("%s: %w", union, err)
	}
	if len(m) != 1 {
		return "", nil, fmt.Errorf("%s: want exactly one variant, got %d", union, len(m))
	}
	for tag, raw := range m {
		return tag, raw, nil
	}
	panic("unreachable")
}
